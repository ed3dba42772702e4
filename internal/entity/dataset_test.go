package entity

import "testing"

func TestParseDataSet(t *testing.T) {
	tests := []struct {
		name  string
		input string
		table bool
		want  DataSet
	}{
		{
			name:  "simple_pairs",
			input: "a=1 b=2.5 c=text",
			want: DataSet{
				"a": {Value: int64(1)},
				"b": {Value: 2.5},
				"c": {Value: "text"},
			},
		},
		{
			name:  "removal_bare_key",
			input: "a=1 b",
			want: DataSet{
				"a": {Value: int64(1)},
				"b": {Removed: true},
			},
		},
		{
			name:  "removal_empty_value",
			input: "a= b=2",
			want: DataSet{
				"a": {Removed: true},
				"b": {Value: int64(2)},
			},
		},
		{
			name:  "quoted_value_with_spaces",
			input: `msg='hello world' n=3`,
			want: DataSet{
				"msg": {Value: "hello world"},
				"n":   {Value: int64(3)},
			},
		},
		{
			name:  "escaped_quote",
			input: `a="say \"hi\""`,
			want: DataSet{
				"a": {Value: `say "hi"`},
			},
		},
		{
			name:  "table_rows",
			input: "r1={a=1 b=2} r2={a=3}",
			table: true,
			want: DataSet{
				"r1": {Value: DataSet{"a": {Value: int64(1)}, "b": {Value: int64(2)}}},
				"r2": {Value: DataSet{"a": {Value: int64(3)}}},
			},
		},
		{
			name:  "braced_value_non_table",
			input: "k={raw text}",
			want: DataSet{
				"k": {Value: "raw text"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDataSet(tt.input, tt.table)
			if err != nil {
				t.Fatalf("ParseDataSet(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDataSet(%q)\ngot:  %v\nwant: %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDataSetErrors(t *testing.T) {
	for _, input := range []string{"k={unterminated", "k='unterminated"} {
		if _, err := ParseDataSet(input, false); err == nil {
			t.Errorf("ParseDataSet(%q) expected error", input)
		}
	}
}

func TestDataSetMergeIdempotent(t *testing.T) {
	base := DataSet{
		"a": {Value: int64(1)},
		"b": {Value: int64(2)},
		"c": {Value: "x"},
	}
	update := DataSet{
		"a": {Value: int64(10)},
		"b": {Removed: true},
		"d": {Value: 4.5},
	}

	once := base.Merge(update)
	twice := once.Merge(update)

	if !once.Equal(twice) {
		t.Errorf("merge not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}

	want := DataSet{
		"a": {Value: int64(10)},
		"c": {Value: "x"},
		"d": {Value: 4.5},
	}
	if !once.Equal(want) {
		t.Errorf("merge result\ngot:  %v\nwant: %v", once, want)
	}

	// Base unchanged.
	if _, ok := base["b"]; !ok {
		t.Error("merge mutated the base set")
	}
}

func TestDataSetString(t *testing.T) {
	ds := DataSet{
		"b": {Value: int64(2)},
		"a": {Value: "hello world"},
		"r": {Removed: true},
	}
	got := ds.String()
	want := "a='hello world' b=2 r"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
