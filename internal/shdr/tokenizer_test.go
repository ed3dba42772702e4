package shdr

import (
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "simple",
			line: "2021-02-01T12:00:00Z|line|204",
			want: []string{"2021-02-01T12:00:00Z", "line", "204"},
		},
		{
			name: "trimmed_fields",
			line: " a | b |c ",
			want: []string{"a", "b", "c"},
		},
		{
			name: "trailing_pipe_empty_token",
			line: "a|b|",
			want: []string{"a", "b", ""},
		},
		{
			name: "empty_middle_field",
			line: "a||b",
			want: []string{"a", "", "b"},
		},
		{
			name: "quoted_field_with_pipes",
			line: `ts|msg|"text with | pipes"`,
			want: []string{"ts", "msg", "text with | pipes"},
		},
		{
			name: "escaped_characters",
			line: `ts|"a \"quoted\" word"|x`,
			want: []string{"ts", `a "quoted" word`, "x"},
		},
		{
			name: "unterminated_quote_is_literal",
			line: `ts|"no close|x`,
			want: []string{"ts", `"no close`, "x"},
		},
		{
			name: "quote_not_at_end_is_literal",
			line: `ts|"abc"def|x`,
			want: []string{"ts", `"abc"def`, "x"},
		},
		{
			name: "condition_line",
			line: "2021-02-01T12:00:00Z|zlc|FAULT|1234|LOW|Hydraulic pressure low",
			want: []string{"2021-02-01T12:00:00Z", "zlc", "FAULT", "1234", "LOW", "Hydraulic pressure low"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %q, want %q", tt.line, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// Joining plain tokens with pipes and re-tokenizing restores the tokens.
func TestTokenizeRoundTrip(t *testing.T) {
	cases := [][]string{
		{"a", "b", "c"},
		{"2021-02-01T12:00:00Z", "line", "204"},
		{"x", "", "y"},
		{"one token", "another token"},
	}
	for _, tokens := range cases {
		line := strings.Join(tokens, "|")
		got := Tokenize(line)
		if len(got) != len(tokens) {
			t.Errorf("round trip of %q: got %q", tokens, got)
			continue
		}
		for i := range tokens {
			if got[i] != tokens[i] {
				t.Errorf("round trip of %q: token %d = %q", tokens, i, got[i])
			}
		}
	}
}
