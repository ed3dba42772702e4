package observation

import (
	"testing"
	"time"

	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
)

var when = time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)

func item(category device.Category, typ string, repr device.Representation) *device.DataItem {
	return &device.DataItem{ID: "di1", Name: "di1", Category: category,
		Type: typ, Representation: repr}
}

func TestMakeVariants(t *testing.T) {
	tests := []struct {
		name  string
		di    *device.DataItem
		props map[string]entity.Value
		check func(t *testing.T, obs Observation)
	}{
		{
			name:  "event",
			di:    item(device.Event, "EXECUTION", device.ValueRepresentation),
			props: map[string]entity.Value{entity.ValueProperty: "ACTIVE"},
			check: func(t *testing.T, obs Observation) {
				if _, ok := obs.(*Event); !ok {
					t.Fatalf("got %T", obs)
				}
				if obs.Entity().QName() != "Execution" {
					t.Errorf("qname = %q", obs.Entity().QName())
				}
			},
		},
		{
			name:  "sample_converts_value",
			di:    item(device.Sample, "POSITION", device.ValueRepresentation),
			props: map[string]entity.Value{entity.ValueProperty: "10.5"},
			check: func(t *testing.T, obs Observation) {
				s, ok := obs.(*Sample)
				if !ok {
					t.Fatalf("got %T", obs)
				}
				if s.Value() != 10.5 {
					t.Errorf("value = %v (%T)", s.Value(), s.Value())
				}
			},
		},
		{
			name: "timeseries_counts_samples",
			di:   item(device.Sample, "TEMPERATURE", device.TimeSeries),
			props: map[string]entity.Value{
				entity.ValueProperty: entity.Vector{1, 2, 3, 4},
				"sampleRate":         "100",
			},
			check: func(t *testing.T, obs Observation) {
				if _, ok := obs.(*Timeseries); !ok {
					t.Fatalf("got %T", obs)
				}
				if n, _ := entity.MaybeGet[int64](obs.Entity(), "sampleCount"); n != 4 {
					t.Errorf("sampleCount = %d", n)
				}
			},
		},
		{
			name:  "three_space",
			di:    item(device.Sample, "PATH_POSITION", device.ThreeSpace),
			props: map[string]entity.Value{entity.ValueProperty: "1 2 3"},
			check: func(t *testing.T, obs Observation) {
				if _, ok := obs.(*ThreeSpaceSample); !ok {
					t.Fatalf("got %T", obs)
				}
			},
		},
		{
			name: "data_set_counts_entries",
			di:   item(device.Event, "VARIABLE", device.DataSetRepresentation),
			props: map[string]entity.Value{
				entity.ValueProperty: entity.DataSet{"a": {Value: int64(1)}, "b": {Value: int64(2)}},
			},
			check: func(t *testing.T, obs Observation) {
				if _, ok := obs.(*DataSetEvent); !ok {
					t.Fatalf("got %T", obs)
				}
				if n, _ := entity.MaybeGet[int64](obs.Entity(), "count"); n != 2 {
					t.Errorf("count = %d", n)
				}
			},
		},
		{
			name:  "message",
			di:    item(device.Event, "MESSAGE", device.ValueRepresentation),
			props: map[string]entity.Value{"nativeCode": "4200", entity.ValueProperty: "tool change"},
			check: func(t *testing.T, obs Observation) {
				if _, ok := obs.(*Message); !ok {
					t.Fatalf("got %T", obs)
				}
			},
		},
		{
			name:  "asset_changed",
			di:    item(device.Event, "ASSET_CHANGED", device.ValueRepresentation),
			props: map[string]entity.Value{"assetType": "CuttingTool", entity.ValueProperty: "T1"},
			check: func(t *testing.T, obs Observation) {
				if _, ok := obs.(*AssetEvent); !ok {
					t.Fatalf("got %T", obs)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, errs := Make(tt.di, tt.props, when)
			if obs == nil {
				t.Fatalf("make failed: %v", errs)
			}
			if !obs.Timestamp().Equal(when) {
				t.Errorf("timestamp = %v", obs.Timestamp())
			}
			tt.check(t, obs)
		})
	}
}

func TestMakeUnavailable(t *testing.T) {
	t.Run("missing_value", func(t *testing.T) {
		obs, _ := Make(item(device.Event, "EXECUTION", device.ValueRepresentation),
			map[string]entity.Value{}, when)
		if !obs.IsUnavailable() {
			t.Error("missing VALUE should mark the observation unavailable")
		}
	})

	t.Run("unavailable_keyword", func(t *testing.T) {
		obs, _ := Make(item(device.Event, "EXECUTION", device.ValueRepresentation),
			map[string]entity.Value{entity.ValueProperty: "unavailable"}, when)
		if !obs.IsUnavailable() {
			t.Error("UNAVAILABLE value should mark the observation unavailable")
		}
	})

	t.Run("condition_without_level", func(t *testing.T) {
		obs, _ := Make(item(device.Condition, "LOGIC_PROGRAM", device.ValueRepresentation),
			map[string]entity.Value{}, when)
		cond := obs.(*Condition)
		if cond.Level() != Unavailable {
			t.Errorf("level = %v, want Unavailable", cond.Level())
		}
	})
}

func TestConditionChainOperations(t *testing.T) {
	mk := func(level Level, code string) *Condition {
		obs, _ := Make(item(device.Condition, "LOGIC_PROGRAM", device.ValueRepresentation),
			map[string]entity.Value{"level": level.String(), "nativeCode": code}, when)
		return obs.(*Condition)
	}

	a := mk(Fault, "A")
	b := mk(Warning, "B")
	c := mk(Fault, "C")
	b.AppendTo(a)
	c.AppendTo(b)

	if c.First() != a {
		t.Error("First should walk to the oldest node")
	}
	if got := c.Find("B"); got != b {
		t.Errorf("Find(B) = %v", got)
	}
	if c.Find("missing") != nil {
		t.Error("Find of unknown code should be nil")
	}

	// DeepCopyAndRemove drops exactly one node and leaves the source
	// chain untouched.
	out := c.DeepCopyAndRemove(b)
	codes := []string{}
	for _, n := range out.Chain() {
		codes = append(codes, n.Code())
	}
	if len(codes) != 2 || codes[0] != "A" || codes[1] != "C" {
		t.Errorf("chain after removal = %v", codes)
	}
	if c.Prev() != b || b.Prev() != a {
		t.Error("source chain must be unchanged")
	}
}
