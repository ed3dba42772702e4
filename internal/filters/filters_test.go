package filters

import (
	"testing"
	"time"

	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// collector records everything a filter forwards.
type collector struct {
	pipeline.Base
	got []observation.Observation
}

func newCollector() *collector {
	c := &collector{}
	c.Base = pipeline.NewBase("Collector", pipeline.Always(pipeline.Run))
	return c
}

func (c *collector) Apply(v any) (any, error) {
	if obs, ok := v.(observation.Observation); ok {
		c.got = append(c.got, obs)
	}
	return v, nil
}

func sampleItem(id string, delta, period *float64) *device.DataItem {
	return &device.DataItem{
		ID:            id,
		Category:      device.Sample,
		Type:          "POSITION",
		MinimumDelta:  delta,
		MinimumPeriod: period,
	}
}

func mkSample(t *testing.T, di *device.DataItem, value float64, ts time.Time) *observation.Sample {
	t.Helper()
	obs, errs := observation.Make(di, map[string]entity.Value{entity.ValueProperty: value}, ts)
	if obs == nil {
		t.Fatalf("make failed: %v", errs)
	}
	return obs.(*observation.Sample)
}

func mkUnavailable(t *testing.T, di *device.DataItem, ts time.Time) observation.Observation {
	t.Helper()
	obs, errs := observation.Make(di, map[string]entity.Value{}, ts)
	if obs == nil {
		t.Fatalf("make failed: %v", errs)
	}
	return obs
}

func f64(v float64) *float64 { return &v }

func TestDeltaFilter(t *testing.T) {
	base := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	di := sampleItem("d1", f64(1.0), nil)

	ctx := pipeline.NewContext(nil)
	filter := NewDeltaFilter(ctx)
	sink := newCollector()
	filter.Bind(sink)

	feed := func(value float64) {
		if _, err := filter.Apply(mkSample(t, di, value, base)); err != nil {
			t.Fatalf("apply failed: %v", err)
		}
	}

	feed(10.0) // first always passes
	feed(10.5) // within delta, dropped
	feed(11.0) // exactly last + delta, passes
	feed(10.1) // within delta of 11.0, dropped
	feed(10.0) // exactly last - delta, passes

	want := []float64{10.0, 11.0, 10.0}
	if len(sink.got) != len(want) {
		t.Fatalf("forwarded %d observations, want %d", len(sink.got), len(want))
	}
	for i, obs := range sink.got {
		if v := obs.Entity().Value(); v != want[i] {
			t.Errorf("forwarded[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestDeltaFilterClearsOnUnavailable(t *testing.T) {
	base := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	di := sampleItem("d2", f64(1.0), nil)

	ctx := pipeline.NewContext(nil)
	filter := NewDeltaFilter(ctx)
	sink := newCollector()
	filter.Bind(sink)

	filter.Apply(mkSample(t, di, 10.0, base))
	filter.Apply(mkUnavailable(t, di, base.Add(time.Second)))
	// After unavailable the next value must not be treated as a delta
	// match of the pre-unavailable value.
	filter.Apply(mkSample(t, di, 10.0, base.Add(2*time.Second)))

	if len(sink.got) != 3 {
		t.Fatalf("forwarded %d observations, want 3", len(sink.got))
	}
}

func TestCorrectTimestamp(t *testing.T) {
	base := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	now := base.Add(time.Hour)
	di := sampleItem("c1", nil, nil)

	ctx := pipeline.NewContext(nil)
	filter := NewCorrectTimestamp(ctx, testLogger())
	filter.SetNow(func() time.Time { return now })
	sink := newCollector()
	filter.Bind(sink)

	for _, ts := range []time.Time{
		base,
		base.Add(time.Second),
		base.Add(-time.Second),
		base.Add(2 * time.Second),
	} {
		if _, err := filter.Apply(mkSample(t, di, 1.0, ts)); err != nil {
			t.Fatalf("apply failed: %v", err)
		}
	}

	if len(sink.got) != 4 {
		t.Fatalf("forwarded %d observations, want 4", len(sink.got))
	}
	wants := []time.Time{base, base.Add(time.Second), now, base.Add(2 * time.Second)}
	for i, obs := range sink.got {
		if !obs.Timestamp().Equal(wants[i]) {
			t.Errorf("timestamp[%d] = %v, want %v", i, obs.Timestamp(), wants[i])
		}
	}
}

func TestUpcaseValue(t *testing.T) {
	base := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	di := &device.DataItem{ID: "e1", Category: device.Event, Type: "EXECUTION"}

	obs, _ := observation.Make(di, map[string]entity.Value{entity.ValueProperty: "active"}, base)

	u := NewUpcaseValue()
	sink := newCollector()
	u.Bind(sink)

	if _, err := u.Apply(obs); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(sink.got) != 1 {
		t.Fatal("expected one forwarded event")
	}
	if v := sink.got[0].Entity().Value(); v != "ACTIVE" {
		t.Errorf("value = %v, want ACTIVE", v)
	}
	// The original observation is untouched.
	if v := obs.Entity().Value(); v != "active" {
		t.Errorf("input mutated to %v", v)
	}
}
