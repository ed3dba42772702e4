package filters

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func periodFixture(t *testing.T, period float64) (*PeriodFilter, *collector, *pipeline.Strand) {
	t.Helper()
	ctx := pipeline.NewContext(nil)
	strand := pipeline.NewStrand()
	filter := NewPeriodFilter(ctx, strand, testLogger())
	sink := newCollector()
	filter.Bind(sink)
	return filter, sink, strand
}

func TestPeriodFilterWindows(t *testing.T) {
	base := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	di := sampleItem("p1", nil, f64(1.0))

	filter, sink, _ := periodFixture(t, 1.0)
	filter.SetNow(func() time.Time { return base })

	feed := func(value float64, ts time.Time) {
		if _, err := filter.Apply(mkSample(t, di, value, ts)); err != nil {
			t.Fatalf("apply failed: %v", err)
		}
	}

	// First observation anchors the window and passes.
	feed(1, base)
	if len(sink.got) != 1 {
		t.Fatalf("first observation should pass, got %d", len(sink.got))
	}

	// Two arrivals inside the window are both deferred; the second
	// replaces the first.
	feed(2, base.Add(200*time.Millisecond))
	feed(3, base.Add(400*time.Millisecond))
	if len(sink.got) != 1 {
		t.Fatalf("in-window arrivals must be deferred, got %d", len(sink.got))
	}

	// Exactly on the boundary: forwarded, pending discarded.
	feed(4, base.Add(time.Second))
	if len(sink.got) != 2 {
		t.Fatalf("boundary arrival should forward, got %d", len(sink.got))
	}
	if v := sink.got[1].Entity().Value(); v != 4.0 {
		t.Errorf("boundary value = %v, want 4", v)
	}

	// Late arrival two full windows out re-anchors: the window end moves
	// to ts + period.
	late := base.Add(5 * time.Second)
	feed(5, late)
	if len(sink.got) != 3 {
		t.Fatalf("late arrival should forward, got %d", len(sink.got))
	}
	feed(6, late.Add(time.Second))
	if len(sink.got) != 4 {
		t.Fatalf("arrival at the re-anchored boundary should forward, got %d", len(sink.got))
	}
}

func TestPeriodFilterPastObservationDropped(t *testing.T) {
	base := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	di := sampleItem("p2", nil, f64(1.0))

	filter, sink, _ := periodFixture(t, 1.0)
	filter.SetNow(func() time.Time { return base })

	filter.Apply(mkSample(t, di, 1, base))
	// More than one period in the past relative to the window start.
	filter.Apply(mkSample(t, di, 2, base.Add(-2*time.Second)))

	if len(sink.got) != 1 {
		t.Fatalf("past observation must be dropped, got %d forwards", len(sink.got))
	}
}

func TestPeriodFilterSwapsPendingAfterWindow(t *testing.T) {
	base := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	di := sampleItem("p3", nil, f64(1.0))

	filter, sink, _ := periodFixture(t, 1.0)
	filter.SetNow(func() time.Time { return base })

	filter.Apply(mkSample(t, di, 1, base))                          // passes, next = base+1s
	filter.Apply(mkSample(t, di, 2, base.Add(500*time.Millisecond))) // pending
	// Arrival past the window but within the next period with a pending:
	// the pending (2) is forwarded now, the new arrival (3) is deferred.
	filter.Apply(mkSample(t, di, 3, base.Add(1500*time.Millisecond)))

	if len(sink.got) != 2 {
		t.Fatalf("expected the pending observation to be forwarded, got %d", len(sink.got))
	}
	if v := sink.got[1].Entity().Value(); v != 2.0 {
		t.Errorf("swapped value = %v, want 2", v)
	}
}

func TestPeriodFilterUnavailableClearsState(t *testing.T) {
	base := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	di := sampleItem("p4", nil, f64(1.0))

	filter, sink, _ := periodFixture(t, 1.0)
	filter.SetNow(func() time.Time { return base })

	filter.Apply(mkSample(t, di, 1, base))
	filter.Apply(mkSample(t, di, 2, base.Add(300*time.Millisecond))) // pending
	filter.Apply(mkUnavailable(t, di, base.Add(400*time.Millisecond)))
	// State cleared: this anchors a fresh window and passes.
	filter.Apply(mkSample(t, di, 3, base.Add(500*time.Millisecond)))

	// Forwards: first sample, unavailable, fresh sample.
	if len(sink.got) != 3 {
		t.Fatalf("forwarded %d observations, want 3", len(sink.got))
	}
}

// A deferred observation is delivered by the timer when its window closes.
func TestPeriodFilterTimerDelivery(t *testing.T) {
	di := sampleItem("p5", nil, f64(0.05)) // 50ms period

	filter, sink, strand := periodFixture(t, 0.05)
	strand.Start()
	defer strand.Stop()

	start := time.Now()
	filter.Apply(mkSample(t, di, 1, start))
	filter.Apply(mkSample(t, di, 2, start.Add(20*time.Millisecond))) // deferred

	time.Sleep(150 * time.Millisecond)
	strand.Dispatch(func() {}) // drain

	if len(sink.got) != 2 {
		t.Fatalf("timer should deliver the pending observation, got %d", len(sink.got))
	}
	if v := sink.got[1].Entity().Value(); v != 2.0 {
		t.Errorf("delayed value = %v, want 2", v)
	}
}
