package filters

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// lastObservation tracks one data item's current period window: the end of
// the window, the deferred observation, and the delayed-send timer.
type lastObservation struct {
	next    time.Time
	pending observation.Observation
	timer   *time.Timer
	period  time.Duration
}

func (l *lastObservation) cancelTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

type periodState struct {
	mu   sync.Mutex
	last map[string]*lastObservation
}

// PeriodFilter implements minimum-period suppression: at most one
// observation per data item per period, with the newest arrival in a
// window deferred until the window closes.
type PeriodFilter struct {
	pipeline.Base
	state  *periodState
	strand *pipeline.Strand
	now    func() time.Time
	log    zerolog.Logger
}

func NewPeriodFilter(ctx *pipeline.Context, strand *pipeline.Strand, log zerolog.Logger) *PeriodFilter {
	f := &PeriodFilter{
		state: pipeline.SharedState(ctx, "PeriodFilter", func() *periodState {
			return &periodState{last: make(map[string]*lastObservation)}
		}),
		strand: strand,
		now:    time.Now,
		log:    log.With().Str("component", "period-filter").Logger(),
	}
	guard := func(v any) pipeline.GuardAction {
		obs, ok := v.(observation.Observation)
		if !ok {
			return pipeline.Continue
		}
		switch obs.(type) {
		case observation.SampleObs, observation.EventObs:
			if !obs.IsOrphan() && obs.DataItem().MinimumPeriod != nil {
				return pipeline.Run
			}
		}
		return pipeline.Skip
	}
	f.Base = pipeline.NewBase("PeriodFilter", guard)
	return f
}

// SetNow injects the clock for tests.
func (f *PeriodFilter) SetNow(now func() time.Time) { f.now = now }

func (f *PeriodFilter) Stop() {
	f.state.mu.Lock()
	for _, l := range f.state.last {
		l.cancelTimer()
	}
	f.state.mu.Unlock()
	f.Base.Stop()
}

func (f *PeriodFilter) Apply(v any) (any, error) {
	obs, ok := v.(observation.Observation)
	if !ok {
		return nil, nil
	}

	f.state.mu.Lock()
	if obs.IsOrphan() {
		f.state.mu.Unlock()
		return nil, nil
	}
	di := obs.DataItem()
	if obs.IsUnavailable() {
		if l, ok := f.state.last[di.ID]; ok {
			l.cancelTimer()
			delete(f.state.last, di.ID)
		}
		f.state.mu.Unlock()
		return f.Forward(obs)
	}

	l, ok := f.state.last[di.ID]
	if !ok {
		period := time.Duration(*di.MinimumPeriod * float64(time.Second))
		l = &lastObservation{period: period}
		f.state.last[di.ID] = l
		// First observation anchors the window and passes.
		l.next = obs.Timestamp().Add(period)
		f.state.mu.Unlock()
		return f.Forward(obs)
	}

	filtered, swapped := f.filter(l, di.ID, obs)
	f.state.mu.Unlock()
	if filtered {
		return nil, nil
	}
	if swapped != nil {
		return f.Forward(swapped)
	}
	return f.Forward(obs)
}

// filter decides one arrival against the window [next-period, next).
// Returns (true, nil) to drop, or (false, swapped) to forward either the
// incoming observation or a previously deferred one. Called with the state
// locked.
func (f *PeriodFilter) filter(l *lastObservation, id string, obs observation.Observation) (bool, observation.Observation) {
	ts := obs.Timestamp()
	start := l.next.Add(-l.period)

	switch {
	case ts.Before(start):
		f.log.Warn().Str("data_item", id).Msg("observation occurred in the past, filtering")
		return true, nil

	case ts.Before(l.next):
		observed := l.pending != nil
		l.pending = obs
		// Keep the window end: a newer arrival in the same window just
		// replaces the deferred observation.
		if !observed {
			f.delayDelivery(l, id)
		}
		return true, nil

	case ts.Equal(l.next):
		l.pending = nil
		l.cancelTimer()
		l.next = l.next.Add(l.period)
		return false, nil

	case l.pending != nil && ts.Before(l.next.Add(l.period)):
		// Two emissions: the current one on time, the older one delayed.
		swapped := l.pending
		l.pending = obs
		l.next = l.next.Add(l.period)
		f.delayDelivery(l, id)
		return false, swapped

	default:
		if l.pending != nil {
			l.cancelTimer()
			pending := l.pending
			l.pending = nil
			if _, err := f.Forward(pending); err != nil {
				f.log.Error().Err(err).Msg("forward of pending observation failed")
			}
		}
		// Re-anchor the window to this arrival.
		l.next = ts.Add(l.period)
		return false, nil
	}
}

// delayDelivery arms the timer to fire at the end of the current window on
// the pipeline strand.
func (f *PeriodFilter) delayDelivery(l *lastObservation, id string) {
	l.cancelTimer()
	delta := l.next.Sub(f.now())
	if delta < 0 {
		delta = 0
	}
	l.timer = f.strand.After(delta, func() {
		f.sendPending(id)
	})
}

// sendPending fires under the strand: if the pending observation is still
// there and the window elapsed, it is forwarded, otherwise dropped.
func (f *PeriodFilter) sendPending(id string) {
	var obs observation.Observation

	f.state.mu.Lock()
	if l, ok := f.state.last[id]; ok && l.pending != nil {
		obs = l.pending
		l.pending = nil
		if f.now().Before(l.next) {
			// Early fire; drop the deferred observation.
			obs = nil
		} else {
			l.next = l.next.Add(l.period)
		}
	}
	f.state.mu.Unlock()

	if obs != nil {
		if _, err := f.Forward(obs); err != nil {
			f.log.Error().Err(err).Msg("forward of delayed observation failed")
		}
	}
}
