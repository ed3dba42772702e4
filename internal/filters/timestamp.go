package filters

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

type timestampState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// CorrectTimestamp replaces a timestamp earlier than the data item's last
// device timestamp with the agent clock. A corrected timestamp does not
// become the reference for later observations. Never drops.
type CorrectTimestamp struct {
	pipeline.Base
	state *timestampState
	now   func() time.Time
	log   zerolog.Logger
}

func NewCorrectTimestamp(ctx *pipeline.Context, log zerolog.Logger) *CorrectTimestamp {
	f := &CorrectTimestamp{
		state: pipeline.SharedState(ctx, "ValidateTimestamp", func() *timestampState {
			return &timestampState{last: make(map[string]time.Time)}
		}),
		now: time.Now,
		log: log.With().Str("component", "timestamp-filter").Logger(),
	}
	f.Base = pipeline.NewBase("ValidateTimestamp",
		pipeline.TypeGuard[observation.Observation](pipeline.Run))
	return f
}

// SetNow injects the clock for tests.
func (f *CorrectTimestamp) SetNow(now func() time.Time) { f.now = now }

func (f *CorrectTimestamp) Apply(v any) (any, error) {
	obs, ok := v.(observation.Observation)
	if !ok {
		return nil, nil
	}
	if obs.IsOrphan() {
		return nil, nil
	}

	id := obs.DataItem().ID
	ts := obs.Timestamp()

	f.state.mu.Lock()
	if last, ok := f.state.last[id]; ok && ts.Before(last) {
		f.log.Debug().Str("data_item", id).Time("timestamp", ts).Time("last", last).
			Msg("observation timestamp before last, correcting")
		obs.SetTimestamp(f.now().Truncate(time.Microsecond))
	} else {
		f.state.last[id] = ts
	}
	f.state.mu.Unlock()

	return f.Forward(obs)
}
