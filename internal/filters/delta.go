package filters

import (
	"sync"

	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// deltaState remembers the last forwarded sample value per data item.
type deltaState struct {
	mu   sync.Mutex
	last map[string]float64
}

// DeltaFilter drops samples whose value moved less than the data item's
// minimum delta since the last forwarded value. A value exactly at
// last +/- delta passes.
type DeltaFilter struct {
	pipeline.Base
	state *deltaState
}

func NewDeltaFilter(ctx *pipeline.Context) *DeltaFilter {
	f := &DeltaFilter{
		state: pipeline.SharedState(ctx, "DeltaFilter", func() *deltaState {
			return &deltaState{last: make(map[string]float64)}
		}),
	}
	hasDelta := func(s *observation.Sample) bool {
		return !s.IsOrphan() && s.DataItem().MinimumDelta != nil
	}
	f.Base = pipeline.NewBase("DeltaFilter", pipeline.Or(
		pipeline.LambdaGuard(hasDelta, pipeline.Run),
		pipeline.TypeGuard[observation.Observation](pipeline.Skip)))
	return f
}

func (f *DeltaFilter) Apply(v any) (any, error) {
	obs, ok := v.(*observation.Sample)
	if !ok {
		return nil, nil
	}
	if obs.IsOrphan() {
		return nil, nil
	}

	f.state.mu.Lock()
	di := obs.DataItem()
	if obs.IsUnavailable() {
		delete(f.state.last, di.ID)
		f.state.mu.Unlock()
		return f.Forward(v)
	}

	value, _ := obs.Value().(float64)
	fv := *di.MinimumDelta
	if last, ok := f.state.last[di.ID]; ok {
		if value > last-fv && value < last+fv {
			f.state.mu.Unlock()
			return nil, nil
		}
	}
	f.state.last[di.ID] = value
	f.state.mu.Unlock()
	return f.Forward(v)
}
