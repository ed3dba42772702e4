// Package filters implements the per-data-item suppression stages:
// duplicate, minimum-delta, minimum-period and timestamp-monotonicity
// filtering, plus the upcase transform.
package filters

import (
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// DuplicateFilter drops observations the contract reports as duplicates.
// The contract may return a subsetted copy for data sets.
type DuplicateFilter struct {
	pipeline.Base
	context *pipeline.Context
}

func NewDuplicateFilter(ctx *pipeline.Context) *DuplicateFilter {
	f := &DuplicateFilter{context: ctx}
	f.Base = pipeline.NewBase("DuplicateFilter",
		pipeline.TypeGuard[observation.Observation](pipeline.Run))
	return f
}

func (f *DuplicateFilter) Apply(v any) (any, error) {
	obs, ok := v.(observation.Observation)
	if !ok {
		return nil, nil
	}
	if obs.IsOrphan() {
		return nil, nil
	}
	out := f.context.Contract.CheckDuplicate(obs)
	if out == nil {
		return nil, nil
	}
	return f.Forward(out)
}
