// Package buffer holds the delivered-observation state of the agent: the
// circular observation buffer with monotonic sequencing, and the
// checkpoints that track the latest value per data item, including the
// condition-chain and data-set merge semantics.
package buffer

import (
	"sync"

	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
)

// Checkpoint is the latest observation per data item at a point in the
// stream. Conditions keep their active chain; data sets accumulate merged
// entries.
type Checkpoint struct {
	mu     sync.Mutex
	events map[string]observation.Observation
}

func NewCheckpoint() *Checkpoint {
	return &Checkpoint{events: make(map[string]observation.Observation)}
}

// Add folds an observation into the checkpoint.
func (c *Checkpoint) Add(obs observation.Observation) {
	di := obs.DataItem()
	if di == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.events[di.ID]
	if !ok {
		c.events[di.ID] = obs
		return
	}

	if cond, isCond := obs.(*observation.Condition); isCond {
		if head, ok := old.(*observation.Condition); ok {
			if merged, assigned := mergeCondition(head, cond); assigned {
				c.events[di.ID] = merged
				return
			}
		}
		c.events[di.ID] = cond
		return
	}

	if set, isSet := obs.(dataSetObs); isSet && di.IsDataSet() {
		if merged, assigned := mergeDataSet(old, set); assigned {
			c.events[di.ID] = merged
			return
		}
	}

	c.events[di.ID] = obs
}

// mergeCondition applies the chain invariants: active conditions chain by
// insertion order, duplicate codes replace, a coded normal removes exactly
// the matching node, and a bare normal or unavailable collapses the chain.
func mergeCondition(head, event *observation.Condition) (observation.Observation, bool) {
	active := func(l observation.Level) bool {
		return l == observation.Warning || l == observation.Fault
	}

	if active(head.Level()) && active(event.Level()) {
		chain := head
		if e := head.Find(event.Code()); e != nil {
			chain = head.DeepCopyAndRemove(e)
		}
		if chain != nil {
			event.AppendTo(chain)
		}
		return event, true
	}

	if event.Level() == observation.Normal && event.Code() != "" {
		if e := head.Find(event.Code()); e != nil {
			if rest := head.DeepCopyAndRemove(e); rest != nil {
				return rest, true
			}
			// Chain became empty; emit a bare normal.
			n := event.Copy().(*observation.Condition)
			n.MakeNormal()
			return n, true
		}
		// A coded normal with no matching active condition keeps the head.
		return head, true
	}

	return nil, false
}

type dataSetObs interface {
	observation.Observation
	DataSet() entity.DataSet
}

// mergeDataSet folds an update set into the cached one; reset triggers and
// unavailability replace instead.
func mergeDataSet(old observation.Observation, event dataSetObs) (observation.Observation, bool) {
	if event.IsUnavailable() || old.IsUnavailable() || event.Entity().Has("resetTriggered") {
		return nil, false
	}
	oldSet, ok := old.Entity().Value().(entity.DataSet)
	if !ok {
		return nil, false
	}
	merged := oldSet.Merge(event.DataSet())
	out := event.Copy()
	out.Entity().SetValue(merged)
	out.Entity().Set("count", int64(len(merged)))
	return out, true
}

// Latest returns the checkpointed observation for a data item.
func (c *Checkpoint) Latest(id string) observation.Observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[id]
}

// Observations lists the checkpoint contents, expanding condition chains.
func (c *Checkpoint) Observations() []observation.Observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var list []observation.Observation
	for _, obs := range c.events {
		if cond, ok := obs.(*observation.Condition); ok {
			for _, n := range cond.Chain() {
				list = append(list, n)
			}
		} else {
			list = append(list, obs)
		}
	}
	return list
}

// CheckDuplicate reports whether an observation adds information over the
// checkpoint. Conditions always pass (the chain handles them); data sets
// are reduced to their changed entries, nil when nothing changed; other
// observations are nil when the value is unchanged.
func (c *Checkpoint) CheckDuplicate(obs observation.Observation) observation.Observation {
	di := obs.DataItem()
	if di == nil {
		return obs
	}
	if di.IsCondition() || di.Discrete {
		return obs
	}

	c.mu.Lock()
	old, ok := c.events[di.ID]
	c.mu.Unlock()
	if !ok {
		return obs
	}

	if di.IsDataSet() && !obs.IsUnavailable() && !old.IsUnavailable() &&
		!obs.Entity().Has("resetTriggered") {
		return dataSetDifference(old, obs)
	}

	if obs.IsUnavailable() != old.IsUnavailable() {
		return obs
	}
	if valueEqual(obs.Entity().Value(), old.Entity().Value()) {
		return nil
	}
	return obs
}

// dataSetDifference subsets the incoming set to the entries that differ
// from the cached ones. An empty difference is a full duplicate.
func dataSetDifference(old, obs observation.Observation) observation.Observation {
	oldSet, okOld := old.Entity().Value().(entity.DataSet)
	newSet, okNew := obs.Entity().Value().(entity.DataSet)
	if !okOld || !okNew || len(newSet) == 0 {
		return obs
	}

	diff := make(entity.DataSet)
	for k, e := range newSet {
		oe, present := oldSet[k]
		if e.Removed {
			if present {
				diff[k] = e
			}
			continue
		}
		if !present || !oe.Same(e) {
			diff[k] = e
		}
	}
	if len(diff) == 0 {
		return nil
	}
	if len(diff) == len(newSet) {
		return obs
	}
	out := obs.Copy()
	out.Entity().SetValue(diff)
	out.Entity().Set("count", int64(len(diff)))
	return out
}

func valueEqual(a, b entity.Value) bool {
	switch av := a.(type) {
	case entity.DataSet:
		bv, ok := b.(entity.DataSet)
		return ok && av.Equal(bv)
	case entity.Vector:
		bv, ok := b.(entity.Vector)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
