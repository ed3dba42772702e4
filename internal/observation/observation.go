// Package observation implements the typed observation model: samples,
// events, conditions and their variants, with the per-variant factories
// that validate and convert incoming properties.
package observation

import (
	"strings"
	"time"

	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/device"
)

// Observation is an entity tagged to a data item and an instant. The
// sequence is assigned only at delivery by the circular buffer.
type Observation interface {
	Entity() *entity.Entity
	DataItem() *device.DataItem
	Timestamp() time.Time
	SetTimestamp(time.Time)
	Sequence() uint64
	SetSequence(uint64)
	IsUnavailable() bool
	IsOrphan() bool
	Copy() Observation
}

// SampleObs marks sample-category observations (Sample, ThreeSpaceSample,
// Timeseries).
type SampleObs interface {
	Observation
	isSample()
}

// EventObs marks event-category observations.
type EventObs interface {
	Observation
	isEvent()
}

// Base carries the state common to every observation variant.
type Base struct {
	ent         *entity.Entity
	dataItem    *device.DataItem
	timestamp   time.Time
	sequence    uint64
	unavailable bool
}

func (b *Base) Entity() *entity.Entity      { return b.ent }
func (b *Base) DataItem() *device.DataItem  { return b.dataItem }
func (b *Base) Timestamp() time.Time        { return b.timestamp }
func (b *Base) Sequence() uint64            { return b.sequence }
func (b *Base) IsUnavailable() bool         { return b.unavailable }

func (b *Base) SetTimestamp(ts time.Time) {
	b.timestamp = ts
	b.ent.Set("timestamp", ts)
}

func (b *Base) SetSequence(seq uint64) {
	b.sequence = seq
	b.ent.Set("sequence", int64(seq))
}

// MakeUnavailable marks the observation unavailable and sets the value.
func (b *Base) MakeUnavailable() {
	b.unavailable = true
	b.ent.SetValue("UNAVAILABLE")
}

// IsOrphan reports whether the data item reference is gone or belongs to a
// replaced device model.
func (b *Base) IsOrphan() bool {
	return b.dataItem == nil || b.dataItem.IsOrphan()
}

// Value returns the VALUE slot of the underlying entity.
func (b *Base) Value() entity.Value { return b.ent.Value() }

func (b *Base) SetValue(v entity.Value) { b.ent.SetValue(v) }

// ClearResetTriggered drops the reset marker after checkpointing.
func (b *Base) ClearResetTriggered() { b.ent.Erase("resetTriggered") }

func (b *Base) copyBase() Base {
	n := *b
	n.ent = b.ent.Copy()
	return n
}

// Sample is a scalar double observation.
type Sample struct{ Base }

func (s *Sample) isSample() {}

func (s *Sample) Copy() Observation { return &Sample{s.copyBase()} }

// ThreeSpaceSample is a sample whose value is a vector of exactly three
// doubles.
type ThreeSpaceSample struct{ Sample }

func (s *ThreeSpaceSample) Copy() Observation {
	return &ThreeSpaceSample{Sample{s.copyBase()}}
}

// Timeseries is a sample carrying a vector value with a rate and count.
type Timeseries struct{ Sample }

func (s *Timeseries) Copy() Observation { return &Timeseries{Sample{s.copyBase()}} }

// Event is a scalar or string observation.
type Event struct{ Base }

func (e *Event) isEvent() {}

func (e *Event) Copy() Observation { return &Event{e.copyBase()} }

// DataSetEvent is an event whose value is a data set with an entry count.
type DataSetEvent struct{ Event }

func (e *DataSetEvent) Copy() Observation { return &DataSetEvent{Event{e.copyBase()}} }

// DataSet returns the value as a data set.
func (e *DataSetEvent) DataSet() entity.DataSet {
	ds, _ := e.Value().(entity.DataSet)
	return ds
}

// SetDataSet replaces the value and recomputes the count.
func (e *DataSetEvent) SetDataSet(ds entity.DataSet) {
	e.SetValue(ds)
	e.ent.Set("count", int64(len(ds)))
}

// TableEvent is a data-set event whose entries are rows.
type TableEvent struct{ DataSetEvent }

func (e *TableEvent) Copy() Observation {
	return &TableEvent{DataSetEvent{Event{e.copyBase()}}}
}

// Message is an event with a native code.
type Message struct{ Event }

func (e *Message) Copy() Observation { return &Message{Event{e.copyBase()}} }

// Alarm is a legacy alarm event.
type Alarm struct{ Event }

func (e *Alarm) Copy() Observation { return &Alarm{Event{e.copyBase()}} }

// AssetEvent signals an asset change or removal.
type AssetEvent struct{ Event }

func (e *AssetEvent) Copy() Observation { return &AssetEvent{Event{e.copyBase()}} }

// unavailable matches the UNAVAILABLE keyword case-insensitively.
func unavailable(s string) bool {
	return strings.EqualFold(s, "UNAVAILABLE")
}
