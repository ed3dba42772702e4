// Package device holds the read-only data-item dictionary the pipeline
// consults: device and data-item descriptors.
package device

import (
	"strings"
	"sync/atomic"

	"github.com/mtconnect/mtc-ingest/internal/entity"
)

// Category classifies a data item.
type Category int

const (
	Sample Category = iota
	Event
	Condition
)

func (c Category) String() string {
	switch c {
	case Sample:
		return "Samples"
	case Event:
		return "Events"
	case Condition:
		return "Condition"
	}
	return ""
}

// Representation describes the shape of a data item's values.
type Representation int

const (
	ValueRepresentation Representation = iota
	TimeSeries
	DataSetRepresentation
	Table
	ThreeSpace
)

// Conversion is a linear unit conversion applied to samples when the data
// item requires it.
type Conversion struct {
	Factor float64
	Offset float64
}

// DataItem describes a single published variable on a device. Descriptors
// are immutable for the life of a device-model version; the orphaned flag
// is flipped when the model is replaced.
type DataItem struct {
	ID             string
	Name           string
	Type           string
	SubType        string
	Units          string
	Statistic      string
	CompositionID  string
	Category       Category
	Representation Representation

	MinimumDelta  *float64
	MinimumPeriod *float64 // seconds, fractional
	ResetTrigger  string
	ConstantValue *string
	InitialValue  string
	Discrete      bool

	ConversionRequired bool
	Conversion         *Conversion

	DeviceUUID string

	orphaned atomic.Bool
	source   atomic.Pointer[string]
}

func (d *DataItem) IsSample() bool    { return d.Category == Sample }
func (d *DataItem) IsEvent() bool     { return d.Category == Event }
func (d *DataItem) IsCondition() bool { return d.Category == Condition }

func (d *DataItem) IsTimeSeries() bool { return d.Representation == TimeSeries }
func (d *DataItem) IsThreeSpace() bool { return d.Representation == ThreeSpace }
func (d *DataItem) IsDataSet() bool {
	return d.Representation == DataSetRepresentation || d.Representation == Table
}
func (d *DataItem) IsTable() bool { return d.Representation == Table }

func (d *DataItem) IsMessage() bool { return d.Type == "MESSAGE" }
func (d *DataItem) IsAlarm() bool   { return d.Type == "ALARM" }
func (d *DataItem) IsAssetChanged() bool {
	return d.Type == "ASSET_CHANGED"
}
func (d *DataItem) IsAssetRemoved() bool {
	return d.Type == "ASSET_REMOVED"
}

// HasResetTrigger reports whether values may carry a :TRIGGER suffix.
func (d *DataItem) HasResetTrigger() bool { return d.ResetTrigger != "" }

// MarkOrphaned flags the descriptor as belonging to a replaced device model.
// Observations still referencing it are dropped at the next transform.
func (d *DataItem) MarkOrphaned() { d.orphaned.Store(true) }

func (d *DataItem) IsOrphan() bool { return d.orphaned.Load() }

// SetDataSource records the source last observed publishing this item.
func (d *DataItem) SetDataSource(source string) {
	d.source.Store(&source)
}

func (d *DataItem) DataSource() string {
	if s := d.source.Load(); s != nil {
		return *s
	}
	return ""
}

// ConvertValue returns a sample value with the unit conversion applied; the
// argument is not modified.
func (d *DataItem) ConvertValue(v entity.Value) entity.Value {
	if d.Conversion == nil {
		return v
	}
	switch t := v.(type) {
	case float64:
		return t*d.Conversion.Factor + d.Conversion.Offset
	case int64:
		return float64(t)*d.Conversion.Factor + d.Conversion.Offset
	case entity.Vector:
		out := make(entity.Vector, len(t))
		for i, f := range t {
			out[i] = f*d.Conversion.Factor + d.Conversion.Offset
		}
		return out
	}
	return v
}

// ObservationName is the element name observations of this item carry,
// derived from the type in pascal case (EXECUTION -> Execution,
// PATH_POSITION -> PathPosition).
func (d *DataItem) ObservationName() string {
	var b strings.Builder
	for _, part := range strings.Split(d.Type, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(strings.ToLower(part[1:]))
	}
	if d.IsTimeSeries() {
		b.WriteString("TimeSeries")
	} else if d.Representation == DataSetRepresentation {
		b.WriteString("DataSet")
	} else if d.Representation == Table {
		b.WriteString("Table")
	}
	return b.String()
}

// TopicName is the path segment used when publishing observations.
func (d *DataItem) TopicName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
