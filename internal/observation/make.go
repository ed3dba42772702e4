package observation

import (
	"regexp"
	"time"

	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
)

// variantFactory pairs the property requirements of an observation variant
// with the wrapper producing the concrete type.
type variantFactory struct {
	factory *entity.Factory
	wrap    func(e *entity.Entity) Observation
}

type patternVariant struct {
	pattern *regexp.Regexp
	variant *variantFactory
}

var (
	literalVariants map[string]*variantFactory
	patternVariants []patternVariant
)

// The registry is initialized once at process start and read-only after.
func init() {
	base := entity.NewFactory(
		entity.Req("dataItemId", true),
		entity.TypedReq("timestamp", entity.KindTimestamp, true),
		entity.Req("sequence", false),
		entity.Req("subType", false),
		entity.Req("name", false),
		entity.Req("compositionId", false),
	)

	event := base.Clone().AddRequirements(
		entity.Req("resetTriggered", false),
		entity.TypedReq("duration", entity.KindDouble, false),
		entity.Req(entity.ValueProperty, false),
	)

	sample := base.Clone().AddRequirements(
		entity.TypedReq("sampleRate", entity.KindDouble, false),
		entity.Req("resetTriggered", false),
		entity.Req("statistic", false),
		entity.TypedReq("duration", entity.KindDouble, false),
		entity.TypedReq(entity.ValueProperty, entity.KindDouble, false),
	)

	threeSpace := sample.Clone().AddRequirements(
		entity.Requirement{Name: entity.ValueProperty, Kind: entity.KindVector, Min: 3, Max: 3},
	)

	timeseries := sample.Clone().AddRequirements(
		entity.TypedReq("sampleCount", entity.KindInteger, false),
		entity.Requirement{Name: entity.ValueProperty, Kind: entity.KindVector, Max: entity.Infinite},
	)

	dataSet := event.Clone().AddRequirements(
		entity.TypedReq("count", entity.KindInteger, false),
		entity.TypedReq(entity.ValueProperty, entity.KindDataSet, false),
	)

	table := event.Clone().AddRequirements(
		entity.TypedReq("count", entity.KindInteger, false),
		entity.TypedReq(entity.ValueProperty, entity.KindTable, false),
	)

	condition := base.Clone().AddRequirements(
		entity.Req("type", true),
		entity.Req("nativeCode", false),
		entity.Req("nativeSeverity", false),
		entity.Req("qualifier", false),
		entity.Req("statistic", false),
		entity.TypedReq("duration", entity.KindDouble, false),
		entity.Req(entity.ValueProperty, false),
	)

	message := event.Clone().AddRequirements(entity.Req("nativeCode", false))
	alarm := event.Clone().AddRequirements(
		entity.Req("code", false),
		entity.Req("nativeCode", false),
		entity.Req("state", false),
		entity.Req("severity", false),
	)
	assetEvent := event.Clone().AddRequirements(entity.Req("assetType", false))

	literalVariants = map[string]*variantFactory{
		"Events:Message": {message, func(e *entity.Entity) Observation {
			return &Message{Event{Base{ent: e}}}
		}},
		"Events:AssetChanged": {assetEvent, func(e *entity.Entity) Observation {
			return &AssetEvent{Event{Base{ent: e}}}
		}},
		"Events:AssetRemoved": {assetEvent, func(e *entity.Entity) Observation {
			return &AssetEvent{Event{Base{ent: e}}}
		}},
		"Events:Alarm": {alarm, func(e *entity.Entity) Observation {
			return &Alarm{Event{Base{ent: e}}}
		}},
	}

	register := func(pattern string, vf *variantFactory) {
		patternVariants = append(patternVariants,
			patternVariant{regexp.MustCompile(pattern), vf})
	}
	register(`.+TimeSeries$`, &variantFactory{timeseries, func(e *entity.Entity) Observation {
		ts := &Timeseries{Sample{Base{ent: e}}}
		if vec, ok := e.Value().(entity.Vector); ok {
			e.Set("sampleCount", int64(len(vec)))
		}
		return ts
	}})
	register(`.+DataSet$`, &variantFactory{dataSet, func(e *entity.Entity) Observation {
		ev := &DataSetEvent{Event{Base{ent: e}}}
		if ds, ok := e.Value().(entity.DataSet); ok {
			e.Set("count", int64(len(ds)))
		}
		return ev
	}})
	register(`.+Table$`, &variantFactory{table, func(e *entity.Entity) Observation {
		ev := &TableEvent{DataSetEvent{Event{Base{ent: e}}}}
		if ds, ok := e.Value().(entity.DataSet); ok {
			e.Set("count", int64(len(ds)))
		}
		return ev
	}})
	register(`^Condition:.+`, &variantFactory{condition, func(e *entity.Entity) Observation {
		c := &Condition{Base: Base{ent: e}}
		if code, ok := entity.MaybeGet[string](e, "nativeCode"); ok {
			c.code = code
		}
		return c
	}})
	register(`^Samples:.+:3D$`, &variantFactory{threeSpace, func(e *entity.Entity) Observation {
		return &ThreeSpaceSample{Sample{Base{ent: e}}}
	}})
	register(`^Samples:.+`, &variantFactory{sample, func(e *entity.Entity) Observation {
		return &Sample{Base{ent: e}}
	}})
	register(`^Events:.+`, &variantFactory{event, func(e *entity.Entity) Observation {
		return &Event{Base{ent: e}}
	}})
}

func variantFor(key string) *variantFactory {
	if vf, ok := literalVariants[key]; ok {
		return vf
	}
	for _, pv := range patternVariants {
		if pv.pattern.MatchString(key) {
			return pv.variant
		}
	}
	return nil
}

// Make builds a typed observation for a data item from raw properties,
// validating and converting them through the variant's factory. Errors
// accumulate; a nil observation means construction failed.
func Make(di *device.DataItem, incoming map[string]entity.Value, ts time.Time) (Observation, []error) {
	props := make(map[string]entity.Value, len(incoming)+6)
	for k, v := range incoming {
		props[k] = v
	}
	props["dataItemId"] = di.ID
	if di.Name != "" {
		props["name"] = di.Name
	}
	if di.CompositionID != "" {
		props["compositionId"] = di.CompositionID
	}
	if di.SubType != "" {
		props["subType"] = di.SubType
	}
	if di.Statistic != "" {
		props["statistic"] = di.Statistic
	}
	if di.IsCondition() {
		props["type"] = di.Type
	}
	props["timestamp"] = ts

	isUnavailable := false
	var level string
	if lv, ok := props["level"].(string); ok {
		level = lv
		if unavailable(lv) {
			isUnavailable = true
		}
		delete(props, "level")
	} else if di.IsCondition() {
		isUnavailable = true
	}

	if v, ok := props[entity.ValueProperty].(string); ok && unavailable(v) {
		isUnavailable = true
		delete(props, entity.ValueProperty)
	} else if _, ok := props[entity.ValueProperty]; !ok && !di.IsCondition() {
		isUnavailable = true
	}

	key := di.Category.String() + ":" + di.ObservationName()
	if di.IsThreeSpace() {
		key += ":3D"
	}
	vf := variantFor(key)
	if vf == nil {
		return nil, []error{&entity.EntityError{Entity: key, Reason: "no observation variant"}}
	}

	ent, errs := vf.factory.Create(key, props)
	if ent == nil {
		return nil, errs
	}

	obs := vf.wrap(ent)
	base := baseOf(obs)
	base.dataItem = di
	base.timestamp = ts

	if di.IsSample() && di.ConversionRequired && !isUnavailable {
		if v := ent.Value(); v != nil {
			ent.SetValue(di.ConvertValue(v))
		}
	}

	if cond, ok := obs.(*Condition); ok {
		lv, _ := ParseLevel(level)
		if isUnavailable {
			cond.MakeUnavailable()
		} else {
			cond.SetLevel(lv)
		}
	} else {
		if isUnavailable {
			base.MakeUnavailable()
		}
		ent.SetQName("", di.ObservationName())
	}
	return obs, errs
}

// baseOf digs the embedded Base out of any variant.
func baseOf(o Observation) *Base {
	switch t := o.(type) {
	case *Sample:
		return &t.Base
	case *ThreeSpaceSample:
		return &t.Base
	case *Timeseries:
		return &t.Base
	case *Event:
		return &t.Base
	case *DataSetEvent:
		return &t.Base
	case *TableEvent:
		return &t.Base
	case *Message:
		return &t.Base
	case *Alarm:
		return &t.Base
	case *AssetEvent:
		return &t.Base
	case *Condition:
		return &t.Base
	}
	return nil
}
