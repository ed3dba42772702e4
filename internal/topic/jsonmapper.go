package topic

import (
	"io"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/asset"
	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// Now supplies the agent clock; injectable for tests.
type Now func() time.Time

// propertyMap translates observation object keys for samples and events.
var propertyMap = map[string]string{
	"duration":       "duration",
	"resetTriggered": "resetTriggered",
	"sampleRate":     "sampleRate",
	"sampleCount":    "sampleCount",
	"value":          entity.ValueProperty,
	"message":        entity.ValueProperty,
}

// conditionMap translates observation object keys for conditions and
// messages.
var conditionMap = map[string]string{
	"type":           "type",
	"nativeCode":     "nativeCode",
	"nativeSeverity": "nativeSeverity",
	"qualifier":      "qualifier",
	"level":          "level",
	"value":          entity.ValueProperty,
	"message":        entity.ValueProperty,
}

// queuedObservation defers a value seen before the batch timestamp.
type queuedObservation struct {
	dataItem *device.DataItem
	props    map[string]entity.Value
}

// parserContext keeps the intermediary state of one document parse.
type parserContext struct {
	contract      pipeline.Contract
	defaultDevice *device.Device
	device        *device.Device
	timestamp     *time.Time
	duration      *float64
	source        string
	validating    bool
	now           Now
	forward       func(any)
	queue         []queuedObservation
	entities      []any
	log           zerolog.Logger
}

func (pc *parserContext) getDevice() *device.Device {
	if pc.device != nil {
		return pc.device
	}
	return pc.defaultDevice
}

// dataItemFor resolves a key of the form [device:]nameOrId against the
// current device.
func (pc *parserContext) dataItemFor(key string) *device.DataItem {
	name := key
	var dev *device.Device
	if c := strings.IndexByte(key, ':'); c >= 0 {
		dev = pc.contract.FindDevice(key[:c])
		name = key[c+1:]
	}
	if dev == nil {
		dev = pc.getDevice()
	}
	if dev == nil {
		pc.log.Warn().Str("key", key).Msg("cannot find device for data item")
		return nil
	}
	return dev.DataItem(name)
}

func (pc *parserContext) setTimestamp(ts time.Time, duration *float64) {
	pc.timestamp = &ts
	pc.duration = duration
}

// send emits an observation, queueing it when no timestamp has been seen
// yet in this batch.
func (pc *parserContext) send(di *device.DataItem, props map[string]entity.Value) {
	if pc.timestamp == nil {
		pc.queue = append(pc.queue, queuedObservation{di, props})
		return
	}
	if pc.duration != nil {
		if _, ok := props["duration"]; !ok {
			props["duration"] = *pc.duration
		}
	}
	obs, errs := observation.Make(di, props, *pc.timestamp)
	if obs == nil {
		for _, e := range errs {
			pc.log.Warn().Err(e).Str("data_item", di.ID).Msg("error while parsing json")
		}
		fallback := map[string]entity.Value{entity.ValueProperty: "UNAVAILABLE"}
		obs, _ = observation.Make(di, fallback, *pc.timestamp)
		if obs == nil {
			return
		}
		if pc.validating {
			obs.Entity().Set("quality", "INVALID")
		}
	}
	if pc.source != "" {
		di.SetDataSource(pc.source)
	}
	pc.entities = append(pc.entities, obs)
	pc.forward(obs)
}

func (pc *parserContext) sendAsset(a *asset.Asset) {
	pc.entities = append(pc.entities, a)
	pc.forward(a)
}

// flush drains queued observations, defaulting the batch timestamp to now.
func (pc *parserContext) flush() {
	if len(pc.queue) == 0 {
		return
	}
	if pc.timestamp == nil {
		ts := pc.now().Truncate(time.Microsecond)
		pc.timestamp = &ts
	}
	queue := pc.queue
	pc.queue = nil
	for _, q := range queue {
		pc.send(q.dataItem, q.props)
	}
}

// clearBatch resets per-batch state between array elements.
func (pc *parserContext) clearBatch() {
	pc.device = nil
	pc.timestamp = nil
	pc.duration = nil
}

// JsonMapper streams a JSON document through an event-driven parser and
// emits observations and assets. The document is an object or an array of
// objects, each object a batch for one timestamp.
type JsonMapper struct {
	pipeline.Base
	context *pipeline.Context
	now     Now
	log     zerolog.Logger
}

func NewJsonMapper(ctx *pipeline.Context, now Now, log zerolog.Logger) *JsonMapper {
	if now == nil {
		now = time.Now
	}
	m := &JsonMapper{
		context: ctx,
		now:     now,
		log:     log.With().Str("component", "json-mapper").Logger(),
	}
	m.Base = pipeline.NewBase("JsonMapper", pipeline.TypeGuard[*JsonMessage](pipeline.Run))
	return m
}

func (m *JsonMapper) Apply(v any) (any, error) {
	msg, ok := v.(*JsonMessage)
	if !ok {
		return nil, &entity.EntityError{Entity: "JsonMessage", Reason: "json mapper expects a json message"}
	}

	pc := &parserContext{
		contract:      m.context.Contract,
		defaultDevice: msg.Device,
		source:        msg.Source,
		validating:    m.context.Contract.IsValidating(),
		now:           m.now,
		log:           m.log,
	}
	pc.forward = func(e any) {
		if _, err := m.Forward(e); err != nil {
			m.log.Error().Err(err).Msg("forward failed")
		}
	}

	iter := jsoniter.ParseString(jsoniter.ConfigCompatibleWithStandardLibrary, msg.Body)
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		m.parseBatch(iter, pc)
	case jsoniter.ArrayValue:
		for iter.ReadArray() {
			if iter.WhatIsNext() == jsoniter.ObjectValue {
				m.parseBatch(iter, pc)
			} else {
				m.log.Warn().Msg("only objects allowed as members of top level array")
				iter.Skip()
			}
		}
	default:
		m.log.Warn().Msg("top level can only be an object or array")
		return nil, nil
	}

	if iter.Error != nil && iter.Error != io.EOF {
		m.log.Error().Err(iter.Error).Str("body", msg.Body).Msg("error parsing json")
		if len(pc.entities) == 0 {
			return nil, nil
		}
	}

	res := entity.New("JsonEntities")
	res.SetValue(pc.entities)
	return res, nil
}

// parseBatch handles one batch object: reserved keys first, then device
// objects and data-item values.
func (m *JsonMapper) parseBatch(iter *jsoniter.Iterator, pc *parserContext) {
	for field := iter.ReadObject(); field != ""; field = iter.ReadObject() {
		switch field {
		case "timestamp":
			if iter.WhatIsNext() != jsoniter.StringValue {
				m.log.Warn().Msg("expecting a timestamp")
				iter.Skip()
				continue
			}
			ts, duration := parseTimestampToken(iter.ReadString(), pc.now)
			pc.setTimestamp(ts, duration)

		case "device":
			if iter.WhatIsNext() == jsoniter.StringValue {
				name := iter.ReadString()
				if dev := pc.contract.FindDevice(name); dev != nil {
					pc.device = dev
				} else {
					m.log.Warn().Str("device", name).Msg("cannot find device")
				}
			} else {
				iter.Skip()
			}

		case "asset", "assets":
			m.parseAssets(iter, pc)

		default:
			if dev := pc.contract.FindDevice(field); dev != nil {
				if iter.WhatIsNext() == jsoniter.ObjectValue {
					saved := pc.device
					savedTS, savedDur := pc.timestamp, pc.duration
					pc.device = dev
					m.parseBatch(iter, pc)
					pc.device = saved
					pc.timestamp, pc.duration = savedTS, savedDur
				} else {
					m.log.Warn().Str("device", field).Msg("expecting a device object")
					iter.Skip()
				}
				continue
			}
			di := pc.dataItemFor(field)
			if di == nil {
				m.log.Warn().Str("key", field).Msg("cannot find data item")
				iter.Skip()
				continue
			}
			props := m.parseProperties(iter, di, pc)
			if len(props) > 0 {
				pc.send(di, props)
			}
		}
	}
	pc.flush()
	pc.clearBatch()
}

// parseProperties reads one observation value: a scalar, a vector, a
// property object, or a data set.
func (m *JsonMapper) parseProperties(iter *jsoniter.Iterator, di *device.DataItem, pc *parserContext) map[string]entity.Value {
	props := make(map[string]entity.Value)

	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		props[entity.ValueProperty] = iter.ReadString()
	case jsoniter.NumberValue:
		props[entity.ValueProperty] = readNumber(iter)
	case jsoniter.BoolValue:
		props[entity.ValueProperty] = iter.ReadBool()
	case jsoniter.NilValue:
		iter.ReadNil()
		props[entity.ValueProperty] = "UNAVAILABLE"
	case jsoniter.ArrayValue:
		if di.IsTimeSeries() || di.IsThreeSpace() {
			var vec entity.Vector
			for iter.ReadArray() {
				vec = append(vec, iter.ReadFloat64())
			}
			props[entity.ValueProperty] = vec
		} else {
			m.log.Warn().Str("data_item", di.ID).Msg("unexpected vector type for data item")
			iter.Skip()
			return nil
		}
	case jsoniter.ObjectValue:
		if !m.parseObjectValue(iter, di, pc, props) {
			return nil
		}
	default:
		iter.Skip()
		return nil
	}

	if di.IsCondition() && len(props) > 0 {
		if _, ok := props["level"]; !ok {
			props["level"] = "normal"
		}
	}
	return props
}

// parseObjectValue reads an object-form value: known per-category keys, or
// data-set entries. Returns false when the value was consumed and
// discarded.
func (m *JsonMapper) parseObjectValue(iter *jsoniter.Iterator, di *device.DataItem, pc *parserContext, props map[string]entity.Value) bool {
	var ds entity.DataSet

	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		var mapped string
		var known bool
		if di.IsCondition() || di.IsMessage() {
			mapped, known = conditionMap[key]
			if !known {
				m.log.Warn().Str("key", key).Str("data_item", di.ID).
					Msg("unexpected key for condition")
				iter.Skip()
				skipObjectRest(iter)
				return false
			}
		} else {
			mapped, known = propertyMap[key]
		}

		if known {
			switch iter.WhatIsNext() {
			case jsoniter.StringValue:
				props[mapped] = iter.ReadString()
			case jsoniter.NumberValue:
				props[mapped] = readNumber(iter)
			case jsoniter.BoolValue:
				props[mapped] = iter.ReadBool()
			case jsoniter.NilValue:
				iter.ReadNil()
				if mapped == entity.ValueProperty {
					props[mapped] = "UNAVAILABLE"
				}
			case jsoniter.ArrayValue:
				if (di.IsTimeSeries() || di.IsThreeSpace()) && mapped == entity.ValueProperty {
					var vec entity.Vector
					for iter.ReadArray() {
						vec = append(vec, iter.ReadFloat64())
					}
					props[mapped] = vec
				} else {
					m.log.Warn().Str("data_item", di.ID).Msg("unexpected vector type for data item")
					iter.Skip()
				}
			default:
				iter.Skip()
			}
			continue
		}

		if di.IsDataSet() {
			if ds == nil {
				ds = make(entity.DataSet)
			}
			if !m.readDataSetEntry(iter, di.IsTable(), key, ds) {
				skipObjectRest(iter)
				return false
			}
			continue
		}

		m.log.Warn().Str("key", key).Str("data_item", di.ID).Msg("unexpected key for data item")
		iter.Skip()
		skipObjectRest(iter)
		return false
	}

	if ds != nil {
		props[entity.ValueProperty] = ds
	}
	return true
}

// readDataSetEntry reads one entry value into the set; a null marks the
// entry removed and an object is a table row.
func (m *JsonMapper) readDataSetEntry(iter *jsoniter.Iterator, table bool, key string, ds entity.DataSet) bool {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		ds[key] = entity.Entry{Removed: true}
	case jsoniter.StringValue:
		ds[key] = entity.Entry{Value: iter.ReadString()}
	case jsoniter.NumberValue:
		ds[key] = entity.Entry{Value: readNumber(iter)}
	case jsoniter.BoolValue:
		if iter.ReadBool() {
			ds[key] = entity.Entry{Value: int64(1)}
		} else {
			ds[key] = entity.Entry{Value: int64(0)}
		}
	case jsoniter.ObjectValue:
		if !table {
			m.log.Warn().Str("key", key).Msg("unexpected nested object in data set")
			iter.Skip()
			return false
		}
		row := make(entity.DataSet)
		for rk := iter.ReadObject(); rk != ""; rk = iter.ReadObject() {
			if !m.readDataSetEntry(iter, false, rk, row) {
				return false
			}
		}
		ds[key] = entity.Entry{Value: row}
	default:
		m.log.Warn().Str("key", key).Msg("unexpected value in data set")
		iter.Skip()
		return false
	}
	return true
}

// parseAssets reads an object of assetId to XML body.
func (m *JsonMapper) parseAssets(iter *jsoniter.Iterator, pc *parserContext) {
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		m.log.Warn().Msg("expecting an asset object")
		iter.Skip()
		return
	}
	for id := iter.ReadObject(); id != ""; id = iter.ReadObject() {
		if iter.WhatIsNext() != jsoniter.StringValue {
			m.log.Warn().Str("asset_id", id).Msg("expecting an asset body")
			iter.Skip()
			continue
		}
		body := iter.ReadString()
		a, errs := asset.Parse(body)
		if a == nil {
			m.log.Warn().Str("asset_id", id).Msg("errors while parsing json asset")
			for _, e := range errs {
				m.log.Warn().Err(e).Msg("asset parse")
			}
			continue
		}
		a.SetAssetID(id)
		if pc.timestamp != nil {
			a.SetTimestamp(*pc.timestamp)
		} else {
			a.SetTimestamp(pc.now().Truncate(time.Microsecond))
		}
		if dev := pc.getDevice(); dev != nil {
			a.SetDeviceUUID(dev.UUID)
		}
		pc.sendAsset(a)
	}
}

// skipObjectRest consumes the remaining members of the current object so
// the parser stays balanced after an error.
func skipObjectRest(iter *jsoniter.Iterator) {
	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		iter.Skip()
	}
}

func readNumber(iter *jsoniter.Iterator) entity.Value {
	num := iter.ReadNumber()
	if i, err := num.Int64(); err == nil {
		return i
	}
	f, err := num.Float64()
	if err != nil {
		return string(num)
	}
	return f
}

// parseTimestampToken parses an ISO instant with an optional @duration
// suffix, defaulting to the agent clock on failure.
func parseTimestampToken(token string, now Now) (time.Time, *float64) {
	var duration *float64
	if pos := strings.LastIndexByte(token, '@'); pos >= 0 {
		if d, err := strconv.ParseFloat(token[pos+1:], 64); err == nil {
			duration = &d
			token = token[:pos]
		}
	}
	if token == "" {
		return now().Truncate(time.Microsecond), duration
	}
	ts, err := entity.ParseTimestamp(token)
	if err != nil {
		return now().Truncate(time.Microsecond), duration
	}
	return ts, duration
}
