// Package topic maps pub/sub messages to data items: the topic router,
// the streaming JSON mapper, and the plain-data mapper.
package topic

import (
	"strings"

	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// PipelineMessage is a message from a pub/sub transport with its resolved
// device and data item; either may be nil.
type PipelineMessage struct {
	Body     string
	Topic    string
	Source   string
	Device   *device.Device
	DataItem *device.DataItem
}

// JsonMessage is an unparsed JSON payload.
type JsonMessage struct{ PipelineMessage }

func (m *JsonMessage) Name() string { return "JsonMessage" }

// DataMessage is an unparsed plain payload.
type DataMessage struct{ PipelineMessage }

func (m *DataMessage) Name() string { return "DataMessage" }

// NewMessage wraps an inbound broker message for the mapper.
func NewMessage(topic, body, source string) *entity.Entity {
	e := entity.New("Message")
	e.SetValue(body)
	e.Set("topic", topic)
	if source != "" {
		e.Set("source", source)
	}
	return e
}

type resolved struct {
	device   *device.Device
	dataItem *device.DataItem
}

// TopicMapper resolves a topic to a (device, data item) pair, caching every
// resolution including misses so a topic is only walked once.
type TopicMapper struct {
	pipeline.Base
	context       *pipeline.Context
	defaultDevice string
	cache         map[string]resolved
}

func NewTopicMapper(ctx *pipeline.Context, defaultDevice string) *TopicMapper {
	t := &TopicMapper{
		context:       ctx,
		defaultDevice: defaultDevice,
		cache:         make(map[string]resolved),
	}
	t.Base = pipeline.NewBase("TopicMapper", pipeline.EntityNameGuard("Message", pipeline.Run))
	return t
}

// resolve finds a data item for a topic:
//  1. path[0] as device, path[1] as item
//  2. default device with the full topic
//  3. default device with the last path segment
//  4. walk the path for a device, then within it for an item
func (t *TopicMapper) resolve(topic string) resolved {
	contract := t.context.Contract
	path := strings.Split(topic, "/")

	var res resolved
	if len(path) > 1 {
		res.dataItem = contract.FindDataItem(path[0], path[1])
	}
	if res.dataItem == nil {
		res.dataItem = contract.FindDataItem(t.defaultDevice, topic)
	}
	if res.dataItem == nil && len(path) > 1 {
		res.dataItem = contract.FindDataItem(t.defaultDevice, path[len(path)-1])
	}
	if res.dataItem == nil {
		for _, seg := range path {
			if res.device = contract.FindDevice(seg); res.device != nil {
				break
			}
		}
		if res.device != nil {
			for _, seg := range path {
				if res.dataItem = res.device.DataItem(seg); res.dataItem != nil {
					break
				}
			}
		}
	}

	// Cache misses too, so unresolvable topics are not re-walked.
	t.cache[topic] = res
	return res
}

func (t *TopicMapper) Apply(v any) (any, error) {
	msg, ok := v.(*entity.Entity)
	if !ok {
		return nil, &entity.EntityError{Entity: "Message", Reason: "topic mapper expects a message entity"}
	}
	body, _ := entity.MaybeGet[string](msg, entity.ValueProperty)
	topic, _ := entity.MaybeGet[string](msg, "topic")
	source, _ := entity.MaybeGet[string](msg, "source")

	pm := PipelineMessage{Body: body, Topic: topic, Source: source}

	trimmed := strings.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if t.defaultDevice != "" {
			pm.Device = t.context.Contract.FindDevice(t.defaultDevice)
		}
		return t.Forward(&JsonMessage{pm})
	}

	res, ok := t.cache[topic]
	if !ok {
		res = t.resolve(topic)
	}
	pm.Device = res.device
	pm.DataItem = res.dataItem
	return t.Forward(&DataMessage{pm})
}
