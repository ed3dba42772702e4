// Package sink publishes delivered entities to MQTT topics: one topic per
// data item for observations, per asset id for assets, per uuid for
// devices.
package sink

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/asset"
	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/mqttclient"
	"github.com/mtconnect/mtc-ingest/internal/observation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options set the topic prefixes of the entity sink.
type Options struct {
	ObservationTopic string
	AssetTopic       string
	DeviceTopic      string
}

// MQTTSink publishes observations, assets and devices as retained JSON
// documents.
type MQTTSink struct {
	client *mqttclient.Client
	opts   Options
	log    zerolog.Logger
}

func NewMQTTSink(client *mqttclient.Client, opts Options, log zerolog.Logger) *MQTTSink {
	return &MQTTSink{
		client: client,
		opts:   opts,
		log:    log.With().Str("component", "mqtt-sink").Logger(),
	}
}

func (s *MQTTSink) PublishObservation(obs observation.Observation) {
	di := obs.DataItem()
	if di == nil {
		return
	}
	topic := s.opts.ObservationTopic + di.DeviceUUID + "/" + di.TopicName()
	payload, err := json.Marshal(entityDocument(obs.Entity()))
	if err != nil {
		s.log.Warn().Err(err).Str("data_item", di.ID).Msg("cannot marshal observation")
		return
	}
	if err := s.client.Publish(topic, payload, true); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

func (s *MQTTSink) PublishAsset(a *asset.Asset) {
	topic := s.opts.AssetTopic + a.AssetID()
	payload, err := json.Marshal(entityDocument(a.Entity()))
	if err != nil {
		s.log.Warn().Err(err).Str("asset_id", a.AssetID()).Msg("cannot marshal asset")
		return
	}
	if err := s.client.Publish(topic, payload, true); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

func (s *MQTTSink) PublishDevice(d *device.Device) {
	topic := s.opts.DeviceTopic + d.UUID
	items := make([]map[string]any, 0, len(d.DataItems()))
	for _, di := range d.DataItems() {
		items = append(items, map[string]any{
			"id":       di.ID,
			"name":     di.Name,
			"category": di.Category.String(),
			"type":     di.Type,
		})
	}
	payload, err := json.Marshal(map[string]any{
		"name":      d.Name,
		"uuid":      d.UUID,
		"dataItems": items,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("device", d.UUID).Msg("cannot marshal device")
		return
	}
	if err := s.client.Publish(topic, payload, true); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// entityDocument renders an entity tree into plain JSON-serializable maps.
func entityDocument(e *entity.Entity) map[string]any {
	doc := make(map[string]any, len(e.Properties())+1)
	for k, v := range e.Properties() {
		doc[k] = renderValue(v)
	}
	if e.QName() != "" {
		doc["entity"] = e.QName()
	}
	return doc
}

func renderValue(v entity.Value) any {
	switch t := v.(type) {
	case time.Time:
		return entity.FormatTimestamp(t)
	case entity.Vector:
		return []float64(t)
	case entity.DataSet:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if e.Removed {
				out[k] = nil
			} else {
				out[k] = renderValue(e.Value)
			}
		}
		return out
	case *entity.Entity:
		return entityDocument(t)
	case entity.EntityList:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = entityDocument(c)
		}
		return out
	default:
		return t
	}
}
