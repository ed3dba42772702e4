package agent

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/asset"
	"github.com/mtconnect/mtc-ingest/internal/buffer"
	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/metrics"
	"github.com/mtconnect/mtc-ingest/internal/observation"
)

// EntitySink receives delivered entities for external publication.
type EntitySink interface {
	PublishObservation(obs observation.Observation)
	PublishAsset(a *asset.Asset)
	PublishDevice(d *device.Device)
}

// Agent implements the pipeline contract: the device dictionary, the
// circular observation buffer, the asset store, and the entity sinks.
type Agent struct {
	mu       sync.RWMutex
	registry *Registry

	buffer *buffer.CircularBuffer
	assets *asset.Store
	sinks  []EntitySink

	schemaVersion int32
	validating    bool

	onSourceFailed func(identity string)

	log zerolog.Logger
}

type AgentOptions struct {
	Registry      *Registry
	BufferSize    int
	MaxAssets     int
	SchemaVersion int32
	Validating    bool
	Log           zerolog.Logger
}

func NewAgent(opts AgentOptions) *Agent {
	return &Agent{
		registry:      opts.Registry,
		buffer:        buffer.NewCircularBuffer(opts.BufferSize),
		assets:        asset.NewStore(opts.MaxAssets),
		schemaVersion: opts.SchemaVersion,
		validating:    opts.Validating,
		log:           opts.Log.With().Str("component", "agent").Logger(),
	}
}

// AddSink registers an entity sink; call before sources start.
func (a *Agent) AddSink(s EntitySink) { a.sinks = append(a.sinks, s) }

// OnSourceFailed registers the fatal-source callback.
func (a *Agent) OnSourceFailed(fn func(identity string)) { a.onSourceFailed = fn }

// Buffer exposes the observation buffer for the metrics collector.
func (a *Agent) Buffer() *buffer.CircularBuffer { return a.buffer }

// Assets exposes the asset store for the metrics collector.
func (a *Agent) Assets() *asset.Store { return a.assets }

// ReplaceRegistry swaps in a freshly loaded device model, orphaning the
// old one so in-flight observations are dropped at the next transform.
func (a *Agent) ReplaceRegistry(r *Registry) {
	a.mu.Lock()
	old := a.registry
	a.registry = r
	a.mu.Unlock()
	if old != nil {
		old.MarkOrphaned()
	}
}

func (a *Agent) currentRegistry() *Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

// ---- Contract: dictionary ----

func (a *Agent) FindDevice(nameOrUUID string) *device.Device {
	if nameOrUUID == "" {
		return nil
	}
	return a.currentRegistry().Device(nameOrUUID)
}

func (a *Agent) FindDataItem(deviceName, nameOrID string) *device.DataItem {
	r := a.currentRegistry()
	if deviceName != "" {
		if dev := r.Device(deviceName); dev != nil {
			return dev.DataItem(nameOrID)
		}
		return nil
	}
	for _, dev := range r.Devices() {
		if di := dev.DataItem(nameOrID); di != nil {
			return di
		}
	}
	return nil
}

func (a *Agent) EachDataItem(fn func(di *device.DataItem)) {
	for _, dev := range a.currentRegistry().Devices() {
		for _, di := range dev.DataItems() {
			fn(di)
		}
	}
}

func (a *Agent) SchemaVersion() int32 { return a.schemaVersion }

func (a *Agent) IsValidating() bool { return a.validating }

// ---- Contract: delivery ----

func (a *Agent) DeliverObservation(obs observation.Observation) {
	if obs.IsOrphan() {
		metrics.ObservationsDroppedTotal.WithLabelValues("orphan").Inc()
		return
	}
	a.buffer.Add(obs)
	metrics.ObservationsDeliveredTotal.WithLabelValues(obs.DataItem().DeviceUUID).Inc()
	for _, s := range a.sinks {
		s.PublishObservation(obs)
	}
}

func (a *Agent) DeliverAsset(ast *asset.Asset) {
	if evicted := a.assets.Add(ast); evicted != nil {
		a.log.Debug().Str("asset_id", evicted.AssetID()).Msg("asset evicted")
	}
	metrics.AssetsDeliveredTotal.Inc()
	for _, s := range a.sinks {
		s.PublishAsset(ast)
	}
	a.notifyAssetEvent(ast, "ASSET_CHANGED")
}

// notifyAssetEvent emits the device's asset-changed/removed event when the
// device model declares one.
func (a *Agent) notifyAssetEvent(ast *asset.Asset, eventType string) {
	dev := a.FindDevice(ast.DeviceUUID())
	if dev == nil {
		return
	}
	for _, di := range dev.DataItems() {
		if di.Type != eventType {
			continue
		}
		props := map[string]entity.Value{
			entity.ValueProperty: ast.AssetID(),
			"assetType":          ast.Type(),
		}
		if obs, _ := observation.Make(di, props, ast.Timestamp()); obs != nil {
			a.DeliverObservation(obs)
		}
		return
	}
}

func (a *Agent) DeliverDevices(devices entity.EntityList) {
	a.log.Info().Int("count", len(devices)).Msg("received upstream device models")
}

func (a *Agent) DeliverDevice(d *device.Device) {
	a.log.Info().Str("device", d.UUID).Msg("received upstream device model")
	for _, s := range a.sinks {
		s.PublishDevice(d)
	}
}

func (a *Agent) DeliverAssetCommand(e *entity.Entity) {
	verb, _ := entity.MaybeGet[string](e, entity.ValueProperty)
	ts, ok := entity.MaybeGet[time.Time](e, "timestamp")
	if !ok {
		ts = time.Now().UTC()
	}

	switch verb {
	case "RemoveAsset":
		id, _ := entity.MaybeGet[string](e, "assetId")
		if removed := a.assets.Remove(id, ts); removed != nil {
			a.notifyAssetEvent(removed, "ASSET_REMOVED")
			for _, s := range a.sinks {
				s.PublishAsset(removed)
			}
		} else {
			a.log.Warn().Str("asset_id", id).Msg("remove for unknown asset")
		}
	case "RemoveAll":
		deviceName, _ := entity.MaybeGet[string](e, "device")
		assetType, _ := entity.MaybeGet[string](e, "type")
		deviceUUID := ""
		if dev := a.FindDevice(deviceName); dev != nil {
			deviceUUID = dev.UUID
		}
		removed := a.assets.RemoveAll(deviceUUID, assetType, ts)
		a.log.Info().Int("count", len(removed)).Msg("removed assets")
		for _, ast := range removed {
			a.notifyAssetEvent(ast, "ASSET_REMOVED")
			for _, s := range a.sinks {
				s.PublishAsset(ast)
			}
		}
	default:
		a.log.Warn().Str("command", verb).Msg("unknown asset command")
	}
}

func (a *Agent) DeliverCommand(e *entity.Entity) {
	verb, _ := entity.MaybeGet[string](e, entity.ValueProperty)
	deviceName, _ := entity.MaybeGet[string](e, "device")
	a.log.Info().Str("command", verb).Str("device", deviceName).Msg("adapter command")
}

// DeliverConnectStatus turns adapter connect state into availability
// observations when autoAvailable is set.
func (a *Agent) DeliverConnectStatus(e *entity.Entity, devices []string, autoAvailable bool) {
	status, _ := entity.MaybeGet[string](e, entity.ValueProperty)
	a.log.Info().Str("status", status).Strs("devices", devices).Msg("connection status")

	if !autoAvailable {
		return
	}
	value := "UNAVAILABLE"
	if status == "connected" {
		value = "AVAILABLE"
	}
	now := time.Now().UTC()
	for _, name := range devices {
		dev := a.FindDevice(name)
		if dev == nil {
			continue
		}
		for _, di := range dev.DataItems() {
			if di.Type != "AVAILABILITY" {
				continue
			}
			props := map[string]entity.Value{entity.ValueProperty: value}
			if obs, _ := observation.Make(di, props, now); obs != nil {
				a.DeliverObservation(obs)
			}
			break
		}
	}
}

func (a *Agent) SourceFailed(identity string) {
	a.log.Error().Str("source", identity).Msg("source failed")
	if a.onSourceFailed != nil {
		a.onSourceFailed(identity)
	}
}

// CheckDuplicate consults the latest checkpoint of the circular buffer.
func (a *Agent) CheckDuplicate(obs observation.Observation) observation.Observation {
	return a.buffer.Latest().CheckDuplicate(obs)
}
