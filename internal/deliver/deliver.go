// Package deliver sinks pipeline entities to the contract: observations,
// assets, devices, commands and connection status, with per-transform
// throughput metering.
package deliver

import (
	"sync/atomic"

	"github.com/mtconnect/mtc-ingest/internal/asset"
	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// MeteredTransform counts deliveries and, when a metrics data item is
// configured, reports throughput through a ComputeMetrics timer.
type MeteredTransform struct {
	pipeline.Base
	contract pipeline.Contract
	count    *atomic.Int64
	dataItem string
	metrics  *ComputeMetrics
}

func newMeteredTransform(name string, ctx *pipeline.Context, metricsDataItem string) MeteredTransform {
	return MeteredTransform{
		Base:     pipeline.NewBase(name, nil),
		contract: ctx.Contract,
		count:    &atomic.Int64{},
		dataItem: metricsDataItem,
	}
}

func (m *MeteredTransform) Start(st *pipeline.Strand) {
	if m.dataItem != "" {
		m.metrics = NewComputeMetrics(st, m.contract, m.dataItem, m.count)
		m.metrics.Start()
	}
	m.Base.Start(st)
}

func (m *MeteredTransform) Stop() {
	if m.metrics != nil {
		m.metrics.Stop()
	}
	m.Base.Stop()
}

// Count returns the number of entities delivered so far.
func (m *MeteredTransform) Count() int64 { return m.count.Load() }

// DeliverObservation hands observations to the contract.
type DeliverObservation struct {
	MeteredTransform
}

func NewDeliverObservation(ctx *pipeline.Context, metricsDataItem string) *DeliverObservation {
	d := &DeliverObservation{MeteredTransform: newMeteredTransform("DeliverObservation", ctx, metricsDataItem)}
	d.SetGuard(pipeline.TypeGuard[observation.Observation](pipeline.Run))
	return d
}

func (d *DeliverObservation) Apply(v any) (any, error) {
	obs, ok := v.(observation.Observation)
	if !ok {
		return nil, &entity.EntityError{Entity: "Observation",
			Reason: "unexpected entity type in DeliverObservation"}
	}
	d.contract.DeliverObservation(obs)
	d.count.Add(1)
	return v, nil
}

// DeliverAsset hands assets to the contract.
type DeliverAsset struct {
	MeteredTransform
}

func NewDeliverAsset(ctx *pipeline.Context, metricsDataItem string) *DeliverAsset {
	d := &DeliverAsset{MeteredTransform: newMeteredTransform("DeliverAsset", ctx, metricsDataItem)}
	d.SetGuard(pipeline.TypeGuard[*asset.Asset](pipeline.Run))
	return d
}

func (d *DeliverAsset) Apply(v any) (any, error) {
	a, ok := v.(*asset.Asset)
	if !ok {
		return nil, &entity.EntityError{Entity: "Asset",
			Reason: "unexpected entity type in DeliverAsset"}
	}
	d.contract.DeliverAsset(a)
	d.count.Add(1)
	return v, nil
}

// DeliverDevices hands a device list to the contract.
type DeliverDevices struct {
	pipeline.Base
	contract pipeline.Contract
}

func NewDeliverDevices(ctx *pipeline.Context) *DeliverDevices {
	d := &DeliverDevices{
		Base:     pipeline.NewBase("DeliverDevices", pipeline.EntityNameGuard("Devices", pipeline.Run)),
		contract: ctx.Contract,
	}
	return d
}

func (d *DeliverDevices) Apply(v any) (any, error) {
	e, ok := v.(*entity.Entity)
	if !ok {
		return nil, &entity.EntityError{Entity: "Devices", Reason: "unexpected entity type in DeliverDevices"}
	}
	if list, ok := e.Value().(entity.EntityList); ok {
		d.contract.DeliverDevices(list)
	}
	return v, nil
}

// DeliverDevice hands a single device to the contract.
type DeliverDevice struct {
	pipeline.Base
	contract pipeline.Contract
}

func NewDeliverDevice(ctx *pipeline.Context) *DeliverDevice {
	return &DeliverDevice{
		Base:     pipeline.NewBase("DeliverDevice", pipeline.TypeGuard[*device.Device](pipeline.Run)),
		contract: ctx.Contract,
	}
}

func (d *DeliverDevice) Apply(v any) (any, error) {
	dev, ok := v.(*device.Device)
	if !ok {
		return nil, &entity.EntityError{Entity: "Device", Reason: "unexpected entity type in DeliverDevice"}
	}
	d.contract.DeliverDevice(dev)
	return v, nil
}

// DeliverConnectionStatus forwards adapter connection state changes.
type DeliverConnectionStatus struct {
	pipeline.Base
	contract      pipeline.Contract
	devices       []string
	autoAvailable bool
}

func NewDeliverConnectionStatus(ctx *pipeline.Context, devices []string, autoAvailable bool) *DeliverConnectionStatus {
	return &DeliverConnectionStatus{
		Base:          pipeline.NewBase("DeliverConnectionStatus", pipeline.EntityNameGuard("ConnectionStatus", pipeline.Run)),
		contract:      ctx.Contract,
		devices:       devices,
		autoAvailable: autoAvailable,
	}
}

func (d *DeliverConnectionStatus) Apply(v any) (any, error) {
	e, ok := v.(*entity.Entity)
	if !ok {
		return nil, &entity.EntityError{Entity: "ConnectionStatus",
			Reason: "unexpected entity type in DeliverConnectionStatus"}
	}
	d.contract.DeliverConnectStatus(e, d.devices, d.autoAvailable)
	return v, nil
}

// DeliverAssetCommand forwards asset commands to the contract.
type DeliverAssetCommand struct {
	pipeline.Base
	contract pipeline.Contract
}

func NewDeliverAssetCommand(ctx *pipeline.Context) *DeliverAssetCommand {
	return &DeliverAssetCommand{
		Base:     pipeline.NewBase("DeliverAssetCommand", pipeline.EntityNameGuard("AssetCommand", pipeline.Run)),
		contract: ctx.Contract,
	}
}

func (d *DeliverAssetCommand) Apply(v any) (any, error) {
	e, ok := v.(*entity.Entity)
	if !ok {
		return nil, &entity.EntityError{Entity: "AssetCommand",
			Reason: "unexpected entity type in DeliverAssetCommand"}
	}
	d.contract.DeliverAssetCommand(e)
	return v, nil
}

// DeliverCommand forwards adapter commands, stamping the default device.
type DeliverCommand struct {
	pipeline.Base
	contract      pipeline.Contract
	defaultDevice string
}

func NewDeliverCommand(ctx *pipeline.Context, defaultDevice string) *DeliverCommand {
	return &DeliverCommand{
		Base:          pipeline.NewBase("DeliverCommand", pipeline.EntityNameGuard("Command", pipeline.Run)),
		contract:      ctx.Contract,
		defaultDevice: defaultDevice,
	}
}

func (d *DeliverCommand) Apply(v any) (any, error) {
	e, ok := v.(*entity.Entity)
	if !ok {
		return nil, &entity.EntityError{Entity: "Command",
			Reason: "unexpected entity type in DeliverCommand"}
	}
	if d.defaultDevice != "" {
		e.Set("device", d.defaultDevice)
	}
	d.contract.DeliverCommand(e)
	return v, nil
}
