package pipeline

import (
	"github.com/mtconnect/mtc-ingest/internal/asset"
	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
)

// Contract is the narrow interface the pipeline uses to consult the
// surrounding agent: the read-only data-item dictionary, delivery sinks,
// and duplicate suppression. Implementations must keep CheckDuplicate safe
// under concurrent callers from distinct pipelines.
type Contract interface {
	FindDevice(nameOrUUID string) *device.Device
	FindDataItem(deviceName, nameOrID string) *device.DataItem
	EachDataItem(fn func(di *device.DataItem))

	// SchemaVersion is encoded major*100+minor.
	SchemaVersion() int32
	IsValidating() bool

	DeliverObservation(obs observation.Observation)
	DeliverAsset(a *asset.Asset)
	DeliverDevices(devices entity.EntityList)
	DeliverDevice(d *device.Device)
	DeliverAssetCommand(e *entity.Entity)
	DeliverCommand(e *entity.Entity)
	DeliverConnectStatus(e *entity.Entity, devices []string, autoAvailable bool)

	SourceFailed(identity string)

	// CheckDuplicate returns the observation to forward, possibly with its
	// data-set value reduced to the changed entries, or nil when it is a
	// full duplicate.
	CheckDuplicate(obs observation.Observation) observation.Observation
}
