// Package asset models typed, identified assets (cutting tools, files,
// fixtures) and the bounded buffer that stores them.
package asset

import (
	"time"

	"github.com/mtconnect/mtc-ingest/internal/entity"
)

// Asset is an identified entity associated with a device. Lifecycle:
// created on receipt or load, mutated only by the pipeline under the store
// lock, destroyed only by LRU eviction.
type Asset struct {
	ent *entity.Entity
}

// root is the factory assets parse against; specific asset types register
// themselves by element name, everything else falls through to a generic
// entity tree.
var root = entity.NewFactory()

// Root exposes the asset factory for XML parsing.
func Root() *entity.Factory { return root }

// FromEntity wraps a parsed entity tree as an asset.
func FromEntity(e *entity.Entity) *Asset { return &Asset{ent: e} }

// Parse parses an XML asset body.
func Parse(body string) (*Asset, []error) {
	ent, errs := entity.ParseXML(root, body)
	if ent == nil {
		return nil, errs
	}
	return &Asset{ent: ent}, errs
}

func (a *Asset) Entity() *entity.Entity { return a.ent }

// Type is the asset's element name (CuttingTool, File, ...).
func (a *Asset) Type() string { return a.ent.Name() }

func (a *Asset) AssetID() string {
	id, _ := entity.MaybeGet[string](a.ent, "assetId")
	return id
}

func (a *Asset) SetAssetID(id string) { a.ent.Set("assetId", id) }

func (a *Asset) DeviceUUID() string {
	id, _ := entity.MaybeGet[string](a.ent, "deviceUuid")
	return id
}

func (a *Asset) SetDeviceUUID(uuid string) { a.ent.Set("deviceUuid", uuid) }

func (a *Asset) Timestamp() time.Time {
	ts, _ := entity.MaybeGet[time.Time](a.ent, "timestamp")
	return ts
}

func (a *Asset) SetTimestamp(ts time.Time) { a.ent.Set("timestamp", ts) }

func (a *Asset) IsRemoved() bool {
	r, _ := entity.MaybeGet[bool](a.ent, "removed")
	return r
}

func (a *Asset) SetRemoved(removed bool) { a.ent.Set("removed", removed) }
