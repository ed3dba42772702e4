// Package agent binds the pipeline to the rest of the system: the device
// registry loaded from the device file, the contract implementation over
// the circular buffer and asset store, and the source pipelines.
package agent

import (
	"fmt"
	"os"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/mtconnect/mtc-ingest/internal/device"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// deviceFile is the on-disk shape of the device dictionary.
type deviceFile struct {
	Devices []struct {
		Name      string         `json:"name"`
		UUID      string         `json:"uuid"`
		DataItems []dataItemDecl `json:"dataItems"`
	} `json:"devices"`
}

// Registry is the read-only device dictionary for one device-model
// version. A reload builds a fresh registry and orphans the old one.
type Registry struct {
	mu      sync.RWMutex
	devices []*device.Device
	byKey   map[string]*device.Device
}

// LoadRegistry reads the device file into a registry.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read devices file: %w", err)
	}

	var df deviceFile
	if err := json.Unmarshal(raw, &df); err != nil {
		return nil, fmt.Errorf("parse devices file: %w", err)
	}
	if len(df.Devices) == 0 {
		return nil, fmt.Errorf("devices file %s declares no devices", path)
	}

	r := &Registry{byKey: make(map[string]*device.Device)}
	for _, dd := range df.Devices {
		dev := device.NewDevice(dd.Name, dd.UUID)
		for _, dot := range dd.DataItems {
			di, err := buildDataItem(dot)
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", dd.Name, err)
			}
			dev.AddDataItem(di)
		}
		r.add(dev)
	}
	return r, nil
}

type dataItemDecl struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Category           string   `json:"category"`
	Type               string   `json:"type"`
	SubType            string   `json:"subType"`
	Units              string   `json:"units"`
	Statistic          string   `json:"statistic"`
	CompositionID      string   `json:"compositionId"`
	Representation     string   `json:"representation"`
	MinimumDelta       *float64 `json:"minimumDelta"`
	MinimumPeriod      *float64 `json:"minimumPeriod"`
	ResetTrigger       string   `json:"resetTrigger"`
	ConstantValue      *string  `json:"constantValue"`
	InitialValue       string   `json:"initialValue"`
	Discrete           bool     `json:"discrete"`
	ConversionRequired bool     `json:"conversionRequired"`
	ConversionFactor   float64  `json:"conversionFactor"`
	ConversionOffset   float64  `json:"conversionOffset"`
}

func buildDataItem(d dataItemDecl) (*device.DataItem, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("data item without id")
	}

	var category device.Category
	switch strings.ToUpper(d.Category) {
	case "SAMPLE":
		category = device.Sample
	case "EVENT":
		category = device.Event
	case "CONDITION":
		category = device.Condition
	default:
		return nil, fmt.Errorf("data item %s: unknown category %q", d.ID, d.Category)
	}

	var representation device.Representation
	switch strings.ToUpper(d.Representation) {
	case "", "VALUE":
		representation = device.ValueRepresentation
	case "TIME_SERIES":
		representation = device.TimeSeries
	case "DATA_SET":
		representation = device.DataSetRepresentation
	case "TABLE":
		representation = device.Table
	case "3D":
		representation = device.ThreeSpace
	default:
		return nil, fmt.Errorf("data item %s: unknown representation %q", d.ID, d.Representation)
	}

	di := &device.DataItem{
		ID:                 d.ID,
		Name:               d.Name,
		Type:               strings.ToUpper(d.Type),
		SubType:            d.SubType,
		Units:              d.Units,
		Statistic:          d.Statistic,
		CompositionID:      d.CompositionID,
		Category:           category,
		Representation:     representation,
		MinimumDelta:       d.MinimumDelta,
		MinimumPeriod:      d.MinimumPeriod,
		ResetTrigger:       d.ResetTrigger,
		ConstantValue:      d.ConstantValue,
		InitialValue:       d.InitialValue,
		Discrete:           d.Discrete,
		ConversionRequired: d.ConversionRequired,
	}
	if d.ConversionRequired && d.ConversionFactor != 0 {
		di.Conversion = &device.Conversion{Factor: d.ConversionFactor, Offset: d.ConversionOffset}
	}
	return di, nil
}

func (r *Registry) add(dev *device.Device) {
	r.devices = append(r.devices, dev)
	if dev.Name != "" {
		r.byKey[dev.Name] = dev
	}
	if dev.UUID != "" {
		r.byKey[dev.UUID] = dev
	}
}

// Device resolves a device by name or uuid.
func (r *Registry) Device(nameOrUUID string) *device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[nameOrUUID]
}

// Devices lists the registered devices.
func (r *Registry) Devices() []*device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*device.Device(nil), r.devices...)
}

// FirstDevice is the fallback default device.
func (r *Registry) FirstDevice() *device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.devices) == 0 {
		return nil
	}
	return r.devices[0]
}

// DisableConversion clears the per-item conversion flags when unit
// conversion is globally off.
func (r *Registry) DisableConversion() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		for _, di := range d.DataItems() {
			di.ConversionRequired = false
			di.Conversion = nil
		}
	}
}

// MarkOrphaned flags every data item in the registry as belonging to a
// replaced model.
func (r *Registry) MarkOrphaned() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		d.MarkOrphaned()
	}
}
