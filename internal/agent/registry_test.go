package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mtconnect/mtc-ingest/internal/device"
)

const devicesJSON = `{
  "devices": [
    {
      "name": "VMC-3Axis",
      "uuid": "000",
      "dataItems": [
        {"id": "avail", "name": "avail", "category": "EVENT", "type": "AVAILABILITY"},
        {"id": "x1", "name": "Xpos", "category": "SAMPLE", "type": "POSITION",
         "units": "MILLIMETER", "minimumDelta": 0.5},
        {"id": "p1", "name": "period", "category": "SAMPLE", "type": "LOAD",
         "minimumPeriod": 1.5},
        {"id": "c1", "name": "logic", "category": "CONDITION", "type": "LOGIC_PROGRAM"},
        {"id": "v1", "name": "vars", "category": "EVENT", "type": "VARIABLE",
         "representation": "DATA_SET"},
        {"id": "t1", "name": "temps", "category": "SAMPLE", "type": "TEMPERATURE",
         "representation": "TIME_SERIES", "conversionRequired": true,
         "conversionFactor": 0.1, "conversionOffset": 32}
      ]
    }
  ]
}`

func writeDevices(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	r, err := LoadRegistry(writeDevices(t, devicesJSON))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	dev := r.Device("VMC-3Axis")
	if dev == nil {
		t.Fatal("device not found by name")
	}
	if r.Device("000") != dev {
		t.Error("device not found by uuid")
	}

	x := dev.DataItem("x1")
	if x == nil || !x.IsSample() || x.MinimumDelta == nil || *x.MinimumDelta != 0.5 {
		t.Errorf("x1 = %+v", x)
	}
	if dev.DataItem("Xpos") != x {
		t.Error("data item not found by name")
	}

	p := dev.DataItem("p1")
	if p.MinimumPeriod == nil || *p.MinimumPeriod != 1.5 {
		t.Errorf("p1 period = %v", p.MinimumPeriod)
	}

	if c := dev.DataItem("c1"); !c.IsCondition() {
		t.Error("c1 should be a condition")
	}
	if v := dev.DataItem("v1"); !v.IsDataSet() {
		t.Error("v1 should be a data set")
	}

	temps := dev.DataItem("t1")
	if !temps.IsTimeSeries() {
		t.Error("t1 should be a time series")
	}
	if temps.Conversion == nil || temps.Conversion.Factor != 0.1 {
		t.Errorf("t1 conversion = %+v", temps.Conversion)
	}
	if got := temps.ObservationName(); got != "TemperatureTimeSeries" {
		t.Errorf("observation name = %q", got)
	}
}

func TestLoadRegistryErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: `{"devices": []}`},
		{name: "bad_category", body: `{"devices":[{"name":"d","uuid":"u","dataItems":[{"id":"x","category":"BOGUS","type":"POSITION"}]}]}`},
		{name: "missing_id", body: `{"devices":[{"name":"d","uuid":"u","dataItems":[{"category":"SAMPLE","type":"POSITION"}]}]}`},
		{name: "not_json", body: `devices:`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadRegistry(writeDevices(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRegistryOrphaning(t *testing.T) {
	r, err := LoadRegistry(writeDevices(t, devicesJSON))
	if err != nil {
		t.Fatal(err)
	}
	var items []*device.DataItem
	for _, d := range r.Devices() {
		items = append(items, d.DataItems()...)
	}
	r.MarkOrphaned()
	for _, di := range items {
		if !di.IsOrphan() {
			t.Errorf("data item %s not orphaned", di.ID)
		}
	}
}
