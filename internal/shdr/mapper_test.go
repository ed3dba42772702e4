package shdr

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/asset"
	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// mockContract backs the mapper with a fixed device dictionary.
type mockContract struct {
	devices map[string]*device.Device
}

func (m *mockContract) FindDevice(name string) *device.Device { return m.devices[name] }

func (m *mockContract) FindDataItem(deviceName, nameOrID string) *device.DataItem {
	if dev, ok := m.devices[deviceName]; ok {
		return dev.DataItem(nameOrID)
	}
	for _, dev := range m.devices {
		if di := dev.DataItem(nameOrID); di != nil {
			return di
		}
	}
	return nil
}

func (m *mockContract) EachDataItem(fn func(di *device.DataItem)) {}
func (m *mockContract) SchemaVersion() int32                     { return 203 }
func (m *mockContract) IsValidating() bool                       { return false }

func (m *mockContract) DeliverObservation(observation.Observation)   {}
func (m *mockContract) DeliverAsset(*asset.Asset)                    {}
func (m *mockContract) DeliverDevices(entity.EntityList)             {}
func (m *mockContract) DeliverDevice(*device.Device)                 {}
func (m *mockContract) DeliverAssetCommand(*entity.Entity)           {}
func (m *mockContract) DeliverCommand(*entity.Entity)                {}
func (m *mockContract) DeliverConnectStatus(*entity.Entity, []string, bool) {}
func (m *mockContract) SourceFailed(string)                          {}
func (m *mockContract) CheckDuplicate(obs observation.Observation) observation.Observation {
	return obs
}

func testDevice() *device.Device {
	dev := device.NewDevice("m1", "uuid-m1")
	dev.AddDataItem(&device.DataItem{ID: "line", Name: "line",
		Category: device.Event, Type: "EXECUTION"})
	dev.AddDataItem(&device.DataItem{ID: "zlc", Name: "zlc",
		Category: device.Condition, Type: "LOGIC_PROGRAM"})
	dev.AddDataItem(&device.DataItem{ID: "pos", Name: "pos",
		Category: device.Sample, Type: "POSITION", Units: "MILLIMETER"})
	dev.AddDataItem(&device.DataItem{ID: "vars", Name: "vars",
		Category: device.Event, Type: "VARIABLE", Representation: device.DataSetRepresentation})
	return dev
}

func mapperPipeline(t *testing.T, version int) (*Tokenizer, *mockContract) {
	t.Helper()
	contract := &mockContract{devices: map[string]*device.Device{"m1": testDevice()}}
	ctx := pipeline.NewContext(contract)

	tokenizer := NewTokenizer()
	extract := NewExtractTimestamp(false, nil)
	mapper := NewTokenMapper(ctx, "m1", version, zerolog.Nop())
	tokenizer.Bind(extract)
	extract.Bind(mapper)
	return tokenizer, contract
}

func mapLine(t *testing.T, tokenizer *Tokenizer, line string) *Observations {
	t.Helper()
	out, err := tokenizer.Apply(NewData(line, "test"))
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	obs, ok := out.(*Observations)
	if !ok {
		t.Fatalf("expected *Observations, got %T", out)
	}
	return obs
}

func TestMapEvent(t *testing.T) {
	tokenizer, _ := mapperPipeline(t, 1)
	res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|line|204")

	if len(res.Entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(res.Entities))
	}
	event, ok := res.Entities[0].(*observation.Event)
	if !ok {
		t.Fatalf("expected *Event, got %T", res.Entities[0])
	}
	if v := event.Value(); v != "204" {
		t.Errorf("value = %v, want 204", v)
	}
	want := time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
	if !event.Timestamp().Equal(want) {
		t.Errorf("timestamp = %v, want %v", event.Timestamp(), want)
	}
}

func TestMapCondition(t *testing.T) {
	tokenizer, _ := mapperPipeline(t, 1)
	res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|zlc|FAULT|1234|LOW|Hydraulic pressure low")

	if len(res.Entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(res.Entities))
	}
	cond, ok := res.Entities[0].(*observation.Condition)
	if !ok {
		t.Fatalf("expected *Condition, got %T", res.Entities[0])
	}
	if cond.Level() != observation.Fault {
		t.Errorf("level = %v, want Fault", cond.Level())
	}
	if cond.Code() != "1234" {
		t.Errorf("code = %q, want 1234", cond.Code())
	}
	if q, _ := entity.MaybeGet[string](cond.Entity(), "qualifier"); q != "LOW" {
		t.Errorf("qualifier = %q, want LOW", q)
	}
	if v := cond.Value(); v != "Hydraulic pressure low" {
		t.Errorf("value = %v", v)
	}
}

func TestMapSample(t *testing.T) {
	tokenizer, _ := mapperPipeline(t, 1)
	res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|pos|123.456")

	sample, ok := res.Entities[0].(*observation.Sample)
	if !ok {
		t.Fatalf("expected *Sample, got %T", res.Entities[0])
	}
	if v := sample.Value(); v != 123.456 {
		t.Errorf("value = %v, want 123.456", v)
	}
}

func TestMapUnavailable(t *testing.T) {
	tokenizer, _ := mapperPipeline(t, 1)
	res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|pos|UNAVAILABLE")

	sample := res.Entities[0].(*observation.Sample)
	if !sample.IsUnavailable() {
		t.Error("expected unavailable sample")
	}
}

func TestMapDataSet(t *testing.T) {
	tokenizer, _ := mapperPipeline(t, 1)
	res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|vars|a=1 b=2.5 c")

	ev, ok := res.Entities[0].(*observation.DataSetEvent)
	if !ok {
		t.Fatalf("expected *DataSetEvent, got %T", res.Entities[0])
	}
	ds := ev.DataSet()
	if len(ds) != 3 {
		t.Fatalf("data set = %v", ds)
	}
	if e := ds["a"]; e.Value != int64(1) {
		t.Errorf("a = %v", e.Value)
	}
	if e := ds["c"]; !e.Removed {
		t.Error("c should be marked removed")
	}
}

func TestMapUnknownDataItemV2Continues(t *testing.T) {
	tokenizer, _ := mapperPipeline(t, 2)
	// v2: unknown id consumes only itself; the line continues.
	res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|nope|1|line|204")

	if len(res.Entities) != 1 {
		t.Fatalf("expected one mapped observation, got %d", len(res.Entities))
	}
	// The "1" token resolves nothing, then line|204 maps.
	if _, ok := res.Entities[0].(*observation.Event); !ok {
		t.Fatalf("expected *Event, got %T", res.Entities[0])
	}
}

func TestMapMultipleObservationsV2(t *testing.T) {
	tokenizer, _ := mapperPipeline(t, 2)
	res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|line|204|pos|5.5")

	if len(res.Entities) != 2 {
		t.Fatalf("expected two observations, got %d", len(res.Entities))
	}
}

func TestAssetCommands(t *testing.T) {
	tokenizer, _ := mapperPipeline(t, 2)

	t.Run("remove_asset", func(t *testing.T) {
		res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|@REMOVE_ASSET@|T1")
		if len(res.Entities) != 1 {
			t.Fatalf("entities = %v", res.Entities)
		}
		ac := res.Entities[0].(*entity.Entity)
		if ac.Name() != "AssetCommand" {
			t.Errorf("name = %q", ac.Name())
		}
		if v := ac.Value(); v != "RemoveAsset" {
			t.Errorf("verb = %v", v)
		}
		if id, _ := entity.MaybeGet[string](ac, "assetId"); id != "T1" {
			t.Errorf("assetId = %q", id)
		}
	})

	t.Run("remove_all", func(t *testing.T) {
		res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|@REMOVE_ALL_ASSETS@|CuttingTool")
		ac := res.Entities[0].(*entity.Entity)
		if v := ac.Value(); v != "RemoveAll" {
			t.Errorf("verb = %v", v)
		}
		if typ, _ := entity.MaybeGet[string](ac, "type"); typ != "CuttingTool" {
			t.Errorf("type = %q", typ)
		}
	})

	t.Run("asset_body", func(t *testing.T) {
		body := `"<CuttingTool serialNumber=\"1\" toolId=\"KSSP\"><Value>ready</Value></CuttingTool>"`
		res := mapLine(t, tokenizer, "2021-02-01T12:00:00Z|@ASSET@|T1|CuttingTool|"+body)
		if len(res.Entities) != 1 {
			t.Fatalf("entities = %d", len(res.Entities))
		}
		a, ok := res.Entities[0].(*asset.Asset)
		if !ok {
			t.Fatalf("expected *asset.Asset, got %T", res.Entities[0])
		}
		if a.AssetID() != "T1" {
			t.Errorf("assetId = %q", a.AssetID())
		}
		if a.Type() != "CuttingTool" {
			t.Errorf("type = %q", a.Type())
		}
		if a.DeviceUUID() != "uuid-m1" {
			t.Errorf("deviceUuid = %q", a.DeviceUUID())
		}
	})
}
