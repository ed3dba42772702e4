package topic

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

func jsonDevice() *device.Device {
	dev := device.NewDevice("m1", "uuid-1")
	dev.AddDataItem(&device.DataItem{ID: "a", Name: "a",
		Category: device.Event, Type: "EXECUTION"})
	dev.AddDataItem(&device.DataItem{ID: "b", Name: "b",
		Category: device.Sample, Type: "POSITION"})
	dev.AddDataItem(&device.DataItem{ID: "cond", Name: "cond",
		Category: device.Condition, Type: "LOGIC_PROGRAM"})
	dev.AddDataItem(&device.DataItem{ID: "vars", Name: "vars",
		Category: device.Event, Type: "VARIABLE", Representation: device.DataSetRepresentation})
	dev.AddDataItem(&device.DataItem{ID: "ts", Name: "ts",
		Category: device.Sample, Type: "POSITION", Representation: device.TimeSeries})
	return dev
}

func jsonMapperUnderTest(t *testing.T, now time.Time) (*JsonMapper, *device.Device) {
	t.Helper()
	dev := jsonDevice()
	contract := &mockContract{devices: map[string]*device.Device{"m1": dev, "uuid-1": dev}}
	ctx := pipeline.NewContext(contract)
	m := NewJsonMapper(ctx, func() time.Time { return now }, zerolog.Nop())
	return m, dev
}

func mapJSON(t *testing.T, m *JsonMapper, dev *device.Device, body string) []any {
	t.Helper()
	msg := &JsonMessage{PipelineMessage{Body: body, Device: dev}}
	out, err := m.Apply(msg)
	if err != nil {
		t.Fatalf("json mapping failed: %v", err)
	}
	if out == nil {
		return nil
	}
	ent := out.(*entity.Entity)
	entities, _ := ent.Value().([]any)
	return entities
}

func TestJsonBatch(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	entities := mapJSON(t, m, dev,
		`{"timestamp":"2023-11-09T11:20:00Z","a":"ACTIVE","b":123.456}`)

	if len(entities) != 2 {
		t.Fatalf("expected two observations, got %d", len(entities))
	}
	want := time.Date(2023, 11, 9, 11, 20, 0, 0, time.UTC)

	event, ok := entities[0].(*observation.Event)
	if !ok {
		t.Fatalf("expected *Event first, got %T", entities[0])
	}
	if event.Value() != "ACTIVE" || !event.Timestamp().Equal(want) {
		t.Errorf("event = %v at %v", event.Value(), event.Timestamp())
	}

	sample, ok := entities[1].(*observation.Sample)
	if !ok {
		t.Fatalf("expected *Sample second, got %T", entities[1])
	}
	if sample.Value() != 123.456 || !sample.Timestamp().Equal(want) {
		t.Errorf("sample = %v at %v", sample.Value(), sample.Timestamp())
	}
}

func TestJsonValueBeforeTimestampQueued(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	entities := mapJSON(t, m, dev,
		`{"a":"READY","timestamp":"2023-11-09T11:20:00Z"}`)

	if len(entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(entities))
	}
	want := time.Date(2023, 11, 9, 11, 20, 0, 0, time.UTC)
	if ts := entities[0].(*observation.Event).Timestamp(); !ts.Equal(want) {
		t.Errorf("queued value should get the batch timestamp, got %v", ts)
	}
}

func TestJsonNoTimestampDefaultsToNow(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	entities := mapJSON(t, m, dev, `{"a":"READY"}`)
	if len(entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(entities))
	}
	if ts := entities[0].(*observation.Event).Timestamp(); !ts.Equal(now) {
		t.Errorf("timestamp = %v, want now %v", ts, now)
	}
}

func TestJsonConditionObject(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	entities := mapJSON(t, m, dev,
		`{"timestamp":"2023-11-09T11:20:00Z","cond":{"level":"fault","nativeCode":"42","message":"overload"}}`)

	if len(entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(entities))
	}
	cond := entities[0].(*observation.Condition)
	if cond.Level() != observation.Fault {
		t.Errorf("level = %v", cond.Level())
	}
	if cond.Code() != "42" {
		t.Errorf("code = %q", cond.Code())
	}
	if cond.Value() != "overload" {
		t.Errorf("value = %v", cond.Value())
	}
}

func TestJsonConditionDefaultsNormal(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	entities := mapJSON(t, m, dev,
		`{"timestamp":"2023-11-09T11:20:00Z","cond":{"nativeCode":"42"}}`)
	if len(entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(entities))
	}
	if lvl := entities[0].(*observation.Condition).Level(); lvl != observation.Normal {
		t.Errorf("level = %v, want Normal", lvl)
	}
}

func TestJsonDataSet(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	entities := mapJSON(t, m, dev,
		`{"timestamp":"2023-11-09T11:20:00Z","vars":{"x":1,"y":"text","gone":null}}`)

	if len(entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(entities))
	}
	ev := entities[0].(*observation.DataSetEvent)
	ds := ev.DataSet()
	if len(ds) != 3 {
		t.Fatalf("data set = %v", ds)
	}
	if e := ds["x"]; e.Value != int64(1) {
		t.Errorf("x = %v", e.Value)
	}
	if e := ds["gone"]; !e.Removed {
		t.Error("null entry should be removed")
	}
}

func TestJsonVector(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	entities := mapJSON(t, m, dev,
		`{"timestamp":"2023-11-09T11:20:00Z","ts":{"sampleRate":100,"sampleCount":3,"value":[1.1,2.2,3.3]}}`)

	if len(entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(entities))
	}
	series := entities[0].(*observation.Timeseries)
	vec, ok := series.Value().(entity.Vector)
	if !ok || len(vec) != 3 {
		t.Fatalf("value = %v", series.Value())
	}
}

func TestJsonArrayOfBatches(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	entities := mapJSON(t, m, dev, `[
		{"timestamp":"2023-11-09T11:20:00Z","a":"ACTIVE"},
		{"timestamp":"2023-11-09T11:21:00Z","a":"READY"}
	]`)

	if len(entities) != 2 {
		t.Fatalf("expected two observations, got %d", len(entities))
	}
	second := entities[1].(*observation.Event)
	want := time.Date(2023, 11, 9, 11, 21, 0, 0, time.UTC)
	if !second.Timestamp().Equal(want) {
		t.Errorf("second batch timestamp = %v, want %v", second.Timestamp(), want)
	}
}

func TestJsonUnknownKeyConsumed(t *testing.T) {
	now := time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC)
	m, dev := jsonMapperUnderTest(t, now)

	// The unknown data item is consumed; the rest of the batch survives.
	entities := mapJSON(t, m, dev,
		`{"timestamp":"2023-11-09T11:20:00Z","mystery":{"deep":{"er":1}},"a":"ACTIVE"}`)

	if len(entities) != 1 {
		t.Fatalf("expected one observation, got %d", len(entities))
	}
	if v := entities[0].(*observation.Event).Value(); v != "ACTIVE" {
		t.Errorf("value = %v", v)
	}
}
