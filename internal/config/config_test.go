package config

import (
	"testing"
)

func TestParseSchemaVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    int32
		wantErr bool
	}{
		{input: "1.4", want: 104},
		{input: "2.5", want: 205},
		{input: "2.0", want: 200},
		{input: "17.12", want: 1712},
		{input: "two.five", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSchemaVersion(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSchemaVersion(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSchemaVersion(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSchemaVersion(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DevicesFile:   "devices.json",
			MQTTBrokerURL: "tcp://localhost:1883",
			SchemaVersion: "2.3",
			ShdrVersion:   1,
		}
	}

	t.Run("valid", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("no_source", func(t *testing.T) {
		cfg := base()
		cfg.MQTTBrokerURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error when no source configured")
		}
	})

	t.Run("upstream_without_device", func(t *testing.T) {
		cfg := base()
		cfg.UpstreamURL = "http://upstream:5000/"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error when upstream has no device")
		}
	})

	t.Run("bad_shdr_version", func(t *testing.T) {
		cfg := base()
		cfg.ShdrVersion = 3
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for SHDR_VERSION=3")
		}
	})

	t.Run("bad_schema_version", func(t *testing.T) {
		cfg := base()
		cfg.SchemaVersion = "latest"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unparsable schema version")
		}
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DEVICES_FILE", "devices.json")
	t.Setenv("MQTT_BROKER_URL", "tcp://broker:1883")
	t.Setenv("SHDR_VERSION", "2")
	t.Setenv("UPCASE_DATA_ITEM_VALUE", "true")

	cfg, err := Load(Overrides{EnvFile: "/nonexistent/.env"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DevicesFile != "devices.json" {
		t.Errorf("DevicesFile = %q", cfg.DevicesFile)
	}
	if cfg.ShdrVersion != 2 {
		t.Errorf("ShdrVersion = %d", cfg.ShdrVersion)
	}
	if !cfg.UpcaseDataItemValue {
		t.Error("UpcaseDataItemValue should be true")
	}
	// Defaults survive.
	if cfg.MQTTTopics != "#" {
		t.Errorf("MQTTTopics default = %q", cfg.MQTTTopics)
	}

	over, err := Load(Overrides{EnvFile: "/nonexistent/.env", MQTTBrokerURL: "tcp://other:1883"})
	if err != nil {
		t.Fatal(err)
	}
	if over.MQTTBrokerURL != "tcp://other:1883" {
		t.Errorf("override lost: %q", over.MQTTBrokerURL)
	}
}
