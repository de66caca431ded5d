package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agrid-Dev/redwire/internal/heater"
)

func TestEnvKeyTransform_TopLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DEVICE_ID", "device_id"},
		{"LOG_LEVEL", "log_level"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvKeyTransform_Controllers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CONTROLLERS_HTTP_ADDR", "controllers.http.addr"},
		{"CONTROLLERS_MODBUS_UNIT_ID", "controllers.modbus.unit_id"},
		{"CONTROLLERS_HTTP", "controllers_http"}, // not enough parts -> fallback
		{"controllers_HTTP_addr", "controllers.http.addr"},
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvKeyTransform_Sections(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HEATER_SETPOINT_TOPIC", "heater.setpoint_topic"},
		{"HEATER_MIN_TEMP", "heater.min_temp"},
		{"SENSOR_JSON_FIELD", "sensor.json_field"},
		{"MQTT_BROKER_URL", "mqtt.broker_url"},
		{"SIMULATOR_HEAT_LOSS_COEFFICIENT", "simulator.heat_loss_coefficient"},
		{"HEATER", "heater"}, // not enough parts -> passthrough
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "config.yaml", `
device_id: kitchen
heater:
  setpoint_topic: home/heater/sp
  min_temp: 12
sensor:
  json_field: temperature
  initial_wait: 2s
controllers:
  modbus:
    enabled: true
    unit_id: 3
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "kitchen", cfg.DeviceID)
	assert.Equal(t, "home/heater/sp", cfg.Heater.SetpointTopic)
	assert.Equal(t, "kitchen/heater/controller/state", cfg.Heater.PowerTopic)
	assert.Equal(t, 12, cfg.Heater.MinTemp)
	assert.Equal(t, 30, cfg.Heater.MaxTemp)
	assert.Equal(t, "temperature", cfg.Sensor.JSONField)
	assert.Equal(t, 2*time.Second, cfg.Sensor.InitialWait)
	assert.True(t, cfg.Controllers.Modbus.Enabled)
	assert.Equal(t, byte(3), cfg.Controllers.Modbus.UnitID)
	assert.True(t, cfg.Controllers.HTTP.Enabled)
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "config.json", `{"device_id": "lab", "mqtt": {"broker_url": "tcp://broker:1883", "qos": 0}}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "lab", cfg.DeviceID)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeFile(t, "config.toml", `device_id = "x"`)
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "config.yaml", "heater:\n  max_temp: 25\n")
	t.Setenv("REDWIRE_HEATER_MAX_TEMP", "28")
	t.Setenv("REDWIRE_CONTROLLERS_HTTP_ADDR", ":9090")
	t.Setenv("REDWIRE_SENSOR_INITIAL_WAIT", "750ms")
	t.Setenv("REDWIRE_DEVICE_ID", "env-device")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 28, cfg.Heater.MaxTemp)
	assert.Equal(t, ":9090", cfg.Controllers.HTTP.Addr)
	assert.Equal(t, 750*time.Millisecond, cfg.Sensor.InitialWait)
	assert.Equal(t, "env-device", cfg.DeviceID)
}

func TestLoadRejectsInvalidBounds(t *testing.T) {
	p := writeFile(t, "config.yaml", "heater:\n  min_temp: 25\n  max_temp: 20\n")
	_, err := Load(p)
	assert.ErrorIs(t, err, heater.ErrInvalidBounds)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"empty setpoint topic", func(c *Config) { c.Heater.SetpointTopic = "" }, heater.ErrMissingTopic},
		{"empty power topic", func(c *Config) { c.Heater.PowerTopic = "" }, heater.ErrMissingTopic},
		{"empty sensor topic", func(c *Config) { c.Sensor.Topic = "" }, heater.ErrMissingTopic},
		{"min above max", func(c *Config) { c.Heater.MinTemp = 31 }, heater.ErrInvalidBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	cfg := Defaults()
	cfg.MQTT.QoS = 2
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Controllers.Modbus.Enabled = true
	cfg.Controllers.Modbus.UnitID = 0
	assert.Error(t, cfg.Validate())
}

func TestConversions(t *testing.T) {
	cfg := Defaults()

	hc := cfg.HeaterConfig()
	assert.Equal(t, heater.Config{
		Name:          "Redwire Heater",
		SetpointTopic: "kitchen/heater/controller/setpoint",
		PowerTopic:    "kitchen/heater/controller/state",
		MinTemp:       10,
		MaxTemp:       30,
	}, hc)

	sc := cfg.SimulatorConfig()
	require.NotNil(t, sc.InitialSetpoint)
	assert.Equal(t, 20, *sc.InitialSetpoint)
	assert.Equal(t, cfg.Sensor.Topic, sc.SensorTopic)

	mc := cfg.MQTTConfig()
	assert.Equal(t, cfg.DeviceID, mc.DeviceID)
	assert.Equal(t, byte(1), mc.QoS)
}

func TestYAMLMasksPassword(t *testing.T) {
	cfg := Defaults()
	cfg.MQTT.Password = "secret"
	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
	assert.Contains(t, string(out), "setpoint_topic: kitchen/heater/controller/setpoint")
	assert.Equal(t, "secret", cfg.MQTT.Password)
}
