package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	mqttctrl "github.com/Agrid-Dev/redwire/internal/controllers/mqtt"
	"github.com/Agrid-Dev/redwire/internal/heater"
	"github.com/Agrid-Dev/redwire/internal/sensor"
	"github.com/Agrid-Dev/redwire/internal/simulator"
)

// EnvPrefix is stripped from environment variables before they are mapped to keys.
const EnvPrefix = "REDWIRE_"

type Config struct {
	DeviceID string `koanf:"device_id" yaml:"device_id"`
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	Heater      HeaterConfig      `koanf:"heater" yaml:"heater"`
	Sensor      SensorConfig      `koanf:"sensor" yaml:"sensor"`
	MQTT        MQTTConfig        `koanf:"mqtt" yaml:"mqtt"`
	Controllers ControllersConfig `koanf:"controllers" yaml:"controllers"`
	Simulator   SimulatorConfig   `koanf:"simulator" yaml:"simulator"`
}

type HeaterConfig struct {
	Name          string `koanf:"name" yaml:"name"`
	SetpointTopic string `koanf:"setpoint_topic" yaml:"setpoint_topic"`
	PowerTopic    string `koanf:"power_topic" yaml:"power_topic"`
	MinTemp       int    `koanf:"min_temp" yaml:"min_temp"`
	MaxTemp       int    `koanf:"max_temp" yaml:"max_temp"`
	// UnsetTarget leaves the target absent until the device reports one.
	UnsetTarget bool `koanf:"unset_target" yaml:"unset_target"`
}

type SensorConfig struct {
	Topic       string        `koanf:"topic" yaml:"topic"`
	JSONField   string        `koanf:"json_field" yaml:"json_field"`
	InitialWait time.Duration `koanf:"initial_wait" yaml:"initial_wait"`
}

type MQTTConfig struct {
	BrokerURL      string        `koanf:"broker_url" yaml:"broker_url"`
	ClientID       string        `koanf:"client_id" yaml:"client_id"`
	Username       string        `koanf:"username" yaml:"username"`
	Password       string        `koanf:"password" yaml:"password"`
	QoS            byte          `koanf:"qos" yaml:"qos"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" yaml:"connect_timeout"`
	PublishTimeout time.Duration `koanf:"publish_timeout" yaml:"publish_timeout"`
	StateTopic     string        `koanf:"state_topic" yaml:"state_topic"`
}

type ControllersConfig struct {
	HTTP   HTTPConfig   `koanf:"http" yaml:"http"`
	Modbus ModbusConfig `koanf:"modbus" yaml:"modbus"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
	UnitID  byte   `koanf:"unit_id" yaml:"unit_id"`
}

type SimulatorConfig struct {
	Interval            time.Duration `koanf:"interval" yaml:"interval"`
	InitialAmbient      float64       `koanf:"initial_ambient" yaml:"initial_ambient"`
	InitialSetpoint     int           `koanf:"initial_setpoint" yaml:"initial_setpoint"`
	HeatingRate         float64       `koanf:"heating_rate" yaml:"heating_rate"`
	TriggerHysteresis   float64       `koanf:"trigger_hysteresis" yaml:"trigger_hysteresis"`
	TargetHysteresis    float64       `koanf:"target_hysteresis" yaml:"target_hysteresis"`
	OutdoorTemperature  float64       `koanf:"outdoor_temperature" yaml:"outdoor_temperature"`
	HeatLossCoefficient float64       `koanf:"heat_loss_coefficient" yaml:"heat_loss_coefficient"`
}

func Defaults() Config {
	return Config{
		DeviceID: "default",
		LogLevel: "info",
		Heater: HeaterConfig{
			Name:          "Redwire Heater",
			SetpointTopic: "kitchen/heater/controller/setpoint",
			PowerTopic:    "kitchen/heater/controller/state",
			MinTemp:       10,
			MaxTemp:       30,
		},
		Sensor: SensorConfig{
			Topic:       "kitchen/sensor/temperature",
			InitialWait: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			BrokerURL:      "tcp://localhost:1883",
			QoS:            1,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
		Controllers: ControllersConfig{
			HTTP:   HTTPConfig{Enabled: true, Addr: ":8080"},
			Modbus: ModbusConfig{Enabled: false, Addr: ":1502", UnitID: 1},
		},
		Simulator: SimulatorConfig{
			Interval:            time.Second,
			InitialAmbient:      18,
			InitialSetpoint:     20,
			HeatingRate:         0.01,
			TriggerHysteresis:   1,
			TargetHysteresis:    0.5,
			OutdoorTemperature:  10,
			HeatLossCoefficient: 1e-4,
		},
	}
}

// sections whose keys are "<section>_<key>" in the environment.
var envSections = map[string]bool{
	"heater":    true,
	"sensor":    true,
	"mqtt":      true,
	"simulator": true,
}

// envKeyTransform maps an environment key (prefix already removed) to a koanf path:
// HEATER_SETPOINT_TOPIC -> heater.setpoint_topic, CONTROLLERS_HTTP_ADDR -> controllers.http.addr.
// Keys outside a known section are top level.
func envKeyTransform(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return ""
	}
	parts := strings.SplitN(k, "_", 3)
	if parts[0] == "controllers" {
		if len(parts) < 3 {
			return k
		}
		return parts[0] + "." + parts[1] + "." + parts[2]
	}
	if envSections[parts[0]] && len(parts) > 1 {
		return parts[0] + "." + strings.Join(parts[1:], "_")
	}
	return k
}

// Load builds the configuration from defaults, then the file at path (yaml or json,
// skipped when missing), then REDWIRE_* environment variables.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return Config{}, err
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, EnvPrefix)), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Config file missing → use defaults
			return nil
		}
		return fmt.Errorf("stat config: %w", err)
	}

	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is required"))
	}
	if c.Heater.SetpointTopic == "" || c.Heater.PowerTopic == "" {
		errs = append(errs, fmt.Errorf("heater: %w", heater.ErrMissingTopic))
	}
	if c.Sensor.Topic == "" {
		errs = append(errs, fmt.Errorf("sensor: %w", heater.ErrMissingTopic))
	}
	if c.Heater.MinTemp > c.Heater.MaxTemp {
		errs = append(errs, fmt.Errorf("heater: %w", heater.ErrInvalidBounds))
	}
	if c.MQTT.QoS > 1 {
		errs = append(errs, errors.New("mqtt: qos must be 0 or 1"))
	}
	if c.Controllers.HTTP.Enabled && c.Controllers.HTTP.Addr == "" {
		errs = append(errs, errors.New("controllers.http: addr is required"))
	}
	if c.Controllers.Modbus.Enabled && (c.Controllers.Modbus.UnitID == 0 || c.Controllers.Modbus.UnitID > 247) {
		errs = append(errs, errors.New("controllers.modbus: unit_id must be 1..247"))
	}
	return errors.Join(errs...)
}

func (c Config) HeaterConfig() heater.Config {
	return heater.Config{
		Name:          c.Heater.Name,
		SetpointTopic: c.Heater.SetpointTopic,
		PowerTopic:    c.Heater.PowerTopic,
		MinTemp:       c.Heater.MinTemp,
		MaxTemp:       c.Heater.MaxTemp,
	}
}

func (c Config) SensorConfig() sensor.Config {
	return sensor.Config{
		Topic:       c.Sensor.Topic,
		JSONField:   c.Sensor.JSONField,
		InitialWait: c.Sensor.InitialWait,
	}
}

func (c Config) MQTTConfig() mqttctrl.Config {
	return mqttctrl.Config{
		DeviceID:       c.DeviceID,
		BrokerURL:      c.MQTT.BrokerURL,
		ClientID:       c.MQTT.ClientID,
		Username:       c.MQTT.Username,
		Password:       c.MQTT.Password,
		QoS:            c.MQTT.QoS,
		ConnectTimeout: c.MQTT.ConnectTimeout,
		PublishTimeout: c.MQTT.PublishTimeout,
		StateTopic:     c.MQTT.StateTopic,
	}
}

func (c Config) SimulatorConfig() simulator.Config {
	sp := c.Simulator.InitialSetpoint
	return simulator.Config{
		SetpointTopic:   c.Heater.SetpointTopic,
		PowerTopic:      c.Heater.PowerTopic,
		SensorTopic:     c.Sensor.Topic,
		SensorField:     c.Sensor.JSONField,
		Interval:        c.Simulator.Interval,
		InitialAmbient:  c.Simulator.InitialAmbient,
		InitialSetpoint: &sp,
		Regulator: simulator.RegulatorParams{
			HeatingRate:       c.Simulator.HeatingRate,
			TriggerHysteresis: c.Simulator.TriggerHysteresis,
			TargetHysteresis:  c.Simulator.TargetHysteresis,
		},
		HeatLoss: simulator.HeatLossParams{
			OutdoorTemperature: c.Simulator.OutdoorTemperature,
			Coefficient:        c.Simulator.HeatLossCoefficient,
		},
	}
}

// YAML renders the effective configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	if c.MQTT.Password != "" {
		c.MQTT.Password = "********"
	}
	return yamlv3.Marshal(c)
}
