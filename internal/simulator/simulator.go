// Package simulator plays the heater device on the broker: it obeys setpoint and
// power commands and publishes the room temperature the way a sensor would.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/redwire/internal/heater"
)

// Transport is what the simulator needs from the broker connection.
type Transport interface {
	PublishRetained(topic, payload string) error
	Subscribe(topic string, handler func(payload string)) error
}

type Config struct {
	SetpointTopic string
	PowerTopic    string
	SensorTopic   string
	// SensorField wraps readings as {"<field>": value} when set.
	SensorField string
	Interval    time.Duration

	InitialAmbient  float64
	InitialSetpoint *int
	InitialPowerOn  bool

	Regulator RegulatorParams
	HeatLoss  HeatLossParams
}

// State is what the simulated device currently believes.
type State struct {
	Setpoint *int
	PowerOn  bool
	Ambient  float64
	Heating  bool
}

type Simulator struct {
	cfg Config
	tr  Transport
	log *zap.SugaredLogger

	mu       sync.Mutex
	model    *Model
	setpoint *int
	powerOn  bool
}

func New(cfg Config, tr Transport, log *zap.SugaredLogger) (*Simulator, error) {
	if cfg.SetpointTopic == "" || cfg.PowerTopic == "" || cfg.SensorTopic == "" {
		return nil, heater.ErrMissingTopic
	}
	if cfg.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if tr == nil {
		return nil, errors.New("simulator: transport is required")
	}
	m, err := NewModel(cfg.InitialAmbient, cfg.Regulator, cfg.HeatLoss)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Simulator{cfg: cfg, tr: tr, log: log, model: m, powerOn: cfg.InitialPowerOn}
	if cfg.InitialSetpoint != nil {
		v := *cfg.InitialSetpoint
		s.setpoint = &v
	}
	return s, nil
}

func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{PowerOn: s.powerOn, Ambient: s.model.Ambient(), Heating: s.model.Heating()}
	if s.setpoint != nil {
		v := *s.setpoint
		st.Setpoint = &v
	}
	return st
}

// Start subscribes the command topics and publishes the initial device state, retained,
// so a bridge starting later learns it.
func (s *Simulator) Start() error {
	if err := s.tr.Subscribe(s.cfg.SetpointTopic, s.onSetpoint); err != nil {
		return err
	}
	if err := s.tr.Subscribe(s.cfg.PowerTopic, s.onPower); err != nil {
		return err
	}
	st := s.State()
	if st.Setpoint != nil {
		s.publish(s.cfg.SetpointTopic, heater.FormatSetpoint(*st.Setpoint))
	}
	s.publish(s.cfg.PowerTopic, heater.FormatPower(st.PowerOn))
	s.publishAmbient(st.Ambient)
	return nil
}

// Run advances the model every Interval and publishes the new reading.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.publishAmbient(s.Step(s.cfg.Interval))
		}
	}
}

// Step advances the model by dt and returns the ambient temperature.
func (s *Simulator) Step(dt time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Step(s.setpoint, s.powerOn, dt)
}

// onSetpoint accepts the command and confirms it, retained, when it changed the device.
// Repeated values are not confirmed again so an echo never loops.
func (s *Simulator) onSetpoint(payload string) {
	v, err := heater.ParseSetpoint(payload)
	if err != nil {
		s.log.Warnw("simulator: ignoring setpoint command", "payload", payload, "err", err)
		return
	}
	s.mu.Lock()
	changed := s.setpoint == nil || *s.setpoint != v
	s.setpoint = &v
	s.mu.Unlock()
	if changed {
		s.log.Debugw("simulator: setpoint", "value", v)
		s.publish(s.cfg.SetpointTopic, heater.FormatSetpoint(v))
	}
}

func (s *Simulator) onPower(payload string) {
	on, err := heater.ParsePowerPayload(payload)
	if err != nil {
		s.log.Warnw("simulator: ignoring power command", "payload", payload, "err", err)
		return
	}
	s.mu.Lock()
	changed := s.powerOn != on
	s.powerOn = on
	s.mu.Unlock()
	if changed {
		s.log.Debugw("simulator: power", "on", on)
		s.publish(s.cfg.PowerTopic, heater.FormatPower(on))
	}
}

func (s *Simulator) publishAmbient(v float64) {
	s.publish(s.cfg.SensorTopic, s.sensorPayload(v))
}

func (s *Simulator) sensorPayload(v float64) string {
	raw := strconv.FormatFloat(v, 'f', 2, 64)
	if s.cfg.SensorField == "" {
		return raw
	}
	b, err := json.Marshal(map[string]json.Number{s.cfg.SensorField: json.Number(raw)})
	if err != nil {
		return raw
	}
	return string(b)
}

func (s *Simulator) publish(topic, payload string) {
	if err := s.tr.PublishRetained(topic, payload); err != nil {
		s.log.Errorw("simulator: publish failed", "topic", topic, "err", err)
	}
}
