package simulator

import "time"

type RegulatorParams struct {
	HeatingRate       float64 // °C per second gained while the element is on
	TriggerHysteresis float64 // heating starts below setpoint - TriggerHysteresis
	TargetHysteresis  float64 // heating stops at setpoint + TargetHysteresis
}

func (p *RegulatorParams) Validate() error {
	if p.TriggerHysteresis < 0 || p.TargetHysteresis < 0 {
		return ErrInvalidHysteresis
	}
	if p.HeatingRate < 0 {
		return ErrInvalidHeatingRate
	}
	return nil
}

type HeatLossParams struct {
	OutdoorTemperature float64
	Coefficient        float64 // >= 0, represents conductivity. 0 for no loss.
}

func (p *HeatLossParams) Validate() error {
	if p.Coefficient < 0 {
		return ErrNegativeHeatLossCoefficient
	}
	return nil
}

// DeltaTemperature is the change caused by exchange with the outdoor temperature over dt.
func (p HeatLossParams) DeltaTemperature(indoor float64, dt time.Duration) float64 {
	return p.Coefficient * (p.OutdoorTemperature - indoor) * dt.Seconds()
}

// Model is the physical side of a heater: a room losing heat to the outside and an
// on/off heating element regulated with hysteresis around the setpoint.
// It is not safe for concurrent use.
type Model struct {
	reg     RegulatorParams
	loss    HeatLossParams
	ambient float64
	heating bool
}

func NewModel(ambient float64, reg RegulatorParams, loss HeatLossParams) (*Model, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if err := loss.Validate(); err != nil {
		return nil, err
	}
	return &Model{reg: reg, loss: loss, ambient: ambient}, nil
}

func (m *Model) Ambient() float64 { return m.ambient }
func (m *Model) Heating() bool    { return m.heating }

// activate switches the element on or off. A device that is off, or has no
// setpoint, never heats.
func (m *Model) activate(setpoint *int, powerOn bool) {
	if !powerOn || setpoint == nil {
		m.heating = false
		return
	}
	sp := float64(*setpoint)
	if !m.heating && m.ambient < sp-m.reg.TriggerHysteresis {
		m.heating = true
	}
	if m.heating && m.ambient >= sp+m.reg.TargetHysteresis {
		m.heating = false
	}
}

// Step advances the model by dt and returns the new ambient temperature.
func (m *Model) Step(setpoint *int, powerOn bool, dt time.Duration) float64 {
	m.activate(setpoint, powerOn)
	delta := m.loss.DeltaTemperature(m.ambient, dt)
	if m.heating {
		delta += m.reg.HeatingRate * dt.Seconds()
	}
	m.ambient += delta
	return m.ambient
}
