package heater

import "fmt"

// SetTemperature requests a new setpoint. The value is rounded half up to whole
// degrees; out-of-range or non-finite requests are logged and ignored.
// On success the command is published and the target is updated optimistically.
func (h *Heater) SetTemperature(requested float64) {
	v, err := RoundHalfUp(requested)
	if err == nil {
		err = CheckRange(v, h.cfg.MinTemp, h.cfg.MaxTemp)
	}
	if err != nil {
		h.log.Warnw("temperature request rejected", "requested", requested, "err", err)
		h.reject(ChannelCommand, err)
		return
	}

	h.updateAfter(func() { h.publish(h.cfg.SetpointTopic, FormatSetpoint(v)) }, func(st *state) {
		st.target = &v
	})
}

// SetMode switches the heater between off and heat.
func (h *Heater) SetMode(m Mode) {
	switch m {
	case ModeHeat:
		h.SetPower(true)
	case ModeOff:
		h.SetPower(false)
	default:
		err := fmt.Errorf("%w: %v", ErrInvalidMode, m)
		h.log.Warnw("mode request rejected", "mode", int(m), "err", err)
		h.reject(ChannelCommand, err)
	}
}

func (h *Heater) SetPower(on bool) {
	h.updateAfter(func() { h.publish(h.cfg.PowerTopic, FormatPower(on)) }, func(st *state) {
		st.powerOn = on
		h.ensureTarget(st)
	})
}

func (h *Heater) TurnOn() {
	h.SetPower(true)
}

func (h *Heater) TurnOff() {
	h.SetPower(false)
}

// publish hands the command to the transport without waiting for the device.
// A failure is reported but the optimistic state is kept: the next confirmation
// from the device is the ground truth.
func (h *Heater) publish(topic, payload string) {
	if err := h.pub.Publish(topic, payload); err != nil {
		h.log.Errorw("publish command failed", "topic", topic, "payload", payload, "err", err)
		h.reject(ChannelCommand, err)
	}
}
