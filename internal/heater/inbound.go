package heater

// HandleSetpointMessage applies a setpoint reported by the device.
// The last valid message wins, even over a newer optimistic write.
func (h *Heater) HandleSetpointMessage(payload string) {
	v, err := ParseSetpoint(payload)
	if err == nil {
		err = CheckRange(v, h.cfg.MinTemp, h.cfg.MaxTemp)
	}
	if err != nil {
		h.log.Warnw("setpoint message dropped", "topic", h.cfg.SetpointTopic, "payload", payload, "err", err)
		h.reject(ChannelSetpoint, err)
		return
	}

	h.update(func(st *state) {
		st.target = &v
	})
}

// HandlePowerMessage applies a power state reported by the device.
func (h *Heater) HandlePowerMessage(payload string) {
	on, err := ParsePowerPayload(payload)
	if err != nil {
		h.log.Warnw("power message dropped", "topic", h.cfg.PowerTopic, "payload", payload, "err", err)
		h.reject(ChannelPower, err)
		return
	}

	h.update(func(st *state) {
		st.powerOn = on
		h.ensureTarget(st)
	})
}
