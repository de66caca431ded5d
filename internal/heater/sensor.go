package heater

import (
	"context"
	"fmt"
)

// HandleSensorUpdate folds one sensor event into the ambient temperature and availability.
// A bad reading marks the heater unavailable but keeps the last good ambient value.
func (h *Heater) HandleSensorUpdate(r Reading) {
	if !r.Present {
		h.log.Warnw("temperature sensor has no reading", "err", ErrSensorUnavailable)
		h.reject(ChannelSensor, ErrSensorUnavailable)
		h.update(func(st *state) {
			st.available = false
		})
		return
	}

	v, err := ParseSensorReading(r.Value)
	if err != nil {
		h.log.Warnw("temperature sensor reading rejected", "value", r.Value, "err", err)
		h.reject(ChannelSensor, err)
		h.update(func(st *state) {
			st.available = false
		})
		return
	}

	h.update(func(st *state) {
		st.ambient = &v
		st.available = true
	})
}

// AttachSensor reads the sensor once, then follows its updates.
func (h *Heater) AttachSensor(ctx context.Context, feed SensorFeed) error {
	r, err := feed.Current(ctx)
	if err != nil {
		h.log.Warnw("initial sensor read failed", "err", err)
		r = Reading{}
	}
	h.HandleSensorUpdate(r)

	if err := feed.Subscribe(h.HandleSensorUpdate); err != nil {
		return fmt.Errorf("subscribe sensor: %w", err)
	}
	return nil
}
