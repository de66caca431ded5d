// Package metrics exposes the heater state and dropped messages to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Agrid-Dev/redwire/internal/heater"
)

type Collector struct {
	registry *prometheus.Registry

	target    prometheus.Gauge
	powerOn   prometheus.Gauge
	ambient   prometheus.Gauge
	available prometheus.Gauge
	changes   prometheus.Counter
	rejected  *prometheus.CounterVec
}

// New builds a collector on its own registry, so no Go runtime metrics leak in.
func New(device string) *Collector {
	labels := prometheus.Labels{"device": device}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "redwire_target_temperature_celsius",
			Help:        "Target temperature of the heater",
			ConstLabels: labels,
		}),
		powerOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "redwire_power_on",
			Help:        "1 when the heater is commanded on",
			ConstLabels: labels,
		}),
		ambient: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "redwire_ambient_temperature_celsius",
			Help:        "Last valid ambient temperature reading",
			ConstLabels: labels,
		}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "redwire_available",
			Help:        "1 when the last sensor update was valid",
			ConstLabels: labels,
		}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "redwire_state_changes_total",
			Help:        "State change notifications emitted",
			ConstLabels: labels,
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "redwire_rejected_total",
			Help:        "Messages and requests dropped, by channel and reason",
			ConstLabels: labels,
		}, []string{"channel", "reason"}),
	}
	c.registry.MustRegister(c.target, c.powerOn, c.ambient, c.available, c.changes, c.rejected)
	return c
}

// Observe is registered with heater.OnChange.
func (c *Collector) Observe(s heater.Snapshot) {
	c.changes.Inc()
	if s.TargetTemperature != nil {
		c.target.Set(float64(*s.TargetTemperature))
	}
	if s.AmbientTemperature != nil {
		c.ambient.Set(*s.AmbientTemperature)
	}
	c.powerOn.Set(boolToFloat(s.PowerOn))
	c.available.Set(boolToFloat(s.Available))
}

// Rejected is registered with heater.WithRejectHook.
func (c *Collector) Rejected(ch heater.Channel, err error) {
	c.rejected.WithLabelValues(ch.String(), Reason(err)).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Reason classifies err into a low-cardinality label value.
func Reason(err error) string {
	switch {
	case errors.Is(err, heater.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, heater.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, heater.ErrInvalidReading):
		return "invalid_reading"
	case errors.Is(err, heater.ErrSensorUnavailable):
		return "sensor_unavailable"
	case errors.Is(err, heater.ErrInvalidMode):
		return "invalid_mode"
	default:
		return "transport"
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
