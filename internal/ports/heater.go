package ports

import "github.com/Agrid-Dev/redwire/internal/heater"

// HeaterService is the control-plane port used by controllers (HTTP/Modbus/etc).
// Requests are fire-and-forget: rejected values are logged by the heater, not returned.
type HeaterService interface {
	Get() heater.Snapshot
	SetTemperature(float64)
	SetMode(heater.Mode)
	OnChange(func(heater.Snapshot)) (remove func())
}

// Transport is the pub/sub capability the heater talks to the device through.
type Transport interface {
	Publish(topic, payload string) error
	Subscribe(topic string, handler func(payload string)) error
}

var _ HeaterService = (*heater.Heater)(nil)
