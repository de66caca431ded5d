package heater

import "fmt"

// Mode is an integer enum. The heater only knows off and heat today.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeOff
	ModeHeat
)

// Modes lists the modes the heater accepts, in display order.
var Modes = []Mode{ModeOff, ModeHeat}

func (m Mode) Valid() bool {
	return m == ModeOff || m == ModeHeat
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeat:
		return "heat"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "heat":
		return ModeHeat, nil
	default:
		return ModeUnknown, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Availability is derived from the outcome of the last sensor update.
type Availability int

const (
	Unavailable Availability = iota
	Available
)

func (a Availability) String() string {
	if a == Available {
		return "available"
	}
	return "unavailable"
}

// Channel identifies where a message or request entered the heater.
type Channel int

const (
	ChannelCommand Channel = iota
	ChannelSetpoint
	ChannelPower
	ChannelSensor
)

func (c Channel) String() string {
	switch c {
	case ChannelCommand:
		return "command"
	case ChannelSetpoint:
		return "setpoint"
	case ChannelPower:
		return "power"
	case ChannelSensor:
		return "sensor"
	default:
		return "unknown"
	}
}

// Reading is one value-change event of the temperature sensor.
// Present is false when the sensor reports no value at all (removed or unknown entity).
type Reading struct {
	Value   string
	Present bool
}

// NewReading returns a present reading carrying v.
func NewReading(v string) Reading {
	return Reading{Value: v, Present: true}
}

// Snapshot is a point-in-time copy of the device state.
// Nil pointers mean the value has never been set.
type Snapshot struct {
	Name               string
	TargetTemperature  *int
	PowerOn            bool
	AmbientTemperature *float64
	Available          bool
	MinTemp            int
	MaxTemp            int
}

func (s Snapshot) Mode() Mode {
	if s.PowerOn {
		return ModeHeat
	}
	return ModeOff
}

func (s Snapshot) Availability() Availability {
	if s.Available {
		return Available
	}
	return Unavailable
}
