package simulator

import "errors"

var (
	ErrInvalidHysteresis           = errors.New("hysteresis values must be greater or equal to zero")
	ErrInvalidHeatingRate          = errors.New("heating rate must be greater or equal to zero")
	ErrNegativeHeatLossCoefficient = errors.New("heat loss coefficient must be greater or equal to zero")
	ErrInvalidInterval             = errors.New("simulation interval must be positive")
)
