package heater

import "errors"

var (
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrOutOfRange        = errors.New("temperature out of range")
	ErrInvalidReading    = errors.New("invalid sensor reading")
	ErrSensorUnavailable = errors.New("sensor unavailable")

	ErrInvalidMode   = errors.New("invalid mode")
	ErrInvalidBounds = errors.New("invalid min/max temperature")
	ErrMissingTopic  = errors.New("missing topic")
)
