package heater

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Canonical power payloads, in both directions.
const (
	PayloadOff = "0"
	PayloadOn  = "1"
)

// ParseSetpoint parses a setpoint payload as a decimal integer.
func ParseSetpoint(payload string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, fmt.Errorf("%w: setpoint %q", ErrInvalidPayload, payload)
	}
	return v, nil
}

// FormatSetpoint renders the outbound setpoint payload: a bare decimal integer.
func FormatSetpoint(v int) string {
	return strconv.Itoa(v)
}

// ParsePowerPayload accepts only PayloadOn and PayloadOff.
func ParsePowerPayload(payload string) (bool, error) {
	switch payload {
	case PayloadOn:
		return true, nil
	case PayloadOff:
		return false, nil
	default:
		return false, fmt.Errorf("%w: power %q", ErrInvalidPayload, payload)
	}
}

// FormatPower renders the outbound power payload.
func FormatPower(on bool) string {
	if on {
		return PayloadOn
	}
	return PayloadOff
}

// ParseSensorReading parses a sensor value. Empty, non-numeric and non-finite values fail.
func ParseSensorReading(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidReading)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReading, raw)
	}
	return v, nil
}

// CheckRange rejects values strictly outside [min, max]. It never clamps.
func CheckRange(v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrOutOfRange, v, min, max)
	}
	return nil
}

// RoundHalfUp rounds a user-requested temperature to whole degrees, halves going up.
func RoundHalfUp(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: temperature %v", ErrInvalidPayload, v)
	}
	r := math.Floor(v + 0.5)
	if r < math.MinInt32 || r > math.MaxInt32 {
		return 0, fmt.Errorf("%w: temperature %v", ErrOutOfRange, v)
	}
	return int(r), nil
}
