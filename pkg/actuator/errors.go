package actuator

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrUnknownActuator is returned when writing to an id that was never registered.
	ErrUnknownActuator = errors.New("actuator: unknown actuator")

	// ErrDuplicateActuator is returned when registering an id twice.
	ErrDuplicateActuator = errors.New("actuator: already registered")

	// ErrOutOfRange is returned when a remapped value is outside calibration.
	ErrOutOfRange = errors.New("actuator: value outside calibration range")

	// ErrRemapFailed is returned when a binding's remap function panics.
	ErrRemapFailed = errors.New("actuator: remap failed")
)

// RangeError reports a value rejected by a binding's calibration range.
type RangeError struct {
	// ID is the actuator id.
	ID int

	// Value is the mixer value before remapping.
	Value float64

	// Remapped is the value that failed the check.
	Remapped float64

	// Range is the calibration range.
	Range Range
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("actuator %d: value %.2f (remapped %.2f) outside %s", e.ID, e.Value, e.Remapped, e.Range)
}

// Unwrap returns ErrOutOfRange so callers can use errors.Is.
func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}
