// Package actuator is the output side of the rig: it maps blended mixer
// values onto physical servo channels.
//
// A Bank holds one Binding per actuator. Each write is remapped, checked
// against the binding's calibration range and handed to a Driver. Failures
// are contained here: an out-of-range value or a driver error is logged,
// counted and skipped, and the servo keeps its previous pose.
package actuator

import "fmt"

// RemapFunc converts a mixer value into the value sent to the driver.
type RemapFunc func(value float64) float64

// Range is an inclusive calibration range for remapped values.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// String returns the range as "[min, max]".
func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// Binding describes one registered actuator.
type Binding struct {
	// ID is the servo channel and the key used in clip tracks.
	ID int

	// Name is a human label, e.g. "shoulder.R".
	Name string

	// Remap is applied before the range check. Nil means identity.
	Remap RemapFunc

	// Range rejects remapped values outside calibration. Nil disables the check.
	Range *Range
}

// RemapLinear returns a RemapFunc mapping [fromMin, fromMax] linearly onto
// [toMin, toMax]. Values outside the source range are extrapolated, so an
// inverted or narrowed mapping still trips the calibration range.
func RemapLinear(fromMin, fromMax, toMin, toMax float64) RemapFunc {
	span := fromMax - fromMin
	if span == 0 {
		return func(float64) float64 { return toMin }
	}
	return func(v float64) float64 {
		return (v-fromMin)/span*(toMax-toMin) + toMin
	}
}

// Identity leaves values unchanged.
func Identity(v float64) float64 { return v }
