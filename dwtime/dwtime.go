// Package dwtime implements the 40-bit timestamps of the DW1000
// system clock.
//
// A tick is 1/(128*499.2 MHz), about 15.65 picoseconds, and the
// hardware counter wraps at 2^40 ticks (about 17.2 seconds).
// Differences of raw timestamps must be reduced with [Time.Wrap]
// before use.
package dwtime

import (
	"fmt"
	"math"
)

// Time is a signed tick count. Values outside [0, Overflow) are
// intermediate results of arithmetic.
type Time int64

const (
	// Overflow is the period of the hardware counter.
	Overflow Time = 0x10000000000
	// Max is the largest value the hardware reports.
	Max Time = 0xffffffffff
	// Length is the size of a timestamp on the wire.
	Length = 5
)

const (
	// Resolution is the tick length in microseconds.
	Resolution = 0.000015650040064103
	// ResolutionInv is the number of ticks per microsecond.
	ResolutionInv = 63897.6
	// DistanceOfRadio is the distance in meters radio travels
	// during one tick.
	DistanceOfRadio = 0.0046917639786159
	// DistanceOfRadioInv is the number of ticks per meter.
	DistanceOfRadioInv = 213.139451293
)

// Unit scales a value to microseconds.
type Unit float64

const (
	Second      Unit = 1e6
	Millisecond Unit = 1e3
	Microsecond Unit = 1
	Nanosecond  Unit = 1e-3
)

// New converts v in the given unit to ticks, truncating toward zero.
func New(v float64, u Unit) Time {
	return Time(v * float64(u) * ResolutionInv)
}

// Microseconds returns us as a tick count.
func Microseconds(us float64) Time {
	return New(us, Microsecond)
}

// FromBytes decodes a little-endian timestamp from the first
// Length bytes of b.
func FromBytes(b []byte) Time {
	_ = b[Length-1]
	var t Time
	for i := Length - 1; i >= 0; i-- {
		t = t<<8 | Time(b[i])
	}
	return t
}

// PutBytes encodes the low 40 bits of t little-endian into b.
func (t Time) PutBytes(b []byte) {
	_ = b[Length-1]
	for i := 0; i < Length; i++ {
		b[i] = byte(t >> (8 * i))
	}
}

// Bytes returns the wire form of t.
func (t Time) Bytes() [Length]byte {
	var b [Length]byte
	t.PutBytes(b[:])
	return b
}

// Wrap reduces t into [0, Overflow).
func (t Time) Wrap() Time {
	return ((t % Overflow) + Overflow) % Overflow
}

// Valid reports whether t is a timestamp the hardware could report.
func (t Time) Valid() bool {
	return t >= 0 && t <= Max
}

// Micros returns t in microseconds.
func (t Time) Micros() float64 {
	return float64(t%Overflow) * Resolution
}

// Meters returns the distance radio travels during t.
func (t Time) Meters() float64 {
	return float64(t%Overflow) * DistanceOfRadio
}

// Scale multiplies t by f, truncating.
func (t Time) Scale(f float64) Time {
	return Time(math.Trunc(float64(t) * f))
}

// Div divides t by f, truncating.
func (t Time) Div(f float64) Time {
	return Time(math.Trunc(float64(t) / f))
}

func (t Time) String() string {
	return fmt.Sprintf("%d (%.3f us)", int64(t), t.Micros())
}
