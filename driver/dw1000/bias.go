package dw1000

import (
	"uwbnode.dev/dwtime"
)

// Range bias in millimeters (2 mm for the 900 MHz tables) for
// received power from -61 dBm down to -95 dBm in 2 dBm steps. Entries
// before the zero index are negative.
type biasTable struct {
	zero   int
	shift  uint
	values [18]uint8
}

var (
	bias500MHz16 = biasTable{10, 0, [18]uint8{198, 187, 179, 163, 143, 127, 109, 84, 59, 31, 0, 36, 65, 84, 97, 106, 110, 112}}
	bias500MHz64 = biasTable{8, 0, [18]uint8{110, 105, 100, 93, 82, 69, 51, 27, 0, 21, 35, 42, 49, 62, 71, 76, 81, 86}}
	bias900MHz16 = biasTable{7, 1, [18]uint8{137, 122, 105, 88, 69, 47, 25, 0, 21, 48, 79, 105, 127, 147, 160, 169, 178, 197}}
	bias900MHz64 = biasTable{7, 1, [18]uint8{147, 133, 117, 99, 75, 50, 29, 0, 24, 45, 63, 76, 87, 98, 116, 122, 132, 142}}
)

func (b *biasTable) at(i int) int16 {
	v := int16(b.values[i]) << b.shift
	if i < b.zero {
		return -v
	}
	return v
}

// rangeBias returns the timestamp correction for a frame received
// with rxPower dBm. It is zero for unknown PRFs.
func rangeBias(rxPower float64, ch Channel, prf PRF) dwtime.Time {
	var table *biasTable
	switch {
	case ch.wide() && prf == PRF16MHz:
		table = &bias900MHz16
	case ch.wide() && prf == PRF64MHz:
		table = &bias900MHz64
	case prf == PRF16MHz:
		table = &bias500MHz16
	case prf == PRF64MHz:
		table = &bias500MHz64
	default:
		return 0
	}
	base := -(rxPower + 61) * 0.5
	low := int(base)
	high := low + 1
	if low <= 0 {
		low, high = 0, 0
	} else if high >= 17 {
		low, high = 17, 17
	}
	lo, hi := float64(table.at(low)), float64(table.at(high))
	mm := lo + (base-float64(low))*(hi-lo)
	return dwtime.Time(int16(mm * dwtime.DistanceOfRadioInv * 0.001))
}
