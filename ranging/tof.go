package ranging

import (
	"math/bits"

	"uwbnode.dev/dwtime"
)

// TimeOfFlight computes the asymmetric two-way ranging time of
// flight of the last exchange with d, as seen by the anchor. Every
// interval is wrapped before use, so the exchange may straddle a
// counter overflow.
func TimeOfFlight(d *Device) dwtime.Time {
	round1 := d.Round.Wrap()
	reply1 := (d.PollAckSent - d.PollReceived).Wrap()
	round2 := (d.RangeReceived - d.PollAckSent).Wrap()
	reply2 := d.Reply.Wrap()
	return asymmetricTOF(round1, reply1, round2, reply2)
}

// asymmetricTOF evaluates
//
//	(round1·round2 - reply1·reply2) / (round1+round2+reply1+reply2)
//
// for wrapped intervals. The products need up to 80 bits.
func asymmetricTOF(round1, reply1, round2, reply2 dwtime.Time) dwtime.Time {
	den := uint64(round1 + round2 + reply1 + reply2)
	if den == 0 {
		return 0
	}
	ahi, alo := bits.Mul64(uint64(round1), uint64(round2))
	bhi, blo := bits.Mul64(uint64(reply1), uint64(reply2))
	neg := ahi < bhi || (ahi == bhi && alo < blo)
	if neg {
		ahi, alo, bhi, blo = bhi, blo, ahi, alo
	}
	lo, borrow := bits.Sub64(alo, blo, 0)
	hi, _ := bits.Sub64(ahi, bhi, borrow)
	// hi < 2^16 and den >= 1, so the quotient fits 64 bits unless the
	// intervals are inconsistent.
	qhi := hi / den
	q, _ := bits.Div64(hi%den, lo, den)
	if qhi != 0 || q > uint64(dwtime.Max) {
		q = uint64(dwtime.Max)
	}
	if neg {
		return -dwtime.Time(q)
	}
	return dwtime.Time(q)
}
