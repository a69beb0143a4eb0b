package ranging

import (
	"testing"

	"uwbnode.dev/dwtime"
)

func TestTimeOfFlight(t *testing.T) {
	const tof = 1066
	reply1 := dwtime.Microseconds(3000)
	reply2 := dwtime.Microseconds(3500)
	tests := []struct {
		name string
		// start is the anchor receive time of the poll.
		start dwtime.Time
	}{
		{"plain", 1_000_000},
		{"wrap after poll", dwtime.Max - 1000},
		{"wrap after poll ack", dwtime.Max - reply1 - 10},
	}
	for _, test := range tests {
		d := &Device{
			PollReceived: test.start,
			PollAckSent:  test.start + reply1,
			// Tag side intervals.
			Round: 2*tof + reply1,
			Reply: reply2,
		}
		d.RangeReceived = d.PollAckSent + 2*tof + reply2
		// Timestamps as reported by the hardware.
		d.PollAckSent = d.PollAckSent.Wrap()
		d.RangeReceived = d.RangeReceived.Wrap()
		if got := TimeOfFlight(d); got != tof {
			t.Errorf("%s: TimeOfFlight = %d, want %d", test.name, got, tof)
		}
	}
}

func TestAsymmetricTOF(t *testing.T) {
	tests := []struct {
		round1, reply1, round2, reply2 dwtime.Time
		want                           dwtime.Time
	}{
		// Symmetric replies reduce to (round-reply)/2.
		{round1: 300, reply1: 100, round2: 300, reply2: 100, want: 100},
		{round1: 0, reply1: 0, round2: 0, reply2: 0, want: 0},
		// Inconsistent intervals give negative flight times.
		{round1: 100, reply1: 300, round2: 100, reply2: 300, want: -100},
		// Products beyond 64 bits.
		{
			round1: dwtime.Microseconds(100_000) + 20, reply1: dwtime.Microseconds(100_000),
			round2: dwtime.Microseconds(100_000) + 20, reply2: dwtime.Microseconds(100_000),
			want: 10,
		},
	}
	for _, test := range tests {
		got := asymmetricTOF(test.round1, test.reply1, test.round2, test.reply2)
		if got != test.want {
			t.Errorf("asymmetricTOF(%d, %d, %d, %d) = %d, want %d",
				test.round1, test.reply1, test.round2, test.reply2, got, test.want)
		}
	}
}
