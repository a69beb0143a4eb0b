package ranging

import (
	"math"
	"testing"
	"time"

	"uwbnode.dev/driver/dw1000"
	"uwbnode.dev/dwtime"
	"uwbnode.dev/mac"
)

type node struct {
	sim *dw1000.Simulator
	eng *Engine
}

func newNode(t *testing.T, air *dw1000.Air, cfg Config, x float64, setup ...func(*dw1000.Simulator)) *node {
	t.Helper()
	sim := air.NewSimulator(x, 0, 0)
	for _, f := range setup {
		f(sim)
	}
	eng := New(dw1000.New(sim, nil), sim, cfg, nil)
	if err := eng.Start(); err != nil {
		t.Fatalf("%v %v: %v", cfg.Role, cfg.Address, err)
	}
	return &node{sim: sim, eng: eng}
}

// run advances the air in millisecond steps, ticking the nodes after
// each step.
func run(air *dw1000.Air, d time.Duration, nodes ...*node) {
	for range d / time.Millisecond {
		air.Advance(time.Millisecond)
		for _, n := range nodes {
			n.eng.Tick()
		}
	}
}

func countSent(sim *dw1000.Simulator, typ MessageType) int {
	n := 0
	for _, f := range sim.Sent() {
		if DetectMessageType(f) == typ {
			n++
		}
	}
	return n
}

func TestParseRole(t *testing.T) {
	for _, r := range []Role{Tag, Anchor} {
		got, err := ParseRole(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %v, %v", r.String(), got, err)
		}
	}
	if _, err := ParseRole("relay"); err == nil {
		t.Error("ParseRole accepted an unknown role")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Address: 0x7D00}
	cfg.setDefaults()
	if cfg.NetworkID != DefaultNetworkID || cfg.RangeInterval != DefaultRangeInterval ||
		cfg.ReplyDelay != DefaultReplyDelay || cfg.Capacity != DefaultCapacity {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.EUI.Short() != cfg.Address {
		t.Errorf("derived EUI %v does not embed address %v", cfg.EUI, cfg.Address)
	}
}

func TestDiscovery(t *testing.T) {
	air := dw1000.NewAir(1)
	anchor := newNode(t, air, Config{Role: Anchor, Address: 0x7D00}, 0)
	tag := newNode(t, air, Config{Role: Tag, Address: 0x0101}, 3)
	var found []mac.ShortAddr
	var blinks int
	tag.eng.SetListener(ListenerFuncs{
		OnNewDevice: func(d *Device) { found = append(found, d.Short) },
	})
	anchor.eng.SetListener(ListenerFuncs{
		OnBlinkDevice: func(d *Device) { blinks++ },
	})
	run(air, 8*time.Second, anchor, tag)
	if len(found) != 1 || found[0] != 0x7D00 {
		t.Errorf("tag found anchors %v", found)
	}
	if blinks < 2 {
		t.Errorf("anchor saw %d blinks", blinks)
	}
	// Later blinks list the anchor, which must not answer again.
	if n := countSent(anchor.sim, RangingInit); n != 1 {
		t.Errorf("anchor sent %d Ranging-Init messages", n)
	}
	if tag.eng.Directory().Len() != 1 {
		t.Errorf("tag knows %d anchors", tag.eng.Directory().Len())
	}
	if anchor.eng.Directory().Find(0x0101) == nil {
		t.Error("anchor did not add the polling tag")
	}
}

func TestRoundTrip(t *testing.T) {
	const dist = 5
	air := dw1000.NewAir(2)
	// Let both counters wrap during the test.
	anchor := newNode(t, air, Config{Role: Anchor, Address: 0x7D00}, 0, func(s *dw1000.Simulator) {
		s.SetMillisOffset(math.MaxUint32 - 3000)
	})
	tag := newNode(t, air, Config{Role: Tag, Address: 0x0101, Payload: 1.5}, dist, func(s *dw1000.Simulator) {
		s.SetClockOffset(dwtime.Overflow - dwtime.New(2, dwtime.Second))
	})

	var ranges []Device
	anchor.eng.SetListener(ListenerFuncs{
		OnNewRange: func(d *Device) { ranges = append(ranges, *d) },
	})
	var sent int
	tag.eng.SetListener(ListenerFuncs{
		OnRangeSent: func(d *Device) { sent++ },
	})
	run(air, 6*time.Second, anchor, tag)
	if len(ranges) < 5 {
		t.Fatalf("%d ranges, want at least 5", len(ranges))
	}
	if sent < len(ranges) {
		t.Errorf("%d ranges reported but only %d sent", len(ranges), sent)
	}
	for _, d := range ranges {
		if d.Short != 0x0101 {
			t.Errorf("range to %v", d.Short)
		}
		if math.Abs(d.Range-dist) > 0.1 {
			t.Errorf("range %.3f m, want %d m", d.Range, dist)
		}
		if d.Payload != 1.5 {
			t.Errorf("payload %v, want 1.5", d.Payload)
		}
		reply := (d.PollAckSent - d.PollReceived).Wrap().Micros()
		if reply < 3000 || reply > 4100 {
			t.Errorf("Poll-Ack sent %.0f us after the Poll", reply)
		}
	}
}

func TestRangeReport(t *testing.T) {
	const dist = 12
	air := dw1000.NewAir(3)
	anchor := newNode(t, air, Config{Role: Anchor, Address: 0x7D00, RangeReport: true}, 0)
	tag := newNode(t, air, Config{Role: Tag, Address: 0x0101}, dist)
	var reports []float64
	tag.eng.SetListener(ListenerFuncs{
		OnNewRange: func(d *Device) { reports = append(reports, d.Range) },
	})
	run(air, 4*time.Second, anchor, tag)
	if len(reports) == 0 {
		t.Fatal("no range reports")
	}
	for _, r := range reports {
		if math.Abs(r-dist) > 0.1 {
			t.Errorf("reported range %.3f m, want %d m", r, dist)
		}
	}
	// The last report may still be in flight.
	if n := countSent(anchor.sim, RangeReport); n-len(reports) > 1 || n < len(reports) {
		t.Errorf("anchor sent %d reports, tag received %d", n, len(reports))
	}
}

func TestRangeSentAddressed(t *testing.T) {
	air := dw1000.NewAir(8)
	anchor := newNode(t, air, Config{Role: Anchor, Address: 0x7D00}, 0)
	tag := newNode(t, air, Config{Role: Tag, Address: 0x0101}, 5)
	for range 8 {
		if tag.eng.Directory().Find(0x7D00) != nil {
			break
		}
		run(air, 500*time.Millisecond, anchor, tag)
	}
	if tag.eng.Directory().Find(0x7D00) == nil {
		t.Fatal("tag did not discover the anchor")
	}
	// An anchor that never answers Polls.
	silent := Device{Short: 0x7E00}
	silent.NoteActivity(tag.sim.Millis())
	tag.eng.Directory().Add(silent, nil)
	sent := make(map[mac.ShortAddr]int)
	tag.eng.SetListener(ListenerFuncs{
		OnRangeSent: func(d *Device) { sent[d.Short]++ },
	})
	run(air, 1500*time.Millisecond, anchor, tag)
	if sent[0x7D00] == 0 {
		t.Fatal("no Range sent to the anchor")
	}
	if n := sent[0x7E00]; n != 0 {
		t.Errorf("%d Range notifications for the silent anchor", n)
	}
	d := tag.eng.Directory().Find(0x7E00)
	if d == nil {
		t.Fatal("silent anchor removed")
	}
	if d.RangeServed || d.RangeSent != 0 {
		t.Errorf("silent anchor served %v, range sent at %v", d.RangeServed, d.RangeSent)
	}
}

func TestTwoAnchors(t *testing.T) {
	air := dw1000.NewAir(4)
	a1 := newNode(t, air, Config{Role: Anchor, Address: 0x7D00}, 0)
	a2 := newNode(t, air, Config{Role: Anchor, Address: 0x7E00}, 10)
	tag := newNode(t, air, Config{Role: Tag, Address: 0x0101}, 4)
	got := make(map[mac.ShortAddr][]float64)
	for _, a := range []*node{a1, a2} {
		addr := a.eng.Address()
		a.eng.SetListener(ListenerFuncs{
			OnNewRange: func(d *Device) { got[addr] = append(got[addr], d.Range) },
		})
	}
	run(air, 8*time.Second, a1, a2, tag)
	if tag.eng.Directory().Len() != 2 {
		t.Fatalf("tag knows %d anchors", tag.eng.Directory().Len())
	}
	want := map[mac.ShortAddr]float64{0x7D00: 4, 0x7E00: 6}
	for addr, dist := range want {
		if len(got[addr]) == 0 {
			t.Errorf("no ranges at anchor %v", addr)
		}
		for _, r := range got[addr] {
			if math.Abs(r-dist) > 0.1 {
				t.Errorf("anchor %v: range %.3f m, want %.0f m", addr, r, dist)
			}
		}
	}
}

func TestInactiveTag(t *testing.T) {
	air := dw1000.NewAir(5)
	anchor := newNode(t, air, Config{Role: Anchor, Address: 0x7D00}, 0)
	tag := newNode(t, air, Config{Role: Tag, Address: 0x0101}, 2)
	var inactive []mac.ShortAddr
	anchor.eng.SetListener(ListenerFuncs{
		OnInactiveDevice: func(d *Device) { inactive = append(inactive, d.Short) },
	})
	run(air, 3*time.Second, anchor, tag)
	if anchor.eng.Directory().Len() != 1 {
		t.Fatalf("anchor knows %d tags", anchor.eng.Directory().Len())
	}
	// The tag goes silent.
	run(air, 6*time.Second, anchor)
	if len(inactive) != 1 || inactive[0] != 0x0101 {
		t.Errorf("inactive devices %v", inactive)
	}
	if anchor.eng.Directory().Len() != 0 {
		t.Errorf("anchor still knows %d tags", anchor.eng.Directory().Len())
	}
	if !anchor.sim.Listening() {
		t.Error("anchor receiver is off")
	}
}

func TestPollAckTimeout(t *testing.T) {
	air := dw1000.NewAir(6)
	tag := newNode(t, air, Config{Role: Tag, Address: 0x0101}, 0)
	ghost := Device{Short: 0x7D00}
	ghost.NoteActivity(tag.sim.Millis())
	tag.eng.Directory().Add(ghost, nil)
	var timeouts int
	tag.eng.SetListener(ListenerFuncs{
		OnTimeoutExtension: func() { timeouts++ },
	})
	run(air, 1500*time.Millisecond, tag)
	if countSent(tag.sim, Poll) == 0 {
		t.Fatal("tag sent no Poll")
	}
	if timeouts != 1 {
		t.Errorf("%d timeouts, want 1", timeouts)
	}
	if r := tag.sim.Resets(); r != 2 {
		t.Errorf("%d transceiver resets, want 2", r)
	}
	if !tag.sim.Listening() {
		t.Error("receiver off after timeout")
	}
}

func TestRangingInitLong(t *testing.T) {
	air := dw1000.NewAir(7)
	tag := newNode(t, air, Config{Role: Tag, Address: 0x0101}, 0)
	other := air.NewSimulator(1, 0, 0)
	dev := dw1000.New(other, nil)
	if err := dev.Begin(); err != nil {
		t.Fatal(err)
	}
	var enc mac.Encoder
	send := func(frame []byte) {
		t.Helper()
		if err := dev.NewTransmit(); err != nil {
			t.Fatal(err)
		}
		if err := dev.SetData(frame); err != nil {
			t.Fatal(err)
		}
		if err := dev.StartTransmit(); err != nil {
			t.Fatal(err)
		}
		run(air, 2*time.Millisecond, tag)
	}
	// Addressed to another EUI.
	send(append(enc.AppendLong(nil, 0x7E00, mac.LongAddr{9, 9}), byte(RangingInit)))
	if tag.eng.Directory().Len() != 0 {
		t.Fatal("tag accepted a Ranging-Init for another EUI")
	}
	send(append(enc.AppendLong(nil, 0x7D00, tag.eng.EUI()), byte(RangingInit)))
	if tag.eng.Directory().Find(0x7D00) == nil {
		t.Error("tag ignored a Ranging-Init to its EUI")
	}
	// Poll-Acks for other tags are ignored.
	send(append(enc.AppendShort(nil, 0x7D00, 0x0202), byte(PollAck)))
	if countSent(tag.sim, Range) != 0 {
		t.Error("tag answered a Poll-Ack for another tag")
	}
}
