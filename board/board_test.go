package board

import (
	"bytes"
	"testing"
	"time"

	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/conn/v3/spi/spitest"

	"uwbnode.dev/driver/dw1000"
)

type bus struct {
	*spitest.Playback
	clocks *[]physic.Frequency
}

func (b *bus) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	*b.clocks = append(*b.clocks, f)
	return b.Playback.Connect(f, mode, bits)
}

type rig struct {
	port   *Port
	cs     *gpiotest.Pin
	rst    *gpiotest.Pin
	irq    *gpiotest.Pin
	clocks []physic.Frequency
}

func newPin(name string) *gpiotest.Pin {
	return &gpiotest.Pin{N: name, Num: -1}
}

// openRig registers fake lines and a bus under names unique to the
// test. The first connection plays back ops.
func openRig(t *testing.T, ops []conntest.IO) *rig {
	t.Helper()
	name := "uwbtest-" + t.Name()
	r := &rig{
		cs:  newPin(name + "-cs"),
		rst: newPin(name + "-rst"),
		irq: newPin(name + "-irq"),
	}
	r.irq.EdgesChan = make(chan gpio.Level)
	for _, p := range []*gpiotest.Pin{r.cs, r.rst, r.irq} {
		if err := gpioreg.Register(p); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { gpioreg.Unregister(p.N) })
	}
	opens := 0
	err := spireg.Register(name, nil, -1, func() (spi.PortCloser, error) {
		pb := &spitest.Playback{Playback: conntest.Playback{DontPanic: true}}
		if opens == 0 {
			pb.Ops = ops
		}
		opens++
		return &bus{Playback: pb, clocks: &r.clocks}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { spireg.Unregister(name) })
	p, err := open(Pins{SPI: name, CS: r.cs.N, Reset: r.rst.N, IRQ: r.irq.N}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	r.port = p
	return r
}

func TestTransfers(t *testing.T) {
	ops := []conntest.IO{
		{W: []byte{0x00, 0, 0, 0, 0}, R: []byte{0xFF, 0x30, 0x01, 0xCA, 0xDE}},
		{W: []byte{0x83, 0x01, 0x02}},
	}
	r := openRig(t, ops)
	if r.cs.Read() != gpio.High {
		t.Error("chip selected after open")
	}
	id := make([]byte, 4)
	if err := r.port.ReadSPI([]byte{0x00}, id); err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x30, 0x01, 0xCA, 0xDE}; !bytes.Equal(id, want) {
		t.Errorf("read % x, want % x", id, want)
	}
	if err := r.port.WriteSPI([]byte{0x83}, []byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	if r.cs.Read() != gpio.High {
		t.Error("chip left selected after transfer")
	}
	if err := r.port.WriteSPI([]byte{0x83}, make([]byte, r.port.maxTx)); err == nil {
		t.Error("oversized transfer succeeded")
	}
}

func TestSPISpeed(t *testing.T) {
	r := openRig(t, nil)
	if err := r.port.SetSPISpeed(dw1000.FastSPI); err != nil {
		t.Fatal(err)
	}
	if err := r.port.SetSPISpeed(dw1000.SlowSPI); err != nil {
		t.Fatal(err)
	}
	want := []physic.Frequency{slowClock, fastClock, slowClock}
	if len(r.clocks) != len(want) {
		t.Fatalf("clocks %v, want %v", r.clocks, want)
	}
	for i := range want {
		if r.clocks[i] != want[i] {
			t.Errorf("clocks %v, want %v", r.clocks, want)
			break
		}
	}
}

func TestReset(t *testing.T) {
	r := openRig(t, nil)
	r.rst.Out(gpio.High)
	if err := r.port.Reset(); err != nil {
		t.Fatal(err)
	}
	if got := r.rst.Read(); got != gpio.Low {
		t.Errorf("reset line left at %v", got)
	}
	if got := r.rst.Pull(); got != gpio.Float {
		t.Errorf("reset line pull %v after reset, want float", got)
	}
}

func TestInterrupt(t *testing.T) {
	r := openRig(t, nil)
	fired := make(chan struct{}, 1)
	r.port.HandleInterrupt(func() { fired <- struct{}{} })
	r.irq.EdgesChan <- gpio.High
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt handler not called")
	}
}

func TestRandom(t *testing.T) {
	r := openRig(t, nil)
	for range 100 {
		if v := r.port.Random(-5, 5); v < -5 || v >= 5 {
			t.Fatalf("Random(-5, 5) = %d", v)
		}
	}
}
