// Package board connects a DW1000 to a Linux host through periph.io:
// an SPI bus plus GPIO lines for chip select, reset and interrupt.
package board

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"uwbnode.dev/driver/dw1000"
	"uwbnode.dev/internal/tlog"
	"uwbnode.dev/internal/xoshiro256"
)

const logTag = "board"

// SPI clocks. The chip accepts at most 3 MHz until its PLL locks.
const (
	slowClock = 2 * physic.MegaHertz
	fastClock = 16 * physic.MegaHertz
)

// Pins names the bus and lines the chip is wired to. Names are
// resolved by spireg and gpioreg, such as "/dev/spidev0.0" and
// "GPIO17". An empty CS leaves chip select to the SPI controller.
type Pins struct {
	SPI   string
	CS    string
	Reset string
	IRQ   string
}

// Port implements dw1000.Port on periph.io.
type Port struct {
	log   *tlog.Logger
	name  string
	start time.Time
	rng   *xoshiro256.Locked

	spi   spi.PortCloser
	conn  spi.Conn
	maxTx int
	buf   []byte

	cs  gpio.PinIO
	rst gpio.PinIO
	irq gpio.PinIO

	mu      sync.Mutex
	handler func()
	done    chan struct{}
}

var _ dw1000.Port = (*Port)(nil)

// Open initializes the host drivers and claims the bus and lines
// named by pins.
func Open(pins Pins, log *tlog.Logger) (*Port, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	return open(pins, log)
}

func open(pins Pins, log *tlog.Logger) (*Port, error) {
	p := &Port{
		log:   log,
		name:  pins.SPI,
		start: time.Now(),
		rng:   xoshiro256.NewLocked(uint64(time.Now().UnixNano())),
		done:  make(chan struct{}),
	}
	var err error
	if pins.CS != "" {
		if p.cs, err = pin(pins.CS); err != nil {
			return nil, err
		}
		if err := p.cs.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("board: %s: %w", pins.CS, err)
		}
	}
	if p.rst, err = pin(pins.Reset); err != nil {
		return nil, err
	}
	if p.irq, err = pin(pins.IRQ); err != nil {
		return nil, err
	}
	if err := p.irq.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("board: %s: %w", pins.IRQ, err)
	}
	if err := p.connect(slowClock); err != nil {
		return nil, err
	}
	go p.watch()
	log.Infof(logTag, "opened %s (cs %s, reset %s, irq %s)", p.spi, pins.CS, pins.Reset, pins.IRQ)
	return p, nil
}

func pin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, errors.New("board: missing pin name")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("board: unknown pin %q", name)
	}
	return p, nil
}

// connect (re)opens the SPI port at freq. A sysfs port can only be
// connected once, so changing the clock reopens it.
func (p *Port) connect(freq physic.Frequency) error {
	if p.spi != nil {
		p.spi.Close()
		p.spi, p.conn = nil, nil
	}
	s, err := spireg.Open(p.name)
	if err != nil {
		return fmt.Errorf("board: %w", err)
	}
	c, err := s.Connect(freq, spi.Mode0, 8)
	if err != nil {
		s.Close()
		return fmt.Errorf("board: %w", err)
	}
	p.spi, p.conn = s, c
	p.maxTx = 4096
	if lim, ok := c.(conn.Limits); ok {
		p.maxTx = lim.MaxTxSize()
	}
	return nil
}

// watch calls the interrupt handler for every rising edge until the
// port is closed.
func (p *Port) watch() {
	for {
		select {
		case <-p.done:
			return
		default:
		}
		if !p.irq.WaitForEdge(100 * time.Millisecond) {
			continue
		}
		p.mu.Lock()
		fn := p.handler
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

// Close releases the bus and stops the interrupt watcher.
func (p *Port) Close() error {
	close(p.done)
	p.irq.Halt()
	if p.spi == nil {
		return nil
	}
	err := p.spi.Close()
	p.spi, p.conn = nil, nil
	return err
}

func (p *Port) DelayMs(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func (p *Port) DelayUs(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

func (p *Port) Millis() uint32 {
	return uint32(time.Since(p.start).Milliseconds())
}

func (p *Port) Random(min, max int32) int32 {
	return p.rng.Range(min, max)
}

// Reset pulls the reset line low, then releases it. The line is
// never driven high; the chip pulls it up by itself.
func (p *Port) Reset() error {
	if err := p.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("board: reset: %w", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := p.rst.In(gpio.Float, gpio.NoEdge); err != nil {
		return fmt.Errorf("board: reset: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

func (p *Port) Select(on bool) error {
	if p.cs == nil {
		return nil
	}
	l := gpio.High
	if on {
		l = gpio.Low
	}
	return p.cs.Out(l)
}

func (p *Port) ReadSPI(header, data []byte) error {
	n := len(header) + len(data)
	if n > p.maxTx {
		return fmt.Errorf("board: transfer of %d bytes exceeds %d", n, p.maxTx)
	}
	w := p.scratch(n)
	copy(w, header)
	clear(w[len(header):])
	r := make([]byte, n)
	if err := p.transfer(w, r); err != nil {
		return err
	}
	copy(data, r[len(header):])
	return nil
}

func (p *Port) WriteSPI(header, data []byte) error {
	n := len(header) + len(data)
	if n > p.maxTx {
		return fmt.Errorf("board: transfer of %d bytes exceeds %d", n, p.maxTx)
	}
	w := p.scratch(n)
	copy(w, header)
	copy(w[len(header):], data)
	return p.transfer(w, nil)
}

func (p *Port) scratch(n int) []byte {
	if cap(p.buf) < n {
		p.buf = make([]byte, n)
	}
	return p.buf[:n]
}

func (p *Port) transfer(w, r []byte) error {
	if err := p.Select(true); err != nil {
		return fmt.Errorf("board: spi: %w", err)
	}
	err := p.conn.Tx(w, r)
	if err2 := p.Select(false); err == nil {
		err = err2
	}
	if err != nil {
		return fmt.Errorf("board: spi: %w", err)
	}
	return nil
}

func (p *Port) SetSPISpeed(s dw1000.SPISpeed) error {
	freq := slowClock
	if s == dw1000.FastSPI {
		freq = fastClock
	}
	p.log.Debugf(logTag, "spi clock %s", freq)
	return p.connect(freq)
}

func (p *Port) HandleInterrupt(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = fn
}
