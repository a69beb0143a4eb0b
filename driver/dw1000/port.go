package dw1000

// Port is the host side of the transceiver: timing, the reset,
// chip select and interrupt lines, and the SPI bus.
type Port interface {
	DelayMs(ms uint32)
	DelayUs(us uint32)
	// Millis returns a free running millisecond counter.
	Millis() uint32
	// Random returns a value in [min, max).
	Random(min, max int32) int32
	// Reset pulses the reset line of the chip.
	Reset() error
	// Select drives the chip select line. Transfers select the
	// chip by themselves.
	Select(on bool) error
	// ReadSPI clocks out header and reads len(data) bytes into data.
	ReadSPI(header, data []byte) error
	// WriteSPI clocks out header followed by data.
	WriteSPI(header, data []byte) error
	SetSPISpeed(s SPISpeed) error
	// HandleInterrupt installs fn as the interrupt line callback,
	// replacing any previous one. fn is called once per rising edge
	// and must not block.
	HandleInterrupt(fn func())
}

type SPISpeed int

const (
	// SlowSPI is required while the chip runs from its crystal
	// oscillator.
	SlowSPI SPISpeed = iota
	FastSPI
)

func (s SPISpeed) String() string {
	switch s {
	case SlowSPI:
		return "slow"
	case FastSPI:
		return "fast"
	default:
		panic("unreachable")
	}
}
