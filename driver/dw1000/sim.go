package dw1000

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"uwbnode.dev/dwtime"
	"uwbnode.dev/internal/xoshiro256"
)

// Air is a shared radio medium for simulated transceivers. Time only
// passes through Advance; frames land in the receivers when their
// arrival time has passed and the receiver is listening.
type Air struct {
	mu    sync.Mutex
	ticks int64
	nodes []*Simulator
	rng   xoshiro256.Source
}

// NewAir returns an empty medium. seed determines the sequence of
// Port.Random values.
func NewAir(seed uint64) *Air {
	a := new(Air)
	a.rng.SeedUint64(seed)
	return a
}

// frameLifetime bounds how long a frame waits for a busy receiver.
const frameLifetime = 20 * time.Millisecond

const ticksPerMs = 63897600

// Simulator is a simulated DW1000 implementing Port.
type Simulator struct {
	air *Air
	pos [3]float64

	clockOffset  dwtime.Time
	millisOffset uint32

	regs   [0x40][]byte
	otp    map[uint16]uint32
	status uint64
	rxOn   bool
	irq    func()
	cs     bool
	speed  SPISpeed
	resets int

	cirPower uint16
	rxpacc   uint16
	fpAmpl   [3]uint16
	noise    uint16
	sarVbat  uint8
	sarTemp  uint8

	// rxSince is the air time the receiver was last enabled.
	rxSince int64
	inbox   []packet
	sent    [][]byte
}

type packet struct {
	frame []byte
	// arrival is the air time of the frame at the receiver antenna.
	arrival int64
}

var errSimWrite = errors.New("sim: header has write flag")

// NewSimulator adds a transceiver at position (x, y, z) in meters.
func (a *Air) NewSimulator(x, y, z float64) *Simulator {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := &Simulator{
		air: a,
		pos: [3]float64{x, y, z},
		otp: map[uint16]uint32{
			otpLDOTune:  0,
			otpVMeas3V3: 0xA5,
			otpTMeas23C: 0x80,
			otpXtalTrim: 0x11,
		},
		rxpacc:  1024,
		fpAmpl:  [3]uint16{6000, 5000, 5500},
		noise:   50,
		sarVbat: 0xA5,
		sarTemp: 0x80,
	}
	s.powerOn()
	a.nodes = append(a.nodes, s)
	return s
}

// Advance moves the air clock forward by d and lands due frames.
func (a *Air) Advance(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ticks += int64(math.Round(float64(d.Nanoseconds()) * dwtime.ResolutionInv / 1000))
	for _, n := range a.nodes {
		n.land()
	}
}

// Now returns the air time.
func (a *Air) Now() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Duration(float64(a.ticks) / dwtime.ResolutionInv * 1000)
}

func (s *Simulator) powerOn() {
	for i := range s.regs {
		s.regs[i] = nil
	}
	binary.LittleEndian.PutUint32(s.reg(regDevID, 0, 4), 0xDECA0130)
	s.status = 0
	s.rxOn = false
}

// Move places the transceiver at (x, y, z).
func (s *Simulator) Move(x, y, z float64) {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.pos = [3]float64{x, y, z}
}

// SetClockOffset sets the difference between the local system time
// and the air clock.
func (s *Simulator) SetClockOffset(t dwtime.Time) {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.clockOffset = t
}

// SetMillisOffset sets the start value of the millisecond counter.
func (s *Simulator) SetMillisOffset(ms uint32) {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.millisOffset = ms
}

// SetReceivePower makes received frames report dBm as receive
// power, using the receiver's configured PRF.
func (s *Simulator) SetReceivePower(dBm float64) {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.cirPower = 0
	if dBm != 0 {
		s.cirPower = cirPowerFor(dBm, s.prf(), s.rxpacc)
	}
}

// SetFirstPath sets the first path amplitudes and noise level of
// received frames.
func (s *Simulator) SetFirstPath(f1, f2, f3, noise uint16) {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.fpAmpl = [3]uint16{f1, f2, f3}
	s.noise = noise
}

// Sent returns the frames transmitted so far, without frame check
// sequence.
func (s *Simulator) Sent() [][]byte {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// Resets returns the number of hard resets.
func (s *Simulator) Resets() int {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	return s.resets
}

// Listening reports whether the receiver is enabled.
func (s *Simulator) Listening() bool {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	return s.rxOn
}

func (s *Simulator) prf() PRF {
	return PRF(field(chanCtrl(binary.LittleEndian.Uint32(s.reg(regChanCtrl, 0, 4))), rxprfShift, 0b11))
}

// cirPowerFor inverts the receive power estimate for a preamble
// accumulation count of n.
func cirPowerFor(dBm float64, prf PRF, n uint16) uint16 {
	a, corr := 113.77, 2.3334
	if prf == PRF64MHz {
		a, corr = 121.74, 1.1667
	}
	raw := dBm
	if dBm > -88 {
		raw = (dBm - 88*corr) / (1 + corr)
	}
	nn := float64(n) * float64(n)
	c := math.Pow(10, (raw+a)/10) * nn / (1 << 17)
	return uint16(math.Min(math.Round(c), math.MaxUint16))
}

func (s *Simulator) DelayMs(ms uint32) {}
func (s *Simulator) DelayUs(us uint32) {}

func (s *Simulator) Millis() uint32 {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	return uint32(s.air.ticks/ticksPerMs) + s.millisOffset
}

func (s *Simulator) Random(min, max int32) int32 {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	return s.air.rng.Range(min, max)
}

func (s *Simulator) Reset() error {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.resets++
	s.powerOn()
	return nil
}

func (s *Simulator) Select(on bool) error {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.cs = on
	return nil
}

func (s *Simulator) SetSPISpeed(sp SPISpeed) error {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.speed = sp
	return nil
}

func (s *Simulator) HandleInterrupt(fn func()) {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	s.irq = fn
}

// parseHeader is the inverse of header.
func parseHeader(h []byte) (write bool, reg byte, sub int) {
	write = h[0]&opWrite != 0
	reg = h[0] & 0x3F
	if h[0]&0x40 == 0 {
		return write, reg, 0
	}
	if h[1]&0x80 == 0 {
		return write, reg, int(h[1])
	}
	return write, reg, int(h[1]&0x7F) | int(h[2])<<7
}

func (s *Simulator) reg(id byte, sub, n int) []byte {
	r := s.regs[id]
	if len(r) < sub+n {
		nr := make([]byte, sub+n)
		copy(nr, r)
		s.regs[id] = nr
		r = nr
	}
	return r[sub : sub+n]
}

func (s *Simulator) localNow() dwtime.Time {
	return (dwtime.Time(s.air.ticks) + s.clockOffset).Wrap()
}

func (s *Simulator) ReadSPI(header, data []byte) error {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	write, id, sub := parseHeader(header)
	if write {
		return errSimWrite
	}
	var b [8]byte
	switch id {
	case regSysTime:
		(s.localNow() &^ 0x1FF).PutBytes(b[:])
		copy(data, b[sub:])
	case regSysStatus:
		putUint40(b[:], s.status)
		copy(data, b[sub:])
	default:
		copy(data, s.reg(id, sub, len(data)))
	}
	return nil
}

func (s *Simulator) WriteSPI(header, data []byte) error {
	s.air.mu.Lock()
	defer s.air.mu.Unlock()
	write, id, sub := parseHeader(header)
	if !write {
		return errors.New("sim: header lacks write flag")
	}
	switch id {
	case regSysStatus:
		var b [8]byte
		copy(b[sub:], data)
		s.status &^= binary.LittleEndian.Uint64(b[:])
		return nil
	}
	copy(s.reg(id, sub, len(data)), data)
	switch {
	case id == regSysCtrl:
		s.control(binary.LittleEndian.Uint32(s.reg(regSysCtrl, 0, 4)))
	case id == regOTPIF && sub == int(subOTPCtrl) && data[0]&otpRead != 0:
		addr := binary.LittleEndian.Uint16(s.reg(regOTPIF, int(subOTPAddr), 2))
		binary.LittleEndian.PutUint32(s.reg(regOTPIF, int(subOTPRData), 4), s.otp[addr])
	case id == regTxCal && sub == 0 && data[0] == 0x01:
		s.reg(regTxCal, int(subTCSARVbat), 1)[0] = s.sarVbat
		s.reg(regTxCal, int(subTCSARTemp), 1)[0] = s.sarTemp
	}
	return nil
}

func (s *Simulator) control(v uint32) {
	if v&(1<<trxoff) != 0 {
		s.rxOn = false
	}
	if v&(1<<txstrt) != 0 {
		s.transmit(v&(1<<txdlys) != 0, v&(1<<sfcst) != 0)
		if v&(1<<wait4resp) != 0 {
			v |= 1 << rxenab
		}
	}
	if v&(1<<rxenab) != 0 && !s.rxOn {
		s.rxOn = true
		s.rxSince = s.air.ticks
	}
}

func (s *Simulator) transmit(delayed, noFCS bool) {
	n := int(uint40(s.reg(regTxFCtrl, 0, 5)) & 0x3FF)
	if !noFCS {
		n -= fcsLen
	}
	if n < 0 {
		n = 0
	}
	frame := append([]byte(nil), s.reg(regTxBuffer, 0, n)...)
	now := s.localNow()
	start := now &^ 0x1FF
	if delayed {
		start = dwtime.FromBytes(s.reg(regDxTime, 0, 5)) &^ 0x1FF
	}
	antd := dwtime.Time(binary.LittleEndian.Uint16(s.reg(regTxAntD, 0, 2)))
	stamp := (start + antd).Wrap()
	stamp.PutBytes(s.reg(regTxTime, int(subTxStamp), 5))

	// Departure in air time, assuming the target is less than half a
	// counter period away.
	delta := (stamp - now).Wrap()
	if delta > dwtime.Overflow/2 {
		delta -= dwtime.Overflow
	}
	departure := s.air.ticks + int64(delta)
	for _, r := range s.air.nodes {
		if r == s {
			continue
		}
		prop := int64(math.Round(s.distance(r) * dwtime.DistanceOfRadioInv))
		r.inbox = append(r.inbox, packet{frame: frame, arrival: departure + prop})
	}
	s.sent = append(s.sent, frame)
	s.raise(statusTx)
}

func (s *Simulator) distance(r *Simulator) float64 {
	var sum float64
	for i := range s.pos {
		d := s.pos[i] - r.pos[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// land delivers the earliest due frame if the receiver is on.
func (s *Simulator) land() {
	now := s.air.ticks
	lifetime := int64(float64(frameLifetime/time.Microsecond) * dwtime.ResolutionInv)
	best := -1
	kept := s.inbox[:0]
	for _, p := range s.inbox {
		// A frame is lost unless the receiver was on before it arrived.
		if now-p.arrival > lifetime || (s.rxOn && p.arrival < s.rxSince) {
			continue
		}
		kept = append(kept, p)
	}
	s.inbox = kept
	if !s.rxOn {
		return
	}
	for i, p := range s.inbox {
		if p.arrival > now {
			continue
		}
		if best == -1 || p.arrival < s.inbox[best].arrival {
			best = i
		}
	}
	if best == -1 {
		return
	}
	p := s.inbox[best]
	s.inbox = append(s.inbox[:best], s.inbox[best+1:]...)

	n := len(p.frame) + fcsLen
	buf := s.reg(regRxBuffer, 0, n)
	clear(buf)
	copy(buf, p.frame)
	binary.LittleEndian.PutUint32(s.reg(regRxFInfo, 0, 4), uint32(n&0x3FF)|uint32(s.rxpacc)<<20)
	stamp := (dwtime.Time(p.arrival) + s.clockOffset).Wrap()
	stamp.PutBytes(s.reg(regRxTime, int(subRxStamp), 5))
	cir := s.cirPower
	if cir == 0 {
		cir = cirPowerFor(-81, s.prf(), s.rxpacc)
	}
	binary.LittleEndian.PutUint16(s.reg(regRxFQual, int(subCIRPwr), 2), cir)
	binary.LittleEndian.PutUint16(s.reg(regRxFQual, int(subStdNoise), 2), s.noise)
	binary.LittleEndian.PutUint16(s.reg(regRxTime, int(subFPAmpl1), 2), s.fpAmpl[0])
	binary.LittleEndian.PutUint16(s.reg(regRxFQual, int(subFPAmpl2), 2), s.fpAmpl[1])
	binary.LittleEndian.PutUint16(s.reg(regRxFQual, int(subFPAmpl3), 2), s.fpAmpl[2])
	s.rxOn = false
	s.raise(1<<rxdfr | 1<<rxfcg | 1<<ldedone)
}

// raise sets status bits and signals the interrupt line if any of
// them is unmasked.
func (s *Simulator) raise(bits uint64) {
	s.status |= bits
	mask := uint64(binary.LittleEndian.Uint32(s.reg(regSysMask, 0, 4)))
	if s.status&mask != 0 && s.irq != nil {
		s.irq()
	}
}
