// package dw1000 implements a driver for the [DW1000] UWB transceiver.
//
// Configuration setters modify cached register images that are
// written by CommitConfiguration. Interrupts are reported by the Port
// and dispatched from Poll, so that all bus traffic happens on the
// caller's goroutine.
//
// [DW1000]: https://www.qorvo.com/products/d/da007967
package dw1000

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"uwbnode.dev/dwtime"
	"uwbnode.dev/internal/tlog"
)

const logTag = "dw1000"

// Mode is the state of the transceiver.
type Mode int

const (
	ModeIdle Mode = iota
	ModeTX
	ModeRX
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeTX:
		return "tx"
	case ModeRX:
		return "rx"
	default:
		panic("unreachable")
	}
}

// Handlers are called from Poll. Nil handlers are ignored.
type Handlers struct {
	Sent                      func()
	Received                  func()
	ReceiveFailed             func()
	ReceiveTimeout            func()
	ReceiveTimestampAvailable func()
	// Error reports a loss of PLL lock.
	Error func()
}

// ErrFrameTooLong is returned by SetData for frames that exceed the
// configured PHR mode.
var ErrFrameTooLong = errors.New("dw1000: frame too long")

// defaultAntennaDelay is used when no delay has been calibrated.
const defaultAntennaDelay = 16384

type Device struct {
	port       Port
	log        *tlog.Logger
	interrupts chan struct{}
	handlers   Handlers

	mode     Mode
	panAdr   panAdr
	sysCfg   sysCfg
	sysCtrl  sysCtrl
	sysMask  sysMask
	chanCtrl chanCtrl
	txFctrl  txFrameCtrl

	extendedFrameLength bool
	pacSize             uint8
	prf                 PRF
	dataRate            DataRate
	preambleLength      PreambleLength
	preambleCode        uint8
	channel             Channel
	smartPower          bool
	frameCheck          bool
	permanentReceive    bool
	debounceClock       bool

	antennaDelay      dwtime.Time
	antennaCalibrated bool

	vmeas3v3 uint8
	tmeas23C uint8

	scratch [8]byte
}

// New returns a driver for the chip behind port. Logs go to log,
// which may be nil.
func New(port Port, log *tlog.Logger) *Device {
	return &Device{
		port:           port,
		log:            log,
		interrupts:     make(chan struct{}, 1),
		pacSize:        8,
		prf:            PRF16MHz,
		dataRate:       Rate6M8,
		preambleLength: Preamble128,
		preambleCode:   4,
		channel:        Channel5,
		frameCheck:     true,
	}
}

// Begin initializes the chip and installs the interrupt handler.
func (d *Device) Begin() error {
	d.port.DelayMs(5)
	d.mode = ModeIdle
	if err := d.Select(); err != nil {
		return err
	}
	d.port.HandleInterrupt(d.handleIRQ)
	return nil
}

// Select resets the chip and loads its default configuration and
// the LDE microcode.
func (d *Device) Select() error {
	if err := d.port.Select(false); err != nil {
		return fmt.Errorf("dw1000: select: %w", err)
	}
	if err := d.enableClock(clockAuto); err != nil {
		return err
	}
	d.port.DelayMs(5)
	if err := d.Reset(false); err != nil {
		return err
	}
	d.panAdr = 0xFFFFFFFF
	d.sysCfg = 0
	d.sysCfg.setDoubleBuffered(false)
	d.sysCfg.setInterruptPolarity(true)
	d.sysMask = 0
	if err := d.writeRegs(
		regPANADR, noSub, uint32(d.panAdr),
		regSysCfg, noSub, uint32(d.sysCfg),
		regSysMask, noSub, uint32(d.sysMask),
	); err != nil {
		return err
	}
	if err := d.enableClock(clockXTI); err != nil {
		return err
	}
	d.port.DelayMs(5)
	if err := d.loadLDE(); err != nil {
		return err
	}
	d.port.DelayMs(5)
	if err := d.enableClock(clockAuto); err != nil {
		return err
	}
	d.port.DelayMs(5)
	v, err := d.readOTP(otpVMeas3V3)
	if err != nil {
		return err
	}
	d.vmeas3v3 = uint8(v)
	t, err := d.readOTP(otpTMeas23C)
	if err != nil {
		return err
	}
	d.tmeas23C = uint8(t)
	return nil
}

type clock uint8

const (
	clockAuto clock = 0x00
	clockXTI  clock = 0x01
	clockPLL  clock = 0x02
)

func (d *Device) enableClock(c clock) error {
	b := d.scratch[:4]
	if err := d.readBytes(regPMSC, subPMSCCtrl0, b); err != nil {
		return err
	}
	speed := FastSPI
	switch c {
	case clockAuto:
		b[0] = byte(clockAuto)
		b[1] &= 0xFE
	case clockXTI, clockPLL:
		if c == clockXTI {
			speed = SlowSPI
		}
		b[0] = b[0]&0xFC | byte(c)
	default:
		panic("unreachable")
	}
	if err := d.port.SetSPISpeed(speed); err != nil {
		return fmt.Errorf("dw1000: spi speed: %w", err)
	}
	return d.writeBytes(regPMSC, subPMSCCtrl0, b[:2])
}

func (d *Device) loadLDE() error {
	ldo, err := d.readOTP(otpLDOTune)
	if err != nil {
		return err
	}
	if ldo&0xFF != 0 {
		d.log.Verbosef(logTag, "LDO tune available: %#x", ldo)
	}
	var pmsc, otp [4]byte
	if err := d.readBytes(regPMSC, subPMSCCtrl0, pmsc[:]); err != nil {
		return err
	}
	if err := d.readBytes(regOTPIF, subOTPCtrl, otp[:2]); err != nil {
		return err
	}
	pmsc[0], pmsc[1] = 0x01, 0x03
	binary.LittleEndian.PutUint16(otp[:], otpLoadLDE)
	if err := d.writeBytes(regPMSC, subPMSCCtrl0, pmsc[:2]); err != nil {
		return err
	}
	if err := d.writeBytes(regOTPIF, subOTPCtrl, otp[:2]); err != nil {
		return err
	}
	d.port.DelayMs(5)
	pmsc[0] = 0x00
	pmsc[1] &= 0x02
	return d.writeBytes(regPMSC, subPMSCCtrl0, pmsc[:2])
}

// Reset resets the chip through the reset line, or through the
// power management registers if soft is set.
func (d *Device) Reset(soft bool) error {
	if soft {
		return d.SoftReset()
	}
	if err := d.port.Reset(); err != nil {
		return fmt.Errorf("dw1000: reset: %w", err)
	}
	return d.Idle()
}

func (d *Device) SoftReset() error {
	b := d.scratch[:4]
	if err := d.readBytes(regPMSC, subPMSCCtrl0, b); err != nil {
		return err
	}
	b[0] = 0x01
	if err := d.writeBytes(regPMSC, subPMSCCtrl0, b); err != nil {
		return err
	}
	b[3] = 0x00
	if err := d.writeBytes(regPMSC, subPMSCCtrl0, b); err != nil {
		return err
	}
	d.port.DelayMs(10)
	b[0] = 0x00
	b[3] = 0xF0
	if err := d.writeBytes(regPMSC, subPMSCCtrl0, b); err != nil {
		return err
	}
	return d.Idle()
}

// Mode returns the transceiver state.
func (d *Device) Mode() Mode {
	return d.mode
}

// Idle turns off the transmitter and receiver.
func (d *Device) Idle() error {
	d.sysCtrl = 0
	setBit(&d.sysCtrl, trxoff, true)
	d.mode = ModeIdle
	return d.writeSysCtrl()
}

// NewReceive prepares a reception. The receiver is enabled by
// StartReceive.
func (d *Device) NewReceive() error {
	if err := d.Idle(); err != nil {
		return err
	}
	d.sysCtrl = 0
	if err := d.clearStatus(statusRx); err != nil {
		return err
	}
	d.mode = ModeRX
	return nil
}

func (d *Device) StartReceive() error {
	setBit(&d.sysCtrl, sfcst, !d.frameCheck)
	setBit(&d.sysCtrl, rxenab, true)
	return d.writeSysCtrl()
}

// NewTransmit prepares a transmission. The frame is sent by
// StartTransmit.
func (d *Device) NewTransmit() error {
	if err := d.Idle(); err != nil {
		return err
	}
	d.sysCtrl = 0
	if err := d.clearStatus(statusTx); err != nil {
		return err
	}
	d.mode = ModeTX
	return nil
}

// StartTransmit sends the frame. With permanent receive, the
// receiver is enabled again right away.
func (d *Device) StartTransmit() error {
	if err := d.writeTxFctrl(); err != nil {
		return err
	}
	setBit(&d.sysCtrl, sfcst, !d.frameCheck)
	setBit(&d.sysCtrl, txstrt, true)
	if err := d.writeSysCtrl(); err != nil {
		return err
	}
	if !d.permanentReceive {
		d.mode = ModeIdle
		return nil
	}
	d.sysCtrl = 0
	d.mode = ModeRX
	return d.StartReceive()
}

// WaitForResponse makes the chip turn on the receiver after the
// next transmission.
func (d *Device) WaitForResponse(on bool) {
	setBit(&d.sysCtrl, wait4resp, on)
}

// ReceivePermanently keeps the receiver enabled after every
// transmission and reception.
func (d *Device) ReceivePermanently(on bool) error {
	d.permanentReceive = on
	if !on {
		return nil
	}
	d.sysCfg.setAutoReenable(true)
	return d.writeSysCfg()
}

// NewConfiguration idles the chip and loads the register images.
func (d *Device) NewConfiguration() error {
	if err := d.Idle(); err != nil {
		return err
	}
	return d.readConfiguration()
}

// CommitConfiguration writes the register images and the tuning
// registers. Unsupported radio settings are reported as a
// *ConfigurationError before anything is written.
func (d *Device) CommitConfiguration() error {
	if _, err := lookupTuning(d.radioConfig()); err != nil {
		return err
	}
	if err := d.commitRegisters(); err != nil {
		return err
	}
	if err := d.tune(); err != nil {
		return err
	}
	if d.antennaDelay == 0 && !d.antennaCalibrated {
		d.antennaDelay = defaultAntennaDelay
		d.antennaCalibrated = true
	}
	return d.writeAntennaDelay()
}

func (d *Device) radioConfig() radioConfig {
	return radioConfig{
		prf:          d.prf,
		rate:         d.dataRate,
		preamble:     d.preambleLength,
		pac:          d.pacSize,
		channel:      d.channel,
		preambleCode: d.preambleCode,
		smartPower:   d.smartPower,
	}
}

// SetDefaults selects the default configuration. It has no effect
// unless the chip is idle.
func (d *Device) SetDefaults() error {
	if d.mode != ModeIdle {
		return nil
	}
	d.UseExtendedFrameLength(false)
	d.UseSmartPower(false)
	d.SuppressFrameCheck(false)
	d.SetFrameFilter(false)
	d.InterruptOnSent(true)
	d.InterruptOnReceived(true)
	d.InterruptOnReceiveFailed(true)
	d.InterruptOnReceiveTimestampAvailable(false)
	d.InterruptOnAutomaticAcknowledgeTrigger(true)
	d.SetReceiverAutoReenable(true)
	if err := d.EnableMode(LongDataRangeLowPower); err != nil {
		return err
	}
	d.SetChannel(Channel5)
	if d.prf == PRF16MHz {
		d.SetPreambleCode(4)
	} else {
		d.SetPreambleCode(10)
	}
	return nil
}

// EnableMode selects the data rate, PRF and preamble length of a
// preset.
func (d *Device) EnableMode(m OperatingMode) error {
	rate, prf, preamble := m.Settings()
	if err := d.SetDataRate(rate); err != nil {
		return err
	}
	d.SetPulseFrequency(prf)
	d.SetPreambleLength(preamble)
	return nil
}

func (d *Device) SetNetworkID(id uint16) {
	d.panAdr.setNetworkID(id)
}

func (d *Device) SetDeviceAddress(addr uint16) {
	d.panAdr.setShortAddress(addr)
}

// SetEUI writes the extended unique identifier. The chip stores it
// in reverse order.
func (d *Device) SetEUI(eui [8]byte) error {
	var rev [8]byte
	for i := range eui {
		rev[i] = eui[len(eui)-1-i]
	}
	return d.writeBytes(regEUI, noSub, rev[:])
}

// SetDataRate selects the data rate along with the matching SFD.
func (d *Device) SetDataRate(rate DataRate) error {
	rate &= 0x03
	d.txFctrl.setDataRate(rate)
	d.sysCfg.setRX110K(rate == Rate110K)
	var sfdLen uint8
	switch rate {
	case Rate6M8:
		d.chanCtrl.setSFD(false, false, false)
		sfdLen = 0x08
	case Rate850K:
		d.chanCtrl.setSFD(true, true, true)
		sfdLen = 0x10
	default:
		d.chanCtrl.setSFD(true, false, false)
		sfdLen = 0x40
	}
	d.dataRate = rate
	return d.writeUint8(regUsrSFD, subSFDLength, sfdLen)
}

// SetPulseFrequency selects the PRF. If the current preamble code
// is not usable with p, the channel's default code is selected.
func (d *Device) SetPulseFrequency(p PRF) {
	p &= 0x03
	d.txFctrl.setPRF(p)
	d.chanCtrl.setPRF(p)
	d.prf = p
	if !validCode(d.preambleCode, p) && (p == PRF16MHz || p == PRF64MHz) {
		d.SetPreambleCode(defaultPreambleCode(d.channel, p))
	}
}

// SetPreambleLength selects the preamble length and the matching
// preamble acquisition chunk size.
func (d *Device) SetPreambleLength(p PreambleLength) {
	p &= 0x0F
	d.txFctrl.setPreambleLength(p)
	d.pacSize = p.pac()
	d.preambleLength = p
}

// SetChannel selects the channel and its default preamble code.
func (d *Device) SetChannel(ch Channel) {
	ch &= 0x0F
	d.chanCtrl.setChannel(ch)
	d.channel = ch
	d.SetPreambleCode(defaultPreambleCode(ch, d.prf))
}

func (d *Device) SetPreambleCode(c uint8) {
	c &= 0x1F
	d.chanCtrl.setPreambleCode(c)
	d.preambleCode = c
}

func (d *Device) UseExtendedFrameLength(on bool) {
	d.extendedFrameLength = on
	d.sysCfg.setExtendedLength(on)
}

func (d *Device) UseSmartPower(on bool) {
	d.smartPower = on
	d.sysCfg.setSmartPower(on)
}

// SuppressFrameCheck disables the automatic frame check sequence.
func (d *Device) SuppressFrameCheck(on bool) {
	d.frameCheck = !on
}

func (d *Device) SetReceiverAutoReenable(on bool) {
	d.sysCfg.setAutoReenable(on)
}

func (d *Device) SetInterruptPolarity(high bool) {
	d.sysCfg.setInterruptPolarity(high)
}

func (d *Device) SetDoubleBuffering(on bool) {
	d.sysCfg.setDoubleBuffered(on)
}

func (d *Device) SetFrameFilter(on bool) {
	d.sysCfg.setFrameFilter(ffen, on)
}

func (d *Device) SetFrameFilterCoordinator(on bool) {
	d.sysCfg.setFrameFilter(ffbc, on)
}

func (d *Device) SetFrameFilterAllowBeacon(on bool) {
	d.sysCfg.setFrameFilter(ffab, on)
}

func (d *Device) SetFrameFilterAllowData(on bool) {
	d.sysCfg.setFrameFilter(ffad, on)
}

func (d *Device) SetFrameFilterAllowAck(on bool) {
	d.sysCfg.setFrameFilter(ffaa, on)
}

func (d *Device) SetFrameFilterAllowMAC(on bool) {
	d.sysCfg.setFrameFilter(ffam, on)
}

func (d *Device) SetFrameFilterAllowReserved(on bool) {
	d.sysCfg.setFrameFilter(ffar, on)
}

func (d *Device) InterruptOnSent(on bool) {
	setBit(&d.sysMask, txfrs, on)
}

func (d *Device) InterruptOnReceived(on bool) {
	setBit(&d.sysMask, rxdfr, on)
	setBit(&d.sysMask, rxfcg, on)
}

func (d *Device) InterruptOnReceiveFailed(on bool) {
	setBit(&d.sysMask, ldeerr, on)
	setBit(&d.sysMask, rxfce, on)
	setBit(&d.sysMask, rxphe, on)
	setBit(&d.sysMask, rxrfsl, on)
}

func (d *Device) InterruptOnReceiveTimeout(on bool) {
	setBit(&d.sysMask, rxrfto, on)
}

func (d *Device) InterruptOnReceiveTimestampAvailable(on bool) {
	setBit(&d.sysMask, ldedone, on)
}

func (d *Device) InterruptOnAutomaticAcknowledgeTrigger(on bool) {
	setBit(&d.sysMask, aat, on)
}

// SetAntennaDelay writes a calibrated antenna delay in ticks.
func (d *Device) SetAntennaDelay(ticks uint16) error {
	d.antennaDelay = dwtime.Time(ticks)
	d.antennaCalibrated = true
	return d.writeAntennaDelay()
}

func (d *Device) AntennaDelay() uint16 {
	return uint16(d.antennaDelay)
}

func (d *Device) writeAntennaDelay() error {
	v := uint16(d.antennaDelay)
	return d.writeRegs(
		regTxAntD, noSub, v,
		regLDEIF, subLDERxAntD, v,
	)
}

// SetDelay schedules the next transmission or reception delay
// after the current system time. The chip ignores the low 9 bits
// of the target time; the returned time is the truncated target
// including the antenna delay. It returns 0 when idle.
func (d *Device) SetDelay(delay dwtime.Time) (dwtime.Time, error) {
	switch d.mode {
	case ModeTX:
		setBit(&d.sysCtrl, txdlys, true)
	case ModeRX:
		setBit(&d.sysCtrl, rxdlys, true)
	case ModeIdle:
		return 0, nil
	default:
		panic("unreachable")
	}
	now, err := d.SystemTimestamp()
	if err != nil {
		return 0, err
	}
	b := (now + delay).Bytes()
	b[0] = 0
	b[1] &= 0xFE
	if err := d.writeBytes(regDxTime, noSub, b[:]); err != nil {
		return 0, err
	}
	return dwtime.FromBytes(b[:]) + d.antennaDelay, nil
}

// SetData loads a frame into the transmit buffer. The frame check
// sequence is appended by the chip unless suppressed.
func (d *Device) SetData(data []byte) error {
	n := len(data)
	if d.frameCheck {
		n += fcsLen
	}
	if n > maxExtendedFrameLen || (n > maxFrameLen && !d.extendedFrameLength) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLong, n)
	}
	if err := d.writeBytes(regTxBuffer, noSub, data); err != nil {
		return err
	}
	d.txFctrl.setLength(n)
	return nil
}

// DataLength returns the length of the frame being sent or the
// frame received, without the frame check sequence.
func (d *Device) DataLength() (int, error) {
	var n int
	switch d.mode {
	case ModeTX:
		n = int(d.txFctrl & 0x3FF)
	case ModeRX:
		b := d.scratch[:4]
		if err := d.readBytes(regRxFInfo, noSub, b); err != nil {
			return 0, err
		}
		n = int(binary.LittleEndian.Uint16(b) & 0x3FF)
	case ModeIdle:
	default:
		panic("unreachable")
	}
	if d.frameCheck && n > fcsLen {
		n -= fcsLen
	}
	return n, nil
}

// Data reads len(data) bytes of the received frame.
func (d *Device) Data(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return d.readBytes(regRxBuffer, noSub, data)
}

func (d *Device) readTime(reg byte, sub uint16) (dwtime.Time, error) {
	b := d.scratch[:dwtime.Length]
	if err := d.readBytes(reg, sub, b); err != nil {
		return 0, err
	}
	return dwtime.FromBytes(b), nil
}

func (d *Device) TransmitTimestamp() (dwtime.Time, error) {
	return d.readTime(regTxTime, subTxStamp)
}

// ReceiveTimestamp returns the receive time corrected for the
// power dependent range bias.
func (d *Device) ReceiveTimestamp() (dwtime.Time, error) {
	t, err := d.readTime(regRxTime, subRxStamp)
	if err != nil {
		return 0, err
	}
	p, err := d.ReceivePower()
	if err != nil {
		return 0, err
	}
	return t - rangeBias(p, d.channel, d.prf), nil
}

func (d *Device) SystemTimestamp() (dwtime.Time, error) {
	return d.readTime(regSysTime, noSub)
}

// powerConstants returns the receiver constant A and the
// correction slope for estimates above -88 dBm.
func (d *Device) powerConstants() (a, corr float64) {
	if d.prf == PRF16MHz {
		return 113.77, 2.3334
	}
	return 121.74, 1.1667
}

func (d *Device) preambleAccumulation() (float64, error) {
	b := d.scratch[:4]
	if err := d.readBytes(regRxFInfo, noSub, b); err != nil {
		return 0, err
	}
	return float64(uint16(b[2]>>4) | uint16(b[3])<<4), nil
}

func (d *Device) correctPower(est float64) float64 {
	_, corr := d.powerConstants()
	if est > -88 {
		est += (est + 88) * corr
	}
	return est
}

// ReceivePower estimates the power of the last received frame in
// dBm.
func (d *Device) ReceivePower() (float64, error) {
	c, err := d.readUint16(regRxFQual, subCIRPwr)
	if err != nil {
		return 0, err
	}
	n, err := d.preambleAccumulation()
	if err != nil {
		return 0, err
	}
	a, _ := d.powerConstants()
	est := 10*math.Log10(float64(c)*(1<<17)/(n*n)) - a
	return d.correctPower(est), nil
}

// FirstPathPower estimates the power of the first path of the last
// received frame in dBm.
func (d *Device) FirstPathPower() (float64, error) {
	f1, err := d.readUint16(regRxTime, subFPAmpl1)
	if err != nil {
		return 0, err
	}
	f2, err := d.readUint16(regRxFQual, subFPAmpl2)
	if err != nil {
		return 0, err
	}
	f3, err := d.readUint16(regRxFQual, subFPAmpl3)
	if err != nil {
		return 0, err
	}
	n, err := d.preambleAccumulation()
	if err != nil {
		return 0, err
	}
	a, _ := d.powerConstants()
	sq := float64(f1)*float64(f1) + float64(f2)*float64(f2) + float64(f3)*float64(f3)
	est := 10*math.Log10(sq/(n*n)) - a
	return d.correctPower(est), nil
}

// ReceiveQuality is the ratio of the first path amplitude to the
// noise of the last received frame.
func (d *Device) ReceiveQuality() (float64, error) {
	noise, err := d.readUint16(regRxFQual, subStdNoise)
	if err != nil {
		return 0, err
	}
	f2, err := d.readUint16(regRxFQual, subFPAmpl2)
	if err != nil {
		return 0, err
	}
	return float64(f2) / float64(noise), nil
}

// SetHandlers installs the interrupt handlers, replacing the
// previous set. The zero Handlers clears them.
func (d *Device) SetHandlers(h Handlers) {
	d.handlers = h
}

// handleIRQ is the interrupt line callback.
func (d *Device) handleIRQ() {
	select {
	case d.interrupts <- struct{}{}:
	default:
	}
}

// Poll dispatches a pending interrupt, if any.
func (d *Device) Poll() error {
	select {
	case <-d.interrupts:
		return d.handleInterrupt()
	default:
		return nil
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func (d *Device) handleInterrupt() error {
	status, err := d.readStatus()
	if err != nil {
		return err
	}
	h := d.handlers
	if status.has(statusClock) {
		d.log.Warnf(logTag, "clock problem, status %#010x", uint64(status))
		call(h.Error)
	}
	if status.has(1 << txfrs) {
		call(h.Sent)
		if err := d.clearStatus(statusTx); err != nil {
			return err
		}
	}
	if status.has(1 << ldedone) {
		call(h.ReceiveTimestampAvailable)
		if err := d.clearStatus(1 << ldedone); err != nil {
			return err
		}
	}
	var rx func()
	switch {
	case status.has(statusRxFailed):
		rx = h.ReceiveFailed
	case status.has(statusRxTimeout):
		rx = h.ReceiveTimeout
	case d.receiveDone(status):
		rx = h.Received
	default:
		return d.clearStatus(statusAll)
	}
	call(rx)
	if err := d.clearStatus(statusRx); err != nil {
		return err
	}
	if d.permanentReceive {
		if err := d.NewReceive(); err != nil {
			return err
		}
		if err := d.StartReceive(); err != nil {
			return err
		}
	}
	return d.clearStatus(statusAll)
}

func (d *Device) receiveDone(s sysStatus) bool {
	if d.frameCheck {
		return s.has(1 << rxfcg)
	}
	return s.has(1 << rxdfr)
}
