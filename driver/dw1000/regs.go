package dw1000

import (
	"encoding/binary"
)

// Register images. Configuration setters modify the cached images;
// commitRegisters writes them back in one batch.

type bitReg interface {
	~uint32 | ~uint64
}

func setBit[T bitReg](r *T, bit uint, on bool) {
	if on {
		*r |= 1 << bit
	} else {
		*r &^= 1 << bit
	}
}

func setField[T bitReg](r *T, shift uint, mask, v T) {
	*r = *r&^(mask<<shift) | (v&mask)<<shift
}

func field[T bitReg](r T, shift uint, mask T) T {
	return r >> shift & mask
}

func isSet[T bitReg](r T, bit uint) bool {
	return r&(1<<bit) != 0
}

// sysCfg is the SYS_CFG register.
type sysCfg uint32

func (r *sysCfg) setFrameFilter(bit uint, on bool) { setBit(r, bit, on) }
func (r *sysCfg) setInterruptPolarity(high bool)  { setBit(r, hirqPol, high) }
func (r *sysCfg) setDoubleBuffered(on bool)       { setBit(r, disDRXB, !on) }
func (r *sysCfg) setSmartPower(on bool)           { setBit(r, disSTXP, !on) }
func (r *sysCfg) setRX110K(on bool)               { setBit(r, rxm110k, on) }
func (r *sysCfg) setAutoReenable(on bool)         { setBit(r, rxautr, on) }

// setExtendedLength selects the proprietary 1023 byte PHR mode.
func (r *sysCfg) setExtendedLength(on bool) {
	var v sysCfg
	if on {
		v = 0b11
	}
	setField(r, phrMode, 0b11, v)
}

func (r sysCfg) autoReenable() bool { return isSet(r, rxautr) }

// sysCtrl is the SYS_CTRL register.
type sysCtrl uint32

// sysMask is the SYS_MASK register. Bits share positions with
// SYS_STATUS.
type sysMask uint32

// sysStatus is the 40-bit SYS_STATUS register.
type sysStatus uint64

func (s sysStatus) has(bits uint64) bool {
	return uint64(s)&bits != 0
}

// txFrameCtrl is the 40-bit TX_FCTRL register.
type txFrameCtrl uint64

const (
	tfLenShift = 0
	tfLenMask  = 0x1FFF // Length, extension and reserved bits.
	txbrShift  = 13
	txprfShift = 16
	txpsrShift = 18 // TXPSR and PE together.
)

func (r *txFrameCtrl) setLength(n int) {
	setField(r, tfLenShift, tfLenMask, txFrameCtrl(n&0x3FF))
}

func (r *txFrameCtrl) setDataRate(rate DataRate) {
	// Clears the reserved bits 10-12 along with TXBR.
	setField(r, 10, 0x1F, txFrameCtrl(rate)<<3)
}

func (r *txFrameCtrl) setPRF(p PRF)                       { setField(r, txprfShift, 0b11, txFrameCtrl(p)) }
func (r *txFrameCtrl) setPreambleLength(p PreambleLength) { setField(r, txpsrShift, 0xF, txFrameCtrl(p)) }

// chanCtrl is the CHAN_CTRL register.
type chanCtrl uint32

const (
	txChanShift  = 0
	rxChanShift  = 4
	rxprfShift   = 18
	txPcodeShift = 22
	rxPcodeShift = 27
)

func (r *chanCtrl) setChannel(ch Channel) {
	setField(r, txChanShift, 0xF, chanCtrl(ch))
	setField(r, rxChanShift, 0xF, chanCtrl(ch))
}

func (r *chanCtrl) setPRF(p PRF) { setField(r, rxprfShift, 0b11, chanCtrl(p)) }

func (r *chanCtrl) setPreambleCode(c uint8) {
	setField(r, txPcodeShift, 0x1F, chanCtrl(c))
	setField(r, rxPcodeShift, 0x1F, chanCtrl(c))
}

func (r *chanCtrl) setSFD(dw, tnss, rnss bool) {
	setBit(r, dwsfd, dw)
	setBit(r, tnssfd, tnss)
	setBit(r, rnssfd, rnss)
}

func (r chanCtrl) channel() Channel { return Channel(field(r, txChanShift, 0xF)) }
func (r chanCtrl) preambleCode() uint8 {
	return uint8(field(r, txPcodeShift, 0x1F))
}

// panAdr is the PANADR register.
type panAdr uint32

func (r *panAdr) setShortAddress(a uint16) { setField(r, 0, 0xFFFF, panAdr(a)) }
func (r *panAdr) setNetworkID(id uint16)   { setField(r, 16, 0xFFFF, panAdr(id)) }
func (r panAdr) shortAddress() uint16      { return uint16(r) }
func (r panAdr) networkID() uint16         { return uint16(r >> 16) }

func putUint40(b []byte, v uint64) {
	binary.LittleEndian.PutUint32(b, uint32(v))
	b[4] = byte(v >> 32)
}

func uint40(b []byte) uint64 {
	return uint64(binary.LittleEndian.Uint32(b)) | uint64(b[4])<<32
}

// readConfiguration loads the register images.
func (d *Device) readConfiguration() error {
	b := d.scratch[:5]
	if err := d.readBytes(regPANADR, noSub, b[:4]); err != nil {
		return err
	}
	d.panAdr = panAdr(binary.LittleEndian.Uint32(b))
	if err := d.readBytes(regSysCfg, noSub, b[:4]); err != nil {
		return err
	}
	d.sysCfg = sysCfg(binary.LittleEndian.Uint32(b))
	if err := d.readBytes(regChanCtrl, noSub, b[:4]); err != nil {
		return err
	}
	d.chanCtrl = chanCtrl(binary.LittleEndian.Uint32(b))
	if err := d.readBytes(regTxFCtrl, noSub, b[:5]); err != nil {
		return err
	}
	d.txFctrl = txFrameCtrl(uint40(b))
	if err := d.readBytes(regSysMask, noSub, b[:4]); err != nil {
		return err
	}
	d.sysMask = sysMask(binary.LittleEndian.Uint32(b))
	return nil
}

// commitRegisters writes the register images.
func (d *Device) commitRegisters() error {
	if err := d.writeRegs(
		regPANADR, noSub, uint32(d.panAdr),
		regSysCfg, noSub, uint32(d.sysCfg),
		regChanCtrl, noSub, uint32(d.chanCtrl),
	); err != nil {
		return err
	}
	if err := d.writeTxFctrl(); err != nil {
		return err
	}
	return d.writeUint32(regSysMask, noSub, uint32(d.sysMask))
}

func (d *Device) writeTxFctrl() error {
	b := d.scratch[:5]
	putUint40(b, uint64(d.txFctrl))
	return d.writeBytes(regTxFCtrl, noSub, b)
}

func (d *Device) writeSysCfg() error {
	return d.writeUint32(regSysCfg, noSub, uint32(d.sysCfg))
}

func (d *Device) writeSysCtrl() error {
	return d.writeUint32(regSysCtrl, noSub, uint32(d.sysCtrl))
}

func (d *Device) readStatus() (sysStatus, error) {
	b := d.scratch[:5]
	if err := d.readBytes(regSysStatus, noSub, b); err != nil {
		return 0, err
	}
	return sysStatus(uint40(b)), nil
}

// clearStatus acknowledges bits. SYS_STATUS is write-1-to-clear.
func (d *Device) clearStatus(bits uint64) error {
	b := d.scratch[:5]
	putUint40(b, bits)
	return d.writeBytes(regSysStatus, noSub, b)
}

// Register files.
const (
	regDevID     byte = 0x00
	regEUI       byte = 0x01
	regPANADR    byte = 0x03
	regSysCfg    byte = 0x04
	regSysTime   byte = 0x06
	regTxFCtrl   byte = 0x08
	regTxBuffer  byte = 0x09
	regDxTime    byte = 0x0A
	regSysCtrl   byte = 0x0D
	regSysMask   byte = 0x0E
	regSysStatus byte = 0x0F
	regRxFInfo   byte = 0x10
	regRxBuffer  byte = 0x11
	regRxFQual   byte = 0x12
	regRxTime    byte = 0x15
	regTxTime    byte = 0x17
	regTxAntD    byte = 0x18
	regTxPower   byte = 0x1E
	regChanCtrl  byte = 0x1F
	regUsrSFD    byte = 0x21
	regAGCTune   byte = 0x23
	regGPIOCtrl  byte = 0x26
	regDRXTune   byte = 0x27
	regRFConf    byte = 0x28
	regTxCal     byte = 0x2A
	regFSCtrl    byte = 0x2B
	regAON       byte = 0x2C
	regOTPIF     byte = 0x2D
	regLDEIF     byte = 0x2E
	regPMSC      byte = 0x36
)

// Sub-addresses.
const (
	subStdNoise uint16 = 0x00 // RX_FQUAL
	subFPAmpl2  uint16 = 0x02
	subFPAmpl3  uint16 = 0x04
	subCIRPwr   uint16 = 0x06

	subRxStamp uint16 = 0x00 // RX_TIME
	subFPAmpl1 uint16 = 0x07
	subTxStamp uint16 = 0x00 // TX_TIME

	subSFDLength uint16 = 0x00 // USR_SFD

	subAGCTune1 uint16 = 0x04
	subAGCTune2 uint16 = 0x0C
	subAGCTune3 uint16 = 0x12

	subGPIOMode uint16 = 0x00

	subDRXTune0b uint16 = 0x02
	subDRXTune1a uint16 = 0x04
	subDRXTune1b uint16 = 0x06
	subDRXTune2  uint16 = 0x08
	subDRXTune4H uint16 = 0x26

	subRFRxCtrlH uint16 = 0x0B
	subRFTxCtrl  uint16 = 0x0C
	subRFSARCtrl uint16 = 0x11 // Temperature and voltage sensing.
	subRFSARTest uint16 = 0x12

	subTCSARCtrl  uint16 = 0x00
	subTCSARVbat  uint16 = 0x03
	subTCSARTemp  uint16 = 0x04
	subTCPGDelay  uint16 = 0x0B
	subFSPLLCfg   uint16 = 0x07
	subFSPLLTune  uint16 = 0x0B
	subFSXtalT    uint16 = 0x0E
	subAONWCfg    uint16 = 0x00
	subAONCtrl    uint16 = 0x02
	subAONCfg0    uint16 = 0x06
	subOTPAddr    uint16 = 0x04
	subOTPCtrl    uint16 = 0x06
	subOTPRData   uint16 = 0x0A
	subLDECfg1    uint16 = 0x0806
	subLDERxAntD  uint16 = 0x1804
	subLDECfg2    uint16 = 0x1806
	subLDERepC    uint16 = 0x2804
	subPMSCCtrl0  uint16 = 0x00
	subPMSCCtrl1  uint16 = 0x04
	subPMSCTxFSeq uint16 = 0x26
	subPMSCLEDC   uint16 = 0x28
)

// SYS_CFG bits.
const (
	ffen    = 0 // Frame filtering.
	ffbc    = 1 // Behave as coordinator.
	ffab    = 2 // Allow beacons.
	ffad    = 3 // Allow data.
	ffaa    = 4 // Allow acknowledgements.
	ffam    = 5 // Allow MAC commands.
	ffar    = 6 // Allow reserved types.
	hirqPol = 9
	disDRXB = 12
	phrMode = 16
	disSTXP = 18
	rxm110k = 22
	rxautr  = 29
)

// SYS_CTRL bits.
const (
	sfcst     = 0 // Suppress frame check.
	txstrt    = 1
	txdlys    = 2
	trxoff    = 6
	wait4resp = 7
	rxenab    = 8
	rxdlys    = 9
)

// SYS_STATUS and SYS_MASK bits.
const (
	aat      = 3
	txfrb    = 4
	txprs    = 5
	txphs    = 6
	txfrs    = 7
	ldedone  = 10
	rxphe    = 12
	rxdfr    = 13
	rxfcg    = 14
	rxfce    = 15
	rxrfsl   = 16
	rxrfto   = 17
	ldeerr   = 18
	rxpto    = 21
	rfpllLL  = 24
	clkpllLL = 25
	rxsfdto  = 26
)

const (
	statusTx = 1<<txfrb | 1<<txprs | 1<<txphs | 1<<txfrs
	statusRx = 1<<rxdfr | 1<<ldedone | 1<<ldeerr | 1<<rxphe |
		1<<rxfce | 1<<rxfcg | 1<<rxrfsl
	statusRxFailed  = 1<<ldeerr | 1<<rxfce | 1<<rxphe | 1<<rxrfsl
	statusRxTimeout = 1<<rxrfto | 1<<rxpto | 1<<rxsfdto
	statusClock     = 1<<clkpllLL | 1<<rfpllLL
	statusAll       = 1<<40 - 1
)

// CHAN_CTRL bits.
const (
	dwsfd  = 17
	tnssfd = 20
	rnssfd = 21
)

// PMSC bits.
const (
	gpdce    = 18 // PMSC_CTRL0
	khzclken = 23
	blnken   = 8 // PMSC_LEDC
	atxslp   = 11
	arxslp   = 12
)

// AON bits.
const (
	onwLDC  = 6 // AON_WCFG
	onwLDD0 = 12
	uplCfg  = 2 // AON_CTRL
	aonSave = 1
	sleepEn = 0 // AON_CFG0
	wakePin = 1
	wakeSPI = 2
	wakeCnt = 3
)

// OTP_CTRL bits and addresses.
const (
	otpReadEnable = 0x01
	otpRead       = 0x02
	otpLoadLDE    = 0x8000

	otpLDOTune   uint16 = 0x004
	otpVMeas3V3  uint16 = 0x008
	otpTMeas23C  uint16 = 0x009
	otpXtalTrim  uint16 = 0x01E
)

// Frame limits.
const (
	maxFrameLen         = 127
	maxExtendedFrameLen = 1023
	fcsLen              = 2
)
