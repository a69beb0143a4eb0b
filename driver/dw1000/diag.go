package dw1000

import (
	"encoding/binary"
	"fmt"
)

// TempAndVbat samples the on-chip temperature (°C) and supply
// voltage (V) sensors.
func (d *Device) TempAndVbat() (temp, vbat float64, err error) {
	if err := d.writeRegs(
		regRFConf, subRFSARCtrl, uint8(0x80),
		regRFConf, subRFSARTest, uint8(0x0A),
		regRFConf, subRFSARTest, uint8(0x0F),
		regTxCal, noSub, uint8(0x01),
		regTxCal, noSub, uint8(0x00),
	); err != nil {
		return 0, 0, err
	}
	b := d.scratch[:1]
	if err := d.readBytes(regTxCal, subTCSARVbat, b); err != nil {
		return 0, 0, err
	}
	sarVbat := int(b[0])
	if err := d.readBytes(regTxCal, subTCSARTemp, b); err != nil {
		return 0, 0, err
	}
	sarTemp := int(b[0])
	vbat = float64(sarVbat-int(d.vmeas3v3))/173 + 3.3
	temp = float64(sarTemp-int(d.tmeas23C))*1.14 + 23
	return temp, vbat, nil
}

// modify reads a register, applies fn and writes it back.
func (d *Device) modify(reg byte, sub uint16, n int, fn func(v uint32) uint32) error {
	b := d.scratch[:4]
	clear(b)
	if err := d.readBytes(reg, sub, b[:n]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, fn(binary.LittleEndian.Uint32(b)))
	return d.writeBytes(reg, sub, b[:n])
}

func withBits(v uint32, on bool, bits ...uint) uint32 {
	for _, b := range bits {
		setBit(&v, b, on)
	}
	return v
}

// DeepSleep puts the chip to sleep until woken by SPI activity or
// the wake-up pin.
func (d *Device) DeepSleep() error {
	if err := d.modify(regAON, subAONWCfg, 2, func(v uint32) uint32 {
		return withBits(v, true, onwLDC, onwLDD0)
	}); err != nil {
		return err
	}
	if err := d.modify(regPMSC, subPMSCCtrl1, 4, func(v uint32) uint32 {
		return withBits(v, false, atxslp, arxslp)
	}); err != nil {
		return err
	}
	if err := d.modify(regAON, subAONCfg0, 4, func(v uint32) uint32 {
		v = withBits(v, true, wakeSPI, wakePin, sleepEn)
		return withBits(v, false, wakeCnt)
	}); err != nil {
		return err
	}
	return d.modify(regAON, subAONCtrl, 1, func(v uint32) uint32 {
		return withBits(v, true, uplCfg, aonSave)
	})
}

// SPIWakeup wakes the chip from deep sleep by holding chip select.
func (d *Device) SPIWakeup() error {
	if err := d.port.Select(true); err != nil {
		return fmt.Errorf("dw1000: wakeup: %w", err)
	}
	d.port.DelayMs(2)
	if err := d.port.Select(false); err != nil {
		return fmt.Errorf("dw1000: wakeup: %w", err)
	}
	if d.debounceClock {
		return d.EnableDebounceClock()
	}
	return nil
}

func (d *Device) EnableDebounceClock() error {
	if err := d.modify(regPMSC, subPMSCCtrl0, 4, func(v uint32) uint32 {
		return withBits(v, true, gpdce, khzclken)
	}); err != nil {
		return err
	}
	d.debounceClock = true
	return nil
}

func (d *Device) EnableLEDBlinking() error {
	return d.modify(regPMSC, subPMSCLEDC, 4, func(v uint32) uint32 {
		return withBits(v, true, blnken)
	})
}

// SetGPIOMode sets the 2-bit mode field at bit msgp of GPIO_MODE.
func (d *Device) SetGPIOMode(msgp uint, mode uint8) error {
	return d.modify(regGPIOCtrl, subGPIOMode, 4, func(v uint32) uint32 {
		setBit(&v, msgp, mode&1 != 0)
		setBit(&v, msgp+1, mode&2 != 0)
		return v
	})
}

// HighPowerInit routes the external power amplifier controls to
// GPIO4-6 and selects maximum transmit power.
func (d *Device) HighPowerInit() error {
	if err := d.modify(regGPIOCtrl, 0, 4, func(v uint32) uint32 {
		return v | 0x40<<8 | 0x05<<16
	}); err != nil {
		return err
	}
	return d.writeRegs(
		regPMSC, subPMSCTxFSeq, uint16(0),
		regTxCal, subTCPGDelay, uint8(0xC0),
		regTxPower, uint16(0), uint32(0x1F1F1F1F),
	)
}

// Identifier describes the chip model and revision.
func (d *Device) Identifier() (string, error) {
	b := d.scratch[:4]
	if err := d.readBytes(regDevID, noSub, b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%02X - model: %d, version: %d, revision: %d",
		uint16(b[3])<<8|uint16(b[2]), b[1], b[0]>>4, b[0]&0x0F), nil
}

// EUI returns the extended unique identifier as written to SetEUI.
func (d *Device) EUI() ([8]byte, error) {
	var eui [8]byte
	b := d.scratch[:8]
	if err := d.readBytes(regEUI, noSub, b); err != nil {
		return eui, err
	}
	for i := range eui {
		eui[i] = b[len(b)-1-i]
	}
	return eui, nil
}

// NetworkIDAndShortAddress describes the PANADR register.
func (d *Device) NetworkIDAndShortAddress() (string, error) {
	b := d.scratch[:4]
	if err := d.readBytes(regPANADR, noSub, b); err != nil {
		return "", err
	}
	p := panAdr(binary.LittleEndian.Uint32(b))
	return fmt.Sprintf("PAN: %02X, Short Address: %02X", p.networkID(), p.shortAddress()), nil
}

// ModeString describes the configured radio settings.
func (d *Device) ModeString() string {
	var rate int
	switch d.dataRate {
	case Rate110K:
		rate = 110
	case Rate850K:
		rate = 850
	case Rate6M8:
		rate = 6800
	}
	var prf int
	switch d.prf {
	case PRF16MHz:
		prf = 16
	case PRF64MHz:
		prf = 64
	}
	return fmt.Sprintf("Data rate: %d kb/s, PRF: %d MHz, Preamble: %d symbols (code #%d), Channel: #%d",
		rate, prf, d.preambleLength.Symbols(), d.preambleCode, d.channel)
}
