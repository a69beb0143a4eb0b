package dw1000

import (
	"encoding/binary"
	"fmt"
)

// noSub marks register accesses without a sub-address.
const noSub uint16 = 0xFF

const (
	opRead  = 0x00
	opWrite = 0x80
)

// header builds the transaction header for reg at offset sub into
// buf and returns it.
func header(buf []byte, write bool, reg byte, sub uint16) []byte {
	op := byte(opRead)
	if write {
		op = opWrite
	}
	if sub == noSub {
		buf[0] = op | reg
		return buf[:1]
	}
	buf[0] = op | 0x40 | reg
	if sub < 128 {
		buf[1] = byte(sub)
		return buf[:2]
	}
	buf[1] = 0x80 | byte(sub&0x7F)
	buf[2] = byte(sub >> 7)
	return buf[:3]
}

func (d *Device) readBytes(reg byte, sub uint16, data []byte) error {
	var hdr [3]byte
	if err := d.port.ReadSPI(header(hdr[:], false, reg, sub), data); err != nil {
		return fmt.Errorf("dw1000: read %#02x:%#x: %w", reg, sub, err)
	}
	return nil
}

func (d *Device) writeBytes(reg byte, sub uint16, data []byte) error {
	var hdr [3]byte
	if err := d.port.WriteSPI(header(hdr[:], true, reg, sub), data); err != nil {
		return fmt.Errorf("dw1000: write %#02x:%#x: %w", reg, sub, err)
	}
	return nil
}

func (d *Device) readUint16(reg byte, sub uint16) (uint16, error) {
	b := d.scratch[:2]
	if err := d.readBytes(reg, sub, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Device) readUint32(reg byte, sub uint16) (uint32, error) {
	b := d.scratch[:4]
	if err := d.readBytes(reg, sub, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Device) writeUint8(reg byte, sub uint16, v uint8) error {
	b := d.scratch[:1]
	b[0] = v
	return d.writeBytes(reg, sub, b)
}

func (d *Device) writeUint16(reg byte, sub uint16, v uint16) error {
	b := d.scratch[:2]
	binary.LittleEndian.PutUint16(b, v)
	return d.writeBytes(reg, sub, b)
}

func (d *Device) writeUint32(reg byte, sub uint16, v uint32) error {
	b := d.scratch[:4]
	binary.LittleEndian.PutUint32(b, v)
	return d.writeBytes(reg, sub, b)
}

// writeRegs writes (register, sub-address, value) triples. The
// width of each write is taken from the type of value.
func (d *Device) writeRegs(regs ...any) error {
	if len(regs)%3 != 0 {
		panic("odd number of register triples")
	}
	for i := 0; i < len(regs); i += 3 {
		reg := regs[i].(byte)
		sub := regs[i+1].(uint16)
		var err error
		switch v := regs[i+2].(type) {
		case uint8:
			err = d.writeUint8(reg, sub, v)
		case uint16:
			err = d.writeUint16(reg, sub, v)
		case uint32:
			err = d.writeUint32(reg, sub, v)
		default:
			panic(fmt.Sprintf("unsupported register value %T", v))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readOTP reads a 32-bit word from the one time programmable memory.
func (d *Device) readOTP(addr uint16) (uint32, error) {
	if err := d.writeRegs(
		regOTPIF, subOTPAddr, addr,
		regOTPIF, subOTPCtrl, uint8(otpRead|otpReadEnable),
		regOTPIF, subOTPCtrl, uint8(otpReadEnable),
	); err != nil {
		return 0, err
	}
	v, err := d.readUint32(regOTPIF, subOTPRData)
	if err != nil {
		return 0, err
	}
	if err := d.writeUint8(regOTPIF, subOTPCtrl, 0x00); err != nil {
		return 0, err
	}
	return v, nil
}
