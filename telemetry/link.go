package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/tarm/serial"
)

// Frames on a link are
//
//	start | length | CBOR record | CRC-16/CCITT (big-endian)
//
// with the checksum covering the length and the record.
const (
	frameStart  = 0x7E
	maxFrameLen = 255
)

var (
	ErrChecksum = errors.New("telemetry: checksum mismatch")
	ErrTooLong  = errors.New("telemetry: record too long")
)

// Link exchanges records over a byte stream such as a serial port.
// Publish may be called concurrently with Next.
type Link struct {
	mu sync.Mutex
	w  io.Writer
	r  *bufio.Reader
}

// NewLink returns a link over rw.
func NewLink(rw io.ReadWriter) *Link {
	return &Link{w: rw, r: bufio.NewReader(rw)}
}

// Publish writes a record frame.
func (l *Link) Publish(r Record) error {
	b, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if len(b) > maxFrameLen {
		return ErrTooLong
	}
	frame := make([]byte, 0, len(b)+4)
	frame = append(frame, frameStart, byte(len(b)))
	frame = append(frame, b...)
	crc := crc16(frame[1:])
	frame = append(frame, byte(crc>>8), byte(crc))
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(frame); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// Next reads the next record. Bytes before a frame start are
// skipped. A frame with a bad checksum is consumed and reported as
// ErrChecksum; the link remains usable.
func (l *Link) Next() (Record, error) {
	for {
		c, err := l.r.ReadByte()
		if err != nil {
			return Record{}, err
		}
		if c == frameStart {
			break
		}
	}
	length, err := l.r.ReadByte()
	if err != nil {
		return Record{}, unexpected(err)
	}
	n := int(length)
	buf := make([]byte, 1+n+2)
	buf[0] = length
	if _, err := io.ReadFull(l.r, buf[1:]); err != nil {
		return Record{}, unexpected(err)
	}
	body := buf[:1+n]
	want := uint16(buf[1+n])<<8 | uint16(buf[2+n])
	if crc16(body) != want {
		return Record{}, ErrChecksum
	}
	var r Record
	if err := r.Unmarshal(body[1:]); err != nil {
		return Record{}, err
	}
	return r, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// crc16 computes the CRC-16/CCITT-FALSE checksum of b.
func crc16(b []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, v := range b {
		crc ^= uint16(v) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// OpenSerial opens a serial port at the given baud rate. An empty
// dev tries the usual USB serial adapters.
func OpenSerial(dev string, baud int) (io.ReadWriteCloser, error) {
	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyUSB0", "/dev/ttyACM0")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("telemetry: no serial device specified")
	}
	var firstErr error
	for _, dev := range devices {
		s, err := serial.OpenPort(&serial.Config{Name: dev, Baud: baud})
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil, firstErr
}
