// Package mac encodes and decodes the IEEE 802.15.4 style MAC
// headers used by the ranging protocol: blink frames, and data
// frames with short or long destination addresses.
package mac

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Header sizes.
const (
	BlinkLen = 4
	ShortLen = 9
	LongLen  = 15
)

const (
	fc1      = 0x41
	fc1Blink = 0xC5
	fc2Long  = 0x8C
	fc2Short = 0x88
	panLo    = 0xCA
	panHi    = 0xDE
)

// Broadcast is the short address every node accepts.
const Broadcast ShortAddr = 0xFFFF

var ErrShortFrame = errors.New("mac: frame too short")

// ShortAddr is a 16-bit node address. Payloads carry it
// little-endian, MAC headers most significant byte first.
type ShortAddr uint16

// ShortAddrFrom decodes the little-endian form of a short address.
func ShortAddrFrom(b []byte) ShortAddr {
	return ShortAddr(binary.LittleEndian.Uint16(b))
}

// Put writes the little-endian form of a to b.
func (a ShortAddr) Put(b []byte) {
	binary.LittleEndian.PutUint16(b, uint16(a))
}

// ParseShortAddr parses addresses such as "7D:00".
func ParseShortAddr(s string) (ShortAddr, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil || len(b) != 2 {
		return 0, fmt.Errorf("mac: invalid short address %q", s)
	}
	return ShortAddr(b[0])<<8 | ShortAddr(b[1]), nil
}

func (a ShortAddr) String() string {
	return fmt.Sprintf("%02X:%02X", byte(a>>8), byte(a))
}

// LongAddr is a 64-bit EUI in the byte order the radio stores it:
// the first two bytes are the short address, low byte first.
// MAC headers carry it reversed.
type LongAddr [8]byte

// ParseLongAddr parses colon separated hex EUIs such as
// "7D:00:22:EA:82:60:3B:9C". The first pair becomes the high byte
// of the short address.
func ParseLongAddr(s string) (LongAddr, error) {
	var a LongAddr
	b, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil || len(b) != len(a) {
		return a, fmt.Errorf("mac: invalid long address %q", s)
	}
	a[0], a[1] = b[1], b[0]
	copy(a[2:], b[2:])
	return a, nil
}

// Short returns the short address embedded in a.
func (a LongAddr) Short() ShortAddr {
	return ShortAddrFrom(a[:2])
}

func (a LongAddr) String() string {
	b := a
	b[0], b[1] = a[1], a[0]
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}

// Shape is the header layout of a frame.
type Shape int

const (
	Unknown Shape = iota
	Blink
	Short
	Long
)

func (s Shape) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Blink:
		return "blink"
	case Short:
		return "short"
	case Long:
		return "long"
	default:
		panic("unreachable")
	}
}

// HeaderLen returns the header size of the shape, or 0.
func (s Shape) HeaderLen() int {
	switch s {
	case Blink:
		return BlinkLen
	case Short:
		return ShortLen
	case Long:
		return LongLen
	case Unknown:
		return 0
	default:
		panic("unreachable")
	}
}

// Classify reports the header layout of frame by its control bytes.
func Classify(frame []byte) Shape {
	switch {
	case len(frame) >= 1 && frame[0] == fc1Blink:
		return Blink
	case len(frame) >= 2 && frame[0] == fc1 && frame[1] == fc2Long:
		return Long
	case len(frame) >= 2 && frame[0] == fc1 && frame[1] == fc2Short:
		return Short
	}
	return Unknown
}

// Encoder generates frame headers. Every frame consumes one value
// of the sequence counter, whatever its shape.
type Encoder struct {
	seq uint8
}

// Seq returns the sequence number of the next frame.
func (e *Encoder) Seq() uint8 {
	return e.seq
}

func (e *Encoder) next() uint8 {
	s := e.seq
	e.seq++
	return s
}

// AppendBlink appends a blink header from src.
func (e *Encoder) AppendBlink(b []byte, src ShortAddr) []byte {
	return append(b, fc1Blink, e.next(), byte(src>>8), byte(src))
}

// AppendShort appends a data frame header from src to dst.
func (e *Encoder) AppendShort(b []byte, src, dst ShortAddr) []byte {
	return append(b, fc1, fc2Short, e.next(), panLo, panHi,
		byte(dst>>8), byte(dst),
		byte(src>>8), byte(src),
	)
}

// AppendLong appends a data frame header from src to the EUI dst.
func (e *Encoder) AppendLong(b []byte, src ShortAddr, dst LongAddr) []byte {
	b = append(b, fc1, fc2Long, e.next(), panLo, panHi)
	for i := len(dst) - 1; i >= 0; i-- {
		b = append(b, dst[i])
	}
	return append(b, byte(src>>8), byte(src))
}

// Header is a decoded frame header. Dst is zero for blinks, and
// DstLong is only set for long frames.
type Header struct {
	Shape   Shape
	Seq     uint8
	Src     ShortAddr
	Dst     ShortAddr
	DstLong LongAddr
}

func DecodeBlink(frame []byte) (Header, error) {
	if len(frame) < BlinkLen {
		return Header{}, ErrShortFrame
	}
	return Header{
		Shape: Blink,
		Seq:   frame[1],
		Src:   ShortAddr(frame[2])<<8 | ShortAddr(frame[3]),
	}, nil
}

func DecodeShort(frame []byte) (Header, error) {
	if len(frame) < ShortLen {
		return Header{}, ErrShortFrame
	}
	return Header{
		Shape: Short,
		Seq:   frame[2],
		Dst:   ShortAddr(frame[5])<<8 | ShortAddr(frame[6]),
		Src:   ShortAddr(frame[7])<<8 | ShortAddr(frame[8]),
	}, nil
}

func DecodeLong(frame []byte) (Header, error) {
	if len(frame) < LongLen {
		return Header{}, ErrShortFrame
	}
	h := Header{
		Shape: Long,
		Seq:   frame[2],
		Src:   ShortAddr(frame[13])<<8 | ShortAddr(frame[14]),
	}
	for i := range h.DstLong {
		h.DstLong[i] = frame[12-i]
	}
	h.Dst = h.DstLong.Short()
	return h, nil
}

// Decode decodes the header of any known shape.
func Decode(frame []byte) (Header, error) {
	switch s := Classify(frame); s {
	case Blink:
		return DecodeBlink(frame)
	case Short:
		return DecodeShort(frame)
	case Long:
		return DecodeLong(frame)
	case Unknown:
		return Header{}, fmt.Errorf("mac: unknown frame control %x", frame[:min(len(frame), 2)])
	default:
		panic("unreachable")
	}
}
