package ranging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"uwbnode.dev/dwtime"
	"uwbnode.dev/mac"
)

// MessageType is the protocol message carried after the MAC header.
type MessageType uint8

const (
	Poll        MessageType = 0
	PollAck     MessageType = 1
	Range       MessageType = 2
	RangeReport MessageType = 3
	Blink       MessageType = 4
	RangingInit MessageType = 5
	TypeError   MessageType = 254
	// RangeFailed is recognized but never sent.
	RangeFailed MessageType = 255
)

func (m MessageType) String() string {
	switch m {
	case Poll:
		return "POLL"
	case PollAck:
		return "POLL_ACK"
	case Range:
		return "RANGE"
	case RangeReport:
		return "RANGE_REPORT"
	case Blink:
		return "BLINK"
	case RangingInit:
		return "RANGING_INIT"
	case TypeError:
		return "TYPE_ERROR"
	case RangeFailed:
		return "RANGE_FAILED"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(m))
	}
}

var (
	// ErrUnknownMessage reports a frame without a known message type.
	ErrUnknownMessage = errors.New("ranging: unknown message")
	// ErrUnknownPeer reports a message from a device missing from
	// the directory.
	ErrUnknownPeer = errors.New("ranging: unknown peer")
	// ErrMalformed reports a payload shorter than its device count
	// implies.
	ErrMalformed = errors.New("ranging: malformed payload")
)

// DetectMessageType classifies frame by its MAC header. Frames with
// an unknown header or type byte are reported as TypeError.
func DetectMessageType(frame []byte) MessageType {
	var t MessageType
	switch mac.Classify(frame) {
	case mac.Blink:
		return Blink
	case mac.Long:
		if len(frame) <= mac.LongLen {
			return TypeError
		}
		t = MessageType(frame[mac.LongLen])
	case mac.Short:
		if len(frame) <= mac.ShortLen {
			return TypeError
		}
		t = MessageType(frame[mac.ShortLen])
	case mac.Unknown:
		return TypeError
	default:
		panic("unreachable")
	}
	switch t {
	case Poll, PollAck, Range, RangeReport, Blink, RangingInit, RangeFailed:
		return t
	default:
		return TypeError
	}
}

// Payload layouts, relative to the end of the MAC header.
const (
	pollEntryLen  = 4
	rangeEntryLen = 16
	// listOffset is the offset of the first device entry of Poll and
	// Range messages, after the type and count bytes.
	listOffset = 2
	reportLen  = 9
)

// pollEntry assigns a reply time to an anchor.
type pollEntry struct {
	Addr mac.ShortAddr
	// ReplyTime is the Poll-Ack delay in microseconds.
	ReplyTime uint16
}

// rangeEntry carries the tag side intervals of one exchange.
type rangeEntry struct {
	Addr mac.ShortAddr
	// Round is the poll-ack receive time minus the poll send time.
	Round dwtime.Time
	// Reply is the range send time minus the poll-ack receive time.
	Reply   dwtime.Time
	Payload float32
}

func appendPoll(b []byte, entries []pollEntry) []byte {
	b = append(b, byte(Poll), byte(len(entries)))
	for _, e := range entries {
		b = binary.LittleEndian.AppendUint16(b, uint16(e.Addr))
		b = binary.LittleEndian.AppendUint16(b, e.ReplyTime)
	}
	return b
}

// list returns the device count and entries of a Poll or Range
// message in a short frame.
func list(frame []byte, entryLen int) (int, []byte, error) {
	if len(frame) < mac.ShortLen {
		return 0, nil, mac.ErrShortFrame
	}
	p := frame[mac.ShortLen:]
	if len(p) < listOffset {
		return 0, nil, ErrMalformed
	}
	n := int(p[1])
	p = p[listOffset:]
	if len(p) < n*entryLen {
		return 0, nil, fmt.Errorf("%w: %d entries in %d bytes", ErrMalformed, n, len(p))
	}
	return n, p, nil
}

func decodePoll(frame []byte) ([]pollEntry, error) {
	n, p, err := list(frame, pollEntryLen)
	if err != nil {
		return nil, err
	}
	entries := make([]pollEntry, n)
	for i := range entries {
		e := p[i*pollEntryLen:]
		entries[i] = pollEntry{
			Addr:      mac.ShortAddrFrom(e),
			ReplyTime: binary.LittleEndian.Uint16(e[2:]),
		}
	}
	return entries, nil
}

func appendRange(b []byte, entries []rangeEntry) []byte {
	b = append(b, byte(Range), byte(len(entries)))
	for _, e := range entries {
		b = binary.LittleEndian.AppendUint16(b, uint16(e.Addr))
		round, reply := e.Round.Wrap().Bytes(), e.Reply.Wrap().Bytes()
		b = append(b, round[:]...)
		b = append(b, reply[:]...)
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(e.Payload))
	}
	return b
}

func decodeRange(frame []byte) ([]rangeEntry, error) {
	n, p, err := list(frame, rangeEntryLen)
	if err != nil {
		return nil, err
	}
	entries := make([]rangeEntry, n)
	for i := range entries {
		e := p[i*rangeEntryLen:]
		entries[i] = rangeEntry{
			Addr:    mac.ShortAddrFrom(e),
			Round:   dwtime.FromBytes(e[2:7]),
			Reply:   dwtime.FromBytes(e[7:12]),
			Payload: math.Float32frombits(binary.LittleEndian.Uint32(e[12:])),
		}
	}
	return entries, nil
}

func appendRangeReport(b []byte, rng, rxPower float32) []byte {
	b = append(b, byte(RangeReport))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(rng))
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(rxPower))
}

func decodeRangeReport(frame []byte) (rng, rxPower float32, err error) {
	if len(frame) < mac.ShortLen+reportLen {
		return 0, 0, ErrMalformed
	}
	p := frame[mac.ShortLen:]
	rng = math.Float32frombits(binary.LittleEndian.Uint32(p[1:]))
	rxPower = math.Float32frombits(binary.LittleEndian.Uint32(p[5:]))
	return rng, rxPower, nil
}

// appendBlinkAnchors appends the list of anchors known to a tag.
func appendBlinkAnchors(b []byte, anchors []mac.ShortAddr) []byte {
	b = append(b, byte(len(anchors)))
	for _, a := range anchors {
		b = binary.LittleEndian.AppendUint16(b, uint16(a))
	}
	return b
}

func decodeBlinkAnchors(frame []byte) ([]mac.ShortAddr, error) {
	if len(frame) <= mac.BlinkLen {
		return nil, ErrMalformed
	}
	p := frame[mac.BlinkLen:]
	n := int(p[0])
	p = p[1:]
	if len(p) < 2*n {
		return nil, fmt.Errorf("%w: %d anchors in %d bytes", ErrMalformed, n, len(p))
	}
	anchors := make([]mac.ShortAddr, n)
	for i := range anchors {
		anchors[i] = mac.ShortAddrFrom(p[2*i:])
	}
	return anchors, nil
}
