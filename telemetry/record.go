// Package telemetry exports ranging events as CBOR records over
// serial links, websockets and NATS.
package telemetry

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"uwbnode.dev/ranging"
)

// Kind is the event a record describes.
type Kind uint8

const (
	KindRange Kind = iota
	KindNewDevice
	KindInactive
	KindEvicted
	KindBlink
)

var kindNames = [...]string{
	KindRange:     "range",
	KindNewDevice: "new",
	KindInactive:  "inactive",
	KindEvicted:   "evicted",
	KindBlink:     "blink",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("telemetry: invalid kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("telemetry: unknown kind %q", b)
}

// Record is an event seen by a node about one of its peers.
type Record struct {
	_ struct{} `cbor:",toarray"`

	Kind Kind `json:"kind"`
	// Time is in milliseconds since the Unix epoch.
	Time int64  `json:"time"`
	Node uint16 `json:"node"`
	Peer uint16 `json:"peer"`
	// Range in meters.
	Range   float32 `json:"range"`
	RXPower float32 `json:"rx_power"`
	FPPower float32 `json:"fp_power"`
	Quality float32 `json:"quality"`
	Payload float32 `json:"payload"`
}

// NewRecord describes d as seen by node at t.
func NewRecord(k Kind, t time.Time, node uint16, d *ranging.Device) Record {
	return Record{
		Kind:    k,
		Time:    t.UnixMilli(),
		Node:    node,
		Peer:    uint16(d.Short),
		Range:   float32(d.Range),
		RXPower: float32(d.RXPower),
		FPPower: float32(d.FPPower),
		Quality: float32(d.Quality),
		Payload: d.Payload,
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes r in its CBOR form, an array of its fields.
func (r Record) Marshal() ([]byte, error) {
	return encMode.Marshal(r)
}

// Unmarshal decodes the CBOR form of a record.
func (r *Record) Unmarshal(b []byte) error {
	if err := decMode.Unmarshal(b, r); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s %04X -> %04X range %.3f m rx %.1f dBm payload %g",
		r.Kind, r.Node, r.Peer, r.Range, r.RXPower, r.Payload)
}
