package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"uwbnode.dev/ranging"
)

var sample = Record{
	Kind:    KindRange,
	Time:    1_700_000_000_123,
	Node:    0x7D00,
	Peer:    0x0101,
	Range:   4.25,
	RXPower: -81.5,
	FPPower: -84,
	Quality: 120,
	Payload: 1.5,
}

func TestRecordCBOR(t *testing.T) {
	b, err := sample.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	// An array of nine fields.
	if b[0] != 0x89 {
		t.Errorf("record encoded as % x", b)
	}
	var got Record
	if err := got.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if got != sample {
		t.Errorf("decoded %+v, want %+v", got, sample)
	}
	if err := got.Unmarshal(b[:len(b)-1]); err == nil {
		t.Error("truncated record decoded")
	}
}

func TestRecordJSON(t *testing.T) {
	b, err := json.Marshal(sample)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"kind":"range"`) {
		t.Errorf("JSON record %s", b)
	}
	var got Record
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got != sample {
		t.Errorf("decoded %+v, want %+v", got, sample)
	}
	if err := json.Unmarshal([]byte(`{"kind":"teleport"}`), &got); err == nil {
		t.Error("unknown kind decoded")
	}
}

func TestNewRecord(t *testing.T) {
	d := &ranging.Device{Short: 0x0101, Range: 3.5, RXPower: -80, Payload: 2}
	at := time.UnixMilli(42)
	r := NewRecord(KindNewDevice, at, 0x7D00, d)
	if r.Kind != KindNewDevice || r.Time != 42 || r.Node != 0x7D00 || r.Peer != 0x0101 ||
		r.Range != 3.5 || r.RXPower != -80 || r.Payload != 2 {
		t.Errorf("NewRecord = %+v", r)
	}
}

type pipe struct {
	io.Reader
	io.Writer
}

func TestLink(t *testing.T) {
	pr, pw := io.Pipe()
	tx := NewLink(pipe{Reader: strings.NewReader(""), Writer: pw})
	rx := NewLink(pipe{Reader: pr, Writer: io.Discard})
	want := []Record{sample, {Kind: KindInactive, Node: 1, Peer: 2}}
	go func() {
		// Line noise before the first frame.
		pw.Write([]byte{0x00, 0x13, 0x37})
		for _, r := range want {
			if err := tx.Publish(r); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()
	for _, w := range want {
		got, err := rx.Next()
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Errorf("received %+v, want %+v", got, w)
		}
	}
	if _, err := rx.Next(); err != io.EOF {
		t.Errorf("Next after close returned %v", err)
	}
}

func TestLinkCorruption(t *testing.T) {
	var buf bytes.Buffer
	tx := NewLink(pipe{Reader: &buf, Writer: &buf})
	if err := tx.Publish(sample); err != nil {
		t.Fatal(err)
	}
	frame := bytes.Clone(buf.Bytes())
	buf.Reset()
	bad := bytes.Clone(frame)
	bad[5] ^= 0xFF
	buf.Write(bad)
	buf.Write(frame)
	buf.Write(frame[:4])
	rx := NewLink(pipe{Reader: &buf, Writer: io.Discard})
	if _, err := rx.Next(); !errors.Is(err, ErrChecksum) {
		t.Fatalf("corrupt frame returned %v", err)
	}
	got, err := rx.Next()
	if err != nil {
		t.Fatal(err)
	}
	if got != sample {
		t.Errorf("received %+v after corruption", got)
	}
	if _, err := rx.Next(); err != io.ErrUnexpectedEOF {
		t.Errorf("truncated frame returned %v", err)
	}
}

func TestCRC16(t *testing.T) {
	// The CRC-16/CCITT-FALSE check value.
	if got := crc16([]byte("123456789")); got != 0x29B1 {
		t.Errorf("crc16 = %#04x, want 0x29b1", got)
	}
}

func TestHub(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conns := make([]*websocket.Conn, 2)
	for i := range conns {
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		conns[i] = c
	}
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != len(conns) {
		if time.Now().After(deadline) {
			t.Fatalf("%d clients registered", hub.Clients())
		}
		time.Sleep(time.Millisecond)
	}
	if err := hub.Publish(sample); err != nil {
		t.Fatal(err)
	}
	for _, c := range conns {
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		var got Record
		if err := c.ReadJSON(&got); err != nil {
			t.Fatal(err)
		}
		if got != sample {
			t.Errorf("client received %+v", got)
		}
	}
	hub.Close()
	for _, c := range conns {
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err := c.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Errorf("read after hub close returned %v", err)
		}
	}
	if hub.Clients() != 0 {
		t.Errorf("%d clients after close", hub.Clients())
	}
}

func TestRecorder(t *testing.T) {
	var got []Record
	sink := SinkFunc(func(r Record) error {
		got = append(got, r)
		return nil
	})
	failing := SinkFunc(func(Record) error { return errors.New("link down") })
	at := time.UnixMilli(1000)
	rec := NewRecorder(0x7D00, func() time.Time { return at }, nil, sink, failing)
	var l ranging.Listener = rec
	d := &ranging.Device{Short: 0x0101, Range: 2}
	l.NewDevice(d)
	l.NewRange(d)
	l.RangeSent(d)
	l.InactiveDevice(d)
	l.TimeoutExtension()
	kinds := []Kind{KindNewDevice, KindRange, KindInactive}
	if len(got) != len(kinds) {
		t.Fatalf("recorded %d records, want %d", len(got), len(kinds))
	}
	for i, k := range kinds {
		if got[i].Kind != k || got[i].Time != 1000 || got[i].Node != 0x7D00 || got[i].Peer != 0x0101 {
			t.Errorf("record %d: %+v", i, got[i])
		}
	}
	if ranges, timeouts := rec.Stats(); ranges != 1 || timeouts != 1 {
		t.Errorf("stats %d ranges, %d timeouts", ranges, timeouts)
	}
}

func TestSubject(t *testing.T) {
	if got := subject("uwb.range", sample); got != "uwb.range.7D00.range" {
		t.Errorf("subject = %q", got)
	}
}
