package mac

import (
	"bytes"
	"testing"
)

func TestShortFrame(t *testing.T) {
	var e Encoder
	f := e.AppendShort(nil, 0x1234, 0xABCD)
	want := []byte{0x41, 0x88, 0x00, 0xCA, 0xDE, 0xAB, 0xCD, 0x12, 0x34}
	if !bytes.Equal(f, want) {
		t.Fatalf("wrote %x, want %x", f, want)
	}
	h, err := DecodeShort(f)
	if err != nil {
		t.Fatal(err)
	}
	if h.Src != 0x1234 || h.Dst != 0xABCD || h.Seq != 0 || h.Shape != Short {
		t.Errorf("decoded %+v", h)
	}
}

func TestLongFrame(t *testing.T) {
	var e Encoder
	dst := LongAddr{1, 2, 3, 4, 5, 6, 7, 8}
	f := e.AppendLong(nil, 0x0102, dst)
	want := []byte{0x41, 0x8C, 0x00, 0xCA, 0xDE, 8, 7, 6, 5, 4, 3, 2, 1, 0x01, 0x02}
	if !bytes.Equal(f, want) {
		t.Fatalf("wrote %x, want %x", f, want)
	}
	h, err := Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if h.DstLong != dst || h.Src != 0x0102 || h.Dst != 0x0201 {
		t.Errorf("decoded %+v", h)
	}
}

func TestBlinkFrame(t *testing.T) {
	var e Encoder
	f := e.AppendBlink(nil, 0xBEEF)
	if !bytes.Equal(f, []byte{0xC5, 0x00, 0xBE, 0xEF}) {
		t.Fatalf("wrote %x", f)
	}
	h, err := Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if h.Shape != Blink || h.Src != 0xBEEF {
		t.Errorf("decoded %+v", h)
	}
}

func TestSequenceShared(t *testing.T) {
	// One counter per node, shared across frame shapes.
	var e Encoder
	for i := 0; i < 255; i++ {
		e.AppendShort(nil, 1, 2)
	}
	if f := e.AppendBlink(nil, 1); f[1] != 255 {
		t.Errorf("blink sequence %d, want 255", f[1])
	}
	if f := e.AppendLong(nil, 1, LongAddr{}); f[2] != 0 {
		t.Errorf("sequence did not wrap: %d", f[2])
	}
	if e.Seq() != 1 {
		t.Errorf("next sequence %d", e.Seq())
	}
}

func TestTruncated(t *testing.T) {
	var e Encoder
	frames := [][]byte{
		e.AppendBlink(nil, 1),
		e.AppendShort(nil, 1, 2),
		e.AppendLong(nil, 1, LongAddr{}),
	}
	for _, f := range frames {
		if _, err := Decode(f[:len(f)-1]); err != ErrShortFrame {
			t.Errorf("decoding %x: got %v, want ErrShortFrame", f[:len(f)-1], err)
		}
	}
	if _, err := Decode(nil); err == nil {
		t.Error("decoded empty frame")
	}
}

func TestAddresses(t *testing.T) {
	a, err := ParseShortAddr("7D:00")
	if err != nil {
		t.Fatal(err)
	}
	if a != 0x7D00 || a.String() != "7D:00" {
		t.Errorf("parsed %v", a)
	}
	var b [2]byte
	a.Put(b[:])
	if b != [2]byte{0x00, 0x7D} || ShortAddrFrom(b[:]) != a {
		t.Errorf("payload form %x", b)
	}
	eui := "7D:00:22:EA:82:60:3B:9C"
	l, err := ParseLongAddr(eui)
	if err != nil {
		t.Fatal(err)
	}
	if l.Short() != a {
		t.Errorf("short of %v is %v", l, l.Short())
	}
	if l.String() != eui {
		t.Errorf("formatted %q as %q", eui, l.String())
	}
	if _, err := ParseLongAddr("7D:00"); err == nil {
		t.Error("parsed short string as EUI")
	}
}

func FuzzDecode(f *testing.F) {
	var e Encoder
	f.Add(e.AppendBlink(nil, 1))
	f.Add(e.AppendShort(nil, 1, 2))
	f.Add(e.AppendLong(nil, 1, LongAddr{9}))
	f.Fuzz(func(t *testing.T, frame []byte) {
		h, err := Decode(frame)
		if err != nil {
			return
		}
		if len(frame) < h.Shape.HeaderLen() {
			t.Errorf("decoded %d byte frame as %v", len(frame), h.Shape)
		}
	})
}
