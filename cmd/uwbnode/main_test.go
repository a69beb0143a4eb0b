package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"uwbnode.dev/telemetry"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestSim(t *testing.T) {
	out, err := execute(t, "sim", "--anchors", "1", "--tags", "1", "--duration", "8s", "--json", "--log-level", "err")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "range 7D00 -> 0101") {
		t.Errorf("no anchor range in output:\n%s", out)
	}
	if !strings.Contains(out, "new 0101 -> 7D00") {
		t.Errorf("tag did not discover the anchor:\n%s", out)
	}
	if !strings.Contains(out, "tag 01:01:") {
		t.Errorf("missing summary:\n%s", out)
	}
}

func TestSimArgs(t *testing.T) {
	tests := [][]string{
		{"sim", "--anchors", "0"},
		{"sim", "--log-level", "loud"},
		{"sim", "--address", "nowhere"},
		{"sim", "extra"},
	}
	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%q succeeded", args)
		}
	}
}

func TestVersion(t *testing.T) {
	Version = "v1.2.3"
	defer func() { Version = "" }()
	for _, args := range [][]string{{"--version"}, {"version"}} {
		out, err := execute(t, args...)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "v1.2.3") {
			t.Errorf("%q output %q", args, out)
		}
	}
}

type stream struct {
	io.Reader
	io.Writer
}

func TestReadLink(t *testing.T) {
	var buf bytes.Buffer
	tx := telemetry.NewLink(stream{Reader: &buf, Writer: &buf})
	want := []telemetry.Record{
		{Kind: telemetry.KindRange, Node: 0x7D00, Peer: 0x0101, Range: 2},
		{Kind: telemetry.KindInactive, Node: 0x7D00, Peer: 0x0101},
	}
	for _, r := range want {
		if err := tx.Publish(r); err != nil {
			t.Fatal(err)
		}
	}
	// Corrupt the record of the first frame.
	buf.Bytes()[3] ^= 0xFF
	var got []telemetry.Record
	rx := telemetry.NewLink(stream{Reader: &buf, Writer: io.Discard})
	if err := readLink(rx, func(r telemetry.Record) { got = append(got, r) }, nil); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != want[1] {
		t.Errorf("read %+v, want %+v", got, want[1:])
	}
}
