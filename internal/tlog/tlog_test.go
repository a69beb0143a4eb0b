package tlog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	buf := new(bytes.Buffer)
	l := New(buf)
	l.Debugf("dw1000", "dropped %d", 1)
	l.Infof("dw1000", "kept %d", 2)
	l.SetLevel("ranging", Verbose)
	l.Verbosef("ranging", "kept %d", 3)
	l.Verbosef("dw1000", "dropped %d", 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d records: %q", len(lines), buf.String())
	}
	var rec struct {
		Level   string `json:"level"`
		Tag     string `json:"tag"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Tag != "ranging" || rec.Message != "kept 3" || rec.Level != "trace" {
		t.Errorf("record %+v", rec)
	}
}

func TestDefaultLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	l := New(buf)
	l.SetDefaultLevel(Error)
	l.Warnf("board", "dropped")
	if buf.Len() != 0 {
		t.Errorf("wrote %q", buf.String())
	}
	l.SetLevel("board", Warn)
	l.Warnf("board", "kept")
	if buf.Len() == 0 {
		t.Error("tag level did not override default")
	}
}

func TestNil(t *testing.T) {
	var l *Logger
	l.Errorf("x", "nothing")
	l.SetLevel("x", Debug)
	if l.Enabled("x", Error) {
		t.Error("nil logger enabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"vrb":   Verbose,
		"trace": Verbose,
		"dbg":   Debug,
		"debug": Debug,
		"inf":   Info,
		"warn":  Warn,
		"err":   Error,
		"fatal": Error,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("%q: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("%q parsed as %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("parsed invalid level")
	}
}
