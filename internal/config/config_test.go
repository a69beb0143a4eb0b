package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"uwbnode.dev/driver/dw1000"
	"uwbnode.dev/internal/tlog"
	"uwbnode.dev/mac"
	"uwbnode.dev/ranging"
)

const tagYAML = `
role: tag
address: "01:01"
eui: "01:01:22:EA:82:60:3B:9C"
mode: longdata-fast-accuracy
range_interval: 250ms
range_report: true
payload: 2.5
log:
  level: dbg
  tags:
    dw1000: war
telemetry:
  websocket: ":8080"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, tagYAML))
	if err != nil {
		t.Fatal(err)
	}
	rc, err := c.Ranging()
	if err != nil {
		t.Fatal(err)
	}
	eui, _ := mac.ParseLongAddr("01:01:22:EA:82:60:3B:9C")
	want := ranging.Config{
		Role:          ranging.Tag,
		Address:       0x0101,
		EUI:           eui,
		NetworkID:     ranging.DefaultNetworkID,
		Mode:          dw1000.LongDataFastAccuracy,
		RangeInterval: 250 * time.Millisecond,
		ResetPeriod:   ranging.DefaultResetPeriod,
		ReplyDelay:    ranging.DefaultReplyDelay,
		RangeReport:   true,
		Payload:       2.5,
		Capacity:      ranging.DefaultCapacity,
	}
	if rc != want {
		t.Errorf("ranging config\n%+v\nwant\n%+v", rc, want)
	}
	// Unset sections keep their defaults.
	if c.Board != Default().Board {
		t.Errorf("board %+v", c.Board)
	}
	if c.Telemetry.Websocket != ":8080" || c.Telemetry.Baud != 115200 {
		t.Errorf("telemetry %+v", c.Telemetry)
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	rc, err := c.Ranging()
	if err != nil {
		t.Fatal(err)
	}
	if rc.Role != ranging.Anchor || rc.Address != 0x7D00 || rc.Mode != dw1000.LongDataRangeLowPower {
		t.Errorf("default ranging config %+v", rc)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load of a missing file returned %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"UWB_ROLE":          "tag",
		"UWB_ADDRESS":       "AB:CD",
		"UWB_NATS_URL":      "nats://localhost:4222",
		"UWB_RANGE_REPORT":  "true",
		"UWB_ANTENNA_DELAY": "0x4000",
		"UWB_MODE":          "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	c := Default()
	if err := c.applyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if c.Role != "tag" || c.Address != "AB:CD" || c.Telemetry.NATS != "nats://localhost:4222" {
		t.Errorf("overrides not applied: %+v", c)
	}
	if !c.RangeReport || c.AntennaDelay != 0x4000 {
		t.Errorf("range report %v, antenna delay %#x", c.RangeReport, c.AntennaDelay)
	}
	if c.Mode != Default().Mode {
		t.Errorf("empty variable overrode mode with %q", c.Mode)
	}
	env["UWB_RANGE_REPORT"] = "maybe"
	if err := c.applyEnv(lookup); !errors.Is(err, ErrInvalid) {
		t.Errorf("invalid boolean gave %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"role", func(c *Config) { c.Role = "relay" }},
		{"address", func(c *Config) { c.Address = "7D" }},
		{"eui", func(c *Config) { c.EUI = "01:02" }},
		{"mode", func(c *Config) { c.Mode = "fast" }},
		{"interval", func(c *Config) { c.RangeInterval = -time.Second }},
		{"reply delay", func(c *Config) { c.ReplyDelay = 10 * time.Millisecond }},
		{"capacity", func(c *Config) { c.Capacity = 300 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"tag level", func(c *Config) { c.Log.Tags = map[string]string{"dw1000": "loud"} }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	for _, test := range tests {
		c := Default()
		test.modify(c)
		if err := c.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: Validate returned %v", test.name, err)
		}
	}
}

func TestConfigureLogger(t *testing.T) {
	c, err := Load(writeConfig(t, tagYAML))
	if err != nil {
		t.Fatal(err)
	}
	l := tlog.Discard()
	if err := c.ConfigureLogger(l); err != nil {
		t.Fatal(err)
	}
	if !l.Enabled("ranging", tlog.Debug) {
		t.Error("default level not applied")
	}
	if l.Enabled("dw1000", tlog.Info) || !l.Enabled("dw1000", tlog.Warn) {
		t.Error("tag level not applied")
	}
}
