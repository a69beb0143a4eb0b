// Package config loads the YAML description of a ranging node.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"uwbnode.dev/driver/dw1000"
	"uwbnode.dev/internal/tlog"
	"uwbnode.dev/mac"
	"uwbnode.dev/ranging"
)

// Config is a node configuration. Zero fields take the protocol
// defaults.
type Config struct {
	Role      string `yaml:"role"`
	Address   string `yaml:"address"`
	EUI       string `yaml:"eui"`
	NetworkID uint16 `yaml:"network_id"`
	Mode      string `yaml:"mode"`

	RangeInterval time.Duration `yaml:"range_interval"`
	ResetPeriod   time.Duration `yaml:"reset_period"`
	ReplyDelay    time.Duration `yaml:"reply_delay"`
	RangeReport   bool          `yaml:"range_report"`
	Payload       float32       `yaml:"payload"`
	HighPower     bool          `yaml:"high_power"`
	AntennaDelay  uint16        `yaml:"antenna_delay"`
	Capacity      int           `yaml:"capacity"`

	// Tick is the period of the protocol loop.
	Tick time.Duration `yaml:"tick"`

	Board     Board     `yaml:"board"`
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Board names the SPI port and GPIO pins of the transceiver.
type Board struct {
	SPI   string `yaml:"spi"`
	CS    string `yaml:"cs"`
	Reset string `yaml:"reset"`
	IRQ   string `yaml:"irq"`
}

type Log struct {
	Level string `yaml:"level"`
	// Tags maps log tags to their level.
	Tags map[string]string `yaml:"tags"`
}

// Telemetry selects the sinks of range records. Empty fields
// disable their sink.
type Telemetry struct {
	Serial    string `yaml:"serial"`
	Baud      int    `yaml:"baud"`
	Websocket string `yaml:"websocket"`
	NATS      string `yaml:"nats"`
	Subject   string `yaml:"subject"`
}

var ErrInvalid = errors.New("config: invalid")

// Default returns the configuration of an anchor on a Raspberry Pi
// with a DWM1000 module.
func Default() *Config {
	return &Config{
		Role:      "anchor",
		Address:   "7D:00",
		NetworkID: ranging.DefaultNetworkID,
		Mode:      dw1000.LongDataRangeLowPower.String(),

		RangeInterval: ranging.DefaultRangeInterval,
		ResetPeriod:   ranging.DefaultResetPeriod,
		ReplyDelay:    ranging.DefaultReplyDelay,
		Capacity:      ranging.DefaultCapacity,
		Tick:          time.Millisecond,

		Board: Board{
			SPI:   "/dev/spidev0.0",
			CS:    "GPIO8",
			Reset: "GPIO27",
			IRQ:   "GPIO17",
		},
		Log: Log{Level: "inf"},
		Telemetry: Telemetry{
			Baud:    115200,
			Subject: "uwb.range",
		},
	}
}

// Load reads the configuration at path over the defaults. An empty
// path selects the defaults. UWB_* environment variables override
// the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"UWB_ROLE", &c.Role},
		{"UWB_ADDRESS", &c.Address},
		{"UWB_EUI", &c.EUI},
		{"UWB_MODE", &c.Mode},
		{"UWB_SPI", &c.Board.SPI},
		{"UWB_LOG_LEVEL", &c.Log.Level},
		{"UWB_SERIAL", &c.Telemetry.Serial},
		{"UWB_WEBSOCKET", &c.Telemetry.Websocket},
		{"UWB_NATS_URL", &c.Telemetry.NATS},
	}
	for _, s := range strs {
		if v, ok := lookup(s.name); ok && v != "" {
			*s.dst = v
		}
	}
	if v, ok := lookup("UWB_RANGE_REPORT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: UWB_RANGE_REPORT: %v", ErrInvalid, err)
		}
		c.RangeReport = b
	}
	if v, ok := lookup("UWB_ANTENNA_DELAY"); ok && v != "" {
		d, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			return fmt.Errorf("%w: UWB_ANTENNA_DELAY: %v", ErrInvalid, err)
		}
		c.AntennaDelay = uint16(d)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := ranging.ParseRole(c.Role); err != nil {
		return fmt.Errorf("%w: role %q", ErrInvalid, c.Role)
	}
	if _, err := mac.ParseShortAddr(c.Address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.EUI != "" {
		if _, err := mac.ParseLongAddr(c.EUI); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if _, err := dw1000.ParseOperatingMode(c.Mode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"range_interval", c.RangeInterval},
		{"reset_period", c.ResetPeriod},
		{"reply_delay", c.ReplyDelay},
		{"tick", c.Tick},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%w: negative %s %v", ErrInvalid, d.name, d.d)
		}
	}
	// Reply times travel as 16-bit microsecond counts, the longest
	// being 11 reply delays.
	if c.ReplyDelay > 0 && 11*c.ReplyDelay/time.Microsecond > 0xFFFF {
		return fmt.Errorf("%w: reply_delay %v too long", ErrInvalid, c.ReplyDelay)
	}
	if c.Capacity < 0 || c.Capacity > 255 {
		return fmt.Errorf("%w: capacity %d", ErrInvalid, c.Capacity)
	}
	if _, err := tlog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalid, err)
	}
	for tag, lvl := range c.Log.Tags {
		if _, err := tlog.ParseLevel(lvl); err != nil {
			return fmt.Errorf("%w: log level of %s: %v", ErrInvalid, tag, err)
		}
	}
	return nil
}

// Ranging converts c into an engine configuration. c must be valid.
func (c *Config) Ranging() (ranging.Config, error) {
	role, err := ranging.ParseRole(c.Role)
	if err != nil {
		return ranging.Config{}, err
	}
	addr, err := mac.ParseShortAddr(c.Address)
	if err != nil {
		return ranging.Config{}, err
	}
	var eui mac.LongAddr
	if c.EUI != "" {
		if eui, err = mac.ParseLongAddr(c.EUI); err != nil {
			return ranging.Config{}, err
		}
	}
	mode, err := dw1000.ParseOperatingMode(c.Mode)
	if err != nil {
		return ranging.Config{}, err
	}
	return ranging.Config{
		Role:          role,
		Address:       addr,
		EUI:           eui,
		NetworkID:     c.NetworkID,
		Mode:          mode,
		RangeInterval: c.RangeInterval,
		ResetPeriod:   c.ResetPeriod,
		ReplyDelay:    c.ReplyDelay,
		RangeReport:   c.RangeReport,
		Payload:       c.Payload,
		HighPower:     c.HighPower,
		AntennaDelay:  c.AntennaDelay,
		Capacity:      c.Capacity,
	}, nil
}

// ConfigureLogger applies the log levels to l.
func (c *Config) ConfigureLogger(l *tlog.Logger) error {
	lvl, err := tlog.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	l.SetDefaultLevel(lvl)
	for tag, s := range c.Log.Tags {
		lvl, err := tlog.ParseLevel(s)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		l.SetLevel(tag, lvl)
	}
	return nil
}
