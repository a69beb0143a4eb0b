package dw1000

import (
	"fmt"
)

// DataRate is the over-the-air bit rate. The values are the TXBR
// field encoding.
type DataRate uint8

const (
	Rate110K DataRate = 0
	Rate850K DataRate = 1
	Rate6M8  DataRate = 2
)

func (r DataRate) String() string {
	switch r {
	case Rate110K:
		return "110kb/s"
	case Rate850K:
		return "850kb/s"
	case Rate6M8:
		return "6.8Mb/s"
	default:
		return fmt.Sprintf("DataRate(%d)", uint8(r))
	}
}

// PRF is the pulse repetition frequency.
type PRF uint8

const (
	PRF16MHz PRF = 1
	PRF64MHz PRF = 2
)

func (p PRF) String() string {
	switch p {
	case PRF16MHz:
		return "16MHz"
	case PRF64MHz:
		return "64MHz"
	default:
		return fmt.Sprintf("PRF(%d)", uint8(p))
	}
}

// PreambleLength is the preamble length in symbols, in the TXPSR/PE
// field encoding.
type PreambleLength uint8

const (
	Preamble64   PreambleLength = 0x01
	Preamble128  PreambleLength = 0x05
	Preamble256  PreambleLength = 0x09
	Preamble512  PreambleLength = 0x0D
	Preamble1024 PreambleLength = 0x02
	Preamble1536 PreambleLength = 0x06
	Preamble2048 PreambleLength = 0x0A
	Preamble4096 PreambleLength = 0x03
)

// Symbols returns the preamble length in symbols, or 0 for an
// unknown encoding.
func (p PreambleLength) Symbols() int {
	switch p {
	case Preamble64:
		return 64
	case Preamble128:
		return 128
	case Preamble256:
		return 256
	case Preamble512:
		return 512
	case Preamble1024:
		return 1024
	case Preamble1536:
		return 1536
	case Preamble2048:
		return 2048
	case Preamble4096:
		return 4096
	default:
		return 0
	}
}

func (p PreambleLength) String() string {
	if n := p.Symbols(); n > 0 {
		return fmt.Sprintf("%d symbols", n)
	}
	return fmt.Sprintf("PreambleLength(%#x)", uint8(p))
}

// pac returns the preamble acquisition chunk size for p.
func (p PreambleLength) pac() uint8 {
	switch p {
	case Preamble64, Preamble128:
		return 8
	case Preamble256, Preamble512:
		return 16
	case Preamble1024:
		return 32
	default:
		return 64
	}
}

// Channel is an UWB channel number. Channel 6 does not exist.
type Channel uint8

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
	Channel3 Channel = 3
	Channel4 Channel = 4
	Channel5 Channel = 5
	Channel7 Channel = 7
)

// wide reports whether the channel has the 900 MHz bandwidth.
func (c Channel) wide() bool {
	return c == Channel4 || c == Channel7
}

// defaultPreambleCode returns the recommended preamble code for a
// channel and PRF.
func defaultPreambleCode(c Channel, p PRF) uint8 {
	switch c {
	case Channel1:
		if p == PRF16MHz {
			return 2
		}
		return 10
	case Channel3:
		if p == PRF16MHz {
			return 6
		}
		return 10
	case Channel4, Channel7:
		if p == PRF16MHz {
			return 8
		}
		return 18
	default:
		if p == PRF16MHz {
			return 4
		}
		return 10
	}
}

// validCode reports whether preamble code c belongs to the code
// family of PRF p.
func validCode(c uint8, p PRF) bool {
	switch p {
	case PRF16MHz:
		return c >= 1 && c <= 8
	case PRF64MHz:
		return (c >= 9 && c <= 12) || (c >= 17 && c <= 20)
	default:
		return false
	}
}

// OperatingMode is a preset combination of data rate, PRF and
// preamble length.
type OperatingMode int

const (
	LongDataRangeLowPower OperatingMode = iota
	ShortDataFastLowPower
	LongDataFastLowPower
	ShortDataFastAccuracy
	LongDataFastAccuracy
	LongDataRangeAccuracy
)

var modeNames = [...]string{
	LongDataRangeLowPower: "longdata-range-lowpower",
	ShortDataFastLowPower: "shortdata-fast-lowpower",
	LongDataFastLowPower:  "longdata-fast-lowpower",
	ShortDataFastAccuracy: "shortdata-fast-accuracy",
	LongDataFastAccuracy:  "longdata-fast-accuracy",
	LongDataRangeAccuracy: "longdata-range-accuracy",
}

func (m OperatingMode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("OperatingMode(%d)", int(m))
}

// ParseOperatingMode parses the names returned by
// OperatingMode.String.
func ParseOperatingMode(s string) (OperatingMode, error) {
	for m, n := range modeNames {
		if n == s {
			return OperatingMode(m), nil
		}
	}
	return 0, fmt.Errorf("dw1000: unknown operating mode %q", s)
}

// Settings returns the data rate, PRF and preamble length of m.
func (m OperatingMode) Settings() (DataRate, PRF, PreambleLength) {
	switch m {
	case LongDataRangeLowPower:
		return Rate110K, PRF16MHz, Preamble2048
	case ShortDataFastLowPower:
		return Rate6M8, PRF16MHz, Preamble128
	case LongDataFastLowPower:
		return Rate6M8, PRF16MHz, Preamble1024
	case ShortDataFastAccuracy:
		return Rate6M8, PRF64MHz, Preamble128
	case LongDataFastAccuracy:
		return Rate6M8, PRF64MHz, Preamble1024
	case LongDataRangeAccuracy:
		return Rate110K, PRF64MHz, Preamble2048
	default:
		panic(fmt.Sprintf("invalid operating mode %d", int(m)))
	}
}

// ConfigurationError reports a radio configuration the tuning tables
// do not cover.
type ConfigurationError struct {
	Axis  string
	Value any
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dw1000: unsupported %s: %v", e.Axis, e.Value)
}

// radioConfig holds the inputs of the tuning tables.
type radioConfig struct {
	prf          PRF
	rate         DataRate
	preamble     PreambleLength
	pac          uint8
	channel      Channel
	preambleCode uint8
	smartPower   bool
}

// tuning holds the register values derived from a radioConfig.
type tuning struct {
	agcTune1  uint16
	agcTune2  uint32
	agcTune3  uint16
	drxTune0b uint16
	drxTune1a uint16
	drxTune1b uint16
	drxTune2  uint32
	drxTune4H uint16
	ldeCfg1   uint8
	ldeCfg2   uint16
	ldeRepC   uint16
	txPower   uint32
	rfRxCtrlH uint8
	rfTxCtrl  uint32
	tcPGDelay uint8
	fsPLLCfg  uint32
	fsPLLTune uint8
}

// lookupTuning selects the tuning table entries for c, or returns a
// *ConfigurationError for the first unsupported axis.
func lookupTuning(c radioConfig) (tuning, error) {
	var t tuning
	var prf int
	switch c.prf {
	case PRF16MHz:
		prf = 0
	case PRF64MHz:
		prf = 1
	default:
		return t, &ConfigurationError{"pulse frequency", c.prf}
	}
	t.agcTune1 = [2]uint16{0x8870, 0x889B}[prf]
	t.agcTune2 = 0x2502A907
	t.agcTune3 = 0x0035

	switch c.rate {
	case Rate110K:
		t.drxTune0b = 0x0016
	case Rate850K:
		t.drxTune0b = 0x0006
	case Rate6M8:
		t.drxTune0b = 0x0001
	default:
		return t, &ConfigurationError{"data rate", c.rate}
	}
	t.drxTune1a = [2]uint16{0x0087, 0x008D}[prf]

	switch c.preamble {
	case Preamble1536, Preamble2048, Preamble4096:
		if c.rate != Rate110K {
			return t, &ConfigurationError{"data rate for preamble " + c.preamble.String(), c.rate}
		}
		t.drxTune1b = 0x0064
	case Preamble128, Preamble256, Preamble512, Preamble1024:
		if c.rate == Rate110K {
			return t, &ConfigurationError{"data rate for preamble " + c.preamble.String(), c.rate}
		}
		t.drxTune1b = 0x0020
	case Preamble64:
		if c.rate != Rate6M8 {
			return t, &ConfigurationError{"data rate for preamble " + c.preamble.String(), c.rate}
		}
		t.drxTune1b = 0x0010
	default:
		return t, &ConfigurationError{"preamble length", c.preamble}
	}

	switch c.pac {
	case 8:
		t.drxTune2 = [2]uint32{0x311A002D, 0x313B006B}[prf]
	case 16:
		t.drxTune2 = [2]uint32{0x331A0052, 0x333B00BE}[prf]
	case 32:
		t.drxTune2 = [2]uint32{0x351A009A, 0x353B015E}[prf]
	case 64:
		t.drxTune2 = [2]uint32{0x371A011D, 0x373B0296}[prf]
	default:
		return t, &ConfigurationError{"PAC size", c.pac}
	}
	if c.preamble == Preamble64 {
		t.drxTune4H = 0x0010
	} else {
		t.drxTune4H = 0x0028
	}

	t.ldeCfg1 = 0x0D
	t.ldeCfg2 = [2]uint16{0x1607, 0x0607}[prf]
	if !validCode(c.preambleCode, c.prf) {
		return t, &ConfigurationError{"preamble code for " + c.prf.String(), c.preambleCode}
	}
	switch c.preambleCode {
	case 1, 2:
		t.ldeRepC = 0x5998
	case 3, 8:
		t.ldeRepC = 0x51EA
	case 4:
		t.ldeRepC = 0x428E
	case 5:
		t.ldeRepC = 0x451E
	case 6:
		t.ldeRepC = 0x2E14
	case 7:
		t.ldeRepC = 0x8000
	case 9:
		t.ldeRepC = 0x28F4
	case 10, 17:
		t.ldeRepC = 0x3332
	case 11:
		t.ldeRepC = 0x3AE0
	case 12:
		t.ldeRepC = 0x3D70
	case 18, 19:
		t.ldeRepC = 0x35C2
	case 20:
		t.ldeRepC = 0x47AE
	}
	if c.rate == Rate110K {
		t.ldeRepC >>= 3
	}

	// TX power pairs are {smart, manual}.
	var power [2][2]uint32
	switch c.channel {
	case Channel1, Channel2:
		power = [2][2]uint32{{0x15355575, 0x75757575}, {0x07274767, 0x67676767}}
		if c.channel == Channel1 {
			t.rfTxCtrl, t.tcPGDelay = 0x00005C40, 0xC9
			t.fsPLLCfg, t.fsPLLTune = 0x09000407, 0x1E
		} else {
			t.rfTxCtrl, t.tcPGDelay = 0x00045CA0, 0xC2
			t.fsPLLCfg, t.fsPLLTune = 0x08400508, 0x26
		}
	case Channel3:
		power = [2][2]uint32{{0x0F2F4F6F, 0x6F6F6F6F}, {0x2B4B6B8B, 0x8B8B8B8B}}
		t.rfTxCtrl, t.tcPGDelay = 0x00086CC0, 0xC5
		t.fsPLLCfg, t.fsPLLTune = 0x08401009, 0x56
	case Channel4:
		power = [2][2]uint32{{0x1F1F3F5F, 0x5F5F5F5F}, {0x3A5A7A9A, 0x9A9A9A9A}}
		t.rfTxCtrl, t.tcPGDelay = 0x00045C80, 0x95
		t.fsPLLCfg, t.fsPLLTune = 0x08400508, 0x26
	case Channel5:
		power = [2][2]uint32{{0x0E082848, 0x48484848}, {0x25456585, 0x85858585}}
		t.rfTxCtrl, t.tcPGDelay = 0x001E3FE0, 0xC0
		t.fsPLLCfg, t.fsPLLTune = 0x0800041D, 0xBE
	case Channel7:
		power = [2][2]uint32{{0x32527292, 0x92929292}, {0x5171B1D1, 0xD1D1D1D1}}
		t.rfTxCtrl, t.tcPGDelay = 0x001E7DE0, 0x93
		t.fsPLLCfg, t.fsPLLTune = 0x0800041D, 0xBE
	default:
		return t, &ConfigurationError{"channel", c.channel}
	}
	if c.smartPower {
		t.txPower = power[prf][0]
	} else {
		t.txPower = power[prf][1]
	}
	if c.channel.wide() {
		t.rfRxCtrlH = 0xBC
	} else {
		t.rfRxCtrlH = 0xD8
	}
	return t, nil
}

// tune writes the tuning registers for the current configuration.
func (d *Device) tune() error {
	t, err := lookupTuning(d.radioConfig())
	if err != nil {
		return err
	}
	trim, err := d.readOTP(otpXtalTrim)
	if err != nil {
		return err
	}
	trim &= 0x1F
	if trim == 0 {
		trim = 0x10
	}
	return d.writeRegs(
		regAGCTune, subAGCTune1, t.agcTune1,
		regAGCTune, subAGCTune2, t.agcTune2,
		regAGCTune, subAGCTune3, t.agcTune3,
		regDRXTune, subDRXTune0b, t.drxTune0b,
		regDRXTune, subDRXTune1a, t.drxTune1a,
		regDRXTune, subDRXTune1b, t.drxTune1b,
		regDRXTune, subDRXTune2, t.drxTune2,
		regDRXTune, subDRXTune4H, t.drxTune4H,
		regLDEIF, subLDECfg1, t.ldeCfg1,
		regLDEIF, subLDECfg2, t.ldeCfg2,
		regLDEIF, subLDERepC, t.ldeRepC,
		regTxPower, noSub, t.txPower,
		regRFConf, subRFRxCtrlH, t.rfRxCtrlH,
		regRFConf, subRFTxCtrl, t.rfTxCtrl,
		regTxCal, subTCPGDelay, t.tcPGDelay,
		regFSCtrl, subFSPLLTune, t.fsPLLTune,
		regFSCtrl, subFSPLLCfg, t.fsPLLCfg,
		regFSCtrl, subFSXtalT, uint8(trim|0x60),
	)
}
