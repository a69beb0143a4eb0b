// Package ranging implements the anchor and tag roles of a two-way
// ranging protocol over a DW1000 transceiver.
//
// Tags broadcast Blinks to discover anchors, which answer with a
// Ranging-Init. Tags then periodically broadcast a Poll listing up to
// four anchors, each of which answers with a Poll-Ack after its
// assigned reply time. The tag completes the exchange with a
// broadcast Range message carrying its measured intervals, from
// which every listed anchor computes the time of flight.
package ranging

import (
	"fmt"
	"time"

	"uwbnode.dev/driver/dw1000"
	"uwbnode.dev/dwtime"
	"uwbnode.dev/internal/tlog"
	"uwbnode.dev/mac"
)

const logTag = "ranging"

// Role is the part a node plays in the protocol.
type Role int

const (
	Tag Role = iota
	Anchor
)

func (r Role) String() string {
	switch r {
	case Tag:
		return "tag"
	case Anchor:
		return "anchor"
	default:
		panic("unreachable")
	}
}

// ParseRole parses the names returned by Role.String.
func ParseRole(s string) (Role, error) {
	switch s {
	case "tag":
		return Tag, nil
	case "anchor":
		return Anchor, nil
	default:
		return 0, fmt.Errorf("ranging: unknown role %q", s)
	}
}

// Clock is the time and randomness source of an Engine. A
// dw1000.Port satisfies it.
type Clock interface {
	// Millis returns a wrapping millisecond counter.
	Millis() uint32
	Random(min, max int32) int32
}

// Protocol constants.
const (
	DefaultRangeInterval = 500 * time.Millisecond
	DefaultResetPeriod   = 2000 * time.Millisecond
	DefaultReplyDelay    = 3000 * time.Microsecond
	DefaultNetworkID     = 0xDECA

	// blinkInterval is the number of timer ticks per blink cycle.
	blinkInterval = 5
	// devicesPerPoll bounds the anchors addressed by one Poll.
	devicesPerPoll = 4
	// devicesPerRange bounds the anchors served by one Range.
	devicesPerRange = 6
	// pollAckSlots is the number of reply slots reserved after a
	// Poll.
	pollAckSlots = 6
	// blinkSlots is the number of reply slots reserved after a Blink.
	blinkSlots = 10
	// initSlots is the number of collision avoidance slots for
	// Ranging-Init replies.
	initSlots = 7
)

// Config describes a ranging node.
type Config struct {
	Role    Role
	Address mac.ShortAddr
	// EUI defaults to the short address in the first two bytes.
	EUI       mac.LongAddr
	NetworkID uint16
	Mode      dw1000.OperatingMode

	RangeInterval time.Duration
	// ResetPeriod is the silence after which the receiver is
	// restarted.
	ResetPeriod time.Duration
	ReplyDelay  time.Duration

	// RangeReport makes anchors send the computed range back to the
	// tag.
	RangeReport bool
	// Payload is sent by tags along with every Range.
	Payload   float32
	HighPower bool
	// AntennaDelay in ticks. Zero selects the chip default.
	AntennaDelay uint16
	// Capacity of the device directory.
	Capacity int
}

func (c *Config) setDefaults() {
	if c.NetworkID == 0 {
		c.NetworkID = DefaultNetworkID
	}
	if c.RangeInterval == 0 {
		c.RangeInterval = DefaultRangeInterval
	}
	if c.ResetPeriod == 0 {
		c.ResetPeriod = DefaultResetPeriod
	}
	if c.ReplyDelay == 0 {
		c.ReplyDelay = DefaultReplyDelay
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.EUI == (mac.LongAddr{}) {
		c.EUI[0] = byte(c.Address)
		c.EUI[1] = byte(c.Address >> 8)
	}
}

// Engine runs the protocol. All methods must be called from the
// goroutine calling Tick.
type Engine struct {
	dev      *dw1000.Device
	clock    Clock
	cfg      Config
	log      *tlog.Logger
	listener Listener
	enc      mac.Encoder
	dir      *Directory

	// sent and received are set by the driver handlers during
	// dev.Poll.
	sent     bool
	received bool

	tx []byte
	rx []byte

	interval     uint32
	resetPeriod  uint32
	replyDelay   uint16
	timerDelay   uint32
	lastTimer    uint32
	lastActivity uint32
	blinkCounter int

	lastPollSent  uint32
	lastPollReply uint16
	timeoutFired  bool

	// ranged holds the anchors addressed by the last Range.
	ranged []mac.ShortAddr
}

// New returns an engine for dev. log may be nil.
func New(dev *dw1000.Device, clock Clock, cfg Config, log *tlog.Logger) *Engine {
	cfg.setDefaults()
	e := &Engine{
		dev:         dev,
		clock:       clock,
		cfg:         cfg,
		log:         log,
		listener:    ListenerFuncs{},
		dir:         NewDirectory(cfg.Capacity),
		tx:          make([]byte, 0, 128),
		rx:          make([]byte, 1024),
		interval:    uint32(cfg.RangeInterval / time.Millisecond),
		resetPeriod: uint32(cfg.ResetPeriod / time.Millisecond),
		replyDelay:  uint16(cfg.ReplyDelay / time.Microsecond),
	}
	e.timerDelay = e.interval
	return e
}

// SetListener installs l, replacing the current listener. A nil l
// clears it.
func (e *Engine) SetListener(l Listener) {
	if l == nil {
		l = ListenerFuncs{}
	}
	e.listener = l
}

func (e *Engine) Role() Role {
	return e.cfg.Role
}

func (e *Engine) Address() mac.ShortAddr {
	return e.cfg.Address
}

func (e *Engine) EUI() mac.LongAddr {
	return e.cfg.EUI
}

// Directory returns the known devices. It must not be modified.
func (e *Engine) Directory() *Directory {
	return e.dir
}

// Start initializes the transceiver and starts listening. It fails
// with a *dw1000.ConfigurationError if the configured mode is not
// supported.
func (e *Engine) Start() error {
	if err := e.dev.Begin(); err != nil {
		return fmt.Errorf("ranging: start: %w", err)
	}
	if err := e.dev.SetEUI(e.cfg.EUI); err != nil {
		return fmt.Errorf("ranging: start: %w", err)
	}
	if err := e.configure(); err != nil {
		return err
	}
	e.dev.SetHandlers(dw1000.Handlers{
		Sent:     func() { e.sent = true },
		Received: func() { e.received = true },
		ReceiveFailed: func() {
			e.log.Debugf(logTag, "receive failed")
		},
		Error: func() {
			e.log.Warnf(logTag, "transceiver clock error")
		},
	})
	if e.cfg.HighPower {
		if err := e.dev.HighPowerInit(); err != nil {
			return fmt.Errorf("ranging: start: %w", err)
		}
	}
	if err := e.receiver(); err != nil {
		return fmt.Errorf("ranging: start: %w", err)
	}
	now := e.clock.Millis()
	e.lastTimer = now
	e.lastActivity = now
	e.log.Infof(logTag, "### %s ###", e.cfg.Role)
	e.log.Infof(logTag, "short address %v, EUI %v, %s", e.cfg.Address, e.cfg.EUI, e.dev.ModeString())
	return nil
}

func (e *Engine) configure() error {
	d := e.dev
	if err := d.NewConfiguration(); err != nil {
		return fmt.Errorf("ranging: configure: %w", err)
	}
	if err := d.SetDefaults(); err != nil {
		return fmt.Errorf("ranging: configure: %w", err)
	}
	d.SetDeviceAddress(uint16(e.cfg.Address))
	d.SetNetworkID(e.cfg.NetworkID)
	if err := d.EnableMode(e.cfg.Mode); err != nil {
		return fmt.Errorf("ranging: configure: %w", err)
	}
	if err := d.CommitConfiguration(); err != nil {
		return fmt.Errorf("ranging: configure: %w", err)
	}
	if e.cfg.AntennaDelay != 0 {
		if err := d.SetAntennaDelay(e.cfg.AntennaDelay); err != nil {
			return fmt.Errorf("ranging: configure: %w", err)
		}
	}
	return nil
}

// Tick runs one step of the protocol. It is meant to be called
// every millisecond or so and does not block. Errors are logged.
func (e *Engine) Tick() {
	if err := e.dev.Poll(); err != nil {
		e.log.Errorf(logTag, "interrupt: %v", err)
	}
	if err := e.tick(); err != nil {
		e.log.Errorf(logTag, "%v", err)
	}
}

func (e *Engine) tick() error {
	now := e.clock.Millis()
	if !e.sent && !e.received && now-e.lastActivity > e.resetPeriod {
		if err := e.receiver(); err != nil {
			return err
		}
		e.noteActivity()
	}
	if now-e.lastTimer > e.timerDelay {
		e.lastTimer = now
		if err := e.timerTick(); err != nil {
			return err
		}
	}
	if !e.sent && !e.received {
		if err := e.checkPollAckTimeout(now); err != nil {
			return err
		}
	}
	if e.sent {
		e.sent = false
		if err := e.handleSent(); err != nil {
			return err
		}
	}
	if e.received {
		e.received = false
		if err := e.handleReceived(); err != nil {
			return err
		}
	}
	return nil
}

// checkPollAckTimeout resets the transceiver once if a tag waited
// longer than the last assigned reply time for Poll-Acks.
func (e *Engine) checkPollAckTimeout(now uint32) error {
	if e.cfg.Role != Tag || e.timeoutFired || e.lastPollReply == 0 {
		return nil
	}
	if now-e.lastPollSent <= uint32(e.lastPollReply)/1000+3 {
		return nil
	}
	e.timeoutFired = true
	e.log.Infof(logTag, "no Poll-Ack for %d ms, resetting transceiver", now-e.lastPollSent)
	if err := e.dev.Select(); err != nil {
		return err
	}
	if err := e.configure(); err != nil {
		return err
	}
	if err := e.receiver(); err != nil {
		return err
	}
	e.listener.TimeoutExtension()
	return nil
}

func (e *Engine) noteActivity() {
	e.lastActivity = e.clock.Millis()
}

func (e *Engine) timerTick() error {
	var err error
	if e.blinkCounter == 0 {
		if e.cfg.Role == Tag {
			err = e.transmitBlink()
		}
		e.dir.SweepInactive(e.clock.Millis(), e.listener.InactiveDevice)
	} else if e.dir.Len() > 0 && e.cfg.Role == Tag {
		err = e.transmitPoll()
	}
	e.blinkCounter = (e.blinkCounter + 1) % blinkInterval
	return err
}

func (e *Engine) handleSent() error {
	t := DetectMessageType(e.tx)
	e.log.Debugf(logTag, "%v sent", t)
	switch t {
	case PollAck:
		if e.cfg.Role != Anchor {
			return nil
		}
		h, err := mac.DecodeShort(e.tx)
		if err != nil {
			return err
		}
		d := e.dir.Find(h.Dst)
		if d == nil {
			return nil
		}
		e.log.Infof(logTag, "Poll-Ack sent to %v", h.Dst)
		d.PollAckSent, err = e.dev.TransmitTimestamp()
		return err
	case Blink:
		if e.cfg.Role != Tag {
			return nil
		}
		return e.receiver()
	case Poll:
		if e.cfg.Role != Tag {
			return nil
		}
		ts, err := e.dev.TransmitTimestamp()
		if err != nil {
			return err
		}
		for d := range e.dir.All() {
			d.PollSent = ts
			d.PollAcked = false
			d.RangeServed = false
		}
		return e.receiver()
	case Range:
		if e.cfg.Role != Tag {
			return nil
		}
		ts, err := e.dev.TransmitTimestamp()
		if err != nil {
			return err
		}
		for _, a := range e.ranged {
			d := e.dir.Find(a)
			if d == nil {
				continue
			}
			d.RangeSent = ts
			e.listener.RangeSent(d)
		}
		return nil
	case RangeReport, RangingInit, RangeFailed, TypeError:
		return nil
	default:
		panic("unreachable")
	}
}

// metrics records the signal quality of the last received frame.
func (e *Engine) metrics(d *Device) error {
	var err error
	if d.RXPower, err = e.dev.ReceivePower(); err != nil {
		return err
	}
	if d.FPPower, err = e.dev.FirstPathPower(); err != nil {
		return err
	}
	d.Quality, err = e.dev.ReceiveQuality()
	return err
}

func (e *Engine) handleReceived() error {
	n, err := e.dev.DataLength()
	if err != nil {
		return err
	}
	frame := e.rx[:min(n, len(e.rx))]
	if err := e.dev.Data(frame); err != nil {
		return err
	}
	t := DetectMessageType(frame)
	e.log.Debugf(logTag, "received %v", t)
	switch t {
	case Blink:
		if e.cfg.Role == Anchor {
			return e.receiveBlink(frame)
		}
	case RangingInit:
		if e.cfg.Role == Tag {
			return e.receiveRangingInit(frame)
		}
	case Poll:
		if e.cfg.Role == Anchor {
			return e.receivePoll(frame)
		}
	case Range:
		if e.cfg.Role == Anchor {
			return e.receiveRange(frame)
		}
	case PollAck:
		if e.cfg.Role == Tag {
			return e.receivePollAck(frame)
		}
	case RangeReport:
		if e.cfg.Role == Tag {
			return e.receiveRangeReport(frame)
		}
	case RangeFailed:
	case TypeError:
		e.log.Debugf(logTag, "dropped frame: %v", ErrUnknownMessage)
	default:
		panic("unreachable")
	}
	return nil
}

func (e *Engine) receiveBlink(frame []byte) error {
	h, err := mac.DecodeBlink(frame)
	if err != nil {
		return err
	}
	anchors, err := decodeBlinkAnchors(frame)
	if err != nil {
		return err
	}
	known := false
	for _, a := range anchors {
		if a == e.cfg.Address {
			known = true
		}
	}
	tag := Device{Short: h.Src}
	tag.NoteActivity(e.clock.Millis())
	if err := e.metrics(&tag); err != nil {
		return err
	}
	e.listener.BlinkDevice(&tag)
	if !known {
		slot := e.clock.Random(0, initSlots) + 1
		delay := uint32(slot) * uint32(e.replyDelay) * 5 / 2
		e.log.Verbosef(logTag, "sending Ranging-Init to %v in %d us", h.Src, delay)
		if err := e.transmitRangingInit(h.Src, delay); err != nil {
			return err
		}
	}
	e.noteActivity()
	return nil
}

func (e *Engine) receiveRangingInit(frame []byte) error {
	h, err := mac.Decode(frame)
	if err != nil {
		return err
	}
	switch h.Shape {
	case mac.Short:
		if h.Dst != e.cfg.Address {
			return nil
		}
	case mac.Long:
		if h.DstLong != e.cfg.EUI {
			return nil
		}
	case mac.Blink, mac.Unknown:
		return nil
	default:
		panic("unreachable")
	}
	anchor := Device{Short: h.Src}
	anchor.NoteActivity(e.clock.Millis())
	if err := e.metrics(&anchor); err != nil {
		return err
	}
	e.log.Verbosef(logTag, "Ranging-Init from %v", h.Src)
	if e.dir.Add(anchor, e.listener.DeviceEvicted) {
		e.listener.NewDevice(e.dir.Find(h.Src))
	}
	e.noteActivity()
	return nil
}

func (e *Engine) receivePoll(frame []byte) error {
	h, err := mac.DecodeShort(frame)
	if err != nil {
		return err
	}
	entries, err := decodePoll(frame)
	if err != nil {
		return err
	}
	for _, en := range entries {
		if en.Addr != e.cfg.Address {
			continue
		}
		pollRX, err := e.dev.ReceiveTimestamp()
		if err != nil {
			return err
		}
		now := e.clock.Millis()
		tag := e.dir.Find(h.Src)
		if tag == nil {
			d := Device{Short: h.Src}
			d.NoteActivity(now)
			if err := e.metrics(&d); err != nil {
				return err
			}
			e.dir.Add(d, e.listener.DeviceEvicted)
			e.log.Infof(logTag, "device %v added", h.Src)
			tag = e.dir.Find(h.Src)
		}
		tag.NoteActivity(now)
		tag.PollReceived = pollRX
		if err := e.transmitPollAck(tag.Short, uint32(en.ReplyTime)); err != nil {
			return err
		}
		e.noteActivity()
		e.listener.NewDevice(tag)
		return nil
	}
	return nil
}

func (e *Engine) receiveRange(frame []byte) error {
	h, err := mac.DecodeShort(frame)
	if err != nil {
		return err
	}
	entries, err := decodeRange(frame)
	if err != nil {
		return err
	}
	for i, en := range entries {
		if en.Addr != e.cfg.Address {
			continue
		}
		tag := e.dir.Find(h.Src)
		if tag == nil {
			e.log.Errorf(logTag, "Range from %v: %v", h.Src, ErrUnknownPeer)
			return nil
		}
		tag.NoteActivity(e.clock.Millis())
		if tag.RangeReceived, err = e.dev.ReceiveTimestamp(); err != nil {
			return err
		}
		if err := e.metrics(tag); err != nil {
			return err
		}
		tag.Round = en.Round
		tag.Reply = en.Reply
		tag.Range = TimeOfFlight(tag).Meters()
		tag.Payload = en.Payload
		e.noteActivity()
		if e.cfg.RangeReport {
			if err := e.transmitRangeReport(tag, e.replyTime(i)); err != nil {
				return err
			}
		}
		e.listener.NewRange(tag)
		return nil
	}
	return nil
}

func (e *Engine) receivePollAck(frame []byte) error {
	h, err := mac.DecodeShort(frame)
	if err != nil {
		return err
	}
	if h.Dst != e.cfg.Address {
		return nil
	}
	anchor := e.dir.Find(h.Src)
	if anchor == nil {
		e.log.Errorf(logTag, "Poll-Ack from %v: %v", h.Src, ErrUnknownPeer)
		return nil
	}
	if anchor.PollAckReceived, err = e.dev.ReceiveTimestamp(); err != nil {
		return err
	}
	anchor.NoteActivity(e.clock.Millis())
	anchor.PollAcked = true
	e.noteActivity()
	return e.transmitRange()
}

func (e *Engine) receiveRangeReport(frame []byte) error {
	h, err := mac.DecodeShort(frame)
	if err != nil {
		return err
	}
	if h.Dst != e.cfg.Address {
		return nil
	}
	rng, power, err := decodeRangeReport(frame)
	if err != nil {
		return err
	}
	anchor := e.dir.Find(h.Src)
	if anchor == nil {
		e.log.Errorf(logTag, "Range-Report from %v: %v", h.Src, ErrUnknownPeer)
		return nil
	}
	anchor.Range = float64(rng)
	anchor.RXPower = float64(power)
	e.listener.NewRange(anchor)
	return nil
}

// replyTime returns the reply delay in microseconds assigned to the
// i'th device of a Poll or Range.
func (e *Engine) replyTime(i int) uint32 {
	return uint32(2*i+1) * uint32(e.replyDelay)
}

// slotDelay returns the timer delay after a message reserving n
// reply slots.
func (e *Engine) slotDelay(n int) uint32 {
	return e.interval + uint32(n)*3*uint32(e.replyDelay)/1000
}

// receiver restarts the receiver in permanent mode.
func (e *Engine) receiver() error {
	if err := e.dev.NewReceive(); err != nil {
		return err
	}
	if err := e.dev.ReceivePermanently(true); err != nil {
		return err
	}
	return e.dev.StartReceive()
}

// transmit sends e.tx, delayed by delay microseconds when non-zero.
func (e *Engine) transmit(delay uint32) error {
	if delay != 0 {
		if _, err := e.dev.SetDelay(dwtime.Microseconds(float64(delay))); err != nil {
			return err
		}
	}
	if err := e.dev.SetData(e.tx); err != nil {
		return err
	}
	return e.dev.StartTransmit()
}

func (e *Engine) transmitBlink() error {
	e.timerDelay = e.slotDelay(blinkSlots)
	if err := e.dev.NewTransmit(); err != nil {
		return err
	}
	anchors := make([]mac.ShortAddr, 0, e.dir.Len())
	for d := range e.dir.All() {
		anchors = append(anchors, d.Short)
	}
	e.tx = e.enc.AppendBlink(e.tx[:0], e.cfg.Address)
	e.tx = appendBlinkAnchors(e.tx, anchors)
	return e.transmit(0)
}

func (e *Engine) transmitRangingInit(dst mac.ShortAddr, delay uint32) error {
	if err := e.dev.NewTransmit(); err != nil {
		return err
	}
	e.tx = e.enc.AppendShort(e.tx[:0], e.cfg.Address, dst)
	e.tx = append(e.tx, byte(RangingInit))
	return e.transmit(delay)
}

func (e *Engine) transmitPoll() error {
	e.log.Debugf(logTag, "transmitting Poll")
	if err := e.dev.NewTransmit(); err != nil {
		return err
	}
	e.timerDelay = e.slotDelay(pollAckSlots)
	entries := make([]pollEntry, min(e.dir.Len(), devicesPerPoll))
	for i := range entries {
		d := e.dir.At(i)
		d.ReplyTime = uint16(e.replyTime(i))
		entries[i] = pollEntry{Addr: d.Short, ReplyTime: d.ReplyTime}
		e.lastPollReply = d.ReplyTime
	}
	e.lastPollSent = e.clock.Millis()
	e.tx = e.enc.AppendShort(e.tx[:0], e.cfg.Address, mac.Broadcast)
	e.tx = appendPoll(e.tx, entries)
	return e.transmit(0)
}

func (e *Engine) transmitPollAck(dst mac.ShortAddr, delay uint32) error {
	if err := e.dev.NewTransmit(); err != nil {
		return err
	}
	e.tx = e.enc.AppendShort(e.tx[:0], e.cfg.Address, dst)
	e.tx = append(e.tx, byte(PollAck))
	return e.transmit(delay)
}

// transmitRange serves every anchor that acknowledged the last Poll
// and has not been served yet. The send is delayed so that its
// timestamp is known when the message is built.
func (e *Engine) transmitRange() error {
	e.lastPollReply = 0
	e.lastPollSent = 0
	var served []*Device
	for d := range e.dir.All() {
		if len(served) == devicesPerRange {
			break
		}
		if d.PollAcked && !d.RangeServed {
			served = append(served, d)
		}
	}
	if len(served) == 0 {
		e.log.Infof(logTag, "no Poll-Ack to answer, not sending Range")
		return nil
	}
	e.timerDelay = e.slotDelay(len(served))
	if err := e.dev.NewTransmit(); err != nil {
		return err
	}
	rangeSent, err := e.dev.SetDelay(dwtime.Microseconds(float64(e.replyDelay)))
	if err != nil {
		return err
	}
	entries := make([]rangeEntry, len(served))
	e.ranged = e.ranged[:0]
	for i, d := range served {
		e.ranged = append(e.ranged, d.Short)
		if e.cfg.RangeReport {
			d.ReplyTime = uint16(e.replyTime(i))
		}
		d.RangeServed = true
		d.RangeSent = rangeSent
		d.Round = d.PollAckReceived - d.PollSent
		d.Reply = d.RangeSent - d.PollAckReceived
		entries[i] = rangeEntry{Addr: d.Short, Round: d.Round, Reply: d.Reply, Payload: e.cfg.Payload}
	}
	e.tx = e.enc.AppendShort(e.tx[:0], e.cfg.Address, mac.Broadcast)
	e.tx = appendRange(e.tx, entries)
	if err := e.dev.SetData(e.tx); err != nil {
		return err
	}
	return e.dev.StartTransmit()
}

func (e *Engine) transmitRangeReport(tag *Device, delay uint32) error {
	if err := e.dev.NewTransmit(); err != nil {
		return err
	}
	e.tx = e.enc.AppendShort(e.tx[:0], e.cfg.Address, tag.Short)
	e.tx = appendRangeReport(e.tx, float32(tag.Range), float32(tag.RXPower))
	return e.transmit(delay)
}
