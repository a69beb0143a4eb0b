package telemetry

import (
	"time"

	"uwbnode.dev/internal/tlog"
	"uwbnode.dev/ranging"
)

// Sink receives records.
type Sink interface {
	Publish(r Record) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(r Record) error

func (f SinkFunc) Publish(r Record) error {
	return f(r)
}

// Recorder is a ranging.Listener turning protocol events into
// records for its sinks. Sink errors are logged.
type Recorder struct {
	node  uint16
	now   func() time.Time
	log   *tlog.Logger
	sinks []Sink

	ranges   int
	timeouts int
}

var _ ranging.Listener = (*Recorder)(nil)

// NewRecorder returns a recorder for the node with the given short
// address. A nil now selects time.Now.
func NewRecorder(node uint16, now func() time.Time, log *tlog.Logger, sinks ...Sink) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{node: node, now: now, log: log, sinks: sinks}
}

// AddSink adds s to the sinks of r.
func (r *Recorder) AddSink(s Sink) {
	r.sinks = append(r.sinks, s)
}

func (r *Recorder) publish(k Kind, d *ranging.Device) {
	rec := NewRecord(k, r.now(), r.node, d)
	for _, s := range r.sinks {
		if err := s.Publish(rec); err != nil {
			r.log.Warnf(logTag, "publish %v: %v", k, err)
		}
	}
}

func (r *Recorder) NewRange(d *ranging.Device) {
	r.ranges++
	r.log.Infof(logTag, "range from %v: %.2f m at %.1f dBm", d.Short, d.Range, d.RXPower)
	r.publish(KindRange, d)
}

func (r *Recorder) RangeSent(d *ranging.Device) {
	r.log.Verbosef(logTag, "range sent to %v", d.Short)
}

func (r *Recorder) BlinkDevice(d *ranging.Device) {
	r.log.Infof(logTag, "blink from %v", d.Short)
	r.publish(KindBlink, d)
}

func (r *Recorder) NewDevice(d *ranging.Device) {
	r.log.Debugf(logTag, "device %v", d.Short)
	r.publish(KindNewDevice, d)
}

func (r *Recorder) InactiveDevice(d *ranging.Device) {
	r.log.Infof(logTag, "device %v inactive", d.Short)
	r.publish(KindInactive, d)
}

func (r *Recorder) DeviceEvicted(d *ranging.Device) {
	r.log.Infof(logTag, "device %v evicted", d.Short)
	r.publish(KindEvicted, d)
}

func (r *Recorder) TimeoutExtension() {
	r.timeouts++
	r.log.Debugf(logTag, "poll-ack timeout")
}

// Stats returns the number of ranges and poll-ack timeouts seen.
func (r *Recorder) Stats() (ranges, timeouts int) {
	return r.ranges, r.timeouts
}
