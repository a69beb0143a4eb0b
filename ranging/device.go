package ranging

import (
	"iter"

	"uwbnode.dev/dwtime"
	"uwbnode.dev/mac"
)

// InactivityTimeout is the time in milliseconds after which a silent
// device is considered gone.
const InactivityTimeout = 2000

// DefaultCapacity is the default number of devices in a Directory.
const DefaultCapacity = 12

// Device is a peer seen by the ranging protocol.
type Device struct {
	Short mac.ShortAddr

	RXPower float64
	FPPower float64
	Quality float64

	PollSent        dwtime.Time
	PollReceived    dwtime.Time
	PollAckSent     dwtime.Time
	PollAckReceived dwtime.Time
	RangeSent       dwtime.Time
	RangeReceived   dwtime.Time

	// Round is PollAckReceived - PollSent and Reply is
	// RangeSent - PollAckReceived, both measured by the tag.
	Round dwtime.Time
	Reply dwtime.Time

	PollAcked   bool
	RangeServed bool

	// Range is the distance in meters.
	Range   float64
	Payload float32
	// ReplyTime is the assigned Poll-Ack delay in microseconds.
	ReplyTime uint16

	activity uint32
	index    int
}

// NoteActivity records activity at now, in milliseconds.
func (d *Device) NoteActivity(now uint32) {
	d.activity = now
}

// Inactive reports whether nothing was heard from d for more than
// InactivityTimeout at now.
func (d *Device) Inactive(now uint32) bool {
	return now-d.activity > InactivityTimeout
}

// Index returns the position of d in its directory. It changes when
// other devices are removed.
func (d *Device) Index() int {
	return d.index
}

// Directory is a bounded set of devices keyed by short address.
// Pointers returned by its methods stay valid until the next
// removal or eviction.
type Directory struct {
	devs []Device
}

// NewDirectory returns an empty directory for capacity devices.
func NewDirectory(capacity int) *Directory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Directory{devs: make([]Device, 0, capacity)}
}

func (r *Directory) Len() int {
	return len(r.devs)
}

func (r *Directory) Cap() int {
	return cap(r.devs)
}

// At returns the device at index i.
func (r *Directory) At(i int) *Device {
	return &r.devs[i]
}

// All iterates over the devices in index order.
func (r *Directory) All() iter.Seq[*Device] {
	return func(yield func(*Device) bool) {
		for i := range r.devs {
			if !yield(&r.devs[i]) {
				return
			}
		}
	}
}

// Find returns the device with short address addr, or nil.
func (r *Directory) Find(addr mac.ShortAddr) *Device {
	for i := range r.devs {
		if r.devs[i].Short == addr {
			return &r.devs[i]
		}
	}
	return nil
}

// Add inserts d with its range cleared and reports whether it was
// added. A device whose short address is present is rejected. In a
// full directory, the device with the lowest quality is passed to
// evicted, which may be nil, and replaced.
func (r *Directory) Add(d Device, evicted func(*Device)) bool {
	worst := 0
	for i := range r.devs {
		if r.devs[i].Short == d.Short {
			return false
		}
		if r.devs[i].Quality < r.devs[worst].Quality {
			worst = i
		}
	}
	d.Range = 0
	if len(r.devs) < cap(r.devs) {
		d.index = len(r.devs)
		r.devs = append(r.devs, d)
		return true
	}
	if evicted != nil {
		evicted(&r.devs[worst])
	}
	d.index = worst
	r.devs[worst] = d
	return true
}

// Remove deletes the device at index i by moving the last device
// into its place.
func (r *Directory) Remove(i int) {
	last := len(r.devs) - 1
	if i != last {
		r.devs[i] = r.devs[last]
		r.devs[i].index = i
	}
	r.devs[last] = Device{}
	r.devs = r.devs[:last]
}

// SweepInactive passes every device inactive at now to fn, which may
// be nil, and removes it.
func (r *Directory) SweepInactive(now uint32, fn func(*Device)) {
	// Backwards, so that the device moved into a hole has been
	// checked already.
	for i := len(r.devs) - 1; i >= 0; i-- {
		if !r.devs[i].Inactive(now) {
			continue
		}
		if fn != nil {
			fn(&r.devs[i])
		}
		r.Remove(i)
	}
}
