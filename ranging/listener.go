package ranging

// Listener receives protocol events from an Engine. Devices passed
// to it are owned by the engine and must not be retained.
type Listener interface {
	// NewRange reports a new range measurement to d.
	NewRange(d *Device)
	// RangeSent reports a Range message sent to d.
	RangeSent(d *Device)
	// BlinkDevice reports a blink from a tag. d is not in the
	// directory.
	BlinkDevice(d *Device)
	NewDevice(d *Device)
	// InactiveDevice is called once before an inactive device is
	// removed.
	InactiveDevice(d *Device)
	// DeviceEvicted is called before a device is replaced in a full
	// directory.
	DeviceEvicted(d *Device)
	// TimeoutExtension is called when a tag gave up waiting for
	// Poll-Acks.
	TimeoutExtension()
}

// ListenerFuncs adapts functions to a Listener. Nil fields are
// ignored.
type ListenerFuncs struct {
	OnNewRange         func(d *Device)
	OnRangeSent        func(d *Device)
	OnBlinkDevice      func(d *Device)
	OnNewDevice        func(d *Device)
	OnInactiveDevice   func(d *Device)
	OnDeviceEvicted    func(d *Device)
	OnTimeoutExtension func()
}

func (l ListenerFuncs) NewRange(d *Device) {
	if l.OnNewRange != nil {
		l.OnNewRange(d)
	}
}

func (l ListenerFuncs) RangeSent(d *Device) {
	if l.OnRangeSent != nil {
		l.OnRangeSent(d)
	}
}

func (l ListenerFuncs) BlinkDevice(d *Device) {
	if l.OnBlinkDevice != nil {
		l.OnBlinkDevice(d)
	}
}

func (l ListenerFuncs) NewDevice(d *Device) {
	if l.OnNewDevice != nil {
		l.OnNewDevice(d)
	}
}

func (l ListenerFuncs) InactiveDevice(d *Device) {
	if l.OnInactiveDevice != nil {
		l.OnInactiveDevice(d)
	}
}

func (l ListenerFuncs) DeviceEvicted(d *Device) {
	if l.OnDeviceEvicted != nil {
		l.OnDeviceEvicted(d)
	}
}

func (l ListenerFuncs) TimeoutExtension() {
	if l.OnTimeoutExtension != nil {
		l.OnTimeoutExtension()
	}
}
