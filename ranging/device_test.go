package ranging

import (
	"testing"

	"uwbnode.dev/mac"
)

func TestDirectoryAdd(t *testing.T) {
	r := NewDirectory(3)
	for i, q := range []float64{5, 2, 7} {
		d := Device{Short: mac.ShortAddr(i + 1), Quality: q, Range: 3}
		if !r.Add(d, nil) {
			t.Fatalf("Add(%v) rejected", d.Short)
		}
	}
	if r.Add(Device{Short: 2}, nil) {
		t.Error("duplicate address accepted")
	}
	for d := range r.All() {
		if d.Range != 0 {
			t.Errorf("device %v added with range %v", d.Short, d.Range)
		}
		if r.At(d.Index()) != d {
			t.Errorf("device %v has index %d", d.Short, d.Index())
		}
	}
	var evicted []mac.ShortAddr
	if !r.Add(Device{Short: 4, Quality: 1}, func(d *Device) { evicted = append(evicted, d.Short) }) {
		t.Fatal("Add rejected in full directory")
	}
	if len(evicted) != 1 || evicted[0] != 2 {
		t.Errorf("evicted %v, want [2]", evicted)
	}
	if r.Len() != 3 || r.Find(2) != nil {
		t.Fatalf("directory holds %d devices after eviction", r.Len())
	}
	if d := r.Find(4); d == nil || d.Index() != 1 {
		t.Errorf("replacement not in the evicted slot: %+v", d)
	}
	// The newcomer has the lowest quality now.
	r.Add(Device{Short: 5, Quality: 3}, nil)
	if r.Find(4) != nil || r.Find(5) == nil {
		t.Error("lowest quality device was not evicted")
	}
}

func TestDirectoryCapacity(t *testing.T) {
	r := NewDirectory(0)
	if r.Cap() != DefaultCapacity {
		t.Fatalf("capacity %d, want %d", r.Cap(), DefaultCapacity)
	}
	evictions := 0
	for i := range DefaultCapacity + 1 {
		r.Add(Device{Short: mac.ShortAddr(i + 1), Quality: float64(i + 1)}, func(*Device) { evictions++ })
	}
	if r.Len() != DefaultCapacity || evictions != 1 {
		t.Errorf("%d devices and %d evictions after %d additions", r.Len(), evictions, DefaultCapacity+1)
	}
	if r.Find(1) != nil {
		t.Error("device with the lowest quality kept")
	}
}

func TestDirectoryRemove(t *testing.T) {
	r := NewDirectory(4)
	for i := range 4 {
		r.Add(Device{Short: mac.ShortAddr(i + 1)}, nil)
	}
	r.Remove(1)
	if r.Len() != 3 {
		t.Fatalf("%d devices after removal", r.Len())
	}
	if d := r.At(1); d.Short != 4 || d.Index() != 1 {
		t.Errorf("last device not moved into the hole: %+v", d)
	}
	r.Remove(2)
	if r.Len() != 2 || r.Find(3) != nil {
		t.Errorf("removing the last device left %d devices", r.Len())
	}
}

func TestSweepInactive(t *testing.T) {
	const now = 10_000
	r := NewDirectory(5)
	// Activity times in milliseconds before now.
	ages := []uint32{2001, 100, 2000, 5000, 3000}
	for i, age := range ages {
		d := Device{Short: mac.ShortAddr(i + 1)}
		d.NoteActivity(now - age)
		r.Add(d, nil)
	}
	var gone []mac.ShortAddr
	r.SweepInactive(now, func(d *Device) { gone = append(gone, d.Short) })
	if len(gone) != 3 {
		t.Errorf("swept %v, want devices 1, 4 and 5", gone)
	}
	if r.Len() != 2 || r.Find(2) == nil || r.Find(3) == nil {
		t.Errorf("remaining devices: %d", r.Len())
	}
	for d := range r.All() {
		if r.At(d.Index()) != d {
			t.Errorf("device %v has stale index %d", d.Short, d.Index())
		}
	}
}

func TestInactiveWraps(t *testing.T) {
	var d Device
	d.NoteActivity(0xFFFF_FF00)
	if d.Inactive(0x100) {
		t.Error("device inactive after 512 ms across the counter wrap")
	}
	if !d.Inactive(0x1000) {
		t.Error("device active after 4352 ms across the counter wrap")
	}
}
