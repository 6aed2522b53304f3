package series

import "github.com/keilerkonzept/serial-plotter/internal/stream"

// Registry allocates slots once per session from the first decoded record.
type Registry struct {
	slots []Slot
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Ensure creates slots from rec when none exist yet and reports whether it
// did. Later calls return the existing slots unchanged, whatever keys rec has.
func (r *Registry) Ensure(rec stream.Record, mode PlotMode) ([]Slot, bool) {
	if len(r.slots) > 0 || rec.IsEmpty() {
		return r.Slots(), false
	}

	keys := rec.Keys()
	positional := !keys[0].IsName()
	if positional && mode == XYSeries {
		// two CSV columns form one (x, y) series
		keys = keys[:1]
	}
	for i, k := range keys {
		label := ""
		if k.IsName() {
			label = k.Name()
		}
		r.slots = append(r.slots, Slot{
			Index: i,
			Key:   k,
			Label: label,
			Color: ColorFor(i),
		})
	}
	return r.Slots(), true
}

// Slots returns a copy of the allocated slots.
func (r *Registry) Slots() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

func (r *Registry) Len() int { return len(r.slots) }

// Has reports whether key belongs to an allocated slot.
func (r *Registry) Has(key stream.FieldKey) bool {
	for _, s := range r.slots {
		if s.Key == key {
			return true
		}
	}
	return false
}

// SetLabel renames a slot, e.g. from a legend editor.
func (r *Registry) SetLabel(index int, label string) bool {
	if index < 0 || index >= len(r.slots) {
		return false
	}
	r.slots[index].Label = label
	return true
}

// Reset drops all slots; the next record re-creates them.
func (r *Registry) Reset() {
	r.slots = nil
}
