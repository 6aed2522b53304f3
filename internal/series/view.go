package series

// View is the rendering side of the pipeline. Calls arrive serialized, in
// pipeline order; implementations must not call back into the pipeline.
type View interface {
	AddSeries(slot Slot)
	AppendPoint(slot int, p Point)
	ClearAllSeries()
	SetCapacity(n int)
}

// Views fans every notification out to each view in order.
type Views []View

func (vs Views) AddSeries(slot Slot) {
	for _, v := range vs {
		v.AddSeries(slot)
	}
}

func (vs Views) AppendPoint(slot int, p Point) {
	for _, v := range vs {
		v.AppendPoint(slot, p)
	}
}

func (vs Views) ClearAllSeries() {
	for _, v := range vs {
		v.ClearAllSeries()
	}
}

func (vs Views) SetCapacity(n int) {
	for _, v := range vs {
		v.SetCapacity(n)
	}
}

// NopView discards all notifications.
type NopView struct{}

func (NopView) AddSeries(Slot)         {}
func (NopView) AppendPoint(int, Point) {}
func (NopView) ClearAllSeries()        {}
func (NopView) SetCapacity(int)        {}
