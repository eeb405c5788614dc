package landmark

// Neutral returns a frame with every landmark at the image centre and fully visible.
func Neutral(index int, fps float64) Frame {
	lms := make([]Landmark, Count)
	for id := range lms {
		lms[id] = Landmark{ID: id, Name: names[id], X: 0.5, Y: 0.5, Visibility: 1}
	}
	return Frame{Index: index, TimestampSec: Timestamp(index, fps), Landmarks: lms}
}

// With returns a copy of f with the named landmark moved to (x, y).
// Unknown names leave the frame unchanged.
func (f Frame) With(name string, x, y float64) Frame {
	id, ok := ID(name)
	if !ok {
		return f
	}
	lms := make([]Landmark, len(f.Landmarks))
	copy(lms, f.Landmarks)
	for i := range lms {
		if lms[i].ID == id {
			lms[i].X, lms[i].Y = x, y
		}
	}
	f.Landmarks = lms
	return f
}

// Without returns a copy of f lacking the named landmarks.
func (f Frame) Without(names ...string) Frame {
	drop := make(map[int]bool, len(names))
	for _, n := range names {
		if id, ok := ID(n); ok {
			drop[id] = true
		}
	}
	lms := make([]Landmark, 0, len(f.Landmarks))
	for _, l := range f.Landmarks {
		if !drop[l.ID] {
			lms = append(lms, l)
		}
	}
	f.Landmarks = lms
	return f
}
