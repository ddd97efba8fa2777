package texture

// freeList is a LIFO stack of recycled handles. Capacity starts at initial
// and doubles when full.
type freeList struct {
	items   []Handle
	initial int
}

func (f *freeList) len() int {
	return len(f.items)
}

func (f *freeList) push(h Handle) {
	if len(f.items) == cap(f.items) {
		n := cap(f.items) * 2
		if n < f.initial {
			n = f.initial
		}
		if n == 0 {
			n = 1
		}
		grown := make([]Handle, len(f.items), n)
		copy(grown, f.items)
		f.items = grown
	}
	f.items = append(f.items, h)
}

func (f *freeList) pop() (Handle, bool) {
	n := len(f.items)
	if n == 0 {
		return None, false
	}
	h := f.items[n-1]
	f.items = f.items[:n-1]
	return h, true
}

func (f *freeList) drain() []Handle {
	out := f.items
	f.items = nil
	return out
}
