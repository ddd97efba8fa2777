package wavelet

type rect struct {
	x0, y0, x1, y1 int
}

func (r rect) area() int {
	return (r.x1 - r.x0) * (r.y1 - r.y0)
}

// segmentRects returns the plane regions carried by segment s: the LL band
// for segment 0, otherwise the HL, LH and HH bands of decomposition level
// levels-s+1.
func segmentRects(w, h, levels, s int) []rect {
	if s == 0 {
		lw, lh := levelDims(w, h, levels)
		return []rect{{0, 0, lw, lh}}
	}
	l := levels - s + 1
	cw, ch := levelDims(w, h, l-1)
	lw, lh := levelDims(w, h, l)
	return []rect{
		{lw, 0, cw, lh},
		{0, lh, lw, ch},
		{lw, lh, cw, ch},
	}
}

// segmentSize returns the coefficient count of segment s across all channels.
func segmentSize(w, h, levels, s int) int {
	n := 0
	for _, r := range segmentRects(w, h, levels, s) {
		n += r.area()
	}
	return n * channels
}

// extractSegment gathers segment s from the planes, channel by channel.
func extractSegment(planes [channels]plane, levels, s int) []int32 {
	w, h := planes[0].w, planes[0].h
	out := make([]int32, 0, segmentSize(w, h, levels, s))
	for _, p := range planes {
		for _, r := range segmentRects(w, h, levels, s) {
			for y := r.y0; y < r.y1; y++ {
				out = append(out, p.c[y*p.w+r.x0:y*p.w+r.x1]...)
			}
		}
	}
	return out
}

// placeSegment scatters segment s (laid out by extractSegment for a full
// w x h image) into planes whose stride may be smaller than w.
func placeSegment(planes [channels]plane, w, h, levels, s int, vals []int32) {
	i := 0
	for _, p := range planes {
		for _, r := range segmentRects(w, h, levels, s) {
			for y := r.y0; y < r.y1; y++ {
				n := r.x1 - r.x0
				copy(p.c[y*p.w+r.x0:y*p.w+r.x1], vals[i:i+n])
				i += n
			}
		}
	}
}
