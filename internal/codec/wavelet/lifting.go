package wavelet

// plane is one colour channel's coefficients laid out in Mallat order:
// after each decomposition the LL band occupies the top-left corner.
type plane struct {
	w, h int
	c    []int32
}

func newPlane(w, h int) plane {
	return plane{w: w, h: h, c: make([]int32, w*h)}
}

// forward53 replaces n strided samples starting at off with their 5/3 lifting
// transform: low-pass samples first, then high-pass.
func forward53(x []int32, off, stride, n int, tmp []int32) {
	if n < 2 {
		return
	}
	nl := (n + 1) / 2
	nh := n / 2
	at := func(i int) int32 { return x[off+i*stride] }

	for i := 0; i < nh; i++ {
		right := 2*i + 2
		if right >= n {
			right = 2 * i
		}
		tmp[nl+i] = at(2*i+1) - ((at(2*i) + at(right)) >> 1)
	}
	for i := 0; i < nl; i++ {
		dl, dr := neighbours(i, nh)
		tmp[i] = at(2*i) + ((tmp[nl+dl] + tmp[nl+dr] + 2) >> 2)
	}
	for i := 0; i < n; i++ {
		x[off+i*stride] = tmp[i]
	}
}

// inverse53 undoes forward53.
func inverse53(x []int32, off, stride, n int, tmp []int32) {
	if n < 2 {
		return
	}
	nl := (n + 1) / 2
	nh := n / 2
	low := func(i int) int32 { return x[off+i*stride] }
	high := func(i int) int32 { return x[off+(nl+i)*stride] }

	for i := 0; i < nl; i++ {
		dl, dr := neighbours(i, nh)
		tmp[2*i] = low(i) - ((high(dl) + high(dr) + 2) >> 2)
	}
	for i := 0; i < nh; i++ {
		right := 2*i + 2
		if i+1 >= nl {
			right = 2 * i
		}
		tmp[2*i+1] = high(i) + ((tmp[2*i] + tmp[right]) >> 1)
	}
	for i := 0; i < n; i++ {
		x[off+i*stride] = tmp[i]
	}
}

// neighbours returns the high-pass indices adjacent to low-pass sample i,
// mirrored at both ends.
func neighbours(i, nh int) (int, int) {
	dl, dr := i-1, i
	if dl < 0 {
		dl = 0
	}
	if dr >= nh {
		dr = nh - 1
	}
	return dl, dr
}

// forwardLevel decomposes the top-left cw x ch region of p once.
func forwardLevel(p plane, cw, ch int) {
	if cw < 2 && ch < 2 {
		return
	}
	tmp := make([]int32, max(cw, ch))
	for y := 0; y < ch; y++ {
		forward53(p.c, y*p.w, 1, cw, tmp)
	}
	for x := 0; x < cw; x++ {
		forward53(p.c, x, p.w, ch, tmp)
	}
}

// inverseLevel reconstructs the top-left cw x ch region of p from its bands.
func inverseLevel(p plane, cw, ch int) {
	if cw < 2 && ch < 2 {
		return
	}
	tmp := make([]int32, max(cw, ch))
	for x := 0; x < cw; x++ {
		inverse53(p.c, x, p.w, ch, tmp)
	}
	for y := 0; y < ch; y++ {
		inverse53(p.c, y*p.w, 1, cw, tmp)
	}
}
