package wavelet

import (
	"fmt"
	"image"
	"sync"
)

// Decoder decodes resolutions of one codestream. Decoded segments are cached
// so a higher resolution reuses the work of a lower one; every Decode call
// still returns a fresh raster. A Decoder is safe for concurrent use.
type Decoder struct {
	header  Header
	payload []byte

	mu       sync.Mutex
	segments [][]int32
}

// NewDecoder parses the header of payload. The payload may be a prefix of the
// full codestream; resolutions beyond Available cannot be decoded.
func NewDecoder(payload []byte) (*Decoder, error) {
	hdr, err := ParseHeader(payload)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		header:   hdr,
		payload:  payload,
		segments: make([][]int32, hdr.Levels+1),
	}, nil
}

// Header returns the codestream header.
func (d *Decoder) Header() Header {
	return d.header
}

// NumResolutions returns the number of decodable resolutions when the full
// codestream is present.
func (d *Decoder) NumResolutions() int {
	return d.header.NumResolutions()
}

// Available returns the finest resolution the payload fully contains, or -1.
func (d *Decoder) Available() int {
	best := -1
	for k := 0; k < d.header.NumResolutions(); k++ {
		if d.header.PrefixLen(k) > len(d.payload) {
			break
		}
		best = k
	}
	return best
}

// Decode returns the raster at resolution k (0 = coarsest).
func (d *Decoder) Decode(k int) (*image.RGBA, error) {
	w, h, err := d.header.Dimensions(k)
	if err != nil {
		return nil, err
	}
	if need := d.header.PrefixLen(k); need > len(d.payload) {
		return nil, fmt.Errorf("%w: resolution %d needs %d bytes, have %d", ErrTruncated, k, need, len(d.payload))
	}

	// Every segment is validated before the planes are allocated.
	segs := make([][]int32, k+1)
	for s := range segs {
		if segs[s], err = d.segment(s); err != nil {
			return nil, err
		}
	}

	var planes [channels]plane
	for i := range planes {
		planes[i] = newPlane(w, h)
	}
	for s, vals := range segs {
		placeSegment(planes, d.header.Width, d.header.Height, d.header.Levels, s, vals)
	}

	// Undo decompositions from the deepest up to the target resolution.
	for l := d.header.Levels; l > d.header.Levels-k; l-- {
		cw, ch := levelDims(d.header.Width, d.header.Height, l-1)
		for _, p := range planes {
			inverseLevel(p, cw, ch)
		}
	}

	return inverseRCT(planes, w, h), nil
}

// segment returns the entropy-decoded, dequantized coefficients of segment s.
func (d *Decoder) segment(s int) ([]int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if vals := d.segments[s]; vals != nil {
		return vals, nil
	}

	start := d.header.PrefixLen(s - 1)
	if s == 0 {
		start = d.header.Len()
	}
	end := start + int(d.header.Segments[s])
	n := segmentSize(d.header.Width, d.header.Height, d.header.Levels, s)

	vals, err := entropyDecode(d.payload[start:end], n)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", s, err)
	}
	if s > 0 {
		dequantize(vals, d.header.Step)
	}
	d.segments[s] = vals
	return vals, nil
}

// NumResolutions reports the resolution count declared by a payload header.
func NumResolutions(payload []byte) (int, error) {
	hdr, err := ParseHeader(payload)
	if err != nil {
		return 0, err
	}
	return hdr.NumResolutions(), nil
}

// Decode decodes resolution k of payload without keeping any state.
func Decode(payload []byte, k int) (*image.RGBA, error) {
	d, err := NewDecoder(payload)
	if err != nil {
		return nil, err
	}
	return d.Decode(k)
}
