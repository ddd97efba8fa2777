// Package wavelet implements the progressive tile imagery codec.
//
// A codestream holds an image decomposed with the reversible 5/3 lifting
// wavelet. Segment 0 carries the coarsest LL band, every following segment
// the detail bands of one decomposition level, so resolution k can be decoded
// from the first PrefixLen(k) bytes alone.
package wavelet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Codestream errors.
var (
	ErrCorrupt    = errors.New("corrupt wavelet codestream")
	ErrTruncated  = errors.New("truncated wavelet codestream")
	ErrResolution = errors.New("resolution out of range")
)

const (
	magic     = "PTW1"
	fixedSize = 12

	// MaxLevels is the deepest supported decomposition.
	MaxLevels = 7

	// MaxDimension bounds the width and height a codestream may declare.
	MaxDimension = 4096

	// MaxHeaderLen is enough bytes to hold any header.
	MaxHeaderLen = fixedSize + 4*(MaxLevels+1)

	channels = 3
)

// Header describes a codestream.
type Header struct {
	Width    int
	Height   int
	Levels   int
	Step     int
	Segments []uint32 // Compressed length of each segment, coarsest first
}

// ParseHeader reads the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < fixedSize {
		return h, fmt.Errorf("%w: %d header bytes", ErrTruncated, len(data))
	}
	if string(data[0:4]) != magic {
		return h, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[0:4])
	}

	h.Width = int(binary.BigEndian.Uint16(data[4:6]))
	h.Height = int(binary.BigEndian.Uint16(data[6:8]))
	h.Levels = int(data[8])
	ch := int(data[9])
	h.Step = int(binary.BigEndian.Uint16(data[10:12]))

	if h.Width == 0 || h.Height == 0 {
		return h, fmt.Errorf("%w: empty image %dx%d", ErrCorrupt, h.Width, h.Height)
	}
	if h.Width > MaxDimension || h.Height > MaxDimension {
		return h, fmt.Errorf("%w: image %dx%d exceeds %d", ErrCorrupt, h.Width, h.Height, MaxDimension)
	}
	if h.Levels > MaxLevels {
		return h, fmt.Errorf("%w: %d levels", ErrCorrupt, h.Levels)
	}
	if ch != channels {
		return h, fmt.Errorf("%w: %d channels", ErrCorrupt, ch)
	}
	if h.Step < 1 {
		return h, fmt.Errorf("%w: quantization step %d", ErrCorrupt, h.Step)
	}

	n := h.Levels + 1
	if len(data) < fixedSize+4*n {
		return h, fmt.Errorf("%w: segment table", ErrTruncated)
	}
	h.Segments = make([]uint32, n)
	for i := range h.Segments {
		off := fixedSize + 4*i
		h.Segments[i] = binary.BigEndian.Uint32(data[off : off+4])
	}
	return h, nil
}

// Len returns the encoded header size.
func (h Header) Len() int {
	return fixedSize + 4*(h.Levels+1)
}

// NumResolutions returns how many resolutions the codestream can produce.
func (h Header) NumResolutions() int {
	return h.Levels + 1
}

// PrefixLen returns how many leading bytes are needed to decode resolution k.
func (h Header) PrefixLen(k int) int {
	n := h.Len()
	for i := 0; i <= k && i < len(h.Segments); i++ {
		n += int(h.Segments[i])
	}
	return n
}

// TotalLen returns the full codestream size.
func (h Header) TotalLen() int {
	return h.PrefixLen(h.Levels)
}

// Dimensions returns the raster size produced at resolution k.
func (h Header) Dimensions(k int) (w, hgt int, err error) {
	if k < 0 || k > h.Levels {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrResolution, k, h.NumResolutions())
	}
	w, hgt = levelDims(h.Width, h.Height, h.Levels-k)
	return w, hgt, nil
}

func (h Header) marshal() []byte {
	buf := make([]byte, h.Len())
	copy(buf, magic)
	binary.BigEndian.PutUint16(buf[4:6], uint16(h.Width))
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Height))
	buf[8] = byte(h.Levels)
	buf[9] = channels
	binary.BigEndian.PutUint16(buf[10:12], uint16(h.Step))
	for i, s := range h.Segments {
		off := fixedSize + 4*i
		binary.BigEndian.PutUint32(buf[off:off+4], s)
	}
	return buf
}

// levelDims returns the LL band size after l decompositions.
func levelDims(w, h, l int) (int, int) {
	for i := 0; i < l; i++ {
		w = (w + 1) / 2
		h = (h + 1) / 2
	}
	return w, h
}
