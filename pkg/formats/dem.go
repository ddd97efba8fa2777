package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// DEM is a square height grid covering one tile. Samples run west to east,
// north to south; the outer samples lie on the tile edges.
type DEM struct {
	Size    int32
	Heights []int16 // Size*Size samples in metres
}

// ParseDEM parses a DEM payload.
func ParseDEM(data []byte) (*DEM, error) {
	r := bytes.NewReader(data)
	dem := &DEM{}

	if err := binary.Read(r, binary.BigEndian, &dem.Size); err != nil {
		return nil, fmt.Errorf("%w: reading size", ErrTruncatedElevation)
	}
	if dem.Size < 2 || dem.Size > maxDEMSize {
		return nil, fmt.Errorf("%w: grid size %d", ErrInvalidElevation, dem.Size)
	}

	count := int(dem.Size) * int(dem.Size)
	if r.Len() < count*2 {
		return nil, fmt.Errorf("%w: expected %d samples", ErrTruncatedElevation, count)
	}
	dem.Heights = make([]int16, count)
	if err := binary.Read(r, binary.BigEndian, dem.Heights); err != nil {
		return nil, fmt.Errorf("%w: reading samples", ErrTruncatedElevation)
	}
	return dem, nil
}

// At returns the sample at column x, row y. Out-of-range coordinates clamp.
func (d *DEM) At(x, y int) int16 {
	n := int(d.Size)
	x = clampIndex(x, n)
	y = clampIndex(y, n)
	return d.Heights[y*n+x]
}

// MaxHeight returns the highest sample.
func (d *DEM) MaxHeight() int16 {
	var max int16
	for i, h := range d.Heights {
		if i == 0 || h > max {
			max = h
		}
	}
	return max
}

// WriteTo serializes the grid in the wire format read by ParseDEM.
func (d *DEM) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, d.Size)
	binary.Write(buf, binary.BigEndian, d.Heights)
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
