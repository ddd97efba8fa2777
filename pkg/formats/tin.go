// Package formats provides parsers for the globe's elevation payloads.
//
// Both formats are big-endian. A TIN (triangulated irregular network) stores
// tile-local vertex positions plus triangle strips; a DEM stores a square grid
// of 16-bit heights.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Elevation format errors.
var (
	ErrTruncatedElevation = errors.New("truncated elevation data")
	ErrInvalidElevation   = errors.New("invalid elevation data")
)

const (
	maxTINPoints = 1 << 20
	maxTINStrips = 1 << 20
	maxDEMSize   = 4097
)

// TINPoint is a mesh vertex relative to the tile origin.
// DX grows east and DY grows south, both in DD units; Height is metres.
type TINPoint struct {
	DX     float32
	Height float32
	DY     float32
}

// TIN is a parsed triangulated elevation mesh.
type TIN struct {
	OriginX float64 // Longitude of the west edge (DD)
	OriginY float64 // Latitude of the north edge (DD)
	Width   int32   // Tile span (DD)
	Points  []TINPoint
	Strips  [][]int32 // Triangle strips indexing Points
}

// ParseTIN parses a TIN payload.
func ParseTIN(data []byte) (*TIN, error) {
	r := bytes.NewReader(data)
	tin := &TIN{}

	if err := binary.Read(r, binary.BigEndian, &tin.OriginX); err != nil {
		return nil, fmt.Errorf("%w: reading origin x", ErrTruncatedElevation)
	}
	if err := binary.Read(r, binary.BigEndian, &tin.OriginY); err != nil {
		return nil, fmt.Errorf("%w: reading origin y", ErrTruncatedElevation)
	}
	if err := binary.Read(r, binary.BigEndian, &tin.Width); err != nil {
		return nil, fmt.Errorf("%w: reading width", ErrTruncatedElevation)
	}
	if tin.Width <= 0 {
		return nil, fmt.Errorf("%w: width %d", ErrInvalidElevation, tin.Width)
	}

	var pointCount int32
	if err := binary.Read(r, binary.BigEndian, &pointCount); err != nil {
		return nil, fmt.Errorf("%w: reading point count", ErrTruncatedElevation)
	}
	if pointCount < 0 || pointCount > maxTINPoints {
		return nil, fmt.Errorf("%w: point count %d", ErrInvalidElevation, pointCount)
	}
	if int64(r.Len()) < int64(pointCount)*12 {
		return nil, fmt.Errorf("%w: reading %d points", ErrTruncatedElevation, pointCount)
	}
	tin.Points = make([]TINPoint, pointCount)
	if err := binary.Read(r, binary.BigEndian, tin.Points); err != nil {
		return nil, fmt.Errorf("%w: reading points", ErrTruncatedElevation)
	}

	var stripCount int32
	if err := binary.Read(r, binary.BigEndian, &stripCount); err != nil {
		return nil, fmt.Errorf("%w: reading strip count", ErrTruncatedElevation)
	}
	if stripCount < 0 || stripCount > maxTINStrips {
		return nil, fmt.Errorf("%w: strip count %d", ErrInvalidElevation, stripCount)
	}

	tin.Strips = make([][]int32, stripCount)
	for i := range tin.Strips {
		var n int32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: reading strip %d length", ErrTruncatedElevation, i)
		}
		if n < 0 || int64(r.Len()) < int64(n)*4 {
			return nil, fmt.Errorf("%w: strip %d with %d indices", ErrTruncatedElevation, i, n)
		}
		strip := make([]int32, n)
		if err := binary.Read(r, binary.BigEndian, strip); err != nil {
			return nil, fmt.Errorf("%w: reading strip %d", ErrTruncatedElevation, i)
		}
		for _, idx := range strip {
			if idx < 0 || idx >= pointCount {
				return nil, fmt.Errorf("%w: strip %d index %d out of range", ErrInvalidElevation, i, idx)
			}
		}
		tin.Strips[i] = strip
	}

	return tin, nil
}

// Triangles calls fn for every non-degenerate triangle in the strips.
// Returning false from fn stops the iteration.
func (t *TIN) Triangles(fn func(a, b, c TINPoint) bool) {
	for _, strip := range t.Strips {
		for i := 0; i+2 < len(strip); i++ {
			ia, ib, ic := strip[i], strip[i+1], strip[i+2]
			if ia == ib || ib == ic || ia == ic {
				continue
			}
			if !fn(t.Points[ia], t.Points[ib], t.Points[ic]) {
				return
			}
		}
	}
}

// MaxHeight returns the highest vertex in the mesh.
func (t *TIN) MaxHeight() float32 {
	var max float32
	for i, p := range t.Points {
		if i == 0 || p.Height > max {
			max = p.Height
		}
	}
	return max
}

// WriteTo serializes the mesh in the wire format read by ParseTIN.
func (t *TIN) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, t.OriginX)
	binary.Write(buf, binary.BigEndian, t.OriginY)
	binary.Write(buf, binary.BigEndian, t.Width)
	binary.Write(buf, binary.BigEndian, int32(len(t.Points)))
	binary.Write(buf, binary.BigEndian, t.Points)
	binary.Write(buf, binary.BigEndian, int32(len(t.Strips)))
	for _, strip := range t.Strips {
		binary.Write(buf, binary.BigEndian, int32(len(strip)))
		binary.Write(buf, binary.BigEndian, strip)
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}
