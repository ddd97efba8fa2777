// Package mesh tessellates tiles into renderable surfaces.
package mesh

import (
	"github.com/Faultbox/globestream/internal/engine/tile"
	"github.com/Faultbox/globestream/pkg/math"
)

// Stride is the vertex size in floats: position (3) + uv (2).
const Stride = 5

// Mesh is a tile surface ready for upload. Positions are relative to Origin
// so they fit in float32 without visible jitter.
type Mesh struct {
	Origin   math.Vec3
	Vertices []float32
	Indices  []uint32
}

// Build tessellates a tile into segments x segments quads on the
// globe. Heights come from elev scaled by heightScale; nil elev gives a
// flat patch on the reference sphere.
func Build(key tile.Key, unitDD int, elev *tile.Elevation, heightScale float64, segments int) Mesh {
	if segments < 1 {
		segments = 1
	}
	u := float64(unitDD)
	clon, clat := key.Center(unitDD)
	origin := math.SphericalToCartesian(clon, clat, math.EarthRadius)

	n := segments + 1
	m := Mesh{
		Origin:   origin,
		Vertices: make([]float32, 0, n*n*Stride),
		Indices:  make([]uint32, 0, segments*segments*6),
	}

	step := float64(key.Size) / float64(segments)
	for row := 0; row < n; row++ {
		lat := float64(key.Lat) - float64(row)*step
		for col := 0; col < n; col++ {
			lon := float64(key.Lon) + float64(col)*step

			var h float64
			if elev != nil {
				if v, ok := elev.HeightAt(lon, lat); ok {
					h = v * heightScale
				}
			}

			p := math.SphericalToCartesian(lon/u, lat/u, math.EarthRadius+h).Sub(origin)
			m.Vertices = append(m.Vertices,
				float32(p.X), float32(p.Y), float32(p.Z),
				float32(col)/float32(segments), float32(row)/float32(segments),
			)
		}
	}

	for row := 0; row < segments; row++ {
		for col := 0; col < segments; col++ {
			nw := uint32(row*n + col)
			ne := nw + 1
			sw := nw + uint32(n)
			se := sw + 1
			m.Indices = append(m.Indices, nw, sw, ne, ne, sw, se)
		}
	}
	return m
}

// VertexCount returns the number of vertices in the mesh.
func (m Mesh) VertexCount() int {
	return len(m.Vertices) / Stride
}
