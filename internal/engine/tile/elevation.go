package tile

import (
	"github.com/Faultbox/globestream/pkg/formats"
	"github.com/Faultbox/globestream/pkg/math"
)

// Elevation is a tile's terrain: either a triangulated mesh or a height grid.
// Geometry is handled in a tile-local frame where X grows east and Y grows
// south (both DD) and Z is height in metres.
type Elevation struct {
	key  Key
	TIN  *formats.TIN
	DEM  *formats.DEM
	peak float64
}

// NewTINElevation wraps a parsed mesh.
func NewTINElevation(key Key, tin *formats.TIN) *Elevation {
	return &Elevation{key: key, TIN: tin, peak: float64(tin.MaxHeight())}
}

// NewDEMElevation wraps a parsed grid.
func NewDEMElevation(key Key, dem *formats.DEM) *Elevation {
	return &Elevation{key: key, DEM: dem, peak: float64(dem.MaxHeight())}
}

// MaxHeight returns the highest point of the tile.
func (e *Elevation) MaxHeight() float64 {
	return e.peak
}

// HeightAt casts a vertical ray at the DD coordinate and returns the terrain
// height where it hits. It reports false when the point is outside the tile
// or no triangle is hit.
func (e *Elevation) HeightAt(lon, lat float64) (float64, bool) {
	switch {
	case e.TIN != nil:
		x := lon - e.TIN.OriginX
		y := e.TIN.OriginY - lat
		return e.castTIN(x, y)
	case e.DEM != nil:
		x := lon - float64(e.key.Lon)
		y := float64(e.key.Lat) - lat
		return e.castDEM(x, y)
	}
	return 0, false
}

func (e *Elevation) downRay(x, y float64) math.Ray {
	return math.NewRay(math.Vec3{X: x, Y: y, Z: e.peak + 1}, math.Vec3{Z: -1})
}

func (e *Elevation) castTIN(x, y float64) (float64, bool) {
	w := float64(e.TIN.Width)
	if x < 0 || y < 0 || x > w || y > w {
		return 0, false
	}
	ray := e.downRay(x, y)
	var height float64
	hit := false
	e.TIN.Triangles(func(a, b, c formats.TINPoint) bool {
		t, ok := ray.IntersectTriangle(tinVertex(a), tinVertex(b), tinVertex(c))
		if ok {
			height = ray.At(t).Z
			hit = true
			return false
		}
		return true
	})
	return height, hit
}

func tinVertex(p formats.TINPoint) math.Vec3 {
	return math.Vec3{X: float64(p.DX), Y: float64(p.DY), Z: float64(p.Height)}
}

func (e *Elevation) castDEM(x, y float64) (float64, bool) {
	size := float64(e.key.Size)
	if x < 0 || y < 0 || x > size || y > size {
		return 0, false
	}
	n := int(e.DEM.Size)
	cell := size / float64(n-1)

	col := int(x / cell)
	row := int(y / cell)
	if col > n-2 {
		col = n - 2
	}
	if row > n-2 {
		row = n - 2
	}

	vertex := func(c, r int) math.Vec3 {
		return math.Vec3{X: float64(c) * cell, Y: float64(r) * cell, Z: float64(e.DEM.At(c, r))}
	}
	nw := vertex(col, row)
	ne := vertex(col+1, row)
	sw := vertex(col, row+1)
	se := vertex(col+1, row+1)

	ray := e.downRay(x, y)
	for _, tri := range [2][3]math.Vec3{{nw, ne, sw}, {ne, se, sw}} {
		if t, ok := ray.IntersectTriangle(tri[0], tri[1], tri[2]); ok {
			return ray.At(t).Z, true
		}
	}
	return 0, false
}
