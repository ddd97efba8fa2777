// Package tile holds the tile descriptor types shared by levels, the loader
// and the texture manager.
package tile

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Key identifies a tile by its north-west corner, level and span.
// Coordinates and Size are DD units.
type Key struct {
	Lon   int
	Lat   int
	Level int
	Size  int
}

// String returns a compact representation for logs.
func (k Key) String() string {
	return fmt.Sprintf("L%d(%d,%d)/%d", k.Level, k.Lon, k.Lat, k.Size)
}

// Contains reports whether the DD coordinate lies inside the tile.
// West and north edges are inclusive.
func (k Key) Contains(lon, lat int) bool {
	return lon >= k.Lon && lon < k.Lon+k.Size && lat <= k.Lat && lat > k.Lat-k.Size
}

// Center returns the tile centre in degrees.
func (k Key) Center(unitDD int) (lon, lat float64) {
	u := float64(unitDD)
	half := float64(k.Size) / 2
	return (float64(k.Lon) + half) / u, (float64(k.Lat) - half) / u
}

// Corners returns the four corners in degrees: NW, NE, SW, SE.
func (k Key) Corners(unitDD int) [4]orb.Point {
	u := float64(unitDD)
	w := float64(k.Lon) / u
	e := float64(k.Lon+k.Size) / u
	n := float64(k.Lat) / u
	s := float64(k.Lat-k.Size) / u
	return [4]orb.Point{{w, n}, {e, n}, {w, s}, {e, s}}
}

// Bound returns the tile extent in degrees.
func (k Key) Bound(unitDD int) orb.Bound {
	c := k.Corners(unitDD)
	return orb.Bound{Min: c[2], Max: c[1]}
}

// Kind selects one of a tile's payloads.
type Kind int

const (
	KindImagery Kind = iota
	KindElevation
)

func (k Kind) String() string {
	switch k {
	case KindImagery:
		return "imagery"
	case KindElevation:
		return "elevation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}
