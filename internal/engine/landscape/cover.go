package landscape

import (
	gomath "math"

	"github.com/paulmach/orb"

	"github.com/Faultbox/globestream/internal/engine/tile"
)

// Cover returns the keys of level that intersect bound, west to east within
// rows running north to south. Bound is in degrees and is clipped to the
// globe. Tiles that only touch the bound's east or south edge are left out.
func (c Config) Cover(level int, bound orb.Bound) []tile.Key {
	lc := c.Levels[level]
	u := float64(c.UnitDD)
	size := float64(lc.TileSize)
	cols := 360 * c.UnitDD / lc.TileSize
	rows := 180 * c.UnitDD / lc.TileSize

	if bound.IsEmpty() || !bound.Intersects(WorldBounds) {
		return nil
	}

	c0 := clampInt(int(gomath.Floor((bound.Left()+180)*u/size)), 0, cols-1)
	c1 := clampInt(int(gomath.Ceil((bound.Right()+180)*u/size))-1, c0, cols-1)
	r0 := clampInt(int(gomath.Floor((90-bound.Top())*u/size)), 0, rows-1)
	r1 := clampInt(int(gomath.Ceil((90-bound.Bottom())*u/size))-1, r0, rows-1)

	keys := make([]tile.Key, 0, (c1-c0+1)*(r1-r0+1))
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			keys = append(keys, tile.Key{
				Lon:   -180*c.UnitDD + col*lc.TileSize,
				Lat:   90*c.UnitDD - row*lc.TileSize,
				Level: level,
				Size:  lc.TileSize,
			})
		}
	}
	return keys
}

// Source resolves the payload paths of a key of level.
func (c Config) Source(level int, key tile.Key) tile.Source {
	lc := c.Levels[level]
	return tile.ResolveSource(key, lc.ServerID, lc.Divisor, c.ImageryExt, c.ElevationExt)
}
