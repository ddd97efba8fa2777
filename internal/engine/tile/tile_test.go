package tile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/globestream/internal/engine/texture"
	"github.com/Faultbox/globestream/pkg/formats"
)

const unit = 1000000

func TestKeyContainsAndCenter(t *testing.T) {
	k := Key{Lon: -180 * unit, Lat: 90 * unit, Level: 0, Size: 20 * unit}

	assert.True(t, k.Contains(-180*unit, 90*unit))
	assert.True(t, k.Contains(-161*unit, 71*unit))
	assert.False(t, k.Contains(-160*unit, 80*unit), "east edge is exclusive")
	assert.False(t, k.Contains(-170*unit, 70*unit), "south edge is exclusive")

	lon, lat := k.Center(unit)
	assert.Equal(t, -170.0, lon)
	assert.Equal(t, 80.0, lat)

	b := k.Bound(unit)
	assert.Equal(t, -180.0, b.Min.X())
	assert.Equal(t, 70.0, b.Min.Y())
	assert.Equal(t, -160.0, b.Max.X())
	assert.Equal(t, 90.0, b.Max.Y())
}

func TestPathDivisorBuckets(t *testing.T) {
	k := Key{Lon: -1250000, Lat: 3750000, Level: 2, Size: 1250000}
	assert.Equal(t, "L2/D5000000/x-1y0/-1250000_3750000.ptw", Path(k, 5000000, "ptw"))
}

func TestPathQuadrantSharding(t *testing.T) {
	k := Key{Lon: -1250000, Lat: 3750000, Level: 2, Size: 1250000}
	assert.Equal(t, "L2/nw/001/003/001250000_003750000.tin", Path(k, 0, "tin"))

	se := Key{Lon: 12500000, Lat: -3750000, Level: 2, Size: 1250000}
	assert.Equal(t, "L2/se/012/003/012500000_003750000.tin", Path(se, 0, "tin"))
}

func TestPathsAreDistinctPerKey(t *testing.T) {
	seen := map[string]Key{}
	for lon := -4; lon < 4; lon++ {
		for lat := -4; lat < 4; lat++ {
			k := Key{Lon: lon * 1250000, Lat: lat * 1250000, Level: 3, Size: 1250000}
			for _, div := range []int{0, 5000000} {
				p := Path(k, div, "ptw")
				if prev, dup := seen[p]; dup && prev != k {
					t.Fatalf("path %s shared by %v and %v", p, prev, k)
				}
				seen[p] = k
			}
		}
	}
}

func TestRecordLifecycle(t *testing.T) {
	r := NewRecord()
	r.Assign(Key{Level: 1, Size: 10}, Source{ServerID: 0})
	r.SetInScene(true)

	next, ok := r.NextResolution(3)
	require.True(t, ok)
	assert.Equal(t, 0, next)

	r.Wavelets[0].Requested = true
	_, ok = r.NextResolution(3)
	assert.False(t, ok, "one outstanding imagery request per tile")

	old, ok := r.Promote(0, texture.Handle(7))
	require.True(t, ok)
	assert.Empty(t, old)
	assert.Equal(t, texture.Handle(7), r.Texture())

	old, ok = r.Promote(2, texture.Handle(9))
	require.True(t, ok)
	assert.Equal(t, []texture.Trashed{{Handle: 7, Resolution: 0}}, old)
	assert.Equal(t, 2, r.CurrentResolution)

	_, ok = r.Promote(1, texture.Handle(11))
	assert.False(t, ok, "resolution never moves down while visible")
	assert.Equal(t, 2, r.CurrentResolution)

	gen := r.Generation()
	trash := r.Retire()
	assert.Equal(t, []texture.Trashed{{Handle: 9, Resolution: 2}}, trash)
	assert.Equal(t, -1, r.CurrentResolution)
	assert.False(t, r.InScene())
	assert.Equal(t, gen+1, r.Generation())
}

func TestNextResolutionSkipsFailed(t *testing.T) {
	r := NewRecord()
	r.Wavelets[0].Failed = true
	next, ok := r.NextResolution(2)
	require.True(t, ok)
	assert.Equal(t, 1, next)

	_, ok = r.NextResolution(-1)
	assert.False(t, ok)
}

func TestElevationTINHeight(t *testing.T) {
	key := Key{Lon: 0, Lat: 1000, Level: 0, Size: 1000}
	tin := &formats.TIN{
		OriginX: 0,
		OriginY: 1000,
		Width:   1000,
		Points: []formats.TINPoint{
			{DX: 0, DY: 0, Height: 100},
			{DX: 1000, DY: 0, Height: 100},
			{DX: 0, DY: 1000, Height: 300},
			{DX: 1000, DY: 1000, Height: 300},
		},
		Strips: [][]int32{{0, 1, 2, 3}},
	}
	e := NewTINElevation(key, tin)

	// Halfway south the plane is at 200 m.
	h, ok := e.HeightAt(250, 500)
	require.True(t, ok)
	assert.InDelta(t, 200, h, 1e-6)

	_, ok = e.HeightAt(2000, 500)
	assert.False(t, ok)
	assert.Equal(t, 300.0, e.MaxHeight())
}

func TestElevationDEMHeight(t *testing.T) {
	key := Key{Lon: 100, Lat: 200, Level: 0, Size: 100}
	dem := &formats.DEM{Size: 3, Heights: []int16{
		0, 0, 0,
		0, 50, 0,
		0, 0, 0,
	}}
	e := NewDEMElevation(key, dem)

	h, ok := e.HeightAt(150, 150)
	require.True(t, ok)
	assert.InDelta(t, 50, h, 1e-6)

	h, ok = e.HeightAt(100, 200)
	require.True(t, ok)
	assert.InDelta(t, 0, h, 1e-6)

	h, ok = e.HeightAt(125, 150)
	require.True(t, ok)
	assert.False(t, math.IsNaN(h))
	assert.InDelta(t, 25, h, 1e-6)
}
