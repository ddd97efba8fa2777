package landscape

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/globestream/internal/engine/texture"
	"github.com/Faultbox/globestream/internal/engine/tile"
	"github.com/Faultbox/globestream/pkg/formats"
)

const unit = 1000000

type trashBin struct {
	items []texture.Trashed
}

func (b *trashBin) Trash(h []texture.Trashed) {
	b.items = append(b.items, h...)
}

type acquireLog struct {
	calls  []int
	finest []bool
}

func (a *acquireLog) AcquireTile(l *Level, finest bool) {
	a.calls = append(a.calls, l.Index())
	a.finest = append(a.finest, finest)
}

func newLandscape(t *testing.T, mutate func(*Config)) (*Landscape, *trashBin) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	bin := &trashBin{}
	l, err := New(cfg, bin, nil)
	require.NoError(t, err)
	return l, bin
}

func keySet(t *testing.T, lv *Level) map[tile.Key]bool {
	t.Helper()
	set := make(map[tile.Key]bool)
	for _, r := range lv.Records() {
		require.False(t, set[r.Key], "duplicate key %v", r.Key)
		set[r.Key] = true
	}
	return set
}

func TestCorrectTilesFillsWindow(t *testing.T) {
	l, _ := newLandscape(t, nil)
	lv := l.Level(2)

	require.True(t, lv.CorrectTiles(12345678, -4567890))
	keys := keySet(t, lv)
	assert.Len(t, keys, 64)

	// Camera cell sits at column 4, row 4 of the window.
	cam := lv.At(4, 4).Key
	assert.True(t, cam.Contains(12345678, -4567890), "camera tile %v", cam)

	// Neighbours are exactly one tile apart.
	size := lv.Config().TileSize
	for row := 0; row < 8; row++ {
		for col := 1; col < 8; col++ {
			assert.Equal(t, size, lv.At(col, row).Key.Lon-lv.At(col-1, row).Key.Lon)
		}
	}

	assert.False(t, lv.CorrectTiles(12345000, -4567000), "same cell does not move the window")
}

func TestCorrectTilesWrapsAtSeam(t *testing.T) {
	l, _ := newLandscape(t, nil)
	lv := l.Level(0)

	lv.CorrectTiles(179900000, 0)
	keys := keySet(t, lv)
	assert.Len(t, keys, 64)

	lons := map[int]bool{}
	for k := range keys {
		lons[k.Lon/unit] = true
		assert.GreaterOrEqual(t, k.Lon, -180*unit)
		assert.Less(t, k.Lon, 180*unit)
	}
	assert.Equal(t, map[int]bool{
		80: true, 100: true, 120: true, 140: true, 160: true,
		-180: true, -160: true, -140: true,
	}, lons)

	// The tile east of the seam follows the last tile west of it.
	assert.Equal(t, 160*unit, lv.At(4, 0).Key.Lon)
	assert.Equal(t, -180*unit, lv.At(5, 0).Key.Lon)
}

func TestCorrectTilesClampsAtPoles(t *testing.T) {
	l, _ := newLandscape(t, nil)
	lv := l.Level(0)

	lv.CorrectTiles(0, 89*unit)
	assert.Equal(t, 90*unit, lv.At(0, 0).Key.Lat)
	assert.Equal(t, -50*unit, lv.At(0, 7).Key.Lat)
	assert.Len(t, keySet(t, lv), 64)

	lv.CorrectTiles(0, -89*unit)
	assert.Equal(t, 70*unit, lv.At(0, 0).Key.Lat)
	assert.Equal(t, -70*unit, lv.At(0, 7).Key.Lat)
	assert.Len(t, keySet(t, lv), 64)

	var covered bool
	for _, r := range lv.Records() {
		if r.Key.Contains(0, -89*unit) {
			covered = true
		}
	}
	assert.True(t, covered, "polar camera cell stays in the window")
}

func TestCorrectTilesKeepsOverlapAndTrashesRest(t *testing.T) {
	l, bin := newLandscape(t, nil)
	lv := l.Level(1)
	size := lv.Config().TileSize

	lv.CorrectTiles(0, 0)
	before := make(map[tile.Key]*tile.Record)
	for i, r := range lv.Records() {
		_, ok := r.Promote(0, texture.Handle(i+1))
		require.True(t, ok)
		before[r.Key] = r
	}

	require.True(t, lv.CorrectTiles(size, 0))
	keys := keySet(t, lv)
	assert.Len(t, keys, 64)

	kept := 0
	for _, r := range lv.Records() {
		if prev, ok := before[r.Key]; ok {
			assert.Same(t, prev, r)
			assert.True(t, r.HasImagery())
			kept++
		} else {
			assert.False(t, r.HasImagery(), "reused record starts empty")
		}
	}
	assert.Equal(t, 56, kept)
	assert.Len(t, bin.items, 8)
}

func TestProcessVisibilityMarksCameraTile(t *testing.T) {
	l, _ := newLandscape(t, nil)
	view := LookDown(0.5, 0.5, 1000000)

	l.PrepareFrame(view)
	l.CorrectLevels()
	l.ProcessVisibility(view, nil)

	lv := l.Level(1)
	require.True(t, lv.Active())
	assert.True(t, lv.At(4, 4).InScene(), "tile under the camera")
	assert.False(t, lv.At(0, 0).InScene(), "window corner is outside the view cone")

	assert.Equal(t, Inactive, l.Level(4).State())
	for _, r := range l.Level(4).Records() {
		assert.False(t, r.InScene())
	}
}

func TestProcessVisibilityRespectsBounds(t *testing.T) {
	l, _ := newLandscape(t, func(c *Config) {
		c.Bounds = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	})
	view := LookDown(-7, -7, 1000000)

	l.PrepareFrame(view)
	l.CorrectLevels()
	l.ProcessVisibility(view, nil)

	for _, r := range l.Level(1).Records() {
		if r.InScene() {
			b := r.Key.Bound(unit)
			assert.True(t, l.Bounds().Intersects(b), "%v outside bounds", r.Key)
		}
	}
	assert.False(t, l.Level(1).At(4, 4).InScene(), "camera tile lies outside the bounds")
}

func threeLevels(c *Config) {
	c.MaxActiveLevels = 1
	c.Levels = c.Levels[:3]
}

func TestSingleActiveLevelWithImagery(t *testing.T) {
	l, _ := newLandscape(t, threeLevels)

	// Above level 2's range, inside level 1's.
	view := LookDown(0, 0, 2000000)
	l.PrepareFrame(view)
	l.CorrectLevels()
	_, ok := l.Level(1).At(4, 4).Promote(0, texture.Handle(1))
	require.True(t, ok)

	req := &acquireLog{}
	l.ProcessVisibility(view, req)

	assert.False(t, l.Level(0).Visible())
	assert.True(t, l.Level(1).Visible())
	assert.False(t, l.Level(2).Visible())
	assert.Equal(t, ActiveHidden, l.Level(0).State())
	assert.Equal(t, Inactive, l.Level(2).State())

	assert.Equal(t, []int{0, 1}, req.calls)
	assert.Equal(t, []bool{false, true}, req.finest)
}

func TestCoarserLevelDrawnWhileFinerHasNoImagery(t *testing.T) {
	l, _ := newLandscape(t, threeLevels)

	view := LookDown(0, 0, 2000000)
	l.PrepareFrame(view)
	l.CorrectLevels()
	l.ProcessVisibility(view, nil)

	assert.True(t, l.Level(0).Visible())
	assert.True(t, l.Level(1).Visible())
}

func TestDrawListByMode(t *testing.T) {
	l, _ := newLandscape(t, threeLevels)
	view := LookDown(0.5, 0.5, 2000000)
	l.PrepareFrame(view)
	l.CorrectLevels()
	cam := l.Level(1).At(4, 4)
	_, ok := cam.Promote(1, texture.Handle(3))
	require.True(t, ok)
	l.ProcessVisibility(view, nil)

	items := l.DrawList()
	require.Len(t, items, 1)
	assert.Equal(t, cam.Key, items[0].Key)
	assert.Equal(t, texture.Handle(3), items[0].Texture)
	assert.Equal(t, 1, items[0].Resolution)

	l.SetDisplayMode(Untextured)
	assert.Greater(t, len(l.DrawList()), 1)
}

func TestTargetResolution(t *testing.T) {
	l, _ := newLandscape(t, nil)
	lv := l.Level(4)

	near := LookDown(0.01, 0.01, 1000)
	l.PrepareFrame(near)
	l.CorrectLevels()
	lv.ProcessVisibility(near)
	r := lv.At(4, 4)
	assert.Equal(t, 3, lv.TargetResolution(r, true))
	assert.Equal(t, 1, lv.TargetResolution(r, false))

	far := LookDown(0.01, 0.01, 20000000)
	lv.ProcessVisibility(far)
	assert.Equal(t, 0, lv.TargetResolution(r, true))
}

func TestGroundHeight(t *testing.T) {
	l, _ := newLandscape(t, func(c *Config) { c.TerrainScale = 2 })
	view := LookDown(0.5, 0.5, 1000000)
	l.PrepareFrame(view)
	l.CorrectLevels()

	assert.Equal(t, 0.0, l.GroundHeight(500000, 500000, 0), "no elevation loaded anywhere")

	var target *tile.Record
	for _, r := range l.Level(0).Records() {
		if r.Key.Contains(500000, 500000) {
			target = r
		}
	}
	require.NotNil(t, target)
	flat := &formats.DEM{Size: 2, Heights: []int16{100, 100, 100, 100}}
	target.Elevation = tile.NewDEMElevation(target.Key, flat)

	assert.InDelta(t, 200, l.GroundHeight(500000, 500000, 0), 1e-6)
	assert.Equal(t, 0.0, l.GroundHeight(500000, 500000, 1), "level 0 is below the minimum level")

	l.SetTerrain(false, 2)
	assert.Equal(t, 0.0, l.GroundHeight(500000, 500000, 0))
}

func TestValidateRejectsBadLevels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Levels[2].TileSize = cfg.Levels[1].TileSize
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Levels[0].TileSize = 7 * unit
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Levels[0].GridHeight = 10
	assert.Error(t, cfg.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}

func TestResetTrashesEverything(t *testing.T) {
	l, bin := newLandscape(t, nil)
	l.PrepareFrame(LookDown(0, 0, 1000))
	l.CorrectLevels()
	_, ok := l.Level(3).At(0, 0).Promote(2, texture.Handle(77))
	require.True(t, ok)

	l.Reset()
	assert.Equal(t, []texture.Trashed{{Handle: 77, Resolution: 2}}, bin.items)
	assert.Empty(t, l.Level(3).Records())
}
