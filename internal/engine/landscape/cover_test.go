package landscape

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCover(t *testing.T) {
	cfg := DefaultConfig()

	// Level 1 has 5 degree tiles: [0, 10] x [0, 5] spans two columns, one row.
	keys := cfg.Cover(1, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 5}})
	require.Len(t, keys, 2)
	assert.Equal(t, 0, keys[0].Lon)
	assert.Equal(t, 5000000, keys[0].Lat)
	assert.Equal(t, 5000000, keys[1].Lon)
	for _, k := range keys {
		assert.Equal(t, 1, k.Level)
		assert.Equal(t, 5000000, k.Size)
	}

	// A point inside one tile covers exactly that tile.
	keys = cfg.Cover(0, orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{2, 2}})
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Contains(1500000, 1500000))

	// The whole world at level 0 is 18 x 9 tiles.
	assert.Len(t, cfg.Cover(0, WorldBounds), 18*9)

	// Bounds past the poles clamp.
	keys = cfg.Cover(0, orb.Bound{Min: orb.Point{-10, 80}, Max: orb.Point{-5, 120}})
	require.Len(t, keys, 1)
	assert.Equal(t, 90000000, keys[0].Lat)

	assert.Empty(t, cfg.Cover(0, orb.Bound{Min: orb.Point{200, 0}, Max: orb.Point{210, 1}}))
}

func TestSourceMatchesLevelRecords(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Levels = cfg.Levels[:2]
	land, err := New(cfg, nil, nil)
	require.NoError(t, err)
	land.PrepareFrame(LookDown(3, 3, 1000000))
	land.CorrectLevels()

	for _, r := range land.Level(1).Records() {
		assert.Equal(t, r.Source, cfg.Source(1, r.Key))
	}
}
