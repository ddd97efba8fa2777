// Package landscape manages the detail levels of the globe: which tiles each
// level covers, which levels are drawn, and ground height queries.
package landscape

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/Faultbox/globestream/internal/engine/texture"
	"github.com/Faultbox/globestream/internal/engine/tile"
)

// DisplayMode selects how tiles are drawn.
type DisplayMode int

const (
	Textured DisplayMode = iota
	Wireframe
	Untextured
)

func (m DisplayMode) String() string {
	switch m {
	case Textured:
		return "textured"
	case Wireframe:
		return "wireframe"
	case Untextured:
		return "untextured"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseDisplayMode converts a configuration string.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch s {
	case "", "textured":
		return Textured, nil
	case "wireframe":
		return Wireframe, nil
	case "untextured":
		return Untextured, nil
	}
	return Textured, fmt.Errorf("unknown display mode %q", s)
}

// Trasher receives textures of retired records.
type Trasher interface {
	Trash(handles []texture.Trashed)
}

// Requester schedules tile loads for an active level.
type Requester interface {
	AcquireTile(level *Level, finest bool)
}

// Config describes the globe and its levels, coarsest first.
type Config struct {
	UnitDD              int // DD units per degree
	Bounds              orb.Bound
	MaxActiveLevels     int
	CoarseMaxResolution int // Resolution cap for levels other than the finest active one
	Terrain             bool
	TerrainScale        float64
	ImageryExt          string
	ElevationExt        string
	Levels              []LevelConfig
}

// WorldBounds covers the whole globe.
var WorldBounds = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// DefaultConfig returns five levels from 20 degree tiles down to roughly
// 8 km tiles.
func DefaultConfig() Config {
	const unit = 1000000
	sizes := []int{20 * unit, 5 * unit, 1250000, 312500, 78125}
	maxZoom := []float64{50000000, 5000000, 1200000, 300000, 80000}

	levels := make([]LevelConfig, len(sizes))
	for i := range sizes {
		levels[i] = LevelConfig{
			TileSize:       sizes[i],
			MinZoom:        0,
			MaxZoom:        maxZoom[i],
			Divisor:        0,
			NumResolutions: 4,
			GridWidth:      8,
			GridHeight:     8,
		}
	}
	return Config{
		UnitDD:              unit,
		Bounds:              WorldBounds,
		MaxActiveLevels:     3,
		CoarseMaxResolution: 1,
		Terrain:             true,
		TerrainScale:        1,
		ImageryExt:          "ptw",
		ElevationExt:        "tin",
		Levels:              levels,
	}
}

// Validate checks level ordering and that every window fits the globe.
func (c Config) Validate() error {
	if c.UnitDD <= 0 {
		return errors.New("unit must be positive")
	}
	if len(c.Levels) == 0 {
		return errors.New("at least one level is required")
	}
	if c.MaxActiveLevels < 1 {
		return fmt.Errorf("max active levels %d must be at least 1", c.MaxActiveLevels)
	}
	lonSpan := 360 * c.UnitDD
	latSpan := 180 * c.UnitDD
	for i, lv := range c.Levels {
		if lv.TileSize <= 0 {
			return fmt.Errorf("level %d: tile size must be positive", i)
		}
		if i > 0 && lv.TileSize >= c.Levels[i-1].TileSize {
			return fmt.Errorf("level %d: tile size %d not smaller than level %d", i, lv.TileSize, i-1)
		}
		if lonSpan%lv.TileSize != 0 || latSpan%lv.TileSize != 0 {
			return fmt.Errorf("level %d: tile size %d does not divide the globe", i, lv.TileSize)
		}
		if lv.GridWidth < 1 || lv.GridHeight < 1 {
			return fmt.Errorf("level %d: grid %dx%d", i, lv.GridWidth, lv.GridHeight)
		}
		if lv.GridWidth*lv.TileSize > lonSpan || lv.GridHeight*lv.TileSize > latSpan {
			return fmt.Errorf("level %d: %dx%d window larger than the globe", i, lv.GridWidth, lv.GridHeight)
		}
		if lv.MinZoom > lv.MaxZoom {
			return fmt.Errorf("level %d: min zoom %.0f above max zoom %.0f", i, lv.MinZoom, lv.MaxZoom)
		}
		if lv.NumResolutions < 1 || lv.NumResolutions > tile.MaxResolutions {
			return fmt.Errorf("level %d: %d resolutions", i, lv.NumResolutions)
		}
	}
	return nil
}

// DrawItem is one tile ready for the render pass.
type DrawItem struct {
	Key        tile.Key
	Texture    texture.Handle
	Resolution int
	Elevation  *tile.Elevation
}

// Landscape owns the levels and runs their per-frame processing.
type Landscape struct {
	cfg    Config
	levels []*Level
	mode   DisplayMode

	view   View
	camLon int
	camLat int

	log *zap.Logger
}

// New creates a landscape. Retired textures go to trash.
func New(cfg Config, trash Trasher, log *zap.Logger) (*Landscape, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid landscape: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("landscape")

	l := &Landscape{cfg: cfg, log: log}
	for i, lc := range cfg.Levels {
		l.levels = append(l.levels, newLevel(i, lc, &l.cfg, trash, log))
	}
	return l, nil
}

// Levels returns the levels, coarsest first.
func (l *Landscape) Levels() []*Level { return l.levels }

// Level returns level i.
func (l *Landscape) Level(i int) *Level { return l.levels[i] }

// Bounds returns the area tiles are loaded for, in degrees.
func (l *Landscape) Bounds() orb.Bound { return l.cfg.Bounds }

// MaxActiveLevels returns how many levels with imagery may be drawn at once.
func (l *Landscape) MaxActiveLevels() int { return l.cfg.MaxActiveLevels }

// UnitDD returns the DD units per degree.
func (l *Landscape) UnitDD() int { return l.cfg.UnitDD }

// DisplayMode returns the draw mode.
func (l *Landscape) DisplayMode() DisplayMode { return l.mode }

// SetDisplayMode changes the draw mode.
func (l *Landscape) SetDisplayMode(m DisplayMode) { l.mode = m }

// Terrain returns whether elevation is loaded and its vertical scale.
func (l *Landscape) Terrain() (bool, float64) {
	return l.cfg.Terrain, l.cfg.TerrainScale
}

// SetTerrain toggles elevation loading and sets the vertical scale.
func (l *Landscape) SetTerrain(enabled bool, scale float64) {
	l.cfg.Terrain = enabled
	l.cfg.TerrainScale = scale
	for _, lv := range l.levels {
		lv.elevation = enabled
		lv.heightScale = scale
	}
}

// ToDD converts degrees to DD units.
func (l *Landscape) ToDD(deg float64) int {
	return l.levels[0].toDD(deg)
}

// PrepareFrame records the camera for this frame.
func (l *Landscape) PrepareFrame(view View) {
	l.view = view
	lon, lat := view.LonLat()
	l.camLon = l.ToDD(lon)
	l.camLat = l.ToDD(lat)
}

// CorrectLevels slides every level's window under the camera.
func (l *Landscape) CorrectLevels() {
	for _, lv := range l.levels {
		lv.CorrectTiles(l.camLon, l.camLat)
	}
}

// ProcessVisibility activates levels by camera altitude, decides which active
// levels are drawn and asks req to load tiles for every active level.
//
// Levels are accounted finest first: an active level is drawn while fewer
// than MaxActiveLevels levels with imagery are already drawn.
func (l *Landscape) ProcessVisibility(view View, req Requester) {
	alt := view.Altitude()
	for _, lv := range l.levels {
		if alt >= lv.cfg.MinZoom && alt <= lv.cfg.MaxZoom {
			lv.state = ActiveHidden
		} else {
			lv.state = Inactive
		}
		lv.ProcessVisibility(view)
	}

	finest := -1
	drawn := 0
	for i := len(l.levels) - 1; i >= 0; i-- {
		lv := l.levels[i]
		if lv.state == Inactive {
			continue
		}
		if finest < 0 {
			finest = i
		}
		if drawn < l.cfg.MaxActiveLevels {
			lv.state = ActiveVisible
			if lv.HasImagery() {
				drawn++
			}
		}
	}

	if req == nil {
		return
	}
	for i, lv := range l.levels {
		if lv.state != Inactive {
			req.AcquireTile(lv, i == finest)
		}
	}
}

// DrawList returns the in-scene tiles of drawn levels, coarsest level first.
// In textured mode only tiles with imagery are listed.
func (l *Landscape) DrawList() []DrawItem {
	var items []DrawItem
	for _, lv := range l.levels {
		if lv.state != ActiveVisible {
			continue
		}
		for _, r := range lv.records {
			if !r.InScene() {
				continue
			}
			if l.mode == Textured && !r.HasImagery() {
				continue
			}
			items = append(items, DrawItem{
				Key:        r.Key,
				Texture:    r.Texture(),
				Resolution: r.CurrentResolution,
				Elevation:  r.Elevation,
			})
		}
	}
	return items
}

// GroundHeight returns the scaled terrain height at a DD coordinate, trying
// levels from the finest down to minLevel. It returns 0 when terrain is off
// or no level has elevation there.
func (l *Landscape) GroundHeight(lonDD, latDD, minLevel int) float64 {
	if !l.cfg.Terrain {
		return 0
	}
	if minLevel < 0 {
		minLevel = 0
	}
	for i := len(l.levels) - 1; i >= minLevel; i-- {
		if h, ok := l.levels[i].GroundHeight(lonDD, latDD); ok {
			return h * l.cfg.TerrainScale
		}
	}
	return 0
}

// Reset retires every record, sending all textures to the trash.
func (l *Landscape) Reset() {
	for _, lv := range l.levels {
		lv.retireAll()
	}
}
