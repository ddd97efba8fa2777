package landscape

import (
	"fmt"
	gomath "math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/Faultbox/globestream/internal/engine/texture"
	"github.com/Faultbox/globestream/internal/engine/tile"
	"github.com/Faultbox/globestream/pkg/math"
)

// State is a level's activation state.
type State int

const (
	Inactive State = iota
	ActiveHidden
	ActiveVisible
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case ActiveHidden:
		return "hidden"
	case ActiveVisible:
		return "visible"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LevelConfig describes one detail tier.
type LevelConfig struct {
	TileSize       int     // Tile span in DD
	MinZoom        float64 // Lowest camera altitude in metres at which the level is active
	MaxZoom        float64 // Highest camera altitude in metres at which the level is active
	Divisor        int     // Source path bucket size, 0 for quadrant sharding
	ServerID       int
	NumResolutions int // Imagery resolutions requested per tile
	GridWidth      int
	GridHeight     int
}

// coneMargin widens the view cone so tiles straddling the screen edge load.
const coneMargin = 10 * gomath.Pi / 180

// Level is one detail tier: a sliding W x H window of tile records.
type Level struct {
	index int
	cfg   LevelConfig
	unit  int
	cols  int // Tiles around the globe
	rows  int // Tiles pole to pole

	bounds       orb.Bound
	imageryExt   string
	elevationExt string
	trash        Trasher

	originCol int
	originRow int
	placed    bool
	records   []*tile.Record

	state       State
	elevation   bool
	heightScale float64
	coarseMax   int
	view        View

	log *zap.Logger
}

func newLevel(index int, cfg LevelConfig, lc *Config, trash Trasher, log *zap.Logger) *Level {
	return &Level{
		index:        index,
		cfg:          cfg,
		unit:         lc.UnitDD,
		cols:         360 * lc.UnitDD / cfg.TileSize,
		rows:         180 * lc.UnitDD / cfg.TileSize,
		bounds:       lc.Bounds,
		imageryExt:   lc.ImageryExt,
		elevationExt: lc.ElevationExt,
		trash:        trash,
		elevation:    lc.Terrain,
		heightScale:  lc.TerrainScale,
		coarseMax:    lc.CoarseMaxResolution,
		log:          log.With(zap.Int("level", index)),
	}
}

// Index returns the level's position, 0 being the coarsest.
func (l *Level) Index() int { return l.index }

// Config returns the level configuration.
func (l *Level) Config() LevelConfig { return l.cfg }

// State returns the activation state of the current frame.
func (l *Level) State() State { return l.state }

// Visible reports whether the level is drawn this frame.
func (l *Level) Visible() bool { return l.state == ActiveVisible }

// Active reports whether the camera altitude is inside the level's range.
func (l *Level) Active() bool { return l.state != Inactive }

// WantsElevation reports whether terrain should be loaded for this level.
func (l *Level) WantsElevation() bool { return l.elevation }

// Records returns the window's records in row-major order, north-west first.
func (l *Level) Records() []*tile.Record { return l.records }

// At returns the record at window column col and row row.
func (l *Level) At(col, row int) *tile.Record {
	w, h := l.cfg.GridWidth, l.cfg.GridHeight
	if col < 0 || row < 0 || col >= w || row >= h || len(l.records) == 0 {
		return nil
	}
	return l.records[row*w+col]
}

// Origin returns the north-west corner of the window in DD.
func (l *Level) Origin() (lon, lat int) {
	k := l.keyAt(l.originCol, l.originRow)
	return k.Lon, k.Lat
}

// Bounds returns the window extent in degrees. A window crossing the
// antimeridian reports longitudes past 180.
func (l *Level) Bounds() orb.Bound {
	lon, lat := l.Origin()
	u := float64(l.unit)
	west := float64(lon) / u
	north := float64(lat) / u
	span := float64(l.cfg.TileSize) / u
	return orb.Bound{
		Min: orb.Point{west, north - span*float64(l.cfg.GridHeight)},
		Max: orb.Point{west + span*float64(l.cfg.GridWidth), north},
	}
}

// HasImagery reports whether any record in the window has a texture.
func (l *Level) HasImagery() bool {
	for _, r := range l.records {
		if r.HasImagery() {
			return true
		}
	}
	return false
}

func (l *Level) wrapCol(c int) int {
	c %= l.cols
	if c < 0 {
		c += l.cols
	}
	return c
}

func (l *Level) keyAt(col, row int) tile.Key {
	col = l.wrapCol(col)
	return tile.Key{
		Lon:   -180*l.unit + col*l.cfg.TileSize,
		Lat:   90*l.unit - row*l.cfg.TileSize,
		Level: l.index,
		Size:  l.cfg.TileSize,
	}
}

// cell returns the global column and row covering a DD coordinate. Rows
// clamp at the poles.
func (l *Level) cell(lonDD, latDD int) (col, row int) {
	col = l.wrapCol(floorDiv(lonDD+180*l.unit, l.cfg.TileSize))
	row = clampInt(floorDiv(90*l.unit-latDD, l.cfg.TileSize), 0, l.rows-1)
	return col, row
}

// CorrectTiles slides the window so the camera cell sits at its centre.
// Records whose tile is still covered are kept; the rest are retired, their
// textures sent to the trash, and reused for the newly covered tiles. It
// reports whether the window moved.
//
// Columns wrap around the antimeridian. Rows clamp so the window stays
// between the poles; there the camera is off-centre but coverage stays
// complete.
func (l *Level) CorrectTiles(lonDD, latDD int) bool {
	w, h := l.cfg.GridWidth, l.cfg.GridHeight
	col, row := l.cell(lonDD, latDD)
	oc := l.wrapCol(col - w/2)
	or := clampInt(row-h/2, 0, l.rows-h)

	if l.placed && oc == l.originCol && or == l.originRow {
		return false
	}
	l.originCol, l.originRow, l.placed = oc, or, true

	wanted := make([]tile.Key, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			wanted[j*w+i] = l.keyAt(oc+i, or+j)
		}
	}

	current := make(map[tile.Key]*tile.Record, len(l.records))
	for _, r := range l.records {
		current[r.Key] = r
	}

	next := make([]*tile.Record, w*h)
	var missing []int
	for i, k := range wanted {
		if r, ok := current[k]; ok {
			next[i] = r
			delete(current, k)
			continue
		}
		missing = append(missing, i)
	}

	var trash []texture.Trashed
	var spare []*tile.Record
	for _, r := range l.records {
		if _, gone := current[r.Key]; gone {
			trash = append(trash, r.Retire()...)
			spare = append(spare, r)
		}
	}

	for _, i := range missing {
		var r *tile.Record
		if n := len(spare); n > 0 {
			r = spare[n-1]
			spare = spare[:n-1]
		} else {
			r = tile.NewRecord()
		}
		k := wanted[i]
		r.Assign(k, tile.ResolveSource(k, l.cfg.ServerID, l.cfg.Divisor, l.imageryExt, l.elevationExt))
		next[i] = r
	}
	l.records = next

	if len(trash) > 0 && l.trash != nil {
		l.trash.Trash(trash)
	}
	l.log.Debug("window moved",
		zap.Int("col", oc), zap.Int("row", or),
		zap.Int("replaced", len(missing)), zap.Int("trashed", len(trash)))
	return true
}

// retireAll empties the window, sending every texture to the trash.
func (l *Level) retireAll() {
	var trash []texture.Trashed
	for _, r := range l.records {
		trash = append(trash, r.Retire()...)
	}
	l.records = nil
	l.placed = false
	if len(trash) > 0 && l.trash != nil {
		l.trash.Trash(trash)
	}
}

// ProcessVisibility marks which records are part of the working set.
// Records of an inactive level are never in the scene.
func (l *Level) ProcessVisibility(view View) {
	l.view = view
	if l.state == Inactive {
		for _, r := range l.records {
			r.SetInScene(false)
		}
		return
	}

	cam := view.Position()
	fwd := view.Forward().Normalize()
	cosHalf := gomath.Cos(gomath.Min(view.FieldOfView()/2+coneMargin, gomath.Pi))

	camLon, camLat := view.LonLat()
	camDD := [2]int{l.toDD(camLon), l.toDD(camLat)}

	var lookDD [2]int
	looking := false
	ray := math.NewRay(cam, fwd)
	if t, ok := ray.IntersectSphere(math.EarthRadius); ok {
		lon, lat, _ := math.CartesianToSpherical(ray.At(t))
		lookDD = [2]int{l.toDD(lon), l.toDD(lat)}
		looking = true
	}

	for _, r := range l.records {
		in := l.inBounds(r.Key)
		if in {
			in = r.Key.Contains(camDD[0], camDD[1]) ||
				(looking && r.Key.Contains(lookDD[0], lookDD[1])) ||
				l.facesCamera(r, cam, fwd, cosHalf)
		}
		r.SetInScene(in)
	}
}

// toDD converts degrees to DD. Latitudes are never folded since they stay
// inside [-90, 90].
func (l *Level) toDD(deg float64) int {
	return l.normLon(int(gomath.Floor(deg * float64(l.unit))))
}

// normLon folds a DD longitude into [-180, 180).
func (l *Level) normLon(v int) int {
	full := 360 * l.unit
	v = (v + 180*l.unit) % full
	if v < 0 {
		v += full
	}
	return v - 180*l.unit
}

func (l *Level) inBounds(k tile.Key) bool {
	return l.bounds.Intersects(k.Bound(l.unit))
}

// facesCamera samples the tile corners, edge midpoints and centre at the
// tile's peak radius. A sample counts when it is above the horizon and
// inside the view cone.
func (l *Level) facesCamera(r *tile.Record, cam, fwd math.Vec3, cosHalf float64) bool {
	radius := math.EarthRadius
	if r.Elevation != nil {
		radius += r.Elevation.MaxHeight() * l.heightScale
	}

	b := r.Key.Bound(l.unit)
	mid := b.Center()
	lons := [3]float64{b.Min.X(), mid.X(), b.Max.X()}
	lats := [3]float64{b.Min.Y(), mid.Y(), b.Max.Y()}
	for _, lat := range lats {
		for _, lon := range lons {
			p := math.SphericalToCartesian(lon, lat, radius)
			if p.Dot(cam.Sub(p)) < 0 {
				continue
			}
			if fwd.Dot(p.Sub(cam).Normalize()) >= cosHalf {
				return true
			}
		}
	}
	return false
}

// Distance returns the distance in metres from the camera to the tile centre.
func (l *Level) Distance(r *tile.Record) float64 {
	if l.view == nil {
		return gomath.MaxFloat64
	}
	lon, lat := r.Key.Center(l.unit)
	return l.view.Position().Distance(math.SphericalToCartesian(lon, lat, math.EarthRadius))
}

// TargetResolution picks the imagery resolution for a record from its
// distance to the camera: the finest resolution when the camera is closer
// than the tile span, one step coarser per doubling of distance. Levels other
// than the finest active one are capped at the coarse limit.
func (l *Level) TargetResolution(r *tile.Record, finest bool) int {
	top := l.cfg.NumResolutions - 1
	if !finest && l.coarseMax < top {
		top = l.coarseMax
	}
	if top < 0 {
		return -1
	}

	span := float64(r.Key.Size) / float64(l.unit) * math.MetersPerDegree
	d := l.Distance(r)
	k := l.cfg.NumResolutions - 1
	if d > span {
		k -= int(gomath.Ceil(gomath.Log2(d / span)))
	}
	return clampInt(k, 0, top)
}

// GroundHeight casts a vertical ray against the elevation of the record
// covering the DD coordinate. It reports false when this level has no data
// there.
func (l *Level) GroundHeight(lonDD, latDD int) (float64, bool) {
	if !l.placed {
		return 0, false
	}
	lonDD = l.normLon(lonDD)
	w, h := l.cfg.GridWidth, l.cfg.GridHeight
	col, _ := l.cell(lonDD, latDD)
	row := floorDiv(90*l.unit-latDD, l.cfg.TileSize)
	i := l.wrapCol(col - l.originCol)
	j := row - l.originRow
	if i >= w || j < 0 || j >= h {
		return 0, false
	}
	r := l.records[j*w+i]
	if r.Elevation == nil {
		return 0, false
	}
	return r.Elevation.HeightAt(float64(lonDD), float64(latDD))
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
