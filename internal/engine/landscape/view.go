package landscape

import (
	gomath "math"

	"github.com/Faultbox/globestream/pkg/math"
)

// View is the camera state the landscape reads each frame.
type View interface {
	// Position is the globe-centred camera position in metres.
	Position() math.Vec3
	// Forward is the viewing direction.
	Forward() math.Vec3
	// LonLat is the point below the camera in degrees.
	LonLat() (lon, lat float64)
	// Altitude is the height above the reference sphere in metres.
	Altitude() float64
	// FieldOfView is the widest view angle in radians.
	FieldOfView() float64
}

// Snapshot is a fixed View.
type Snapshot struct {
	Pos      math.Vec3
	Dir      math.Vec3
	Lon, Lat float64
	Alt      float64
	FOV      float64
}

// LookDown returns a view hovering at alt metres above lon/lat, looking at
// the globe centre.
func LookDown(lon, lat, alt float64) Snapshot {
	pos := math.SphericalToCartesian(lon, lat, math.EarthRadius+alt)
	return Snapshot{
		Pos: pos,
		Dir: pos.Scale(-1).Normalize(),
		Lon: lon,
		Lat: lat,
		Alt: alt,
		FOV: 60 * gomath.Pi / 180,
	}
}

func (s Snapshot) Position() math.Vec3        { return s.Pos }
func (s Snapshot) Forward() math.Vec3         { return s.Dir }
func (s Snapshot) LonLat() (float64, float64) { return s.Lon, s.Lat }
func (s Snapshot) Altitude() float64          { return s.Alt }
func (s Snapshot) FieldOfView() float64       { return s.FOV }
