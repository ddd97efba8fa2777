// Package camera provides the globe camera.
package camera

import (
	gomath "math"

	"github.com/Faultbox/globestream/pkg/math"
)

// GlobeCamera hovers above a point of the globe. Heading turns it around the
// local vertical and tilt leans it from straight down toward the horizon.
type GlobeCamera struct {
	Lon, Lat float64 // Point below the camera, degrees
	Alt      float64 // Metres above the reference sphere
	Heading  float64 // Radians clockwise from north
	Tilt     float64 // Radians from nadir
	FOV      float64 // Vertical field of view, radians

	// Constraints
	MinAltitude float64
	MaxAltitude float64
	MaxTilt     float64

	// Sensitivity
	DragSensitivity float64
	ZoomSensitivity float64

	ground float64 // Terrain height below the camera
}

// New creates a camera looking straight down from orbit.
func New() *GlobeCamera {
	return &GlobeCamera{
		Alt:             20000000,
		FOV:             45 * gomath.Pi / 180,
		MinAltitude:     100,
		MaxAltitude:     40000000,
		MaxTilt:         80 * gomath.Pi / 180,
		DragSensitivity: 0.002,
		ZoomSensitivity: 0.1,
	}
}

// basis returns the local up, north and east vectors below the camera.
func (c *GlobeCamera) basis() (up, north, east math.Vec3) {
	up = math.SurfaceNormal(c.Lon, c.Lat)
	lon := c.Lon * gomath.Pi / 180
	east = math.Vec3{X: gomath.Cos(lon), Z: -gomath.Sin(lon)}
	north = up.Cross(east)
	return up, north, east
}

// heading returns the horizontal viewing direction.
func (c *GlobeCamera) heading(north, east math.Vec3) math.Vec3 {
	return north.Scale(gomath.Cos(c.Heading)).Add(east.Scale(gomath.Sin(c.Heading)))
}

// Position returns the globe-centred camera position in metres.
func (c *GlobeCamera) Position() math.Vec3 {
	return math.SphericalToCartesian(c.Lon, c.Lat, math.EarthRadius+c.Alt)
}

// Forward returns the viewing direction.
func (c *GlobeCamera) Forward() math.Vec3 {
	up, north, east := c.basis()
	h := c.heading(north, east)
	return up.Scale(-gomath.Cos(c.Tilt)).Add(h.Scale(gomath.Sin(c.Tilt))).Normalize()
}

// Up returns the camera's up vector.
func (c *GlobeCamera) Up() math.Vec3 {
	up, north, east := c.basis()
	h := c.heading(north, east)
	return up.Scale(gomath.Sin(c.Tilt)).Add(h.Scale(gomath.Cos(c.Tilt))).Normalize()
}

// LonLat returns the point below the camera.
func (c *GlobeCamera) LonLat() (float64, float64) { return c.Lon, c.Lat }

// Altitude returns the height above the reference sphere.
func (c *GlobeCamera) Altitude() float64 { return c.Alt }

// FieldOfView returns the vertical field of view.
func (c *GlobeCamera) FieldOfView() float64 { return c.FOV }

// ViewMatrix returns the camera-relative view matrix. Geometry is drawn with
// the camera at the origin so float32 precision holds near the surface.
func (c *GlobeCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(math.Vec3{}, c.Forward(), c.Up())
}

// ProjectionMatrix returns the perspective projection for the aspect ratio.
// The clip planes follow the altitude.
func (c *GlobeCamera) ProjectionMatrix(aspect float64) math.Mat4 {
	near := gomath.Max(1, (c.Alt-c.ground)*0.1)
	far := c.Alt + 2*math.EarthRadius
	return math.Perspective(float32(c.FOV), float32(aspect), float32(near), float32(far))
}

// ScreenRay returns the globe-centred ray through pixel (x, y) of a
// width x height viewport.
func (c *GlobeCamera) ScreenRay(x, y, width, height float64) math.Ray {
	fwd := c.Forward()
	up := c.Up()
	right := fwd.Cross(up).Normalize()

	t := gomath.Tan(c.FOV / 2)
	ndcX := (2*x/width - 1) * t * width / height
	ndcY := (1 - 2*y/height) * t

	dir := fwd.Add(right.Scale(ndcX)).Add(up.Scale(ndcY))
	return math.NewRay(c.Position(), dir)
}

// Pick returns the lon/lat under pixel (x, y), or false when the ray misses
// the globe.
func (c *GlobeCamera) Pick(x, y, width, height float64) (lon, lat float64, ok bool) {
	ray := c.ScreenRay(x, y, width, height)
	t, hit := ray.IntersectSphere(math.EarthRadius)
	if !hit {
		return 0, 0, false
	}
	lon, lat, _ = math.CartesianToSpherical(ray.At(t))
	return lon, lat, true
}

// HandleDrag pans across the globe. Speed scales with altitude.
func (c *GlobeCamera) HandleDrag(deltaX, deltaY float64) {
	degPerPixel := c.DragSensitivity * c.Alt / math.MetersPerDegree
	sin, cos := gomath.Sincos(c.Heading)

	// Screen axes rotated by the heading.
	east := -deltaX*cos - deltaY*sin
	north := deltaY*cos - deltaX*sin
	c.MoveBy(east*degPerPixel, north*degPerPixel)
}

// MoveBy shifts the camera by degrees. Longitude wraps, latitude clamps just
// short of the poles.
func (c *GlobeCamera) MoveBy(dLon, dLat float64) {
	c.Lat = gomath.Max(-89.9, gomath.Min(89.9, c.Lat+dLat))
	c.Lon = gomath.Mod(c.Lon+dLon+540, 360) - 180
}

// HandleZoom changes altitude by a fraction of the height above ground.
func (c *GlobeCamera) HandleZoom(delta float64) {
	above := c.Alt - c.ground
	c.SetAltitude(c.Alt - delta*above*c.ZoomSensitivity)
}

// HandleRotate turns and tilts the camera.
func (c *GlobeCamera) HandleRotate(deltaHeading, deltaTilt float64) {
	c.Heading = gomath.Mod(c.Heading+deltaHeading, 2*gomath.Pi)
	c.Tilt = gomath.Max(0, gomath.Min(c.MaxTilt, c.Tilt+deltaTilt))
}

// SetAltitude clamps alt to the limits and keeps the camera above ground.
func (c *GlobeCamera) SetAltitude(alt float64) {
	floor := gomath.Max(c.MinAltitude, c.ground+c.MinAltitude)
	c.Alt = gomath.Max(floor, gomath.Min(c.MaxAltitude, alt))
}

// SetGround records the terrain height below the camera and lifts the camera
// if it sank under it.
func (c *GlobeCamera) SetGround(height float64) {
	c.ground = height
	c.SetAltitude(c.Alt)
}

// LookAt moves the camera over lon/lat keeping altitude and orientation.
func (c *GlobeCamera) LookAt(lon, lat float64) {
	c.Lon, c.Lat = 0, 0
	c.MoveBy(lon, lat)
}

// JumpedFrom reports whether the camera moved far enough since prev that
// tiles requested from prev are unlikely to still be wanted.
func (c *GlobeCamera) JumpedFrom(prev GlobeCamera) bool {
	if prev.Alt > 0 && gomath.Abs(c.Alt-prev.Alt)/prev.Alt > 0.25 {
		return true
	}
	footprint := prev.Alt / math.MetersPerDegree
	dLon := gomath.Abs(c.Lon - prev.Lon)
	if dLon > 180 {
		dLon = 360 - dLon
	}
	return gomath.Max(dLon, gomath.Abs(c.Lat-prev.Lat)) > footprint
}
