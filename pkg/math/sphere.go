package math

import "math"

// EarthRadius is the mean globe radius in metres.
const EarthRadius = 6371000.0

// MetersPerDegree is the arc length of one degree on the globe surface.
const MetersPerDegree = EarthRadius * math.Pi / 180

// SphericalToCartesian converts longitude/latitude in degrees and a radius to
// a globe-centred position. Y points to the north pole, Z to (0°, 0°).
func SphericalToCartesian(lon, lat, radius float64) Vec3 {
	lonR := lon * math.Pi / 180
	latR := lat * math.Pi / 180
	cosLat := math.Cos(latR)
	return Vec3{
		X: radius * cosLat * math.Sin(lonR),
		Y: radius * math.Sin(latR),
		Z: radius * cosLat * math.Cos(lonR),
	}
}

// CartesianToSpherical is the inverse of SphericalToCartesian.
func CartesianToSpherical(p Vec3) (lon, lat, radius float64) {
	radius = p.Length()
	if radius == 0 {
		return 0, 0, 0
	}
	lat = math.Asin(clamp(p.Y/radius, -1, 1)) * 180 / math.Pi
	lon = math.Atan2(p.X, p.Z) * 180 / math.Pi
	return lon, lat, radius
}

// SurfaceNormal returns the outward unit normal at lon/lat degrees.
func SurfaceNormal(lon, lat float64) Vec3 {
	return SphericalToCartesian(lon, lat, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
