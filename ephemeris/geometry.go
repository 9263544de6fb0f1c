package ephemeris

import "math"

// EarthRadiusKm is the WGS72 equatorial radius used for the shadow cylinder.
const EarthRadiusKm = 6378.135

// Vec3 is an inertial vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// inCylindricalShadow reports whether pos lies in the Earth's shadow modelled
// as a cylinder of radius EarthRadiusKm extending away from the sun. sun must
// be a unit vector.
func inCylindricalShadow(pos, sun Vec3) bool {
	along := pos.Dot(sun)
	if along >= 0 {
		return false
	}
	return pos.Sub(sun.Scale(along)).Norm() < EarthRadiusKm
}

// SunDirection returns the unit vector from the Earth to the sun in the
// equatorial inertial frame at Julian date jd, using the low-precision solar
// coordinates of the Astronomical Almanac (about 0.01 degrees).
func SunDirection(jd float64) Vec3 {
	const deg = math.Pi / 180
	n := jd - 2451545.0
	meanLon := math.Mod(280.460+0.9856474*n, 360)
	anomaly := math.Mod(357.528+0.9856003*n, 360) * deg
	lambda := (meanLon + 1.915*math.Sin(anomaly) + 0.020*math.Sin(2*anomaly)) * deg
	obliquity := (23.439 - 0.0000004*n) * deg

	return Vec3{
		X: math.Cos(lambda),
		Y: math.Cos(obliquity) * math.Sin(lambda),
		Z: math.Sin(obliquity) * math.Sin(lambda),
	}
}
