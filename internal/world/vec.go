package world

import "math"

// Vec3 is a world-space position or direction. Components are float32 to
// match the wire representation exactly; intermediate math goes through
// float64.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.X)*float64(v.X) +
		float64(v.Y)*float64(v.Y) +
		float64(v.Z)*float64(v.Z)))
}

// HorizontalDist ignores the Y axis; detection and attack ranges are
// ground-plane distances.
func HorizontalDist(a, b Vec3) float32 {
	dx := float64(a.X - b.X)
	dz := float64(a.Z - b.Z)
	return float32(math.Hypot(dx, dz))
}

// HorizontalDir returns the unit vector on the ground plane pointing
// from a to b, or the zero vector when the points coincide.
func HorizontalDir(a, b Vec3) Vec3 {
	dx := float64(b.X - a.X)
	dz := float64(b.Z - a.Z)
	length := math.Hypot(dx, dz)
	if length == 0 {
		return Vec3{}
	}
	return Vec3{X: float32(dx / length), Z: float32(dz / length)}
}

// YawTowards returns the heading from a to b on the ground plane.
func YawTowards(a, b Vec3) float32 {
	return float32(math.Atan2(float64(b.X-a.X), float64(b.Z-a.Z)))
}
