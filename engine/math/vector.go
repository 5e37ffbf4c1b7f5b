package math

import m "math"

const (
	Pi           float32 = m.Pi
	Deg2Rad              = Pi / 180
	FloatEpsilon float32 = 1.192092896e-07
)

func ksqrt(x float32) float32 {
	return float32(m.Sqrt(float64(x)))
}

func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

func (v Vec2) Add(other Vec2) Vec2 { return Vec2{v.X + other.X, v.Y + other.Y} }
func (v Vec2) Sub(other Vec2) Vec2 { return Vec2{v.X - other.X, v.Y - other.Y} }

func (v Vec2) MulScalar(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) Add(other Vec3) Vec3 { return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z} }
func (v Vec3) Sub(other Vec3) Vec3 { return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z} }
func (v Vec3) Mul(other Vec3) Vec3 { return Vec3{v.X * other.X, v.Y * other.Y, v.Z * other.Z} }

func (v Vec3) MulScalar(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

func (v Vec3) Length() float32 {
	return ksqrt(v.Dot(v))
}

// Normalized returns v scaled to unit length, or v itself when it is zero.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l < FloatEpsilon {
		return v
	}
	return v.MulScalar(1 / l)
}

// Compare reports whether every component is within tolerance.
func (v Vec3) Compare(other Vec3, tolerance float32) bool {
	d := v.Sub(other)
	return abs(d.X) <= tolerance && abs(d.Y) <= tolerance && abs(d.Z) <= tolerance
}

// Transform multiplies the point v by mt.
func (v Vec3) Transform(mt Mat4) Vec3 {
	d := mt.Data
	return Vec3{
		X: v.X*d[0] + v.Y*d[4] + v.Z*d[8] + d[12],
		Y: v.X*d[1] + v.Y*d[5] + v.Z*d[9] + d[13],
		Z: v.X*d[2] + v.Y*d[6] + v.Z*d[10] + d[14],
	}
}

func (v Vec3) ToVec4(w float32) Vec4 {
	return Vec4{v.X, v.Y, v.Z, w}
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

func (v Vec4) ToVec3() Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
