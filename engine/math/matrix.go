package math

import m "math"

/**
 * @brief Creates and returns an identity matrix.
 */
func NewMat4Identity() Mat4 {
	var out Mat4
	out.Data[0] = 1
	out.Data[5] = 1
	out.Data[10] = 1
	out.Data[15] = 1
	return out
}

// Mul returns mt * other: other is applied after mt.
func (mt Mat4) Mul(other Mat4) Mat4 {
	var out Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float32
			for i := 0; i < 4; i++ {
				sum += mt.Data[row*4+i] * other.Data[i*4+col]
			}
			out.Data[row*4+col] = sum
		}
	}
	return out
}

/**
 * @brief Creates and returns a perspective matrix with a [0,1] depth range.
 */
func NewMat4Perspective(fovRadians, aspect, near, far float32) Mat4 {
	halfTan := float32(m.Tan(float64(fovRadians * 0.5)))
	var out Mat4
	out.Data[0] = 1 / (aspect * halfTan)
	// Y points down in clip space.
	out.Data[5] = -1 / halfTan
	out.Data[10] = far / (near - far)
	out.Data[11] = -1
	out.Data[14] = (near * far) / (near - far)
	return out
}

// NewMat4LookAt returns a view matrix at position looking at target.
func NewMat4LookAt(position, target, up Vec3) Mat4 {
	z := target.Sub(position).Normalized()
	x := z.Cross(up).Normalized()
	y := x.Cross(z)

	out := NewMat4Identity()
	out.Data[0], out.Data[1], out.Data[2] = x.X, y.X, -z.X
	out.Data[4], out.Data[5], out.Data[6] = x.Y, y.Y, -z.Y
	out.Data[8], out.Data[9], out.Data[10] = x.Z, y.Z, -z.Z
	out.Data[12] = -x.Dot(position)
	out.Data[13] = -y.Dot(position)
	out.Data[14] = z.Dot(position)
	return out
}

func (mt Mat4) Transposed() Mat4 {
	var out Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out.Data[col*4+row] = mt.Data[row*4+col]
		}
	}
	return out
}

func NewMat4Translation(position Vec3) Mat4 {
	out := NewMat4Identity()
	out.Data[12] = position.X
	out.Data[13] = position.Y
	out.Data[14] = position.Z
	return out
}

func NewMat4Scale(scale Vec3) Mat4 {
	out := NewMat4Identity()
	out.Data[0] = scale.X
	out.Data[5] = scale.Y
	out.Data[10] = scale.Z
	return out
}

func NewMat4EulerY(angleRadians float32) Mat4 {
	out := NewMat4Identity()
	c := float32(m.Cos(float64(angleRadians)))
	s := float32(m.Sin(float64(angleRadians)))
	out.Data[0] = c
	out.Data[2] = -s
	out.Data[8] = s
	out.Data[10] = c
	return out
}

// Translation returns the translation part of mt.
func (mt Mat4) Translation() Vec3 {
	return Vec3{mt.Data[12], mt.Data[13], mt.Data[14]}
}
