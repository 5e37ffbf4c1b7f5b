package math

type Vec2 struct {
	X, Y float32
}

type Vec3 struct {
	X, Y, Z float32
}

type Vec4 struct {
	X, Y, Z, W float32
}

// Mat4 is a 4x4 matrix stored row by row. Vectors multiply from the left,
// so the translation lives in elements 12, 13 and 14.
type Mat4 struct {
	Data [16]float32
}

// Vertex3D is the vertex layout uploaded by the mesh system.
type Vertex3D struct {
	Position Vec3
	Normal   Vec3
	Texcoord Vec2
}

// Vertex3DSize is the byte stride of Vertex3D in a vertex buffer.
const Vertex3DSize = 8 * 4
