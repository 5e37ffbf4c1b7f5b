package math

// GenerateNormals assigns flat face normals to every triangle of a mesh.
// Vertices shared between faces keep the normal of the last face.
func GenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		normal := edge1.Cross(edge2).Normalized()

		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// Bounds returns the axis aligned box enclosing the vertex positions.
func Bounds(vertices []Vertex3D) (min, max Vec3) {
	if len(vertices) == 0 {
		return
	}
	min, max = vertices[0].Position, vertices[0].Position
	for _, v := range vertices[1:] {
		p := v.Position
		min = Vec3{minf(min.X, p.X), minf(min.Y, p.Y), minf(min.Z, p.Z)}
		max = Vec3{maxf(max.X, p.X), maxf(max.Y, p.Y), maxf(max.Z, p.Z)}
	}
	return
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
