package math

import (
	m "math"
	"testing"
)

func TestClamp(t *testing.T) {
	if have := Clamp(5, 0, 3); have != 3 {
		t.Fatalf("Clamp int:\nhave %d\nwant 3", have)
	}
	if have := Clamp(float32(-1), 0, 1); have != 0 {
		t.Fatalf("Clamp float32:\nhave %v\nwant 0", have)
	}
	if have := InverseLerp(float32(2), 4, 3); have != 0.5 {
		t.Fatalf("InverseLerp:\nhave %v\nwant 0.5", have)
	}
}

func TestMat4(t *testing.T) {
	moved := NewMat4Translation(NewVec3(1, 2, 3))
	scaled := NewMat4Scale(NewVec3(2, 2, 2))

	// Scale first, then translate.
	p := NewVec3(1, 1, 1).Transform(scaled.Mul(moved))
	if want := NewVec3(3, 4, 5); !p.Compare(want, 1e-6) {
		t.Fatalf("scale then translate:\nhave %v\nwant %v", p, want)
	}
	if have := moved.Mul(NewMat4Identity()); have != moved {
		t.Fatalf("identity:\nhave %v\nwant %v", have, moved)
	}
	if have := moved.Transposed().Transposed(); have != moved {
		t.Fatalf("double transpose:\nhave %v\nwant %v", have, moved)
	}
}

func TestGenerateNormals(t *testing.T) {
	verts := []Vertex3D{
		{Position: NewVec3(0, 0, 0)},
		{Position: NewVec3(1, 0, 0)},
		{Position: NewVec3(0, 1, 0)},
	}
	GenerateNormals(verts, []uint32{0, 1, 2})
	for i, v := range verts {
		if !v.Normal.Compare(NewVec3(0, 0, 1), 1e-6) {
			t.Fatalf("normal %d:\nhave %v\nwant (0,0,1)", i, v.Normal)
		}
	}

	lo, hi := Bounds(verts)
	if lo != NewVec3(0, 0, 0) || hi != NewVec3(1, 1, 0) {
		t.Fatalf("bounds:\nhave %v %v\nwant (0,0,0) (1,1,0)", lo, hi)
	}
}

func TestCameraMatrices(t *testing.T) {
	view := NewMat4LookAt(NewVec3(0, 0, 5), NewVec3(0, 0, 0), NewVec3(0, 1, 0))
	if have, want := NewVec3(0, 0, 0).Transform(view), NewVec3(0, 0, -5); !have.Compare(want, 1e-5) {
		t.Fatalf("look at:\nhave %v\nwant %v", have, want)
	}

	proj := NewMat4Perspective(m.Pi/2, 1, 1, 10)
	for _, tt := range []struct{ z, depth float32 }{{-1, 0}, {-10, 1}} {
		clip := NewVec3(0, 0, tt.z).Transform(proj)
		if have := clip.Z / -tt.z; have < tt.depth-1e-5 || have > tt.depth+1e-5 {
			t.Fatalf("depth at z=%v:\nhave %v\nwant %v", tt.z, have, tt.depth)
		}
	}

	turned := NewVec3(1, 0, 0).Transform(NewMat4EulerY(m.Pi / 2))
	if want := NewVec3(0, 0, -1); !turned.Compare(want, 1e-5) {
		t.Fatalf("rotate y:\nhave %v\nwant %v", turned, want)
	}
}
