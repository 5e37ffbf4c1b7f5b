// Package shadertest assembles small SPIR-V modules whose interface (entry
// point, descriptor bindings, uniform and push constant blocks) is chosen by
// the test. The function bodies are empty, which is enough for reflection
// and for fake devices.
package shadertest

import (
	"encoding/binary"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// FieldType is a block member type laid out with std140 rules.
type FieldType int

const (
	Float FieldType = iota
	Int
	Vec2
	Vec3
	Vec4
	Mat4
)

type Field struct {
	Name string
	Type FieldType
}

func (f FieldType) sizeAlign() (uint32, uint32) {
	switch f {
	case Float, Int:
		return 4, 4
	case Vec2:
		return 8, 8
	case Vec3:
		return 12, 16
	case Vec4:
		return 16, 16
	case Mat4:
		return 64, 16
	}
	return 4, 4
}

const (
	opName           = 5
	opMemberName     = 6
	opMemoryModel    = 14
	opEntryPoint     = 15
	opExecutionMode  = 16
	opCapability     = 17
	opTypeVoid       = 19
	opTypeInt        = 21
	opTypeFloat      = 22
	opTypeVector     = 23
	opTypeMatrix     = 24
	opTypeImage      = 25
	opTypeSampledImg = 27
	opTypeArray      = 28
	opTypeRuntimeArr = 29
	opTypeStruct     = 30
	opTypePointer    = 32
	opTypeFunction   = 33
	opConstant       = 43
	opFunction       = 54
	opFunctionEnd    = 56
	opVariable       = 59
	opDecorate       = 71
	opMemberDecorate = 72
	opLabel          = 248
	opReturn         = 253
)

type Module struct {
	stage gpu.ShaderStage
	entry string
	bound uint32

	names       []uint32
	annotations []uint32
	types       []uint32
	globals     []uint32

	scalar   map[FieldType]uint32
	vectors  map[[2]uint32]uint32
	sampled  uint32
	consts   map[uint32]uint32
	pointers map[[2]uint32]uint32
}

// New starts a module with an entry point called "main" for stage.
func New(stage gpu.ShaderStage) *Module {
	return &Module{
		stage:    stage,
		entry:    "main",
		bound:    2, // id 1 is the entry point function
		scalar:   map[FieldType]uint32{},
		vectors:  map[[2]uint32]uint32{},
		consts:   map[uint32]uint32{},
		pointers: map[[2]uint32]uint32{},
	}
}

// Entry renames the entry point.
func (m *Module) Entry(name string) *Module {
	m.entry = name
	return m
}

// UniformBlock declares a uniform block variable. An empty varName gives an
// anonymous block whose members are reachable by name only.
func (m *Module) UniformBlock(varName, typeName string, set, binding uint32, fields ...Field) *Module {
	st := m.structType(typeName, fields)
	m.decorate(st, 2) // Block
	v := m.variable(st, 2, varName)
	m.decorate(v, 34, set)
	m.decorate(v, 33, binding)
	return m
}

// StorageBlock declares a storage buffer variable.
func (m *Module) StorageBlock(varName, typeName string, set, binding uint32, fields ...Field) *Module {
	st := m.structType(typeName, fields)
	m.decorate(st, 2)
	v := m.variable(st, 12, varName)
	m.decorate(v, 34, set)
	m.decorate(v, 33, binding)
	return m
}

// Texture declares a sampler2D.
func (m *Module) Texture(name string, set, binding uint32) *Module {
	v := m.variable(m.sampledImage(), 0, name)
	m.decorate(v, 34, set)
	m.decorate(v, 33, binding)
	return m
}

// TextureArray declares sampler2D name[count], or name[] when count is 0.
func (m *Module) TextureArray(name string, set, binding, count uint32) *Module {
	elem := m.sampledImage()
	var arr uint32
	if count == 0 {
		arr = m.id()
		m.types = inst(m.types, opTypeRuntimeArr, arr, elem)
	} else {
		length := m.constant(count)
		arr = m.id()
		m.types = inst(m.types, opTypeArray, arr, elem, length)
	}
	v := m.variable(arr, 0, name)
	m.decorate(v, 34, set)
	m.decorate(v, 33, binding)
	return m
}

// PushConstants declares a push constant block.
func (m *Module) PushConstants(typeName string, fields ...Field) *Module {
	st := m.structType(typeName, fields)
	m.decorate(st, 2)
	m.variable(st, 9, "")
	return m
}

// Words returns the assembled module.
func (m *Module) Words() []uint32 {
	var model uint32
	switch m.stage {
	case gpu.StageVertex:
		model = 0
	case gpu.StageFragment:
		model = 4
	case gpu.StageCompute:
		model = 5
	}

	void, fnType := m.id(), m.id()
	types := inst(nil, opTypeVoid, void)
	types = inst(types, opTypeFunction, fnType, void)
	types = append(types, m.types...)

	var out []uint32
	out = append(out, 0x07230203, 0x00010000, 0, m.bound, 0)
	out = inst(out, opCapability, 1)
	out = inst(out, opMemoryModel, 0, 1)
	out = inst(out, opEntryPoint, append([]uint32{model, 1}, str(m.entry)...)...)
	if m.stage == gpu.StageFragment {
		out = inst(out, opExecutionMode, 1, 7)
	}
	out = inst(out, opName, append([]uint32{1}, str(m.entry)...)...)
	out = append(out, m.names...)
	out = append(out, m.annotations...)
	out = append(out, types...)
	out = append(out, m.globals...)
	out = inst(out, opFunction, void, 1, 0, fnType)
	out = inst(out, opLabel, m.id())
	out = inst(out, opReturn)
	out = inst(out, opFunctionEnd)
	out[3] = m.bound
	return out
}

// Bytes returns Words in little-endian byte order, as written by glslc.
func (m *Module) Bytes() []byte {
	words := m.Words()
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func (m *Module) id() uint32 {
	id := m.bound
	m.bound++
	return id
}

func (m *Module) name(id uint32, name string) {
	if name == "" {
		return
	}
	m.names = inst(m.names, opName, append([]uint32{id}, str(name)...)...)
}

func (m *Module) decorate(id uint32, decoration uint32, literals ...uint32) {
	m.annotations = inst(m.annotations, opDecorate, append([]uint32{id, decoration}, literals...)...)
}

func (m *Module) scalarType(f FieldType) uint32 {
	base := Float
	if f == Int {
		base = Int
	}
	if id, ok := m.scalar[base]; ok {
		return id
	}
	id := m.id()
	if base == Int {
		m.types = inst(m.types, opTypeInt, id, 32, 1)
	} else {
		m.types = inst(m.types, opTypeFloat, id, 32)
	}
	m.scalar[base] = id
	return id
}

func (m *Module) vectorType(n uint32) uint32 {
	key := [2]uint32{m.scalarType(Float), n}
	if id, ok := m.vectors[key]; ok {
		return id
	}
	id := m.id()
	m.types = inst(m.types, opTypeVector, id, key[0], n)
	m.vectors[key] = id
	return id
}

func (m *Module) fieldType(f FieldType) uint32 {
	switch f {
	case Vec2:
		return m.vectorType(2)
	case Vec3:
		return m.vectorType(3)
	case Vec4:
		return m.vectorType(4)
	case Mat4:
		col := m.vectorType(4)
		id := m.id()
		m.types = inst(m.types, opTypeMatrix, id, col, 4)
		return id
	}
	return m.scalarType(f)
}

func (m *Module) structType(name string, fields []Field) uint32 {
	members := make([]uint32, len(fields))
	for i, f := range fields {
		members[i] = m.fieldType(f.Type)
	}
	id := m.id()
	m.types = inst(m.types, opTypeStruct, append([]uint32{id}, members...)...)
	m.name(id, name)

	var offset uint32
	for i, f := range fields {
		size, align := f.Type.sizeAlign()
		offset = (offset + align - 1) / align * align
		m.names = inst(m.names, opMemberName, append([]uint32{id, uint32(i)}, str(f.Name)...)...)
		m.annotations = inst(m.annotations, opMemberDecorate, id, uint32(i), 35, offset)
		if f.Type == Mat4 {
			m.annotations = inst(m.annotations, opMemberDecorate, id, uint32(i), 5)     // ColMajor
			m.annotations = inst(m.annotations, opMemberDecorate, id, uint32(i), 7, 16) // MatrixStride
		}
		offset += size
	}
	return id
}

func (m *Module) sampledImage() uint32 {
	if m.sampled != 0 {
		return m.sampled
	}
	f32 := m.scalarType(Float)
	img := m.id()
	m.types = inst(m.types, opTypeImage, img, f32, 1, 0, 0, 0, 1, 0)
	m.sampled = m.id()
	m.types = inst(m.types, opTypeSampledImg, m.sampled, img)
	return m.sampled
}

func (m *Module) constant(v uint32) uint32 {
	if id, ok := m.consts[v]; ok {
		return id
	}
	intType := m.scalarType(Int)
	id := m.id()
	m.types = inst(m.types, opConstant, intType, id, v)
	m.consts[v] = id
	return id
}

func (m *Module) variable(typeID, storage uint32, name string) uint32 {
	key := [2]uint32{storage, typeID}
	ptr, ok := m.pointers[key]
	if !ok {
		ptr = m.id()
		m.types = inst(m.types, opTypePointer, ptr, storage, typeID)
		m.pointers[key] = ptr
	}
	v := m.id()
	m.globals = inst(m.globals, opVariable, ptr, v, storage)
	m.name(v, name)
	return v
}

func inst(out []uint32, op uint32, args ...uint32) []uint32 {
	out = append(out, uint32(len(args)+1)<<16|op)
	return append(out, args...)
}

func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
