package shader

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// Member is one field of a uniform or push constant block.
type Member struct {
	Name   string
	Offset uint32
	Size   uint32
}

type Block struct {
	Name       string
	Size       uint32
	PaddedSize uint32
	Members    []Member
}

// Binding is one descriptor declared by a shader.
type Binding struct {
	Name    string
	Set     uint32
	Binding uint32
	Kind    gpu.DescriptorKind
	Count   uint32
	// Unbounded is set for runtime sized arrays.
	Unbounded bool
	Block     *Block
}

// PushBlock is a push constant block with its byte range.
type PushBlock struct {
	Block
	Offset uint32
	// RangeSize covers every member, rounded up to a multiple of four.
	RangeSize uint32
}

// EntryPoint is a function the module exports for a pipeline stage.
type EntryPoint struct {
	Name  string
	Stage gpu.ShaderStage
}

type Reflection struct {
	// Stage and EntryPoint describe the first entry point of the module.
	Stage       gpu.ShaderStage
	EntryPoint  string
	EntryPoints []EntryPoint
	Bindings    []Binding
	PushBlocks  []PushBlock
}

type typeInfo struct {
	op      uint32
	operand []uint32
}

type reflector struct {
	names       map[uint32]string
	memberNames map[uint32]map[uint32]string
	decorations map[uint32]map[uint32]uint32
	memberDecos map[uint32]map[uint32]map[uint32]uint32
	types       map[uint32]typeInfo
	constants   map[uint32]uint32
	variables   []variable
	entries     []entryPoint
}

type variable struct {
	id, pointer, storage uint32
}

type entryPoint struct {
	model uint32
	name  string
}

// Reflect extracts the entry point, descriptor bindings and push constant
// blocks of a SPIR-V module.
func Reflect(code []uint32) (*Reflection, error) {
	if len(code) < spirvHeaderSize || code[0] != spirvMagic {
		return nil, fmt.Errorf("bad header: %w", ErrInvalidSPIRV)
	}
	r := &reflector{
		names:       map[uint32]string{},
		memberNames: map[uint32]map[uint32]string{},
		decorations: map[uint32]map[uint32]uint32{},
		memberDecos: map[uint32]map[uint32]map[uint32]uint32{},
		types:       map[uint32]typeInfo{},
		constants:   map[uint32]uint32{},
	}
	if err := r.scan(code[spirvHeaderSize:]); err != nil {
		return nil, err
	}
	return r.reflect()
}

func (r *reflector) scan(words []uint32) error {
	for i := 0; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xffff
		if count == 0 || i+count > len(words) {
			return fmt.Errorf("instruction at word %d overruns the module: %w", i+spirvHeaderSize, ErrInvalidSPIRV)
		}
		args := words[i+1 : i+count]
		i += count

		switch op {
		case opName:
			if len(args) >= 1 {
				r.names[args[0]], _ = decodeString(args[1:])
			}
		case opMemberName:
			if len(args) >= 2 {
				if r.memberNames[args[0]] == nil {
					r.memberNames[args[0]] = map[uint32]string{}
				}
				r.memberNames[args[0]][args[1]], _ = decodeString(args[2:])
			}
		case opEntryPoint:
			if len(args) >= 2 {
				name, _ := decodeString(args[2:])
				r.entries = append(r.entries, entryPoint{model: args[0], name: name})
			}
		case opDecorate:
			if len(args) >= 2 {
				if r.decorations[args[0]] == nil {
					r.decorations[args[0]] = map[uint32]uint32{}
				}
				var value uint32
				if len(args) >= 3 {
					value = args[2]
				}
				r.decorations[args[0]][args[1]] = value
			}
		case opMemberDecorate:
			if len(args) >= 3 {
				if r.memberDecos[args[0]] == nil {
					r.memberDecos[args[0]] = map[uint32]map[uint32]uint32{}
				}
				if r.memberDecos[args[0]][args[1]] == nil {
					r.memberDecos[args[0]][args[1]] = map[uint32]uint32{}
				}
				var value uint32
				if len(args) >= 4 {
					value = args[3]
				}
				r.memberDecos[args[0]][args[1]][args[2]] = value
			}
		case opTypeBool, opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix, opTypeImage,
			opTypeSampler, opTypeSampledImage, opTypeArray, opTypeRuntimeArray, opTypeStruct, opTypePointer:
			if len(args) >= 1 {
				r.types[args[0]] = typeInfo{op: op, operand: args[1:]}
			}
		case opConstant:
			if len(args) >= 3 {
				r.constants[args[1]] = args[2]
			}
		case opVariable:
			if len(args) >= 3 {
				r.variables = append(r.variables, variable{pointer: args[0], id: args[1], storage: args[2]})
			}
		}
	}
	return nil
}

func (r *reflector) reflect() (*Reflection, error) {
	if len(r.entries) == 0 {
		return nil, fmt.Errorf("no entry point: %w", ErrInvalidSPIRV)
	}
	out := &Reflection{}
	for _, e := range r.entries {
		out.EntryPoints = append(out.EntryPoints, EntryPoint{Name: e.name, Stage: executionStage(e.model)})
	}
	out.Stage = out.EntryPoints[0].Stage
	out.EntryPoint = out.EntryPoints[0].Name

	for _, v := range r.variables {
		ptr, ok := r.types[v.pointer]
		if !ok || ptr.op != opTypePointer || len(ptr.operand) < 2 {
			continue
		}
		pointee := ptr.operand[1]

		switch v.storage {
		case storagePushConstant:
			block, err := r.block(pointee)
			if err != nil {
				return nil, err
			}
			out.PushBlocks = append(out.PushBlocks, pushBlock(block))
		case storageUniform, storageUniformConstant, storageStorageBuffer:
			b, ok, err := r.binding(v, pointee)
			if err != nil {
				return nil, err
			}
			if ok {
				out.Bindings = append(out.Bindings, b)
			}
		}
	}

	sort.Slice(out.Bindings, func(i, j int) bool {
		if out.Bindings[i].Set != out.Bindings[j].Set {
			return out.Bindings[i].Set < out.Bindings[j].Set
		}
		return out.Bindings[i].Binding < out.Bindings[j].Binding
	})
	return out, nil
}

func (r *reflector) binding(v variable, typeID uint32) (Binding, bool, error) {
	decos := r.decorations[v.id]
	bindingNum, hasBinding := decos[decorationBinding]
	if !hasBinding {
		// inputs, outputs and private globals
		return Binding{}, false, nil
	}
	b := Binding{
		Name:    r.names[v.id],
		Set:     decos[decorationDescriptorSet],
		Binding: bindingNum,
		Count:   1,
	}

	// unwrap one level of arrays
	if t := r.types[typeID]; t.op == opTypeArray && len(t.operand) >= 2 {
		b.Count = r.constants[t.operand[1]]
		typeID = t.operand[0]
	} else if t.op == opTypeRuntimeArray && len(t.operand) >= 1 {
		b.Count = 0
		b.Unbounded = true
		typeID = t.operand[0]
	}

	t, ok := r.types[typeID]
	if !ok {
		return Binding{}, false, fmt.Errorf("binding %q refers to unknown type %d: %w", b.Name, typeID, ErrInvalidSPIRV)
	}
	switch t.op {
	case opTypeStruct:
		_, isBlock := r.decorations[typeID][decorationBlock]
		_, isBufferBlock := r.decorations[typeID][decorationBufferBlock]
		switch {
		case v.storage == storageStorageBuffer || isBufferBlock:
			b.Kind = gpu.DescriptorStorageBuffer
		case isBlock:
			b.Kind = gpu.DescriptorUniformBuffer
		default:
			return Binding{}, false, fmt.Errorf("binding %q is a struct without Block decoration: %w", b.Name, ErrInvalidSPIRV)
		}
		block, err := r.block(typeID)
		if err != nil {
			return Binding{}, false, err
		}
		b.Block = &block
	case opTypeSampledImage:
		b.Kind = gpu.DescriptorCombinedImageSampler
	case opTypeSampler:
		b.Kind = gpu.DescriptorSampler
	case opTypeImage:
		// the Sampled operand is 2 for storage images
		if len(t.operand) >= 6 && t.operand[5] == 2 {
			b.Kind = gpu.DescriptorStorageImage
		} else {
			b.Kind = gpu.DescriptorSampledImage
		}
	default:
		return Binding{}, false, fmt.Errorf("binding %q has unsupported type op %d: %w", b.Name, t.op, ErrInvalidSPIRV)
	}
	return b, true, nil
}

func (r *reflector) block(structID uint32) (Block, error) {
	t, ok := r.types[structID]
	if !ok || t.op != opTypeStruct {
		return Block{}, fmt.Errorf("type %d is not a struct: %w", structID, ErrInvalidSPIRV)
	}
	block := Block{Name: r.names[structID]}
	for i, memberType := range t.operand {
		idx := uint32(i)
		decos := r.memberDecos[structID][idx]
		m := Member{
			Name:   r.memberNames[structID][idx],
			Offset: decos[decorationOffset],
			Size:   r.sizeOf(memberType, decos),
		}
		if end := m.Offset + m.Size; end > block.Size {
			block.Size = end
		}
		block.Members = append(block.Members, m)
	}
	block.PaddedSize = alignUp(block.Size, 16)
	return block, nil
}

func pushBlock(b Block) PushBlock {
	pb := PushBlock{Block: b}
	if len(b.Members) == 0 {
		return pb
	}
	pb.Offset = b.Members[0].Offset
	for _, m := range b.Members {
		if m.Offset < pb.Offset {
			pb.Offset = m.Offset
		}
	}
	pb.RangeSize = alignUp(b.Size, 4) - pb.Offset
	return pb
}

// sizeOf returns the byte size of a type as laid out inside a block.
// memberDecos are the decorations of the struct member holding it, used for
// matrix strides.
func (r *reflector) sizeOf(typeID uint32, memberDecos map[uint32]uint32) uint32 {
	t, ok := r.types[typeID]
	if !ok {
		return 0
	}
	switch t.op {
	case opTypeBool:
		return 4
	case opTypeInt, opTypeFloat:
		if len(t.operand) >= 1 {
			return t.operand[0] / 8
		}
	case opTypeVector:
		if len(t.operand) >= 2 {
			return r.sizeOf(t.operand[0], nil) * t.operand[1]
		}
	case opTypeMatrix:
		if len(t.operand) >= 2 {
			if stride, ok := memberDecos[decorationMatrixStride]; ok {
				return stride * t.operand[1]
			}
			return r.sizeOf(t.operand[0], nil) * t.operand[1]
		}
	case opTypeArray:
		if len(t.operand) >= 2 {
			n := r.constants[t.operand[1]]
			if stride, ok := r.decorations[typeID][decorationArrayStride]; ok {
				return stride * n
			}
			return r.sizeOf(t.operand[0], memberDecos) * n
		}
	case opTypeRuntimeArray:
		return 0
	case opTypeStruct:
		var size uint32
		for i, m := range t.operand {
			decos := r.memberDecos[typeID][uint32(i)]
			if end := decos[decorationOffset] + r.sizeOf(m, decos); end > size {
				size = end
			}
		}
		return size
	}
	return 0
}

func executionStage(model uint32) gpu.ShaderStage {
	switch model {
	case execVertex:
		return gpu.StageVertex
	case execFragment:
		return gpu.StageFragment
	case execGLCompute:
		return gpu.StageCompute
	}
	return gpu.StageAll
}

// Entry returns the name of the entry point for stage.
func (r *Reflection) Entry(stage gpu.ShaderStage) (string, bool) {
	for _, e := range r.EntryPoints {
		if e.Stage == stage {
			return e.Name, true
		}
	}
	return "", false
}

// BindingByName looks up a binding by variable name.
func (r *Reflection) BindingByName(name string) (Binding, bool) {
	for _, b := range r.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

func alignUp(v, alignment uint32) uint32 {
	return (v + alignment - 1) / alignment * alignment
}
