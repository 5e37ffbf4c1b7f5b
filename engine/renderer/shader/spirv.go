package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	spirvMagic      uint32 = 0x07230203
	spirvHeaderSize        = 5
)

// SPIR-V opcodes used by the reflection pass.
const (
	opName             = 5
	opMemberName       = 6
	opEntryPoint       = 15
	opTypeBool         = 20
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeMatrix       = 24
	opTypeImage        = 25
	opTypeSampler      = 26
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeRuntimeArray = 29
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
)

const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationArrayStride   = 6
	decorationMatrixStride  = 7
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
)

const (
	storageUniformConstant = 0
	storageUniform         = 2
	storagePushConstant    = 9
	storageStorageBuffer   = 12
)

const (
	execVertex    = 0
	execFragment  = 4
	execGLCompute = 5
)

var (
	ErrInvalidSPIRV = errors.New("invalid SPIR-V")
)

// BytesToWords reinterprets a little-endian SPIR-V binary as words.
func BytesToWords(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of words: %w", len(b), ErrInvalidSPIRV)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if len(words) < spirvHeaderSize || words[0] != spirvMagic {
		return nil, fmt.Errorf("bad magic number: %w", ErrInvalidSPIRV)
	}
	return words, nil
}

// WordsToBytes is the inverse of BytesToWords.
func WordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// decodeString reads a nul terminated literal string; it returns the string
// and the number of words it occupied.
func decodeString(words []uint32) (string, int) {
	var buf []byte
	for i, w := range words {
		for j := 0; j < 4; j++ {
			c := byte(w >> (8 * j))
			if c == 0 {
				return string(buf), i + 1
			}
			buf = append(buf, c)
		}
	}
	return string(buf), len(words)
}
