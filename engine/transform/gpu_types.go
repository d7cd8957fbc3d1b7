package transform

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUTransformSlotSource is the canonical WGSL definition of the
// TransformSlot struct. Matches GPUTransformSlot layout exactly (80 bytes,
// std430 aligned).
//
//go:embed assets/transform.wgsl
var GPUTransformSlotSource string

// GPUTransformSlot is the GPU-aligned representation of a single Transform
// Store slot (spec §4.C). The model matrix is stored pre-transposed, as the
// shader reads it directly without an additional transpose.
// Size: 80 bytes (std430 aligned).
type GPUTransformSlot struct {
	Model      [16]float32 // offset  0: pre-transposed model-to-world matrix
	MaterialID uint32      // offset 64: material id associated with this slot
	_pad       [3]uint32   // offset 68: padding to 80 bytes
}

// Size returns the size of the GPUTransformSlot struct in bytes.
func (g *GPUTransformSlot) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUTransformSlot struct into a byte buffer suitable
// for GPU upload.
func (g *GPUTransformSlot) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Model[i]))
	}
	binary.LittleEndian.PutUint32(buf[64:], g.MaterialID)
	return buf
}
