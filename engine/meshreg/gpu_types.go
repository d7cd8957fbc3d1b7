package meshreg

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUMeshPartEntrySource is the canonical WGSL definition of the
// MeshPartEntry struct. Matches GPUMeshPartEntry layout exactly (48 bytes,
// std430 aligned).
//
//go:embed assets/mesh_part.wgsl
var GPUMeshPartEntrySource string

// GPUMeshPartEntry is the GPU-aligned representation of a single Mesh
// Registry row (spec §4.D): the draw-time attribute data a sub-batch needs
// to issue DrawIndexedInstanced and run coarse culling, addressed entirely
// through bindless indices.
// Size: 48 bytes (std430 aligned).
type GPUMeshPartEntry struct {
	IndexCount            uint32     // offset  0
	FirstIndex            uint32     // offset  4
	BaseVertex            int32      // offset  8
	PositionBuffer        uint32     // offset 12: bindless index
	NormalBuffer          uint32     // offset 16: bindless index
	UVBuffer              uint32     // offset 20: bindless index
	IndexBuffer           uint32     // offset 24: bindless index
	_pad0                 uint32     // offset 28
	BoundingSphereCenter  [3]float32 // offset 32
	BoundingSphereRadius  float32    // offset 44
}

// Size returns the size of the GPUMeshPartEntry struct in bytes.
func (g *GPUMeshPartEntry) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMeshPartEntry struct into a byte buffer
// suitable for GPU upload.
func (g *GPUMeshPartEntry) Marshal() []byte {
	buf := make([]byte, g.Size())
	binary.LittleEndian.PutUint32(buf[0:4], g.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.FirstIndex)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(g.BaseVertex))
	binary.LittleEndian.PutUint32(buf[12:16], g.PositionBuffer)
	binary.LittleEndian.PutUint32(buf[16:20], g.NormalBuffer)
	binary.LittleEndian.PutUint32(buf[20:24], g.UVBuffer)
	binary.LittleEndian.PutUint32(buf[24:28], g.IndexBuffer)
	binary.LittleEndian.PutUint32(buf[28:32], 0)
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(g.BoundingSphereCenter[0]))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(g.BoundingSphereCenter[1]))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(g.BoundingSphereCenter[2]))
	binary.LittleEndian.PutUint32(buf[44:48], math.Float32bits(g.BoundingSphereRadius))
	return buf
}
