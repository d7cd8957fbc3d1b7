package terrain

import (
	_ "embed"
	"encoding/binary"
	"math"
)

// GPUTerrainNodeSource is the canonical WGSL definition of the
// TerrainNode and TerrainPatch structs used by the quadtree compute
// passes.
//
//go:embed assets/terrain_node.wgsl
var GPUTerrainNodeSource string

// GPUTerrainNode is the GPU-aligned mirror of one dense quadtree node
// (spec §4.K), read and written by the Mark Splits pass.
// Size: 32 bytes.
type GPUTerrainNode struct {
	Center    [2]float32
	HalfExtent float32
	Depth     uint32
	YMin      float32
	YMax      float32
	SplitFlag uint32
}

// Marshal serializes the GPUTerrainNode struct into a byte buffer
// suitable for GPU upload.
func (g *GPUTerrainNode) Marshal() []byte {
	buf := make([]byte, 32) // 28 bytes of fields, padded to the struct's 8-byte alignment
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Center[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Center[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.HalfExtent))
	binary.LittleEndian.PutUint32(buf[12:16], g.Depth)
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.YMin))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.YMax))
	binary.LittleEndian.PutUint32(buf[24:28], g.SplitFlag)
	return buf
}

// GPUTerrainPatch is the GPU-aligned mirror of Patch, appended to the
// opaque path's instance buffers by the Emit Leaves pass (spec §4.K
// pass 2).
// Size: 48 bytes (44 bytes of fields, padded to 16-byte alignment).
type GPUTerrainPatch struct {
	WorldBounds [4]float32
	UVRect      [4]float32
	MorphFactor float32
	RingScale   float32
	LODLevel    uint32
}

// Marshal serializes the GPUTerrainPatch struct into a byte buffer
// suitable for GPU upload.
func (g *GPUTerrainPatch) Marshal() []byte {
	buf := make([]byte, 48)
	off := 0
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.WorldBounds[i]))
		off += 4
	}
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.UVRect[i]))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.MorphFactor))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.RingScale))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], g.LODLevel)
	return buf
}
