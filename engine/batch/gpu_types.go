package batch

import (
	_ "embed"
	"encoding/binary"
)

// GPUInstanceDescriptorSource is the canonical WGSL definition of the
// InstanceDescriptor, BoundingSphere, and IndirectCommand structs shared by
// every Instance Batch compute pass.
//
//go:embed assets/instance.wgsl
var GPUInstanceDescriptorSource string

// GPUInstanceDescriptor is the GPU-aligned descriptor row an Instance Batch
// merges in from a Draw Bucket (spec §4.E "descriptors" column, §4.G
// Visibility pass input).
// Size: 12 bytes (std430 aligned).
type GPUInstanceDescriptor struct {
	MeshPartID    uint32 // offset 0
	MaterialID    uint32 // offset 4
	TransformSlot uint32 // offset 8
}

// Size returns the size of the GPUInstanceDescriptor struct in bytes.
func (g *GPUInstanceDescriptor) Size() int { return 12 }

// Marshal serializes the GPUInstanceDescriptor struct into a byte buffer
// suitable for GPU upload.
func (g *GPUInstanceDescriptor) Marshal() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], g.MeshPartID)
	binary.LittleEndian.PutUint32(buf[4:8], g.MaterialID)
	binary.LittleEndian.PutUint32(buf[8:12], g.TransformSlot)
	return buf
}

// GPUBoundingSphere is the GPU-aligned local-space bounding sphere column
// entry (spec §4.E "bounding_spheres").
// Size: 16 bytes (std430 aligned).
type GPUBoundingSphere struct {
	Center [3]float32
	Radius float32
}

// Size returns the size of the GPUBoundingSphere struct in bytes.
func (g *GPUBoundingSphere) Size() int { return 16 }

// GPUIndirectCommand is the GPU-aligned indirect draw command an Instance
// Batch's Command Emit pass writes, one per MeshPartId (spec §4.G pass 5).
// Size: 36 bytes.
type GPUIndirectCommand struct {
	MeshPartID         uint32
	ChannelBase        uint32
	VisibleIndicesBase uint32
	_pad0              uint32
	IndexCount         uint32
	InstanceCount      uint32
	FirstIndex         uint32
	BaseVertex         int32
	FirstInstance      uint32
}

// Size returns the size of the GPUIndirectCommand struct in bytes.
func (g *GPUIndirectCommand) Size() int { return 36 }

// Marshal serializes the GPUIndirectCommand struct into a byte buffer
// suitable for GPU upload or CPU-side inspection in tests.
func (g *GPUIndirectCommand) Marshal() []byte {
	buf := make([]byte, 36)
	binary.LittleEndian.PutUint32(buf[0:4], g.MeshPartID)
	binary.LittleEndian.PutUint32(buf[4:8], g.ChannelBase)
	binary.LittleEndian.PutUint32(buf[8:12], g.VisibleIndicesBase)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	binary.LittleEndian.PutUint32(buf[16:20], g.IndexCount)
	binary.LittleEndian.PutUint32(buf[20:24], g.InstanceCount)
	binary.LittleEndian.PutUint32(buf[24:28], g.FirstIndex)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(g.BaseVertex))
	binary.LittleEndian.PutUint32(buf[32:36], g.FirstInstance)
	return buf
}
