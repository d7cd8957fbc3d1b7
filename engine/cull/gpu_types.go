package cull

import (
	_ "embed"
	"encoding/binary"
	"math"
)

// GPUCullConstantsSource is the canonical WGSL definition of
// FrustumConstants and ShadowCascadeConstants shared by every cull pass.
//
//go:embed assets/cull_constants.wgsl
var GPUCullConstantsSource string

// GPUFrustumConstants is the per-frame-ring cull input (spec §4.H
// "Frustum Constants"): the six frustum planes plus the Hi-Z metadata the
// Visibility pass needs to run occlusion culling against the previous
// frame's depth pyramid.
// Size: 192 bytes (6×vec4 planes + mat4x4 + 7×u32/f32 + one trailing pad
// word, matching the WGSL struct's _pad0).
type GPUFrustumConstants struct {
	Planes            [6][4]float32
	OcclusionViewProj [16]float32
	HiZTexture        uint32
	HiZWidth          uint32
	HiZHeight         uint32
	HiZMipCount       uint32
	NearPlane         float32
	CullStatsBuffer   uint32
	DebugMode         uint32
}

// Size returns the size of the GPUFrustumConstants struct in bytes.
func (g *GPUFrustumConstants) Size() int { return 96 + 64 + 32 }

// Marshal serializes the GPUFrustumConstants struct into a byte buffer
// suitable for GPU upload.
func (g *GPUFrustumConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	off := 0
	for i := 0; i < 6; i++ {
		for j := 0; j < 4; j++ {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.Planes[i][j]))
			off += 4
		}
	}
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.OcclusionViewProj[i]))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], g.HiZTexture)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], g.HiZWidth)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], g.HiZHeight)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], g.HiZMipCount)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.NearPlane))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], g.CullStatsBuffer)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], g.DebugMode)
	return buf
}

// GPUShadowCascadeConstants is the per-frame-ring shadow cull input (spec
// §4.J): the plane block for each of up to 4 cascades plus the SDSM split
// depths.
type GPUShadowCascadeConstants struct {
	Planes       [4][6][4]float32
	Splits       [4]float32
	CascadeCount uint32
}

// Size returns the size of the GPUShadowCascadeConstants struct in bytes.
func (g *GPUShadowCascadeConstants) Size() int { return 4*6*16 + 16 + 16 }

// Marshal serializes the GPUShadowCascadeConstants struct into a byte
// buffer suitable for GPU upload.
func (g *GPUShadowCascadeConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	off := 0
	for c := 0; c < 4; c++ {
		for i := 0; i < 6; i++ {
			for j := 0; j < 4; j++ {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.Planes[c][i][j]))
				off += 4
			}
		}
	}
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(g.Splits[i]))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], g.CascadeCount)
	return buf
}

// GPUSDSMSplits is the 4-float cascade split buffer the SDSM Split
// Analyzer writes and the Frame Orchestrator reads back 2 frames later
// (spec §4.J).
type GPUSDSMSplits struct {
	Splits [4]float32
}

// Marshal serializes the GPUSDSMSplits struct into a byte buffer suitable
// for GPU upload.
func (g *GPUSDSMSplits) Marshal() []byte {
	buf := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Splits[i]))
	}
	return buf
}
