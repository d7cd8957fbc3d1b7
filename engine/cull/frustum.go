package cull

import "github.com/kestrel-engine/gpuscene/common"

// PlanesFromFrustum packs a common.Frustum (as produced by
// common.ExtractFrustumFromMatrix) into the [6][4]float32 layout the cull
// compute passes and GPUShadowCascadeConstants share: xyz normal plus
// distance per plane.
func PlanesFromFrustum(f common.Frustum) [6][4]float32 {
	var out [6][4]float32
	for i, p := range f.Planes {
		out[i] = [4]float32{p.Normal[0], p.Normal[1], p.Normal[2], p.Distance}
	}
	return out
}

// OcclusionCamera is the subset of the scene camera's surface the Uploads
// stage needs to populate GPUFrustumConstants.OcclusionViewProj: the
// view-projection matrix snapshotted one frame behind the camera's current
// matrices (spec §4.H "the Visibility pass occlusion-tests against the
// previous frame's Hi-Z pyramid, built from the previous frame's depth").
type OcclusionCamera interface {
	OcclusionProjectionMatrix() [16]float32
}

// FrustumConstantsFromCamera builds this frame's GPUFrustumConstants from
// cam's current frustum planes and its one-frame-stale occlusion
// view-projection matrix, plus the Hi-Z pyramid metadata the Visibility
// pass samples against. hiZTexture is the bindless index of the pyramid's
// shader-visible view.
func FrustumConstantsFromCamera(cam OcclusionCamera, planes [6][4]float32, nearPlane float32, hiZTexture, hiZWidth, hiZHeight uint32, hiZMipCount int) GPUFrustumConstants {
	return GPUFrustumConstants{
		Planes:            planes,
		OcclusionViewProj: cam.OcclusionProjectionMatrix(),
		HiZTexture:        hiZTexture,
		HiZWidth:          hiZWidth,
		HiZHeight:         hiZHeight,
		HiZMipCount:       uint32(hiZMipCount),
		NearPlane:         nearPlane,
	}
}
