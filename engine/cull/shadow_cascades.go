package cull

import "github.com/kestrel-engine/gpuscene/engine/light"

// BuildCascadeFrustums derives per-cascade frustum data (spec §4.J "per-cascade
// visibility") from the camera's full frustum and a set of normalized split
// depths in [0,1]. Each cascade reuses the camera's six clip planes, narrowed
// to the split's near/far depth range — the Visibility-Shadow pass only needs
// a conservative per-cascade bound for its sphere-vs-plane test, not a tight
// sub-frustum extraction.
func BuildCascadeFrustums(camPlanes [6][4]float32, near, far float32, splits []float32) []light.CascadeFrustum {
	cascades := make([]light.CascadeFrustum, 0, len(splits))
	prev := near
	for _, s := range splits {
		cascadeFar := near + s*(far-near)
		cascades = append(cascades, light.CascadeFrustum{
			Planes:   camPlanes,
			NearFar:  [2]float32{prev, cascadeFar},
			FarSplit: cascadeFar,
		})
		prev = cascadeFar
	}
	return cascades
}

// BuildShadowCascadeConstants packs cascades into the GPUShadowCascadeConstants
// block the Culler Service uploads for the shadow variant of the five-pass
// pipeline. Cascades beyond light.MaxShadowCascades are dropped.
func BuildShadowCascadeConstants(cascades []light.CascadeFrustum) GPUShadowCascadeConstants {
	var c GPUShadowCascadeConstants
	n := len(cascades)
	if n > light.MaxShadowCascades {
		n = light.MaxShadowCascades
	}
	for i := 0; i < n; i++ {
		c.Planes[i] = cascades[i].Planes
		c.Splits[i] = cascades[i].FarSplit
	}
	c.CascadeCount = uint32(n)
	return c
}

// PracticalSplitScheme blends LogarithmicSplits against the light package's
// fixed cascade percentiles (the standard PSSM blend), used whenever the
// SDSM Split Analyzer has no histogram-derived data yet (spec §7 fallback).
// uniformPercentiles supplies the first cascadeCount-1 cuts; any cascade
// beyond the supplied percentiles defaults its uniform term to 1.0 (the
// camera far plane).
func PracticalSplitScheme(near, far float32, cascadeCount int, uniformPercentiles []float32) []float32 {
	logSplits := LogarithmicSplits(near, far, cascadeCount)
	splits := make([]float32, cascadeCount)
	for i := 0; i < cascadeCount; i++ {
		uniform := float32(1.0)
		if i < len(uniformPercentiles) {
			uniform = uniformPercentiles[i]
		}
		splits[i] = 0.5*uniform + 0.5*logSplits[i]
	}
	return splits
}
