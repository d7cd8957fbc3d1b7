package cull

import (
	"testing"

	"github.com/kestrel-engine/gpuscene/engine/light"
)

func TestBuildCascadeFrustumsSplitsNearFarMonotonically(t *testing.T) {
	var planes [6][4]float32
	splits := []float32{0.1, 0.3, 0.6, 1.0}
	cascades := BuildCascadeFrustums(planes, 0.1, 200, splits)

	if len(cascades) != len(splits) {
		t.Fatalf("expected %d cascades, got %d", len(splits), len(cascades))
	}
	prevFar := float32(0.1)
	for i, c := range cascades {
		if c.NearFar[0] != prevFar {
			t.Fatalf("cascade %d: near %v does not chain from previous far %v", i, c.NearFar[0], prevFar)
		}
		if c.NearFar[1] <= c.NearFar[0] {
			t.Fatalf("cascade %d: far %v not greater than near %v", i, c.NearFar[1], c.NearFar[0])
		}
		prevFar = c.NearFar[1]
	}
	if cascades[len(cascades)-1].FarSplit != 200 {
		t.Fatalf("expected final cascade far split to reach camera far plane 200, got %v", cascades[len(cascades)-1].FarSplit)
	}
}

func TestBuildShadowCascadeConstantsCapsAtMaxShadowCascades(t *testing.T) {
	cascades := make([]light.CascadeFrustum, light.MaxShadowCascades+2)
	for i := range cascades {
		cascades[i].FarSplit = float32(i + 1)
	}
	c := BuildShadowCascadeConstants(cascades)
	if c.CascadeCount != uint32(light.MaxShadowCascades) {
		t.Fatalf("expected CascadeCount capped at %d, got %d", light.MaxShadowCascades, c.CascadeCount)
	}
	if c.Splits[0] != 1 {
		t.Fatalf("expected first split preserved, got %v", c.Splits[0])
	}
}

func TestPracticalSplitSchemeUsesDefaultPercentiles(t *testing.T) {
	splits := PracticalSplitScheme(0.1, 200, light.MaxShadowCascades, light.DefaultCascadeSplitPercentiles[:])
	if len(splits) != light.MaxShadowCascades {
		t.Fatalf("expected %d splits, got %d", light.MaxShadowCascades, len(splits))
	}
	for i := 1; i < len(splits); i++ {
		if splits[i] <= splits[i-1] {
			t.Fatalf("expected strictly increasing splits, split[%d]=%v <= split[%d]=%v", i, splits[i], i-1, splits[i-1])
		}
	}
}
