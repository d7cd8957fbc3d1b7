package cull

import (
	"testing"

	"github.com/kestrel-engine/gpuscene/engine/renderer/bind_group_provider"
)

type sequenceDispatcher struct {
	groups [][3]uint32
}

func (d *sequenceDispatcher) DispatchCompute(_ string, _ bind_group_provider.BindGroupProvider, wg [3]uint32) {
	d.groups = append(d.groups, wg)
}

func TestHiZBuildDispatchesOncePerMip(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewHiZPyramid(d, 1024, 768, func(mip int) bind_group_provider.BindGroupProvider { return nil })

	h.Build()

	if len(d.calls) != h.MipCount() {
		t.Fatalf("expected %d dispatches (one per mip), got %d", h.MipCount(), len(d.calls))
	}
	for _, k := range d.calls {
		if k != PipelineHiZDownsample {
			t.Fatalf("expected all dispatches to use %q, got %q", PipelineHiZDownsample, k)
		}
	}
}

func TestHiZWorkgroupsShrinkEachMip(t *testing.T) {
	d := &sequenceDispatcher{}
	h := NewHiZPyramid(d, 1024, 1024, func(mip int) bind_group_provider.BindGroupProvider { return nil })
	h.Build()

	if len(d.groups) < 2 {
		t.Fatal("expected more than one mip dispatch for a 1024x1024 buffer")
	}
	for i := 1; i < len(d.groups); i++ {
		if d.groups[i][0] > d.groups[i-1][0] {
			t.Fatalf("expected workgroup count to shrink or stay flat across mips, mip %d: %d > mip %d: %d",
				i, d.groups[i][0], i-1, d.groups[i-1][0])
		}
	}
}
