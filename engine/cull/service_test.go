package cull

import (
	"testing"

	"github.com/kestrel-engine/gpuscene/engine/batch"
	"github.com/kestrel-engine/gpuscene/engine/meshreg"
	"github.com/kestrel-engine/gpuscene/engine/renderer/bind_group_provider"
	"github.com/kestrel-engine/gpuscene/engine/staging"
)

type recordingDispatcher struct {
	calls []string
	groups map[string][3]uint32
}

func (d *recordingDispatcher) DispatchCompute(key string, _ bind_group_provider.BindGroupProvider, wg [3]uint32) {
	d.calls = append(d.calls, key)
	if d.groups == nil {
		d.groups = make(map[string][3]uint32)
	}
	d.groups[key] = wg
}

func noopBindings(_ *batch.InstanceBatch, _ int, _ string) bind_group_provider.BindGroupProvider {
	return nil
}

func batchWithInstances(t *testing.T, n int) *batch.InstanceBatch {
	t.Helper()
	reg := meshreg.New()
	bucket := staging.New(reg)
	for i := 0; i < n; i++ {
		bucket.Add("cube.gltf", 0, 1, staging.MaterialBlock{BoundingSphereRadius: 1}, uint32(i))
	}
	b := batch.New("opaque.standard")
	b.BeginFrame(0)
	b.MergeFromBucket(bucket)
	return b
}

func TestCullRunsFivePassesInOrder(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(d, noopBindings)
	b := batchWithInstances(t, 10)

	s.Cull(b)

	want := []string{PipelineVisibility, PipelineHistogram, PipelinePrefixSum, PipelineScatter, PipelineCommandEmit}
	if len(d.calls) != len(want) {
		t.Fatalf("expected %d dispatches, got %d: %v", len(want), len(d.calls), d.calls)
	}
	for i, k := range want {
		if d.calls[i] != k {
			t.Fatalf("dispatch[%d] = %q, want %q", i, d.calls[i], k)
		}
	}
}

func TestCullSkipsWhenNoInstances(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(d, noopBindings)
	b := batch.New("empty")

	s.Cull(b)

	if len(d.calls) != 0 {
		t.Fatalf("expected no dispatches for empty batch, got %v", d.calls)
	}
}

func TestCullWorkgroupCountMatchesInstanceCount(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(d, noopBindings)
	b := batchWithInstances(t, 257) // one more than a single 256-wide group

	s.Cull(b)

	if got := d.groups[PipelineVisibility][0]; got != 2 {
		t.Fatalf("expected 2 workgroups for 257 instances at 256/group, got %d", got)
	}
}

func TestCullStatsReadbackIsTwoFramesLatent(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(d, noopBindings)

	s.RecordCullStats(5, 10, 2)

	if _, _, ok := s.ReadCullStats(5); ok {
		t.Fatal("expected no valid stats reading frame 5's own stats at frame 5")
	}
	visible, occluded, ok := s.ReadCullStats(7)
	if !ok {
		t.Fatal("expected valid stats at frame 7 (5+2)")
	}
	if visible != 10 || occluded != 2 {
		t.Fatalf("expected (10,2), got (%d,%d)", visible, occluded)
	}
}

func TestHiZMipCountMatchesSpecFormula(t *testing.T) {
	// spec §6: Hi-Z mips = 1 + floor(log2(max(w,h)/2))
	if got := HiZMipCount(1024, 768); got != 10 {
		t.Fatalf("expected 10 mips for 1024x768, got %d", got)
	}
	if got := HiZMipCount(256, 256); got != 8 {
		t.Fatalf("expected 8 mips for 256x256, got %d", got)
	}
}
