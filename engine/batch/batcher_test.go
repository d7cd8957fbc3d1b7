package batch

import (
	"testing"

	"github.com/kestrel-engine/gpuscene/engine/meshreg"
	"github.com/kestrel-engine/gpuscene/engine/staging"
)

type fakeCuller struct {
	uploaded, built, culled []string
}

func (f *fakeCuller) UploadInstanceData(b *InstanceBatch) { f.uploaded = append(f.uploaded, b.Key()) }
func (f *fakeCuller) Build(b *InstanceBatch)              { f.built = append(f.built, b.Key()) }
func (f *fakeCuller) Cull(b *InstanceBatch)               { f.culled = append(f.culled, b.Key()) }

type fakeDrawer struct {
	drawn []string
}

func (f *fakeDrawer) DrawIndirect(b *InstanceBatch) error {
	f.drawn = append(f.drawn, b.Key())
	return nil
}

func bucketWith(t *testing.T, mesh string) *staging.Bucket {
	t.Helper()
	reg := meshreg.New()
	bucket := staging.New(reg)
	bucket.Add(mesh, 0, 1, staging.MaterialBlock{BoundingSphereRadius: 1}, 0)
	return bucket
}

func TestEnqueueCreatesBatchOnFirstSight(t *testing.T) {
	b := NewBatcher()
	b.Enqueue("opaque.standard", bucketWith(t, "cube.gltf"))
	if b.Batch("opaque.standard").InstanceCount() != 1 {
		t.Fatal("expected enqueued draw to be merged into the batch")
	}
}

func TestExecuteRunsInDeterministicActivationOrder(t *testing.T) {
	b := NewBatcher()
	b.Enqueue("opaque.glass", bucketWith(t, "a.gltf"))
	b.Enqueue("opaque.standard", bucketWith(t, "b.gltf"))
	b.Enqueue("opaque.foliage", bucketWith(t, "c.gltf"))

	culler := &fakeCuller{}
	drawer := &fakeDrawer{}
	if err := b.Execute(culler, drawer); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	want := []string{"opaque.glass", "opaque.standard", "opaque.foliage"}
	for i, k := range want {
		if drawer.drawn[i] != k {
			t.Fatalf("draw order[%d] = %q, want %q", i, drawer.drawn[i], k)
		}
		if culler.culled[i] != k {
			t.Fatalf("cull order[%d] = %q, want %q", i, culler.culled[i], k)
		}
	}
}

func TestExecuteSkipsBatchesWithZeroInstances(t *testing.T) {
	b := NewBatcher()
	b.Batch("empty.pass")

	culler := &fakeCuller{}
	drawer := &fakeDrawer{}
	if err := b.Execute(culler, drawer); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(drawer.drawn) != 0 {
		t.Fatal("expected no draws for a batch with zero merged instances")
	}
}

func TestExecuteResetsActivationForNextFrame(t *testing.T) {
	b := NewBatcher()
	b.Enqueue("opaque.standard", bucketWith(t, "cube.gltf"))
	if err := b.Execute(&fakeCuller{}, &fakeDrawer{}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(b.ActivationOrder()) != 0 {
		t.Fatal("expected activation order to reset after Execute")
	}

	b.Enqueue("opaque.foliage", bucketWith(t, "leaf.gltf"))
	order := b.ActivationOrder()
	if len(order) != 1 || order[0] != "opaque.foliage" {
		t.Fatalf("expected fresh activation order for next frame, got %v", order)
	}
}
