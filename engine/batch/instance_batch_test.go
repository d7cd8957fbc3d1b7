package batch

import (
	"testing"

	"github.com/kestrel-engine/gpuscene/engine/meshreg"
	"github.com/kestrel-engine/gpuscene/engine/staging"
)

func TestBeginFrameOnlyClearsOnce(t *testing.T) {
	b := New("opaque.standard")
	b.BeginFrame(0)
	b.descriptors = append(b.descriptors, GPUInstanceDescriptor{MeshPartID: 1})
	b.BeginFrame(1)
	if len(b.descriptors) != 1 {
		t.Fatal("second BeginFrame in the same frame must not clear merged data")
	}
	if b.ActivationOrder() != 0 {
		t.Fatalf("expected activation order to stick at first value 0, got %d", b.ActivationOrder())
	}
}

func TestEndFrameAllowsNextFrameClear(t *testing.T) {
	b := New("opaque.standard")
	b.BeginFrame(0)
	b.descriptors = append(b.descriptors, GPUInstanceDescriptor{MeshPartID: 1})
	b.EndFrame()
	b.BeginFrame(5)
	if len(b.descriptors) != 0 {
		t.Fatal("expected BeginFrame after EndFrame to clear merged data")
	}
	if b.ActivationOrder() != 5 {
		t.Fatalf("expected new activation order 5, got %d", b.ActivationOrder())
	}
}

func TestMergeFromBucketAppendsColumns(t *testing.T) {
	reg := meshreg.New()
	bucket := staging.New(reg)
	bucket.Add("cube.gltf", 0, 1, staging.MaterialBlock{BoundingSphereRadius: 1}, 0)
	bucket.Add("sphere.gltf", 0, 1, staging.MaterialBlock{BoundingSphereRadius: 2}, 1)

	b := New("opaque.standard")
	b.BeginFrame(0)
	b.MergeFromBucket(bucket)

	if b.InstanceCount() != 2 {
		t.Fatalf("expected 2 merged instances, got %d", b.InstanceCount())
	}
	if len(b.BoundingSpheres()) != 2 {
		t.Fatalf("expected 2 bounding spheres, got %d", len(b.BoundingSpheres()))
	}
}

func TestMergeFromBucketPanicsOnMaxSubBatchesExceeded(t *testing.T) {
	reg := meshreg.New()
	bucket := staging.New(reg)
	for i := uint32(0); i < MaxSubBatches+1; i++ {
		bucket.Add("mesh.gltf", i, 1, staging.MaterialBlock{}, i)
	}

	b := New("opaque.standard")
	b.BeginFrame(0)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when exceeding MaxSubBatches")
		}
	}()
	b.MergeFromBucket(bucket)
}

func TestGrowDoublesCapacityToCoverRequired(t *testing.T) {
	b := New("opaque.standard")
	b.capacity = 4
	b.grow(5)
	if b.capacity != 8 {
		t.Fatalf("expected capacity to double to 8, got %d", b.capacity)
	}
}

func TestDeferDisposalNotReleasedBeforeDepthElapsed(t *testing.T) {
	b := New("opaque.standard")
	b.DeferDisposal(nil, 10)
	if n := b.ReleaseExpired(10); n != 0 {
		t.Fatalf("expected 0 released at the same frame, got %d", n)
	}
	if b.PendingDisposalCount() != 1 {
		t.Fatal("expected buffer still pending")
	}
}

func TestDeferDisposalReleasedAfterDepthElapsed(t *testing.T) {
	b := New("opaque.standard")
	b.DeferDisposal(nil, 10)
	if n := b.ReleaseExpired(14); n != 1 {
		t.Fatalf("expected 1 released after N+1 frames, got %d", n)
	}
	if b.PendingDisposalCount() != 0 {
		t.Fatal("expected no buffers left pending")
	}
}
