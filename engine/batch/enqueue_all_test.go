package batch

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/kestrel-engine/gpuscene/engine/meshreg"
	"github.com/kestrel-engine/gpuscene/engine/staging"
)

func TestEnqueueAllMergesEveryBucketConcurrently(t *testing.T) {
	pool := worker.NewDynamicWorkerPool(4, 64, time.Second)

	reg := meshreg.New()
	b := NewBatcher()

	submissions := make([]BucketSubmission, 0, 3)
	for i, key := range []string{"opaque.standard", "opaque.foliage", "opaque.glass"} {
		bucket := staging.New(reg)
		bucket.Add("mesh.gltf", uint32(i), 1, staging.MaterialBlock{BoundingSphereRadius: 1}, uint32(i))
		submissions = append(submissions, BucketSubmission{BatchKey: key, Bucket: bucket})
	}

	b.EnqueueAll(pool, submissions)

	for _, key := range []string{"opaque.standard", "opaque.foliage", "opaque.glass"} {
		if b.Batch(key).InstanceCount() != 1 {
			t.Fatalf("expected batch %q to have 1 merged instance, got %d", key, b.Batch(key).InstanceCount())
		}
	}
}
