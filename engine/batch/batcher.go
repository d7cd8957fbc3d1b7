package batch

import (
	"sort"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/kestrel-engine/gpuscene/engine/staging"
)

// BucketSubmission pairs a producer thread's Draw Bucket with the
// BatchKey it should be merged into.
type BucketSubmission struct {
	BatchKey string
	Bucket   *staging.Bucket
}

// Cullable is the subset of the Culler Service's surface the Draw Batcher
// needs to run the five-pass pipeline over an activated Instance Batch
// (spec §4.F step 3: upload_instance_data, build, cull).
type Cullable interface {
	UploadInstanceData(batch *InstanceBatch)
	Build(batch *InstanceBatch)
	Cull(batch *InstanceBatch)
}

// Drawer issues the final indirect draw for an activated batch, in the
// order the Draw Batcher determines (spec §4.F step 4).
type Drawer interface {
	DrawIndirect(batch *InstanceBatch) error
}

// Batcher is the per-pass Draw Batcher (spec §4.F): it routes enqueued
// draws to per-BatchKey Instance Batches and, on Execute, merges, uploads,
// culls, and finally issues indirect draws in deterministic activation
// order.
type Batcher struct {
	mu      sync.Mutex
	batches map[string]*InstanceBatch
	order   []string
	nextOrd int
}

// NewBatcher creates an empty Draw Batcher.
func NewBatcher() *Batcher {
	return &Batcher{batches: make(map[string]*InstanceBatch)}
}

// Enqueue routes bucket's contents to the Instance Batch keyed by
// batchKey (material.effect), creating it on first sight and marking it
// active for this frame.
func (b *Batcher) Enqueue(batchKey string, bucket *staging.Bucket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, ok := b.batches[batchKey]
	if !ok {
		batch = New(batchKey)
		b.batches[batchKey] = batch
	}
	if !batch.activatedThisFrame {
		batch.BeginFrame(b.nextOrd)
		b.nextOrd++
		b.order = append(b.order, batchKey)
	}
	batch.MergeFromBucket(bucket)
}

// EnqueueAll merges every submission's bucket into its Instance Batch
// concurrently via pool, using a WaitGroup as the frame barrier rather
// than pool.Wait() (which blocks until workers idle-exit, unsuitable for
// a frame-rate workload). Each Batcher.Enqueue call is independently
// locked, so merges into different batches proceed without contention.
func (b *Batcher) EnqueueAll(pool worker.DynamicWorkerPool, submissions []BucketSubmission) {
	var wg sync.WaitGroup
	for i, sub := range submissions {
		wg.Add(1)
		s := sub
		pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				b.Enqueue(s.BatchKey, s.Bucket)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// Execute runs step 2-4 of spec §4.F for every batch activated this
// frame: upload instance data, build the mesh registry dependency, cull,
// then issue indirect draws in ascending activation order (deterministic
// given deterministic producers). Batches not activated this frame are
// left untouched.
func (b *Batcher) Execute(cull Cullable, draw Drawer) error {
	b.mu.Lock()
	activeKeys := make([]string, len(b.order))
	copy(activeKeys, b.order)
	b.mu.Unlock()

	sort.Slice(activeKeys, func(i, j int) bool {
		return b.batches[activeKeys[i]].ActivationOrder() < b.batches[activeKeys[j]].ActivationOrder()
	})

	for _, key := range activeKeys {
		batch := b.batches[key]
		if batch.InstanceCount() == 0 {
			continue
		}
		cull.UploadInstanceData(batch)
		cull.Build(batch)
		cull.Cull(batch)
	}

	for _, key := range activeKeys {
		batch := b.batches[key]
		if batch.InstanceCount() == 0 {
			continue
		}
		if err := draw.DrawIndirect(batch); err != nil {
			return err
		}
	}

	b.mu.Lock()
	for _, key := range activeKeys {
		b.batches[key].EndFrame()
	}
	b.order = b.order[:0]
	b.nextOrd = 0
	b.mu.Unlock()

	return nil
}

// Batch returns the Instance Batch for key, creating it if it does not
// yet exist. Exposed for tests and for callers that need a reference
// before the first Enqueue of a frame.
func (b *Batcher) Batch(key string) *InstanceBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch, ok := b.batches[key]
	if !ok {
		batch = New(key)
		b.batches[key] = batch
	}
	return batch
}

// ActivationOrder returns the order keys were activated this frame, for
// tests verifying deterministic execution order.
func (b *Batcher) ActivationOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}
