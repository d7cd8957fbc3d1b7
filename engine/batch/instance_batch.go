package batch

import (
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kestrel-engine/gpuscene/engine/ring"
	"github.com/kestrel-engine/gpuscene/engine/staging"
)

// MaxSubBatches is the hard ceiling on distinct MeshPartIds visible within
// a single Instance Batch in one frame (spec §3 invariant).
const MaxSubBatches = 4096

// DefaultCapacity is the initial number of instance slots an Instance
// Batch reserves before it must grow.
const DefaultCapacity = 65536

type deferredBuffer struct {
	buf       *wgpu.Buffer
	disposeAt uint64
}

// InstanceBatch is the per-BatchKey GPU-resident state the Draw Batcher
// merges producer buckets into and the Culler Service runs the five-pass
// cull/scatter pipeline against (spec §4.G). It owns one copy of every
// buffer per frame-ring slot; all are UAVs during the compute pipeline and
// SRV/IndirectArgument for the subsequent graphics pipeline.
type InstanceBatch struct {
	key      string
	capacity int

	descriptors    []GPUInstanceDescriptor
	boundingSpheres []GPUBoundingSphere
	subBatchIDs    []uint32
	channels       map[uint64][]byte

	visibleIndices   [ring.Depth]*wgpu.Buffer
	indirectCommands [ring.Depth]*wgpu.Buffer
	counters         [ring.Depth]*wgpu.Buffer
	visibilityFlags  [ring.Depth]*wgpu.Buffer
	histogram        [ring.Depth]*wgpu.Buffer

	deferred []deferredBuffer

	activatedThisFrame bool
	activationOrder    int
}

// New creates an Instance Batch for the given BatchKey (material.effect)
// with the default starting capacity.
func New(key string) *InstanceBatch {
	return &InstanceBatch{key: key, capacity: DefaultCapacity, channels: make(map[uint64][]byte)}
}

// Key returns the BatchKey this Instance Batch was created for.
func (b *InstanceBatch) Key() string { return b.key }

// Capacity returns the current instance-slot capacity.
func (b *InstanceBatch) Capacity() int { return b.capacity }

// ActivationOrder reports the order this batch was first activated in,
// relative to other batches activated the same frame. Used by the Draw
// Batcher to execute indirect draws in deterministic order (spec §4.F
// step 4).
func (b *InstanceBatch) ActivationOrder() int { return b.activationOrder }

// BeginFrame clears the batch's CPU-side merge state if this is its first
// touch this frame, and records its activation order. Calling BeginFrame
// more than once in the same frame without an intervening EndFrame is a
// no-op beyond the first call (spec §4.F step 1: "if not yet active this
// frame, clear it and mark active").
func (b *InstanceBatch) BeginFrame(order int) {
	if b.activatedThisFrame {
		return
	}
	b.activatedThisFrame = true
	b.activationOrder = order
	b.descriptors = b.descriptors[:0]
	b.boundingSpheres = b.boundingSpheres[:0]
	b.subBatchIDs = b.subBatchIDs[:0]
	for k := range b.channels {
		delete(b.channels, k)
	}
}

// EndFrame clears the activation flag so the next frame's first Enqueue
// re-triggers BeginFrame's clear.
func (b *InstanceBatch) EndFrame() {
	b.activatedThisFrame = false
}

// MergeFromBucket block-copies a producer Bucket's columns into this
// batch's merged arrays (spec §4.F step 1 "merge_from_bucket(bucket)").
// Exceeding MaxSubBatches distinct MeshPartIds across all merged buckets
// in one frame is fatal and panics, per spec §3.
func (b *InstanceBatch) MergeFromBucket(bucket *staging.Bucket) {
	for _, d := range bucket.Descriptors() {
		b.descriptors = append(b.descriptors, GPUInstanceDescriptor{
			MeshPartID:    uint32(d.MeshPart),
			MaterialID:    d.Material,
			TransformSlot: d.TransformSlot,
		})
	}
	b.subBatchIDs = append(b.subBatchIDs, bucket.SubBatchIDs()...)

	spheres := bucket.BoundingSpheres()
	for i := 0; i+16 <= len(spheres); i += 16 {
		b.boundingSpheres = append(b.boundingSpheres, decodeSphere(spheres[i:i+16]))
	}

	if b.distinctSubBatchCount() > MaxSubBatches {
		panic(fmt.Sprintf("batch %q: exceeded MaxSubBatches (%d)", b.key, MaxSubBatches))
	}

	if len(b.descriptors) > b.capacity {
		b.grow(len(b.descriptors))
	}
}

func (b *InstanceBatch) distinctSubBatchCount() int {
	seen := make(map[uint32]struct{}, len(b.subBatchIDs))
	for _, id := range b.subBatchIDs {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// grow doubles capacity until it covers required. It only updates the
// capacity value: it allocates no GPU buffers and puts none on the
// deferred-disposal list (DeferDisposal does that for a buffer the caller
// passes in).
func (b *InstanceBatch) grow(required int) {
	newCap := b.capacity
	for newCap < required {
		newCap *= 2
	}
	b.capacity = newCap
}

// DeferDisposal schedules buf for release once currentFrame+N+1 has
// elapsed. PendingDisposalCount reports how many buffers are still queued.
func (b *InstanceBatch) DeferDisposal(buf *wgpu.Buffer, currentFrame uint64) {
	b.deferred = append(b.deferred, deferredBuffer{buf: buf, disposeAt: currentFrame + ring.Depth + 1})
}

// ReleaseExpired drops every deferred buffer whose dispose-at frame has
// elapsed, calling Release() on each non-nil one, and returns how many
// were dropped.
func (b *InstanceBatch) ReleaseExpired(currentFrame uint64) int {
	kept := b.deferred[:0]
	released := 0
	for _, d := range b.deferred {
		if d.disposeAt <= currentFrame {
			if d.buf != nil {
				d.buf.Release()
			}
			released++
		} else {
			kept = append(kept, d)
		}
	}
	b.deferred = kept
	return released
}

// PendingDisposalCount returns the number of buffers still awaiting
// release, for tests.
func (b *InstanceBatch) PendingDisposalCount() int { return len(b.deferred) }

// Descriptors returns the merged descriptor column for this frame.
func (b *InstanceBatch) Descriptors() []GPUInstanceDescriptor { return b.descriptors }

// BoundingSpheres returns the merged bounding-sphere column for this
// frame.
func (b *InstanceBatch) BoundingSpheres() []GPUBoundingSphere { return b.boundingSpheres }

// InstanceCount returns the number of instances merged into this batch
// this frame.
func (b *InstanceBatch) InstanceCount() int { return len(b.descriptors) }

// DistinctMeshPartIDs returns the distinct MeshPartIds merged into this
// batch this frame, in ascending order. The Draw Batcher's final indirect
// draw issues one DrawIndexedIndirect per entry, each reading its own
// 36-byte slot of the shared indirect command buffer (spec §4.H "Command
// Emit" writes one GPUIndirectCommand per distinct MeshPartId).
func (b *InstanceBatch) DistinctMeshPartIDs() []uint32 {
	seen := make(map[uint32]struct{}, len(b.subBatchIDs))
	ids := make([]uint32, 0, len(b.subBatchIDs))
	for _, id := range b.subBatchIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IndirectCommandsBuffer returns the Command Emit pass's output buffer for
// the given frame-ring slot, or nil if it has not been allocated yet.
func (b *InstanceBatch) IndirectCommandsBuffer(frameSlot int) *wgpu.Buffer {
	return b.indirectCommands[frameSlot%ring.Depth]
}

// SetIndirectCommandsBuffer wires buf as the indirect-command output for
// frameSlot. Called once by whatever owns GPU buffer allocation for this
// batch (the renderer's bind-group/resource setup, not the Culler Service
// or Draw Batcher themselves — spec §4.G keeps buffer lifetime ownership
// out of the compute-pass logic).
func (b *InstanceBatch) SetIndirectCommandsBuffer(frameSlot int, buf *wgpu.Buffer) {
	b.indirectCommands[frameSlot%ring.Depth] = buf
}

func decodeSphere(b []byte) GPUBoundingSphere {
	var s GPUBoundingSphere
	s.Center[0] = decodeF32(b[0:4])
	s.Center[1] = decodeF32(b[4:8])
	s.Center[2] = decodeF32(b[8:12])
	s.Radius = decodeF32(b[12:16])
	return s
}
