// Package staging implements the Per-Instance Staging / Draw Bucket
// (spec §4.E): one bucket per producer thread per frame, collecting raw
// draw submissions into dense column arrays ready for the Draw Batcher to
// merge into an Instance Batch.
package staging

import (
	"encoding/binary"
	"math"

	"github.com/kestrel-engine/gpuscene/engine/meshreg"
)

// RawDraw is a single draw submission recorded by a producer thread before
// it is resolved into column data.
type RawDraw struct {
	Mesh         string
	Part         uint32
	Material     uint32
	TransformSlot uint32
}

// ChannelParam describes one raw (non-texture) material parameter to be
// copied into an optional per-instance channel.
type ChannelParam struct {
	Hash  uint64
	Bytes []byte
}

// MaterialBlock supplies the per-draw data add() distributes across the
// bucket's dense columns: the per-instance bounding sphere (in local
// space, broadcast by the caller with the mesh part's registered sphere)
// and any optional shader parameters.
type MaterialBlock struct {
	BoundingSphereCenter [3]float32
	BoundingSphereRadius float32
	Params               []ChannelParam
}

// channel is one open-ended optional per-instance payload column, keyed by
// the hash of the parameter it carries (spec §4.E).
type channel struct {
	pushConstantSlot  uint32
	elementStride     uint32
	elementsPerInstance uint32
	bytes             []byte
}

// Descriptor is one row of the dense "descriptors" column: the per-instance
// linkage between a draw, its resolved mesh part, and its transform slot.
type Descriptor struct {
	MeshPart      meshreg.PartId
	Material      uint32
	TransformSlot uint32
	SubBatchID    uint32
}

// Bucket accumulates one producer thread's draws for the current frame.
type Bucket struct {
	draws          []RawDraw
	seenParts      map[meshreg.PartId]struct{}
	descriptors    []Descriptor
	boundingSphere []float32 // 4 floats (xyz + radius) per row
	subBatchIDs    []uint32
	channels       map[uint64]*channel
	registry       *meshreg.Registry
}

// New creates an empty Bucket backed by registry for MeshPartId resolution.
func New(registry *meshreg.Registry) *Bucket {
	return &Bucket{
		seenParts: make(map[meshreg.PartId]struct{}),
		channels:  make(map[uint64]*channel),
		registry:  registry,
	}
}

// Reset clears the bucket for reuse on the next frame, retaining the
// backing slice capacity.
func (b *Bucket) Reset() {
	b.draws = b.draws[:0]
	b.descriptors = b.descriptors[:0]
	b.boundingSphere = b.boundingSphere[:0]
	b.subBatchIDs = b.subBatchIDs[:0]
	for k := range b.seenParts {
		delete(b.seenParts, k)
	}
	for k := range b.channels {
		delete(b.channels, k)
	}
}

// Add resolves the MeshPartId for (mesh, part) — registering it on first
// sight — appends a row to every dense column, and copies each non-texture
// parameter in block into its corresponding optional channel at this row's
// offset (spec §4.E "add(mesh, part, material, block, transform_slot)").
func (b *Bucket) Add(mesh string, part uint32, material uint32, block MaterialBlock, transformSlot uint32) meshreg.PartId {
	entry := meshreg.Entry{
		BoundingSphereCenter: block.BoundingSphereCenter,
		BoundingSphereRadius: block.BoundingSphereRadius,
	}
	id := b.registry.Register(mesh, part, entry)

	b.draws = append(b.draws, RawDraw{Mesh: mesh, Part: part, Material: material, TransformSlot: transformSlot})
	b.seenParts[id] = struct{}{}
	b.descriptors = append(b.descriptors, Descriptor{
		MeshPart:      id,
		Material:      material,
		TransformSlot: transformSlot,
		SubBatchID:    uint32(id),
	})
	b.boundingSphere = append(b.boundingSphere,
		block.BoundingSphereCenter[0], block.BoundingSphereCenter[1], block.BoundingSphereCenter[2], block.BoundingSphereRadius)
	b.subBatchIDs = append(b.subBatchIDs, uint32(id))

	row := len(b.descriptors) - 1
	for _, p := range block.Params {
		ch, ok := b.channels[p.Hash]
		if !ok {
			ch = &channel{elementStride: uint32(len(p.Bytes))}
			b.channels[p.Hash] = ch
		}
		start := row * len(p.Bytes)
		for len(ch.bytes) < start+len(p.Bytes) {
			ch.bytes = append(ch.bytes, make([]byte, len(p.Bytes))...)
		}
		copy(ch.bytes[start:start+len(p.Bytes)], p.Bytes)
		ch.elementsPerInstance = uint32(row + 1)
	}

	return id
}

// Len returns the number of draws recorded this frame.
func (b *Bucket) Len() int { return len(b.draws) }

// UniquePartCount returns the number of distinct MeshPartIds seen this
// frame, used by the batcher to validate against MaxSubBatches.
func (b *Bucket) UniquePartCount() int { return len(b.seenParts) }

// Descriptors returns the dense descriptor column.
func (b *Bucket) Descriptors() []Descriptor { return b.descriptors }

// BoundingSpheres marshals the bounding-sphere column to GPU bytes (16
// bytes per row: center xyz + radius, little-endian float32).
func (b *Bucket) BoundingSpheres() []byte {
	buf := make([]byte, len(b.boundingSphere)*4)
	for i, f := range b.boundingSphere {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// SubBatchIDs returns the dense sub_batch_ids column.
func (b *Bucket) SubBatchIDs() []uint32 { return b.subBatchIDs }

// Channel returns the accumulated bytes for the optional channel keyed by
// hash, or nil if no draw this frame supplied that parameter.
func (b *Bucket) Channel(hash uint64) []byte {
	ch, ok := b.channels[hash]
	if !ok {
		return nil
	}
	return ch.bytes
}
