// Package transform implements the Transform Store (spec §4.C): a
// fixed-capacity dense array mapping entity to world matrix, with
// per-frame-ring dirty tracking so only changed slots are re-uploaded.
package transform

import (
	"fmt"
	"sync"

	"github.com/kestrel-engine/gpuscene/engine/ring"
)

// DefaultCapacity is the default number of transform slots (spec §6,
// MaxSlots).
const DefaultCapacity = 100000

// Slot is a 32-bit index into the Transform Store.
type Slot uint32

// Store is a fixed-capacity dense array of model matrices and material ids,
// with one dirty bitset per frame-ring slot. Writes are idempotent; reads
// are lock-free in the sense that Upload only ever touches its own frame's
// dirty bits while readers sample committed GPU data from a prior frame.
type Store struct {
	mu         sync.RWMutex
	capacity   uint32
	nextSlot   uint32
	freeSlots  []Slot
	transforms [][16]float32
	materialID []uint32
	dirty      [ring.Depth][]bool
	anyDirty   [ring.Depth]bool
}

// New creates a Store with room for capacity slots.
func New(capacity uint32) *Store {
	s := &Store{
		capacity:   capacity,
		transforms: make([][16]float32, capacity),
		materialID: make([]uint32, capacity),
	}
	for i := range s.dirty {
		s.dirty[i] = make([]bool, capacity)
	}
	return s
}

// AllocateSlot reserves a slot for an entity's first draw and marks it
// dirty in every frame-ring slot, so its initial value is uploaded exactly
// once per ring copy. Exhausting the store's capacity is a fatal
// configuration error (spec §4.C) and panics.
func (s *Store) AllocateSlot() Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var slot Slot
	if n := len(s.freeSlots); n > 0 {
		slot = s.freeSlots[n-1]
		s.freeSlots = s.freeSlots[:n-1]
	} else {
		if s.nextSlot >= s.capacity {
			panic(fmt.Sprintf("transform: exceeded MaxSlots (%d)", s.capacity))
		}
		slot = Slot(s.nextSlot)
		s.nextSlot++
	}
	s.markDirtyLocked(slot)
	return slot
}

// ReleaseSlot returns slot to the free list on entity destruction. The slot
// may be reallocated to a different entity on a subsequent AllocateSlot
// call; callers are responsible for not referencing the old entity's slot
// afterwards.
func (s *Store) ReleaseSlot(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeSlots = append(s.freeSlots, slot)
}

// SetTransform writes m (already pre-transposed for the shader) to slot and
// marks it dirty in all frame-ring slots. A slot beyond the allocator's
// current high-water mark is a silent no-op, per spec §4.C.
func (s *Store) SetTransform(slot Slot, m [16]float32, materialID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint32(slot) >= s.nextSlot {
		return
	}
	s.transforms[slot] = m
	s.materialID[slot] = materialID
	s.markDirtyLocked(slot)
}

func (s *Store) markDirtyLocked(slot Slot) {
	for i := range s.dirty {
		s.dirty[i][slot] = true
		s.anyDirty[i] = true
	}
}

// Upload copies this frame's dirty slots into dest (a caller-owned byte
// buffer large enough for capacity GPUTransformSlot entries) and clears
// only frameSlot's dirty bits, leaving the other ring copies' dirty state
// untouched (spec §3 invariant, §8 "Dirty discipline").
func (s *Store) Upload(frameSlot int, dest []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.anyDirty[frameSlot] {
		return
	}
	const entrySize = 80
	for i := uint32(0); i < s.nextSlot; i++ {
		if !s.dirty[frameSlot][i] {
			continue
		}
		g := GPUTransformSlot{Model: s.transforms[i], MaterialID: s.materialID[i]}
		copy(dest[int(i)*entrySize:], g.Marshal())
		s.dirty[frameSlot][i] = false
	}
	s.anyDirty[frameSlot] = false
}

// IsDirty reports whether slot has a pending write for frameSlot. Exposed
// for tests.
func (s *Store) IsDirty(frameSlot int, slot Slot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty[frameSlot][slot]
}

// Transform returns the current matrix and material id stored at slot.
func (s *Store) Transform(slot Slot) ([16]float32, uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transforms[slot], s.materialID[slot]
}

// Capacity returns the store's fixed slot capacity.
func (s *Store) Capacity() uint32 {
	return s.capacity
}
