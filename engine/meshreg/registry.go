// Package meshreg implements the Mesh Registry (spec §4.D): a dense integer
// id per (mesh, sub-part) pair, backed by a structure-of-arrays attribute
// table that the indirect command generator reads by MeshPartId.
package meshreg

import "sync"

// PartId is a dense 32-bit id identifying a (mesh, sub-part-index) pair.
// Assigned on first registration.
type PartId uint32

type key struct {
	mesh string
	part uint32
}

// Entry is the CPU-side description of a mesh sub-part supplied at
// registration time; Registry converts it into the GPU-aligned
// GPUMeshPartEntry row.
type Entry struct {
	IndexCount           uint32
	FirstIndex           uint32
	BaseVertex           int32
	PositionBuffer       uint32
	NormalBuffer         uint32
	UVBuffer             uint32
	IndexBuffer          uint32
	BoundingSphereCenter [3]float32
	BoundingSphereRadius float32
}

// Registry maps (mesh, sub-part-index) to a dense PartId and holds the
// structure-of-arrays table of draw attributes the GPU reads by that id.
// Registration is idempotent: registering the same (mesh, part) twice
// returns the same id and does not append a new row.
type Registry struct {
	mu      sync.RWMutex
	ids     map[key]PartId
	entries []GPUMeshPartEntry
	dirty   bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{ids: make(map[key]PartId)}
}

// Register resolves the PartId for (mesh, part), registering a new row on
// first sight. Subsequent calls with the same (mesh, part) are a no-op
// beyond the id lookup.
func (r *Registry) Register(mesh string, part uint32, e Entry) PartId {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{mesh: mesh, part: part}
	if id, ok := r.ids[k]; ok {
		return id
	}

	id := PartId(len(r.entries))
	r.entries = append(r.entries, GPUMeshPartEntry{
		IndexCount:           e.IndexCount,
		FirstIndex:           e.FirstIndex,
		BaseVertex:           e.BaseVertex,
		PositionBuffer:       e.PositionBuffer,
		NormalBuffer:         e.NormalBuffer,
		UVBuffer:             e.UVBuffer,
		IndexBuffer:          e.IndexBuffer,
		BoundingSphereCenter: e.BoundingSphereCenter,
		BoundingSphereRadius: e.BoundingSphereRadius,
	})
	r.ids[k] = id
	r.dirty = true
	return id
}

// Lookup returns the PartId already assigned to (mesh, part), if any.
func (r *Registry) Lookup(mesh string, part uint32) (PartId, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[key{mesh: mesh, part: part}]
	return id, ok
}

// Count returns the number of registered mesh parts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Dirty reports whether entries have been registered since the last call
// to Marshal.
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty
}

// Marshal serializes the full attribute table for re-upload and clears the
// dirty flag. Called before any cull pass that depends on newly registered
// entries (spec §4.D).
func (r *Registry) Marshal() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	const entrySize = 48
	buf := make([]byte, len(r.entries)*entrySize)
	for i := range r.entries {
		copy(buf[i*entrySize:], r.entries[i].Marshal())
	}
	r.dirty = false
	return buf
}

// Entry returns a copy of the registered row for id, for tests and direct
// CPU-side inspection.
func (r *Registry) Entry(id PartId) GPUMeshPartEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}
