// Package bindless implements the engine's single shader-visible descriptor
// table: every GPU buffer or texture view in use by the renderer core is
// addressed by a stable 32-bit index instead of a bound resource slot.
package bindless

import (
	"fmt"
	"sync"

	"github.com/kestrel-engine/gpuscene/engine/ring"
)

// InFlightFrames is the number of frame-ring copies the engine keeps
// resident (see engine/ring). A released index is not reissued until
// InFlightFrames+1 frames have elapsed since the release, so no in-flight
// frame can still be reading through it.
const InFlightFrames = ring.Depth

// Index is an opaque handle a shader uses to look up a resource view from
// the shader-visible descriptor heap.
type Index uint32

// pendingRelease records an index that has been freed by the CPU but may
// still be referenced by a frame already submitted to the GPU.
type pendingRelease struct {
	index       Index
	availableAt uint64
}

// Table is the bindless resource table (spec §4.A). It owns one monotonic
// counter and free list per heap; allocation prefers reuse of released
// indices once their in-flight depth has elapsed, and otherwise advances
// the counter. Double-free is rejected in all builds via a live-set check,
// matching the spec's debug-validation requirement.
type Table struct {
	mu      sync.Mutex
	next    Index
	free    []Index
	pending []pendingRelease
	live    map[Index]struct{}
}

// New creates an empty bindless Table.
func New() *Table {
	return &Table{live: make(map[Index]struct{})}
}

// Allocate returns an unused Index, preferring entries already reclaimed by
// Reclaim over growing the monotonic counter. Exhaustion of the 32-bit
// index space is a fatal configuration error and panics, per spec §7.
func (t *Table) Allocate() Index {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx Index
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if t.next == ^Index(0) {
			panic("bindless: index space exhausted")
		}
		idx = t.next
		t.next++
	}
	t.live[idx] = struct{}{}
	return idx
}

// Release marks idx as no longer used by the CPU as of currentFrame. The
// index is not made available to Allocate again until Reclaim is called
// with a currentFrame at least InFlightFrames+1 frames later, honoring the
// invariant that a frame may only read resources through indices valid for
// its own in-flight depth.
//
// Releasing an index that is not currently live panics (double-free).
func (t *Table) Release(idx Index, currentFrame uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.live[idx]; !ok {
		panic(fmt.Sprintf("bindless: double free of index %d", idx))
	}
	delete(t.live, idx)
	t.pending = append(t.pending, pendingRelease{
		index:       idx,
		availableAt: currentFrame + InFlightFrames + 1,
	})
}

// Reclaim moves every pending release whose in-flight depth has elapsed as
// of currentFrame back onto the free list. Call once per frame, typically
// from the frame orchestrator's begin-frame step.
func (t *Table) Reclaim(currentFrame uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.pending[:0]
	for _, p := range t.pending {
		if p.availableAt <= currentFrame {
			t.free = append(t.free, p.index)
		} else {
			kept = append(kept, p)
		}
	}
	t.pending = kept
}

// Len returns the number of indices currently allocated and live (not
// counting pending releases).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// IsLive reports whether idx is currently allocated and not yet released.
func (t *Table) IsLive(idx Index) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.live[idx]
	return ok
}
