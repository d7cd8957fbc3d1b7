// Package arena implements the engine's ring upload arena: a single
// persistently-mapped host-visible buffer that producers allocate from by
// advancing a head pointer, with space reclaimed only after the copy
// queue's fence confirms the oldest live allocation has been consumed.
package arena

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// DefaultCapacity is the default size of the upload arena in bytes (256 MiB),
// matching spec §4.B.
const DefaultCapacity int64 = 256 << 20

// region describes one live allocation inside the ring, in the order it was
// made. Regions retire strictly in FIFO order as their tagged frame's
// in-flight depth elapses.
type region struct {
	start, size int64
	frame       uint64
}

// Arena is the ring upload arena (spec §4.B). A single mutex serializes
// allocation; copy submission against the returned offsets is the caller's
// responsibility and happens outside the lock.
type Arena struct {
	mu       sync.Mutex
	buf      *wgpu.Buffer
	capacity int64
	head     int64
	regions  []region
}

// New wraps buf (which must be host-visible and sized capacity bytes) as a
// ring upload arena.
func New(buf *wgpu.Buffer, capacity int64) *Arena {
	return &Arena{buf: buf, capacity: capacity}
}

// Buffer returns the underlying GPU buffer backing the arena.
func (a *Arena) Buffer() *wgpu.Buffer {
	return a.buf
}

// Allocate reserves size bytes aligned to alignment, tagged with the frame
// that produced the allocation, and returns the byte offset within the
// arena's buffer. If the allocation would cross the capacity boundary it
// wraps to offset 0, provided no live region remains (every earlier
// allocation has already been reclaimed); otherwise it returns an error (the spec treats this as an
// assertion failure — callers should size the arena generously enough that
// it never fires in practice).
func (a *Arena) Allocate(size, alignment int64, frame uint64) (int64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("arena: invalid allocation size %d", size)
	}
	if alignment <= 0 {
		alignment = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	offset := alignUp(a.head, alignment)
	if offset+size > a.capacity {
		// Wrapping requires the ring to be empty of live regions that would
		// be clobbered by restarting at 0; the tail is whatever remains in
		// a.regions after Reclaim has run.
		if len(a.regions) > 0 {
			return 0, fmt.Errorf("arena: wrap requested with %d live region(s) still pending reclamation", len(a.regions))
		}
		offset = 0
	}
	if offset+size > a.capacity {
		return 0, fmt.Errorf("arena: allocation of %d bytes exceeds capacity %d", size, a.capacity)
	}

	a.head = offset + size
	a.regions = append(a.regions, region{start: offset, size: size, frame: frame})
	return offset, nil
}

// Reclaim releases the tail of the ring: every region tagged with a frame
// whose in-flight depth has elapsed as of currentFrame, in allocation
// order. Call once per frame in response to the copy queue's fence signal.
func (a *Arena) Reclaim(currentFrame uint64, inFlightFrames uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := 0
	for ; i < len(a.regions); i++ {
		if a.regions[i].frame+inFlightFrames+1 > currentFrame {
			break
		}
	}
	a.regions = a.regions[i:]
}

// LiveBytes returns the number of bytes currently held by unreclaimed
// regions. Exposed for tests and diagnostics.
func (a *Arena) LiveBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, r := range a.regions {
		total += r.size
	}
	return total
}

func alignUp(v, alignment int64) int64 {
	return (v + alignment - 1) &^ (alignment - 1)
}
