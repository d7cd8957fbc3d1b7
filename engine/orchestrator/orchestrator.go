// Package orchestrator implements the Frame Orchestrator (spec §4.L): the
// strict per-frame ordering of deferred disposal, producers, uploads,
// terrain, opaque culling, Hi-Z, SDSM, and shadows, all on one direct
// queue.
package orchestrator

import (
	"log"

	"github.com/kestrel-engine/gpuscene/engine/ring"
)

// Disposable is any GPU resource the deferred-disposal queue can release.
// *wgpu.Buffer and *wgpu.Texture both satisfy this via their Release
// method; it is kept as a minimal interface here so the orchestrator does
// not need to import wgpu just to shuttle opaque handles.
type Disposable interface {
	Release()
}

type disposalEntry struct {
	resource  Disposable
	disposeAt uint64
}

// Stage is one named step of the per-frame sequence, run in registration
// order. A stage returning an error is logged as a soft fault; the
// remaining stages of the frame and subsequent frames still run.
type Stage struct {
	Name string
	Run  func(frame uint64) error
}

// Orchestrator sequences the fixed per-frame pipeline described in spec
// §4.L: Begin Frame, Producers, Uploads, Terrain, Opaque, Hi-Z, SDSM,
// Shadows. Stages are supplied by the caller (scene/engine wiring) in the
// order they should run; the orchestrator itself only owns frame
// bookkeeping and the deferred-disposal queue.
type Orchestrator struct {
	currentFrame uint64
	deferred     []disposalEntry
	stages       []Stage
	logRate      int
	softFaults   int
}

// New creates an Orchestrator starting at frame 0.
func New() *Orchestrator {
	return &Orchestrator{}
}

// CurrentFrame returns the frame index the orchestrator is currently
// running or about to run.
func (o *Orchestrator) CurrentFrame() uint64 { return o.currentFrame }

// FrameSlot returns the frame-ring slot (0..N-1) for the current frame.
func (o *Orchestrator) FrameSlot() int { return int(o.currentFrame % ring.Depth) }

// AddStage appends a named step to the end of the per-frame sequence.
// Callers register stages in the exact order spec §4.L names them:
// Producers, Uploads, Terrain, Opaque, Hi-Z, SDSM, Shadows. Begin Frame is
// implicit and always runs first.
func (o *Orchestrator) AddStage(s Stage) {
	o.stages = append(o.stages, s)
}

// DeferDisposal schedules resource for release in the Begin Frame of frame
// o.currentFrame+N+1 (spec §5 "Deferred disposal").
func (o *Orchestrator) DeferDisposal(resource Disposable) {
	o.deferred = append(o.deferred, disposalEntry{resource: resource, disposeAt: o.currentFrame + ring.Depth + 1})
}

// PendingDisposalCount reports how many resources are still awaiting
// release, for tests.
func (o *Orchestrator) PendingDisposalCount() int { return len(o.deferred) }

// beginFrame flushes every deferred-disposal entry whose dispose-at frame
// is at or before the frame now beginning, then advances the frame index
// (spec §4.L step 1).
func (o *Orchestrator) beginFrame() {
	kept := o.deferred[:0]
	for _, d := range o.deferred {
		if d.disposeAt <= o.currentFrame {
			d.resource.Release()
		} else {
			kept = append(kept, d)
		}
	}
	o.deferred = kept
	o.currentFrame++
}

// RunFrame executes Begin Frame followed by every registered stage in
// order. A stage error is logged at a configurable rate (spec §7
// "per-frame soft faults ... single log line at a configurable rate") and
// the frame always continues with the next stage. A stage that panics is
// not recovered; the panic propagates out of RunFrame.
func (o *Orchestrator) RunFrame() {
	o.beginFrame()
	frame := o.currentFrame - 1

	for _, stage := range o.stages {
		if err := stage.Run(frame); err != nil {
			o.logSoftFault(stage.Name, err)
		}
	}
}

// SetLogRate configures soft-fault logging: with rate > 0 only every
// rate-th soft fault, counted across all stages and frames, is logged
// (0 logs every fault).
func (o *Orchestrator) SetLogRate(rate int) { o.logRate = rate }

func (o *Orchestrator) logSoftFault(stage string, err error) {
	o.softFaults++
	if o.logRate > 0 && o.softFaults%o.logRate != 0 {
		return
	}
	log.Printf("orchestrator: stage %q soft fault: %v", stage, err)
}
