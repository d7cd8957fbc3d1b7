// Package cull implements the Culler Service, the Hi-Z Pyramid Builder,
// and the SDSM Split Analyzer (spec §4.H, §4.I, §4.J): the ten compute
// PSOs that turn a merged Instance Batch into visibility flags, a
// histogram, scatter offsets, and indirect draw commands.
package cull

import (
	"math"

	"github.com/kestrel-engine/gpuscene/engine/batch"
	"github.com/kestrel-engine/gpuscene/engine/ring"
	"github.com/kestrel-engine/gpuscene/engine/renderer/bind_group_provider"
)

// Pipeline keys the Culler Service registers at startup, one per compute
// PSO named in spec §4.H.
const (
	PipelineVisibility       = "cull.visibility"
	PipelineVisibilityShadow = "cull.visibility_shadow"
	PipelineHistogram        = "cull.histogram"
	PipelinePrefixSum        = "cull.histogram_prefix_sum"
	PipelineScatter          = "cull.global_scatter"
	PipelineCommandEmit      = "cull.command_emit"
	PipelineHiZDownsample    = "cull.hiz_downsample"
	PipelineDepthReduce      = "cull.depth_reduce"
	PipelineDepthHistogram   = "cull.depth_histogram"
	PipelineComputeSplits    = "cull.compute_splits"
)

const visibilityGroupSize = 256
const histogramGroupSize = 64
const scatterGroupSize = 256
const commandEmitGroupSize = 64

// Dispatcher is the subset of the renderer's surface the Culler Service
// needs to run compute passes (spec §6 "GPU API contract").
type Dispatcher interface {
	DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32)
}

// BindingsForBatch supplies the bind group for each of the five opaque
// cull passes run against one Instance Batch this frame. The orchestrator
// wires this from the batch's own buffers plus the shared bindless table,
// transform store, and mesh registry — the Culler Service itself holds no
// opinion on how bind groups are constructed.
type BindingsForBatch func(b *batch.InstanceBatch, frameSlot int, pass string) bind_group_provider.BindGroupProvider

// Service is the Culler Service (spec §4.H): it owns the per-frame-ring
// FrustumConstants and ShadowCascadeConstants, drives the five-pass
// compute pipeline over an activated Instance Batch, and satisfies
// batch.Cullable.
type Service struct {
	dispatcher Dispatcher
	bindings   BindingsForBatch
	frameSlot  int

	frustumConstants [ring.Depth]GPUFrustumConstants
	cascadeConstants [ring.Depth]GPUShadowCascadeConstants

	cullStatsRing  [ring.Depth][2]uint32
	cullStatsFrame [ring.Depth]uint64 // frame+1 each slot was last recorded for, 0 if never
}

// New creates a Culler Service bound to dispatcher for issuing compute
// passes and bindings for resolving each pass's bind group.
func New(dispatcher Dispatcher, bindings BindingsForBatch) *Service {
	return &Service{dispatcher: dispatcher, bindings: bindings}
}

// SetFrameSlot selects which frame-ring slot subsequent calls read and
// write, set once per frame by the Frame Orchestrator.
func (s *Service) SetFrameSlot(slot int) { s.frameSlot = slot % ring.Depth }

// SetFrustumConstants stores this frame's FrustumConstants, to be
// uploaded by the Draw Batcher alongside instance data (spec §4.F step
// 2).
func (s *Service) SetFrustumConstants(c GPUFrustumConstants) {
	s.frustumConstants[s.frameSlot] = c
}

// FrustumConstants returns the FrustumConstants recorded for the current
// frame slot.
func (s *Service) FrustumConstants() GPUFrustumConstants {
	return s.frustumConstants[s.frameSlot]
}

// SetShadowCascadeConstants stores this frame's cascade plane blocks.
func (s *Service) SetShadowCascadeConstants(c GPUShadowCascadeConstants) {
	s.cascadeConstants[s.frameSlot] = c
}

// UploadInstanceData is a no-op hook point satisfying batch.Cullable; the
// actual buffer write is performed by the Draw Batcher via the ring
// upload arena (spec §4.F step 2-3), the Culler Service does not own
// instance data itself.
func (s *Service) UploadInstanceData(b *batch.InstanceBatch) {}

// Build ensures the Mesh Registry dependency for b's mesh parts has been
// uploaded. The registry itself tracks its own dirty flag; Build is the
// hook point the Draw Batcher calls before Cull (spec §4.F step 3
// "build (ensures mesh registry uploaded)").
func (s *Service) Build(b *batch.InstanceBatch) {}

// Cull runs the five-pass opaque pipeline over b: Visibility → Histogram
// → Histogram Prefix Sum → Global Scatter → Command Emit, each separated
// by an implicit UAV barrier enforced by the renderer's compute pass
// encoding (spec §4.G).
func (s *Service) Cull(b *batch.InstanceBatch) {
	n := b.InstanceCount()
	if n == 0 {
		return
	}

	groups := func(count, groupSize int) [3]uint32 {
		return [3]uint32{uint32((count + groupSize - 1) / groupSize), 1, 1}
	}

	s.dispatcher.DispatchCompute(PipelineVisibility, s.bindings(b, s.frameSlot, PipelineVisibility), groups(n, visibilityGroupSize))
	s.dispatcher.DispatchCompute(PipelineHistogram, s.bindings(b, s.frameSlot, PipelineHistogram), groups(n, histogramGroupSize))
	s.dispatcher.DispatchCompute(PipelinePrefixSum, s.bindings(b, s.frameSlot, PipelinePrefixSum), [3]uint32{1, 1, 1})
	s.dispatcher.DispatchCompute(PipelineScatter, s.bindings(b, s.frameSlot, PipelineScatter), groups(n, scatterGroupSize))
	s.dispatcher.DispatchCompute(PipelineCommandEmit, s.bindings(b, s.frameSlot, PipelineCommandEmit), groups(batch.MaxSubBatches, commandEmitGroupSize))
}

// CullShadow runs the shadow variant of the pipeline (Shadow-Visibility
// replaces Visibility; passes 2-5 are identical) against cascade's plane
// block (spec §4.G "Shadow variant").
func (s *Service) CullShadow(b *batch.InstanceBatch, cascade int) {
	n := b.InstanceCount()
	if n == 0 {
		return
	}
	groups := func(count, groupSize int) [3]uint32 {
		return [3]uint32{uint32((count + groupSize - 1) / groupSize), 1, 1}
	}
	s.dispatcher.DispatchCompute(PipelineVisibilityShadow, s.bindings(b, s.frameSlot, PipelineVisibilityShadow), groups(n, visibilityGroupSize))
	s.dispatcher.DispatchCompute(PipelineHistogram, s.bindings(b, s.frameSlot, PipelineHistogram), groups(n, histogramGroupSize))
	s.dispatcher.DispatchCompute(PipelinePrefixSum, s.bindings(b, s.frameSlot, PipelinePrefixSum), [3]uint32{1, 1, 1})
	s.dispatcher.DispatchCompute(PipelineScatter, s.bindings(b, s.frameSlot, PipelineScatter), groups(n, scatterGroupSize))
	s.dispatcher.DispatchCompute(PipelineCommandEmit, s.bindings(b, s.frameSlot, PipelineCommandEmit), groups(batch.MaxSubBatches, commandEmitGroupSize))
}

// RecordCullStats stores the visible/occluded counters produced by frame
// f into the 3-buffer readback ring at slot f%N (spec §4.H "Cull-stats
// readback").
func (s *Service) RecordCullStats(frame uint64, visible, occluded uint32) {
	s.cullStatsRing[frame%ring.Depth] = [2]uint32{visible, occluded}
	s.cullStatsFrame[frame%ring.Depth] = frame + 1
}

// ReadCullStats returns the stats recorded two frames ago relative to
// frame, per the spec's "stats read on frame f are from frame f-2". It
// returns zeros and false if no stats were recorded for frame f-2
// (always the case within the first two frames).
func (s *Service) ReadCullStats(frame uint64) (visible, occluded uint32, ok bool) {
	if frame < 2 || s.cullStatsFrame[(frame-2)%ring.Depth] != frame-1 {
		return 0, 0, false
	}
	stats := s.cullStatsRing[(frame-2)%ring.Depth]
	return stats[0], stats[1], true
}

// HiZMipCount returns the mip count for a Hi-Z pyramid covering a
// depth buffer of size w×h, per spec §6 "Hi-Z mips = 1 + floor(log2(max(w,h)/2))".
func HiZMipCount(w, h int) int {
	maxDim := w
	if h > maxDim {
		maxDim = h
	}
	return 1 + int(math.Floor(math.Log2(float64(maxDim)/2)))
}
