package cull

import (
	"math"

	"github.com/kestrel-engine/gpuscene/engine/renderer/bind_group_provider"
)

// SDSMAnalyzer is the SDSM Split Analyzer (spec §4.J): it runs
// CSDepthReduce, CSDepthHistogram, and CSComputeSplits against the depth
// buffer to pick cascade split depths at fixed percentiles, read back two
// frames later.
type SDSMAnalyzer struct {
	dispatcher Dispatcher
	bindings   bind_group_provider.BindGroupProvider
	width      int
	height     int

	splitsRing [3]GPUSDSMSplits
	ringFrame  [3]int64 // frame each ring slot was last written for, -1 if never
}

// NewSDSMAnalyzer creates an analyzer for a depth buffer of size
// width×height, using bindings for all three dispatches.
func NewSDSMAnalyzer(dispatcher Dispatcher, width, height int, bindings bind_group_provider.BindGroupProvider) *SDSMAnalyzer {
	a := &SDSMAnalyzer{dispatcher: dispatcher, bindings: bindings, width: width, height: height}
	a.ringFrame = [3]int64{-1, -1, -1}
	return a
}

// Analyze dispatches the three-pass split analysis for the given frame
// (spec §4.J 1-3), recording the result into the 3-frame readback ring.
func (a *SDSMAnalyzer) Analyze(frame uint64) {
	groupsX := uint32((a.width + 15) / 16)
	groupsY := uint32((a.height + 15) / 16)
	a.dispatcher.DispatchCompute(PipelineDepthReduce, a.bindings, [3]uint32{groupsX, groupsY, 1})
	a.dispatcher.DispatchCompute(PipelineDepthHistogram, a.bindings, [3]uint32{groupsX, groupsY, 1})
	a.dispatcher.DispatchCompute(PipelineComputeSplits, a.bindings, [3]uint32{1, 1, 1})
}

// RecordSplits stores splits produced for frame into the readback ring.
// In production this is populated from a mapped readback buffer two
// frames after Analyze was dispatched; tests call it directly.
func (a *SDSMAnalyzer) RecordSplits(frame uint64, splits GPUSDSMSplits) {
	a.splitsRing[frame%3] = splits
	a.ringFrame[frame%3] = int64(frame)
}

// Splits returns the split depths valid for frame, which is always the
// result computed 2 frames prior (spec §4.J "Readback is 2-frame-latent").
// If no splits were recorded for frame-2, ok is false and callers should
// fall back to logarithmic splits (spec §7).
func (a *SDSMAnalyzer) Splits(frame uint64) (splits GPUSDSMSplits, ok bool) {
	if frame < 2 || a.ringFrame[(frame-2)%3] != int64(frame)-2 {
		return GPUSDSMSplits{}, false
	}
	return a.splitsRing[(frame-2)%3], true
}

// LogarithmicSplits computes the spec's fallback cascade split scheme
// (uniform-to-logarithmic blend is the steady-state SDSM behavior; with
// no histogram data yet, pure logarithmic is used) for near/far planes
// divided into cascadeCount cascades.
func LogarithmicSplits(near, far float32, cascadeCount int) []float32 {
	splits := make([]float32, cascadeCount)
	for i := 1; i <= cascadeCount; i++ {
		p := float64(i) / float64(cascadeCount)
		logSplit := float32(float64(near) * math.Pow(float64(far)/float64(near), p))
		splits[i-1] = (logSplit - near) / (far - near)
	}
	return splits
}
