package cull

import "github.com/kestrel-engine/gpuscene/engine/renderer/bind_group_provider"

// HiZPyramid is the Hi-Z Pyramid Builder (spec §4.I): a half-resolution
// R32 float texture with a min-reduced mip chain, rebuilt every frame
// from the opaque pass's depth buffer.
type HiZPyramid struct {
	dispatcher Dispatcher
	bindings   func(mip int) bind_group_provider.BindGroupProvider
	width      int
	height     int
	mipCount   int
}

// NewHiZPyramid creates a pyramid builder sized to cover a depth buffer
// of width×height. mipBindings resolves the bind group for the
// CSDownsample dispatch that produces mip i from mip i-1 (or the source
// depth buffer for mip 0).
func NewHiZPyramid(dispatcher Dispatcher, width, height int, mipBindings func(mip int) bind_group_provider.BindGroupProvider) *HiZPyramid {
	return &HiZPyramid{
		dispatcher: dispatcher,
		bindings:   mipBindings,
		width:      width / 2,
		height:     height / 2,
		mipCount:   HiZMipCount(width, height),
	}
}

// MipCount returns the number of mips in the pyramid.
func (h *HiZPyramid) MipCount() int { return h.mipCount }

// Build dispatches CSDownsample once per mip level, 8×8 threads/group,
// each mip transitioning individually to non-pixel-shader-resource
// before the next mip reads it (spec §4.I). The pyramid produced this
// call is the one the next frame's Visibility pass samples.
func (h *HiZPyramid) Build() {
	w, height := h.width, h.height
	for mip := 0; mip < h.mipCount; mip++ {
		groupsX := uint32((w + 7) / 8)
		groupsY := uint32((height + 7) / 8)
		h.dispatcher.DispatchCompute(PipelineHiZDownsample, h.bindings(mip), [3]uint32{groupsX, groupsY, 1})
		w = (w + 1) / 2
		height = (height + 1) / 2
	}
}
