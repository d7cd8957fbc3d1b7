package batch

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kestrel-engine/gpuscene/engine/renderer/bind_group_provider"
)

// indirectCommandStride is GPUIndirectCommand's marshaled size; the
// WebGPU DrawIndexedIndirect args block it wraps starts at byte 16 within
// each 36-byte slot (MeshPartID, ChannelBase, VisibleIndicesBase, pad).
const indirectCommandStride = 36
const indirectArgsOffset = 16

// IndirectDrawFunc matches both renderer.Renderer.DrawCallIndirect and
// renderer.Renderer.ShadowDrawCallIndirect, letting one RendererDrawer
// implementation serve either the opaque or the shadow pass depending on
// which method the caller closes over.
type IndirectDrawFunc func(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, indirectBuffer *wgpu.Buffer, indirectOffset uint64, bindGroups []bind_group_provider.BindGroupProvider) error

// BindGroupsForDraw resolves the per-MeshPartId bind groups (instance
// output, material, camera, etc.) for one indirect draw against batch at
// frameSlot.
type BindGroupsForDraw func(b *InstanceBatch, frameSlot int, meshPartID uint32) (meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider)

// RendererDrawer implements Drawer by issuing one indirect draw per
// distinct MeshPartId merged into the batch this frame, each reading its
// own 36-byte command slot from the shared indirect buffer the Command
// Emit compute pass wrote (spec §4.F step 4, §4.G pass 5).
type RendererDrawer struct {
	draw        IndirectDrawFunc
	pipelineKey string
	frameSlot   func() int
	bindGroups  BindGroupsForDraw
}

// NewRendererDrawer creates a Drawer that issues draws against pipelineKey
// via draw, reading the current frame-ring slot from frameSlot and
// resolving each draw's mesh provider and bind groups via bindGroups.
func NewRendererDrawer(draw IndirectDrawFunc, pipelineKey string, frameSlot func() int, bindGroups BindGroupsForDraw) *RendererDrawer {
	return &RendererDrawer{draw: draw, pipelineKey: pipelineKey, frameSlot: frameSlot, bindGroups: bindGroups}
}

// DrawIndirect issues one indirect draw per distinct MeshPartId in batch,
// in ascending MeshPartId order. A nil indirect-commands buffer for the
// current frame slot is a silent no-op — the buffer is allocated by
// whatever owns GPU resource setup for this batch, which may not have run
// yet on the first frames a batch is activated.
func (d *RendererDrawer) DrawIndirect(batch *InstanceBatch) error {
	slot := d.frameSlot()
	indBuf := batch.IndirectCommandsBuffer(slot)
	if indBuf == nil {
		return nil
	}

	for _, meshPartID := range batch.DistinctMeshPartIDs() {
		meshProvider, bindGroups := d.bindGroups(batch, slot, meshPartID)
		if meshProvider == nil {
			continue
		}
		offset := uint64(meshPartID)*indirectCommandStride + indirectArgsOffset
		if err := d.draw(d.pipelineKey, meshProvider, indBuf, offset, bindGroups); err != nil {
			return err
		}
	}
	return nil
}
