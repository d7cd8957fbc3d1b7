package scene

import (
	"github.com/kestrel-engine/gpuscene/common"
	"github.com/kestrel-engine/gpuscene/engine/batch"
	"github.com/kestrel-engine/gpuscene/engine/bindless"
	"github.com/kestrel-engine/gpuscene/engine/camera"
	"github.com/kestrel-engine/gpuscene/engine/cull"
	"github.com/kestrel-engine/gpuscene/engine/light"
	"github.com/kestrel-engine/gpuscene/engine/meshreg"
	"github.com/kestrel-engine/gpuscene/engine/orchestrator"
	"github.com/kestrel-engine/gpuscene/engine/renderer"
	"github.com/kestrel-engine/gpuscene/engine/renderer/bind_group_provider"
	"github.com/kestrel-engine/gpuscene/engine/ring"
	"github.com/kestrel-engine/gpuscene/engine/staging"
	"github.com/kestrel-engine/gpuscene/engine/terrain"
	"github.com/kestrel-engine/gpuscene/engine/transform"
)

// gpuBatchKey is the single BatchKey every GPU-driven producer draw routes
// into. A scene needing several material.effect batches on this path can
// widen EnqueueGPUDraw to take a caller-supplied key; today's orchestrator
// wiring issues one opaque batch per frame.
const gpuBatchKey = "gpu_driven.opaque"

// GPUDrivenOption configures a GPUDrivenPipeline at construction time.
type GPUDrivenOption func(*GPUDrivenPipeline)

// WithHiZ attaches a Hi-Z Pyramid Builder sized to a width×height depth
// buffer, using mipBindings to resolve each mip's downsample bind group
// (spec §4.I). Without this option the orchestrator's Hi-Z stage is
// skipped and the Visibility pass runs frustum-only culling.
func WithHiZ(width, height int, mipBindings func(mip int) bind_group_provider.BindGroupProvider) GPUDrivenOption {
	return func(p *GPUDrivenPipeline) {
		p.hiZ = cull.NewHiZPyramid(p.r, width, height, mipBindings)
	}
}

// WithSDSM attaches an SDSM Split Analyzer over a width×height depth
// buffer (spec §4.J). Without this option the orchestrator's Shadows stage
// falls back to cull.PracticalSplitScheme every frame.
func WithSDSM(width, height int, bindings bind_group_provider.BindGroupProvider) GPUDrivenOption {
	return func(p *GPUDrivenPipeline) {
		p.sdsm = cull.NewSDSMAnalyzer(p.r, width, height, bindings)
	}
}

// WithTerrain attaches a quadtree whose visible leaves are resolved every
// frame and pushed through the same producer/staging path as any other
// GPU-driven draw (spec §4.K). meshName is the registered mesh the
// quadtree's patches resolve MeshPartIds against, one sub-part per LOD
// level the terrain mesh provides.
func WithTerrain(q *terrain.Quadtree, meshName string, ringInner, ringOuter float32) GPUDrivenOption {
	return func(p *GPUDrivenPipeline) {
		p.terrainTree = q
		p.terrainMesh = meshName
		p.terrainRingInner = ringInner
		p.terrainRingOuter = ringOuter
	}
}

// GPUDrivenPipeline is the per-scene assembly of the bindless table, ring
// upload arena's consumers, Transform Store, Mesh Registry, Draw Bucket,
// Draw Batcher, Culler Service, and Frame Orchestrator into one running
// system (spec §4): an opt-in producer/draw path a Scene exposes alongside
// its existing Animator path, with every stage named in spec §4.L
// registered on the orchestrator in order and actually run once per frame.
type GPUDrivenPipeline struct {
	Bindless     *bindless.Table
	Transforms   *transform.Store
	MeshRegistry *meshreg.Registry

	r   renderer.Renderer
	cam camera.Camera

	bucket  *staging.Bucket
	batcher *batch.Batcher
	cullSvc *cull.Service
	orch    *orchestrator.Orchestrator

	transformsBGP   bind_group_provider.BindGroupProvider
	meshRegistryBGP bind_group_provider.BindGroupProvider

	pipelineKey       string
	shadowPipelineKey string
	drawer            *batch.RendererDrawer
	shadowDrawer      *batch.RendererDrawer

	hiZ  *cull.HiZPyramid
	sdsm *cull.SDSMAnalyzer

	terrainTree      *terrain.Quadtree
	terrainMesh      string
	terrainRingInner float32
	terrainRingOuter float32

	cascadeSplits []float32
}

// NewGPUDrivenPipeline assembles a GPUDrivenPipeline bound to r and cam.
// bindings resolves the bind group for each of the five opaque cull passes
// against an activated Instance Batch; drawBindings resolves the mesh
// provider and draw-time bind groups (instance output, material, camera,
// shadow data) for one MeshPartId's indirect draw; pipelineKey and
// shadowPipelineKey are the render pipelines the final opaque and shadow
// indirect draws submit against, each already registered on r the same way
// an Animator's material pipelines are (spec §4.F-§4.L).
func NewGPUDrivenPipeline(
	r renderer.Renderer,
	cam camera.Camera,
	transforms *transform.Store,
	meshRegistry *meshreg.Registry,
	transformsBGP, meshRegistryBGP bind_group_provider.BindGroupProvider,
	bindings cull.BindingsForBatch,
	pipelineKey, shadowPipelineKey string,
	drawBindings batch.BindGroupsForDraw,
	shadowDrawBindings batch.BindGroupsForDraw,
	opts ...GPUDrivenOption,
) *GPUDrivenPipeline {
	p := &GPUDrivenPipeline{
		Bindless:          bindless.New(),
		Transforms:        transforms,
		MeshRegistry:      meshRegistry,
		r:                 r,
		cam:               cam,
		bucket:            staging.New(meshRegistry),
		batcher:           batch.NewBatcher(),
		transformsBGP:     transformsBGP,
		meshRegistryBGP:   meshRegistryBGP,
		pipelineKey:       pipelineKey,
		shadowPipelineKey: shadowPipelineKey,
		orch:              orchestrator.New(),
	}
	p.cullSvc = cull.New(r, bindings)

	frameSlot := func() int { return p.orch.FrameSlot() }
	p.drawer = batch.NewRendererDrawer(r.DrawCallIndirect, pipelineKey, frameSlot, drawBindings)
	p.shadowDrawer = batch.NewRendererDrawer(r.ShadowDrawCallIndirect, shadowPipelineKey, frameSlot, shadowDrawBindings)

	for _, opt := range opts {
		opt(p)
	}

	p.registerStages()
	return p
}

// registerStages wires the per-frame sequence spec §4.L names: Producers,
// Uploads, Terrain, Opaque, Hi-Z, SDSM, Shadows. Begin Frame's deferred disposal is handled by
// orchestrator.RunFrame itself; the bindless reclaim runs in RunCompute just
// before RunFrame.
func (p *GPUDrivenPipeline) registerStages() {
	p.orch.AddStage(orchestrator.Stage{Name: "Producers", Run: p.runProducers})
	p.orch.AddStage(orchestrator.Stage{Name: "Uploads", Run: p.runUploads})
	p.orch.AddStage(orchestrator.Stage{Name: "Terrain", Run: p.runTerrain})
	p.orch.AddStage(orchestrator.Stage{Name: "Opaque", Run: p.runOpaqueCull})
	p.orch.AddStage(orchestrator.Stage{Name: "Hi-Z", Run: p.runHiZ})
	p.orch.AddStage(orchestrator.Stage{Name: "SDSM", Run: p.runSDSM})
	p.orch.AddStage(orchestrator.Stage{Name: "Shadows", Run: p.runShadowCull})
}

// RunCompute drives the orchestrator's compute-bound stages: merging this
// frame's producer draws, uploading dirty transform/registry/frustum data,
// emitting terrain leaves, and dispatching the opaque, Hi-Z, SDSM, and
// shadow compute passes. Called from Scene.PrepareCompute, inside the
// renderer's BeginComputeFrame/EndComputeFrame bracket, so every compute
// dispatch in this frame's sequence lands in the same submission (spec
// §4.L). The actual indirect draw submissions run later, from DrawOpaque
// and DrawShadows, once the matching graphics/shadow pass is active.
func (p *GPUDrivenPipeline) RunCompute() {
	p.Bindless.Reclaim(p.orch.CurrentFrame())
	p.orch.RunFrame()
}

// DrawOpaque issues this frame's already-culled opaque indirect draws.
// Must be called from within the renderer's BeginFrame/EndFrame bracket,
// after RunCompute has run for the same frame (spec §4.F step 4).
func (p *GPUDrivenPipeline) DrawOpaque() error {
	return p.drawer.DrawIndirect(p.batcher.Batch(gpuBatchKey))
}

// DrawShadows issues this frame's already-culled shadow indirect draws.
// Must be called from within the renderer's BeginShadowFrame/
// BeginShadowPass bracket, after RunCompute has run for the same frame.
func (p *GPUDrivenPipeline) DrawShadows() error {
	return p.shadowDrawer.DrawIndirect(p.batcher.Batch(gpuBatchKey))
}

// EnqueueDraw submits one producer draw into the pipeline's staging
// bucket, resolving its MeshPartId via the Mesh Registry (spec §4.E).
func (p *GPUDrivenPipeline) EnqueueDraw(mesh string, part uint32, material uint32, block staging.MaterialBlock, slot transform.Slot) meshreg.PartId {
	return p.bucket.Add(mesh, part, material, block, uint32(slot))
}

// AllocateTransform reserves a Transform Store slot for a GPU-driven draw.
func (p *GPUDrivenPipeline) AllocateTransform() transform.Slot {
	return p.Transforms.AllocateSlot()
}

// SetTransform updates the world matrix and material id for a GPU-driven
// transform slot.
func (p *GPUDrivenPipeline) SetTransform(slot transform.Slot, model [16]float32, materialID uint32) {
	p.Transforms.SetTransform(slot, model, materialID)
}

// runProducers merges this frame's staging bucket into the opaque Instance
// Batch and resets the bucket for the next frame (spec §4.F step 1).
func (p *GPUDrivenPipeline) runProducers(frame uint64) error {
	p.batcher.Enqueue(gpuBatchKey, p.bucket)
	p.bucket.Reset()
	return nil
}

// runUploads uploads dirty transform slots and a dirty mesh registry, and
// records this frame's FrustumConstants — including the camera's
// one-frame-stale occlusion view-projection matrix the Visibility pass
// tests against the previous frame's Hi-Z pyramid (spec §4.C, §4.D, §4.H).
func (p *GPUDrivenPipeline) runUploads(frame uint64) error {
	p.cullSvc.SetFrameSlot(int(frame))

	if p.transformsBGP != nil {
		slot := int(frame % uint64(ring.Depth))
		dest := make([]byte, int(p.Transforms.Capacity())*80)
		p.Transforms.Upload(slot, dest)
		p.r.WriteBuffers([]bind_group_provider.BufferWrite{
			{Provider: p.transformsBGP, Binding: 0, Offset: 0, Data: dest},
		})
	}

	if p.meshRegistryBGP != nil && p.MeshRegistry.Dirty() {
		p.r.WriteBuffers([]bind_group_provider.BufferWrite{
			{Provider: p.meshRegistryBGP, Binding: 0, Offset: 0, Data: p.MeshRegistry.Marshal()},
		})
	}

	var planes [6][4]float32
	var nearPlane float32
	if p.cam != nil {
		vp := p.cam.ViewProjectionMatrix()
		planes = cull.PlanesFromFrustum(common.ExtractFrustumFromMatrix(vp[:]))
		nearPlane = p.cam.Near()
	}

	hiZMips, hiZW, hiZH := 0, uint32(0), uint32(0)
	if p.hiZ != nil {
		hiZMips = p.hiZ.MipCount()
	}
	if p.cam != nil {
		p.cullSvc.SetFrustumConstants(cull.FrustumConstantsFromCamera(p.cam, planes, nearPlane, 0, hiZW, hiZH, hiZMips))
	}
	return nil
}

// runTerrain resolves the quadtree's visible leaves for the camera's
// current position and enqueues one producer draw per patch (spec §4.K).
func (p *GPUDrivenPipeline) runTerrain(frame uint64) error {
	if p.terrainTree == nil || p.cam == nil {
		return nil
	}
	camPos := [3]float32{}
	if ctrl := p.cam.Controller(); ctrl != nil {
		camPos[0], camPos[1], camPos[2] = ctrl.Position()
	}
	p.terrainTree.MarkSplits(camPos)
	for _, patch := range p.terrainTree.EmitLeaves(camPos, p.terrainRingInner, p.terrainRingOuter) {
		centerX := (patch.WorldBounds[0] + patch.WorldBounds[2]) / 2
		centerZ := (patch.WorldBounds[1] + patch.WorldBounds[3]) / 2
		halfX := (patch.WorldBounds[2] - patch.WorldBounds[0]) / 2
		halfZ := (patch.WorldBounds[3] - patch.WorldBounds[1]) / 2
		radius := halfX
		if halfZ > radius {
			radius = halfZ
		}

		slot := p.AllocateTransform()
		p.SetTransform(slot, identityWithTranslation(centerX, 0, centerZ), 0)
		p.EnqueueDraw(p.terrainMesh, patch.LODLevel, 0, staging.MaterialBlock{
			BoundingSphereCenter: [3]float32{centerX, 0, centerZ},
			BoundingSphereRadius: radius,
		}, slot)
	}
	return nil
}

// runOpaqueCull dispatches the five-pass opaque cull pipeline over the
// Instance Batch activated this frame (spec §4.F step 3, §4.G).
func (p *GPUDrivenPipeline) runOpaqueCull(frame uint64) error {
	b := p.batcher.Batch(gpuBatchKey)
	p.cullSvc.UploadInstanceData(b)
	p.cullSvc.Build(b)
	p.cullSvc.Cull(b)
	return nil
}

// runHiZ rebuilds the Hi-Z pyramid from the previous frame's depth buffer,
// skipped if no Hi-Z pyramid was attached via WithHiZ (spec §4.I).
func (p *GPUDrivenPipeline) runHiZ(frame uint64) error {
	if p.hiZ == nil {
		return nil
	}
	p.hiZ.Build()
	return nil
}

// runSDSM runs the SDSM split analysis for this frame and, with no
// analyzer attached or no valid readback yet, falls back to the practical
// split scheme blending logarithmic splits against the light package's
// fixed cascade percentiles (spec §4.J, §7).
func (p *GPUDrivenPipeline) runSDSM(frame uint64) error {
	var splits []float32
	if p.sdsm != nil {
		p.sdsm.Analyze(frame)
		if s, ok := p.sdsm.Splits(frame); ok {
			splits = s.Splits[:]
		}
	}
	if splits == nil && p.cam != nil {
		splits = cull.PracticalSplitScheme(p.cam.Near(), p.cam.Far(), light.MaxShadowCascades, light.DefaultCascadeSplitPercentiles[:])
	}
	p.cascadeSplits = splits
	return nil
}

// runShadowCull builds this frame's cascade frustums from the splits SDSM
// (or its fallback) produced and dispatches the shadow cull variant for
// each cascade (spec §4.J, §4.G "Shadow variant").
func (p *GPUDrivenPipeline) runShadowCull(frame uint64) error {
	if p.cam == nil || len(p.cascadeSplits) == 0 {
		return nil
	}
	vp := p.cam.ViewProjectionMatrix()
	planes := cull.PlanesFromFrustum(common.ExtractFrustumFromMatrix(vp[:]))
	cascades := cull.BuildCascadeFrustums(planes, p.cam.Near(), p.cam.Far(), p.cascadeSplits)
	p.cullSvc.SetShadowCascadeConstants(cull.BuildShadowCascadeConstants(cascades))

	b := p.batcher.Batch(gpuBatchKey)
	for i := range cascades {
		p.cullSvc.CullShadow(b, i)
	}
	return nil
}

func identityWithTranslation(x, y, z float32) [16]float32 {
	return [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		x, y, z, 1,
	}
}
