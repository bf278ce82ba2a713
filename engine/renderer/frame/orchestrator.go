package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/publish"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
)

/**
 * @brief Everything the application hands over for one frame.
 */
type FrameRequest struct {
	Inputs passes.FrameInputs
}

/**
 * @brief What happened to a frame that was submitted.
 */
type FrameResult struct {
	Index   uint64
	Slot    int
	Surface uint32
	/** @brief The exposure the frame was tone mapped with. */
	Exposure float32
	/** @brief The exposure the adaptation is heading to. */
	Target  float32
	Visible int
	Culled  int
}

type Option func(o *Orchestrator)

func WithShaders(shaders passes.ShaderSource) Option {
	return func(o *Orchestrator) {
		o.shaders = shaders
	}
}

// WithSink sets where captured frames go. Captures are only recorded when enabled in the config.
func WithSink(sink publish.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

/**
 * @brief Drives the camera pipeline: owns the frame slots, the off-screen
 * targets and the passes, records one frame at a time in graph order, and
 * rebuilds everything size-dependent when the surface changes.
 */
type Orchestrator struct {
	device  md.Device
	cfg     *config.Config
	shaders passes.ShaderSource
	sink    publish.Sink
	session uuid.UUID

	pipeline *passes.Pipeline
	passes   []passes.Pass
	owners   map[string]passes.Pass
	graph    *graph.Graph
	targets  *targets.Manager
	env      *passes.Env
	slots    []*Slot

	// states is nil right after a rebuild, which selects a first-frame plan.
	states graph.States

	frameIndex uint64
	current    int
	exposure   passes.ExposureState

	requested    md.Extent2D
	resizeGen    uint64
	appliedGen   uint64
	staleSwap    bool
	fenceTimeout time.Duration
}

func New(device md.Device, cfg *config.Config, lens *passes.LensSystem, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		device:       device,
		cfg:          cfg,
		shaders:      passes.NoCode{},
		sink:         publish.Discard{},
		session:      uuid.New(),
		exposure:     passes.NewExposureState(cfg.Exposure),
		requested:    device.SurfaceExtent(),
		fenceTimeout: cfg.Renderer.FenceTimeout.Duration,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.create(lens); err != nil {
		core.LogError(err.Error())
		o.Destroy()
		return nil, err
	}
	core.LogInfo("frame pipeline ready: %d slots, %s exposure feedback, surface %s",
		len(o.slots), cfg.Renderer.ExposureFeedback, o.requested)
	return o, nil
}

func (o *Orchestrator) create(lens *passes.LensSystem) error {
	var err error
	if o.pipeline, err = passes.NewPipeline(o.cfg, lens); err != nil {
		return err
	}
	o.passes = o.pipeline.Passes()
	if o.graph, err = passes.BuildGraph(o.passes); err != nil {
		return err
	}
	o.owners = passes.NodeOwners(o.passes)

	o.targets = targets.NewManager(o.device)
	specs := make(map[string]targets.Spec)
	for _, p := range o.passes {
		for _, s := range p.Targets() {
			specs[s.Name] = s
		}
	}
	for _, name := range o.graph.RebuildOrder() {
		spec, ok := specs[name]
		if !ok {
			continue
		}
		if _, err := o.targets.Register(spec); err != nil {
			return err
		}
		delete(specs, name)
	}
	if len(specs) > 0 {
		return fmt.Errorf("targets registered but never written: %v", specs)
	}

	slots := o.cfg.Renderer.FramesInFlight
	for _, p := range o.passes {
		if err := p.Create(o.device, o.shaders, slots); err != nil {
			return fmt.Errorf("pass %s: %w", p.Name(), err)
		}
	}
	for i := 0; i < slots; i++ {
		s, err := newSlot(o.device, i, o.cfg.Capture.Enabled, o.device.SurfaceExtent())
		if err != nil {
			return err
		}
		o.slots = append(o.slots, s)
	}

	o.env = &passes.Env{
		Device:     o.device,
		Targets:    o.targets,
		Shared:     o.sharedBuffers(),
		Generation: 1,
	}
	o.syncSlotBuffers()
	return o.targets.Recreate(o.device.SurfaceExtent())
}

func (o *Orchestrator) sharedBuffers() map[string]md.BufferHandle {
	shared := make(map[string]md.BufferHandle)
	for name, h := range o.pipeline.Flare.SharedBuffers() {
		shared[name] = h
	}
	for name, h := range o.pipeline.Exposure.SharedBuffers() {
		shared[name] = h
	}
	return shared
}

func (o *Orchestrator) syncSlotBuffers() {
	o.env.Slots = o.env.Slots[:0]
	for _, s := range o.slots {
		o.env.Slots = append(o.env.Slots, s.Buffers)
	}
}

// invalidate marks every binding set stale and forgets the resource states.
func (o *Orchestrator) invalidate() {
	o.env.Generation++
	o.states = nil
}

/**
 * @brief Requests a new surface size. The rebuild happens at the start of the
 * next frame, which is dropped.
 */
func (o *Orchestrator) Resize(width, height uint32) {
	o.requested = md.Extent2D{Width: width, Height: height}
	o.resizeGen++
}

func (o *Orchestrator) rebuildPending() bool {
	return o.resizeGen != o.appliedGen || o.staleSwap
}

/**
 * @brief The stop-the-world resize path: drain the queue, rebuild the surface,
 * the targets and the capture buffers, and invalidate every binding.
 */
func (o *Orchestrator) rebuild() error {
	extent := o.requested
	if extent.IsZero() {
		// minimised; try again once the window has a size
		return core.ErrFrameDropped
	}
	if err := o.drain(); err != nil {
		return err
	}
	if err := o.device.RecreateSurface(extent); err != nil {
		err = fmt.Errorf("recreate surface at %s: %w", extent, err)
		core.LogError(err.Error())
		return err
	}
	// the surface may come back clamped to what the window system allows
	if actual := o.device.SurfaceExtent(); actual != extent {
		core.LogDebug("surface requested at %s, got %s", extent, actual)
		extent = actual
	}
	if err := o.targets.Recreate(extent); err != nil {
		core.LogError(err.Error())
		return err
	}
	if o.cfg.Capture.Enabled {
		for _, s := range o.slots {
			s.destroyCapture(o.device)
			if err := s.createCapture(o.device, extent); err != nil {
				core.LogError(err.Error())
				return err
			}
		}
		o.syncSlotBuffers()
	}
	o.invalidate()
	o.appliedGen = o.resizeGen
	o.staleSwap = false
	core.LogInfo("Resized to %s, booting.", extent)
	return core.ErrFrameDropped
}

// drain waits for the queue to empty and retires every slot.
func (o *Orchestrator) drain() error {
	if err := o.device.WaitIdle(); err != nil {
		err = fmt.Errorf("wait idle: %w", err)
		core.LogError(err.Error())
		return err
	}
	for _, s := range o.slots {
		if err := o.retire(s); err != nil {
			return err
		}
	}
	return nil
}

/**
 * @brief Collects what a completed slot left behind: the lagged exposure
 * readback and the captured image.
 */
func (o *Orchestrator) retire(s *Slot) error {
	if s.readbackPending {
		state, err := o.readExposure(s)
		if err != nil {
			return err
		}
		o.exposure = state
		s.readbackPending = false
	}
	if s.capture == nil {
		return nil
	}
	c := s.capture
	s.capture = nil
	data := make([]byte, captureSize(c.extent))
	if err := o.device.ReadBuffer(s.Buffers.Capture, 0, data); err != nil {
		return fmt.Errorf("capture readback: %w", err)
	}
	err := o.sink.Publish(publish.Frame{
		Sequence:  c.sequence,
		Session:   o.session,
		FrameID:   o.cfg.Capture.FrameID,
		Timestamp: c.timestamp,
		Width:     c.extent.Width,
		Height:    c.extent.Height,
		Stride:    c.extent.Width * 4,
		Encoding:  publish.EncodingBGRA8,
		Data:      data,
	})
	if err != nil {
		core.LogWarn("capture %d not published: %s", c.sequence, err.Error())
	}
	return nil
}

func (o *Orchestrator) readExposure(s *Slot) (passes.ExposureState, error) {
	data := make([]byte, passes.ExposureStateSize)
	if err := o.device.ReadBuffer(s.Buffers.ExposureReadback, 0, data); err != nil {
		return passes.ExposureState{}, fmt.Errorf("exposure readback: %w", err)
	}
	return passes.DecodeExposureState(data)
}

/**
 * @brief Renders one frame. Returns core.ErrFrameDropped, with no GPU work
 * issued, when the surface had to be rebuilt; the caller simply tries again
 * next iteration. Any other error is fatal.
 */
func (o *Orchestrator) RenderFrame(req FrameRequest) (*FrameResult, error) {
	if o.rebuildPending() {
		return nil, o.rebuild()
	}
	slot := o.slots[o.current]

	if err := o.device.WaitFence(slot.InFlight, o.fenceTimeout); err != nil {
		err = fmt.Errorf("slot %d in-flight fence: %w", slot.Index, err)
		core.LogError(err.Error())
		return nil, err
	}
	if err := o.retire(slot); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	surface, err := o.device.AcquireImage(slot.Index)
	if errors.Is(err, core.ErrSurfaceOutOfDate) {
		o.staleSwap = true
		return nil, o.rebuild()
	}
	if err != nil {
		err = fmt.Errorf("acquire: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	for _, p := range o.passes {
		if p.Resources().Stale(o.env, slot.Index) {
			if err := p.Bind(o.env, slot.Index); err != nil {
				core.LogError(err.Error())
				return nil, err
			}
		}
	}

	in := req.Inputs
	visible := passes.CullDrawables(&in)
	lightViewProj := passes.LightViewProjection(in.Sun.Direction, o.cfg.Shadow)
	applied := o.exposure.Current
	uniforms := passes.BuildSceneUniforms(&in, lightViewProj, applied)
	if err := o.device.WriteBuffer(slot.Buffers.Uniforms, 0, uniforms.Encode()); err != nil {
		return nil, o.fatal("uniforms", err)
	}
	lens := o.pipeline.Flare.Lens().Params()
	if err := o.device.WriteBuffer(slot.Buffers.LensParams, 0, lens.Encode()); err != nil {
		return nil, o.fatal("lens parameters", err)
	}

	plan, final := o.graph.Plan(o.states)
	f := &passes.Frame{
		Slot:    slot.Index,
		Index:   o.frameIndex,
		Surface: surface,
		Inputs:  &in,
		Visible: visible,
		Env:     o.env,
	}
	nodes := o.graph.Nodes()

	if o.cfg.Renderer.ExposureFeedback == config.FeedbackSameFrame {
		split := 0
		for i, n := range nodes {
			if n.Name == passes.NodeExposureHost {
				split = i + 1
			}
		}
		if err := o.submit(slot, f, plan, nodes[:split], "compute", md.SubmitInfo{Fence: slot.Compute}, slot.Compute); err != nil {
			return nil, err
		}
		if err := o.device.WaitFence(slot.Compute, o.fenceTimeout); err != nil {
			return nil, o.fatal("exposure fence", err)
		}
		state, err := o.readExposure(slot)
		if err != nil {
			return nil, o.fatal("exposure", err)
		}
		o.exposure = state
		applied = state.Current
		patch := passes.PatchExposure(state.Current, state.Target, state.LastDt)
		if err := o.device.WriteBuffer(slot.Buffers.Uniforms, passes.UniformExposureOffset, patch); err != nil {
			return nil, o.fatal("exposure patch", err)
		}
		nodes = nodes[split:]
	} else {
		slot.readbackPending = true
	}

	info := md.SubmitInfo{Fence: slot.InFlight, WaitSurface: true, SignalPresent: true}
	if err := o.submit(slot, f, plan, nodes, "graphics", info, slot.InFlight); err != nil {
		return nil, err
	}

	if o.cfg.Capture.Enabled && o.frameIndex%max(o.cfg.Capture.Every, 1) == 0 {
		slot.capture = &pendingCapture{sequence: o.frameIndex, timestamp: time.Now(), extent: surface.Extent}
	}

	if err := o.device.Present(surface); err != nil {
		if !errors.Is(err, core.ErrSurfaceOutOfDate) {
			return nil, o.fatal("present", err)
		}
		// the frame was submitted; rebuild before the next one
		o.staleSwap = true
	}

	result := &FrameResult{
		Index:    o.frameIndex,
		Slot:     slot.Index,
		Surface:  surface.Index,
		Exposure: applied,
		Target:   o.exposure.Target,
		Visible:  len(visible),
		Culled:   len(in.Drawables) - len(visible),
	}
	o.states = final
	o.frameIndex++
	o.current = (o.current + 1) % len(o.slots)
	return result, nil
}

/**
 * @brief Records the given nodes into one command buffer, each preceded by
 * its planned barriers, and submits it. The fence is reset only now, so a
 * frame dropped earlier leaves the slot signalled.
 */
func (o *Orchestrator) submit(slot *Slot, f *passes.Frame, plan *graph.Plan, nodes []graph.Node, label string, info md.SubmitInfo, fence md.FenceHandle) error {
	cmd, err := o.device.Begin(slot.Index, fmt.Sprintf("frame %d %s", f.Index, label))
	if err != nil {
		return o.fatal("begin", err)
	}
	for _, n := range nodes {
		if barriers := o.barriers(plan.Before(n.Name), f); len(barriers) > 0 {
			cmd.PipelineBarrier(barriers...)
		}
		if err := o.owners[n.Name].Record(n.Name, cmd, f); err != nil {
			return o.fatal("record "+n.Name, err)
		}
	}
	if err := cmd.End(); err != nil {
		return o.fatal("end", err)
	}
	if err := o.device.ResetFence(fence); err != nil {
		return o.fatal("reset fence", err)
	}
	if err := o.device.Submit(cmd, info); err != nil {
		return o.fatal("submit", err)
	}
	return nil
}

func (o *Orchestrator) barriers(ts []graph.Transition, f *passes.Frame) []md.Barrier {
	out := make([]md.Barrier, 0, len(ts))
	for _, t := range ts {
		b := md.Barrier{
			SrcStage:  t.SrcStage,
			DstStage:  t.DstStage,
			SrcAccess: t.SrcAccess,
			DstAccess: t.DstAccess,
			OldLayout: t.OldLayout,
			NewLayout: t.NewLayout,
		}
		switch {
		case t.Buffer:
			b.Buffer = o.env.Buffer(f.Slot, t.Resource)
		case t.Resource == passes.ResSurface:
			b.Image = f.Surface.Image
		default:
			b.Image = o.env.Image(t.Resource)
		}
		out = append(out, b)
	}
	return out
}

func (o *Orchestrator) fatal(what string, err error) error {
	err = fmt.Errorf("frame %d: %s: %w", o.frameIndex, what, err)
	core.LogError(err.Error())
	return err
}

/**
 * @brief Rebuilds every pipeline and binding set from the shader source, for
 * hot reload. Targets and pass-owned buffers, including the running exposure,
 * are kept.
 */
func (o *Orchestrator) ReloadPipelines(shaders passes.ShaderSource) error {
	if err := o.drain(); err != nil {
		return err
	}
	if shaders != nil {
		o.shaders = shaders
	}
	for _, p := range o.passes {
		p.Resources().Destroy(o.device)
		if err := p.Create(o.device, o.shaders, len(o.slots)); err != nil {
			err = fmt.Errorf("reload pass %s: %w", p.Name(), err)
			core.LogError(err.Error())
			return err
		}
	}
	o.invalidate()
	core.LogInfo("pipelines reloaded")
	return nil
}

/**
 * @brief Replaces the lens system the flare is traced through.
 */
func (o *Orchestrator) SetLensSystem(lens *passes.LensSystem) error {
	if err := lens.Validate(); err != nil {
		return err
	}
	if err := o.drain(); err != nil {
		return err
	}
	if err := o.pipeline.Flare.SetLens(o.device, lens); err != nil {
		core.LogError(err.Error())
		return err
	}
	o.env.Shared = o.sharedBuffers()
	o.invalidate()
	core.LogInfo("lens system %q loaded (%d surfaces)", lens.Name, len(lens.Surfaces))
	return nil
}

// Exposure returns the most recent exposure state read back from the device.
func (o *Orchestrator) Exposure() passes.ExposureState {
	return o.exposure
}

func (o *Orchestrator) Extent() md.Extent2D {
	return o.device.SurfaceExtent()
}

func (o *Orchestrator) Generation() uint64 {
	if o.env == nil {
		return 0
	}
	return o.env.Generation
}

func (o *Orchestrator) Slots() []*Slot {
	return o.slots
}

// Flush waits for all submitted frames and publishes their captures.
func (o *Orchestrator) Flush() error {
	return o.drain()
}

func (o *Orchestrator) Destroy() {
	if err := o.device.WaitIdle(); err != nil {
		core.LogError(err.Error())
	}
	for _, s := range o.slots {
		if err := o.retire(s); err != nil {
			core.LogWarn(err.Error())
		}
		s.destroy(o.device)
	}
	o.slots = nil
	for i := len(o.passes) - 1; i >= 0; i-- {
		o.passes[i].Destroy(o.device)
	}
	o.passes = nil
	if o.targets != nil {
		o.targets.Destroy()
	}
}
