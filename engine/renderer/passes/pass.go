package passes

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
	"github.com/spaghettifunk/simcam/engine/scene"
)

// Logical resource names used by the frame graph.
const (
	ResShadowMap        = "shadow.map"
	ResSceneColor       = "scene.color"
	ResSceneDepth       = "scene.depth"
	ResBloomA           = "bloom.a"
	ResBloomB           = "bloom.b"
	ResFlare            = "flare"
	ResSurface          = "surface"
	ResUniforms         = "uniforms"
	ResLensSurfaces     = "lens.surfaces"
	ResLensParams       = "lens.params"
	ResExposureResult   = "exposure.result"
	ResExposureState    = "exposure.state"
	ResExposureReadback = "exposure.readback"
	ResCapture          = "capture"
)

// Node names, in execution order.
const (
	NodeShadow           = "shadow"
	NodeScene            = "scene"
	NodeBloomExtract     = "bloom.extract"
	NodeBloomBlurH       = "bloom.blur_h"
	NodeBloomBlurV       = "bloom.blur_v"
	NodeFlare            = "flare"
	NodeExposureReset    = "exposure.reset"
	NodeExposureReduce   = "exposure.reduce"
	NodeExposureUpdate   = "exposure.update"
	NodeExposureReadback = "exposure.readback"
	NodeExposureHost     = "exposure.host"
	NodeComposite        = "composite"
	NodeCapture          = "capture"
	NodePresent          = "present"
)

/**
 * @brief Source of compiled shader programs.
 */
type ShaderSource interface {
	Load(program string, stage metadata.ShaderStage) ([]byte, error)
}

// NoCode is a ShaderSource for devices that execute programs natively.
type NoCode struct{}

func (NoCode) Load(string, metadata.ShaderStage) ([]byte, error) { return nil, nil }

/**
 * @brief Per-slot buffers owned by the orchestrator.
 */
type SlotBuffers struct {
	Uniforms         metadata.BufferHandle
	LensParams       metadata.BufferHandle
	ExposureReadback metadata.BufferHandle
	Capture          metadata.BufferHandle
}

/**
 * @brief What a pass needs to write its binding sets.
 */
type Env struct {
	Device  metadata.Device
	Targets *targets.Manager
	Slots   []SlotBuffers
	/** @brief Buffers shared by all slots, by logical resource name. */
	Shared map[string]metadata.BufferHandle
	/** @brief Bumped whenever a bound resource is replaced. */
	Generation uint64
}

func (e *Env) Image(name string) metadata.ImageHandle {
	if t := e.Targets.Get(name); t != nil {
		return t.Image
	}
	return 0
}

func (e *Env) Buffer(slot int, name string) metadata.BufferHandle {
	s := e.Slots[slot]
	switch name {
	case ResUniforms:
		return s.Uniforms
	case ResLensParams:
		return s.LensParams
	case ResExposureReadback:
		return s.ExposureReadback
	case ResCapture:
		return s.Capture
	}
	return e.Shared[name]
}

/**
 * @brief The state of one frame while it is being recorded.
 */
type Frame struct {
	Slot    int
	Index   uint64
	Surface metadata.SurfaceImage
	Inputs  *FrameInputs
	/** @brief Drawables that survived frustum culling. */
	Visible []scene.Drawable
	Env     *Env
}

/**
 * @brief One pass of the frame pipeline. A pass owns its targets, pipelines
 * and binding sets, and records the graph nodes it declares.
 */
type Pass interface {
	Name() string
	/** @brief Specs of the off-screen targets the pass writes. */
	Targets() []targets.Spec
	/** @brief The pass's graph nodes, in execution order. */
	Nodes() []graph.Node
	/** @brief Creates pipelines and pass-owned buffers. Fatal on failure. */
	Create(device metadata.Device, shaders ShaderSource, slots int) error
	/** @brief Rewrites the slot's binding sets against the current resources. */
	Bind(env *Env, slot int) error
	Record(node string, cmd metadata.CommandBuffer, frame *Frame) error
	/** @brief The pipelines and binding sets, rebuilt on a pipeline reload. */
	Resources() *Resources
	/** @brief Releases everything the pass created, including pass-owned buffers. */
	Destroy(device metadata.Device)
}

/**
 * @brief The pipelines and per-slot binding sets of a pass, with the
 * generation the sets were last written at.
 */
type Resources struct {
	Name      string
	Pipelines map[string]metadata.PipelineHandle
	/** @brief sets[slot][key] */
	Sets            []map[string]metadata.BindingSetHandle
	BoundGeneration []uint64
}

func NewResources(name string) *Resources {
	return &Resources{
		Name:      name,
		Pipelines: make(map[string]metadata.PipelineHandle),
	}
}

/**
 * @brief Builds the pipeline for a program, loading every stage it needs.
 */
func (r *Resources) CreatePipeline(device metadata.Device, shaders ShaderSource, desc metadata.PipelineDesc) error {
	stages := []struct {
		program string
		stage   metadata.ShaderStage
	}{{desc.Program, metadata.ShaderStageCompute}}
	if desc.Kind == metadata.PipelineGraphics {
		vert := desc.Program
		if !desc.VertexInput && !desc.ProceduralVertices {
			vert = metadata.ProgramFullscreen
		}
		stages = []struct {
			program string
			stage   metadata.ShaderStage
		}{{vert, metadata.ShaderStageVertex}, {desc.Program, metadata.ShaderStageFragment}}
	}
	desc.Code = make(map[metadata.ShaderStage][]byte, len(stages))
	for _, s := range stages {
		code, err := shaders.Load(s.program, s.stage)
		if err != nil {
			return fmt.Errorf("%w: pass %s: %v", core.ErrAssetInvalid, r.Name, err)
		}
		desc.Code[s.stage] = code
	}
	p, err := device.CreatePipeline(desc)
	if err != nil {
		return fmt.Errorf("pass %s: pipeline %s: %w", r.Name, desc.Program, err)
	}
	r.Pipelines[desc.Program] = p
	return nil
}

/**
 * @brief Allocates one binding set per slot for each key, each laid out for
 * the given program's pipeline.
 */
func (r *Resources) AllocateSets(device metadata.Device, slots int, layout map[string]string) error {
	r.Sets = make([]map[string]metadata.BindingSetHandle, slots)
	r.BoundGeneration = make([]uint64, slots)
	for s := 0; s < slots; s++ {
		r.Sets[s] = make(map[string]metadata.BindingSetHandle, len(layout))
		for key, program := range layout {
			set, err := device.CreateBindingSet(r.Pipelines[program])
			if err != nil {
				return fmt.Errorf("pass %s: binding set %s: %w", r.Name, key, err)
			}
			r.Sets[s][key] = set
		}
	}
	return nil
}

// Stale reports whether the slot's sets were written before the current generation.
func (r *Resources) Stale(env *Env, slot int) bool {
	return r.BoundGeneration[slot] != env.Generation
}

/**
 * @brief Writes bindings into the slot's sets and marks them current.
 */
func (r *Resources) Rebind(env *Env, slot int, bindings map[string][]metadata.Binding) error {
	for key, b := range bindings {
		set, ok := r.Sets[slot][key]
		if !ok {
			return fmt.Errorf("pass %s: no binding set %q", r.Name, key)
		}
		if err := env.Device.UpdateBindingSet(set, b); err != nil {
			return fmt.Errorf("pass %s: binding set %s: %w", r.Name, key, err)
		}
	}
	r.BoundGeneration[slot] = env.Generation
	return nil
}

func (r *Resources) Set(slot int, key string) metadata.BindingSetHandle {
	return r.Sets[slot][key]
}

func (r *Resources) Destroy(device metadata.Device) {
	for _, sets := range r.Sets {
		for _, s := range sets {
			device.DestroyBindingSet(s)
		}
	}
	r.Sets = nil
	r.BoundGeneration = nil
	for name, p := range r.Pipelines {
		device.DestroyPipeline(p)
		delete(r.Pipelines, name)
	}
}

func imageBinding(slot uint32, image metadata.ImageHandle, layout metadata.ImageLayout) metadata.Binding {
	return metadata.Binding{Slot: slot, Image: image, Layout: layout}
}

func bufferBinding(slot uint32, buffer metadata.BufferHandle) metadata.Binding {
	return metadata.Binding{Slot: slot, Buffer: buffer}
}

func fullscreenPipeline(program string, format metadata.Format, bindings []metadata.BindingLayout, push uint32) metadata.PipelineDesc {
	return metadata.PipelineDesc{
		Program:          program,
		Kind:             metadata.PipelineGraphics,
		Bindings:         bindings,
		PushConstantSize: push,
		ColorFormats:     []metadata.Format{format},
		CullMode:         metadata.FaceCullModeNone,
	}
}
