package passes

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
)

/**
 * @brief Traces the lens system against the sun into a storage image. The
 * pass keeps no state between frames; it is a function of the lens, the
 * per-frame lens parameters and the frame uniforms.
 */
type LensFlarePass struct {
	cfg      config.FlareConfig
	lens     *LensSystem
	res      *Resources
	surfaces md.BufferHandle
	capacity int
}

func NewLensFlarePass(cfg config.FlareConfig, lens *LensSystem) (*LensFlarePass, error) {
	if err := lens.Validate(); err != nil {
		return nil, err
	}
	return &LensFlarePass{cfg: cfg, lens: lens, res: NewResources(NodeFlare)}, nil
}

func (p *LensFlarePass) Name() string { return NodeFlare }

func (p *LensFlarePass) Lens() *LensSystem { return p.lens }

func (p *LensFlarePass) Targets() []targets.Spec {
	return []targets.Spec{{
		Name:    ResFlare,
		Owner:   NodeFlare,
		Format:  md.FormatRGBA16F,
		Usage:   md.UsageStorage | md.UsageSampled,
		Sampler: md.SamplerLinearClamp,
		Scale:   p.cfg.Scale,
	}}
}

func (p *LensFlarePass) Nodes() []graph.Node {
	return []graph.Node{{
		Name: NodeFlare,
		Uses: []graph.Use{
			graph.BufferUse(ResUniforms, md.StageComputeShader, md.AccessUniformRead),
			graph.BufferUse(ResLensSurfaces, md.StageComputeShader, md.AccessShaderRead),
			graph.BufferUse(ResLensParams, md.StageComputeShader, md.AccessUniformRead),
			graph.Write(ResFlare, md.LayoutGeneral, md.StageComputeShader, md.AccessShaderWrite),
		},
	}}
}

func (p *LensFlarePass) Create(device md.Device, shaders ShaderSource, slots int) error {
	err := p.res.CreatePipeline(device, shaders, md.PipelineDesc{
		Program: md.ProgramLensFlare,
		Kind:    md.PipelineCompute,
		Bindings: []md.BindingLayout{
			{Slot: md.LensSlotUniforms, Kind: md.BindingUniformBuffer, Stages: md.ShaderStageCompute},
			{Slot: md.LensSlotSurfaces, Kind: md.BindingStorageBuffer, Stages: md.ShaderStageCompute},
			{Slot: md.LensSlotParams, Kind: md.BindingUniformBuffer, Stages: md.ShaderStageCompute},
			{Slot: md.LensSlotOutput, Kind: md.BindingStorageImage, Stages: md.ShaderStageCompute},
		},
	})
	if err != nil {
		return err
	}
	if err := p.upload(device); err != nil {
		return err
	}
	return p.res.AllocateSets(device, slots, map[string]string{"main": md.ProgramLensFlare})
}

// upload writes the lens surfaces, reallocating the buffer when it is too small.
func (p *LensFlarePass) upload(device md.Device) error {
	data := p.lens.EncodeSurfaces()
	if p.surfaces == 0 || len(p.lens.Surfaces) > p.capacity {
		if p.surfaces != 0 {
			device.DestroyBuffer(p.surfaces)
		}
		b, err := device.CreateBuffer(md.BufferDesc{
			Name:  ResLensSurfaces,
			Size:  uint64(len(data)),
			Usage: md.BufferUsageStorage | md.BufferUsageHostVisible,
		})
		if err != nil {
			p.surfaces = 0
			return fmt.Errorf("%w: lens surfaces: %v", core.ErrResourceCreation, err)
		}
		p.surfaces = b
		p.capacity = len(p.lens.Surfaces)
	}
	return device.WriteBuffer(p.surfaces, 0, data)
}

/**
 * @brief Replaces the lens system. The device must be idle. The surface
 * buffer may be reallocated, so callers must treat bindings as stale.
 */
func (p *LensFlarePass) SetLens(device md.Device, lens *LensSystem) error {
	if err := lens.Validate(); err != nil {
		return err
	}
	p.lens = lens
	return p.upload(device)
}

func (p *LensFlarePass) SharedBuffers() map[string]md.BufferHandle {
	return map[string]md.BufferHandle{ResLensSurfaces: p.surfaces}
}

func (p *LensFlarePass) Bind(env *Env, slot int) error {
	return p.res.Rebind(env, slot, map[string][]md.Binding{
		"main": {
			bufferBinding(md.LensSlotUniforms, env.Buffer(slot, ResUniforms)),
			bufferBinding(md.LensSlotSurfaces, env.Buffer(slot, ResLensSurfaces)),
			bufferBinding(md.LensSlotParams, env.Buffer(slot, ResLensParams)),
			imageBinding(md.LensSlotOutput, env.Image(ResFlare), md.LayoutGeneral),
		},
	})
}

func (p *LensFlarePass) Resources() *Resources { return p.res }

func (p *LensFlarePass) Record(node string, cmd md.CommandBuffer, f *Frame) error {
	extent := f.Env.Targets.Get(ResFlare).Extent
	gx, gy := extent.Groups(md.LensFlareLocalSize)
	cmd.BindPipeline(p.res.Pipelines[md.ProgramLensFlare])
	cmd.BindSet(p.res.Set(f.Slot, "main"))
	cmd.Dispatch(gx, gy, 1)
	return nil
}

func (p *LensFlarePass) Destroy(device md.Device) {
	p.res.Destroy(device)
	if p.surfaces != 0 {
		device.DestroyBuffer(p.surfaces)
		p.surfaces = 0
	}
}
