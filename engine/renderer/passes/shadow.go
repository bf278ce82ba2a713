package passes

import (
	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
)

/**
 * @brief Renders scene depth from the sun into a fixed-size map. The light
 * frustum is a fixed orthographic box centred on the world origin.
 */
type ShadowPass struct {
	cfg config.ShadowConfig
	res *Resources
}

func NewShadowPass(cfg config.ShadowConfig) *ShadowPass {
	return &ShadowPass{cfg: cfg, res: NewResources(NodeShadow)}
}

func (p *ShadowPass) Name() string { return NodeShadow }

func (p *ShadowPass) Targets() []targets.Spec {
	return []targets.Spec{{
		Name:    ResShadowMap,
		Owner:   NodeShadow,
		Format:  md.FormatD32,
		Usage:   md.UsageDepthAttachment | md.UsageSampled,
		Sampler: md.SamplerNearestClamp,
		Fixed:   md.Extent2D{Width: p.cfg.Resolution, Height: p.cfg.Resolution},
	}}
}

func (p *ShadowPass) Nodes() []graph.Node {
	return []graph.Node{{
		Name: NodeShadow,
		Uses: []graph.Use{
			graph.BufferUse(ResUniforms, md.StageVertexShader, md.AccessUniformRead),
			graph.Write(ResShadowMap, md.LayoutDepthAttachment,
				md.StageEarlyFragmentTests|md.StageLateFragmentTests,
				md.AccessDepthAttachmentRead|md.AccessDepthAttachmentWrite),
		},
	}}
}

func (p *ShadowPass) Create(device md.Device, shaders ShaderSource, slots int) error {
	err := p.res.CreatePipeline(device, shaders, md.PipelineDesc{
		Program:          md.ProgramShadow,
		Kind:             md.PipelineGraphics,
		VertexInput:      true,
		Bindings:         []md.BindingLayout{{Slot: md.ShadowSlotUniforms, Kind: md.BindingUniformBuffer, Stages: md.ShaderStageVertex}},
		PushConstantSize: md.ShadowPushSize,
		DepthFormat:      md.FormatD32,
		DepthTest:        true,
		DepthWrite:       true,
		DepthCompare:     md.CompareLessOrEqual,
		CullMode:         md.FaceCullModeNone,
	})
	if err != nil {
		return err
	}
	return p.res.AllocateSets(device, slots, map[string]string{"main": md.ProgramShadow})
}

func (p *ShadowPass) Bind(env *Env, slot int) error {
	return p.res.Rebind(env, slot, map[string][]md.Binding{
		"main": {bufferBinding(md.ShadowSlotUniforms, env.Buffer(slot, ResUniforms))},
	})
}

func (p *ShadowPass) Resources() *Resources { return p.res }

func (p *ShadowPass) Record(node string, cmd md.CommandBuffer, f *Frame) error {
	extent := md.Extent2D{Width: p.cfg.Resolution, Height: p.cfg.Resolution}
	cmd.BeginRenderPass(md.RenderPassBegin{
		Name:   NodeShadow,
		Extent: extent,
		Depth: &md.Attachment{
			Image:      f.Env.Image(ResShadowMap),
			Format:     md.FormatD32,
			Load:       md.LoadOperationClear,
			Store:      md.StoreOperationStore,
			ClearDepth: 1,
			Layout:     md.LayoutDepthAttachment,
		},
	})
	cmd.BindPipeline(p.res.Pipelines[md.ProgramShadow])
	cmd.BindSet(p.res.Set(f.Slot, "main"))
	// Every drawable casts, culling against the camera would drop off-screen casters.
	for i := range f.Inputs.Drawables {
		d := &f.Inputs.Drawables[i]
		cmd.PushConstants(appendMat4(nil, d.Transform))
		cmd.DrawMesh(d.Mesh)
	}
	cmd.EndRenderPass()
	return nil
}

func (p *ShadowPass) Destroy(device md.Device) {
	p.res.Destroy(device)
}

/**
 * @brief Returns the sun's view-projection: an orthographic box of
 * ±HalfExtent looking at the origin from Distance against the light direction.
 */
func LightViewProjection(lightDir math.Vec3, cfg config.ShadowConfig) math.Mat4 {
	l := lightDir.Normalized()
	center := math.NewVec3Zero()
	pos := center.Sub(l.MulScalar(cfg.Distance))
	up := math.NewVec3Up()
	if math.Abs(l.Dot(up)) > 0.999 {
		up = math.NewVec3(0, 0, 1)
	}
	view := math.NewMat4LookAt(pos, center, up)
	h := cfg.HalfExtent
	proj := math.NewMat4Orthographic(-h, h, -h, h, cfg.Near, cfg.Far)
	return view.Mul(proj)
}
