package passes

import (
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
	"github.com/spaghettifunk/simcam/engine/scene"
)

/**
 * @brief Renders the sky, the lit opaque scene and the point light markers
 * into the HDR colour and depth targets at surface resolution. Every later
 * stage reads its output.
 */
type ScenePass struct {
	res *Resources
}

func NewScenePass() *ScenePass {
	return &ScenePass{res: NewResources(NodeScene)}
}

func (p *ScenePass) Name() string { return NodeScene }

func (p *ScenePass) Targets() []targets.Spec {
	return []targets.Spec{
		{
			Name:    ResSceneColor,
			Owner:   NodeScene,
			Format:  md.FormatRGBA16F,
			Usage:   md.UsageColorAttachment | md.UsageSampled,
			Sampler: md.SamplerLinearClamp,
			Scale:   1,
		},
		{
			Name:    ResSceneDepth,
			Owner:   NodeScene,
			Format:  md.FormatD32,
			Usage:   md.UsageDepthAttachment | md.UsageSampled,
			Sampler: md.SamplerNearestClamp,
			Scale:   1,
		},
	}
}

func (p *ScenePass) Nodes() []graph.Node {
	return []graph.Node{{
		Name: NodeScene,
		Uses: []graph.Use{
			graph.BufferUse(ResUniforms, md.StageVertexShader|md.StageFragmentShader, md.AccessUniformRead),
			graph.Read(ResShadowMap, md.LayoutDepthRead, md.StageFragmentShader, md.AccessShaderRead),
			graph.Write(ResSceneColor, md.LayoutColorAttachment, md.StageColorOutput, md.AccessColorAttachmentWrite),
			graph.Write(ResSceneDepth, md.LayoutDepthAttachment,
				md.StageEarlyFragmentTests|md.StageLateFragmentTests,
				md.AccessDepthAttachmentRead|md.AccessDepthAttachmentWrite),
		},
	}}
}

func (p *ScenePass) Create(device md.Device, shaders ShaderSource, slots int) error {
	uniforms := []md.BindingLayout{
		{Slot: md.SkySlotUniforms, Kind: md.BindingUniformBuffer, Stages: md.ShaderStageVertex | md.ShaderStageFragment},
	}
	// the sky is drawn first and leaves depth at the cleared far plane
	err := p.res.CreatePipeline(device, shaders, md.PipelineDesc{
		Program:      md.ProgramSky,
		Kind:         md.PipelineGraphics,
		Bindings:     uniforms,
		ColorFormats: []md.Format{md.FormatRGBA16F},
		DepthFormat:  md.FormatD32,
		CullMode:     md.FaceCullModeNone,
	})
	if err != nil {
		return err
	}
	err = p.res.CreatePipeline(device, shaders, md.PipelineDesc{
		Program:            md.ProgramPointLight,
		Kind:               md.PipelineGraphics,
		ProceduralVertices: true,
		Bindings:           uniforms,
		ColorFormats:       []md.Format{md.FormatRGBA16F},
		DepthFormat:        md.FormatD32,
		DepthTest:          true,
		DepthCompare:       md.CompareLessOrEqual,
		CullMode:           md.FaceCullModeNone,
	})
	if err != nil {
		return err
	}
	err = p.res.CreatePipeline(device, shaders, md.PipelineDesc{
		Program:     md.ProgramScene,
		Kind:        md.PipelineGraphics,
		VertexInput: true,
		Bindings: []md.BindingLayout{
			{Slot: md.SceneSlotUniforms, Kind: md.BindingUniformBuffer, Stages: md.ShaderStageVertex | md.ShaderStageFragment},
			{Slot: md.SceneSlotShadowMap, Kind: md.BindingSampledImage, Stages: md.ShaderStageFragment},
		},
		PushConstantSize: md.ScenePushSize,
		ColorFormats:     []md.Format{md.FormatRGBA16F},
		DepthFormat:      md.FormatD32,
		DepthTest:        true,
		DepthWrite:       true,
		DepthCompare:     md.CompareLessOrEqual,
		CullMode:         md.FaceCullModeBack,
	})
	if err != nil {
		return err
	}
	return p.res.AllocateSets(device, slots, map[string]string{
		"sky":    md.ProgramSky,
		"main":   md.ProgramScene,
		"lights": md.ProgramPointLight,
	})
}

func (p *ScenePass) Bind(env *Env, slot int) error {
	ubo := env.Buffer(slot, ResUniforms)
	return p.res.Rebind(env, slot, map[string][]md.Binding{
		"sky":    {bufferBinding(md.SkySlotUniforms, ubo)},
		"lights": {bufferBinding(md.PointLightSlotUniforms, ubo)},
		"main": {
			bufferBinding(md.SceneSlotUniforms, ubo),
			imageBinding(md.SceneSlotShadowMap, env.Image(ResShadowMap), md.LayoutDepthRead),
		},
	})
}

func (p *ScenePass) Resources() *Resources { return p.res }

func (p *ScenePass) Record(node string, cmd md.CommandBuffer, f *Frame) error {
	extent := f.Env.Targets.Get(ResSceneColor).Extent
	cmd.BeginRenderPass(md.RenderPassBegin{
		Name:   NodeScene,
		Extent: extent,
		Color: []md.Attachment{{
			Image:      f.Env.Image(ResSceneColor),
			Format:     md.FormatRGBA16F,
			Load:       md.LoadOperationClear,
			Store:      md.StoreOperationStore,
			ClearColor: math.NewVec4(0, 0, 0, 1),
			Layout:     md.LayoutColorAttachment,
		}},
		Depth: &md.Attachment{
			Image:      f.Env.Image(ResSceneDepth),
			Format:     md.FormatD32,
			Load:       md.LoadOperationClear,
			Store:      md.StoreOperationStore,
			ClearDepth: 1,
			Layout:     md.LayoutDepthAttachment,
		},
	})
	cmd.BindPipeline(p.res.Pipelines[md.ProgramSky])
	cmd.BindSet(p.res.Set(f.Slot, "sky"))
	cmd.Draw(3)

	cmd.BindPipeline(p.res.Pipelines[md.ProgramScene])
	cmd.BindSet(p.res.Set(f.Slot, "main"))
	for _, d := range f.Visible {
		push := appendMat4(make([]byte, 0, md.ScenePushSize), d.Transform)
		push = appendFloats(push, d.Emissive.X, d.Emissive.Y, d.Emissive.Z, 0)
		cmd.PushConstants(push)
		cmd.DrawMesh(d.Mesh)
	}

	if n := markerCount(f.Inputs); n > 0 {
		cmd.BindPipeline(p.res.Pipelines[md.ProgramPointLight])
		cmd.BindSet(p.res.Set(f.Slot, "lights"))
		cmd.Draw(uint32(n) * md.PointLightMarkerVertices)
	}
	cmd.EndRenderPass()
	return nil
}

func markerCount(in *FrameInputs) int {
	if in == nil {
		return 0
	}
	return math.Min(len(in.PointLights), scene.MaxPointLights)
}

func (p *ScenePass) Destroy(device md.Device) {
	p.res.Destroy(device)
}

/**
 * @brief Returns the drawables whose bounding spheres intersect the camera frustum.
 */
func CullDrawables(in *FrameInputs) []scene.Drawable {
	frustum := scene.NewFrustum(in.View.Mul(in.Projection))
	visible := make([]scene.Drawable, 0, len(in.Drawables))
	for i := range in.Drawables {
		d := &in.Drawables[i]
		center, radius := d.BoundingSphere()
		if frustum.IntersectsSphere(center, radius) {
			visible = append(visible, *d)
		}
	}
	return visible
}
