package passes

import (
	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
)

const (
	displayGamma = 2.2
	// Depth values at or beyond this count as sky.
	skyDepth = 0.9999
)

/**
 * @brief Combines scene, bloom and flare, applies exposure and tone mapping,
 * and writes the result into the acquired surface image. When capture is on
 * it also copies the surface into the slot's capture buffer.
 */
type CompositePass struct {
	bloom   config.BloomConfig
	flare   config.FlareConfig
	capture bool
	format  md.Format
	res     *Resources
}

func NewCompositePass(bloom config.BloomConfig, flare config.FlareConfig, capture bool) *CompositePass {
	return &CompositePass{bloom: bloom, flare: flare, capture: capture, res: NewResources(NodeComposite)}
}

func (p *CompositePass) Name() string { return NodeComposite }

func (p *CompositePass) Targets() []targets.Spec { return nil }

func (p *CompositePass) Capture() bool { return p.capture }

func (p *CompositePass) Nodes() []graph.Node {
	nodes := []graph.Node{{
		Name: NodeComposite,
		Uses: []graph.Use{
			graph.BufferUse(ResUniforms, md.StageFragmentShader, md.AccessUniformRead),
			graph.Read(ResSceneColor, md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead),
			graph.Read(ResBloomA, md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead),
			graph.Read(ResSceneDepth, md.LayoutDepthRead, md.StageFragmentShader, md.AccessShaderRead),
			graph.Read(ResFlare, md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead),
			graph.Write(ResSurface, md.LayoutColorAttachment, md.StageColorOutput, md.AccessColorAttachmentWrite),
		},
	}}
	present := graph.Node{
		Name: NodePresent,
		Uses: []graph.Use{
			graph.Read(ResSurface, md.LayoutPresent, md.StageBottomOfPipe, md.AccessNone),
		},
	}
	if p.capture {
		nodes = append(nodes, graph.Node{
			Name: NodeCapture,
			Uses: []graph.Use{
				graph.Read(ResSurface, md.LayoutTransferSrc, md.StageTransfer, md.AccessTransferRead),
				graph.BufferUse(ResCapture, md.StageTransfer, md.AccessTransferWrite),
			},
		})
		present.Uses = append(present.Uses, graph.BufferUse(ResCapture, md.StageHost, md.AccessHostRead))
	}
	return append(nodes, present)
}

func (p *CompositePass) Create(device md.Device, shaders ShaderSource, slots int) error {
	p.format = device.SurfaceFormat()
	err := p.res.CreatePipeline(device, shaders, fullscreenPipeline(md.ProgramComposite, p.format, []md.BindingLayout{
		{Slot: md.CompositeSlotUniforms, Kind: md.BindingUniformBuffer, Stages: md.ShaderStageFragment},
		{Slot: md.CompositeSlotScene, Kind: md.BindingSampledImage, Stages: md.ShaderStageFragment},
		{Slot: md.CompositeSlotBloom, Kind: md.BindingSampledImage, Stages: md.ShaderStageFragment},
		{Slot: md.CompositeSlotDepth, Kind: md.BindingSampledImage, Stages: md.ShaderStageFragment},
		{Slot: md.CompositeSlotFlare, Kind: md.BindingSampledImage, Stages: md.ShaderStageFragment},
	}, md.CompositePushSize))
	if err != nil {
		return err
	}
	return p.res.AllocateSets(device, slots, map[string]string{"main": md.ProgramComposite})
}

func (p *CompositePass) Bind(env *Env, slot int) error {
	return p.res.Rebind(env, slot, map[string][]md.Binding{
		"main": {
			bufferBinding(md.CompositeSlotUniforms, env.Buffer(slot, ResUniforms)),
			imageBinding(md.CompositeSlotScene, env.Image(ResSceneColor), md.LayoutShaderRead),
			imageBinding(md.CompositeSlotBloom, env.Image(ResBloomA), md.LayoutShaderRead),
			imageBinding(md.CompositeSlotDepth, env.Image(ResSceneDepth), md.LayoutDepthRead),
			imageBinding(md.CompositeSlotFlare, env.Image(ResFlare), md.LayoutShaderRead),
		},
	})
}

func (p *CompositePass) Resources() *Resources { return p.res }

func (p *CompositePass) Record(node string, cmd md.CommandBuffer, f *Frame) error {
	switch node {
	case NodeComposite:
		cmd.BeginRenderPass(md.RenderPassBegin{
			Name:   NodeComposite,
			Extent: f.Surface.Extent,
			Color: []md.Attachment{{
				Image:  f.Surface.Image,
				Format: p.format,
				Load:   md.LoadOperationDontCare,
				Store:  md.StoreOperationStore,
				Layout: md.LayoutColorAttachment,
			}},
		})
		cmd.BindPipeline(p.res.Pipelines[md.ProgramComposite])
		cmd.BindSet(p.res.Set(f.Slot, "main"))
		cmd.PushConstants(encodeFloats(p.bloom.Strength, p.flare.Strength))
		cmd.Draw(3)
		cmd.EndRenderPass()
	case NodeCapture:
		cmd.CopyImageToBuffer(f.Surface.Image, f.Env.Buffer(f.Slot, ResCapture))
	case NodePresent:
	}
	return nil
}

func (p *CompositePass) Destroy(device md.Device) {
	p.res.Destroy(device)
}

// ACES is the Narkowicz fit of the ACES filmic curve, per channel.
func ACES(x float32) float32 {
	x = math.Max(x, 0)
	return math.Clamp((x*(2.51*x+0.03))/(x*(2.43*x+0.59)+0.14), 0, 1)
}

/**
 * @brief The display colour of one pixel: bloom and flare are added to the
 * scene radiance, exposure scales the sum, ACES maps it and gamma encodes it.
 */
func ToneMap(sceneColour, bloomColour, flareColour math.Vec3, exposure, bloomStrength, flareStrength float32) math.Vec3 {
	hdr := sceneColour.
		Add(bloomColour.MulScalar(bloomStrength)).
		Add(flareColour.MulScalar(flareStrength)).
		MulScalar(exposure)
	encode := func(c float32) float32 { return math.Pow(ACES(c), 1/displayGamma) }
	return math.NewVec3(encode(hdr.X), encode(hdr.Y), encode(hdr.Z))
}

// SunOcclusion scales the flare by whether the scene depth at the sun is sky.
func SunOcclusion(depthAtSun float32) float32 {
	if depthAtSun >= skyDepth {
		return 1
	}
	return 0
}
