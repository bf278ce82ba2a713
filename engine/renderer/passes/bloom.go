package passes

import (
	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
)

/**
 * @brief Push constants of the bloom programs.
 */
type BloomPush struct {
	Texel     math.Vec2
	Direction math.Vec2
	Radius    float32
	Threshold float32
	Knee      float32
}

func (b BloomPush) Encode() []byte {
	return encodeFloats(b.Texel.X, b.Texel.Y, b.Direction.X, b.Direction.Y, b.Radius, b.Threshold, b.Knee, 0)
}

func DecodeBloomPush(data []byte) BloomPush {
	f := DecodeFloats(data)
	if len(f) < 7 {
		return BloomPush{}
	}
	return BloomPush{
		Texel:     math.NewVec2(f[0], f[1]),
		Direction: math.NewVec2(f[2], f[3]),
		Radius:    f[4],
		Threshold: f[5],
		Knee:      f[6],
	}
}

/**
 * @brief Three sub-passes over two reduced-size targets:
 * extract scene -> A, blur horizontally A -> B, blur vertically B -> A.
 * The composite samples A. No sub-pass reads the target it writes.
 */
type BloomPass struct {
	cfg config.BloomConfig
	res *Resources
}

func NewBloomPass(cfg config.BloomConfig) *BloomPass {
	return &BloomPass{cfg: cfg, res: NewResources("bloom")}
}

func (p *BloomPass) Name() string { return "bloom" }

func (p *BloomPass) Targets() []targets.Spec {
	spec := func(name string) targets.Spec {
		return targets.Spec{
			Name:    name,
			Owner:   "bloom",
			Format:  md.FormatRGBA16F,
			Usage:   md.UsageColorAttachment | md.UsageSampled,
			Sampler: md.SamplerLinearClamp,
			Scale:   p.cfg.Scale,
		}
	}
	return []targets.Spec{spec(ResBloomA), spec(ResBloomB)}
}

func bloomStep(name, src, dst string) graph.Node {
	return graph.Node{
		Name: name,
		Uses: []graph.Use{
			graph.Read(src, md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead),
			graph.Write(dst, md.LayoutColorAttachment, md.StageColorOutput, md.AccessColorAttachmentWrite),
		},
	}
}

func (p *BloomPass) Nodes() []graph.Node {
	return []graph.Node{
		bloomStep(NodeBloomExtract, ResSceneColor, ResBloomA),
		bloomStep(NodeBloomBlurH, ResBloomA, ResBloomB),
		bloomStep(NodeBloomBlurV, ResBloomB, ResBloomA),
	}
}

func (p *BloomPass) Create(device md.Device, shaders ShaderSource, slots int) error {
	layout := []md.BindingLayout{{Slot: md.BloomSlotSource, Kind: md.BindingSampledImage, Stages: md.ShaderStageFragment}}
	for _, program := range []string{md.ProgramBloomExtract, md.ProgramBloomBlur} {
		desc := fullscreenPipeline(program, md.FormatRGBA16F, layout, md.BloomPushSize)
		if err := p.res.CreatePipeline(device, shaders, desc); err != nil {
			return err
		}
	}
	return p.res.AllocateSets(device, slots, map[string]string{
		NodeBloomExtract: md.ProgramBloomExtract,
		NodeBloomBlurH:   md.ProgramBloomBlur,
		NodeBloomBlurV:   md.ProgramBloomBlur,
	})
}

func (p *BloomPass) Bind(env *Env, slot int) error {
	src := func(name string) []md.Binding {
		return []md.Binding{imageBinding(md.BloomSlotSource, env.Image(name), md.LayoutShaderRead)}
	}
	return p.res.Rebind(env, slot, map[string][]md.Binding{
		NodeBloomExtract: src(ResSceneColor),
		NodeBloomBlurH:   src(ResBloomA),
		NodeBloomBlurV:   src(ResBloomB),
	})
}

func (p *BloomPass) Resources() *Resources { return p.res }

func (p *BloomPass) Record(node string, cmd md.CommandBuffer, f *Frame) error {
	extent := f.Env.Targets.Get(ResBloomA).Extent
	push := BloomPush{
		Texel:     extent.Texel(),
		Radius:    float32(p.cfg.Radius),
		Threshold: p.cfg.Threshold,
		Knee:      p.cfg.Knee,
	}
	program := md.ProgramBloomBlur
	dst := ResBloomA
	switch node {
	case NodeBloomExtract:
		program = md.ProgramBloomExtract
	case NodeBloomBlurH:
		push.Direction = math.NewVec2(1, 0)
		dst = ResBloomB
	case NodeBloomBlurV:
		push.Direction = math.NewVec2(0, 1)
	}
	cmd.BeginRenderPass(md.RenderPassBegin{
		Name:   node,
		Extent: extent,
		Color: []md.Attachment{{
			Image:  f.Env.Image(dst),
			Format: md.FormatRGBA16F,
			Load:   md.LoadOperationDontCare,
			Store:  md.StoreOperationStore,
			Layout: md.LayoutColorAttachment,
		}},
	})
	cmd.BindPipeline(p.res.Pipelines[program])
	cmd.BindSet(p.res.Set(f.Slot, node))
	cmd.PushConstants(push.Encode())
	cmd.Draw(3)
	cmd.EndRenderPass()
	return nil
}

func (p *BloomPass) Destroy(device md.Device) {
	p.res.Destroy(device)
}

/**
 * @brief The bright-pass curve. Brightness is the largest channel; below
 * threshold-knee nothing passes, above threshold+knee the excess passes
 * linearly, and a quadratic joins the two.
 */
func SoftThreshold(c math.Vec3, threshold, knee float32) math.Vec3 {
	const eps = 1e-5
	brightness := math.Max(c.X, math.Max(c.Y, c.Z))
	soft := math.Clamp(brightness-threshold+knee, 0, 2*knee)
	soft = soft * soft / (4*knee + eps)
	contribution := math.Max(soft, brightness-threshold) / math.Max(brightness, eps)
	return c.MulScalar(contribution)
}

/**
 * @brief Returns the normalized 1-D Gaussian weights for offsets 0..radius.
 * The full kernel is w[|i|] for i in [-radius, radius] and sums to 1.
 */
func GaussianWeights(radius int) []float32 {
	if radius <= 0 {
		return []float32{1}
	}
	sigma := math.Max(float32(radius)*0.5, 0.5)
	w := make([]float32, radius+1)
	var sum float32
	for i := range w {
		x := float32(i)
		w[i] = math.Exp(-x * x / (2 * sigma * sigma))
		if i == 0 {
			sum += w[i]
		} else {
			sum += 2 * w[i]
		}
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}
