package software

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
)

type (
	// fragmentProgram prepares a full-screen program for one draw.
	fragmentProgram func(x *exec) (func(uv math.Vec2) math.Vec4, error)
	// meshProgram prepares the vertex and fragment stages for one draw; a nil
	// fragment stage writes depth only.
	meshProgram func(x *exec) (func(v md.Vertex3D) varying, func(v varying) math.Vec4, error)
	// proceduralProgram is a mesh program whose vertex stage only sees the vertex index.
	proceduralProgram func(x *exec) (func(index uint32) varying, func(v varying) math.Vec4, error)
	computeProgram    func(x *exec, gx, gy, gz uint32) error
)

var fragmentPrograms = map[string]fragmentProgram{
	md.ProgramSky:          skyProgram,
	md.ProgramBloomExtract: bloomExtract,
	md.ProgramBloomBlur:    bloomBlur,
	md.ProgramComposite:    composite,
}

var meshPrograms = map[string]meshProgram{
	md.ProgramShadow: shadowProgram,
	md.ProgramScene:  sceneProgram,
}

var proceduralPrograms = map[string]proceduralProgram{
	md.ProgramPointLight: pointLightProgram,
}

var computePrograms = map[string]computeProgram{
	md.ProgramLensFlare:      lensFlare,
	md.ProgramExposureReduce: exposureReduce,
	md.ProgramExposureUpdate: exposureUpdate,
}

func checkProgram(desc md.PipelineDesc) error {
	var ok bool
	switch {
	case desc.Kind == md.PipelineCompute:
		_, ok = computePrograms[desc.Program]
	case desc.VertexInput:
		_, ok = meshPrograms[desc.Program]
	case desc.ProceduralVertices:
		_, ok = proceduralPrograms[desc.Program]
	default:
		_, ok = fragmentPrograms[desc.Program]
	}
	if !ok {
		return fmt.Errorf("%w: program %q is unknown to the reference device", core.ErrAssetInvalid, desc.Program)
	}
	return nil
}

func (x *exec) dispatch(gx, gy, gz uint32) error {
	if x.pipe == nil || x.pipe.desc.Kind != md.PipelineCompute {
		return fmt.Errorf("dispatch without a compute pipeline")
	}
	if x.pass != nil {
		return fmt.Errorf("dispatch inside a render pass")
	}
	if err := computePrograms[x.pipe.desc.Program](x, gx, gy, gz); err != nil {
		return fmt.Errorf("%s: %w", x.pipe.desc.Program, err)
	}
	return nil
}

func (x *exec) binding(slot uint32) (md.Binding, error) {
	if x.set == nil {
		return md.Binding{}, fmt.Errorf("no binding set bound")
	}
	b, ok := x.set.bindings[slot]
	if !ok {
		return md.Binding{}, fmt.Errorf("slot %d not bound", slot)
	}
	return b, nil
}

func (x *exec) buffer(slot uint32) ([]byte, error) {
	b, err := x.binding(slot)
	if err != nil {
		return nil, err
	}
	buf, ok := x.d.buffers[b.Buffer]
	if !ok {
		return nil, fmt.Errorf("slot %d: buffer %d destroyed", slot, b.Buffer)
	}
	data := buf.data[b.Offset:]
	if b.Range > 0 {
		data = data[:b.Range]
	}
	return data, nil
}

func (x *exec) uniforms(slot uint32) (passes.SceneUniforms, error) {
	data, err := x.buffer(slot)
	if err != nil {
		return passes.SceneUniforms{}, err
	}
	if len(data) < passes.UniformSize {
		return passes.SceneUniforms{}, fmt.Errorf("slot %d: uniform buffer of %d bytes", slot, len(data))
	}
	return passes.DecodeUniforms(data), nil
}

// image returns the image at slot after checking it is in the layout the set promised.
func (x *exec) image(slot uint32) (*image, error) {
	b, err := x.binding(slot)
	if err != nil {
		return nil, err
	}
	img, ok := x.d.images[b.Image]
	if !ok {
		return nil, fmt.Errorf("slot %d: image %d destroyed", slot, b.Image)
	}
	if img.layout != b.Layout {
		x.d.violate("%s: slot %d image %s is %s, bound as %s", x.pipe.desc.Program, slot, img.desc.Name, img.layout, b.Layout)
	}
	return img, nil
}

func bloomExtract(x *exec) (func(uv math.Vec2) math.Vec4, error) {
	src, err := x.image(md.BloomSlotSource)
	if err != nil {
		return nil, err
	}
	push := passes.DecodeBloomPush(x.push)
	return func(uv math.Vec2) math.Vec4 {
		return passes.SoftThreshold(src.sample(uv).ToVec3(), push.Threshold, push.Knee).ToVec4(1)
	}, nil
}

func bloomBlur(x *exec) (func(uv math.Vec2) math.Vec4, error) {
	src, err := x.image(md.BloomSlotSource)
	if err != nil {
		return nil, err
	}
	push := passes.DecodeBloomPush(x.push)
	weights := passes.GaussianWeights(int(push.Radius))
	step := math.NewVec2(push.Direction.X*push.Texel.X, push.Direction.Y*push.Texel.Y)
	return func(uv math.Vec2) math.Vec4 {
		acc := src.sample(uv).MulScalar(weights[0])
		for i := 1; i < len(weights); i++ {
			o := math.NewVec2(step.X*float32(i), step.Y*float32(i))
			acc = acc.Add(src.sample(math.NewVec2(uv.X+o.X, uv.Y+o.Y)).MulScalar(weights[i]))
			acc = acc.Add(src.sample(math.NewVec2(uv.X-o.X, uv.Y-o.Y)).MulScalar(weights[i]))
		}
		acc.W = 1
		return acc
	}, nil
}

func skyProgram(x *exec) (func(uv math.Vec2) math.Vec4, error) {
	u, err := x.uniforms(md.SkySlotUniforms)
	if err != nil {
		return nil, err
	}
	invViewProj, ok := u.View.Mul(u.Projection).Inverse()
	if !ok {
		return nil, fmt.Errorf("singular view projection")
	}
	camPos := u.InverseView.Translation()
	toSun := u.SunDirection.ToVec3().Negate()
	sun := u.SunColour.ToVec3().MulScalar(u.SunColour.W)
	return func(uv math.Vec2) math.Vec4 {
		return passes.SkyRadiance(passes.SkyDirection(uv, invViewProj, camPos), toSun, sun).ToVec4(1)
	}, nil
}

func composite(x *exec) (func(uv math.Vec2) math.Vec4, error) {
	u, err := x.uniforms(md.CompositeSlotUniforms)
	if err != nil {
		return nil, err
	}
	var imgs [4]*image
	for i, slot := range []uint32{md.CompositeSlotScene, md.CompositeSlotBloom, md.CompositeSlotDepth, md.CompositeSlotFlare} {
		if imgs[i], err = x.image(slot); err != nil {
			return nil, err
		}
	}
	scene, bloom, depth, flare := imgs[0], imgs[1], imgs[2], imgs[3]
	push := passes.DecodeFloats(x.push)
	if len(push) < 2 {
		return nil, fmt.Errorf("composite push constants of %d bytes", len(x.push))
	}
	flareStrength := push[1] * passes.SunOcclusion(depth.sample(math.NewVec2(u.SunScreen.X, u.SunScreen.Y)).X)
	return func(uv math.Vec2) math.Vec4 {
		return passes.ToneMap(
			scene.sample(uv).ToVec3(),
			bloom.sample(uv).ToVec3(),
			flare.sample(uv).ToVec3(),
			u.Exposure.X, push[0], flareStrength,
		).ToVec4(1)
	}, nil
}

func model(push []byte) (math.Mat4, error) {
	if len(push) < 64 {
		return math.Mat4{}, fmt.Errorf("model push constants of %d bytes", len(push))
	}
	return passes.DecodeMat4(push), nil
}

func shadowProgram(x *exec) (func(v md.Vertex3D) varying, func(v varying) math.Vec4, error) {
	u, err := x.uniforms(md.ShadowSlotUniforms)
	if err != nil {
		return nil, nil, err
	}
	m, err := model(x.push)
	if err != nil {
		return nil, nil, err
	}
	mvp := m.Mul(u.LightViewProj)
	return func(v md.Vertex3D) varying {
		return varying{clip: mvp.MulVec4(v.Position.ToVec4(1))}
	}, nil, nil
}

const shadowBias = 0.005

func sceneProgram(x *exec) (func(v md.Vertex3D) varying, func(v varying) math.Vec4, error) {
	u, err := x.uniforms(md.SceneSlotUniforms)
	if err != nil {
		return nil, nil, err
	}
	shadowMap, err := x.image(md.SceneSlotShadowMap)
	if err != nil {
		return nil, nil, err
	}
	m, err := model(x.push)
	if err != nil {
		return nil, nil, err
	}
	var emissive math.Vec3
	if len(x.push) >= 76 {
		e := passes.DecodeFloats(x.push[64:76])
		emissive = math.NewVec3(e[0], e[1], e[2])
	}
	viewProj := u.View.Mul(u.Projection)
	toSun := u.SunDirection.ToVec3().Negate().Normalized()
	ambient := u.Ambient.ToVec3().MulScalar(u.Ambient.W)
	sun := u.SunColour.ToVec3().MulScalar(u.SunColour.W)

	lit := func(world math.Vec3) float32 {
		c := u.LightViewProj.MulVec4(world.ToVec4(1))
		if c.W <= 0 {
			return 1
		}
		ndc := math.NewVec3(c.X/c.W, c.Y/c.W, c.Z/c.W)
		uv := math.NewVec2(ndc.X*0.5+0.5, ndc.Y*0.5+0.5)
		if uv.X < 0 || uv.X > 1 || uv.Y < 0 || uv.Y > 1 || ndc.Z > 1 {
			return 1
		}
		if ndc.Z-shadowBias > shadowMap.sample(uv).X {
			return 0
		}
		return 1
	}

	vertex := func(v md.Vertex3D) varying {
		world := m.TransformPoint(v.Position)
		return varying{
			clip:   viewProj.MulVec4(world.ToVec4(1)),
			world:  world,
			normal: m.MulVec4(v.Normal.ToVec4(0)).ToVec3(),
			colour: v.Colour,
		}
	}
	fragment := func(v varying) math.Vec4 {
		n := v.normal.Normalized()
		light := ambient.Add(sun.MulScalar(math.Max(n.Dot(toSun), 0) * lit(v.world)))
		for i := 0; i < int(u.NumLights) && i < len(u.PointLights); i++ {
			pl := u.PointLights[i]
			d := pl.Position.ToVec3().Sub(v.world)
			atten := pl.Colour.W / (1 + d.LengthSquared())
			light = light.Add(pl.Colour.ToVec3().MulScalar(math.Max(n.Dot(d.Normalized()), 0) * atten))
		}
		return v.colour.Mul(light).Add(emissive).ToVec4(1)
	}
	return vertex, fragment, nil
}

func pointLightProgram(x *exec) (func(index uint32) varying, func(v varying) math.Vec4, error) {
	u, err := x.uniforms(md.PointLightSlotUniforms)
	if err != nil {
		return nil, nil, err
	}
	lights := math.Min(int(u.NumLights), len(u.PointLights))
	vertex := func(index uint32) varying {
		if int(index/md.PointLightMarkerVertices) >= lights {
			// w of zero, dropped by the rasterizer
			return varying{}
		}
		clip, light := passes.PointLightMarkerVertex(index, &u)
		return varying{clip: clip, colour: passes.PointLightMarkerColour(u.PointLights[light])}
	}
	fragment := func(v varying) math.Vec4 {
		return v.colour.ToVec4(1)
	}
	return vertex, fragment, nil
}

func lensFlare(x *exec, gx, gy, gz uint32) error {
	u, err := x.uniforms(md.LensSlotUniforms)
	if err != nil {
		return err
	}
	surfaces, err := x.buffer(md.LensSlotSurfaces)
	if err != nil {
		return err
	}
	paramData, err := x.buffer(md.LensSlotParams)
	if err != nil {
		return err
	}
	out, err := x.image(md.LensSlotOutput)
	if err != nil {
		return err
	}
	params := passes.DecodeLensParams(paramData)
	ghosts := passes.ComputeGhosts(passes.DecodeLensSurfaces(surfaces, int(params.Count)), params, u.SunScreen, u.SunColour)

	w := math.Min(int(gx*md.LensFlareLocalSize), int(out.desc.Extent.Width))
	h := math.Min(int(gy*md.LensFlareLocalSize), int(out.desc.Extent.Height))
	texel := out.desc.Extent.Texel()
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			uv := math.NewVec2((float32(px)+0.5)*texel.X, (float32(py)+0.5)*texel.Y)
			out.set(px, py, passes.FlareAt(ghosts, uv).ToVec4(1))
		}
	}
	return nil
}

func exposureReduce(x *exec, gx, gy, gz uint32) error {
	src, err := x.image(md.ReduceSlotScene)
	if err != nil {
		return err
	}
	result, err := x.buffer(md.ReduceSlotResult)
	if err != nil {
		return err
	}
	if len(result) < passes.ExposureResultSize {
		return fmt.Errorf("reduction buffer of %d bytes", len(result))
	}
	w := math.Min(int(gx*md.ExposureReduceLocalSize), int(src.desc.Extent.Width))
	h := math.Min(int(gy*md.ExposureReduceLocalSize), int(src.desc.Extent.Height))
	sum, count := passes.DecodeExposureResult(result)
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			sum += passes.LogLuminance(src.at(px, py).ToVec3())
			count++
		}
	}
	copy(result, passes.EncodeExposureResult(sum, count))
	return nil
}

func exposureUpdate(x *exec, gx, gy, gz uint32) error {
	result, err := x.buffer(md.UpdateSlotResult)
	if err != nil {
		return err
	}
	stateData, err := x.buffer(md.UpdateSlotState)
	if err != nil {
		return err
	}
	state, err := passes.DecodeExposureState(stateData)
	if err != nil {
		return err
	}
	push := passes.DecodeExposurePush(x.push)
	target := state.Target
	if sum, count := passes.DecodeExposureResult(result); count > 0 {
		target = passes.TargetExposure(sum/float32(count), push.Key, push.Min, push.Max)
	}
	state.Advance(target, push.Dt)
	copy(stateData, state.Encode())
	return nil
}
