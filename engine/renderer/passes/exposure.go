package passes

import (
	"encoding/binary"
	"fmt"
	m "math"

	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
)

const (
	// ExposureResultSize is {float logLumSum; uint count}.
	ExposureResultSize = 8
	// ExposureStateSize is five floats padded to 32 bytes.
	ExposureStateSize = 32

	minLuminance = 1e-4
)

/**
 * @brief The running auto-exposure. It lives for the whole process and is
 * only ever advanced by one frame at a time.
 */
type ExposureState struct {
	Current float32
	Target  float32
	/** @brief Rate used while the scene gets brighter (exposure falls). */
	RampUp float32
	/** @brief Rate used while the scene gets darker (exposure rises). */
	RampDown float32
	LastDt   float32
}

func NewExposureState(cfg config.ExposureConfig) ExposureState {
	return ExposureState{
		Current:  cfg.Initial,
		Target:   cfg.Initial,
		RampUp:   cfg.RampUp,
		RampDown: cfg.RampDown,
	}
}

/**
 * @brief Moves Current towards target by an exponential step over dt. The
 * step never crosses the target, so for a fixed target the distance to it
 * shrinks every call.
 */
func (s *ExposureState) Advance(target, dt float32) {
	rate := s.RampDown
	if target < s.Current {
		rate = s.RampUp
	}
	alpha := 1 - math.Exp(-rate*math.Max(dt, 0))
	s.Current += (target - s.Current) * alpha
	s.Target = target
	s.LastDt = dt
}

func (s *ExposureState) Encode() []byte {
	out := encodeFloats(s.Current, s.Target, s.RampUp, s.RampDown, s.LastDt)
	return append(out, make([]byte, ExposureStateSize-len(out))...)
}

func DecodeExposureState(data []byte) (ExposureState, error) {
	if len(data) < 20 {
		return ExposureState{}, fmt.Errorf("exposure state needs 20 bytes, got %d", len(data))
	}
	f := DecodeFloats(data[:20])
	return ExposureState{Current: f[0], Target: f[1], RampUp: f[2], RampDown: f[3], LastDt: f[4]}, nil
}

// Luminance is the Rec. 709 relative luminance.
func Luminance(c math.Vec3) float32 {
	return c.Dot(math.NewVec3(0.2126, 0.7152, 0.0722))
}

// LogLuminance is the contribution of one pixel to the reduction.
func LogLuminance(c math.Vec3) float32 {
	return math.Log(math.Max(Luminance(c), minLuminance))
}

/**
 * @brief Maps a mean log-luminance to the exposure that brings the scene's
 * geometric mean to key, clamped to [min, max].
 */
func TargetExposure(meanLogLum, key, minExposure, maxExposure float32) float32 {
	avg := math.Max(math.Exp(meanLogLum), minLuminance)
	return math.Clamp(key/avg, minExposure, maxExposure)
}

/**
 * @brief Push constants of the update program.
 */
type ExposurePush struct {
	Dt  float32
	Key float32
	Min float32
	Max float32
}

func (p ExposurePush) Encode() []byte {
	return encodeFloats(p.Dt, p.Key, p.Min, p.Max)
}

func DecodeExposurePush(data []byte) ExposurePush {
	f := DecodeFloats(data)
	if len(f) < 4 {
		return ExposurePush{}
	}
	return ExposurePush{Dt: f[0], Key: f[1], Min: f[2], Max: f[3]}
}

func EncodeExposureResult(sum float32, count uint32) []byte {
	out := binary.LittleEndian.AppendUint32(make([]byte, 0, ExposureResultSize), m.Float32bits(sum))
	return binary.LittleEndian.AppendUint32(out, count)
}

func DecodeExposureResult(data []byte) (float32, uint32) {
	if len(data) < ExposureResultSize {
		return 0, 0
	}
	return m.Float32frombits(binary.LittleEndian.Uint32(data)), binary.LittleEndian.Uint32(data[4:])
}

/**
 * @brief The two-stage auto-exposure: reset the reduction buffer, reduce
 * log-luminance over the scene, update the running state in a single
 * invocation, and copy the state into the slot's readback buffer.
 */
type ExposurePass struct {
	cfg    config.ExposureConfig
	res    *Resources
	result md.BufferHandle
	state  md.BufferHandle
}

func NewExposurePass(cfg config.ExposureConfig) *ExposurePass {
	return &ExposurePass{cfg: cfg, res: NewResources("exposure")}
}

func (p *ExposurePass) Name() string { return "exposure" }

func (p *ExposurePass) Targets() []targets.Spec { return nil }

func (p *ExposurePass) Nodes() []graph.Node {
	return []graph.Node{
		{Name: NodeExposureReset, Uses: []graph.Use{
			graph.BufferUse(ResExposureResult, md.StageTransfer, md.AccessTransferWrite),
		}},
		{Name: NodeExposureReduce, Uses: []graph.Use{
			graph.Read(ResSceneColor, md.LayoutShaderRead, md.StageComputeShader, md.AccessShaderRead),
			graph.BufferUse(ResExposureResult, md.StageComputeShader, md.AccessShaderRead|md.AccessShaderWrite),
		}},
		{Name: NodeExposureUpdate, Uses: []graph.Use{
			graph.BufferUse(ResExposureResult, md.StageComputeShader, md.AccessShaderRead),
			graph.BufferUse(ResExposureState, md.StageComputeShader, md.AccessShaderRead|md.AccessShaderWrite),
		}},
		{Name: NodeExposureReadback, Uses: []graph.Use{
			graph.BufferUse(ResExposureState, md.StageTransfer, md.AccessTransferRead),
			graph.BufferUse(ResExposureReadback, md.StageTransfer, md.AccessTransferWrite),
		}},
		{Name: NodeExposureHost, Uses: []graph.Use{
			graph.BufferUse(ResExposureReadback, md.StageHost, md.AccessHostRead),
		}},
	}
}

func (p *ExposurePass) Create(device md.Device, shaders ShaderSource, slots int) error {
	err := p.res.CreatePipeline(device, shaders, md.PipelineDesc{
		Program: md.ProgramExposureReduce,
		Kind:    md.PipelineCompute,
		Bindings: []md.BindingLayout{
			{Slot: md.ReduceSlotScene, Kind: md.BindingSampledImage, Stages: md.ShaderStageCompute},
			{Slot: md.ReduceSlotResult, Kind: md.BindingStorageBuffer, Stages: md.ShaderStageCompute},
		},
	})
	if err != nil {
		return err
	}
	err = p.res.CreatePipeline(device, shaders, md.PipelineDesc{
		Program: md.ProgramExposureUpdate,
		Kind:    md.PipelineCompute,
		Bindings: []md.BindingLayout{
			{Slot: md.UpdateSlotResult, Kind: md.BindingStorageBuffer, Stages: md.ShaderStageCompute},
			{Slot: md.UpdateSlotState, Kind: md.BindingStorageBuffer, Stages: md.ShaderStageCompute},
		},
		PushConstantSize: md.ExposurePushSize,
	})
	if err != nil {
		return err
	}
	if p.result == 0 {
		if err := p.createBuffers(device); err != nil {
			return err
		}
	}
	return p.res.AllocateSets(device, slots, map[string]string{
		NodeExposureReduce: md.ProgramExposureReduce,
		NodeExposureUpdate: md.ProgramExposureUpdate,
	})
}

func (p *ExposurePass) createBuffers(device md.Device) error {
	var err error
	p.result, err = device.CreateBuffer(md.BufferDesc{
		Name:  ResExposureResult,
		Size:  ExposureResultSize,
		Usage: md.BufferUsageStorage | md.BufferUsageTransferDst,
	})
	if err != nil {
		return fmt.Errorf("%w: exposure result: %v", core.ErrResourceCreation, err)
	}
	p.state, err = device.CreateBuffer(md.BufferDesc{
		Name:  ResExposureState,
		Size:  ExposureStateSize,
		Usage: md.BufferUsageStorage | md.BufferUsageTransferSrc | md.BufferUsageHostVisible,
	})
	if err != nil {
		return fmt.Errorf("%w: exposure state: %v", core.ErrResourceCreation, err)
	}
	initial := NewExposureState(p.cfg)
	return device.WriteBuffer(p.state, 0, initial.Encode())
}

func (p *ExposurePass) SharedBuffers() map[string]md.BufferHandle {
	return map[string]md.BufferHandle{
		ResExposureResult: p.result,
		ResExposureState:  p.state,
	}
}

func (p *ExposurePass) Bind(env *Env, slot int) error {
	return p.res.Rebind(env, slot, map[string][]md.Binding{
		NodeExposureReduce: {
			imageBinding(md.ReduceSlotScene, env.Image(ResSceneColor), md.LayoutShaderRead),
			bufferBinding(md.ReduceSlotResult, env.Buffer(slot, ResExposureResult)),
		},
		NodeExposureUpdate: {
			bufferBinding(md.UpdateSlotResult, env.Buffer(slot, ResExposureResult)),
			bufferBinding(md.UpdateSlotState, env.Buffer(slot, ResExposureState)),
		},
	})
}

func (p *ExposurePass) Resources() *Resources { return p.res }

func (p *ExposurePass) Record(node string, cmd md.CommandBuffer, f *Frame) error {
	switch node {
	case NodeExposureReset:
		cmd.FillBuffer(p.result, 0, ExposureResultSize, 0)
	case NodeExposureReduce:
		gx, gy := f.Env.Targets.Get(ResSceneColor).Extent.Groups(md.ExposureReduceLocalSize)
		cmd.BindPipeline(p.res.Pipelines[md.ProgramExposureReduce])
		cmd.BindSet(p.res.Set(f.Slot, NodeExposureReduce))
		cmd.Dispatch(gx, gy, 1)
	case NodeExposureUpdate:
		cmd.BindPipeline(p.res.Pipelines[md.ProgramExposureUpdate])
		cmd.BindSet(p.res.Set(f.Slot, NodeExposureUpdate))
		cmd.PushConstants(ExposurePush{Dt: f.Inputs.Dt, Key: p.cfg.Key, Min: p.cfg.Min, Max: p.cfg.Max}.Encode())
		cmd.Dispatch(1, 1, 1)
	case NodeExposureReadback:
		cmd.CopyBuffer(p.state, f.Env.Buffer(f.Slot, ResExposureReadback), 0, 0, ExposureStateSize)
	case NodeExposureHost:
	}
	return nil
}

func (p *ExposurePass) Destroy(device md.Device) {
	p.res.Destroy(device)
	if p.result != 0 {
		device.DestroyBuffer(p.result)
		p.result = 0
	}
	if p.state != 0 {
		device.DestroyBuffer(p.state)
		p.state = 0
	}
}
