package metadata

import "fmt"

/**
 * @brief Program names. A program's stages are loaded from
 * "<program>.<stage>.spv"; full-screen fragment programs share the
 * "fullscreen" vertex stage.
 */
const (
	ProgramShadow         = "shadow"
	ProgramScene          = "scene"
	ProgramSky            = "sky"
	ProgramPointLight     = "point_light"
	ProgramFullscreen     = "fullscreen"
	ProgramBloomExtract   = "bloom_extract"
	ProgramBloomBlur      = "bloom_blur"
	ProgramComposite      = "composite"
	ProgramExposureReduce = "exposure_reduce"
	ProgramExposureUpdate = "exposure_update"
	ProgramLensFlare      = "lens_flare"
)

// ShaderFile returns the SPIR-V file name of one stage of a program.
func ShaderFile(program string, stage ShaderStage) string {
	return fmt.Sprintf("%s.%s.spv", program, stage)
}

// Binding slots shared by the passes, the shader sources and the devices.
const (
	ShadowSlotUniforms uint32 = 0

	SceneSlotUniforms  uint32 = 0
	SceneSlotShadowMap uint32 = 1

	SkySlotUniforms        uint32 = 0
	PointLightSlotUniforms uint32 = 0

	BloomSlotSource uint32 = 0

	LensSlotUniforms uint32 = 0
	LensSlotSurfaces uint32 = 1
	LensSlotParams   uint32 = 2
	LensSlotOutput   uint32 = 3

	ReduceSlotScene  uint32 = 0
	ReduceSlotResult uint32 = 1

	UpdateSlotResult uint32 = 0
	UpdateSlotState  uint32 = 1

	CompositeSlotUniforms uint32 = 0
	CompositeSlotScene    uint32 = 1
	CompositeSlotBloom    uint32 = 2
	CompositeSlotDepth    uint32 = 3
	CompositeSlotFlare    uint32 = 4
)

// PointLightMarkerVertices is the vertex count of one point light marker,
// a fan of PointLightMarkerSegments triangles.
const (
	PointLightMarkerSegments uint32 = 8
	PointLightMarkerVertices        = PointLightMarkerSegments * 3
)

// Workgroup sizes of the compute programs.
const (
	LensFlareLocalSize      uint32 = 8
	ExposureReduceLocalSize uint32 = 16
)

// Push constant block sizes in bytes.
const (
	// mat4 model
	ShadowPushSize uint32 = 64
	// mat4 model, vec4 emissive
	ScenePushSize uint32 = 80
	// vec2 texel, vec2 direction, float radius, float threshold, float knee, float pad
	BloomPushSize uint32 = 32
	// float dt, float key, float min, float max
	ExposurePushSize uint32 = 16
	// float bloom strength, float flare strength
	CompositePushSize uint32 = 8
)
