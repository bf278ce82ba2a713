package metadata

import "github.com/spaghettifunk/simcam/engine/math"

/** @brief Shader stages of a program. Can be combined. */
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vert"
	case ShaderStageFragment:
		return "frag"
	case ShaderStageCompute:
		return "comp"
	}
	return "unknown"
}

type BindingKind int

const (
	BindingUniformBuffer BindingKind = iota
	BindingStorageBuffer
	BindingSampledImage
	BindingStorageImage
)

/** @brief One slot of a program's binding set layout. */
type BindingLayout struct {
	Slot   uint32
	Kind   BindingKind
	Stages ShaderStage
}

/**
 * @brief A resource written into a binding set slot. Buffers use Buffer, Offset
 * and Range (0 means the whole buffer); images use Image and the Layout the
 * image will be in when the set is used.
 */
type Binding struct {
	Slot   uint32
	Buffer BufferHandle
	Offset uint64
	Range  uint64
	Image  ImageHandle
	Layout ImageLayout
}

type PipelineKind int

const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
)

/**
 * @brief Everything needed to build a pipeline for one program.
 */
type PipelineDesc struct {
	/** @brief The program name, see the Program constants. */
	Program string
	Kind    PipelineKind
	/** @brief Compiled SPIR-V per stage. Devices that execute programs natively ignore it. */
	Code     map[ShaderStage][]byte
	Bindings []BindingLayout
	/** @brief Size in bytes of the push constant block, 0 for none. */
	PushConstantSize uint32
	/** @brief Whether the program consumes Vertex3D vertex input. */
	VertexInput bool
	/** @brief Whether the program's own vertex stage builds vertices from the vertex index. */
	ProceduralVertices bool
	ColorFormats       []Format
	DepthFormat        Format
	DepthTest          bool
	DepthWrite         bool
	DepthCompare       CompareOp
	CullMode           FaceCullMode
}

/** @brief A render pass attachment, cleared or loaded at begin. */
type Attachment struct {
	Image      ImageHandle
	Format     Format
	Load       LoadOperation
	Store      StoreOperation
	ClearColor math.Vec4
	ClearDepth float32
	/**
	 * @brief The layout the attachment is in for the whole pass. Callers
	 * transition it with a barrier beforehand; render passes do not change layouts.
	 */
	Layout ImageLayout
}

type RenderPassBegin struct {
	Name   string
	Extent Extent2D
	Color  []Attachment
	Depth  *Attachment
}
