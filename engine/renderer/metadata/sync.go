package metadata

/** @brief Pipeline stages used to scope barriers. Can be combined. */
type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageVertexShader
	StageEarlyFragmentTests
	StageFragmentShader
	StageLateFragmentTests
	StageColorOutput
	StageComputeShader
	StageTransfer
	StageHost
	StageBottomOfPipe
)

/** @brief Memory access kinds used to scope barriers. Can be combined. */
type AccessFlags uint32

const (
	AccessNone        AccessFlags = 0
	AccessUniformRead AccessFlags = 1 << iota
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthAttachmentRead
	AccessDepthAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
)

const accessWriteMask = AccessShaderWrite | AccessColorAttachmentWrite |
	AccessDepthAttachmentWrite | AccessTransferWrite | AccessHostWrite

func (a AccessFlags) IsWrite() bool {
	return a&accessWriteMask != 0
}

/**
 * @brief An execution and memory dependency on a single image or buffer,
 * optionally changing the image's layout. Exactly one of Image or Buffer is set.
 */
type Barrier struct {
	Image     ImageHandle
	Buffer    BufferHandle
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess AccessFlags
	DstAccess AccessFlags
	OldLayout ImageLayout
	NewLayout ImageLayout
}

/**
 * @brief Describes a queue submission. The fence, if set, is signalled when
 * the work completes.
 */
type SubmitInfo struct {
	Fence FenceHandle
	/** @brief Wait on the acquired surface image before colour output. */
	WaitSurface bool
	/** @brief Signal the present semaphore on completion. */
	SignalPresent bool
}

/** @brief Live allocations held by a device, used for leak accounting. */
type AllocationStats struct {
	Images      int
	Buffers     int
	Pipelines   int
	BindingSets int
	Fences      int
	ImageBytes  uint64
	BufferBytes uint64
}
