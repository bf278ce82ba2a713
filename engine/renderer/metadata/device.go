package metadata

import "time"

/**
 * @brief A rendering device with a single presentable surface. Devices are
 * driven from one goroutine; none of the methods are safe for concurrent use.
 */
type Device interface {
	Name() string

	CreateImage(desc ImageDesc) (ImageHandle, error)
	DestroyImage(image ImageHandle)

	CreateBuffer(desc BufferDesc) (BufferHandle, error)
	DestroyBuffer(buffer BufferHandle)
	/** @brief Writes host data into a host-visible buffer. */
	WriteBuffer(buffer BufferHandle, offset uint64, data []byte) error
	/** @brief Reads a host-visible buffer into out. */
	ReadBuffer(buffer BufferHandle, offset uint64, out []byte) error

	CreatePipeline(desc PipelineDesc) (PipelineHandle, error)
	DestroyPipeline(pipeline PipelineHandle)

	/** @brief Allocates a binding set matching the pipeline's layout. */
	CreateBindingSet(pipeline PipelineHandle) (BindingSetHandle, error)
	UpdateBindingSet(set BindingSetHandle, bindings []Binding) error
	DestroyBindingSet(set BindingSetHandle)

	CreateFence(signaled bool) (FenceHandle, error)
	/** @brief Blocks until the fence is signalled, or returns core.ErrTimeout. */
	WaitFence(fence FenceHandle, timeout time.Duration) error
	ResetFence(fence FenceHandle) error
	DestroyFence(fence FenceHandle)

	/** @brief Blocks until all submitted work has completed. */
	WaitIdle() error

	/**
	 * @brief Acquires the next presentable image for the given frame slot.
	 * Returns core.ErrSurfaceOutOfDate when the surface no longer matches
	 * and must be recreated.
	 */
	AcquireImage(slot int) (SurfaceImage, error)
	/** @brief Rebuilds the surface at the given extent. All work must be idle. */
	RecreateSurface(extent Extent2D) error
	SurfaceExtent() Extent2D
	SurfaceFormat() Format

	/** @brief Begins recording a command buffer owned by the frame slot. */
	Begin(slot int, label string) (CommandBuffer, error)
	Submit(cmd CommandBuffer, info SubmitInfo) error
	/** @brief Queues the surface image for presentation. May return core.ErrSurfaceOutOfDate. */
	Present(image SurfaceImage) error

	Stats() AllocationStats
	Destroy()
}

/**
 * @brief Records GPU work. Obtained from Device.Begin and consumed by Device.Submit.
 */
type CommandBuffer interface {
	BeginRenderPass(begin RenderPassBegin)
	EndRenderPass()
	BindPipeline(pipeline PipelineHandle)
	BindSet(set BindingSetHandle)
	PushConstants(data []byte)
	/** @brief Draws vertexCount vertices with no vertex input. */
	Draw(vertexCount uint32)
	DrawMesh(mesh Mesh)
	Dispatch(x, y, z uint32)
	PipelineBarrier(barriers ...Barrier)
	FillBuffer(buffer BufferHandle, offset, size uint64, value uint32)
	CopyBuffer(src, dst BufferHandle, srcOffset, dstOffset, size uint64)
	/** @brief Copies a whole image, which must be in the transfer-src layout, into a buffer. */
	CopyImageToBuffer(src ImageHandle, dst BufferHandle)
	End() error
}
