package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/platform"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

type Options struct {
	AppName    string
	Validation bool
	// Initial surface size; the window's framebuffer size when zero.
	Extent md.Extent2D
}

// frameSlot owns the command pool and the semaphores of one frame in flight.
type frameSlot struct {
	pool           vk.CommandPool
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	buffers        []*VulkanCommandBuffer
}

/**
 * @brief A metadata.Device on a Vulkan GPU, presenting to the platform window.
 */
type Device struct {
	platform *platform.Platform
	context  *VulkanContext
	debug    bool

	nextHandle uint64
	images     map[md.ImageHandle]*VulkanImage
	buffers    map[md.BufferHandle]*VulkanBuffer
	pipelines  map[md.PipelineHandle]*VulkanPipeline
	sets       map[md.BindingSetHandle]*VulkanBindingSet
	fences     map[md.FenceHandle]*VulkanFence
	stats      md.AllocationStats

	// Handles of the swapchain images, by swapchain index.
	surfaceImages []md.ImageHandle
	// The slot that acquired each swapchain image.
	acquiredBy []int
	slots      []*frameSlot

	renderpasses   *renderpassCache
	framebuffers   *framebufferCache
	descriptors    *VulkanDescriptorPool
	defaultSampler vk.Sampler
}

func New(p *platform.Platform, opts Options) (*Device, error) {
	d := &Device{
		platform: p,
		context: &VulkanContext{
			FramebufferWidth:  opts.Extent.Width,
			FramebufferHeight: opts.Extent.Height,
			Allocator:         nil,
		},
		debug:        opts.Validation,
		images:       map[md.ImageHandle]*VulkanImage{},
		buffers:      map[md.BufferHandle]*VulkanBuffer{},
		pipelines:    map[md.PipelineHandle]*VulkanPipeline{},
		sets:         map[md.BindingSetHandle]*VulkanBindingSet{},
		fences:       map[md.FenceHandle]*VulkanFence{},
		renderpasses: newRenderpassCache(),
		framebuffers: newFramebufferCache(),
	}
	if opts.Extent.IsZero() {
		d.context.FramebufferWidth, d.context.FramebufferHeight = p.FramebufferSize()
	}
	if err := d.initialize(opts.AppName); err != nil {
		d.Destroy()
		return nil, err
	}
	return d, nil
}

func (d *Device) initialize(appName string) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	// Setup Vulkan instance.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("simcam"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"} // Generic surface extension
	requiredExtensions = append(requiredExtensions, d.platform.GetRequiredExtensionNames()...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	if d.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName) // debug utilities
		core.LogInfo("Required extensions:")
		for i := 0; i < len(requiredExtensions); i++ {
			core.LogInfo(requiredExtensions[i])
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers.
	requiredValidationLayerNames := []string{}

	// If validation should be done, get a list of the required validation layer names
	// and make sure they exist.
	if d.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")

		// The list of validation layers required.
		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}

		// Obtain a list of available validation layers
		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}

		// Verify all required layers are available.
		for _, required := range requiredValidationLayerNames {
			core.LogInfo("Searching for layer: %s...", required)
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				if required == cString(availableLayers[j].LayerName[:]) {
					found = true
					core.LogInfo("Found.")
					break
				}
			}
			if !found {
				err := fmt.Errorf("required validation layer is missing: %s", required)
				core.LogError(err.Error())
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	if res := vk.CreateInstance(&createInfo, d.context.Allocator, &d.context.Instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	if err := vk.InitInstance(d.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if d.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			return resultError("vkCreateDebugReportCallbackEXT", res)
		}
		d.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := d.platform.CreateVulkanSurface(d.context.Instance)
	if err != nil {
		return err
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(d.context); err != nil {
		return err
	}

	// Swapchain
	sc, err := SwapchainCreate(d.context, d.context.FramebufferWidth, d.context.FramebufferHeight)
	if err != nil {
		return err
	}
	d.context.Swapchain = sc
	d.registerSurfaceImages()

	if d.descriptors, err = DescriptorPoolCreate(d.context); err != nil {
		return err
	}
	if d.defaultSampler, err = createSampler(d.context, md.SamplerLinearClamp); err != nil {
		return err
	}

	core.LogInfo("Vulkan device initialized successfully.")
	return nil
}

func (d *Device) Name() string {
	if d.context.Device == nil {
		return "vulkan"
	}
	return "vulkan: " + cString(d.context.Device.Properties.DeviceName[:])
}

func (d *Device) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) registerSurfaceImages() {
	sc := d.context.Swapchain
	d.surfaceImages = d.surfaceImages[:0]
	d.acquiredBy = make([]int, sc.ImageCount)
	for i := 0; i < int(sc.ImageCount); i++ {
		h := md.ImageHandle(d.handle())
		d.images[h] = &VulkanImage{
			Name:   fmt.Sprintf("surface.%d", i),
			Handle: sc.Images[i],
			View:   sc.Views[i],
			Width:  sc.Extent.Width,
			Height: sc.Extent.Height,
			Format: engineFormat(sc.ImageFormat.Format),
		}
		d.surfaceImages = append(d.surfaceImages, h)
		d.acquiredBy[i] = -1
	}
}

func (d *Device) unregisterSurfaceImages() {
	for _, h := range d.surfaceImages {
		d.framebuffers.forget(d.context, h)
		delete(d.images, h)
	}
	d.surfaceImages = d.surfaceImages[:0]
}

func (d *Device) CreateImage(desc md.ImageDesc) (md.ImageHandle, error) {
	img, err := ImageCreate(d.context, desc)
	if err != nil {
		return 0, err
	}
	h := md.ImageHandle(d.handle())
	d.images[h] = img
	d.stats.Images++
	d.stats.ImageBytes += img.Size
	return h, nil
}

// DestroyImage also drops every framebuffer built on the image, so the image
// must not be referenced by work still in flight.
func (d *Device) DestroyImage(h md.ImageHandle) {
	img, ok := d.images[h]
	if !ok || !img.Owned {
		core.LogWarn("vulkan: destroy of unknown image %d", h)
		return
	}
	d.framebuffers.forget(d.context, h)
	img.Destroy(d.context)
	delete(d.images, h)
	d.stats.Images--
	d.stats.ImageBytes -= img.Size
}

func (d *Device) CreateBuffer(desc md.BufferDesc) (md.BufferHandle, error) {
	buf, err := BufferCreate(d.context, desc)
	if err != nil {
		return 0, err
	}
	h := md.BufferHandle(d.handle())
	d.buffers[h] = buf
	d.stats.Buffers++
	d.stats.BufferBytes += buf.Size
	return h, nil
}

func (d *Device) DestroyBuffer(h md.BufferHandle) {
	buf, ok := d.buffers[h]
	if !ok {
		core.LogWarn("vulkan: destroy of unknown buffer %d", h)
		return
	}
	buf.Destroy(d.context)
	delete(d.buffers, h)
	d.stats.Buffers--
	d.stats.BufferBytes -= buf.Size
}

func (d *Device) WriteBuffer(h md.BufferHandle, offset uint64, data []byte) error {
	buf, ok := d.buffers[h]
	if !ok {
		return fmt.Errorf("%w: buffer %d", core.ErrStaleBinding, h)
	}
	return buf.Write(offset, data)
}

func (d *Device) ReadBuffer(h md.BufferHandle, offset uint64, out []byte) error {
	buf, ok := d.buffers[h]
	if !ok {
		return fmt.Errorf("%w: buffer %d", core.ErrStaleBinding, h)
	}
	return buf.Read(offset, out)
}

func (d *Device) CreatePipeline(desc md.PipelineDesc) (md.PipelineHandle, error) {
	p, err := NewPipeline(d.context, d.renderpasses, desc)
	if err != nil {
		return 0, err
	}
	h := md.PipelineHandle(d.handle())
	d.pipelines[h] = p
	d.stats.Pipelines++
	return h, nil
}

func (d *Device) DestroyPipeline(h md.PipelineHandle) {
	p, ok := d.pipelines[h]
	if !ok {
		core.LogWarn("vulkan: destroy of unknown pipeline %d", h)
		return
	}
	p.Destroy(d.context)
	delete(d.pipelines, h)
	d.stats.Pipelines--
}

func (d *Device) CreateBindingSet(ph md.PipelineHandle) (md.BindingSetHandle, error) {
	p, ok := d.pipelines[ph]
	if !ok {
		err := fmt.Errorf("%w: pipeline %d", core.ErrResourceCreation, ph)
		core.LogError(err.Error())
		return 0, err
	}
	set, err := d.descriptors.Allocate(d.context, p.SetLayout)
	if err != nil {
		return 0, err
	}
	h := md.BindingSetHandle(d.handle())
	d.sets[h] = &VulkanBindingSet{Handle: set, Pipeline: ph, Bound: map[uint32]md.Binding{}}
	d.stats.BindingSets++
	return h, nil
}

func (d *Device) UpdateBindingSet(h md.BindingSetHandle, bindings []md.Binding) error {
	set, ok := d.sets[h]
	if !ok {
		return fmt.Errorf("%w: binding set %d", core.ErrStaleBinding, h)
	}
	p, ok := d.pipelines[set.Pipeline]
	if !ok {
		return fmt.Errorf("%w: binding set %d outlived its pipeline", core.ErrStaleBinding, h)
	}
	writes := make([]descriptorWrite, 0, len(bindings))
	for _, b := range bindings {
		l, ok := p.layoutFor(b.Slot)
		if !ok {
			return fmt.Errorf("binding set %d has no slot %d", h, b.Slot)
		}
		w := descriptorWrite{slot: b.Slot, kind: l.Kind, offset: b.Offset, rng: b.Range, layout: b.Layout}
		switch l.Kind {
		case md.BindingSampledImage, md.BindingStorageImage:
			if w.image, ok = d.images[b.Image]; !ok {
				return fmt.Errorf("%w: slot %d image %d", core.ErrStaleBinding, b.Slot, b.Image)
			}
		default:
			if w.buffer, ok = d.buffers[b.Buffer]; !ok {
				return fmt.Errorf("%w: slot %d buffer %d", core.ErrStaleBinding, b.Slot, b.Buffer)
			}
		}
		writes = append(writes, w)
	}
	writeDescriptors(d.context, set.Handle, writes, d.defaultSampler)
	for _, b := range bindings {
		set.Bound[b.Slot] = b
	}
	return nil
}

func (d *Device) DestroyBindingSet(h md.BindingSetHandle) {
	set, ok := d.sets[h]
	if !ok {
		core.LogWarn("vulkan: destroy of unknown binding set %d", h)
		return
	}
	d.descriptors.Free(d.context, set.Handle)
	delete(d.sets, h)
	d.stats.BindingSets--
}

func (d *Device) CreateFence(signaled bool) (md.FenceHandle, error) {
	f, err := NewFence(d.context, signaled)
	if err != nil {
		return 0, err
	}
	h := md.FenceHandle(d.handle())
	d.fences[h] = f
	d.stats.Fences++
	return h, nil
}

func (d *Device) WaitFence(h md.FenceHandle, timeout time.Duration) error {
	f, ok := d.fences[h]
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	return f.FenceWait(d.context, uint64(timeout.Nanoseconds()))
}

func (d *Device) ResetFence(h md.FenceHandle) error {
	f, ok := d.fences[h]
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	return f.FenceReset(d.context)
}

func (d *Device) DestroyFence(h md.FenceHandle) {
	f, ok := d.fences[h]
	if !ok {
		core.LogWarn("vulkan: destroy of unknown fence %d", h)
		return
	}
	f.FenceDestroy(d.context)
	delete(d.fences, h)
	d.stats.Fences--
}

// live reports whether a logical device exists.
func (d *Device) live() bool {
	return d.context.Device != nil && d.context.Device.LogicalDevice != nil
}

func (d *Device) WaitIdle() error {
	if !d.live() {
		return nil
	}
	if res := vk.DeviceWaitIdle(d.context.Device.LogicalDevice); !VulkanResultIsSuccess(res) {
		return resultError("vkDeviceWaitIdle", res)
	}
	for _, s := range d.slots {
		if s == nil {
			continue
		}
		for _, cb := range s.buffers {
			cb.Reset()
		}
	}
	return nil
}

func (d *Device) slot(i int) (*frameSlot, error) {
	for len(d.slots) <= i {
		d.slots = append(d.slots, nil)
	}
	if s := d.slots[i]; s != nil {
		return s, nil
	}

	s := &frameSlot{}
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(d.context.Device.LogicalDevice, &poolCreateInfo, d.context.Allocator, &s.pool); res != vk.Success {
		return nil, resultError("vkCreateCommandPool", res)
	}

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	if res := vk.CreateSemaphore(d.context.Device.LogicalDevice, &semaphoreCreateInfo, d.context.Allocator, &s.imageAvailable); res != vk.Success {
		d.destroySlot(s)
		return nil, resultError("vkCreateSemaphore", res)
	}
	if res := vk.CreateSemaphore(d.context.Device.LogicalDevice, &semaphoreCreateInfo, d.context.Allocator, &s.renderFinished); res != vk.Success {
		d.destroySlot(s)
		return nil, resultError("vkCreateSemaphore", res)
	}
	d.slots[i] = s
	core.LogDebug("Vulkan frame slot %d created.", i)
	return s, nil
}

func (d *Device) destroySlot(s *frameSlot) {
	device := d.context.Device.LogicalDevice
	for _, cb := range s.buffers {
		cb.Free(d.context, s.pool)
	}
	s.buffers = nil
	if s.imageAvailable != vk.NullSemaphore {
		vk.DestroySemaphore(device, s.imageAvailable, d.context.Allocator)
		s.imageAvailable = vk.NullSemaphore
	}
	if s.renderFinished != vk.NullSemaphore {
		vk.DestroySemaphore(device, s.renderFinished, d.context.Allocator)
		s.renderFinished = vk.NullSemaphore
	}
	if s.pool != vk.NullCommandPool {
		vk.DestroyCommandPool(device, s.pool, d.context.Allocator)
		s.pool = vk.NullCommandPool
	}
}

func (d *Device) AcquireImage(slotIndex int) (md.SurfaceImage, error) {
	s, err := d.slot(slotIndex)
	if err != nil {
		return md.SurfaceImage{}, err
	}
	sc := d.context.Swapchain
	// Acquire the next image from the swap chain. The semaphore is signalled when it is
	// available and waited on by the submission that draws into it.
	index, err := sc.SwapchainAcquireNextImageIndex(d.context, math.MaxUint64, s.imageAvailable)
	if err != nil {
		return md.SurfaceImage{}, err
	}
	d.acquiredBy[index] = slotIndex
	return md.SurfaceImage{
		Index:  index,
		Image:  d.surfaceImages[index],
		Extent: md.Extent2D{Width: sc.Extent.Width, Height: sc.Extent.Height},
		Format: engineFormat(sc.ImageFormat.Format),
	}, nil
}

func (d *Device) RecreateSurface(extent md.Extent2D) error {
	if extent.IsZero() {
		err := fmt.Errorf("%w: surface extent %s", core.ErrResourceCreation, extent)
		core.LogError(err.Error())
		return err
	}
	// Wait for any operations to complete.
	if err := d.WaitIdle(); err != nil {
		return err
	}
	d.unregisterSurfaceImages()
	sc, err := d.context.Swapchain.SwapchainRecreate(d.context, extent.Width, extent.Height)
	if err != nil {
		return err
	}
	d.context.Swapchain = sc
	d.registerSurfaceImages()
	core.LogInfo("Vulkan surface recreated at %dx%d.", sc.Extent.Width, sc.Extent.Height)
	return nil
}

func (d *Device) SurfaceExtent() md.Extent2D {
	sc := d.context.Swapchain
	return md.Extent2D{Width: sc.Extent.Width, Height: sc.Extent.Height}
}

func (d *Device) SurfaceFormat() md.Format {
	return engineFormat(d.context.Swapchain.ImageFormat.Format)
}

func (d *Device) Begin(slotIndex int, label string) (md.CommandBuffer, error) {
	s, err := d.slot(slotIndex)
	if err != nil {
		return nil, err
	}
	var cb *VulkanCommandBuffer
	for _, candidate := range s.buffers {
		if candidate.reusable(d.context) {
			cb = candidate
			break
		}
	}
	if cb == nil {
		if cb, err = NewVulkanCommandBuffer(d.context, s.pool, true); err != nil {
			return nil, err
		}
		s.buffers = append(s.buffers, cb)
	}
	cb.device = d
	cb.slot = slotIndex
	cb.label = label
	if err := cb.Begin(true, false, false); err != nil {
		return nil, err
	}
	return cb, nil
}

func (d *Device) Submit(c md.CommandBuffer, info md.SubmitInfo) error {
	cmd, ok := c.(*VulkanCommandBuffer)
	if !ok || cmd.device != d {
		return fmt.Errorf("foreign command buffer %T", c)
	}
	if cmd.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
		return fmt.Errorf("command buffer %q submitted before End", cmd.label)
	}
	if err := d.validate(cmd); err != nil {
		return err
	}
	s := d.slots[cmd.slot]

	var fence *VulkanFence
	fenceHandle := vk.NullFence
	if info.Fence != 0 {
		if fence, ok = d.fences[info.Fence]; !ok {
			return fmt.Errorf("unknown fence %d", info.Fence)
		}
		fenceHandle = fence.Handle
	}

	submitInfo := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
		// Command buffer(s) to be executed.
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd.Handle},
	}
	if info.WaitSurface {
		// The surface image may not be written until it is available; earlier
		// stages of the frame are free to run.
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{s.imageAvailable}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if info.SignalPresent {
		// The semaphore(s) to be signaled when the queue is complete.
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{s.renderFinished}
	}

	if res := vk.QueueSubmit(d.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fenceHandle); res != vk.Success {
		return resultError("vkQueueSubmit", res)
	}
	cmd.UpdateSubmitted(fence)
	return nil
}

// validate rejects a submission that references anything destroyed since recording.
func (d *Device) validate(cmd *VulkanCommandBuffer) error {
	for h := range cmd.pipelines {
		if _, ok := d.pipelines[h]; !ok {
			return fmt.Errorf("%w: %s: pipeline %d", core.ErrStaleBinding, cmd.label, h)
		}
	}
	for h := range cmd.sets {
		set, ok := d.sets[h]
		if !ok {
			return fmt.Errorf("%w: %s: binding set %d", core.ErrStaleBinding, cmd.label, h)
		}
		p, ok := d.pipelines[set.Pipeline]
		if !ok {
			return fmt.Errorf("%w: %s: binding set %d outlived its pipeline", core.ErrStaleBinding, cmd.label, h)
		}
		for _, l := range p.Desc.Bindings {
			b, ok := set.Bound[l.Slot]
			if !ok {
				return fmt.Errorf("%w: %s: binding set %d slot %d never written", core.ErrStaleBinding, cmd.label, h, l.Slot)
			}
			_, img := d.images[b.Image]
			_, buf := d.buffers[b.Buffer]
			if !img && !buf {
				return fmt.Errorf("%w: %s: binding set %d slot %d", core.ErrStaleBinding, cmd.label, h, l.Slot)
			}
		}
	}
	return nil
}

func (d *Device) Present(img md.SurfaceImage) error {
	if int(img.Index) >= len(d.acquiredBy) || d.acquiredBy[img.Index] < 0 {
		return fmt.Errorf("surface image %d was not acquired", img.Index)
	}
	s := d.slots[d.acquiredBy[img.Index]]
	d.acquiredBy[img.Index] = -1
	// Give the image back to the swapchain.
	return d.context.Swapchain.SwapchainPresent(d.context, d.context.Device.PresentQueue, s.renderFinished, img.Index)
}

func (d *Device) Stats() md.AllocationStats { return d.stats }

func (d *Device) Destroy() {
	if d.live() {
		if err := d.WaitIdle(); err != nil {
			core.LogError("vulkan: %s", err.Error())
		}
	}
	if d.stats != (md.AllocationStats{}) {
		core.LogWarn("vulkan device destroyed with live allocations: %+v", d.stats)
	}

	// Destroy in the opposite order of creation.
	if d.live() {
		for h := range d.sets {
			d.DestroyBindingSet(h)
		}
		for h := range d.pipelines {
			d.DestroyPipeline(h)
		}
		for h, img := range d.images {
			if img.Owned {
				d.DestroyImage(h)
			}
		}
		for h := range d.buffers {
			d.DestroyBuffer(h)
		}
		for h := range d.fences {
			d.DestroyFence(h)
		}
		for _, s := range d.slots {
			if s != nil {
				d.destroySlot(s)
			}
		}
		d.slots = nil
		d.framebuffers.destroy(d.context)
		d.renderpasses.destroy(d.context)
		if d.descriptors != nil {
			d.descriptors.Destroy(d.context)
		}
		if d.defaultSampler != vk.NullSampler {
			vk.DestroySampler(d.context.Device.LogicalDevice, d.defaultSampler, d.context.Allocator)
			d.defaultSampler = vk.NullSampler
		}
		if d.context.Swapchain != nil {
			d.unregisterSurfaceImages()
			d.context.Swapchain.SwapchainDestroy(d.context)
			d.context.Swapchain = nil
		}
	}
	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(d.context)

	if d.context.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(d.context.Instance, d.context.Surface, d.context.Allocator)
		d.context.Surface = vk.NullSurface
	}

	if d.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugMessenger, d.context.Allocator)
		d.context.debugMessenger = vk.NullDebugReportCallback
	}

	if d.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
