package software

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

// ErrInFlight is returned when the host touches a buffer that submitted,
// unfinished work still references.
var ErrInFlight = errors.New("buffer is referenced by work in flight")

const defaultSurfaceImages = 3

type image struct {
	desc   md.ImageDesc
	pixels []math.Vec4
	layout md.ImageLayout
	// surface images are owned by the swapchain and not counted in Stats.
	surface bool
}

func (i *image) at(x, y int) math.Vec4 {
	w, h := int(i.desc.Extent.Width), int(i.desc.Extent.Height)
	x = math.Clamp(x, 0, w-1)
	y = math.Clamp(y, 0, h-1)
	return i.pixels[y*w+x]
}

func (i *image) set(x, y int, v math.Vec4) {
	i.pixels[y*int(i.desc.Extent.Width)+x] = v
}

type buffer struct {
	desc md.BufferDesc
	data []byte
}

type pipeline struct {
	desc    md.PipelineDesc
	layouts map[uint32]md.BindingLayout
}

type bindingSet struct {
	pipeline md.PipelineHandle
	bindings map[uint32]md.Binding
}

type fence struct {
	signaled bool
}

type submission struct {
	cmd     *commandBuffer
	fence   md.FenceHandle
	present *md.SurfaceImage
}

/**
 * @brief A CPU device that runs every program of the camera pipeline on the
 * host. Submitted work is deferred until a fence it signals is waited on, so
 * host access to memory still in use by the queue is observable.
 */
type Device struct {
	name    string
	next    uint64
	budget  uint64
	images  map[md.ImageHandle]*image
	buffers map[md.BufferHandle]*buffer
	pipes   map[md.PipelineHandle]*pipeline
	sets    map[md.BindingSetHandle]*bindingSet
	fences  map[md.FenceHandle]*fence

	surfaceCount  int
	surfaceFormat md.Format
	surfaceExtent md.Extent2D
	surfaceMax    md.Extent2D
	surfaceImages []md.ImageHandle
	outOfDate     bool
	acquired      uint64
	presented     uint64

	pending    []*submission
	events     []Event
	violations []string
	stats      md.AllocationStats
}

type Option func(d *Device)

// WithMemoryBudget makes allocations fail once live image and buffer bytes would exceed budget.
func WithMemoryBudget(budget uint64) Option {
	return func(d *Device) {
		d.budget = budget
	}
}

func WithSurfaceImages(count int) Option {
	return func(d *Device) {
		d.surfaceCount = count
	}
}

// WithMaxSurfaceExtent clamps every surface to max, the way a window system
// may hand back a smaller swapchain than requested.
func WithMaxSurfaceExtent(max md.Extent2D) Option {
	return func(d *Device) {
		d.surfaceMax = max
	}
}

func NewDevice(surface md.Extent2D, opts ...Option) (*Device, error) {
	d := &Device{
		name:          "reference",
		images:        make(map[md.ImageHandle]*image),
		buffers:       make(map[md.BufferHandle]*buffer),
		pipes:         make(map[md.PipelineHandle]*pipeline),
		sets:          make(map[md.BindingSetHandle]*bindingSet),
		fences:        make(map[md.FenceHandle]*fence),
		surfaceCount:  defaultSurfaceImages,
		surfaceFormat: md.FormatBGRA8,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.RecreateSurface(surface); err != nil {
		return nil, err
	}
	core.LogDebug("reference device created with a %s surface", surface)
	return d, nil
}

func (d *Device) Name() string { return d.name }

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) reserve(bytes uint64) error {
	if d.budget == 0 {
		return nil
	}
	if d.stats.ImageBytes+d.stats.BufferBytes+bytes > d.budget {
		return fmt.Errorf("%w: out of device memory (%d bytes requested)", core.ErrResourceCreation, bytes)
	}
	return nil
}

// SetMemoryBudget changes the budget; 0 removes it.
func (d *Device) SetMemoryBudget(budget uint64) {
	d.budget = budget
}

func (d *Device) CreateImage(desc md.ImageDesc) (md.ImageHandle, error) {
	if desc.Extent.IsZero() || desc.Format == md.FormatUndefined {
		return 0, fmt.Errorf("%w: image %q: %s %s", core.ErrResourceCreation, desc.Name, desc.Extent, desc.Format)
	}
	if err := d.reserve(desc.SizeBytes()); err != nil {
		return 0, fmt.Errorf("image %q: %w", desc.Name, err)
	}
	h := md.ImageHandle(d.handle())
	d.images[h] = &image{desc: desc, pixels: make([]math.Vec4, desc.Extent.Pixels())}
	d.stats.Images++
	d.stats.ImageBytes += desc.SizeBytes()
	return h, nil
}

func (d *Device) DestroyImage(h md.ImageHandle) {
	img, ok := d.images[h]
	if !ok {
		d.violate("destroy of unknown image %d", h)
		return
	}
	if d.referenced(func(c *commandBuffer) bool { return c.images[h] }) {
		d.violate("image %q destroyed while in use", img.desc.Name)
	}
	delete(d.images, h)
	if !img.surface {
		d.stats.Images--
		d.stats.ImageBytes -= img.desc.SizeBytes()
	}
}

func (d *Device) CreateBuffer(desc md.BufferDesc) (md.BufferHandle, error) {
	if desc.Size == 0 {
		return 0, fmt.Errorf("%w: buffer %q has zero size", core.ErrResourceCreation, desc.Name)
	}
	if err := d.reserve(desc.Size); err != nil {
		return 0, fmt.Errorf("buffer %q: %w", desc.Name, err)
	}
	h := md.BufferHandle(d.handle())
	d.buffers[h] = &buffer{desc: desc, data: make([]byte, desc.Size)}
	d.stats.Buffers++
	d.stats.BufferBytes += desc.Size
	return h, nil
}

func (d *Device) DestroyBuffer(h md.BufferHandle) {
	b, ok := d.buffers[h]
	if !ok {
		d.violate("destroy of unknown buffer %d", h)
		return
	}
	if d.referenced(func(c *commandBuffer) bool { return c.buffers[h] }) {
		d.violate("buffer %q destroyed while in use", b.desc.Name)
	}
	delete(d.buffers, h)
	d.stats.Buffers--
	d.stats.BufferBytes -= b.desc.Size
}

func (d *Device) hostBuffer(h md.BufferHandle, offset uint64, n int) (*buffer, error) {
	b, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", core.ErrStaleBinding, h)
	}
	if !b.desc.Usage.Has(md.BufferUsageHostVisible) {
		return nil, fmt.Errorf("buffer %q is not host visible", b.desc.Name)
	}
	if offset+uint64(n) > b.desc.Size {
		return nil, fmt.Errorf("buffer %q: range %d+%d exceeds size %d", b.desc.Name, offset, n, b.desc.Size)
	}
	if d.referenced(func(c *commandBuffer) bool { return c.buffers[h] }) {
		return nil, fmt.Errorf("%w: %q", ErrInFlight, b.desc.Name)
	}
	return b, nil
}

func (d *Device) WriteBuffer(h md.BufferHandle, offset uint64, data []byte) error {
	b, err := d.hostBuffer(h, offset, len(data))
	if err != nil {
		return err
	}
	copy(b.data[offset:], data)
	d.log(Event{Kind: EventWriteBuffer, Handle: uint64(h), Name: b.desc.Name})
	return nil
}

func (d *Device) ReadBuffer(h md.BufferHandle, offset uint64, out []byte) error {
	b, err := d.hostBuffer(h, offset, len(out))
	if err != nil {
		return err
	}
	copy(out, b.data[offset:])
	d.log(Event{Kind: EventReadBuffer, Handle: uint64(h), Name: b.desc.Name})
	return nil
}

func (d *Device) CreatePipeline(desc md.PipelineDesc) (md.PipelineHandle, error) {
	if err := checkProgram(desc); err != nil {
		return 0, err
	}
	p := &pipeline{desc: desc, layouts: make(map[uint32]md.BindingLayout, len(desc.Bindings))}
	for _, l := range desc.Bindings {
		p.layouts[l.Slot] = l
	}
	h := md.PipelineHandle(d.handle())
	d.pipes[h] = p
	d.stats.Pipelines++
	return h, nil
}

func (d *Device) DestroyPipeline(h md.PipelineHandle) {
	if _, ok := d.pipes[h]; !ok {
		d.violate("destroy of unknown pipeline %d", h)
		return
	}
	delete(d.pipes, h)
	d.stats.Pipelines--
}

func (d *Device) CreateBindingSet(p md.PipelineHandle) (md.BindingSetHandle, error) {
	if _, ok := d.pipes[p]; !ok {
		return 0, fmt.Errorf("%w: pipeline %d", core.ErrResourceCreation, p)
	}
	h := md.BindingSetHandle(d.handle())
	d.sets[h] = &bindingSet{pipeline: p, bindings: make(map[uint32]md.Binding)}
	d.stats.BindingSets++
	return h, nil
}

func (d *Device) UpdateBindingSet(h md.BindingSetHandle, bindings []md.Binding) error {
	set, ok := d.sets[h]
	if !ok {
		return fmt.Errorf("%w: binding set %d", core.ErrStaleBinding, h)
	}
	if d.referenced(func(c *commandBuffer) bool { return c.sets[h] }) {
		return fmt.Errorf("%w: binding set %d", ErrInFlight, h)
	}
	p := d.pipes[set.pipeline]
	for _, b := range bindings {
		l, ok := p.layouts[b.Slot]
		if !ok {
			return fmt.Errorf("binding set %d has no slot %d", h, b.Slot)
		}
		switch l.Kind {
		case md.BindingSampledImage, md.BindingStorageImage:
			if _, ok := d.images[b.Image]; !ok {
				return fmt.Errorf("%w: slot %d image %d", core.ErrStaleBinding, b.Slot, b.Image)
			}
		default:
			if _, ok := d.buffers[b.Buffer]; !ok {
				return fmt.Errorf("%w: slot %d buffer %d", core.ErrStaleBinding, b.Slot, b.Buffer)
			}
		}
		set.bindings[b.Slot] = b
	}
	return nil
}

func (d *Device) DestroyBindingSet(h md.BindingSetHandle) {
	if _, ok := d.sets[h]; !ok {
		d.violate("destroy of unknown binding set %d", h)
		return
	}
	delete(d.sets, h)
	d.stats.BindingSets--
}

func (d *Device) CreateFence(signaled bool) (md.FenceHandle, error) {
	h := md.FenceHandle(d.handle())
	d.fences[h] = &fence{signaled: signaled}
	d.stats.Fences++
	return h, nil
}

/**
 * @brief Runs queued work in submission order up to and including the
 * submission that signals the fence. Waiting on an unsignalled fence that no
 * submission will signal times out immediately.
 */
func (d *Device) WaitFence(h md.FenceHandle, timeout time.Duration) error {
	f, ok := d.fences[h]
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	d.log(Event{Kind: EventWaitFence, Handle: uint64(h)})
	if f.signaled {
		return nil
	}
	last := -1
	for i, s := range d.pending {
		if s.fence == h {
			last = i
		}
	}
	if last < 0 {
		return fmt.Errorf("%w: fence %d after %s", core.ErrTimeout, h, timeout)
	}
	return d.drain(last + 1)
}

func (d *Device) ResetFence(h md.FenceHandle) error {
	f, ok := d.fences[h]
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	for _, s := range d.pending {
		if s.fence == h {
			return fmt.Errorf("%w: fence %d", ErrInFlight, h)
		}
	}
	f.signaled = false
	return nil
}

func (d *Device) DestroyFence(h md.FenceHandle) {
	if _, ok := d.fences[h]; !ok {
		d.violate("destroy of unknown fence %d", h)
		return
	}
	delete(d.fences, h)
	d.stats.Fences--
}

func (d *Device) WaitIdle() error {
	d.log(Event{Kind: EventWaitIdle})
	return d.drain(len(d.pending))
}

// drain executes the first n pending submissions.
func (d *Device) drain(n int) error {
	run := d.pending[:n]
	d.pending = append([]*submission(nil), d.pending[n:]...)
	for _, s := range run {
		if s.present != nil {
			d.executePresent(*s.present)
			continue
		}
		d.log(Event{Kind: EventExecute, Slot: s.cmd.slot, Label: s.cmd.label, Handle: uint64(s.fence)})
		if err := s.cmd.execute(d); err != nil {
			return fmt.Errorf("%w: %s: %v", core.ErrDeviceLost, s.cmd.label, err)
		}
		if f, ok := d.fences[s.fence]; ok {
			f.signaled = true
		}
	}
	return nil
}

func (d *Device) referenced(match func(c *commandBuffer) bool) bool {
	for _, s := range d.pending {
		if s.cmd != nil && match(s.cmd) {
			return true
		}
	}
	return false
}

/**
 * @brief Marks the surface out of date. The next acquire or present reports
 * core.ErrSurfaceOutOfDate until the surface is recreated.
 */
func (d *Device) InvalidateSurface() {
	d.outOfDate = true
}

func (d *Device) AcquireImage(slot int) (md.SurfaceImage, error) {
	if d.outOfDate {
		return md.SurfaceImage{}, core.ErrSurfaceOutOfDate
	}
	index := uint32(d.acquired % uint64(len(d.surfaceImages)))
	d.acquired++
	d.log(Event{Kind: EventAcquire, Slot: slot, Handle: uint64(index)})
	return md.SurfaceImage{
		Index:  index,
		Image:  d.surfaceImages[index],
		Extent: d.surfaceExtent,
		Format: d.surfaceFormat,
	}, nil
}

func (d *Device) RecreateSurface(extent md.Extent2D) error {
	if len(d.pending) > 0 {
		return fmt.Errorf("surface recreated with %d submissions in flight", len(d.pending))
	}
	if extent.IsZero() {
		return fmt.Errorf("%w: surface extent %s", core.ErrResourceCreation, extent)
	}
	if d.surfaceMax.Width > 0 && extent.Width > d.surfaceMax.Width {
		extent.Width = d.surfaceMax.Width
	}
	if d.surfaceMax.Height > 0 && extent.Height > d.surfaceMax.Height {
		extent.Height = d.surfaceMax.Height
	}
	for _, h := range d.surfaceImages {
		d.DestroyImage(h)
	}
	d.surfaceImages = d.surfaceImages[:0]
	for i := 0; i < d.surfaceCount; i++ {
		desc := md.ImageDesc{
			Name:   fmt.Sprintf("surface.%d", i),
			Extent: extent,
			Format: d.surfaceFormat,
			Usage:  md.UsageColorAttachment | md.UsageTransferSrc,
		}
		h := md.ImageHandle(d.handle())
		d.images[h] = &image{desc: desc, pixels: make([]math.Vec4, extent.Pixels()), surface: true}
		d.surfaceImages = append(d.surfaceImages, h)
	}
	d.surfaceExtent = extent
	d.outOfDate = false
	d.log(Event{Kind: EventRecreateSurface, Name: extent.String()})
	return nil
}

func (d *Device) SurfaceExtent() md.Extent2D { return d.surfaceExtent }

func (d *Device) SurfaceFormat() md.Format { return d.surfaceFormat }

func (d *Device) Begin(slot int, label string) (md.CommandBuffer, error) {
	return newCommandBuffer(slot, label), nil
}

/**
 * @brief Queues a recorded command buffer. Every pipeline, binding set and
 * resource it references must still be alive and every binding slot written;
 * otherwise nothing is queued and core.ErrStaleBinding is returned.
 */
func (d *Device) Submit(c md.CommandBuffer, info md.SubmitInfo) error {
	cmd, ok := c.(*commandBuffer)
	if !ok {
		return fmt.Errorf("foreign command buffer %T", c)
	}
	if !cmd.ended {
		return fmt.Errorf("command buffer %q submitted before End", cmd.label)
	}
	if err := d.validate(cmd); err != nil {
		return err
	}
	if info.Fence != 0 {
		f, ok := d.fences[info.Fence]
		if !ok {
			return fmt.Errorf("unknown fence %d", info.Fence)
		}
		if f.signaled {
			return fmt.Errorf("fence %d submitted while signalled", info.Fence)
		}
	}
	d.pending = append(d.pending, &submission{cmd: cmd, fence: info.Fence})
	d.log(Event{Kind: EventSubmit, Slot: cmd.slot, Label: cmd.label, Handle: uint64(info.Fence)})
	return nil
}

func (d *Device) validate(cmd *commandBuffer) error {
	for h := range cmd.pipes {
		if _, ok := d.pipes[h]; !ok {
			return fmt.Errorf("%w: %s: pipeline %d", core.ErrStaleBinding, cmd.label, h)
		}
	}
	for h := range cmd.sets {
		set, ok := d.sets[h]
		if !ok {
			return fmt.Errorf("%w: %s: binding set %d", core.ErrStaleBinding, cmd.label, h)
		}
		p, ok := d.pipes[set.pipeline]
		if !ok {
			return fmt.Errorf("%w: %s: binding set %d outlived its pipeline", core.ErrStaleBinding, cmd.label, h)
		}
		for slot := range p.layouts {
			b, ok := set.bindings[slot]
			if !ok {
				return fmt.Errorf("%w: %s: binding set %d slot %d never written", core.ErrStaleBinding, cmd.label, h, slot)
			}
			_, img := d.images[b.Image]
			_, buf := d.buffers[b.Buffer]
			if !img && !buf {
				return fmt.Errorf("%w: %s: binding set %d slot %d", core.ErrStaleBinding, cmd.label, h, slot)
			}
			if img {
				cmd.images[b.Image] = true
			} else {
				cmd.buffers[b.Buffer] = true
			}
		}
	}
	for h := range cmd.images {
		if _, ok := d.images[h]; !ok {
			return fmt.Errorf("%w: %s: image %d", core.ErrStaleBinding, cmd.label, h)
		}
	}
	for h := range cmd.buffers {
		if _, ok := d.buffers[h]; !ok {
			return fmt.Errorf("%w: %s: buffer %d", core.ErrStaleBinding, cmd.label, h)
		}
	}
	return nil
}

func (d *Device) Present(img md.SurfaceImage) error {
	if d.outOfDate {
		return core.ErrSurfaceOutOfDate
	}
	d.pending = append(d.pending, &submission{present: &img})
	d.log(Event{Kind: EventPresent, Handle: uint64(img.Index)})
	return nil
}

func (d *Device) executePresent(img md.SurfaceImage) {
	i, ok := d.images[img.Image]
	if !ok {
		d.violate("present of destroyed surface image %d", img.Index)
		return
	}
	if i.layout != md.LayoutPresent {
		d.violate("surface image %d presented in %s layout", img.Index, i.layout)
	}
	d.presented++
}

func (d *Device) Stats() md.AllocationStats { return d.stats }

// Presented is the number of surface images presented so far.
func (d *Device) Presented() uint64 { return d.presented }

// Pending is the number of submissions that have not run yet.
func (d *Device) Pending() int { return len(d.pending) }

// Violations lists synchronization and lifetime errors seen so far.
func (d *Device) Violations() []string { return d.violations }

func (d *Device) violate(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	core.LogWarn("reference device: %s", msg)
	d.violations = append(d.violations, msg)
}

/**
 * @brief Returns a copy of an image's texels, for inspection in tests.
 */
func (d *Device) ReadImage(h md.ImageHandle) ([]math.Vec4, md.Extent2D, bool) {
	img, ok := d.images[h]
	if !ok {
		return nil, md.Extent2D{}, false
	}
	return append([]math.Vec4(nil), img.pixels...), img.desc.Extent, true
}

/**
 * @brief Fills an image with texels, as an upload would. Intended for tests.
 */
func (d *Device) FillImage(h md.ImageHandle, texel func(x, y int) math.Vec4) bool {
	img, ok := d.images[h]
	if !ok {
		return false
	}
	for y := 0; y < int(img.desc.Extent.Height); y++ {
		for x := 0; x < int(img.desc.Extent.Width); x++ {
			img.set(x, y, texel(x, y))
		}
	}
	return true
}

func (d *Device) Destroy() {
	if err := d.WaitIdle(); err != nil {
		core.LogError("reference device: %s", err.Error())
	}
	for _, h := range d.surfaceImages {
		d.DestroyImage(h)
	}
	d.surfaceImages = nil
	if d.stats != (md.AllocationStats{}) {
		core.LogWarn("reference device destroyed with live allocations: %+v", d.stats)
	}
}
