// Package frameloop drives acquire, submit and present for an application, and rebuilds every
// size dependent resource when the swapchain goes stale.
//
// One frame is in flight at a time: after presenting, the loop waits for the present queue to
// go idle before the next acquire.
package frameloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/swapchain"
)

type State int

const (
	Stable State = iota
	Resizing
)

func (s State) String() string {
	switch s {
	case Stable:
		return "Stable"
	case Resizing:
		return "Resizing"
	}
	return "Unknown"
}

// Surface is the window side of presentation.
type Surface interface {
	// FramebufferSize is the drawable size in pixels; zero while minimized.
	FramebufferSize() (int, int)
	// WaitEvents blocks until the window has new events.
	WaitEvents()
	// TakeResized reports whether the window was resized since the last call and clears the flag.
	TakeResized() bool
}

// Targets are the size dependent images a renderer builds framebuffers over.
type Targets struct {
	Extent         core1_0.Extent2D
	ColorFormat    core1_0.Format
	DepthFormat    core1_0.Format
	Samples        core1_0.SampleCountFlags
	SwapchainViews []gpu.ImageViewID
	Color          *gpu.Attachment
	Depth          *gpu.Attachment
	// PipelineCache lives as long as the Base, so pipelines rebuilt after a resize reuse it.
	PipelineCache  gpu.PipelineCacheID
}

// Renderer supplies the application specific parts of a frame.
type Renderer interface {
	CreateFramebuffers(targets Targets) error
	DestroyFramebuffers()
	// RecordCommandBuffer records the draw for one swapchain image. The buffer is already begun.
	RecordCommandBuffer(cb gpu.CommandBufferID, imageIndex int) error
	UpdateUniforms(imageIndex int, stats Stats) error
}

type Stats struct {
	Frames    uint64
	LastFrame time.Duration
	// Elapsed is the time since Prepare, in seconds.
	Elapsed float64
}

type Options struct {
	Logger *slog.Logger
}

type Base struct {
	Device    *gpu.Device
	Swapchain *swapchain.Swapchain

	surface  Surface
	renderer Renderer
	logger   *slog.Logger

	DepthFormat        core1_0.Format
	Depth              *gpu.Attachment
	Color              *gpu.Attachment
	DrawCommandBuffers []gpu.CommandBufferID
	PipelineCache      gpu.PipelineCacheID

	imageAvailable gpu.SemaphoreID
	renderComplete gpu.SemaphoreID
	inFlight       []gpu.FenceID

	framebuffers bool
	state        State
	resizes      int

	start time.Duration
	stats Stats
}

func New(device *gpu.Device, surfaceDriver gpu.SurfaceDriver, surface Surface, renderer Renderer, opts Options) *Base {
	logger := opts.Logger
	if logger == nil {
		logger = device.Logger()
	}
	return &Base{
		Device:    device,
		Swapchain: swapchain.New(device, surfaceDriver, swapchain.Options{Logger: logger}),
		surface:   surface,
		renderer:  renderer,
		logger:    logger,
	}
}

func (b *Base) State() State {
	return b.state
}

// Resizes counts completed trips through the resize state machine.
func (b *Base) Resizes() int {
	return b.resizes
}

func (b *Base) Stats() Stats {
	return b.stats
}

// Prepare creates the swapchain and everything that hangs off it, then records the draw
// command buffers.
func (b *Base) Prepare() error {
	cache, err := b.Device.Driver.CreatePipelineCache()
	if err != nil {
		return errors.Wrap(err, "vkCreatePipelineCache")
	}
	b.PipelineCache = cache

	width, height := b.waitForFramebuffer()
	if err := b.Swapchain.Create(width, height); err != nil {
		return err
	}

	if err := b.createCommandBuffers(); err != nil {
		return err
	}
	if err := b.createSyncPrimitives(); err != nil {
		return err
	}

	depthFormat, err := b.Device.FindDepthFormat()
	if err != nil {
		return err
	}
	b.DepthFormat = depthFormat

	if err := b.createAttachments(); err != nil {
		return err
	}
	if err := b.createFramebuffers(); err != nil {
		return err
	}
	if err := b.recordCommandBuffers(); err != nil {
		return err
	}

	b.start = hrtime.Now()
	b.state = Stable
	return nil
}

func (b *Base) waitForFramebuffer() (int, int) {
	width, height := b.surface.FramebufferSize()
	for width == 0 || height == 0 {
		b.surface.WaitEvents()
		width, height = b.surface.FramebufferSize()
	}
	return width, height
}

func (b *Base) createCommandBuffers() error {
	buffers, err := b.Device.Driver.AllocateCommandBuffers(b.Device.CommandPool, b.Swapchain.ImageCount())
	if err != nil {
		return errors.Wrap(err, "vkAllocateCommandBuffers")
	}
	b.DrawCommandBuffers = buffers
	return nil
}

func (b *Base) freeCommandBuffers() {
	if len(b.DrawCommandBuffers) > 0 {
		b.Device.Driver.FreeCommandBuffers(b.Device.CommandPool, b.DrawCommandBuffers...)
	}
	b.DrawCommandBuffers = nil
}

func (b *Base) createSyncPrimitives() error {
	driver := b.Device.Driver

	var err error
	b.imageAvailable, err = driver.CreateSemaphore()
	if err != nil {
		return errors.Wrap(err, "vkCreateSemaphore")
	}
	b.renderComplete, err = driver.CreateSemaphore()
	if err != nil {
		return errors.Wrap(err, "vkCreateSemaphore")
	}

	return b.createFences()
}

// createFences makes one signaled fence per draw command buffer.
func (b *Base) createFences() error {
	b.inFlight = make([]gpu.FenceID, 0, len(b.DrawCommandBuffers))
	for range b.DrawCommandBuffers {
		fence, err := b.Device.Driver.CreateFence(true)
		if err != nil {
			return errors.Wrap(err, "vkCreateFence")
		}
		b.inFlight = append(b.inFlight, fence)
	}
	return nil
}

func (b *Base) destroyFences() {
	for _, fence := range b.inFlight {
		b.Device.Driver.DestroyFence(fence)
	}
	b.inFlight = nil
}

func (b *Base) createAttachments() error {
	extent := b.Swapchain.Extent
	samples := b.Device.MSAASamples

	aspect := core1_0.ImageAspectFlags(core1_0.ImageAspectDepth)
	if gpu.HasStencil(b.DepthFormat) {
		aspect |= core1_0.ImageAspectStencil
	}
	depth, err := b.Device.CreateAttachment(b.DepthFormat, extent.Width, extent.Height, samples,
		core1_0.ImageUsageDepthStencilAttachment, aspect)
	if err != nil {
		return errors.Wrap(err, "create depth attachment")
	}
	b.Depth = depth

	color, err := b.Device.CreateAttachment(b.Swapchain.Format, extent.Width, extent.Height, samples,
		core1_0.ImageUsageTransientAttachment|core1_0.ImageUsageColorAttachment, core1_0.ImageAspectColor)
	if err != nil {
		return errors.Wrap(err, "create color attachment")
	}
	b.Color = color
	return nil
}

func (b *Base) destroyAttachments() {
	b.Color.Destroy()
	b.Depth.Destroy()
	b.Color = nil
	b.Depth = nil
}

func (b *Base) targets() Targets {
	return Targets{
		Extent:         b.Swapchain.Extent,
		ColorFormat:    b.Swapchain.Format,
		DepthFormat:    b.DepthFormat,
		Samples:        b.Device.MSAASamples,
		SwapchainViews: b.Swapchain.Views(),
		Color:          b.Color,
		Depth:          b.Depth,
		PipelineCache:  b.PipelineCache,
	}
}

func (b *Base) createFramebuffers() error {
	if err := b.renderer.CreateFramebuffers(b.targets()); err != nil {
		return errors.Wrap(err, "create framebuffers")
	}
	b.framebuffers = true
	return nil
}

func (b *Base) destroyFramebuffers() {
	if b.framebuffers {
		b.renderer.DestroyFramebuffers()
		b.framebuffers = false
	}
}

func (b *Base) recordCommandBuffers() error {
	driver := b.Device.Driver
	for i, cb := range b.DrawCommandBuffers {
		if err := driver.BeginCommandBuffer(cb, false); err != nil {
			return errors.Wrap(err, "vkBeginCommandBuffer")
		}
		if err := b.renderer.RecordCommandBuffer(cb, i); err != nil {
			return errors.Wrapf(err, "record command buffer %d", i)
		}
		if err := driver.EndCommandBuffer(cb); err != nil {
			return errors.Wrap(err, "vkEndCommandBuffer")
		}
	}
	return nil
}

// Resize rebuilds the swapchain and every size dependent resource. It blocks while the
// framebuffer has no area.
func (b *Base) Resize() error {
	b.state = Resizing
	b.logger.Debug("resize started", slog.String("generation", b.Swapchain.Generation.String()))

	width, height := b.waitForFramebuffer()
	if err := b.Device.WaitIdle(); err != nil {
		return err
	}

	b.destroyFramebuffers()
	if err := b.Swapchain.Create(width, height); err != nil {
		return err
	}

	b.destroyAttachments()
	if err := b.createAttachments(); err != nil {
		return err
	}
	if err := b.createFramebuffers(); err != nil {
		return err
	}

	b.freeCommandBuffers()
	if err := b.createCommandBuffers(); err != nil {
		return err
	}
	if err := b.recordCommandBuffers(); err != nil {
		return err
	}

	b.destroyFences()
	if err := b.createFences(); err != nil {
		return err
	}

	if err := b.Device.WaitIdle(); err != nil {
		return err
	}

	b.state = Stable
	b.resizes++
	b.logger.Info("resize finished",
		slog.String("generation", b.Swapchain.Generation.String()),
		slog.Int("width", b.Swapchain.Extent.Width),
		slog.Int("height", b.Swapchain.Extent.Height))
	return nil
}

// RenderFrame acquires an image, submits its draw command buffer and presents it. A stale
// swapchain sends the loop through Resize instead.
func (b *Base) RenderFrame() error {
	// A resize that failed part way leaves nothing safe to submit until it completes.
	if b.surface.TakeResized() || b.state == Resizing {
		return b.Resize()
	}

	frameStart := hrtime.Now()
	driver := b.Device.Driver

	imageIndex, status, err := b.Swapchain.AcquireNextImage(b.imageAvailable)
	if err != nil {
		return err
	}
	if status == gpu.StatusOutOfDate {
		return b.Resize()
	}

	fence := b.inFlight[imageIndex]
	if err := driver.WaitForFences(fence); err != nil {
		return errors.Wrap(err, "vkWaitForFences")
	}
	if err := driver.ResetFences(fence); err != nil {
		return errors.Wrap(err, "vkResetFences")
	}

	if err := b.renderer.UpdateUniforms(imageIndex, b.stats); err != nil {
		return errors.Wrap(err, "update uniforms")
	}

	err = driver.QueueSubmit(b.Device.GraphicsQueue, fence, gpu.SubmitInfo{
		WaitSemaphores:   []gpu.SemaphoreID{b.imageAvailable},
		WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []gpu.CommandBufferID{b.DrawCommandBuffers[imageIndex]},
		SignalSemaphores: []gpu.SemaphoreID{b.renderComplete},
	})
	if err != nil {
		return errors.Wrap(err, "vkQueueSubmit")
	}

	status, err = b.Swapchain.Present(b.Device.PresentQueue, imageIndex, b.renderComplete)
	if err != nil {
		return err
	}

	b.stats.Frames++
	b.stats.LastFrame = hrtime.Since(frameStart)
	b.stats.Elapsed = (hrtime.Now() - b.start).Seconds()

	if status.NeedsRecreate() {
		return b.Resize()
	}
	return errors.Wrap(driver.QueueWaitIdle(b.Device.PresentQueue), "vkQueueWaitIdle")
}

// Run renders frames until poll reports quit or ctx is done, then waits for the device to go idle.
func (b *Base) Run(ctx context.Context, poll func() (quit bool)) error {
	for ctx.Err() == nil && !poll() {
		if err := b.RenderFrame(); err != nil {
			return err
		}
	}
	return b.Device.WaitIdle()
}

// Destroy releases everything Prepare created, in reverse order. The device itself stays alive.
func (b *Base) Destroy() {
	driver := b.Device.Driver

	b.destroyFramebuffers()
	b.freeCommandBuffers()
	b.destroyAttachments()
	b.destroyFences()
	if b.renderComplete != 0 {
		driver.DestroySemaphore(b.renderComplete)
		b.renderComplete = 0
	}
	if b.imageAvailable != 0 {
		driver.DestroySemaphore(b.imageAvailable)
		b.imageAvailable = 0
	}
	if b.PipelineCache != 0 {
		driver.DestroyPipelineCache(b.PipelineCache)
		b.PipelineCache = 0
	}
	b.Swapchain.Destroy()
}
