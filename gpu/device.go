package gpu

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type DeviceOptions struct {
	Logger *slog.Logger
}

// Device owns the queues and command pool of a logical device along with the cached
// memory-type table and MSAA level. It is created once and destroyed after everything
// allocated from it.
type Device struct {
	Driver   Driver
	Info     PhysicalDeviceInfo
	Families QueueFamilyIndices

	GraphicsQueue QueueID
	PresentQueue  QueueID
	CommandPool   CommandPoolID
	MSAASamples   core1_0.SampleCountFlags

	logger *slog.Logger
}

func NewDevice(driver Driver, info PhysicalDeviceInfo, families QueueFamilyIndices, opts DeviceOptions) (*Device, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Draw command buffers are re-recorded individually after every resize.
	pool, err := driver.CreateCommandPool(families.Graphics, core1_0.CommandPoolCreateResetBuffer)
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateCommandPool")
	}

	dev := &Device{
		Driver:        driver,
		Info:          info,
		Families:      families,
		GraphicsQueue: driver.GetQueue(families.Graphics),
		PresentQueue:  driver.GetQueue(families.Present),
		CommandPool:   pool,
		MSAASamples:   MaxUsableSampleCount(info.ColorSampleCounts, info.DepthSampleCounts),
		logger:        logger,
	}

	logger.Info("device ready",
		slog.String("name", info.Name),
		slog.Bool("discrete", info.Discrete),
		slog.String("api", info.APIVersion),
		slog.Int("graphicsFamily", families.Graphics),
		slog.Int("presentFamily", families.Present),
		slog.Int("msaa", sampleCountValue(dev.MSAASamples)))
	return dev, nil
}

func (d *Device) Logger() *slog.Logger {
	return d.logger
}

// FindMemoryType returns the first memory type allowed by typeBits whose flags include all of props.
func (d *Device) FindMemoryType(typeBits uint32, props core1_0.MemoryPropertyFlags) (int, error) {
	index, found := d.FindMemoryTypeSoft(typeBits, props)
	if !found {
		return -1, errors.Wrapf(ErrNoMemoryType, "type bits %#x, properties %s", typeBits, props)
	}
	return index, nil
}

func (d *Device) FindMemoryTypeSoft(typeBits uint32, props core1_0.MemoryPropertyFlags) (int, bool) {
	for i, memoryType := range d.Info.MemoryTypes {
		if i >= 32 {
			break
		}
		typeBit := uint32(1) << uint(i)
		if typeBits&typeBit != 0 && memoryType.PropertyFlags&props == props {
			return i, true
		}
	}
	return -1, false
}

func (d *Device) HostCoherent(memoryTypeIndex int) bool {
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(d.Info.MemoryTypes) {
		return false
	}
	return d.Info.MemoryTypes[memoryTypeIndex].PropertyFlags&core1_0.MemoryPropertyHostCoherent != 0
}

type BufferOptions struct {
	// DeviceAddress allocates memory that can be queried for a GPU virtual address.
	DeviceAddress bool
}

// CreateBuffer allocates a buffer and bound memory. When data is supplied it is copied in through
// a temporary mapping, flushed only if the memory is not host coherent.
func (d *Device) CreateBuffer(usage core1_0.BufferUsageFlags, props core1_0.MemoryPropertyFlags, size int, data []byte, opts ...BufferOptions) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Newf("invalid buffer size %d", size)
	}
	if len(data) > size {
		return nil, errors.Wrapf(ErrBufferTooSmall, "%d bytes of data for a %d byte buffer", len(data), size)
	}

	var options BufferOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	scope := &Scope{}
	defer scope.Release()

	handle, err := d.Driver.CreateBuffer(size, usage)
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateBuffer")
	}
	scope.Add(func() { d.Driver.DestroyBuffer(handle) })

	memReqs := d.Driver.BufferMemoryRequirements(handle)
	typeIndex, err := d.FindMemoryType(memReqs.MemoryTypeBits, props)
	if err != nil {
		return nil, err
	}

	memory, err := d.Driver.AllocateMemory(memReqs.Size, typeIndex, options.DeviceAddress)
	if err != nil {
		return nil, errors.Wrap(err, "vkAllocateMemory")
	}
	scope.Add(func() { d.Driver.FreeMemory(memory) })

	buffer := &Buffer{
		device:     d,
		Handle:     handle,
		Memory:     memory,
		Size:       size,
		Alignment:  memReqs.Alignment,
		Usage:      usage,
		Properties: d.Info.MemoryTypes[typeIndex].PropertyFlags,
		coherent:   d.HostCoherent(typeIndex),
	}

	if data != nil {
		if _, err := buffer.Map(WholeSize, 0); err != nil {
			return nil, err
		}
		if err := buffer.Write(0, data); err != nil {
			buffer.Unmap()
			return nil, err
		}
		if !buffer.coherent {
			if err := buffer.Flush(WholeSize, 0); err != nil {
				buffer.Unmap()
				return nil, err
			}
		}
		buffer.Unmap()
	}

	if err := buffer.Bind(0); err != nil {
		return nil, err
	}

	scope.Keep()
	return buffer, nil
}

// OneShotCommandBuffer allocates a primary command buffer from the device pool and, when
// begin is set, starts recording it for a single submission.
func (d *Device) OneShotCommandBuffer(begin bool) (CommandBufferID, error) {
	buffers, err := d.Driver.AllocateCommandBuffers(d.CommandPool, 1)
	if err != nil {
		return 0, errors.Wrap(err, "vkAllocateCommandBuffers")
	}
	cb := buffers[0]

	if begin {
		if err := d.Driver.BeginCommandBuffer(cb, true); err != nil {
			d.Driver.FreeCommandBuffers(d.CommandPool, cb)
			return 0, errors.Wrap(err, "vkBeginCommandBuffer")
		}
	}
	return cb, nil
}

// SubmitAndWait ends the command buffer, submits it with a fresh fence and blocks until the
// fence signals. The fence is always destroyed; the command buffer is freed when free is set,
// whether or not the submission succeeded.
func (d *Device) SubmitAndWait(cb CommandBufferID, queue QueueID, free bool) error {
	if free {
		defer d.Driver.FreeCommandBuffers(d.CommandPool, cb)
	}

	if err := d.Driver.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "vkEndCommandBuffer")
	}

	fence, err := d.Driver.CreateFence(false)
	if err != nil {
		return errors.Wrap(err, "vkCreateFence")
	}
	defer d.Driver.DestroyFence(fence)

	err = d.Driver.QueueSubmit(queue, fence, SubmitInfo{CommandBuffers: []CommandBufferID{cb}})
	if err != nil {
		return errors.Wrap(err, "vkQueueSubmit")
	}

	if err := d.Driver.WaitForFences(fence); err != nil {
		return errors.Wrap(err, "vkWaitForFences")
	}
	return nil
}

// CopyBuffer copies src into dst through a one-shot command buffer on the graphics queue.
// A zero region copies the whole of src.
func (d *Device) CopyBuffer(src, dst *Buffer, region core1_0.BufferCopy) error {
	if dst.Size < src.Size {
		return errors.Wrapf(ErrBufferTooSmall, "copy %d bytes into %d", src.Size, dst.Size)
	}
	if region.Size == 0 {
		region.Size = src.Size
	}
	if region.SrcOffset+region.Size > src.Size || region.DstOffset+region.Size > dst.Size {
		return errors.Wrapf(ErrBufferTooSmall, "region %d+%d -> %d+%d", region.SrcOffset, region.Size, region.DstOffset, region.Size)
	}

	cb, err := d.OneShotCommandBuffer(true)
	if err != nil {
		return err
	}

	if err := d.Driver.CmdCopyBuffer(cb, src.Handle, dst.Handle, region); err != nil {
		d.Driver.FreeCommandBuffers(d.CommandPool, cb)
		return errors.Wrap(err, "vkCmdCopyBuffer")
	}

	return d.SubmitAndWait(cb, d.GraphicsQueue, true)
}

var depthFormats = []core1_0.Format{
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

func (d *Device) FindSupportedFormat(formats []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, bool) {
	for _, format := range formats {
		props := d.Driver.FormatProperties(format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, true
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, true
		}
	}
	return 0, false
}

// FindDepthFormat picks the best depth format usable as an optimally tiled attachment.
func (d *Device) FindDepthFormat() (core1_0.Format, error) {
	format, ok := d.FindSupportedFormat(depthFormats, core1_0.ImageTilingOptimal, core1_0.FormatFeatureDepthStencilAttachment)
	if !ok {
		return 0, ErrNoDepthFormat
	}
	return format, nil
}

func HasStencil(format core1_0.Format) bool {
	return format == core1_0.FormatD32SignedFloatS8UnsignedInt || format == core1_0.FormatD24UnsignedNormalizedS8UnsignedInt
}

func (d *Device) WaitIdle() error {
	return errors.Wrap(d.Driver.DeviceWaitIdle(), "vkDeviceWaitIdle")
}

func (d *Device) Destroy() {
	if d.CommandPool != 0 {
		d.Driver.DestroyCommandPool(d.CommandPool)
		d.CommandPool = 0
	}
}
