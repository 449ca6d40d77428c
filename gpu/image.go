package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Image is an image handle with its own memory block. Layout is the last layout a barrier
// recorded through this package moved it to.
type Image struct {
	device *Device

	Handle    ImageID
	Memory    MemoryID
	Format    core1_0.Format
	Width     int
	Height    int
	MipLevels int
	Layers    int
	Samples   core1_0.SampleCountFlags
	Layout    core1_0.ImageLayout
}

// CreateImage creates an image and binds freshly allocated memory with the requested properties.
func (d *Device) CreateImage(info core1_0.ImageCreateInfo, props core1_0.MemoryPropertyFlags) (*Image, error) {
	if info.Extent.Depth == 0 {
		info.Extent.Depth = 1
	}
	if info.MipLevels == 0 {
		info.MipLevels = 1
	}
	if info.ArrayLayers == 0 {
		info.ArrayLayers = 1
	}
	if info.Samples == 0 {
		info.Samples = core1_0.Samples1
	}
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		return nil, errors.Newf("invalid image extent %dx%d", info.Extent.Width, info.Extent.Height)
	}

	scope := &Scope{}
	defer scope.Release()

	handle, err := d.Driver.CreateImage(info)
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateImage")
	}
	scope.Add(func() { d.Driver.DestroyImage(handle) })

	memReqs := d.Driver.ImageMemoryRequirements(handle)
	typeIndex, err := d.FindMemoryType(memReqs.MemoryTypeBits, props)
	if err != nil {
		return nil, err
	}

	memory, err := d.Driver.AllocateMemory(memReqs.Size, typeIndex, false)
	if err != nil {
		return nil, errors.Wrap(err, "vkAllocateMemory")
	}
	scope.Add(func() { d.Driver.FreeMemory(memory) })

	if err := d.Driver.BindImageMemory(handle, memory, 0); err != nil {
		return nil, errors.Wrap(err, "vkBindImageMemory")
	}

	scope.Keep()
	return &Image{
		device:    d,
		Handle:    handle,
		Memory:    memory,
		Format:    info.Format,
		Width:     info.Extent.Width,
		Height:    info.Extent.Height,
		MipLevels: info.MipLevels,
		Layers:    info.ArrayLayers,
		Samples:   info.Samples,
		Layout:    info.InitialLayout,
	}, nil
}

func (i *Image) Destroy() {
	if i == nil || i.Handle == 0 {
		return
	}
	i.device.Driver.DestroyImage(i.Handle)
	i.device.Driver.FreeMemory(i.Memory)
	i.Handle = 0
	i.Memory = 0
}

func (i *Image) FullRange(aspect core1_0.ImageAspectFlags) core1_0.ImageSubresourceRange {
	return core1_0.ImageSubresourceRange{
		AspectMask:     aspect,
		BaseMipLevel:   0,
		LevelCount:     i.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     i.Layers,
	}
}

func (d *Device) CreateImageView(info ImageViewCreateInfo) (ImageViewID, error) {
	if info.MipLevels == 0 {
		info.MipLevels = 1
	}
	if info.LayerCount == 0 {
		info.LayerCount = 1
	}
	view, err := d.Driver.CreateImageView(info)
	if err != nil {
		return 0, errors.Wrap(err, "vkCreateImageView")
	}
	return view, nil
}

// Attachment is a device-local render target image together with its view.
type Attachment struct {
	*Image
	View ImageViewID
}

func (a *Attachment) Destroy() {
	if a == nil {
		return
	}
	if a.View != 0 {
		a.device.Driver.DestroyImageView(a.View)
		a.View = 0
	}
	a.Image.Destroy()
}

// CreateAttachment creates an optimally tiled, device-local 2D image and a view over it.
func (d *Device) CreateAttachment(format core1_0.Format, width, height int, samples core1_0.SampleCountFlags, usage core1_0.ImageUsageFlags, aspect core1_0.ImageAspectFlags) (*Attachment, error) {
	image, err := d.CreateImage(core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       samples,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	view, err := d.CreateImageView(ImageViewCreateInfo{
		Image:    image.Handle,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		Aspect:   aspect,
	})
	if err != nil {
		image.Destroy()
		return nil, err
	}

	return &Attachment{Image: image, View: view}, nil
}

// LayoutBarrier builds a barrier whose access masks follow from the two layouts.
func LayoutBarrier(image ImageID, oldLayout, newLayout core1_0.ImageLayout, subresource core1_0.ImageSubresourceRange) ImageBarrier {
	barrier := ImageBarrier{
		Image:     image,
		OldLayout: oldLayout,
		NewLayout: newLayout,
		Range:     subresource,
	}

	switch oldLayout {
	case core1_0.ImageLayoutPreInitialized:
		barrier.SrcAccessMask = core1_0.AccessHostWrite
	case core1_0.ImageLayoutColorAttachmentOptimal:
		barrier.SrcAccessMask = core1_0.AccessColorAttachmentWrite
	case core1_0.ImageLayoutDepthStencilAttachmentOptimal:
		barrier.SrcAccessMask = core1_0.AccessDepthStencilAttachmentWrite
	case core1_0.ImageLayoutTransferSrcOptimal:
		barrier.SrcAccessMask = core1_0.AccessTransferRead
	case core1_0.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = core1_0.AccessTransferWrite
	case core1_0.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = core1_0.AccessShaderRead
	}

	switch newLayout {
	case core1_0.ImageLayoutTransferDstOptimal:
		barrier.DstAccessMask = core1_0.AccessTransferWrite
	case core1_0.ImageLayoutTransferSrcOptimal:
		barrier.DstAccessMask = core1_0.AccessTransferRead
	case core1_0.ImageLayoutColorAttachmentOptimal:
		barrier.DstAccessMask = core1_0.AccessColorAttachmentWrite
	case core1_0.ImageLayoutDepthStencilAttachmentOptimal:
		barrier.DstAccessMask = core1_0.AccessDepthStencilAttachmentWrite
	case core1_0.ImageLayoutShaderReadOnlyOptimal:
		if barrier.SrcAccessMask == 0 {
			barrier.SrcAccessMask = core1_0.AccessHostWrite | core1_0.AccessTransferWrite
		}
		barrier.DstAccessMask = core1_0.AccessShaderRead
	}

	return barrier
}

// TransitionImageLayout records a layout barrier into cb and updates the image's tracked layout.
func (d *Device) TransitionImageLayout(cb CommandBufferID, image *Image, newLayout core1_0.ImageLayout, subresource core1_0.ImageSubresourceRange, srcStage, dstStage core1_0.PipelineStageFlags) error {
	barrier := LayoutBarrier(image.Handle, image.Layout, newLayout, subresource)
	if err := d.Driver.CmdImageBarrier(cb, srcStage, dstStage, barrier); err != nil {
		return errors.Wrapf(err, "vkCmdPipelineBarrier %s -> %s", image.Layout, newLayout)
	}
	image.Layout = newLayout
	return nil
}
