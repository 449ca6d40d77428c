package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const stagingProperties = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

// Uploader moves host data into device memory through a host-visible staging buffer and a
// single blocking command buffer submission. Either everything it creates is returned or
// nothing survives the call.
type Uploader struct {
	device *Device
}

func NewUploader(device *Device) *Uploader {
	return &Uploader{device: device}
}

type BufferPayload struct {
	Data  []byte
	Usage core1_0.BufferUsageFlags
	// Properties defaults to device local.
	Properties core1_0.MemoryPropertyFlags
}

func (u *Uploader) UploadBuffer(data []byte, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	buffers, err := u.UploadBuffers(BufferPayload{Data: data, Usage: usage})
	if err != nil {
		return nil, err
	}
	return buffers[0], nil
}

// UploadBuffers fills one destination buffer per payload, recording every copy into the same
// command buffer.
func (u *Uploader) UploadBuffers(payloads ...BufferPayload) ([]*Buffer, error) {
	dev := u.device
	if len(payloads) == 0 {
		return nil, nil
	}

	scope := &Scope{}
	defer scope.Release()

	staging := make([]*Buffer, 0, len(payloads))
	defer func() {
		for _, buffer := range staging {
			buffer.Destroy()
		}
	}()

	destinations := make([]*Buffer, 0, len(payloads))
	for i, payload := range payloads {
		if len(payload.Data) == 0 {
			return nil, errors.Newf("upload payload %d is empty", i)
		}

		stage, err := dev.CreateBuffer(core1_0.BufferUsageTransferSrc, stagingProperties, len(payload.Data), payload.Data)
		if err != nil {
			return nil, errors.Wrap(err, "create staging buffer")
		}
		staging = append(staging, stage)

		props := payload.Properties
		if props == 0 {
			props = core1_0.MemoryPropertyDeviceLocal
		}
		dst, err := dev.CreateBuffer(payload.Usage|core1_0.BufferUsageTransferDst, props, len(payload.Data), nil)
		if err != nil {
			return nil, errors.Wrap(err, "create destination buffer")
		}
		scope.Add(dst.Destroy)
		destinations = append(destinations, dst)
	}

	cb, err := dev.OneShotCommandBuffer(true)
	if err != nil {
		return nil, err
	}

	for i := range destinations {
		err := dev.Driver.CmdCopyBuffer(cb, staging[i].Handle, destinations[i].Handle, core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      staging[i].Size,
		})
		if err != nil {
			dev.Driver.FreeCommandBuffers(dev.CommandPool, cb)
			return nil, errors.Wrap(err, "vkCmdCopyBuffer")
		}
	}

	if err := dev.SubmitAndWait(cb, dev.GraphicsQueue, true); err != nil {
		return nil, err
	}

	scope.Keep()
	return destinations, nil
}

type ImageUploadInfo struct {
	Format      core1_0.Format
	Width       int
	Height      int
	Layers      int
	CreateFlags core1_0.ImageCreateFlags
	Usage       core1_0.ImageUsageFlags
	Aspect      core1_0.ImageAspectFlags
	FinalLayout core1_0.ImageLayout
	// FinalStage is the first stage that reads the image after the upload.
	FinalStage core1_0.PipelineStageFlags
}

// UploadImage creates an optimally tiled image and fills it from tightly packed pixels, one
// equally sized slice per array layer. Both layout transitions and the copy share one command
// buffer.
func (u *Uploader) UploadImage(pixels []byte, info ImageUploadInfo) (*Image, error) {
	dev := u.device

	if info.Layers == 0 {
		info.Layers = 1
	}
	if info.Aspect == 0 {
		info.Aspect = core1_0.ImageAspectColor
	}
	if info.FinalLayout == core1_0.ImageLayoutUndefined {
		info.FinalLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
	}
	if info.FinalStage == 0 {
		info.FinalStage = core1_0.PipelineStageFragmentShader
	}
	if len(pixels) == 0 || len(pixels)%info.Layers != 0 {
		return nil, errors.Newf("%d bytes of pixels cannot be split into %d layers", len(pixels), info.Layers)
	}
	layerSize := len(pixels) / info.Layers

	staging, err := dev.CreateBuffer(core1_0.BufferUsageTransferSrc, stagingProperties, len(pixels), pixels)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	defer staging.Destroy()

	image, err := dev.CreateImage(core1_0.ImageCreateInfo{
		Flags:     info.CreateFlags,
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   info.Layers,
		Format:        info.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         info.Usage | core1_0.ImageUsageTransferDst,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	scope := &Scope{}
	defer scope.Release()
	scope.Add(image.Destroy)

	cb, err := dev.OneShotCommandBuffer(true)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Image, error) {
		dev.Driver.FreeCommandBuffers(dev.CommandPool, cb)
		return nil, err
	}

	subresource := image.FullRange(info.Aspect)
	err = dev.TransitionImageLayout(cb, image, core1_0.ImageLayoutTransferDstOptimal, subresource,
		core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer)
	if err != nil {
		return fail(err)
	}

	regions := make([]core1_0.BufferImageCopy, 0, info.Layers)
	for layer := 0; layer < info.Layers; layer++ {
		regions = append(regions, core1_0.BufferImageCopy{
			BufferOffset:      layer * layerSize,
			BufferRowLength:   0,
			BufferImageHeight: 0,
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     info.Aspect,
				MipLevel:       0,
				BaseArrayLayer: layer,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: info.Width, Height: info.Height, Depth: 1},
		})
	}
	err = dev.Driver.CmdCopyBufferToImage(cb, staging.Handle, image.Handle, core1_0.ImageLayoutTransferDstOptimal, regions...)
	if err != nil {
		return fail(errors.Wrap(err, "vkCmdCopyBufferToImage"))
	}

	err = dev.TransitionImageLayout(cb, image, info.FinalLayout, subresource,
		core1_0.PipelineStageTransfer, info.FinalStage)
	if err != nil {
		return fail(err)
	}

	if err := dev.SubmitAndWait(cb, dev.GraphicsQueue, true); err != nil {
		return nil, err
	}

	scope.Keep()
	return image, nil
}

// ReadBack copies the contents of a host-visible buffer out to the host.
func (u *Uploader) ReadBack(buffer *Buffer) ([]byte, error) {
	if buffer.Properties&core1_0.MemoryPropertyHostVisible == 0 {
		return nil, errors.Newf("buffer memory is not host visible: %s", buffer.Properties)
	}

	wasMapped := buffer.Mapped() != nil
	data, err := buffer.Map(WholeSize, 0)
	if err != nil {
		return nil, err
	}
	if !wasMapped {
		defer buffer.Unmap()
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
