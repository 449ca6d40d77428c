package raytracing

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
)

// StorageImage is the GENERAL layout image ray generation shaders write into before it is
// copied to the swapchain.
type StorageImage struct {
	device *gpu.Device

	*gpu.Image
	View gpu.ImageViewID
}

func CreateStorageImage(dev *gpu.Device, format core1_0.Format, extent core1_0.Extent2D) (*StorageImage, error) {
	storage := &StorageImage{device: dev}
	if err := storage.Recreate(format, extent); err != nil {
		return nil, err
	}
	return storage, nil
}

// Recreate replaces the image with one of the new extent, as needed after a resize.
func (s *StorageImage) Recreate(format core1_0.Format, extent core1_0.Extent2D) error {
	s.Destroy()
	dev := s.device

	scope := &gpu.Scope{}
	defer scope.Release()

	image, err := dev.CreateImage(core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Format:        format,
		Extent:        core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         core1_0.ImageUsageTransferSrc | core1_0.ImageUsageStorage,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return errors.Wrap(err, "create storage image")
	}
	scope.Add(image.Destroy)

	view, err := dev.CreateImageView(gpu.ImageViewCreateInfo{
		Image:      image.Handle,
		ViewType:   core1_0.ImageViewType2D,
		Format:     format,
		Aspect:     core1_0.ImageAspectColor,
		MipLevels:  1,
		LayerCount: 1,
	})
	if err != nil {
		return err
	}
	scope.Add(func() { dev.Driver.DestroyImageView(view) })

	cb, err := dev.OneShotCommandBuffer(true)
	if err != nil {
		return err
	}
	err = dev.TransitionImageLayout(cb, image, core1_0.ImageLayoutGeneral, image.FullRange(core1_0.ImageAspectColor),
		core1_0.PipelineStageAllCommands, core1_0.PipelineStageAllCommands)
	if err != nil {
		dev.Driver.FreeCommandBuffers(dev.CommandPool, cb)
		return err
	}
	if err := dev.SubmitAndWait(cb, dev.GraphicsQueue, true); err != nil {
		return err
	}

	scope.Keep()
	s.Image = image
	s.View = view
	return nil
}

func (s *StorageImage) Destroy() {
	if s == nil || s.Image == nil {
		return
	}
	s.device.Driver.DestroyImageView(s.View)
	s.Image.Destroy()
	s.Image = nil
	s.View = 0
}
