package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkbase/gpu"
)

func (b *Backend) SurfaceCapabilities() (khr_surface.SurfaceCapabilities, error) {
	capabilities, _, err := b.surfaceDriver.GetPhysicalDeviceSurfaceCapabilities(b.surface, b.physical)
	if err != nil {
		return khr_surface.SurfaceCapabilities{}, err
	}
	return *capabilities, nil
}

func (b *Backend) SurfaceFormats() ([]khr_surface.SurfaceFormat, error) {
	formats, _, err := b.surfaceDriver.GetPhysicalDeviceSurfaceFormats(b.surface, b.physical)
	return formats, err
}

func (b *Backend) SurfacePresentModes() ([]khr_surface.PresentMode, error) {
	presentModes, _, err := b.surfaceDriver.GetPhysicalDeviceSurfacePresentModes(b.surface, b.physical)
	return presentModes, err
}

// CreateSwapchain builds a chain whose images can be rendered to and copied into.
func (b *Backend) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.SwapchainID, error) {
	sharingMode := core1_0.SharingModeExclusive
	if len(info.QueueFamilyIndices) > 1 {
		sharingMode = core1_0.SharingModeConcurrent
	}

	var oldSwapchain khr_swapchain.Swapchain
	if info.OldSwapchain != 0 {
		entry, ok := b.swapchains.get(info.OldSwapchain)
		if !ok {
			return 0, unknown("swapchain", uint64(info.OldSwapchain))
		}
		oldSwapchain = entry.handle
	}

	swapchain, _, err := b.swapchainDriver.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: b.surface,

		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.Format,
		ImageColorSpace:  info.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment | core1_0.ImageUsageTransferDst,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: info.QueueFamilyIndices,

		PreTransform:   info.PreTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    info.PresentMode,
		Clipped:        true,
		OldSwapchain:   oldSwapchain,
	})
	if err != nil {
		return 0, err
	}
	return b.swapchains.put(&swapchainEntry{handle: swapchain}), nil
}

// DestroySwapchain also retires the ids handed out for the chain's images.
func (b *Backend) DestroySwapchain(id gpu.SwapchainID) {
	entry, ok := b.swapchains.take(id)
	if !ok {
		return
	}
	for _, image := range entry.images {
		b.images.take(image)
	}
	b.swapchainDriver.DestroySwapchain(entry.handle, nil)
}

func (b *Backend) SwapchainImages(id gpu.SwapchainID) ([]gpu.ImageID, error) {
	entry, ok := b.swapchains.get(id)
	if !ok {
		return nil, unknown("swapchain", uint64(id))
	}
	if entry.images != nil {
		return entry.images, nil
	}

	images, _, err := b.swapchainDriver.GetSwapchainImages(entry.handle)
	if err != nil {
		return nil, err
	}
	for _, image := range images {
		entry.images = append(entry.images, b.images.put(image))
	}
	return entry.images, nil
}

func presentStatus(res common.VkResult) (gpu.PresentStatus, bool) {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return gpu.StatusOutOfDate, true
	case khr_swapchain.VKSuboptimal:
		return gpu.StatusSuboptimal, true
	}
	return gpu.StatusSuccess, false
}

func (b *Backend) AcquireNextImage(id gpu.SwapchainID, signal gpu.SemaphoreID) (int, gpu.PresentStatus, error) {
	entry, ok := b.swapchains.get(id)
	if !ok {
		return 0, gpu.StatusSuccess, unknown("swapchain", uint64(id))
	}
	semaphore, ok := b.semaphores.get(signal)
	if !ok {
		return 0, gpu.StatusSuccess, unknown("semaphore", uint64(signal))
	}

	imageIndex, res, err := b.swapchainDriver.AcquireNextImage(entry.handle, common.NoTimeout, &semaphore, nil)
	if status, stale := presentStatus(res); stale {
		return imageIndex, status, nil
	}
	if err != nil {
		return 0, gpu.StatusSuccess, err
	}
	return imageIndex, gpu.StatusSuccess, nil
}

func (b *Backend) QueuePresent(queueID gpu.QueueID, id gpu.SwapchainID, imageIndex int, wait gpu.SemaphoreID) (gpu.PresentStatus, error) {
	queue, ok := b.queues.get(queueID)
	if !ok {
		return gpu.StatusSuccess, unknown("queue", uint64(queueID))
	}
	entry, ok := b.swapchains.get(id)
	if !ok {
		return gpu.StatusSuccess, unknown("swapchain", uint64(id))
	}
	semaphore, ok := b.semaphores.get(wait)
	if !ok {
		return gpu.StatusSuccess, unknown("semaphore", uint64(wait))
	}

	res, err := b.swapchainDriver.QueuePresent(queue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{semaphore},
		Swapchains:     []khr_swapchain.Swapchain{entry.handle},
		ImageIndices:   []int{imageIndex},
	})
	if status, stale := presentStatus(res); stale {
		return status, nil
	}
	return gpu.StatusSuccess, err
}

// The backend enables neither buffer device addresses nor acceleration structures.

func (b *Backend) BufferDeviceAddress(buffer gpu.BufferID) (uint64, error) {
	return 0, errors.Wrap(gpu.ErrUnsupported, "vkGetBufferDeviceAddress")
}

func (b *Backend) CreateAccelerationStructure(buffer gpu.BufferID, size int, kind gpu.AccelStructType) (gpu.AccelStructID, error) {
	return 0, errors.Wrap(gpu.ErrUnsupported, "vkCreateAccelerationStructureKHR")
}

func (b *Backend) AccelerationStructureAddress(as gpu.AccelStructID) (uint64, error) {
	return 0, errors.Wrap(gpu.ErrUnsupported, "vkGetAccelerationStructureDeviceAddressKHR")
}

func (b *Backend) DestroyAccelerationStructure(as gpu.AccelStructID) {}

var (
	_ gpu.Driver           = (*Backend)(nil)
	_ gpu.SurfaceDriver    = (*Backend)(nil)
	_ gpu.RayTracingDriver = (*Backend)(nil)
)
