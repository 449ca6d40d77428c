package fakevk

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/vkbase/gpu"
)

func (d *Driver) SurfaceCapabilities() (khr_surface.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("SurfaceCapabilities"); err != nil {
		return khr_surface.SurfaceCapabilities{}, err
	}
	return d.Capabilities, nil
}

func (d *Driver) SurfaceFormats() ([]khr_surface.SurfaceFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("SurfaceFormats"); err != nil {
		return nil, err
	}
	return append([]khr_surface.SurfaceFormat(nil), d.SurfaceFormatList...), nil
}

func (d *Driver) SurfacePresentModes() ([]khr_surface.PresentMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("SurfacePresentModes"); err != nil {
		return nil, err
	}
	return append([]khr_surface.PresentMode(nil), d.PresentModes...), nil
}

func (d *Driver) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.SwapchainID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateSwapchain"); err != nil {
		return 0, err
	}
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		return 0, errors.Newf("zero sized swapchain %dx%d", info.Extent.Width, info.Extent.Height)
	}
	if info.OldSwapchain != 0 && !d.isLive(KindSwapchain, uint64(info.OldSwapchain)) {
		return 0, errors.Newf("old swapchain %d is not live", info.OldSwapchain)
	}

	id := gpu.SwapchainID(d.add(KindSwapchain))
	obj := &swapchainObject{info: info}
	for i := 0; i < info.MinImageCount; i++ {
		d.next++
		obj.images = append(obj.images, gpu.ImageID(d.next))
	}
	d.swapchains[id] = obj
	d.SwapchainCount++
	return id, nil
}

func (d *Driver) DestroySwapchain(swapchain gpu.SwapchainID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroySwapchain")
	d.remove(KindSwapchain, uint64(swapchain))
	delete(d.swapchains, swapchain)
}

func (d *Driver) SwapchainImages(swapchain gpu.SwapchainID) ([]gpu.ImageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("SwapchainImages"); err != nil {
		return nil, err
	}
	obj, ok := d.swapchains[swapchain]
	if !ok {
		return nil, errors.Newf("images of unknown swapchain %d", swapchain)
	}
	return append([]gpu.ImageID(nil), obj.images...), nil
}

func popStatus(statuses *[]gpu.PresentStatus) gpu.PresentStatus {
	if len(*statuses) == 0 {
		return gpu.StatusSuccess
	}
	status := (*statuses)[0]
	*statuses = (*statuses)[1:]
	return status
}

func (d *Driver) AcquireNextImage(swapchain gpu.SwapchainID, signal gpu.SemaphoreID) (int, gpu.PresentStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("AcquireNextImage"); err != nil {
		return 0, gpu.StatusSuccess, err
	}
	obj, ok := d.swapchains[swapchain]
	if !ok {
		return 0, gpu.StatusSuccess, errors.Newf("acquire from retired swapchain %d", swapchain)
	}
	if !d.isLive(KindSemaphore, uint64(signal)) {
		return 0, gpu.StatusSuccess, errors.Newf("acquire signaling unknown semaphore %d", signal)
	}

	status := popStatus(&d.AcquireStatuses)
	if status == gpu.StatusOutOfDate {
		return 0, status, nil
	}
	index := d.callCount("AcquireNextImage") % len(obj.images)
	return index, status, nil
}

func (d *Driver) QueuePresent(queue gpu.QueueID, swapchain gpu.SwapchainID, imageIndex int, wait gpu.SemaphoreID) (gpu.PresentStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("QueuePresent"); err != nil {
		return gpu.StatusSuccess, err
	}
	obj, ok := d.swapchains[swapchain]
	if !ok {
		return gpu.StatusSuccess, errors.Newf("present to retired swapchain %d", swapchain)
	}
	if imageIndex < 0 || imageIndex >= len(obj.images) {
		return gpu.StatusSuccess, errors.Newf("present of image %d out of %d", imageIndex, len(obj.images))
	}
	return popStatus(&d.PresentStatuses), nil
}

func (d *Driver) callCount(method string) int {
	count := 0
	for _, call := range d.calls {
		if call == method {
			count++
		}
	}
	return count
}

func (d *Driver) BufferDeviceAddress(buffer gpu.BufferID) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.RayTracing {
		return 0, gpu.ErrUnsupported
	}
	if err := d.call("BufferDeviceAddress"); err != nil {
		return 0, err
	}
	obj, ok := d.buffers[buffer]
	if !ok {
		return 0, errors.Newf("address of unknown buffer %d", buffer)
	}
	if block, ok := d.memory[obj.memory]; !ok || !block.address {
		return 0, errors.New("buffer memory was not allocated with device address support")
	}
	if obj.address == 0 {
		obj.address = 0x10000000 + uint64(buffer)<<16
	}
	return obj.address, nil
}

func (d *Driver) CreateAccelerationStructure(buffer gpu.BufferID, size int, kind gpu.AccelStructType) (gpu.AccelStructID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.RayTracing {
		return 0, gpu.ErrUnsupported
	}
	if err := d.call("CreateAccelerationStructure"); err != nil {
		return 0, err
	}
	obj, ok := d.buffers[buffer]
	if !ok {
		return 0, errors.Newf("acceleration structure on unknown buffer %d", buffer)
	}
	if size > obj.size {
		return 0, errors.Newf("acceleration structure of %d bytes on a %d byte buffer", size, obj.size)
	}
	id := gpu.AccelStructID(d.add(KindAccelStruct))
	d.accelStructs[id] = 0x20000000 + uint64(id)<<16
	return id, nil
}

func (d *Driver) AccelerationStructureAddress(as gpu.AccelStructID) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.RayTracing {
		return 0, gpu.ErrUnsupported
	}
	address, ok := d.accelStructs[as]
	if !ok {
		return 0, errors.Newf("address of unknown acceleration structure %d", as)
	}
	return address, nil
}

func (d *Driver) DestroyAccelerationStructure(as gpu.AccelStructID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyAccelerationStructure")
	d.remove(KindAccelStruct, uint64(as))
	delete(d.accelStructs, as)
}

var (
	_ gpu.Driver           = (*Driver)(nil)
	_ gpu.SurfaceDriver    = (*Driver)(nil)
	_ gpu.RayTracingDriver = (*Driver)(nil)
)
