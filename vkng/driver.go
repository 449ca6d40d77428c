package vkng

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
)

func unknown(kind string, id uint64) error {
	return errors.Newf("unknown %s %d", kind, id)
}

func (b *Backend) GetQueue(family int) gpu.QueueID {
	if id, ok := b.queueIDs[family]; ok {
		return id
	}
	id := b.queues.put(b.device.GetQueue(family, 0))
	b.queueIDs[family] = id
	return id
}

func (b *Backend) FormatProperties(format core1_0.Format) core1_0.FormatProperties {
	return *b.instance.GetPhysicalDeviceFormatProperties(b.physical, format)
}

func (b *Backend) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (gpu.BufferID, error) {
	buffer, _, err := b.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return 0, err
	}
	return b.buffers.put(buffer), nil
}

func (b *Backend) DestroyBuffer(id gpu.BufferID) {
	if buffer, ok := b.buffers.take(id); ok {
		b.device.DestroyBuffer(buffer, nil)
	}
}

func memoryRequirements(reqs *core1_0.MemoryRequirements) gpu.MemoryRequirements {
	return gpu.MemoryRequirements{
		Size:           reqs.Size,
		Alignment:      reqs.Alignment,
		MemoryTypeBits: reqs.MemoryTypeBits,
	}
}

func (b *Backend) BufferMemoryRequirements(id gpu.BufferID) gpu.MemoryRequirements {
	buffer, ok := b.buffers.get(id)
	if !ok {
		return gpu.MemoryRequirements{}
	}
	return memoryRequirements(b.device.GetBufferMemoryRequirements(buffer))
}

func (b *Backend) BindBufferMemory(id gpu.BufferID, memoryID gpu.MemoryID, offset int) error {
	buffer, ok := b.buffers.get(id)
	if !ok {
		return unknown("buffer", uint64(id))
	}
	alloc, ok := b.memory.get(memoryID)
	if !ok {
		return unknown("memory", uint64(memoryID))
	}
	_, err := b.device.BindBufferMemory(buffer, alloc.memory, offset)
	return err
}

// AllocateMemory refuses device address allocations: the backend is created without the
// buffer device address feature.
func (b *Backend) AllocateMemory(size int, memoryTypeIndex int, deviceAddress bool) (gpu.MemoryID, error) {
	if deviceAddress {
		return 0, errors.Wrap(gpu.ErrUnsupported, "device address memory")
	}
	memory, _, err := b.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return 0, err
	}
	return b.memory.put(allocation{memory: memory, size: size}), nil
}

func (b *Backend) FreeMemory(id gpu.MemoryID) {
	if alloc, ok := b.memory.take(id); ok {
		b.device.FreeMemory(alloc.memory, nil)
	}
}

func (b *Backend) MapMemory(id gpu.MemoryID, offset, size int) ([]byte, error) {
	alloc, ok := b.memory.get(id)
	if !ok {
		return nil, unknown("memory", uint64(id))
	}
	if size == gpu.WholeSize {
		size = alloc.size - offset
	}
	if offset < 0 || size < 0 || offset+size > alloc.size {
		return nil, errors.Newf("map range %d+%d outside allocation of %d", offset, size, alloc.size)
	}

	memoryPtr, _, err := b.device.MapMemory(alloc.memory, offset, size, 0)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(memoryPtr), size), nil
}

func (b *Backend) UnmapMemory(id gpu.MemoryID) {
	if alloc, ok := b.memory.get(id); ok {
		b.device.UnmapMemory(alloc.memory)
	}
}

func (b *Backend) FlushMappedMemory(id gpu.MemoryID, offset, size int) error {
	alloc, ok := b.memory.get(id)
	if !ok {
		return unknown("memory", uint64(id))
	}
	if size == gpu.WholeSize {
		size = alloc.size - offset
	}
	_, err := b.device.FlushMappedMemoryRanges([]core1_0.MappedMemoryRange{
		{
			Memory: alloc.memory,
			Offset: offset,
			Size:   size,
		},
	}...)
	return err
}

func (b *Backend) CreateImage(info core1_0.ImageCreateInfo) (gpu.ImageID, error) {
	image, _, err := b.device.CreateImage(nil, info)
	if err != nil {
		return 0, err
	}
	return b.images.put(image), nil
}

func (b *Backend) DestroyImage(id gpu.ImageID) {
	if image, ok := b.images.take(id); ok {
		b.device.DestroyImage(image, nil)
	}
}

func (b *Backend) ImageMemoryRequirements(id gpu.ImageID) gpu.MemoryRequirements {
	image, ok := b.images.get(id)
	if !ok {
		return gpu.MemoryRequirements{}
	}
	return memoryRequirements(b.device.GetImageMemoryRequirements(image))
}

func (b *Backend) BindImageMemory(id gpu.ImageID, memoryID gpu.MemoryID, offset int) error {
	image, ok := b.images.get(id)
	if !ok {
		return unknown("image", uint64(id))
	}
	alloc, ok := b.memory.get(memoryID)
	if !ok {
		return unknown("memory", uint64(memoryID))
	}
	_, err := b.device.BindImageMemory(image, alloc.memory, offset)
	return err
}

func (b *Backend) CreateImageView(info gpu.ImageViewCreateInfo) (gpu.ImageViewID, error) {
	image, ok := b.images.get(info.Image)
	if !ok {
		return 0, unknown("image", uint64(info.Image))
	}

	view, _, err := b.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: info.ViewType,
		Format:   info.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     info.Aspect,
			BaseMipLevel:   0,
			LevelCount:     max(info.MipLevels, 1),
			BaseArrayLayer: 0,
			LayerCount:     max(info.LayerCount, 1),
		},
	})
	if err != nil {
		return 0, err
	}
	return b.views.put(view), nil
}

func (b *Backend) DestroyImageView(id gpu.ImageViewID) {
	if view, ok := b.views.take(id); ok {
		b.device.DestroyImageView(view, nil)
	}
}

func (b *Backend) CreateSampler(info core1_0.SamplerCreateInfo) (gpu.SamplerID, error) {
	sampler, _, err := b.device.CreateSampler(nil, info)
	if err != nil {
		return 0, err
	}
	return b.samplers.put(sampler), nil
}

func (b *Backend) DestroySampler(id gpu.SamplerID) {
	if sampler, ok := b.samplers.take(id); ok {
		b.device.DestroySampler(sampler, nil)
	}
}

func (b *Backend) CreateCommandPool(queueFamily int, flags core1_0.CommandPoolCreateFlags) (gpu.CommandPoolID, error) {
	pool, _, err := b.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            flags,
		QueueFamilyIndex: queueFamily,
	})
	if err != nil {
		return 0, err
	}
	return b.pools.put(pool), nil
}

// DestroyCommandPool also forgets every command buffer allocated from the pool.
func (b *Backend) DestroyCommandPool(id gpu.CommandPoolID) {
	pool, ok := b.pools.take(id)
	if !ok {
		return
	}
	for cbID, cb := range b.commandBuffers.items {
		if cb.pool == id {
			delete(b.commandBuffers.items, cbID)
		}
	}
	b.device.DestroyCommandPool(pool, nil)
}

func (b *Backend) AllocateCommandBuffers(poolID gpu.CommandPoolID, count int) ([]gpu.CommandBufferID, error) {
	pool, ok := b.pools.get(poolID)
	if !ok {
		return nil, unknown("command pool", uint64(poolID))
	}

	buffers, _, err := b.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]gpu.CommandBufferID, 0, len(buffers))
	for _, buffer := range buffers {
		ids = append(ids, b.commandBuffers.put(commandBuffer{buffer: buffer, pool: poolID}))
	}
	return ids, nil
}

func (b *Backend) FreeCommandBuffers(pool gpu.CommandPoolID, ids ...gpu.CommandBufferID) {
	var buffers []core1_0.CommandBuffer
	for _, id := range ids {
		if cb, ok := b.commandBuffers.take(id); ok {
			buffers = append(buffers, cb.buffer)
		}
	}
	if len(buffers) > 0 {
		b.device.FreeCommandBuffers(buffers...)
	}
}

func (b *Backend) commandBuffer(id gpu.CommandBufferID) (core1_0.CommandBuffer, error) {
	cb, ok := b.commandBuffers.get(id)
	if !ok {
		return core1_0.CommandBuffer{}, unknown("command buffer", uint64(id))
	}
	return cb.buffer, nil
}

func (b *Backend) BeginCommandBuffer(id gpu.CommandBufferID, oneTimeSubmit bool) error {
	buffer, err := b.commandBuffer(id)
	if err != nil {
		return err
	}

	var beginInfo core1_0.CommandBufferBeginInfo
	if oneTimeSubmit {
		beginInfo.Flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	_, err = b.device.BeginCommandBuffer(buffer, beginInfo)
	return err
}

func (b *Backend) EndCommandBuffer(id gpu.CommandBufferID) error {
	buffer, err := b.commandBuffer(id)
	if err != nil {
		return err
	}
	_, err = b.device.EndCommandBuffer(buffer)
	return err
}

func (b *Backend) CmdCopyBuffer(id gpu.CommandBufferID, srcID, dstID gpu.BufferID, regions ...core1_0.BufferCopy) error {
	buffer, err := b.commandBuffer(id)
	if err != nil {
		return err
	}
	src, ok := b.buffers.get(srcID)
	if !ok {
		return unknown("buffer", uint64(srcID))
	}
	dst, ok := b.buffers.get(dstID)
	if !ok {
		return unknown("buffer", uint64(dstID))
	}
	return b.device.CmdCopyBuffer(buffer, src, dst, regions...)
}

func (b *Backend) CmdCopyBufferToImage(id gpu.CommandBufferID, srcID gpu.BufferID, dstID gpu.ImageID, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error {
	buffer, err := b.commandBuffer(id)
	if err != nil {
		return err
	}
	src, ok := b.buffers.get(srcID)
	if !ok {
		return unknown("buffer", uint64(srcID))
	}
	dst, ok := b.images.get(dstID)
	if !ok {
		return unknown("image", uint64(dstID))
	}
	return b.device.CmdCopyBufferToImage(buffer, src, dst, layout, regions...)
}

func (b *Backend) CmdImageBarrier(id gpu.CommandBufferID, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...gpu.ImageBarrier) error {
	buffer, err := b.commandBuffer(id)
	if err != nil {
		return err
	}

	imageBarriers := make([]core1_0.ImageMemoryBarrier, 0, len(barriers))
	for _, barrier := range barriers {
		image, ok := b.images.get(barrier.Image)
		if !ok {
			return unknown("image", uint64(barrier.Image))
		}
		imageBarriers = append(imageBarriers, core1_0.ImageMemoryBarrier{
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange:    barrier.Range,
			SrcAccessMask:       barrier.SrcAccessMask,
			DstAccessMask:       barrier.DstAccessMask,
		})
	}
	return b.device.CmdPipelineBarrier(buffer, srcStage, dstStage, 0, nil, nil, imageBarriers)
}

func (b *Backend) CreateFence(signaled bool) (gpu.FenceID, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	fence, _, err := b.device.CreateFence(nil, info)
	if err != nil {
		return 0, err
	}
	return b.fences.put(fence), nil
}

func (b *Backend) DestroyFence(id gpu.FenceID) {
	if fence, ok := b.fences.take(id); ok {
		b.device.DestroyFence(fence, nil)
	}
}

func (b *Backend) fenceHandles(ids []gpu.FenceID) ([]core1_0.Fence, error) {
	fences := make([]core1_0.Fence, 0, len(ids))
	for _, id := range ids {
		fence, ok := b.fences.get(id)
		if !ok {
			return nil, unknown("fence", uint64(id))
		}
		fences = append(fences, fence)
	}
	return fences, nil
}

func (b *Backend) WaitForFences(ids ...gpu.FenceID) error {
	fences, err := b.fenceHandles(ids)
	if err != nil {
		return err
	}
	_, err = b.device.WaitForFences(true, common.NoTimeout, fences...)
	return err
}

func (b *Backend) ResetFences(ids ...gpu.FenceID) error {
	fences, err := b.fenceHandles(ids)
	if err != nil {
		return err
	}
	_, err = b.device.ResetFences(fences...)
	return err
}

func (b *Backend) CreateSemaphore() (gpu.SemaphoreID, error) {
	semaphore, _, err := b.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return 0, err
	}
	return b.semaphores.put(semaphore), nil
}

func (b *Backend) DestroySemaphore(id gpu.SemaphoreID) {
	if semaphore, ok := b.semaphores.take(id); ok {
		b.device.DestroySemaphore(semaphore, nil)
	}
}

func (b *Backend) semaphoreHandles(ids []gpu.SemaphoreID) ([]core1_0.Semaphore, error) {
	semaphores := make([]core1_0.Semaphore, 0, len(ids))
	for _, id := range ids {
		semaphore, ok := b.semaphores.get(id)
		if !ok {
			return nil, unknown("semaphore", uint64(id))
		}
		semaphores = append(semaphores, semaphore)
	}
	return semaphores, nil
}

func (b *Backend) QueueSubmit(queueID gpu.QueueID, fenceID gpu.FenceID, submits ...gpu.SubmitInfo) error {
	queue, ok := b.queues.get(queueID)
	if !ok {
		return unknown("queue", uint64(queueID))
	}

	var fence *core1_0.Fence
	if fenceID != 0 {
		handle, ok := b.fences.get(fenceID)
		if !ok {
			return unknown("fence", uint64(fenceID))
		}
		fence = &handle
	}

	infos := make([]core1_0.SubmitInfo, 0, len(submits))
	for _, submit := range submits {
		waits, err := b.semaphoreHandles(submit.WaitSemaphores)
		if err != nil {
			return err
		}
		signals, err := b.semaphoreHandles(submit.SignalSemaphores)
		if err != nil {
			return err
		}
		buffers := make([]core1_0.CommandBuffer, 0, len(submit.CommandBuffers))
		for _, id := range submit.CommandBuffers {
			buffer, err := b.commandBuffer(id)
			if err != nil {
				return err
			}
			buffers = append(buffers, buffer)
		}

		infos = append(infos, core1_0.SubmitInfo{
			WaitSemaphores:   waits,
			WaitDstStageMask: submit.WaitStages,
			CommandBuffers:   buffers,
			SignalSemaphores: signals,
		})
	}

	_, err := b.device.QueueSubmit(queue, fence, infos...)
	return err
}

func (b *Backend) QueueWaitIdle(id gpu.QueueID) error {
	queue, ok := b.queues.get(id)
	if !ok {
		return unknown("queue", uint64(id))
	}
	_, err := b.device.QueueWaitIdle(queue)
	return err
}

func (b *Backend) DeviceWaitIdle() error {
	_, err := b.device.DeviceWaitIdle()
	return err
}

func (b *Backend) CreateShaderModule(code []uint32) (gpu.ShaderModuleID, error) {
	module, _, err := b.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return 0, err
	}
	return b.shaderModules.put(module), nil
}

func (b *Backend) DestroyShaderModule(id gpu.ShaderModuleID) {
	if module, ok := b.shaderModules.take(id); ok {
		b.device.DestroyShaderModule(module, nil)
	}
}

func (b *Backend) CreatePipelineCache() (gpu.PipelineCacheID, error) {
	cache, _, err := b.device.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{})
	if err != nil {
		return 0, err
	}
	return b.pipelineCaches.put(cache), nil
}

func (b *Backend) DestroyPipelineCache(id gpu.PipelineCacheID) {
	if cache, ok := b.pipelineCaches.take(id); ok {
		b.device.DestroyPipelineCache(cache, nil)
	}
}
