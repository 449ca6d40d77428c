package vkng

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
)

// The resolvers return the zero handle for ids the backend does not know.

func (b *Backend) DeviceDriver() core1_0.CoreDeviceDriver {
	return b.device
}

func (b *Backend) PhysicalDevice() core1_0.PhysicalDevice {
	return b.physical
}

func (b *Backend) Buffer(id gpu.BufferID) core1_0.Buffer {
	buffer, _ := b.buffers.get(id)
	return buffer
}

func (b *Backend) Image(id gpu.ImageID) core1_0.Image {
	image, _ := b.images.get(id)
	return image
}

func (b *Backend) ImageView(id gpu.ImageViewID) core1_0.ImageView {
	view, _ := b.views.get(id)
	return view
}

func (b *Backend) Sampler(id gpu.SamplerID) core1_0.Sampler {
	sampler, _ := b.samplers.get(id)
	return sampler
}

func (b *Backend) CommandBuffer(id gpu.CommandBufferID) core1_0.CommandBuffer {
	cb, _ := b.commandBuffers.get(id)
	return cb.buffer
}

func (b *Backend) ShaderModule(id gpu.ShaderModuleID) core1_0.ShaderModule {
	module, _ := b.shaderModules.get(id)
	return module
}

func (b *Backend) PipelineCache(id gpu.PipelineCacheID) core1_0.PipelineCache {
	cache, _ := b.pipelineCaches.get(id)
	return cache
}
