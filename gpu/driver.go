package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// Handles are indices into the driver's arenas. Zero is the null handle.
type (
	BufferID        uint64
	MemoryID        uint64
	ImageID         uint64
	ImageViewID     uint64
	SamplerID       uint64
	CommandPoolID   uint64
	CommandBufferID uint64
	FenceID         uint64
	SemaphoreID     uint64
	QueueID         uint64
	ShaderModuleID  uint64
	PipelineCacheID uint64
	SwapchainID     uint64
	AccelStructID   uint64
)

// WholeSize maps or flushes everything from the offset to the end of the allocation.
const WholeSize = -1

type MemoryRequirements struct {
	Size           int
	Alignment      int
	MemoryTypeBits uint32
}

type ImageViewCreateInfo struct {
	Image      ImageID
	ViewType   core1_0.ImageViewType
	Format     core1_0.Format
	Aspect     core1_0.ImageAspectFlags
	MipLevels  int
	LayerCount int
}

type ImageBarrier struct {
	Image         ImageID
	OldLayout     core1_0.ImageLayout
	NewLayout     core1_0.ImageLayout
	SrcAccessMask core1_0.AccessFlags
	DstAccessMask core1_0.AccessFlags
	Range         core1_0.ImageSubresourceRange
}

type SubmitInfo struct {
	WaitSemaphores   []SemaphoreID
	WaitStages       []core1_0.PipelineStageFlags
	CommandBuffers   []CommandBufferID
	SignalSemaphores []SemaphoreID
}

// Driver is the device-level slice of Vulkan the resource layer needs.
type Driver interface {
	GetQueue(family int) QueueID
	FormatProperties(format core1_0.Format) core1_0.FormatProperties

	CreateBuffer(size int, usage core1_0.BufferUsageFlags) (BufferID, error)
	DestroyBuffer(buffer BufferID)
	BufferMemoryRequirements(buffer BufferID) MemoryRequirements
	BindBufferMemory(buffer BufferID, memory MemoryID, offset int) error

	AllocateMemory(size int, memoryTypeIndex int, deviceAddress bool) (MemoryID, error)
	FreeMemory(memory MemoryID)
	MapMemory(memory MemoryID, offset, size int) ([]byte, error)
	UnmapMemory(memory MemoryID)
	FlushMappedMemory(memory MemoryID, offset, size int) error

	CreateImage(info core1_0.ImageCreateInfo) (ImageID, error)
	DestroyImage(image ImageID)
	ImageMemoryRequirements(image ImageID) MemoryRequirements
	BindImageMemory(image ImageID, memory MemoryID, offset int) error
	CreateImageView(info ImageViewCreateInfo) (ImageViewID, error)
	DestroyImageView(view ImageViewID)
	CreateSampler(info core1_0.SamplerCreateInfo) (SamplerID, error)
	DestroySampler(sampler SamplerID)

	CreateCommandPool(queueFamily int, flags core1_0.CommandPoolCreateFlags) (CommandPoolID, error)
	DestroyCommandPool(pool CommandPoolID)
	AllocateCommandBuffers(pool CommandPoolID, count int) ([]CommandBufferID, error)
	FreeCommandBuffers(pool CommandPoolID, buffers ...CommandBufferID)
	BeginCommandBuffer(buffer CommandBufferID, oneTimeSubmit bool) error
	EndCommandBuffer(buffer CommandBufferID) error
	CmdCopyBuffer(buffer CommandBufferID, src, dst BufferID, regions ...core1_0.BufferCopy) error
	CmdCopyBufferToImage(buffer CommandBufferID, src BufferID, dst ImageID, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error
	CmdImageBarrier(buffer CommandBufferID, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...ImageBarrier) error

	CreateFence(signaled bool) (FenceID, error)
	DestroyFence(fence FenceID)
	WaitForFences(fences ...FenceID) error
	ResetFences(fences ...FenceID) error
	CreateSemaphore() (SemaphoreID, error)
	DestroySemaphore(semaphore SemaphoreID)
	QueueSubmit(queue QueueID, fence FenceID, submits ...SubmitInfo) error
	QueueWaitIdle(queue QueueID) error
	DeviceWaitIdle() error

	CreateShaderModule(code []uint32) (ShaderModuleID, error)
	DestroyShaderModule(module ShaderModuleID)

	CreatePipelineCache() (PipelineCacheID, error)
	DestroyPipelineCache(cache PipelineCacheID)
}

// PresentStatus separates a usable chain from one that has to be rebuilt.
type PresentStatus int

const (
	StatusSuccess PresentStatus = iota
	StatusSuboptimal
	StatusOutOfDate
)

func (s PresentStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// NeedsRecreate is true for the two statuses the resize path recovers from.
func (s PresentStatus) NeedsRecreate() bool {
	return s == StatusSuboptimal || s == StatusOutOfDate
}

type SwapchainCreateInfo struct {
	MinImageCount      int
	Format             core1_0.Format
	ColorSpace         khr_surface.ColorSpace
	Extent             core1_0.Extent2D
	PresentMode        khr_surface.PresentMode
	PreTransform       khr_surface.SurfaceTransformFlags
	QueueFamilyIndices []int
	OldSwapchain       SwapchainID
}

// SurfaceDriver covers the presentation surface and its swapchains.
type SurfaceDriver interface {
	SurfaceCapabilities() (khr_surface.SurfaceCapabilities, error)
	SurfaceFormats() ([]khr_surface.SurfaceFormat, error)
	SurfacePresentModes() ([]khr_surface.PresentMode, error)

	CreateSwapchain(info SwapchainCreateInfo) (SwapchainID, error)
	DestroySwapchain(swapchain SwapchainID)
	SwapchainImages(swapchain SwapchainID) ([]ImageID, error)
	AcquireNextImage(swapchain SwapchainID, signal SemaphoreID) (int, PresentStatus, error)
	QueuePresent(queue QueueID, swapchain SwapchainID, imageIndex int, wait SemaphoreID) (PresentStatus, error)
}

type AccelStructType int

const (
	AccelStructTopLevel AccelStructType = iota
	AccelStructBottomLevel
)

// RayTracingDriver exposes buffer device addresses and acceleration structure objects.
type RayTracingDriver interface {
	BufferDeviceAddress(buffer BufferID) (uint64, error)
	CreateAccelerationStructure(buffer BufferID, size int, kind AccelStructType) (AccelStructID, error)
	AccelerationStructureAddress(as AccelStructID) (uint64, error)
	DestroyAccelerationStructure(as AccelStructID)
}
