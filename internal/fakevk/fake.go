// Package fakevk is an in-memory stand-in for the Vulkan driver. It counts live handles per
// kind, keeps host-visible memory as byte slices, executes recorded copies on submit and can be
// scripted to report stale swapchains or to fail individual calls.
package fakevk

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/vkbase/gpu"
)

type Kind string

const (
	KindBuffer        Kind = "buffer"
	KindMemory        Kind = "memory"
	KindImage         Kind = "image"
	KindImageView     Kind = "imageView"
	KindSampler       Kind = "sampler"
	KindCommandPool   Kind = "commandPool"
	KindCommandBuffer Kind = "commandBuffer"
	KindFence         Kind = "fence"
	KindSemaphore     Kind = "semaphore"
	KindShaderModule  Kind = "shaderModule"
	KindPipelineCache Kind = "pipelineCache"
	KindSwapchain     Kind = "swapchain"
	KindAccelStruct   Kind = "accelerationStructure"
)

var ErrInjected = errors.New("injected driver failure")

type memoryBlock struct {
	data      []byte
	typeIndex int
	mapped    bool
	address   bool
}

type bufferObject struct {
	size    int
	usage   core1_0.BufferUsageFlags
	memory  gpu.MemoryID
	offset  int
	address uint64
}

type imageObject struct {
	info   core1_0.ImageCreateInfo
	memory gpu.MemoryID
	layout core1_0.ImageLayout
	data   []byte
}

type commandBuffer struct {
	pool      gpu.CommandPoolID
	recording bool
	commands  []func()
}

type swapchainObject struct {
	info   gpu.SwapchainCreateInfo
	images []gpu.ImageID
}

type Driver struct {
	mu sync.Mutex

	next uint64
	live map[Kind]map[uint64]struct{}

	memory         map[gpu.MemoryID]*memoryBlock
	buffers        map[gpu.BufferID]*bufferObject
	images         map[gpu.ImageID]*imageObject
	commandBuffers map[gpu.CommandBufferID]*commandBuffer
	fences         map[gpu.FenceID]bool
	swapchains     map[gpu.SwapchainID]*swapchainObject
	accelStructs   map[gpu.AccelStructID]uint64
	poolFlags      map[gpu.CommandPoolID]core1_0.CommandPoolCreateFlags

	failures map[string]error
	calls    []string

	MemoryTypes       []gpu.MemoryType
	Formats           map[core1_0.Format]core1_0.FormatProperties
	Capabilities      khr_surface.SurfaceCapabilities
	SurfaceFormatList []khr_surface.SurfaceFormat
	PresentModes      []khr_surface.PresentMode

	// Statuses popped by the next AcquireNextImage / QueuePresent calls.
	AcquireStatuses []gpu.PresentStatus
	PresentStatuses []gpu.PresentStatus

	Submits        int
	SwapchainCount int
	RayTracing     bool
}

// DefaultMemoryTypes models a discrete GPU with a small host-visible device-local window.
func DefaultMemoryTypes() []gpu.MemoryType {
	return []gpu.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent | core1_0.MemoryPropertyHostCached, HeapIndex: 1},
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 0},
	}
}

func New() *Driver {
	depthFeatures := core1_0.FormatProperties{OptimalTilingFeatures: core1_0.FormatFeatureDepthStencilAttachment}
	return &Driver{
		live:           map[Kind]map[uint64]struct{}{},
		memory:         map[gpu.MemoryID]*memoryBlock{},
		buffers:        map[gpu.BufferID]*bufferObject{},
		images:         map[gpu.ImageID]*imageObject{},
		commandBuffers: map[gpu.CommandBufferID]*commandBuffer{},
		fences:         map[gpu.FenceID]bool{},
		swapchains:     map[gpu.SwapchainID]*swapchainObject{},
		accelStructs:   map[gpu.AccelStructID]uint64{},
		poolFlags:      map[gpu.CommandPoolID]core1_0.CommandPoolCreateFlags{},
		failures:       map[string]error{},

		MemoryTypes: DefaultMemoryTypes(),
		Formats: map[core1_0.Format]core1_0.FormatProperties{
			core1_0.FormatD32SignedFloatS8UnsignedInt:        depthFeatures,
			core1_0.FormatD24UnsignedNormalizedS8UnsignedInt: depthFeatures,
		},
		Capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  3,
			CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
		},
		SurfaceFormatList: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
	}
}

// PhysicalDevice describes a device backed by this driver that passes every requirement.
func (d *Driver) PhysicalDevice() gpu.PhysicalDeviceInfo {
	return gpu.PhysicalDeviceInfo{
		Name:       "fake GPU",
		Discrete:   true,
		APIVersion: "1.2.0",
		Features: map[gpu.Feature]bool{
			gpu.FeatureSamplerAnisotropy: true,
		},
		Extensions:           map[string]bool{"VK_KHR_swapchain": true},
		MaxSamplerAnisotropy: 16,
		ColorSampleCounts:    core1_0.Samples1 | core1_0.Samples2 | core1_0.Samples4 | core1_0.Samples8,
		DepthSampleCounts:    core1_0.Samples1 | core1_0.Samples2 | core1_0.Samples4,
		MemoryTypes:          d.MemoryTypes,
		QueueFamilies: []gpu.QueueFamily{
			{Index: 0, QueueCount: 1, Graphics: true, Present: true},
		},
		SurfaceFormatCount: len(d.SurfaceFormatList),
		PresentModeCount:   len(d.PresentModes),
	}
}

// FailOn makes the named driver method return err (ErrInjected when nil) until cleared.
func (d *Driver) FailOn(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	d.failures[method] = err
}

func (d *Driver) ClearFailures() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = map[string]error{}
}

// Calls returns the names of every driver method invoked so far, in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Driver) CallCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callCount(method)
}

func (d *Driver) Live(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live[kind])
}

// Leaks lists every kind that still has live handles, with counts.
func (d *Driver) Leaks() map[Kind]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	leaks := map[Kind]int{}
	for kind, handles := range d.live {
		if len(handles) > 0 {
			leaks[kind] = len(handles)
		}
	}
	return leaks
}

func (d *Driver) LiveKinds() []Kind {
	leaks := d.Leaks()
	kinds := make([]Kind, 0, len(leaks))
	for kind := range leaks {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (d *Driver) ImageLayout(image gpu.ImageID) core1_0.ImageLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	if obj, ok := d.images[image]; ok {
		return obj.layout
	}
	return core1_0.ImageLayoutUndefined
}

// ImageData returns the bytes copied into an image by CmdCopyBufferToImage.
func (d *Driver) ImageData(image gpu.ImageID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if obj, ok := d.images[image]; ok {
		return append([]byte(nil), obj.data...)
	}
	return nil
}

func (d *Driver) ImageInfo(image gpu.ImageID) core1_0.ImageCreateInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if obj, ok := d.images[image]; ok {
		return obj.info
	}
	return core1_0.ImageCreateInfo{}
}

func (d *Driver) SwapchainInfo(swapchain gpu.SwapchainID) (gpu.SwapchainCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.swapchains[swapchain]
	if !ok {
		return gpu.SwapchainCreateInfo{}, false
	}
	return obj.info, true
}

func (d *Driver) call(method string) error {
	d.calls = append(d.calls, method)
	return d.failures[method]
}

func (d *Driver) add(kind Kind) uint64 {
	d.next++
	if d.live[kind] == nil {
		d.live[kind] = map[uint64]struct{}{}
	}
	d.live[kind][d.next] = struct{}{}
	return d.next
}

func (d *Driver) remove(kind Kind, handle uint64) {
	if handle == 0 {
		return
	}
	delete(d.live[kind], handle)
}

func (d *Driver) isLive(kind Kind, handle uint64) bool {
	_, ok := d.live[kind][handle]
	return ok
}

func (d *Driver) GetQueue(family int) gpu.QueueID {
	return gpu.QueueID(family + 1)
}

func (d *Driver) FormatProperties(format core1_0.Format) core1_0.FormatProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Formats[format]
}

func (d *Driver) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (gpu.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateBuffer"); err != nil {
		return 0, err
	}
	id := gpu.BufferID(d.add(KindBuffer))
	d.buffers[id] = &bufferObject{size: size, usage: usage}
	return id, nil
}

func (d *Driver) DestroyBuffer(buffer gpu.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyBuffer")
	d.remove(KindBuffer, uint64(buffer))
	delete(d.buffers, buffer)
}

func (d *Driver) BufferMemoryRequirements(buffer gpu.BufferID) gpu.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	size := 0
	if obj, ok := d.buffers[buffer]; ok {
		size = obj.size
	}
	return gpu.MemoryRequirements{
		Size:           alignUp(size, 256),
		Alignment:      256,
		MemoryTypeBits: allTypeBits(len(d.MemoryTypes)),
	}
}

func (d *Driver) BindBufferMemory(buffer gpu.BufferID, memory gpu.MemoryID, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("BindBufferMemory"); err != nil {
		return err
	}
	obj, ok := d.buffers[buffer]
	if !ok || !d.isLive(KindMemory, uint64(memory)) {
		return errors.Newf("bind of unknown buffer %d or memory %d", buffer, memory)
	}
	obj.memory = memory
	obj.offset = offset
	return nil
}

func (d *Driver) AllocateMemory(size int, memoryTypeIndex int, deviceAddress bool) (gpu.MemoryID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("AllocateMemory"); err != nil {
		return 0, err
	}
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(d.MemoryTypes) {
		return 0, errors.Newf("memory type %d out of range", memoryTypeIndex)
	}
	id := gpu.MemoryID(d.add(KindMemory))
	d.memory[id] = &memoryBlock{data: make([]byte, size), typeIndex: memoryTypeIndex, address: deviceAddress}
	return id, nil
}

func (d *Driver) FreeMemory(memory gpu.MemoryID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("FreeMemory")
	d.remove(KindMemory, uint64(memory))
	delete(d.memory, memory)
}

func (d *Driver) MapMemory(memory gpu.MemoryID, offset, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("MapMemory"); err != nil {
		return nil, err
	}
	block, ok := d.memory[memory]
	if !ok {
		return nil, errors.Newf("map of unknown memory %d", memory)
	}
	if d.MemoryTypes[block.typeIndex].PropertyFlags&core1_0.MemoryPropertyHostVisible == 0 {
		return nil, errors.New("map of memory that is not host visible")
	}
	if block.mapped {
		return nil, errors.New("memory is already mapped")
	}
	if size == gpu.WholeSize {
		size = len(block.data) - offset
	}
	if offset < 0 || offset+size > len(block.data) {
		return nil, errors.Newf("map range %d+%d outside allocation of %d", offset, size, len(block.data))
	}
	block.mapped = true
	return block.data[offset : offset+size : offset+size], nil
}

func (d *Driver) UnmapMemory(memory gpu.MemoryID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("UnmapMemory")
	if block, ok := d.memory[memory]; ok {
		block.mapped = false
	}
}

func (d *Driver) FlushMappedMemory(memory gpu.MemoryID, offset, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.call("FlushMappedMemory")
}

func (d *Driver) CreateImage(info core1_0.ImageCreateInfo) (gpu.ImageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateImage"); err != nil {
		return 0, err
	}
	id := gpu.ImageID(d.add(KindImage))
	d.images[id] = &imageObject{info: info, layout: info.InitialLayout}
	return id, nil
}

func (d *Driver) DestroyImage(image gpu.ImageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyImage")
	d.remove(KindImage, uint64(image))
	delete(d.images, image)
}

func (d *Driver) ImageMemoryRequirements(image gpu.ImageID) gpu.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	size := 0
	if obj, ok := d.images[image]; ok {
		size = obj.info.Extent.Width * obj.info.Extent.Height * obj.info.Extent.Depth * obj.info.ArrayLayers * 4
	}
	return gpu.MemoryRequirements{
		Size:           alignUp(size, 1024),
		Alignment:      1024,
		MemoryTypeBits: allTypeBits(len(d.MemoryTypes)),
	}
}

func (d *Driver) BindImageMemory(image gpu.ImageID, memory gpu.MemoryID, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("BindImageMemory"); err != nil {
		return err
	}
	obj, ok := d.images[image]
	if !ok || !d.isLive(KindMemory, uint64(memory)) {
		return errors.Newf("bind of unknown image %d or memory %d", image, memory)
	}
	obj.memory = memory
	return nil
}

func (d *Driver) CreateImageView(info gpu.ImageViewCreateInfo) (gpu.ImageViewID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateImageView"); err != nil {
		return 0, err
	}
	if !d.isLive(KindImage, uint64(info.Image)) && !d.isSwapchainImage(info.Image) {
		return 0, errors.Newf("view of unknown image %d", info.Image)
	}
	return gpu.ImageViewID(d.add(KindImageView)), nil
}

func (d *Driver) isSwapchainImage(image gpu.ImageID) bool {
	for _, sc := range d.swapchains {
		for _, img := range sc.images {
			if img == image {
				return true
			}
		}
	}
	return false
}

func (d *Driver) DestroyImageView(view gpu.ImageViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyImageView")
	d.remove(KindImageView, uint64(view))
}

func (d *Driver) CreateSampler(info core1_0.SamplerCreateInfo) (gpu.SamplerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateSampler"); err != nil {
		return 0, err
	}
	return gpu.SamplerID(d.add(KindSampler)), nil
}

func (d *Driver) DestroySampler(sampler gpu.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroySampler")
	d.remove(KindSampler, uint64(sampler))
}

func (d *Driver) CreateCommandPool(queueFamily int, flags core1_0.CommandPoolCreateFlags) (gpu.CommandPoolID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateCommandPool"); err != nil {
		return 0, err
	}
	pool := gpu.CommandPoolID(d.add(KindCommandPool))
	d.poolFlags[pool] = flags
	return pool, nil
}

// PoolFlags returns the create flags a command pool was made with.
func (d *Driver) PoolFlags(pool gpu.CommandPoolID) core1_0.CommandPoolCreateFlags {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poolFlags[pool]
}

// DestroyCommandPool also frees every command buffer still allocated from the pool.
func (d *Driver) DestroyCommandPool(pool gpu.CommandPoolID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyCommandPool")
	for id, cb := range d.commandBuffers {
		if cb.pool == pool {
			d.remove(KindCommandBuffer, uint64(id))
			delete(d.commandBuffers, id)
		}
	}
	d.remove(KindCommandPool, uint64(pool))
}

func (d *Driver) AllocateCommandBuffers(pool gpu.CommandPoolID, count int) ([]gpu.CommandBufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	if !d.isLive(KindCommandPool, uint64(pool)) {
		return nil, errors.Newf("allocate from unknown pool %d", pool)
	}
	buffers := make([]gpu.CommandBufferID, 0, count)
	for i := 0; i < count; i++ {
		id := gpu.CommandBufferID(d.add(KindCommandBuffer))
		d.commandBuffers[id] = &commandBuffer{pool: pool}
		buffers = append(buffers, id)
	}
	return buffers, nil
}

func (d *Driver) FreeCommandBuffers(pool gpu.CommandPoolID, buffers ...gpu.CommandBufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("FreeCommandBuffers")
	for _, id := range buffers {
		d.remove(KindCommandBuffer, uint64(id))
		delete(d.commandBuffers, id)
	}
}

func (d *Driver) BeginCommandBuffer(buffer gpu.CommandBufferID, oneTimeSubmit bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("BeginCommandBuffer"); err != nil {
		return err
	}
	cb, ok := d.commandBuffers[buffer]
	if !ok {
		return errors.Newf("begin of unknown command buffer %d", buffer)
	}
	cb.recording = true
	cb.commands = nil
	return nil
}

func (d *Driver) EndCommandBuffer(buffer gpu.CommandBufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("EndCommandBuffer"); err != nil {
		return err
	}
	cb, ok := d.commandBuffers[buffer]
	if !ok || !cb.recording {
		return errors.Newf("end of command buffer %d that is not recording", buffer)
	}
	cb.recording = false
	return nil
}

func (d *Driver) record(method string, buffer gpu.CommandBufferID, command func()) error {
	if err := d.call(method); err != nil {
		return err
	}
	cb, ok := d.commandBuffers[buffer]
	if !ok || !cb.recording {
		return errors.Newf("%s into command buffer %d that is not recording", method, buffer)
	}
	cb.commands = append(cb.commands, command)
	return nil
}

func (d *Driver) bufferBytes(buffer gpu.BufferID) []byte {
	obj, ok := d.buffers[buffer]
	if !ok {
		return nil
	}
	block, ok := d.memory[obj.memory]
	if !ok {
		return nil
	}
	return block.data[obj.offset:]
}

func (d *Driver) CmdCopyBuffer(buffer gpu.CommandBufferID, src, dst gpu.BufferID, regions ...core1_0.BufferCopy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("CmdCopyBuffer", buffer, func() {
		srcData, dstData := d.bufferBytes(src), d.bufferBytes(dst)
		for _, region := range regions {
			copy(dstData[region.DstOffset:region.DstOffset+region.Size], srcData[region.SrcOffset:region.SrcOffset+region.Size])
		}
	})
}

func (d *Driver) CmdCopyBufferToImage(buffer gpu.CommandBufferID, src gpu.BufferID, dst gpu.ImageID, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[dst]; !ok {
		return errors.Newf("copy into unknown image %d", dst)
	}
	return d.record("CmdCopyBufferToImage", buffer, func() {
		obj := d.images[dst]
		if obj.layout != layout {
			return
		}
		srcData := d.bufferBytes(src)
		for _, region := range regions {
			size := region.ImageExtent.Width * region.ImageExtent.Height * region.ImageExtent.Depth * 4
			end := region.BufferOffset + size
			if end > len(srcData) {
				end = len(srcData)
			}
			obj.data = append(obj.data, srcData[region.BufferOffset:end]...)
		}
	})
}

func (d *Driver) CmdImageBarrier(buffer gpu.CommandBufferID, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...gpu.ImageBarrier) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("CmdImageBarrier", buffer, func() {
		for _, barrier := range barriers {
			if obj, ok := d.images[barrier.Image]; ok {
				obj.layout = barrier.NewLayout
			}
		}
	})
}

func (d *Driver) CreateFence(signaled bool) (gpu.FenceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateFence"); err != nil {
		return 0, err
	}
	id := gpu.FenceID(d.add(KindFence))
	d.fences[id] = signaled
	return id, nil
}

func (d *Driver) DestroyFence(fence gpu.FenceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyFence")
	d.remove(KindFence, uint64(fence))
	delete(d.fences, fence)
}

func (d *Driver) WaitForFences(fences ...gpu.FenceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("WaitForFences"); err != nil {
		return err
	}
	for _, fence := range fences {
		signaled, ok := d.fences[fence]
		if !ok {
			return errors.Newf("wait on unknown fence %d", fence)
		}
		if !signaled {
			return errors.Newf("fence %d would never signal", fence)
		}
	}
	return nil
}

func (d *Driver) ResetFences(fences ...gpu.FenceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("ResetFences"); err != nil {
		return err
	}
	for _, fence := range fences {
		d.fences[fence] = false
	}
	return nil
}

func (d *Driver) CreateSemaphore() (gpu.SemaphoreID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateSemaphore"); err != nil {
		return 0, err
	}
	return gpu.SemaphoreID(d.add(KindSemaphore)), nil
}

func (d *Driver) DestroySemaphore(semaphore gpu.SemaphoreID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroySemaphore")
	d.remove(KindSemaphore, uint64(semaphore))
}

// QueueSubmit runs every recorded command immediately and signals the fence.
func (d *Driver) QueueSubmit(queue gpu.QueueID, fence gpu.FenceID, submits ...gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("QueueSubmit"); err != nil {
		return err
	}
	for _, submit := range submits {
		for _, id := range submit.CommandBuffers {
			cb, ok := d.commandBuffers[id]
			if !ok {
				return errors.Newf("submit of unknown command buffer %d", id)
			}
			if cb.recording {
				return errors.Newf("submit of command buffer %d that is still recording", id)
			}
			for _, command := range cb.commands {
				command()
			}
		}
	}
	if fence != 0 {
		if _, ok := d.fences[fence]; !ok {
			return errors.Newf("submit with unknown fence %d", fence)
		}
		d.fences[fence] = true
	}
	d.Submits++
	return nil
}

func (d *Driver) QueueWaitIdle(queue gpu.QueueID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.call("QueueWaitIdle")
}

func (d *Driver) DeviceWaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.call("DeviceWaitIdle")
}

func (d *Driver) CreateShaderModule(code []uint32) (gpu.ShaderModuleID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateShaderModule"); err != nil {
		return 0, err
	}
	if len(code) == 0 {
		return 0, errors.New("empty shader code")
	}
	return gpu.ShaderModuleID(d.add(KindShaderModule)), nil
}

func (d *Driver) DestroyShaderModule(module gpu.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyShaderModule")
	d.remove(KindShaderModule, uint64(module))
}

func (d *Driver) CreatePipelineCache() (gpu.PipelineCacheID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreatePipelineCache"); err != nil {
		return 0, err
	}
	return gpu.PipelineCacheID(d.add(KindPipelineCache)), nil
}

func (d *Driver) DestroyPipelineCache(cache gpu.PipelineCacheID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyPipelineCache")
	d.remove(KindPipelineCache, uint64(cache))
}

func alignUp(v, alignment int) int {
	if v == 0 {
		return alignment
	}
	return (v + alignment - 1) / alignment * alignment
}

func allTypeBits(count int) uint32 {
	return uint32(1)<<uint(count) - 1
}
