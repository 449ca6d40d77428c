// Package vkng implements the gpu driver interfaces on top of vkngwrapper. Handles are kept in
// arenas and exposed to the rest of the module as integer ids; the resolvers hand the underlying
// vkngwrapper objects back to programs that build render passes and pipelines themselves.
//
// A Backend is not safe for concurrent use. All calls belong on the thread that called
// runtime.LockOSThread.
package vkng

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/vkbase/config"
	"github.com/vkngwrapper/vkbase/gpu"
)

type Options struct {
	Logger *slog.Logger
}

type allocation struct {
	memory core1_0.DeviceMemory
	size   int
}

type commandBuffer struct {
	buffer core1_0.CommandBuffer
	pool   gpu.CommandPoolID
}

type swapchainEntry struct {
	handle khr_swapchain.Swapchain
	images []gpu.ImageID
}

type Backend struct {
	logger *slog.Logger

	global   core1_0.GlobalDriver
	instance core1_0.CoreInstanceDriver
	device   core1_0.CoreDeviceDriver
	physical core1_0.PhysicalDevice

	debugDriver     ext_debug_utils.ExtensionDriver
	debugMessenger  ext_debug_utils.DebugUtilsMessenger
	surfaceDriver   khr_surface.ExtensionDriver
	surface         khr_surface.Surface
	swapchainDriver khr_swapchain.ExtensionDriver

	// Device is the resource layer over this backend. Close destroys it.
	Device *gpu.Device
	Info   gpu.PhysicalDeviceInfo

	// Candidates lists every physical device that could be described, selected or not.
	Candidates   []gpu.PhysicalDeviceInfo
	Requirements gpu.DeviceRequirements

	queueIDs       map[int]gpu.QueueID
	queues         arena[gpu.QueueID, core1_0.Queue]
	buffers        arena[gpu.BufferID, core1_0.Buffer]
	memory         arena[gpu.MemoryID, allocation]
	images         arena[gpu.ImageID, core1_0.Image]
	views          arena[gpu.ImageViewID, core1_0.ImageView]
	samplers       arena[gpu.SamplerID, core1_0.Sampler]
	pools          arena[gpu.CommandPoolID, core1_0.CommandPool]
	commandBuffers arena[gpu.CommandBufferID, commandBuffer]
	fences         arena[gpu.FenceID, core1_0.Fence]
	semaphores     arena[gpu.SemaphoreID, core1_0.Semaphore]
	shaderModules  arena[gpu.ShaderModuleID, core1_0.ShaderModule]
	pipelineCaches arena[gpu.PipelineCacheID, core1_0.PipelineCache]
	swapchains     arena[gpu.SwapchainID, *swapchainEntry]
}

// Open brings up everything between the window and a usable gpu.Device: instance, debug
// messenger, surface, physical device choice and logical device.
func Open(cfg config.Config, window *sdl.Window, opts Options) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		logger:   logger,
		queueIDs: map[int]gpu.QueueID{},
	}

	global, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}
	b.global = global

	err = b.initVulkan(cfg, window)
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) initVulkan(cfg config.Config, window *sdl.Window) error {
	err := b.createInstance(cfg, window)
	if err != nil {
		return err
	}

	err = b.setupDebugMessenger(cfg)
	if err != nil {
		return err
	}

	err = b.createSurface(window)
	if err != nil {
		return err
	}

	reqs := cfg.DeviceRequirements()
	families, err := b.pickPhysicalDevice(reqs)
	if err != nil {
		return err
	}

	err = b.createLogicalDevice(reqs, families)
	if err != nil {
		return err
	}

	b.Device, err = gpu.NewDevice(b, b.Info, families, gpu.DeviceOptions{Logger: b.logger})
	return err
}

func (b *Backend) createInstance(cfg config.Config, window *sdl.Window) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    cfg.Window.Title,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "vkbase",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := b.global.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "vkEnumerateInstanceExtensionProperties")
	}

	for _, ext := range window.VulkanGetInstanceExtensions() {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("createInstance: cannot initialize sdl: missing extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if cfg.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]; enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if layers := cfg.Layers(); len(layers) > 0 {
		available, _, err := b.global.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "vkEnumerateInstanceLayerProperties")
		}
		for _, layer := range layers {
			if _, hasLayer := available[layer]; !hasLayer {
				return errors.Newf("createInstance: cannot add validation layer %s: not available, install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = b.debugMessengerOptions()
	}

	b.instance, _, err = b.global.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "vkCreateInstance")
	}
	return nil
}

func (b *Backend) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    b.logDebug,
	}
}

func (b *Backend) setupDebugMessenger(cfg config.Config) error {
	if !cfg.EnableValidation {
		return nil
	}

	var err error
	b.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(b.instance)
	b.debugMessenger, _, err = b.debugDriver.CreateDebugUtilsMessenger(nil, b.debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "vkCreateDebugUtilsMessengerEXT")
	}
	return nil
}

func (b *Backend) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}
	b.logger.Log(context.Background(), level, "validation",
		slog.String("severity", severity.String()),
		slog.String("type", msgType.String()),
		slog.String("message", data.Message))
	return false
}

func (b *Backend) createSurface(window *sdl.Window) error {
	b.surfaceDriver = khr_surface.CreateExtensionDriverFromCoreDriver(b.instance)
	surface, err := vkng_sdl2.CreateSurface(b.instance.Instance(), b.surfaceDriver, window)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}
	b.surface = surface
	return nil
}

func (b *Backend) pickPhysicalDevice(reqs gpu.DeviceRequirements) (gpu.QueueFamilyIndices, error) {
	physicalDevices, _, err := b.instance.EnumeratePhysicalDevices()
	if err != nil {
		return gpu.QueueFamilyIndices{}, errors.Wrap(err, "vkEnumeratePhysicalDevices")
	}

	var candidates []gpu.PhysicalDeviceInfo
	var devices []core1_0.PhysicalDevice
	for _, device := range physicalDevices {
		info, err := b.describe(device)
		if err != nil {
			b.logger.Warn("skipping physical device", slog.String("error", err.Error()))
			continue
		}
		candidates = append(candidates, info)
		devices = append(devices, device)
	}

	best, err := gpu.PickPhysicalDevice(candidates, reqs)
	if err != nil {
		return gpu.QueueFamilyIndices{}, err
	}
	b.physical = devices[best]
	b.Info = candidates[best]
	b.Candidates = candidates
	b.Requirements = reqs

	b.logger.Info("physical device selected",
		slog.String("name", b.Info.Name),
		slog.Bool("discrete", b.Info.Discrete),
		slog.Int("candidates", len(candidates)))
	return gpu.SelectQueueFamilies(b.Info.QueueFamilies)
}

// describe gathers what device selection needs to know about one physical device.
func (b *Backend) describe(device core1_0.PhysicalDevice) (gpu.PhysicalDeviceInfo, error) {
	properties, err := b.instance.GetPhysicalDeviceProperties(device)
	if err != nil {
		return gpu.PhysicalDeviceInfo{}, errors.Wrap(err, "vkGetPhysicalDeviceProperties")
	}
	features := b.instance.GetPhysicalDeviceFeatures(device)

	extensions, _, err := b.instance.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return gpu.PhysicalDeviceInfo{}, errors.Wrap(err, "vkEnumerateDeviceExtensionProperties")
	}

	info := gpu.PhysicalDeviceInfo{
		Name:       properties.DriverName,
		Discrete:   properties.DriverType == core1_0.PhysicalDeviceTypeDiscreteGPU,
		APIVersion: fmt.Sprint(properties.APIVersion),
		Features: map[gpu.Feature]bool{
			gpu.FeatureSamplerAnisotropy: features.SamplerAnisotropy,
			gpu.FeatureSampleRateShading: features.SampleRateShading,
		},
		Extensions:           make(map[string]bool, len(extensions)),
		MaxSamplerAnisotropy: properties.Limits.MaxSamplerAnisotropy,
		ColorSampleCounts:    properties.Limits.FramebufferColorSampleCounts,
		DepthSampleCounts:    properties.Limits.FramebufferDepthSampleCounts,
	}
	for name := range extensions {
		info.Extensions[name] = true
	}

	memProperties := b.instance.GetPhysicalDeviceMemoryProperties(device)
	for _, memoryType := range memProperties.MemoryTypes {
		info.MemoryTypes = append(info.MemoryTypes, gpu.MemoryType{
			PropertyFlags: memoryType.PropertyFlags,
			HeapIndex:     memoryType.HeapIndex,
		})
	}

	for queueFamilyIdx, queueFamily := range b.instance.GetPhysicalDeviceQueueFamilyProperties(device) {
		supported, _, err := b.surfaceDriver.GetPhysicalDeviceSurfaceSupport(b.surface, device, queueFamilyIdx)
		if err != nil {
			return info, errors.Wrap(err, "vkGetPhysicalDeviceSurfaceSupportKHR")
		}
		info.QueueFamilies = append(info.QueueFamilies, gpu.QueueFamily{
			Index:      queueFamilyIdx,
			QueueCount: queueFamily.QueueCount,
			Graphics:   queueFamily.QueueFlags&core1_0.QueueGraphics != 0,
			Present:    supported,
		})
	}

	formats, _, err := b.surfaceDriver.GetPhysicalDeviceSurfaceFormats(b.surface, device)
	if err != nil {
		return info, errors.Wrap(err, "vkGetPhysicalDeviceSurfaceFormatsKHR")
	}
	presentModes, _, err := b.surfaceDriver.GetPhysicalDeviceSurfacePresentModes(b.surface, device)
	if err != nil {
		return info, errors.Wrap(err, "vkGetPhysicalDeviceSurfacePresentModesKHR")
	}
	info.SurfaceFormatCount = len(formats)
	info.PresentModeCount = len(presentModes)
	return info, nil
}

func (b *Backend) createLogicalDevice(reqs gpu.DeviceRequirements, families gpu.QueueFamilyIndices) error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, queueFamily := range families.Unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := slices.Clone(reqs.Extensions)
	if b.Info.Extensions[khr_portability_subset.ExtensionName] {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	var err error
	b.device, _, err = b.instance.CreateDevice(b.physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: slices.Contains(reqs.Features, gpu.FeatureSamplerAnisotropy),
			SampleRateShading: slices.Contains(reqs.Features, gpu.FeatureSampleRateShading),
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "vkCreateDevice")
	}

	b.swapchainDriver = khr_swapchain.CreateExtensionDriverFromCoreDriver(b.device)
	return nil
}

// Close waits for the device and destroys it, then the debug messenger, surface and instance.
// Everything created through the Driver interface should already be released.
func (b *Backend) Close() {
	if b.device != nil {
		_, _ = b.device.DeviceWaitIdle()
	}

	if b.Device != nil {
		b.Device.Destroy()
		b.Device = nil
	}

	if leaked := b.live(); leaked > 0 {
		b.logger.Warn("closing with live handles", slog.Int("count", leaked))
	}

	if b.device != nil {
		b.device.DestroyDevice(nil)
		b.device = nil
	}

	if b.debugMessenger.Initialized() {
		b.debugDriver.DestroyDebugUtilsMessenger(b.debugMessenger, nil)
		b.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if b.surface.Initialized() {
		b.surfaceDriver.DestroySurface(b.surface, nil)
		b.surface = khr_surface.Surface{}
	}

	if b.instance != nil {
		b.instance.DestroyInstance(nil)
		b.instance = nil
	}
}

// live counts handles the application still owns. Swapchain images belong to their chain.
func (b *Backend) live() int {
	swapchainImages := 0
	for _, entry := range b.swapchains.items {
		swapchainImages += len(entry.images)
	}
	return b.buffers.len() + b.memory.len() + b.images.len() - swapchainImages + b.views.len() +
		b.samplers.len() + b.pools.len() + b.commandBuffers.len() + b.fences.len() + b.semaphores.len() +
		b.shaderModules.len() + b.pipelineCaches.len() + b.swapchains.len()
}
