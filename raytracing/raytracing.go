// Package raytracing holds the buffers and images a hardware ray tracing pass needs on top of
// the rasterizing device: scratch memory, acceleration structures, shader binding tables and
// the storage image rays are traced into.
package raytracing

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
)

// Usage bits from VK_KHR_buffer_device_address and VK_KHR_acceleration_structure.
const (
	BufferUsageShaderDeviceAddress              core1_0.BufferUsageFlags = 0x00020000
	BufferUsageAccelerationStructureStorage     core1_0.BufferUsageFlags = 0x00100000
	BufferUsageAccelerationStructureBuildInput  core1_0.BufferUsageFlags = 0x00080000
	BufferUsageShaderBindingTable               core1_0.BufferUsageFlags = 0x00000400
	sbtProperties                                                        = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
)

// BuildSizes is what the driver reports for a planned acceleration structure build.
type BuildSizes struct {
	AccelerationStructureSize int
	UpdateScratchSize         int
	BuildScratchSize          int
}

// PipelineProperties carries the shader group handle limits of the ray tracing pipeline.
type PipelineProperties struct {
	ShaderGroupHandleSize      int
	ShaderGroupHandleAlignment int
	ShaderGroupBaseAlignment   int
}

func AlignedSize(value, alignment int) int {
	if alignment <= 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// RequiredDeviceExtensions lists the device extensions a ray tracing application enables.
// Ray query only applications skip the pipeline extension.
func RequiredDeviceExtensions(rayQueryOnly bool) []string {
	extensions := []string{"VK_KHR_acceleration_structure"}
	if !rayQueryOnly {
		extensions = append(extensions, "VK_KHR_ray_tracing_pipeline")
	}
	return append(extensions,
		"VK_KHR_buffer_device_address",
		"VK_KHR_deferred_host_operations",
		"VK_EXT_descriptor_indexing",
		"VK_KHR_spirv_1_4",
		"VK_KHR_shader_float_controls",
	)
}

// RequiredFeatures lists the device features RequiredDeviceExtensions depends on.
func RequiredFeatures(rayQueryOnly bool) []gpu.Feature {
	features := []gpu.Feature{gpu.FeatureBufferDeviceAddress, gpu.FeatureAccelerationStructure}
	if !rayQueryOnly {
		features = append(features, gpu.FeatureRayTracingPipeline)
	}
	return features
}

// ScratchBuffer is transient device memory for one acceleration structure build.
type ScratchBuffer struct {
	*gpu.Buffer
	Address uint64
}

func NewScratchBuffer(dev *gpu.Device, rt gpu.RayTracingDriver, size int) (*ScratchBuffer, error) {
	buffer, address, err := addressableBuffer(dev, rt,
		core1_0.BufferUsageStorageBuffer|BufferUsageShaderDeviceAddress,
		core1_0.MemoryPropertyDeviceLocal, size)
	if err != nil {
		return nil, errors.Wrap(err, "create scratch buffer")
	}
	return &ScratchBuffer{Buffer: buffer, Address: address}, nil
}

type AccelerationStructure struct {
	rt gpu.RayTracingDriver

	Handle  gpu.AccelStructID
	Type    gpu.AccelStructType
	Buffer  *gpu.Buffer
	Address uint64
}

// NewAccelerationStructure creates the backing buffer and structure handle sized for a build.
// Recording the build itself is left to the caller.
func NewAccelerationStructure(dev *gpu.Device, rt gpu.RayTracingDriver, kind gpu.AccelStructType, sizes BuildSizes) (*AccelerationStructure, error) {
	scope := &gpu.Scope{}
	defer scope.Release()

	buffer, err := dev.CreateBuffer(
		BufferUsageAccelerationStructureStorage|BufferUsageShaderDeviceAddress,
		core1_0.MemoryPropertyDeviceLocal,
		sizes.AccelerationStructureSize, nil,
		gpu.BufferOptions{DeviceAddress: true})
	if err != nil {
		return nil, errors.Wrap(err, "create acceleration structure buffer")
	}
	scope.Add(buffer.Destroy)

	handle, err := rt.CreateAccelerationStructure(buffer.Handle, sizes.AccelerationStructureSize, kind)
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateAccelerationStructureKHR")
	}
	scope.Add(func() { rt.DestroyAccelerationStructure(handle) })

	address, err := rt.AccelerationStructureAddress(handle)
	if err != nil {
		return nil, errors.Wrap(err, "vkGetAccelerationStructureDeviceAddressKHR")
	}

	scope.Keep()
	return &AccelerationStructure{
		rt:      rt,
		Handle:  handle,
		Type:    kind,
		Buffer:  buffer,
		Address: address,
	}, nil
}

func (a *AccelerationStructure) Destroy() {
	if a == nil || a.Handle == 0 {
		return
	}
	a.rt.DestroyAccelerationStructure(a.Handle)
	a.Buffer.Destroy()
	a.Handle = 0
}

// StridedRegion describes one shader binding table to vkCmdTraceRaysKHR.
type StridedRegion struct {
	DeviceAddress uint64
	Stride        int
	Size          int
}

// ShaderBindingTable is a persistently mapped host-visible buffer of shader group handles,
// one per Region.Stride bytes.
type ShaderBindingTable struct {
	*gpu.Buffer
	Region      StridedRegion
	HandleCount int
	HandleSize  int
}

func NewShaderBindingTable(dev *gpu.Device, rt gpu.RayTracingDriver, props PipelineProperties, handleCount int) (*ShaderBindingTable, error) {
	if handleCount <= 0 {
		return nil, errors.Newf("shader binding table needs at least one handle, got %d", handleCount)
	}

	stride := AlignedSize(props.ShaderGroupHandleSize, props.ShaderGroupHandleAlignment)
	buffer, address, err := addressableBuffer(dev, rt,
		BufferUsageShaderBindingTable|BufferUsageShaderDeviceAddress,
		sbtProperties, stride*handleCount)
	if err != nil {
		return nil, errors.Wrap(err, "create shader binding table")
	}

	if _, err := buffer.Map(gpu.WholeSize, 0); err != nil {
		buffer.Destroy()
		return nil, err
	}

	return &ShaderBindingTable{
		Buffer:      buffer,
		HandleCount: handleCount,
		HandleSize:  props.ShaderGroupHandleSize,
		Region: StridedRegion{
			DeviceAddress: address,
			Stride:        stride,
			Size:          stride * handleCount,
		},
	}, nil
}

// SetHandles copies tightly packed shader group handles, as returned by the pipeline, into
// the table at the region stride.
func (s *ShaderBindingTable) SetHandles(handles []byte) error {
	if len(handles) != s.HandleSize*s.HandleCount {
		return errors.Newf("expected %d handles of %d bytes, got %d bytes", s.HandleCount, s.HandleSize, len(handles))
	}
	for i := 0; i < s.HandleCount; i++ {
		handle := handles[i*s.HandleSize : (i+1)*s.HandleSize]
		if err := s.Write(i*s.Region.Stride, handle); err != nil {
			return errors.Wrapf(err, "write handle %d", i)
		}
	}
	return nil
}

func addressableBuffer(dev *gpu.Device, rt gpu.RayTracingDriver, usage core1_0.BufferUsageFlags, props core1_0.MemoryPropertyFlags, size int) (*gpu.Buffer, uint64, error) {
	buffer, err := dev.CreateBuffer(usage, props, size, nil, gpu.BufferOptions{DeviceAddress: true})
	if err != nil {
		return nil, 0, err
	}
	address, err := rt.BufferDeviceAddress(buffer.Handle)
	if err != nil {
		buffer.Destroy()
		return nil, 0, errors.Wrap(err, "vkGetBufferDeviceAddressKHR")
	}
	return buffer, address, nil
}
