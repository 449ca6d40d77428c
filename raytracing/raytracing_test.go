package raytracing_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/internal/fakevk"
	"github.com/vkngwrapper/vkbase/raytracing"
)

func newDevice(t *testing.T, rayTracing bool) (*gpu.Device, *fakevk.Driver) {
	t.Helper()
	driver := fakevk.New()
	driver.RayTracing = rayTracing
	dev, err := gpu.NewDevice(driver, driver.PhysicalDevice(), gpu.QueueFamilyIndices{}, gpu.DeviceOptions{})
	require.NoError(t, err)
	return dev, driver
}

func onlyPool() map[fakevk.Kind]int {
	return map[fakevk.Kind]int{fakevk.KindCommandPool: 1}
}

func TestAlignedSize(t *testing.T) {
	assert.Equal(t, 32, raytracing.AlignedSize(32, 32))
	assert.Equal(t, 64, raytracing.AlignedSize(33, 32))
	assert.Equal(t, 0, raytracing.AlignedSize(0, 64))
	assert.Equal(t, 7, raytracing.AlignedSize(7, 0))
}

func TestRequiredDeviceExtensions(t *testing.T) {
	full := raytracing.RequiredDeviceExtensions(false)
	assert.Contains(t, full, "VK_KHR_ray_tracing_pipeline")
	assert.Equal(t, "VK_KHR_acceleration_structure", full[0])
	assert.Len(t, full, 7)

	query := raytracing.RequiredDeviceExtensions(true)
	assert.NotContains(t, query, "VK_KHR_ray_tracing_pipeline")
	assert.Len(t, query, 6)

	assert.NotContains(t, raytracing.RequiredFeatures(true), gpu.FeatureRayTracingPipeline)
}

func TestScratchBuffer(t *testing.T) {
	dev, driver := newDevice(t, true)

	scratch, err := raytracing.NewScratchBuffer(dev, driver, 4096)
	require.NoError(t, err)
	assert.NotZero(t, scratch.Address)
	assert.Equal(t, 4096, scratch.Size)
	assert.NotZero(t, scratch.Usage&raytracing.BufferUsageShaderDeviceAddress)

	scratch.Destroy()
	assert.Equal(t, onlyPool(), driver.Leaks())
}

func TestAccelerationStructure(t *testing.T) {
	dev, driver := newDevice(t, true)

	as, err := raytracing.NewAccelerationStructure(dev, driver, gpu.AccelStructBottomLevel, raytracing.BuildSizes{
		AccelerationStructureSize: 1024,
		BuildScratchSize:          512,
	})
	require.NoError(t, err)
	assert.NotZero(t, as.Address)
	assert.Equal(t, gpu.AccelStructBottomLevel, as.Type)
	assert.Equal(t, 1, driver.Live(fakevk.KindAccelStruct))

	as.Destroy()
	as.Destroy()
	assert.Equal(t, onlyPool(), driver.Leaks())
}

func TestAccelerationStructure_Unsupported(t *testing.T) {
	dev, driver := newDevice(t, false)

	_, err := raytracing.NewAccelerationStructure(dev, driver, gpu.AccelStructTopLevel, raytracing.BuildSizes{AccelerationStructureSize: 256})
	assert.True(t, errors.Is(err, gpu.ErrUnsupported))

	_, err = raytracing.NewScratchBuffer(dev, driver, 256)
	assert.True(t, errors.Is(err, gpu.ErrUnsupported))
	assert.Equal(t, onlyPool(), driver.Leaks())
}

func TestShaderBindingTable(t *testing.T) {
	dev, driver := newDevice(t, true)
	props := raytracing.PipelineProperties{
		ShaderGroupHandleSize:      32,
		ShaderGroupHandleAlignment: 64,
		ShaderGroupBaseAlignment:   64,
	}

	sbt, err := raytracing.NewShaderBindingTable(dev, driver, props, 3)
	require.NoError(t, err)

	assert.Equal(t, 64, sbt.Region.Stride)
	assert.Equal(t, 192, sbt.Region.Size)
	assert.Equal(t, sbt.Region.Size, sbt.Size)
	assert.NotZero(t, sbt.Region.DeviceAddress)
	assert.Len(t, sbt.Mapped(), 192)

	handles := make([]byte, 96)
	for i := range handles {
		handles[i] = byte(i/32 + 1)
	}
	require.NoError(t, sbt.SetHandles(handles))
	mapped := sbt.Mapped()
	for i := 0; i < 3; i++ {
		assert.Equal(t, handles[i*32:(i+1)*32], mapped[i*64:i*64+32], "handle %d", i)
		assert.Equal(t, make([]byte, 32), mapped[i*64+32:(i+1)*64], "padding after handle %d", i)
	}
	assert.Error(t, sbt.SetHandles(make([]byte, 97)))
	assert.Error(t, sbt.SetHandles(make([]byte, 192)))

	_, err = raytracing.NewShaderBindingTable(dev, driver, props, 0)
	assert.Error(t, err)

	sbt.Destroy()
	assert.Equal(t, onlyPool(), driver.Leaks())
}

func TestStorageImage(t *testing.T) {
	dev, driver := newDevice(t, true)

	storage, err := raytracing.CreateStorageImage(dev, core1_0.FormatB8G8R8A8UnsignedNormalized, core1_0.Extent2D{Width: 64, Height: 32})
	require.NoError(t, err)
	assert.Equal(t, core1_0.ImageLayoutGeneral, storage.Layout)
	assert.Equal(t, core1_0.ImageLayoutGeneral, driver.ImageLayout(storage.Handle))

	require.NoError(t, storage.Recreate(core1_0.FormatB8G8R8A8UnsignedNormalized, core1_0.Extent2D{Width: 128, Height: 128}))
	assert.Equal(t, 128, storage.Width)
	assert.Equal(t, 1, driver.Live(fakevk.KindImage))
	assert.Equal(t, 1, driver.Live(fakevk.KindImageView))

	storage.Destroy()
	assert.Equal(t, onlyPool(), driver.Leaks())
}
