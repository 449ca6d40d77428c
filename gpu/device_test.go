package gpu_test

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/internal/fakevk"
)

func newDevice(t *testing.T) (*gpu.Device, *fakevk.Driver) {
	t.Helper()
	driver := fakevk.New()
	info := driver.PhysicalDevice()
	families, err := gpu.SelectQueueFamilies(info.QueueFamilies)
	require.NoError(t, err)

	dev, err := gpu.NewDevice(driver, info, families, gpu.DeviceOptions{})
	require.NoError(t, err)
	return dev, driver
}

func assertOnlyPool(t *testing.T, driver *fakevk.Driver) {
	t.Helper()
	assert.Equal(t, map[fakevk.Kind]int{fakevk.KindCommandPool: 1}, driver.Leaks())
}

func TestNewDevice_CommandPoolResetsBuffers(t *testing.T) {
	dev, driver := newDevice(t)

	flags := driver.PoolFlags(dev.CommandPool)
	assert.Equal(t, core1_0.CommandPoolCreateResetBuffer, flags&core1_0.CommandPoolCreateResetBuffer)
}

func TestCreateBuffer_DestroyLeavesNothing(t *testing.T) {
	usages := []core1_0.BufferUsageFlags{
		core1_0.BufferUsageVertexBuffer,
		core1_0.BufferUsageIndexBuffer | core1_0.BufferUsageTransferDst,
		core1_0.BufferUsageUniformBuffer,
		core1_0.BufferUsageTransferSrc,
	}
	properties := []core1_0.MemoryPropertyFlags{
		core1_0.MemoryPropertyDeviceLocal,
		core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
		core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCached,
	}
	sizes := []int{1, 64, 4097}

	for _, usage := range usages {
		for _, props := range properties {
			for _, size := range sizes {
				t.Run(fmt.Sprintf("%d/%d/%d", usage, props, size), func(t *testing.T) {
					dev, driver := newDevice(t)

					buffer, err := dev.CreateBuffer(usage, props, size, nil)
					require.NoError(t, err)
					assert.Equal(t, size, buffer.Size)
					assert.Equal(t, props, buffer.Properties&props)

					buffer.Destroy()
					buffer.Destroy()
					assertOnlyPool(t, driver)

					dev.Destroy()
					assert.Empty(t, driver.Leaks())
				})
			}
		}
	}
}

func TestCreateBuffer_InitialData(t *testing.T) {
	dev, driver := newDevice(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	buffer, err := dev.CreateBuffer(core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent, len(data), data)
	require.NoError(t, err)
	defer buffer.Destroy()

	assert.Nil(t, buffer.Mapped())
	assert.Zero(t, driver.CallCount("FlushMappedMemory"))

	got, err := gpu.NewUploader(dev).ReadBack(buffer)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCreateBuffer_FlushesNonCoherentMemory(t *testing.T) {
	dev, driver := newDevice(t)

	buffer, err := dev.CreateBuffer(core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible, 4, []byte{9, 9, 9, 9})
	require.NoError(t, err)
	defer buffer.Destroy()
	assert.True(t, buffer.Coherent())
	assert.Zero(t, driver.CallCount("FlushMappedMemory"))

	driver.MemoryTypes[1].PropertyFlags = core1_0.MemoryPropertyHostVisible
	dev.Info.MemoryTypes = driver.MemoryTypes

	noncoherent, err := dev.CreateBuffer(core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible, 4, []byte{9, 9, 9, 9})
	require.NoError(t, err)
	defer noncoherent.Destroy()
	assert.False(t, noncoherent.Coherent())
	assert.Equal(t, 1, driver.CallCount("FlushMappedMemory"))
}

func TestCreateBuffer_FailureReleasesEverything(t *testing.T) {
	for _, method := range []string{"AllocateMemory", "MapMemory", "BindBufferMemory"} {
		t.Run(method, func(t *testing.T) {
			dev, driver := newDevice(t)
			driver.FailOn(method, nil)

			buffer, err := dev.CreateBuffer(core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible, 16, make([]byte, 16))
			require.Error(t, err)
			assert.True(t, errors.Is(err, fakevk.ErrInjected))
			assert.Nil(t, buffer)
			assertOnlyPool(t, driver)
		})
	}
}

func TestCreateBuffer_InvalidSize(t *testing.T) {
	dev, _ := newDevice(t)

	_, err := dev.CreateBuffer(core1_0.BufferUsageVertexBuffer, core1_0.MemoryPropertyDeviceLocal, 0, nil)
	assert.Error(t, err)

	_, err = dev.CreateBuffer(core1_0.BufferUsageVertexBuffer, core1_0.MemoryPropertyHostVisible, 2, []byte{1, 2, 3})
	assert.True(t, errors.Is(err, gpu.ErrBufferTooSmall))
}

func TestFindMemoryType_ReturnsSuperset(t *testing.T) {
	dev, driver := newDevice(t)

	requests := []core1_0.MemoryPropertyFlags{
		0,
		core1_0.MemoryPropertyDeviceLocal,
		core1_0.MemoryPropertyHostVisible,
		core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
		core1_0.MemoryPropertyHostCached,
		core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible,
	}
	for _, props := range requests {
		index, err := dev.FindMemoryType(0xffffffff, props)
		require.NoError(t, err)
		assert.Equal(t, props, driver.MemoryTypes[index].PropertyFlags&props)
	}
}

func TestFindMemoryType_ScansEveryBit(t *testing.T) {
	dev, _ := newDevice(t)

	// Only the last type is allowed, and it is the only one that is both device local and host visible.
	index, err := dev.FindMemoryType(1<<3, core1_0.MemoryPropertyDeviceLocal|core1_0.MemoryPropertyHostVisible)
	require.NoError(t, err)
	assert.Equal(t, 3, index)

	index, err = dev.FindMemoryType(0xffffffff, core1_0.MemoryPropertyDeviceLocal|core1_0.MemoryPropertyHostCached)
	assert.True(t, errors.Is(err, gpu.ErrNoMemoryType))
	assert.Equal(t, -1, index)

	_, found := dev.FindMemoryTypeSoft(1<<0, core1_0.MemoryPropertyHostVisible)
	assert.False(t, found)
}

func TestCopyBuffer(t *testing.T) {
	dev, driver := newDevice(t)
	hostLocal := core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

	src, err := dev.CreateBuffer(core1_0.BufferUsageTransferSrc, hostLocal, 4, []byte{4, 3, 2, 1})
	require.NoError(t, err)
	defer src.Destroy()

	small, err := dev.CreateBuffer(core1_0.BufferUsageTransferDst, hostLocal, 2, nil)
	require.NoError(t, err)
	defer small.Destroy()

	err = dev.CopyBuffer(src, small, core1_0.BufferCopy{})
	assert.True(t, errors.Is(err, gpu.ErrBufferTooSmall))
	assert.Zero(t, driver.Submits)

	dst, err := dev.CreateBuffer(core1_0.BufferUsageTransferDst, hostLocal, 8, nil)
	require.NoError(t, err)
	defer dst.Destroy()

	require.NoError(t, dev.CopyBuffer(src, dst, core1_0.BufferCopy{DstOffset: 4}))
	got, err := gpu.NewUploader(dev).ReadBack(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 4, 3, 2, 1}, got)

	err = dev.CopyBuffer(src, dst, core1_0.BufferCopy{DstOffset: 6})
	assert.True(t, errors.Is(err, gpu.ErrBufferTooSmall))
}

func TestSubmitAndWait_ReleasesOnFailure(t *testing.T) {
	dev, driver := newDevice(t)
	driver.FailOn("QueueSubmit", nil)

	cb, err := dev.OneShotCommandBuffer(true)
	require.NoError(t, err)

	err = dev.SubmitAndWait(cb, dev.GraphicsQueue, true)
	assert.True(t, errors.Is(err, fakevk.ErrInjected))
	assertOnlyPool(t, driver)
}

func TestFindDepthFormat(t *testing.T) {
	dev, driver := newDevice(t)

	format, err := dev.FindDepthFormat()
	require.NoError(t, err)
	assert.Equal(t, core1_0.FormatD32SignedFloatS8UnsignedInt, format)
	assert.True(t, gpu.HasStencil(format))

	delete(driver.Formats, core1_0.FormatD32SignedFloatS8UnsignedInt)
	format, err = dev.FindDepthFormat()
	require.NoError(t, err)
	assert.Equal(t, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt, format)

	delete(driver.Formats, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt)
	_, err = dev.FindDepthFormat()
	assert.True(t, errors.Is(err, gpu.ErrNoDepthFormat))
	assert.False(t, gpu.HasStencil(core1_0.FormatD32SignedFloat))
}

func TestNewDevice_MSAA(t *testing.T) {
	dev, _ := newDevice(t)
	assert.Equal(t, core1_0.Samples4, dev.MSAASamples)
}
