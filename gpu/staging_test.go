package gpu_test

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/internal/fakevk"
)

const visibleDeviceLocal = core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible

func TestUploadBuffer_RoundTrip(t *testing.T) {
	for _, size := range []int{1, 3, 256, 1000} {
		dev, driver := newDevice(t)
		uploader := gpu.NewUploader(dev)

		payload := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, size)[:size]
		buffers, err := uploader.UploadBuffers(gpu.BufferPayload{
			Data:       payload,
			Usage:      core1_0.BufferUsageVertexBuffer,
			Properties: visibleDeviceLocal,
		})
		require.NoError(t, err)
		require.Len(t, buffers, 1)

		got, err := uploader.ReadBack(buffers[0])
		require.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.Equal(t, 1, driver.Submits)

		// Staging buffer, fence and command buffer are gone; only the destination remains.
		assert.Equal(t, 1, driver.Live(fakevk.KindBuffer))
		assert.Equal(t, 1, driver.Live(fakevk.KindMemory))
		assert.Zero(t, driver.Live(fakevk.KindFence))
		assert.Zero(t, driver.Live(fakevk.KindCommandBuffer))

		buffers[0].Destroy()
		assertOnlyPool(t, driver)
	}
}

func TestUploadBuffers_OneSubmission(t *testing.T) {
	dev, driver := newDevice(t)
	uploader := gpu.NewUploader(dev)

	buffers, err := uploader.UploadBuffers(
		gpu.BufferPayload{Data: []byte{1, 2, 3}, Usage: core1_0.BufferUsageVertexBuffer},
		gpu.BufferPayload{Data: []byte{4, 5, 6, 7}, Usage: core1_0.BufferUsageIndexBuffer},
	)
	require.NoError(t, err)
	require.Len(t, buffers, 2)
	defer buffers[0].Destroy()
	defer buffers[1].Destroy()

	assert.Equal(t, 1, driver.Submits)
	assert.Equal(t, 2, driver.CallCount("CmdCopyBuffer"))
	assert.Equal(t, core1_0.BufferUsageIndexBuffer|core1_0.BufferUsageTransferDst, buffers[1].Usage)

	_, err = uploader.ReadBack(buffers[0])
	assert.Error(t, err, "device local only memory cannot be read back")
}

func TestUploadBuffers_FailureLeavesNothing(t *testing.T) {
	for _, method := range []string{"CreateBuffer", "AllocateCommandBuffers", "CmdCopyBuffer", "QueueSubmit", "WaitForFences"} {
		t.Run(method, func(t *testing.T) {
			dev, driver := newDevice(t)
			driver.FailOn(method, nil)

			buffers, err := gpu.NewUploader(dev).UploadBuffers(
				gpu.BufferPayload{Data: []byte{1, 2, 3}, Usage: core1_0.BufferUsageVertexBuffer},
				gpu.BufferPayload{Data: []byte{4, 5, 6}, Usage: core1_0.BufferUsageIndexBuffer},
			)
			assert.True(t, errors.Is(err, fakevk.ErrInjected))
			assert.Nil(t, buffers)
			assertOnlyPool(t, driver)
		})
	}
}

func TestUploadImage_FinalLayout(t *testing.T) {
	dev, driver := newDevice(t)
	pixels := make([]byte, 4*4*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}

	image, err := gpu.NewUploader(dev).UploadImage(pixels, gpu.ImageUploadInfo{
		Format:      core1_0.FormatR8G8B8A8SRGB,
		Width:       4,
		Height:      4,
		Usage:       core1_0.ImageUsageSampled,
		FinalLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
	})
	require.NoError(t, err)
	defer image.Destroy()

	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, image.Layout)
	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, driver.ImageLayout(image.Handle))
	assert.Equal(t, 4, image.Width)
	assert.Equal(t, 4, image.Height)
	assert.Equal(t, pixels, driver.ImageData(image.Handle))
	assert.Equal(t, core1_0.ImageUsageSampled|core1_0.ImageUsageTransferDst, driver.ImageInfo(image.Handle).Usage)
	assert.Equal(t, 1, driver.Submits)
	assert.Equal(t, 2, driver.CallCount("CmdImageBarrier"))
}

func TestUploadImage_Layers(t *testing.T) {
	dev, driver := newDevice(t)
	pixels := make([]byte, 2*2*4*6)

	image, err := gpu.NewUploader(dev).UploadImage(pixels, gpu.ImageUploadInfo{
		Format:      core1_0.FormatR8G8B8A8SRGB,
		Width:       2,
		Height:      2,
		Layers:      6,
		Usage:       core1_0.ImageUsageSampled,
		FinalLayout: core1_0.ImageLayoutGeneral,
	})
	require.NoError(t, err)
	defer image.Destroy()

	assert.Equal(t, 6, image.Layers)
	assert.Equal(t, core1_0.ImageLayoutGeneral, image.Layout)
	assert.Len(t, driver.ImageData(image.Handle), len(pixels))

	_, err = gpu.NewUploader(dev).UploadImage(pixels[:10], gpu.ImageUploadInfo{Width: 2, Height: 2, Layers: 3})
	assert.Error(t, err)
}

func TestUploadImage_FailureLeavesNothing(t *testing.T) {
	for _, method := range []string{"CreateImage", "BindImageMemory", "CmdImageBarrier", "CmdCopyBufferToImage", "QueueSubmit"} {
		t.Run(method, func(t *testing.T) {
			dev, driver := newDevice(t)
			driver.FailOn(method, nil)

			image, err := gpu.NewUploader(dev).UploadImage(make([]byte, 64), gpu.ImageUploadInfo{
				Format: core1_0.FormatR8G8B8A8SRGB,
				Width:  4,
				Height: 4,
				Usage:  core1_0.ImageUsageSampled,
			})
			assert.True(t, errors.Is(err, fakevk.ErrInjected))
			assert.Nil(t, image)
			assertOnlyPool(t, driver)
		})
	}
}

func TestBuffer_MapWriteUnmap(t *testing.T) {
	dev, _ := newDevice(t)

	buffer, err := dev.CreateBuffer(core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent, 16, nil)
	require.NoError(t, err)
	defer buffer.Destroy()

	assert.True(t, errors.Is(buffer.Write(0, []byte{1}), gpu.ErrNotMapped))

	mapped, err := buffer.Map(gpu.WholeSize, 0)
	require.NoError(t, err)
	assert.Len(t, mapped, 16)
	assert.NotNil(t, buffer.Mapped())

	require.NoError(t, buffer.WriteValue(4, uint32(0x01020304)))
	assert.Equal(t, []byte{4, 3, 2, 1}, mapped[4:8])
	assert.True(t, errors.Is(buffer.Write(14, []byte{1, 2, 3}), gpu.ErrBufferTooSmall))

	buffer.SetDescriptor(gpu.WholeSize, 0)
	assert.Equal(t, gpu.DescriptorBufferInfo{Buffer: buffer.Handle, Offset: 0, Range: 16}, buffer.Descriptor)

	buffer.Unmap()
	buffer.Unmap()
	assert.Nil(t, buffer.Mapped())

	buffer.Destroy()
	_, err = buffer.Map(gpu.WholeSize, 0)
	assert.True(t, errors.Is(err, gpu.ErrDestroyed))
}

func TestBuffer_MapDifferentRangeWhileMapped(t *testing.T) {
	dev, driver := newDevice(t)

	buffer, err := dev.CreateBuffer(core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent, 64, nil)
	require.NoError(t, err)
	defer buffer.Destroy()

	first, err := buffer.Map(32, 16)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	again, err := buffer.Map(32, 16)
	require.NoError(t, err)
	assert.Len(t, again, 32)
	assert.Equal(t, 1, driver.CallCount("MapMemory"))

	_, err = buffer.Map(gpu.WholeSize, 0)
	assert.True(t, errors.Is(err, gpu.ErrAlreadyMapped))
	_, err = buffer.Map(32, 0)
	assert.True(t, errors.Is(err, gpu.ErrAlreadyMapped))
	_, err = buffer.Map(gpu.WholeSize, 16)
	assert.True(t, errors.Is(err, gpu.ErrAlreadyMapped))

	buffer.Unmap()
	whole, err := buffer.Map(gpu.WholeSize, 0)
	require.NoError(t, err)
	assert.Len(t, whole, 64)
}
