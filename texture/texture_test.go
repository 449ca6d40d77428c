package texture_test

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/image/bmp"

	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/internal/fakevk"
	"github.com/vkngwrapper/vkbase/texture"
)

func newDevice(t *testing.T) (*gpu.Device, *fakevk.Driver) {
	t.Helper()
	driver := fakevk.New()
	info := driver.PhysicalDevice()
	dev, err := gpu.NewDevice(driver, info, gpu.QueueFamilyIndices{}, gpu.DeviceOptions{})
	require.NoError(t, err)
	return dev, driver
}

func checker(width, height int, shade uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.RGBA{R: shade, G: 0, B: 255 - shade, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 0, G: shade, B: 0, A: 255})
			}
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, png.Encode(file, img))
	return path
}

func TestFromPixels_4x4(t *testing.T) {
	dev, driver := newDevice(t)
	pixels := texture.Pixels{Width: 4, Height: 4, Data: checker(4, 4, 200).Pix}

	tex, err := texture.FromPixels(dev, pixels, texture.Options{FinalLayout: core1_0.ImageLayoutShaderReadOnlyOptimal})
	require.NoError(t, err)

	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, tex.ImageLayout())
	assert.Equal(t, 4, tex.Width())
	assert.Equal(t, 4, tex.Height())
	assert.Equal(t, 1, tex.LayerCount())
	assert.Equal(t, 1, tex.MipLevels())
	assert.Equal(t, core1_0.FormatR8G8B8A8SRGB, tex.Format())
	assert.Equal(t, pixels.Data, driver.ImageData(tex.Image.Handle))

	descriptor := tex.Descriptor()
	assert.NotZero(t, descriptor.Sampler)
	assert.NotZero(t, descriptor.ImageView)
	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, descriptor.ImageLayout)

	tex.Destroy()
	tex.Destroy()
	assert.Equal(t, map[fakevk.Kind]int{fakevk.KindCommandPool: 1}, driver.Leaks())
}

func TestFromPixels_CustomLayoutWithoutSampler(t *testing.T) {
	dev, driver := newDevice(t)
	pixels := texture.Pixels{Width: 2, Height: 2, Data: make([]byte, 16)}

	tex, err := texture.FromPixels(dev, pixels, texture.Options{
		FinalLayout: core1_0.ImageLayoutGeneral,
		NoSampler:   true,
	})
	require.NoError(t, err)
	defer tex.Destroy()

	assert.Equal(t, core1_0.ImageLayoutGeneral, tex.ImageLayout())
	assert.Zero(t, tex.Sampler)
	assert.Zero(t, driver.Live(fakevk.KindSampler))
}

func TestFromPixels_Invalid(t *testing.T) {
	dev, driver := newDevice(t)

	_, err := texture.FromPixels(dev, texture.Pixels{Width: 4, Height: 4, Data: make([]byte, 10)}, texture.Options{})
	assert.Error(t, err)

	_, err = texture.FromLayers(dev, []texture.Pixels{
		{Width: 2, Height: 2, Data: make([]byte, 16)},
		{Width: 1, Height: 1, Data: make([]byte, 4)},
	}, core1_0.ImageViewType2DArray, texture.Options{})
	assert.Error(t, err)

	_, err = texture.FromLayers(dev, []texture.Pixels{{Width: 1, Height: 1, Data: make([]byte, 4)}}, core1_0.ImageViewTypeCube, texture.Options{})
	assert.Error(t, err)
	assert.Zero(t, driver.Submits)
}

func TestFromPixels_FailureLeavesNothing(t *testing.T) {
	for _, method := range []string{"CreateImage", "QueueSubmit", "CreateImageView", "CreateSampler"} {
		t.Run(method, func(t *testing.T) {
			dev, driver := newDevice(t)
			driver.FailOn(method, nil)

			tex, err := texture.FromPixels(dev, texture.Pixels{Width: 1, Height: 1, Data: make([]byte, 4)}, texture.Options{})
			assert.True(t, errors.Is(err, fakevk.ErrInjected))
			assert.Nil(t, tex)
			assert.Equal(t, map[fakevk.Kind]int{fakevk.KindCommandPool: 1}, driver.Leaks())
		})
	}
}

func TestLoad2D(t *testing.T) {
	dev, driver := newDevice(t)
	img := checker(4, 4, 100)
	path := writePNG(t, t.TempDir(), "checker.png", img)

	tex, err := texture.Load2D(dev, path, texture.Options{})
	require.NoError(t, err)
	defer tex.Destroy()

	assert.Equal(t, 4, tex.Width())
	assert.Equal(t, img.Pix, driver.ImageData(tex.Image.Handle))
}

func TestLoad2D_MissingFileNamesPath(t *testing.T) {
	dev, _ := newDevice(t)
	path := filepath.Join(t.TempDir(), "missing.png")

	_, err := texture.Load2D(dev, path, texture.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLoad2D_CorruptFileNamesPath(t *testing.T) {
	dev, _ := newDevice(t)
	path := filepath.Join(t.TempDir(), "corrupt.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := texture.Load2D(dev, path, texture.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestDecodeFile_BMP(t *testing.T) {
	img := checker(3, 2, 50)
	path := filepath.Join(t.TempDir(), "checker.bmp")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(file, img))
	require.NoError(t, file.Close())

	pixels, err := texture.DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, pixels.Width)
	assert.Equal(t, 2, pixels.Height)
	assert.Equal(t, img.Pix, pixels.Data)
}

func TestLoadCubemap(t *testing.T) {
	dev, driver := newDevice(t)
	dir := t.TempDir()

	var faces [6]string
	var expected []byte
	for i := range faces {
		img := checker(2, 2, uint8(i*40))
		faces[i] = writePNG(t, dir, fmt.Sprintf("face%d.png", i), img)
		expected = append(expected, img.Pix...)
	}

	tex, err := texture.LoadCubemap(dev, faces, texture.Options{})
	require.NoError(t, err)
	defer tex.Destroy()

	assert.Equal(t, 6, tex.LayerCount())
	assert.Equal(t, core1_0.ImageViewTypeCube, tex.ViewType)
	assert.Equal(t, core1_0.ImageCreateCubeCompatible, driver.ImageInfo(tex.Image.Handle).Flags)
	assert.Equal(t, expected, driver.ImageData(tex.Image.Handle))
}

func TestLoadArray_MismatchedLayers(t *testing.T) {
	dev, driver := newDevice(t)
	dir := t.TempDir()
	paths := []string{
		writePNG(t, dir, "a.png", checker(2, 2, 1)),
		writePNG(t, dir, "b.png", checker(4, 4, 2)),
	}

	_, err := texture.LoadArray(dev, paths, texture.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), paths[1])
	assert.Zero(t, driver.Submits)

	tex, err := texture.LoadArray(dev, paths[:1], texture.Options{})
	require.NoError(t, err)
	defer tex.Destroy()
	assert.Equal(t, core1_0.ImageViewType2DArray, tex.ViewType)
}
