// Package texture loads sampled images into device memory. A single Texture type covers plain
// 2D images, cubemaps and layered arrays; the loader function picks the shape.
package texture

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
)

type SamplerOptions struct {
	Filter      core1_0.Filter
	AddressMode core1_0.SamplerAddressMode
	// Anisotropy is used only when the device supports it.
	Anisotropy bool
}

func DefaultSampler() *SamplerOptions {
	return &SamplerOptions{
		Filter:      core1_0.FilterLinear,
		AddressMode: core1_0.SamplerAddressModeRepeat,
		Anisotropy:  true,
	}
}

type Options struct {
	Format      core1_0.Format
	Usage       core1_0.ImageUsageFlags
	FinalLayout core1_0.ImageLayout
	// Sampler is created with the texture unless NoSampler is set.
	Sampler   *SamplerOptions
	NoSampler bool
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Format == 0 {
		o.Format = core1_0.FormatR8G8B8A8SRGB
	}
	if o.Usage == 0 {
		o.Usage = core1_0.ImageUsageSampled
	}
	if o.FinalLayout == core1_0.ImageLayoutUndefined {
		o.FinalLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
	}
	if o.Sampler == nil && !o.NoSampler {
		o.Sampler = DefaultSampler()
	}
	return o
}

type DescriptorImageInfo struct {
	Sampler     gpu.SamplerID
	ImageView   gpu.ImageViewID
	ImageLayout core1_0.ImageLayout
}

type Texture struct {
	device *gpu.Device

	Image    *gpu.Image
	View     gpu.ImageViewID
	Sampler  gpu.SamplerID
	ViewType core1_0.ImageViewType
}

func (t *Texture) Width() int                       { return t.Image.Width }
func (t *Texture) Height() int                      { return t.Image.Height }
func (t *Texture) MipLevels() int                   { return t.Image.MipLevels }
func (t *Texture) LayerCount() int                  { return t.Image.Layers }
func (t *Texture) Format() core1_0.Format           { return t.Image.Format }
func (t *Texture) ImageLayout() core1_0.ImageLayout { return t.Image.Layout }

func (t *Texture) Descriptor() DescriptorImageInfo {
	return DescriptorImageInfo{
		Sampler:     t.Sampler,
		ImageView:   t.View,
		ImageLayout: t.Image.Layout,
	}
}

func (t *Texture) Destroy() {
	if t == nil || t.Image == nil {
		return
	}
	if t.View != 0 {
		t.device.Driver.DestroyImageView(t.View)
		t.View = 0
	}
	if t.Sampler != 0 {
		t.device.Driver.DestroySampler(t.Sampler)
		t.Sampler = 0
	}
	t.Image.Destroy()
	t.Image = nil
}

func FromPixels(dev *gpu.Device, pixels Pixels, opts Options) (*Texture, error) {
	return FromLayers(dev, []Pixels{pixels}, core1_0.ImageViewType2D, opts)
}

// FromLayers uploads one array layer per entry and views them as viewType.
func FromLayers(dev *gpu.Device, layers []Pixels, viewType core1_0.ImageViewType, opts Options) (*Texture, error) {
	opts = opts.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = dev.Logger()
	}

	if len(layers) == 0 {
		return nil, errors.New("texture has no layers")
	}
	width, height := layers[0].Width, layers[0].Height
	data := make([]byte, 0, len(layers)*width*height*4)
	for i, layer := range layers {
		if err := layer.Validate(); err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		if layer.Width != width || layer.Height != height {
			return nil, errors.Newf("layer %d is %dx%d, expected %dx%d", i, layer.Width, layer.Height, width, height)
		}
		data = append(data, layer.Data...)
	}

	var createFlags core1_0.ImageCreateFlags
	if viewType == core1_0.ImageViewTypeCube {
		if len(layers) != 6 {
			return nil, errors.Newf("cubemap needs 6 faces, got %d", len(layers))
		}
		createFlags = core1_0.ImageCreateCubeCompatible
	}

	scope := &gpu.Scope{}
	defer scope.Release()

	image, err := gpu.NewUploader(dev).UploadImage(data, gpu.ImageUploadInfo{
		Format:      opts.Format,
		Width:       width,
		Height:      height,
		Layers:      len(layers),
		CreateFlags: createFlags,
		Usage:       opts.Usage,
		FinalLayout: opts.FinalLayout,
	})
	if err != nil {
		return nil, err
	}
	scope.Add(image.Destroy)

	view, err := dev.CreateImageView(gpu.ImageViewCreateInfo{
		Image:      image.Handle,
		ViewType:   viewType,
		Format:     opts.Format,
		Aspect:     core1_0.ImageAspectColor,
		MipLevels:  image.MipLevels,
		LayerCount: image.Layers,
	})
	if err != nil {
		return nil, err
	}
	scope.Add(func() { dev.Driver.DestroyImageView(view) })

	var sampler gpu.SamplerID
	if opts.Sampler != nil {
		sampler, err = createSampler(dev, *opts.Sampler, image.MipLevels)
		if err != nil {
			return nil, err
		}
	}

	scope.Keep()
	logger.Debug("texture uploaded",
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Int("layers", len(layers)),
		slog.Int("layout", int(image.Layout)))
	return &Texture{
		device:   dev,
		Image:    image,
		View:     view,
		Sampler:  sampler,
		ViewType: viewType,
	}, nil
}

func createSampler(dev *gpu.Device, opts SamplerOptions, mipLevels int) (gpu.SamplerID, error) {
	anisotropy := opts.Anisotropy && dev.Info.Features[gpu.FeatureSamplerAnisotropy]
	maxAnisotropy := float32(1)
	if anisotropy {
		maxAnisotropy = dev.Info.MaxSamplerAnisotropy
	}

	sampler, err := dev.Driver.CreateSampler(core1_0.SamplerCreateInfo{
		MagFilter:    opts.Filter,
		MinFilter:    opts.Filter,
		AddressModeU: opts.AddressMode,
		AddressModeV: opts.AddressMode,
		AddressModeW: opts.AddressMode,

		AnisotropyEnable: anisotropy,
		MaxAnisotropy:    maxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     float32(mipLevels),
	})
	if err != nil {
		return 0, errors.Wrap(err, "vkCreateSampler")
	}
	return sampler, nil
}

func Load2D(dev *gpu.Device, path string, opts Options) (*Texture, error) {
	pixels, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	tex, err := FromPixels(dev, pixels, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "upload texture %s", path)
	}
	return tex, nil
}

// LoadCubemap expects faces in +X, -X, +Y, -Y, +Z, -Z order.
func LoadCubemap(dev *gpu.Device, faces [6]string, opts Options) (*Texture, error) {
	layers, err := DecodeFiles(faces[:])
	if err != nil {
		return nil, err
	}
	tex, err := FromLayers(dev, layers, core1_0.ImageViewTypeCube, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "upload cubemap %s", faces[0])
	}
	return tex, nil
}

func LoadArray(dev *gpu.Device, paths []string, opts Options) (*Texture, error) {
	layers, err := DecodeFiles(paths)
	if err != nil {
		return nil, err
	}
	tex, err := FromLayers(dev, layers, core1_0.ImageViewType2DArray, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "upload texture array %s", paths[0])
	}
	return tex, nil
}
