// Package config holds the explicit application configuration: validation layers, required
// device extensions and features, and the window.
package config

import (
	"os"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/vkngwrapper/vkbase/gpu"
)

const (
	ValidationLayer  = "VK_LAYER_KHRONOS_validation"
	SwapchainExtName = "VK_KHR_swapchain"
	FileName         = "vkbase.toml"
)

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Config struct {
	EnableValidation   bool     `toml:"enable_validation"`
	ValidationLayers   []string `toml:"validation_layers"`
	RequiredExtensions []string `toml:"required_extensions"`
	RequiredFeatures   []string `toml:"required_features"`
	PreferDiscreteGPU  bool     `toml:"prefer_discrete_gpu"`
	Window             Window   `toml:"window"`
}

func Default() Config {
	return Config{
		EnableValidation:   true,
		ValidationLayers:   []string{ValidationLayer},
		RequiredExtensions: []string{SwapchainExtName},
		RequiredFeatures:   []string{string(gpu.FeatureSamplerAnisotropy)},
		PreferDiscreteGPU:  true,
		Window: Window{
			Title:  "vkbase",
			Width:  1280,
			Height: 720,
		},
	}
}

// Load overlays the TOML file at path on the defaults. A missing file leaves the defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "load config %s", path)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "load config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.EnableValidation && len(c.ValidationLayers) == 0 {
		return errors.New("validation is enabled but no validation layers are listed")
	}
	for _, layer := range c.ValidationLayers {
		if layer == "" {
			return errors.New("empty validation layer name")
		}
	}
	for _, ext := range c.RequiredExtensions {
		if ext == "" {
			return errors.New("empty device extension name")
		}
	}
	for _, feature := range c.RequiredFeatures {
		if !gpu.IsKnownFeature(feature) {
			return errors.Newf("unknown device feature %q", feature)
		}
	}
	return nil
}

// Layers returns the instance layers to enable, none when validation is off.
func (c Config) Layers() []string {
	if !c.EnableValidation {
		return nil
	}
	return c.ValidationLayers
}

// DeviceRequirements converts the configured extensions and features for device selection.
func (c Config) DeviceRequirements() gpu.DeviceRequirements {
	extensions := slices.Clone(c.RequiredExtensions)
	slices.Sort(extensions)
	extensions = slices.Compact(extensions)

	features := make([]gpu.Feature, 0, len(c.RequiredFeatures))
	for _, feature := range c.RequiredFeatures {
		if !slices.Contains(features, gpu.Feature(feature)) {
			features = append(features, gpu.Feature(feature))
		}
	}

	return gpu.DeviceRequirements{
		Extensions:     extensions,
		Features:       features,
		PreferDiscrete: c.PreferDiscreteGPU,
	}
}

// Require adds device extensions and features, as ray tracing programs do before opening the device.
func (c *Config) Require(extensions []string, features ...gpu.Feature) {
	for _, ext := range extensions {
		if !slices.Contains(c.RequiredExtensions, ext) {
			c.RequiredExtensions = append(c.RequiredExtensions, ext)
		}
	}
	for _, feature := range features {
		if !slices.Contains(c.RequiredFeatures, string(feature)) {
			c.RequiredFeatures = append(c.RequiredFeatures, string(feature))
		}
	}
}
