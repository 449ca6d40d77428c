package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/vkbase/config"
	"github.com/vkngwrapper/vkbase/gpu"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.EnableValidation)
	assert.Equal(t, []string{config.ValidationLayer}, cfg.Layers())
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.Equal(t, 720, cfg.Window.Height)

	reqs := cfg.DeviceRequirements()
	assert.Equal(t, []string{config.SwapchainExtName}, reqs.Extensions)
	assert.Equal(t, []gpu.Feature{gpu.FeatureSamplerAnisotropy}, reqs.Features)
	assert.True(t, reqs.PreferDiscrete)
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), config.FileName))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	contents := `enable_validation = false
required_features = ["samplerAnisotropy", "sampleRateShading"]

[window]
title = "viking room"
width = 800
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.EnableValidation)
	assert.Nil(t, cfg.Layers())
	assert.Equal(t, "viking room", cfg.Window.Title)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, 720, cfg.Window.Height)
	assert.Equal(t, []string{config.SwapchainExtName}, cfg.RequiredExtensions)
	assert.Len(t, cfg.DeviceRequirements().Features, 2)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"syntax":          "enable_validation = = true",
		"unknown feature": `required_features = ["geometryShader"]`,
		"zero width":      "[window]\nwidth = 0",
		"empty layer":     `validation_layers = [""]`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

			_, err := config.Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestParseArgs(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.ParseArgs([]string{"--no-validation"}))
	assert.False(t, cfg.EnableValidation)

	cfg.ValidationLayers = nil
	require.NoError(t, cfg.ParseArgs([]string{"--validation"}))
	assert.True(t, cfg.EnableValidation)
	assert.Equal(t, []string{config.ValidationLayer}, cfg.ValidationLayers)

	assert.True(t, errors.Is(cfg.ParseArgs([]string{"-h"}), config.ErrHelp))

	err := cfg.ParseArgs([]string{"--fullscreen"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--fullscreen")

	var usage bytes.Buffer
	config.PrintUsage(&usage)
	assert.Contains(t, usage.String(), "--no-validation")
}

func TestRequire(t *testing.T) {
	cfg := config.Default()
	cfg.Require([]string{config.SwapchainExtName, "VK_KHR_acceleration_structure"}, gpu.FeatureAccelerationStructure, gpu.FeatureSamplerAnisotropy)

	assert.Equal(t, []string{config.SwapchainExtName, "VK_KHR_acceleration_structure"}, cfg.RequiredExtensions)
	assert.Equal(t, []string{"samplerAnisotropy", "accelerationStructure"}, cfg.RequiredFeatures)
	require.NoError(t, cfg.Validate())
}
