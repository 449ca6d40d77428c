package assets_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/assets"
	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/internal/fakevk"
)

func newDevice(t *testing.T) (*gpu.Device, *fakevk.Driver) {
	t.Helper()
	driver := fakevk.New()
	dev, err := gpu.NewDevice(driver, driver.PhysicalDevice(), gpu.QueueFamilyIndices{}, gpu.DeviceOptions{})
	require.NoError(t, err)
	return dev, driver
}

func TestPaths(t *testing.T) {
	dir := assets.Dir()
	assert.True(t, filepath.IsAbs(dir))
	assert.Equal(t, filepath.Join(dir, "assets", "viking_room.obj"), assets.Path("viking_room.obj"))
	assert.Equal(t, filepath.Join(dir, "shaders", "vert.spv"), assets.ShaderPath("vert.spv"))
}

func TestBytecode(t *testing.T) {
	// SPIR-V magic number, little endian.
	code, err := assets.Bytecode([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, code)

	_, err = assets.Bytecode([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = assets.Bytecode(nil)
	assert.Error(t, err)
}

func TestShaderSet(t *testing.T) {
	dev, driver := newDevice(t)
	dir := t.TempDir()
	vert := filepath.Join(dir, "vert.spv")
	require.NoError(t, os.WriteFile(vert, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))

	shaders := assets.NewShaderSet(dev)
	stage, err := shaders.Load(vert, core1_0.StageVertex)
	require.NoError(t, err)
	assert.NotZero(t, stage.Module)
	assert.Equal(t, core1_0.StageVertex, stage.Stage)
	assert.Equal(t, "main", stage.Entry)
	assert.Equal(t, 1, driver.Live(fakevk.KindShaderModule))

	shaders.Destroy()
	assert.Zero(t, driver.Live(fakevk.KindShaderModule))
}

func TestLoadShader_Errors(t *testing.T) {
	dev, driver := newDevice(t)
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.spv")
	_, err := assets.LoadShader(dev, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)

	truncated := filepath.Join(dir, "truncated.spv")
	require.NoError(t, os.WriteFile(truncated, []byte{1, 2, 3, 4, 5}, 0o644))
	_, err = assets.LoadShader(dev, truncated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), truncated)

	good := filepath.Join(dir, "good.spv")
	require.NoError(t, os.WriteFile(good, []byte{1, 2, 3, 4}, 0o644))
	driver.FailOn("CreateShaderModule", nil)
	_, err = assets.LoadShader(dev, good)
	assert.True(t, errors.Is(err, fakevk.ErrInjected))
	assert.Zero(t, driver.Live(fakevk.KindShaderModule))
}
