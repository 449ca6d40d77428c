// Package assets locates models, textures and compiled shaders shipped next to the executable.
package assets

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
)

const EntryPoint = "main"

// Dir is the directory holding the running executable.
func Dir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func Path(name string) string {
	return filepath.Join(Dir(), "assets", name)
}

func ShaderPath(name string) string {
	return filepath.Join(Dir(), "shaders", name)
}

// Bytecode converts SPIR-V file contents into code words.
func Bytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("SPIR-V length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = common.ByteOrder.Uint32(b[i*4:])
	}
	return byteCode, nil
}

func LoadShader(dev *gpu.Device, path string) (gpu.ShaderModuleID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "load shader %s", path)
	}
	code, err := Bytecode(data)
	if err != nil {
		return 0, errors.Wrapf(err, "load shader %s", path)
	}
	module, err := dev.Driver.CreateShaderModule(code)
	if err != nil {
		return 0, errors.Wrapf(err, "vkCreateShaderModule %s", path)
	}
	return module, nil
}

type ShaderStage struct {
	Module gpu.ShaderModuleID
	Stage  core1_0.ShaderStageFlags
	Entry  string
}

// ShaderSet owns the modules loaded for a set of pipelines until Destroy.
type ShaderSet struct {
	device  *gpu.Device
	modules []gpu.ShaderModuleID
}

func NewShaderSet(dev *gpu.Device) *ShaderSet {
	return &ShaderSet{device: dev}
}

func (s *ShaderSet) Load(path string, stage core1_0.ShaderStageFlags) (ShaderStage, error) {
	module, err := LoadShader(s.device, path)
	if err != nil {
		return ShaderStage{}, err
	}
	s.modules = append(s.modules, module)
	return ShaderStage{Module: module, Stage: stage, Entry: EntryPoint}, nil
}

func (s *ShaderSet) Destroy() {
	for _, module := range s.modules {
		s.device.Driver.DestroyShaderModule(module)
	}
	s.modules = nil
}
