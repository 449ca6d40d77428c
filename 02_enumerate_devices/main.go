package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/vkngwrapper/vkbase/assets"
	"github.com/vkngwrapper/vkbase/config"
	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/vkng"
	"github.com/vkngwrapper/vkbase/window"
)

func enumerateDevices() error {
	cfg, err := config.Load(filepath.Join(assets.Dir(), config.FileName))
	if err != nil {
		return err
	}
	if err := cfg.ParseArgs(os.Args[1:]); err != nil {
		return err
	}
	cfg.Window.Title = "Enumerate Devices"

	win, err := window.Open(cfg.Window)
	if err != nil {
		return err
	}
	defer win.Destroy()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	backend, err := vkng.Open(cfg, win.Window, vkng.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer backend.Close()

	for _, info := range backend.Candidates {
		marker := " "
		if info.Name == backend.Info.Name {
			marker = "*"
		}
		fmt.Printf("%s %s (api %s, discrete %t)\n", marker, info.Name, info.APIVersion, info.Discrete)
		fmt.Printf("    score %d, msaa %s, queue families %d, memory types %d\n",
			gpu.ScorePhysicalDevice(info, backend.Requirements),
			gpu.MaxUsableSampleCount(info.ColorSampleCounts, info.DepthSampleCounts),
			len(info.QueueFamilies), len(info.MemoryTypes))
	}

	families := backend.Device.Families
	fmt.Printf("graphics family %d, present family %d\n", families.Graphics, families.Present)
	return nil
}

func main() {
	runtime.LockOSThread()

	err := enumerateDevices()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
