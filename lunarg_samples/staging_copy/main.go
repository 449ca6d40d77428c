package main

/*
Staging copy

Upload a checkerboard through a staging buffer, copy it device to device into a host
visible buffer and read it back. Then upload the same checkerboard as a 2D texture and as
the six faces of a cubemap.
*/

import (
	"bytes"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/assets"
	"github.com/vkngwrapper/vkbase/config"
	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/texture"
	"github.com/vkngwrapper/vkbase/vkng"
	"github.com/vkngwrapper/vkbase/window"
)

const checkerSize = 64

func checkerboard(size, square int) texture.Pixels {
	pixels := texture.Pixels{Width: size, Height: size, Data: make([]byte, size*size*4)}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			value := byte(0)
			if (x/square+y/square)%2 == 0 {
				value = 255
			}
			offset := (y*size + x) * 4
			pixels.Data[offset] = value
			pixels.Data[offset+1] = value
			pixels.Data[offset+2] = value
			pixels.Data[offset+3] = 255
		}
	}
	return pixels
}

func roundTrip(dev *gpu.Device, data []byte) error {
	uploader := gpu.NewUploader(dev)

	deviceLocal, err := uploader.UploadBuffer(data, core1_0.BufferUsageTransferSrc)
	if err != nil {
		return err
	}
	defer deviceLocal.Destroy()

	readback, err := dev.CreateBuffer(core1_0.BufferUsageTransferDst,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent, len(data), nil)
	if err != nil {
		return err
	}
	defer readback.Destroy()

	err = dev.CopyBuffer(deviceLocal, readback, core1_0.BufferCopy{})
	if err != nil {
		return err
	}

	out, err := uploader.ReadBack(readback)
	if err != nil {
		return err
	}
	if !bytes.Equal(out, data) {
		return errors.New("read back data does not match the upload")
	}
	return nil
}

func stagingCopy() error {
	cfg, err := config.Load(filepath.Join(assets.Dir(), config.FileName))
	if err != nil {
		return err
	}
	if err := cfg.ParseArgs(os.Args[1:]); err != nil {
		return err
	}
	cfg.Window.Title = "Staging Copy"

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

	dev := backend.Device
	pixels := checkerboard(checkerSize, 8)

	start := hrtime.Now()
	err = roundTrip(dev, pixels.Data)
	if err != nil {
		return err
	}
	fmt.Printf("buffer round trip of %d bytes: %s\n", len(pixels.Data), hrtime.Since(start))

	start = hrtime.Now()
	flat, err := texture.FromPixels(dev, pixels, texture.Options{})
	if err != nil {
		return err
	}
	defer flat.Destroy()
	fmt.Printf("2D texture %dx%d, %d mips, layout %s: %s\n",
		flat.Width(), flat.Height(), flat.MipLevels(), flat.ImageLayout(), hrtime.Since(start))

	faces := make([]texture.Pixels, 6)
	for i := range faces {
		faces[i] = checkerboard(checkerSize, 4<<(i%3))
	}

	start = hrtime.Now()
	cube, err := texture.FromLayers(dev, faces, core1_0.ImageViewTypeCube, texture.Options{})
	if err != nil {
		return err
	}
	defer cube.Destroy()
	fmt.Printf("cubemap %dx%d, %d layers: %s\n", cube.Width(), cube.Height(), cube.LayerCount(), hrtime.Since(start))

	return nil
}

func main() {
	runtime.LockOSThread()

	err := stagingCopy()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
