package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/vkbase/assets"
	"github.com/vkngwrapper/vkbase/config"
	"github.com/vkngwrapper/vkbase/frameloop"
	"github.com/vkngwrapper/vkbase/vkng"
	"github.com/vkngwrapper/vkbase/window"
)

func run() error {
	cfg, err := config.Load(filepath.Join(assets.Dir(), config.FileName))
	if err != nil {
		return err
	}
	if err := cfg.ParseArgs(os.Args[1:]); err != nil {
		if errors.Is(err, config.ErrHelp) {
			config.PrintUsage(os.Stdout)
			return nil
		}
		return err
	}
	cfg.Window.Title = "Viking Room"

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	win, err := window.Open(cfg.Window)
	if err != nil {
		return err
	}
	defer win.Destroy()

	backend, err := vkng.Open(cfg, win.Window, vkng.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer backend.Close()

	room, err := newVikingRoom(backend)
	if err != nil {
		return err
	}
	defer room.destroy()

	base := frameloop.New(backend.Device, backend, win, room, frameloop.Options{Logger: logger})
	defer base.Destroy()

	if err := base.Prepare(); err != nil {
		return err
	}
	return base.Run(context.Background(), win.Poll)
}

func main() {
	runtime.LockOSThread()

	err := run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
