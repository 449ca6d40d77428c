// Package window owns the SDL window a Vulkan surface is created on and tracks the events the
// frame loop cares about.
package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/vkbase/config"
)

type Window struct {
	*sdl.Window

	resized   bool
	minimized bool
}

// Open initializes SDL video and creates a shown, resizable Vulkan window.
func Open(cfg config.Window) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "sdl init")
	}

	window, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width), int32(cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}
	return &Window{Window: window}, nil
}

func (w *Window) FramebufferSize() (int, int) {
	if w.minimized {
		return 0, 0
	}
	width, height := w.VulkanGetDrawableSize()
	return int(width), int(height)
}

// WaitEvents blocks for one event and then drains the queue.
func (w *Window) WaitEvents() {
	w.handle(sdl.WaitEvent())
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handle(event)
	}
}

func (w *Window) TakeResized() bool {
	resized := w.resized
	w.resized = false
	return resized
}

// Poll drains pending events and reports whether the user asked to quit.
func (w *Window) Poll() (quit bool) {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if w.handle(event) {
			quit = true
		}
	}
	return quit
}

func (w *Window) handle(event sdl.Event) (quit bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return true
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_MINIMIZED:
			w.minimized = true
		case sdl.WINDOWEVENT_RESTORED:
			w.minimized = false
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			w.resized = true
		}
	}
	return false
}

func (w *Window) Destroy() {
	if w.Window != nil {
		_ = w.Window.Destroy()
		w.Window = nil
	}
	sdl.Quit()
}
