package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veandco/go-sdl2/sdl"
)

func TestHandle_Resize(t *testing.T) {
	w := &Window{}

	assert.False(t, w.handle(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED}))
	assert.True(t, w.TakeResized())
	assert.False(t, w.TakeResized())

	w.handle(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_SIZE_CHANGED})
	assert.True(t, w.TakeResized())
}

func TestHandle_MinimizedReportsZeroSize(t *testing.T) {
	w := &Window{}

	w.handle(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED})
	width, height := w.FramebufferSize()
	assert.Zero(t, width)
	assert.Zero(t, height)

	w.handle(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESTORED})
	assert.False(t, w.minimized)
}

func TestHandle_Quit(t *testing.T) {
	w := &Window{}
	assert.True(t, w.handle(&sdl.QuitEvent{}))
	assert.False(t, w.TakeResized())
}
