package gpu

import "github.com/cockroachdb/errors"

var (
	ErrNoMemoryType     = errors.New("failed to find suitable memory type")
	ErrNoDepthFormat    = errors.New("failed to find supported depth format")
	ErrNoSuitableDevice = errors.New("failed to find a suitable GPU")
	ErrNoSurfaceFormat  = errors.New("surface reports no formats")
	ErrNoPresentMode    = errors.New("surface reports no present modes")
	ErrNoQueueFamily    = errors.New("failed to find required queue families")
	ErrUnsupported      = errors.New("operation not supported by this driver")
	ErrBufferTooSmall   = errors.New("destination buffer too small")
	ErrDestroyed        = errors.New("resource already destroyed")
	ErrNotMapped        = errors.New("buffer memory is not mapped")
	ErrAlreadyMapped    = errors.New("buffer memory is mapped at a different range")
)
