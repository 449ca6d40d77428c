package swapchain

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/vkbase/gpu"
)

type Options struct {
	Logger *slog.Logger
}

// Swapchain owns the presentable images of a surface. Create replaces the live chain; the
// previous chain and its views are gone by the time Create returns.
type Swapchain struct {
	device  *gpu.Device
	surface gpu.SurfaceDriver
	logger  *slog.Logger

	Handle      gpu.SwapchainID
	Images      []gpu.ImageID
	Format      core1_0.Format
	ColorSpace  khr_surface.ColorSpace
	Extent      core1_0.Extent2D
	PresentMode khr_surface.PresentMode
	Generation  uuid.UUID

	views []gpu.ImageViewID
}

func New(device *gpu.Device, surface gpu.SurfaceDriver, opts Options) *Swapchain {
	logger := opts.Logger
	if logger == nil {
		logger = device.Logger()
	}
	return &Swapchain{
		device:  device,
		surface: surface,
		logger:  logger,
	}
}

func ChooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(availableFormats) == 0 {
		return khr_surface.SurfaceFormat{}, gpu.ErrNoSurfaceFormat
	}
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}

	return availableFormats[0], nil
}

// ChoosePresentMode prefers mailbox, then immediate, and otherwise uses FIFO, which every
// surface supports.
func ChoosePresentMode(availablePresentModes []khr_surface.PresentMode) (khr_surface.PresentMode, error) {
	if len(availablePresentModes) == 0 {
		return 0, gpu.ErrNoPresentMode
	}
	immediate := false
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode, nil
		}
		if presentMode == khr_surface.PresentModeImmediate {
			immediate = true
		}
	}
	if immediate {
		return khr_surface.PresentModeImmediate, nil
	}

	return khr_surface.PresentModeFIFO, nil
}

// ChooseExtent uses the surface's own extent when it has one, and otherwise clamps the
// requested size to the surface limits.
func ChooseExtent(capabilities khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}

func ChooseImageCount(capabilities khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// Create builds a chain for a width x height framebuffer. It is used for the first chain and
// for every recreation.
func (s *Swapchain) Create(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Newf("cannot create a swapchain for a %dx%d framebuffer", width, height)
	}

	capabilities, err := s.surface.SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "vkGetPhysicalDeviceSurfaceCapabilitiesKHR")
	}
	formats, err := s.surface.SurfaceFormats()
	if err != nil {
		return errors.Wrap(err, "vkGetPhysicalDeviceSurfaceFormatsKHR")
	}
	presentModes, err := s.surface.SurfacePresentModes()
	if err != nil {
		return errors.Wrap(err, "vkGetPhysicalDeviceSurfacePresentModesKHR")
	}

	surfaceFormat, err := ChooseSurfaceFormat(formats)
	if err != nil {
		return err
	}
	presentMode, err := ChoosePresentMode(presentModes)
	if err != nil {
		return err
	}
	extent := ChooseExtent(capabilities, width, height)
	if extent.Width <= 0 || extent.Height <= 0 {
		return errors.Newf("surface reports a %dx%d extent", extent.Width, extent.Height)
	}

	var queueFamilyIndices []int
	if families := s.device.Families.Unique(); len(families) > 1 {
		queueFamilyIndices = families
	}

	oldSwapchain := s.Handle
	handle, err := s.surface.CreateSwapchain(gpu.SwapchainCreateInfo{
		MinImageCount:      ChooseImageCount(capabilities),
		Format:             surfaceFormat.Format,
		ColorSpace:         surfaceFormat.ColorSpace,
		Extent:             extent,
		PresentMode:        presentMode,
		PreTransform:       capabilities.CurrentTransform,
		QueueFamilyIndices: queueFamilyIndices,
		OldSwapchain:       oldSwapchain,
	})
	if err != nil {
		return errors.Wrap(err, "vkCreateSwapchainKHR")
	}

	s.destroyViews()
	if oldSwapchain != 0 {
		s.surface.DestroySwapchain(oldSwapchain)
	}

	s.Handle = handle
	s.Images = nil
	s.Format = surfaceFormat.Format
	s.ColorSpace = surfaceFormat.ColorSpace
	s.Extent = extent
	s.PresentMode = presentMode
	s.Generation = uuid.New()

	images, err := s.surface.SwapchainImages(handle)
	if err != nil {
		return errors.Wrap(err, "vkGetSwapchainImagesKHR")
	}

	scope := &gpu.Scope{}
	defer scope.Release()

	views := make([]gpu.ImageViewID, 0, len(images))
	for _, image := range images {
		view, err := s.device.CreateImageView(gpu.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   s.Format,
			Aspect:   core1_0.ImageAspectColor,
		})
		if err != nil {
			return err
		}
		scope.Add(func() { s.device.Driver.DestroyImageView(view) })
		views = append(views, view)
	}
	scope.Keep()

	s.Images = images
	s.views = views

	s.logger.Info("swapchain created",
		slog.String("generation", s.Generation.String()),
		slog.Int("width", extent.Width),
		slog.Int("height", extent.Height),
		slog.Int("images", len(images)),
		slog.Int("format", int(s.Format)),
		slog.Int("presentMode", int(presentMode)))
	return nil
}

func (s *Swapchain) ImageCount() int {
	return len(s.Images)
}

func (s *Swapchain) Views() []gpu.ImageViewID {
	return s.views
}

// AcquireNextImage signals semaphore once the returned image may be rendered to. An out of
// date status carries no usable index.
func (s *Swapchain) AcquireNextImage(semaphore gpu.SemaphoreID) (int, gpu.PresentStatus, error) {
	if s.Handle == 0 {
		return 0, gpu.StatusSuccess, gpu.ErrDestroyed
	}
	index, status, err := s.surface.AcquireNextImage(s.Handle, semaphore)
	if err != nil {
		return 0, status, errors.Wrap(err, "vkAcquireNextImageKHR")
	}
	return index, status, nil
}

func (s *Swapchain) Present(queue gpu.QueueID, imageIndex int, wait gpu.SemaphoreID) (gpu.PresentStatus, error) {
	if s.Handle == 0 {
		return gpu.StatusSuccess, gpu.ErrDestroyed
	}
	status, err := s.surface.QueuePresent(queue, s.Handle, imageIndex, wait)
	if err != nil {
		return status, errors.Wrap(err, "vkQueuePresentKHR")
	}
	return status, nil
}

func (s *Swapchain) destroyViews() {
	for _, view := range s.views {
		s.device.Driver.DestroyImageView(view)
	}
	s.views = nil
}

func (s *Swapchain) Destroy() {
	s.destroyViews()
	if s.Handle != 0 {
		s.surface.DestroySwapchain(s.Handle)
		s.Handle = 0
	}
	s.Images = nil
}
