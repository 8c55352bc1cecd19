// Package swapchain manages the presentable-image chain: it queries surface
// support, derives creation parameters deterministically, and owns the
// swapchain handle together with one image view per swapchain image.
//
// The whole State is throwaway: on resize or an out-of-date present result
// the renderer destroys it and builds a fresh one from current surface
// capabilities. Selection helpers are pure so parameter derivation can be
// tested without a device.
package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// SurfaceQuerier is the slice of the khr_surface extension driver needed to
// query swapchain support for a physical device.
type SurfaceQuerier interface {
	GetPhysicalDeviceSurfaceCapabilities(surface khr_surface.Surface, device core1_0.PhysicalDevice) (*khr_surface.SurfaceCapabilities, common.VkResult, error)
	GetPhysicalDeviceSurfaceFormats(surface khr_surface.Surface, device core1_0.PhysicalDevice) ([]khr_surface.SurfaceFormat, common.VkResult, error)
	GetPhysicalDeviceSurfacePresentModes(surface khr_surface.Surface, device core1_0.PhysicalDevice) ([]khr_surface.PresentMode, common.VkResult, error)
}

// Extension is the slice of the khr_swapchain extension driver used for
// swapchain construction and teardown.
type Extension interface {
	CreateSwapchain(allocator *loader.AllocationCallbacks, options khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, common.VkResult, error)
	GetSwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, common.VkResult, error)
	DestroySwapchain(swapchain khr_swapchain.Swapchain, callbacks *loader.AllocationCallbacks)
}

// Device is the slice of the logical-device driver needed for image views.
type Device interface {
	CreateImageView(allocator *loader.AllocationCallbacks, options core1_0.ImageViewCreateInfo) (core1_0.ImageView, common.VkResult, error)
	DestroyImageView(imageView core1_0.ImageView, callbacks *loader.AllocationCallbacks)
}

// SupportDetails carries everything the surface reports about a physical
// device. It is queried once per swapchain generation and discarded.
type SupportDetails struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// QuerySupport collects capabilities, formats and present modes for a
// device/surface pair.
func QuerySupport(surfaceExt SurfaceQuerier, surface khr_surface.Surface, device core1_0.PhysicalDevice) (SupportDetails, error) {
	var details SupportDetails
	var err error

	details.Capabilities, _, err = surfaceExt.GetPhysicalDeviceSurfaceCapabilities(surface, device)
	if err != nil {
		return details, errors.Wrap(err, "query surface capabilities")
	}

	details.Formats, _, err = surfaceExt.GetPhysicalDeviceSurfaceFormats(surface, device)
	if err != nil {
		return details, errors.Wrap(err, "query surface formats")
	}

	details.PresentModes, _, err = surfaceExt.GetPhysicalDeviceSurfacePresentModes(surface, device)
	if err != nil {
		return details, errors.Wrap(err, "query surface present modes")
	}

	return details, nil
}

// ChooseSurfaceFormat prefers 8-bit BGRA with the sRGB non-linear color
// space, falling back to the first supported format in list order.
func ChooseSurfaceFormat(available []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return available[0]
}

// ChoosePresentMode prefers mailbox (low-latency triple buffering) and falls
// back to FIFO, the only mode every driver must support.
func ChoosePresentMode(available []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range available {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// ChooseExtent returns the surface's current extent verbatim when it is
// defined, otherwise the drawable size clamped to the supported range.
func ChooseExtent(capabilities *khr_surface.SurfaceCapabilities, drawableWidth, drawableHeight int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width := drawableWidth
	height := drawableHeight

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

// ChooseImageCount asks for one image more than the minimum so the renderer
// never waits on the driver, clamped to the maximum when the surface reports
// one. A maximum of 0 means unbounded.
func ChooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}

	return imageCount
}

// State owns a swapchain generation: the swapchain handle, its chosen
// format and extent, the images the swapchain owns, and the image views this
// package created for them.
type State struct {
	Swapchain  khr_swapchain.Swapchain
	Format     core1_0.Format
	Extent     core1_0.Extent2D
	Images     []core1_0.Image
	ImageViews []core1_0.ImageView
}

// Options configures swapchain creation.
type Options struct {
	Surface khr_surface.Surface
	Support SupportDetails

	// Drawable size, used only when the surface does not pin the extent.
	DrawableWidth  int
	DrawableHeight int
}

// New creates a swapchain from the queried support details and one 2D color
// image view per swapchain image.
//
// Images are always created with exclusive sharing. When graphics and
// present queue families differ this would need ownership-transfer barriers
// the renderer does not record; the single-queue case is the only one
// exercised in practice and the limitation is accepted.
func New(ext Extension, device Device, opts Options) (*State, error) {
	surfaceFormat := ChooseSurfaceFormat(opts.Support.Formats)
	presentMode := ChoosePresentMode(opts.Support.PresentModes)
	extent := ChooseExtent(opts.Support.Capabilities, opts.DrawableWidth, opts.DrawableHeight)
	imageCount := ChooseImageCount(opts.Support.Capabilities)

	swapchain, _, err := ext.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: opts.Surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   opts.Support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	state := &State{
		Swapchain: swapchain,
		Format:    surfaceFormat.Format,
		Extent:    extent,
	}

	state.Images, _, err = ext.GetSwapchainImages(swapchain)
	if err != nil {
		state.Destroy(ext, device)
		return nil, errors.Wrap(err, "get swapchain images")
	}

	for _, image := range state.Images {
		view, _, err := device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   surfaceFormat.Format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			state.Destroy(ext, device)
			return nil, errors.Wrap(err, "create swapchain image view")
		}

		state.ImageViews = append(state.ImageViews, view)
	}

	return state, nil
}

// Destroy releases the image views and then the swapchain itself. The
// images belong to the swapchain and are not freed individually.
func (s *State) Destroy(ext Extension, device Device) {
	for _, view := range s.ImageViews {
		device.DestroyImageView(view, nil)
	}
	s.ImageViews = nil

	if s.Swapchain.Initialized() {
		ext.DestroySwapchain(s.Swapchain, nil)
		s.Swapchain = khr_swapchain.Swapchain{}
	}
}
