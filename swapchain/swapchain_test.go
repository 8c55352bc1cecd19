package swapchain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vantage3d/vantage/swapchain"
)

func TestChooseSurfaceFormatPrefersSRGB(t *testing.T) {
	preferred := khr_surface.SurfaceFormat{
		Format:     core1_0.FormatB8G8R8A8SRGB,
		ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
	}
	other := khr_surface.SurfaceFormat{
		Format:     core1_0.FormatR8G8B8A8UnsignedNormalized,
		ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
	}

	chosen := swapchain.ChooseSurfaceFormat([]khr_surface.SurfaceFormat{other, preferred})
	assert.Equal(t, preferred, chosen)
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	first := khr_surface.SurfaceFormat{
		Format:     core1_0.FormatR8G8B8A8UnsignedNormalized,
		ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
	}
	second := khr_surface.SurfaceFormat{
		Format:     core1_0.FormatB8G8R8A8UnsignedNormalized,
		ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
	}

	chosen := swapchain.ChooseSurfaceFormat([]khr_surface.SurfaceFormat{first, second})
	assert.Equal(t, first, chosen)
}

func TestChoosePresentModePrefersMailbox(t *testing.T) {
	chosen := swapchain.ChoosePresentMode([]khr_surface.PresentMode{
		khr_surface.PresentModeFIFO,
		khr_surface.PresentModeMailbox,
	})
	assert.Equal(t, khr_surface.PresentModeMailbox, chosen)
}

func TestChoosePresentModeFallsBackToFIFO(t *testing.T) {
	chosen := swapchain.ChoosePresentMode([]khr_surface.PresentMode{
		khr_surface.PresentModeImmediate,
		khr_surface.PresentModeFIFORelaxed,
	})
	assert.Equal(t, khr_surface.PresentModeFIFO, chosen)
}

func TestChooseExtentUsesPinnedExtent(t *testing.T) {
	capabilities := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: 1280, Height: 720},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
	}

	extent := swapchain.ChooseExtent(capabilities, 640, 480)
	assert.Equal(t, core1_0.Extent2D{Width: 1280, Height: 720}, extent)
}

func TestChooseExtentClampsDrawableSize(t *testing.T) {
	capabilities := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 200, Height: 200},
		MaxImageExtent: core1_0.Extent2D{Width: 1920, Height: 1080},
	}

	extent := swapchain.ChooseExtent(capabilities, 100, 4000)
	assert.Equal(t, core1_0.Extent2D{Width: 200, Height: 1080}, extent)

	extent = swapchain.ChooseExtent(capabilities, 800, 600)
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, extent)
}

func TestChooseImageCount(t *testing.T) {
	count := swapchain.ChooseImageCount(&khr_surface.SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 8,
	})
	assert.Equal(t, 3, count)

	count = swapchain.ChooseImageCount(&khr_surface.SurfaceCapabilities{
		MinImageCount: 3,
		MaxImageCount: 3,
	})
	assert.Equal(t, 3, count)

	// Zero maximum means the surface does not bound the count.
	count = swapchain.ChooseImageCount(&khr_surface.SurfaceCapabilities{
		MinImageCount: 4,
		MaxImageCount: 0,
	})
	assert.Equal(t, 5, count)
}

type fakeExtension struct {
	createInfo khr_swapchain.SwapchainCreateInfo
	images     []core1_0.Image
	destroyed  int
}

func (f *fakeExtension) CreateSwapchain(allocator *loader.AllocationCallbacks, options khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, common.VkResult, error) {
	f.createInfo = options
	return khr_swapchain.Swapchain{}, core1_0.VKSuccess, nil
}

func (f *fakeExtension) GetSwapchainImages(sc khr_swapchain.Swapchain) ([]core1_0.Image, common.VkResult, error) {
	return f.images, core1_0.VKSuccess, nil
}

func (f *fakeExtension) DestroySwapchain(sc khr_swapchain.Swapchain, callbacks *loader.AllocationCallbacks) {
	f.destroyed++
}

type fakeViewDevice struct {
	viewInfos []core1_0.ImageViewCreateInfo
	destroyed int
}

func (f *fakeViewDevice) CreateImageView(allocator *loader.AllocationCallbacks, options core1_0.ImageViewCreateInfo) (core1_0.ImageView, common.VkResult, error) {
	f.viewInfos = append(f.viewInfos, options)
	return core1_0.ImageView{}, core1_0.VKSuccess, nil
}

func (f *fakeViewDevice) DestroyImageView(view core1_0.ImageView, callbacks *loader.AllocationCallbacks) {
	f.destroyed++
}

func supportFixture() swapchain.SupportDetails {
	return swapchain.SupportDetails{
		Capabilities: &khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  core1_0.Extent2D{Width: 1280, Height: 720},
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
	}
}

func TestNewCreatesSwapchainAndViews(t *testing.T) {
	ext := &fakeExtension{images: make([]core1_0.Image, 3)}
	dev := &fakeViewDevice{}

	state, err := swapchain.New(ext, dev, swapchain.Options{
		Support:        supportFixture(),
		DrawableWidth:  1280,
		DrawableHeight: 720,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, ext.createInfo.MinImageCount)
	assert.Equal(t, core1_0.FormatB8G8R8A8SRGB, ext.createInfo.ImageFormat)
	assert.Equal(t, core1_0.Extent2D{Width: 1280, Height: 720}, ext.createInfo.ImageExtent)
	assert.Equal(t, 1, ext.createInfo.ImageArrayLayers)
	assert.Equal(t, core1_0.ImageUsageColorAttachment, ext.createInfo.ImageUsage)
	assert.Equal(t, core1_0.SharingModeExclusive, ext.createInfo.ImageSharingMode)
	assert.Equal(t, khr_surface.CompositeAlphaOpaque, ext.createInfo.CompositeAlpha)
	assert.True(t, ext.createInfo.Clipped)

	assert.Equal(t, core1_0.FormatB8G8R8A8SRGB, state.Format)
	assert.Equal(t, core1_0.Extent2D{Width: 1280, Height: 720}, state.Extent)
	assert.Len(t, state.Images, 3)

	require.Len(t, dev.viewInfos, 3)
	for _, info := range dev.viewInfos {
		assert.Equal(t, core1_0.ImageViewType2D, info.ViewType)
		assert.Equal(t, core1_0.FormatB8G8R8A8SRGB, info.Format)
		assert.Equal(t, core1_0.ImageAspectColor, info.SubresourceRange.AspectMask)
		assert.Equal(t, 1, info.SubresourceRange.LevelCount)
		assert.Equal(t, 1, info.SubresourceRange.LayerCount)
	}
}

func TestDestroyReleasesViewsAndSwapchain(t *testing.T) {
	ext := &fakeExtension{images: make([]core1_0.Image, 2)}
	dev := &fakeViewDevice{}

	state, err := swapchain.New(ext, dev, swapchain.Options{
		Support:        supportFixture(),
		DrawableWidth:  1280,
		DrawableHeight: 720,
	})
	require.NoError(t, err)

	state.Destroy(ext, dev)
	assert.Equal(t, 2, dev.destroyed)
	assert.Empty(t, state.ImageViews)
}
