// Package app assembles the renderer: it owns the window, the Vulkan
// instance and logical device, and the frame loop that drives the
// swapchain, pipeline, frame and mesh packages.
//
// Everything swapchain-derived (swapchain state, pipeline, framebuffers,
// command buffers) is rebuilt together whenever the surface reports the
// chain stale or the window is resized. The synchronization objects and the
// vertex buffer are created once and survive every rebuild.
package app

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vantage3d/vantage/device"
	"github.com/vantage3d/vantage/frame"
	"github.com/vantage3d/vantage/mesh"
	"github.com/vantage3d/vantage/pipeline"
	"github.com/vantage3d/vantage/swapchain"
)

// Window is the slice of the SDL window the frame loop queries. Surface
// creation still needs the concrete window.
type Window interface {
	VulkanGetDrawableSize() (int32, int32)
	GetSize() (int32, int32)
	GetFlags() uint32
}

// Instance is everything the renderer needs from the instance driver.
type Instance interface {
	device.Instance
	mesh.MemoryQuerier
}

// SurfaceExtension is everything the renderer needs from the khr_surface
// extension driver.
type SurfaceExtension interface {
	device.Surface
	DestroySurface(surface khr_surface.Surface, callbacks *loader.AllocationCallbacks)
}

// Device is everything the renderer needs from the logical-device driver.
// core1_0.CoreDeviceDriver satisfies it.
type Device interface {
	swapchain.Device
	pipeline.Device
	mesh.Device
	frame.Device
	frame.SyncDevice
	GetQueue(queueFamilyIndex int, queueIndex int) core1_0.Queue
	DeviceWaitIdle() (common.VkResult, error)
	DestroyDevice(callbacks *loader.AllocationCallbacks)
}

// SwapchainExtension is everything the renderer needs from the
// khr_swapchain extension driver.
type SwapchainExtension interface {
	swapchain.Extension
	frame.Presenter
}

// App is the renderer. Construct with New and drive with Run; the struct is
// not safe for use from more than one goroutine.
type App struct {
	cfg Config

	window       Window
	sdlWindow    *sdl.Window
	globalDriver core1_0.GlobalDriver

	instanceDriver core1_0.CoreInstanceDriver
	instance       Instance

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	surfaceExt SurfaceExtension
	surface    khr_surface.Surface

	selection device.Selection

	device       Device
	swapchainExt SwapchainExtension

	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue

	swapchainState *swapchain.State
	pipelineState  *pipeline.State
	vertexBuffer   *mesh.Buffer
	commandPool    core1_0.CommandPool
	resources      *frame.Resources
	sync           *frame.Synchronizer

	// createDevice builds the logical device for a selection. The default
	// goes through the instance driver; tests substitute fakes.
	createDevice func(sel device.Selection) (Device, SwapchainExtension, error)
}

// New prepares an App from the configuration. No Vulkan or window-system
// work happens until Run.
func New(cfg Config) *App {
	a := &App{cfg: cfg.withDefaults()}
	a.createDevice = a.createLogicalDevice

	return a
}

// Run initializes the window and the full Vulkan stack, drives the frame
// loop until the window closes, and tears everything down.
func (a *App) Run() error {
	window, globalDriver, err := initWindow(a.cfg)
	if err != nil {
		return err
	}
	a.sdlWindow = window
	a.window = window
	a.globalDriver = globalDriver

	err = a.initVulkan()
	if err != nil {
		a.cleanup()
		return err
	}
	defer a.cleanup()

	return a.mainLoop()
}

func (a *App) initVulkan() error {
	err := a.createInstance()
	if err != nil {
		return err
	}

	err = a.setupDebugMessenger()
	if err != nil {
		return err
	}

	err = a.createSurface()
	if err != nil {
		return err
	}

	a.selection, err = device.Pick(a.instance, a.surfaceExt, a.surface)
	if err != nil {
		return err
	}
	a.cfg.Logger.WithFields(logrus.Fields{
		"graphicsFamily":    *a.selection.QueueFamilies.GraphicsFamily,
		"presentFamily":     *a.selection.QueueFamilies.PresentFamily,
		"portabilitySubset": a.selection.PortabilitySubset,
	}).Info("selected physical device")

	a.device, a.swapchainExt, err = a.createDevice(a.selection)
	if err != nil {
		return err
	}

	a.graphicsQueue = a.device.GetQueue(*a.selection.QueueFamilies.GraphicsFamily, 0)
	a.presentQueue = a.device.GetQueue(*a.selection.QueueFamilies.PresentFamily, 0)

	a.vertexBuffer, err = mesh.NewVertexBuffer(a.device, a.instance, a.selection.PhysicalDevice, mesh.Triangle)
	if err != nil {
		return err
	}

	a.commandPool, err = frame.NewCommandPool(a.device, *a.selection.QueueFamilies.GraphicsFamily)
	if err != nil {
		return err
	}

	err = a.buildSwapchainState()
	if err != nil {
		return err
	}

	a.sync, err = frame.NewSynchronizer(a.device)
	if err != nil {
		return err
	}

	return nil
}

func (a *App) createLogicalDevice(sel device.Selection) (Device, SwapchainExtension, error) {
	deviceDriver, _, err := a.instanceDriver.CreateDevice(sel.PhysicalDevice, nil, device.CreateInfo(sel))
	if err != nil {
		return nil, nil, errors.Wrap(err, "create logical device")
	}

	return deviceDriver, khr_swapchain.CreateExtensionDriverFromCoreDriver(deviceDriver), nil
}

// buildSwapchainState creates one swapchain generation: the swapchain and
// its views, the pipeline targeting its format and extent, and the
// per-image framebuffers and command buffers.
func (a *App) buildSwapchainState() error {
	support, err := swapchain.QuerySupport(a.surfaceExt, a.surface, a.selection.PhysicalDevice)
	if err != nil {
		return err
	}

	drawableWidth, drawableHeight := a.window.VulkanGetDrawableSize()
	a.swapchainState, err = swapchain.New(a.swapchainExt, a.device, swapchain.Options{
		Surface:        a.surface,
		Support:        support,
		DrawableWidth:  int(drawableWidth),
		DrawableHeight: int(drawableHeight),
	})
	if err != nil {
		return err
	}
	a.cfg.Logger.WithFields(logrus.Fields{
		"format": a.swapchainState.Format,
		"width":  a.swapchainState.Extent.Width,
		"height": a.swapchainState.Extent.Height,
		"images": len(a.swapchainState.Images),
	}).Debug("swapchain created")

	a.pipelineState, err = pipeline.New(a.device, pipeline.Options{
		Format:         a.swapchainState.Format,
		Extent:         a.swapchainState.Extent,
		VertexShader:   a.cfg.VertexShader,
		FragmentShader: a.cfg.FragmentShader,
	})
	if err != nil {
		return err
	}

	a.resources, err = frame.NewResources(a.device, frame.Options{
		CommandPool:  a.commandPool,
		RenderPass:   a.pipelineState.RenderPass,
		Pipeline:     a.pipelineState.Pipeline,
		ImageViews:   a.swapchainState.ImageViews,
		Extent:       a.swapchainState.Extent,
		VertexBuffer: a.vertexBuffer.Buffer,
		VertexCount:  a.vertexBuffer.VertexCount,
	})
	if err != nil {
		return err
	}

	return nil
}

func (a *App) destroySwapchainState() {
	if a.resources != nil {
		a.resources.Destroy(a.device)
		a.resources = nil
	}
	if a.pipelineState != nil {
		a.pipelineState.Destroy(a.device)
		a.pipelineState = nil
	}
	if a.swapchainState != nil {
		a.swapchainState.Destroy(a.swapchainExt, a.device)
		a.swapchainState = nil
	}
}

// recreateSwapchain replaces the swapchain generation after a resize or an
// out-of-date result. With the window minimized (zero drawable area) it
// does nothing; the loop retries once the window is restored.
func (a *App) recreateSwapchain() error {
	w, h := a.window.VulkanGetDrawableSize()
	if w == 0 || h == 0 {
		return nil
	}
	if (a.window.GetFlags() & sdl.WINDOW_MINIMIZED) != 0 {
		return nil
	}

	a.cfg.Logger.Debug("recreating swapchain")

	_, err := a.device.DeviceWaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}

	a.destroySwapchainState()

	return a.buildSwapchainState()
}

func (a *App) mainLoop() error {
	rendering := true
	frames := 0
	windowStart := hrtime.Now()

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					w, h := a.window.GetSize()
					if w > 0 && h > 0 {
						rendering = true
						err := a.recreateSwapchain()
						if err != nil {
							return err
						}
					} else {
						rendering = false
					}
				}
			}
		}

		if !rendering {
			continue
		}

		err := a.drawFrame()
		if err != nil {
			return err
		}

		frames++
		if elapsed := hrtime.Since(windowStart); elapsed >= 5*time.Second {
			a.cfg.Logger.WithField("fps", float64(frames)/elapsed.Seconds()).Debug("frame rate")
			frames = 0
			windowStart = hrtime.Now()
		}
	}

	_, err := a.device.DeviceWaitIdle()
	return err
}

func (a *App) drawFrame() error {
	rebuild, err := a.sync.DrawFrame(a.device, a.swapchainExt, a.graphicsQueue, a.presentQueue,
		a.swapchainState.Swapchain, a.resources.CommandBuffers)
	if err != nil {
		return err
	}
	if rebuild {
		return a.recreateSwapchain()
	}

	return nil
}

// cleanup tears the renderer down in reverse construction order. It is safe
// to call with initialization only partially complete.
func (a *App) cleanup() {
	if a.device != nil {
		_, _ = a.device.DeviceWaitIdle()

		a.destroySwapchainState()

		if a.vertexBuffer != nil {
			a.vertexBuffer.Destroy(a.device)
			a.vertexBuffer = nil
		}

		if a.sync != nil {
			a.sync.Destroy(a.device)
			a.sync = nil
		}

		if a.commandPool.Initialized() {
			a.device.DestroyCommandPool(a.commandPool, nil)
			a.commandPool = core1_0.CommandPool{}
		}

		a.device.DestroyDevice(nil)
		a.device = nil
	}

	if a.debugMessenger.Initialized() {
		a.debugDriver.DestroyDebugUtilsMessenger(a.debugMessenger, nil)
		a.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if a.surface.Initialized() {
		a.surfaceExt.DestroySurface(a.surface, nil)
		a.surface = khr_surface.Surface{}
	}

	if a.instanceDriver != nil {
		a.instanceDriver.DestroyInstance(nil)
		a.instanceDriver = nil
		a.instance = nil
	}

	if a.sdlWindow != nil {
		a.sdlWindow.Destroy()
		a.sdlWindow = nil
		a.window = nil
	}
	sdl.Quit()
}
