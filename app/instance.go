package app

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

func (a *App) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    a.cfg.Title,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := a.sdlWindow.VulkanGetInstanceExtensions()
	extensions, _, err := a.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("window system requires unavailable instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if a.cfg.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	// Vulkan portability, needed on MoltenVK and mobile drivers.
	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if a.cfg.EnableValidation {
		layers, _, err := a.globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("validation layer %s not available, install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers instance creation and destruction, before the messenger
		// proper exists.
		instanceOptions.Next = a.debugMessengerOptions()
	}

	a.instanceDriver, _, err = a.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}
	a.instance = a.instanceDriver

	return nil
}

func (a *App) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    a.logDriverMessage,
	}
}

func (a *App) setupDebugMessenger() error {
	if !a.cfg.EnableValidation {
		return nil
	}

	var err error
	a.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(a.instanceDriver)
	a.debugMessenger, _, err = a.debugDriver.CreateDebugUtilsMessenger(nil, a.debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "create debug messenger")
	}

	return nil
}

func (a *App) createSurface() error {
	surfaceDriver := khr_surface.CreateExtensionDriverFromCoreDriver(a.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(a.instanceDriver.Instance(), surfaceDriver, a.sdlWindow)
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}

	a.surfaceExt = surfaceDriver
	a.surface = surface
	return nil
}

// logDriverMessage forwards validation-layer diagnostics to the configured
// logger at a level matching the driver's severity. Returning false lets the
// triggering call proceed.
func (a *App) logDriverMessage(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	entry := a.cfg.Logger.WithFields(logrus.Fields{
		"type":     msgType.String(),
		"severity": severity.String(),
	})

	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		entry.Error(data.Message)
	case severity&ext_debug_utils.SeverityWarning != 0:
		entry.Warn(data.Message)
	default:
		entry.Info(data.Message)
	}

	return false
}

func initWindow(cfg Config) (*sdl.Window, core1_0.GlobalDriver, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, nil, errors.Wrap(err, "initialize sdl")
	}

	window, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width), int32(cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create window")
	}

	globalDriver, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		window.Destroy()
		return nil, nil, errors.Wrap(err, "load vulkan driver")
	}

	return window, globalDriver, nil
}
