// Package device selects the physical GPU the renderer runs on and derives
// the parameters for the logical device built from it.
//
// Selection is first-fit: physical devices are considered in enumeration
// order and the first one that can render graphics, present to the target
// surface and expose a usable swapchain wins. There is no scoring.
package device

import (
	"github.com/cockroachdb/errors"
	"github.com/vantage3d/vantage/swapchain"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// RequiredExtensions are the device extensions the renderer cannot run
// without.
var RequiredExtensions = []string{khr_swapchain.ExtensionName}

// Instance is the slice of the instance driver used during selection.
type Instance interface {
	EnumeratePhysicalDevices() ([]core1_0.PhysicalDevice, common.VkResult, error)
	GetPhysicalDeviceQueueFamilyProperties(device core1_0.PhysicalDevice) []core1_0.QueueFamilyProperties
	EnumerateDeviceExtensionProperties(device core1_0.PhysicalDevice) (map[string]*core1_0.ExtensionProperties, common.VkResult, error)
}

// Surface is the slice of the khr_surface extension driver used during
// selection.
type Surface interface {
	swapchain.SurfaceQuerier
	GetPhysicalDeviceSurfaceSupport(surface khr_surface.Surface, device core1_0.PhysicalDevice, queueFamilyIndex int) (bool, common.VkResult, error)
}

// QueueFamilyIndices holds the queue families the renderer needs. Graphics
// and presentation may land on the same family or different ones.
type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

// IsComplete reports whether both required families were found.
func (i QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Unique returns the distinct family indices among graphics and present, in
// graphics-first order. Both indices must be populated.
func (i QueueFamilyIndices) Unique() []int {
	unique := []int{*i.GraphicsFamily}
	if *i.PresentFamily != *i.GraphicsFamily {
		unique = append(unique, *i.PresentFamily)
	}

	return unique
}

// Selection is the outcome of physical-device selection. The queried
// candidate data is discarded; only what logical-device creation needs is
// kept.
type Selection struct {
	PhysicalDevice core1_0.PhysicalDevice
	QueueFamilies  QueueFamilyIndices

	// PortabilitySubset records whether the device advertises
	// khr_portability_subset, which must then be enabled on it.
	PortabilitySubset bool
}

// Pick walks the instance's physical devices in enumeration order and
// returns the first suitable one. It fails when no device qualifies, which
// the caller treats as unrecoverable.
func Pick(instance Instance, surfaceExt Surface, surface khr_surface.Surface) (Selection, error) {
	physicalDevices, _, err := instance.EnumeratePhysicalDevices()
	if err != nil {
		return Selection{}, errors.Wrap(err, "enumerate physical devices")
	}

	for _, physicalDevice := range physicalDevices {
		indices, err := FindQueueFamilies(instance, surfaceExt, surface, physicalDevice)
		if err != nil {
			return Selection{}, err
		}
		if !indices.IsComplete() {
			continue
		}

		extensions, _, err := instance.EnumerateDeviceExtensionProperties(physicalDevice)
		if err != nil {
			return Selection{}, errors.Wrap(err, "enumerate device extensions")
		}
		if !hasRequiredExtensions(extensions) {
			continue
		}

		support, err := swapchain.QuerySupport(surfaceExt, surface, physicalDevice)
		if err != nil {
			return Selection{}, err
		}
		if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			continue
		}

		_, portability := extensions[khr_portability_subset.ExtensionName]
		return Selection{
			PhysicalDevice:    physicalDevice,
			QueueFamilies:     indices,
			PortabilitySubset: portability,
		}, nil
	}

	return Selection{}, errors.New("failed to find a suitable GPU")
}

// FindQueueFamilies locates a graphics-capable family and a family able to
// present to the surface, stopping as soon as both are known.
func FindQueueFamilies(instance Instance, surfaceExt Surface, surface khr_surface.Surface, physicalDevice core1_0.PhysicalDevice) (QueueFamilyIndices, error) {
	indices := QueueFamilyIndices{}
	queueFamilies := instance.GetPhysicalDeviceQueueFamilyProperties(physicalDevice)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}

		supported, _, err := surfaceExt.GetPhysicalDeviceSurfaceSupport(surface, physicalDevice, queueFamilyIdx)
		if err != nil {
			return indices, errors.Wrap(err, "query surface support")
		}

		if supported {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = queueFamilyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

func hasRequiredExtensions(available map[string]*core1_0.ExtensionProperties) bool {
	for _, extension := range RequiredExtensions {
		_, hasExtension := available[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

// CreateInfo builds the logical-device parameters for a selection: one queue
// of priority 1.0 per unique family, the swapchain extension, and the
// portability subset when the device requires it.
func CreateInfo(sel Selection) core1_0.DeviceCreateInfo {
	queuePriority := float32(1.0)

	var queueInfos []core1_0.DeviceQueueCreateInfo
	for _, queueFamily := range sel.QueueFamilies.Unique() {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	extensionNames := make([]string, 0, len(RequiredExtensions)+1)
	extensionNames = append(extensionNames, RequiredExtensions...)
	if sel.PortabilitySubset {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	return core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueInfos,
		EnabledExtensionNames: extensionNames,
	}
}
