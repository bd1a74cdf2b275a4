// Package device picks the physical device group to render with and creates
// the logical device and its queues.
package device

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/core/core1_1"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	"golang.org/x/exp/slog"
)

// ErrNoSuitableDevice is returned when no device group scores above zero.
var ErrNoSuitableDevice = errors.New("no suitable physical device")

// Extensions every rendering device must support.
var Extensions = []string{khr_swapchain.ExtensionName}

type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Shared reports whether one family serves both graphics and presentation.
func (i *QueueFamilyIndices) Shared() bool {
	return *i.GraphicsFamily == *i.PresentFamily
}

// Unique lists the distinct families, graphics first.
func (i *QueueFamilyIndices) Unique() []int {
	families := []int{*i.GraphicsFamily}
	if !i.Shared() {
		families = append(families, *i.PresentFamily)
	}
	return families
}

type queueFamily struct {
	graphics bool
	count    int
}

// pickFamilies takes the first graphics-capable family and the first family
// that can present, stopping as soon as both are known.
func pickFamilies(families []queueFamily, presentSupported func(int) (bool, error)) (QueueFamilyIndices, error) {
	indices := QueueFamilyIndices{}

	for idx, family := range families {
		if family.count == 0 {
			continue
		}

		if indices.GraphicsFamily == nil && family.graphics {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = idx
		}

		if indices.PresentFamily == nil {
			supported, err := presentSupported(idx)
			if err != nil {
				return indices, err
			}

			if supported {
				indices.PresentFamily = new(int)
				*indices.PresentFamily = idx
			}
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

// chooseGroup returns the index of the highest-scoring group, the earliest
// one on ties. Groups scoring zero are never chosen.
func chooseGroup(scores []int) (int, error) {
	best, bestScore := -1, 0
	for i, score := range scores {
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return -1, errors.Wrapf(ErrNoSuitableDevice, "%d device group(s) considered", len(scores))
	}
	return best, nil
}

type Device struct {
	Physical core1_0.PhysicalDevice
	Group    []core1_0.PhysicalDevice
	Logical  core1_0.Device
	Families QueueFamilyIndices

	GraphicsQueue core1_0.Queue
	PresentQueue  core1_0.Queue
}

func (d *Device) WaitIdle() error {
	_, err := d.Logical.WaitIdle()
	return err
}

func (d *Device) Destroy() {
	if d.Logical != nil {
		d.Logical.Destroy(nil)
		d.Logical = nil
	}
}

type Selector struct {
	Instance core1_0.Instance
	Surface  khr_surface.Surface
	Logger   *slog.Logger
}

// Select scores every physical device group against the surface and creates
// a logical device on the first device of the best group.
func (s *Selector) Select() (*Device, error) {
	groups, err := s.groups()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate device groups")
	}

	scores := make([]int, len(groups))
	for i, group := range groups {
		for _, physicalDevice := range group {
			scores[i] += s.rate(physicalDevice)
		}
	}

	best, err := chooseGroup(scores)
	if err != nil {
		return nil, err
	}

	group := groups[best]
	s.logger().Info("selected device group",
		slog.Int("group", best),
		slog.Int("devices", len(group)),
		slog.Int("score", scores[best]),
		slog.String("primary", deviceName(group[0])))

	return s.createLogicalDevice(group)
}

func (s *Selector) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Selector) groups() ([][]core1_0.PhysicalDevice, error) {
	instance11 := core1_1.PromoteInstance(s.Instance)
	if instance11 != nil {
		groupProps, _, err := instance11.EnumeratePhysicalDeviceGroups(nil)
		if err != nil {
			return nil, err
		}

		var groups [][]core1_0.PhysicalDevice
		for _, props := range groupProps {
			if len(props.PhysicalDevices) > 0 {
				groups = append(groups, props.PhysicalDevices)
			}
		}
		return groups, nil
	}

	physicalDevices, _, err := s.Instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, err
	}

	groups := make([][]core1_0.PhysicalDevice, 0, len(physicalDevices))
	for _, physicalDevice := range physicalDevices {
		groups = append(groups, []core1_0.PhysicalDevice{physicalDevice})
	}
	return groups, nil
}

// rate is 1 for a device that can render to the surface, 0 otherwise.
func (s *Selector) rate(physicalDevice core1_0.PhysicalDevice) int {
	indices, err := s.FindQueueFamilies(physicalDevice)
	if err != nil || !indices.IsComplete() {
		return 0
	}

	if !checkDeviceExtensionSupport(physicalDevice) {
		return 0
	}

	formats, _, err := s.Surface.PhysicalDeviceSurfaceFormats(physicalDevice)
	if err != nil || len(formats) == 0 {
		return 0
	}

	presentModes, _, err := s.Surface.PhysicalDeviceSurfacePresentModes(physicalDevice)
	if err != nil || len(presentModes) == 0 {
		return 0
	}

	return 1
}

func (s *Selector) FindQueueFamilies(physicalDevice core1_0.PhysicalDevice) (QueueFamilyIndices, error) {
	var families []queueFamily
	for _, props := range physicalDevice.QueueFamilyProperties() {
		families = append(families, queueFamily{
			graphics: (props.QueueFlags & core1_0.QueueGraphics) != 0,
			count:    props.QueueCount,
		})
	}

	return pickFamilies(families, func(idx int) (bool, error) {
		supported, _, err := s.Surface.PhysicalDeviceSurfaceSupport(physicalDevice, idx)
		return supported, err
	})
}

func checkDeviceExtensionSupport(physicalDevice core1_0.PhysicalDevice) bool {
	extensions, _, err := physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}

	for _, extension := range Extensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

func (s *Selector) createLogicalDevice(group []core1_0.PhysicalDevice) (*Device, error) {
	physicalDevice := group[0]

	indices, err := s.FindQueueFamilies(physicalDevice)
	if err != nil {
		return nil, err
	}
	if !indices.IsComplete() {
		return nil, errors.Wrap(ErrNoSuitableDevice, "primary device of the chosen group lacks queue families")
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range indices.Unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, Extensions...)

	// Required on portability implementations such as MoltenVK.
	extensions, _, err := physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return nil, err
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	createInfo := core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	}

	if len(group) > 1 {
		createInfo.Next = core1_1.DeviceGroupDeviceCreateInfo{
			PhysicalDevices: group,
		}
	}

	logical, _, err := physicalDevice.CreateDevice(nil, createInfo)
	if err != nil {
		return nil, errors.Wrap(err, "create logical device")
	}

	return &Device{
		Physical:      physicalDevice,
		Group:         group,
		Logical:       logical,
		Families:      indices,
		GraphicsQueue: logical.GetQueue(*indices.GraphicsFamily, 0),
		PresentQueue:  logical.GetQueue(*indices.PresentFamily, 0),
	}, nil
}

func deviceName(physicalDevice core1_0.PhysicalDevice) string {
	props, err := physicalDevice.Properties()
	if err != nil {
		return "unknown"
	}
	return props.DeviceName
}
