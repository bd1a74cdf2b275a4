package swapchain

import (
	"math"

	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/staged-triangle/internal/device"
)

// PreferredFormat is used whenever the surface allows it.
var PreferredFormat = khr_surface.SurfaceFormat{
	Format:     core1_0.FormatB8G8R8A8SRGB,
	ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
}

type Support struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func QuerySupport(surface khr_surface.Surface, physicalDevice core1_0.PhysicalDevice) (Support, error) {
	var details Support
	var err error

	details.Capabilities, _, err = surface.PhysicalDeviceSurfaceCapabilities(physicalDevice)
	if err != nil {
		return details, err
	}

	details.Formats, _, err = surface.PhysicalDeviceSurfaceFormats(physicalDevice)
	if err != nil {
		return details, err
	}

	details.PresentModes, _, err = surface.PhysicalDeviceSurfacePresentModes(physicalDevice)
	return details, err
}

// Adequate reports whether a swapchain can be built at all.
func (s Support) Adequate() bool {
	return len(s.Formats) > 0 && len(s.PresentModes) > 0
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB. A lone undefined format means
// the surface accepts anything.
func ChooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	if len(availableFormats) == 1 && availableFormats[0].Format == core1_0.FormatUndefined {
		return PreferredFormat
	}

	for _, format := range availableFormats {
		if format.Format == PreferredFormat.Format && format.ColorSpace == PreferredFormat.ColorSpace {
			return format
		}
	}

	return availableFormats[0]
}

// ChoosePresentMode prefers mailbox, then immediate. FIFO is always available.
func ChoosePresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	best := khr_surface.PresentModeFIFO

	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		} else if presentMode == khr_surface.PresentModeImmediate {
			best = presentMode
		}
	}

	return best
}

// ChooseExtent uses the surface's current extent when it is defined and
// otherwise clamps the window's framebuffer size into the allowed range.
func ChooseExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if !undefinedExtent(capabilities.CurrentExtent) {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// undefinedExtent reports the 0xFFFFFFFF width a surface uses to leave the
// extent up to the swapchain. The binding widens it to int unsigned.
func undefinedExtent(extent core1_0.Extent2D) bool {
	return uint32(extent.Width) == math.MaxUint32
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// ImageCount asks for one image more than the minimum. A zero maximum means
// there is no upper bound.
func ImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// Sharing returns exclusive access when one family both draws and presents,
// and concurrent access across the two families otherwise.
func Sharing(families device.QueueFamilyIndices) (core1_0.SharingMode, []int) {
	if families.Shared() {
		return core1_0.SharingModeExclusive, nil
	}
	return core1_0.SharingModeConcurrent, []int{*families.GraphicsFamily, *families.PresentFamily}
}
