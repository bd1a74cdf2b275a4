// Package swapchain negotiates presentation parameters with the surface and
// owns the presentable images, their views and framebuffers.
//
// A Swapchain is never mutated after creation. When the surface goes stale
// the whole generation is destroyed and Manager.Recreate builds a new one.
// Framebuffers are a separate step because the render pass they bind to is
// built from the negotiated format: Create, then build the render pass, then
// CreateFramebuffers.
package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/staged-triangle/internal/device"
)

// FramebufferSizer reports the drawable size of the window in pixels.
type FramebufferSizer interface {
	FramebufferSize() (width, height int)
}

type Manager struct {
	Extension khr_swapchain.Extension
	Device    *device.Device
	Surface   khr_surface.Surface
	Window    FramebufferSizer
	Logger    *slog.Logger
}

type Swapchain struct {
	device    core1_0.Device
	handle    khr_swapchain.Swapchain
	extension khr_swapchain.Extension

	Format      khr_surface.SurfaceFormat
	PresentMode khr_surface.PresentMode
	Extent      core1_0.Extent2D

	Images       []core1_0.Image
	ImageViews   []core1_0.ImageView
	Framebuffers []core1_0.Framebuffer
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *Manager) Create() (*Swapchain, error) {
	support, err := QuerySupport(m.Surface, m.Device.Physical)
	if err != nil {
		return nil, errors.Wrap(err, "query swapchain support")
	}
	if !support.Adequate() {
		return nil, errors.New("surface reports no formats or present modes")
	}

	surfaceFormat := ChooseSurfaceFormat(support.Formats)
	presentMode := ChoosePresentMode(support.PresentModes)
	width, height := m.Window.FramebufferSize()
	extent := ChooseExtent(support.Capabilities, width, height)
	imageCount := ImageCount(support.Capabilities)
	sharingMode, queueFamilyIndices := Sharing(m.Device.Families)

	handle, _, err := m.Extension.CreateSwapchain(m.Device.Logical, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: m.Surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	swapchain := &Swapchain{
		device:      m.Device.Logical,
		handle:      handle,
		extension:   m.Extension,
		Format:      surfaceFormat,
		PresentMode: presentMode,
		Extent:      extent,
	}

	err = swapchain.createImageViews()
	if err != nil {
		swapchain.Destroy()
		return nil, err
	}

	m.logger().Info("created swapchain",
		slog.String("format", surfaceFormat.Format.String()),
		slog.String("presentMode", presentMode.String()),
		slog.Int("width", extent.Width),
		slog.Int("height", extent.Height),
		slog.Int("images", len(swapchain.Images)))

	return swapchain, nil
}

// Recreate destroys old, including its framebuffers, and builds a fresh
// swapchain. The caller must have waited for the device to go idle.
func (m *Manager) Recreate(old *Swapchain) (*Swapchain, error) {
	if old != nil {
		old.Destroy()
	}
	return m.Create()
}

func (s *Swapchain) Handle() khr_swapchain.Swapchain {
	return s.handle
}

func (s *Swapchain) createImageViews() error {
	images, _, err := s.handle.SwapchainImages()
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	s.Images = images

	for _, image := range images {
		view, _, err := s.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   s.Format.Format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}

		s.ImageViews = append(s.ImageViews, view)
	}

	return nil
}

// CreateFramebuffers binds one framebuffer per image view to renderPass.
func (s *Swapchain) CreateFramebuffers(renderPass core1_0.RenderPass) error {
	if len(s.Framebuffers) > 0 {
		return errors.New("framebuffers already created for this swapchain")
	}

	for _, imageView := range s.ImageViews {
		framebuffer, _, err := s.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  renderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{imageView},
			Width:       s.Extent.Width,
			Height:      s.Extent.Height,
		})
		if err != nil {
			s.DestroyFramebuffers()
			return errors.Wrap(err, "create framebuffer")
		}

		s.Framebuffers = append(s.Framebuffers, framebuffer)
	}

	return nil
}

func (s *Swapchain) DestroyFramebuffers() {
	for _, framebuffer := range s.Framebuffers {
		framebuffer.Destroy(nil)
	}
	s.Framebuffers = nil
}

// Destroy releases framebuffers, image views and the swapchain itself. The
// images belong to the presentation engine and are not destroyed.
func (s *Swapchain) Destroy() {
	s.DestroyFramebuffers()

	for _, imageView := range s.ImageViews {
		imageView.Destroy(nil)
	}
	s.ImageViews = nil
	s.Images = nil

	if s.handle != nil {
		s.handle.Destroy(nil)
		s.handle = nil
	}
}
