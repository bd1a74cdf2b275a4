// Package renderer assembles the window, device, swapchain generations and
// frame loop into a running renderer.
package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/staged-triangle/internal/device"
	"github.com/vkngwrapper/staged-triangle/internal/frame"
	"github.com/vkngwrapper/staged-triangle/internal/mesh"
	"github.com/vkngwrapper/staged-triangle/internal/shader"
	"github.com/vkngwrapper/staged-triangle/internal/swapchain"
	"github.com/vkngwrapper/staged-triangle/internal/window"
)

type Renderer struct {
	window *window.Window
	logger *slog.Logger

	loader         core.Loader
	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surface        khr_surface.Surface
	device         *device.Device

	swapchainExtension khr_swapchain.Extension
	swapchains         *swapchain.Manager

	stages   shader.Stages
	vertices []mesh.Vertex

	gen          *generation
	orchestrator *frame.Orchestrator
}

// New brings up everything needed to draw into win. Any failure is fatal and
// leaves nothing allocated.
func New(win *window.Window, opts Options) (r *Renderer, err error) {
	if len(opts.Vertices) == 0 {
		return nil, errors.New("no vertices to draw")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r = &Renderer{
		window:   win,
		logger:   logger,
		vertices: opts.Vertices,
	}
	defer func() {
		if err != nil {
			r.Close()
			r = nil
		}
	}()

	r.stages, err = shader.Load(opts.Shaders, opts.VertexPath, opts.FragmentPath)
	if err != nil {
		return r, err
	}

	r.loader, err = core.CreateLoaderFromProcAddr(win.ProcAddr())
	if err != nil {
		return r, errors.Wrap(err, "create vulkan loader")
	}

	r.instance, err = createInstance(r.loader, win.RequiredExtensions(), opts.Validation, logger)
	if err != nil {
		return r, err
	}

	if opts.Validation {
		r.debugMessenger, err = createDebugMessenger(r.instance, logger)
		if err != nil {
			return r, err
		}
	}

	r.surface, err = win.CreateSurface(r.instance)
	if err != nil {
		return r, err
	}

	selector := &device.Selector{
		Instance: r.instance,
		Surface:  r.surface,
		Logger:   logger,
	}
	r.device, err = selector.Select()
	if err != nil {
		return r, err
	}

	r.swapchainExtension = khr_swapchain.CreateExtensionFromDevice(r.device.Logical)
	r.swapchains = &swapchain.Manager{
		Extension: r.swapchainExtension,
		Device:    r.device,
		Surface:   r.surface,
		Window:    win,
		Logger:    logger,
	}

	sc, err := r.swapchains.Create()
	if err != nil {
		return r, err
	}

	r.gen, err = r.buildGeneration(sc)
	if err != nil {
		return r, err
	}

	r.orchestrator, err = frame.New(r, win, logger)
	if err != nil {
		return r, err
	}

	return r, nil
}

// Run draws until the window closes.
func (r *Renderer) Run() error {
	return r.orchestrator.Run()
}

// Recreate rebuilds the swapchain generation against the surface's current
// size. Nothing happens while the window has no drawable area; the stale
// swapchain reports itself again once the window is restored.
func (r *Renderer) Recreate() error {
	width, height := r.window.FramebufferSize()
	if width == 0 || height == 0 {
		return nil
	}

	err := r.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}

	old := r.retireGeneration(r.gen)
	r.gen = nil

	sc, err := r.swapchains.Recreate(old)
	if err != nil {
		return err
	}

	r.gen, err = r.buildGeneration(sc)
	return err
}

// Close releases everything in reverse creation order. It is safe to call on
// a partially constructed Renderer.
func (r *Renderer) Close() {
	if r.device != nil && r.device.Logical != nil {
		_ = r.device.WaitIdle()
	}

	if r.orchestrator != nil {
		r.orchestrator.Close()
		r.orchestrator = nil
	}

	r.destroyGeneration(r.gen)
	r.gen = nil

	if r.device != nil {
		r.device.Destroy()
		r.device = nil
	}

	if r.debugMessenger != nil {
		r.debugMessenger.Destroy(nil)
		r.debugMessenger = nil
	}

	if r.surface != nil {
		r.surface.Destroy(nil)
		r.surface = nil
	}

	if r.instance != nil {
		r.instance.Destroy(nil)
		r.instance = nil
	}
}
