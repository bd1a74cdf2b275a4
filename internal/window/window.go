// Package window owns the SDL2 window and the Vulkan surface bound to it.
package window

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"
)

var ErrSurfaceCreation = errors.New("surface creation failed")

type Window struct {
	handle *sdl.Window

	open      bool
	resized   bool
	minimized bool
}

func New(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl video")
	}

	handle, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &Window{handle: handle, open: true}, nil
}

// ProcAddr is the instance loader entry point the window system links against.
func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

func (w *Window) RequiredExtensions() []string {
	return w.handle.VulkanGetInstanceExtensions()
}

func (w *Window) CreateSurface(instance core1_0.Instance) (khr_surface.Surface, error) {
	surfaceLoader := khr_surface.CreateExtensionFromInstance(instance)

	surface, err := vkng_sdl2.CreateSurface(instance, surfaceLoader, w.handle)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create window surface"), ErrSurfaceCreation)
	}

	return surface, nil
}

// FramebufferSize is the drawable size in pixels, which differs from the
// window size on high density displays.
func (w *Window) FramebufferSize() (width, height int) {
	if w.minimized {
		return 0, 0
	}
	wd, ht := w.handle.VulkanGetDrawableSize()
	return int(wd), int(ht)
}

func (w *Window) IsOpen() bool {
	return w.open
}

func (w *Window) PollEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handleEvent(event)
	}
}

func (w *Window) WaitEvents(timeout time.Duration) {
	event := sdl.WaitEventTimeout(int(timeout.Milliseconds()))
	if event != nil {
		w.handleEvent(event)
	}
	w.PollEvents()
}

func (w *Window) handleEvent(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		w.open = false
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			w.open = false
		case sdl.WINDOWEVENT_MINIMIZED:
			w.minimized = true
		case sdl.WINDOWEVENT_RESTORED:
			w.minimized = false
			w.resized = true
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			w.resized = true
		}
	}
}

func (w *Window) Resized() bool {
	return w.resized
}

func (w *Window) ClearResized() {
	w.resized = false
}

func (w *Window) Destroy() {
	if w.handle != nil {
		w.handle.Destroy()
		w.handle = nil
	}
	sdl.Quit()
}
