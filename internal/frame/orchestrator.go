// Package frame drives the per-frame acquire, submit and present protocol.
//
// MaxFramesInFlight frames are recorded ahead of the GPU. Each slot owns an
// image-available semaphore, a render-finished semaphore and an in-flight
// fence. Slot fences start signaled so the first wait on each slot returns
// immediately.
package frame

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"
)

const MaxFramesInFlight = 2

// idleWait bounds how long Run blocks for window events while there is
// nothing to draw.
const idleWait = 100 * time.Millisecond

// ErrStaleSurface is returned by a Target when the swapchain no longer
// matches its surface and has to be rebuilt before drawing can continue.
var ErrStaleSurface = errors.New("swapchain out of date")

type Sync struct {
	ImageAvailable core1_0.Semaphore
	RenderFinished core1_0.Semaphore
	InFlight       core1_0.Fence
}

// Target is the device side of a frame: synchronization primitives, the
// swapchain and the per-image command buffers.
type Target interface {
	NewSync() (Sync, error)
	DestroySync(sync Sync)

	WaitForFence(fence core1_0.Fence) error
	ResetFence(fence core1_0.Fence) error

	AcquireNextImage(signal core1_0.Semaphore) (image int, suboptimal bool, err error)
	Submit(image int, wait, signal core1_0.Semaphore, fence core1_0.Fence) error
	Present(image int, wait core1_0.Semaphore) (suboptimal bool, err error)

	Recreate() error
	WaitIdle() error
}

// Surface is the window side of a frame.
type Surface interface {
	IsOpen() bool
	PollEvents()
	// WaitEvents blocks until an event arrives or timeout passes, then
	// handles everything pending.
	WaitEvents(timeout time.Duration)
	FramebufferSize() (width, height int)
	Resized() bool
	ClearResized()
}

type Orchestrator struct {
	target  Target
	surface Surface
	logger  *slog.Logger

	syncs []Sync
	frame int

	// fence last submitted against each swapchain image
	imagesInFlight map[int]core1_0.Fence

	stats    *Stats
	lastLog  time.Time
	logEvery time.Duration
}

func New(target Target, surface Surface, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		target:         target,
		surface:        surface,
		logger:         logger,
		imagesInFlight: make(map[int]core1_0.Fence),
		stats:          NewStats(),
		logEvery:       time.Second,
	}

	for i := 0; i < MaxFramesInFlight; i++ {
		sync, err := target.NewSync()
		if err != nil {
			o.Close()
			return nil, errors.Wrapf(err, "create sync objects for frame %d", i)
		}
		o.syncs = append(o.syncs, sync)
	}

	return o, nil
}

// Frame is the slot the next DrawFrame will use.
func (o *Orchestrator) Frame() int {
	return o.frame
}

func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// DrawFrame renders one frame. A stale surface is never returned: the
// swapchain is rebuilt and the frame is either abandoned (at acquire) or
// completed (at present).
func (o *Orchestrator) DrawFrame() error {
	start := o.stats.Begin()
	sync := o.syncs[o.frame]

	err := o.target.WaitForFence(sync.InFlight)
	if err != nil {
		return errors.Wrap(err, "wait for in-flight fence")
	}

	image, acquireSuboptimal, err := o.target.AcquireNextImage(sync.ImageAvailable)
	if errors.Is(err, ErrStaleSurface) {
		// The fence stays signaled and the slot is reused next call.
		return o.recreate("acquire")
	} else if err != nil {
		return errors.Wrap(err, "acquire swapchain image")
	}

	if pending := o.imagesInFlight[image]; pending != nil && pending != sync.InFlight {
		err = o.target.WaitForFence(pending)
		if err != nil {
			return errors.Wrap(err, "wait for image fence")
		}
	}
	o.imagesInFlight[image] = sync.InFlight

	err = o.target.ResetFence(sync.InFlight)
	if err != nil {
		return errors.Wrap(err, "reset in-flight fence")
	}

	err = o.target.Submit(image, sync.ImageAvailable, sync.RenderFinished, sync.InFlight)
	if err != nil {
		return errors.Wrap(err, "submit draw command buffer")
	}

	suboptimal, err := o.target.Present(image, sync.RenderFinished)
	stale := errors.Is(err, ErrStaleSurface)
	if err != nil && !stale {
		return errors.Wrap(err, "present swapchain image")
	}

	if stale || suboptimal || acquireSuboptimal || o.surface.Resized() {
		o.surface.ClearResized()
		err = o.recreate("present")
		if err != nil {
			return err
		}
	}

	o.frame = (o.frame + 1) % MaxFramesInFlight
	o.stats.End(start)
	o.logStats()

	return nil
}

func (o *Orchestrator) recreate(stage string) error {
	o.stats.Recreated()
	o.imagesInFlight = make(map[int]core1_0.Fence)
	o.logger.Info("recreating swapchain", slog.String("stage", stage))

	err := o.target.Recreate()
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	return nil
}

func (o *Orchestrator) logStats() {
	now := time.Now()
	if now.Sub(o.lastLog) < o.logEvery {
		return
	}
	o.lastLog = now

	o.logger.Debug("frame stats",
		slog.Int("frames", o.stats.Frames()),
		slog.Int("recreations", o.stats.Recreations()),
		slog.Duration("last", o.stats.Last()),
		slog.Duration("average", o.stats.Average()))
}

// Run draws frames until the surface closes. While the framebuffer has zero
// area no frames are drawn and Run blocks on window events instead. The
// device is idle when Run returns.
func (o *Orchestrator) Run() error {
	for o.surface.IsOpen() {
		o.surface.PollEvents()
		if !o.surface.IsOpen() {
			break
		}

		width, height := o.surface.FramebufferSize()
		if width == 0 || height == 0 {
			o.surface.WaitEvents(idleWait)
			continue
		}

		err := o.DrawFrame()
		if err != nil {
			_ = o.target.WaitIdle()
			return err
		}
	}

	return errors.Wrap(o.target.WaitIdle(), "wait for device idle")
}

// Close destroys the per-frame sync objects. The caller must have waited for
// the device to go idle.
func (o *Orchestrator) Close() {
	for _, sync := range o.syncs {
		o.target.DestroySync(sync)
	}
	o.syncs = nil
}
