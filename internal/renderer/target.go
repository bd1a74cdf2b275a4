package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/staged-triangle/internal/frame"
)

var _ frame.Target = (*Renderer)(nil)

func (r *Renderer) NewSync() (frame.Sync, error) {
	var sync frame.Sync
	var err error

	sync.ImageAvailable, _, err = r.device.Logical.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return sync, errors.Wrap(err, "create image available semaphore")
	}

	sync.RenderFinished, _, err = r.device.Logical.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		r.DestroySync(sync)
		return frame.Sync{}, errors.Wrap(err, "create render finished semaphore")
	}

	sync.InFlight, _, err = r.device.Logical.CreateFence(nil, core1_0.FenceCreateInfo{
		Flags: core1_0.FenceCreateSignaled,
	})
	if err != nil {
		r.DestroySync(sync)
		return frame.Sync{}, errors.Wrap(err, "create in-flight fence")
	}

	return sync, nil
}

func (r *Renderer) DestroySync(sync frame.Sync) {
	if sync.InFlight != nil {
		sync.InFlight.Destroy(nil)
	}
	if sync.RenderFinished != nil {
		sync.RenderFinished.Destroy(nil)
	}
	if sync.ImageAvailable != nil {
		sync.ImageAvailable.Destroy(nil)
	}
}

func (r *Renderer) WaitForFence(fence core1_0.Fence) error {
	_, err := r.device.Logical.WaitForFences(true, common.NoTimeout, []core1_0.Fence{fence})
	return err
}

func (r *Renderer) ResetFence(fence core1_0.Fence) error {
	_, err := r.device.Logical.ResetFences([]core1_0.Fence{fence})
	return err
}

func (r *Renderer) AcquireNextImage(signal core1_0.Semaphore) (int, bool, error) {
	imageIndex, res, err := r.gen.swapchain.Handle().AcquireNextImage(common.NoTimeout, signal, nil)
	suboptimal, err := surfaceStatus(res, err)
	return imageIndex, suboptimal, err
}

func (r *Renderer) Submit(image int, wait, signal core1_0.Semaphore, fence core1_0.Fence) error {
	_, err := r.device.GraphicsQueue.Submit(fence, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{wait},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{r.gen.commandBuffers[image]},
			SignalSemaphores: []core1_0.Semaphore{signal},
		},
	})
	return err
}

func (r *Renderer) Present(image int, wait core1_0.Semaphore) (bool, error) {
	res, err := r.swapchainExtension.QueuePresent(r.device.PresentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{wait},
		Swapchains:     []khr_swapchain.Swapchain{r.gen.swapchain.Handle()},
		ImageIndices:   []int{image},
	})
	return surfaceStatus(res, err)
}

func (r *Renderer) WaitIdle() error {
	return r.device.WaitIdle()
}

// surfaceStatus folds swapchain result codes into frame semantics: out of
// date becomes ErrStaleSurface and suboptimal is reported without an error.
func surfaceStatus(res common.VkResult, err error) (suboptimal bool, _ error) {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return false, errors.WithStack(frame.ErrStaleSurface)
	case khr_swapchain.VKSuboptimal:
		return true, nil
	}
	return false, err
}
