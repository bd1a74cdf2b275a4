package renderer

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/staged-triangle/internal/buffer"
	"github.com/vkngwrapper/staged-triangle/internal/pipeline"
	"github.com/vkngwrapper/staged-triangle/internal/swapchain"
)

// generation is everything derived from one swapchain. It is built as a unit
// and torn down as a unit.
type generation struct {
	swapchain      *swapchain.Swapchain
	layout         *pipeline.Layout
	commandPool    core1_0.CommandPool
	vertexBuffer   *buffer.Buffer
	commandBuffers []core1_0.CommandBuffer
}

// buildGeneration finishes a generation around a freshly created swapchain.
// On failure everything built so far, sc included, is destroyed.
func (r *Renderer) buildGeneration(sc *swapchain.Swapchain) (gen *generation, err error) {
	gen = &generation{swapchain: sc}
	defer func() {
		if err != nil {
			r.destroyGeneration(gen)
			gen = nil
		}
	}()

	gen.layout, err = pipeline.New(r.device.Logical, sc.Format.Format, sc.Extent, r.stages)
	if err != nil {
		return gen, err
	}

	err = sc.CreateFramebuffers(gen.layout.RenderPass)
	if err != nil {
		return gen, err
	}

	gen.commandPool, _, err = r.device.Logical.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: *r.device.Families.GraphicsFamily,
	})
	if err != nil {
		return gen, errors.Wrap(err, "create command pool")
	}

	err = r.createVertexBuffer(gen)
	if err != nil {
		return gen, err
	}

	err = r.createCommandBuffers(gen)
	return gen, err
}

func (r *Renderer) createVertexBuffer(gen *generation) error {
	backend := buffer.NewDeviceBackend(r.device.Physical, r.device.Logical, gen.commandPool, r.device.GraphicsQueue)

	vertexBuffer, err := buffer.New(backend, buffer.Staged, binary.Size(r.vertices), core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "create vertex buffer")
	}
	gen.vertexBuffer = vertexBuffer

	err = vertexBuffer.Write(0, r.vertices)
	if err != nil {
		return errors.Wrap(err, "upload vertices")
	}

	return nil
}

func (r *Renderer) createCommandBuffers(gen *generation) error {
	sc := gen.swapchain

	buffers, _, err := r.device.Logical.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        gen.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: len(sc.Framebuffers),
	})
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	gen.commandBuffers = buffers

	for bufferIdx, commandBuffer := range buffers {
		_, err = commandBuffer.Begin(core1_0.CommandBufferBeginInfo{})
		if err != nil {
			return errors.Wrapf(err, "begin command buffer %d", bufferIdx)
		}

		err = commandBuffer.CmdBeginRenderPass(core1_0.SubpassContentsInline,
			core1_0.RenderPassBeginInfo{
				RenderPass:  gen.layout.RenderPass,
				Framebuffer: sc.Framebuffers[bufferIdx],
				RenderArea: core1_0.Rect2D{
					Offset: core1_0.Offset2D{X: 0, Y: 0},
					Extent: sc.Extent,
				},
				ClearValues: []core1_0.ClearValue{
					core1_0.ClearValueFloat{0, 0, 0, 1},
				},
			})
		if err != nil {
			return errors.Wrapf(err, "begin render pass %d", bufferIdx)
		}

		commandBuffer.CmdBindPipeline(core1_0.PipelineBindPointGraphics, gen.layout.Pipeline)
		commandBuffer.CmdBindVertexBuffers(0, []core1_0.Buffer{gen.vertexBuffer.Handle()}, []int{0})
		commandBuffer.CmdDraw(len(r.vertices), 1, 0, 0)
		commandBuffer.CmdEndRenderPass()

		_, err = commandBuffer.End()
		if err != nil {
			return errors.Wrapf(err, "end command buffer %d", bufferIdx)
		}
	}

	return nil
}

// destroyGeneration releases gen in reverse build order. The device must be
// idle.
func (r *Renderer) destroyGeneration(gen *generation) {
	if gen == nil {
		return
	}

	sc := r.retireGeneration(gen)
	if sc != nil {
		sc.Destroy()
	}
}

// retireGeneration releases everything built on top of gen's swapchain and
// hands the swapchain back so it can be recreated.
func (r *Renderer) retireGeneration(gen *generation) *swapchain.Swapchain {
	if len(gen.commandBuffers) > 0 {
		r.device.Logical.FreeCommandBuffers(gen.commandBuffers)
		gen.commandBuffers = nil
	}

	if gen.vertexBuffer != nil {
		gen.vertexBuffer.Destroy()
		gen.vertexBuffer = nil
	}

	if gen.commandPool != nil {
		gen.commandPool.Destroy(nil)
		gen.commandPool = nil
	}

	if gen.swapchain != nil {
		gen.swapchain.DestroyFramebuffers()
	}

	if gen.layout != nil {
		gen.layout.Destroy()
		gen.layout = nil
	}

	sc := gen.swapchain
	gen.swapchain = nil
	return sc
}
