// Package pipeline builds the render pass and graphics pipeline a swapchain
// generation draws with.
package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/staged-triangle/internal/mesh"
	"github.com/vkngwrapper/staged-triangle/internal/shader"
)

// Layout is the render target layout for one swapchain generation. It is
// built against the generation's format and extent and destroyed with it.
type Layout struct {
	device core1_0.Device

	RenderPass     core1_0.RenderPass
	PipelineLayout core1_0.PipelineLayout
	Pipeline       core1_0.Pipeline
}

func New(device core1_0.Device, format core1_0.Format, extent core1_0.Extent2D, stages shader.Stages) (*Layout, error) {
	layout := &Layout{device: device}

	err := layout.createRenderPass(format)
	if err != nil {
		return nil, err
	}

	err = layout.createGraphicsPipeline(extent, stages)
	if err != nil {
		layout.Destroy()
		return nil, err
	}

	return layout, nil
}

func (l *Layout) createRenderPass(format core1_0.Format) error {
	renderPass, _, err := l.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}

	l.RenderPass = renderPass
	return nil
}

func (l *Layout) createGraphicsPipeline(extent core1_0.Extent2D, stages shader.Stages) error {
	vertShader, _, err := l.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: stages.Vertex,
	})
	if err != nil {
		return errors.Wrap(err, "create vertex shader module")
	}
	defer vertShader.Destroy(nil)

	fragShader, _, err := l.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: stages.Fragment,
	})
	if err != nil {
		return errors.Wrap(err, "create fragment shader module")
	}
	defer fragShader.Destroy(nil)

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   mesh.BindingDescriptions(),
		VertexAttributeDescriptions: mesh.AttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeBack,
		FrontFace:   core1_0.FrontFaceClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	l.PipelineLayout, _, err = l.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}

	pipelines, _, err := l.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			ColorBlendState:    colorBlend,
			Layout:             l.PipelineLayout,
			RenderPass:         l.RenderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	})
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline")
	}
	l.Pipeline = pipelines[0]

	return nil
}

func (l *Layout) Destroy() {
	if l.Pipeline != nil {
		l.Pipeline.Destroy(nil)
		l.Pipeline = nil
	}

	if l.PipelineLayout != nil {
		l.PipelineLayout.Destroy(nil)
		l.PipelineLayout = nil
	}

	if l.RenderPass != nil {
		l.RenderPass.Destroy(nil)
		l.RenderPass = nil
	}
}
