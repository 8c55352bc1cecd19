// Package pipeline builds the render pass, pipeline layout and the single
// immutable graphics pipeline the renderer draws with. All three are tied
// to the current swapchain's format and extent and are rebuilt together
// with it.
package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vantage3d/vantage/mesh"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// ShaderEntryPoint is the symbol executed in both shader modules.
const ShaderEntryPoint = "main"

// Device is the slice of the logical-device driver used for pipeline
// construction and teardown.
type Device interface {
	CreateRenderPass(allocator *loader.AllocationCallbacks, options core1_0.RenderPassCreateInfo) (core1_0.RenderPass, common.VkResult, error)
	DestroyRenderPass(renderPass core1_0.RenderPass, callbacks *loader.AllocationCallbacks)
	CreateShaderModule(allocator *loader.AllocationCallbacks, options core1_0.ShaderModuleCreateInfo) (core1_0.ShaderModule, common.VkResult, error)
	DestroyShaderModule(shaderModule core1_0.ShaderModule, callbacks *loader.AllocationCallbacks)
	CreatePipelineLayout(allocator *loader.AllocationCallbacks, options core1_0.PipelineLayoutCreateInfo) (core1_0.PipelineLayout, common.VkResult, error)
	DestroyPipelineLayout(pipelineLayout core1_0.PipelineLayout, callbacks *loader.AllocationCallbacks)
	CreateGraphicsPipelines(pipelineCache *core1_0.PipelineCache, allocator *loader.AllocationCallbacks, options ...core1_0.GraphicsPipelineCreateInfo) ([]core1_0.Pipeline, common.VkResult, error)
	DestroyPipeline(pipeline core1_0.Pipeline, callbacks *loader.AllocationCallbacks)
}

// State bundles the render pass, layout and pipeline of one swapchain
// generation.
type State struct {
	RenderPass core1_0.RenderPass
	Layout     core1_0.PipelineLayout
	Pipeline   core1_0.Pipeline
}

// Options configures pipeline construction for a swapchain generation.
type Options struct {
	// Format and Extent come from the current swapchain.
	Format core1_0.Format
	Extent core1_0.Extent2D

	// Precompiled SPIR-V blobs.
	VertexShader   []byte
	FragmentShader []byte
}

// New builds the render pass and graphics pipeline for the given swapchain
// parameters. The shader modules only participate in pipeline creation and
// are destroyed before New returns.
func New(device Device, opts Options) (*State, error) {
	renderPass, err := createRenderPass(device, opts.Format)
	if err != nil {
		return nil, err
	}

	state := &State{RenderPass: renderPass}

	state.Layout, state.Pipeline, err = createGraphicsPipeline(device, renderPass, opts)
	if err != nil {
		state.Destroy(device)
		return nil, err
	}

	return state, nil
}

// createRenderPass describes a single color attachment that is cleared on
// load, stored on end, and handed to the presentation engine. The external
// dependency keeps color writes ordered after the presentation engine is
// done reading the image.
func createRenderPass(device Device, format core1_0.Format) (core1_0.RenderPass, error) {
	renderPass, _, err := device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
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
		return core1_0.RenderPass{}, errors.Wrap(err, "create render pass")
	}

	return renderPass, nil
}

func createShaderModule(device Device, spirv []byte) (core1_0.ShaderModule, error) {
	code, err := bytecode(spirv)
	if err != nil {
		return core1_0.ShaderModule{}, err
	}

	module, _, err := device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrap(err, "create shader module")
	}

	return module, nil
}

func createGraphicsPipeline(device Device, renderPass core1_0.RenderPass, opts Options) (core1_0.PipelineLayout, core1_0.Pipeline, error) {
	vertShader, err := createShaderModule(device, opts.VertexShader)
	if err != nil {
		return core1_0.PipelineLayout{}, core1_0.Pipeline{}, errors.Wrap(err, "vertex shader")
	}
	defer device.DestroyShaderModule(vertShader, nil)

	fragShader, err := createShaderModule(device, opts.FragmentShader)
	if err != nil {
		return core1_0.PipelineLayout{}, core1_0.Pipeline{}, errors.Wrap(err, "fragment shader")
	}
	defer device.DestroyShaderModule(fragShader, nil)

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   mesh.BindingDescriptions(),
		VertexAttributeDescriptions: mesh.AttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(opts.Extent.Width),
				Height:   float32(opts.Extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: opts.Extent,
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

	// The render pass carries no depth attachment, so none of this state
	// takes effect. Kept configured anyway to match the established
	// pipeline description.
	stencilState := core1_0.StencilOpState{
		FailOp:      core1_0.StencilKeep,
		PassOp:      core1_0.StencilKeep,
		DepthFailOp: core1_0.StencilKeep,
		CompareOp:   core1_0.CompareOpAlways,
	}
	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthCompareOp: core1_0.CompareOpLessOrEqual,
		Front:          stencilState,
		Back:           stencilState,
		MinDepthBounds: 0,
		MaxDepthBounds: 1,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled: false,

				SrcColorBlendFactor: core1_0.BlendFactorSrcColor,
				DstColorBlendFactor: core1_0.BlendFactorOneMinusDstColor,
				ColorBlendOp:        core1_0.BlendOpAdd,

				SrcAlphaBlendFactor: core1_0.BlendFactorZero,
				DstAlphaBlendFactor: core1_0.BlendFactorZero,
				AlphaBlendOp:        core1_0.BlendOpAdd,

				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	// No descriptor sets and no push constants.
	layout, _, err := device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return core1_0.PipelineLayout{}, core1_0.Pipeline{}, errors.Wrap(err, "create pipeline layout")
	}

	pipelines, _, err := device.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   ShaderEntryPoint,
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   ShaderEntryPoint,
				},
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             layout,
			RenderPass:         renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		device.DestroyPipelineLayout(layout, nil)
		return core1_0.PipelineLayout{}, core1_0.Pipeline{}, errors.Wrap(err, "create graphics pipeline")
	}

	return layout, pipelines[0], nil
}

// Destroy releases the pipeline, its layout and the render pass.
func (s *State) Destroy(device Device) {
	if s.Pipeline.Initialized() {
		device.DestroyPipeline(s.Pipeline, nil)
		s.Pipeline = core1_0.Pipeline{}
	}

	if s.Layout.Initialized() {
		device.DestroyPipelineLayout(s.Layout, nil)
		s.Layout = core1_0.PipelineLayout{}
	}

	if s.RenderPass.Initialized() {
		device.DestroyRenderPass(s.RenderPass, nil)
		s.RenderPass = core1_0.RenderPass{}
	}
}
