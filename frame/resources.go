// Package frame owns the per-swapchain-generation frame resources
// (framebuffers and pre-recorded command buffers) and the per-in-flight
// synchronization objects that pace the frame loop.
//
// The two halves have different lifetimes: Resources die with the swapchain
// generation and are rebuilt on recreation, while the Synchronizer's
// semaphores and fences live from startup to shutdown.
package frame

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

// Device is the slice of the logical-device driver used to build and record
// frame resources.
type Device interface {
	CreateCommandPool(allocator *loader.AllocationCallbacks, options core1_0.CommandPoolCreateInfo) (core1_0.CommandPool, common.VkResult, error)
	DestroyCommandPool(commandPool core1_0.CommandPool, callbacks *loader.AllocationCallbacks)
	CreateFramebuffer(allocator *loader.AllocationCallbacks, options core1_0.FramebufferCreateInfo) (core1_0.Framebuffer, common.VkResult, error)
	DestroyFramebuffer(framebuffer core1_0.Framebuffer, callbacks *loader.AllocationCallbacks)
	AllocateCommandBuffers(options core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, common.VkResult, error)
	FreeCommandBuffers(buffers ...core1_0.CommandBuffer)
	BeginCommandBuffer(buffer core1_0.CommandBuffer, options core1_0.CommandBufferBeginInfo) (common.VkResult, error)
	EndCommandBuffer(buffer core1_0.CommandBuffer) (common.VkResult, error)
	CmdBeginRenderPass(buffer core1_0.CommandBuffer, contents core1_0.SubpassContents, options core1_0.RenderPassBeginInfo) error
	CmdEndRenderPass(buffer core1_0.CommandBuffer)
	CmdBindPipeline(buffer core1_0.CommandBuffer, bindPoint core1_0.PipelineBindPoint, pipeline core1_0.Pipeline)
	CmdBindVertexBuffers(buffer core1_0.CommandBuffer, firstBinding int, buffers []core1_0.Buffer, offsets []int)
	CmdDraw(buffer core1_0.CommandBuffer, vertexCount, instanceCount int, firstVertex, firstInstance int)
}

// NewCommandPool creates the command pool all frame command buffers are
// allocated from, scoped to the graphics queue family. The pool outlives
// swapchain generations; only the buffers are freed on recreation.
func NewCommandPool(device Device, graphicsFamily int) (core1_0.CommandPool, error) {
	pool, _, err := device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: graphicsFamily,
	})
	if err != nil {
		return core1_0.CommandPool{}, errors.Wrap(err, "create command pool")
	}

	return pool, nil
}

// Resources are the swapchain-generation-scoped draw resources: one
// framebuffer and one pre-recorded primary command buffer per swapchain
// image view.
type Resources struct {
	Framebuffers   []core1_0.Framebuffer
	CommandBuffers []core1_0.CommandBuffer

	commandPool core1_0.CommandPool
}

// Options configures frame-resource construction for one swapchain
// generation.
type Options struct {
	CommandPool core1_0.CommandPool
	RenderPass  core1_0.RenderPass
	Pipeline    core1_0.Pipeline

	ImageViews []core1_0.ImageView
	Extent     core1_0.Extent2D

	VertexBuffer core1_0.Buffer
	VertexCount  int
}

// NewResources builds the framebuffers and records the command buffers
// once. The recording is static: the same draw executes every frame until
// the swapchain generation is replaced.
func NewResources(device Device, opts Options) (*Resources, error) {
	res := &Resources{commandPool: opts.CommandPool}

	for _, imageView := range opts.ImageViews {
		framebuffer, _, err := device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass: opts.RenderPass,
			Attachments: []core1_0.ImageView{
				imageView,
			},
			Width:  opts.Extent.Width,
			Height: opts.Extent.Height,
			Layers: 1,
		})
		if err != nil {
			res.Destroy(device)
			return nil, errors.Wrap(err, "create framebuffer")
		}

		res.Framebuffers = append(res.Framebuffers, framebuffer)
	}

	buffers, _, err := device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        opts.CommandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: len(res.Framebuffers),
	})
	if err != nil {
		res.Destroy(device)
		return nil, errors.Wrap(err, "allocate command buffers")
	}
	res.CommandBuffers = buffers

	for bufferIdx, buffer := range buffers {
		err = recordDraw(device, buffer, res.Framebuffers[bufferIdx], opts)
		if err != nil {
			res.Destroy(device)
			return nil, err
		}
	}

	return res, nil
}

func recordDraw(device Device, buffer core1_0.CommandBuffer, framebuffer core1_0.Framebuffer, opts Options) error {
	_, err := device.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageSimultaneousUse,
	})
	if err != nil {
		return errors.Wrap(err, "begin command buffer")
	}

	err = device.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  opts.RenderPass,
			Framebuffer: framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: opts.Extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{0, 0, 0, 1},
			},
		})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	device.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, opts.Pipeline)
	device.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{opts.VertexBuffer}, []int{0})
	device.CmdDraw(buffer, opts.VertexCount, 1, 0, 0)
	device.CmdEndRenderPass(buffer)

	_, err = device.EndCommandBuffer(buffer)
	if err != nil {
		return errors.Wrap(err, "end command buffer")
	}

	return nil
}

// Destroy frees the command buffers back to the pool and destroys the
// framebuffers. The pool itself is left alone.
func (r *Resources) Destroy(device Device) {
	if len(r.CommandBuffers) > 0 {
		device.FreeCommandBuffers(r.CommandBuffers...)
		r.CommandBuffers = nil
	}

	for _, framebuffer := range r.Framebuffers {
		device.DestroyFramebuffer(framebuffer, nil)
	}
	r.Framebuffers = nil
}
