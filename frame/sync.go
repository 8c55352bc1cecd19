package frame

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// MaxFramesInFlight bounds how many frames the CPU may record before the
// GPU acknowledges the oldest one.
const MaxFramesInFlight = 2

// SyncDevice is the slice of the logical-device driver the frame loop uses
// for pacing and submission.
type SyncDevice interface {
	CreateSemaphore(allocator *loader.AllocationCallbacks, options core1_0.SemaphoreCreateInfo) (core1_0.Semaphore, common.VkResult, error)
	DestroySemaphore(semaphore core1_0.Semaphore, callbacks *loader.AllocationCallbacks)
	CreateFence(allocator *loader.AllocationCallbacks, options core1_0.FenceCreateInfo) (core1_0.Fence, common.VkResult, error)
	DestroyFence(fence core1_0.Fence, callbacks *loader.AllocationCallbacks)
	WaitForFences(waitForAll bool, timeout time.Duration, fences ...core1_0.Fence) (common.VkResult, error)
	ResetFences(fences ...core1_0.Fence) (common.VkResult, error)
	QueueSubmit(queue core1_0.Queue, fence *core1_0.Fence, submits ...core1_0.SubmitInfo) (common.VkResult, error)
}

// Presenter is the slice of the khr_swapchain extension driver the frame
// loop uses to acquire and present images.
type Presenter interface {
	AcquireNextImage(swapchain khr_swapchain.Swapchain, timeout time.Duration, semaphore *core1_0.Semaphore, fence *core1_0.Fence) (int, common.VkResult, error)
	QueuePresent(queue core1_0.Queue, options khr_swapchain.PresentInfo) (common.VkResult, error)
}

// Synchronizer is the fixed ring of per-in-flight-frame sync objects plus
// the frame counter that walks it. It is created once and survives
// swapchain recreation; only shutdown destroys it.
type Synchronizer struct {
	imageAvailable [MaxFramesInFlight]core1_0.Semaphore
	renderFinished [MaxFramesInFlight]core1_0.Semaphore
	inFlight       [MaxFramesInFlight]core1_0.Fence

	currentFrame int
	created      int
}

// NewSynchronizer creates the semaphore/fence triple for every frame slot.
// Fences start signaled so the first wait on each slot passes immediately.
func NewSynchronizer(device SyncDevice) (*Synchronizer, error) {
	s := &Synchronizer{}

	for i := 0; i < MaxFramesInFlight; i++ {
		var err error

		s.imageAvailable[i], _, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			s.Destroy(device)
			return nil, errors.Wrap(err, "create image-available semaphore")
		}

		s.renderFinished[i], _, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			s.Destroy(device)
			return nil, errors.Wrap(err, "create render-finished semaphore")
		}

		s.inFlight[i], _, err = device.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			s.Destroy(device)
			return nil, errors.Wrap(err, "create in-flight fence")
		}

		s.created++
	}

	return s, nil
}

// CurrentFrame returns the frame slot the next DrawFrame call will use.
func (s *Synchronizer) CurrentFrame() int {
	return s.currentFrame
}

// DrawFrame runs one step of the frame protocol on the current slot:
// fence wait, image acquire, fence reset, queue submit, present, counter
// advance.
//
// The returned rebuild flag asks the caller to recreate swapchain-derived
// state: it is set when acquisition or presentation reports the surface
// out of date (or suboptimal at present time). Staleness is never an
// error; any other failure is.
func (s *Synchronizer) DrawFrame(device SyncDevice, presenter Presenter, graphicsQueue core1_0.Queue, presentQueue core1_0.Queue, swapchain khr_swapchain.Swapchain, commandBuffers []core1_0.CommandBuffer) (rebuild bool, err error) {
	// The slot's previous frame must be off the GPU before its command
	// buffer and semaphores are reused.
	_, err = device.WaitForFences(true, common.NoTimeout, s.inFlight[s.currentFrame])
	if err != nil {
		return false, errors.Wrap(err, "wait for in-flight fence")
	}

	imageIndex, res, err := presenter.AcquireNextImage(swapchain, common.NoTimeout, &s.imageAvailable[s.currentFrame], nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		// No image was acquired and nothing was submitted; the slot's
		// fence stays signaled and the frame counter does not move.
		return true, nil
	} else if err != nil {
		return false, errors.Wrap(err, "acquire swapchain image")
	}

	// Only un-signal the fence once a submission is certain to follow,
	// or the next wait on this slot would deadlock.
	_, err = device.ResetFences(s.inFlight[s.currentFrame])
	if err != nil {
		return false, errors.Wrap(err, "reset in-flight fence")
	}

	_, err = device.QueueSubmit(graphicsQueue, &s.inFlight[s.currentFrame],
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{s.imageAvailable[s.currentFrame]},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{commandBuffers[imageIndex]},
			SignalSemaphores: []core1_0.Semaphore{s.renderFinished[s.currentFrame]},
		},
	)
	if err != nil {
		return false, errors.Wrap(err, "submit draw")
	}

	res, err = presenter.QueuePresent(presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{s.renderFinished[s.currentFrame]},
		Swapchains:     []khr_swapchain.Swapchain{swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		rebuild = true
	} else if err != nil {
		return false, errors.Wrap(err, "present swapchain image")
	}

	s.currentFrame = (s.currentFrame + 1) % MaxFramesInFlight

	return rebuild, nil
}

// Destroy releases every semaphore and fence. The caller is responsible
// for making sure the device is idle first.
func (s *Synchronizer) Destroy(device SyncDevice) {
	for i := 0; i < s.created; i++ {
		device.DestroySemaphore(s.imageAvailable[i], nil)
		device.DestroySemaphore(s.renderFinished[i], nil)
		device.DestroyFence(s.inFlight[i], nil)
	}
	s.created = 0
}
