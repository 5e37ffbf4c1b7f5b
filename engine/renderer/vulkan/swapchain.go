package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// VulkanSwapchain implements gpu.Swapchain on the context's surface.
type VulkanSwapchain struct {
	context *VulkanContext

	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	extent      gpu.Extent2D
	images      []gpu.Image
	// vsync forces FIFO presentation.
	vsync bool
}

var _ gpu.Swapchain = (*VulkanSwapchain)(nil)

func SwapchainCreate(context *VulkanContext, extent gpu.Extent2D, vsync bool) (*VulkanSwapchain, error) {
	sc := &VulkanSwapchain{context: context, vsync: vsync}
	if err := sc.create(extent); err != nil {
		return nil, err
	}
	return sc, nil
}

func (vs *VulkanSwapchain) create(extent gpu.Extent2D) error {
	device := vs.context.Device
	support, err := DeviceQuerySwapchainSupport(device.PhysicalDevice, vs.context.Surface)
	if err != nil {
		return err
	}
	device.SwapchainSupport = support
	if len(support.Formats) == 0 {
		return fmt.Errorf("surface reports no formats: %w", ErrUnsupportedFormat)
	}

	// Preferred format, else the first the engine knows.
	vs.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			vs.ImageFormat = format
			break
		}
	}
	if fromFormat(vs.ImageFormat.Format) == gpu.FormatUndefined {
		return fmt.Errorf("surface format %d: %w", vs.ImageFormat.Format, ErrUnsupportedFormat)
	}

	presentMode := vk.PresentModeFifo
	if !vs.vsync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	caps := support.Capabilities
	swapchainExtent := toExtent(extent)
	if caps.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	swapchainExtent.Width = pmath.Clamp(swapchainExtent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	swapchainExtent.Height = pmath.Clamp(swapchainExtent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vs.context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vs.Handle,
	}
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{uint32(device.GraphicsQueueIndex), uint32(device.PresentQueueIndex)}
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(device.LogicalDevice, &createInfo, vs.context.Allocator, &handle); res != vk.Success {
		err := resultError("vkCreateSwapchainKHR", res)
		core.LogError(err.Error())
		return err
	}
	old := vs.Handle
	vs.destroyImages()
	if old != nil {
		vk.DestroySwapchain(device.LogicalDevice, old, vs.context.Allocator)
	}
	vs.Handle = handle
	vs.extent = gpu.Extent2D{Width: swapchainExtent.Width, Height: swapchainExtent.Height}

	var count uint32
	if res := vk.GetSwapchainImages(device.LogicalDevice, vs.Handle, &count, nil); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}
	handles := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(device.LogicalDevice, vs.Handle, &count, handles); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}

	format := fromFormat(vs.ImageFormat.Format)
	for i, h := range handles {
		view, err := newImageView(vs.context, h, format, 1, 1)
		if err != nil {
			return fmt.Errorf("swapchain image %d: %w", i, err)
		}
		vs.images = append(vs.images, &VulkanImage{
			context:   vs.context,
			Handle:    h,
			view:      view,
			swapchain: true,
			desc: gpu.ImageDesc{
				Name:      "swapchain",
				Extent:    vs.extent,
				Format:    format,
				MipLevels: 1,
				Layers:    1,
				Usage:     gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst,
			},
		})
	}

	core.LogInfo("Swapchain created successfully: %d images %dx%d %s", count, vs.extent.Width, vs.extent.Height, format)
	return nil
}

func (vs *VulkanSwapchain) Format() gpu.Format   { return fromFormat(vs.ImageFormat.Format) }
func (vs *VulkanSwapchain) Extent() gpu.Extent2D { return vs.extent }
func (vs *VulkanSwapchain) Images() []gpu.Image  { return vs.images }

func (vs *VulkanSwapchain) Acquire(signal gpu.Semaphore, timeout time.Duration) (uint32, error) {
	var semaphore vk.Semaphore = vk.NullSemaphore
	if s, ok := signal.(*VulkanSemaphore); ok && s != nil {
		semaphore = s.Handle
	}
	var index uint32
	result := vk.AcquireNextImage(vs.context.logical(), vs.Handle, uint64(timeout), semaphore, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		return index, nil
	}
	return 0, resultError("vkAcquireNextImageKHR", result)
}

// Present queues image index for presentation. A suboptimal swapchain is
// reported as out of date so the caller recreates it.
func (vs *VulkanSwapchain) Present(index uint32, wait gpu.Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{vs.Handle},
		PImageIndices:  []uint32{index},
	}
	if s, ok := wait.(*VulkanSemaphore); ok && s != nil {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{s.Handle}
	}
	var result vk.Result
	_ = vs.context.locks.SafeCall(QueueManagement, func() error {
		result = vk.QueuePresent(vs.context.Device.PresentQueue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		return resultError("vkQueuePresentKHR", vk.ErrorOutOfDate)
	}
	return resultError("vkQueuePresentKHR", result)
}

// Recreate rebuilds the swapchain at extent. The device must be idle.
func (vs *VulkanSwapchain) Recreate(extent gpu.Extent2D) error {
	if extent.Width == 0 || extent.Height == 0 {
		core.LogDebug("swapchain recreate called when window is < 1 in a dimension. Booting.")
		return nil
	}
	return vs.create(extent)
}

func (vs *VulkanSwapchain) destroyImages() {
	// Only the views are ours; the images belong to the swapchain.
	for _, img := range vs.images {
		img.Destroy()
	}
	vs.images = nil
}

func (vs *VulkanSwapchain) Destroy() {
	vs.destroyImages()
	if vs.Handle != nil {
		vk.DestroySwapchain(vs.context.logical(), vs.Handle, vs.context.Allocator)
		vs.Handle = nil
	}
}
