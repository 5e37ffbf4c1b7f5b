package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type VulkanImage struct {
	context *VulkanContext

	Handle vk.Image
	Memory vk.DeviceMemory
	view   *VulkanImageView

	desc gpu.ImageDesc
	// swapchain images are owned by the swapchain; only the view is ours.
	swapchain bool
}

type VulkanImageView struct {
	context *VulkanContext
	Handle  vk.ImageView
	format  gpu.Format
}

type VulkanSampler struct {
	context *VulkanContext
	Handle  vk.Sampler
}

func newImage(context *VulkanContext, desc gpu.ImageDesc) (*VulkanImage, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.Layers == 0 {
		desc.Layers = 1
	}
	format := toFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("image %q with %s: %w", desc.Name, desc.Format, ErrUnsupportedFormat)
	}

	img := &VulkanImage{context: context, desc: desc}
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.Layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         toImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if res := vk.CreateImage(context.logical(), &imageInfo, context.Allocator, &img.Handle); res != vk.Success {
		err := resultError("vkCreateImage", res)
		core.LogError("image %q: %s", desc.Name, err)
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.logical(), img.Handle, &reqs)
	memory, err := context.allocateMemory(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("image %q: %w", desc.Name, err)
	}
	img.Memory = memory
	if res := vk.BindImageMemory(context.logical(), img.Handle, img.Memory, 0); res != vk.Success {
		img.Destroy()
		return nil, resultError("vkBindImageMemory", res)
	}

	view, err := newImageView(context, img.Handle, desc.Format, desc.MipLevels, desc.Layers)
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("image %q: %w", desc.Name, err)
	}
	img.view = view
	return img, nil
}

func newImageView(context *VulkanContext, image vk.Image, format gpu.Format, mips, layers uint32) (*VulkanImageView, error) {
	viewType := vk.ImageViewType2d
	if layers > 1 {
		viewType = vk.ImageViewType2dArray
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: viewType,
		Format:   toFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectOf(format),
			BaseMipLevel:   0,
			LevelCount:     mips,
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
	}
	view := &VulkanImageView{context: context, format: format}
	if res := vk.CreateImageView(context.logical(), &viewInfo, context.Allocator, &view.Handle); res != vk.Success {
		err := resultError("vkCreateImageView", res)
		core.LogError(err.Error())
		return nil, err
	}
	return view, nil
}

func (img *VulkanImage) Extent() gpu.Extent2D { return img.desc.Extent }
func (img *VulkanImage) Format() gpu.Format   { return img.desc.Format }
func (img *VulkanImage) MipLevels() uint32    { return img.desc.MipLevels }
func (img *VulkanImage) Layers() uint32       { return img.desc.Layers }

func (img *VulkanImage) View() gpu.ImageView {
	if img.view == nil {
		return nil
	}
	return img.view
}

// Destroy releases the view, and the image and its memory unless the
// swapchain owns them.
func (img *VulkanImage) Destroy() {
	if img.view != nil {
		img.view.Destroy()
		img.view = nil
	}
	if img.swapchain {
		return
	}
	device := img.context.logical()
	if img.Handle != nil {
		vk.DestroyImage(device, img.Handle, img.context.Allocator)
		img.Handle = nil
	}
	if img.Memory != nil {
		vk.FreeMemory(device, img.Memory, img.context.Allocator)
		img.Memory = nil
	}
}

func (v *VulkanImageView) Format() gpu.Format { return v.format }

func (v *VulkanImageView) Destroy() {
	if v.Handle != nil {
		vk.DestroyImageView(v.context.logical(), v.Handle, v.context.Allocator)
		v.Handle = nil
	}
}

func newSampler(context *VulkanContext, desc gpu.SamplerDesc) (*VulkanSampler, error) {
	filter := toFilter(desc.Filter)
	address := toAddressMode(desc.AddressMode)
	mipmapMode := vk.SamplerMipmapModeLinear
	if desc.Filter == gpu.FilterNearest {
		mipmapMode = vk.SamplerMipmapModeNearest
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              mipmapMode,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  0,
		MaxLod:                  desc.MaxLod,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	if context.Device.Features.SamplerAnisotropy == vk.True {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = 16
	}
	sampler := &VulkanSampler{context: context}
	if res := vk.CreateSampler(context.logical(), &samplerInfo, context.Allocator, &sampler.Handle); res != vk.Success {
		err := resultError("vkCreateSampler", res)
		core.LogError(err.Error())
		return nil, err
	}
	return sampler, nil
}

func (s *VulkanSampler) Destroy() {
	if s.Handle != nil {
		vk.DestroySampler(s.context.logical(), s.Handle, s.context.Allocator)
		s.Handle = nil
	}
}
