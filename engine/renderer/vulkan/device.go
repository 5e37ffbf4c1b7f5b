package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

const portabilitySubset = "VK_KHR_portability_subset"

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	TransferFamilyIndex int32
}

// VulkanDevice is the logical device and implements gpu.Device.
type VulkanDevice struct {
	context *VulkanContext

	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	descriptorIndexing bool
}

var _ gpu.Device = (*VulkanDevice)(nil)

// DeviceCreate selects a physical device able to present to the context's
// surface and creates the logical device, its queues and command pool.
func DeviceCreate(context *VulkanContext, preferDiscrete bool) (*VulkanDevice, error) {
	device := &VulkanDevice{
		context:            context,
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
		TransferQueueIndex: -1,
	}
	context.Device = device
	if err := device.selectPhysicalDevice(preferDiscrete); err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")
	indices := []int32{device.GraphicsQueueIndex}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, device.PresentQueueIndex)
	}
	if device.TransferQueueIndex != device.GraphicsQueueIndex && device.TransferQueueIndex != device.PresentQueueIndex {
		indices = append(indices, device.TransferQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(index),
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	for _, ext := range device.extensions() {
		if ext == portabilitySubset {
			core.LogInfo("Adding required extension '%s'.", portabilitySubset)
			extensionNames = append(extensionNames, portabilitySubset)
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: device.Features.SamplerAnisotropy,
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device.LogicalDevice); res != vk.Success {
		err := resultError("vkCreateDevice", res)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.GraphicsQueueIndex), 0, &device.GraphicsQueue)
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &device.PresentQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &device.GraphicsCommandPool); res != vk.Success {
		device.Destroy()
		return nil, resultError("vkCreateCommandPool", res)
	}
	core.LogInfo("Graphics command pool created.")
	return device, nil
}

func (d *VulkanDevice) Destroy() {
	if d.GraphicsCommandPool != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, d.context.Allocator)
		d.GraphicsCommandPool = nil
	}
	d.GraphicsQueue = nil
	d.PresentQueue = nil
	if d.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.LogicalDevice, d.context.Allocator)
		d.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	d.PhysicalDevice = nil
	d.SwapchainSupport = VulkanSwapchainSupportInfo{}
}

func (d *VulkanDevice) extensions() []string {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(d.PhysicalDevice, "", &count, nil); res != vk.Success || count == 0 {
		return nil
	}
	props := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(d.PhysicalDevice, "", &count, props); res != vk.Success {
		return nil
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, cString(props[i].ExtensionName[:]))
	}
	return names
}

// DeviceQuerySwapchainSupport reads the capabilities, formats and present
// modes of surface on physicalDevice.
func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (VulkanSwapchainSupportInfo, error) {
	var info VulkanSwapchainSupportInfo
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &info.Capabilities); res != vk.Success {
		return info, resultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return info, resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	if formatCount != 0 {
		info.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, info.Formats); res != vk.Success {
			return info, resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
		}
		for i := range info.Formats {
			info.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil); res != vk.Success {
		return info, resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	if modeCount != 0 {
		info.PresentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, info.PresentModes); res != vk.Success {
			return info, resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
		}
	}
	return info, nil
}

func (d *VulkanDevice) selectPhysicalDevice(preferDiscrete bool) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.context.Instance, &count, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		core.LogError("No devices which support Vulkan were found.")
		return ErrNoDevice
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.context.Instance, &count, physicalDevices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		DiscreteGPU:          preferDiscrete && runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// A second pass drops the discrete requirement so laptops still run.
	for pass := 0; pass < 2; pass++ {
		for _, pd := range physicalDevices {
			if d.tryPhysicalDevice(pd, &requirements) {
				core.LogInfo("Physical device selected.")
				return nil
			}
		}
		if !requirements.DiscreteGPU {
			break
		}
		core.LogWarn("No discrete GPU meets the requirements, trying every device.")
		requirements.DiscreteGPU = false
	}
	core.LogError("No physical devices were found which meet the requirements.")
	return ErrNoDevice
}

func (d *VulkanDevice) tryPhysicalDevice(pd vk.PhysicalDevice, requirements *VulkanPhysicalDeviceRequirements) bool {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()
	properties.Limits.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &features)
	features.Deref()

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
	memory.Deref()

	name := cString(properties.DeviceName[:])
	queues, ok := physicalDeviceMeetsRequirements(pd, d.context.Surface, &properties, requirements)
	if !ok {
		return false
	}
	support, err := DeviceQuerySwapchainSupport(pd, d.context.Surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return false
	}

	d.PhysicalDevice = pd
	available := d.extensions()
	for _, required := range requirements.DeviceExtensionNames {
		if !contains(available, required) {
			core.LogInfo("Required extension not found: '%s', skipping device.", required)
			d.PhysicalDevice = nil
			return false
		}
	}

	core.LogInfo("Selected device: '%s'.", name)
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo("GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch())
	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		memory.MemoryHeaps[j].Deref()
		gib := float64(memory.MemoryHeaps[j].Size) / 1024 / 1024 / 1024
		if memory.MemoryHeaps[j].Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}

	d.GraphicsQueueIndex = queues.GraphicsFamilyIndex
	d.PresentQueueIndex = queues.PresentFamilyIndex
	d.TransferQueueIndex = queues.TransferFamilyIndex
	d.Properties = properties
	d.Features = features
	d.Memory = memory
	d.SwapchainSupport = support
	d.descriptorIndexing = properties.ApiVersion >= uint32(vk.MakeVersion(1, 2, 0))
	return true
}

func physicalDeviceMeetsRequirements(pd vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	queues := VulkanPhysicalDeviceQueueFamilyInfo{-1, -1, -1}
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
		return queues, false
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	core.LogDebug("Graphics | Present | Transfer | Family")
	minTransferScore := 255
	for i := range families {
		families[i].Deref()
		flags := families[i].QueueFlags
		transferScore := 0

		graphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		if graphics && queues.GraphicsFamilyIndex < 0 {
			queues.GraphicsFamilyIndex = int32(i)
			transferScore++
		}
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			transferScore++
		}
		// The lowest score is most likely a dedicated transfer queue.
		if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 && transferScore <= minTransferScore {
			minTransferScore = transferScore
			queues.TransferFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &supportsPresent); res != vk.Success {
			return queues, false
		}
		// Prefer presenting from the graphics family.
		if supportsPresent == vk.True && (queues.PresentFamilyIndex < 0 || graphics) {
			queues.PresentFamilyIndex = int32(i)
		}
		core.LogDebug("%8t | %7t | %8t | %d", graphics, supportsPresent == vk.True, flags&vk.QueueFlags(vk.QueueTransferBit) != 0, i)
	}

	if (requirements.Graphics && queues.GraphicsFamilyIndex < 0) ||
		(requirements.Present && queues.PresentFamilyIndex < 0) ||
		(requirements.Transfer && queues.TransferFamilyIndex < 0) {
		return queues, false
	}
	core.LogInfo("Device meets queue requirements.")
	core.LogDebug("Graphics Family Index: %d", queues.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", queues.PresentFamilyIndex)
	core.LogDebug("Transfer Family Index: %d", queues.TransferFamilyIndex)
	return queues, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (d *VulkanDevice) NewBuffer(size uint64, usage gpu.BufferUsage, memory gpu.MemoryUsage) (gpu.Buffer, error) {
	return newBuffer(d.context, size, usage, memory)
}

func (d *VulkanDevice) NewImage(desc gpu.ImageDesc) (gpu.Image, error) {
	return newImage(d.context, desc)
}

func (d *VulkanDevice) NewSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	return newSampler(d.context, desc)
}

func (d *VulkanDevice) NewShaderModule(code []uint32) (gpu.ShaderModule, error) {
	return newShaderModule(d.context, code)
}

func (d *VulkanDevice) NewDescriptorLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorLayout, error) {
	return newDescriptorLayout(d.context, bindings)
}

func (d *VulkanDevice) NewPipelineLayout(set gpu.DescriptorLayout, push []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	return newPipelineLayout(d.context, set, push)
}

func (d *VulkanDevice) NewRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	return newRenderPass(d.context, desc)
}

func (d *VulkanDevice) NewFramebuffer(pass gpu.RenderPass, views []gpu.ImageView, extent gpu.Extent2D) (gpu.Framebuffer, error) {
	return newFramebuffer(d.context, pass, views, extent)
}

func (d *VulkanDevice) NewPipeline(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	return newGraphicsPipeline(d.context, desc)
}

func (d *VulkanDevice) NewDescriptorPool(desc gpu.DescriptorPoolDesc) (gpu.DescriptorPool, error) {
	return newDescriptorPool(d.context, desc)
}

func (d *VulkanDevice) NewCommandList() (gpu.CommandList, error) {
	return newCommandBuffer(d.context)
}

func (d *VulkanDevice) NewFence(signaled bool) (gpu.Fence, error) {
	return newFence(d.context, signaled)
}

func (d *VulkanDevice) NewSemaphore() (gpu.Semaphore, error) {
	return newSemaphore(d.context)
}

func (d *VulkanDevice) Submit(lists []gpu.CommandList, wait gpu.Semaphore, waitStage gpu.PipelineStage, signal gpu.Semaphore, fence gpu.Fence) error {
	info, buffers, err := submitInfo(lists, wait, waitStage, signal)
	if err != nil {
		return err
	}
	var handle vk.Fence = vk.NullFence
	if f, ok := fence.(*VulkanFence); ok && f != nil {
		handle = f.Handle
		f.IsSignaled = false
	}
	err = d.context.locks.SafeCall(QueueManagement, func() error {
		if res := vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{info}, handle); res != vk.Success {
			return resultError("vkQueueSubmit", res)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, cb := range buffers {
		cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	}
	return nil
}

// SubmitNow records, submits and waits for a single use command buffer.
func (d *VulkanDevice) SubmitNow(record func(gpu.CommandList) error) error {
	cb, err := newCommandBuffer(d.context)
	if err != nil {
		return err
	}
	defer cb.Destroy()
	if err := cb.Begin(); err != nil {
		return err
	}
	if err := record(cb); err != nil {
		_ = cb.End()
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}
	fence, err := newFence(d.context, false)
	if err != nil {
		return err
	}
	defer fence.Destroy()
	if err := d.Submit([]gpu.CommandList{cb}, nil, 0, nil, fence); err != nil {
		return err
	}
	return fence.Wait(waitForever)
}

func (d *VulkanDevice) WaitIdle() error {
	return d.context.locks.SafeCall(QueueManagement, func() error {
		if res := vk.DeviceWaitIdle(d.LogicalDevice); res != vk.Success {
			return resultError("vkDeviceWaitIdle", res)
		}
		return nil
	})
}

func (d *VulkanDevice) Limits() gpu.Limits {
	limits := d.Properties.Limits
	return gpu.Limits{
		MinUniformBufferOffsetAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
		MaxPushConstantsSize:            limits.MaxPushConstantsSize,
		MaxFramebufferWidth:             limits.MaxFramebufferWidth,
		MaxFramebufferHeight:            limits.MaxFramebufferHeight,
		DescriptorIndexing:              d.descriptorIndexing,
	}
}

func (d *VulkanDevice) String() string {
	return fmt.Sprintf("vulkan device '%s'", cString(d.Properties.DeviceName[:]))
}
