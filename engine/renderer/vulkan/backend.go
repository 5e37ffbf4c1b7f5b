package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var ErrNoValidationLayer = errors.New("required validation layer is missing")

// Surface is the window the backend presents to. *glfw.Window satisfies it.
type Surface interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetRequiredInstanceExtensions() []string
}

type Config struct {
	ApplicationName string
	Validation      bool
	PreferDiscrete  bool
	VSync           bool
}

// VulkanBackend owns the instance, surface and device.
type VulkanBackend struct {
	config  Config
	context *VulkanContext
}

func New(surface Surface, config Config) (*VulkanBackend, error) {
	vb := &VulkanBackend{
		config:  config,
		context: &VulkanContext{locks: NewVulkanLockPool()},
	}
	if err := vb.initialize(surface); err != nil {
		vb.Shutdown()
		return nil, err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return vb, nil
}

func (vb *VulkanBackend) initialize(surface Surface) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vb.config.ApplicationName),
		PEngineName:        VulkanSafeString("Prism"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, surface.GetRequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	var layers []string
	if vb.config.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if err := checkLayers([]string{validationLayer}); err != nil {
			return err
		}
		layers = []string{validationLayer}
	}
	core.LogDebug("Required extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, vb.context.Allocator, &vb.context.Instance); res != vk.Success {
		err := resultError("vkCreateInstance", res)
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vb.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vb.config.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(vb.context.Instance, &debugCreateInfo, vb.context.Allocator, &dbg); res != vk.Success {
			err := resultError("vkCreateDebugReportCallbackEXT", res)
			core.LogError(err.Error())
			return err
		}
		vb.context.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	core.LogDebug("Creating Vulkan surface...")
	ptr, err := surface.CreateWindowSurface(vb.context.Instance, nil)
	if err != nil {
		core.LogError("Failed to create platform surface: %s", err)
		return err
	}
	vb.context.Surface = vk.SurfaceFromPointer(ptr)
	core.LogDebug("Vulkan surface created.")

	if _, err := DeviceCreate(vb.context, vb.config.PreferDiscrete); err != nil {
		core.LogError("Failed to create device: %s", err)
		return err
	}
	return nil
}

func checkLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	for _, name := range required {
		core.LogDebug("Searching for layer: %s...", name)
		found := false
		for i := range available {
			available[i].Deref()
			if cString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: %w", name, ErrNoValidationLayer)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (vb *VulkanBackend) Device() *VulkanDevice { return vb.context.Device }

// NewSwapchain creates a swapchain for the surface at extent.
func (vb *VulkanBackend) NewSwapchain(extent gpu.Extent2D) (*VulkanSwapchain, error) {
	return SwapchainCreate(vb.context, extent, vb.config.VSync)
}

// Shutdown destroys everything in reverse creation order. Swapchains and
// resources created from the device must already be destroyed.
func (vb *VulkanBackend) Shutdown() {
	ctx := vb.context
	if ctx.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		ctx.Device.Destroy()
		ctx.Device = nil
	}
	if ctx.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = vk.NullDebugReportCallback
	}
	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
