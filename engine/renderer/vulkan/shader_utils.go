package vulkan

import (
	"errors"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

type VulkanShaderModule struct {
	context *VulkanContext
	Handle  vk.ShaderModule
}

func newShaderModule(context *VulkanContext, code []uint32) (*VulkanShaderModule, error) {
	if len(code) == 0 {
		return nil, errors.New("empty shader module")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType: vk.StructureTypeShaderModuleCreateInfo,
		// CodeSize is in bytes.
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	module := &VulkanShaderModule{context: context}
	if res := vk.CreateShaderModule(context.logical(), &createInfo, context.Allocator, &module.Handle); res != vk.Success {
		err := resultError("vkCreateShaderModule", res)
		core.LogError(err.Error())
		return nil, err
	}
	return module, nil
}

func (m *VulkanShaderModule) Destroy() {
	if m.Handle != nil {
		vk.DestroyShaderModule(m.context.logical(), m.Handle, m.context.Allocator)
		m.Handle = nil
	}
}
