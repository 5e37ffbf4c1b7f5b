package pipeline

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/shader/shadertest"
)

func newCompiler(t *testing.T) *shader.Compiler {
	t.Helper()
	c := shader.NewCompilerWith()
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Shutdown)
	return c
}

func spirv(name string, m *shadertest.Module) shader.Source {
	return shader.Source{Name: name, Language: shader.LanguageSPIRV, Code: m.Bytes()}
}

func fragment() *shadertest.Module {
	return shadertest.New(gpu.StageFragment).
		UniformBlock("ubo", "Globals", 0, 0,
			shadertest.Field{Name: "iMouse", Type: shadertest.Vec4},
			shadertest.Field{Name: "iResolution", Type: shadertest.Vec3},
			shadertest.Field{Name: "iTime", Type: shadertest.Float},
		).
		Texture("albedo", 0, 1).
		PushConstants("Params",
			shadertest.Field{Name: "intensity", Type: shadertest.Float},
			shadertest.Field{Name: "tint", Type: shadertest.Vec3},
		)
}

func vertex() *shadertest.Module {
	return shadertest.New(gpu.StageVertex).
		UniformBlock("ubo", "Globals", 0, 0,
			shadertest.Field{Name: "iMouse", Type: shadertest.Vec4},
			shadertest.Field{Name: "iResolution", Type: shadertest.Vec3},
			shadertest.Field{Name: "iTime", Type: shadertest.Float},
		)
}

func build(t *testing.T, dev *gputest.Device) *Pipeline {
	t.Helper()
	p := New(dev, newCompiler(t))
	if err := p.AddShaderStage(spirv("quad.vert", vertex()), gpu.StageVertex); err != nil {
		t.Fatal(err)
	}
	if err := p.AddShaderStage(spirv("quad.frag", fragment()), gpu.StageFragment); err != nil {
		t.Fatal(err)
	}
	if err := p.AddColorAttachment(gpu.FormatB8G8R8A8Unorm, gpu.LayoutUndefined, gpu.LayoutPresentSrc); err != nil {
		t.Fatal(err)
	}
	if err := p.SetViewport(640, 480); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestQueriesBeforeAndAfterBuild(t *testing.T) {
	dev := gputest.NewDevice()
	p := build(t, dev)

	if have := p.GetBindingByName("albedo"); have != NotFound {
		t.Fatalf("binding before Build:\nhave %d\nwant %d", have, NotFound)
	}
	if have := p.GetMemberOffset("intensity"); have != NotFoundOffset {
		t.Fatalf("offset before Build:\nhave %#x\nwant %#x", have, NotFoundOffset)
	}
	if _, err := p.RenderPass(); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("RenderPass before Build:\nhave %v\nwant %v", err, ErrNotBuilt)
	}
	if _, err := p.State(); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("State before Build:\nhave %v\nwant %v", err, ErrNotBuilt)
	}
	if _, err := p.Layout(); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("Layout before Build:\nhave %v\nwant %v", err, ErrNotBuilt)
	}

	if err := p.Build(); err != nil {
		t.Fatal(err)
	}

	bindings := map[string]int{
		"ubo":         0,
		"Globals":     0,
		"iTime":       0,
		"albedo":      1,
		"missing":     NotFound,
		"iResolution": 0,
	}
	for name, want := range bindings {
		for i := 0; i < 2; i++ {
			if have := p.GetBindingByName(name); have != want {
				t.Fatalf("GetBindingByName(%q):\nhave %d\nwant %d", name, have, want)
			}
		}
	}

	offsets := map[string]uint32{
		"iMouse":      0,
		"iResolution": 16,
		"iTime":       28,
		"intensity":   0,
		"tint":        16,
		"nope":        NotFoundOffset,
	}
	for name, want := range offsets {
		if have := p.GetMemberOffset(name); have != want {
			t.Fatalf("GetMemberOffset(%q):\nhave %d\nwant %d", name, have, want)
		}
	}
	if have := p.UniformBlockSize("ubo"); have != 32 {
		t.Fatalf("UniformBlockSize:\nhave %d\nwant 32", have)
	}
}

func TestBuildDescriptors(t *testing.T) {
	dev := gputest.NewDevice()
	p := build(t, dev)
	if err := p.Build(); err != nil {
		t.Fatal(err)
	}

	have := p.Bindings()
	want := []gpu.DescriptorBinding{
		{Binding: 0, Kind: gpu.DescriptorUniformBuffer, Count: 1, Stages: gpu.StageVertex | gpu.StageFragment},
		{Binding: 1, Kind: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.StageFragment},
	}
	if len(have) != len(want) {
		t.Fatalf("bindings:\nhave %+v\nwant %+v", have, want)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("binding %d:\nhave %+v\nwant %+v", i, have[i], want[i])
		}
	}

	push := p.PushRanges()
	if len(push) != 1 || push[0].Offset != 0 || push[0].Size != 28 || push[0].Stages != gpu.StageFragment {
		t.Fatalf("push ranges:\nhave %+v\nwant [{fragment 0 28}]", push)
	}
	if have := p.PushStages(16); have != gpu.StageFragment {
		t.Fatalf("PushStages(16):\nhave %s\nwant fragment", have)
	}
	if have := p.PushStages(64); have != gpu.StageNone {
		t.Fatalf("PushStages(64):\nhave %s\nwant none", have)
	}

	state, err := p.State()
	if err != nil {
		t.Fatal(err)
	}
	desc := state.(*gputest.PipelineState).Desc
	if len(desc.Stages) != 2 || desc.Stages[0].Entry != "main" {
		t.Fatalf("stages:\nhave %+v\nwant vertex and fragment with entry main", desc.Stages)
	}
	if desc.Cull != gpu.CullBack || desc.FrontFace != gpu.FrontFaceCounterClockwise || desc.Blend {
		t.Fatalf("raster state:\nhave cull %v front %v blend %t\nwant back, counter clockwise, no blend", desc.Cull, desc.FrontFace, desc.Blend)
	}
	if desc.Scissor.Extent != (gpu.Extent2D{Width: 640, Height: 480}) {
		t.Fatalf("scissor:\nhave %+v\nwant 640x480", desc.Scissor)
	}

	pass, _ := p.RenderPass()
	colors := pass.Desc().Colors
	if len(colors) != 1 || colors[0].Load != gpu.LoadOpClear || colors[0].Store != gpu.StoreOpStore || colors[0].Final != gpu.LayoutPresentSrc {
		t.Fatalf("color attachments:\nhave %+v", colors)
	}
	if pass.Desc().Depth != nil {
		t.Fatalf("depth attachment:\nhave %+v\nwant nil", pass.Desc().Depth)
	}
}

func TestDepthAttachment(t *testing.T) {
	dev := gputest.NewDevice()
	p := build(t, dev)
	if err := p.AddDepthAttachment(); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(); err != nil {
		t.Fatal(err)
	}
	pass, _ := p.RenderPass()
	depth := pass.Desc().Depth
	if depth == nil || depth.Format != gpu.FormatD32Sfloat || depth.Final != gpu.LayoutDepthStencilAttachment {
		t.Fatalf("depth attachment:\nhave %+v\nwant D32 ending depth-stencil-attachment", depth)
	}
	state, _ := p.State()
	if have := state.(*gputest.PipelineState).Desc.Depth; have != (gpu.DepthState{Test: true, Write: true, Compare: gpu.CompareLess}) {
		t.Fatalf("depth state:\nhave %+v", have)
	}
}

func TestUnboundedTextureArray(t *testing.T) {
	dev := gputest.NewDevice()
	p := New(dev, newCompiler(t))
	frag := shadertest.New(gpu.StageFragment).TextureArray("textures", 0, 2, 0)
	if err := p.AddShaderStage(spirv("mesh.frag", frag), gpu.StageFragment); err != nil {
		t.Fatal(err)
	}
	if err := p.AddColorAttachment(gpu.FormatR8G8B8A8Unorm, gpu.LayoutUndefined, gpu.LayoutShaderReadOnly); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(); err != nil {
		t.Fatal(err)
	}

	b := p.Bindings()
	if len(b) != 1 || b[0].Count != UnboundedCount || b[0].Flags != gpu.BindingPartiallyBound|gpu.BindingVariableCount {
		t.Fatalf("unbounded binding:\nhave %+v\nwant count %d partially bound, variable count", b, UnboundedCount)
	}

	pool, err := dev.NewDescriptorPool(gpu.DescriptorPoolDesc{MaxSets: 1})
	if err != nil {
		t.Fatal(err)
	}
	set, err := p.AllocDescSet(pool, 12)
	if err != nil {
		t.Fatal(err)
	}
	if have := set.(*gputest.DescriptorSet).VariableCount; have != 12 {
		t.Fatalf("variable count:\nhave %d\nwant 12", have)
	}
	if _, err := p.AllocDescSet(pool, 12); !errors.Is(err, gpu.ErrDescriptorPoolExhausted) {
		t.Fatalf("second set:\nhave %v\nwant %v", err, gpu.ErrDescriptorPoolExhausted)
	}
}

func TestBindWritesUseReflectedKind(t *testing.T) {
	dev := gputest.NewDevice()
	p := build(t, dev)
	if err := p.Build(); err != nil {
		t.Fatal(err)
	}
	pool, _ := dev.NewDescriptorPool(gpu.DescriptorPoolDesc{MaxSets: 4})
	set, err := p.AllocDescSet(pool, 0)
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := dev.NewBuffer(256, gpu.BufferUsageUniform, gpu.MemoryCPUToGPU)
	img, _ := dev.NewImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gpu.FormatR8G8B8A8Srgb, MipLevels: 1, Layers: 1})
	sampler, _ := dev.NewSampler(gpu.SamplerDesc{})

	p.BindUniformBuffer(set, buf, 0, 32, uint32(p.GetBindingByName("ubo")), 0)
	p.BindImageView(set, img.View(), gpu.LayoutShaderReadOnly, sampler, uint32(p.GetBindingByName("albedo")), 0)

	writes := set.(*gputest.DescriptorSet).Writes
	if w := writes[[2]uint32{0, 0}]; w.Kind != gpu.DescriptorUniformBuffer || w.Size != 32 {
		t.Fatalf("uniform write:\nhave %+v", w)
	}
	if w := writes[[2]uint32{1, 0}]; w.Kind != gpu.DescriptorCombinedImageSampler || w.Layout != gpu.LayoutShaderReadOnly {
		t.Fatalf("image write:\nhave %+v", w)
	}
}

func TestBuildErrors(t *testing.T) {
	dev := gputest.NewDevice()

	p := New(dev, newCompiler(t))
	if err := p.Build(); !errors.Is(err, ErrNoShaderStages) {
		t.Fatalf("no stages:\nhave %v\nwant %v", err, ErrNoShaderStages)
	}

	p = New(dev, newCompiler(t))
	if err := p.AddShaderStage(spirv("quad.frag", fragment()), gpu.StageFragment); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(); !errors.Is(err, ErrNoAttachments) {
		t.Fatalf("no attachments:\nhave %v\nwant %v", err, ErrNoAttachments)
	}

	p = build(t, dev)
	if err := p.Build(); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("second Build:\nhave %v\nwant %v", err, ErrAlreadyBuilt)
	}
	if err := p.AddDepthAttachment(); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("AddDepthAttachment after Build:\nhave %v\nwant %v", err, ErrAlreadyBuilt)
	}
	if _, err := p.AddVertexBuffer(16, true); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("AddVertexBuffer after Build:\nhave %v\nwant %v", err, ErrAlreadyBuilt)
	}
}

func TestBuildFailureCleansUp(t *testing.T) {
	dev := gputest.NewDevice()
	p := build(t, dev)
	boom := errors.New("boom")
	dev.FailNext("NewPipeline", boom)

	if err := p.Build(); !errors.Is(err, boom) {
		t.Fatalf("Build:\nhave %v\nwant %v", err, boom)
	}
	for _, kind := range []string{"descriptor_layout", "pipeline_layout", "render_pass", "pipeline"} {
		if have := dev.Live(kind); have != 0 {
			t.Fatalf("live %s after failed Build:\nhave %d\nwant 0", kind, have)
		}
	}
	if p.Built() {
		t.Fatal("pipeline reports built after failure")
	}

	if err := p.Build(); err != nil {
		t.Fatalf("retry Build: %v", err)
	}
	p.Destroy()
	for _, kind := range []string{"shader_module", "descriptor_layout", "pipeline_layout", "render_pass", "pipeline"} {
		if have := dev.Live(kind); have != 0 {
			t.Fatalf("live %s after Destroy:\nhave %d\nwant 0", kind, have)
		}
	}
}

func TestVertexInput(t *testing.T) {
	dev := gputest.NewDevice()
	p := build(t, dev)
	vb, err := p.AddVertexBuffer(20, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.AddVertexAttribute(vb, 0, gpu.FormatR32G32Sfloat, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.AddVertexAttribute(vb, 1, gpu.FormatR32G32B32Sfloat, 8); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(); err != nil {
		t.Fatal(err)
	}
	state, _ := p.State()
	desc := state.(*gputest.PipelineState).Desc
	if len(desc.VertexBindings) != 1 || desc.VertexBindings[0].Stride != 20 || len(desc.VertexAttributes) != 2 {
		t.Fatalf("vertex input:\nhave %+v %+v", desc.VertexBindings, desc.VertexAttributes)
	}
}
