package shadergraph

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/overlay"
)

// Shared uniform block, std140:
//
//	vec4  iMouse      @0
//	vec3  iResolution @16
//	float iTime       @28
//	float iTimeDelta  @32
//	int   iFrame      @36
const (
	uniformSize      = 40
	uniformAllocSize = 48
)

func putFloat(b []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v))
}

// Render writes the shared uniform and renders "framebuffer" with
// everything it depends on.
func (g *Graph) Render(ctx *frame.Context) error {
	alloc, err := ctx.Allocator.AllocTransient(uniformAllocSize, gpu.BufferUsageUniform)
	if err != nil {
		return fmt.Errorf("shader graph uniform: %w", err)
	}
	mx, my := ctx.Mouse()
	b := alloc.Data
	putFloat(b, 0, mx)
	putFloat(b, 4, my)
	putFloat(b, 8, 0)
	putFloat(b, 12, 0)
	putFloat(b, 16, float32(ctx.Extent.Width))
	putFloat(b, 20, float32(ctx.Extent.Height))
	putFloat(b, 24, 1)
	putFloat(b, 28, float32(ctx.Elapsed.Seconds()))
	putFloat(b, 32, float32(ctx.Delta.Seconds()))
	binary.LittleEndian.PutUint32(b[36:], g.frame)
	g.uniform = alloc
	g.frame++

	for k := range g.rendered {
		delete(g.rendered, k)
	}
	return g.RenderTarget(ctx, Framebuffer)
}

// RenderTarget renders the stage producing target after the stages it
// samples in the current swap image.
func (g *Graph) RenderTarget(ctx *frame.Context, target string) error {
	name, ok := g.producers[target]
	if !ok {
		return fmt.Errorf("texture %q: %w", target, ErrNoProducer)
	}
	st := g.stages[name]
	if g.opts.Memoize == MemoizeByStage && g.rendered[name] {
		return nil
	}
	n := g.deps.ImageCount
	idx := int(ctx.ImageIndex)
	if idx >= n {
		return fmt.Errorf("image index %d of %d swap images", idx, n)
	}

	for _, tb := range st.textures {
		if tb.previous || !g.textures[tb.base].internal {
			continue
		}
		if err := g.RenderTarget(ctx, tb.base); err != nil {
			return err
		}
	}

	rec := ctx.Recorder
	pl := st.pipeline
	set, err := pl.AllocDescSet(ctx.DescriptorPool, 0)
	if err != nil {
		return fmt.Errorf("stage %q: %w", name, err)
	}
	if st.uniformBinding >= 0 {
		pl.BindUniformBuffer(set, g.uniform.Buffer, g.uniform.Offset, uniformSize, uint32(st.uniformBinding), 0)
	}
	for _, tb := range st.textures {
		t := g.textures[tb.base]
		i := idx
		if tb.previous {
			i = (idx - 1 + n) % n
		}
		if t.internal {
			rec.ImageTransition(t.images[i], gpu.PipelineStageBottomOfPipe, gpu.PipelineStageFragmentShader, gpu.LayoutShaderReadOnly, gpu.LayoutShaderReadOnly)
		}
		pl.BindImageView(set, t.views[i], gpu.LayoutShaderReadOnly, g.sampler, tb.binding, 0)
	}

	extent := st.extent
	views := make([]gpu.ImageView, 0, len(st.outputs))
	for _, out := range st.outputs {
		if out == Framebuffer {
			views = append(views, ctx.ImageView)
			extent = ctx.Extent
			continue
		}
		t := g.textures[out]
		rec.ImageTransition(t.images[idx], gpu.PipelineStageBottomOfPipe, gpu.PipelineStageColorAttachmentOutput, gpu.LayoutUndefined, gpu.LayoutColorAttachment)
		views = append(views, t.views[idx])
	}

	err = rec.WithRenderPassViews(pl, views, extent, func() error {
		if err := rec.BindPipeline(pl); err != nil {
			return err
		}
		if err := rec.BindDescSets(pl, 0, set); err != nil {
			return err
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		for i := range st.params {
			if err := st.params[i].push(rec, pl); err != nil {
				return fmt.Errorf("stage %q: %w", name, err)
			}
		}
		rec.Draw(3, 0, 1, 0)
		return nil
	})
	if err != nil {
		return err
	}

	for _, out := range st.outputs {
		if out == Framebuffer {
			continue
		}
		rec.ImageTransition(g.textures[out].images[idx], gpu.PipelineStageBottomOfPipe, gpu.PipelineStageFragmentShader, gpu.LayoutShaderReadOnly, gpu.LayoutShaderReadOnly)
	}
	g.rendered[name] = true
	return nil
}

// RenderGUI declares one collapsible entry per stage with a slider per
// parameter. It runs on the overlay goroutine.
func (g *Graph) RenderGUI(ui overlay.UI) {
	ui.Window("Shader Graph", func() {
		for _, name := range g.order {
			st := g.stages[name]
			ui.TreeNode("Stage "+name, func() {
				ui.Text("Shader File: %s", st.shaderFile)
				g.mu.Lock()
				defer g.mu.Unlock()
				for i := range st.params {
					st.params[i].draw(ui)
				}
			})
		}
	})
}
