package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/urfave/cli"
)

var ErrUnknownStage = errors.New("cannot tell the shader stage")

var stages = map[string]gpu.ShaderStage{
	"vert":     gpu.StageVertex,
	"vertex":   gpu.StageVertex,
	"frag":     gpu.StageFragment,
	"fragment": gpu.StageFragment,
	"comp":     gpu.StageCompute,
	"compute":  gpu.StageCompute,
}

// shaderStage returns the stage named by flag, else the one implied by the
// file name, as in blur.frag or blur.frag.spv.
func shaderStage(flag, path string) (gpu.ShaderStage, error) {
	if flag != "" {
		if s, ok := stages[strings.ToLower(flag)]; ok {
			return s, nil
		}
		return gpu.StageNone, fmt.Errorf("stage %q: %w", flag, ErrUnknownStage)
	}
	name := strings.ToLower(filepath.Base(path))
	for _, ext := range []string{".spv", ".wgsl", ".glsl"} {
		name = strings.TrimSuffix(name, ext)
	}
	if s, ok := stages[strings.TrimPrefix(filepath.Ext(name), ".")]; ok {
		return s, nil
	}
	return gpu.StageNone, fmt.Errorf("%s: %w", path, ErrUnknownStage)
}

func compileFile(compiler *shader.Compiler, path, stageFlag string) ([]uint32, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src := shader.SourceFromFile(path, code)
	// Only GLSL needs the stage; SPIR-V and WGSL declare their entry points.
	stage := gpu.StageNone
	if src.Language == shader.LanguageGLSL {
		if stage, err = shaderStage(stageFlag, path); err != nil {
			return nil, err
		}
	}
	return compiler.Compile(src, stage)
}

func newCompiler() (*shader.Compiler, error) {
	compiler := shader.NewCompiler()
	if err := compiler.Init(); err != nil {
		return nil, err
	}
	return compiler, nil
}

// CompileShaders writes the SPIR-V of every WGSL or GLSL file given as
// argument next to it, or to --out for a single file.
func CompileShaders(ctx *cli.Context) error {
	if _, err := loadConfig(ctx); err != nil {
		return err
	}
	if ctx.NArg() == 0 {
		return errors.New("no shader files given")
	}
	out := ctx.String("out")
	if out != "" && ctx.NArg() > 1 {
		return errors.New("--out needs exactly one input file")
	}
	compiler, err := newCompiler()
	if err != nil {
		return err
	}
	defer compiler.Shutdown()

	for _, path := range ctx.Args() {
		words, err := compileFile(compiler, path, ctx.String("stage"))
		if err != nil {
			return err
		}
		dst := out
		if dst == "" {
			dst = path + ".spv"
		}
		if err := os.WriteFile(dst, shader.WordsToBytes(words), 0o644); err != nil {
			return err
		}
		core.LogInfo("compiled %s to %s (%d words)", path, dst, len(words))
	}
	return nil
}

// ReflectShaders prints the interface of every shader given as argument.
func ReflectShaders(ctx *cli.Context) error {
	if _, err := loadConfig(ctx); err != nil {
		return err
	}
	if ctx.NArg() == 0 {
		return errors.New("no shader files given")
	}
	compiler, err := newCompiler()
	if err != nil {
		return err
	}
	defer compiler.Shutdown()

	for _, path := range ctx.Args() {
		words, err := compileFile(compiler, path, ctx.String("stage"))
		if err != nil {
			return err
		}
		r, err := shader.Reflect(words)
		if err != nil {
			return fmt.Errorf("reflect %s: %w", path, err)
		}
		fmt.Fprintf(ctx.App.Writer, "%s (%s, entry %s)\n%s", path, r.Stage, r.EntryPoint, reflectionTable(r))
	}
	return nil
}

// reflectionTable lists descriptors, then push constant members.
func reflectionTable(r *shader.Reflection) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Set", "Binding", "Name", "Kind", "Count", "Offset", "Size"})
	for _, b := range r.Bindings {
		count := fmt.Sprintf("%d", b.Count)
		if b.Unbounded {
			count = "unbounded"
		}
		size := ""
		if b.Block != nil {
			size = fmt.Sprintf("%d", b.Block.Size)
		}
		table.Append([]string{fmt.Sprintf("%d", b.Set), fmt.Sprintf("%d", b.Binding), b.Name, b.Kind.String(), count, "", size})
		if b.Block != nil {
			for _, m := range b.Block.Members {
				table.Append([]string{"", "", "  " + m.Name, "", "", fmt.Sprintf("%d", m.Offset), fmt.Sprintf("%d", m.Size)})
			}
		}
	}
	for _, p := range r.PushBlocks {
		table.Append([]string{"push", "", p.Name, "push_constant", "", fmt.Sprintf("%d", p.Offset), fmt.Sprintf("%d", p.RangeSize)})
		for _, m := range p.Members {
			table.Append([]string{"", "", "  " + m.Name, "", "", fmt.Sprintf("%d", m.Offset), fmt.Sprintf("%d", m.Size)})
		}
	}
	table.Render()
	return buf.String()
}
