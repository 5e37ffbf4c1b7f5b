package cmd

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/shadergraph"
	"github.com/urfave/cli"
)

// Validate parses every graph description given as argument and compiles
// and reflects its shaders, without a GPU.
func Validate(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	paths := ctx.Args()
	if len(paths) == 0 {
		paths = cli.Args{cfg.Graph.Path}
	}

	compiler := shader.NewCompiler()
	if err := compiler.Init(); err != nil {
		return err
	}
	defer compiler.Shutdown()

	window := gpu.Extent2D{Width: cfg.Window.Width, Height: cfg.Window.Height}
	failed := 0
	for _, path := range paths {
		if err := shadergraph.Check(path, compiler, window, gpu.FormatB8G8R8A8Unorm); err != nil {
			core.LogError("%s", err)
			failed++
			continue
		}
		core.LogInfo("%s: ok", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d graphs are invalid", failed, len(paths))
	}
	return nil
}
