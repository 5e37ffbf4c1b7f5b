package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/testbed"
	"github.com/urfave/cli"
)

// Run opens a window and renders the shader graph given as argument, or the
// one named by the configuration.
func Run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if path := ctx.Args().First(); path != "" {
		cfg.Graph.Path = path
	}
	if ctx.Bool("no-validation") {
		cfg.Renderer.Validation = false
	}
	if ctx.Bool("no-overlay") {
		cfg.Overlay.Enabled = false
	}
	if ctx.Bool("no-vsync") {
		cfg.Renderer.VSync = false
	}

	var stage, param string
	if sweep := ctx.String("sweep"); sweep != "" {
		stage, param, _ = strings.Cut(sweep, ".")
	}
	tb := testbed.NewTestGame(stage, param)

	e, err := engine.New(cfg, tb.Application)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		if sig, ok := <-sigCh; ok {
			core.LogInfo("received %s", sig)
			e.Stop()
		}
	}()

	return e.Run()
}
