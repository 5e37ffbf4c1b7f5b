package cmd

import (
	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/urfave/cli"
)

// loadConfig reads the --config file, or the defaults without one, and
// applies the verbosity flags on top.
func loadConfig(ctx *cli.Context) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if path := ctx.GlobalString("config"); path != "" {
		var err error
		if cfg, err = engine.LoadConfig(path); err != nil {
			return cfg, err
		}
	}

	if ctx.GlobalBool("v") {
		cfg.LogLevel = "info"
	}
	if ctx.GlobalBool("vv") {
		cfg.LogLevel = "debug"
	}
	level, err := core.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return cfg, err
	}
	core.SetLogLevel(level)
	return cfg, nil
}
