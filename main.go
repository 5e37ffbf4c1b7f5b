package main

import (
	"os"

	"github.com/spaghettifunk/prism/cmd"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "prism"
	app.Usage = "run shader graphs on vulkan"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "TOML configuration file",
		},
	}
	stageFlag := cli.StringFlag{
		Name:  "stage, s",
		Usage: "shader stage (vert, frag, comp) when the file name does not tell",
	}
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "open a window and render a shader graph",
			Description: `
Load the shader graph description given as argument, or the one named by the
configuration, and render it every frame. The graph is rebuilt whenever one of
its files changes or F5 is pressed; F1 hides the parameter windows and Escape
quits.`,
			ArgsUsage: "[graph.toml]",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "no-validation",
					Usage: "disable the vulkan validation layers",
				},
				cli.BoolFlag{
					Name:  "no-overlay",
					Usage: "do not draw the overlay",
				},
				cli.BoolFlag{
					Name:  "no-vsync",
					Usage: "present in mailbox mode when available",
				},
				cli.StringFlag{
					Name:  "sweep",
					Usage: "animate a float parameter, as stage.parameter",
				},
			},
			Action: cmd.Run,
		},
		{
			Name:  "validate",
			Usage: "check shader graph descriptions without a GPU",
			Description: `
Parse every description, check its textures, edges and cycles, then compile and
reflect each stage shader against the textures and parameters it declares.`,
			ArgsUsage: "graph1.toml graph2.toml ...",
			Action:    cmd.Validate,
		},
		{
			Name:      "reflect",
			Usage:     "print the descriptors and push constants of shaders",
			ArgsUsage: "shader1.spv shader2.wgsl ...",
			Flags:     []cli.Flag{stageFlag},
			Action:    cmd.ReflectShaders,
		},
		{
			Name:      "compile",
			Usage:     "compile WGSL or GLSL shaders to SPIR-V",
			ArgsUsage: "shader1.frag shader2.wgsl ...",
			Flags: []cli.Flag{
				stageFlag,
				cli.StringFlag{
					Name:  "out, o",
					Usage: "output file, for a single input",
				},
			},
			Action: cmd.CompileShaders,
		},
	}

	if err := app.Run(os.Args); err != nil {
		core.LogFatal("%s", err)
	}
}
