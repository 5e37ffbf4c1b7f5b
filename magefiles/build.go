//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles every GLSL shader under assets/shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the prism binary.
func (Build) Binary() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/prism", "."), withStream())
	return err
}

func buildShaders() error {
	var sources []string
	for _, pattern := range []string{"*.vert", "*.frag", "*.comp"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, pattern))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	for _, src := range sources {
		name := filepath.Base(src)
		if _, err := executeCmd("glslc", withArgs(name, "-o", name+".spv"), withDir(shaderDir), withStream()); err != nil {
			return err
		}
	}
	return nil
}
