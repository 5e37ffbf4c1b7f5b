//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the default graph.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "--config", "config.toml", "run"), withStream()); err != nil {
		return err
	}
	return nil
}

// Validates every graph under assets/graphs without opening a window.
func (Run) Validate() error {
	_, err := executeCmd("go", withArgs("run", ".", "validate", "assets/graphs/default.toml", "assets/graphs/feedback.toml"), withStream())
	return err
}
