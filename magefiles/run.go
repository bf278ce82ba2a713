//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Builds the shaders and runs the camera in a window.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", "main.go", "-config", "simcam.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Renders a fixed number of frames on the reference device, without a window.
func (Run) Headless() error {
	if _, err := executeCmd("go", withArgs("run", "main.go", "-headless", "-frames", "120"), withStream()); err != nil {
		return err
	}
	return nil
}
