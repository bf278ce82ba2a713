//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const shaderDir = "shaders"

type Build mg.Namespace

// Compiles every GLSL stage in shaders/ into <program>.<stage>.spv.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	entries, err := os.ReadDir(shaderDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".vert", ".frag", ".comp":
		default:
			continue
		}
		src := filepath.Join(shaderDir, e.Name())
		out := filepath.Join(shaderDir, e.Name()+".spv")
		if _, err := executeCmd("glslc", withArgs("-I", shaderDir, src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}
