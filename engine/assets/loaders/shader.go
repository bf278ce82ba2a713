package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

const (
	spirvMagic = 0x07230203
	// magic, version, generator, bound, schema
	spirvHeaderWords = 5
)

// ValidateSPIRV checks the size and header of a SPIR-V module.
func ValidateSPIRV(name string, code []byte) error {
	if len(code) < spirvHeaderWords*4 || len(code)%4 != 0 {
		return fmt.Errorf("%w: %s: %d bytes is not a SPIR-V module", core.ErrAssetInvalid, name, len(code))
	}
	if magic := BytesToBytecode(code[:4])[0]; magic != spirvMagic {
		return fmt.Errorf("%w: %s: bad magic number 0x%08x", core.ErrAssetInvalid, name, magic)
	}
	return nil
}

type ShaderLoader struct{}

// Load reads and validates one SPIR-V file.
func (sl *ShaderLoader) Load(path string) (interface{}, error) {
	data, err := ReadBinary(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAssetInvalid, err)
	}
	if err := ValidateSPIRV(path, data); err != nil {
		return nil, err
	}
	return data, nil
}

/**
 * @brief Every compiled stage found in a shader directory, validated up front
 * so that a hot reload never starts with a broken module.
 */
type ShaderSet struct {
	Dir   string
	files map[string][]byte
}

func LoadShaderSet(dir string) (*ShaderSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: shader directory: %v", core.ErrAssetInvalid, err)
	}
	set := &ShaderSet{Dir: dir, files: make(map[string][]byte)}
	loader := &ShaderLoader{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".spv") {
			continue
		}
		code, err := loader.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		set.files[e.Name()] = code.([]byte)
	}
	core.LogDebug("loaded %d shader modules from %s", len(set.files), dir)
	return set, nil
}

func (s *ShaderSet) Load(program string, stage metadata.ShaderStage) ([]byte, error) {
	name := metadata.ShaderFile(program, stage)
	code, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found in %s", core.ErrAssetInvalid, name, s.Dir)
	}
	return code, nil
}

func (s *ShaderSet) Len() int {
	return len(s.files)
}
