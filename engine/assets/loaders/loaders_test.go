package loaders

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
)

func spirvModule(words ...uint32) []byte {
	header := []uint32{spirvMagic, 0x00010000, 0, 8, 0}
	out := make([]byte, 0, (len(header)+len(words))*4)
	for _, w := range append(header, words...) {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func TestValidateSPIRV(t *testing.T) {
	good := spirvModule(0x00020011)
	if err := ValidateSPIRV("good", good); err != nil {
		t.Fatal(err)
	}
	bad := append([]byte(nil), good...)
	bad[0] = 0
	cases := map[string][]byte{
		"empty":     nil,
		"truncated": good[:12],
		"unaligned": append(append([]byte(nil), good...), 1),
		"magic":     bad,
	}
	for name, code := range cases {
		if err := ValidateSPIRV(name, code); !errors.Is(err, core.ErrAssetInvalid) {
			t.Errorf("%s: expected an invalid asset error, got %v", name, err)
		}
	}
	if words := BytesToBytecode(good); len(words) != 6 || words[0] != spirvMagic || words[5] != 0x00020011 {
		t.Errorf("bytecode %x", words)
	}
}

func TestShaderSet(t *testing.T) {
	dir := t.TempDir()
	vert := metadata.ShaderFile(metadata.ProgramFullscreen, metadata.ShaderStageVertex)
	if err := os.WriteFile(filepath.Join(dir, vert), spirvModule(), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := LoadShaderSet(dir)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 1 {
		t.Fatalf("%d modules loaded", set.Len())
	}
	if _, err := set.Load(metadata.ProgramFullscreen, metadata.ShaderStageVertex); err != nil {
		t.Fatal(err)
	}
	if _, err := set.Load(metadata.ProgramComposite, metadata.ShaderStageFragment); !errors.Is(err, core.ErrAssetInvalid) {
		t.Fatalf("missing stage: %v", err)
	}

	// one broken module fails the whole set
	if err := os.WriteFile(filepath.Join(dir, "broken.frag.spv"), []byte("not spirv"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadShaderSet(dir); !errors.Is(err, core.ErrAssetInvalid) {
		t.Fatalf("broken module: %v", err)
	}
	if _, err := LoadShaderSet(filepath.Join(dir, "missing")); !errors.Is(err, core.ErrAssetInvalid) {
		t.Fatalf("missing directory: %v", err)
	}
}

func TestLensRoundTrip(t *testing.T) {
	want := passes.DefaultLensSystem()
	data, err := EncodeLens(want)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "lens.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadLens(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != want.Name || got.SensorZ != want.SensorZ || len(got.Surfaces) != len(want.Surfaces) {
		t.Fatalf("got %+v", got)
	}
	for i := range want.Surfaces {
		if got.Surfaces[i] != want.Surfaces[i] {
			t.Errorf("surface %d: %+v, want %+v", i, got.Surfaces[i], want.Surfaces[i])
		}
	}
}

func TestDecodeLensRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"syntax":      `name = `,
		"unknown key": "name = \"x\"\nfocal = 50\n",
		"no stop": `
name = "nostop"
[sensor]
z = 0.05
width = 0.036
height = 0.024
[[surface]]
radius = 0.05
z = 0.0
ior = 1.5
aperture = 0.02
[[surface]]
radius = -0.05
z = 0.01
ior = 1.0
aperture = 0.02
`,
	}
	for name, src := range cases {
		if _, err := DecodeLens([]byte(src)); !errors.Is(err, core.ErrAssetInvalid) {
			t.Errorf("%s: expected an invalid asset error, got %v", name, err)
		}
	}
}
