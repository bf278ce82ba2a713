package assets

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/simcam/engine/assets/loaders"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
)

func spirv() []byte {
	out := make([]byte, 0, 20)
	for _, w := range []uint32{0x07230203, 0x00010000, 0, 1, 0} {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func waitChange(t *testing.T, am *AssetManager, kind Kind) Change {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-am.Changes():
			if c.Kind == kind {
				return c
			}
		case <-timeout:
			t.Fatalf("no %s change reported", kind)
		}
	}
}

func TestWatchIndexesAndReportsChanges(t *testing.T) {
	dir := t.TempDir()
	shaders := filepath.Join(dir, "shaders")
	if err := os.Mkdir(shaders, 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(shaders, "composite.frag.spv")
	if err := os.WriteFile(existing, spirv(), 0o644); err != nil {
		t.Fatal(err)
	}
	lens, err := loaders.EncodeLens(passes.DefaultLensSystem())
	if err != nil {
		t.Fatal(err)
	}

	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	defer am.Close()
	if err := am.Watch(dir); err != nil {
		t.Fatal(err)
	}
	if got := am.Assets(KindShader); len(got) != 1 || got[0].Path != filepath.Clean(existing) {
		t.Fatalf("indexed shaders %+v", got)
	}
	code, err := am.LoadAsset(existing)
	if err != nil {
		t.Fatal(err)
	}
	if len(code.([]byte)) != 20 {
		t.Fatalf("loaded %d bytes", len(code.([]byte)))
	}

	lensPath := filepath.Join(dir, "lens.toml")
	if err := os.WriteFile(lensPath, lens, 0o644); err != nil {
		t.Fatal(err)
	}
	c := waitChange(t, am, KindLens)
	if c.Path != filepath.Clean(lensPath) {
		t.Fatalf("change for %s", c.Path)
	}
	v, err := am.LoadAsset(lensPath)
	if err != nil {
		t.Fatal(err)
	}
	if l := v.(*passes.LensSystem); l.Name != "default" {
		t.Fatalf("lens %q", l.Name)
	}

	if err := os.WriteFile(existing, append(spirv(), 0, 0, 0, 0), 0o644); err != nil {
		t.Fatal(err)
	}
	waitChange(t, am, KindShader)
}

func TestLoadAssetErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.comp.spv")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	defer am.Close()
	if err := am.Watch(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := am.LoadAsset(bad); !errors.Is(err, core.ErrAssetInvalid) {
		t.Fatalf("invalid module: %v", err)
	}
	if _, err := am.LoadAsset(filepath.Join(dir, "unknown.spv")); !errors.Is(err, core.ErrAssetInvalid) {
		t.Fatalf("unindexed asset: %v", err)
	}
	if err := am.Close(); err != nil {
		t.Fatal(err)
	}
	if err := am.Watch(dir); err == nil {
		t.Fatalf("watch after close succeeded")
	}
}
