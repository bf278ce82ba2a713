package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/simcam/engine/assets/loaders"
	"github.com/spaghettifunk/simcam/engine/core"
)

type Kind int

const (
	KindNone Kind = iota
	KindShader
	KindLens
)

func (k Kind) String() string {
	switch k {
	case KindShader:
		return "shader"
	case KindLens:
		return "lens"
	}
	return "none"
}

type AssetInfo struct {
	Path       string
	Kind       Kind
	LastLoaded time.Time
}

/** @brief A watched asset was created or rewritten on disk. */
type Change struct {
	Kind Kind
	Path string
}

const changeQueue = 16

/**
 * @brief Indexes the shader and lens files under the watched directories and
 * reports edits to them on Changes, for hot reload.
 */
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[Kind]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan Change
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[Kind]Loader),
		fsnotify: fsWatch,
		changes:  make(chan Change, changeQueue),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	am.registerLoader(KindShader, &loaders.ShaderLoader{})
	am.registerLoader(KindLens, &loaders.LensLoader{})
	go am.start()
	return am, nil
}

// Watch starts watching the named directories and all their sub-directories.
func (am *AssetManager) Watch(dirs ...string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	for _, dir := range dirs {
		if err := am.watchRecursive(dir); err != nil {
			return err
		}
		core.LogDebug("watching %s for asset changes", dir)
	}
	return nil
}

// Changes delivers edits to known assets. Edits are dropped while the queue is full.
func (am *AssetManager) Changes() <-chan Change {
	return am.changes
}

func (am *AssetManager) registerLoader(kind Kind, loader Loader) {
	am.loaders[kind] = loader
}

// LoadAsset loads an indexed asset with the loader for its kind.
func (am *AssetManager) LoadAsset(path string) (interface{}, error) {
	path = filepath.Clean(path)
	am.mutex.RLock()
	asset, exists := am.assets[path]
	am.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: not indexed: %s", core.ErrAssetInvalid, path)
	}

	loader, loaderExists := am.loaders[asset.Kind]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for %s assets", asset.Kind)
	}
	v, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	asset.LastLoaded = time.Now()
	am.assets[path] = asset
	am.mutex.Unlock()
	return v, nil
}

// Assets returns the indexed assets of the given kind.
func (am *AssetManager) Assets(kind Kind) []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []AssetInfo
	for _, a := range am.assets {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func (am *AssetManager) Close() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("cannot watch %s: %s", e.Name, err.Error())
					}
				}
				continue
			}
			// editors often replace files, which shows up as a rename or create
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				am.handleFileEvent(e.Name, err == nil)
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			close(am.changes)
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.index(filepath.Clean(walkPath))
		return nil
	})
}

func (am *AssetManager) index(path string) (Kind, bool) {
	kind := determineAssetKind(path)
	if kind == KindNone {
		return kind, false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{Path: path, Kind: kind}
	return kind, true
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string, exists bool) {
	path = filepath.Clean(path)
	if !exists {
		am.removeAsset(path)
		return
	}
	kind, ok := am.index(path)
	if !ok {
		return
	}
	select {
	case am.changes <- Change{Kind: kind, Path: path}:
	default:
		core.LogDebug("asset change queue full, dropping %s", path)
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func determineAssetKind(path string) Kind {
	switch filepath.Ext(path) {
	case ".spv":
		return KindShader
	case ".toml":
		return KindLens
	default:
		return KindNone
	}
}
