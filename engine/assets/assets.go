package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
)

var (
	ErrClosed   = errors.New("asset manager already closed")
	ErrNoLoader = errors.New("no loader registered for asset type")
)

type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
}

type subscription struct {
	paths map[string]bool
	ch    chan string
}

// AssetManager indexes the asset directory, loads assets by path and tells
// subscribers when watched files change on disk.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[loaders.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool

	// watched counts the users of every directory watch.
	watched map[string]int
	subs    map[int]*subscription
	nextSub int
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[loaders.ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		watched:  make(map[string]int),
		subs:     make(map[int]*subscription),
	}

	am.RegisterLoader(loaders.ResourceTypeBinary, &loaders.BinaryLoader{})
	am.RegisterLoader(loaders.ResourceTypeShader, &loaders.ShaderLoader{})
	am.RegisterLoader(loaders.ResourceTypeImage, &loaders.ImageLoader{})
	am.RegisterLoader(loaders.ResourceTypeModel, &loaders.ModelLoader{})
	am.RegisterLoader(loaders.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.RegisterLoader(loaders.ResourceTypeBitmapFont, &loaders.BitmapFontLoader{})
	am.RegisterLoader(loaders.ResourceTypeGraph, &loaders.GraphLoader{})

	go am.start()
	return am, nil
}

// Initialize indexes and watches assetsDir and all its sub-directories.
func (am *AssetManager) Initialize(assetsDir string) error {
	dir, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	return am.watchRecursive(dir)
}

// RegisterLoader replaces the loader of an asset type.
func (am *AssetManager) RegisterLoader(assetType loaders.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// LoadAsset loads the file at path with the loader of its type.
func (am *AssetManager) LoadAsset(path string) (*loaders.Resource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	assetType := loaders.TypeOf(abs)

	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil, ErrClosed
	}
	loader, ok := am.loaders[assetType]
	if ok {
		am.assets[abs] = AssetInfo{Path: abs, Type: assetType, LastLoaded: time.Now()}
	}
	am.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s (%s): %w", path, assetType, ErrNoLoader)
	}

	res, err := loader.Load(abs)
	if err != nil {
		return nil, err
	}
	core.LogDebug("loaded %s asset %s", assetType, abs)
	return res, nil
}

// Assets returns the indexed assets of a type.
func (am *AssetManager) Assets(assetType loaders.ResourceType) []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []AssetInfo
	for _, a := range am.assets {
		if a.Type == assetType {
			out = append(out, a)
		}
	}
	return out
}

// Subscribe reports every create or write of the given files until cancel
// is called. Events are dropped while the channel is full.
func (am *AssetManager) Subscribe(paths ...string) (<-chan string, func()) {
	sub := &subscription{paths: map[string]bool{}, ch: make(chan string, 16)}
	var dirs []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			core.LogWarn("cannot watch %s: %s", p, err)
			continue
		}
		sub.paths[abs] = true
		dirs = append(dirs, filepath.Dir(abs))
	}

	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := am.nextSub
	am.nextSub++
	am.subs[id] = sub
	am.mutex.Unlock()

	// Watch directories, not files: editors replace files on save.
	var added []string
	for _, d := range dirs {
		if err := am.add(d); err != nil {
			core.LogWarn("cannot watch %s: %s", d, err)
			continue
		}
		added = append(added, d)
	}

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			am.mutex.Lock()
			// Shutdown closes what is still subscribed.
			if _, ok := am.subs[id]; ok {
				delete(am.subs, id)
				close(sub.ch)
			}
			am.mutex.Unlock()
			for _, d := range added {
				am.remove(d)
			}
		})
	}
}

// Shutdown stops watching and closes every subscription.
func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
}

func (am *AssetManager) add(dir string) error {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return ErrClosed
	}
	if am.watched[dir] == 0 {
		if err := am.fsnotify.Add(dir); err != nil {
			return err
		}
	}
	am.watched[dir]++
	return nil
}

func (am *AssetManager) remove(dir string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.watched[dir] == 0 {
		return
	}
	am.watched[dir]--
	if am.watched[dir] == 0 {
		delete(am.watched, dir)
		if !am.isClosed {
			am.fsnotify.Remove(dir)
		}
	}
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			am.mutex.Lock()
			for id, sub := range am.subs {
				close(sub.ch)
				delete(am.subs, id)
			}
			am.mutex.Unlock()
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("cannot watch %s: %s", e.Name, err)
			}
			return
		}
	}
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		am.removeAsset(e.Name)
		return
	}
	if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	am.handleFileEvent(e.Name)

	am.mutex.RLock()
	defer am.mutex.RUnlock()
	for _, sub := range am.subs {
		if !sub.paths[e.Name] {
			continue
		}
		select {
		case sub.ch <- e.Name:
		default:
		}
	}
}

// watchRecursive adds dir and every directory under it to the watch list
// and indexes the files it finds.
func (am *AssetManager) watchRecursive(dir string) error {
	return filepath.Walk(dir, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// handleFileEvent indexes a created or modified file.
func (am *AssetManager) handleFileEvent(path string) {
	assetType := loaders.TypeOf(path)
	if assetType == loaders.ResourceTypeNone {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if _, ok := am.assets[path]; !ok {
		am.assets[path] = AssetInfo{Path: path, Type: assetType}
	}
}

// removeAsset drops a deleted file from the index.
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, path)
}
