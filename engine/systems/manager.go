package systems

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
)

type SystemManagerConfig struct {
	// Workers defaults to the number of CPUs.
	Workers   int
	QueueSize int
	Decode    DecodeFunc
}

// SystemManager owns the job, texture and mesh systems and shuts them down
// in dependency order.
type SystemManager struct {
	jobSystem     *JobSystem
	textureSystem *TextureSystem
	meshSystem    *MeshSystem
}

func NewSystemManager(cfg SystemManagerConfig, device gpu.Device, allocator *memory.Allocator, tracker *lifetime.Tracker) (*SystemManager, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	js, err := NewJobSystem(cfg.Workers, cfg.QueueSize)
	if err != nil {
		return nil, err
	}
	ts, err := NewTextureSystem(device, allocator, js, cfg.Decode)
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		jobSystem:     js,
		textureSystem: ts,
		meshSystem:    NewMeshSystem(allocator, tracker),
	}, nil
}

func (sm *SystemManager) Jobs() *JobSystem         { return sm.jobSystem }
func (sm *SystemManager) Textures() *TextureSystem { return sm.textureSystem }
func (sm *SystemManager) Meshes() *MeshSystem      { return sm.meshSystem }

// LoadScene loads path with loader, uploads its images and geometry and
// returns the scene with a handle per image file.
func (sm *SystemManager) LoadScene(loader SceneLoader, path string) (*Scene, map[string]Handle, error) {
	data, err := loader.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load scene %s: %w", path, err)
	}
	handles, err := sm.textureSystem.LoadFiles(data.Images)
	if err != nil {
		return nil, nil, err
	}
	if err := sm.meshSystem.Upload(data.Scene); err != nil {
		return nil, nil, err
	}
	byPath := make(map[string]Handle, len(handles))
	for i, h := range handles {
		byPath[data.Images[i]] = h
	}
	core.LogInfo("scene %s: %d nodes, %d textures", path, len(data.Scene.Nodes), len(handles))
	return data.Scene, byPath, nil
}

// Shutdown releases meshes and textures, then stops the workers. The GPU
// must be idle.
func (sm *SystemManager) Shutdown() error {
	return errors.Join(
		sm.meshSystem.Shutdown(),
		sm.textureSystem.Shutdown(),
		sm.jobSystem.Shutdown(),
	)
}
