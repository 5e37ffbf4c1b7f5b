package systems

import (
	"errors"
	"image"
	"testing"

	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
)

type sceneLoaderFunc func(path string) (*SceneData, error)

func (f sceneLoaderFunc) Load(path string) (*SceneData, error) { return f(path) }

func TestSystemManagerLoadScene(t *testing.T) {
	dev := gputest.NewDevice()
	alloc, err := memory.New(dev, memory.Config{FramesInFlight: 2, BlockSize: 1 << 16, BlockCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	decode := func(path string) (*image.RGBA, error) { return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil }
	sm, err := NewSystemManager(SystemManagerConfig{Workers: 2, Decode: decode}, dev, alloc, lifetime.New(2))
	if err != nil {
		t.Fatal(err)
	}

	loader := sceneLoaderFunc(func(path string) (*SceneData, error) {
		b := NewSceneBuilder(nil)
		root := b.AddNode("root", pmath.NewMat4Identity())
		mesh := b.AddNode("mesh", pmath.NewMat4Identity())
		vertices, indices := triangle()
		if err := b.SetMesh(mesh, vertices, indices); err != nil {
			return nil, err
		}
		if err := b.SetTexture(mesh, "brick.png"); err != nil {
			return nil, err
		}
		b.Link(root, mesh)
		scene, err := b.Build()
		return &SceneData{Scene: scene, Images: []string{"brick.png"}}, err
	})

	scene, handles, err := sm.LoadScene(loader, "scene.obj")
	if err != nil {
		t.Fatal(err)
	}
	if !handles["brick.png"].Valid() || sm.Textures().Count() != 1 {
		t.Fatalf("textures:\nhave %v, %d loaded\nwant a valid brick.png handle", handles, sm.Textures().Count())
	}
	if sm.Meshes().Scene() != scene {
		t.Fatal("mesh system holds another scene")
	}

	broken := sceneLoaderFunc(func(string) (*SceneData, error) { return nil, ErrEmptyScene })
	if _, _, err := sm.LoadScene(broken, "empty.obj"); !errors.Is(err, ErrEmptyScene) {
		t.Fatalf("LoadScene:\nhave %v\nwant %v", err, ErrEmptyScene)
	}

	if err := sm.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if dev.Live("image") != 0 || dev.Live("sampler") != 0 {
		t.Fatalf("after Shutdown:\nhave %d images %d samplers\nwant none", dev.Live("image"), dev.Live("sampler"))
	}
}
