package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/overlay"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/shadergraph"
	"github.com/spaghettifunk/prism/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

var ErrNotInitialized = errors.New("engine is not initialized")

// Engine runs a shader graph in a window with the overlay on top.
// Initialize and Run must be called from the main goroutine.
type Engine struct {
	currentStage Stage
	config       Config
	app          *Application

	input    *core.Input
	clock    *core.Clock
	platform *platform.Platform

	backend   *vulkan.VulkanBackend
	swapchain *vulkan.VulkanSwapchain
	allocator *memory.Allocator
	tracker   *lifetime.Tracker
	compiler  *shader.Compiler

	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	reloader      *shadergraph.Reloader
	overlay       *overlay.Layer
	scheduler     *frame.Scheduler

	hideGUI  atomic.Bool
	stopping atomic.Bool
}

func New(cfg Config, app *Application) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := core.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(level)
	if app == nil {
		app = &Application{}
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	input := core.NewInput()
	return &Engine{
		currentStage: EngineStageBootComplete,
		config:       cfg,
		app:          app,
		input:        input,
		clock:        core.NewClock(),
		platform:     platform.New(input),
		assetManager: am,
	}, nil
}

func (e *Engine) Stage() Stage { return e.currentStage }

// Initialize opens the window and builds the renderer. On failure
// everything created so far is released.
func (e *Engine) Initialize() (err error) {
	e.currentStage = EngineStageInitializing
	defer func() {
		if err != nil {
			core.LogError("failed to initialize the engine: %s", err)
			e.destroy()
			e.currentStage = EngineStageUninitialized
		}
	}()
	cfg := e.config

	title := cfg.Window.Title
	if e.app.Name != "" {
		title = e.app.Name
	}
	if err := e.platform.Startup(title, cfg.Window.X, cfg.Window.Y, cfg.Window.Width, cfg.Window.Height); err != nil {
		return err
	}

	e.backend, err = vulkan.New(e.platform.Window, vulkan.Config{
		ApplicationName: title,
		Validation:      cfg.Renderer.Validation,
		PreferDiscrete:  cfg.Renderer.PreferDiscrete,
		VSync:           cfg.Renderer.VSync,
	})
	if err != nil {
		return err
	}
	device := e.backend.Device()
	core.LogInfo("using %s", device)

	if e.swapchain, err = e.backend.NewSwapchain(e.platform.FramebufferSize()); err != nil {
		return err
	}

	frames := cfg.Renderer.FramesInFlight
	e.allocator, err = memory.New(device, memory.Config{
		FramesInFlight: frames,
		BlockSize:      cfg.Renderer.TransientBlockSize,
		BlockCount:     cfg.Renderer.TransientBlockCount,
	})
	if err != nil {
		return err
	}
	e.tracker = lifetime.New(frames)

	e.compiler = shader.NewCompiler()
	if err := e.compiler.Init(); err != nil {
		return err
	}

	images := &loaders.ImageLoader{}
	e.systemManager, err = systems.NewSystemManager(systems.SystemManagerConfig{
		Workers: cfg.Workers,
		Decode:  images.Decode,
	}, device, e.allocator, e.tracker)
	if err != nil {
		return err
	}

	if err := e.assetManager.Initialize(cfg.Assets); err != nil {
		core.LogWarn("asset directory %s is not indexed: %s", cfg.Assets, err)
	}

	var watcher shadergraph.Watcher
	if cfg.Graph.HotReload {
		watcher = e.assetManager
	}
	deps := shadergraph.Deps{
		Device:     device,
		Compiler:   e.compiler,
		Allocator:  e.allocator,
		Textures:   e.systemManager.Textures(),
		ImageCount: len(e.swapchain.Images()),
		Extent:     e.swapchain.Extent(),
		Format:     e.swapchain.Format(),
	}
	e.reloader, err = shadergraph.NewReloader(cfg.Graph.Path, deps, cfg.graphOptions(), watcher, e.tracker)
	if err != nil {
		return err
	}

	if cfg.Overlay.Enabled {
		if e.overlay, err = e.createOverlay(device); err != nil {
			return err
		}
	}

	e.scheduler, err = frame.New(device, e.swapchain, e.allocator, e.tracker, frame.Options{
		FramesInFlight: frames,
		Depth:          cfg.Renderer.Depth,
		DescriptorPool: cfg.descriptorPool(),
		Input:          e.input,
		Clock:          e.clock,
	})
	if err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized")
	return nil
}

func (e *Engine) createOverlay(device gpu.Device) (*overlay.Layer, error) {
	opts := overlay.Options{
		GUI:   e.gui,
		Input: e.input,
		Stats: e.config.Overlay.Stats,
	}
	if path := e.config.Overlay.Font; path != "" {
		font, err := overlay.LoadFont(path)
		if err != nil {
			core.LogWarn("overlay text disabled: %s", err)
		} else {
			opts.Font = font
			if len(font.Pages) > 0 {
				textures := e.systemManager.Textures()
				h, err := textures.LoadFile(font.Pages[0])
				if err != nil {
					return nil, fmt.Errorf("load font atlas: %w", err)
				}
				if opts.Atlas, err = textures.View(h); err != nil {
					return nil, err
				}
			}
		}
	}
	return overlay.NewLayer(device, e.compiler, e.swapchain, opts)
}

// Run drives frames until the window closes, Escape is pressed or Stop is
// called, then releases everything.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	defer e.destroy()

	loop := frame.Loop{
		Poll:    e.poll,
		Render:  e.render,
		Extent:  e.platform.FramebufferSize,
		Resized: e.resized,
		Cleanup: e.releaseGraph,
	}
	if e.overlay != nil {
		loop.Overlay = e.overlay
	}
	err := e.scheduler.Run(loop)
	e.currentStage = EngineStageShuttingDown
	if err != nil {
		core.LogError("frame loop stopped: %s", err)
	}
	return err
}

// Stop ends Run. It is safe to call from any goroutine.
func (e *Engine) Stop() {
	e.stopping.Store(true)
}

func (e *Engine) poll() bool {
	if e.stopping.Load() {
		core.LogInfo("shutdown requested, shutting down.")
		return false
	}
	if !e.platform.PumpMessages() {
		core.LogInfo("window closed, shutting down.")
		return false
	}
	if e.input.KeyPressed(core.KEY_ESCAPE) {
		core.LogInfo("escape pressed, shutting down.")
		return false
	}
	if e.input.KeyPressed(core.KEY_F5) {
		e.reloader.Trigger()
	}
	if e.input.KeyPressed(core.KEY_F1) {
		e.hideGUI.Store(!e.hideGUI.Load())
	}
	if e.platform.Resized() {
		e.scheduler.Resize()
	}
	// A failed reload is logged and keeps the previous graph running.
	_, _ = e.reloader.Poll()
	return true
}

func (e *Engine) render(ctx *frame.Context) error {
	if e.app.Update != nil {
		if err := e.app.Update(ctx, e.reloader.Graph()); err != nil {
			return err
		}
	}
	return e.reloader.Render(ctx)
}

func (e *Engine) resized(extent gpu.Extent2D) error {
	e.reloader.Resize(extent)
	if e.app.OnResize != nil {
		return e.app.OnResize(extent)
	}
	return nil
}

// gui runs on the overlay goroutine.
func (e *Engine) gui(ui overlay.UI) {
	if e.hideGUI.Load() {
		return
	}
	e.reloader.RenderGUI(ui)
	if e.app.GUI != nil {
		e.app.GUI(ui)
	}
}

// releaseGraph destroys what the overlay and the graph own. The device must
// be idle.
func (e *Engine) releaseGraph() {
	if e.reloader != nil {
		e.reloader.Close()
		e.reloader = nil
	}
	if e.overlay != nil {
		e.overlay.Destroy()
		e.overlay = nil
	}
}

// destroy releases everything in reverse creation order.
func (e *Engine) destroy() {
	if e.backend != nil && e.backend.Device() != nil {
		if err := e.backend.Device().WaitIdle(); err != nil {
			core.LogError("failed to wait for device idle: %s", err)
		}
	}
	if e.scheduler != nil {
		e.scheduler.Destroy()
		e.scheduler = nil
	}
	e.releaseGraph()
	if e.systemManager != nil {
		if err := e.systemManager.Shutdown(); err != nil {
			core.LogError(err.Error())
		}
		e.systemManager = nil
	}
	if e.tracker != nil {
		e.tracker.Flush()
	}
	if e.allocator != nil {
		e.allocator.Destroy()
		e.allocator = nil
	}
	if e.compiler != nil {
		e.compiler.Shutdown()
	}
	if e.swapchain != nil {
		e.swapchain.Destroy()
		e.swapchain = nil
	}
	if e.backend != nil {
		e.backend.Shutdown()
		e.backend = nil
	}
	e.assetManager.Shutdown()
	if err := e.platform.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
}
