// Package shader turns shader sources into SPIR-V and reflects the result.
package shader

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type Language int

const (
	LanguageSPIRV Language = iota
	LanguageWGSL
	LanguageGLSL
)

func (l Language) String() string {
	switch l {
	case LanguageSPIRV:
		return "spirv"
	case LanguageWGSL:
		return "wgsl"
	case LanguageGLSL:
		return "glsl"
	}
	return fmt.Sprintf("language(%d)", int(l))
}

var (
	ErrNotInitialized     = errors.New("shader compiler is not initialized")
	ErrNoBackend          = errors.New("no shader backend for language")
	ErrBackendUnavailable = errors.New("shader backend unavailable")
	ErrCompile            = errors.New("shader compilation failed")
)

// Source is shader code plus enough context to pick a backend.
type Source struct {
	Name     string
	Language Language
	Code     []byte
}

// SourceFromFile guesses the language from the file extension: .spv is
// SPIR-V, .wgsl is WGSL and everything else is GLSL.
func SourceFromFile(path string, code []byte) Source {
	lang := LanguageGLSL
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		lang = LanguageSPIRV
	case ".wgsl":
		lang = LanguageWGSL
	}
	return Source{Name: path, Language: lang, Code: code}
}

// Backend compiles one source language to SPIR-V.
type Backend interface {
	Init() error
	Compile(src Source, stage gpu.ShaderStage) ([]uint32, error)
	Shutdown()
}

// Compiler is the process wide compiler handle. Init must run before the
// first Compile and Shutdown after the last.
type Compiler struct {
	mu          sync.Mutex
	backends    map[Language]Backend
	initialized bool
}

// NewCompiler returns a compiler with the WGSL (naga) and GLSL (glslc)
// backends registered.
func NewCompiler() *Compiler {
	c := NewCompilerWith()
	c.Register(LanguageWGSL, &NagaBackend{})
	c.Register(LanguageGLSL, &GlslcBackend{})
	return c
}

// NewCompilerWith returns a compiler knowing only SPIR-V plus backends
// registered later.
func NewCompilerWith() *Compiler {
	return &Compiler{backends: map[Language]Backend{}}
}

func (c *Compiler) Register(lang Language, b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends[lang] = b
}

func (c *Compiler) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	for lang, b := range c.backends {
		if err := b.Init(); err != nil {
			if errors.Is(err, ErrBackendUnavailable) {
				core.LogWarn("%s shaders disabled: %s", lang, err)
				continue
			}
			return fmt.Errorf("init %s backend: %w", lang, err)
		}
	}
	c.initialized = true
	core.LogDebug("shader compiler initialized")
	return nil
}

func (c *Compiler) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return
	}
	for _, b := range c.backends {
		b.Shutdown()
	}
	c.initialized = false
}

// Compile returns validated SPIR-V words for src.
func (c *Compiler) Compile(src Source, stage gpu.ShaderStage) ([]uint32, error) {
	c.mu.Lock()
	initialized := c.initialized
	backend := c.backends[src.Language]
	c.mu.Unlock()

	if !initialized {
		return nil, ErrNotInitialized
	}
	if src.Language == LanguageSPIRV {
		return BytesToWords(src.Code)
	}
	if backend == nil {
		return nil, fmt.Errorf("%s: %w", src.Language, ErrNoBackend)
	}
	words, err := backend.Compile(src, stage)
	if err != nil {
		core.LogError("failed to compile %s: %s", src.Name, err)
		return nil, err
	}
	if len(words) < spirvHeaderSize || words[0] != spirvMagic {
		return nil, fmt.Errorf("%s: backend produced %w", src.Name, ErrInvalidSPIRV)
	}
	return words, nil
}

// NagaBackend compiles WGSL in process.
type NagaBackend struct{}

func (NagaBackend) Init() error { return nil }

func (NagaBackend) Compile(src Source, _ gpu.ShaderStage) ([]uint32, error) {
	spirvBytes, err := naga.Compile(string(src.Code))
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader %s: %v: %w", src.Name, err, ErrCompile)
	}
	return BytesToWords(spirvBytes)
}

func (NagaBackend) Shutdown() {}

// GlslcBackend pipes GLSL through the glslc executable found on PATH, the
// same tool the build scripts use for offline compilation.
type GlslcBackend struct {
	// Path overrides the executable lookup.
	Path string
	bin  string
}

func (g *GlslcBackend) Init() error {
	name := g.Path
	if name == "" {
		name = "glslc"
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrBackendUnavailable)
	}
	g.bin = bin
	return nil
}

func (g *GlslcBackend) Compile(src Source, stage gpu.ShaderStage) ([]uint32, error) {
	if g.bin == "" {
		return nil, fmt.Errorf("glslc not found: %w", ErrBackendUnavailable)
	}
	var kind string
	switch stage {
	case gpu.StageVertex:
		kind = "vert"
	case gpu.StageFragment:
		kind = "frag"
	case gpu.StageCompute:
		kind = "comp"
	default:
		return nil, fmt.Errorf("glslc: unsupported stage %s: %w", stage, ErrCompile)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(g.bin, "-fshader-stage="+kind, "--target-env=vulkan1.2", "-o", "-", "-")
	if dir := filepath.Dir(src.Name); src.Name != "" && dir != "" {
		// resolve #include relative to the source file
		cmd.Args = append(cmd.Args[:1], append([]string{"-I", dir}, cmd.Args[1:]...)...)
	}
	cmd.Stdin = bytes.NewReader(src.Code)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("glslc %s: %s: %w", src.Name, strings.TrimSpace(stderr.String()), ErrCompile)
	}
	return BytesToWords(stdout.Bytes())
}

func (g *GlslcBackend) Shutdown() {}
