package shadergraph

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
)

// Check validates the description at path and compiles every stage shader
// with compiler, resolving sampled textures and parameters against the
// reflected interface. No device is needed.
func Check(path string, compiler *shader.Compiler, window gpu.Extent2D, format gpu.Format) error {
	desc, err := ReadDescription(path)
	if err != nil {
		return err
	}
	p, err := desc.plan(window, format)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, name := range p.stages {
		if err := checkStage(desc, p, name, compiler); err != nil {
			return fmt.Errorf("%s: stage %q: %w", path, name, err)
		}
	}
	return nil
}

func checkStage(desc *Description, p *plan, name string, compiler *shader.Compiler) error {
	st := desc.Stages[name]
	file := desc.Path(st.Shader)
	code, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	words, err := compiler.Compile(shader.SourceFromFile(file, code), gpu.StageFragment)
	if err != nil {
		return err
	}
	refl, err := shader.Reflect(words)
	if err != nil {
		return err
	}
	for _, tex := range st.Textures {
		b, ok := refl.BindingByName(tex)
		if !ok || b.Binding > maxBinding {
			return fmt.Errorf("texture %q: check the sampler name in %s: %w", tex, st.Shader, ErrBadBinding)
		}
	}
	members := map[string]bool{}
	for _, pb := range refl.PushBlocks {
		for _, m := range pb.Members {
			members[m.Name] = true
		}
	}
	for _, prm := range p.params[name] {
		if !members[prm.Name] {
			return fmt.Errorf("parameter %q: %w", prm.Name, ErrUnknownParam)
		}
	}
	return nil
}
