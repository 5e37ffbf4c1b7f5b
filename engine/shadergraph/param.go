package shadergraph

import (
	"fmt"

	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/command"
	"github.com/spaghettifunk/prism/engine/renderer/overlay"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

type Kind int

const (
	KindFloat Kind = iota
	KindVec3
)

// Param is a user tunable push constant. Float parameters live in X.
type Param struct {
	Name    string
	Kind    Kind
	Min     pmath.Vec3
	Max     pmath.Vec3
	Default pmath.Vec3
	Value   pmath.Vec3
}

type kindOps struct {
	name   string
	decode func(v interface{}) (pmath.Vec3, error)
	draw   func(ui overlay.UI, p *Param) bool
	push   func(rec *command.Recorder, pl *pipeline.Pipeline, p *Param) error
}

var kinds = [...]kindOps{
	KindFloat: {
		name: "float",
		decode: func(v interface{}) (pmath.Vec3, error) {
			f, err := number(v)
			return pmath.NewVec3(f, 0, 0), err
		},
		draw: func(ui overlay.UI, p *Param) bool {
			changed := false
			ui.TreeNode(fmt.Sprintf("%s (float)", p.Name), func() {
				changed = ui.SliderFloat("value", &p.Value.X, p.Min.X, p.Max.X)
			})
			return changed
		},
		push: func(rec *command.Recorder, pl *pipeline.Pipeline, p *Param) error {
			return rec.PushFloat(pl, p.Name, p.Value.X)
		},
	},
	KindVec3: {
		name: "vec3",
		decode: func(v interface{}) (pmath.Vec3, error) {
			arr, ok := v.([]interface{})
			if !ok || len(arr) != 3 {
				return pmath.Vec3{}, fmt.Errorf("%v is not a three element array: %w", v, ErrBadParam)
			}
			var out [3]float32
			for i, e := range arr {
				f, err := number(e)
				if err != nil {
					return pmath.Vec3{}, err
				}
				out[i] = f
			}
			return pmath.NewVec3(out[0], out[1], out[2]), nil
		},
		draw: func(ui overlay.UI, p *Param) bool {
			changed := false
			ui.TreeNode(fmt.Sprintf("%s (vec3)", p.Name), func() {
				changed = ui.SliderVec3("value", &p.Value, p.Min, p.Max)
			})
			return changed
		},
		push: func(rec *command.Recorder, pl *pipeline.Pipeline, p *Param) error {
			return rec.PushVec3(pl, p.Name, p.Value)
		},
	},
}

func (k Kind) String() string {
	if int(k) < len(kinds) {
		return kinds[k].name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func ParseKind(name string) (Kind, error) {
	for k, ops := range kinds {
		if ops.name == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownParamType)
}

// ParseParam decodes one parameter entry. Default is clamped into
// [Min, Max].
func ParseParam(d ParamDesc) (Param, error) {
	if d.Name == "" {
		return Param{}, fmt.Errorf("parameter without a name: %w", ErrBadParam)
	}
	k, err := ParseKind(d.Type)
	if err != nil {
		return Param{}, fmt.Errorf("parameter %q: %w", d.Name, err)
	}
	p := Param{Name: d.Name, Kind: k}
	for _, f := range []struct {
		dst *pmath.Vec3
		v   interface{}
		key string
	}{{&p.Min, d.Min, "min"}, {&p.Max, d.Max, "max"}, {&p.Default, d.Default, "default"}} {
		if *f.dst, err = kinds[k].decode(f.v); err != nil {
			return Param{}, fmt.Errorf("parameter %q %s: %w", d.Name, f.key, err)
		}
	}
	p.Default = pmath.NewVec3(
		pmath.Clamp(p.Default.X, p.Min.X, p.Max.X),
		pmath.Clamp(p.Default.Y, p.Min.Y, p.Max.Y),
		pmath.Clamp(p.Default.Z, p.Min.Z, p.Max.Z),
	)
	p.Value = p.Default
	return p, nil
}

func number(v interface{}) (float32, error) {
	switch n := v.(type) {
	case float64:
		return float32(n), nil
	case float32:
		return n, nil
	case int64:
		return float32(n), nil
	case int:
		return float32(n), nil
	}
	return 0, fmt.Errorf("%v is not a number: %w", v, ErrBadParam)
}

func (p *Param) draw(ui overlay.UI) bool { return kinds[p.Kind].draw(ui, p) }

func (p *Param) push(rec *command.Recorder, pl *pipeline.Pipeline) error {
	return kinds[p.Kind].push(rec, pl, p)
}
