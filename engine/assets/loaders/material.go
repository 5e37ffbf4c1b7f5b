package loaders

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
)

var ErrBadMaterial = errors.New("malformed material library")

// Material is the subset of a Wavefront MTL entry the mesh system uses.
type Material struct {
	Name          string
	DiffuseColour pmath.Vec4
	// DiffuseMap is the map_Kd image, resolved against the library's
	// directory. Empty when untextured.
	DiffuseMap string
}

// MaterialLoader reads .mtl libraries into a map keyed by material name.
type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string) (*Resource, error) {
	mats, err := parseMTLFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     ResourceTypeMaterial,
		DataSize: uint64(len(mats)),
		Data:     mats,
	}, nil
}

func (ml *MaterialLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}

func parseMTLFile(filename string) (map[string]*Material, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dir := filepath.Dir(filename)
	materials := map[string]*Material{}
	var current *Material

	scanner := bufio.NewScanner(file)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		fields := strings.Fields(line)
		key, args := fields[0], fields[1:]
		if key != "newmtl" && current == nil {
			return nil, fmt.Errorf("%s:%d: %q before newmtl: %w", filename, lineNo, key, ErrBadMaterial)
		}

		switch key {
		case "newmtl":
			if len(args) != 1 {
				return nil, fmt.Errorf("%s:%d: newmtl takes one name: %w", filename, lineNo, ErrBadMaterial)
			}
			current = &Material{Name: args[0], DiffuseColour: pmath.NewVec4(1, 1, 1, 1)}
			materials[current.Name] = current
		case "Kd":
			if len(args) != 3 {
				return nil, fmt.Errorf("%s:%d: Kd takes three values: %w", filename, lineNo, ErrBadMaterial)
			}
			var rgb [3]float32
			for i, v := range args {
				f, err := strconv.ParseFloat(v, 32)
				if err != nil {
					return nil, fmt.Errorf("%s:%d: Kd value %q: %w", filename, lineNo, v, ErrBadMaterial)
				}
				rgb[i] = float32(f)
			}
			current.DiffuseColour = pmath.NewVec4(rgb[0], rgb[1], rgb[2], current.DiffuseColour.W)
		case "d":
			if len(args) != 1 {
				return nil, fmt.Errorf("%s:%d: d takes one value: %w", filename, lineNo, ErrBadMaterial)
			}
			f, err := strconv.ParseFloat(args[0], 32)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: d value %q: %w", filename, lineNo, args[0], ErrBadMaterial)
			}
			current.DiffuseColour.W = float32(f)
		case "map_Kd":
			if len(args) == 0 {
				return nil, fmt.Errorf("%s:%d: map_Kd without a file: %w", filename, lineNo, ErrBadMaterial)
			}
			// Options such as -s come first; the file name is last.
			name := args[len(args)-1]
			if !filepath.IsAbs(name) {
				name = filepath.Join(dir, name)
			}
			current.DiffuseMap = name
		default:
			core.LogDebug("material %s: ignoring '%s'", current.Name, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return materials, nil
}
