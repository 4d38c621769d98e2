package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Models is the set of actor models a client can instantiate.
type Models struct {
	DefaultModel string
	ByName       map[string]ModelDef
	Digest       string
}

type ModelDef struct {
	Name  string    `yaml:"name" json:"name"`
	Box   BoxDef    `yaml:"bbox" json:"bbox"`
	Clips []ClipDef `yaml:"clips" json:"clips"`
}

// BoxDef is the model-space bounding box: a center offset and half extents.
type BoxDef struct {
	Center      [3]float64 `yaml:"center" json:"center"`
	HalfExtents [3]float64 `yaml:"half_extents" json:"half_extents"`
}

type ClipDef struct {
	Name     string  `yaml:"name" json:"name"`
	Duration float64 `yaml:"duration" json:"duration"` // seconds
}

// File is the on-disk layout of models.yaml.
type File struct {
	DefaultModel string     `yaml:"default_model" json:"default_model"`
	Models       []ModelDef `yaml:"models" json:"models"`
}

// RequiredClips are the clips every actor model needs: actors start idle and move by walking.
var RequiredClips = []string{"idle", "walk"}

func Load(path string) (*Models, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Models, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("models.yaml: %w", err)
	}
	out := &Models{
		DefaultModel: strings.TrimSpace(f.DefaultModel),
		ByName:       map[string]ModelDef{},
		Digest:       sha256Hex(raw),
	}
	for _, m := range f.Models {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, fmt.Errorf("models.yaml: empty model name")
		}
		if _, dup := out.ByName[m.Name]; dup {
			return nil, fmt.Errorf("models.yaml: duplicate model %q", m.Name)
		}
		seen := map[string]bool{}
		for _, c := range m.Clips {
			if c.Name == "" {
				return nil, fmt.Errorf("models.yaml: %s: empty clip name", m.Name)
			}
			if c.Duration <= 0 {
				return nil, fmt.Errorf("models.yaml: %s/%s: duration must be > 0", m.Name, c.Name)
			}
			if seen[c.Name] {
				return nil, fmt.Errorf("models.yaml: %s: duplicate clip %q", m.Name, c.Name)
			}
			seen[c.Name] = true
		}
		for _, name := range RequiredClips {
			if !seen[name] {
				return nil, fmt.Errorf("models.yaml: %s: missing required clip %q", m.Name, name)
			}
		}
		for i := 0; i < 3; i++ {
			if m.Box.HalfExtents[i] < 0 {
				return nil, fmt.Errorf("models.yaml: %s: negative half extent", m.Name)
			}
		}
		out.ByName[m.Name] = m
	}
	if out.DefaultModel == "" {
		return nil, fmt.Errorf("models.yaml: missing default_model")
	}
	if _, ok := out.ByName[out.DefaultModel]; !ok {
		return nil, fmt.Errorf("models.yaml: default_model %q not defined", out.DefaultModel)
	}
	return out, nil
}

// Lookup returns the named model, falling back to the default model for unknown names.
// The boolean reports whether the name itself was found.
func (m *Models) Lookup(name string) (ModelDef, bool) {
	if d, ok := m.ByName[strings.TrimSpace(name)]; ok {
		return d, true
	}
	return m.ByName[m.DefaultModel], false
}

func (m *Models) Names() []string {
	out := make([]string, 0, len(m.ByName))
	for n := range m.ByName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Clip returns the named clip of a model.
func (d ModelDef) Clip(name string) (ClipDef, bool) {
	for _, c := range d.Clips {
		if c.Name == name {
			return c, true
		}
	}
	return ClipDef{}, false
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
