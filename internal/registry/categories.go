// Package registry loads the category registry: a YAML sidecar mapping
// category IDs to display labels and SEO keyword hints. The directory
// platform owns category taxonomy; the pipeline only reads it to build
// better prompts, so every lookup degrades gracefully when the file is
// absent or a category is unknown.
package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Category describes one entry in the taxonomy.
type Category struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords,omitempty"`
}

// Registry is the loaded category taxonomy.
type Registry struct {
	Categories map[string]Category `yaml:"categories"`
}

// LoadCategories reads the registry from a YAML file.
func LoadCategories(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}
	return &reg, nil
}

// Label returns the display label for a category ID, falling back to a
// humanized form of the ID itself. Safe on a nil Registry.
func (r *Registry) Label(id string) string {
	if id == "" {
		return ""
	}
	if r != nil {
		if c, ok := r.Categories[id]; ok && c.Label != "" {
			return c.Label
		}
	}
	return strings.ReplaceAll(id, "-", " ")
}

// Keywords returns the SEO keyword hints for a category ID, or nil when
// the category is unknown. Safe on a nil Registry.
func (r *Registry) Keywords(id string) []string {
	if r == nil {
		return nil
	}
	return r.Categories[id].Keywords
}
