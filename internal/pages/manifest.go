// Package pages loads declarative page manifests. A manifest names the UI
// pages a gate should open at boot, so deployments can describe their
// surfaces in a file instead of code.
package pages

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Definition describes one UI page: the title it lists under, the URL it
// reports to clients, and the script that backs it.
type Definition struct {
	Title string `yaml:"title" toml:"title"`
	URL   string `yaml:"url" toml:"url"`
	// Script is inline page code. ScriptFile points at an external file,
	// resolved relative to the manifest; when both are set, the file wins.
	Script     string `yaml:"script" toml:"script"`
	ScriptFile string `yaml:"script_file" toml:"script_file"`
}

// Manifest is the root structure of a pages file.
type Manifest struct {
	Pages []Definition `yaml:"pages" toml:"pages"`
}

// Load reads a manifest from a YAML or TOML file, chosen by extension,
// and resolves external scripts.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	switch filepath.Ext(path) {
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i := range m.Pages {
		d := &m.Pages[i]
		if d.ScriptFile == "" {
			continue
		}
		file := d.ScriptFile
		if !filepath.IsAbs(file) {
			file = filepath.Join(base, file)
		}
		script, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("page %q: %w", d.Title, err)
		}
		d.Script = string(script)
	}

	return &m, nil
}

// Validate checks required fields.
func (m *Manifest) Validate() error {
	if len(m.Pages) == 0 {
		return fmt.Errorf("manifest defines no pages")
	}
	for i, d := range m.Pages {
		if d.Title == "" {
			return fmt.Errorf("page %d: title is required", i)
		}
	}
	return nil
}
