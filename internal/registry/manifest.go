package registry

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// PackManifest represents parsed PACK.md frontmatter metadata.
type PackManifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Author      string `yaml:"author"`
}

// ToolDecl is one [[tools]] entry from a pack's tools.toml. Handler
// names a callable in the handler catalog the registry was built with.
type ToolDecl struct {
	Name        string               `toml:"name"`
	Description string               `toml:"description"`
	Handler     string               `toml:"handler"`
	Params      map[string]ParamSpec `toml:"params"`
}

type packTOML struct {
	Tools []ToolDecl `toml:"tools"`
}

// parseManifest extracts YAML frontmatter from PACK.md.
func parseManifest(path string) (*PackManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	var inFrontmatter bool
	var yamlLines []string

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			if inFrontmatter {
				break // end of frontmatter
			}
			inFrontmatter = true
			continue
		}
		if inFrontmatter {
			yamlLines = append(yamlLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(yamlLines) == 0 {
		return nil, fmt.Errorf("no YAML frontmatter found in %s", path)
	}

	var manifest PackManifest
	if err := yaml.Unmarshal([]byte(strings.Join(yamlLines, "\n")), &manifest); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &manifest, nil
}

// parseToolsTOML loads the [[tools]] declarations from a tools.toml file.
func parseToolsTOML(path string) ([]ToolDecl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools.toml: %w", err)
	}

	var decls packTOML
	if err := toml.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("parse tools.toml: %w", err)
	}
	return decls.Tools, nil
}
