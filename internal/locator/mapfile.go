// File: internal/locator/mapfile.go
package locator

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Map is a named collection of element specs, typically loaded from a
// locators.yaml checked in next to the test suite.
type Map map[string]ElementSpec

// UnmarshalYAML lets map files use alias strategy spellings and rejects
// malformed descriptors at load time.
func (d *Descriptor) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Strategy string `yaml:"strategy"`
		Value    string `yaml:"value"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := New(raw.Strategy, raw.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LoadMap reads a locator map file.
//
// Layout:
//
//	elements:
//	  login_button:
//	    primary: {strategy: id, value: submit}
//	    fallbacks:
//	      - {strategy: css, value: "#submit"}
func LoadMap(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locator map %s: %w", path, err)
	}
	return ParseMap(data)
}

// ParseMap decodes and validates locator map content.
func ParseMap(data []byte) (Map, error) {
	var doc struct {
		Elements map[string]ElementSpec `yaml:"elements"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse locator map: %w", err)
	}
	if len(doc.Elements) == 0 {
		return nil, fmt.Errorf("locator map declares no elements")
	}
	m := make(Map, len(doc.Elements))
	for name, spec := range doc.Elements {
		spec.Name = name
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("element %q: %w", name, err)
		}
		m[name] = spec
	}
	return m, nil
}

// Names returns the element names, sorted for deterministic iteration.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
