// File: internal/locator/locator.go
package locator

import (
	"fmt"
	"strings"
)

// Strategy is the closed set of element lookup strategies the driver knows how
// to execute. Anything outside this set is rejected at construction time.
type Strategy string

const (
	StrategyID              Strategy = "id"
	StrategyCSS             Strategy = "css"
	StrategyXPath           Strategy = "xpath"
	StrategyName            Strategy = "name"
	StrategyClass           Strategy = "class"
	StrategyTag             Strategy = "tag"
	StrategyLinkText        Strategy = "link-text"
	StrategyPartialLinkText Strategy = "partial-link-text"
)

// strategyAliases maps the loose spellings found in locator map files and in
// gateway output to canonical strategies. Keys must be lowercase.
var strategyAliases = map[string]Strategy{
	"id":                StrategyID,
	"identifier":        StrategyID,
	"css":               StrategyCSS,
	"css selector":      StrategyCSS,
	"css-selector":      StrategyCSS,
	"xpath":             StrategyXPath,
	"xpath expression":  StrategyXPath,
	"name":              StrategyName,
	"class":             StrategyClass,
	"class name":        StrategyClass,
	"class-name":        StrategyClass,
	"tag":               StrategyTag,
	"tag name":          StrategyTag,
	"tag-name":          StrategyTag,
	"link text":         StrategyLinkText,
	"link-text":         StrategyLinkText,
	"partial link text": StrategyPartialLinkText,
	"partial-link-text": StrategyPartialLinkText,
}

// ParseStrategy normalizes a strategy spelling to its canonical form.
func ParseStrategy(raw string) (Strategy, error) {
	s, ok := strategyAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown locator strategy %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the canonical strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyID, StrategyCSS, StrategyXPath, StrategyName,
		StrategyClass, StrategyTag, StrategyLinkText, StrategyPartialLinkText:
		return true
	}
	return false
}

// Descriptor is one strategy+value pair identifying how to locate an element.
// It is a value type; construct through New so invalid descriptors cannot
// circulate.
type Descriptor struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Value    string   `json:"value" yaml:"value"`
}

// New builds a descriptor, accepting alias spellings for the strategy.
func New(strategy, value string) (Descriptor, error) {
	s, err := ParseStrategy(strategy)
	if err != nil {
		return Descriptor{}, err
	}
	if value == "" {
		return Descriptor{}, fmt.Errorf("locator value must not be empty (strategy %q)", s)
	}
	return Descriptor{Strategy: s, Value: value}, nil
}

// MustNew is New for compile-time constants; it panics on invalid input.
func MustNew(strategy, value string) Descriptor {
	d, err := New(strategy, value)
	if err != nil {
		panic(err)
	}
	return d
}

// Validate re-checks a descriptor that arrived through deserialization.
func (d Descriptor) Validate() error {
	if !d.Strategy.Valid() {
		return fmt.Errorf("unknown locator strategy %q", d.Strategy)
	}
	if d.Value == "" {
		return fmt.Errorf("locator value must not be empty (strategy %q)", d.Strategy)
	}
	return nil
}

// Equal reports exact, case-sensitive equality of both fields.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Strategy == o.Strategy && d.Value == o.Value
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s=%q", d.Strategy, d.Value)
}

// Identity is the stable key under which learned descriptors are grouped in
// the store. It is derived from the primary descriptor only, so it survives
// callers reshuffling their fallback lists.
type Identity string

// identitySep keeps strategy and value unambiguous inside the key; it cannot
// appear in a strategy name and is vanishingly unlikely in a selector.
const identitySep = "\x1f"

// Identity returns the store key for a descriptor used as a primary.
func (d Descriptor) Identity() Identity {
	return Identity(string(d.Strategy) + identitySep + d.Value)
}

func (id Identity) String() string {
	return strings.ReplaceAll(string(id), identitySep, "=")
}

// ElementSpec declares one logical UI target: the preferred locator plus the
// caller's ordered fallbacks.
type ElementSpec struct {
	Name      string       `yaml:"-"`
	Primary   Descriptor   `yaml:"primary"`
	Fallbacks []Descriptor `yaml:"fallbacks"`
}

// Identity of the spec is the identity of its primary descriptor.
func (s ElementSpec) Identity() Identity {
	return s.Primary.Identity()
}

// Validate checks the primary and every fallback descriptor.
func (s ElementSpec) Validate() error {
	if err := s.Primary.Validate(); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	for i, fb := range s.Fallbacks {
		if err := fb.Validate(); err != nil {
			return fmt.Errorf("fallback %d: %w", i, err)
		}
	}
	return nil
}
