// File: internal/locator/locator_test.go
package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	cases := map[string]Strategy{
		"id":                StrategyID,
		"Identifier":        StrategyID,
		"css":               StrategyCSS,
		"CSS Selector":      StrategyCSS,
		"css-selector":      StrategyCSS,
		"xpath":             StrategyXPath,
		"xpath expression":  StrategyXPath,
		"name":              StrategyName,
		"class name":        StrategyClass,
		"tag name":          StrategyTag,
		"link text":         StrategyLinkText,
		"partial link text": StrategyPartialLinkText,
		"  xpath  ":         StrategyXPath,
	}
	for raw, want := range cases {
		got, err := ParseStrategy(raw)
		require.NoError(t, err, "raw %q", raw)
		assert.Equal(t, want, got, "raw %q", raw)
	}

	_, err := ParseStrategy("telepathy")
	require.Error(t, err)
}

func TestNewRejectsEmptyValue(t *testing.T) {
	_, err := New("css", "")
	require.Error(t, err)
}

func TestDescriptorEqualIsCaseSensitive(t *testing.T) {
	a := MustNew("css", "#Submit")
	b := MustNew("css", "#submit")
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(MustNew("css", "#Submit")))
}

func TestIdentityStableAcrossFallbackChanges(t *testing.T) {
	primary := MustNew("id", "submit")
	a := ElementSpec{Name: "a", Primary: primary, Fallbacks: []Descriptor{MustNew("css", "#submit")}}
	b := ElementSpec{Name: "b", Primary: primary}

	assert.Equal(t, a.Identity(), b.Identity(),
		"identity derives from the primary descriptor only")
	assert.NotEqual(t, a.Identity(), MustNew("name", "submit").Identity())
}

func TestValidateCatchesBadFallback(t *testing.T) {
	spec := ElementSpec{
		Primary:   MustNew("id", "submit"),
		Fallbacks: []Descriptor{{Strategy: "css", Value: ""}},
	}
	err := spec.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback 0")
}

func TestParseMap(t *testing.T) {
	data := []byte(`
elements:
  login_button:
    primary: {strategy: id, value: submit}
    fallbacks:
      - {strategy: "css selector", value: "#submit"}
      - {strategy: xpath, value: "(//button[normalize-space()='Submit'])[1]"}
      - {strategy: name, value: submit}
  search_box:
    primary: {strategy: name, value: q}
`)
	m, err := ParseMap(data)
	require.NoError(t, err)
	require.Len(t, m, 2)

	lb := m["login_button"]
	assert.Equal(t, "login_button", lb.Name)
	assert.Equal(t, MustNew("id", "submit"), lb.Primary)
	require.Len(t, lb.Fallbacks, 3)
	assert.Equal(t, StrategyCSS, lb.Fallbacks[0].Strategy,
		"alias spellings normalize at load time")
	assert.Equal(t, []string{"login_button", "search_box"}, m.Names())
}

func TestParseMapRejectsBadDescriptor(t *testing.T) {
	data := []byte(`
elements:
  broken:
    primary: {strategy: mindreading, value: whatever}
`)
	_, err := ParseMap(data)
	require.Error(t, err)
}

func TestParseMapRejectsEmpty(t *testing.T) {
	_, err := ParseMap([]byte("elements: {}"))
	require.Error(t, err)
}
