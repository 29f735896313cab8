// File: internal/browser/query.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/relock/internal/locator"
)

// buildQuery compiles a descriptor into a chromedp query. Attribute-based
// strategies compile to CSS; the text-matching strategies have no CSS
// equivalent and go through XPath via DOM.performSearch.
func buildQuery(d locator.Descriptor) (string, chromedp.QueryOption, error) {
	switch d.Strategy {
	case locator.StrategyID:
		// An attribute selector sidesteps CSS identifier escaping for ids
		// containing dots, colons and friends.
		return fmt.Sprintf(`[id=%s]`, cssString(d.Value)), chromedp.ByQueryAll, nil
	case locator.StrategyName:
		return fmt.Sprintf(`[name=%s]`, cssString(d.Value)), chromedp.ByQueryAll, nil
	case locator.StrategyClass:
		// ~= matches one class token the way Selenium's By.CLASS_NAME does.
		return fmt.Sprintf(`[class~=%s]`, cssString(d.Value)), chromedp.ByQueryAll, nil
	case locator.StrategyTag:
		return d.Value, chromedp.ByQueryAll, nil
	case locator.StrategyCSS:
		return d.Value, chromedp.ByQueryAll, nil
	case locator.StrategyXPath:
		return d.Value, chromedp.BySearch, nil
	case locator.StrategyLinkText:
		return fmt.Sprintf(`//a[normalize-space(.)=%s]`, xpathString(d.Value)), chromedp.BySearch, nil
	case locator.StrategyPartialLinkText:
		return fmt.Sprintf(`//a[contains(normalize-space(.), %s)]`, xpathString(d.Value)), chromedp.BySearch, nil
	default:
		return "", nil, fmt.Errorf("unknown locator strategy %q", d.Strategy)
	}
}

// cssString renders v as a double-quoted CSS string literal.
func cssString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// xpathString renders v as an XPath string literal. XPath 1.0 has no escape
// syntax, so values holding both quote kinds need concat().
func xpathString(v string) string {
	if !strings.Contains(v, `'`) {
		return `'` + v + `'`
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, `'`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, `'`+p+`'`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
