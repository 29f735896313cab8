// File: internal/browser/digest.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// interactiveAtoms are the element kinds worth describing to the gateway.
var interactiveAtoms = map[atom.Atom]bool{
	atom.A:        true,
	atom.Button:   true,
	atom.Input:    true,
	atom.Select:   true,
	atom.Textarea: true,
	atom.Label:    true,
	atom.Form:     true,
}

// describedAttrs are the attributes that tend to survive redesigns and make
// good locator material.
var describedAttrs = []string{"id", "name", "class", "type", "role", "href", "placeholder", "aria-label", "value"}

// Digest captures the page's outer HTML and summarizes its interactive
// elements, one per line, truncated to maxBytes. Gateway prompts ship the
// summary rather than the raw DOM, keeping token cost bounded.
func (s *Session) Digest(ctx context.Context, maxBytes int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, s.attemptTimeout)
	defer cancel()

	var outer string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &outer, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page HTML: %w", err)
	}
	return DigestHTML(outer, maxBytes)
}

// DigestHTML is the parsing half of Digest, split out for tests.
func DigestHTML(outer string, maxBytes int) (string, error) {
	doc, err := html.Parse(strings.NewReader(outer))
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML: %w", err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if b.Len() >= maxBytes {
			return
		}
		if n.Type == html.ElementNode && interactiveAtoms[n.DataAtom] {
			b.WriteString(describeNode(n))
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	out := b.String()
	if len(out) > maxBytes {
		out = out[:maxBytes]
	}
	return out, nil
}

func describeNode(n *html.Node) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(n.Data)

	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	for _, key := range describedAttrs {
		if val, ok := attrs[key]; ok && val != "" {
			fmt.Fprintf(&b, " %s=%q", key, val)
		}
	}
	b.WriteByte('>')

	if text := visibleText(n, 80); text != "" {
		fmt.Fprintf(&b, " %q", text)
	}
	return b.String()
}

// visibleText collects the node's own text content, collapsed and capped.
func visibleText(n *html.Node, max int) string {
	var parts []string
	var walk func(c *html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)

	text := strings.Join(parts, " ")
	if len(text) > max {
		text = text[:max]
	}
	return text
}
