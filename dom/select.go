package dom

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector, reusable across documents.
type Selector = cascadia.Selector

// Compile parses a CSS selector expression.
func Compile(expr string) (Selector, error) {
	sel, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("dom: selector %q: %w", expr, err)
	}
	return sel, nil
}

// MustCompile is Compile for package-level selector constants.
func MustCompile(expr string) Selector {
	return cascadia.MustCompile(expr)
}

// Select returns all nodes under root matching the CSS selector.
func Select(root *html.Node, expr string) ([]*html.Node, error) {
	sel, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return sel.MatchAll(root), nil
}

// SelectFirst returns the first node under root matching the CSS
// selector, or nil when nothing matches.
func SelectFirst(root *html.Node, expr string) (*html.Node, error) {
	sel, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return sel.MatchFirst(root), nil
}
