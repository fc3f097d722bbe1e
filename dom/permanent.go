// CLAUDE:SUMMARY Permanence and temporary-element rules applied around snapshot capture and restore.
package dom

import "golang.org/x/net/html"

// Markup hooks honoured across the whole engine. An element marked
// permanent (and carrying an id) survives page renders: the live
// instance is carried over whenever the incoming document has an
// element with the same id. An element marked temporary is stripped
// from snapshots before they are cached.
const (
	AttrPermanent = "data-hyper-permanent"
	AttrTemporary = "data-hyper-temporary"
)

// PermanentElements returns the elements under root marked permanent.
// Elements without an id are ignored: identity across documents is
// what permanence means, and only ids provide it.
func PermanentElements(root *html.Node) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && HasAttr(n, AttrPermanent) && ID(n) != "" {
			out = append(out, n)
			return false // nested permanence is the outermost element's business
		}
		return true
	})
	return out
}

// MergePermanent moves each permanent element out of from and into
// into, replacing the element with the matching id there. Elements
// with no counterpart stay where they are. Returns how many moved.
func MergePermanent(from, into *html.Node) int {
	moved := 0
	for _, live := range PermanentElements(from) {
		placeholder := FindByID(into, ID(live))
		if placeholder == nil || placeholder.Type != html.ElementNode {
			continue
		}
		Detach(live)
		ReplaceWith(placeholder, live)
		moved++
	}
	return moved
}

// StripTemporary removes every element marked temporary from the tree
// and returns how many were removed.
func StripTemporary(root *html.Node) int {
	var doomed []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && HasAttr(n, AttrTemporary) {
			doomed = append(doomed, n)
			return false
		}
		return true
	})
	for _, n := range doomed {
		Detach(n)
	}
	return len(doomed)
}
