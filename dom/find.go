package dom

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Walk visits every node in the subtree rooted at n in document order.
// If fn returns false the node's children are not visited.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// FindByID returns the first element with the given id, or nil.
func FindByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// ElementsByTag returns all elements whose tag name matches, in document order.
// The name is matched against html.Node.Data, so custom elements work.
func ElementsByTag(root *html.Node, name string) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == name {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Body returns the document's <body> element, or nil.
func Body(doc *html.Node) *html.Node {
	return findAtom(doc, atom.Body)
}

// Head returns the document's <head> element, or nil.
func Head(doc *html.Node) *html.Node {
	return findAtom(doc, atom.Head)
}

func findAtom(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the node carries the named attribute.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// ID is shorthand for Attr(n, "id").
func ID(n *html.Node) string {
	return Attr(n, "id")
}
