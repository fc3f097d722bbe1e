// CLAUDE:SUMMARY Node surgery primitives: detach, insert, replace — the mutations stream actions compile to.
package dom

import "golang.org/x/net/html"

// Detach unlinks n from its parent and siblings. Safe on already
// detached nodes. x/net/html panics when inserting a parented node, so
// every insertion helper below detaches first.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	n.Parent = nil
	n.PrevSibling = nil
	n.NextSibling = nil
}

// AppendChildren adds nodes as the last children of parent, in order.
func AppendChildren(parent *html.Node, kids ...*html.Node) {
	for _, k := range kids {
		Detach(k)
		parent.AppendChild(k)
	}
}

// PrependChildren adds nodes as the first children of parent, keeping
// their relative order.
func PrependChildren(parent *html.Node, kids ...*html.Node) {
	first := parent.FirstChild
	for _, k := range kids {
		Detach(k)
		if first != nil {
			parent.InsertBefore(k, first)
		} else {
			parent.AppendChild(k)
		}
	}
}

// InsertBefore places nodes as immediate preceding siblings of ref.
// No-op when ref has no parent.
func InsertBefore(ref *html.Node, kids ...*html.Node) {
	parent := ref.Parent
	if parent == nil {
		return
	}
	for _, k := range kids {
		Detach(k)
		parent.InsertBefore(k, ref)
	}
}

// InsertAfter places nodes as immediate following siblings of ref,
// keeping their relative order. No-op when ref has no parent.
func InsertAfter(ref *html.Node, kids ...*html.Node) {
	parent := ref.Parent
	if parent == nil {
		return
	}
	next := ref.NextSibling
	for _, k := range kids {
		Detach(k)
		if next != nil {
			parent.InsertBefore(k, next)
		} else {
			parent.AppendChild(k)
		}
	}
}

// ReplaceWith removes old from the tree and inserts nodes in its place.
// No-op when old has no parent.
func ReplaceWith(old *html.Node, kids ...*html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	for _, k := range kids {
		Detach(k)
		parent.InsertBefore(k, old)
	}
	parent.RemoveChild(old)
}

// ReplaceChildren removes all children of parent and appends nodes.
func ReplaceChildren(parent *html.Node, kids ...*html.Node) {
	RemoveChildren(parent)
	AppendChildren(parent, kids...)
}

// RemoveChildren detaches every child of parent.
func RemoveChildren(parent *html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		c = next
	}
}
