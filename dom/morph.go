// CLAUDE:SUMMARY In-place tree reconciliation (morph) used for restoration renders and same-page refreshes.
package dom

import "golang.org/x/net/html"

// MorphOptions tunes Morph behaviour.
type MorphOptions struct {
	// PreserveAttr names an attribute that pins a live element: a live
	// element carrying it (and an id) is never mutated or descended
	// into, only repositioned. Empty disables pinning.
	PreserveAttr string
}

// Morph mutates the live tree in place until it is equivalent to next.
// Nodes keep their identity when type, tag and id all agree, so state
// attached to a node (frame load state, pinned elements) survives a
// morph where a full replace would discard it. next is read, never
// mutated; nodes are cloned out of it as needed.
func Morph(live, next *html.Node, opts MorphOptions) {
	morphNode(live, next, &opts)
}

func morphNode(live, next *html.Node, opts *MorphOptions) {
	if pinned(live, opts) {
		return
	}
	if !sameIdentity(live, next) {
		ReplaceWith(live, Clone(next))
		return
	}
	switch live.Type {
	case html.TextNode, html.CommentNode, html.DoctypeNode:
		if live.Data != next.Data {
			live.Data = next.Data
		}
	case html.ElementNode:
		syncAttrs(live, next)
		morphChildren(live, next, opts)
	case html.DocumentNode:
		morphChildren(live, next, opts)
	}
}

// sameIdentity reports whether live can be morphed into next rather
// than replaced: same node type, and for elements same tag and same id
// (two empty ids agree).
func sameIdentity(live, next *html.Node) bool {
	if live.Type != next.Type {
		return false
	}
	if live.Type != html.ElementNode {
		return true
	}
	return live.Data == next.Data && ID(live) == ID(next)
}

func syncAttrs(live, next *html.Node) {
	live.Attr = append(live.Attr[:0], next.Attr...)
}

func morphChildren(live, next *html.Node, opts *MorphOptions) {
	// Live children addressable by id, and the set of ids the target
	// children will claim. A live node whose id is claimed later must
	// not be consumed by a positional match in the meantime.
	liveByID := make(map[string]*html.Node)
	for c := live.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if id := ID(c); id != "" {
				if _, dup := liveByID[id]; !dup {
					liveByID[id] = c
				}
			}
		}
	}
	nextIDs := make(map[string]bool)
	for c := next.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if id := ID(c); id != "" {
				nextIDs[id] = true
			}
		}
	}

	cursor := live.FirstChild
	for want := next.FirstChild; want != nil; want = want.NextSibling {
		if want.Type == html.ElementNode {
			if id := ID(want); id != "" {
				cand := liveByID[id]
				if cand != nil && cand.Data == want.Data {
					delete(liveByID, id)
					if cand == cursor {
						cursor = cursor.NextSibling
					} else {
						moveBefore(live, cand, cursor)
					}
					morphNode(cand, want, opts)
				} else {
					insertCloneBefore(live, want, cursor)
				}
				continue
			}
		}
		if cursor != nil && compatible(cursor, want) && !nextIDs[elementID(cursor)] {
			node := cursor
			cursor = cursor.NextSibling
			morphNode(node, want, opts)
			continue
		}
		insertCloneBefore(live, want, cursor)
	}

	// Whatever the target did not claim goes away.
	for cursor != nil {
		n := cursor.NextSibling
		live.RemoveChild(cursor)
		cursor = n
	}
}

// compatible is the positional-match test: same node type, and same
// tag for elements. Ids are reconciled by syncAttrs afterwards.
func compatible(live, want *html.Node) bool {
	if live.Type != want.Type {
		return false
	}
	return live.Type != html.ElementNode || live.Data == want.Data
}

func pinned(n *html.Node, opts *MorphOptions) bool {
	return opts.PreserveAttr != "" &&
		n.Type == html.ElementNode &&
		HasAttr(n, opts.PreserveAttr) &&
		ID(n) != ""
}

func elementID(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	return ID(n)
}

func moveBefore(parent, n, ref *html.Node) {
	Detach(n)
	if ref != nil {
		parent.InsertBefore(n, ref)
	} else {
		parent.AppendChild(n)
	}
}

func insertCloneBefore(parent, want, ref *html.Node) {
	cp := Clone(want)
	if ref != nil {
		parent.InsertBefore(cp, ref)
	} else {
		parent.AppendChild(cp)
	}
}
