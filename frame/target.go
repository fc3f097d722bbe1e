package frame

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
)

// Destination is where an interaction's response should land.
// A nil Frame means full-document navigation.
type Destination struct {
	Frame *Frame
}

// Top reports a full-document destination.
func (d Destination) Top() bool { return d.Frame == nil }

// DestinationFor resolves the frame an interaction on el is scoped to.
// Precedence: a data-hyper-frame override on el or its nearest marked
// ancestor, then the owning frame's target attribute, then the owning
// frame itself. "_top" or an id that is not registered escalates to
// the full document; outside any frame the document is the default.
func (e *Engine) DestinationFor(el *html.Node) Destination {
	owner := e.owningFrame(el)
	if o := navOverride(el); o != "" {
		return e.resolveAlias(o, owner)
	}
	if owner != nil && owner.Target != "" {
		return e.resolveAlias(owner.Target, owner)
	}
	return Destination{Frame: owner}
}

func (e *Engine) resolveAlias(alias string, owner *Frame) Destination {
	switch alias {
	case TargetSelf:
		return Destination{Frame: owner}
	case TargetTop:
		return Destination{}
	}
	e.mu.Lock()
	f, ok := e.frames[alias]
	e.mu.Unlock()
	if !ok {
		return Destination{}
	}
	return Destination{Frame: f}
}

// owningFrame finds the nearest registered, enabled frame ancestor.
// Disabled frames do not intercept, so the walk continues past them.
func (e *Engine) owningFrame(el *html.Node) *Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	for n := el; n != nil; n = n.Parent {
		if n.Type != html.ElementNode || n.Data != Tag {
			continue
		}
		if f, ok := e.frames[dom.ID(n)]; ok && !f.Disabled {
			return f
		}
	}
	return nil
}

func navOverride(el *html.Node) string {
	for n := el; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if v := dom.Attr(n, AttrNavTarget); v != "" {
			return v
		}
	}
	return ""
}
