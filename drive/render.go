// CLAUDE:SUMMARY Full-document render paths: replace with head merge, morph for revisited pages, restoration from snapshots.
package drive

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/hyperdrive/dom"
	"github.com/hazyhaar/hyperdrive/snapshot"
)

// renderReplace swaps the live body for the incoming one and merges
// the heads. Permanent elements move over by identity first, so state
// they carry survives the swap. Caller holds s.mu.
func (s *Session) renderReplace(next *html.Node) {
	dom.MergePermanent(s.doc, next)
	mergeHead(s.doc, next)
	liveBody := dom.Body(s.doc)
	nextBody := dom.Body(next)
	dom.Detach(nextBody)
	dom.ReplaceWith(liveBody, nextBody)
}

// renderMorph converges the live document on the incoming one in
// place, so node identity survives for unchanged subtrees. Used for
// pages the session has been to before. Caller holds s.mu.
func (s *Session) renderMorph(next *html.Node) {
	dom.Morph(s.doc, next, dom.MorphOptions{PreserveAttr: dom.AttrPermanent})
}

// renderRestore swaps in a document rebuilt from a snapshot. Live
// permanent elements are adopted into it by identity, so the restored
// page shows their current state, not the captured one. Caller holds
// s.mu.
func (s *Session) renderRestore(snap *snapshot.Snapshot) error {
	next, err := snap.Restore()
	if err != nil {
		return err
	}
	dom.MergePermanent(s.doc, next)
	s.doc = next
	return nil
}

// captureSnapshot stores the page being left in the cache. Pages that
// opted out via hyper-cache-control are captured anyway and rejected
// by the cache, which also counts them. Caller holds s.mu.
func (s *Session) captureSnapshot() {
	if s.url == "" {
		return
	}
	snap := snapshot.Capture(s.doc, s.url)
	s.cache.Put(snap)
}

// mergeHead updates the live <head> from the incoming one: the title
// swaps, other nodes append unless an identical node is already there.
// Rendered form is the identity, so stylesheets and scripts accumulate
// across visits instead of duplicating.
func mergeHead(live, next *html.Node) {
	liveHead := dom.Head(live)
	nextHead := dom.Head(next)
	if liveHead == nil || nextHead == nil {
		return
	}
	seen := make(map[string]bool)
	var liveTitle *html.Node
	for c := liveHead.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Title {
			liveTitle = c
			continue
		}
		seen[dom.Render(c)] = true
	}
	var nextTitle *html.Node
	var add []*html.Node
	for c := nextHead.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Title {
			nextTitle = c
			continue
		}
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) == "" {
			continue
		}
		if !seen[dom.Render(c)] {
			add = append(add, c)
		}
	}
	if nextTitle != nil {
		if liveTitle != nil {
			dom.ReplaceWith(liveTitle, dom.Clone(nextTitle))
		} else {
			dom.AppendChildren(liveHead, dom.Clone(nextTitle))
		}
	}
	for _, n := range add {
		dom.AppendChildren(liveHead, dom.Clone(n))
	}
}
