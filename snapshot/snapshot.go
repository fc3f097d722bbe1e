// CLAUDE:SUMMARY Page snapshot capture: serialised DOM photo with hash, permanence inventory and cacheability.
// Package snapshot captures page documents for history restoration and
// keeps them in a bounded LRU cache keyed by URL.
package snapshot

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
	"github.com/hazyhaar/hyperdrive/idgen"
)

// MetaCacheControl is the document-level cache opt-out. A page carrying
//
//	<meta name="hyper-cache-control" content="no-cache">
//
// is never stored, so a restoration visit to it refetches instead.
const MetaCacheControl = "hyper-cache-control"

// Snapshot is a serialised photo of a page at the moment navigation
// left it. The HTML is immutable once captured; restoration parses a
// fresh tree from it every time.
type Snapshot struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"` // fragment-stripped absolute URL
	HTML         string    `json:"html"`
	Hash         string    `json:"hash"` // SHA-256 hex of HTML
	Title        string    `json:"title"`
	PermanentIDs []string  `json:"permanent_ids,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
	Cacheable    bool      `json:"cacheable"`
}

// Capture photographs doc as it stands. The document itself is not
// mutated: temporary elements are stripped from a clone before
// serialisation. pageURL is normalised with Key.
func Capture(doc *html.Node, pageURL string) *Snapshot {
	cp := dom.Clone(doc)
	dom.StripTemporary(cp)

	var permIDs []string
	for _, n := range dom.PermanentElements(cp) {
		permIDs = append(permIDs, dom.ID(n))
	}

	return &Snapshot{
		ID:           idgen.New(),
		URL:          Key(pageURL),
		HTML:         dom.Render(cp),
		Hash:         dom.Hash(cp),
		Title:        dom.Title(cp),
		PermanentIDs: permIDs,
		CapturedAt:   time.Now(),
		Cacheable:    cacheControl(doc) != "no-cache",
	}
}

// Restore parses the snapshot back into a fresh document tree.
func (s *Snapshot) Restore() (*html.Node, error) {
	return dom.ParseString(s.HTML)
}

// Key normalises a URL for cache addressing: the fragment is dropped,
// since #anchor navigation never leaves the page. Unparseable input is
// used verbatim.
func Key(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	return u.String()
}

// cacheControl reads the page's cache meta directive, or "".
func cacheControl(doc *html.Node) string {
	var content string
	dom.Walk(doc, func(n *html.Node) bool {
		if content != "" {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "meta" &&
			strings.EqualFold(dom.Attr(n, "name"), MetaCacheControl) {
			content = strings.ToLower(strings.TrimSpace(dom.Attr(n, "content")))
			return false
		}
		return true
	})
	return content
}
