// CLAUDE:SUMMARY Headless DOM substrate: parse, serialise, clone and hash x/net/html node trees.
// Package dom wraps golang.org/x/net/html with the tree operations the
// rest of hyperdrive is built on: parsing documents and fragments,
// serialising subtrees, CSS selection, node surgery and morphing.
//
// All functions operate on *html.Node and never retain references to
// their inputs beyond the call. None of them are safe for concurrent
// mutation of the same tree; callers serialise access (the drive
// session does this with a single mutex around the live document).
package dom

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse reads a complete HTML document. The parser is forgiving: partial
// markup still yields a document with html/head/body elements.
func Parse(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return doc, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) (*html.Node, error) {
	return Parse(strings.NewReader(s))
}

// ParseFragment parses markup as body content and returns the top-level
// nodes, each detached and ready for insertion into another tree.
func ParseFragment(s string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	return nodes, nil
}

// Render serialises a node subtree back to markup.
func Render(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// RenderChildren serialises only the children of n (the innerHTML view).
func RenderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// Text extracts all visible text from a node subtree. Script, style and
// noscript content is skipped; runs of whitespace collapse to one space.
func Text(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// Title returns the text of the document's <title>, or "".
func Title(doc *html.Node) string {
	var title string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return title
}

// Clone deep-copies a node subtree. The copy is detached: Parent and
// sibling pointers of the returned root are nil.
func Clone(n *html.Node) *html.Node {
	cp := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		cp.Attr = make([]html.Attribute, len(n.Attr))
		copy(cp.Attr, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cp.AppendChild(Clone(c))
	}
	return cp
}

// Hash returns the SHA-256 hex digest of the serialised subtree.
func Hash(n *html.Node) string {
	h := sha256.Sum256([]byte(Render(n)))
	return fmt.Sprintf("%x", h)
}
