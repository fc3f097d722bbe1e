// CLAUDE:SUMMARY Read-side content distillation: markdown conversion, link harvesting, plain text.
// Package distill turns live documents into agent-friendly readouts:
// markdown for reading, link lists for crawling decisions, plain text
// for matching. It never mutates the document it reads.
package distill

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
)

// mdConverter is shared: converter construction builds plugin tables,
// so it happens once.
var mdConverter = sync.OnceValue(func() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
})

// Markdown converts the document to markdown. pageURL anchors relative
// links; pass "" when the source is unknown.
func Markdown(doc *html.Node, pageURL string) (string, error) {
	markup := dom.Render(doc)
	var opts []converter.ConvertOptionFunc
	if pageURL != "" {
		opts = append(opts, converter.WithDomain(pageURL))
	}
	result, err := mdConverter().ConvertString(markup, opts...)
	if err != nil {
		return "", fmt.Errorf("distill: markdown: %w", err)
	}
	return strings.TrimSpace(result), nil
}

// Link is one anchor found in a document.
type Link struct {
	URL  string `json:"url"`  // resolved against the page URL
	Text string `json:"text"` // collapsed anchor text
}

// Links harvests the document's anchors in document order, resolved
// against pageURL and deduplicated by resolved URL. Fragment-only,
// javascript: and mailto: anchors are skipped.
func Links(doc *html.Node, pageURL string) ([]Link, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("distill: parse base %q: %w", pageURL, err)
	}
	gq := goquery.NewDocumentFromNode(doc)

	var links []Link
	seen := make(map[string]bool)
	gq.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, Link{
			URL:  resolved,
			Text: strings.Join(strings.Fields(sel.Text()), " "),
		})
	})
	return links, nil
}

// Text extracts the document's visible text: body content with script,
// style and noscript skipped and whitespace collapsed.
func Text(doc *html.Node) string {
	if body := dom.Body(doc); body != nil {
		return dom.Text(body)
	}
	return dom.Text(doc)
}
