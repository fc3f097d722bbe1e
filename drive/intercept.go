// CLAUDE:SUMMARY Navigation interception: classifies clicks and form submissions into visits, collects form values.
package drive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/hyperdrive/dom"
)

// Interception attributes. They work on the element or any ancestor,
// so a nav region can opt out or gate all of its links at once.
const (
	// AttrOptOut set to "false" excludes an element from interception:
	// its navigations become full raw loads.
	AttrOptOut = "data-hyper"
	// AttrMethod overrides the HTTP method of a link.
	AttrMethod = "data-hyper-method"
	// AttrConfirm gates the navigation on the session's ConfirmFunc.
	AttrConfirm = "data-hyper-confirm"
	// AttrHistory overrides the history action: advance, replace, none.
	AttrHistory = "data-hyper-history"
)

// Click turns the first element matching selector into a visit and
// performs it. Anchors inside frames navigate their frame; opted-out,
// cross-origin and download links fall back to a full raw load.
func (s *Session) Click(ctx context.Context, selector string) (*Outcome, error) {
	v, err := s.classifyClick(selector)
	if err != nil {
		return nil, err
	}
	out, err := s.visit(ctx, v)
	s.drainPending(ctx)
	return out, err
}

// Submit collects the form matching selector, applies overrides on top
// of its field values and performs the submission as a visit. Override
// values replace the field's values per key, they do not append.
func (s *Session) Submit(ctx context.Context, selector string, overrides url.Values) (*Outcome, error) {
	v, err := s.classifySubmit(selector, overrides)
	if err != nil {
		return nil, err
	}
	out, err := s.visit(ctx, v)
	s.drainPending(ctx)
	return out, err
}

func (s *Session) classifyClick(selector string) (*Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" {
		return nil, ErrNoDocument
	}
	el, err := dom.SelectFirst(s.doc, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, selector)
	}
	href := dom.Attr(el, "href")
	if href == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoHref, selector)
	}

	v := s.newVisit(href, nil)
	v.Element = el
	if m := attrOrAncestor(el, AttrMethod); m != "" {
		v.Method = strings.ToUpper(m)
	}
	s.applyHistoryOverride(v, el)
	v.confirm = dom.Attr(el, AttrConfirm)

	// Outside interception: the session still performs the load, but
	// as a fresh document with none of the visit semantics.
	if optedOut(el) || !sameOrigin(s.url, href) || dom.HasAttr(el, "download") || dom.Attr(el, "target") == "_blank" {
		v.raw = true
		return v, nil
	}
	if dest := s.frames.DestinationFor(el); dest.Frame != nil {
		v.FrameID = dest.Frame.ID
	}
	return v, nil
}

func (s *Session) classifySubmit(selector string, overrides url.Values) (*Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" {
		return nil, ErrNoDocument
	}
	el, err := dom.SelectFirst(s.doc, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, selector)
	}
	if el.DataAtom != atom.Form {
		return nil, fmt.Errorf("%w: %q", ErrNotForm, selector)
	}

	action := dom.Attr(el, "action")
	if action == "" {
		action = s.url
	}
	method := strings.ToUpper(dom.Attr(el, "method"))
	if m := attrOrAncestor(el, AttrMethod); m != "" {
		method = strings.ToUpper(m)
	}
	if method == "" {
		method = http.MethodGet
	}
	// A GET submission replaces the action's query string outright.
	if method == http.MethodGet {
		if u, err := url.Parse(action); err == nil {
			u.RawQuery = ""
			action = u.String()
		}
	}

	form := collectFormValues(el)
	for k, vs := range overrides {
		form[k] = append([]string(nil), vs...)
	}

	v := s.newVisit(action, nil)
	v.Element = el
	v.Method = method
	v.Form = form
	s.applyHistoryOverride(v, el)
	v.confirm = dom.Attr(el, AttrConfirm)

	if optedOut(el) || !sameOrigin(s.url, action) {
		v.raw = true
		return v, nil
	}
	if dest := s.frames.DestinationFor(el); dest.Frame != nil {
		v.FrameID = dest.Frame.ID
	}
	return v, nil
}

func (s *Session) applyHistoryOverride(v *Visit, el *html.Node) {
	a := attrOrAncestor(el, AttrHistory)
	switch HistoryAction(a) {
	case ActionAdvance, ActionReplace, ActionNone:
		v.Action = HistoryAction(a)
	default:
		if a != "" {
			s.logger.Warn("drive: unknown history action, keeping default", "value", a)
		}
	}
}

// collectFormValues walks a form subtree gathering submittable values
// the way a browser serialises them: checked boxes and radios only,
// selected options only, disabled controls and subtrees skipped, no
// submitter buttons (there is no clicked button in a headless submit).
func collectFormValues(form *html.Node) url.Values {
	vals := url.Values{}
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if dom.HasAttr(n, "disabled") {
				return
			}
			name := dom.Attr(n, "name")
			switch n.DataAtom {
			case atom.Input:
				if name == "" {
					return
				}
				switch strings.ToLower(dom.Attr(n, "type")) {
				case "checkbox", "radio":
					if dom.HasAttr(n, "checked") {
						val := dom.Attr(n, "value")
						if val == "" {
							val = "on"
						}
						vals.Add(name, val)
					}
				case "submit", "button", "image", "reset", "file":
				default:
					vals.Add(name, dom.Attr(n, "value"))
				}
				return
			case atom.Textarea:
				if name != "" {
					vals.Add(name, rawText(n))
				}
				return
			case atom.Select:
				if name != "" {
					collectSelect(n, name, vals)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(form)
	return vals
}

// collectSelect serialises a select control. Multiple selects submit
// every selected option; single selects submit the last selected one,
// or the first option when none is marked, matching browser defaults.
func collectSelect(sel *html.Node, name string, vals url.Values) {
	multiple := dom.HasAttr(sel, "multiple")
	var firstVal string
	haveFirst := false
	selected := false
	var last string
	dom.Walk(sel, func(opt *html.Node) bool {
		if opt.Type != html.ElementNode || opt.DataAtom != atom.Option {
			return true
		}
		if dom.HasAttr(opt, "disabled") {
			return false
		}
		val := dom.Attr(opt, "value")
		if !dom.HasAttr(opt, "value") {
			val = strings.TrimSpace(dom.Text(opt))
		}
		if !haveFirst {
			firstVal = val
			haveFirst = true
		}
		if dom.HasAttr(opt, "selected") {
			selected = true
			if multiple {
				vals.Add(name, val)
			} else {
				last = val
			}
		}
		return false
	})
	if multiple {
		return
	}
	if selected {
		vals.Add(name, last)
	} else if haveFirst {
		vals.Add(name, firstVal)
	}
}

// rawText concatenates text nodes without collapsing whitespace, the
// right reading for textarea content.
func rawText(n *html.Node) string {
	var sb strings.Builder
	dom.Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

// attrOrAncestor reads an attribute from the element or its nearest
// ancestor carrying it.
func attrOrAncestor(el *html.Node, key string) string {
	for n := el; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && dom.HasAttr(n, key) {
			return dom.Attr(n, key)
		}
	}
	return ""
}

// optedOut reports whether the element or an ancestor disables
// interception with data-hyper="false".
func optedOut(el *html.Node) bool {
	return attrOrAncestor(el, AttrOptOut) == "false"
}

// sameOrigin reports whether href stays on the document's origin.
// Relative references always do.
func sameOrigin(base, href string) bool {
	h, err := url.Parse(href)
	if err != nil {
		return false
	}
	if !h.IsAbs() {
		return true
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return h.Scheme == b.Scheme && h.Host == b.Host
}
