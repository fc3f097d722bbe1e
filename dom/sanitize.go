package dom

import "github.com/microcosm-cc/bluemonday"

// Sanitizer scrubs incoming markup before it is grafted into a live
// document. The policy is bluemonday's UGC baseline widened to keep
// the engine's own vocabulary intact: data-* attributes, ids, and the
// hyper-frame / hyper-stream / template elements.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds the default policy.
func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowDataAttributes()
	p.AllowAttrs("id", "class", "name").Globally()
	p.AllowElements("template", "hyper-frame", "hyper-stream", "form", "input", "button", "select", "option", "textarea", "label")
	p.AllowAttrs("src", "loading", "target", "disabled").OnElements("hyper-frame")
	p.AllowAttrs("action", "target", "targets").OnElements("hyper-stream")
	p.AllowAttrs("action", "method", "enctype").OnElements("form")
	p.AllowAttrs("type", "value", "placeholder", "checked", "disabled", "required").OnElements("input", "button", "select", "option", "textarea")
	p.AllowAttrs("for").OnElements("label")
	return &Sanitizer{policy: p}
}

// Fragment sanitises a markup fragment, returning the scrubbed form.
func (s *Sanitizer) Fragment(markup string) string {
	return s.policy.Sanitize(markup)
}
