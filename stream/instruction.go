// CLAUDE:SUMMARY Wire format of stream messages: <hyper-stream> elements parsed into ordered Instructions.
// Package stream parses and applies out-of-band DOM mutation messages.
//
// A stream message is an HTML fragment containing one or more
// <hyper-stream> elements:
//
//	<hyper-stream action="append" target="messages">
//	  <template><li>new item</li></template>
//	</hyper-stream>
//
// Messages arrive over any transport that can carry text (HTTP
// responses, sockets, test fixtures). ParseMessage turns the fragment
// into Instructions; Dispatcher applies them to a live document in
// document order, resolving each instruction's targets against the
// tree as it exists when that instruction runs.
package stream

import (
	"fmt"
	"mime"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
)

const (
	// Tag is the element name carrying one instruction.
	Tag = "hyper-stream"

	// ContentType marks an HTTP response body as a stream message.
	ContentType = "text/vnd.hyper-stream.html"
)

// Reserved attribute names on a <hyper-stream> element. Anything else
// is kept in Instruction.Attrs for custom handlers.
const (
	attrAction  = "action"
	attrTarget  = "target"
	attrTargets = "targets"
)

// Instruction is one parsed <hyper-stream> element.
type Instruction struct {
	// Action names the handler to run (append, prepend, replace,
	// update, remove, before, after, or a custom registration).
	Action string

	// Target is the id of the element to operate on. Ignored when
	// Targets is set.
	Target string

	// Targets is a CSS selector resolving to any number of elements.
	// Takes precedence over Target.
	Targets string

	// Attrs holds the element's remaining attributes, for custom
	// handlers that need parameters.
	Attrs map[string]string

	// Template is the instruction's <template> child, nil when the
	// instruction carries no content (remove does not need one).
	Template *html.Node

	// SourceHTML is the original rendered element, kept for logging.
	SourceHTML string
}

// TemplateNodes returns detached clones of the template's children,
// ready for insertion. Each call clones anew, so an instruction fanned
// out over several targets hands every target its own copy. Returns
// nil when the instruction has no template.
func (in *Instruction) TemplateNodes() []*html.Node {
	if in.Template == nil {
		return nil
	}
	var out []*html.Node
	for c := in.Template.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, dom.Clone(c))
	}
	return out
}

// Diagnostic records an instruction that could not be parsed or
// applied. Diagnostics never abort a message: remaining instructions
// still run.
type Diagnostic struct {
	Index  int    // position of the instruction within the message
	Action string // action name when known
	Reason string
}

func (d Diagnostic) String() string {
	if d.Action == "" {
		return fmt.Sprintf("instruction %d: %s", d.Index, d.Reason)
	}
	return fmt.Sprintf("instruction %d (%s): %s", d.Index, d.Action, d.Reason)
}

// Message is a parsed stream payload.
type Message struct {
	Instructions []Instruction
	Diagnostics  []Diagnostic
}

// IsContentType reports whether an HTTP Content-Type header announces
// a stream message.
func IsContentType(header string) bool {
	if header == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mt == ContentType
}

// ParseMessage parses a stream fragment. Malformed elements (no
// action, or neither target nor targets) are dropped with a
// diagnostic; well-formed ones keep their document order. A fragment
// with no <hyper-stream> element at all yields an empty message, not
// an error.
func ParseMessage(markup string) (*Message, error) {
	nodes, err := dom.ParseFragment(markup)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}

	var elems []*html.Node
	for _, n := range nodes {
		collectStreamElements(n, &elems)
	}

	msg := &Message{}
	for i, el := range elems {
		in, reason := parseInstruction(el)
		if reason != "" {
			msg.Diagnostics = append(msg.Diagnostics, Diagnostic{
				Index:  i,
				Action: dom.Attr(el, attrAction),
				Reason: reason,
			})
			continue
		}
		msg.Instructions = append(msg.Instructions, in)
	}
	return msg, nil
}

// collectStreamElements gathers <hyper-stream> elements in document
// order. It does not descend into a stream element or any <template>:
// stream markup inside a template is content to insert, not an
// instruction to run.
func collectStreamElements(n *html.Node, out *[]*html.Node) {
	dom.Walk(n, func(c *html.Node) bool {
		if c.Type != html.ElementNode {
			return true
		}
		if c.Data == Tag {
			*out = append(*out, c)
			return false
		}
		return c.Data != "template"
	})
}

func parseInstruction(el *html.Node) (Instruction, string) {
	in := Instruction{
		Action:     dom.Attr(el, attrAction),
		Target:     dom.Attr(el, attrTarget),
		Targets:    dom.Attr(el, attrTargets),
		SourceHTML: dom.Render(el),
	}
	if strings.TrimSpace(in.Action) == "" {
		return in, "missing action attribute"
	}
	if in.Target == "" && in.Targets == "" {
		return in, "missing target and targets attributes"
	}

	for _, a := range el.Attr {
		switch a.Key {
		case attrAction, attrTarget, attrTargets:
		default:
			if in.Attrs == nil {
				in.Attrs = make(map[string]string)
			}
			in.Attrs[a.Key] = a.Val
		}
	}

	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "template" {
			in.Template = c
			break
		}
	}
	return in, ""
}
