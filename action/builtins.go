package action

import (
	"context"

	"github.com/hazyhaar/hyperdrive/dom"
	"github.com/hazyhaar/hyperdrive/stream"
)

// Built-in action names.
const (
	Append  = "append"
	Prepend = "prepend"
	Replace = "replace"
	Update  = "update"
	Remove  = "remove"
	Before  = "before"
	After   = "after"
)

// builtins returns a fresh name→handler map. Content-bearing actions
// treat a missing <template> as empty content: update then clears the
// target, append and friends do nothing. Append and prepend do not
// deduplicate by id; replaying a message inserts again.
func builtins() map[string]stream.Handler {
	return map[string]stream.Handler{
		Append: stream.HandlerFunc(func(_ context.Context, inv *stream.Invocation) error {
			dom.AppendChildren(inv.Target, inv.Instruction.TemplateNodes()...)
			return nil
		}),
		Prepend: stream.HandlerFunc(func(_ context.Context, inv *stream.Invocation) error {
			dom.PrependChildren(inv.Target, inv.Instruction.TemplateNodes()...)
			return nil
		}),
		Replace: stream.HandlerFunc(func(_ context.Context, inv *stream.Invocation) error {
			dom.ReplaceWith(inv.Target, inv.Instruction.TemplateNodes()...)
			return nil
		}),
		Update: stream.HandlerFunc(func(_ context.Context, inv *stream.Invocation) error {
			dom.ReplaceChildren(inv.Target, inv.Instruction.TemplateNodes()...)
			return nil
		}),
		Remove: stream.HandlerFunc(func(_ context.Context, inv *stream.Invocation) error {
			dom.Detach(inv.Target)
			return nil
		}),
		Before: stream.HandlerFunc(func(_ context.Context, inv *stream.Invocation) error {
			dom.InsertBefore(inv.Target, inv.Instruction.TemplateNodes()...)
			return nil
		}),
		After: stream.HandlerFunc(func(_ context.Context, inv *stream.Invocation) error {
			dom.InsertAfter(inv.Target, inv.Instruction.TemplateNodes()...)
			return nil
		}),
	}
}
