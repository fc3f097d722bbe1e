// CLAUDE:SUMMARY Ordered application of stream instructions to a live document, with per-message results and lifetime stats.
package stream

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
)

// Handler applies one instruction to one resolved target.
type Handler interface {
	Apply(ctx context.Context, inv *Invocation) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

// Apply implements Handler.
func (f HandlerFunc) Apply(ctx context.Context, inv *Invocation) error {
	return f(ctx, inv)
}

// Invocation is everything a handler gets to work with: the parsed
// instruction, one resolved target element, and the whole document
// for handlers that reach beyond their target.
type Invocation struct {
	Instruction *Instruction
	Target      *html.Node
	Document    *html.Node
}

// Resolver maps action names to handlers. The action registry
// implements it; tests can use a plain map via ResolverFunc.
type Resolver interface {
	Resolve(action string) (Handler, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(action string) (Handler, bool)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(action string) (Handler, bool) {
	return f(action)
}

// Dispatcher applies stream messages to live documents.
//
// Instructions run strictly in document order. Targets are resolved
// against the document as it exists when the instruction runs, so an
// element appended by one instruction is addressable by the next.
// There is no rollback: a failing instruction leaves earlier
// mutations in place and later instructions still run.
type Dispatcher struct {
	resolver  Resolver
	logger    *slog.Logger
	sanitizer *dom.Sanitizer

	messages atomic.Uint64
	applied  atomic.Uint64
	noTarget atomic.Uint64
	unknown  atomic.Uint64
	failed   atomic.Uint64
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSanitizer scrubs incoming message markup before parsing.
func WithSanitizer(s *dom.Sanitizer) Option {
	return func(d *Dispatcher) { d.sanitizer = s }
}

// NewDispatcher creates a Dispatcher resolving actions through r.
func NewDispatcher(r Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver: r,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Result summarises one message application. Counters are per
// instruction: an instruction fanned out over several targets counts
// once, under Applied when every target succeeded, under Failed
// otherwise.
type Result struct {
	Applied     int
	NoTarget    int
	Unknown     int
	Failed      int
	Diagnostics []Diagnostic
}

// Apply parses markup as a stream message and applies it to doc.
func (d *Dispatcher) Apply(ctx context.Context, doc *html.Node, markup string) (*Result, error) {
	if d.sanitizer != nil {
		markup = d.sanitizer.Fragment(markup)
	}
	msg, err := ParseMessage(markup)
	if err != nil {
		return nil, err
	}
	return d.ApplyMessage(ctx, doc, msg), nil
}

// ApplyMessage applies an already parsed message to doc. Parse-time
// diagnostics are carried into the result.
func (d *Dispatcher) ApplyMessage(ctx context.Context, doc *html.Node, msg *Message) *Result {
	d.messages.Add(1)
	res := &Result{}
	res.Diagnostics = append(res.Diagnostics, msg.Diagnostics...)

	for i := range msg.Instructions {
		if ctx.Err() != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Index: i, Reason: "context cancelled, remaining instructions dropped",
			})
			break
		}
		d.applyOne(ctx, doc, i, &msg.Instructions[i], res)
	}
	return res
}

func (d *Dispatcher) applyOne(ctx context.Context, doc *html.Node, idx int, in *Instruction, res *Result) {
	handler, ok := d.resolver.Resolve(in.Action)
	if !ok {
		res.Unknown++
		d.unknown.Add(1)
		res.Diagnostics = append(res.Diagnostics, Diagnostic{Index: idx, Action: in.Action, Reason: "unknown action"})
		d.logger.Warn("stream: unknown action", "action", in.Action)
		return
	}

	if in.Targets != "" && in.Target != "" {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Index: idx, Action: in.Action, Reason: "both target and targets set, targets wins",
		})
	}

	targets, reason := resolveTargets(doc, in)
	if reason != "" {
		res.Failed++
		d.failed.Add(1)
		res.Diagnostics = append(res.Diagnostics, Diagnostic{Index: idx, Action: in.Action, Reason: reason})
		d.logger.Warn("stream: bad instruction", "action", in.Action, "reason", reason)
		return
	}
	if len(targets) == 0 {
		res.NoTarget++
		d.noTarget.Add(1)
		res.Diagnostics = append(res.Diagnostics, Diagnostic{Index: idx, Action: in.Action, Reason: "no matching target"})
		d.logger.Debug("stream: no target", "action", in.Action, "target", in.Target, "targets", in.Targets)
		return
	}

	failedTargets := 0
	for _, tgt := range targets {
		inv := &Invocation{Instruction: in, Target: tgt, Document: doc}
		if err := handler.Apply(ctx, inv); err != nil {
			failedTargets++
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Index: idx, Action: in.Action, Reason: err.Error()})
			d.logger.Warn("stream: handler error", "action", in.Action, "error", err)
		}
	}
	if failedTargets > 0 {
		res.Failed++
		d.failed.Add(1)
		return
	}
	res.Applied++
	d.applied.Add(1)
	d.logger.Debug("stream: applied", "action", in.Action, "targets", len(targets))
}

func resolveTargets(doc *html.Node, in *Instruction) ([]*html.Node, string) {
	if in.Targets != "" {
		sel, err := dom.Compile(in.Targets)
		if err != nil {
			return nil, "targets selector: " + err.Error()
		}
		return sel.MatchAll(doc), ""
	}
	if tgt := dom.FindByID(doc, in.Target); tgt != nil {
		return []*html.Node{tgt}, ""
	}
	return nil, ""
}

// Stats are lifetime dispatcher counters, safe to read concurrently.
type Stats struct {
	Messages uint64 `json:"messages"`
	Applied  uint64 `json:"applied"`
	NoTarget uint64 `json:"no_target"`
	Unknown  uint64 `json:"unknown"`
	Failed   uint64 `json:"failed"`
}

// Stats returns a snapshot of the lifetime counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Messages: d.messages.Load(),
		Applied:  d.applied.Load(),
		NoTarget: d.noTarget.Load(),
		Unknown:  d.unknown.Load(),
		Failed:   d.failed.Load(),
	}
}
