// CLAUDE:SUMMARY Frame engine: registry reconciliation, eager/lazy loading, scoped swaps, mismatch escalation, per-frame supersession.
package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
	"github.com/hazyhaar/hyperdrive/fetch"
)

var (
	ErrDuplicate    = errors.New("frame: already registered")
	ErrUnknownFrame = errors.New("frame: not registered")
	ErrDisabled     = errors.New("frame: frame is disabled")
)

// MismatchError reports a frame response that carried no element with
// the frame's id.
type MismatchError struct {
	FrameID    string
	URL        string
	StatusCode int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("frame: response from %s has no element with id %q", e.URL, e.FrameID)
}

// Navigator escalates from frame scope to a full-document visit. The
// drive session implements it; a nil navigator turns escalation into
// a returned MismatchError.
type Navigator interface {
	VisitTop(ctx context.Context, url string) error
}

// Hooks are optional engine callbacks. All fields are nil-safe.
type Hooks struct {
	// BeforeSwap runs before a frame's content is replaced. A non-nil
	// returned channel delays the swap until the channel closes, the
	// context ends, or SwapTimeout elapses, whichever comes first; the
	// swap then proceeds regardless.
	BeforeSwap func(f *Frame, fragment []*html.Node) <-chan struct{}
	// FrameMissing observes mismatch failures. Returning true marks
	// the mismatch handled and suppresses the default escalation.
	FrameMissing func(f *Frame, resp *fetch.Response) bool
}

// RevealPolicy decides when lazy frames count as visible.
type RevealPolicy string

const (
	// RevealAuto treats every rescan as a visibility transition, the
	// infinite-viewport reading for a headless engine. Default.
	RevealAuto RevealPolicy = "auto"
	// RevealManual loads lazy frames only after an explicit Reveal.
	RevealManual RevealPolicy = "manual"
)

// Config configures the Engine.
type Config struct {
	SwapTimeout    time.Duration // bound on BeforeSwap waits. Default: 500ms.
	DefaultLoading LoadingMode   // frames without a loading attr. Default: eager.
	LazyReveal     RevealPolicy  // default: RevealAuto.
	MaxRedirects   int           // per frame load. Default: 5.
}

func (c *Config) defaults() {
	if c.SwapTimeout <= 0 {
		c.SwapTimeout = 500 * time.Millisecond
	}
	if c.DefaultLoading == "" {
		c.DefaultLoading = LoadEager
	}
	if c.LazyReveal == "" {
		c.LazyReveal = RevealAuto
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
}

// Outcome reports how a frame load ended.
type Outcome struct {
	FrameID    string
	URL        string // final URL after redirects
	StatusCode int
	Superseded bool // a newer load won; nothing was applied
	Escalated  bool // mismatch escalated to a full-document visit

	// StreamBody holds an unapplied stream response to a frame-scoped
	// request. The engine swaps nothing: the caller dispatches the
	// body against its own document.
	StreamBody string
}

// Engine owns every Frame in the live document. The registry is
// guarded internally; mutation of the document itself is serialised by
// the caller (the drive session holds its document lock across Rescan).
type Engine struct {
	client    *fetch.Client
	config    Config
	hooks     Hooks
	navigator Navigator
	logger    *slog.Logger

	mu     sync.Mutex
	frames map[string]*Frame

	loads         atomic.Uint64
	swaps         atomic.Uint64
	mismatches    atomic.Uint64
	supersessions atomic.Uint64
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNavigator sets the escalation target for frame mismatches.
func WithNavigator(n Navigator) Option {
	return func(e *Engine) { e.navigator = n }
}

// WithHooks sets the engine hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// NewEngine creates an Engine fetching through client.
func NewEngine(client *fetch.Client, cfg Config, opts ...Option) *Engine {
	cfg.defaults()
	e := &Engine{
		client: client,
		config: cfg,
		logger: slog.Default(),
		frames: make(map[string]*Frame),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register records el in the registry. Eager frames with a src begin
// loading before Register returns; lazy frames wait for Reveal or the
// next Rescan under the auto policy.
func (e *Engine) Register(ctx context.Context, el *html.Node) (*Frame, error) {
	f, err := e.register(el)
	if err != nil {
		return nil, err
	}
	if !f.Disabled && f.state == StateUnloaded && f.Src != "" && f.Loading == LoadEager {
		if _, err := e.Load(ctx, f, f.Src); err != nil {
			return f, err
		}
	}
	return f, nil
}

func (e *Engine) register(el *html.Node) (*Frame, error) {
	f, err := parseFrame(el, e.config.DefaultLoading)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.frames[f.ID]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicate, f.ID)
	}
	e.frames[f.ID] = f
	return f, nil
}

// Unregister drops a frame from the registry. In-flight loads for it
// are discarded at apply time.
func (e *Engine) Unregister(id string) {
	e.mu.Lock()
	delete(e.frames, id)
	e.mu.Unlock()
}

// Lookup returns the registered frame with the given id.
func (e *Engine) Lookup(id string) (*Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.frames[id]
	return f, ok
}

// Frames returns the registered frames sorted by id.
func (e *Engine) Frames() []*Frame {
	e.mu.Lock()
	out := make([]*Frame, 0, len(e.frames))
	for _, f := range e.frames {
		out = append(out, f)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rescan reconciles the registry against the live document: frames are
// created on DOM insertion and destroyed on removal. It then runs the
// loading pass in document order: unloaded eager frames load, lazy
// frames load per the reveal policy, and a registered frame whose src
// attribute changed reloads. Load failures are logged and joined; they
// never abort the rest of the pass.
func (e *Engine) Rescan(ctx context.Context, doc *html.Node) error {
	els := dom.ElementsByTag(doc, Tag)

	e.mu.Lock()
	seen := make(map[string]bool, len(els))
	order := make([]*Frame, 0, len(els))
	for _, el := range els {
		id := dom.ID(el)
		if id == "" {
			e.logger.Warn("frame: ignoring hyper-frame without id")
			continue
		}
		if seen[id] {
			e.logger.Warn("frame: duplicate frame id in document", "frame", id)
			continue
		}
		seen[id] = true

		cur, ok := e.frames[id]
		switch {
		case !ok:
			f, err := parseFrame(el, e.config.DefaultLoading)
			if err != nil {
				e.logger.Warn("frame: skipping frame", "frame", id, "error", err)
				continue
			}
			e.frames[id] = f
			order = append(order, f)
		case cur.Element == el:
			// Same node survived the render (morph). Only a src
			// change triggers a reload.
			if src := dom.Attr(el, AttrSrc); src != cur.Src {
				cur.Src = src
				if src != "" {
					cur.state = StateUnloaded
				}
			}
			order = append(order, cur)
		default:
			// Same id on a new node: the render replaced the element,
			// so identity and state come from its markup again. A
			// complete marker serialised into a snapshot keeps a
			// restored frame from refetching.
			f, err := parseFrame(el, e.config.DefaultLoading)
			if err != nil {
				e.logger.Warn("frame: skipping frame", "frame", id, "error", err)
				delete(e.frames, id)
				continue
			}
			f.visible = cur.visible
			e.frames[id] = f
			order = append(order, f)
		}
	}
	for id := range e.frames {
		if !seen[id] {
			delete(e.frames, id)
		}
	}
	e.mu.Unlock()

	var errs []error
	for _, f := range order {
		if f.Disabled || f.Src == "" || f.state != StateUnloaded {
			continue
		}
		switch {
		case f.Loading == LoadEager:
		case e.config.LazyReveal == RevealAuto:
			f.visible = true
		case f.visible:
		default:
			continue
		}
		if _, err := e.Load(ctx, f, f.Src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reveal marks a frame visible, the headless stand-in for scrolling it
// into the viewport. The first reveal of an unloaded frame with a src
// triggers its load; repeat reveals are no-ops, so exactly one load
// fires per visibility transition.
func (e *Engine) Reveal(ctx context.Context, id string) error {
	e.mu.Lock()
	f, ok := e.frames[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownFrame, id)
	}
	if f.visible {
		e.mu.Unlock()
		return nil
	}
	f.visible = true
	load := !f.Disabled && f.state == StateUnloaded && f.Src != ""
	e.mu.Unlock()

	if !load {
		return nil
	}
	_, err := e.Load(ctx, f, f.Src)
	return err
}

// RevealAll reveals every registered frame.
func (e *Engine) RevealAll(ctx context.Context) error {
	var errs []error
	for _, f := range e.Frames() {
		if err := e.Reveal(ctx, f.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load navigates a frame to url. The response must contain an element
// carrying the frame's id; that element's children replace the frame's
// content, the src attribute is updated and the frame completes.
// Redirects are followed within the frame. A Load issued while another
// is in flight supersedes it: the stale result is discarded at apply
// time and the frame never shows stale content.
func (e *Engine) Load(ctx context.Context, f *Frame, url string) (*Outcome, error) {
	return e.LoadRequest(ctx, f, &fetch.Request{URL: url})
}

// LoadRequest is Load with full control of the request, for form
// submissions scoped to a frame.
func (e *Engine) LoadRequest(ctx context.Context, f *Frame, req *fetch.Request) (*Outcome, error) {
	if f == nil {
		return nil, ErrUnknownFrame
	}
	e.mu.Lock()
	if cur, ok := e.frames[f.ID]; !ok || cur != f {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.ID)
	}
	if f.Disabled {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDisabled, f.ID)
	}
	prev := f.state
	f.state = StateLoading
	f.loadSeq++
	seq := f.loadSeq
	e.mu.Unlock()

	e.loads.Add(1)
	out := &Outcome{FrameID: f.ID, URL: req.URL}

	resp, err := e.fetchFrame(ctx, f.ID, req)
	if err != nil {
		if !e.settle(f, seq, StateError) {
			return e.superseded(out), nil
		}
		return out, err
	}
	out.URL = resp.URL
	out.StatusCode = resp.StatusCode

	if respErr := resp.Err(); respErr != nil {
		if !e.settle(f, seq, StateError) {
			return e.superseded(out), nil
		}
		return out, respErr
	}

	// A stream response answers the request without a frame swap. The
	// frame keeps its prior state; the body travels up unapplied.
	if resp.IsStream() {
		if !e.settle(f, seq, prev) {
			return e.superseded(out), nil
		}
		out.StreamBody = string(resp.Body)
		e.logger.Debug("frame: stream response", "frame", f.ID, "url", resp.URL)
		return out, nil
	}

	doc, err := dom.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		if !e.settle(f, seq, StateError) {
			return e.superseded(out), nil
		}
		return out, err
	}

	match := dom.FindByID(doc, f.ID)
	if match == nil {
		e.mismatches.Add(1)
		return e.missing(ctx, f, seq, out, resp)
	}

	fragment := detachChildren(match)
	e.waitBeforeSwap(ctx, f, fragment)

	e.mu.Lock()
	if e.frames[f.ID] != f || f.loadSeq != seq {
		e.mu.Unlock()
		return e.superseded(out), nil
	}
	dom.ReplaceChildren(f.Element, fragment...)
	f.Src = resp.URL
	dom.SetAttr(f.Element, AttrSrc, resp.URL)
	dom.SetAttr(f.Element, AttrComplete, "")
	f.state = StateComplete
	e.mu.Unlock()

	e.swaps.Add(1)
	e.logger.Debug("frame: loaded", "frame", f.ID, "url", resp.URL, "status", resp.StatusCode)
	return out, nil
}

// fetchFrame issues the scoped request, following redirects in-frame.
// Hops after the first request are plain GETs, so a POST that answers
// 303 lands on the target the way a browser would.
func (e *Engine) fetchFrame(ctx context.Context, id string, req *fetch.Request) (*fetch.Response, error) {
	req.FrameID = id
	for hop := 0; ; hop++ {
		resp, err := e.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if !resp.IsRedirect() {
			return resp, nil
		}
		if hop >= e.config.MaxRedirects {
			return nil, fmt.Errorf("frame: %q: stopped after %d redirects", id, e.config.MaxRedirects)
		}
		req = &fetch.Request{URL: resp.Location(), FrameID: id}
	}
}

// settle moves the frame to state if seq is still its newest load.
// A false return means the load was superseded or the frame replaced.
func (e *Engine) settle(f *Frame, seq uint64, state State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frames[f.ID] != f || f.loadSeq != seq {
		return false
	}
	f.state = state
	return true
}

func (e *Engine) superseded(out *Outcome) *Outcome {
	e.supersessions.Add(1)
	out.Superseded = true
	return out
}

// missing handles a response with no matching frame element: hook
// first, then escalation to a full-document visit, then the bare error.
func (e *Engine) missing(ctx context.Context, f *Frame, seq uint64, out *Outcome, resp *fetch.Response) (*Outcome, error) {
	if !e.settle(f, seq, StateError) {
		return e.superseded(out), nil
	}
	e.logger.Warn("frame: response missing frame element", "frame", f.ID, "url", resp.URL)
	if e.hooks.FrameMissing != nil && e.hooks.FrameMissing(f, resp) {
		return out, nil
	}
	if e.navigator != nil {
		out.Escalated = true
		if err := e.navigator.VisitTop(ctx, resp.URL); err != nil {
			return out, fmt.Errorf("frame: escalate %q: %w", f.ID, err)
		}
		return out, nil
	}
	return out, &MismatchError{FrameID: f.ID, URL: resp.URL, StatusCode: resp.StatusCode}
}

func (e *Engine) waitBeforeSwap(ctx context.Context, f *Frame, fragment []*html.Node) {
	if e.hooks.BeforeSwap == nil {
		return
	}
	ch := e.hooks.BeforeSwap(f, fragment)
	if ch == nil {
		return
	}
	t := time.NewTimer(e.config.SwapTimeout)
	defer t.Stop()
	select {
	case <-ch:
	case <-ctx.Done():
	case <-t.C:
		e.logger.Warn("frame: before-swap hook timed out, forcing swap", "frame", f.ID, "timeout", e.config.SwapTimeout)
	}
}

func detachChildren(n *html.Node) []*html.Node {
	var kids []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		kids = append(kids, c)
	}
	for _, k := range kids {
		dom.Detach(k)
	}
	return kids
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Registered    int
	Loads         uint64
	Swaps         uint64
	Mismatches    uint64
	Supersessions uint64
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	registered := len(e.frames)
	e.mu.Unlock()
	return Stats{
		Registered:    registered,
		Loads:         e.loads.Load(),
		Swaps:         e.swaps.Load(),
		Mismatches:    e.mismatches.Load(),
		Supersessions: e.supersessions.Load(),
	}
}
