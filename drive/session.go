// CLAUDE:SUMMARY Session: owns the live document, history, snapshot cache, frame engine and stream dispatcher.
// Package drive is the navigation layer: it owns a live document and
// intercepts navigations against it the way a hypermedia runtime
// intercepts them in a browser. Links become visits, forms become
// visits with payloads, frames scope their own navigation, stream
// messages mutate the page in place and history restoration renders
// from cached snapshots without the network.
//
// A Session is safe for concurrent use, but its semantics are
// cooperative: one document, visits applied in issue order, stale
// results dropped. Hooks run inside session operations; calling back
// into the session from a hook deadlocks.
package drive

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/action"
	"github.com/hazyhaar/hyperdrive/dom"
	"github.com/hazyhaar/hyperdrive/fetch"
	"github.com/hazyhaar/hyperdrive/frame"
	"github.com/hazyhaar/hyperdrive/idgen"
	"github.com/hazyhaar/hyperdrive/snapshot"
	"github.com/hazyhaar/hyperdrive/stream"
)

// Session drives one browsing context.
type Session struct {
	id      string
	config  Config
	logger  *slog.Logger
	visitID idgen.Generator

	client     *fetch.Client
	frames     *frame.Engine
	registry   *action.Registry
	dispatcher *stream.Dispatcher
	cache      *snapshot.Cache
	hooks      Hooks
	confirmFn  ConfirmFunc
	recorder   Recorder

	// mu guards the document, its URL and history. Everything that
	// reads or mutates the page holds it.
	mu      sync.Mutex
	doc     *html.Node
	url     string
	history *history

	// visitSeq orders full-document visits; a fetched result applies
	// only if its visit is still the newest.
	visitSeq atomic.Uint64

	// pending holds frame escalations queued by the engine mid-load.
	// They run as top-level visits once the current operation ends.
	pendMu  sync.Mutex
	pending []string

	visits        atomic.Uint64
	renders       atomic.Uint64
	redirects     atomic.Uint64
	supersessions atomic.Uint64
	cancels       atomic.Uint64
	failures      atomic.Uint64
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry replaces the action registry, for sessions that need
// custom stream actions registered up front.
func WithRegistry(r *action.Registry) SessionOption {
	return func(s *Session) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithConfirm sets the confirmation function gating data-hyper-confirm
// navigations. Without one, gated visits proceed.
func WithConfirm(fn ConfirmFunc) SessionOption {
	return func(s *Session) { s.confirmFn = fn }
}

// WithHooks sets the observation hooks.
func WithHooks(h Hooks) SessionOption {
	return func(s *Session) { s.hooks = h }
}

// WithRecorder sets the visit recorder.
func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithIDGenerator replaces the visit ID generator.
func WithIDGenerator(gen idgen.Generator) SessionOption {
	return func(s *Session) {
		if gen != nil {
			s.visitID = gen
		}
	}
}

// NewSession builds a session from cfg. The session starts empty; Load
// installs the first document.
func NewSession(cfg Config, opts ...SessionOption) (*Session, error) {
	cfg.defaults()
	s := &Session{
		id:      idgen.Prefixed("sess_", idgen.Default)(),
		config:  cfg,
		logger:  slog.Default(),
		visitID: idgen.Prefixed("visit_", idgen.Default),
		history: newHistory(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = action.NewRegistry(action.WithLogger(s.logger))
	}
	cache, err := snapshot.NewCache(cfg.MaxCacheEntries, snapshot.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.cache = cache
	s.client = fetch.New(cfg.Fetch)

	dopts := []stream.Option{stream.WithLogger(s.logger)}
	if cfg.SanitizeFragments {
		dopts = append(dopts, stream.WithSanitizer(dom.NewSanitizer()))
	}
	s.dispatcher = stream.NewDispatcher(s.registry, dopts...)

	s.frames = frame.NewEngine(s.client, frame.Config{
		SwapTimeout:    cfg.SwapTimeout,
		DefaultLoading: cfg.DefaultFrameLoading,
		LazyReveal:     cfg.LazyReveal,
		MaxRedirects:   cfg.MaxRedirects,
	},
		frame.WithLogger(s.logger),
		frame.WithNavigator(pendingNavigator{s}),
		frame.WithHooks(frame.Hooks{FrameMissing: s.hooks.FrameMissing}),
	)

	doc, err := dom.ParseString("<!DOCTYPE html><html><head></head><body></body></html>")
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Registry returns the action registry, for registering custom stream
// actions after construction.
func (s *Session) Registry() *action.Registry { return s.registry }

// Load installs the document at target as the session's starting
// point. target must be absolute. History resets to this one entry;
// nothing of a previously loaded document survives.
func (s *Session) Load(ctx context.Context, target string) (*Outcome, error) {
	v := s.newVisit(target, nil)
	v.raw = true
	v.reset = true
	out, err := s.visit(ctx, v)
	s.drainPending(ctx)
	return out, err
}

// Visit navigates to target, which may be relative to the current
// document. The visit follows full interception semantics: snapshot
// capture, morph-or-replace rendering, history, supersession.
func (s *Session) Visit(ctx context.Context, target string, opts ...VisitOption) (*Outcome, error) {
	v := s.newVisit(target, opts)
	out, err := s.visit(ctx, v)
	s.drainPending(ctx)
	return out, err
}

// Back performs a backward history restoration.
func (s *Session) Back(ctx context.Context) (*Outcome, error) {
	out, err := s.restore(ctx, -1)
	s.drainPending(ctx)
	return out, err
}

// Forward performs a forward history restoration.
func (s *Session) Forward(ctx context.Context) (*Outcome, error) {
	out, err := s.restore(ctx, +1)
	s.drainPending(ctx)
	return out, err
}

// ApplyStream applies a stream message pushed from outside the visit
// cycle (a websocket or SSE payload, a test fixture). History is
// untouched; frames are rescanned afterwards.
func (s *Session) ApplyStream(ctx context.Context, r io.Reader) (*stream.Result, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	res, _, err := s.applyStream(ctx, 0, string(body))
	s.drainPending(ctx)
	return res, err
}

// Reveal marks a lazy frame visible, loading it on first reveal.
func (s *Session) Reveal(ctx context.Context, id string) error {
	s.mu.Lock()
	err := s.frames.Reveal(ctx, id)
	s.mu.Unlock()
	s.drainPending(ctx)
	return err
}

// RevealAll reveals every registered frame.
func (s *Session) RevealAll(ctx context.Context) error {
	s.mu.Lock()
	err := s.frames.RevealAll(ctx)
	s.mu.Unlock()
	s.drainPending(ctx)
	return err
}

// Frames lists the registered frames in ID order.
func (s *Session) Frames() []*frame.Frame {
	return s.frames.Frames()
}

// URL returns the current document URL, "" before the first Load.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// HTML serialises the current document.
func (s *Session) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dom.Render(s.doc)
}

// Title returns the current document title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dom.Title(s.doc)
}

// Query returns the outer HTML of every element matching selector.
func (s *Session) Query(selector string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, err := dom.Select(s.doc, selector)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, dom.Render(n))
	}
	return out, nil
}

// Text returns the visible text of the first element matching
// selector, or ErrNoMatch.
func (s *Session) Text(selector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, err := dom.SelectFirst(s.doc, selector)
	if err != nil {
		return "", err
	}
	if el == nil {
		return "", ErrNoMatch
	}
	return dom.Text(el), nil
}

// WithDocument runs fn with the live document under the session lock.
// fn must not retain the node or call back into the session.
func (s *Session) WithDocument(fn func(doc *html.Node)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// History returns a copy of the history stack and the cursor position.
func (s *Session) History() ([]HistoryEntry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.snapshot()
}

// pendingNavigator queues frame escalations instead of visiting
// inline: the engine calls it mid-load, when the session may already
// hold its own lock. Queued targets run once the operation finishes.
type pendingNavigator struct{ s *Session }

func (n pendingNavigator) VisitTop(_ context.Context, url string) error {
	n.s.pendMu.Lock()
	n.s.pending = append(n.s.pending, url)
	n.s.pendMu.Unlock()
	return nil
}

// drainPending runs queued frame escalations as top-level visits. The
// hop cap breaks escalation loops: a page whose frames keep escalating
// to pages whose frames escalate is a server bug, not a reason to spin.
func (s *Session) drainPending(ctx context.Context) {
	for hop := 0; hop < 4; hop++ {
		s.pendMu.Lock()
		if len(s.pending) == 0 {
			s.pendMu.Unlock()
			return
		}
		target := s.pending[0]
		s.pending = s.pending[1:]
		s.pendMu.Unlock()

		s.logger.Debug("drive: running escalated visit", "url", target)
		if _, err := s.visit(ctx, s.newVisit(target, nil)); err != nil {
			s.logger.Warn("drive: escalated visit failed", "url", target, "error", err)
		}
	}
	s.pendMu.Lock()
	if n := len(s.pending); n > 0 {
		s.pending = nil
		s.logger.Warn("drive: dropping queued escalations, likely a loop", "dropped", n)
	}
	s.pendMu.Unlock()
}

// Stats aggregates counters across the session and its engines.
type Stats struct {
	SessionID     string              `json:"session_id"`
	Visits        uint64              `json:"visits"`
	Renders       uint64              `json:"renders"`
	Redirects     uint64              `json:"redirects"`
	Supersessions uint64              `json:"supersessions"`
	Cancelled     uint64              `json:"cancelled"`
	Failures      uint64              `json:"failures"`
	HistoryLen    int                 `json:"history_len"`
	Frames        frame.Stats         `json:"frames"`
	Cache         snapshot.CacheStats `json:"cache"`
	Streams       stream.Stats        `json:"streams"`
}

// Stats returns a point-in-time snapshot of session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	histLen := s.history.len()
	s.mu.Unlock()
	return Stats{
		SessionID:     s.id,
		Visits:        s.visits.Load(),
		Renders:       s.renders.Load(),
		Redirects:     s.redirects.Load(),
		Supersessions: s.supersessions.Load(),
		Cancelled:     s.cancels.Load(),
		Failures:      s.failures.Load(),
		HistoryLen:    histLen,
		Frames:        s.frames.Stats(),
		Cache:         s.cache.Stats(),
		Streams:       s.dispatcher.Stats(),
	}
}
