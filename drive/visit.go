// CLAUDE:SUMMARY Visit types: lifecycle states, history actions, per-visit options and the Outcome report.
package drive

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/frame"
	"github.com/hazyhaar/hyperdrive/stream"
)

// VisitState tracks a visit through its lifecycle. A visit that lands
// ends back at VisitIdle; VisitCancelled and VisitErrored are terminal.
type VisitState string

const (
	VisitIdle       VisitState = "idle"
	VisitConfirming VisitState = "confirming"
	VisitRequesting VisitState = "requesting"
	VisitRendering  VisitState = "rendering"
	VisitCancelled  VisitState = "cancelled"
	VisitErrored    VisitState = "errored"
)

// HistoryAction decides what a landing visit does to the history stack.
type HistoryAction string

const (
	// ActionAdvance pushes a new entry and discards the forward tail.
	ActionAdvance HistoryAction = "advance"
	// ActionReplace swaps the current entry in place.
	ActionReplace HistoryAction = "replace"
	// ActionNone leaves history untouched (restorations, stream-only
	// responses, frame navigations).
	ActionNone HistoryAction = "none"
)

// Visit is one logical navigation: a click, a form submission, a
// programmatic Visit call or a history restoration. A visit never
// mutates once issued; a later visit to an overlapping scope
// supersedes it and its result is dropped at apply time.
type Visit struct {
	ID        string
	URL       string // absolute once the session resolves it
	Method    string
	Action    HistoryAction
	FrameID   string     // non-empty for frame-scoped visits
	Form      url.Values // query for GET, urlencoded body otherwise
	Element   *html.Node // triggering element, nil for programmatic visits
	Restore   bool       // history restoration
	StartedAt time.Time

	confirm string // confirmation payload, "" when ungated
	raw     bool   // full load outside interception semantics
	reset   bool   // bootstrap load, resets history
	state   VisitState
	seq     uint64
}

// State returns the visit's current lifecycle state.
func (v *Visit) State() VisitState { return v.state }

// VisitOption customises a programmatic visit.
type VisitOption func(*Visit)

// WithAction overrides the history action.
func WithAction(a HistoryAction) VisitOption {
	return func(v *Visit) { v.Action = a }
}

// WithMethod overrides the HTTP method.
func WithMethod(m string) VisitOption {
	return func(v *Visit) { v.Method = m }
}

// WithForm attaches form values: query string for GET, urlencoded body
// for everything else.
func WithForm(f url.Values) VisitOption {
	return func(v *Visit) { v.Form = f }
}

// WithFrame scopes the visit to a registered frame.
func WithFrame(id string) VisitOption {
	return func(v *Visit) { v.FrameID = id }
}

// WithConfirmMessage gates the visit on the session's confirmation
// function, as if the triggering element carried the message.
func WithConfirmMessage(msg string) VisitOption {
	return func(v *Visit) { v.confirm = msg }
}

// Outcome reports how a visit ended.
type Outcome struct {
	Visit      *Visit
	State      VisitState
	URL        string // final URL after redirects
	StatusCode int
	Redirected bool
	Superseded bool // result dropped in favour of a newer visit
	Restored   bool // rendered from the snapshot cache, no network
	FrameID    string
	Frame      *frame.Outcome // set for frame-scoped visits
	Stream     *stream.Result // set when the response was a stream message
	Duration   time.Duration
}

func (s *Session) newVisit(target string, opts []VisitOption) *Visit {
	v := &Visit{
		ID:        s.visitID(),
		URL:       target,
		Method:    http.MethodGet,
		Action:    s.config.DefaultHistoryAction,
		StartedAt: time.Now(),
		state:     VisitIdle,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}
