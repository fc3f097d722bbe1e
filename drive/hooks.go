// CLAUDE:SUMMARY Session hooks, the confirmation gate and the visit Recorder contract.
package drive

import (
	"context"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/fetch"
	"github.com/hazyhaar/hyperdrive/frame"
)

// Confirmation is the payload handed to the confirmation function. The
// message is the raw data-hyper-confirm value; the session never
// interprets it.
type Confirmation struct {
	Message string
	URL     string
	Element *html.Node // nil for programmatic visits
}

// ConfirmFunc decides whether a gated visit proceeds. A nil function
// auto-accepts. An error counts as declined: the visit cancels and no
// request is issued.
type ConfirmFunc func(ctx context.Context, c Confirmation) (bool, error)

// Hooks observe and steer the session. Every field is optional.
type Hooks struct {
	// BeforeVisit runs before confirmation and network traffic.
	// Returning false cancels the visit.
	BeforeVisit func(v *Visit) bool

	// VisitStarted runs once the request is about to be issued.
	VisitStarted func(v *Visit)

	// BeforeRender runs with the document locked, before a full-page
	// render applies. Returning proceed=false cancels the render and
	// the visit. A non-nil hold channel delays the render until it
	// closes, bounded by Config.SwapTimeout.
	BeforeRender func(v *Visit, next *html.Node) (proceed bool, hold <-chan struct{})

	// RenderComplete runs after the document and its frames settle.
	RenderComplete func(v *Visit)

	// FrameMissing runs when a frame response lacks the expected frame
	// element. Returning true keeps the frame's current content and
	// suppresses escalation.
	FrameMissing func(f *frame.Frame, resp *fetch.Response) bool

	// Error observes terminal visit failures.
	Error func(v *Visit, err error)
}

// Recorder receives a record of every finished visit, including
// cancelled and superseded ones. Called inline after the visit
// settles; implementations that write somewhere slow should buffer.
type Recorder interface {
	Record(ctx context.Context, rec VisitRecord)
}

// VisitRecord is the flattened, storage-friendly view of an outcome.
type VisitRecord struct {
	VisitID    string
	SessionID  string
	URL        string
	Method     string
	FrameID    string
	Action     string
	State      string
	StatusCode int
	Redirected bool
	Superseded bool
	Restored   bool
	Error      string
	Duration   time.Duration
	At         time.Time
}
