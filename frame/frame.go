// CLAUDE:SUMMARY Frame identity and state: one Frame per <hyper-frame> element, parsed from markup, mutated only by the Engine.
// Package frame scopes navigation to <hyper-frame> subtrees.
//
// The Engine keeps a registry of frames found in the live document.
// Eager frames with a src load as soon as they are seen; lazy frames
// wait for Reveal (or load on sight under the auto reveal policy).
// A frame load expects the response to contain an element carrying the
// frame's id; only that element's children are swapped into the live
// frame, the rest of the document stays put.
package frame

import (
	"errors"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
)

// Tag is the frame boundary element.
const Tag = "hyper-frame"

// Attributes read from hyper-frame elements. AttrComplete is stamped by
// the Engine when a load finishes; it rides along in snapshot
// serialisation, so restored frames that had completed do not refetch.
const (
	AttrSrc      = "src"
	AttrLoading  = "loading"
	AttrTarget   = "target"
	AttrDisabled = "disabled"
	AttrComplete = "complete"
)

// AttrNavTarget overrides where an interaction lands, set on the
// triggering element or any ancestor. "_self" keeps the owning frame,
// "_top" escalates to the whole document, anything else names a frame.
const AttrNavTarget = "data-hyper-frame"

// TargetSelf and TargetTop are the reserved AttrNavTarget values.
const (
	TargetSelf = "_self"
	TargetTop  = "_top"
)

var (
	ErrNotFrame  = errors.New("frame: element is not a hyper-frame")
	ErrMissingID = errors.New("frame: element has no id")
)

// LoadingMode controls when a frame with a src fetches it.
type LoadingMode string

const (
	LoadEager LoadingMode = "eager"
	LoadLazy  LoadingMode = "lazy"
)

// State is the frame's position in its load lifecycle. Loading is
// re-entered from Complete on subsequent navigation.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Frame is the Engine's record of one hyper-frame element. Identity
// fields come from markup. Runtime state is owned by the Engine; other
// packages read it through State and Visible.
type Frame struct {
	ID       string
	Element  *html.Node
	Src      string
	Loading  LoadingMode
	Target   string // default nav override for interactions inside this frame
	Disabled bool

	state   State
	visible bool
	loadSeq uint64
}

// State returns the frame's current lifecycle state.
func (f *Frame) State() State { return f.state }

// Visible reports whether the frame has been revealed.
func (f *Frame) Visible() bool { return f.visible }

func parseFrame(el *html.Node, defaultLoading LoadingMode) (*Frame, error) {
	if el == nil || el.Type != html.ElementNode || el.Data != Tag {
		return nil, ErrNotFrame
	}
	id := dom.ID(el)
	if id == "" {
		return nil, ErrMissingID
	}
	f := &Frame{
		ID:       id,
		Element:  el,
		Src:      dom.Attr(el, AttrSrc),
		Loading:  defaultLoading,
		Target:   dom.Attr(el, AttrTarget),
		Disabled: dom.HasAttr(el, AttrDisabled),
		state:    StateUnloaded,
	}
	switch LoadingMode(dom.Attr(el, AttrLoading)) {
	case LoadEager:
		f.Loading = LoadEager
	case LoadLazy:
		f.Loading = LoadLazy
	}
	if f.Src != "" && dom.HasAttr(el, AttrComplete) {
		f.state = StateComplete
	}
	return f, nil
}
