package drive

import "errors"

var (
	// ErrNoDocument is returned by operations that need a loaded
	// document before any Load or Visit has landed.
	ErrNoDocument = errors.New("drive: no document loaded")

	// ErrNoMatch is returned when a selector matches nothing.
	ErrNoMatch = errors.New("drive: no element matches selector")

	// ErrNoHistory is returned by Back and Forward at the end of the
	// stack.
	ErrNoHistory = errors.New("drive: no history entry in that direction")

	// ErrNotForm is returned by Submit when the selector resolves to
	// an element that is not a form.
	ErrNotForm = errors.New("drive: element is not a form")

	// ErrNoHref is returned by Click when the element has nothing to
	// navigate to.
	ErrNoHref = errors.New("drive: element has no href")
)
