// CLAUDE:SUMMARY Linear history stack: advance truncates the forward tail, replace swaps in place, restorations move the cursor.
package drive

import "time"

// HistoryEntry is one position in the session's history stack.
type HistoryEntry struct {
	URL     string
	VisitID string
	At      time.Time
}

// history is the back/forward stack. Not safe for concurrent use; the
// session guards it with the document lock.
type history struct {
	entries []HistoryEntry
	pos     int
}

func newHistory() *history {
	return &history{pos: -1}
}

func (h *history) current() (HistoryEntry, bool) {
	if h.pos < 0 || h.pos >= len(h.entries) {
		return HistoryEntry{}, false
	}
	return h.entries[h.pos], true
}

// advance pushes a new entry, discarding any forward tail.
func (h *history) advance(e HistoryEntry) {
	h.entries = append(h.entries[:h.pos+1], e)
	h.pos = len(h.entries) - 1
}

// replace swaps the current entry in place. On an empty stack it
// behaves like advance.
func (h *history) replace(e HistoryEntry) {
	if h.pos < 0 {
		h.advance(e)
		return
	}
	h.entries[h.pos] = e
}

// peekBack returns the entry a backward restoration would land on.
// The cursor does not move until the restoration succeeds.
func (h *history) peekBack() (HistoryEntry, bool) {
	if h.pos <= 0 {
		return HistoryEntry{}, false
	}
	return h.entries[h.pos-1], true
}

// peekForward returns the entry a forward restoration would land on.
func (h *history) peekForward() (HistoryEntry, bool) {
	if h.pos < 0 || h.pos+1 >= len(h.entries) {
		return HistoryEntry{}, false
	}
	return h.entries[h.pos+1], true
}

func (h *history) commitBack()    { h.pos-- }
func (h *history) commitForward() { h.pos++ }

func (h *history) len() int { return len(h.entries) }

// snapshot copies the stack for read surfaces.
func (h *history) snapshot() ([]HistoryEntry, int) {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out, h.pos
}
