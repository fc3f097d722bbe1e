// Package e2e tests cross-package navigation chains against a live demo board.
//
// These tests drive a real drive.Session over httptest against the
// demoapp handler — the production wiring of the demo command: fetch,
// frames, streams, snapshots and history composed together.
package e2e

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hazyhaar/hyperdrive/drive"
	"github.com/hazyhaar/hyperdrive/frame"
	"github.com/hazyhaar/hyperdrive/internal/demoapp"
)

// --- test helpers ---

func newBoard(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(demoapp.New().Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T, cfg drive.Config, opts ...drive.SessionOption) *drive.Session {
	t.Helper()
	sess, err := drive.NewSession(cfg, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return sess
}

func findFrame(t *testing.T, sess *drive.Session, id string) *frame.Frame {
	t.Helper()
	for _, f := range sess.Frames() {
		if f.ID == id {
			return f
		}
	}
	t.Fatalf("frame %q not registered", id)
	return nil
}

func mustText(t *testing.T, sess *drive.Session, selector string) string {
	t.Helper()
	s, err := sess.Text(selector)
	if err != nil {
		t.Fatalf("text %q: %v", selector, err)
	}
	return s
}

func mustQuery(t *testing.T, sess *drive.Session, selector string) []string {
	t.Helper()
	m, err := sess.Query(selector)
	if err != nil {
		t.Fatalf("query %q: %v", selector, err)
	}
	return m
}

func TestE2E_Board_FullCycle(t *testing.T) {
	// WHAT: load → eager and lazy frames settle → navigate → frame form
	// posts a stream → top-level delete posts a stream → back restores
	// from cache with live permanent state.
	// WHY: the production composition of fetch, frame, stream, snapshot
	// and drive over a live server.
	srv := newBoard(t)
	sess := newSession(t, drive.Config{})
	ctx := context.Background()

	// Bootstrap load.
	out, err := sess.Load(ctx, srv.URL)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.State != drive.VisitIdle {
		t.Fatalf("load state: got %s, want %s", out.State, drive.VisitIdle)
	}
	if got := sess.Title(); got != "Home - Hyperboard" {
		t.Fatalf("title: got %q", got)
	}

	// Both frames settle under the auto reveal policy.
	if got := findFrame(t, sess, "latest").State(); got != frame.StateComplete {
		t.Fatalf("latest frame: got %s, want %s", got, frame.StateComplete)
	}
	if got := findFrame(t, sess, "activity").State(); got != frame.StateComplete {
		t.Fatalf("activity frame: got %s, want %s", got, frame.StateComplete)
	}
	if got := mustText(t, sess, "#activity-line"); !strings.Contains(got, "Load 1:") {
		t.Fatalf("activity content: got %q", got)
	}
	if got := len(mustQuery(t, sess, "#latest .latest")); got != 3 {
		t.Fatalf("latest entries: got %d, want 3", got)
	}

	// Navigate to the board.
	if _, err := sess.Click(ctx, "#nav-board"); err != nil {
		t.Fatalf("click board: %v", err)
	}
	if got := len(mustQuery(t, sess, "#messages .msg")); got != 3 {
		t.Fatalf("board rows: got %d, want 3", got)
	}

	// Frame-scoped form submission answered by a stream message.
	out, err = sess.Submit(ctx, "#compose-form", url.Values{"author": {"eve"}, "text": {"hello from the wire"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.FrameID != "compose" {
		t.Errorf("frame id: got %q, want %q", out.FrameID, "compose")
	}
	if out.Stream == nil || out.Stream.Applied != 3 {
		t.Fatalf("stream result: %+v", out.Stream)
	}
	if got := len(mustQuery(t, sess, "#messages .msg")); got != 4 {
		t.Fatalf("rows after post: got %d, want 4", got)
	}
	if got := mustText(t, sess, "#compose-status"); got != "Posted." {
		t.Fatalf("compose status: got %q", got)
	}
	if got := len(mustQuery(t, sess, "#toasts .toast")); got != 1 {
		t.Fatalf("toasts after post: got %d, want 1", got)
	}
	// Stream responses swap nothing: the compose frame kept its form.
	if got := len(mustQuery(t, sess, "#compose-form")); got != 1 {
		t.Fatalf("compose form after stream: got %d, want 1", got)
	}
	// Frame navigation leaves history alone.
	if entries, idx := sess.History(); len(entries) != 2 || idx != 1 {
		t.Fatalf("history after frame visit: %d entries at %d, want 2 at 1", len(entries), idx)
	}

	// Top-level delete link: data-hyper-confirm auto-accepts without a
	// ConfirmFunc, the stream response splices the row out in place.
	out, err = sess.Click(ctx, "#msg-1 a.delete")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if out.Stream == nil || out.Stream.Applied != 2 {
		t.Fatalf("delete stream: %+v", out.Stream)
	}
	if got := len(mustQuery(t, sess, "#msg-1")); got != 0 {
		t.Fatal("deleted row still present")
	}
	if got := len(mustQuery(t, sess, "#messages .msg")); got != 3 {
		t.Fatalf("rows after delete: got %d, want 3", got)
	}
	if got := sess.URL(); !strings.HasSuffix(got, "/messages") {
		t.Fatalf("stream response moved the document: %q", got)
	}

	// Back restores home from the snapshot cache; the permanent toast
	// container carries its live toasts into the restored page.
	out, err = sess.Back(ctx)
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if !out.Restored {
		t.Fatal("back: not restored from cache")
	}
	if got := sess.Title(); got != "Home - Hyperboard" {
		t.Fatalf("title after back: got %q", got)
	}
	if got := len(mustQuery(t, sess, "#toasts .toast")); got != 2 {
		t.Fatalf("toasts after back: got %d, want 2", got)
	}
}
