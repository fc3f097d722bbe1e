package e2e

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/hyperdrive/drive"
	"github.com/hazyhaar/hyperdrive/journal"
	_ "modernc.org/sqlite"
)

func TestE2E_History_SearchReplaces(t *testing.T) {
	// WHAT: a GET form with data-hyper-history="replace" lands on the
	// results URL without growing the stack, and the no-cache results
	// page refetches on forward restoration instead of rendering stale.
	srv := newBoard(t)
	sess := newSession(t, drive.Config{})
	ctx := context.Background()

	if _, err := sess.Load(ctx, srv.URL); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := sess.Click(ctx, "#nav-search"); err != nil {
		t.Fatalf("click search: %v", err)
	}

	out, err := sess.Submit(ctx, "#search-form", url.Values{"q": {"frames"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.State != drive.VisitIdle {
		t.Fatalf("state: got %s, want %s", out.State, drive.VisitIdle)
	}
	if got := sess.URL(); !strings.HasSuffix(got, "/search?q=frames") {
		t.Fatalf("url: got %q", got)
	}
	if got := len(mustQuery(t, sess, "#results .hit")); got != 1 {
		t.Fatalf("hits: got %d, want 1", got)
	}

	// Replace: still two entries, the search one swapped in place.
	entries, idx := sess.History()
	if len(entries) != 2 || idx != 1 {
		t.Fatalf("history: %d entries at %d, want 2 at 1", len(entries), idx)
	}
	if !strings.HasSuffix(entries[1].URL, "/search?q=frames") {
		t.Fatalf("replaced entry: got %q", entries[1].URL)
	}

	// Home restores from cache.
	back, err := sess.Back(ctx)
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if !back.Restored {
		t.Fatal("back: not restored from cache")
	}

	// The results page opted out of the cache, so forward refetches.
	fwd, err := sess.Forward(ctx)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if fwd.Restored {
		t.Fatal("forward: restored a no-cache page, want refetch")
	}
	if got := len(mustQuery(t, sess, "#results .hit")); got != 1 {
		t.Fatalf("hits after forward: got %d, want 1", got)
	}
}

func TestE2E_Journal_RecordsVisits(t *testing.T) {
	// WHAT: a session wired to the sqlite journal leaves one row per
	// visit, frame-scoped submissions included.
	srv := newBoard(t)
	j, err := journal.Open(filepath.Join(t.TempDir(), "visits.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	sess := newSession(t, drive.Config{}, drive.WithRecorder(j))
	ctx := context.Background()

	if _, err := sess.Load(ctx, srv.URL); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := sess.Click(ctx, "#nav-board"); err != nil {
		t.Fatalf("click: %v", err)
	}
	if _, err := sess.Submit(ctx, "#compose-form", url.Values{"text": {"journaled"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	recs, err := j.Session(ctx, sess.ID(), 10)
	if err != nil {
		t.Fatalf("session records: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records: got %d, want 3", len(recs))
	}
	for _, rec := range recs {
		if rec.SessionID != sess.ID() {
			t.Errorf("record %s: session %q, want %q", rec.VisitID, rec.SessionID, sess.ID())
		}
		if rec.State != string(drive.VisitIdle) {
			t.Errorf("record %s: state %q, want %q", rec.VisitID, rec.State, drive.VisitIdle)
		}
	}

	var post *drive.VisitRecord
	for i := range recs {
		if recs[i].Method == http.MethodPost {
			post = &recs[i]
		}
	}
	if post == nil {
		t.Fatal("no POST record")
	}
	if post.FrameID != "compose" {
		t.Errorf("post record frame: got %q, want %q", post.FrameID, "compose")
	}
	if !strings.HasSuffix(post.URL, "/messages") {
		t.Errorf("post record url: got %q", post.URL)
	}

	if n, err := j.Len(ctx); err != nil || n != 3 {
		t.Fatalf("journal length: got %d (%v), want 3", n, err)
	}
}
