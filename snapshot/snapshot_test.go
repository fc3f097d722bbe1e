package snapshot

import (
	"strings"
	"testing"

	"github.com/hazyhaar/hyperdrive/dom"
)

func TestCaptureBasics(t *testing.T) {
	doc, err := dom.ParseString(`<html><head><title>Inbox</title></head><body>
		<div id="flash" data-hyper-temporary="">saved!</div>
		<div id="sidebar" data-hyper-permanent="">nav state</div>
		<p>content</p>
	</body></html>`)
	if err != nil {
		t.Fatal(err)
	}

	s := Capture(doc, "https://app.test/inbox#unread")

	if s.URL != "https://app.test/inbox" {
		t.Errorf("URL: got %q (fragment must be stripped)", s.URL)
	}
	if s.Title != "Inbox" {
		t.Errorf("Title: got %q", s.Title)
	}
	if !s.Cacheable {
		t.Error("expected cacheable")
	}
	if strings.Contains(s.HTML, "data-hyper-temporary") {
		t.Error("temporary element captured")
	}
	if len(s.PermanentIDs) != 1 || s.PermanentIDs[0] != "sidebar" {
		t.Errorf("PermanentIDs: got %v", s.PermanentIDs)
	}
	if len(s.Hash) != 64 {
		t.Errorf("Hash: got %q", s.Hash)
	}
	if s.ID == "" {
		t.Error("missing ID")
	}

	// Capture must not touch the live document.
	if dom.FindByID(doc, "flash") == nil {
		t.Error("capture stripped the live document")
	}
}

func TestCaptureHonorsNoCacheMeta(t *testing.T) {
	doc, err := dom.ParseString(`<html><head><meta name="hyper-cache-control" content="no-cache"></head><body>secret</body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	s := Capture(doc, "https://app.test/private")
	if s.Cacheable {
		t.Error("no-cache page captured as cacheable")
	}
}

func TestRestoreRoundtrip(t *testing.T) {
	doc, _ := dom.ParseString(`<html><body><p id="x">hello</p></body></html>`)
	s := Capture(doc, "https://app.test/")

	restored, err := s.Restore()
	if err != nil {
		t.Fatal(err)
	}
	if dom.Text(dom.FindByID(restored, "x")) != "hello" {
		t.Error("restored tree lost content")
	}
	// Two restores give independent trees.
	again, _ := s.Restore()
	if dom.FindByID(again, "x") == dom.FindByID(restored, "x") {
		t.Error("restores share nodes")
	}
}

func TestKey(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://a.test/x#frag", "https://a.test/x"},
		{"https://a.test/x?q=1#frag", "https://a.test/x?q=1"},
		{"https://a.test/x", "https://a.test/x"},
		{"::not a url::", "::not a url::"},
	}
	for _, tc := range cases {
		if got := Key(tc.in); got != tc.want {
			t.Errorf("Key(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func capturePage(t *testing.T, url, body string) *Snapshot {
	t.Helper()
	doc, err := dom.ParseString("<html><body>" + body + "</body></html>")
	if err != nil {
		t.Fatal(err)
	}
	return Capture(doc, url)
}

func TestCacheLRUEviction(t *testing.T) {
	c, err := NewCache(2)
	if err != nil {
		t.Fatal(err)
	}

	c.Put(capturePage(t, "https://a.test/1", "one"))
	c.Put(capturePage(t, "https://a.test/2", "two"))

	// Touch /1 so /2 is the eviction candidate.
	if _, ok := c.Get("https://a.test/1"); !ok {
		t.Fatal("missing /1")
	}

	c.Put(capturePage(t, "https://a.test/3", "three"))

	if _, ok := c.Get("https://a.test/2"); ok {
		t.Error("/2 should have been evicted")
	}
	if _, ok := c.Get("https://a.test/1"); !ok {
		t.Error("/1 should have survived")
	}
	if c.Len() != 2 {
		t.Errorf("len: got %d, want 2", c.Len())
	}

	s := c.Stats()
	if s.Evictions != 1 {
		t.Errorf("evictions: got %d, want 1", s.Evictions)
	}
}

func TestCacheReplacesSameURL(t *testing.T) {
	c, _ := NewCache(4)
	c.Put(capturePage(t, "https://a.test/p", "v1"))
	c.Put(capturePage(t, "https://a.test/p", "v2"))

	if c.Len() != 1 {
		t.Fatalf("len: got %d, want 1", c.Len())
	}
	s, _ := c.Get("https://a.test/p")
	if !strings.Contains(s.HTML, "v2") {
		t.Error("stale snapshot served")
	}
}

func TestCacheRejectsNonCacheableAndDropsStale(t *testing.T) {
	c, _ := NewCache(4)
	c.Put(capturePage(t, "https://a.test/p", "old public version"))

	doc, _ := dom.ParseString(`<html><head><meta name="hyper-cache-control" content="no-cache"></head><body>private</body></html>`)
	if ok := c.Put(Capture(doc, "https://a.test/p")); ok {
		t.Fatal("non-cacheable snapshot stored")
	}

	if _, ok := c.Get("https://a.test/p"); ok {
		t.Error("stale entry survived a non-cacheable capture of the same URL")
	}
	if c.Stats().Rejected != 1 {
		t.Errorf("rejected: got %d", c.Stats().Rejected)
	}
}

func TestCacheGetNormalisesKey(t *testing.T) {
	c, _ := NewCache(4)
	c.Put(capturePage(t, "https://a.test/page", "content"))
	if _, ok := c.Get("https://a.test/page#section-2"); !ok {
		t.Error("fragment variant missed the cache")
	}
}

func TestNewCacheRejectsZeroSize(t *testing.T) {
	if _, err := NewCache(0); err == nil {
		t.Error("expected error for zero-size cache")
	}
}
