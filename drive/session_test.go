package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
	"github.com/hazyhaar/hyperdrive/fetch"
	"github.com/hazyhaar/hyperdrive/stream"
)

// site is a test server with per-path hit counting.
type site struct {
	mux *http.ServeMux
	srv *httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{mux: http.NewServeMux(), hits: map[string]int{}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		s.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) page(path, title, body string) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>%s</title></head><body>%s</body></html>", title, body)
	})
}

func (s *site) handle(path string, h http.HandlerFunc) {
	s.mux.HandleFunc(path, h)
}

func (s *site) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *site) url(path string) string { return s.srv.URL + path }

func newSession(t *testing.T, opts ...SessionOption) *Session {
	t.Helper()
	sess, err := NewSession(Config{}, opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func load(t *testing.T, sess *Session, target string) {
	t.Helper()
	if _, err := sess.Load(context.Background(), target); err != nil {
		t.Fatalf("Load(%s): %v", target, err)
	}
}

func TestLoadInstallsDocument(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", `<p id="p">hello</p>`)
	sess := newSession(t)

	out, err := sess.Load(context.Background(), site.url("/one"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.State != VisitIdle {
		t.Fatalf("state: got %q, want %q", out.State, VisitIdle)
	}
	if got := sess.URL(); got != site.url("/one") {
		t.Errorf("URL: got %q, want %q", got, site.url("/one"))
	}
	if got := sess.Title(); got != "One" {
		t.Errorf("Title: got %q, want %q", got, "One")
	}
	entries, pos := sess.History()
	if len(entries) != 1 || pos != 0 {
		t.Errorf("history: got %d entries at pos %d, want 1 at 0", len(entries), pos)
	}
}

func TestLoadRequiresAbsoluteURL(t *testing.T) {
	sess := newSession(t)
	if _, err := sess.Load(context.Background(), "/relative"); err == nil {
		t.Fatal("Load with relative URL: got nil error")
	}
}

func TestVisitAdvancesHistory(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/two", "Two", "")
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	out, err := sess.Visit(context.Background(), "/two")
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if out.URL != site.url("/two") {
		t.Errorf("outcome URL: got %q, want %q", out.URL, site.url("/two"))
	}
	if got := sess.Title(); got != "Two" {
		t.Errorf("Title: got %q, want %q", got, "Two")
	}
	entries, pos := sess.History()
	if len(entries) != 2 || pos != 1 {
		t.Fatalf("history: got %d entries at pos %d, want 2 at 1", len(entries), pos)
	}
	if entries[0].URL != site.url("/one") || entries[1].URL != site.url("/two") {
		t.Errorf("history entries: got %q then %q", entries[0].URL, entries[1].URL)
	}
}

func TestVisitReplaceKeepsHistoryLength(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/two", "Two", "")
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	if _, err := sess.Visit(context.Background(), "/two", WithAction(ActionReplace)); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	entries, pos := sess.History()
	if len(entries) != 1 || pos != 0 {
		t.Fatalf("history: got %d entries at pos %d, want 1 at 0", len(entries), pos)
	}
	if entries[0].URL != site.url("/two") {
		t.Errorf("history head: got %q, want %q", entries[0].URL, site.url("/two"))
	}
}

func TestVisitAdvanceDiscardsForwardTail(t *testing.T) {
	site := newSite(t)
	for _, p := range []string{"/a", "/b", "/c"} {
		site.page(p, strings.ToUpper(p[1:]), "")
	}
	sess := newSession(t)
	load(t, sess, site.url("/a"))
	ctx := context.Background()
	if _, err := sess.Visit(ctx, "/b"); err != nil {
		t.Fatalf("Visit /b: %v", err)
	}
	if _, err := sess.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if _, err := sess.Visit(ctx, "/c"); err != nil {
		t.Fatalf("Visit /c: %v", err)
	}

	entries, pos := sess.History()
	if len(entries) != 2 || pos != 1 {
		t.Fatalf("history: got %d entries at pos %d, want 2 at 1", len(entries), pos)
	}
	if entries[1].URL != site.url("/c") {
		t.Errorf("forward tail not discarded: tail is %q", entries[1].URL)
	}
	if _, err := sess.Forward(ctx); !errors.Is(err, ErrNoHistory) {
		t.Errorf("Forward after truncation: got %v, want ErrNoHistory", err)
	}
}

func TestBackRestoresFromCacheWithoutNetwork(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", `<p id="m">first</p>`)
	site.page("/two", "Two", "")
	sess := newSession(t)
	load(t, sess, site.url("/one"))
	ctx := context.Background()
	if _, err := sess.Visit(ctx, "/two"); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	before := site.count("/one")
	out, err := sess.Back(ctx)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if !out.Restored {
		t.Error("outcome: Restored not set on cache hit")
	}
	if got := site.count("/one"); got != before {
		t.Errorf("restoration hit the network: %d requests, want %d", got, before)
	}
	if got := sess.Title(); got != "One" {
		t.Errorf("Title after Back: got %q, want %q", got, "One")
	}
	if _, pos := sess.History(); pos != 0 {
		t.Errorf("history pos after Back: got %d, want 0", pos)
	}

	fwd, err := sess.Forward(ctx)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if !fwd.Restored {
		t.Error("Forward outcome: Restored not set, two page should have been captured on Back")
	}
	if got := sess.Title(); got != "Two" {
		t.Errorf("Title after Forward: got %q, want %q", got, "Two")
	}
}

func TestBackAtStartErrs(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	sess := newSession(t)
	load(t, sess, site.url("/one"))
	if _, err := sess.Back(context.Background()); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("Back at start: got %v, want ErrNoHistory", err)
	}
}

func TestBackRefetchesWhenPageOptedOutOfCache(t *testing.T) {
	site := newSite(t)
	site.handle("/volatile", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Volatile</title>`+
			`<meta name="hyper-cache-control" content="no-cache">`+
			`</head><body></body></html>`)
	})
	site.page("/two", "Two", "")
	sess := newSession(t)
	load(t, sess, site.url("/volatile"))
	ctx := context.Background()
	if _, err := sess.Visit(ctx, "/two"); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	out, err := sess.Back(ctx)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if out.Restored {
		t.Error("outcome: Restored set, page should not have been cached")
	}
	if got := site.count("/volatile"); got != 2 {
		t.Errorf("requests to opted-out page: got %d, want 2", got)
	}
	if _, pos := sess.History(); pos != 0 {
		t.Errorf("history pos: got %d, want 0", pos)
	}
}

func TestRedirectEntersHistoryAtFinalURL(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/two", "Two", "")
	site.handle("/redir", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/two", http.StatusFound)
	})
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	out, err := sess.Visit(context.Background(), "/redir")
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if !out.Redirected {
		t.Error("outcome: Redirected not set")
	}
	if out.URL != site.url("/two") {
		t.Errorf("outcome URL: got %q, want %q", out.URL, site.url("/two"))
	}
	entries, _ := sess.History()
	if got := entries[len(entries)-1].URL; got != site.url("/two") {
		t.Errorf("history entry: got %q, want final URL %q", got, site.url("/two"))
	}
}

func TestPostRedirectLandsWithGET(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	var mu sync.Mutex
	var landing string
	site.handle("/create", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/done", http.StatusSeeOther)
	})
	site.handle("/done", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		landing = r.Method
		mu.Unlock()
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Done</title></head><body></body></html>`)
	})
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	if _, err := sess.Visit(context.Background(), "/create", WithMethod(http.MethodPost)); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	mu.Lock()
	got := landing
	mu.Unlock()
	if got != http.MethodGet {
		t.Errorf("method after 303: got %q, want GET", got)
	}
	if got := sess.Title(); got != "Done" {
		t.Errorf("Title: got %q, want %q", got, "Done")
	}
}

func TestHTTPErrorLeavesDocumentAndHistory(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.handle("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	out, err := sess.Visit(context.Background(), "/missing")
	var httpErr *fetch.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error: got %v, want *fetch.HTTPError", err)
	}
	if out.State != VisitErrored {
		t.Errorf("state: got %q, want %q", out.State, VisitErrored)
	}
	if got := sess.URL(); got != site.url("/one") {
		t.Errorf("URL moved on failed visit: got %q", got)
	}
	if entries, _ := sess.History(); len(entries) != 1 {
		t.Errorf("history grew on failed visit: %d entries", len(entries))
	}
}

func TestNetworkErrorLeavesDocument(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	out, err := sess.Visit(context.Background(), dead.URL)
	if err == nil {
		t.Fatal("Visit to closed server: got nil error")
	}
	if out.State != VisitErrored {
		t.Errorf("state: got %q, want %q", out.State, VisitErrored)
	}
	if got := sess.Title(); got != "One" {
		t.Errorf("document changed on network error: title %q", got)
	}
}

func TestRevisitMorphsKeepingBodyIdentity(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", `<p id="m">first</p>`)
	site.page("/two", "Two", "")
	sess := newSession(t)
	ctx := context.Background()
	load(t, sess, site.url("/one"))
	if _, err := sess.Visit(ctx, "/two"); err != nil {
		t.Fatalf("Visit /two: %v", err)
	}

	var beforeBody *html.Node
	sess.WithDocument(func(doc *html.Node) { beforeBody = dom.Body(doc) })

	// /one was captured when leaving it, so revisiting it morphs.
	if _, err := sess.Visit(ctx, "/one"); err != nil {
		t.Fatalf("Visit /one again: %v", err)
	}
	var afterBody *html.Node
	sess.WithDocument(func(doc *html.Node) { afterBody = dom.Body(doc) })
	if beforeBody != afterBody {
		t.Error("revisit replaced the body node, want in-place morph")
	}
	if got, _ := sess.Text("#m"); got != "first" {
		t.Errorf("content after morph: got %q, want %q", got, "first")
	}
}

func TestFirstVisitReplacesBody(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/three", "Three", "")
	sess := newSession(t)
	ctx := context.Background()
	load(t, sess, site.url("/one"))

	var beforeBody *html.Node
	sess.WithDocument(func(doc *html.Node) { beforeBody = dom.Body(doc) })
	if _, err := sess.Visit(ctx, "/three"); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	var afterBody *html.Node
	sess.WithDocument(func(doc *html.Node) { afterBody = dom.Body(doc) })
	if beforeBody == afterBody {
		t.Error("first visit morphed, want body replacement")
	}
}

func TestHeadMergeAccumulatesStylesheets(t *testing.T) {
	site := newSite(t)
	site.handle("/one", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>One</title>`+
			`<link rel="stylesheet" href="/base.css"/></head><body></body></html>`)
	})
	site.handle("/two", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Two</title>`+
			`<link rel="stylesheet" href="/base.css"/>`+
			`<link rel="stylesheet" href="/extra.css"/></head><body></body></html>`)
	})
	sess := newSession(t)
	load(t, sess, site.url("/one"))
	if _, err := sess.Visit(context.Background(), "/two"); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	links, err := sess.Query(`link[rel="stylesheet"]`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("stylesheets: got %d, want 2 (base deduped, extra added): %v", len(links), links)
	}
	if got := sess.Title(); got != "Two" {
		t.Errorf("Title: got %q, want %q", got, "Two")
	}
}

func TestPermanentElementSurvivesNavigation(t *testing.T) {
	site := newSite(t)
	perm := `<div id="player" data-hyper-permanent>track-1</div>`
	site.page("/one", "One", perm+`<ul id="list"></ul>`)
	site.page("/two", "Two", `<div id="player" data-hyper-permanent>placeholder</div>`)
	sess := newSession(t)
	ctx := context.Background()
	load(t, sess, site.url("/one"))

	// Mutate the permanent element in place, then navigate away.
	msg := `<hyper-stream action="update" target="player"><template>track-9</template></hyper-stream>`
	if _, err := sess.ApplyStream(ctx, strings.NewReader(msg)); err != nil {
		t.Fatalf("ApplyStream: %v", err)
	}
	if _, err := sess.Visit(ctx, "/two"); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	if got, _ := sess.Text("#player"); got != "track-9" {
		t.Errorf("permanent element after navigation: got %q, want %q", got, "track-9")
	}
	// And it survives restoration back.
	if _, err := sess.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if got, _ := sess.Text("#player"); got != "track-9" {
		t.Errorf("permanent element after restore: got %q, want %q", got, "track-9")
	}
}

func TestStreamResponseAppliesWithoutHistory(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", `<ul id="list"><li>a</li></ul>`)
	site.handle("/bump", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", stream.ContentType)
		fmt.Fprint(w, `<hyper-stream action="append" target="list"><template><li>b</li></template></hyper-stream>`)
	})
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	out, err := sess.Visit(context.Background(), "/bump")
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if out.Stream == nil || out.Stream.Applied != 1 {
		t.Fatalf("stream result: got %+v, want 1 applied", out.Stream)
	}
	items, _ := sess.Query("#list li")
	if len(items) != 2 {
		t.Errorf("list items: got %d, want 2", len(items))
	}
	if entries, _ := sess.History(); len(entries) != 1 {
		t.Errorf("history moved on stream response: %d entries", len(entries))
	}
	if got := sess.URL(); got != site.url("/one") {
		t.Errorf("URL moved on stream response: %q", got)
	}
}

func TestApplyStreamExternal(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", `<div id="zone">old</div>`)
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	msg := `<hyper-stream action="replace" target="zone"><template><div id="zone">new</div></template></hyper-stream>`
	res, err := sess.ApplyStream(context.Background(), strings.NewReader(msg))
	if err != nil {
		t.Fatalf("ApplyStream: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("applied: got %d, want 1", res.Applied)
	}
	if got, _ := sess.Text("#zone"); got != "new" {
		t.Errorf("zone: got %q, want %q", got, "new")
	}
}

func TestVisitSupersession(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/fast", "Fast", "")
	started := make(chan struct{})
	release := make(chan struct{})
	site.handle("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Slow</title></head><body></body></html>`)
	})
	sess := newSession(t)
	ctx := context.Background()
	load(t, sess, site.url("/one"))

	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.Visit(ctx, "/slow")
		done <- result{out, err}
	}()
	<-started
	if _, err := sess.Visit(ctx, "/fast"); err != nil {
		t.Fatalf("Visit /fast: %v", err)
	}
	close(release)
	res := <-done
	if res.err != nil {
		t.Fatalf("superseded visit returned error: %v", res.err)
	}
	if !res.out.Superseded {
		t.Fatal("slow visit not marked superseded")
	}
	if res.out.State != VisitCancelled {
		t.Errorf("state: got %q, want %q", res.out.State, VisitCancelled)
	}
	if got := sess.Title(); got != "Fast" {
		t.Errorf("document shows %q, want the newer visit %q", got, "Fast")
	}
	entries, _ := sess.History()
	for _, e := range entries {
		if e.URL == site.url("/slow") {
			t.Error("superseded visit entered history")
		}
	}
	if got := sess.Stats().Supersessions; got != 1 {
		t.Errorf("supersessions: got %d, want 1", got)
	}
}

func TestFrameLoadsEagerlyOnRender(t *testing.T) {
	site := newSite(t)
	site.page("/page", "Page", `<hyper-frame id="side" src="/frag/side"></hyper-frame>`)
	site.handle("/frag/side", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(fetch.HeaderFrame); got != "side" {
			t.Errorf("Hyper-Frame header: got %q, want %q", got, "side")
		}
		fmt.Fprint(w, `<hyper-frame id="side"><p id="inner">loaded</p></hyper-frame>`)
	})
	sess := newSession(t)
	load(t, sess, site.url("/page"))

	if got, _ := sess.Text("#inner"); got != "loaded" {
		t.Fatalf("frame content: got %q, want %q", got, "loaded")
	}
	if got := site.count("/frag/side"); got != 1 {
		t.Errorf("frame fetches: got %d, want 1", got)
	}
}

func TestRestorationKeepsCompleteFrameWithoutRefetch(t *testing.T) {
	site := newSite(t)
	site.page("/page", "Page", `<hyper-frame id="side" src="/frag/side"></hyper-frame>`)
	site.page("/away", "Away", "")
	site.handle("/frag/side", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<hyper-frame id="side"><p id="inner">loaded</p></hyper-frame>`)
	})
	sess := newSession(t)
	ctx := context.Background()
	load(t, sess, site.url("/page"))
	if _, err := sess.Visit(ctx, "/away"); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	out, err := sess.Back(ctx)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if !out.Restored {
		t.Fatal("expected cache-hit restoration")
	}
	if got, _ := sess.Text("#inner"); got != "loaded" {
		t.Errorf("restored frame content: got %q, want %q", got, "loaded")
	}
	if got := site.count("/frag/side"); got != 1 {
		t.Errorf("frame refetched on restoration: %d fetches, want 1", got)
	}
}

func TestFrameMismatchEscalatesToFullVisit(t *testing.T) {
	site := newSite(t)
	site.page("/page", "Page",
		`<hyper-frame id="panel"><a id="out" href="/full">go</a></hyper-frame>`)
	site.page("/full", "Full", `<p>whole document, no panel</p>`)
	sess := newSession(t)
	load(t, sess, site.url("/page"))

	out, err := sess.Click(context.Background(), "#out")
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if out.Frame == nil || !out.Frame.Escalated {
		t.Fatalf("outcome: got %+v, want escalated frame outcome", out.Frame)
	}
	if got := sess.Title(); got != "Full" {
		t.Errorf("Title after escalation: got %q, want %q", got, "Full")
	}
	if got := sess.URL(); got != site.url("/full") {
		t.Errorf("URL after escalation: got %q, want %q", got, site.url("/full"))
	}
}

func TestBeforeVisitHookCancels(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/two", "Two", "")
	sess := newSession(t, WithHooks(Hooks{
		BeforeVisit: func(v *Visit) bool { return !strings.HasSuffix(v.URL, "/two") },
	}))
	load(t, sess, site.url("/one"))

	out, err := sess.Visit(context.Background(), "/two")
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if out.State != VisitCancelled {
		t.Fatalf("state: got %q, want %q", out.State, VisitCancelled)
	}
	if got := site.count("/two"); got != 0 {
		t.Errorf("cancelled visit hit the network: %d requests", got)
	}
}

func TestBeforeRenderHookDeclines(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/two", "Two", "")
	sess := newSession(t, WithHooks(Hooks{
		BeforeRender: func(v *Visit, next *html.Node) (bool, <-chan struct{}) {
			return false, nil
		},
	}))
	load(t, sess, site.url("/one"))

	out, err := sess.Visit(context.Background(), "/two")
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if out.State != VisitCancelled {
		t.Fatalf("state: got %q, want %q", out.State, VisitCancelled)
	}
	if got := sess.Title(); got != "One" {
		t.Errorf("document changed on declined render: title %q", got)
	}
}

func TestHooksObserveLifecycle(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/two", "Two", "")
	var mu sync.Mutex
	var events []string
	mark := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	sess := newSession(t, WithHooks(Hooks{
		BeforeVisit:  func(v *Visit) bool { mark("before"); return true },
		VisitStarted: func(v *Visit) { mark("started") },
		BeforeRender: func(v *Visit, next *html.Node) (bool, <-chan struct{}) {
			mark("render")
			return true, nil
		},
		RenderComplete: func(v *Visit) { mark("complete") },
	}))
	load(t, sess, site.url("/one"))
	mu.Lock()
	events = nil
	mu.Unlock()

	if _, err := sess.Visit(context.Background(), "/two"); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	want := []string{"before", "started", "render", "complete"}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != len(want) {
		t.Fatalf("events: got %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: got %q, want %q (all: %v)", i, events[i], want[i], events)
		}
	}
}

type collectRecorder struct {
	mu   sync.Mutex
	recs []VisitRecord
}

func (c *collectRecorder) Record(_ context.Context, rec VisitRecord) {
	c.mu.Lock()
	c.recs = append(c.recs, rec)
	c.mu.Unlock()
}

func (c *collectRecorder) all() []VisitRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]VisitRecord(nil), c.recs...)
}

func TestRecorderReceivesEveryVisit(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", "")
	site.page("/two", "Two", "")
	rec := &collectRecorder{}
	sess := newSession(t, WithRecorder(rec))
	ctx := context.Background()
	load(t, sess, site.url("/one"))
	if _, err := sess.Visit(ctx, "/two"); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if _, err := sess.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}

	recs := rec.all()
	if len(recs) != 3 {
		t.Fatalf("records: got %d, want 3", len(recs))
	}
	for i, r := range recs {
		if r.SessionID != sess.ID() {
			t.Errorf("record %d session: got %q, want %q", i, r.SessionID, sess.ID())
		}
		if r.State != string(VisitIdle) {
			t.Errorf("record %d state: got %q, want %q", i, r.State, VisitIdle)
		}
	}
	if !recs[2].Restored {
		t.Error("restoration record: Restored not set")
	}
}

func TestStatsAggregate(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", `<hyper-frame id="f" src="/frag"></hyper-frame>`)
	site.page("/two", "Two", "")
	site.handle("/frag", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<hyper-frame id="f">x</hyper-frame>`)
	})
	sess := newSession(t)
	ctx := context.Background()
	load(t, sess, site.url("/one"))
	if _, err := sess.Visit(ctx, "/two"); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	st := sess.Stats()
	if st.Visits != 2 {
		t.Errorf("visits: got %d, want 2", st.Visits)
	}
	if st.Renders != 2 {
		t.Errorf("renders: got %d, want 2", st.Renders)
	}
	if st.Frames.Loads != 1 {
		t.Errorf("frame loads: got %d, want 1", st.Frames.Loads)
	}
	if st.Cache.Stores != 1 {
		t.Errorf("cache stores: got %d, want 1", st.Cache.Stores)
	}
	if st.HistoryLen != 2 {
		t.Errorf("history len: got %d, want 2", st.HistoryLen)
	}
	if st.SessionID == "" {
		t.Error("session id empty")
	}
}

func TestQueryAndText(t *testing.T) {
	site := newSite(t)
	site.page("/one", "One", `<ul><li class="x">a</li><li class="x">b</li></ul>`)
	sess := newSession(t)
	load(t, sess, site.url("/one"))

	got, err := sess.Query("li.x")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matches: got %d, want 2", len(got))
	}
	text, err := sess.Text("li.x")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "a" {
		t.Errorf("Text: got %q, want first match %q", text, "a")
	}
	if _, err := sess.Text("#nope"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Text on no match: got %v, want ErrNoMatch", err)
	}
}
