// CLAUDE:SUMMARY Demo message board: an http.Handler whose markup exercises frames, streams, confirm gates and permanence.
// Package demoapp serves a small in-memory message board written in the
// full hyperdrive vocabulary: eager and lazy frames, a frame target
// override, stream responses to form submissions, method and
// confirmation attributes on links, permanent and temporary elements,
// an interception opt-out and post/redirect/get fallbacks. It backs the
// demo command and the end-to-end tests.
package demoapp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Message is one board entry.
type Message struct {
	ID     int
	Author string
	Text   string
	At     time.Time
}

// App holds the board state behind the handler. Safe for concurrent
// requests.
type App struct {
	logger *slog.Logger

	mu       sync.Mutex
	messages []Message
	nextID   int

	frameLoads atomic.Int64 // activity frame fetch count
}

// Option configures New.
type Option func(*App)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// New returns a board seeded with a few messages.
func New(opts ...Option) *App {
	a := &App{logger: slog.Default(), nextID: 1}
	for _, opt := range opts {
		opt(a)
	}
	for _, seed := range []struct{ author, text string }{
		{"ada", "Welcome to the board."},
		{"brin", "Frames fetch their own content."},
		{"ada", "Streams splice updates in place."},
	} {
		a.add(seed.author, seed.text)
	}
	return a
}

// Handler returns the board's router.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", a.handleHome)
	r.Route("/messages", func(r chi.Router) {
		r.Get("/", a.handleBoard)
		r.Post("/", a.handleCreate)
		r.Get("/{id}", a.handleDetail)
		r.Post("/{id}/delete", a.handleDelete)
	})
	r.Get("/search", a.handleSearch)
	r.Get("/frames/latest", a.handleLatestFrame)
	r.Get("/frames/activity", a.handleActivityFrame)
	r.Post("/reset", a.handleReset)
	r.Get("/plain", a.handlePlain)
	return r
}

func (a *App) add(author, text string) Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := Message{ID: a.nextID, Author: author, Text: text, At: time.Now()}
	a.nextID++
	a.messages = append(a.messages, m)
	return m
}

func (a *App) remove(id int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, m := range a.messages {
		if m.ID == id {
			a.messages = append(a.messages[:i], a.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (a *App) byID(id int) (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

func (a *App) all() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.messages...)
}

// latest returns up to n messages, newest first.
func (a *App) latest(n int) []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Message
	for i := len(a.messages) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, a.messages[i])
	}
	return out
}

func (a *App) search(q string) []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	q = strings.ToLower(q)
	var out []Message
	for _, m := range a.messages {
		if strings.Contains(strings.ToLower(m.Text), q) || strings.Contains(strings.ToLower(m.Author), q) {
			out = append(out, m)
		}
	}
	return out
}

func (a *App) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

func (a *App) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	a.render(w, "home", "Home", false, homeData{Count: a.count()})
}

func (a *App) handleBoard(w http.ResponseWriter, r *http.Request) {
	a.render(w, "board", "Board", false, boardData{Messages: a.all()})
}

func (a *App) handleCreate(w http.ResponseWriter, r *http.Request) {
	author := strings.TrimSpace(r.PostFormValue("author"))
	if author == "" {
		author = "guest"
	}
	text := strings.TrimSpace(r.PostFormValue("text"))
	if text == "" {
		if wantsStream(r) {
			a.writeStream(w, instr("update", "compose-status", "Text is required."))
			return
		}
		http.Redirect(w, r, "/messages", http.StatusSeeOther)
		return
	}

	m := a.add(author, text)
	a.logger.Info("demoapp: message posted", "id", m.ID, "author", m.Author)

	if wantsStream(r) {
		row, err := renderFragment("row", m)
		if err != nil {
			a.logger.Error("demoapp: render row", "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		a.writeStream(w,
			instr("append", "messages", row),
			instr("update", "compose-status", "Posted."),
			instr("append", "toasts", toastHTML(fmt.Sprintf("Message %d posted", m.ID))),
		)
		return
	}
	http.Redirect(w, r, "/messages", http.StatusSeeOther)
}

func (a *App) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	m, ok := a.byID(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	a.render(w, "detail", fmt.Sprintf("Message %d", m.ID), false, m)
}

func (a *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || !a.remove(id) {
		http.NotFound(w, r)
		return
	}
	a.logger.Info("demoapp: message deleted", "id", id)

	if wantsStream(r) {
		a.writeStream(w,
			instr("remove", fmt.Sprintf("msg-%d", id), ""),
			instr("append", "toasts", toastHTML(fmt.Sprintf("Message %d deleted", id))),
		)
		return
	}
	http.Redirect(w, r, "/messages", http.StatusSeeOther)
}

func (a *App) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := searchData{Query: q}
	if q != "" {
		data.Results = a.search(q)
	}
	// Results go stale as soon as the board moves, so the page opts out
	// of the snapshot cache.
	a.render(w, "search", "Search", true, data)
}

func (a *App) handleLatestFrame(w http.ResponseWriter, r *http.Request) {
	a.renderBare(w, "frame_latest", latestData{Messages: a.latest(3)})
}

func (a *App) handleActivityFrame(w http.ResponseWriter, r *http.Request) {
	n := a.frameLoads.Add(1)
	a.renderBare(w, "frame_activity", activityData{Loads: n, Count: a.count()})
}

func (a *App) handleReset(w http.ResponseWriter, r *http.Request) {
	a.clear()
	a.logger.Info("demoapp: board reset")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) handlePlain(w http.ResponseWriter, r *http.Request) {
	a.render(w, "plain", "Plain", false, nil)
}
