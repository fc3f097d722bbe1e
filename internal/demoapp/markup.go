// CLAUDE:SUMMARY Inline templates and render helpers for the demo board: layout wrapper, page bodies, stream instructions.
package demoapp

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/hazyhaar/hyperdrive/stream"
)

type homeData struct {
	Count int
}

type boardData struct {
	Messages []Message
}

type searchData struct {
	Query   string
	Results []Message
}

type latestData struct {
	Messages []Message
}

type activityData struct {
	Loads int64
	Count int
}

type layoutData struct {
	Title   string
	NoCache bool
	Body    template.HTML
}

// Every page shares the layout: a nav region and the permanent toast
// container, which survives full-page renders with its contents.
var layoutTmpl = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} - Hyperboard</title>
{{if .NoCache}}<meta name="hyper-cache-control" content="no-cache">
{{end}}</head>
<body>
<nav>
<a id="nav-home" href="/">Home</a>
<a id="nav-board" href="/messages">Board</a>
<a id="nav-search" href="/search">Search</a>
</nav>
<main>
{{.Body}}
</main>
<div id="toasts" data-hyper-permanent></div>
</body>
</html>
`))

var pages = template.Must(template.New("pages").Parse(`
{{define "home"}}<h1>Hyperboard</h1>
<p id="board-count">{{.Count}} messages on the board.</p>
<hyper-frame id="latest" src="/frames/latest" target="_top"></hyper-frame>
<hyper-frame id="activity" src="/frames/activity" loading="lazy"></hyper-frame>
<p><a id="reset-link" href="/reset" data-hyper-method="post" data-hyper-confirm="Reset the board?">Reset board</a></p>
<p><a id="plain-link" href="/plain" data-hyper="false">Plain page</a></p>{{end}}

{{define "row"}}<div class="msg" id="msg-{{.ID}}"><b>{{.Author}}</b> {{.Text}} <a href="/messages/{{.ID}}">view</a> <a class="delete" href="/messages/{{.ID}}/delete" data-hyper-method="post" data-hyper-confirm="Delete this message?">delete</a></div>{{end}}

{{define "board"}}<h1>Board</h1>
<div id="messages">{{range .Messages}}{{template "row" .}}
{{end}}</div>
<hyper-frame id="compose">
<div id="compose-status">Write something.</div>
<form id="compose-form" action="/messages" method="post">
<input type="text" name="author" value="guest">
<textarea name="text"></textarea>
<button type="submit">Post</button>
</form>
</hyper-frame>{{end}}

{{define "detail"}}<h1>Message {{.ID}}</h1>
{{template "row" .}}
<p><a id="back-link" href="/messages">Back to the board</a></p>{{end}}

{{define "search"}}<h1>Search</h1>
<form id="search-form" action="/search" method="get" data-hyper-history="replace">
<input type="search" name="q" value="{{.Query}}">
<button type="submit">Search</button>
</form>
<div id="results">{{if .Query}}{{range .Results}}<p class="hit"><a href="/messages/{{.ID}}">{{.Text}}</a></p>
{{else}}<p class="empty">Nothing matches.</p>{{end}}{{end}}</div>{{end}}

{{define "plain"}}<h1>Plain</h1>
<p>This page is reached outside interception.</p>
<p><a href="/">Back home</a></p>{{end}}

{{define "frame_latest"}}<hyper-frame id="latest">
<h2>Latest</h2>
{{range .Messages}}<p class="latest"><a href="/messages/{{.ID}}">{{.Text}}</a></p>
{{end}}</hyper-frame>{{end}}

{{define "frame_activity"}}<hyper-frame id="activity"><p id="activity-line">Load {{.Loads}}: {{.Count}} messages.</p></hyper-frame>{{end}}
`))

func (a *App) render(w http.ResponseWriter, page, title string, noCache bool, data any) {
	var body bytes.Buffer
	if err := pages.ExecuteTemplate(&body, page, data); err != nil {
		a.logger.Error("demoapp: render", "page", page, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := layoutTmpl.Execute(w, layoutData{Title: title, NoCache: noCache, Body: template.HTML(body.String())}); err != nil {
		a.logger.Error("demoapp: render layout", "page", page, "error", err)
	}
}

// renderBare serves a frame fragment without the layout. The engine
// only extracts the element matching the frame's id, so the fragment is
// all a frame endpoint needs to produce.
func (a *App) renderBare(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, page, data); err != nil {
		a.logger.Error("demoapp: render", "page", page, "error", err)
	}
}

func renderFragment(page string, data any) (string, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, page, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), stream.ContentType)
}

func (a *App) writeStream(w http.ResponseWriter, instructions ...string) {
	w.Header().Set("Content-Type", stream.ContentType)
	for _, in := range instructions {
		io.WriteString(w, in)
		io.WriteString(w, "\n")
	}
}

// instr renders one stream instruction. Inner must already be escaped
// markup; an empty inner emits no template child.
func instr(action, target, inner string) string {
	if inner == "" {
		return fmt.Sprintf(`<hyper-stream action=%q target=%q></hyper-stream>`, action, target)
	}
	return fmt.Sprintf(`<hyper-stream action=%q target=%q><template>%s</template></hyper-stream>`, action, target, inner)
}

// toastHTML renders a toast for the permanent container. Temporary
// marking keeps delivered toasts out of snapshots, so restored pages do
// not replay them.
func toastHTML(msg string) string {
	return fmt.Sprintf(`<div class="toast" data-hyper-temporary>%s</div>`, template.HTMLEscapeString(msg))
}
