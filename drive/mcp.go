// CLAUDE:SUMMARY Registers the hyper_* MCP tools: visit, click, submit, back/forward, html, markdown, links, frames, stats.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/distill"
	"github.com/hazyhaar/hyperdrive/dom"
	"github.com/hazyhaar/hyperdrive/idgen"
	"github.com/hazyhaar/hyperdrive/kit"
)

// RegisterMCP registers the session's tools on an MCP server. One
// server drives one session; tool calls serialise through the
// session's own locking.
func (s *Session) RegisterMCP(srv *mcp.Server) {
	s.registerVisitTool(srv)
	s.registerClickTool(srv)
	s.registerSubmitTool(srv)
	s.registerBackTool(srv)
	s.registerForwardTool(srv)
	s.registerHTMLTool(srv)
	s.registerMarkdownTool(srv)
	s.registerLinksTool(srv)
	s.registerFramesTool(srv)
	s.registerStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// enrich stamps transport, session and a fresh request ID onto every
// tool call's context.
func (s *Session) enrich(ctx context.Context) context.Context {
	ctx = kit.WithTransport(ctx, "mcp")
	ctx = kit.WithSessionID(ctx, s.id)
	return kit.WithRequestID(ctx, idgen.Prefixed("req_", idgen.Default)())
}

// toolLogging logs each tool call with its duration.
func (s *Session) toolLogging(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				s.logger.Warn("drive: tool failed", "tool", name, "request_id", kit.GetRequestID(ctx), "duration", time.Since(start), "error", err)
			} else {
				s.logger.Debug("drive: tool done", "tool", name, "request_id", kit.GetRequestID(ctx), "duration", time.Since(start))
			}
			return resp, err
		}
	}
}

func (s *Session) registerTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	wrapped := kit.Chain(s.toolLogging(tool.Name))(endpoint)
	kit.RegisterMCPTool(srv, tool, wrapped, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r, err := decode(req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: r, EnrichCtx: s.enrich}, nil
	})
}

// outcomeResponse is the navigation tools' shared result shape.
type outcomeResponse struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	State      string `json:"state"`
	StatusCode int    `json:"status_code,omitempty"`
	Redirected bool   `json:"redirected,omitempty"`
	Superseded bool   `json:"superseded,omitempty"`
	Restored   bool   `json:"restored,omitempty"`
	FrameID    string `json:"frame,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Session) outcomeResponse(out *Outcome) *outcomeResponse {
	resp := &outcomeResponse{
		URL:        out.URL,
		Title:      s.Title(),
		State:      string(out.State),
		StatusCode: out.StatusCode,
		Redirected: out.Redirected,
		Superseded: out.Superseded,
		Restored:   out.Restored,
		FrameID:    out.FrameID,
		DurationMS: out.Duration.Milliseconds(),
	}
	if resp.URL == "" {
		resp.URL = s.URL()
	}
	return resp
}

// --- visit ---

type visitRequest struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
	Frame  string `json:"frame,omitempty"`
	Action string `json:"action,omitempty"`
}

func (s *Session) registerVisitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_visit",
		Description: "Navigate the session to a URL. Relative URLs resolve against the current document. The first call should use an absolute URL.",
		InputSchema: inputSchema(map[string]any{
			"url":    map[string]any{"type": "string", "description": "Target URL, absolute or relative"},
			"method": map[string]any{"type": "string", "description": "HTTP method (default GET)"},
			"frame":  map[string]any{"type": "string", "description": "Scope the navigation to this frame ID"},
			"action": map[string]any{"type": "string", "enum": []any{"advance", "replace", "none"}, "description": "History action (default advance)"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*visitRequest)
		var opts []VisitOption
		if r.Method != "" {
			opts = append(opts, WithMethod(strings.ToUpper(r.Method)))
		}
		if r.Frame != "" {
			opts = append(opts, WithFrame(r.Frame))
		}
		if r.Action != "" {
			switch HistoryAction(r.Action) {
			case ActionAdvance, ActionReplace, ActionNone:
				opts = append(opts, WithAction(HistoryAction(r.Action)))
			default:
				return nil, fmt.Errorf("invalid action %q", r.Action)
			}
		}

		var out *Outcome
		var err error
		if s.URL() == "" {
			out, err = s.Load(ctx, r.URL)
		} else {
			out, err = s.Visit(ctx, r.URL, opts...)
		}
		if err != nil {
			return nil, err
		}
		return s.outcomeResponse(out), nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r visitRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	s.registerTool(srv, tool, endpoint, decode)
}

// --- click ---

type clickRequest struct {
	Selector string `json:"selector"`
}

func (s *Session) registerClickTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_click",
		Description: "Click the first link matching a CSS selector, with full interception semantics: confirmation gating, frame scoping, history.",
		InputSchema: inputSchema(map[string]any{
			"selector": map[string]any{"type": "string", "description": "CSS selector for the link"},
		}, []string{"selector"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*clickRequest)
		out, err := s.Click(ctx, r.Selector)
		if err != nil {
			return nil, err
		}
		return s.outcomeResponse(out), nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r clickRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	s.registerTool(srv, tool, endpoint, decode)
}

// --- submit ---

type submitRequest struct {
	Selector string            `json:"selector"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (s *Session) registerSubmitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_submit",
		Description: "Submit the first form matching a CSS selector. Fields override the form's own values by name; unlisted fields keep their markup values.",
		InputSchema: inputSchema(map[string]any{
			"selector": map[string]any{"type": "string", "description": "CSS selector for the form"},
			"fields":   map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}, "description": "Field overrides, name to value"},
		}, []string{"selector"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*submitRequest)
		var overrides url.Values
		if len(r.Fields) > 0 {
			overrides = url.Values{}
			for k, v := range r.Fields {
				overrides.Set(k, v)
			}
		}
		out, err := s.Submit(ctx, r.Selector, overrides)
		if err != nil {
			return nil, err
		}
		return s.outcomeResponse(out), nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r submitRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	s.registerTool(srv, tool, endpoint, decode)
}

// --- back / forward ---

func (s *Session) registerBackTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_back",
		Description: "Go back one history entry, restoring from the snapshot cache when possible.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		out, err := s.Back(ctx)
		if err != nil {
			return nil, err
		}
		return s.outcomeResponse(out), nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }

	s.registerTool(srv, tool, endpoint, decode)
}

func (s *Session) registerForwardTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_forward",
		Description: "Go forward one history entry, restoring from the snapshot cache when possible.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		out, err := s.Forward(ctx)
		if err != nil {
			return nil, err
		}
		return s.outcomeResponse(out), nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }

	s.registerTool(srv, tool, endpoint, decode)
}

// --- html ---

type htmlRequest struct {
	Selector string `json:"selector,omitempty"`
}

func (s *Session) registerHTMLTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_html",
		Description: "Return the current document's HTML, or the outer HTML of every element matching a CSS selector.",
		InputSchema: inputSchema(map[string]any{
			"selector": map[string]any{"type": "string", "description": "Optional CSS selector"},
		}, nil),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*htmlRequest)
		if r.Selector != "" {
			matches, err := s.Query(r.Selector)
			if err != nil {
				return nil, err
			}
			return map[string]any{"url": s.URL(), "matches": matches}, nil
		}
		return map[string]any{"url": s.URL(), "title": s.Title(), "html": s.HTML()}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r htmlRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	s.registerTool(srv, tool, endpoint, decode)
}

// --- markdown ---

func (s *Session) registerMarkdownTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_markdown",
		Description: "Return the current document converted to Markdown, with links resolved against the page URL.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		s.mu.Lock()
		doc, pageURL := s.doc, s.url
		title := dom.Title(doc)
		md, err := distill.Markdown(doc, pageURL)
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": pageURL, "title": title, "markdown": md}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }

	s.registerTool(srv, tool, endpoint, decode)
}

// --- links ---

func (s *Session) registerLinksTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_links",
		Description: "List the document's links with resolved absolute URLs, deduplicated in document order.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		var links []distill.Link
		var pageURL string
		var err error
		s.WithDocument(func(doc *html.Node) {
			links, err = distill.Links(doc, s.url)
			pageURL = s.url
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": pageURL, "links": links}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }

	s.registerTool(srv, tool, endpoint, decode)
}

// --- frames ---

type frameInfo struct {
	ID       string `json:"id"`
	Src      string `json:"src,omitempty"`
	State    string `json:"state"`
	Loading  string `json:"loading"`
	Target   string `json:"target,omitempty"`
	Visible  bool   `json:"visible"`
	Disabled bool   `json:"disabled,omitempty"`
}

func (s *Session) registerFramesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_frames",
		Description: "List the document's frames with their load state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		frames := s.Frames()
		infos := make([]frameInfo, 0, len(frames))
		for _, f := range frames {
			infos = append(infos, frameInfo{
				ID:       f.ID,
				Src:      f.Src,
				State:    string(f.State()),
				Loading:  string(f.Loading),
				Target:   f.Target,
				Visible:  f.Visible(),
				Disabled: f.Disabled,
			})
		}
		return map[string]any{"frames": infos}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }

	s.registerTool(srv, tool, endpoint, decode)
}

// --- stats ---

func (s *Session) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "hyper_stats",
		Description: "Get session statistics: visit, render, redirect, supersession and failure counts, plus frame, cache and stream counters.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return s.Stats(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }

	s.registerTool(srv, tool, endpoint, decode)
}
