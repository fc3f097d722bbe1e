// CLAUDE:SUMMARY HTTP transport for visits and frame loads: bounded bodies, surfaced redirects, typed status errors.
// Package fetch performs the HTTP legwork behind visits, frame loads
// and form submissions.
//
// Redirects are never followed: the navigation layer turns a 3xx into
// a follow-up visit (or retargets a frame), so the client surfaces the
// redirect response as-is. Bodies are capped, and URL validation is
// pluggable for deployments that fetch beyond a trusted host.
package fetch

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/hyperdrive/stream"
)

// HeaderFrame marks a request as scoped to one frame, so servers can
// render only the fragment that frame needs.
const HeaderFrame = "Hyper-Frame"

// accept announces both content types the engine can render.
const accept = stream.ContentType + ", text/html; q=0.9"

// Config configures the Client.
type Config struct {
	Timeout   time.Duration `yaml:"timeout"`    // per-request timeout. Default: 30s.
	MaxBytes  int64         `yaml:"max_bytes"`  // max response body size. Default: 10MB.
	UserAgent string        `yaml:"user_agent"` // sent with every request.
	// URLValidator runs before each request (SSRF prevention).
	// nil skips validation, the right default for an engine pointed
	// at a local application under test. See NewURLValidator.
	URLValidator func(string) error `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.UserAgent == "" {
		c.UserAgent = "hyperdrive/1.0"
	}
}

// Request describes one HTTP exchange.
type Request struct {
	URL     string
	Method  string     // default GET
	Form    url.Values // query string for GET, urlencoded body otherwise
	Header  http.Header
	FrameID string // sets the Hyper-Frame header when non-empty
}

// Response is the surfaced HTTP result. Any status code is a valid
// Response; only transport failures return errors from Do.
type Response struct {
	URL         string // URL the request was sent to
	StatusCode  int
	Status      string
	Header      http.Header
	Body        []byte
	ContentType string // media type without parameters
}

// IsHTML reports whether the body is a full or partial HTML document.
func (r *Response) IsHTML() bool {
	return r.ContentType == "text/html" || r.ContentType == "application/xhtml+xml"
}

// IsStream reports whether the body is a stream message.
func (r *Response) IsStream() bool {
	return r.ContentType == stream.ContentType
}

// IsRedirect reports whether the response asks for a follow-up visit.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400 && r.Header.Get("Location") != ""
}

// Succeeded reports a 2xx status.
func (r *Response) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Location resolves the redirect target against the request URL.
// Empty when the response carries no Location header.
func (r *Response) Location() string {
	loc := r.Header.Get("Location")
	if loc == "" {
		return ""
	}
	base, err := url.Parse(r.URL)
	if err != nil {
		return loc
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return loc
	}
	return base.ResolveReference(ref).String()
}

// Err returns nil for status codes below 400, and an *HTTPError
// otherwise. Redirects are not errors.
func (r *Response) Err() error {
	if r.StatusCode < 400 {
		return nil
	}
	return &HTTPError{StatusCode: r.StatusCode, Status: r.Status, URL: r.URL}
}

// HTTPError is a non-transport failure: the server answered, and the
// answer was 4xx or 5xx.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch: %s returned %s", e.URL, e.Status)
}

// Client performs requests for the engine.
type Client struct {
	http   *http.Client
	config Config
}

// New creates a Client. Redirects surface instead of being followed.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config: cfg,
	}
}

// Do executes one request. GET form values merge into the query
// string; other methods send them as an urlencoded body.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	target := r.URL
	var body *strings.Reader
	if len(r.Form) > 0 {
		if method == http.MethodGet {
			u, err := url.Parse(target)
			if err != nil {
				return nil, fmt.Errorf("fetch: parse url: %w", err)
			}
			q := u.Query()
			for k, vs := range r.Form {
				for _, v := range vs {
					q.Add(k, v)
				}
			}
			u.RawQuery = q.Encode()
			target = u.String()
		} else {
			body = strings.NewReader(r.Form.Encode())
		}
	}

	if c.config.URLValidator != nil {
		if err := c.config.URLValidator(target); err != nil {
			return nil, fmt.Errorf("fetch: URL blocked: %w", err)
		}
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, target, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if r.FrameID != "" {
		req.Header.Set(HeaderFrame, r.FrameID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := limitedReadAll(resp.Body, c.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	mt, _, mtErr := mime.ParseMediaType(ct)
	if mtErr != nil {
		mt = ct
	}

	return &Response{
		URL:         target,
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		Header:      resp.Header,
		Body:        data,
		ContentType: mt,
	}, nil
}
