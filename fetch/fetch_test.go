package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hazyhaar/hyperdrive/stream"
)

func TestDoGET(t *testing.T) {
	var gotFrame, gotAccept, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrame = r.Header.Get(HeaderFrame)
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	c := New(Config{})
	resp, err := c.Do(context.Background(), &Request{URL: srv.URL, FrameID: "sidebar"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !resp.Succeeded() {
		t.Fatalf("Succeeded() = false, status %d", resp.StatusCode)
	}
	if !resp.IsHTML() {
		t.Fatalf("IsHTML() = false, content type %q", resp.ContentType)
	}
	if gotFrame != "sidebar" {
		t.Fatalf("frame header: got %q, want %q", gotFrame, "sidebar")
	}
	if !strings.Contains(gotAccept, stream.ContentType) {
		t.Fatalf("Accept header %q missing stream content type", gotAccept)
	}
	if gotUA != "hyperdrive/1.0" {
		t.Fatalf("user agent: got %q, want %q", gotUA, "hyperdrive/1.0")
	}
}

func TestDoGETFormMergesQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
	}))
	defer srv.Close()

	c := New(Config{})
	form := url.Values{"q": {"hyper"}, "page": {"2"}}
	_, err := c.Do(context.Background(), &Request{URL: srv.URL + "/search?sort=asc", Form: form})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotQuery.Get("q") != "hyper" || gotQuery.Get("page") != "2" {
		t.Fatalf("form values not merged into query: %v", gotQuery)
	}
	if gotQuery.Get("sort") != "asc" {
		t.Fatalf("existing query lost: %v", gotQuery)
	}
}

func TestDoPOSTForm(t *testing.T) {
	var gotCT, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotBody = r.PostForm.Get("title")
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := c.Do(context.Background(), &Request{
		URL:    srv.URL,
		Method: "POST",
		Form:   url.Values{"title": {"hello world"}},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotCT != "application/x-www-form-urlencoded" {
		t.Fatalf("content type: got %q, want urlencoded", gotCT)
	}
	if gotBody != "hello world" {
		t.Fatalf("posted title: got %q, want %q", gotBody, "hello world")
	}
}

func TestDoSurfacesRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusSeeOther)
			return
		}
		t.Errorf("redirect was followed to %s", r.URL.Path)
	}))
	defer srv.Close()

	c := New(Config{})
	resp, err := c.Do(context.Background(), &Request{URL: srv.URL + "/old"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !resp.IsRedirect() {
		t.Fatalf("IsRedirect() = false, status %d", resp.StatusCode)
	}
	want := srv.URL + "/new"
	if got := resp.Location(); got != want {
		t.Fatalf("Location(): got %q, want %q", got, want)
	}
	if resp.Err() != nil {
		t.Fatalf("redirect should not be an error: %v", resp.Err())
	}
}

func TestDoHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{})
	resp, err := c.Do(context.Background(), &Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do should not fail on 404: %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(resp.Err(), &httpErr) {
		t.Fatalf("Err() = %v, want *HTTPError", resp.Err())
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", httpErr.StatusCode, http.StatusNotFound)
	}
}

func TestDoBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	c := New(Config{MaxBytes: 1024})
	_, err := c.Do(context.Background(), &Request{URL: srv.URL})
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err = %v, want ErrBodyTooLarge", err)
	}
}

func TestDoValidatorBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request went through despite validator")
	}))
	defer srv.Close()

	c := New(Config{URLValidator: func(string) error { return ErrSSRF }})
	_, err := c.Do(context.Background(), &Request{URL: srv.URL})
	if !errors.Is(err, ErrSSRF) {
		t.Fatalf("err = %v, want ErrSSRF", err)
	}
}

func TestDoStreamContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", stream.ContentType+"; charset=utf-8")
		w.Write([]byte(`<hyper-stream action="remove" target="note"><template></template></hyper-stream>`))
	}))
	defer srv.Close()

	c := New(Config{})
	resp, err := c.Do(context.Background(), &Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !resp.IsStream() {
		t.Fatalf("IsStream() = false, content type %q", resp.ContentType)
	}
	if resp.IsHTML() {
		t.Fatal("stream response misdetected as HTML")
	}
}

func TestURLValidator(t *testing.T) {
	validate := NewURLValidator(false)
	cases := []struct {
		url  string
		want error
	}{
		{"http://example.com/", nil},
		{"ftp://example.com/", ErrUnsafeScheme},
		{"http://127.0.0.1/admin", ErrSSRF},
		{"http://192.168.1.10/", ErrSSRF},
		{"http://[::1]/", ErrSSRF},
	}
	for _, tc := range cases {
		err := validate(tc.url)
		if tc.want == nil && err != nil {
			t.Errorf("validate(%q) = %v, want nil", tc.url, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("validate(%q) = %v, want %v", tc.url, err, tc.want)
		}
	}
}

func TestURLValidatorAllowPrivate(t *testing.T) {
	validate := NewURLValidator(true)
	if err := validate("http://127.0.0.1:8080/"); err != nil {
		t.Fatalf("allowPrivate validator rejected loopback: %v", err)
	}
}
