// CLAUDE:SUMMARY The visit state machine: confirmation, fetch, supersession checks, render application, restorations.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/hyperdrive/dom"
	"github.com/hazyhaar/hyperdrive/fetch"
	"github.com/hazyhaar/hyperdrive/stream"
)

// renderStatus is the apply-time fate of a fetched document.
type renderStatus int

const (
	renderApplied renderStatus = iota
	renderSuperseded
	renderDeclined
)

// visit runs one visit to completion. All public navigation entry
// points funnel through here so recording and hooks stay uniform.
func (s *Session) visit(ctx context.Context, v *Visit) (out *Outcome, err error) {
	s.visits.Add(1)
	out = &Outcome{Visit: v, FrameID: v.FrameID, URL: v.URL}
	defer func() {
		out.State = v.state
		out.Duration = time.Since(v.StartedAt)
		s.record(ctx, v, out, err)
	}()

	abs, rerr := s.resolveURL(v.URL)
	if rerr != nil {
		return out, s.fail(v, fmt.Errorf("drive: resolve %q: %w", v.URL, rerr))
	}
	v.URL = abs
	out.URL = abs

	if s.hooks.BeforeVisit != nil && !s.hooks.BeforeVisit(v) {
		s.cancel(v)
		return out, nil
	}

	// Raw loads sit outside interception semantics: no confirmation
	// gate, no frame scoping, fresh document.
	if v.raw {
		return s.rawLoad(ctx, v, out)
	}

	if v.confirm != "" {
		v.state = VisitConfirming
		ok, cerr := s.confirmVisit(ctx, v)
		if cerr != nil {
			s.logger.Warn("drive: confirmation errored, declining", "url", v.URL, "error", cerr)
		}
		if cerr != nil || !ok {
			s.logger.Debug("drive: visit declined", "url", v.URL)
			s.cancel(v)
			return out, nil
		}
	}

	if v.FrameID != "" {
		return s.visitFrame(ctx, v, out)
	}
	return s.visitTop(ctx, v, out)
}

// visitTop performs a full-document visit: fetch, follow redirects,
// then apply whichever of render or stream dispatch the response asks
// for. The fetch happens without the document lock; staleness is
// checked at apply time, so a superseded visit costs a request but
// never a wrong paint.
func (s *Session) visitTop(ctx context.Context, v *Visit, out *Outcome) (*Outcome, error) {
	seq := s.visitSeq.Add(1)
	v.seq = seq
	v.state = VisitRequesting
	if s.hooks.VisitStarted != nil {
		s.hooks.VisitStarted(v)
	}

	resp, redirected, err := s.follow(ctx, &fetch.Request{URL: v.URL, Method: v.Method, Form: v.Form})
	if err != nil {
		return out, s.fail(v, err)
	}
	out.Redirected = redirected
	out.URL = resp.URL
	out.StatusCode = resp.StatusCode

	// Failed responses leave the document and history untouched.
	if respErr := resp.Err(); respErr != nil {
		return out, s.fail(v, respErr)
	}

	if resp.IsStream() {
		res, applied, serr := s.applyStream(ctx, seq, string(resp.Body))
		if serr != nil {
			return out, s.fail(v, serr)
		}
		if !applied {
			s.supersede(v, out)
			return out, nil
		}
		out.Stream = res
		v.state = VisitIdle
		return out, nil
	}

	next, err := dom.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return out, s.fail(v, fmt.Errorf("drive: parse %s: %w", resp.URL, err))
	}
	v.state = VisitRendering
	switch status := s.applyRender(ctx, v, seq, next, resp.URL); status {
	case renderSuperseded:
		s.supersede(v, out)
		return out, nil
	case renderDeclined:
		s.logger.Debug("drive: render declined by hook", "url", resp.URL)
		s.cancel(v)
		return out, nil
	}
	v.state = VisitIdle
	if s.hooks.RenderComplete != nil {
		s.hooks.RenderComplete(v)
	}
	return out, nil
}

// visitFrame performs a frame-scoped visit. Frame navigation never
// touches history or the snapshot cache; the frame engine owns
// per-frame supersession. A visit aimed at an unregistered frame
// escalates to a full-document visit.
func (s *Session) visitFrame(ctx context.Context, v *Visit, out *Outcome) (*Outcome, error) {
	f, ok := s.frames.Lookup(v.FrameID)
	if !ok {
		s.logger.Debug("drive: frame not registered, escalating", "frame", v.FrameID, "url", v.URL)
		v.FrameID = ""
		out.FrameID = ""
		return s.visitTop(ctx, v, out)
	}
	v.state = VisitRequesting
	if s.hooks.VisitStarted != nil {
		s.hooks.VisitStarted(v)
	}

	s.mu.Lock()
	fout, err := s.frames.LoadRequest(ctx, f, &fetch.Request{URL: v.URL, Method: v.Method, Form: v.Form})
	s.mu.Unlock()
	if err != nil {
		return out, s.fail(v, err)
	}
	out.Frame = fout
	out.URL = fout.URL
	out.StatusCode = fout.StatusCode
	if fout.Superseded {
		s.supersede(v, out)
		return out, nil
	}
	// A stream response to a frame-scoped request dispatches against
	// the whole document: its targets are not bounded by the frame.
	if fout.StreamBody != "" {
		res, _, serr := s.applyStream(ctx, 0, fout.StreamBody)
		if serr != nil {
			return out, s.fail(v, serr)
		}
		out.Stream = res
	}
	v.state = VisitIdle
	if s.hooks.RenderComplete != nil {
		s.hooks.RenderComplete(v)
	}
	return out, nil
}

// rawLoad fetches and installs a fresh document with none of the
// interception machinery: no snapshot capture, no morphing, no frame
// scoping. The page being left is simply gone, as it would be on an
// unintercepted browser navigation. Bootstrap loads reset history.
func (s *Session) rawLoad(ctx context.Context, v *Visit, out *Outcome) (*Outcome, error) {
	seq := s.visitSeq.Add(1)
	v.seq = seq
	v.state = VisitRequesting
	if s.hooks.VisitStarted != nil {
		s.hooks.VisitStarted(v)
	}

	resp, redirected, err := s.follow(ctx, &fetch.Request{URL: v.URL, Method: v.Method, Form: v.Form})
	if err != nil {
		return out, s.fail(v, err)
	}
	out.Redirected = redirected
	out.URL = resp.URL
	out.StatusCode = resp.StatusCode
	if respErr := resp.Err(); respErr != nil {
		return out, s.fail(v, respErr)
	}
	doc, err := dom.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return out, s.fail(v, fmt.Errorf("drive: parse %s: %w", resp.URL, err))
	}

	v.state = VisitRendering
	s.mu.Lock()
	s.doc = doc
	s.url = resp.URL
	if v.reset {
		s.history = newHistory()
	}
	s.history.advance(HistoryEntry{URL: resp.URL, VisitID: v.ID, At: time.Now()})
	s.renders.Add(1)
	if err := s.frames.Rescan(ctx, s.doc); err != nil {
		s.logger.Warn("drive: frame errors after load", "url", resp.URL, "error", err)
	}
	s.mu.Unlock()

	v.state = VisitIdle
	if s.hooks.RenderComplete != nil {
		s.hooks.RenderComplete(v)
	}
	return out, nil
}

// restore performs a history restoration one step in dir. On a cache
// hit the snapshot renders synchronously with no network; on a miss
// the entry's URL is refetched. The cursor commits only after the
// restoration lands, so a failed restore leaves history where it was.
func (s *Session) restore(ctx context.Context, dir int) (*Outcome, error) {
	s.mu.Lock()
	var entry HistoryEntry
	var ok bool
	if dir < 0 {
		entry, ok = s.history.peekBack()
	} else {
		entry, ok = s.history.peekForward()
	}
	if !ok {
		s.mu.Unlock()
		return nil, ErrNoHistory
	}

	v := s.newVisit(entry.URL, nil)
	v.Restore = true
	v.Action = ActionNone

	if snap, hit := s.cache.Get(entry.URL); hit {
		s.visits.Add(1)
		v.seq = s.visitSeq.Add(1)
		v.state = VisitRendering
		out := &Outcome{Visit: v, URL: entry.URL, Restored: true}
		s.captureSnapshot()
		if err := s.renderRestore(snap); err != nil {
			s.mu.Unlock()
			err = s.fail(v, fmt.Errorf("drive: restore %s: %w", entry.URL, err))
			out.State = v.state
			out.Duration = time.Since(v.StartedAt)
			s.record(ctx, v, out, err)
			return out, err
		}
		s.url = entry.URL
		s.commit(dir)
		s.renders.Add(1)
		if err := s.frames.Rescan(ctx, s.doc); err != nil {
			s.logger.Warn("drive: frame errors after restore", "url", entry.URL, "error", err)
		}
		s.mu.Unlock()

		v.state = VisitIdle
		out.State = v.state
		out.Duration = time.Since(v.StartedAt)
		if s.hooks.RenderComplete != nil {
			s.hooks.RenderComplete(v)
		}
		s.record(ctx, v, out, nil)
		return out, nil
	}
	s.mu.Unlock()

	s.logger.Debug("drive: restoration cache miss, refetching", "url", entry.URL)
	out, err := s.visit(ctx, v)
	if err == nil && out.State == VisitIdle {
		s.mu.Lock()
		s.commit(dir)
		s.mu.Unlock()
	}
	return out, err
}

func (s *Session) commit(dir int) {
	if dir < 0 {
		s.history.commitBack()
	} else {
		s.history.commitForward()
	}
}

// applyRender applies a fetched document under the lock. The visit
// sequence is re-checked here: a newer visit issued while this one was
// in flight wins, and this result is dropped.
func (s *Session) applyRender(ctx context.Context, v *Visit, seq uint64, next *html.Node, finalURL string) renderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visitSeq.Load() != seq {
		return renderSuperseded
	}
	if s.hooks.BeforeRender != nil {
		proceed, hold := s.hooks.BeforeRender(v, next)
		if !proceed {
			return renderDeclined
		}
		s.waitHold(ctx, hold)
	}

	s.captureSnapshot()
	// A page this session has seen before morphs, keeping node
	// identity for unchanged subtrees. First visits replace.
	if s.cache.Contains(finalURL) {
		s.renderMorph(next)
	} else {
		s.renderReplace(next)
	}
	s.url = finalURL
	s.applyHistory(v, finalURL)
	s.renders.Add(1)
	if err := s.frames.Rescan(ctx, s.doc); err != nil {
		s.logger.Warn("drive: frame errors after render", "url", finalURL, "error", err)
	}
	return renderApplied
}

func (s *Session) applyHistory(v *Visit, finalURL string) {
	e := HistoryEntry{URL: finalURL, VisitID: v.ID, At: time.Now()}
	switch v.Action {
	case ActionAdvance:
		s.history.advance(e)
	case ActionReplace:
		s.history.replace(e)
	}
}

// applyStream dispatches a stream message body against the live
// document. seq zero skips the supersession check, for messages pushed
// from outside the visit cycle.
func (s *Session) applyStream(ctx context.Context, seq uint64, body string) (*stream.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != 0 && s.visitSeq.Load() != seq {
		return nil, false, nil
	}
	res, err := s.dispatcher.Apply(ctx, s.doc, body)
	if err != nil {
		return nil, true, err
	}
	// Stream actions can add, remove or replace frame elements.
	if err := s.frames.Rescan(ctx, s.doc); err != nil {
		s.logger.Warn("drive: frame errors after stream", "error", err)
	}
	return res, true, nil
}

// follow issues the request and chases redirects up to the configured
// cap. Hops after the first are plain GETs, so a POST answered with
// 303 lands on its target the way a browser lands on it.
func (s *Session) follow(ctx context.Context, req *fetch.Request) (*fetch.Response, bool, error) {
	redirected := false
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, false, err
	}
	for hops := 0; resp.IsRedirect(); hops++ {
		if hops >= s.config.MaxRedirects {
			return nil, redirected, fmt.Errorf("drive: %s: stopped after %d redirects", req.URL, s.config.MaxRedirects)
		}
		redirected = true
		s.redirects.Add(1)
		next := resp.Location()
		s.logger.Debug("drive: following redirect", "from", resp.URL, "to", next)
		resp, err = s.client.Do(ctx, &fetch.Request{URL: next})
		if err != nil {
			return nil, redirected, err
		}
	}
	return resp, redirected, nil
}

func (s *Session) confirmVisit(ctx context.Context, v *Visit) (bool, error) {
	if s.confirmFn == nil {
		return true, nil
	}
	return s.confirmFn(ctx, Confirmation{Message: v.confirm, URL: v.URL, Element: v.Element})
}

// waitHold blocks until the hold channel closes, bounded by the swap
// timeout. Callers hold s.mu, so the bound is what keeps a forgotten
// channel from freezing the session.
func (s *Session) waitHold(ctx context.Context, hold <-chan struct{}) {
	if hold == nil {
		return
	}
	t := time.NewTimer(s.config.SwapTimeout)
	defer t.Stop()
	select {
	case <-hold:
	case <-ctx.Done():
	case <-t.C:
		s.logger.Warn("drive: before-render hold timed out, rendering", "timeout", s.config.SwapTimeout)
	}
}

// resolveURL makes target absolute against the current document URL.
func (s *Session) resolveURL(target string) (string, error) {
	s.mu.Lock()
	base := s.url
	s.mu.Unlock()

	ref, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if base == "" {
		if !ref.IsAbs() {
			return "", fmt.Errorf("relative URL with no document loaded")
		}
		return target, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

func (s *Session) cancel(v *Visit) {
	v.state = VisitCancelled
	s.cancels.Add(1)
}

func (s *Session) supersede(v *Visit, out *Outcome) {
	v.state = VisitCancelled
	out.Superseded = true
	s.supersessions.Add(1)
	s.logger.Debug("drive: visit superseded", "url", v.URL, "frame", v.FrameID)
}

func (s *Session) fail(v *Visit, err error) error {
	v.state = VisitErrored
	s.failures.Add(1)
	s.logger.Warn("drive: visit failed", "url", v.URL, "error", err)
	if s.hooks.Error != nil {
		s.hooks.Error(v, err)
	}
	return err
}

func (s *Session) record(ctx context.Context, v *Visit, out *Outcome, err error) {
	if s.recorder == nil {
		return
	}
	rec := VisitRecord{
		VisitID:    v.ID,
		SessionID:  s.id,
		URL:        v.URL,
		Method:     v.Method,
		FrameID:    v.FrameID,
		Action:     string(v.Action),
		State:      string(v.state),
		StatusCode: out.StatusCode,
		Redirected: out.Redirected,
		Superseded: out.Superseded,
		Restored:   out.Restored,
		Duration:   out.Duration,
		At:         v.StartedAt,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.recorder.Record(ctx, rec)
}
