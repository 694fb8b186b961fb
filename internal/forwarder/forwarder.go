// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package forwarder streams an admitted request to the upstream
// service and streams its response back, per spec §4.5: header
// hygiene (hop-by-hop stripping, X-Forwarded-For), a single timeout
// budget spanning the whole exchange, and no full-body buffering in
// either direction.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mxk/go-flowrate/flowrate"

	"github.com/quotagate/gateway/internal/gwerr"
)

// hopByHopHeaders are stripped from the outbound request, per RFC 7230
// §6.1 and spec §4.5 step 2. The response copied back to the client
// drops only Connection and Content-Encoding.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder holds the shared, connection-pooled HTTP client and the
// upstream base URL. It is safe for concurrent use.
type Forwarder struct {
	Client   *http.Client
	Upstream *url.URL
	Timeout  time.Duration
	Logger   *slog.Logger
}

// New builds a Forwarder with a connection-pooled client tuned for
// proxying: no global per-request timeout on the client itself (the
// per-request context deadline applies instead, so a slow client body
// doesn't tie up the connection pool indefinitely) and redirects are
// never followed automatically — the caller sees the upstream's raw
// response.
func New(upstream *url.URL, timeout time.Duration, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Upstream: upstream,
		Timeout:  timeout,
		Logger:   logger,
	}
}

// ServeHTTP builds the upstream request from req, streams its body
// upstream under a single deadline covering the whole exchange, and
// streams the upstream response back to w. It writes nothing to w
// before it has a full upstream response or a definitive error, so
// callers that need to short-circuit earlier (401/429) must not reach
// this far.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, req *http.Request) error {
	target := *f.Upstream
	target.Path = req.URL.Path
	target.RawQuery = req.URL.RawQuery

	ctx, cancel := context.WithTimeout(req.Context(), f.Timeout)
	defer cancel()

	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return fmt.Errorf("%w: building upstream request: %s", gwerr.ErrUpstreamFailure, err)
	}
	upstreamReq.Header = cloneHeaders(req.Header)
	stripHopByHop(upstreamReq.Header)
	addForwardedFor(upstreamReq.Header, req.RemoteAddr)

	resp, err := f.Client.Do(upstreamReq)
	if err != nil {
		if f.Logger != nil {
			f.Logger.Error("upstream request failed", slog.String("error", err.Error()), slog.String("upstream", target.String()))
		}
		return fmt.Errorf("%w: %s", gwerr.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	outHeader := w.Header()
	for name, values := range resp.Header {
		if strings.EqualFold(name, "Connection") || strings.EqualFold(name, "Content-Encoding") {
			continue
		}
		for _, v := range values {
			outHeader.Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	body := flowrate.NewReader(resp.Body, 0)
	n, err := copyBody(w, body)
	if f.Logger != nil {
		f.Logger.Debug("streamed upstream response",
			slog.Int64("bytes", n),
			slog.Int64("bytes_per_sec", body.Status().CurRate),
		)
	}
	if err != nil {
		if f.Logger != nil {
			f.Logger.Error("error streaming upstream response body", slog.String("error", err.Error()))
		}
	}
	return nil
}

func cloneHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func stripHopByHop(h http.Header) {
	// RFC 7230 §6.1: any header named in Connection's value is also
	// hop-by-hop and must be removed alongside the fixed list.
	for _, name := range strings.Split(h.Get("Connection"), ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			h.Del(name)
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

func addForwardedFor(h http.Header, remoteAddr string) {
	if h.Get("X-Forwarded-For") != "" {
		return
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host != "" {
		h.Set("X-Forwarded-For", host)
	}
}

func copyBody(w http.ResponseWriter, r *flowrate.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return total, writeErr
			}
			total += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return total, nil
			}
			return total, readErr
		}
	}
}
