// Package service implements the core forwarding logic.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"telegram-proxy/internal/client"
	"telegram-proxy/internal/model"
)

const (
	// TelegramAPI is the fixed upstream every proxied request is sent to.
	TelegramAPI = "https://api.telegram.org"

	// ProxyPrefix is replaced by the upstream base URL.
	ProxyPrefix = "/proxy/"
)

// ErrUpstreamUnreachable classifies every failure of the outbound call:
// network and DNS errors, timeouts, and URLs that cannot be dispatched.
var ErrUpstreamUnreachable = errors.New("upstream unreachable")

// UpstreamError carries the cause of a failed upstream call. Its message is
// the cause's own text so it can be relayed to the caller verbatim.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is reports ErrUpstreamUnreachable as a match.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnreachable }

// Forwarder rewrites proxy paths onto the upstream and dispatches them.
// It holds no per-request state and is safe for concurrent use.
type Forwarder struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	baseURL string
}

// NewForwarder creates a Forwarder targeting TelegramAPI.
func NewForwarder(c *client.UpstreamClient, logger *slog.Logger) *Forwarder {
	return newForwarder(c, TelegramAPI, logger)
}

// NewForwarderForTest creates a Forwarder targeting baseURL.
// This is intended only for tests that use httptest servers on localhost.
func NewForwarderForTest(c *client.UpstreamClient, baseURL string, logger *slog.Logger) *Forwarder {
	return newForwarder(c, baseURL, logger)
}

func newForwarder(c *client.UpstreamClient, baseURL string, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client:  c,
		logger:  logger.With("component", "forwarder"),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// BaseURL returns the upstream base URL.
func (f *Forwarder) BaseURL() string {
	return f.baseURL
}

// Forward sends pr upstream exactly once and returns the upstream response.
// The caller is responsible for closing the response body.
//
// Every failure is returned as an *UpstreamError.
func (f *Forwarder) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := f.RewriteURL(pr.Path, pr.RawQuery)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	var body io.Reader
	contentLength := int64(0)
	if HasBody(pr.Method) && pr.Body != nil {
		body = pr.Body
		contentLength = pr.ContentLength
	}

	f.logger.Debug("forwarding request",
		"method", pr.Method,
		"with_body", body != nil,
	)

	resp, err := f.client.DoStream(pr.Ctx, pr.Method, target, cloneHeader(pr.Header), body, contentLength)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	return resp, nil
}

// RewriteURL replaces ProxyPrefix in path with the upstream base URL and
// appends rawQuery verbatim. A path without the prefix has no absolute
// upstream form and yields an error.
func (f *Forwarder) RewriteURL(path, rawQuery string) (string, error) {
	rest, ok := strings.CutPrefix(path, ProxyPrefix)
	if !ok {
		return "", fmt.Errorf("invalid URL: %q", path)
	}

	target := f.baseURL + "/" + rest
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target, nil
}

// HasBody reports whether requests with the given method carry a body upstream.
func HasBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	default:
		return true
	}
}

// cloneHeader copies h for the outbound request. A missing User-Agent stays
// missing instead of picking up the Go client default.
func cloneHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header)
	}
	if _, ok := out["User-Agent"]; !ok {
		out["User-Agent"] = nil
	}
	return out
}
