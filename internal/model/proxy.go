// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest is an inbound request about to be forwarded upstream.
// Path is the escaped path exactly as received and RawQuery is the query
// string without the leading '?'.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	RawQuery      string
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// ProxyResponse is the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
