// Package edge runs the proxy behind a serverless HTTP endpoint. API Gateway
// HTTP API (payload v2) and Lambda function URL events are turned into
// *http.Request values, served by the regular handler stack, and the recorded
// response is turned back into an event response.
package edge

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

// Adapter bridges Lambda HTTP events to an http.Handler.
type Adapter struct {
	handler http.Handler
	logger  *slog.Logger
}

// NewAdapter creates an Adapter serving events through h.
func NewAdapter(h http.Handler, logger *slog.Logger) *Adapter {
	return &Adapter{
		handler: h,
		logger:  logger.With("component", "edge_adapter"),
	}
}

// Handle serves one event. Only a malformed event yields an error; handler
// failures are already encoded in the response status.
func (a *Adapter) Handle(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	req, err := NewRequest(ctx, ev)
	if err != nil {
		a.logger.Error("decode event", "err", err, "request_id", ev.RequestContext.RequestID)
		return events.APIGatewayV2HTTPResponse{}, err
	}

	rb := newResponseBuffer()
	a.handler.ServeHTTP(rb, req)
	return rb.event(), nil
}

// NewRequest converts an HTTP API v2 event into an *http.Request bound to ctx.
func NewRequest(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	rawPath := ev.RawPath
	if rawPath == "" {
		rawPath = "/"
	}
	target := rawPath
	if ev.RawQueryString != "" {
		target += "?" + ev.RawQueryString
	}
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, fmt.Errorf("edge: parse path %q: %w", rawPath, err)
	}

	var body []byte
	if ev.Body != "" {
		if ev.IsBase64Encoded {
			body, err = base64.StdEncoding.DecodeString(ev.Body)
			if err != nil {
				return nil, fmt.Errorf("edge: decode base64 body: %w", err)
			}
		} else {
			body = []byte(ev.Body)
		}
	}

	method := ev.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("edge: build request: %w", err)
	}
	req.URL = u
	req.RequestURI = u.RequestURI()
	req.ContentLength = int64(len(body))
	if len(body) == 0 {
		req.Body = http.NoBody
	}

	for k, v := range ev.Headers {
		req.Header.Set(k, v)
	}
	if len(ev.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(ev.Cookies, "; "))
	}

	req.Host = req.Header.Get("Host")
	if req.Host == "" {
		req.Host = ev.RequestContext.DomainName
	}
	req.Header.Del("Host")
	if ip := ev.RequestContext.HTTP.SourceIP; ip != "" {
		req.RemoteAddr = net.JoinHostPort(ip, "0")
	}

	return req, nil
}

// responseBuffer records a handler response for conversion into an event.
type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (r *responseBuffer) Header() http.Header { return r.header }

func (r *responseBuffer) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseBuffer) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

// Flush is a no-op; the event response is only emitted once the handler returns.
func (r *responseBuffer) Flush() {}

// event converts the recorded response. Set-Cookie values travel in the
// dedicated Cookies field, other multi-value headers are comma joined, and
// bodies that are not valid UTF-8 are base64 encoded.
func (r *responseBuffer) event() events.APIGatewayV2HTTPResponse {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}

	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    make(map[string]string, len(r.header)),
	}
	for k, vals := range r.header {
		if len(vals) == 0 {
			continue
		}
		if k == "Set-Cookie" {
			resp.Cookies = append(resp.Cookies, vals...)
			continue
		}
		resp.Headers[k] = strings.Join(vals, ", ")
	}

	body := r.body.Bytes()
	if utf8.Valid(body) {
		resp.Body = string(body)
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(body)
		resp.IsBase64Encoded = true
	}

	return resp
}
