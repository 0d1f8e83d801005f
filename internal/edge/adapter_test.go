package edge_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"telegram-proxy/internal/client"
	"telegram-proxy/internal/config"
	"telegram-proxy/internal/edge"
	"telegram-proxy/internal/handler"
	"telegram-proxy/internal/service"
)

func httpEvent(method, rawPath, rawQuery string) events.APIGatewayV2HTTPRequest {
	ev := events.APIGatewayV2HTTPRequest{
		RawPath:        rawPath,
		RawQueryString: rawQuery,
		Headers:        map[string]string{},
	}
	ev.RequestContext.HTTP.Method = method
	ev.RequestContext.HTTP.SourceIP = "203.0.113.7"
	ev.RequestContext.DomainName = "abc123.lambda-url.eu-west-1.on.aws"
	return ev
}

var _ = Describe("NewRequest", func() {
	It("keeps method, escaped path and raw query", func() {
		ev := httpEvent(http.MethodPost, "/proxy/bot1/a%2Fb", "x=1&y=%20")
		req, err := edge.NewRequest(context.Background(), ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Method).To(Equal(http.MethodPost))
		Expect(req.URL.EscapedPath()).To(Equal("/proxy/bot1/a%2Fb"))
		Expect(req.URL.RawQuery).To(Equal("x=1&y=%20"))
		Expect(req.RemoteAddr).To(Equal("203.0.113.7:0"))
	})

	It("decodes base64 bodies and sets the content length", func() {
		ev := httpEvent(http.MethodPost, "/proxy/bot1/sendDocument", "")
		ev.Body = base64.StdEncoding.EncodeToString([]byte{0x00, 0xff, 0x10})
		ev.IsBase64Encoded = true

		req, err := edge.NewRequest(context.Background(), ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.ContentLength).To(Equal(int64(3)))
		body, err := io.ReadAll(req.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(Equal([]byte{0x00, 0xff, 0x10}))
	})

	It("rejects an invalid base64 body", func() {
		ev := httpEvent(http.MethodPost, "/proxy/bot1/sendDocument", "")
		ev.Body = "%%%"
		ev.IsBase64Encoded = true

		_, err := edge.NewRequest(context.Background(), ev)
		Expect(err).To(MatchError(ContainSubstring("base64")))
	})

	It("maps headers, cookies and host", func() {
		ev := httpEvent(http.MethodGet, "/ping", "")
		ev.Headers["content-type"] = "application/json"
		ev.Headers["host"] = "proxy.example.com"
		ev.Cookies = []string{"a=1", "b=2"}

		req, err := edge.NewRequest(context.Background(), ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(req.Header.Get("Cookie")).To(Equal("a=1; b=2"))
		Expect(req.Host).To(Equal("proxy.example.com"))
		Expect(req.Header.Get("Host")).To(BeEmpty())
	})

	It("falls back to the domain name for the host", func() {
		req, err := edge.NewRequest(context.Background(), httpEvent(http.MethodGet, "/ping", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Host).To(Equal("abc123.lambda-url.eu-west-1.on.aws"))
	})
})

var _ = Describe("Adapter", func() {
	var (
		upstream      *httptest.Server
		upstreamCalls atomic.Int32
		adapter       *edge.Adapter
	)

	BeforeEach(func() {
		upstreamCalls.Store(0)
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			upstreamCalls.Add(1)
			switch r.URL.Path {
			case "/bot1/getFile":
				w.Header().Set("Content-Type", "application/octet-stream")
				_, _ = w.Write([]byte{0xde, 0xad, 0xbe, 0xef})
			case "/bot1/sendMessage":
				body, _ := io.ReadAll(r.Body)
				w.Header().Set("Retry-After", "9")
				w.Header().Add("Set-Cookie", "s=1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write(body)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		cfg := &config.Config{Upstream: config.UpstreamConfig{IdleConnections: 4}}
		f := service.NewForwarderForTest(client.NewUpstreamClient(cfg, logger, nil), upstream.URL, logger)

		e := echo.New()
		handler.RegisterRoutes(e, handler.NewProxyHandler(f, logger), handler.NewHealthHandler(f, "test"))
		adapter = edge.NewAdapter(e, logger)
	})

	AfterEach(func() {
		upstream.Close()
	})

	It("answers the liveness probe without an upstream call", func() {
		resp, err := adapter.Handle(context.Background(), httpEvent(http.MethodGet, "/ping", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Body).To(Equal("Service is up and running"))
		Expect(resp.Headers).To(HaveKeyWithValue("Content-Type", "text/plain"))
		Expect(upstreamCalls.Load()).To(BeZero())
	})

	It("relays status, headers, cookies and body", func() {
		ev := httpEvent(http.MethodPost, "/proxy/bot1/sendMessage", "")
		ev.Body = "chat_id=1&text=hi"

		resp, err := adapter.Handle(context.Background(), ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
		Expect(resp.Headers).To(HaveKeyWithValue("Retry-After", "9"))
		Expect(resp.Cookies).To(ConsistOf("s=1"))
		Expect(resp.Body).To(Equal("chat_id=1&text=hi"))
		Expect(resp.IsBase64Encoded).To(BeFalse())
		Expect(upstreamCalls.Load()).To(Equal(int32(1)))
	})

	It("base64 encodes binary bodies", func() {
		resp, err := adapter.Handle(context.Background(), httpEvent(http.MethodGet, "/proxy/bot1/getFile", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.IsBase64Encoded).To(BeTrue())
		raw, err := base64.StdEncoding.DecodeString(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(raw).To(Equal([]byte{0xde, 0xad, 0xbe, 0xef}))
	})

	It("does not add a Content-Type the upstream never sent", func() {
		resp, err := adapter.Handle(context.Background(), httpEvent(http.MethodGet, "/proxy/bot1/unknown", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(resp.Headers).NotTo(HaveKey("Content-Type"))
	})

	It("forwards custom methods", func() {
		resp, err := adapter.Handle(context.Background(), httpEvent("PURGE", "/proxy/bot1/unknown", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(upstreamCalls.Load()).To(Equal(int32(1)))
	})

	It("returns the error fallback for unreachable upstreams", func() {
		upstream.Close()

		resp, err := adapter.Handle(context.Background(), httpEvent(http.MethodGet, "/proxy/bot1/getMe", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(resp.Body).To(HavePrefix("Error contacting API"))
	})

	It("fails on a malformed event", func() {
		ev := httpEvent(http.MethodPost, "/proxy/bot1/sendMessage", "")
		ev.Body = "not base64!"
		ev.IsBase64Encoded = true

		_, err := adapter.Handle(context.Background(), ev)
		Expect(err).To(HaveOccurred())
	})
})
