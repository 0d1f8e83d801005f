package handler

import (
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"telegram-proxy/internal/metrics"
	"telegram-proxy/internal/model"
	"telegram-proxy/internal/service"
)

// errorPrefix is glued to the failure message with no separator.
const errorPrefix = "Error contacting API"

// botTokenPattern matches the token segment of Bot API paths
// (/bot<id>:<secret>/...), as issued by BotFather.
var botTokenPattern = regexp.MustCompile(`(/bot)\d+(?::|%3[Aa])[A-Za-z0-9_-]+`)

// ProxyHandler forwards requests to the upstream API.
type ProxyHandler struct {
	forwarder *service.Forwarder
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(f *service.Forwarder, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: f,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request upstream and streams the response back.
// Any failure to obtain an upstream response becomes a 500 carrying the
// failure message.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.EscapedPath(),
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		ContentLength: req.ContentLength,
		Body:          req.Body,
	}

	resp, err := h.forwarder.Forward(pr)
	if err != nil {
		h.logger.Error("proxy error",
			"err", RedactBotToken(err.Error()),
			"path", RedactBotToken(pr.Path),
		)
		c.Set(metrics.OutcomeKey, metrics.OutcomeFallback)
		return c.String(http.StatusInternalServerError, errorPrefix+err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	c.Set(metrics.OutcomeKey, metrics.OutcomeRelayed)

	header := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			header.Add(key, v)
		}
	}
	// A nil entry stops net/http from sniffing a Content-Type the upstream
	// never sent.
	if _, ok := resp.Header["Content-Type"]; !ok {
		header["Content-Type"] = nil
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is written a mid-stream failure can only truncate the
	// body; it is logged and the handler returns normally.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", RedactBotToken(err.Error()),
			"path", RedactBotToken(pr.Path),
		)
	}

	return nil
}

// RedactBotToken masks Bot API tokens embedded in paths or error text.
func RedactBotToken(s string) string {
	return botTokenPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
