package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"telegram-proxy/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that counts and times inbound
// requests. Each request is labelled with the outcome its handler recorded
// under metrics.OutcomeKey, so relayed upstream statuses can be told apart
// from the proxy's own fallback 500s.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			status, outcome := classify(c, err)
			method := metrics.NormalizeMethod(c.Request().Method)
			prefix := metrics.NormalizePath(c.Request().URL.Path)

			m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status), prefix, outcome).Inc()
			m.RequestDuration.WithLabelValues(method, prefix, outcome).Observe(elapsed)

			return err
		}
	}
}

// classify resolves the final status code and outcome of a handled request.
// A returned error has not been written yet when the chain unwinds, so the
// code Echo's error handler will send stands in for the response status.
func classify(c echo.Context, err error) (int, string) {
	status := c.Response().Status
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
	case err != nil:
		status = http.StatusInternalServerError
	}

	if outcome, ok := c.Get(metrics.OutcomeKey).(string); ok {
		return status, outcome
	}
	if err != nil || status >= 400 {
		return status, metrics.OutcomeRejected
	}
	return status, metrics.OutcomeLocal
}
