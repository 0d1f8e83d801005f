// Package handler wires HTTP routes onto Echo.
package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Everything
// that is not a local route goes to the proxy, which rejects paths outside
// /proxy/ with the same 500 fallback as any other upstream failure.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.Any(PingPath, health.Ping)
	e.GET("/status", health.Status)

	e.Any("/*", proxy.Handle)

	// Registered last so it runs after the rest of the middleware chain.
	e.Use(anyMethod(proxy, health))
}

// anyMethod serves requests whose method has no route. Echo's Any only covers
// a fixed method list, so for custom methods (PURGE, MKCOL, ...) the router
// picks its 405 handler and records the Allow header value in the context.
// Those requests are answered by the ping or proxy handler instead.
func anyMethod(proxy *ProxyHandler, health *HealthHandler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, unrouted := c.Get(echo.ContextKeyHeaderAllow).(string); !unrouted {
				return next(c)
			}
			if c.Request().URL.Path == PingPath {
				return health.Ping(c)
			}
			return proxy.Handle(c)
		}
	}
}
