package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/service"
)

// LoginThrottle counts every request it sees against the client address and
// rejects the request before the handler runs once the window is full.
func LoginThrottle(t service.Throttle, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			d, err := t.Hit(c.Request().Context(), ip)
			if err != nil {
				logger.Error("login throttle failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				logger.Warn("login throttled", zap.String("ip", ip), zap.Int("attempts", d.Count))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "Too many login attempts, try again later."})
			}
			return next(c)
		}
	}
}
