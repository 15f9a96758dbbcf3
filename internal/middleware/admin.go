package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/service"
	"github.com/iliyamo/storefront/internal/utils"
)

// SessionCookie is the name of the cookie carrying the signed admin session.
const SessionCookie = "admin-session"

// Authorizer resolves a raw session token into an admin context.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (service.AdminContext, error)
}

// AdminHandlerFunc is an admin endpoint.  It receives the authorized admin
// explicitly instead of fishing it out of the request.
type AdminHandlerFunc func(c echo.Context, admin service.AdminContext) error

// AdminGate guards every admin endpoint except login.
type AdminGate struct {
	auth   Authorizer
	secret string
	logger *zap.Logger
}

func NewAdminGate(auth Authorizer, secret string, logger *zap.Logger) *AdminGate {
	return &AdminGate{auth: auth, secret: secret, logger: logger}
}

// Authorize reads the session cookie and asks the authority about it.  A
// missing, tampered or foreign-signed cookie is reported as
// service.ErrUnauthorized.
func (g *AdminGate) Authorize(c echo.Context) (service.AdminContext, error) {
	ck, err := c.Cookie(SessionCookie)
	if err != nil {
		return service.AdminContext{}, service.ErrUnauthorized
	}
	token, err := utils.ParseSessionCookie(g.secret, ck.Value)
	if err != nil {
		return service.AdminContext{}, service.ErrUnauthorized
	}
	return g.auth.Authorize(c.Request().Context(), token)
}

// Wrap composes the gate in front of h.  h only runs for a live admin
// session; a missing or dead session gets 401, a failing session store 500.
func (g *AdminGate) Wrap(h AdminHandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		admin, err := g.Authorize(c)
		if errors.Is(err, service.ErrUnauthorized) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
		}
		if err != nil {
			g.logger.Error("session lookup failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
		return h(c, admin)
	}
}
