package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/service"
	"github.com/iliyamo/storefront/internal/utils"
)

// AuthHandler bundles dependencies for the admin login endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Sessions *service.SessionAuthority
	Logger   *zap.Logger
}

func NewAuthHandler(cfg config.Config, s *service.SessionAuthority, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Sessions: s, Logger: logger}
}

type loginReq struct {
	Password string `json:"password"`
}

// Login checks the admin password and starts a session.  The throttle in
// front of this handler has already counted the attempt.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Password required"})
	}
	if !utils.VerifyPassword(h.Cfg.AdminPasswordHash, req.Password) {
		h.Logger.Info("admin login rejected", zap.String("ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Wrong password"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	// a session cookie the client already holds is superseded
	if ck, err := c.Cookie(middleware.SessionCookie); err == nil {
		if old, err := utils.ParseSessionCookie(h.Cfg.SessionSecret, ck.Value); err == nil {
			if err := h.Sessions.Revoke(ctx, old); err != nil {
				h.Logger.Warn("superseded session revoke failed", zap.Error(err))
			}
		}
	}

	token, s, err := h.Sessions.Issue(ctx, service.ClientMeta{IP: c.RealIP(), UserAgent: c.Request().UserAgent()})
	if err != nil {
		h.Logger.Error("session save failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Session save failed"})
	}
	value, err := utils.SignSessionCookie(h.Cfg.SessionSecret, token, s.ExpiresAt)
	if err != nil {
		h.Logger.Error("session cookie signing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Session save failed"})
	}
	c.SetCookie(h.cookie(value, int(h.Sessions.TTL()/time.Second)))
	h.Logger.Info("admin logged in", zap.String("ip", c.RealIP()))
	return c.JSON(http.StatusOK, okBody())
}

// Logout destroys the caller's session and clears the cookie.
func (h *AuthHandler) Logout(c echo.Context, admin service.AdminContext) error {
	if err := h.Sessions.Revoke(c.Request().Context(), admin.Token); err != nil {
		return respondError(c, h.Logger, err)
	}
	c.SetCookie(h.cookie("", -1))
	return c.JSON(http.StatusOK, okBody())
}

func (h *AuthHandler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
