package router // package router wires handlers and middleware onto the Echo instance

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/service"
)

// Deps is everything the HTTP surface needs.  Redis may be nil, in which
// case the response cache and the review limiter are off.
type Deps struct {
	Config    config.Config
	Logger    *zap.Logger
	DB        handler.Pinger
	Catalog   *service.CatalogService
	Sessions  *service.SessionAuthority
	Throttle  service.Throttle
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler(d.Logger)

	// behind a proxy, trust its X-Forwarded-For
	if d.Config.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLog(d.Logger))
	e.Use(echomw.BodyLimit("1M"))

	RegisterRoutes(e, d.DB)
	RegisterPublic(e, d)
	RegisterAdmin(e, d)
	RegisterStatic(e, d.Config.PublicDir, d.Config.AdminDir)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterPublic registers the storefront API.  Reads go through the
// response cache; the review form is rate limited per client.
func RegisterPublic(e *echo.Echo, d Deps) {
	p := handler.NewPublicHandler(d.Catalog, d.Logger)
	cache := middleware.NewRedisCache(d.Cache, d.Redis, d.Logger)

	e.GET("/api/products", p.ListProducts, cache)
	e.GET("/api/products/:slug", p.GetProduct, cache)
	e.GET("/api/reviews", p.ListReviews, cache)
	e.POST("/api/reviews", p.SubmitReview, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger))
	e.GET("/sitemap.xml", handler.Sitemap(d.Catalog, d.Config.SiteURL, d.Logger), cache)
}

// RegisterAdmin registers /api/admin.  Login sits behind the throttle; every
// other route is composed with the admin gate.
func RegisterAdmin(e *echo.Echo, d Deps) {
	auth := handler.NewAuthHandler(d.Config, d.Sessions, d.Logger)
	admin := handler.NewAdminHandler(d.Catalog, d.Logger)
	gate := middleware.NewAdminGate(d.Sessions, d.Config.SessionSecret, d.Logger)

	g := e.Group("/api/admin")
	g.POST("/login", auth.Login, middleware.LoginThrottle(d.Throttle, d.Logger))
	g.POST("/logout", gate.Wrap(auth.Logout))

	g.GET("/products", gate.Wrap(admin.ListProducts))
	g.POST("/products", gate.Wrap(admin.CreateProduct))
	g.PUT("/products/:slug", gate.Wrap(admin.UpdateProduct))
	g.PATCH("/products/:slug", gate.Wrap(admin.UpdateProduct))
	g.DELETE("/products/:slug", gate.Wrap(admin.DeleteProduct))

	g.GET("/reviews", gate.Wrap(admin.ListReviews))
	g.PUT("/reviews/:id/approve", gate.Wrap(admin.ApproveReview))
	g.DELETE("/reviews/:id", gate.Wrap(admin.DeleteReview))

	g.GET("/settings", gate.Wrap(admin.GetSettings))
	g.PUT("/settings", gate.Wrap(admin.UpdateSettings))
}

// RegisterStatic serves the storefront files and the admin page.
func RegisterStatic(e *echo.Echo, publicDir, adminDir string) {
	if publicDir != "" {
		e.Static("/", publicDir)
		e.Static("/images", filepath.Join(publicDir, "images"))
	}
	if adminDir != "" {
		e.File("/admin", filepath.Join(adminDir, "index.html"))
	}
}

// jsonErrorHandler keeps framework errors (unknown route, body too large,
// panics) in the same {"error": ...} shape as the handlers.
func jsonErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "internal error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if code < http.StatusInternalServerError {
				msg = fmt.Sprint(he.Message)
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error("unhandled error", zap.String("path", c.Request().URL.Path), zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, echo.Map{"error": msg})
	}
}
