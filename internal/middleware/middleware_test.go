package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/service"
	"github.com/iliyamo/storefront/internal/utils"
)

const testSecret = "test-secret"

type fakeAuthorizer struct{ tokens map[string]bool }

func (f fakeAuthorizer) Authorize(_ context.Context, token string) (service.AdminContext, error) {
	if !f.tokens[token] {
		return service.AdminContext{}, service.ErrUnauthorized
	}
	return service.AdminContext{Token: token}, nil
}

func signedCookie(t *testing.T, secret, token string) *http.Cookie {
	v, err := utils.SignSessionCookie(secret, token, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return &http.Cookie{Name: SessionCookie, Value: v}
}

func TestAdminGate(t *testing.T) {
	gate := NewAdminGate(fakeAuthorizer{tokens: map[string]bool{"good": true}}, testSecret, zap.NewNop())
	e := echo.New()
	ran := 0
	e.GET("/admin-only", gate.Wrap(func(c echo.Context, admin service.AdminContext) error {
		ran++
		return c.String(http.StatusOK, admin.Token)
	}))

	cases := []struct {
		name   string
		cookie *http.Cookie
		want   int
	}{
		{"no cookie", nil, http.StatusUnauthorized},
		{"garbage", &http.Cookie{Name: SessionCookie, Value: "abc"}, http.StatusUnauthorized},
		{"foreign secret", signedCookie(t, "other", "good"), http.StatusUnauthorized},
		{"unknown session", signedCookie(t, testSecret, "bad"), http.StatusUnauthorized},
		{"live session", signedCookie(t, testSecret, "good"), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
			}
		})
	}
	assert.Equal(t, 1, ran, "the handler runs only for the live session")
}

type failingAuthorizer struct{}

func (failingAuthorizer) Authorize(context.Context, string) (service.AdminContext, error) {
	return service.AdminContext{}, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func TestAdminGateStoreFailure(t *testing.T) {
	gate := NewAdminGate(failingAuthorizer{}, testSecret, zap.NewNop())
	e := echo.New()
	ran := false
	e.GET("/admin-only", gate.Wrap(func(c echo.Context, _ service.AdminContext) error {
		ran = true
		return c.NoContent(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.AddCookie(signedCookie(t, testSecret, "good"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.False(t, ran)
}

func TestLoginThrottle(t *testing.T) {
	e := echo.New()
	th := service.NewMemoryThrottle(5, 10*time.Minute)
	e.POST("/login", func(c echo.Context) error {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Wrong password"})
	}, LoginThrottle(th, zap.NewNop()))

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusUnauthorized, hit("10.0.0.1").Code)
	}
	rec := hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many login attempts, try again later."}`, rec.Body.String())
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 600, secs, 1)

	assert.Equal(t, http.StatusUnauthorized, hit("10.0.0.2").Code)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestTokenBucket(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	e.POST("/api/reviews", func(c echo.Context) error {
		return c.JSON(http.StatusCreated, echo.Map{"ok": true})
	}, NewTokenBucket(cfg, rdb, zap.NewNop()))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/reviews", nil)
		req.RemoteAddr = "192.0.2.1:1000"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, zap.NewNop())
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	called := false
	require.NoError(t, mw(func(echo.Context) error { called = true; return nil })(c))
	assert.True(t, called)
}

func TestRedisCacheAndBuster(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20,
	}
	calls := 0
	e := echo.New()
	e.GET("/api/products", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"n": calls})
	}, NewRedisCache(cfg, rdb, zap.NewNop()))

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		return rec
	}

	first := get("/api/products")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := get("/api/products")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	assert.Equal(t, "MISS", get("/api/products?limit=2").Header().Get("X-Cache"), "the query is part of the key")

	buster := NewCacheBuster(rdb, "cache")
	require.NoError(t, buster.Publish(context.Background(), queue.NewEvent(queue.ProductUpdated)))
	third := get("/api/products")
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"n":3}`, third.Body.String())
}

func TestPayloadRoundTrip(t *testing.T) {
	h := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, h, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, hdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}
