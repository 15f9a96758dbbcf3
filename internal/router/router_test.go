package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/service"
	"github.com/iliyamo/storefront/internal/utils"
)

const adminPassword = "correct horse"

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	e, _ := newServerWithDB(t)
	return e
}

func newServerWithDB(t *testing.T) (*echo.Echo, *database.DB) {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "site.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = db.Close() })

	hash, err := utils.HashPassword(adminPassword, bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Config{
		Env:               "test",
		AdminPasswordHash: hash,
		SessionSecret:     "router-test-secret",
		SessionTTL:        time.Hour,
		SiteURL:           "https://shop.example",
	}
	logger := zap.NewNop()
	catalog := service.NewCatalogService(
		repository.NewProductRepo(db), repository.NewReviewRepo(db), repository.NewSettingsRepo(db),
		queue.Nop{}, logger)

	e := New(Deps{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Catalog:  catalog,
		Sessions: service.NewSessionAuthority(repository.NewSessionRepo(db), cfg.SessionTTL, logger),
		Throttle: service.NewMemoryThrottle(5, 10*time.Minute),
	})
	return e, db
}

func do(e *echo.Echo, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", middleware.SessionCookie)
	return nil
}

func login(t *testing.T, e *echo.Echo) *http.Cookie {
	t.Helper()
	rec := do(e, http.MethodPost, "/api/admin/login", `{"password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func TestLoginFlow(t *testing.T) {
	e := newServer(t)

	rec := do(e, http.MethodPost, "/api/admin/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Password required"}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/admin/login", `{"password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Wrong password"}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/admin/login", `{"password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	ck := sessionCookie(t, rec)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.Equal(t, 3600, ck.MaxAge)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/admin/products", "", ck).Code)

	rec = do(e, http.MethodPost, "/api/admin/logout", "", ck)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/admin/products", "", ck)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a revoked session no longer passes the gate")
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/api/admin/logout", "", ck).Code)
}

func TestLoginThrottledEvenWithCorrectPassword(t *testing.T) {
	e := newServer(t)
	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/api/admin/login", `{"password":"bad"}`).Code)
	}
	login(t, e)

	rec := do(e, http.MethodPost, "/api/admin/login", `{"password":"`+adminPassword+`"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many login attempts, try again later."}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	for _, c := range rec.Result().Cookies() {
		assert.NotEqual(t, middleware.SessionCookie, c.Name, "a throttled login never issues a session")
	}
}

func TestAdminRoutesRequireSession(t *testing.T) {
	e := newServer(t)
	forged := &http.Cookie{Name: middleware.SessionCookie, Value: "forged"}
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/products"},
		{http.MethodPost, "/api/admin/products"},
		{http.MethodPut, "/api/admin/products/x"},
		{http.MethodDelete, "/api/admin/products/x"},
		{http.MethodGet, "/api/admin/reviews"},
		{http.MethodPut, "/api/admin/reviews/1/approve"},
		{http.MethodDelete, "/api/admin/reviews/1"},
		{http.MethodGet, "/api/admin/settings"},
		{http.MethodPut, "/api/admin/settings"},
		{http.MethodPost, "/api/admin/logout"},
	}
	for _, r := range routes {
		rec := do(e, r.method, r.path, `{"name":"x","slug":"x"}`, forged)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.method, r.path)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
	}
	list := do(e, http.MethodGet, "/api/products", "")
	assert.Contains(t, list.Body.String(), `"products":[]`, "rejected creates leave no trace")
}

func TestProductCRUD(t *testing.T) {
	e := newServer(t)
	ck := login(t, e)

	rec := do(e, http.MethodPost, "/api/admin/products",
		`{"name":"Fig jam","slug":"fig-jam","price":4.5,"grams":250,"category":"jams","shortDesc":"Sweet"}`, ck)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "fig-jam", created["slug"])
	assert.Equal(t, 4.5, created["price"])

	rec = do(e, http.MethodPost, "/api/admin/products", `{"name":"Other","slug":"fig-jam"}`, ck)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, http.MethodPost, "/api/admin/products", `{"slug":"no-name"}`, ck)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Name and slug required"}`, rec.Body.String())

	for _, slug := range []string{"honey", "tea"} {
		require.Equal(t, http.StatusCreated,
			do(e, http.MethodPost, "/api/admin/products", `{"name":"`+slug+`","slug":"`+slug+`"}`, ck).Code)
	}

	rec = do(e, http.MethodPut, "/api/admin/products/fig-jam", `{"price":5}`, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"shortDesc":"Sweet"`)
	assert.Contains(t, rec.Body.String(), `"price":5`)

	rec = do(e, http.MethodGet, "/api/products?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var front struct {
		Currency string           `json:"currency"`
		Phone    string           `json:"whatsapp_phone"`
		Products []map[string]any `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &front))
	assert.Equal(t, "USD", front.Currency)
	require.Len(t, front.Products, 2)
	assert.Equal(t, "tea", front.Products[0]["slug"])
	assert.Equal(t, "honey", front.Products[1]["slug"])

	rec = do(e, http.MethodGet, "/api/products?limit=0", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &front))
	assert.Len(t, front.Products, 3)

	rec = do(e, http.MethodGet, "/api/products/fig-jam", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/api/products/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, do(e, http.MethodDelete, "/api/admin/products/fig-jam", "", ck).Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, "/api/admin/products/fig-jam", "", ck).Code)
}

func TestReviewModeration(t *testing.T) {
	e := newServer(t)

	rec := do(e, http.MethodPost, "/api/reviews", `{"name":"Ann","title":"Great"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"All fields required"}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/reviews", `{"name":"Ann","title":"Great","text":"Lovely figs"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/reviews", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	ck := login(t, e)
	rec = do(e, http.MethodGet, "/api/admin/reviews", "", ck)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, false, all[0]["approved"])

	id := int64(all[0]["id"].(float64))
	path := "/api/admin/reviews/" + jsonNumber(id) + "/approve"
	assert.Equal(t, http.StatusOK, do(e, http.MethodPut, path, "", ck).Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodPut, path, "", ck).Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPut, "/api/admin/reviews/999/approve", "", ck).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPut, "/api/admin/reviews/abc/approve", "", ck).Code)

	rec = do(e, http.MethodGet, "/api/reviews", "")
	var public []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &public))
	require.Len(t, public, 1)
	assert.Equal(t, "Lovely figs", public[0]["text"])
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestSettingsAndSitemap(t *testing.T) {
	e := newServer(t)
	ck := login(t, e)

	rec := do(e, http.MethodGet, "/api/admin/settings", "", ck)
	assert.JSONEq(t, `{"currency":"USD","whatsapp_phone":""}`, rec.Body.String())

	rec = do(e, http.MethodPut, "/api/admin/settings", `{"currency":"lbp","whatsapp_phone":"+9611234"}`, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"currency":"LBP","whatsapp_phone":"+9611234"}`, rec.Body.String())

	require.Equal(t, http.StatusCreated,
		do(e, http.MethodPost, "/api/admin/products", `{"name":"Thyme","slug":"zaatar"}`, ck).Code)

	rec = do(e, http.MethodGet, "/sitemap.xml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/xml")
	body := rec.Body.String()
	assert.Contains(t, body, `<loc>https://shop.example/</loc>`)
	assert.Contains(t, body, `<loc>https://shop.example/product.html?slug=zaatar</loc>`)
}

func TestUnknownRouteAndHealth(t *testing.T) {
	e := newServer(t)
	rec := do(e, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStoreFailureIsOpaque500(t *testing.T) {
	e, db := newServerWithDB(t)
	ck := login(t, e)
	require.NoError(t, db.Close())

	cases := []struct {
		name, method, path, body string
		cookie                   *http.Cookie
	}{
		{"public list", http.MethodGet, "/api/products", "", nil},
		{"public detail", http.MethodGet, "/api/products/zaatar", "", nil},
		{"public reviews", http.MethodGet, "/api/reviews", "", nil},
		{"review submit", http.MethodPost, "/api/reviews", `{"name":"a","title":"b","text":"c"}`, nil},
		{"admin gate", http.MethodGet, "/api/admin/products", "", ck},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tc.cookie != nil {
				rec = do(e, tc.method, tc.path, tc.body, tc.cookie)
			} else {
				rec = do(e, tc.method, tc.path, tc.body)
			}
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "closed")
			assert.NotContains(t, rec.Body.String(), "SELECT")
		})
	}

	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/healthz", "").Code)
}
