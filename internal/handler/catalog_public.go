package handler

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/storefront/internal/model"
    "github.com/iliyamo/storefront/internal/service"
)

// PublicHandler serves the storefront reads and the review form.
type PublicHandler struct {
    Catalog *service.CatalogService
    Logger  *zap.Logger
}

func NewPublicHandler(cat *service.CatalogService, logger *zap.Logger) *PublicHandler {
    return &PublicHandler{Catalog: cat, Logger: logger}
}

// listOptions reads ?sort= and ?limit=.  A limit that is absent, zero,
// negative or not a number means the full list.
func listOptions(c echo.Context) model.ListOptions {
    opts := model.ListOptions{Sort: strings.ToLower(c.QueryParam("sort"))}
    if n, err := strconv.Atoi(strings.TrimSpace(c.QueryParam("limit"))); err == nil && n > 0 {
        opts.Limit = n
    }
    return opts
}

// ListProducts returns the settings with the product list folded in.
func (h *PublicHandler) ListProducts(c echo.Context) error {
    front, err := h.Catalog.Storefront(c.Request().Context(), listOptions(c))
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, front)
}

func (h *PublicHandler) GetProduct(c echo.Context) error {
    p, err := h.Catalog.GetProduct(c.Request().Context(), c.Param("slug"))
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, p)
}

// ListReviews returns approved reviews only.
func (h *PublicHandler) ListReviews(c echo.Context) error {
    reviews, err := h.Catalog.PublicReviews(c.Request().Context())
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, reviews)
}

type reviewReq struct {
    Name  string `json:"name"`
    Title string `json:"title"`
    Text  string `json:"text"`
}

// SubmitReview stores an unapproved review.  The stored record is not
// echoed back.
func (h *PublicHandler) SubmitReview(c echo.Context) error {
    var req reviewReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    _, err := h.Catalog.SubmitReview(c.Request().Context(), service.ReviewInput{
        Name: req.Name, Title: req.Title, Text: req.Text,
    })
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, okBody())
}
