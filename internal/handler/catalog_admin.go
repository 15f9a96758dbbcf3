package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/iliyamo/storefront/internal/model"
    "github.com/iliyamo/storefront/internal/service"
)

// AdminHandler serves the catalog management endpoints.  Every method takes
// the AdminContext the gate produced.
type AdminHandler struct {
    Catalog *service.CatalogService
    Logger  *zap.Logger
}

func NewAdminHandler(cat *service.CatalogService, logger *zap.Logger) *AdminHandler {
    return &AdminHandler{Catalog: cat, Logger: logger}
}

// productReq accepts both the create and the update body.  Absent fields
// stay nil, which an update reads as "keep".
type productReq struct {
    Slug      *string          `json:"slug"`
    Name      *string          `json:"name"`
    Price     *decimal.Decimal `json:"price"`
    Grams     *int             `json:"grams"`
    Category  *string          `json:"category"`
    Image     *string          `json:"image"`
    ShortDesc *string          `json:"shortDesc"`
}

func (r productReq) patch() model.ProductPatch {
    return model.ProductPatch{
        Slug: r.Slug, Name: r.Name, Price: r.Price, Grams: r.Grams,
        Category: r.Category, Image: r.Image, ShortDesc: r.ShortDesc,
    }
}

func (h *AdminHandler) ListProducts(c echo.Context, _ service.AdminContext) error {
    products, err := h.Catalog.ListProducts(c.Request().Context(), model.ListOptions{})
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, products)
}

func (h *AdminHandler) CreateProduct(c echo.Context, _ service.AdminContext) error {
    var req productReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    p, err := h.Catalog.CreateProduct(c.Request().Context(), req.patch())
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    h.Logger.Info("product created", zap.String("slug", p.Slug))
    return c.JSON(http.StatusCreated, p)
}

func (h *AdminHandler) UpdateProduct(c echo.Context, _ service.AdminContext) error {
    var req productReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    p, err := h.Catalog.UpdateProduct(c.Request().Context(), c.Param("slug"), req.patch())
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, p)
}

func (h *AdminHandler) DeleteProduct(c echo.Context, _ service.AdminContext) error {
    slug := c.Param("slug")
    if err := h.Catalog.DeleteProduct(c.Request().Context(), slug); err != nil {
        return respondError(c, h.Logger, err)
    }
    h.Logger.Info("product deleted", zap.String("slug", slug))
    return c.JSON(http.StatusOK, okBody())
}

func (h *AdminHandler) ListReviews(c echo.Context, _ service.AdminContext) error {
    reviews, err := h.Catalog.AdminReviews(c.Request().Context())
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, reviews)
}

func (h *AdminHandler) ApproveReview(c echo.Context, _ service.AdminContext) error {
    id, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    if err := h.Catalog.ApproveReview(c.Request().Context(), id); err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, okBody())
}

func (h *AdminHandler) DeleteReview(c echo.Context, _ service.AdminContext) error {
    id, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    if err := h.Catalog.DeleteReview(c.Request().Context(), id); err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, okBody())
}

func (h *AdminHandler) GetSettings(c echo.Context, _ service.AdminContext) error {
    s, err := h.Catalog.Settings(c.Request().Context())
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}

func (h *AdminHandler) UpdateSettings(c echo.Context, _ service.AdminContext) error {
    var req model.Settings
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    s, err := h.Catalog.UpdateSettings(c.Request().Context(), req)
    if err != nil {
        return respondError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}
