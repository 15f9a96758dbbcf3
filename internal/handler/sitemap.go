package handler

import (
    "encoding/xml"
    "net/http"
    "net/url"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/storefront/internal/service"
)

// sitemapPages are the static storefront pages listed before the products.
var sitemapPages = []string{"/", "/products.html", "/who-we-are.html", "/locate-us.html"}

type urlset struct {
    XMLName xml.Name     `xml:"urlset"`
    Xmlns   string       `xml:"xmlns,attr"`
    URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
    Loc string `xml:"loc"`
}

// Sitemap renders sitemap.xml from the static pages and every product slug.
func Sitemap(cat *service.CatalogService, baseURL string, logger *zap.Logger) echo.HandlerFunc {
    return func(c echo.Context) error {
        slugs, err := cat.ProductSlugs(c.Request().Context())
        if err != nil {
            logger.Error("sitemap failed", zap.Error(err))
            return c.NoContent(http.StatusInternalServerError)
        }
        set := urlset{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
        for _, p := range sitemapPages {
            set.URLs = append(set.URLs, sitemapURL{Loc: baseURL + p})
        }
        for _, s := range slugs {
            set.URLs = append(set.URLs, sitemapURL{Loc: baseURL + "/product.html?slug=" + url.QueryEscape(s)})
        }
        return c.XML(http.StatusOK, set)
    }
}
