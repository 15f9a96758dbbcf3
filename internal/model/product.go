package model

import "github.com/shopspring/decimal"

func init() {
    // Prices travel as JSON numbers, matching what the storefront expects.
    decimal.MarshalJSONWithoutQuotes = true
}

// Product is a catalog item as stored in the `products` table and as
// returned by both the public and admin APIs.  Slug is the external key and
// is unique across the store; ID and CreatedAt never change after insert.
//
// Fields:
//  ID        – products.id, assigned by the store.
//  Slug      – products.slug, unique, URL safe.
//  Name      – display name.
//  Price     – non-negative price in the settings currency.
//  Grams     – net weight in grams, 0 when unknown.
//  Category  – free form category, may be empty.
//  Image     – image path or URL, may be empty.
//  ShortDesc – one line description, may be empty.
//  CreatedAt – Unix milliseconds at creation.
type Product struct {
    ID        int64           `json:"id"`
    Slug      string          `json:"slug"`
    Name      string          `json:"name"`
    Price     decimal.Decimal `json:"price"`
    Grams     int             `json:"grams"`
    Category  string          `json:"category"`
    Image     string          `json:"image"`
    ShortDesc string          `json:"shortDesc"`
    CreatedAt int64           `json:"createdAt"`
}

// ProductPatch describes a partial update.  Nil fields keep the stored value.
type ProductPatch struct {
    Slug      *string
    Name      *string
    Price     *decimal.Decimal
    Grams     *int
    Category  *string
    Image     *string
    ShortDesc *string
}

// Apply copies every non-nil field of the patch onto p.
func (pp ProductPatch) Apply(p *Product) {
    if pp.Slug != nil {
        p.Slug = *pp.Slug
    }
    if pp.Name != nil {
        p.Name = *pp.Name
    }
    if pp.Price != nil {
        p.Price = *pp.Price
    }
    if pp.Grams != nil {
        p.Grams = *pp.Grams
    }
    if pp.Category != nil {
        p.Category = *pp.Category
    }
    if pp.Image != nil {
        p.Image = *pp.Image
    }
    if pp.ShortDesc != nil {
        p.ShortDesc = *pp.ShortDesc
    }
}

// Product list orderings.
const (
    SortDefault = ""    // newest id first
    SortNew     = "new" // newest createdAt first
)

// ListOptions selects ordering and truncation for product listings.  A
// Limit of zero or less means no limit.
type ListOptions struct {
    Sort  string
    Limit int
}
