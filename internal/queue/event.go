// Package queue defines catalog events and their transport over the
// message broker.
package queue

import (
    "time"

    "github.com/google/uuid"
)

// Event types published after a successful catalog mutation.
const (
    ProductCreated  = "product.created"
    ProductUpdated  = "product.updated"
    ProductDeleted  = "product.deleted"
    ReviewSubmitted = "review.submitted"
    ReviewApproved  = "review.approved"
    ReviewDeleted   = "review.deleted"
    SettingsUpdated = "settings.updated"
)

// CatalogEvent tells downstream consumers (audit log, cache invalidation)
// that the catalog changed.  It carries identifiers only, never customer
// text, so the audit log stays free of personal data.
type CatalogEvent struct {
    ID       string `json:"id"`
    Type     string `json:"type"`
    Slug     string `json:"slug,omitempty"`
    ReviewID int64  `json:"review_id,omitempty"`
    At       string `json:"at"`
}

// NewEvent stamps a fresh id and UTC timestamp onto an event.
func NewEvent(typ string) CatalogEvent {
    return CatalogEvent{
        ID:   uuid.NewString(),
        Type: typ,
        At:   time.Now().UTC().Format(time.RFC3339),
    }
}
