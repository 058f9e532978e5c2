package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Product is a catalog entry (`products` row). Tags and Characteristics are
// stored as JSON columns.
type Product struct {
    ID              uint64            `json:"id"`
    OwnerID         uint64            `json:"ownerId"`
    Title           string            `json:"title"`
    Description     string            `json:"description"`
    Image           *string           `json:"image,omitempty"`
    Price           decimal.Decimal   `json:"price"`
    Tags            []string          `json:"tags"`
    Characteristics map[string]string `json:"characteristics"`
    CreatedAt       time.Time         `json:"createdAt"`
    UpdatedAt       time.Time         `json:"updatedAt"`
}

// Ref returns the summary embedded in cart and order listings.
func (p Product) Ref() ProductRef {
    return ProductRef{ID: p.ID, Title: p.Title, Price: p.Price, Image: p.Image}
}

// ProductRef is the short form of a product used when populating cart lines
// and order items.
type ProductRef struct {
    ID    uint64          `json:"id"`
    Title string          `json:"title"`
    Price decimal.Decimal `json:"price"`
    Image *string         `json:"image,omitempty"`
}
