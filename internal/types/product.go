// Package types provides the domain types shared between the storage,
// sync, and service layers.
package types

import (
	"encoding/json"
	"time"
)

// Product is a server-owned product record. The server-generated ID is the
// only durable identity; local correlation ids (local_<ts>_<rand>) are never
// persisted as a Product ID.
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category,omitempty"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	TrackStock    bool      `json:"track_stock"`
	IsActive      bool      `json:"is_active"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the product. Used by the dual-write engine to
// snapshot a record before mutating it.
func (p *Product) Clone() *Product {
	c := *p
	if p.Tags != nil {
		c.Tags = make([]string, len(p.Tags))
		copy(c.Tags, p.Tags)
	}
	return &c
}

// ProductFieldUpdates carries the subset of product fields kept consistent
// between the local cache and the server by the dual-write path. Nil fields
// are left untouched.
type ProductFieldUpdates struct {
	StockQuantity *int  `json:"stock_quantity,omitempty"`
	TrackStock    *bool `json:"track_stock,omitempty"`
}

// Apply merges the non-nil updates onto the product.
func (u ProductFieldUpdates) Apply(p *Product) {
	if u.StockQuantity != nil {
		p.StockQuantity = *u.StockQuantity
	}
	if u.TrackStock != nil {
		p.TrackStock = *u.TrackStock
	}
}

// IsEmpty reports whether the update carries no fields.
func (u ProductFieldUpdates) IsEmpty() bool {
	return u.StockQuantity == nil && u.TrackStock == nil
}

// MarshalBinary implements encoding.BinaryMarshaler
func (p *Product) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (p *Product) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}
