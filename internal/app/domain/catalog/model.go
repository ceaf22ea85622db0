// Package catalog defines products and categories.
package catalog

import "time"

// Product is a sellable catalog entry.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Category    string    `json:"category,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Stock       int       `json:"stock"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Category groups products for the storefront menu.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
