// Package coupon defines discount coupons and their applicability rules.
package coupon

import (
	"fmt"
	"time"
)

// Kind is the discount mechanism of a coupon.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// ParseKind validates a raw kind string.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindPercentage, KindFixed:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("unknown coupon kind %q", raw)
}

// Coupon is a named discount rule applicable to a cart subtotal.
type Coupon struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Kind        Kind       `json:"kind"`
	Discount    float64    `json:"discount"`
	MinPurchase float64    `json:"min_purchase,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Expired reports whether the coupon's expiry, if any, is in the past.
func (c Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
