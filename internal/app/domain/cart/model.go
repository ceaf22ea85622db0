// Package cart defines the ephemeral shopping cart and the pricing
// calculator that derives every monetary figure shown to the customer.
package cart

import (
	"math"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/apperr"
)

// LineItem is one product entry in a cart. UnitPrice is a snapshot of the
// catalog price at the time the item was added.
type LineItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
}

// ShippingMethod is a flat-priced delivery option.
type ShippingMethod struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	EstimatedDays string  `json:"estimated_days,omitempty"`
}

// Cart holds a customer's in-progress selection. It lives in the cart store
// keyed by owner (user id or anonymous session key) and is cleared on
// checkout.
type Cart struct {
	OwnerKey       string          `json:"owner_key"`
	Items          []LineItem      `json:"items"`
	Coupon         *coupon.Coupon  `json:"coupon,omitempty"`
	ShippingMethod *ShippingMethod `json:"shipping_method,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AddItem merges the product into the cart, incrementing quantity when the
// product is already present.
func (c *Cart) AddItem(item LineItem) {
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			return
		}
	}
	c.Items = append(c.Items, item)
}

// UpdateQuantity sets the quantity for the given product. Quantity <= 0
// removes the line entirely. An unknown product id is a no-op, mirroring
// idempotent upsert semantics.
func (c *Cart) UpdateQuantity(productID string, quantity int) {
	for i := range c.Items {
		if c.Items[i].ProductID != productID {
			continue
		}
		if quantity <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Quantity = quantity
		}
		return
	}
}

// RemoveItem deletes the line for the given product if present.
func (c *Cart) RemoveItem(productID string) {
	c.UpdateQuantity(productID, 0)
}

// Clear empties the cart, dropping the coupon and shipping selection.
func (c *Cart) Clear() {
	c.Items = nil
	c.Coupon = nil
	c.ShippingMethod = nil
}

// Round normalizes a monetary amount to standard currency precision
// (2 decimal places). Intermediate sums are carried at full precision and
// rounded only at the edges.
func Round(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// Subtotal sums unit price times quantity over the items. Negative prices or
// non-positive quantities are rejected rather than silently producing a
// nonsensical total.
func Subtotal(items []LineItem) (float64, error) {
	var sum float64
	for _, item := range items {
		if item.UnitPrice < 0 {
			return 0, apperr.Validationf("item %s has negative unit price", item.ProductID)
		}
		if item.Quantity < 1 {
			return 0, apperr.Validationf("item %s has quantity < 1", item.ProductID)
		}
		sum += item.UnitPrice * float64(item.Quantity)
	}
	return sum, nil
}

// Discount computes the coupon discount for the given subtotal. The second
// return reports whether the coupon actually applied: a coupon whose minimum
// purchase is not met yields (0, false, nil) so the caller can surface
// "coupon not applicable" without failing the quote.
func Discount(subtotal float64, c *coupon.Coupon) (float64, bool, error) {
	if c == nil {
		return 0, false, nil
	}
	if c.Discount < 0 {
		return 0, false, apperr.Validationf("coupon %s has negative discount", c.Code)
	}
	if subtotal < c.MinPurchase {
		return 0, false, nil
	}
	switch c.Kind {
	case coupon.KindPercentage:
		d := subtotal * c.Discount / 100
		if d < 0 {
			d = 0
		}
		if d > subtotal {
			d = subtotal
		}
		return d, true, nil
	case coupon.KindFixed:
		d := c.Discount
		if d > subtotal {
			d = subtotal
		}
		return d, true, nil
	}
	return 0, false, apperr.Validationf("unknown coupon kind %q", c.Kind)
}

// Shipping returns the flat price of the selected method, or 0 when none is
// selected.
func Shipping(m *ShippingMethod) float64 {
	if m == nil {
		return 0
	}
	return m.Price
}

// Quote is the full monetary breakdown of a cart.
type Quote struct {
	Subtotal      float64 `json:"subtotal"`
	Discount      float64 `json:"discount"`
	Shipping      float64 `json:"shipping"`
	Total         float64 `json:"total"`
	CouponApplied bool    `json:"coupon_applied"`
}

// Total computes subtotal - discount + shipping, floored at 0.
func Total(items []LineItem, c *coupon.Coupon, m *ShippingMethod) (float64, error) {
	q, err := Price(items, c, m)
	if err != nil {
		return 0, err
	}
	return q.Total, nil
}

// Price computes the complete quote for the cart contents. It is pure and
// deterministic; invalid input fails fast with a validation error.
func Price(items []LineItem, c *coupon.Coupon, m *ShippingMethod) (Quote, error) {
	subtotal, err := Subtotal(items)
	if err != nil {
		return Quote{}, err
	}
	discount, applied, err := Discount(subtotal, c)
	if err != nil {
		return Quote{}, err
	}
	shipping := Shipping(m)
	if shipping < 0 {
		return Quote{}, apperr.Validation("shipping method has negative price")
	}
	total := subtotal - discount + shipping
	if total < 0 {
		total = 0
	}
	return Quote{
		Subtotal:      Round(subtotal),
		Discount:      Round(discount),
		Shipping:      Round(shipping),
		Total:         Round(total),
		CouponApplied: applied,
	}, nil
}

// PriceCart is a convenience over Price using the cart's own coupon and
// shipping selections.
func PriceCart(c *Cart) (Quote, error) {
	return Price(c.Items, c.Coupon, c.ShippingMethod)
}
