// Package carts manages per-owner shopping carts: item mutation, coupon
// application, shipping selection and quoting.
package carts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/cart"
	"github.com/delivergo/storefront/internal/app/metrics"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Service manages carts. All mutations persist through the cart store and
// return a fresh quote so the client never computes money itself.
type Service struct {
	carts    storage.CartStore
	products storage.ProductStore
	coupons  storage.CouponStore
	shipping []cart.ShippingMethod
	now      func() time.Time
	log      *logger.Logger
}

// New constructs a cart service. The shipping methods are the fixed set the
// store offers, typically loaded from settings.
func New(carts storage.CartStore, products storage.ProductStore, coupons storage.CouponStore, shipping []cart.ShippingMethod, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("carts")
	}
	return &Service{
		carts:    carts,
		products: products,
		coupons:  coupons,
		shipping: shipping,
		now:      time.Now,
		log:      log,
	}
}

// View is a cart together with its quote.
type View struct {
	Cart  cart.Cart  `json:"cart"`
	Quote cart.Quote `json:"quote"`
}

func (s *Service) view(c cart.Cart) (View, error) {
	q, err := cart.PriceCart(&c)
	if err != nil {
		return View{}, err
	}
	return View{Cart: c, Quote: q}, nil
}

// Get returns the owner's cart with its current quote.
func (s *Service) Get(ctx context.Context, ownerKey string) (View, error) {
	c, err := s.carts.LoadCart(ctx, ownerKey)
	if err != nil {
		return View{}, err
	}
	return s.view(c)
}

// AddItem puts quantity units of the product into the cart, snapshotting the
// current catalog price. Unavailable products are rejected.
func (s *Service) AddItem(ctx context.Context, ownerKey, productID string, quantity int) (View, error) {
	if quantity < 1 {
		return View{}, apperr.Validation("quantity must be at least 1")
	}
	p, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, storage.ErrNotFound) {
		return View{}, apperr.NotFoundf("product %s not found", productID)
	}
	if err != nil {
		return View{}, err
	}
	if !p.Available {
		return View{}, apperr.Validationf("product %s is not available", p.Name)
	}

	c, err := s.carts.LoadCart(ctx, ownerKey)
	if err != nil {
		return View{}, err
	}
	c.AddItem(cart.LineItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   p.Price,
		Quantity:    quantity,
	})
	return s.save(ctx, c)
}

// UpdateQuantity sets the quantity of a cart line. Zero or negative removes
// the line; an unknown product is a no-op.
func (s *Service) UpdateQuantity(ctx context.Context, ownerKey, productID string, quantity int) (View, error) {
	c, err := s.carts.LoadCart(ctx, ownerKey)
	if err != nil {
		return View{}, err
	}
	c.UpdateQuantity(productID, quantity)
	return s.save(ctx, c)
}

// RemoveItem deletes a cart line.
func (s *Service) RemoveItem(ctx context.Context, ownerKey, productID string) (View, error) {
	return s.UpdateQuantity(ctx, ownerKey, productID, 0)
}

// ApplyCoupon attaches a coupon to the cart. The coupon must exist, be
// active, be unexpired and meet its minimum purchase against the current
// subtotal; each failure carries a distinct reason.
func (s *Service) ApplyCoupon(ctx context.Context, ownerKey, code string) (View, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return View{}, apperr.Validation("coupon code is required")
	}

	cpn, err := s.coupons.GetCouponByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.RecordCouponApplication("not_found")
		return View{}, apperr.CouponInapplicable(apperr.CouponNotFound, "coupon "+code+" does not exist")
	}
	if err != nil {
		return View{}, err
	}
	if !cpn.Active {
		metrics.RecordCouponApplication("inactive")
		return View{}, apperr.CouponInapplicable(apperr.CouponInactive, "coupon "+code+" is not active")
	}
	if cpn.Expired(s.now()) {
		metrics.RecordCouponApplication("expired")
		return View{}, apperr.CouponInapplicable(apperr.CouponExpired, "coupon "+code+" has expired")
	}

	c, err := s.carts.LoadCart(ctx, ownerKey)
	if err != nil {
		return View{}, err
	}
	subtotal, err := cart.Subtotal(c.Items)
	if err != nil {
		return View{}, err
	}
	if subtotal < cpn.MinPurchase {
		metrics.RecordCouponApplication("below_minimum")
		return View{}, apperr.CouponInapplicable(apperr.CouponBelowMinimum,
			"coupon "+code+" requires a larger purchase")
	}

	c.Coupon = &cpn
	metrics.RecordCouponApplication("applied")
	s.log.WithField("owner", ownerKey).WithField("coupon", code).Info("coupon applied")
	return s.save(ctx, c)
}

// RemoveCoupon detaches the cart's coupon, if any.
func (s *Service) RemoveCoupon(ctx context.Context, ownerKey string) (View, error) {
	c, err := s.carts.LoadCart(ctx, ownerKey)
	if err != nil {
		return View{}, err
	}
	c.Coupon = nil
	return s.save(ctx, c)
}

// ShippingMethods returns the methods the store offers.
func (s *Service) ShippingMethods() []cart.ShippingMethod {
	out := make([]cart.ShippingMethod, len(s.shipping))
	copy(out, s.shipping)
	return out
}

// SetShipping selects one of the offered shipping methods for the cart.
func (s *Service) SetShipping(ctx context.Context, ownerKey, methodID string) (View, error) {
	var selected *cart.ShippingMethod
	for i := range s.shipping {
		if s.shipping[i].ID == methodID {
			m := s.shipping[i]
			selected = &m
			break
		}
	}
	if selected == nil {
		return View{}, apperr.NotFoundf("shipping method %s not found", methodID)
	}

	c, err := s.carts.LoadCart(ctx, ownerKey)
	if err != nil {
		return View{}, err
	}
	c.ShippingMethod = selected
	return s.save(ctx, c)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, ownerKey string) error {
	return s.carts.DeleteCart(ctx, ownerKey)
}

func (s *Service) save(ctx context.Context, c cart.Cart) (View, error) {
	v, err := s.view(c)
	if err != nil {
		return View{}, err
	}
	if err := s.carts.SaveCart(ctx, c); err != nil {
		return View{}, err
	}
	return v, nil
}
