// Package coupons manages coupon definitions and validation.
package coupons

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/cart"
	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Service manages coupons. Definition is staff only; validation is open to
// any authenticated caller.
type Service struct {
	store storage.CouponStore
	now   func() time.Time
	log   *logger.Logger
}

// New constructs a coupons service.
func New(store storage.CouponStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("coupons")
	}
	return &Service{store: store, now: time.Now, log: log}
}

func normalizeCode(code string) string {
	return strings.TrimSpace(strings.ToUpper(code))
}

func validateCoupon(c coupon.Coupon) error {
	if normalizeCode(c.Code) == "" {
		return apperr.Validation("coupon code is required")
	}
	if _, err := coupon.ParseKind(string(c.Kind)); err != nil {
		return apperr.Validationf("coupon kind must be percentage or fixed, got %q", c.Kind)
	}
	if c.Discount <= 0 {
		return apperr.Validation("coupon discount must be positive")
	}
	if c.Kind == coupon.KindPercentage && c.Discount > 100 {
		return apperr.Validation("percentage discount cannot exceed 100")
	}
	if c.MinPurchase < 0 {
		return apperr.Validation("minimum purchase cannot be negative")
	}
	return nil
}

// Create defines a new coupon. Staff only; codes are unique and stored
// uppercase.
func (s *Service) Create(ctx context.Context, actor user.Actor, c coupon.Coupon) (coupon.Coupon, error) {
	if !actor.Role.Staff() {
		return coupon.Coupon{}, apperr.Unauthorized("creating coupons requires a staff role")
	}
	c.Code = normalizeCode(c.Code)
	if err := validateCoupon(c); err != nil {
		return coupon.Coupon{}, err
	}
	created, err := s.store.CreateCoupon(ctx, c)
	if errors.Is(err, storage.ErrDuplicate) {
		return coupon.Coupon{}, apperr.Validationf("coupon code %s already exists", c.Code)
	}
	if err != nil {
		return coupon.Coupon{}, err
	}
	s.log.WithField("code", created.Code).WithField("kind", string(created.Kind)).Info("coupon created")
	return created, nil
}

// Update replaces a coupon's rule. Staff only.
func (s *Service) Update(ctx context.Context, actor user.Actor, c coupon.Coupon) (coupon.Coupon, error) {
	if !actor.Role.Staff() {
		return coupon.Coupon{}, apperr.Unauthorized("updating coupons requires a staff role")
	}
	c.Code = normalizeCode(c.Code)
	if err := validateCoupon(c); err != nil {
		return coupon.Coupon{}, err
	}
	updated, err := s.store.UpdateCoupon(ctx, c)
	if errors.Is(err, storage.ErrNotFound) {
		return coupon.Coupon{}, apperr.NotFoundf("coupon %s not found", c.Code)
	}
	return updated, err
}

// Deactivate turns a coupon off without deleting it.
func (s *Service) Deactivate(ctx context.Context, actor user.Actor, code string) (coupon.Coupon, error) {
	if !actor.Role.Staff() {
		return coupon.Coupon{}, apperr.Unauthorized("deactivating coupons requires a staff role")
	}
	c, err := s.store.GetCouponByCode(ctx, normalizeCode(code))
	if errors.Is(err, storage.ErrNotFound) {
		return coupon.Coupon{}, apperr.NotFoundf("coupon %s not found", code)
	}
	if err != nil {
		return coupon.Coupon{}, err
	}
	c.Active = false
	return s.store.UpdateCoupon(ctx, c)
}

// List returns all coupons. Staff only; customers learn about coupons out of
// band and validate codes individually.
func (s *Service) List(ctx context.Context, actor user.Actor) ([]coupon.Coupon, error) {
	if !actor.Role.Staff() {
		return nil, apperr.Unauthorized("listing coupons requires a staff role")
	}
	return s.store.ListCoupons(ctx)
}

// Validation is the outcome of checking a code against a subtotal.
type Validation struct {
	Valid    bool    `json:"valid"`
	Reason   string  `json:"reason,omitempty"`
	Discount float64 `json:"discount,omitempty"`
}

// Validate checks whether the code would apply to the given subtotal and
// reports the discount it would yield. Invalid codes produce a reason, not an
// error, so storefront clients can render inline feedback.
func (s *Service) Validate(ctx context.Context, code string, subtotal float64) (Validation, error) {
	c, err := s.store.GetCouponByCode(ctx, normalizeCode(code))
	if errors.Is(err, storage.ErrNotFound) {
		return Validation{Reason: string(apperr.CouponNotFound)}, nil
	}
	if err != nil {
		return Validation{}, err
	}
	if !c.Active {
		return Validation{Reason: string(apperr.CouponInactive)}, nil
	}
	if c.Expired(s.now()) {
		return Validation{Reason: string(apperr.CouponExpired)}, nil
	}
	if subtotal < c.MinPurchase {
		return Validation{Reason: string(apperr.CouponBelowMinimum)}, nil
	}
	discount, applied, err := cart.Discount(subtotal, &c)
	if err != nil {
		return Validation{}, err
	}
	if !applied {
		return Validation{Reason: string(apperr.CouponBelowMinimum)}, nil
	}
	return Validation{Valid: true, Discount: cart.Round(discount)}, nil
}
