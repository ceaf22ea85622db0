package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage/memory"
	"github.com/delivergo/storefront/internal/apperr"
)

var (
	staff    = user.Actor{UserID: "seller-1", Role: user.RoleSeller}
	customer = user.Actor{UserID: "cust-1", Role: user.RoleCustomer}
)

func newService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), nil)
}

func TestCreateCoupon(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, staff, coupon.Coupon{
		Code:     "  welcome10 ",
		Kind:     coupon.KindPercentage,
		Discount: 10,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Code != "WELCOME10" {
		t.Fatalf("expected normalized code WELCOME10, got %q", created.Code)
	}

	if _, err := svc.Create(ctx, staff, coupon.Coupon{Code: "welcome10", Kind: coupon.KindFixed, Discount: 5, Active: true}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for duplicate code, got %v", err)
	}

	if _, err := svc.Create(ctx, customer, coupon.Coupon{Code: "NOPE", Kind: coupon.KindFixed, Discount: 5}); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized for customer, got %v", err)
	}

	cases := []coupon.Coupon{
		{Code: "", Kind: coupon.KindFixed, Discount: 5},
		{Code: "BAD", Kind: "HALF_OFF", Discount: 5},
		{Code: "BAD", Kind: coupon.KindFixed, Discount: 0},
		{Code: "BAD", Kind: coupon.KindPercentage, Discount: 150},
		{Code: "BAD", Kind: coupon.KindFixed, Discount: 5, MinPurchase: -1},
	}
	for _, c := range cases {
		if _, err := svc.Create(ctx, staff, c); apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("expected validation error for %+v, got %v", c, err)
		}
	}
}

func TestValidate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	seed := []coupon.Coupon{
		{Code: "TEN", Kind: coupon.KindPercentage, Discount: 10, Active: true},
		{Code: "FIVE", Kind: coupon.KindFixed, Discount: 5, MinPurchase: 30, Active: true},
		{Code: "OFF", Kind: coupon.KindFixed, Discount: 5, Active: false},
		{Code: "OLD", Kind: coupon.KindFixed, Discount: 5, Active: true, ExpiresAt: &expired},
	}
	for _, c := range seed {
		if _, err := svc.Create(ctx, staff, c); err != nil {
			t.Fatalf("seed %s: %v", c.Code, err)
		}
	}
	cases := []struct {
		code     string
		subtotal float64
		valid    bool
		reason   string
		discount float64
	}{
		{"ten", 40, true, "", 4},
		{"FIVE", 50, true, "", 5},
		{"FIVE", 20, false, "below_minimum", 0},
		{"OFF", 50, false, "inactive", 0},
		{"OLD", 50, false, "expired", 0},
		{"MISSING", 50, false, "not_found", 0},
	}
	for _, tc := range cases {
		v, err := svc.Validate(ctx, tc.code, tc.subtotal)
		if err != nil {
			t.Fatalf("validate %s: %v", tc.code, err)
		}
		if v.Valid != tc.valid || v.Reason != tc.reason || v.Discount != tc.discount {
			t.Fatalf("validate %s@%v: got %+v, want valid=%v reason=%q discount=%v",
				tc.code, tc.subtotal, v, tc.valid, tc.reason, tc.discount)
		}
	}
}

func TestDeactivate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, staff, coupon.Coupon{Code: "GONE", Kind: coupon.KindFixed, Discount: 5, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	c, err := svc.Deactivate(ctx, staff, "gone")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if c.Active {
		t.Fatalf("expected coupon to be inactive")
	}
	if _, err := svc.Deactivate(ctx, staff, "MISSING"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.List(ctx, customer); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized list for customer, got %v", err)
	}
}
