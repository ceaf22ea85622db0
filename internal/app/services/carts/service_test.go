package carts

import (
	"context"
	"testing"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/cart"
	"github.com/delivergo/storefront/internal/app/domain/catalog"
	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/app/storage/memory"
	"github.com/delivergo/storefront/internal/apperr"
)

var shippingMethods = []cart.ShippingMethod{
	{ID: "standard", Name: "Standard", Price: 2.50},
	{ID: "express", Name: "Express", Price: 5.99},
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, store, shippingMethods, nil)
	return svc, store
}

func seedProduct(t *testing.T, store *memory.Store, name string, price float64, available bool) catalog.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), catalog.Product{
		Name:      name,
		Price:     price,
		Stock:     100,
		Available: available,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

func seedCoupon(t *testing.T, store *memory.Store, c coupon.Coupon) coupon.Coupon {
	t.Helper()
	created, err := store.CreateCoupon(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCoupon: %v", err)
	}
	return created
}

func TestAddItem(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, store, "Green Curry", 11.00, true)

	v, err := svc.AddItem(ctx, "cust-1", p.ID, 2)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(v.Cart.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(v.Cart.Items))
	}
	if v.Quote.Subtotal != 22.00 {
		t.Errorf("subtotal = %v, want 22", v.Quote.Subtotal)
	}

	t.Run("same product increments quantity", func(t *testing.T) {
		v, err := svc.AddItem(ctx, "cust-1", p.ID, 1)
		if err != nil {
			t.Fatalf("AddItem: %v", err)
		}
		if v.Cart.Items[0].Quantity != 3 {
			t.Errorf("quantity = %d, want 3", v.Cart.Items[0].Quantity)
		}
	})

	t.Run("price is snapshotted at add time", func(t *testing.T) {
		p.Price = 99.00
		if _, err := store.UpdateProduct(ctx, p); err != nil {
			t.Fatalf("UpdateProduct: %v", err)
		}
		v, err := svc.Get(ctx, "cust-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v.Cart.Items[0].UnitPrice != 11.00 {
			t.Errorf("unit price = %v, want snapshot 11", v.Cart.Items[0].UnitPrice)
		}
	})

	t.Run("rejects unavailable product", func(t *testing.T) {
		off := seedProduct(t, store, "Seasonal Special", 9.00, false)
		_, err := svc.AddItem(ctx, "cust-1", off.ID, 1)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("rejects unknown product", func(t *testing.T) {
		_, err := svc.AddItem(ctx, "cust-1", "ghost", 1)
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestApplyCoupon(t *testing.T) {
	ctx := context.Background()

	fill := func(t *testing.T, svc *Service, store *memory.Store, owner string, amount float64) {
		t.Helper()
		p := seedProduct(t, store, "Filler", amount, true)
		if _, err := svc.AddItem(ctx, owner, p.ID, 1); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}

	t.Run("applies and quotes", func(t *testing.T) {
		svc, store := newTestService(t)
		seedCoupon(t, store, coupon.Coupon{Code: "TEN", Kind: coupon.KindFixed, Discount: 10, Active: true})
		fill(t, svc, store, "cust-1", 40)

		v, err := svc.ApplyCoupon(ctx, "cust-1", "ten")
		if err != nil {
			t.Fatalf("ApplyCoupon: %v", err)
		}
		if v.Quote.Discount != 10.00 {
			t.Errorf("discount = %v, want 10", v.Quote.Discount)
		}
		if !v.Quote.CouponApplied {
			t.Error("coupon should be applied")
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		svc, store := newTestService(t)
		fill(t, svc, store, "cust-1", 40)

		_, err := svc.ApplyCoupon(ctx, "cust-1", "GHOST")
		if apperr.ReasonOf(err) != apperr.CouponNotFound {
			t.Fatalf("err = %v, want not_found reason", err)
		}
	})

	t.Run("inactive coupon", func(t *testing.T) {
		svc, store := newTestService(t)
		seedCoupon(t, store, coupon.Coupon{Code: "OFF", Kind: coupon.KindFixed, Discount: 5, Active: false})
		fill(t, svc, store, "cust-1", 40)

		_, err := svc.ApplyCoupon(ctx, "cust-1", "OFF")
		if apperr.ReasonOf(err) != apperr.CouponInactive {
			t.Fatalf("err = %v, want inactive reason", err)
		}
	})

	t.Run("expired coupon", func(t *testing.T) {
		svc, store := newTestService(t)
		past := time.Now().Add(-time.Hour)
		seedCoupon(t, store, coupon.Coupon{Code: "OLD", Kind: coupon.KindFixed, Discount: 5, Active: true, ExpiresAt: &past})
		fill(t, svc, store, "cust-1", 40)

		_, err := svc.ApplyCoupon(ctx, "cust-1", "OLD")
		if apperr.ReasonOf(err) != apperr.CouponExpired {
			t.Fatalf("err = %v, want expired reason", err)
		}
	})

	t.Run("below minimum purchase", func(t *testing.T) {
		svc, store := newTestService(t)
		seedCoupon(t, store, coupon.Coupon{Code: "BIG", Kind: coupon.KindFixed, Discount: 20, MinPurchase: 75, Active: true})
		fill(t, svc, store, "cust-1", 40)

		_, err := svc.ApplyCoupon(ctx, "cust-1", "BIG")
		if apperr.ReasonOf(err) != apperr.CouponBelowMinimum {
			t.Fatalf("err = %v, want below_minimum reason", err)
		}
	})

	t.Run("remove coupon", func(t *testing.T) {
		svc, store := newTestService(t)
		seedCoupon(t, store, coupon.Coupon{Code: "TEN", Kind: coupon.KindFixed, Discount: 10, Active: true})
		fill(t, svc, store, "cust-1", 40)

		if _, err := svc.ApplyCoupon(ctx, "cust-1", "TEN"); err != nil {
			t.Fatalf("ApplyCoupon: %v", err)
		}
		v, err := svc.RemoveCoupon(ctx, "cust-1")
		if err != nil {
			t.Fatalf("RemoveCoupon: %v", err)
		}
		if v.Cart.Coupon != nil {
			t.Error("coupon should be removed")
		}
		if v.Quote.Discount != 0 {
			t.Errorf("discount = %v, want 0", v.Quote.Discount)
		}
	})
}

func TestSetShipping(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, store, "Spring Rolls", 6.00, true)
	if _, err := svc.AddItem(ctx, "cust-1", p.ID, 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	v, err := svc.SetShipping(ctx, "cust-1", "express")
	if err != nil {
		t.Fatalf("SetShipping: %v", err)
	}
	if v.Quote.Shipping != 5.99 {
		t.Errorf("shipping = %v, want 5.99", v.Quote.Shipping)
	}
	if v.Quote.Total != 11.99 {
		t.Errorf("total = %v, want 11.99", v.Quote.Total)
	}

	t.Run("unknown method", func(t *testing.T) {
		_, err := svc.SetShipping(ctx, "cust-1", "drone")
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestUpdateAndClear(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, store, "Dumplings", 8.00, true)
	if _, err := svc.AddItem(ctx, "cust-1", p.ID, 2); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	v, err := svc.UpdateQuantity(ctx, "cust-1", p.ID, 5)
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if v.Quote.Subtotal != 40.00 {
		t.Errorf("subtotal = %v, want 40", v.Quote.Subtotal)
	}

	if _, err := svc.RemoveItem(ctx, "cust-1", p.ID); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if err := svc.Clear(ctx, "cust-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := svc.Get(ctx, "cust-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Cart.Items) != 0 {
		t.Errorf("items = %d, want 0", len(got.Cart.Items))
	}
}
