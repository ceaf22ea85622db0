package deliveries

import (
	"context"
	"testing"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/delivery"
	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage/memory"
	"github.com/delivergo/storefront/internal/apperr"
)

var (
	customer = user.Actor{UserID: "cust-1", Role: user.RoleCustomer}
	admin    = user.Actor{UserID: "admin-1", Role: user.RoleAdmin}
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, store, nil), store
}

func windowAt(day time.Time, startHour, endHour, maxOrders int) delivery.Window {
	return delivery.Window{
		Date:      day,
		StartTime: day.Add(time.Duration(startHour) * time.Hour),
		EndTime:   day.Add(time.Duration(endHour) * time.Hour),
		MaxOrders: maxOrders,
	}
}

func seedOrder(t *testing.T, store *memory.Store, userID string) order.Order {
	t.Helper()
	ord, err := store.CreateOrder(context.Background(), order.Order{
		UserID: userID,
		Status: order.StatusPending,
		Items:  []order.Item{{ProductID: "p1", ProductName: "Soup", UnitPrice: 8, Quantity: 1}},
		Total:  8,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return ord
}

func TestCreateWindow(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	t.Run("creates non-overlapping windows", func(t *testing.T) {
		svc, _ := newTestService(t)
		if _, err := svc.CreateWindow(ctx, admin, windowAt(day, 10, 12, 5)); err != nil {
			t.Fatalf("CreateWindow: %v", err)
		}
		if _, err := svc.CreateWindow(ctx, admin, windowAt(day, 12, 14, 5)); err != nil {
			t.Fatalf("adjacent window: %v", err)
		}
	})

	t.Run("rejects overlap on same day", func(t *testing.T) {
		svc, _ := newTestService(t)
		if _, err := svc.CreateWindow(ctx, admin, windowAt(day, 10, 12, 5)); err != nil {
			t.Fatalf("CreateWindow: %v", err)
		}
		_, err := svc.CreateWindow(ctx, admin, windowAt(day, 11, 13, 5))
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("same hours on another day are fine", func(t *testing.T) {
		svc, _ := newTestService(t)
		if _, err := svc.CreateWindow(ctx, admin, windowAt(day, 10, 12, 5)); err != nil {
			t.Fatalf("CreateWindow: %v", err)
		}
		if _, err := svc.CreateWindow(ctx, admin, windowAt(day.AddDate(0, 0, 1), 10, 12, 5)); err != nil {
			t.Fatalf("next-day window: %v", err)
		}
	})

	t.Run("rejects inverted bounds", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.CreateWindow(ctx, admin, windowAt(day, 14, 12, 5))
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("customer cannot manage windows", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.CreateWindow(ctx, customer, windowAt(day, 10, 12, 5))
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("err = %v, want unauthorized", err)
		}
	})
}

func TestScheduleOrder(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	t.Run("books window and stamps the order", func(t *testing.T) {
		svc, store := newTestService(t)
		w, err := svc.CreateWindow(ctx, admin, windowAt(day, 10, 12, 2))
		if err != nil {
			t.Fatalf("CreateWindow: %v", err)
		}
		ord := seedOrder(t, store, customer.UserID)

		updated, err := svc.ScheduleOrder(ctx, customer, ord.ID, w.ID)
		if err != nil {
			t.Fatalf("ScheduleOrder: %v", err)
		}
		if updated.ScheduledDeliveryTime == nil || !updated.ScheduledDeliveryTime.Equal(w.StartTime) {
			t.Errorf("scheduled time = %v, want %v", updated.ScheduledDeliveryTime, w.StartTime)
		}

		got, _ := store.GetWindow(ctx, w.ID)
		if got.Booked != 1 {
			t.Errorf("booked = %d, want 1", got.Booked)
		}
	})

	t.Run("window at capacity", func(t *testing.T) {
		svc, store := newTestService(t)
		w, err := svc.CreateWindow(ctx, admin, windowAt(day, 10, 12, 1))
		if err != nil {
			t.Fatalf("CreateWindow: %v", err)
		}
		first := seedOrder(t, store, customer.UserID)
		second := seedOrder(t, store, customer.UserID)

		if _, err := svc.ScheduleOrder(ctx, customer, first.ID, w.ID); err != nil {
			t.Fatalf("first ScheduleOrder: %v", err)
		}
		_, err = svc.ScheduleOrder(ctx, customer, second.ID, w.ID)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("blocked window", func(t *testing.T) {
		svc, store := newTestService(t)
		w, err := svc.CreateWindow(ctx, admin, windowAt(day, 10, 12, 5))
		if err != nil {
			t.Fatalf("CreateWindow: %v", err)
		}
		if _, err := svc.SetBlocked(ctx, admin, w.ID, true); err != nil {
			t.Fatalf("SetBlocked: %v", err)
		}
		ord := seedOrder(t, store, customer.UserID)

		_, err = svc.ScheduleOrder(ctx, customer, ord.ID, w.ID)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("cannot schedule another customer's order", func(t *testing.T) {
		svc, store := newTestService(t)
		w, _ := svc.CreateWindow(ctx, admin, windowAt(day, 10, 12, 5))
		ord := seedOrder(t, store, "cust-2")

		_, err := svc.ScheduleOrder(ctx, customer, ord.ID, w.ID)
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}
