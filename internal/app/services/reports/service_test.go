package reports

import (
	"context"
	"testing"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage/memory"
	"github.com/delivergo/storefront/internal/apperr"
)

var admin = user.Actor{UserID: "admin-1", Role: user.RoleAdmin}

func seedOrder(t *testing.T, store *memory.Store, status order.Status, total float64) {
	t.Helper()
	ctx := context.Background()
	ord, err := store.CreateOrder(ctx, order.Order{
		UserID: "cust-1",
		Status: order.StatusPending,
		Items:  []order.Item{{ProductID: "p1", ProductName: "Dish", UnitPrice: total, Quantity: 1}},
		Total:  total,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	// Walk the order to its target status through legal edges.
	var path []order.Status
	switch status {
	case order.StatusPending:
	case order.StatusCancelled:
		path = []order.Status{order.StatusCancelled}
	case order.StatusDelivered:
		path = []order.Status{order.StatusPreparing, order.StatusReady, order.StatusDelivered}
	default:
		t.Fatalf("unsupported seed status %s", status)
	}
	for _, target := range path {
		prev := ord.Status
		ord, err = store.TransitionOrder(ctx, ord.ID, prev, target, order.HistoryEntry{Status: target})
		if err != nil {
			t.Fatalf("TransitionOrder to %s: %v", target, err)
		}
	}
}

func TestSales(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()

	seedOrder(t, store, order.StatusDelivered, 30)
	seedOrder(t, store, order.StatusDelivered, 20)
	seedOrder(t, store, order.StatusCancelled, 50)
	seedOrder(t, store, order.StatusPending, 10)

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	sum, err := svc.Sales(ctx, admin, from, to)
	if err != nil {
		t.Fatalf("Sales: %v", err)
	}
	if sum.Orders != 4 {
		t.Errorf("orders = %d, want 4", sum.Orders)
	}
	// Cancelled totals are excluded from revenue.
	if sum.Revenue != 60 {
		t.Errorf("revenue = %v, want 60", sum.Revenue)
	}
	if sum.ByStatus[order.StatusDelivered].Count != 2 {
		t.Errorf("delivered count = %d, want 2", sum.ByStatus[order.StatusDelivered].Count)
	}
	if len(sum.ByDay) != 1 {
		t.Fatalf("by-day buckets = %d, want 1", len(sum.ByDay))
	}
	if sum.ByDay[0].Orders != 4 || sum.ByDay[0].Revenue != 60 {
		t.Errorf("day stat = %+v, want 4 orders / 60 revenue", sum.ByDay[0])
	}
	// Cancelled order items are excluded, so p1 sold 3 units for 60.
	if len(sum.TopProducts) != 1 {
		t.Fatalf("top products = %d, want 1", len(sum.TopProducts))
	}
	if sum.TopProducts[0].Quantity != 3 || sum.TopProducts[0].Revenue != 60 {
		t.Errorf("top product = %+v, want quantity 3 / revenue 60", sum.TopProducts[0])
	}

	t.Run("customer cannot read reports", func(t *testing.T) {
		cust := user.Actor{UserID: "cust-1", Role: user.RoleCustomer}
		_, err := svc.Sales(ctx, cust, from, to)
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("err = %v, want unauthorized", err)
		}
	})

	t.Run("inverted period", func(t *testing.T) {
		_, err := svc.Sales(ctx, admin, to, from)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation error", err)
		}
	})
}

func TestSnapshotWithoutDatabase(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	seedOrder(t, store, order.StatusDelivered, 25)

	if err := svc.Snapshot(context.Background(), time.Now()); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	history, err := svc.History(context.Background(), admin, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0 in memory mode", len(history))
	}
}
