package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/app/storage/memory"
	"github.com/delivergo/storefront/internal/apperr"
)

var (
	customer = user.Actor{UserID: "cust-1", Role: user.RoleCustomer}
	seller   = user.Actor{UserID: "staff-1", Role: user.RoleSeller}
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, nil, nil), store
}

func placeOrder(t *testing.T, svc *Service, userID string) order.Order {
	t.Helper()
	ord, err := svc.Create(context.Background(), order.Order{
		UserID: userID,
		Items: []order.Item{
			{ProductID: "prod-1", ProductName: "Pad Thai", UnitPrice: 12.50, Quantity: 2},
		},
		Subtotal: 25.00,
		Shipping: 5.00,
		Total:    30.00,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return ord
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ord := placeOrder(t, svc, "cust-1")
	if ord.Status != order.StatusPending {
		t.Errorf("status = %s, want PENDING", ord.Status)
	}

	// History records transitions only; a fresh order has none.
	history, err := svc.History(ctx, seller, ord.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history length = %d, want 0", len(history))
	}

	t.Run("rejects empty order", func(t *testing.T) {
		_, err := svc.Create(ctx, order.Order{UserID: "cust-1"})
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("err = %v, want validation error", err)
		}
	})
}

func TestTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("staff drives full path", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")

		path := []order.Status{
			order.StatusConfirmed,
			order.StatusPreparing,
			order.StatusReady,
			order.StatusDelivered,
		}
		var updated order.Order
		for i, target := range path {
			var err error
			updated, err = svc.Transition(ctx, seller, ord.ID, target, "")
			if err != nil {
				t.Fatalf("Transition to %s: %v", target, err)
			}
			if updated.Status != target {
				t.Fatalf("status = %s, want %s", updated.Status, target)
			}
			// Each transition returns the order with its history attached.
			if len(updated.History) != i+1 {
				t.Fatalf("attached history length = %d, want %d", len(updated.History), i+1)
			}
			if last := updated.History[len(updated.History)-1]; last.Status != target {
				t.Fatalf("latest history status = %s, want %s", last.Status, target)
			}
		}
		if updated.History[0].Status != order.StatusConfirmed {
			t.Errorf("history not oldest-first: %+v", updated.History)
		}

		history, err := svc.History(ctx, seller, ord.ID)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 4 {
			t.Errorf("history length = %d, want 4", len(history))
		}
	})

	t.Run("confirmed may be skipped", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")

		if _, err := svc.Transition(ctx, seller, ord.ID, order.StatusPreparing, ""); err != nil {
			t.Fatalf("PENDING to PREPARING: %v", err)
		}
	})

	t.Run("rejects illegal edge", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")

		_, err := svc.Transition(ctx, seller, ord.ID, order.StatusDelivered, "")
		if apperr.KindOf(err) != apperr.KindInvalidTransition {
			t.Fatalf("err = %v, want invalid transition", err)
		}
	})

	t.Run("rejects leaving terminal status", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")

		if _, err := svc.Transition(ctx, seller, ord.ID, order.StatusCancelled, "out of stock"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		_, err := svc.Transition(ctx, seller, ord.ID, order.StatusConfirmed, "")
		if apperr.KindOf(err) != apperr.KindInvalidTransition {
			t.Fatalf("err = %v, want invalid transition", err)
		}
	})

	t.Run("rejects direct REFUNDED", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")

		_, err := svc.Transition(ctx, seller, ord.ID, order.StatusRefunded, "")
		if apperr.KindOf(err) != apperr.KindInvalidTransition {
			t.Fatalf("err = %v, want invalid transition", err)
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")

		_, err := svc.Transition(ctx, seller, ord.ID, order.Status("SHIPPED"), "")
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("customer cancels own pending order", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, customer.UserID)

		updated, err := svc.Transition(ctx, customer, ord.ID, order.StatusCancelled, "changed my mind")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if updated.Status != order.StatusCancelled {
			t.Errorf("status = %s, want CANCELLED", updated.Status)
		}
	})

	t.Run("customer cannot cancel after confirmation", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, customer.UserID)

		if _, err := svc.Transition(ctx, seller, ord.ID, order.StatusConfirmed, ""); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		_, err := svc.Transition(ctx, customer, ord.ID, order.StatusCancelled, "")
		if apperr.KindOf(err) != apperr.KindInvalidTransition {
			t.Fatalf("err = %v, want invalid transition", err)
		}
	})

	t.Run("customer cannot advance status", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, customer.UserID)

		_, err := svc.Transition(ctx, customer, ord.ID, order.StatusConfirmed, "")
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("err = %v, want unauthorized", err)
		}
	})

	t.Run("customer cannot touch another customer's order", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-2")

		_, err := svc.Transition(ctx, customer, ord.ID, order.StatusCancelled, "")
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})

	t.Run("missing order", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Transition(ctx, seller, "nope", order.StatusConfirmed, "")
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

// recordingNotifier forwards notified statuses on a channel so the test can
// wait for the fire-and-forget goroutines.
type recordingNotifier struct {
	statuses chan order.Status
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, ord order.Order, _ order.Status) {
	n.statuses <- ord.Status
}

func TestTransitionNotifications(t *testing.T) {
	store := memory.New()
	notifier := &recordingNotifier{statuses: make(chan order.Status, 8)}
	svc := New(store, notifier, nil)
	ctx := context.Background()
	ord := placeOrder(t, svc, "cust-1")

	path := []order.Status{
		order.StatusConfirmed,
		order.StatusPreparing,
		order.StatusReady,
		order.StatusDelivered,
	}
	for _, target := range path {
		if _, err := svc.Transition(ctx, seller, ord.ID, target, ""); err != nil {
			t.Fatalf("Transition to %s: %v", target, err)
		}
	}

	// Only READY and DELIVERED notify; CONFIRMED and PREPARING stay internal.
	got := map[order.Status]bool{}
	for i := 0; i < 2; i++ {
		select {
		case status := <-notifier.statuses:
			got[status] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notification, received %v", got)
		}
	}
	if !got[order.StatusReady] || !got[order.StatusDelivered] {
		t.Fatalf("notified statuses = %v, want READY and DELIVERED", got)
	}
	select {
	case status := <-notifier.statuses:
		t.Fatalf("unexpected notification for %s", status)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransitionConcurrency(t *testing.T) {
	// Two actors race to cancel the same PENDING order. Whether the loser
	// fails the conditional write or observes the terminal CANCELLED status,
	// exactly one transition lands and the history gains exactly one entry.
	svc, _ := newTestService(t)
	ctx := context.Background()
	ord := placeOrder(t, svc, "cust-1")

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Transition(ctx, seller, ord.ID, order.StatusCancelled, "")
			results <- err
		}()
	}

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			if apperr.KindOf(err) != apperr.KindInvalidTransition {
				t.Fatalf("loser err = %v, want invalid transition", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("failures = %d, want exactly 1", failures)
	}

	history, err := svc.History(ctx, seller, ord.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
}

func TestList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	placeOrder(t, svc, "cust-1")
	placeOrder(t, svc, "cust-1")
	placeOrder(t, svc, "cust-2")

	t.Run("customer sees only own orders", func(t *testing.T) {
		got, total, err := svc.List(ctx, customer, storage.OrderFilter{UserID: "cust-2"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		for _, ord := range got {
			if ord.UserID != "cust-1" {
				t.Errorf("leaked order for %s", ord.UserID)
			}
		}
	})

	t.Run("staff sees everything", func(t *testing.T) {
		_, total, err := svc.List(ctx, seller, storage.OrderFilter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})
}

func TestRefund(t *testing.T) {
	ctx := context.Background()

	deliver := func(t *testing.T, svc *Service, ord order.Order) {
		t.Helper()
		for _, target := range []order.Status{order.StatusPreparing, order.StatusReady, order.StatusDelivered} {
			if _, err := svc.Transition(ctx, seller, ord.ID, target, ""); err != nil {
				t.Fatalf("Transition to %s: %v", target, err)
			}
		}
	}

	t.Run("full refund marks order REFUNDED", func(t *testing.T) {
		svc, store := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")
		deliver(t, svc, ord)

		ref, err := svc.Refund(ctx, seller, ord.ID, 30.00, "order never arrived")
		if err != nil {
			t.Fatalf("Refund: %v", err)
		}
		if ref.Amount != 30.00 {
			t.Errorf("amount = %v, want 30", ref.Amount)
		}

		got, err := store.GetOrder(ctx, ord.ID)
		if err != nil {
			t.Fatalf("GetOrder: %v", err)
		}
		if got.Status != order.StatusRefunded {
			t.Errorf("status = %s, want REFUNDED", got.Status)
		}
		if got.RefundedAmount != 30.00 {
			t.Errorf("refunded = %v, want 30", got.RefundedAmount)
		}
	})

	t.Run("partial refund keeps status", func(t *testing.T) {
		svc, store := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")
		deliver(t, svc, ord)

		if _, err := svc.Refund(ctx, seller, ord.ID, 10.00, "missing drink"); err != nil {
			t.Fatalf("Refund: %v", err)
		}
		got, _ := store.GetOrder(ctx, ord.ID)
		if got.Status != order.StatusDelivered {
			t.Errorf("status = %s, want DELIVERED", got.Status)
		}
		if got.RefundedAmount != 10.00 {
			t.Errorf("refunded = %v, want 10", got.RefundedAmount)
		}
	})

	t.Run("rejects over-refund", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")
		deliver(t, svc, ord)

		_, err := svc.Refund(ctx, seller, ord.ID, 31.00, "")
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("rejects refund of undelivered order", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")

		_, err := svc.Refund(ctx, seller, ord.ID, 5.00, "")
		if apperr.KindOf(err) != apperr.KindInvalidTransition {
			t.Fatalf("err = %v, want invalid transition", err)
		}
	})

	t.Run("customer cannot refund", func(t *testing.T) {
		svc, _ := newTestService(t)
		ord := placeOrder(t, svc, "cust-1")

		_, err := svc.Refund(ctx, customer, ord.ID, 5.00, "")
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("err = %v, want unauthorized", err)
		}
	})
}

func TestNotes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ord := placeOrder(t, svc, "cust-1")

	if _, err := svc.AddNote(ctx, seller, ord.ID, "customer called, deliver to back door"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	notes, err := svc.Notes(ctx, seller, ord.ID)
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("notes length = %d, want 1", len(notes))
	}

	t.Run("customer cannot add notes", func(t *testing.T) {
		_, err := svc.AddNote(ctx, customer, ord.ID, "hi")
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("err = %v, want unauthorized", err)
		}
	})
}

func TestGetScopesCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ord := placeOrder(t, svc, "cust-2")

	_, err := svc.Get(ctx, customer, ord.ID)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
	if _, err := svc.Get(ctx, seller, ord.ID); err != nil {
		t.Fatalf("staff Get: %v", err)
	}
}
