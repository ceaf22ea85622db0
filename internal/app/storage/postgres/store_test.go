package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func orderColumns() []string {
	return []string{"id", "user_id", "status", "subtotal", "discount", "shipping",
		"total", "coupon_code", "refunded_amount", "delivery_address",
		"delivery_notes", "scheduled_delivery_time", "cancellation_reason",
		"created_at", "updated_at"}
}

func TestTransitionOrder(t *testing.T) {
	now := time.Now().UTC()

	t.Run("applies conditional update with history", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
			WithArgs("ord-1", "PENDING", "CONFIRMED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_status_history")).
			WithArgs(sqlmock.AnyArg(), "ord-1", "CONFIRMED", "staff-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, status")).
			WithArgs("ord-1").
			WillReturnRows(sqlmock.NewRows(orderColumns()).
				AddRow("ord-1", "user-1", "CONFIRMED", 100.0, 0.0, 5.0, 105.0,
					nil, 0.0, nil, nil, nil, nil, now, now))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, order_id, product_id")).
			WithArgs("ord-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "product_name", "unit_price", "quantity"}))

		ord, err := store.TransitionOrder(context.Background(), "ord-1",
			order.StatusPending, order.StatusConfirmed,
			order.HistoryEntry{OrderID: "ord-1", Status: order.StatusConfirmed, ActorID: "staff-1"})
		if err != nil {
			t.Fatalf("TransitionOrder: %v", err)
		}
		if ord.Status != order.StatusConfirmed {
			t.Errorf("status = %s, want CONFIRMED", ord.Status)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("stale expected status", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
			WithArgs("ord-1", "PENDING", "CONFIRMED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs("ord-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := store.TransitionOrder(context.Background(), "ord-1",
			order.StatusPending, order.StatusConfirmed,
			order.HistoryEntry{OrderID: "ord-1", Status: order.StatusConfirmed, ActorID: "staff-1"})
		if !errors.Is(err, storage.ErrStaleStatus) {
			t.Fatalf("err = %v, want ErrStaleStatus", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("missing order", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
			WithArgs("nope", "PENDING", "CONFIRMED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, err := store.TransitionOrder(context.Background(), "nope",
			order.StatusPending, order.StatusConfirmed,
			order.HistoryEntry{OrderID: "nope", Status: order.StatusConfirmed, ActorID: "staff-1"})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestGetOrderNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, status")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orderColumns()))

	_, err := store.GetOrder(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyRefund(t *testing.T) {
	t.Run("marks order refunded", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_refunds")).
			WithArgs(sqlmock.AnyArg(), "ord-1", 25.0, "damaged item", "admin-1", "PROCESSED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
			WithArgs("ord-1", 25.0, "REFUNDED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_status_history")).
			WithArgs(sqlmock.AnyArg(), "ord-1", "REFUNDED", "admin-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ref := order.Refund{
			OrderID:     "ord-1",
			Amount:      25.0,
			Reason:      "damaged item",
			ProcessedBy: "admin-1",
			Status:      order.RefundProcessed,
		}
		entry := order.HistoryEntry{OrderID: "ord-1", Status: order.StatusRefunded, ActorID: "admin-1"}
		got, err := store.ApplyRefund(context.Background(), ref, true, &entry)
		if err != nil {
			t.Fatalf("ApplyRefund: %v", err)
		}
		if got.ID == "" {
			t.Error("refund ID not assigned")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("partial refund keeps status", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_refunds")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
			WithArgs("ord-1", 10.0, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ref := order.Refund{
			OrderID:     "ord-1",
			Amount:      10.0,
			Reason:      "partial",
			ProcessedBy: "admin-1",
			Status:      order.RefundProcessed,
		}
		if _, err := store.ApplyRefund(context.Background(), ref, false, nil); err != nil {
			t.Fatalf("ApplyRefund: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestAdjustStock(t *testing.T) {
	t.Run("insufficient stock", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE products")).
			WithArgs("prod-1", -5, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs("prod-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := store.AdjustStock(context.Background(), "prod-1", -5)
		if !errors.Is(err, storage.ErrInsufficientStock) {
			t.Fatalf("err = %v, want ErrInsufficientStock", err)
		}
	})

	t.Run("decrements stock", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE products")).
			WithArgs("prod-1", -2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := store.AdjustStock(context.Background(), "prod-1", -2); err != nil {
			t.Fatalf("AdjustStock: %v", err)
		}
	})
}

func TestBookWindowUnavailable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE delivery_windows")).
		WithArgs("win-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("win-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := store.BookWindow(context.Background(), "win-1")
	if !errors.Is(err, storage.ErrWindowUnavailable) {
		t.Fatalf("err = %v, want ErrWindowUnavailable", err)
	}
}
