// Package deliveries manages delivery windows and order scheduling.
package deliveries

import (
	"context"
	"errors"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/delivery"
	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Service manages delivery windows. Windows are defined by staff; customers
// schedule their own orders into open windows.
type Service struct {
	windows storage.DeliveryStore
	orders  storage.OrderStore
	log     *logger.Logger
}

// New constructs a deliveries service.
func New(windows storage.DeliveryStore, orders storage.OrderStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("deliveries")
	}
	return &Service{windows: windows, orders: orders, log: log}
}

func validateWindow(w delivery.Window) error {
	if w.Date.IsZero() {
		return apperr.Validation("window date is required")
	}
	if !w.StartTime.Before(w.EndTime) {
		return apperr.Validation("window start must be before its end")
	}
	if w.MaxOrders < 0 {
		return apperr.Validation("max orders cannot be negative")
	}
	return nil
}

// CreateWindow defines a new bookable window. Staff only. Windows on the
// same day must not overlap in time.
func (s *Service) CreateWindow(ctx context.Context, actor user.Actor, w delivery.Window) (delivery.Window, error) {
	if !actor.Role.Staff() {
		return delivery.Window{}, apperr.Unauthorized("managing delivery windows requires a staff role")
	}
	if err := validateWindow(w); err != nil {
		return delivery.Window{}, err
	}

	existing, err := s.windows.ListWindows(ctx, w.Date)
	if err != nil {
		return delivery.Window{}, err
	}
	for _, other := range existing {
		if w.Overlaps(other) {
			return delivery.Window{}, apperr.Validationf(
				"window overlaps existing window %s", other.ID)
		}
	}

	created, err := s.windows.CreateWindow(ctx, w)
	if err != nil {
		return delivery.Window{}, err
	}
	s.log.WithField("window_id", created.ID).WithField("date", created.Date.Format("2006-01-02")).
		Info("delivery window created")
	return created, nil
}

// UpdateWindow changes a window's bounds or capacity. Staff only.
func (s *Service) UpdateWindow(ctx context.Context, actor user.Actor, w delivery.Window) (delivery.Window, error) {
	if !actor.Role.Staff() {
		return delivery.Window{}, apperr.Unauthorized("managing delivery windows requires a staff role")
	}
	if err := validateWindow(w); err != nil {
		return delivery.Window{}, err
	}

	existing, err := s.windows.ListWindows(ctx, w.Date)
	if err != nil {
		return delivery.Window{}, err
	}
	for _, other := range existing {
		if other.ID != w.ID && w.Overlaps(other) {
			return delivery.Window{}, apperr.Validationf(
				"window overlaps existing window %s", other.ID)
		}
	}

	updated, err := s.windows.UpdateWindow(ctx, w)
	if errors.Is(err, storage.ErrNotFound) {
		return delivery.Window{}, apperr.NotFoundf("delivery window %s not found", w.ID)
	}
	return updated, err
}

// SetBlocked toggles whether the window accepts bookings. Staff only.
func (s *Service) SetBlocked(ctx context.Context, actor user.Actor, id string, blocked bool) (delivery.Window, error) {
	if !actor.Role.Staff() {
		return delivery.Window{}, apperr.Unauthorized("managing delivery windows requires a staff role")
	}
	w, err := s.windows.GetWindow(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return delivery.Window{}, apperr.NotFoundf("delivery window %s not found", id)
	}
	if err != nil {
		return delivery.Window{}, err
	}
	w.Blocked = blocked
	return s.windows.UpdateWindow(ctx, w)
}

// ListWindows returns the windows on the given date.
func (s *Service) ListWindows(ctx context.Context, date time.Time) ([]delivery.Window, error) {
	return s.windows.ListWindows(ctx, date)
}

// ScheduleOrder books the order into the window. Customers may schedule only
// their own orders and only while the order is still in flight. Capacity and
// blocking are enforced by the conditional booking write.
func (s *Service) ScheduleOrder(ctx context.Context, actor user.Actor, orderID, windowID string) (order.Order, error) {
	ord, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Order{}, apperr.NotFoundf("order %s not found", orderID)
	}
	if err != nil {
		return order.Order{}, err
	}
	if !actor.Role.Staff() && ord.UserID != actor.UserID {
		return order.Order{}, apperr.NotFoundf("order %s not found", orderID)
	}
	if ord.Status.Terminal() {
		return order.Order{}, apperr.InvalidTransitionf(
			"order %s is %s and can no longer be scheduled", orderID, ord.Status)
	}

	w, err := s.windows.BookWindow(ctx, windowID)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Order{}, apperr.NotFoundf("delivery window %s not found", windowID)
	}
	if errors.Is(err, storage.ErrWindowUnavailable) {
		return order.Order{}, apperr.Validationf("delivery window %s is full or blocked", windowID)
	}
	if err != nil {
		return order.Order{}, err
	}

	if err := s.orders.SetOrderSchedule(ctx, orderID, w.StartTime); err != nil {
		return order.Order{}, err
	}
	s.log.WithField("order_id", orderID).WithField("window_id", windowID).Info("order scheduled")
	return s.orders.GetOrder(ctx, orderID)
}
