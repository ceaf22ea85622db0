// Package orders implements the order lifecycle: placement, the status
// transition machine, history, notes and refunds.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/metrics"
	"github.com/delivergo/storefront/internal/app/services/notify"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Service manages orders through their status lifecycle.
type Service struct {
	store    storage.OrderStore
	notifier notify.Notifier
	log      *logger.Logger
}

// New constructs an orders service. A nil notifier disables notifications.
func New(store storage.OrderStore, notifier notify.Notifier, log *logger.Logger) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if log == nil {
		log = logger.NewDefault("orders")
	}
	return &Service{
		store:    store,
		notifier: notifier,
		log:      log,
	}
}

// Create places a new order in PENDING. The caller (checkout) has already
// priced and validated the items. History records transitions, so a fresh
// order has none.
func (s *Service) Create(ctx context.Context, ord order.Order) (order.Order, error) {
	if ord.UserID == "" {
		return order.Order{}, apperr.Validation("user_id is required")
	}
	if len(ord.Items) == 0 {
		return order.Order{}, apperr.Validation("order has no items")
	}

	ord.Status = order.StatusPending
	created, err := s.store.CreateOrder(ctx, ord)
	if err != nil {
		return order.Order{}, err
	}

	s.log.WithField("order_id", created.ID).
		WithField("user_id", created.UserID).
		WithField("total", created.Total).
		Info("order placed")
	return created, nil
}

// Get returns the order. Customers may only read their own orders.
func (s *Service) Get(ctx context.Context, actor user.Actor, id string) (order.Order, error) {
	ord, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Order{}, apperr.NotFoundf("order %s not found", id)
	}
	if err != nil {
		return order.Order{}, err
	}
	if !actor.Role.Staff() && ord.UserID != actor.UserID {
		return order.Order{}, apperr.NotFoundf("order %s not found", id)
	}
	return ord, nil
}

// List returns orders matching the filter. Customers are always scoped to
// their own orders regardless of the filter.
func (s *Service) List(ctx context.Context, actor user.Actor, filter storage.OrderFilter) ([]order.Order, int, error) {
	if !actor.Role.Staff() {
		filter.UserID = actor.UserID
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.store.ListOrders(ctx, filter)
}

// Stats aggregates order counts and revenue per status. Staff only.
func (s *Service) Stats(ctx context.Context, actor user.Actor, filter storage.OrderFilter) (map[order.Status]storage.StatusStat, error) {
	if !actor.Role.Staff() {
		return nil, apperr.Unauthorized("order stats require a staff role")
	}
	return s.store.OrderStats(ctx, filter)
}

// Transition moves the order to the target status and returns it with the
// full status history attached, oldest first. The transition table is
// authoritative: unknown targets, disallowed edges and terminal sources are
// all rejected. Customers may only cancel their own order, and only while it
// is still PENDING; staff drive the full path. The underlying write is
// conditional on the observed status, so two racing transitions cannot both
// win.
func (s *Service) Transition(ctx context.Context, actor user.Actor, orderID string, target order.Status, note string) (order.Order, error) {
	if !target.Valid() {
		return order.Order{}, apperr.Validationf("unknown order status %q", target)
	}
	if target == order.StatusRefunded {
		return order.Order{}, apperr.InvalidTransition("REFUNDED is only reachable through a refund")
	}

	ord, err := s.Get(ctx, actor, orderID)
	if err != nil {
		return order.Order{}, err
	}
	current := ord.Status

	if !actor.Role.Staff() {
		if target != order.StatusCancelled {
			return order.Order{}, apperr.Unauthorized("customers may only cancel orders")
		}
		if current != order.StatusPending {
			return order.Order{}, apperr.InvalidTransitionf(
				"order %s can no longer be cancelled (status %s)", orderID, current)
		}
	}

	if !current.CanTransition(target) {
		metrics.RecordOrderTransition(string(current), string(target), "rejected")
		if current.Terminal() {
			return order.Order{}, apperr.InvalidTransitionf(
				"order %s is %s, a terminal status", orderID, current)
		}
		return order.Order{}, apperr.InvalidTransitionf(
			"cannot transition order %s from %s to %s", orderID, current, target)
	}

	entry := order.HistoryEntry{
		OrderID: orderID,
		Status:  target,
		ActorID: actor.UserID,
		Note:    strings.TrimSpace(note),
	}
	updated, err := s.store.TransitionOrder(ctx, orderID, current, target, entry)
	if errors.Is(err, storage.ErrStaleStatus) {
		metrics.RecordOrderTransition(string(current), string(target), "conflict")
		return order.Order{}, apperr.InvalidTransitionf(
			"order %s changed status concurrently, retry", orderID)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return order.Order{}, apperr.NotFoundf("order %s not found", orderID)
	}
	if err != nil {
		return order.Order{}, err
	}
	metrics.RecordOrderTransition(string(current), string(target), "applied")

	history, err := s.store.ListHistory(ctx, orderID)
	if err != nil {
		return order.Order{}, fmt.Errorf("list history after transition: %w", err)
	}
	updated.History = history

	s.log.WithField("order_id", orderID).
		WithField("from", string(current)).
		WithField("to", string(target)).
		WithField("actor_id", actor.UserID).
		Info("order status changed")

	// Customers hear about readiness, delivery and cancellation; the
	// intermediate kitchen statuses stay internal. Fire and forget, a failed
	// notification never unwinds the transition.
	switch target {
	case order.StatusReady, order.StatusDelivered, order.StatusCancelled:
		go s.notifier.OrderStatusChanged(context.WithoutCancel(ctx), updated, current)
	}

	return updated, nil
}

// History returns the append-only status trail, oldest first.
func (s *Service) History(ctx context.Context, actor user.Actor, orderID string) ([]order.HistoryEntry, error) {
	if _, err := s.Get(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, orderID)
}

// AddNote attaches a free-text note to the order. Staff only.
func (s *Service) AddNote(ctx context.Context, actor user.Actor, orderID, content string) (order.Note, error) {
	if !actor.Role.Staff() {
		return order.Note{}, apperr.Unauthorized("order notes require a staff role")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return order.Note{}, apperr.Validation("note content is required")
	}
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return order.Note{}, apperr.NotFoundf("order %s not found", orderID)
		}
		return order.Note{}, err
	}
	return s.store.AppendNote(ctx, order.Note{
		OrderID:  orderID,
		AuthorID: actor.UserID,
		Content:  content,
	})
}

// Notes lists the order's notes. Staff only.
func (s *Service) Notes(ctx context.Context, actor user.Actor, orderID string) ([]order.Note, error) {
	if !actor.Role.Staff() {
		return nil, apperr.Unauthorized("order notes require a staff role")
	}
	return s.store.ListNotes(ctx, orderID)
}

// Refund issues a refund against the order. Only staff may refund, only
// DELIVERED or CANCELLED orders are refundable, and cumulative refunds may
// not exceed the order total. Refunding the full remaining amount moves the
// order to REFUNDED.
func (s *Service) Refund(ctx context.Context, actor user.Actor, orderID string, amount float64, reason string) (order.Refund, error) {
	if !actor.Role.Staff() {
		return order.Refund{}, apperr.Unauthorized("refunds require a staff role")
	}
	if amount <= 0 {
		return order.Refund{}, apperr.Validation("refund amount must be positive")
	}

	ord, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Refund{}, apperr.NotFoundf("order %s not found", orderID)
	}
	if err != nil {
		return order.Refund{}, err
	}
	if ord.Status != order.StatusDelivered && ord.Status != order.StatusCancelled {
		return order.Refund{}, apperr.InvalidTransitionf(
			"order %s is %s; only DELIVERED or CANCELLED orders are refundable", orderID, ord.Status)
	}
	remaining := ord.Total - ord.RefundedAmount
	if amount > remaining+1e-9 {
		return order.Refund{}, apperr.Validationf(
			"refund of %.2f exceeds remaining refundable amount %.2f", amount, remaining)
	}

	markRefunded := amount >= remaining-1e-9
	ref := order.Refund{
		OrderID:     orderID,
		Amount:      amount,
		Reason:      strings.TrimSpace(reason),
		ProcessedBy: actor.UserID,
		Status:      order.RefundProcessed,
	}
	var entry *order.HistoryEntry
	if markRefunded {
		entry = &order.HistoryEntry{
			OrderID: orderID,
			Status:  order.StatusRefunded,
			ActorID: actor.UserID,
			Note:    fmt.Sprintf("refunded %.2f", amount),
		}
	}

	applied, err := s.store.ApplyRefund(ctx, ref, markRefunded, entry)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Refund{}, apperr.NotFoundf("order %s not found", orderID)
	}
	if err != nil {
		return order.Refund{}, err
	}

	s.log.WithField("order_id", orderID).
		WithField("amount", amount).
		WithField("full", markRefunded).
		Info("refund processed")
	return applied, nil
}

// Refunds lists refunds issued against the order. Staff only.
func (s *Service) Refunds(ctx context.Context, actor user.Actor, orderID string) ([]order.Refund, error) {
	if !actor.Role.Staff() {
		return nil, apperr.Unauthorized("refunds require a staff role")
	}
	return s.store.ListRefunds(ctx, orderID)
}
