// Package support manages customer support tickets.
package support

import (
	"context"
	"errors"
	"strings"

	"github.com/delivergo/storefront/internal/app/domain/support"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Service manages tickets. Customers open tickets and reply on their own;
// staff see everything and drive ticket status.
type Service struct {
	tickets storage.TicketStore
	orders  storage.OrderStore
	log     *logger.Logger
}

// New constructs a support service.
func New(tickets storage.TicketStore, orders storage.OrderStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("support")
	}
	return &Service{tickets: tickets, orders: orders, log: log}
}

// Open creates a ticket for the actor. A referenced order must exist and
// belong to the actor (staff may reference any order).
func (s *Service) Open(ctx context.Context, actor user.Actor, orderID, subject, body string) (support.Ticket, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if subject == "" {
		return support.Ticket{}, apperr.Validation("ticket subject is required")
	}
	if body == "" {
		return support.Ticket{}, apperr.Validation("ticket body is required")
	}

	if orderID != "" {
		ord, err := s.orders.GetOrder(ctx, orderID)
		if errors.Is(err, storage.ErrNotFound) {
			return support.Ticket{}, apperr.NotFoundf("order %s not found", orderID)
		}
		if err != nil {
			return support.Ticket{}, err
		}
		if !actor.Role.Staff() && ord.UserID != actor.UserID {
			return support.Ticket{}, apperr.NotFoundf("order %s not found", orderID)
		}
	}

	t, err := s.tickets.CreateTicket(ctx, support.Ticket{
		UserID:  actor.UserID,
		OrderID: orderID,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return support.Ticket{}, err
	}
	s.log.WithField("ticket_id", t.ID).WithField("user_id", actor.UserID).Info("ticket opened")
	return t, nil
}

// Get returns one ticket with its replies. Customers may only read their
// own.
func (s *Service) Get(ctx context.Context, actor user.Actor, id string) (support.Ticket, error) {
	t, err := s.tickets.GetTicket(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return support.Ticket{}, apperr.NotFoundf("ticket %s not found", id)
	}
	if err != nil {
		return support.Ticket{}, err
	}
	if !actor.Role.Staff() && t.UserID != actor.UserID {
		return support.Ticket{}, apperr.NotFoundf("ticket %s not found", id)
	}
	return t, nil
}

// List returns the actor's tickets, or every ticket for staff.
func (s *Service) List(ctx context.Context, actor user.Actor) ([]support.Ticket, error) {
	if actor.Role.Staff() {
		return s.tickets.ListTickets(ctx, "")
	}
	return s.tickets.ListTickets(ctx, actor.UserID)
}

// Reply appends a message to the ticket thread. A staff reply on an OPEN
// ticket moves it to IN_PROGRESS.
func (s *Service) Reply(ctx context.Context, actor user.Actor, ticketID, body string) (support.Reply, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return support.Reply{}, apperr.Validation("reply body is required")
	}
	t, err := s.Get(ctx, actor, ticketID)
	if err != nil {
		return support.Reply{}, err
	}
	if t.Status == support.TicketResolved {
		return support.Reply{}, apperr.Validationf("ticket %s is resolved", ticketID)
	}

	reply, err := s.tickets.AddReply(ctx, support.Reply{
		TicketID: ticketID,
		AuthorID: actor.UserID,
		Body:     body,
	})
	if err != nil {
		return support.Reply{}, err
	}

	if actor.Role.Staff() && t.Status == support.TicketOpen {
		if _, err := s.tickets.SetTicketStatus(ctx, ticketID, support.TicketInProgress); err != nil {
			s.log.WithError(err).WithField("ticket_id", ticketID).Warn("advance ticket status")
		}
	}
	return reply, nil
}

// SetStatus changes the ticket's handling state. Staff only.
func (s *Service) SetStatus(ctx context.Context, actor user.Actor, ticketID string, status support.TicketStatus) (support.Ticket, error) {
	if !actor.Role.Staff() {
		return support.Ticket{}, apperr.Unauthorized("changing ticket status requires a staff role")
	}
	switch status {
	case support.TicketOpen, support.TicketInProgress, support.TicketResolved:
	default:
		return support.Ticket{}, apperr.Validationf("unknown ticket status %q", status)
	}
	t, err := s.tickets.SetTicketStatus(ctx, ticketID, status)
	if errors.Is(err, storage.ErrNotFound) {
		return support.Ticket{}, apperr.NotFoundf("ticket %s not found", ticketID)
	}
	return t, err
}
