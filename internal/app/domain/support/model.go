// Package support defines customer support tickets.
package support

import "time"

// TicketStatus tracks the handling state of a ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "OPEN"
	TicketInProgress TicketStatus = "IN_PROGRESS"
	TicketResolved   TicketStatus = "RESOLVED"
)

// Ticket is a customer complaint or support request, optionally tied to an
// order.
type Ticket struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	OrderID   string       `json:"order_id,omitempty"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body"`
	Status    TicketStatus `json:"status"`
	Replies   []Reply      `json:"replies,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Reply is one message in a ticket thread.
type Reply struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
