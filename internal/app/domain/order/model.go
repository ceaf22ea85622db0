// Package order defines the order aggregate and its status lifecycle.
package order

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// Transitions is the canonical table of allowed status successors. REFUNDED
// has no row as a source and no entry as a target: it is terminal and only
// reachable through the refund operation, never through Transition.
var Transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusPreparing, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := Transitions[s]
	return ok
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	next, ok := Transitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether target is in the successor set of s.
func (s Status) CanTransition(target Status) bool {
	for _, next := range Transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

// Item is one product-and-quantity line within an order. UnitPrice is the
// price snapshot taken at checkout; catalog price changes never reprice a
// placed order.
type Item struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"order_id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
}

// Order is a placed purchase tracked through the status lifecycle. Orders are
// never hard-deleted; cancellation is a status.
type Order struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	Status                Status     `json:"status"`
	Items                 []Item     `json:"items"`
	Subtotal              float64    `json:"subtotal"`
	Discount              float64    `json:"discount"`
	Shipping              float64    `json:"shipping"`
	Total                 float64    `json:"total"`
	CouponCode            string     `json:"coupon_code,omitempty"`
	RefundedAmount        float64    `json:"refunded_amount"`
	DeliveryAddress       string     `json:"delivery_address,omitempty"`
	DeliveryNotes         string     `json:"delivery_notes,omitempty"`
	ScheduledDeliveryTime *time.Time `json:"scheduled_delivery_time,omitempty"`
	CancellationReason    string     `json:"cancellation_reason,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`

	// History is attached by the transition operation, oldest first. Plain
	// reads leave it empty.
	History []HistoryEntry `json:"history,omitempty"`
}

// HistoryEntry is one append-only record of a status change.
type HistoryEntry struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	ActorID   string    `json:"actor_id"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a free-text annotation on an order.
type Note struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RefundStatus tracks the processing state of a refund record.
type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundProcessed RefundStatus = "PROCESSED"
)

// Refund is one refund issued against an order.
type Refund struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"order_id"`
	Amount      float64      `json:"amount"`
	Reason      string       `json:"reason"`
	ProcessedBy string       `json:"processed_by"`
	Status      RefundStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}
