// Package storage defines the persistence contracts consumed by the
// storefront services. Implementations live in the postgres, memory and
// redis subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/cart"
	"github.com/delivergo/storefront/internal/app/domain/catalog"
	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/app/domain/delivery"
	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/support"
	"github.com/delivergo/storefront/internal/app/domain/user"
)

// Sentinel errors returned by stores. Services translate these into the
// application error taxonomy.
var (
	ErrNotFound = errors.New("not found")
	// ErrStaleStatus reports a conditional status update whose expected
	// status no longer matches; the caller's view of the order is stale.
	ErrStaleStatus = errors.New("stale status")
	ErrDuplicate   = errors.New("duplicate")
	// ErrWindowUnavailable reports a delivery window that is blocked or at
	// capacity.
	ErrWindowUnavailable = errors.New("delivery window unavailable")
	// ErrInsufficientStock reports a stock adjustment that would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// OrderFilter narrows and pages an order listing.
type OrderFilter struct {
	UserID   string
	Status   *order.Status
	From     *time.Time
	To       *time.Time
	Search   string
	Page     int
	Limit    int
	SortBy   string // created_at or total
	SortDesc bool
}

// StatusStat aggregates orders sharing a status.
type StatusStat struct {
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

// OrderStore persists orders, their audit history, notes and refunds.
type OrderStore interface {
	// CreateOrder persists the order and its items as one unit. History
	// records transitions only, so creation writes no history entry.
	CreateOrder(ctx context.Context, ord order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]order.Order, int, error)
	OrderStats(ctx context.Context, filter OrderFilter) (map[order.Status]StatusStat, error)

	// TransitionOrder applies a conditional status update: the write succeeds
	// only when the order's current status equals expected, and the history
	// entry is appended in the same unit. A concurrent transition that
	// invalidates expected yields ErrStaleStatus.
	TransitionOrder(ctx context.Context, orderID string, expected, target order.Status, entry order.HistoryEntry) (order.Order, error)
	ListHistory(ctx context.Context, orderID string) ([]order.HistoryEntry, error)

	AppendNote(ctx context.Context, note order.Note) (order.Note, error)
	ListNotes(ctx context.Context, orderID string) ([]order.Note, error)

	// ApplyRefund records the refund, bumps the order's refunded amount and,
	// when markRefunded is set, moves the order to REFUNDED with a history
	// entry, all as one unit.
	ApplyRefund(ctx context.Context, ref order.Refund, markRefunded bool, entry *order.HistoryEntry) (order.Refund, error)
	ListRefunds(ctx context.Context, orderID string) ([]order.Refund, error)

	SetOrderSchedule(ctx context.Context, orderID string, at time.Time) error
}

// CartStore persists ephemeral carts keyed by owner. Loading a missing cart
// yields an empty cart, never an error; every owner implicitly has one.
type CartStore interface {
	LoadCart(ctx context.Context, ownerKey string) (cart.Cart, error)
	SaveCart(ctx context.Context, c cart.Cart) error
	DeleteCart(ctx context.Context, ownerKey string) error
}

// CouponStore persists coupons.
type CouponStore interface {
	CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error)
	UpdateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (coupon.Coupon, error)
	ListCoupons(ctx context.Context) ([]coupon.Coupon, error)
}

// ProductStore persists catalog products.
type ProductStore interface {
	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	ListProducts(ctx context.Context, category string, onlyAvailable bool) ([]catalog.Product, error)
	// AdjustStock adds delta to the product's stock, failing with
	// ErrInsufficientStock when the result would be negative.
	AdjustStock(ctx context.Context, id string, delta int) error
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
}

// DeliveryStore persists delivery windows and their bookings.
type DeliveryStore interface {
	CreateWindow(ctx context.Context, w delivery.Window) (delivery.Window, error)
	UpdateWindow(ctx context.Context, w delivery.Window) (delivery.Window, error)
	GetWindow(ctx context.Context, id string) (delivery.Window, error)
	ListWindows(ctx context.Context, date time.Time) ([]delivery.Window, error)
	// BookWindow increments the window's booked count, failing with
	// ErrWindowUnavailable when the window is blocked or at capacity.
	BookWindow(ctx context.Context, id string) (delivery.Window, error)
}

// TicketStore persists support tickets.
type TicketStore interface {
	CreateTicket(ctx context.Context, t support.Ticket) (support.Ticket, error)
	GetTicket(ctx context.Context, id string) (support.Ticket, error)
	ListTickets(ctx context.Context, userID string) ([]support.Ticket, error)
	AddReply(ctx context.Context, reply support.Reply) (support.Reply, error)
	SetTicketStatus(ctx context.Context, id string, status support.TicketStatus) (support.Ticket, error)
}
