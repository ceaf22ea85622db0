// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/cart"
	"github.com/delivergo/storefront/internal/app/domain/catalog"
	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/app/domain/delivery"
	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/support"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
)

// Store is an in-memory implementation of every storage interface.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	orders       map[string]order.Order
	history      map[string][]order.HistoryEntry
	notes        map[string][]order.Note
	refunds      map[string][]order.Refund
	carts        map[string]cart.Cart
	coupons      map[string]coupon.Coupon // by code
	products     map[string]catalog.Product
	users        map[string]user.User
	usersByEmail map[string]string
	windows      map[string]delivery.Window
	tickets      map[string]support.Ticket
}

var _ storage.OrderStore = (*Store)(nil)
var _ storage.CartStore = (*Store)(nil)
var _ storage.CouponStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.DeliveryStore = (*Store)(nil)
var _ storage.TicketStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		orders:       make(map[string]order.Order),
		history:      make(map[string][]order.HistoryEntry),
		notes:        make(map[string][]order.Note),
		refunds:      make(map[string][]order.Refund),
		carts:        make(map[string]cart.Cart),
		coupons:      make(map[string]coupon.Coupon),
		products:     make(map[string]catalog.Product),
		users:        make(map[string]user.User),
		usersByEmail: make(map[string]string),
		windows:      make(map[string]delivery.Window),
		tickets:      make(map[string]support.Ticket),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// OrderStore implementation ---------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, ord order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ord.ID == "" {
		ord.ID = s.nextIDLocked()
	} else if _, exists := s.orders[ord.ID]; exists {
		return order.Order{}, storage.ErrDuplicate
	}
	if ord.CreatedAt.IsZero() {
		ord.CreatedAt = time.Now().UTC()
	}
	ord.UpdatedAt = ord.CreatedAt
	for i := range ord.Items {
		if ord.Items[i].ID == "" {
			ord.Items[i].ID = s.nextIDLocked()
		}
		ord.Items[i].OrderID = ord.ID
	}

	s.orders[ord.ID] = cloneOrder(ord)
	return ord, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.orders[id]
	if !ok {
		return order.Order{}, storage.ErrNotFound
	}
	return cloneOrder(ord), nil
}

func (s *Store) ListOrders(_ context.Context, filter storage.OrderFilter) ([]order.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]order.Order, 0)
	for _, ord := range s.orders {
		if matchOrder(ord, filter) {
			matched = append(matched, cloneOrder(ord))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		var less bool
		if filter.SortBy == "total" {
			less = matched[i].Total < matched[j].Total
		} else {
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if filter.SortDesc {
			return !less
		}
		return less
	})

	total := len(matched)
	page, limit := filter.Page, filter.Limit
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		start := (page - 1) * limit
		if start >= total {
			return []order.Order{}, total, nil
		}
		end := start + limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (s *Store) OrderStats(_ context.Context, filter storage.OrderFilter) (map[order.Status]storage.StatusStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[order.Status]storage.StatusStat)
	for _, ord := range s.orders {
		if !matchOrder(ord, filter) {
			continue
		}
		st := stats[ord.Status]
		st.Count++
		st.Revenue += ord.Total
		stats[ord.Status] = st
	}
	return stats, nil
}

func matchOrder(ord order.Order, filter storage.OrderFilter) bool {
	if filter.UserID != "" && ord.UserID != filter.UserID {
		return false
	}
	if filter.Status != nil && ord.Status != *filter.Status {
		return false
	}
	if filter.From != nil && ord.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && ord.CreatedAt.After(*filter.To) {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(ord.ID), needle) &&
			!strings.Contains(strings.ToLower(ord.UserID), needle) {
			return false
		}
	}
	return true
}

func (s *Store) TransitionOrder(_ context.Context, orderID string, expected, target order.Status, entry order.HistoryEntry) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[orderID]
	if !ok {
		return order.Order{}, storage.ErrNotFound
	}
	if ord.Status != expected {
		return order.Order{}, storage.ErrStaleStatus
	}

	now := time.Now().UTC()
	ord.Status = target
	ord.UpdatedAt = now
	s.orders[orderID] = ord

	entry.ID = s.nextIDLocked()
	entry.OrderID = orderID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	s.history[orderID] = append(s.history[orderID], entry)
	return cloneOrder(ord), nil
}

func (s *Store) ListHistory(_ context.Context, orderID string) ([]order.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[orderID]
	out := make([]order.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *Store) AppendNote(_ context.Context, note order.Note) (order.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[note.OrderID]; !ok {
		return order.Note{}, storage.ErrNotFound
	}
	note.ID = s.nextIDLocked()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	s.notes[note.OrderID] = append(s.notes[note.OrderID], note)
	return note, nil
}

func (s *Store) ListNotes(_ context.Context, orderID string) ([]order.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := s.notes[orderID]
	out := make([]order.Note, len(notes))
	copy(out, notes)
	return out, nil
}

func (s *Store) ApplyRefund(_ context.Context, ref order.Refund, markRefunded bool, entry *order.HistoryEntry) (order.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[ref.OrderID]
	if !ok {
		return order.Refund{}, storage.ErrNotFound
	}

	now := time.Now().UTC()
	ref.ID = s.nextIDLocked()
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = now
	}
	s.refunds[ref.OrderID] = append(s.refunds[ref.OrderID], ref)

	ord.RefundedAmount += ref.Amount
	if markRefunded {
		ord.Status = order.StatusRefunded
	}
	ord.UpdatedAt = now
	s.orders[ref.OrderID] = ord

	if entry != nil {
		e := *entry
		e.ID = s.nextIDLocked()
		e.OrderID = ref.OrderID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		s.history[ref.OrderID] = append(s.history[ref.OrderID], e)
	}
	return ref, nil
}

func (s *Store) ListRefunds(_ context.Context, orderID string) ([]order.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refunds := s.refunds[orderID]
	out := make([]order.Refund, len(refunds))
	copy(out, refunds)
	return out, nil
}

func (s *Store) SetOrderSchedule(_ context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[orderID]
	if !ok {
		return storage.ErrNotFound
	}
	scheduled := at.UTC()
	ord.ScheduledDeliveryTime = &scheduled
	ord.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = ord
	return nil
}

func cloneOrder(ord order.Order) order.Order {
	out := ord
	out.Items = make([]order.Item, len(ord.Items))
	copy(out.Items, ord.Items)
	if ord.ScheduledDeliveryTime != nil {
		t := *ord.ScheduledDeliveryTime
		out.ScheduledDeliveryTime = &t
	}
	return out
}

// CartStore implementation ----------------------------------------------------

// LoadCart returns the owner's cart. A missing key yields an empty cart, not
// an error; every owner implicitly has a cart.
func (s *Store) LoadCart(_ context.Context, ownerKey string) (cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[ownerKey]
	if !ok {
		return cart.Cart{OwnerKey: ownerKey}, nil
	}
	return cloneCart(c), nil
}

func (s *Store) SaveCart(_ context.Context, c cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.UpdatedAt = time.Now().UTC()
	s.carts[c.OwnerKey] = cloneCart(c)
	return nil
}

func (s *Store) DeleteCart(_ context.Context, ownerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, ownerKey)
	return nil
}

func cloneCart(c cart.Cart) cart.Cart {
	out := c
	out.Items = make([]cart.LineItem, len(c.Items))
	copy(out.Items, c.Items)
	if c.Coupon != nil {
		cp := *c.Coupon
		out.Coupon = &cp
	}
	if c.ShippingMethod != nil {
		m := *c.ShippingMethod
		out.ShippingMethod = &m
	}
	return out
}

// CouponStore implementation --------------------------------------------------

func (s *Store) CreateCoupon(_ context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.coupons[c.Code]; exists {
		return coupon.Coupon{}, storage.ErrDuplicate
	}
	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.coupons[c.Code] = c
	return c, nil
}

func (s *Store) UpdateCoupon(_ context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.coupons[c.Code]
	if !ok {
		return coupon.Coupon{}, storage.ErrNotFound
	}
	c.ID = existing.ID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.coupons[c.Code] = c
	return c, nil
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[code]
	if !ok {
		return coupon.Coupon{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCoupons(_ context.Context) ([]coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]coupon.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ProductStore implementation -------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.products[p.ID]; exists {
		return catalog.Product{}, storage.ErrDuplicate
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return catalog.Product{}, storage.ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, category string, onlyAvailable bool) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if onlyAvailable && !p.Available {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return storage.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return storage.ErrInsufficientStock
	}
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return nil
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, storage.ErrDuplicate
	}
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	if !strings.EqualFold(existing.Email, u.Email) {
		delete(s.usersByEmail, strings.ToLower(existing.Email))
		s.usersByEmail[strings.ToLower(u.Email)] = u.ID
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// DeliveryStore implementation ------------------------------------------------

func (s *Store) CreateWindow(_ context.Context, w delivery.Window) (delivery.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = s.nextIDLocked()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	s.windows[w.ID] = w
	return w, nil
}

func (s *Store) UpdateWindow(_ context.Context, w delivery.Window) (delivery.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.windows[w.ID]
	if !ok {
		return delivery.Window{}, storage.ErrNotFound
	}
	w.CreatedAt = existing.CreatedAt
	w.Booked = existing.Booked
	s.windows[w.ID] = w
	return w, nil
}

func (s *Store) GetWindow(_ context.Context, id string) (delivery.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.windows[id]
	if !ok {
		return delivery.Window{}, storage.ErrNotFound
	}
	return w, nil
}

func (s *Store) ListWindows(_ context.Context, date time.Time) ([]delivery.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := date.UTC().Date()
	out := make([]delivery.Window, 0)
	for _, w := range s.windows {
		wy, wm, wd := w.Date.UTC().Date()
		if wy == y && wm == m && wd == d {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) BookWindow(_ context.Context, id string) (delivery.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[id]
	if !ok {
		return delivery.Window{}, storage.ErrNotFound
	}
	if w.Blocked || (w.MaxOrders > 0 && w.Booked >= w.MaxOrders) {
		return delivery.Window{}, storage.ErrWindowUnavailable
	}
	w.Booked++
	s.windows[id] = w
	return w, nil
}

// TicketStore implementation --------------------------------------------------

func (s *Store) CreateTicket(_ context.Context, t support.Ticket) (support.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Status = support.TicketOpen
	s.tickets[t.ID] = cloneTicket(t)
	return t, nil
}

func (s *Store) GetTicket(_ context.Context, id string) (support.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return support.Ticket{}, storage.ErrNotFound
	}
	return cloneTicket(t), nil
}

func (s *Store) ListTickets(_ context.Context, userID string) ([]support.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]support.Ticket, 0)
	for _, t := range s.tickets {
		if userID != "" && t.UserID != userID {
			continue
		}
		out = append(out, cloneTicket(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AddReply(_ context.Context, reply support.Reply) (support.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[reply.TicketID]
	if !ok {
		return support.Reply{}, storage.ErrNotFound
	}
	reply.ID = s.nextIDLocked()
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = time.Now().UTC()
	}
	t.Replies = append(t.Replies, reply)
	t.UpdatedAt = reply.CreatedAt
	s.tickets[reply.TicketID] = t
	return reply, nil
}

func (s *Store) SetTicketStatus(_ context.Context, id string, status support.TicketStatus) (support.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return support.Ticket{}, storage.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	s.tickets[id] = t
	return cloneTicket(t), nil
}

func cloneTicket(t support.Ticket) support.Ticket {
	out := t
	out.Replies = make([]support.Reply, len(t.Replies))
	copy(out.Replies, t.Replies)
	return out
}
