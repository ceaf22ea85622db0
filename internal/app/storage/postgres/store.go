// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/delivergo/storefront/internal/app/domain/catalog"
	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/app/domain/delivery"
	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/support"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Carts are
// not served from here; they live in the redis store.
type Store struct {
	db *sql.DB
}

var _ storage.OrderStore = (*Store)(nil)
var _ storage.CouponStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.DeliveryStore = (*Store)(nil)
var _ storage.TicketStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- OrderStore -------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	if ord.ID == "" {
		ord.ID = uuid.NewString()
	}
	if ord.CreatedAt.IsZero() {
		ord.CreatedAt = time.Now().UTC()
	}
	ord.UpdatedAt = ord.CreatedAt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return order.Order{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, subtotal, discount, shipping, total,
			coupon_code, refunded_amount, delivery_address, delivery_notes,
			scheduled_delivery_time, cancellation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, ord.ID, ord.UserID, string(ord.Status), ord.Subtotal, ord.Discount, ord.Shipping,
		ord.Total, nullString(ord.CouponCode), ord.RefundedAmount,
		nullString(ord.DeliveryAddress), nullString(ord.DeliveryNotes),
		ord.ScheduledDeliveryTime, nullString(ord.CancellationReason),
		ord.CreatedAt, ord.UpdatedAt)
	if err != nil {
		return order.Order{}, err
	}

	for i := range ord.Items {
		if ord.Items[i].ID == "" {
			ord.Items[i].ID = uuid.NewString()
		}
		ord.Items[i].OrderID = ord.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ord.Items[i].ID, ord.ID, ord.Items[i].ProductID, ord.Items[i].ProductName,
			ord.Items[i].UnitPrice, ord.Items[i].Quantity)
		if err != nil {
			return order.Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return order.Order{}, err
	}
	return ord, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, subtotal, discount, shipping, total,
			coupon_code, refunded_amount, delivery_address, delivery_notes,
			scheduled_delivery_time, cancellation_reason, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id)

	ord, err := scanOrder(row)
	if err != nil {
		return order.Order{}, err
	}
	items, err := s.orderItems(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	ord.Items = items
	return ord, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (order.Order, error) {
	var (
		ord          order.Order
		status       string
		couponCode   sql.NullString
		address      sql.NullString
		notes        sql.NullString
		scheduled    sql.NullTime
		cancelReason sql.NullString
	)
	err := row.Scan(&ord.ID, &ord.UserID, &status, &ord.Subtotal, &ord.Discount,
		&ord.Shipping, &ord.Total, &couponCode, &ord.RefundedAmount, &address,
		&notes, &scheduled, &cancelReason, &ord.CreatedAt, &ord.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, storage.ErrNotFound
	}
	if err != nil {
		return order.Order{}, err
	}
	ord.Status = order.Status(status)
	ord.CouponCode = couponCode.String
	ord.DeliveryAddress = address.String
	ord.DeliveryNotes = notes.String
	ord.CancellationReason = cancelReason.String
	if scheduled.Valid {
		t := scheduled.Time
		ord.ScheduledDeliveryTime = &t
	}
	return ord, nil
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]order.Order, int, error) {
	where, args := orderFilterClause(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol := "created_at"
	if filter.SortBy == "total" {
		sortCol = "total"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query := `
		SELECT id, user_id, status, subtotal, discount, shipping, total,
			coupon_code, refunded_amount, delivery_address, delivery_notes,
			scheduled_delivery_time, cancellation_reason, created_at, updated_at
		FROM orders` + where + fmt.Sprintf(" ORDER BY %s %s", sortCol, direction)

	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, (page-1)*filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]order.Order, 0)
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range orders {
		items, err := s.orderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, 0, err
		}
		orders[i].Items = items
	}
	return orders, total, nil
}

func (s *Store) OrderStats(ctx context.Context, filter storage.OrderFilter) (map[order.Status]storage.StatusStat, error) {
	where, args := orderFilterClause(filter)
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total), 0)
		FROM orders`+where+`
		GROUP BY status
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[order.Status]storage.StatusStat)
	for rows.Next() {
		var (
			status string
			st     storage.StatusStat
		)
		if err := rows.Scan(&status, &st.Count, &st.Revenue); err != nil {
			return nil, err
		}
		stats[order.Status(status)] = st
	}
	return stats, rows.Err()
}

func orderFilterClause(filter storage.OrderFilter) (string, []interface{}) {
	conds := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		conds = append(conds, "user_id = "+arg(filter.UserID))
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(string(*filter.Status)))
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "created_at <= "+arg(*filter.To))
	}
	if filter.Search != "" {
		p := arg("%" + strings.ToLower(filter.Search) + "%")
		conds = append(conds, "(LOWER(id) LIKE "+p+" OR LOWER(user_id) LIKE "+p+")")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) TransitionOrder(ctx context.Context, orderID string, expected, target order.Status, entry order.HistoryEntry) (order.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return order.Order{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, orderID, string(expected), string(target), now)
	if err != nil {
		return order.Order{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Distinguish a missing order from a stale expected status.
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return order.Order{}, err
		}
		if !exists {
			return order.Order{}, storage.ErrNotFound
		}
		return order.Order{}, storage.ErrStaleStatus
	}

	if err := insertHistoryTx(ctx, tx, orderID, entry, now); err != nil {
		return order.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return order.Order{}, err
	}
	return s.GetOrder(ctx, orderID)
}

func insertHistoryTx(ctx context.Context, tx *sql.Tx, orderID string, entry order.HistoryEntry, now time.Time) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, status, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, orderID, string(entry.Status), entry.ActorID, nullString(entry.Note), entry.CreatedAt)
	return err
}

func (s *Store) ListHistory(ctx context.Context, orderID string) ([]order.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, status, actor_id, note, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]order.HistoryEntry, 0)
	for rows.Next() {
		var (
			e      order.HistoryEntry
			status string
			note   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &status, &e.ActorID, &note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = order.Status(status)
		e.Note = note.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AppendNote(ctx context.Context, note order.Note) (order.Note, error) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_notes (id, order_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, note.ID, note.OrderID, note.AuthorID, note.Content, note.CreatedAt)
	if err != nil {
		return order.Note{}, err
	}
	return note, nil
}

func (s *Store) ListNotes(ctx context.Context, orderID string) ([]order.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, author_id, content, created_at
		FROM order_notes
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]order.Note, 0)
	for rows.Next() {
		var n order.Note
		if err := rows.Scan(&n.ID, &n.OrderID, &n.AuthorID, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *Store) ApplyRefund(ctx context.Context, ref order.Refund, markRefunded bool, entry *order.HistoryEntry) (order.Refund, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return order.Refund{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_refunds (id, order_id, amount, reason, processed_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ref.ID, ref.OrderID, ref.Amount, ref.Reason, ref.ProcessedBy, string(ref.Status), ref.CreatedAt)
	if err != nil {
		return order.Refund{}, err
	}

	var result sql.Result
	if markRefunded {
		result, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET refunded_amount = refunded_amount + $2, status = $3, updated_at = $4
			WHERE id = $1
		`, ref.OrderID, ref.Amount, string(order.StatusRefunded), now)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET refunded_amount = refunded_amount + $2, updated_at = $3
			WHERE id = $1
		`, ref.OrderID, ref.Amount, now)
	}
	if err != nil {
		return order.Refund{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return order.Refund{}, storage.ErrNotFound
	}

	if entry != nil {
		if err := insertHistoryTx(ctx, tx, ref.OrderID, *entry, now); err != nil {
			return order.Refund{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return order.Refund{}, err
	}
	return ref, nil
}

func (s *Store) ListRefunds(ctx context.Context, orderID string) ([]order.Refund, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, amount, reason, processed_by, status, created_at
		FROM order_refunds
		WHERE order_id = $1
		ORDER BY created_at DESC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]order.Refund, 0)
	for rows.Next() {
		var (
			r      order.Refund
			status string
		)
		if err := rows.Scan(&r.ID, &r.OrderID, &r.Amount, &r.Reason, &r.ProcessedBy, &status, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Status = order.RefundStatus(status)
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}

func (s *Store) SetOrderSchedule(ctx context.Context, orderID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET scheduled_delivery_time = $2, updated_at = $3
		WHERE id = $1
	`, orderID, at.UTC(), time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- CouponStore ------------------------------------------------------------

func (s *Store) CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (id, code, kind, discount, min_purchase, expires_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Code, string(c.Kind), c.Discount, c.MinPurchase, c.ExpiresAt, c.Active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.Coupon{}, storage.ErrDuplicate
		}
		return coupon.Coupon{}, err
	}
	return c, nil
}

func (s *Store) UpdateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	c.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE coupons
		SET kind = $2, discount = $3, min_purchase = $4, expires_at = $5, active = $6, updated_at = $7
		WHERE code = $1
	`, c.Code, string(c.Kind), c.Discount, c.MinPurchase, c.ExpiresAt, c.Active, c.UpdatedAt)
	if err != nil {
		return coupon.Coupon{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return coupon.Coupon{}, storage.ErrNotFound
	}
	return s.GetCouponByCode(ctx, c.Code)
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, kind, discount, min_purchase, expires_at, active, created_at, updated_at
		FROM coupons
		WHERE code = $1
	`, code)
	return scanCoupon(row)
}

func scanCoupon(row rowScanner) (coupon.Coupon, error) {
	var (
		c       coupon.Coupon
		kind    string
		expires sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Code, &kind, &c.Discount, &c.MinPurchase, &expires, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return coupon.Coupon{}, storage.ErrNotFound
	}
	if err != nil {
		return coupon.Coupon{}, err
	}
	c.Kind = coupon.Kind(kind)
	if expires.Valid {
		t := expires.Time
		c.ExpiresAt = &t
	}
	return c, nil
}

func (s *Store) ListCoupons(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, kind, discount, min_purchase, expires_at, active, created_at, updated_at
		FROM coupons
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coupons := make([]coupon.Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

// --- ProductStore -----------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, category, image_url, stock, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Name, p.Description, p.Price, p.Category, p.ImageURL, p.Stock, p.Available, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, category = $5, image_url = $6,
			stock = $7, available = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price, p.Category, p.ImageURL, p.Stock, p.Available, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return catalog.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, category, image_url, stock, available, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)

	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageURL, &p.Stock, &p.Available, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, storage.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, category string, onlyAvailable bool) ([]catalog.Product, error) {
	query := `
		SELECT id, name, description, price, category, image_url, stock, available, created_at, updated_at
		FROM products`
	conds := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if category != "" {
		args = append(args, category)
		conds = append(conds, fmt.Sprintf("LOWER(category) = LOWER($%d)", len(args)))
	}
	if onlyAvailable {
		conds = append(conds, "available = TRUE")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]catalog.Product, 0)
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageURL, &p.Stock, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = $3
		WHERE id = $1 AND stock + $2 >= 0
	`, id, delta, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrInsufficientStock
	}
	return nil
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, phone, role, password_hash, created_at, updated_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.Name, u.Phone, string(u.Role), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, storage.ErrDuplicate
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = LOWER($2), name = $3, phone = $4, role = $5, password_hash = $6, updated_at = $7
		WHERE id = $1
	`, u.ID, u.Email, u.Name, u.Phone, string(u.Role), u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, role, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, role, password_hash, created_at, updated_at
		FROM users
		WHERE email = LOWER($1)
	`, email))
}

func (s *Store) scanUser(row rowScanner) (user.User, error) {
	var (
		u    user.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	u.Role = user.Role(role)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, phone, role, password_hash, created_at, updated_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]user.User, 0)
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- DeliveryStore ----------------------------------------------------------

func (s *Store) CreateWindow(ctx context.Context, w delivery.Window) (delivery.Window, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_windows (id, date, start_time, end_time, max_orders, booked, blocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, w.ID, w.Date, w.StartTime, w.EndTime, w.MaxOrders, w.Booked, w.Blocked, w.CreatedAt)
	if err != nil {
		return delivery.Window{}, err
	}
	return w, nil
}

func (s *Store) UpdateWindow(ctx context.Context, w delivery.Window) (delivery.Window, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE delivery_windows
		SET date = $2, start_time = $3, end_time = $4, max_orders = $5, blocked = $6
		WHERE id = $1
	`, w.ID, w.Date, w.StartTime, w.EndTime, w.MaxOrders, w.Blocked)
	if err != nil {
		return delivery.Window{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return delivery.Window{}, storage.ErrNotFound
	}
	return s.GetWindow(ctx, w.ID)
}

func (s *Store) GetWindow(ctx context.Context, id string) (delivery.Window, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, date, start_time, end_time, max_orders, booked, blocked, created_at
		FROM delivery_windows
		WHERE id = $1
	`, id)

	var w delivery.Window
	err := row.Scan(&w.ID, &w.Date, &w.StartTime, &w.EndTime, &w.MaxOrders, &w.Booked, &w.Blocked, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return delivery.Window{}, storage.ErrNotFound
	}
	if err != nil {
		return delivery.Window{}, err
	}
	return w, nil
}

func (s *Store) ListWindows(ctx context.Context, date time.Time) ([]delivery.Window, error) {
	dayStart := time.Date(date.UTC().Year(), date.UTC().Month(), date.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, start_time, end_time, max_orders, booked, blocked, created_at
		FROM delivery_windows
		WHERE date >= $1 AND date < $2
		ORDER BY start_time ASC
	`, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	windows := make([]delivery.Window, 0)
	for rows.Next() {
		var w delivery.Window
		if err := rows.Scan(&w.ID, &w.Date, &w.StartTime, &w.EndTime, &w.MaxOrders, &w.Booked, &w.Blocked, &w.CreatedAt); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (s *Store) BookWindow(ctx context.Context, id string) (delivery.Window, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE delivery_windows
		SET booked = booked + 1
		WHERE id = $1 AND blocked = FALSE AND (max_orders <= 0 OR booked < max_orders)
	`, id)
	if err != nil {
		return delivery.Window{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_windows WHERE id = $1)`, id).Scan(&exists); err != nil {
			return delivery.Window{}, err
		}
		if !exists {
			return delivery.Window{}, storage.ErrNotFound
		}
		return delivery.Window{}, storage.ErrWindowUnavailable
	}
	return s.GetWindow(ctx, id)
}

// --- TicketStore ------------------------------------------------------------

func (s *Store) CreateTicket(ctx context.Context, t support.Ticket) (support.Ticket, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Status = support.TicketOpen

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO support_tickets (id, user_id, order_id, subject, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, nullString(t.OrderID), t.Subject, t.Body, string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return support.Ticket{}, err
	}
	return t, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (support.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, order_id, subject, body, status, created_at, updated_at
		FROM support_tickets
		WHERE id = $1
	`, id)

	t, err := scanTicket(row)
	if err != nil {
		return support.Ticket{}, err
	}
	replies, err := s.ticketReplies(ctx, id)
	if err != nil {
		return support.Ticket{}, err
	}
	t.Replies = replies
	return t, nil
}

func scanTicket(row rowScanner) (support.Ticket, error) {
	var (
		t       support.Ticket
		orderID sql.NullString
		status  string
	)
	err := row.Scan(&t.ID, &t.UserID, &orderID, &t.Subject, &t.Body, &status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return support.Ticket{}, storage.ErrNotFound
	}
	if err != nil {
		return support.Ticket{}, err
	}
	t.OrderID = orderID.String
	t.Status = support.TicketStatus(status)
	return t, nil
}

func (s *Store) ticketReplies(ctx context.Context, ticketID string) ([]support.Reply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, author_id, body, created_at
		FROM ticket_replies
		WHERE ticket_id = $1
		ORDER BY created_at ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	replies := make([]support.Reply, 0)
	for rows.Next() {
		var r support.Reply
		if err := rows.Scan(&r.ID, &r.TicketID, &r.AuthorID, &r.Body, &r.CreatedAt); err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, rows.Err()
}

func (s *Store) ListTickets(ctx context.Context, userID string) ([]support.Ticket, error) {
	query := `
		SELECT id, user_id, order_id, subject, body, status, created_at, updated_at
		FROM support_tickets`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]support.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *Store) AddReply(ctx context.Context, reply support.Reply) (support.Reply, error) {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_replies (id, ticket_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, reply.ID, reply.TicketID, reply.AuthorID, reply.Body, reply.CreatedAt)
	if err != nil {
		return support.Reply{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE support_tickets SET updated_at = $2 WHERE id = $1
	`, reply.TicketID, reply.CreatedAt)
	if err != nil {
		return support.Reply{}, err
	}
	return reply, nil
}

func (s *Store) SetTicketStatus(ctx context.Context, id string, status support.TicketStatus) (support.Ticket, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE support_tickets
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return support.Ticket{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return support.Ticket{}, storage.ErrNotFound
	}
	return s.GetTicket(ctx, id)
}

// --- helpers ----------------------------------------------------------------

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	// pq unique_violation is SQLSTATE 23505.
	return err != nil && strings.Contains(err.Error(), "23505")
}
