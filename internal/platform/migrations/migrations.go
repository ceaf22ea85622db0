// Package migrations applies the storefront schema in order. It is used by
// the server on startup when MIGRATE_ON_START is set; the standalone migrate
// command drives versioned SQL files instead.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'CUSTOMER',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price DOUBLE PRECISION NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		stock INTEGER NOT NULL DEFAULT 0,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		discount DOUBLE PRECISION NOT NULL,
		min_purchase DOUBLE PRECISION NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		subtotal DOUBLE PRECISION NOT NULL,
		discount DOUBLE PRECISION NOT NULL DEFAULT 0,
		shipping DOUBLE PRECISION NOT NULL DEFAULT 0,
		total DOUBLE PRECISION NOT NULL,
		coupon_code TEXT,
		refunded_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		delivery_address TEXT,
		delivery_notes TEXT,
		scheduled_delivery_time TIMESTAMPTZ,
		cancellation_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders (user_id, status)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		unit_price DOUBLE PRECISION NOT NULL,
		quantity INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_status_history (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		status TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_notes (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		author_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_refunds (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		amount DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		processed_by TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS delivery_windows (
		id TEXT PRIMARY KEY,
		date TIMESTAMPTZ NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		max_orders INTEGER NOT NULL DEFAULT 0,
		booked INTEGER NOT NULL DEFAULT 0,
		blocked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS support_tickets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_id TEXT,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_replies (
		id TEXT PRIMARY KEY,
		ticket_id TEXT NOT NULL REFERENCES support_tickets(id),
		author_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS report_snapshots (
		id TEXT PRIMARY KEY,
		day DATE NOT NULL UNIQUE,
		orders INTEGER NOT NULL,
		delivered INTEGER NOT NULL,
		cancelled INTEGER NOT NULL,
		revenue DOUBLE PRECISION NOT NULL,
		refunded DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply executes the schema statements in order. Statements are idempotent
// so Apply is safe to run on every startup.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
