// Package redis implements the cart store on Redis. Carts are ephemeral and
// expire on their own when abandoned, so Redis with a TTL fits better than
// the relational store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/delivergo/storefront/internal/app/domain/cart"
	"github.com/delivergo/storefront/internal/app/storage"
)

const defaultCartTTL = 7 * 24 * time.Hour

// CartStore persists carts as JSON values keyed by owner.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ storage.CartStore = (*CartStore)(nil)

// NewCartStore creates a CartStore over the given client. A non-positive ttl
// falls back to the default of seven days.
func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}
}

func cartKey(ownerKey string) string {
	return "cart:" + ownerKey
}

// LoadCart returns the owner's cart. A missing key yields an empty cart, not
// an error; every owner implicitly has a cart.
func (s *CartStore) LoadCart(ctx context.Context, ownerKey string) (cart.Cart, error) {
	raw, err := s.client.Get(ctx, cartKey(ownerKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.Cart{OwnerKey: ownerKey}, nil
	}
	if err != nil {
		return cart.Cart{}, fmt.Errorf("load cart: %w", err)
	}

	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return cart.Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	c.OwnerKey = ownerKey
	return c, nil
}

// SaveCart stores the cart and refreshes its expiry.
func (s *CartStore) SaveCart(ctx context.Context, c cart.Cart) error {
	c.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.client.Set(ctx, cartKey(c.OwnerKey), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// DeleteCart removes the owner's cart. Deleting an absent cart is not an
// error.
func (s *CartStore) DeleteCart(ctx context.Context, ownerKey string) error {
	if err := s.client.Del(ctx, cartKey(ownerKey)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
