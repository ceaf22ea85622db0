// Package checkout converts a cart into a placed order.
package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/delivergo/storefront/internal/app/domain/cart"
	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/metrics"
	"github.com/delivergo/storefront/internal/app/services/orders"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Service turns carts into orders: it revalidates availability, reserves
// stock, recomputes every monetary figure server-side and clears the cart on
// success.
type Service struct {
	carts    storage.CartStore
	products storage.ProductStore
	orders   *orders.Service
	log      *logger.Logger
}

// New constructs a checkout service.
func New(carts storage.CartStore, products storage.ProductStore, orderSvc *orders.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("checkout")
	}
	return &Service{
		carts:    carts,
		products: products,
		orders:   orderSvc,
		log:      log,
	}
}

// Request carries the delivery details supplied at checkout.
type Request struct {
	DeliveryAddress string `json:"delivery_address"`
	DeliveryNotes   string `json:"delivery_notes,omitempty"`
}

// Checkout places an order from the user's cart. The cart's prices are
// already snapshots; totals are recomputed from them here, never taken from
// the client. Stock is reserved per line before the order is created, and
// released again if placement fails.
func (s *Service) Checkout(ctx context.Context, userID string, req Request) (order.Order, error) {
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		metrics.RecordCheckout("invalid", 0)
		return order.Order{}, apperr.Validation("delivery address is required")
	}

	c, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return order.Order{}, err
	}
	if len(c.Items) == 0 {
		metrics.RecordCheckout("empty_cart", 0)
		return order.Order{}, apperr.Validation("cart is empty")
	}

	// Revalidate each line against the live catalog before touching stock.
	for _, item := range c.Items {
		p, err := s.products.GetProduct(ctx, item.ProductID)
		if errors.Is(err, storage.ErrNotFound) {
			metrics.RecordCheckout("unavailable", 0)
			return order.Order{}, apperr.Validationf("product %s is no longer sold", item.ProductName)
		}
		if err != nil {
			return order.Order{}, err
		}
		if !p.Available {
			metrics.RecordCheckout("unavailable", 0)
			return order.Order{}, apperr.Validationf("product %s is no longer available", p.Name)
		}
	}

	quote, err := cart.PriceCart(&c)
	if err != nil {
		metrics.RecordCheckout("invalid", 0)
		return order.Order{}, err
	}

	reserved := make([]cart.LineItem, 0, len(c.Items))
	release := func() {
		for _, item := range reserved {
			if err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
				s.log.WithError(err).WithField("product_id", item.ProductID).Error("release reserved stock")
			}
		}
	}
	for _, item := range c.Items {
		if err := s.products.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
			release()
			if errors.Is(err, storage.ErrInsufficientStock) {
				metrics.RecordCheckout("out_of_stock", 0)
				return order.Order{}, apperr.Validationf("not enough stock for %s", item.ProductName)
			}
			return order.Order{}, err
		}
		reserved = append(reserved, item)
	}

	ord := order.Order{
		UserID:          userID,
		Subtotal:        quote.Subtotal,
		Discount:        quote.Discount,
		Shipping:        quote.Shipping,
		Total:           quote.Total,
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		DeliveryNotes:   strings.TrimSpace(req.DeliveryNotes),
	}
	if c.Coupon != nil && quote.CouponApplied {
		ord.CouponCode = c.Coupon.Code
	}
	for _, item := range c.Items {
		ord.Items = append(ord.Items, order.Item{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}

	placed, err := s.orders.Create(ctx, ord)
	if err != nil {
		release()
		metrics.RecordCheckout("failed", 0)
		return order.Order{}, err
	}

	if err := s.carts.DeleteCart(ctx, userID); err != nil {
		// The order stands; an uncleaned cart is an annoyance, not a failure.
		s.log.WithError(err).WithField("user_id", userID).Warn("clear cart after checkout")
	}

	metrics.RecordCheckout("success", placed.Total)
	s.log.WithField("order_id", placed.ID).
		WithField("user_id", userID).
		WithField("total", placed.Total).
		Info("checkout complete")
	return placed, nil
}
