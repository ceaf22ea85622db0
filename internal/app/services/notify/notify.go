// Package notify delivers order status notifications. Delivery is
// best-effort; a failed notification never fails the transition that
// triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/pkg/logger"
)

// Notifier receives order lifecycle events.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, ord order.Order, previous order.Status)
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) OrderStatusChanged(context.Context, order.Order, order.Status) {}

// Webhook posts status change events to a configured URL as JSON.
type Webhook struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

// NewWebhook creates a webhook notifier. The client timeout bounds each
// delivery attempt.
func NewWebhook(url string, log *logger.Logger) *Webhook {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type statusChangedEvent struct {
	Event          string       `json:"event"`
	OrderID        string       `json:"order_id"`
	UserID         string       `json:"user_id"`
	PreviousStatus order.Status `json:"previous_status"`
	Status         order.Status `json:"status"`
	Total          float64      `json:"total"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

func (w *Webhook) OrderStatusChanged(ctx context.Context, ord order.Order, previous order.Status) {
	event := statusChangedEvent{
		Event:          "order.status_changed",
		OrderID:        ord.ID,
		UserID:         ord.UserID,
		PreviousStatus: previous,
		Status:         ord.Status,
		Total:          ord.Total,
		OccurredAt:     time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		w.log.WithError(err).Warn("encode notification")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.log.WithError(err).Warn("build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.WithError(err).WithField("order_id", ord.ID).Warn("deliver notification")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.log.WithError(fmt.Errorf("status %d", resp.StatusCode)).
			WithField("order_id", ord.ID).Warn("notification rejected")
	}
}
