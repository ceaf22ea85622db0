package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/delivergo/storefront/internal/app/domain/order"
)

var trackUpgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// trackEvent is pushed to tracking subscribers whenever the order status
// changes, and once immediately on connect.
type trackEvent struct {
	OrderID   string       `json:"order_id"`
	Status    order.Status `json:"status"`
	Terminal  bool         `json:"terminal"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// trackOrder upgrades the request to a websocket and streams status changes
// for one order until the order reaches a terminal state or the client goes
// away. Customers can only track their own orders; authorization is resolved
// before the upgrade so failures surface as plain HTTP errors.
func (h *handler) trackOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	ord, err := h.app.Orders.Get(r.Context(), actor, orderID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	conn, err := trackUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own error response.
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(o order.Order) error {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(trackEvent{
			OrderID:   o.ID,
			Status:    o.Status,
			Terminal:  o.Status.Terminal(),
			UpdatedAt: o.UpdatedAt,
		})
	}

	if err := send(ord); err != nil {
		return
	}
	last := ord.Status

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		current, err := h.app.Orders.Get(r.Context(), actor, orderID)
		if err != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "order unavailable"))
			return
		}
		if current.Status == last {
			continue
		}
		if err := send(current); err != nil {
			return
		}
		last = current.Status
		if current.Status.Terminal() {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "order reached a terminal state"))
			return
		}
	}
}
