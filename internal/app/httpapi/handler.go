// Package httpapi exposes the storefront REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	app "github.com/delivergo/storefront/internal/app"
	"github.com/delivergo/storefront/internal/app/domain/catalog"
	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/app/domain/delivery"
	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/support"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/services/checkout"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Options tunes the HTTP layer.
type Options struct {
	// AuditLogPath, when set, appends mutating requests as JSONL.
	AuditLogPath string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
	log   *logger.Logger
}

// NewHandler returns the storefront REST API router.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(opts.AuditLogPath)
	if err != nil {
		return nil, err
	}
	h := &handler{
		app: application,
		log: log,
	}
	if sink != nil {
		h.audit = newAuditLog(0, sink)
	} else {
		h.audit = newAuditLog(0, nil)
	}

	limiter := newRateLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(limiter.middleware)

	r.Get("/health", h.health)

	// Anonymous surface.
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	// Authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Use(h.auditMiddleware)

		r.Get("/me", h.me)
		r.Put("/me", h.updateProfile)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Put("/items/{productID}", h.updateCartItem)
			r.Delete("/items/{productID}", h.removeCartItem)
			r.Post("/coupon", h.applyCoupon)
			r.Delete("/coupon", h.removeCoupon)
			r.Get("/shipping-methods", h.shippingMethods)
			r.Put("/shipping", h.setShipping)
		})

		r.Post("/checkout", h.checkout)
		r.Post("/coupons/validate", h.validateCoupon)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.With(requireStaff).Get("/stats", h.orderStats)
			r.Get("/{id}", h.getOrder)
			r.Post("/{id}/status", h.transitionOrder)
			r.Get("/{id}/history", h.orderHistory)
			r.Get("/{id}/track", h.trackOrder)
			r.Post("/{id}/schedule", h.scheduleOrder)
			r.With(requireStaff).Post("/{id}/notes", h.addOrderNote)
			r.With(requireStaff).Get("/{id}/notes", h.listOrderNotes)
			r.With(requireStaff).Post("/{id}/refunds", h.refundOrder)
			r.With(requireStaff).Get("/{id}/refunds", h.listRefunds)
		})

		r.Route("/delivery-windows", func(r chi.Router) {
			r.Get("/", h.listWindows)
			r.With(requireStaff).Post("/", h.createWindow)
			r.With(requireStaff).Put("/{id}", h.updateWindow)
			r.With(requireStaff).Post("/{id}/block", h.blockWindow)
			r.With(requireStaff).Post("/{id}/unblock", h.unblockWindow)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", h.openTicket)
			r.Get("/", h.listTickets)
			r.Get("/{id}", h.getTicket)
			r.Post("/{id}/replies", h.replyTicket)
			r.With(requireStaff).Post("/{id}/status", h.setTicketStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireStaff)
			r.Post("/products", h.createProduct)
			r.Put("/products/{id}", h.updateProduct)
			r.Post("/products/{id}/availability", h.setAvailability)
			r.Get("/coupons", h.listCoupons)
			r.Post("/coupons", h.createCoupon)
			r.Put("/coupons/{code}", h.updateCoupon)
			r.Delete("/coupons/{code}", h.deactivateCoupon)
			r.Get("/reports/sales", h.salesReport)
			r.Get("/reports/daily", h.dailyReports)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/users", h.listUsers)
			r.Get("/users/{id}", h.getUser)
			r.Put("/users/{id}/role", h.setUserRole)
			r.Get("/audit", h.auditEntries)
		})
	})

	return r, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- auth -------------------------------------------------------------------

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := h.app.Accounts.Register(r.Context(), payload.Email, payload.Name, payload.Phone, payload.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	u, token, err := h.app.Accounts.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u, "token": token})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	u, err := h.app.Accounts.Get(r.Context(), actor, actor.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := h.app.Accounts.UpdateProfile(r.Context(), actorFrom(r.Context()), payload.Name, payload.Phone)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- catalog ----------------------------------------------------------------

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	// The anonymous listing never includes delisted products; staff use the
	// authenticated listing semantics via their role resolved from the token
	// when one is presented.
	actor := user.Actor{Role: user.RoleCustomer}
	if header := r.Header.Get("Authorization"); header != "" {
		if resolved, err := h.resolveBearer(header); err == nil {
			actor = resolved
		}
	}
	products, err := h.app.Catalog.List(r.Context(), actor, r.URL.Query().Get("category"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) resolveBearer(header string) (user.Actor, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return user.Actor{}, apperr.Unauthorized("invalid Authorization header format")
	}
	return h.app.Accounts.VerifyToken(header[len(prefix):])
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload catalog.Product
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.Catalog.Create(r.Context(), actorFrom(r.Context()), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var payload catalog.Product
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload.ID = chi.URLParam(r, "id")
	p, err := h.app.Catalog.Update(r.Context(), actorFrom(r.Context()), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) setAvailability(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Available bool `json:"available"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.Catalog.SetAvailability(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), payload.Available)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- coupons ----------------------------------------------------------------

func (h *handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.app.Coupons.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coupons)
}

func (h *handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var payload coupon.Coupon
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := h.app.Coupons.Create(r.Context(), actorFrom(r.Context()), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var payload coupon.Coupon
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload.Code = chi.URLParam(r, "code")
	c, err := h.app.Coupons.Update(r.Context(), actorFrom(r.Context()), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Coupons.Deactivate(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code     string  `json:"code"`
		Subtotal float64 `json:"subtotal"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := h.app.Coupons.Validate(r.Context(), payload.Code, payload.Subtotal)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- cart -------------------------------------------------------------------

func (h *handler) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.Carts.Get(r.Context(), actorFrom(r.Context()).UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Carts.Clear(r.Context(), actorFrom(r.Context()).UserID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}
	v, err := h.app.Carts.AddItem(r.Context(), actorFrom(r.Context()).UserID, payload.ProductID, payload.Quantity)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := h.app.Carts.UpdateQuantity(r.Context(), actorFrom(r.Context()).UserID, chi.URLParam(r, "productID"), payload.Quantity)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.Carts.RemoveItem(r.Context(), actorFrom(r.Context()).UserID, chi.URLParam(r, "productID"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := h.app.Carts.ApplyCoupon(r.Context(), actorFrom(r.Context()).UserID, payload.Code)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "coupon applied",
		"cart":    v,
	})
}

func (h *handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.Carts.RemoveCoupon(r.Context(), actorFrom(r.Context()).UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) shippingMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Carts.ShippingMethods())
}

func (h *handler) setShipping(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MethodID string `json:"method_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := h.app.Carts.SetShipping(r.Context(), actorFrom(r.Context()).UserID, payload.MethodID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- checkout ---------------------------------------------------------------

func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	var payload checkout.Request
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ord, err := h.app.Checkout.Checkout(r.Context(), actorFrom(r.Context()).UserID, payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ord)
}

// --- orders -----------------------------------------------------------------

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := orderFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	orders, total, err := h.app.Orders.List(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  total,
	})
}

func orderFilterFromQuery(r *http.Request) (storage.OrderFilter, error) {
	q := r.URL.Query()
	filter := storage.OrderFilter{
		UserID: q.Get("user_id"),
		Search: q.Get("search"),
		SortBy: q.Get("sort_by"),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			return storage.OrderFilter{}, err
		}
		filter.Status = &status
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return storage.OrderFilter{}, err
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return storage.OrderFilter{}, err
		}
		filter.To = &t
	}
	if raw := q.Get("page"); raw != "" {
		filter.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	filter.SortDesc = q.Get("sort") == "desc"
	return filter, nil
}

func (h *handler) orderStats(w http.ResponseWriter, r *http.Request) {
	filter, err := orderFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := h.app.Orders.Stats(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ord, err := h.app.Orders.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (h *handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ord, err := h.app.Orders.Transition(r.Context(), actorFrom(r.Context()),
		chi.URLParam(r, "id"), order.Status(payload.Status), payload.Note)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (h *handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.app.Orders.History(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *handler) addOrderNote(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	note, err := h.app.Orders.AddNote(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), payload.Content)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (h *handler) listOrderNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.app.Orders.Notes(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount float64 `json:"amount"`
		Reason string  `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ref, err := h.app.Orders.Refund(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), payload.Amount, payload.Reason)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (h *handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.app.Orders.Refunds(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refunds)
}

func (h *handler) scheduleOrder(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		WindowID string `json:"window_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ord, err := h.app.Deliveries.ScheduleOrder(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), payload.WindowID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

// --- delivery windows ---------------------------------------------------------

func (h *handler) listWindows(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		date = parsed
	}
	windows, err := h.app.Deliveries.ListWindows(r.Context(), date)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

func (h *handler) createWindow(w http.ResponseWriter, r *http.Request) {
	var payload delivery.Window
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	win, err := h.app.Deliveries.CreateWindow(r.Context(), actorFrom(r.Context()), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, win)
}

func (h *handler) updateWindow(w http.ResponseWriter, r *http.Request) {
	var payload delivery.Window
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload.ID = chi.URLParam(r, "id")
	win, err := h.app.Deliveries.UpdateWindow(r.Context(), actorFrom(r.Context()), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (h *handler) blockWindow(w http.ResponseWriter, r *http.Request) {
	h.setWindowBlocked(w, r, true)
}

func (h *handler) unblockWindow(w http.ResponseWriter, r *http.Request) {
	h.setWindowBlocked(w, r, false)
}

func (h *handler) setWindowBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	win, err := h.app.Deliveries.SetBlocked(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), blocked)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

// --- tickets ----------------------------------------------------------------

func (h *handler) openTicket(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OrderID string `json:"order_id"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := h.app.Support.Open(r.Context(), actorFrom(r.Context()), payload.OrderID, payload.Subject, payload.Body)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handler) listTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.app.Support.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *handler) getTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.app.Support.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) replyTicket(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reply, err := h.app.Support.Reply(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), payload.Body)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (h *handler) setTicketStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := h.app.Support.SetStatus(r.Context(), actorFrom(r.Context()),
		chi.URLParam(r, "id"), support.TicketStatus(payload.Status))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- reports ----------------------------------------------------------------

func (h *handler) salesReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		to = t
	}
	sum, err := h.app.Reports.Sales(r.Context(), actorFrom(r.Context()), from, to)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) dailyReports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.app.Reports.History(r.Context(), actorFrom(r.Context()), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// --- users ------------------------------------------------------------------

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.app.Accounts.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Accounts.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) setUserRole(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := h.app.Accounts.SetRole(r.Context(), actorFrom(r.Context()),
		chi.URLParam(r, "id"), user.Role(payload.Role))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// --- helpers ----------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeAppError maps the error taxonomy onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindValidation, apperr.KindCouponInapplicable:
		status = http.StatusUnprocessableEntity
	case apperr.KindInvalidTransition:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body := map[string]string{"error": appErr.Message}
		if appErr.Reason != "" {
			body["reason"] = string(appErr.Reason)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
		return
	}
	writeError(w, status, errors.New("internal error"))
}
