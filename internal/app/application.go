// Package app wires the storefront services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/delivergo/storefront/internal/app/domain/cart"
	accountsvc "github.com/delivergo/storefront/internal/app/services/accounts"
	cartsvc "github.com/delivergo/storefront/internal/app/services/carts"
	catalogsvc "github.com/delivergo/storefront/internal/app/services/catalog"
	checkoutsvc "github.com/delivergo/storefront/internal/app/services/checkout"
	couponsvc "github.com/delivergo/storefront/internal/app/services/coupons"
	deliverysvc "github.com/delivergo/storefront/internal/app/services/deliveries"
	"github.com/delivergo/storefront/internal/app/services/notify"
	ordersvc "github.com/delivergo/storefront/internal/app/services/orders"
	reportsvc "github.com/delivergo/storefront/internal/app/services/reports"
	supportsvc "github.com/delivergo/storefront/internal/app/services/support"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/app/storage/memory"
	"github.com/delivergo/storefront/internal/app/system"
	"github.com/delivergo/storefront/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Orders   storage.OrderStore
	Carts    storage.CartStore
	Coupons  storage.CouponStore
	Products storage.ProductStore
	Users    storage.UserStore
	Delivery storage.DeliveryStore
	Tickets  storage.TicketStore
}

// Options tunes application construction.
type Options struct {
	// JWTSecret signs login tokens.
	JWTSecret []byte
	TokenTTL  time.Duration

	// ShippingMethods the store offers at checkout.
	ShippingMethods []cart.ShippingMethod

	// NotifyWebhookURL, when set, receives order status events.
	NotifyWebhookURL string

	// ReportsDB, when set, persists daily report snapshots.
	ReportsDB *sqlx.DB

	// SnapshotSchedule overrides the daily report cron expression.
	SnapshotSchedule string
}

// Application ties the storefront services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts   *accountsvc.Service
	Catalog    *catalogsvc.Service
	Coupons    *couponsvc.Service
	Carts      *cartsvc.Service
	Checkout   *checkoutsvc.Service
	Orders     *ordersvc.Service
	Deliveries *deliverysvc.Service
	Support    *supportsvc.Service
	Reports    *reportsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Orders == nil {
		stores.Orders = mem
	}
	if stores.Carts == nil {
		stores.Carts = mem
	}
	if stores.Coupons == nil {
		stores.Coupons = mem
	}
	if stores.Products == nil {
		stores.Products = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Delivery == nil {
		stores.Delivery = mem
	}
	if stores.Tickets == nil {
		stores.Tickets = mem
	}

	var notifier notify.Notifier = notify.Noop{}
	if opts.NotifyWebhookURL != "" {
		notifier = notify.NewWebhook(opts.NotifyWebhookURL, log)
	}

	accounts := accountsvc.New(stores.Users, opts.JWTSecret, opts.TokenTTL, log)
	catalog := catalogsvc.New(stores.Products, log)
	coupons := couponsvc.New(stores.Coupons, log)
	carts := cartsvc.New(stores.Carts, stores.Products, stores.Coupons, opts.ShippingMethods, log)
	orders := ordersvc.New(stores.Orders, notifier, log)
	checkout := checkoutsvc.New(stores.Carts, stores.Products, orders, log)
	deliveries := deliverysvc.New(stores.Delivery, stores.Orders, log)
	support := supportsvc.New(stores.Tickets, stores.Orders, log)
	reports := reportsvc.New(stores.Orders, opts.ReportsDB, log)

	manager := system.NewManager()
	for _, name := range []string{"accounts", "catalog", "orders"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}
	snapshotter := reportsvc.NewSnapshotter(reports, opts.SnapshotSchedule, log)
	if err := manager.Register(snapshotter); err != nil {
		return nil, fmt.Errorf("register reports snapshotter: %w", err)
	}

	return &Application{
		manager:    manager,
		log:        log,
		Accounts:   accounts,
		Catalog:    catalog,
		Coupons:    coupons,
		Carts:      carts,
		Checkout:   checkout,
		Orders:     orders,
		Deliveries: deliveries,
		Support:    support,
		Reports:    reports,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
