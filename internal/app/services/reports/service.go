// Package reports computes sales summaries and records daily snapshots.
package reports

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/delivergo/storefront/internal/app/domain/order"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Summary aggregates orders over a period.
type Summary struct {
	From        time.Time                           `json:"from"`
	To          time.Time                           `json:"to"`
	Orders      int                                 `json:"orders"`
	Revenue     float64                             `json:"revenue"`
	Refunded    float64                             `json:"refunded"`
	ByStatus    map[order.Status]storage.StatusStat `json:"by_status,omitempty"`
	ByDay       []DayStat                           `json:"by_day,omitempty"`
	TopProducts []ProductStat                       `json:"top_products,omitempty"`
}

// DayStat aggregates one calendar day (UTC) within the period.
type DayStat struct {
	Day     string  `json:"day"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// ProductStat ranks a product by quantity sold.
type ProductStat struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Revenue     float64 `json:"revenue"`
}

// Service computes sales reports. When a SQL handle is available, snapshots
// persist to report_snapshots; without one (memory mode) they are
// log-only.
type Service struct {
	orders storage.OrderStore
	db     *sqlx.DB
	log    *logger.Logger
}

// New constructs a reports service. db may be nil.
func New(orders storage.OrderStore, db *sqlx.DB, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reports")
	}
	return &Service{orders: orders, db: db, log: log}
}

// Sales summarizes orders created in [from, to]. Staff only.
func (s *Service) Sales(ctx context.Context, actor user.Actor, from, to time.Time) (Summary, error) {
	if !actor.Role.Staff() {
		return Summary{}, apperr.Unauthorized("reports require a staff role")
	}
	if !from.Before(to) {
		return Summary{}, apperr.Validation("report period start must precede its end")
	}
	return s.summarize(ctx, from, to)
}

func (s *Service) summarize(ctx context.Context, from, to time.Time) (Summary, error) {
	stats, err := s.orders.OrderStats(ctx, storage.OrderFilter{From: &from, To: &to})
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{From: from, To: to, ByStatus: stats}
	for status, st := range stats {
		sum.Orders += st.Count
		// Cancelled orders never earned their total.
		if status != order.StatusCancelled {
			sum.Revenue += st.Revenue
		}
		if status == order.StatusRefunded {
			sum.Refunded += st.Revenue
		}
	}

	all, _, err := s.orders.ListOrders(ctx, storage.OrderFilter{From: &from, To: &to})
	if err != nil {
		return Summary{}, err
	}
	sum.ByDay = dayBreakdown(all)
	sum.TopProducts = topProducts(all, 10)
	return sum, nil
}

func dayBreakdown(orders []order.Order) []DayStat {
	byDay := make(map[string]DayStat)
	for _, ord := range orders {
		day := ord.CreatedAt.UTC().Format("2006-01-02")
		st := byDay[day]
		st.Day = day
		st.Orders++
		if ord.Status != order.StatusCancelled {
			st.Revenue += ord.Total
		}
		byDay[day] = st
	}
	out := make([]DayStat, 0, len(byDay))
	for _, st := range byDay {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func topProducts(orders []order.Order, limit int) []ProductStat {
	byProduct := make(map[string]ProductStat)
	for _, ord := range orders {
		if ord.Status == order.StatusCancelled {
			continue
		}
		for _, it := range ord.Items {
			st := byProduct[it.ProductID]
			st.ProductID = it.ProductID
			st.ProductName = it.ProductName
			st.Quantity += it.Quantity
			st.Revenue += it.UnitPrice * float64(it.Quantity)
			byProduct[it.ProductID] = st
		}
	}
	out := make([]ProductStat, 0, len(byProduct))
	for _, st := range byProduct {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// snapshotRow mirrors the report_snapshots table.
type snapshotRow struct {
	ID        string    `db:"id"`
	Day       time.Time `db:"day"`
	Orders    int       `db:"orders"`
	Delivered int       `db:"delivered"`
	Cancelled int       `db:"cancelled"`
	Revenue   float64   `db:"revenue"`
	Refunded  float64   `db:"refunded"`
	CreatedAt time.Time `db:"created_at"`
}

// Snapshot aggregates the given day and, when a database is attached,
// upserts the result into report_snapshots.
func (s *Service) Snapshot(ctx context.Context, day time.Time) error {
	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	sum, err := s.summarize(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}

	s.log.WithFields(map[string]interface{}{
		"day":     dayStart.Format("2006-01-02"),
		"orders":  sum.Orders,
		"revenue": sum.Revenue,
	}).Info("daily sales snapshot")

	if s.db == nil {
		return nil
	}
	row := snapshotRow{
		ID:        uuid.NewString(),
		Day:       dayStart,
		Orders:    sum.Orders,
		Delivered: sum.ByStatus[order.StatusDelivered].Count,
		Cancelled: sum.ByStatus[order.StatusCancelled].Count,
		Revenue:   sum.Revenue,
		Refunded:  sum.Refunded,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO report_snapshots (id, day, orders, delivered, cancelled, revenue, refunded, created_at)
		VALUES (:id, :day, :orders, :delivered, :cancelled, :revenue, :refunded, :created_at)
		ON CONFLICT (day) DO UPDATE SET
			orders = EXCLUDED.orders,
			delivered = EXCLUDED.delivered,
			cancelled = EXCLUDED.cancelled,
			revenue = EXCLUDED.revenue,
			refunded = EXCLUDED.refunded,
			created_at = EXCLUDED.created_at
	`, row)
	return err
}

// History returns persisted snapshots, newest first. Staff only; empty when
// running without a database.
func (s *Service) History(ctx context.Context, actor user.Actor, limit int) ([]Summary, error) {
	if !actor.Role.Staff() {
		return nil, apperr.Unauthorized("reports require a staff role")
	}
	if s.db == nil {
		return []Summary{}, nil
	}
	if limit <= 0 || limit > 90 {
		limit = 30
	}

	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, day, orders, delivered, cancelled, revenue, refunded, created_at
		FROM report_snapshots
		ORDER BY day DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summary{
			From:     r.Day,
			To:       r.Day.Add(24 * time.Hour),
			Orders:   r.Orders,
			Revenue:  r.Revenue,
			Refunded: r.Refunded,
		})
	}
	return out, nil
}
