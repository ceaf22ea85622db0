// Package delivery defines scheduled delivery windows.
package delivery

import "time"

// Window is a bookable delivery slot on a given date. MaxOrders caps how
// many orders may be scheduled into it; Blocked windows accept none.
type Window struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	MaxOrders int       `json:"max_orders"`
	Booked    int       `json:"booked"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}

// Overlaps reports whether two windows on the same date intersect in time.
func (w Window) Overlaps(other Window) bool {
	if !sameDay(w.Date, other.Date) {
		return false
	}
	return w.StartTime.Before(other.EndTime) && other.StartTime.Before(w.EndTime)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
