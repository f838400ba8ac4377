// Package query computes rider-facing results from the current stored
// state: upcoming departures and subscription-matched alerts.
package query

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/mtatracker-data/internal/models"
	"github.com/mtatracker-data/internal/storage"
)

// routeDepartureLimit caps how many departures a route query returns.
const routeDepartureLimit = 3

// DepartureResolver answers departure queries for a platform. The caller is
// responsible for attaching the directional suffix (N/S) to the station's
// base stop id.
type DepartureResolver struct {
	store storage.DepartureStore
	now   func() time.Time
}

func NewDepartureResolver(store storage.DepartureStore) *DepartureResolver {
	return &DepartureResolver{store: store, now: time.Now}
}

// StationDepartures returns the earliest future departure per distinct
// route at the platform, ordered by route id. An empty result is a valid
// outcome, not an error.
func (r *DepartureResolver) StationDepartures(ctx context.Context, stopID string) ([]models.Departure, error) {
	now := r.now()
	rows, err := r.store.UpcomingDepartures(ctx, stopID, "", now)
	if err != nil {
		return nil, err
	}

	// Rows arrive ordered by departure time, so the first row seen for a
	// route is its earliest departure.
	seen := make(map[string]struct{})
	var departures []models.Departure
	for _, row := range rows {
		if _, ok := seen[row.RouteID]; ok {
			continue
		}
		seen[row.RouteID] = struct{}{}
		departures = append(departures, newDeparture(row, now))
	}

	sort.Slice(departures, func(i, j int) bool {
		return departures[i].RouteID < departures[j].RouteID
	})
	return departures, nil
}

// RouteDepartures returns up to three earliest future departures of one
// route at the platform, ordered by departure time.
func (r *DepartureResolver) RouteDepartures(ctx context.Context, stopID, routeID string) ([]models.Departure, error) {
	now := r.now()
	rows, err := r.store.UpcomingDepartures(ctx, stopID, routeID, now)
	if err != nil {
		return nil, err
	}

	if len(rows) > routeDepartureLimit {
		rows = rows[:routeDepartureLimit]
	}

	departures := make([]models.Departure, 0, len(rows))
	for _, row := range rows {
		departures = append(departures, newDeparture(row, now))
	}
	return departures, nil
}

func newDeparture(row storage.DepartureRow, now time.Time) models.Departure {
	return models.Departure{
		RouteID:       row.RouteID,
		DepartureTime: row.DepartureTime,
		ETAMinutes:    etaMinutes(row.DepartureTime, now),
	}
}

// etaMinutes rounds the interval to whole minutes, matching the reference
// ROUND(EXTRACT(EPOCH ...) / 60).
func etaMinutes(departure, now time.Time) int {
	return int(math.Round(departure.Sub(now).Minutes()))
}
