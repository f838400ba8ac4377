// Package storage defines the relational storage engine boundary. The
// reconcilers and resolvers depend on these interfaces only; the SQL lives
// in the postgres subpackage.
package storage

import (
	"context"
	"time"

	"github.com/mtatracker-data/internal/models"
)

// DepartureRow is one raw departure candidate at a platform, before ETA
// computation and per-route deduplication.
type DepartureRow struct {
	RouteID       string
	DepartureTime time.Time
}

// RealtimeStore replaces the live trip/stop-time state. The replace is one
// transaction: readers never observe the deleted-but-not-yet-inserted gap.
type RealtimeStore interface {
	ReplaceRealtime(ctx context.Context, trips []models.TripUpdate, stopTimes []models.StopTimeUpdate) error
}

// AlertStore upserts one alert and replaces its periods and entities, all in
// one transaction scoped to that alert.
type AlertStore interface {
	UpsertAlert(ctx context.Context, alert models.Alert) error
}

// DepartureStore reads live departures for one platform, strictly after the
// given instant, ordered by departure time ascending. An empty routeID
// matches every route.
type DepartureStore interface {
	UpcomingDepartures(ctx context.Context, stopID, routeID string, after time.Time) ([]DepartureRow, error)
}

// AlertMatchStore joins a user's subscriptions against informed entities and
// active periods, returning one row per (alert, period, matched entity).
type AlertMatchStore interface {
	SubscriptionAlertRows(ctx context.Context, userID int64) ([]models.AlertMatch, error)
}

// SubscriptionStore manages users and their stop/route subscriptions.
type SubscriptionStore interface {
	GetOrCreateUser(ctx context.Context, username string) (int64, error)
	Subscriptions(ctx context.Context, userID int64) ([]models.Subscription, error)
	IsSubscribed(ctx context.Context, userID int64, target models.Target) (bool, error)
	Subscribe(ctx context.Context, userID int64, target models.Target) error
	Unsubscribe(ctx context.Context, subscriptionID, userID int64) error
}

// StaticStore reads the externally-provisioned static schedule tables.
type StaticStore interface {
	Stations(ctx context.Context) ([]models.Station, error)
	Routes(ctx context.Context) ([]models.Route, error)
}

// Engine is the full storage surface.
type Engine interface {
	RealtimeStore
	AlertStore
	DepartureStore
	AlertMatchStore
	SubscriptionStore
	StaticStore
}
