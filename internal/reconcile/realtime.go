// Package reconcile applies decoded feed batches to the storage engine.
package reconcile

import (
	"context"

	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/models"
	"github.com/mtatracker-data/internal/storage"
)

// RealtimeReconciler replaces the live trip/stop-time state with each
// cycle's decoded batch. The prior state is always discarded, even when the
// batch is empty: an empty live state means "no realtime data available",
// not "keep showing the last snapshot".
type RealtimeReconciler struct {
	store  storage.RealtimeStore
	logger logger.Logger
}

func NewRealtimeReconciler(store storage.RealtimeStore, log logger.Logger) *RealtimeReconciler {
	return &RealtimeReconciler{store: store, logger: log}
}

// Reconcile deduplicates the batch and hands it to the storage engine as one
// atomic replace. Duplicate trip ids and duplicate (trip, stop) pairs
// collapse to their first occurrence.
func (r *RealtimeReconciler) Reconcile(ctx context.Context, trips []models.TripUpdate, stopTimes []models.StopTimeUpdate) error {
	dedupedTrips := dedupTrips(trips)
	dedupedStops := dedupStopTimes(stopTimes)

	if len(dedupedTrips) < len(trips) || len(dedupedStops) < len(stopTimes) {
		r.logger.Debug("Dropped duplicate realtime rows",
			"trips_dropped", len(trips)-len(dedupedTrips),
			"stop_times_dropped", len(stopTimes)-len(dedupedStops))
	}

	return r.store.ReplaceRealtime(ctx, dedupedTrips, dedupedStops)
}

func dedupTrips(trips []models.TripUpdate) []models.TripUpdate {
	seen := make(map[string]struct{}, len(trips))
	out := make([]models.TripUpdate, 0, len(trips))
	for _, trip := range trips {
		if _, ok := seen[trip.TripID]; ok {
			continue
		}
		seen[trip.TripID] = struct{}{}
		out = append(out, trip)
	}
	return out
}

func dedupStopTimes(stopTimes []models.StopTimeUpdate) []models.StopTimeUpdate {
	type key struct{ tripID, stopID string }
	seen := make(map[key]struct{}, len(stopTimes))
	out := make([]models.StopTimeUpdate, 0, len(stopTimes))
	for _, stu := range stopTimes {
		k := key{stu.TripID, stu.StopID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, stu)
	}
	return out
}
