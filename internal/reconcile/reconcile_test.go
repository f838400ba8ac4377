package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/models"
)

type fakeRealtimeStore struct {
	trips     []models.TripUpdate
	stopTimes []models.StopTimeUpdate
	calls     int
	err       error
}

func (f *fakeRealtimeStore) ReplaceRealtime(_ context.Context, trips []models.TripUpdate, stopTimes []models.StopTimeUpdate) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.trips = trips
	f.stopTimes = stopTimes
	return nil
}

type fakeAlertStore struct {
	upserted []string
	failOn   map[string]error
}

func (f *fakeAlertStore) UpsertAlert(_ context.Context, alert models.Alert) error {
	if err := f.failOn[alert.AlertID]; err != nil {
		return err
	}
	f.upserted = append(f.upserted, alert.AlertID)
	return nil
}

func TestRealtimeReconcileDedupsFirstWins(t *testing.T) {
	store := &fakeRealtimeStore{}
	reconciler := NewRealtimeReconciler(store, logger.Nop())

	early := time.Now()
	late := early.Add(time.Hour)

	trips := []models.TripUpdate{
		{TripID: "A1", RouteID: "1", StartDatetime: &early},
		{TripID: "A1", RouteID: "2", StartDatetime: &late},
		{TripID: "B1", RouteID: "3"},
	}
	stopTimes := []models.StopTimeUpdate{
		{TripID: "A1", StopID: "127N", ArrivalTime: &early},
		{TripID: "A1", StopID: "127N", ArrivalTime: &late},
		{TripID: "A1", StopID: "128N"},
	}

	require.NoError(t, reconciler.Reconcile(context.Background(), trips, stopTimes))

	require.Len(t, store.trips, 2)
	assert.Equal(t, "1", store.trips[0].RouteID) // first occurrence kept

	require.Len(t, store.stopTimes, 2)
	require.NotNil(t, store.stopTimes[0].ArrivalTime)
	assert.True(t, store.stopTimes[0].ArrivalTime.Equal(early))
}

func TestRealtimeReconcileEmptyBatchStillReplaces(t *testing.T) {
	store := &fakeRealtimeStore{}
	reconciler := NewRealtimeReconciler(store, logger.Nop())

	require.NoError(t, reconciler.Reconcile(context.Background(), nil, nil))
	assert.Equal(t, 1, store.calls)
	assert.Empty(t, store.trips)
	assert.Empty(t, store.stopTimes)
}

func TestRealtimeReconcileSurfacesStorageError(t *testing.T) {
	store := &fakeRealtimeStore{err: errors.New("connection lost")}
	reconciler := NewRealtimeReconciler(store, logger.Nop())

	err := reconciler.Reconcile(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "connection lost")
}

func TestAlertReconcileUpsertsEach(t *testing.T) {
	store := &fakeAlertStore{}
	reconciler := NewAlertReconciler(store, logger.Nop())

	alerts := []models.Alert{
		{AlertID: "a1"},
		{AlertID: "a2"},
	}

	require.NoError(t, reconciler.Reconcile(context.Background(), alerts))
	assert.Equal(t, []string{"a1", "a2"}, store.upserted)
}

func TestAlertReconcileContinuesPastFailures(t *testing.T) {
	store := &fakeAlertStore{failOn: map[string]error{"a2": errors.New("constraint violation")}}
	reconciler := NewAlertReconciler(store, logger.Nop())

	alerts := []models.Alert{
		{AlertID: "a1"},
		{AlertID: "a2"},
		{AlertID: "a3"},
	}

	err := reconciler.Reconcile(context.Background(), alerts)
	assert.ErrorContains(t, err, "1 of 3 failed")
	assert.Equal(t, []string{"a1", "a3"}, store.upserted)
}
