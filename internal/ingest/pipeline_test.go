package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtatracker-data/internal/common/config"
	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/feed"
	"github.com/mtatracker-data/internal/models"
)

type fakeFetcher struct {
	payloads []feed.Payload
	failed   []string
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ []config.Group) ([]feed.Payload, []string) {
	return f.payloads, f.failed
}

type fakeDecoder struct {
	batch feed.Batch
	got   []feed.Payload
}

func (f *fakeDecoder) DecodeAll(payloads []feed.Payload) feed.Batch {
	f.got = payloads
	return f.batch
}

type fakeRealtime struct {
	trips     []models.TripUpdate
	stopTimes []models.StopTimeUpdate
	err       error
}

func (f *fakeRealtime) Reconcile(_ context.Context, trips []models.TripUpdate, stopTimes []models.StopTimeUpdate) error {
	f.trips = trips
	f.stopTimes = stopTimes
	return f.err
}

type fakeAlerts struct {
	alerts []models.Alert
	err    error
}

func (f *fakeAlerts) Reconcile(_ context.Context, alerts []models.Alert) error {
	f.alerts = alerts
	return f.err
}

func TestRunCycleProceedsWithPartialFetch(t *testing.T) {
	fetcher := &fakeFetcher{
		payloads: []feed.Payload{{Group: "ACE", Body: []byte("ok")}},
		failed:   []string{"BDFM"},
	}
	decoder := &fakeDecoder{batch: feed.Batch{
		TripUpdates:     []models.TripUpdate{{TripID: "A1", RouteID: "A"}},
		StopTimeUpdates: []models.StopTimeUpdate{{TripID: "A1", StopID: "127N"}},
		Alerts:          []models.Alert{{AlertID: "x"}},
	}}
	realtime := &fakeRealtime{}
	alerts := &fakeAlerts{}

	pipeline := NewPipeline(nil, fetcher, decoder, realtime, alerts, logger.Nop())
	require.NoError(t, pipeline.RunCycle(context.Background()))

	// The successful group's payload still reaches the decoder and both
	// reconcilers run on the decoded batch.
	require.Len(t, decoder.got, 1)
	assert.Equal(t, "ACE", decoder.got[0].Group)
	assert.Len(t, realtime.trips, 1)
	assert.Len(t, realtime.stopTimes, 1)
	assert.Len(t, alerts.alerts, 1)
}

func TestRunCycleRealtimeFailureStillReconcilesAlerts(t *testing.T) {
	realtime := &fakeRealtime{err: errors.New("db down")}
	alerts := &fakeAlerts{}
	decoder := &fakeDecoder{batch: feed.Batch{Alerts: []models.Alert{{AlertID: "x"}}}}

	pipeline := NewPipeline(nil, &fakeFetcher{}, decoder, realtime, alerts, logger.Nop())
	err := pipeline.RunCycle(context.Background())

	assert.ErrorContains(t, err, "realtime reconciliation")
	assert.Len(t, alerts.alerts, 1)
}

func TestRunCycleAlertFailureIsSurfaced(t *testing.T) {
	alerts := &fakeAlerts{err: errors.New("constraint violation")}
	pipeline := NewPipeline(nil, &fakeFetcher{}, &fakeDecoder{}, &fakeRealtime{}, alerts, logger.Nop())

	err := pipeline.RunCycle(context.Background())
	assert.ErrorContains(t, err, "alert reconciliation")
}
