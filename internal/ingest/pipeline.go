// Package ingest runs one feed ingestion cycle end to end: fetch every
// group, decode, then reconcile realtime state and alerts.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/mtatracker-data/internal/common/config"
	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/feed"
	"github.com/mtatracker-data/internal/models"
)

type Fetcher interface {
	FetchAll(ctx context.Context, groups []config.Group) ([]feed.Payload, []string)
}

type Decoder interface {
	DecodeAll(payloads []feed.Payload) feed.Batch
}

type RealtimeReconciler interface {
	Reconcile(ctx context.Context, trips []models.TripUpdate, stopTimes []models.StopTimeUpdate) error
}

type AlertReconciler interface {
	Reconcile(ctx context.Context, alerts []models.Alert) error
}

// Pipeline holds the wired components for one ingestion cycle. It exposes no
// timer of its own; the caller schedules RunCycle.
type Pipeline struct {
	groups   []config.Group
	fetcher  Fetcher
	decoder  Decoder
	realtime RealtimeReconciler
	alerts   AlertReconciler
	logger   logger.Logger
}

func NewPipeline(groups []config.Group, fetcher Fetcher, decoder Decoder, realtime RealtimeReconciler, alerts AlertReconciler, log logger.Logger) *Pipeline {
	return &Pipeline{
		groups:   groups,
		fetcher:  fetcher,
		decoder:  decoder,
		realtime: realtime,
		alerts:   alerts,
		logger:   log,
	}
}

// RunCycle fetches and applies one snapshot. Failed groups are excluded and
// the cycle proceeds with whatever fetched; a reconciliation failure in one
// stage does not stop the other. The next scheduled cycle is the retry.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	start := time.Now()

	payloads, failedGroups := p.fetcher.FetchAll(ctx, p.groups)
	if len(failedGroups) > 0 {
		p.logger.Warn("Some feed groups failed to fetch", "failed", failedGroups)
	}

	batch := p.decoder.DecodeAll(payloads)

	var realtimeErr, alertErr error
	if realtimeErr = p.realtime.Reconcile(ctx, batch.TripUpdates, batch.StopTimeUpdates); realtimeErr != nil {
		p.logger.Error("Realtime reconciliation failed", "error", realtimeErr)
	}
	if alertErr = p.alerts.Reconcile(ctx, batch.Alerts); alertErr != nil {
		p.logger.Error("Alert reconciliation failed", "error", alertErr)
	}

	p.logger.Info("Ingestion cycle complete",
		"groups", len(p.groups),
		"failed_groups", len(failedGroups),
		"trips", len(batch.TripUpdates),
		"stop_times", len(batch.StopTimeUpdates),
		"alerts", len(batch.Alerts),
		"duration_ms", time.Since(start).Milliseconds())

	if realtimeErr != nil {
		return fmt.Errorf("realtime reconciliation: %w", realtimeErr)
	}
	if alertErr != nil {
		return fmt.Errorf("alert reconciliation: %w", alertErr)
	}
	return nil
}
