package reconcile

import (
	"context"
	"fmt"

	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/models"
	"github.com/mtatracker-data/internal/storage"
)

// AlertReconciler upserts each decoded alert and replaces its active periods
// and informed entities. Unlike the realtime replace, this is scoped per
// alert: advisories absent from the current batch stay untouched, since a
// feed source omitting them does not mean they were withdrawn.
type AlertReconciler struct {
	store  storage.AlertStore
	logger logger.Logger
}

func NewAlertReconciler(store storage.AlertStore, log logger.Logger) *AlertReconciler {
	return &AlertReconciler{store: store, logger: log}
}

// Reconcile applies every alert in the batch. A storage failure for one
// alert is logged and does not abort the rest; the error reports how many
// failed.
func (r *AlertReconciler) Reconcile(ctx context.Context, alerts []models.Alert) error {
	failed := 0
	for _, alert := range alerts {
		if err := r.store.UpsertAlert(ctx, alert); err != nil {
			r.logger.Error("Failed to reconcile alert", "alert_id", alert.AlertID, "error", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("reconciling alerts: %d of %d failed", failed, len(alerts))
	}

	r.logger.Debug("Reconciled alerts", "count", len(alerts))
	return nil
}
