package query

import (
	"context"
	"sort"
	"time"

	"github.com/mtatracker-data/internal/models"
	"github.com/mtatracker-data/internal/storage"
)

// AlertMatcher joins a user's subscriptions against current alerts and
// classifies each matched period by temporal status. All three statuses are
// returned; filtering down to active alerts is the presentation layer's job.
type AlertMatcher struct {
	store storage.AlertMatchStore
	now   func() time.Time
}

func NewAlertMatcher(store storage.AlertMatchStore) *AlertMatcher {
	return &AlertMatcher{store: store, now: time.Now}
}

// UserAlerts returns the user's matched alerts ordered by entity, then
// status descending, then period start ascending. The status tie-break is a
// plain string comparison: upcoming before past before active.
func (m *AlertMatcher) UserAlerts(ctx context.Context, userID int64) ([]models.UserAlert, error) {
	now := m.now()
	matches, err := m.store.SubscriptionAlertRows(ctx, userID)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.UserAlert, 0, len(matches))
	for _, match := range matches {
		alerts = append(alerts, models.UserAlert{
			AlertID:     match.AlertID,
			Header:      match.Header,
			Description: match.Description,
			Start:       match.Period.Start,
			End:         match.Period.End,
			Status:      Classify(match.Period, now),
			EntityID:    match.EntityID,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		if a.Status != b.Status {
			return a.Status > b.Status
		}
		return beforePtr(a.Start, b.Start)
	})
	return alerts, nil
}

// Classify places the period relative to now: upcoming when it starts
// strictly later, past when it ends strictly earlier, active otherwise. A
// nil bound never satisfies its comparison, so open-ended periods spanning
// now come out active.
func Classify(period models.ActivePeriod, now time.Time) models.AlertStatus {
	switch {
	case period.Start != nil && period.Start.After(now):
		return models.StatusUpcoming
	case period.End != nil && period.End.Before(now):
		return models.StatusPast
	default:
		return models.StatusActive
	}
}

// beforePtr orders timestamps ascending with nils last, matching the
// reference ORDER BY start_time ASC under Postgres null ordering.
func beforePtr(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}
