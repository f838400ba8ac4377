package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtatracker-data/internal/models"
)

type fakeAlertMatchStore struct {
	matches []models.AlertMatch
}

func (f *fakeAlertMatchStore) SubscriptionAlertRows(_ context.Context, _ int64) ([]models.AlertMatch, error) {
	return f.matches, nil
}

func ptr(t time.Time) *time.Time { return &t }

func TestClassify(t *testing.T) {
	now := fixedNow()

	cases := []struct {
		name   string
		period models.ActivePeriod
		want   models.AlertStatus
	}{
		{"spanning now", models.ActivePeriod{Start: ptr(now.Add(-10 * time.Minute)), End: ptr(now.Add(10 * time.Minute))}, models.StatusActive},
		{"starts later", models.ActivePeriod{Start: ptr(now.Add(5 * time.Minute)), End: ptr(now.Add(15 * time.Minute))}, models.StatusUpcoming},
		{"already ended", models.ActivePeriod{Start: ptr(now.Add(-15 * time.Minute)), End: ptr(now.Add(-5 * time.Minute))}, models.StatusPast},
		{"open ended", models.ActivePeriod{Start: ptr(now.Add(-10 * time.Minute))}, models.StatusActive},
		{"no bounds", models.ActivePeriod{}, models.StatusActive},
		{"open start, future end", models.ActivePeriod{End: ptr(now.Add(10 * time.Minute))}, models.StatusActive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.period, now))
		})
	}
}

func TestUserAlertsClassifiesAndOrders(t *testing.T) {
	now := fixedNow()
	store := &fakeAlertMatchStore{matches: []models.AlertMatch{
		{
			AlertID:  "past-on-1",
			Period:   models.ActivePeriod{Start: ptr(now.Add(-2 * time.Hour)), End: ptr(now.Add(-time.Hour))},
			EntityID: "1",
		},
		{
			AlertID:  "active-on-127",
			Period:   models.ActivePeriod{Start: ptr(now.Add(-time.Hour)), End: ptr(now.Add(time.Hour))},
			EntityID: "127",
		},
		{
			AlertID:  "upcoming-on-1",
			Period:   models.ActivePeriod{Start: ptr(now.Add(time.Hour)), End: ptr(now.Add(2 * time.Hour))},
			EntityID: "1",
		},
		{
			AlertID:  "active-on-1",
			Period:   models.ActivePeriod{Start: ptr(now.Add(-time.Hour))},
			EntityID: "1",
		},
	}}

	matcher := NewAlertMatcher(store)
	matcher.now = fixedNow

	alerts, err := matcher.UserAlerts(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, alerts, 4)

	// Entity ascending, then status string descending (upcoming, past,
	// active), then start ascending. All statuses are returned; filtering
	// to active happens in the presentation layer.
	assert.Equal(t, "upcoming-on-1", alerts[0].AlertID)
	assert.Equal(t, models.StatusUpcoming, alerts[0].Status)
	assert.Equal(t, "past-on-1", alerts[1].AlertID)
	assert.Equal(t, models.StatusPast, alerts[1].Status)
	assert.Equal(t, "active-on-1", alerts[2].AlertID)
	assert.Equal(t, models.StatusActive, alerts[2].Status)
	assert.Equal(t, "active-on-127", alerts[3].AlertID)
	assert.Equal(t, "127", alerts[3].EntityID)
}

func TestUserAlertsStartTieBreak(t *testing.T) {
	now := fixedNow()
	store := &fakeAlertMatchStore{matches: []models.AlertMatch{
		{AlertID: "later", Period: models.ActivePeriod{Start: ptr(now.Add(-time.Hour))}, EntityID: "A"},
		{AlertID: "earlier", Period: models.ActivePeriod{Start: ptr(now.Add(-2 * time.Hour))}, EntityID: "A"},
		{AlertID: "no-start", Period: models.ActivePeriod{}, EntityID: "A"},
	}}

	matcher := NewAlertMatcher(store)
	matcher.now = fixedNow

	alerts, err := matcher.UserAlerts(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	assert.Equal(t, "earlier", alerts[0].AlertID)
	assert.Equal(t, "later", alerts[1].AlertID)
	assert.Equal(t, "no-start", alerts[2].AlertID) // null start sorts last
}
