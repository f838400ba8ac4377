// Package postgres implements the storage engine over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mtatracker-data/internal/common/db"
	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/models"
	"github.com/mtatracker-data/internal/storage"
)

type Store struct {
	db     *db.DB
	conn   *sql.DB
	logger logger.Logger
}

var _ storage.Engine = (*Store)(nil)

func New(database *db.DB, log logger.Logger) *Store {
	return &Store{
		db:     database,
		conn:   database.Conn(),
		logger: log,
	}
}

// ReplaceRealtime wipes the live trip and stop-time state and loads the new
// batch, all within one transaction. Callers must have deduplicated the
// batch: the copy has no conflict handling.
func (s *Store) ReplaceRealtime(ctx context.Context, trips []models.TripUpdate, stopTimes []models.StopTimeUpdate) error {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trips_real_time`); err != nil {
		return fmt.Errorf("clearing trip updates: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stop_time_update`); err != nil {
		return fmt.Errorf("clearing stop time updates: %w", err)
	}

	if err := copyTrips(tx, trips); err != nil {
		return err
	}
	if err := copyStopTimes(tx, stopTimes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing realtime replace: %w", err)
	}

	s.logger.Info("Replaced realtime state",
		"trips", len(trips),
		"stop_times", len(stopTimes),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func copyTrips(tx *sql.Tx, trips []models.TripUpdate) error {
	stmt, err := tx.Prepare(pq.CopyIn("trips_real_time", "trip_id", "start_datetime", "route_id"))
	if err != nil {
		return fmt.Errorf("preparing trip updates copy: %w", err)
	}
	defer stmt.Close()

	for _, trip := range trips {
		if _, err := stmt.Exec(trip.TripID, nullTime(trip.StartDatetime), trip.RouteID); err != nil {
			return fmt.Errorf("adding trip update to batch: %w", err)
		}
	}

	if _, err := stmt.Exec(); err != nil {
		return fmt.Errorf("executing trip updates copy: %w", err)
	}
	return nil
}

func copyStopTimes(tx *sql.Tx, stopTimes []models.StopTimeUpdate) error {
	stmt, err := tx.Prepare(pq.CopyIn("stop_time_update", "trip_id", "stop_id", "arrival_time", "departure_time"))
	if err != nil {
		return fmt.Errorf("preparing stop time updates copy: %w", err)
	}
	defer stmt.Close()

	for _, stu := range stopTimes {
		if _, err := stmt.Exec(stu.TripID, stu.StopID, nullTime(stu.ArrivalTime), nullTime(stu.DepartureTime)); err != nil {
			return fmt.Errorf("adding stop time update to batch: %w", err)
		}
	}

	if _, err := stmt.Exec(); err != nil {
		return fmt.Errorf("executing stop time updates copy: %w", err)
	}
	return nil
}

// UpsertAlert updates or inserts the alert header, then replaces its active
// periods and informed entities. The whole unit is one transaction so a
// reader never sees an alert with a mix of old and new periods.
func (s *Store) UpsertAlert(ctx context.Context, alert models.Alert) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, header_text, description_text, last_updated)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (alert_id) DO UPDATE
		SET header_text = EXCLUDED.header_text,
		    description_text = EXCLUDED.description_text,
		    last_updated = NOW()
	`, alert.AlertID, nullString(alert.HeaderText), nullString(alert.DescriptionText))
	if err != nil {
		return fmt.Errorf("upserting alert %s: %w", alert.AlertID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM active_periods WHERE alert_id = $1`, alert.AlertID); err != nil {
		return fmt.Errorf("clearing active periods for alert %s: %w", alert.AlertID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM informed_entities WHERE alert_id = $1`, alert.AlertID); err != nil {
		return fmt.Errorf("clearing informed entities for alert %s: %w", alert.AlertID, err)
	}

	for _, period := range alert.ActivePeriods {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO active_periods (alert_id, start_time, end_time)
			VALUES ($1, $2, $3)
		`, alert.AlertID, nullTime(period.Start), nullTime(period.End))
		if err != nil {
			return fmt.Errorf("inserting active period for alert %s: %w", alert.AlertID, err)
		}
	}

	for _, entity := range alert.InformedEntities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO informed_entities (alert_id, agency_id, route_id, stop_id)
			VALUES ($1, $2, $3, $4)
		`, alert.AlertID, nullString(entity.AgencyID), nullString(entity.RouteID), nullString(entity.StopID))
		if err != nil {
			return fmt.Errorf("inserting informed entity for alert %s: %w", alert.AlertID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// UpcomingDepartures joins live state to the static stops table for one
// platform. Rows without a departure time are excluded by the comparison.
func (s *Store) UpcomingDepartures(ctx context.Context, stopID, routeID string, after time.Time) ([]storage.DepartureRow, error) {
	query := `
		SELECT t.route_id, stu.departure_time
		FROM trips_real_time AS t
		INNER JOIN stop_time_update AS stu ON t.trip_id = stu.trip_id
		INNER JOIN stops AS s ON stu.stop_id = s.stop_id
		WHERE s.stop_id = $1 AND stu.departure_time > $2`
	args := []interface{}{stopID, after}

	if routeID != "" {
		query += ` AND t.route_id = $3`
		args = append(args, routeID)
	}
	query += ` ORDER BY stu.departure_time ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying departures for stop %s: %w", stopID, err)
	}
	defer rows.Close()

	var departures []storage.DepartureRow
	for rows.Next() {
		var row storage.DepartureRow
		if err := rows.Scan(&row.RouteID, &row.DepartureTime); err != nil {
			return nil, fmt.Errorf("scanning departure row: %w", err)
		}
		departures = append(departures, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating departure rows: %w", err)
	}
	return departures, nil
}

// SubscriptionAlertRows returns the raw subscription/alert join; the matcher
// classifies and orders the rows.
func (s *Store) SubscriptionAlertRows(ctx context.Context, userID int64) ([]models.AlertMatch, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT a.alert_id, a.header_text, a.description_text,
		       ap.start_time, ap.end_time,
		       COALESCE(ie.route_id, ie.stop_id) AS entity_id
		FROM alerts AS a
		INNER JOIN active_periods AS ap ON a.alert_id = ap.alert_id
		INNER JOIN informed_entities AS ie ON a.alert_id = ie.alert_id
		INNER JOIN subscriptions AS s ON (s.route_id = ie.route_id OR s.stop_id = ie.stop_id)
		WHERE s.user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying alerts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var matches []models.AlertMatch
	for rows.Next() {
		var (
			match               models.AlertMatch
			header, description sql.NullString
			start, end          sql.NullTime
		)
		if err := rows.Scan(&match.AlertID, &header, &description, &start, &end, &match.EntityID); err != nil {
			return nil, fmt.Errorf("scanning alert match row: %w", err)
		}
		match.Header = fromNullString(header)
		match.Description = fromNullString(description)
		match.Period.Start = fromNullTime(start)
		match.Period.End = fromNullTime(end)
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alert match rows: %w", err)
	}
	return matches, nil
}

// GetOrCreateUser resolves a username to its surrogate id, creating the user
// on first contact.
func (s *Store) GetOrCreateUser(ctx context.Context, username string) (int64, error) {
	var userID int64
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO users (username)
		VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING user_id
	`, username).Scan(&userID)
	if err != nil {
		return 0, fmt.Errorf("resolving user %s: %w", username, err)
	}
	return userID, nil
}

func (s *Store) Subscriptions(ctx context.Context, userID int64) ([]models.Subscription, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT subscription_id, stop_id, route_id
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY stop_id, route_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var subscriptions []models.Subscription
	for rows.Next() {
		var (
			id              int64
			stopID, routeID sql.NullString
		)
		if err := rows.Scan(&id, &stopID, &routeID); err != nil {
			return nil, fmt.Errorf("scanning subscription row: %w", err)
		}
		target, err := models.TargetFromColumns(fromNullString(stopID), fromNullString(routeID))
		if err != nil {
			return nil, fmt.Errorf("subscription %d: %w", id, err)
		}
		subscriptions = append(subscriptions, models.Subscription{ID: id, UserID: userID, Target: target})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscription rows: %w", err)
	}
	return subscriptions, nil
}

func (s *Store) IsSubscribed(ctx context.Context, userID int64, target models.Target) (bool, error) {
	stopID, routeID := target.Columns()
	var exists bool
	err := s.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1
			  AND stop_id IS NOT DISTINCT FROM $2
			  AND route_id IS NOT DISTINCT FROM $3
		)
	`, userID, nullString(stopID), nullString(routeID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking subscription for user %d: %w", userID, err)
	}
	return exists, nil
}

func (s *Store) Subscribe(ctx context.Context, userID int64, target models.Target) error {
	stopID, routeID := target.Columns()
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, stop_id, route_id)
		VALUES ($1, $2, $3)
	`, userID, nullString(stopID), nullString(routeID))
	if err != nil {
		return fmt.Errorf("inserting subscription for user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) Unsubscribe(ctx context.Context, subscriptionID, userID int64) error {
	_, err := s.conn.ExecContext(ctx, `
		DELETE FROM subscriptions
		WHERE subscription_id = $1 AND user_id = $2
	`, subscriptionID, userID)
	if err != nil {
		return fmt.Errorf("deleting subscription %d: %w", subscriptionID, err)
	}
	return nil
}

// Stations lists distinct stations, excluding the directional platform rows.
func (s *Store) Stations(ctx context.Context) ([]models.Station, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT ON (stop_name, address) stop_id, stop_name, address, trains
		FROM stops
		WHERE stop_id NOT LIKE '%N' AND stop_id NOT LIKE '%S'
		ORDER BY stop_name, address, stop_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying stations: %w", err)
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var station models.Station
		if err := rows.Scan(&station.StopID, &station.StopName, &station.Address, &station.Trains); err != nil {
			return nil, fmt.Errorf("scanning station row: %w", err)
		}
		stations = append(stations, station)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating station rows: %w", err)
	}
	return stations, nil
}

func (s *Store) Routes(ctx context.Context) ([]models.Route, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT route_id, route_short_name, route_long_name
		FROM routes
		ORDER BY route_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	var routes []models.Route
	for rows.Next() {
		var route models.Route
		if err := rows.Scan(&route.RouteID, &route.ShortName, &route.LongName); err != nil {
			return nil, fmt.Errorf("scanning route row: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating route rows: %w", err)
	}
	return routes, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}
