// Package models holds the record types exchanged between the feed pipeline,
// the storage engine and the query surface. Every query result has an
// explicit struct; nothing downstream handles dynamic rows.
package models

import (
	"fmt"
	"time"
)

// TripUpdate is the realtime revision of one scheduled trip. The live state
// holds exactly one per trip id.
type TripUpdate struct {
	TripID        string
	StartDatetime *time.Time // nil when the feed omits start date or time
	RouteID       string
}

// StopTimeUpdate is a realtime arrival/departure estimate for one trip at
// one stop. Arrival and departure are independently optional.
type StopTimeUpdate struct {
	TripID        string
	StopID        string
	ArrivalTime   *time.Time
	DepartureTime *time.Time
}

// Alert is a service advisory with its full set of active periods and
// informed entities as decoded from the current feed.
type Alert struct {
	AlertID          string
	HeaderText       *string
	DescriptionText  *string
	ActivePeriods    []ActivePeriod
	InformedEntities []InformedEntity
}

// ActivePeriod is a window during which an alert is in effect. A nil start
// means unbounded past, a nil end unbounded future.
type ActivePeriod struct {
	Start *time.Time
	End   *time.Time
}

// InformedEntity scopes an alert to an agency, route and/or stop.
type InformedEntity struct {
	AgencyID *string
	RouteID  *string
	StopID   *string
}

// Station is a static stop row. Directional platforms share the station's
// base id with an N or S suffix; the station's own row has no suffix.
type Station struct {
	StopID   string
	StopName string
	Address  string
	Trains   string // comma-joined serving route ids
}

type Route struct {
	RouteID   string
	ShortName string
	LongName  string
}

// Departure is one upcoming departure at a platform, with the ETA in rounded
// minutes as of query time.
type Departure struct {
	RouteID       string
	DepartureTime time.Time
	ETAMinutes    int
}

type AlertStatus string

const (
	StatusActive   AlertStatus = "active"
	StatusUpcoming AlertStatus = "upcoming"
	StatusPast     AlertStatus = "past"
)

// UserAlert is one subscription-matched alert row, classified by temporal
// status. EntityID is the matched route or stop, whichever the informed
// entity carried.
type UserAlert struct {
	AlertID     string
	Header      *string
	Description *string
	Start       *time.Time
	End         *time.Time
	Status      AlertStatus
	EntityID    string
}

// AlertMatch is the raw join of a subscription against an informed entity
// and one active period, before classification.
type AlertMatch struct {
	AlertID     string
	Header      *string
	Description *string
	Period      ActivePeriod
	EntityID    string
}

type User struct {
	ID       int64
	Username string
}

// TargetKind discriminates a subscription target.
type TargetKind int

const (
	TargetStop TargetKind = iota + 1
	TargetRoute
)

// Target is what a subscription points at: exactly one stop or one route.
// The zero value is invalid; construct via StopTarget or RouteTarget.
type Target struct {
	kind TargetKind
	id   string
}

func StopTarget(stopID string) Target {
	return Target{kind: TargetStop, id: stopID}
}

func RouteTarget(routeID string) Target {
	return Target{kind: TargetRoute, id: routeID}
}

func (t Target) Kind() TargetKind { return t.kind }
func (t Target) ID() string       { return t.id }

// Columns maps the target onto the nullable stop_id/route_id column pair.
func (t Target) Columns() (stopID, routeID *string) {
	switch t.kind {
	case TargetStop:
		return &t.id, nil
	case TargetRoute:
		return nil, &t.id
	}
	return nil, nil
}

// TargetFromColumns rebuilds a target from a stored row. The schema does not
// enforce exclusivity, so rows with both or neither column set are rejected
// here rather than guessed at.
func TargetFromColumns(stopID, routeID *string) (Target, error) {
	switch {
	case stopID != nil && routeID != nil:
		return Target{}, fmt.Errorf("subscription targets both stop %q and route %q", *stopID, *routeID)
	case stopID != nil:
		return StopTarget(*stopID), nil
	case routeID != nil:
		return RouteTarget(*routeID), nil
	}
	return Target{}, fmt.Errorf("subscription targets neither a stop nor a route")
}

type Subscription struct {
	ID     int64
	UserID int64
	Target Target
}
