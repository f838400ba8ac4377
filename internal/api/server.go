// Package api exposes the query surface over HTTP for the presentation
// layer (the chat bot lives outside this repository).
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/models"
	"github.com/mtatracker-data/internal/query"
	"github.com/mtatracker-data/internal/storage"
)

type Server struct {
	departures    *query.DepartureResolver
	alerts        *query.AlertMatcher
	subscriptions storage.SubscriptionStore
	static        storage.StaticStore
	logger        logger.Logger
}

func NewServer(departures *query.DepartureResolver, alerts *query.AlertMatcher, subscriptions storage.SubscriptionStore, static storage.StaticStore, log logger.Logger) *Server {
	return &Server{
		departures:    departures,
		alerts:        alerts,
		subscriptions: subscriptions,
		static:        static,
		logger:        log,
	}
}

func (s *Server) Router() http.Handler {
	router := httprouter.New()
	router.GET("/stations", s.handleStations)
	router.GET("/routes", s.handleRoutes)
	router.GET("/stops/:stopID/departures", s.handleDepartures)
	router.GET("/users/:username/alerts", s.handleUserAlerts)
	router.GET("/users/:username/subscriptions", s.handleListSubscriptions)
	router.POST("/users/:username/subscriptions", s.handleSubscribe)
	router.DELETE("/users/:username/subscriptions/:id", s.handleUnsubscribe)
	return router
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stations, err := s.static.Stations(r.Context())
	if err != nil {
		s.serverError(w, "listing stations", err)
		return
	}
	s.sendJSON(w, http.StatusOK, stations)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	routes, err := s.static.Routes(r.Context())
	if err != nil {
		s.serverError(w, "listing routes", err)
		return
	}
	s.sendJSON(w, http.StatusOK, routes)
}

type departureResponse struct {
	RouteID       string    `json:"route_id"`
	DepartureTime time.Time `json:"departure_time"`
	ETAMinutes    int       `json:"eta_minutes"`
}

// handleDepartures serves both departure queries: without a route parameter
// it returns the next departure per route, with one it returns up to three
// departures for that route. The stop id must carry its directional suffix.
func (s *Server) handleDepartures(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	stopID := params.ByName("stopID")
	routeID := r.URL.Query().Get("route")

	var (
		departures []models.Departure
		err        error
	)
	if routeID == "" {
		departures, err = s.departures.StationDepartures(r.Context(), stopID)
	} else {
		departures, err = s.departures.RouteDepartures(r.Context(), stopID, routeID)
	}
	if err != nil {
		s.serverError(w, "resolving departures", err)
		return
	}

	response := make([]departureResponse, 0, len(departures))
	for _, d := range departures {
		response = append(response, departureResponse{
			RouteID:       d.RouteID,
			DepartureTime: d.DepartureTime,
			ETAMinutes:    d.ETAMinutes,
		})
	}
	s.sendJSON(w, http.StatusOK, response)
}

type alertResponse struct {
	AlertID     string     `json:"alert_id"`
	Header      *string    `json:"header"`
	Description *string    `json:"description"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	EntityID    string     `json:"entity_id"`
}

// handleUserAlerts renders only currently active alerts; the matcher also
// reports upcoming and past periods but those are not shown to riders.
func (s *Server) handleUserAlerts(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	userID, err := s.subscriptions.GetOrCreateUser(r.Context(), params.ByName("username"))
	if err != nil {
		s.serverError(w, "resolving user", err)
		return
	}

	alerts, err := s.alerts.UserAlerts(r.Context(), userID)
	if err != nil {
		s.serverError(w, "fetching alerts", err)
		return
	}

	response := make([]alertResponse, 0, len(alerts))
	for _, alert := range alerts {
		if alert.Status != models.StatusActive {
			continue
		}
		response = append(response, alertResponse{
			AlertID:     alert.AlertID,
			Header:      alert.Header,
			Description: alert.Description,
			Start:       alert.Start,
			End:         alert.End,
			EntityID:    alert.EntityID,
		})
	}
	s.sendJSON(w, http.StatusOK, response)
}

type subscriptionResponse struct {
	ID     int64  `json:"id"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	userID, err := s.subscriptions.GetOrCreateUser(r.Context(), params.ByName("username"))
	if err != nil {
		s.serverError(w, "resolving user", err)
		return
	}

	subs, err := s.subscriptions.Subscriptions(r.Context(), userID)
	if err != nil {
		s.serverError(w, "listing subscriptions", err)
		return
	}

	response := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		response = append(response, subscriptionResponse{
			ID:     sub.ID,
			Kind:   targetKindName(sub.Target.Kind()),
			Target: sub.Target.ID(),
		})
	}
	s.sendJSON(w, http.StatusOK, response)
}

type subscribeRequest struct {
	StopID  string `json:"stop_id"`
	RouteID string `json:"route_id"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var target models.Target
	switch {
	case req.StopID != "" && req.RouteID != "":
		http.Error(w, "subscribe to a stop or a route, not both", http.StatusBadRequest)
		return
	case req.StopID != "":
		target = models.StopTarget(req.StopID)
	case req.RouteID != "":
		target = models.RouteTarget(req.RouteID)
	default:
		http.Error(w, "stop_id or route_id is required", http.StatusBadRequest)
		return
	}

	userID, err := s.subscriptions.GetOrCreateUser(r.Context(), params.ByName("username"))
	if err != nil {
		s.serverError(w, "resolving user", err)
		return
	}

	exists, err := s.subscriptions.IsSubscribed(r.Context(), userID, target)
	if err != nil {
		s.serverError(w, "checking subscription", err)
		return
	}
	if exists {
		s.sendJSON(w, http.StatusOK, map[string]string{"status": "already subscribed"})
		return
	}

	if err := s.subscriptions.Subscribe(r.Context(), userID, target); err != nil {
		s.serverError(w, "creating subscription", err)
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	subscriptionID, err := strconv.ParseInt(params.ByName("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid subscription id", http.StatusBadRequest)
		return
	}

	userID, err := s.subscriptions.GetOrCreateUser(r.Context(), params.ByName("username"))
	if err != nil {
		s.serverError(w, "resolving user", err)
		return
	}

	if err := s.subscriptions.Unsubscribe(r.Context(), subscriptionID, userID); err != nil {
		s.serverError(w, "deleting subscription", err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, action string, err error) {
	s.logger.Error("Request failed", "action", action, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func targetKindName(kind models.TargetKind) string {
	if kind == models.TargetRoute {
		return "route"
	}
	return "stop"
}
