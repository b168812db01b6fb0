package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/parkplanner/geo"
	"github.com/wricardo/mcp-training/parkplanner/planner/codec"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
)

// maxImportSize bounds uploaded marker and plan files
const maxImportSize = 10 << 20

// ViewHub upgrades a request to a live view feed of one session.
// websocket.Hub implements it.
type ViewHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sessionID string, initial *engine.View)
}

// Server represents the REST API server
type Server struct {
	service service.PlannerService
	hub     ViewHub
	router  *mux.Router
	logger  zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new API server. hub may be nil, /ws then answers 503.
func NewServer(plannerService service.PlannerService, hub ViewHub, opts ...Option) *Server {
	s := &Server{
		service: plannerService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/view", s.handleGetView).Methods("GET")

	// Markers
	api.HandleFunc("/sessions/{id}/markers", s.handlePlaceMarker).Methods("POST")
	api.HandleFunc("/sessions/{id}/markers", s.handleClearMarkers).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/markers/{marker}", s.handleRemoveMarker).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/markers/{marker}/label", s.handleRenameMarker).Methods("PUT")
	api.HandleFunc("/sessions/{id}/markers/{marker}/category", s.handleRetypeMarker).Methods("PUT")
	api.HandleFunc("/sessions/{id}/markers/{marker}/position", s.handleMoveMarker).Methods("PUT")

	// Plan
	api.HandleFunc("/sessions/{id}/plan", s.handleAddToPlan).Methods("POST")
	api.HandleFunc("/sessions/{id}/plan", s.handleClearPlan).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/plan/save", s.handleSavePlan).Methods("POST")
	api.HandleFunc("/sessions/{id}/plan/{marker}", s.handleRemoveFromPlan).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/plan/{marker}/move", s.handleMovePlanItem).Methods("POST")

	// View
	api.HandleFunc("/sessions/{id}/mode", s.handleSetMode).Methods("PUT")
	api.HandleFunc("/sessions/{id}/filter", s.handleSetFilter).Methods("PUT")

	// Files
	api.HandleFunc("/sessions/{id}/export/markers", s.handleExportMarkers).Methods("GET")
	api.HandleFunc("/sessions/{id}/export/plan", s.handleExportPlan).Methods("GET")
	api.HandleFunc("/sessions/{id}/export/geojson", s.handleExportGeoJSON).Methods("GET")
	api.HandleFunc("/sessions/{id}/import/markers", s.handleImportMarkers).Methods("POST")
	api.HandleFunc("/sessions/{id}/import/plan", s.handleImportPlan).Methods("POST")
	api.HandleFunc("/sessions/{id}/defaults", s.handleLoadDefaults).Methods("POST")

	// Parks
	api.HandleFunc("/parks", s.handleListParks).Methods("GET")
	api.HandleFunc("/parks/{name}", s.handleGetPark).Methods("GET")
	api.HandleFunc("/parks/{name}/tiles", s.handleTilePlan).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message, "code": status})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, engine.ErrNotFound),
		errors.Is(err, engine.ErrUnknownMarker),
		errors.Is(err, config.ErrConfigNotFound):
		return http.StatusNotFound
	case engine.IsValidationError(err),
		errors.Is(err, engine.ErrInvalidPosition),
		errors.Is(err, engine.ErrInvalidCategory),
		errors.Is(err, engine.ErrInvalidMode),
		errors.Is(err, engine.ErrInvalidFilter),
		errors.Is(err, geo.ErrInvalidZoom),
		errors.Is(err, geo.ErrTooManyTiles):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrPersistenceUnavailable),
		errors.Is(err, engine.ErrResourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	respondError(w, status, err.Error())
}

// decode reads a JSON body into v. An empty body leaves v untouched when optional.
func decode(r *http.Request, v any, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return errors.New("request body required")
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	return err
}

// action runs a gesture and writes its result, logging it the way the
// status bar would show it.
func (s *Server) action(w http.ResponseWriter, r *http.Request, op string, fn func(sessionID string) (*service.ActionResult, error)) {
	sessionID := mux.Vars(r)["id"]
	result, err := fn(sessionID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info().Str("op", op).Str("session", sessionID).Bool("success", result.Success).Msg(result.Message)
	respondJSON(w, http.StatusOK, result)
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Park string `json:"park,omitempty"`
	}
	if err := decode(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.service.CreateSession(r.Context(), req.Park)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetView(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// Marker Handlers

func (s *Server) handlePlaceMarker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat      *float64 `json:"lat"`
		Lng      *float64 `json:"lng"`
		Label    string   `json:"label,omitempty"`
		Category string   `json:"category,omitempty"`
	}
	if err := decode(r, &req, false); err != nil || req.Lat == nil || req.Lng == nil {
		respondError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	s.action(w, r, "place_marker", func(id string) (*service.ActionResult, error) {
		return s.service.PlaceMarker(r.Context(), id, service.PlaceMarkerRequest{
			Lat:      *req.Lat,
			Lng:      *req.Lng,
			Label:    req.Label,
			Category: req.Category,
		})
	})
}

func (s *Server) handleRenameMarker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.action(w, r, "rename_marker", func(id string) (*service.ActionResult, error) {
		return s.service.RenameMarker(r.Context(), id, mux.Vars(r)["marker"], req.Label)
	})
}

func (s *Server) handleRetypeMarker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.action(w, r, "retype_marker", func(id string) (*service.ActionResult, error) {
		return s.service.RetypeMarker(r.Context(), id, mux.Vars(r)["marker"], req.Category)
	})
}

func (s *Server) handleMoveMarker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := decode(r, &req, false); err != nil || req.Lat == nil || req.Lng == nil {
		respondError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	s.action(w, r, "move_marker", func(id string) (*service.ActionResult, error) {
		return s.service.MoveMarker(r.Context(), id, mux.Vars(r)["marker"], engine.Position{Lat: *req.Lat, Lng: *req.Lng})
	})
}

func (s *Server) handleRemoveMarker(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "remove_marker", func(id string) (*service.ActionResult, error) {
		return s.service.RemoveMarker(r.Context(), id, mux.Vars(r)["marker"])
	})
}

func (s *Server) handleClearMarkers(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "clear_markers", func(id string) (*service.ActionResult, error) {
		return s.service.ClearMarkers(r.Context(), id)
	})
}

// Plan Handlers

func (s *Server) handleAddToPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MarkerID string `json:"marker_id"`
	}
	if err := decode(r, &req, false); err != nil || req.MarkerID == "" {
		respondError(w, http.StatusBadRequest, "marker_id is required")
		return
	}

	s.action(w, r, "add_to_plan", func(id string) (*service.ActionResult, error) {
		return s.service.AddToPlan(r.Context(), id, req.MarkerID)
	})
}

func (s *Server) handleRemoveFromPlan(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "remove_from_plan", func(id string) (*service.ActionResult, error) {
		return s.service.RemoveFromPlan(r.Context(), id, mux.Vars(r)["marker"])
	})
}

// handleMovePlanItem takes either a delta ({"delta": -1}) or a drop target
// ({"target_id": "m3"}).
func (s *Server) handleMovePlanItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta    int    `json:"delta,omitempty"`
		TargetID string `json:"target_id,omitempty"`
	}
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if (req.Delta == 0) == (req.TargetID == "") {
		respondError(w, http.StatusBadRequest, "exactly one of delta or target_id is required")
		return
	}

	markerID := mux.Vars(r)["marker"]
	s.action(w, r, "move_plan_item", func(id string) (*service.ActionResult, error) {
		if req.TargetID != "" {
			return s.service.MovePlanItemTo(r.Context(), id, markerID, req.TargetID)
		}
		return s.service.MovePlanItem(r.Context(), id, markerID, req.Delta)
	})
}

func (s *Server) handleClearPlan(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "clear_plan", func(id string) (*service.ActionResult, error) {
		return s.service.ClearPlan(r.Context(), id)
	})
}

func (s *Server) handleSavePlan(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "save_plan", func(id string) (*service.ActionResult, error) {
		return s.service.SavePlan(r.Context(), id)
	})
}

// View Handlers

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.action(w, r, "set_mode", func(id string) (*service.ActionResult, error) {
		return s.service.SetMode(r.Context(), id, req.Mode)
	})
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter string `json:"filter"`
	}
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.action(w, r, "set_filter", func(id string) (*service.ActionResult, error) {
		return s.service.SetFilter(r.Context(), id, req.Filter)
	})
}

// File Handlers

// respondFile writes an export as a download
func respondFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleExportMarkers(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.ExportMarkers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := codec.Encode(doc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondFile(w, "application/json", codec.MarkersFileName, data)
}

func (s *Server) handleExportPlan(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.ExportPlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := codec.Encode(doc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondFile(w, "application/json", codec.PlanFileName, data)
}

func (s *Server) handleExportGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportGeoJSON(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondFile(w, "application/geo+json", codec.GeoJSONFileName, data)
}

func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "Import file too large")
		return nil, false
	}
	return data, true
}

// handleImportMarkers takes the marker file as the raw body.
// ?clear=false merges into the existing markers.
func (s *Server) handleImportMarkers(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}
	clearFirst := r.URL.Query().Get("clear") != "false"

	result, err := s.service.ImportMarkers(r.Context(), mux.Vars(r)["id"], data, clearFirst)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondImport(w, r, "import_markers", result)
}

func (s *Server) handleImportPlan(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}

	result, err := s.service.ImportPlan(r.Context(), mux.Vars(r)["id"], data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondImport(w, r, "import_plan", result)
}

// respondImport answers 422 for a rejected document, the body still carries the view
func (s *Server) respondImport(w http.ResponseWriter, r *http.Request, op string, result *service.ImportResult) {
	s.logger.Info().Str("op", op).Str("session", mux.Vars(r)["id"]).Bool("success", result.Success).Msg(result.Message)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

func (s *Server) handleLoadDefaults(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.LoadDefaults(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Park Handlers

func (s *Server) handleListParks(w http.ResponseWriter, r *http.Request) {
	parks, err := s.service.ListParks(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, parks)
}

func (s *Server) handleGetPark(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(mux.Vars(r)["name"], ".json")

	park, err := s.service.GetPark(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, park)
}

// handleTilePlan accepts ?zoom=15,16 and ?urls=true
func (s *Server) handleTilePlan(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var zooms []int
	if raw := query.Get("zoom"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			z, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid zoom %q", part))
				return
			}
			zooms = append(zooms, z)
		}
	}
	includeURLs, _ := strconv.ParseBool(query.Get("urls"))

	plan, err := s.service.TilePlan(r.Context(), mux.Vars(r)["name"], zooms, includeURLs)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, plan)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if s.hub == nil {
		http.Error(w, "live updates are not enabled", http.StatusServiceUnavailable)
		return
	}

	view, err := s.service.GetView(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", statusFor(err))
		return
	}

	s.hub.ServeWS(w, r, sessionID, view)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
