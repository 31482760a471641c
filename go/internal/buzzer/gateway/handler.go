package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/buzzer/go/internal/buzzer/registry"
	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
	"github.com/mcdev12/buzzer/go/internal/buzzer/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sessions is the registry surface the HTTP routes use
type Sessions interface {
	Create(name string, timerSeconds uint64) (session.ID, error)
	Lookup(id session.ID) (*session.Coordinator, error)
}

// SessionInfoResponse describes one live session
type SessionInfoResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Timer        uint64            `json:"timer"`
	Elapsed      uint64            `json:"elapsed"`
	Status       wire.Status       `json:"status"`
	Participants []ParticipantInfo `json:"participants"`
}

// ParticipantInfo is one roster entry in SessionInfoResponse
type ParticipantInfo struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

// Handler serves session creation, lookup and websocket upgrades
type Handler struct {
	sessions          Sessions
	connectionManager *ConnectionManager
	maxTimerSeconds   uint64
	maxNameLength     int
}

// NewHandler creates the HTTP handler. A zero maxTimerSeconds or
// maxNameLength leaves that input unbounded.
func NewHandler(sessions Sessions, cm *ConnectionManager, maxTimerSeconds uint64, maxNameLength int) *Handler {
	return &Handler{
		sessions:          sessions,
		connectionManager: cm,
		maxTimerSeconds:   maxTimerSeconds,
		maxNameLength:     maxNameLength,
	}
}

// Routes builds the chi router for every gateway endpoint
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(AccessLog)

	r.Get("/health", h.HandleHealth)
	r.Get("/create", h.HandleCreateSession)
	r.Get("/ws/stats", h.HandleConnectionStats)
	r.Route("/session/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGetSession)
		r.Get("/ws", h.HandleSessionConnection)
	})
	return r
}

// HandleCreateSession handles GET /create?name=&timer=
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if h.maxNameLength > 0 && len(name) > h.maxNameLength {
		http.Error(w, "name is too long", http.StatusBadRequest)
		return
	}

	timer, err := strconv.ParseUint(r.URL.Query().Get("timer"), 10, 64)
	if err != nil || timer == 0 {
		http.Error(w, "timer must be a positive number of seconds", http.StatusBadRequest)
		return
	}
	if h.maxTimerSeconds > 0 && timer > h.maxTimerSeconds {
		http.Error(w, "timer is too long", http.StatusBadRequest)
		return
	}

	id, err := h.sessions.Create(name, timer)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to create session")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/session/"+id.String(), http.StatusFound)
}

// HandleGetSession handles GET /session/{id}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	coordinator, ok := h.lookup(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	state, err := coordinator.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("session_id", coordinator.ID().String()).Msg("failed to get session state")
		http.Error(w, "failed to get session state", http.StatusInternalServerError)
		return
	}

	resp := SessionInfoResponse{
		ID:           state.ID.String(),
		Name:         state.Name,
		Timer:        uint64(state.Timer / time.Second),
		Elapsed:      uint64(state.Elapsed / time.Millisecond),
		Status:       state.Status,
		Participants: make([]ParticipantInfo, 0, len(state.Participants)),
	}
	for _, p := range state.Participants {
		resp.Participants = append(resp.Participants, ParticipantInfo{
			ID:      p.ID,
			Name:    p.Name,
			IsAdmin: p.ID == state.AdminID,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleSessionConnection handles GET /session/{id}/ws
func (h *Handler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	coordinator, ok := h.lookup(w, r)
	if !ok {
		return
	}

	// Upgrade the connection; on failure the upgrader has already replied
	if err := h.connectionManager.UpgradeConnection(w, r, coordinator.ID(), coordinator); err != nil {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Str("session_id", coordinator.ID().String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// lookup resolves the {id} path parameter, replying 400 or 404 when it cannot
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Coordinator, bool) {
	id, err := session.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return nil, false
	}

	coordinator, err := h.sessions.Lookup(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return nil, false
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("session_id", id.String()).Msg("failed to look up session")
		http.Error(w, "failed to look up session", http.StatusInternalServerError)
		return nil, false
	}
	return coordinator, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
