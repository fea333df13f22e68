// ABOUTME: Admin HTTP handlers for registering, removing, and listing agents.
// ABOUTME: Routed with chi; /api is behind bearer-token auth.

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/2389/wordchain-gateway/internal/agent"
	"github.com/2389/wordchain-gateway/internal/auth"
	"github.com/2389/wordchain-gateway/internal/store"
)

// MinCredentialLength rejects values that cannot be real access tokens.
const MinCredentialLength = 20

const maxBodyBytes = 64 << 10

// Agents is the lifecycle surface of agent.Manager.
type Agents interface {
	Register(ctx context.Context, identity, credential string) (bool, error)
	Unregister(ctx context.Context, identity string) (bool, error)
	List() []agent.Info
	Running() int
}

// StatsSource reports registration counts.
type StatsSource interface {
	CredentialStats(ctx context.Context, since time.Time) (store.Stats, error)
}

// Handler serves the admin API.
type Handler struct {
	agents Agents
	stats  StatsSource
	logger *slog.Logger

	// Ready reports whether the process can play; nil means always ready.
	Ready func(ctx context.Context) error

	now func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(agents Agents, stats StatsSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		agents: agents,
		stats:  stats,
		logger: logger.With("component", "admin"),
		now:    time.Now,
	}
}

// Routes builds the router. A nil verifier disables authentication.
func (h *Handler) Routes(verifier auth.TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Get("/health/ready", h.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(verifier))
		r.Get("/agents", h.handleListAgents)
		r.Post("/agents", h.handleRegister)
		r.Delete("/agents/{identity}", h.handleUnregister)
		r.Get("/stats", h.handleStats)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready: " + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type registerRequest struct {
	Identity   string `json:"identity"`
	Credential string `json:"credential"`
}

type registerResponse struct {
	Identity   string `json:"identity"`
	Credential string `json:"credential"`
	Existed    bool   `json:"existed"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Identity = strings.TrimSpace(req.Identity)
	req.Credential = strings.TrimSpace(req.Credential)
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	if len(req.Credential) < MinCredentialLength {
		writeError(w, http.StatusBadRequest, "credential is too short")
		return
	}

	existed, err := h.agents.Register(r.Context(), req.Identity, req.Credential)
	if err != nil {
		h.logger.Error("register failed",
			"identity", req.Identity,
			"operator", auth.OperatorFromContext(r.Context()),
			"error", err,
		)
		switch {
		case errors.Is(err, agent.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, "shutting down")
		case errors.Is(err, agent.ErrStopTimeout):
			writeError(w, http.StatusConflict, "previous session is still stopping, retry shortly")
		default:
			writeError(w, http.StatusInternalServerError, "failed to register agent")
		}
		return
	}

	h.logger.Info("agent registered via API",
		"identity", req.Identity,
		"operator", auth.OperatorFromContext(r.Context()),
		"existed", existed,
	)

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, registerResponse{
		Identity:   req.Identity,
		Credential: agent.MaskCredential(req.Credential),
		Existed:    existed,
	})
}

func (h *Handler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(chi.URLParam(r, "identity"))

	existed, err := h.agents.Unregister(r.Context(), identity)
	if errors.Is(err, agent.ErrInvalidIdentity) {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	if err != nil {
		h.logger.Error("unregister failed", "identity", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to unregister agent")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	h.logger.Info("agent unregistered via API",
		"identity", identity,
		"operator", auth.OperatorFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, map[string]string{"removed": identity})
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": h.agents.List()})
}

type statsResponse struct {
	Total            int `json:"total"`
	NewToday         int `json:"new_today"`
	ReconnectedToday int `json:"reconnected_today"`
	Running          int `json:"running"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	st, err := h.stats.CredentialStats(r.Context(), midnight)
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Total:            st.Total,
		NewToday:         st.NewSince,
		ReconnectedToday: st.ReconnectedSince,
		Running:          h.agents.Running(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
