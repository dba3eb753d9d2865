package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/agentbrowser/viewer/internal/coordinator"
	"github.com/agentbrowser/viewer/internal/executor"
	"github.com/agentbrowser/viewer/internal/live"
	"github.com/agentbrowser/viewer/internal/nlp"
	"github.com/agentbrowser/viewer/internal/ratelimit"
	"github.com/agentbrowser/viewer/internal/screenshot"
	"github.com/agentbrowser/viewer/internal/store"
	"github.com/agentbrowser/viewer/pkg/models"
)

// Handler holds dependencies for the REST surface.
type Handler struct {
	store      *store.Store
	live       *live.State
	coord      *coordinator.Coordinator
	files      *screenshot.Files
	runner     executor.Runner
	translator *nlp.Translator
	limiter    *ratelimit.Limiter
	log        *zap.SugaredLogger
}

// NewHandler creates the REST handler.
func NewHandler(
	st *store.Store,
	lv *live.State,
	coord *coordinator.Coordinator,
	files *screenshot.Files,
	runner executor.Runner,
	translator *nlp.Translator,
	limiter *ratelimit.Limiter,
	log *zap.SugaredLogger,
) *Handler {
	return &Handler{
		store:      st,
		live:       lv,
		coord:      coord,
		files:      files,
		runner:     runner,
		translator: translator,
		limiter:    limiter,
		log:        log,
	}
}

// Hook handles POST /api/hook: find-or-create the named session, run the
// command through the full execution protocol, report the outcome.
func (h *Handler) Hook(w http.ResponseWriter, r *http.Request) {
	var req models.HookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Command == "" {
		respondError(w, http.StatusBadRequest, "command is required")
		return
	}
	if req.SessionName == "" {
		respondError(w, http.StatusBadRequest, "sessionName is required")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(req.SessionName) {
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded for session "+req.SessionName)
		return
	}

	resp, err := h.coord.RunHook(r.Context(), req.SessionName, req.Command, models.SessionSource(req.Source))
	if err != nil {
		h.log.Errorw("hook command failed", "session", req.SessionName, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// ListSessions handles GET /api/sessions, with optional ?q= substring
// search against names and formatted creation dates.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	var (
		sessions []models.SessionSummary
		err      error
	)
	if query != "" {
		sessions, err = h.store.SearchSessions(r.Context(), query)
	} else {
		sessions, err = h.store.ListSessions(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	source := models.SessionSource(req.Source)
	if source != models.SourceChat && source != models.SourceCron {
		source = models.SourceViewer
	}

	session, err := h.store.CreateSession(r.Context(), req.Name, source)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"session": session})
}

// GetSession handles GET /api/sessions/{id}, returning the session and
// its full action history in replay order.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if session == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	actions, err := h.store.GetSessionActions(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session": session, "actions": actions})
}

// UpdateSession handles PATCH /api/sessions/{id}.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var update models.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := h.store.UpdateSession(r.Context(), id, update)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !updated {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session": session})
}

// DeleteSession handles DELETE /api/sessions/{id}: removes the session's
// screenshot subtree, hard-deletes the row (actions cascade), and drops
// the live active pointer if it referenced the deleted session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.files.DeleteSession(id); err != nil {
		h.log.Warnw("failed to delete screenshot directory", "session", id, "error", err)
	}

	deleted, err := h.store.DeleteSession(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	if h.live.ActiveSessionID() == id {
		h.live.SetActiveSession("")
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Screenshot handles GET /api/screenshots/{sessionId}/{filename}. Paths
// resolving outside the screenshot root are rejected, never served.
func (h *Handler) Screenshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	path, err := h.files.Open(vars["sessionId"], vars["filename"])
	if errors.Is(err, screenshot.ErrOutsideRoot) {
		respondError(w, http.StatusForbidden, "forbidden")
		return
	}
	if os.IsNotExist(err) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, path)
}

// Status handles GET /api/status, a point-in-time snapshot of the live
// state for non-realtime polling.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.live.Status()
	respondJSON(w, http.StatusOK, map[string]any{
		"isOpen":       status.IsOpen,
		"currentUrl":   status.CurrentURL,
		"pageTitle":    status.PageTitle,
		"actionsCount": h.live.ActionCount(),
	})
}

// Command handles POST /api/command: one raw CLI invocation with no
// session bookkeeping.
func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Command == "" {
		respondError(w, http.StatusBadRequest, "command is required")
		return
	}

	res := h.runner.Execute(r.Context(), req.Command)
	respondJSON(w, http.StatusOK, map[string]string{
		"stdout": res.Stdout,
		"stderr": res.Stderr,
	})
}

// NLP handles POST /api/nlp: translate a natural-language instruction
// into a CLI command, short-circuiting inputs that already are one.
func (h *Handler) NLP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input    string `json:"input"`
		Snapshot string `json:"snapshot,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Input == "" {
		respondError(w, http.StatusBadRequest, "input is required")
		return
	}

	result, err := h.translator.Translate(r.Context(), req.Input, req.Snapshot)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
