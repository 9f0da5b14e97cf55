package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examflow/internal/i18n"
	"github.com/pavelanni/examflow/internal/model"
	"github.com/pavelanni/examflow/internal/session"
	"github.com/pavelanni/examflow/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *session.Manager
}

// New creates a new Handler.
func New(s *store.Store, m *session.Manager) *Handler {
	return &Handler{store: s, sessions: m}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/exams/{examID}/sessions", h.handleStartSession)
		r.Get("/exams/{examID}/items", h.handleListItems)
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{sessionID}", h.handleGetSession)
		r.Post("/sessions/{sessionID}/answers", h.handleSubmitAnswer)
		r.Post("/sessions/{sessionID}/finish", h.handleFinishSession)
		r.Get("/sessions/{sessionID}/report", h.handleGetReport)
		r.Get("/sessions/{sessionID}/topics", h.handleGetTopics)
		r.Post("/admin/items", h.handleUploadItems)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the session error taxonomy onto HTTP statuses with
// localized messages; anything unrecognized is a server error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{i18n.T(ctx, "SessionNotFound")})
	case errors.Is(err, session.ErrSessionCompleted):
		writeJSON(w, http.StatusConflict, errorResponse{i18n.T(ctx, "SessionCompleted")})
	case errors.Is(err, session.ErrItemNotInSession):
		writeJSON(w, http.StatusBadRequest, errorResponse{i18n.T(ctx, "ItemNotInSession")})
	case errors.Is(err, session.ErrItemAdvanced):
		writeJSON(w, http.StatusConflict, errorResponse{i18n.T(ctx, "ItemAdvanced")})
	case errors.Is(err, session.ErrNoItems):
		writeJSON(w, http.StatusBadRequest, errorResponse{i18n.T(ctx, "NoItems")})
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})
	}
}

type startSessionRequest struct {
	StudentID string `json:"student_id"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})
		return
	}
	if req.StudentID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{"student_id is required"})
		return
	}

	result, err := h.sessions.Start(r.Context(), examID, req.StudentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.store.GetSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, r, session.ErrSessionNotFound)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.store.GetSessionItems(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Session model.Session       `json:"session"`
		Items   []model.SessionItem `json:"items"`
	}{sess, items})
}

type submitAnswerRequest struct {
	ItemID int64  `json:"item_id"`
	Answer string `json:"answer"`
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})
		return
	}
	if req.ItemID == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"item_id is required"})
		return
	}

	result, err := h.sessions.Submit(r.Context(), sessionID, req.ItemID, req.Answer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	report, err := h.sessions.Finish(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	report, err := h.sessions.Report(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGetTopics(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	topics, err := h.store.GetTopicScores(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListSessionSummaries()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []model.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")

	var (
		items []model.Item
		err   error
	)
	if levelStr := r.URL.Query().Get("level"); levelStr != "" {
		level, convErr := strconv.Atoi(levelStr)
		if convErr != nil || !model.Level(level).Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{"invalid level"})
			return
		}
		items, err = h.store.ListItemsByExamAndLevel(examID, model.Level(level))
	} else {
		items, err = h.store.ListItems(examID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}
