package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hperssn/kioskcheck/internal/domain"
	httpapi "github.com/hperssn/kioskcheck/internal/http"
	"github.com/hperssn/kioskcheck/internal/logger"
	"github.com/hperssn/kioskcheck/internal/runner"
	"github.com/hperssn/kioskcheck/internal/storage"
)

// ResultReader is the part of the result store the HTTP API reads.
type ResultReader interface {
	GetResult(sessionID string) (*storage.ResultRecord, error)
}

func newRouter(m *runner.SessionManager, results ResultReader, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(ExtractKioskMiddleware)

	r.Post("/sessions", startSession(m))
	r.Get("/sessions/{id}", getSession(m))
	r.Get("/sessions/{id}/status", getSessionStatus(m))
	r.Get("/sessions/{id}/events", httpapi.StreamSessionEvents(m, log))
	r.Post("/sessions/{id}/finalize", finalizeSession(m))
	r.Post("/sessions/{id}/stop", stopSession(m))
	r.Get("/results/{id}", getResult(results))

	return r
}

func startSession(m *runner.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FaceID string `json:"faceId"`
		}

		// An empty body is allowed; the missing identity fails at submit.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		session := domain.NewSession("", req.FaceID, GetKioskID(r))

		if err := m.StartSession(session); err != nil {
			respondError(w, err.Error(), http.StatusConflict)
			return
		}

		snapshot, ok := m.GetSession(session.ID)
		if !ok {
			respondError(w, "session not found", http.StatusNotFound)
			return
		}
		respondJSON(w, snapshot, http.StatusCreated)
	}
}

func getSession(m *runner.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		session, ok := m.GetSession(id)
		if !ok {
			respondError(w, "session not found", http.StatusNotFound)
			return
		}

		respondJSON(w, session, http.StatusOK)
	}
}

func getSessionStatus(m *runner.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		session, ok := m.GetSession(id)
		if !ok {
			respondError(w, "session not found", http.StatusNotFound)
			return
		}

		status := struct {
			ID             string       `json:"id"`
			Stage          domain.Stage `json:"stage"`
			StabilityCount int          `json:"stabilityCount"`
			Progress       float64      `json:"progress"`
			Submitted      bool         `json:"submitted"`
			Completed      bool         `json:"completed"`
		}{
			ID:             session.ID,
			Stage:          session.Stage,
			StabilityCount: session.StabilityCount,
			Progress:       session.Progress,
			Submitted:      session.Submitted,
			Completed:      session.Completed(),
		}

		respondJSON(w, status, http.StatusOK)
	}
}

func finalizeSession(m *runner.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := m.Finalize(r.Context(), id)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusAccepted)
		case errors.Is(err, runner.ErrSessionNotFound), errors.Is(err, runner.ErrRunnerStopped):
			respondError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, runner.ErrNotReady), errors.Is(err, runner.ErrSessionEnded):
			respondError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, runner.ErrMissingIdentity):
			respondError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			respondError(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func stopSession(m *runner.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := m.StopSession(id); err != nil {
			respondError(w, err.Error(), http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getResult(results ResultReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		record, err := results.GetResult(id)
		if errors.Is(err, storage.ErrResultNotFound) {
			respondError(w, "result not found", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to load result", logger.SessionID(id), logger.Error(err))
			respondError(w, "failed to load result", http.StatusInternalServerError)
			return
		}

		respondJSON(w, record, http.StatusOK)
	}
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", logger.Error(err))
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
