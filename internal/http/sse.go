package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hperssn/kioskcheck/internal/logger"
	"github.com/hperssn/kioskcheck/internal/runner"
)

// EventSource hands out the update stream of a session.
type EventSource interface {
	Events(id string) (<-chan runner.Update, bool)
}

// StreamSessionEvents writes session updates as SSE frames. The stream ends
// after the navigate update, when the client goes away, or when the session
// is dropped.
func StreamSessionEvents(source EventSource, log *slog.Logger) http.HandlerFunc {
	log = logger.OrDefault(log).With(logger.Component("sse"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		events, ok := source.Events(id)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case update, ok := <-events:
				if !ok {
					return
				}

				data, err := json.Marshal(update)
				if err != nil {
					log.Error("failed to encode update", logger.Error(err), logger.SessionID(id))
					continue
				}
				w.Write([]byte("event: " + string(update.Kind) + "\n"))
				w.Write([]byte("data: "))
				w.Write(data)
				w.Write([]byte("\n\n"))

				flusher.Flush()

				if update.Kind == runner.UpdateNavigate {
					return
				}

			case <-r.Context().Done():
				return
			}
		}
	}
}
