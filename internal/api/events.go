package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kdells/postflight/internal/model"
)

// handleStreamEvents streams per-task completion events for one request as
// SSE. The stream ends with a "done" event once every task of the request has
// reached a terminal state.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify the request registered tasks at all.
	recs, err := s.store.ListTasksByRequest(r.Context(), id)
	if err != nil {
		s.logger.Error("get tasks for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get tasks")
		return
	}
	if len(recs) == 0 {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// If every task is already terminal, return a closed stream immediately.
	if allFinished(recs) {
		w.WriteHeader(http.StatusOK)
		_ = writeSSEEvent(w, "done", "all tasks finished")
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe to the event stream. This is safe even if the last task
	// finished between the check above and this call — Subscribe on a closed
	// topic returns a closed channel, causing the loop below to exit
	// immediately.
	ch, unsub := s.dispatcher.Broker().Subscribe(id)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// Task set drained; send explicit done event before closing.
				_ = writeSSEEvent(w, "done", "all tasks finished")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("marshal task event", "error", err)
				continue
			}
			if err := writeSSEData(w, string(payload)); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// allFinished reports whether every task record is in a terminal state.
func allFinished(recs []*model.Task) bool {
	for _, t := range recs {
		if t.Status != model.StatusCompleted && t.Status != model.StatusFailed {
			return false
		}
	}
	return true
}

// writeSSEData writes a payload as an SSE data event.
func writeSSEData(w http.ResponseWriter, data string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
