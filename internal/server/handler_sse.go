package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/enrolld/pkg/model"
)

// handleSSEBatch streams batch progress events via Server-Sent Events.
// GET /api/v1/sse/batches/{id}
//
// The stream replays everything the batch has published so far, then
// follows live events until the batch finishes or the client disconnects.
func (s *Server) handleSSEBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reqID := RequestIDFromContext(r.Context())

	batch := s.batches.Get(id)
	if batch == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("batch", id))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	live, replay := batch.Subscribe()
	defer batch.Unsubscribe(live)

	for _, ev := range replay {
		if err := sendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
			s.logger.Debug("sse client disconnected", "batch_id", id)
			return
		}
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, open := <-live:
			if !open {
				// Batch finished; send the final snapshot and close.
				sendSSEEvent(w, flusher, "complete", batch.View())
				return
			}
			if err := sendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				s.logger.Debug("sse client disconnected", "batch_id", id)
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
