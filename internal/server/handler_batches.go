package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/enrolld/pkg/model"
)

// handleStartBatch launches a batch over the given accounts.
// POST /api/v1/batches
//
// Every account must already have a job record; accounts are not created
// implicitly so a typo in an id fails loudly here instead of producing a
// stray PENDING job.
func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		AccountIDs []string `json:"account_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if len(req.AccountIDs) == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "account_ids", Message: "at least one account id is required"}))
		return
	}

	for _, id := range req.AccountIDs {
		job, err := s.store.GetJob(r.Context(), id)
		if err != nil {
			respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
			return
		}
		if job == nil {
			respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("account", id))
			return
		}
	}

	batch, err := s.batches.Start(req.AccountIDs)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}

	respondCreated(w, reqID, batch.View())
}

// handleListBatches lists all batches known to this server process.
// GET /api/v1/batches
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	batches := s.batches.List()
	views := make([]BatchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, b.View())
	}
	respondOK(w, reqID, views)
}

// handleGetBatch returns a batch snapshot including per-account results.
// GET /api/v1/batches/{id}
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	batch := s.batches.Get(id)
	if batch == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("batch", id))
		return
	}
	respondOK(w, reqID, batch.View())
}

// handleStopBatch requests cooperative cancellation of a running batch.
// DELETE /api/v1/batches/{id}
func (s *Server) handleStopBatch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	batch := s.batches.Get(id)
	if batch == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("batch", id))
		return
	}

	view := batch.View()
	if view.State != BatchStateRunning {
		respondError(w, reqID, http.StatusConflict,
			model.NewConflictError("batch is not running (state "+string(view.State)+")"))
		return
	}

	batch.Stop()
	s.logger.Info("batch stop requested", "batch_id", id)
	respondOK(w, reqID, map[string]any{"id": id, "stop_requested": true})
}
