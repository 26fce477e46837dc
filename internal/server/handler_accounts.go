package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/enrolld/pkg/model"
)

// handleCreateAccounts registers job records for a list of accounts.
// POST /api/v1/accounts
//
// Intake is idempotent per account: an account that already has a job
// record is reported back untouched instead of failing the whole request.
func (s *Server) handleCreateAccounts(w http.ResponseWriter, r *http.Request) {
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

	created := make([]string, 0, len(req.AccountIDs))
	existing := make([]string, 0)
	for _, id := range req.AccountIDs {
		if id == "" {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid account id",
					model.FieldError{Field: "account_ids", Message: "account id must not be empty"}))
			return
		}
		job, err := s.store.GetJob(r.Context(), id)
		if err != nil {
			respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
			return
		}
		if job != nil {
			existing = append(existing, id)
			continue
		}
		if err := s.store.CreateJob(r.Context(), model.NewJob(id)); err != nil {
			respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
			return
		}
		created = append(created, id)
	}

	s.logger.Info("accounts registered", "created", len(created), "existing", len(existing))
	respondCreated(w, reqID, map[string]any{
		"created":  created,
		"existing": existing,
	})
}

// handleListAccounts lists job records with optional status filtering.
// GET /api/v1/accounts?status=ERROR&limit=50&offset=0
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("status"); v != "" {
		if !model.JobStatus(v).Known() {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("unknown status",
					model.FieldError{Field: "status", Message: "unknown job status " + v}))
			return
		}
		opts.Status = v
	}
	opts.Clamp()

	jobs, total, err := s.store.ListJobs(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	respondList(w, reqID, jobs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

// handleGetAccount returns one account's job record.
// GET /api/v1/accounts/{accountID}
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "accountID")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("account", id))
		return
	}
	respondOK(w, reqID, job)
}
