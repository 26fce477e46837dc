package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/enrolld/pkg/model"
)

func (s *Server) today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// handleCreateResource adds a resource to the pool.
// POST /api/v1/resources
func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		ID         string `json:"id"`
		Kind       string `json:"kind"`
		Ref        string `json:"ref"`
		DailyLimit int    `json:"daily_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	var fields []model.FieldError
	if req.Ref == "" {
		fields = append(fields, model.FieldError{Field: "ref", Message: "ref is required"})
	}
	kind := model.ResourceKind(req.Kind)
	if !kind.Known() {
		fields = append(fields, model.FieldError{Field: "kind", Message: "unknown resource kind " + req.Kind})
	}
	if req.DailyLimit == 0 {
		req.DailyLimit = s.config.DefaultDailyLimit
	}
	if req.DailyLimit <= 0 {
		fields = append(fields, model.FieldError{Field: "daily_limit", Message: "daily_limit must be positive"})
	}
	if len(fields) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid resource", fields...))
		return
	}

	res := &model.Resource{
		ID:         req.ID,
		Kind:       kind,
		Ref:        req.Ref,
		DailyLimit: req.DailyLimit,
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
	}
	if res.ID == "" {
		res.ID = "res_" + uuid.New().String()[:8]
	}

	if err := s.store.CreateResource(r.Context(), res); err != nil {
		respondError(w, reqID, http.StatusConflict, model.NewConflictError(err.Error()))
		return
	}

	s.logger.Info("resource added", "id", res.ID, "kind", res.Kind, "daily_limit", res.DailyLimit)
	respondCreated(w, reqID, res)
}

// handleListResources lists pool resources with today's usage counters.
// GET /api/v1/resources
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resources, err := s.store.ListResources(r.Context(), s.today())
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	respondOK(w, reqID, resources)
}

// handleGetResource returns one resource with today's usage.
// GET /api/v1/resources/{id}
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	res, err := s.store.GetResource(r.Context(), id, s.today())
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if res == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("resource", id))
		return
	}
	respondOK(w, reqID, res)
}

// handleUpdateResource patches a resource's enabled flag or daily limit.
// PATCH /api/v1/resources/{id}
//
// Disabling takes a resource out of rotation for future acquisitions
// without touching jobs that already bound it.
func (s *Server) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req struct {
		Enabled    *bool `json:"enabled"`
		DailyLimit *int  `json:"daily_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	res, err := s.store.GetResource(r.Context(), id, s.today())
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if res == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("resource", id))
		return
	}

	if req.Enabled != nil {
		res.Enabled = *req.Enabled
	}
	if req.DailyLimit != nil {
		if *req.DailyLimit <= 0 {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid resource",
					model.FieldError{Field: "daily_limit", Message: "daily_limit must be positive"}))
			return
		}
		res.DailyLimit = *req.DailyLimit
	}

	if err := s.store.UpdateResource(r.Context(), res); err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	s.logger.Info("resource updated", "id", res.ID, "enabled", res.Enabled, "daily_limit", res.DailyLimit)
	respondOK(w, reqID, res)
}

// handleResetUsage clears today's usage counters for the whole pool.
// POST /api/v1/resources/reset-usage
func (s *Server) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if err := s.pool.ResetDailyUsage(r.Context()); err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	s.logger.Info("daily usage reset", "day", s.today())
	respondOK(w, reqID, map[string]any{"day": s.today(), "reset": true})
}
