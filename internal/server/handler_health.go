package server

import (
	"net/http"
	"runtime"
	"time"
)

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "enrolld API",
		Version:     "v1",
		Description: "enrolld — resumable account provisioning with shared resource pools",
		Endpoints: []endpointInfo{
			{"/api/v1/accounts", []string{"GET", "POST"}, "Job record intake and listing"},
			{"/api/v1/accounts/{account_id}", []string{"GET"}, "Single account job record"},
			{"/api/v1/resources", []string{"GET", "POST"}, "Pool resource management"},
			{"/api/v1/resources/{id}", []string{"GET", "PATCH"}, "Single resource detail, enable/disable, limit changes"},
			{"/api/v1/resources/reset-usage", []string{"POST"}, "Reset today's usage counters for the whole pool"},
			{"/api/v1/batches", []string{"GET", "POST"}, "Batch run management"},
			{"/api/v1/batches/{id}", []string{"GET", "DELETE"}, "Batch results and cooperative stop"},
			{"/api/v1/sse/batches/{id}", []string{"GET"}, "Live batch progress via Server-Sent Events"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Store     string `json:"store"`
	Batches   int    `json:"batches"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     "sqlite",
		Batches:   len(s.batches.List()),
	})
}
