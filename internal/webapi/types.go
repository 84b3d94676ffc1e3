package webapi

import (
	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/statistics"
	"github.com/dynlab/dynlab/internal/turns"
)

// ThreadSummary is the API response for a single configured thread.
type ThreadSummary struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// AnalyzeRequest is the body of POST /api/analyze. Params uses the same keys
// as the analysis query string (window, sigma, persist, k); omitted keys fall
// back to the server defaults.
type AnalyzeRequest struct {
	Name   string         `json:"name"`
	Scope  string         `json:"scope"`
	Params map[string]any `json:"params"`
	Turns  []turns.Turn   `json:"turns"`
}

// AnalysisResponse is the result of analyzing one thread.
type AnalysisResponse struct {
	Name      string              `json:"name"`
	Scope     turns.Scope         `json:"scope"`
	Params    stability.Params    `json:"params"`
	Turns     int                 `json:"turns"`
	Found     bool                `json:"found"`
	Onset     *int                `json:"onset"`
	Stability string              `json:"stability"`
	Plateau   *statistics.Plateau `json:"plateau,omitempty"`
	Rows      []stability.Row     `json:"rows"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
