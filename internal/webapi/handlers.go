package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/dynlab/dynlab/internal/report"
	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/statistics"
	"github.com/dynlab/dynlab/internal/turns"
)

// Version is set at build time or defaults to dev.
var Version = "dev"

// maxBodyBytes bounds POST /api/analyze payloads.
const maxBodyBytes = 8 << 20

// Defaults are the analysis settings applied when a request omits them.
type Defaults struct {
	Params stability.Params
	Scope  turns.Scope
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	store    ThreadStore
	defaults Defaults
}

// NewHandlers creates a new Handlers with the given store and defaults.
func NewHandlers(store ThreadStore, defaults Defaults) *Handlers {
	if defaults.Scope == "" {
		defaults.Scope = turns.ScopeGPT
	}
	return &Handlers{store: store, defaults: defaults}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleThreads lists the configured threads.
func (h *Handlers) HandleThreads(w http.ResponseWriter, _ *http.Request) {
	threads, err := h.store.ListThreads()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

// HandleThreadAnalysis analyzes a configured thread. Query parameters
// window, sigma, persist, k and scope override the defaults.
func (h *Handlers) HandleThreadAnalysis(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "thread name is required")
		return
	}

	p, scope, err := h.decodeSettings(queryMap(r.URL.Query()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	th, err := h.store.GetThread(name)
	if err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "thread not found")
		} else {
			slog.Error("loading thread failed", "name", name, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.analyze(w, th.Name, th.Turns, p, scope)
}

// HandleAnalyze analyzes turns supplied in the request body.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	settings := make(map[string]any, len(req.Params)+1)
	for k, v := range req.Params {
		settings[k] = v
	}
	if req.Scope != "" {
		settings["scope"] = req.Scope
	}
	p, scope, err := h.decodeSettings(settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := req.Name
	if name == "" {
		name = "request"
	}
	h.analyze(w, name, req.Turns, p, scope)
}

func (h *Handlers) analyze(w http.ResponseWriter, name string, rows []turns.Turn, p stability.Params, scope turns.Scope) {
	a, err := stability.Analyze(turns.ToSeries(turns.Filter(rows, scope)), p)
	if err != nil {
		if errors.Is(err, stability.ErrInvalidParams) || errors.Is(err, stability.ErrInvalidSeries) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	resp := AnalysisResponse{
		Name:      name,
		Scope:     scope,
		Params:    a.Params,
		Turns:     len(a.Series),
		Found:     a.Result.Found,
		Stability: report.StabilityLine(a.Params, a.Result),
		Rows:      a.Rows(),
	}
	if a.Result.Found {
		onset := a.Result.Turn
		resp.Onset = &onset
	}
	if pl, ok := statistics.PlateauOf(a); ok {
		resp.Plateau = &pl
	}
	writeJSON(w, http.StatusOK, resp)
}

// settings is the decoding target for query strings and request params.
type settings struct {
	stability.Params `mapstructure:",squash"`
	Scope            string `mapstructure:"scope"`
}

// decodeSettings overlays input onto the defaults. Values are weakly typed so
// query strings ("25") and JSON numbers both decode; unknown keys are errors.
func (h *Handlers) decodeSettings(input map[string]any) (stability.Params, turns.Scope, error) {
	s := settings{Params: h.defaults.Params, Scope: string(h.defaults.Scope)}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &s,
	})
	if err != nil {
		return stability.Params{}, "", err
	}
	if err := dec.Decode(input); err != nil {
		return stability.Params{}, "", fmt.Errorf("invalid parameters: %w", err)
	}
	scope, err := turns.ParseScope(s.Scope)
	if err != nil {
		return stability.Params{}, "", err
	}
	return s.Params, scope, nil
}

func queryMap(q url.Values) map[string]any {
	m := make(map[string]any, len(q))
	for k, v := range q {
		if len(v) > 0 {
			m[strings.ToLower(k)] = v[0]
		}
	}
	return m
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, store ThreadStore, defaults Defaults) {
	h := NewHandlers(store, defaults)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /api/threads", h.HandleThreads)
	mux.HandleFunc("GET /api/threads/{name}/analysis", h.HandleThreadAnalysis)
	mux.HandleFunc("POST /api/analyze", h.HandleAnalyze)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
