package webserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dynlab/dynlab/internal/webapi"
)

// registerRoutes sets up the API and metrics routes on the given mux.
func registerRoutes(mux *http.ServeMux, cfg Config, registry *prometheus.Registry) {
	webapi.RegisterRoutes(mux, cfg.Store, cfg.Defaults)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
