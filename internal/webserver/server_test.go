package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/turns"
	"github.com/dynlab/dynlab/internal/webapi"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anchor.csv")
	require.NoError(t, os.WriteFile(path, []byte("turn,speaker,tokens_est\n1,gpt,5\n2,gpt,5\n3,gpt,5\n"), 0o644))

	srv, err := New(Config{
		Store: webapi.NewFileStore(map[string]string{"anchor": path}),
		Defaults: webapi.Defaults{
			Params: stability.Params{Window: 2, SigmaThreshold: 1, PersistLength: 2, BandK: 1},
			Scope:  turns.ScopeGPT,
		},
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.ErrorContains(t, err, "thread store is required")

	_, err = New(Config{Port: 70000, Store: webapi.NewFileStore(nil)})
	require.ErrorContains(t, err, "invalid port")

	srv, err := New(Config{Store: webapi.NewFileStore(nil)})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", srv.Addr())
}

func TestHealthEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/api/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestThreadAnalysisEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/api/threads/anchor/analysis")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body webapi.AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Found)
	assert.Equal(t, 3, body.Turns)
}

func TestCORSApplied(t *testing.T) {
	h := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/threads", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()

	get(t, h, "/api/threads")
	get(t, h, "/api/threads/anchor/analysis")
	get(t, h, "/api/threads/missing/analysis")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `dynlab_http_requests_total{method="GET",route="GET /api/threads",status="200"} 1`)
	assert.Contains(t, body, `dynlab_http_requests_total{method="GET",route="GET /api/threads/{name}/analysis",status="200"} 1`)
	assert.Contains(t, body, `dynlab_http_requests_total{method="GET",route="GET /api/threads/{name}/analysis",status="404"} 1`)
	assert.Contains(t, body, "dynlab_http_request_duration_seconds_bucket")
}

func TestMetricsIsolatedPerServer(t *testing.T) {
	// Each server owns its registry, so constructing two must not panic on
	// duplicate registration and counts must not leak between them.
	a := newTestServer(t).Handler()
	b := newTestServer(t).Handler()

	get(t, a, "/api/threads")
	rec := get(t, b, "/metrics")
	assert.NotContains(t, rec.Body.String(), `route="GET /api/threads",status="200"`)
}

func TestServe_GracefulShutdown(t *testing.T) {
	srv := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/api/health", ln.Addr().String())
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url) //nolint:noctx
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close() //nolint:errcheck
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"ok"`)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
