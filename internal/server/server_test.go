package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dramosoft/tabula-sync/internal/model"
	"github.com/dramosoft/tabula-sync/internal/server"
	"github.com/dramosoft/tabula-sync/internal/syncer"
)

func failingOpener(ctx context.Context) (syncer.Store, error) {
	return nil, model.NewStoreError("open", context.DeadlineExceeded)
}

func newStatusServer() *server.Server {
	orch := syncer.New(failingOpener, nil, syncer.Config{Interval: time.Hour}, zerolog.Nop())
	return server.New(&server.Config{Address: ":0"}, orch.Status())
}

func TestHealthz_NotRunning(t *testing.T) {
	srv := newStatusServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body["running"])
}

func TestHealthz_Running(t *testing.T) {
	orch := syncer.New(failingOpener, nil, syncer.Config{Interval: time.Hour}, zerolog.Nop())
	srv := server.New(&server.Config{Address: ":0"}, orch.Status())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	require.Eventually(t, func() bool {
		return orch.Status().Snapshot().Running
	}, 2*time.Second, 10*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatus_ReportsCyclesAndLastError(t *testing.T) {
	orch := syncer.New(failingOpener, nil, syncer.Config{Interval: time.Hour}, zerolog.Nop())
	srv := server.New(&server.Config{Address: ":0"}, orch.Status())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	require.Eventually(t, func() bool {
		return orch.Status().Snapshot().Cycles >= 1
	}, 2*time.Second, 10*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var snapshot syncer.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.GreaterOrEqual(t, snapshot.Cycles, 1)
	assert.Contains(t, snapshot.LastError, "store open")
}

func TestStatus_UnknownRouteIs404(t *testing.T) {
	srv := newStatusServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
