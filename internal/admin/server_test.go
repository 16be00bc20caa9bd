package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/logging"
	"parley/internal/orchestrator"
	"parley/internal/session"
)

type stubHandle struct {
	sess *session.Session
}

func (h *stubHandle) Session() *session.Session           { return h.sess }
func (h *stubHandle) Close(context.Context, string) error { return nil }

type fakeLauncher struct {
	rooms []string
	err   error
}

func (l *fakeLauncher) Launch(_ context.Context, roomID, _ string) error {
	l.rooms = append(l.rooms, roomID)
	return l.err
}

func newTestServer(t *testing.T, registry *session.Registry, launcher Launcher) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	orchestrator.MustNewMetrics(reg).IncActiveSessions()
	if launcher == nil {
		launcher = &fakeLauncher{}
	}
	return NewServer(DefaultServerConfig(), registry, launcher, reg, logging.Nop())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, session.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestSessionsListsLiveIDs(t *testing.T) {
	registry := session.NewRegistry()
	registry.Insert(&stubHandle{sess: &session.Session{ID: "room-b"}})
	registry.Insert(&stubHandle{sess: &session.Session{ID: "room-a"}})
	srv := newTestServer(t, registry, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"room-a", "room-b"}, resp.Sessions)
}

func TestLaunchSession(t *testing.T) {
	launcher := &fakeLauncher{}
	srv := newTestServer(t, session.NewRegistry(), launcher)

	body := strings.NewReader(`{"room":"room-9","metadata":""}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"room-9"}, launcher.rooms)
}

func TestLaunchSessionRejectsMissingRoom(t *testing.T) {
	srv := newTestServer(t, session.NewRegistry(), nil)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLaunchSessionFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("no config")}
	srv := newTestServer(t, session.NewRegistry(), launcher)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"room":"room-9"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, session.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "parley_sessions_active")
}
