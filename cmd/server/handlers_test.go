package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/feed"
	"github.com/hperssn/kioskcheck/internal/logger"
	"github.com/hperssn/kioskcheck/internal/runner"
	"github.com/hperssn/kioskcheck/internal/storage"
)

// quietFeed accepts listeners and never sends anything.
type quietFeed string

func (f quietFeed) Name() string { return string(f) }

func (f quietFeed) Subscribe(context.Context, feed.Listener) (func(), error) {
	return func() {}, nil
}

type resultMap map[string]*storage.ResultRecord

func (m resultMap) GetResult(id string) (*storage.ResultRecord, error) {
	rec, ok := m[id]
	if !ok {
		return nil, storage.ErrResultNotFound
	}
	return rec, nil
}

func newTestServer(t *testing.T, results resultMap) (*httptest.Server, *runner.SessionManager) {
	t.Helper()

	m := runner.NewSessionManager(runner.Options{
		Table:  runner.DefaultTable(quietFeed(feed.SocketFeedName), quietFeed(feed.PushFeedName)),
		Logger: logger.Discard(),
	}, time.Minute)
	t.Cleanup(m.Close)

	srv := httptest.NewServer(newRouter(m, results, logger.Discard()))
	t.Cleanup(srv.Close)
	return srv, m
}

func createSession(t *testing.T, srv *httptest.Server, body, kiosk string) domain.Session {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/sessions", strings.NewReader(body))
	require.NoError(t, err)
	if kiosk != "" {
		req.Header.Set("X-Kiosk-ID", kiosk)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var s domain.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func TestStartSession(t *testing.T) {
	srv, m := newTestServer(t, resultMap{})

	s := createSession(t, srv, `{"faceId":"face-7"}`, "kiosk-lobby")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "face-7", s.FaceID)
	assert.Equal(t, "kiosk-lobby", s.KioskID)
	assert.Equal(t, domain.StageTemperature, s.Stage)

	_, ok := m.GetSession(s.ID)
	assert.True(t, ok)
}

func TestStartSession_DefaultsKiosk(t *testing.T) {
	srv, _ := newTestServer(t, resultMap{})

	s := createSession(t, srv, "", "")
	assert.Equal(t, devKioskID, s.KioskID)
	assert.Empty(t, s.FaceID)
}

func TestStartSession_BadBody(t *testing.T) {
	srv, _ := newTestServer(t, resultMap{})

	resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionStatusAndStop(t *testing.T) {
	srv, _ := newTestServer(t, resultMap{})
	s := createSession(t, srv, `{"faceId":"face-1"}`, "")

	resp, err := http.Get(srv.URL + "/sessions/" + s.ID + "/status")
	require.NoError(t, err)
	var status struct {
		Stage     domain.Stage `json:"stage"`
		Completed bool         `json:"completed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, domain.StageTemperature, status.Stage)
	assert.False(t, status.Completed)

	resp, err = http.Post(srv.URL+"/sessions/"+s.ID+"/stop", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/sessions/" + s.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFinalizeSession(t *testing.T) {
	srv, _ := newTestServer(t, resultMap{})
	s := createSession(t, srv, `{"faceId":"face-1"}`, "")

	tests := []struct {
		name     string
		id       string
		expected int
	}{
		{name: "measurement not complete", id: s.ID, expected: http.StatusConflict},
		{name: "unknown session", id: "missing", expected: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/sessions/"+tt.id+"/finalize", "", nil)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.expected, resp.StatusCode)
		})
	}
}

func TestGetResult(t *testing.T) {
	srv, _ := newTestServer(t, resultMap{
		"s-1": {SessionID: "s-1", Outcome: storage.OutcomeCompleted, AlcoholLevel: domain.Normal},
	})

	resp, err := http.Get(srv.URL + "/results/s-1")
	require.NoError(t, err)
	var rec storage.ResultRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, storage.OutcomeCompleted, rec.Outcome)

	resp, err = http.Get(srv.URL + "/results/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
