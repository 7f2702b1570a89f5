package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeBackend(t *testing.T, state string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "POST":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"session_id": "s1"})
		case "GET":
			// Same shape the real handler returns: an array of snapshots.
			json.NewEncoder(w).Encode([]SessionSnapshot{
				{SessionID: "s1", State: state},
			})
		}
	})
	mux.HandleFunc("/api/v1/sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SessionDetail{
			Session: SessionSnapshot{SessionID: "s1", State: state},
		})
	})
	mux.HandleFunc("/api/v1/sessions/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func TestClientSessionCalls(t *testing.T) {
	backend := newFakeBackend(t, StateNormal)
	defer backend.Close()

	client := NewClient(Config{BaseURL: backend.URL})
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	id, err := client.StartSession(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	sessions, err := client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].SessionID)

	detail, err := client.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateNormal, detail.Session.State)

	_, err = client.GetSession(ctx, "gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
}

func TestSessionGateBlocksRestrictedStates(t *testing.T) {
	protected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	fromHeader := func(r *http.Request) string { return r.Header.Get("X-Session-ID") }

	cases := []struct {
		state string
		opts  GateOptions
		want  int
	}{
		{StateNormal, GateOptions{}, http.StatusOK},
		{StateWatch, GateOptions{}, http.StatusOK},
		{StateWatch, GateOptions{BlockWatch: true}, http.StatusForbidden},
		{StateRestrict, GateOptions{}, http.StatusForbidden},
		{StateReauth, GateOptions{}, http.StatusForbidden},
	}

	for _, tc := range cases {
		backend := newFakeBackend(t, tc.state)
		client := NewClient(Config{BaseURL: backend.URL})
		gate := SessionGate(client, fromHeader, tc.opts, protected)

		req := httptest.NewRequest("GET", "/vault/secret", nil)
		req.Header.Set("X-Session-ID", "s1")
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, tc.want, rec.Code, "state %s", tc.state)
		backend.Close()
	}
}

func TestSessionGateRequiresSession(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:0"})
	gate := SessionGate(client, func(*http.Request) string { return "" }, GateOptions{}, nil)

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionGateFailClosedByDefault(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	gate := SessionGate(client, func(*http.Request) string { return "s1" }, GateOptions{}, nil)

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
