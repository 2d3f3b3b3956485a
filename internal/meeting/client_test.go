package meeting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/pkg/config"
)

func testClient(baseURL string, retries int) *Client {
	return NewClient(config.MeetingConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		MaxRetries: retries,
	}, zap.NewNop())
}

func TestClientProvisionSuccess(t *testing.T) {
	var received ProvisionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/rooms", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Room{
			Reference: "room-42",
			HostURL:   "https://rooms.example/host/42",
			JoinArtifacts: []JoinArtifact{
				{ParticipantID: "student-1", JoinURL: "https://rooms.example/join/1"},
			},
		})
	}))
	defer server.Close()

	client := testClient(server.URL, 1)
	room, err := client.Provision(context.Background(), ProvisionRequest{
		SessionID:       "sess-1",
		BatchID:         "batch-1",
		Subject:         "physics",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "room-42", room.Reference)
	assert.Len(t, room.JoinArtifacts, 1)
	assert.Equal(t, "sess-1", received.SessionID)
}

func TestClientProvisionRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Room{Reference: "room-42"})
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	room, err := client.Provision(context.Background(), ProvisionRequest{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, "room-42", room.Reference)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientProvisionDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	_, err := client.Provision(context.Background(), ProvisionRequest{SessionID: "sess-1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientProvisionRejectsEmptyReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Room{})
	}))
	defer server.Close()

	client := testClient(server.URL, 1)
	_, err := client.Provision(context.Background(), ProvisionRequest{SessionID: "sess-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty room reference")
}
