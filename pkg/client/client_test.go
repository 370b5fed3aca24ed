package client

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
)

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	_, err := New("not-a-url")
	assert.Error(t, err)

	_, err = New("http://localhost:8080")
	assert.NoError(t, err)
}

func TestClient_RecordEventRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/matters/7/events", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var ev Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "GRT", ev.Code)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"event":  ev,
			"result": EngineResult{MatterID: 7, RulesMatched: 3, TasksCreated: 2},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	res, err := c.Matters().RecordEvent(context.Background(), 7, &Event{
		Code:      "GRT",
		EventDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.RulesMatched)
	assert.Equal(t, 2, res.TasksCreated)
}

func TestClient_DecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"code": "MAT_001", "message": "matter 99 not found"},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Matters().Get(context.Background(), 99)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "MAT_001", apiErr.Code)
	assert.Contains(t, apiErr.Message, "matter 99")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Matter{ID: 1, Caseref: "P1000DE"})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetry(3, time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)

	m, err := c.Matters().Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "P1000DE", m.Caseref)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetry(3, time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Matters().Get(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRenewalsClient_UpdateStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/renewals/step", r.URL.Path)

		var req struct {
			TaskIDs []int64 `json:"task_ids"`
			Actor   string  `json:"actor"`
			Step    *int    `json:"step"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Step)
		assert.Equal(t, 1, *req.Step)
		assert.Equal(t, "billing-bot", req.Actor)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(BatchResult{Success: true, Count: len(req.TaskIDs)})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	res, err := c.Renewals().UpdateStep(context.Background(), []int64{4, 5}, 1, "billing-bot")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
}
