package parallel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospecthq/prospect-api/internal/config"
)

func newTestClient(t *testing.T, baseURL, webhookURL string) *Client {
	t.Helper()

	client, err := NewClient(config.ProcessorConfig{
		BaseURL:               baseURL,
		APIKey:                "test-key",
		Name:                  "base",
		RequestTimeoutSeconds: 5,
	}, webhookURL, nil)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(config.ProcessorConfig{}, "", nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCreateRun(t *testing.T) {
	t.Parallel()

	t.Run("dispatches with metadata and webhook registration", func(t *testing.T) {
		t.Parallel()

		companyID := uuid.New()
		var gotReq createRunRequest
		var gotAPIKey, gotBeta string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/tasks/runs", r.URL.Path)
			gotAPIKey = r.Header.Get("x-api-key")
			gotBeta = r.Header.Get("parallel-beta")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			_ = json.NewEncoder(w).Encode(map[string]string{"run_id": "r-1"})
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, "https://hooks.example/parallel")

		runID, err := client.CreateRun(context.Background(), companyID, "https://acme.example")
		require.NoError(t, err)

		assert.Equal(t, "r-1", runID)
		assert.Equal(t, "test-key", gotAPIKey)
		assert.Equal(t, webhookBetaHeader, gotBeta)
		assert.Equal(t, companyID.String(), gotReq.Metadata["company_id"])
		assert.Contains(t, gotReq.Input, "https://acme.example")
		assert.Equal(t, "base", gotReq.Processor)
		require.NotNil(t, gotReq.Webhook)
		assert.Equal(t, "https://hooks.example/parallel", gotReq.Webhook.URL)
		assert.Equal(t, []string{"task_run.status"}, gotReq.Webhook.EventTypes)
	})

	t.Run("skips webhook registration for non-https endpoint", func(t *testing.T) {
		t.Parallel()

		var gotReq createRunRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			assert.Empty(t, r.Header.Get("parallel-beta"))
			_ = json.NewEncoder(w).Encode(map[string]string{"run_id": "r-2"})
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, "http://localhost:8080/webhook")

		_, err := client.CreateRun(context.Background(), uuid.New(), "https://acme.example")
		require.NoError(t, err)
		assert.Nil(t, gotReq.Webhook)
	})

	t.Run("non-success response is an error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, "")

		_, err := client.CreateRun(context.Background(), uuid.New(), "https://acme.example")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})
}

func TestFetchResult(t *testing.T) {
	t.Parallel()

	t.Run("decodes output into typed view", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/tasks/runs/r-1/result", r.URL.Path)
			_, _ = w.Write([]byte(`{"output":{"content":{"executive_summary":"Acme makes widgets."}}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, "")

		output, err := client.FetchResult(context.Background(), "r-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme makes widgets.", output.ExecutiveSummary)
		assert.JSONEq(t, `{"content":{"executive_summary":"Acme makes widgets."}}`, string(output.Raw))
	})

	t.Run("non-success response propagates", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, "")

		_, err := client.FetchResult(context.Background(), "r-404")
		assert.Error(t, err)
	})

	t.Run("empty run ID rejected", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "http://unused.invalid", "")
		_, err := client.FetchResult(context.Background(), "")
		assert.ErrorIs(t, err, ErrMissingRunID)
	})
}

func TestGetRunStatus(t *testing.T) {
	t.Parallel()

	t.Run("completed", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/tasks/runs/r-1", r.URL.Path)
			_, _ = w.Write([]byte(`{"status":"completed"}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, "")

		status, err := client.GetRunStatus(context.Background(), "r-1")
		require.NoError(t, err)
		assert.Equal(t, RunStatusCompleted, status.Status)
		assert.Empty(t, status.ErrorMessage())
	})

	t.Run("failed with reason", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"failed","error":{"message":"timeout"}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, "")

		status, err := client.GetRunStatus(context.Background(), "r-1")
		require.NoError(t, err)
		assert.Equal(t, RunStatusFailed, status.Status)
		assert.Equal(t, "timeout", status.ErrorMessage())
	})
}
