package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsure/shipsure/config"
	"github.com/shipsure/shipsure/internal/faults"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.True(t, faults.IsConfiguration(err))
}

func TestRunTests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/test-executions", r.URL.Path)
		assert.Equal(t, "Bearer sk-sandbox", r.Header.Get("Authorization"))

		var req runTestsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "octo", req.Owner)
		assert.Equal(t, 101, req.SourcePullRequest)
		assert.Equal(t, 140, req.TestsPullRequest)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "completed",
			"exitCode": 0,
			"output":   "5 passed in 1.2s",
			"generatedTests": []map[string]string{
				{"test": "test_login_rejects_bad_password", "code": "def test(): ...", "reason": "auth path"},
			},
		})
	}))
	defer srv.Close()
	t.Setenv(config.EnvSandboxAPIURL, srv.URL)

	client, err := NewClient("sk-sandbox")
	require.NoError(t, err)

	execution, err := client.RunTests(context.Background(), "octo", "widgets", 101, 140)
	require.NoError(t, err)
	assert.Equal(t, "completed", execution.Status)
	assert.Equal(t, 0, execution.ExitCode)
	require.Len(t, execution.GeneratedTests, 1)
	assert.Equal(t, "test_login_rejects_bad_password", execution.GeneratedTests[0].Test)
}

func TestRunTestsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workspace quota exceeded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	t.Setenv(config.EnvSandboxAPIURL, srv.URL)

	client, err := NewClient("sk-sandbox")
	require.NoError(t, err)

	_, err = client.RunTests(context.Background(), "octo", "widgets", 101, 140)
	require.Error(t, err)
	assert.True(t, faults.IsUpstream(err))
}
