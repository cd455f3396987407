//go:build e2e

// Package e2e_test exercises a running gateway seeded with
// cmd/seed/testdata/fixtures.yaml. Set E2E_BASE_URL to point elsewhere.
package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	e2eUser     = "demo-user"
	e2eApp      = "com.insightify.notes"
	httpTimeout = 15 * time.Second
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func baseURL() string { return getenv("E2E_BASE_URL", "http://localhost:8080") }

// waitForAppReady polls /readyz until it answers 200 or timeout elapses.
func waitForAppReady(t *testing.T, client *http.Client, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL() + "/readyz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("app not ready after %s", timeout)
}

// doJSON sends body as JSON for user and decodes the response into a map.
// A 429 is retried a few times with a short pause.
func doJSON(t *testing.T, client *http.Client, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	var status int
	var out map[string]any
	for i := 0; i < 4; i++ {
		req, err := http.NewRequest(method, baseURL()+path, bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if user != "" {
			req.Header.Set("X-User-Id", user)
		}
		if key := os.Getenv("E2E_ADMIN_KEY"); key != "" {
			req.Header.Set("X-Admin-Key", key)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		status = resp.StatusCode
		out = map[string]any{}
		if len(b) > 0 {
			require.NoError(t, json.Unmarshal(b, &out), string(b))
		}
		if status != http.StatusTooManyRequests {
			break
		}
		time.Sleep(2 * time.Second)
	}
	return status, out
}
