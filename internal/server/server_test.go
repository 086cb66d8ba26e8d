package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/tourga/internal/config"
	"github.com/copyleftdev/tourga/internal/logging"
	"github.com/copyleftdev/tourga/internal/optimization/geography"
)

// testConfig creates a test configuration with small search defaults
func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stdout"

	cfg.Map = config.Map{Width: 100, Height: 100}
	cfg.Evolution = config.Evolution{
		PopulationSize:       12,
		Generations:          40,
		EliteAmount:          2,
		ShuffleChance:        0.01,
		SequentialSwapChance: 0.05,
		RandomSwapChance:     0.15,
		NumLocations:         6,
		Workers:              2,
		SnapshotInterval:     5,
		PollInterval:         5 * time.Millisecond,
	}
	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	return logging.New(logging.DebugLevel, io.Discard)
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	srv := NewServer(testConfig(t), testLogger(t))
	t.Cleanup(func() { _ = srv.Close() })

	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, reader))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), "body: %s", rr.Body.String())
	return out
}

func waitForStatus(t *testing.T, h http.Handler, id string, want ...string) map[string]interface{} {
	t.Helper()
	var last map[string]interface{}
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/api/v1/status/"+id, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		last = decode(t, rr)
		for _, w := range want {
			if last["status"] == w {
				return true
			}
		}
		return false
	}, 30*time.Second, 10*time.Millisecond)
	return last
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	assert.NotNil(t, srv, "Server should be created")
}

func TestRegisterRoutes(t *testing.T) {
	_, r := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/solve"},
		{"GET", "/api/v1/status/123"},
		{"GET", "/api/v1/solve/123/tour.png"},
		{"DELETE", "/api/v1/solve/123"},
		{"POST", "/rpc"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := do(t, r, tt.method, tt.path, nil)
			// Unknown ids answer 404 with a JSON body, unknown routes with plain text
			if rr.Code == http.StatusNotFound {
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			}
			assert.NotEqual(t, http.StatusMethodNotAllowed, rr.Code)
		})
	}

	rr := do(t, r, http.MethodGet, "/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSolveLifecycle(t *testing.T) {
	_, r := newTestServer(t)

	rr := do(t, r, http.MethodPost, "/api/v1/solve", map[string]interface{}{
		"num_locations": 7,
		"generations":   30,
		"workers":       2,
		"seed":          11,
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	started := decode(t, rr)
	assert.Equal(t, StatusPending, started["status"])
	id, ok := started["search_id"].(string)
	require.True(t, ok)

	status := waitForStatus(t, r, id, StatusCompleted)
	assert.Equal(t, float64(7), status["locations"])
	assert.Equal(t, float64(2), status["workers"])
	if status["state"] == "exhausted" {
		assert.Equal(t, 1.0, status["progress"])
	}
	assert.Equal(t, float64(0), status["invalid_candidates"])
	assert.Greater(t, status["best_distance"], 0.0)
	assert.NotEmpty(t, status["history"])
	assert.Contains(t, []interface{}{"exhausted", "collapsed"}, status["state"])

	route, ok := status["best_route"].([]interface{})
	require.True(t, ok)
	require.Len(t, route, 9)
	assert.Equal(t, geography.HomeName, route[0])
	assert.Equal(t, geography.HomeName, route[8])

	rr = do(t, r, http.MethodGet, "/api/v1/solve/"+id+"/tour.png", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	_, err := png.Decode(rr.Body)
	assert.NoError(t, err)

	// Finished searches cannot be cancelled
	rr = do(t, r, http.MethodDelete, "/api/v1/solve/"+id, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSolveDefaults(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/solve", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	status := waitForStatus(t, r, decode(t, rr)["search_id"].(string), StatusCompleted)
	assert.Equal(t, float64(6), status["locations"])
}

func TestSolveInvalidParams(t *testing.T) {
	_, r := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed body", body: "{"},
		{name: "elite not below population", body: `{"population_size": 4, "elite_amount": 4}`},
		{name: "negative workers", body: `{"workers": -1}`},
		{name: "more locations than names", body: `{"num_locations": 1000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/solve", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, decode(t, rr), "error")
		})
	}
}

func TestCancelSearch(t *testing.T) {
	_, r := newTestServer(t)

	rr := do(t, r, http.MethodPost, "/api/v1/solve", map[string]interface{}{
		"num_locations": 20,
		"generations":   10_000_000,
		"workers":       2,
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := decode(t, rr)["search_id"].(string)

	rr = do(t, r, http.MethodDelete, "/api/v1/solve/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	status := waitForStatus(t, r, id, StatusCancelled)
	assert.Equal(t, StatusCancelled, status["status"])

	rr = do(t, r, http.MethodDelete, "/api/v1/solve/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, r, http.MethodGet, "/api/v1/status/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, r, http.MethodGet, "/api/v1/solve/unknown/tour.png", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func rpc(t *testing.T, h http.Handler, method string, params ...interface{}) map[string]interface{} {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/rpc", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	return decode(t, rr)
}

func TestJSONRPC(t *testing.T) {
	_, r := newTestServer(t)

	resp := rpc(t, r, "search.start", map[string]interface{}{"generations": 20, "seed": 3})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	id := result["search_id"].(string)

	require.Eventually(t, func() bool {
		resp := rpc(t, r, "search.status", map[string]interface{}{"search_id": id})
		status, ok := resp["result"].(map[string]interface{})
		return ok && status["status"] == StatusCompleted
	}, 30*time.Second, 10*time.Millisecond)

	resp = rpc(t, r, "search.cancel", map[string]interface{}{"search_id": id})
	assert.Equal(t, float64(codeServerError), resp["error"].(map[string]interface{})["code"])

	resp = rpc(t, r, "search.status")
	assert.Equal(t, float64(codeInvalidParams), resp["error"].(map[string]interface{})["code"])

	resp = rpc(t, r, "search.start", map[string]interface{}{"workers": -2})
	assert.Equal(t, float64(codeInvalidParams), resp["error"].(map[string]interface{})["code"])

	resp = rpc(t, r, "search.unknown")
	assert.Equal(t, float64(codeMethodNotFound), resp["error"].(map[string]interface{})["code"])

	rr := do(t, r, http.MethodPost, "/rpc", map[string]interface{}{"jsonrpc": "1.0", "id": 5, "method": "search.start"})
	assert.Equal(t, float64(codeInvalidRequest), decode(t, rr)["error"].(map[string]interface{})["code"])

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("not json")))
	assert.Equal(t, float64(codeParseError), decode(t, rr)["error"].(map[string]interface{})["code"])
}

func TestClose(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))

	generations := 10_000_000
	_, err := srv.startSearch(SolveParams{Generations: &generations})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err, "Close should not return an error")
	case <-time.After(30 * time.Second):
		t.Fatal("Close did not stop running searches")
	}
}

func TestRespondWithError(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{
			name:       "valid error response",
			code:       codeInvalidParams,
			message:    "invalid input",
			id:         "123",
			expectedID: "123",
		},
		{
			name:       "nil id",
			code:       codeServerError,
			message:    "server error",
			id:         nil,
			expectedID: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			// JSON-RPC errors travel in a 200 response
			assert.Equal(t, http.StatusOK, rr.Code)

			response := decode(t, rr)
			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
}
