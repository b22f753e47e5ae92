package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/formsync/pkg/api/handlers"
	"github.com/marmos91/formsync/pkg/metrics"
)

type staticSource struct {
	status *handlers.Status
	err    error
}

func (s staticSource) Status(context.Context) (*handlers.Status, error) {
	return s.status, s.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := get(t, NewRouter(nil), "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, map[string]any{"service": "formsync"}, resp.Data)
}

func TestStatus(t *testing.T) {
	source := staticSource{status: &handlers.Status{
		Online:  true,
		Pending: handlers.PendingStatus{Count: 2, Failed: 1},
		Drafts:  handlers.DraftStatus{Synced: 3, Unsynced: 1},
	}}
	w := get(t, NewRouter(source), "/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Status string          `json:"status"`
		Data   handlers.Status `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Online)
	assert.Equal(t, 2, resp.Data.Pending.Count)
	assert.Equal(t, 3, resp.Data.Drafts.Synced)
}

func TestStatusUnavailable(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, get(t, NewRouter(nil), "/status").Code)

	w := get(t, NewRouter(staticSource{err: errors.New("store closed")}), "/status")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "store closed")
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Reset()
	assert.Equal(t, http.StatusNotFound, get(t, NewRouter(nil), "/metrics").Code)

	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)
	w := get(t, NewRouter(nil), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestServerServeAndStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ServerConfig{}, nil)
	assert.Equal(t, 9464, srv.Port())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ln.Addr().String(), srv.Addr().String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
