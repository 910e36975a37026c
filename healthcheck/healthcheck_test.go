package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	h, err := New(Config{})
	require.NoError(t, err)

	rec := get(t, h.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadiness(t *testing.T) {
	h, err := New(Config{Path: "/livez", ReadinessPath: "/readyz"})
	require.NoError(t, err)

	ready := false
	h.Register("relay", func(context.Context) error {
		if !ready {
			return errors.New("relay is connecting")
		}
		return nil
	})

	rec := get(t, h.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp readinessResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "relay is connecting", resp.Checks["relay"])

	ready = true
	rec = get(t, h.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReadinessWithoutChecks(t *testing.T) {
	h, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(t, h.Handler(), "/ready").Code)
}

func TestSamePathsRejected(t *testing.T) {
	_, err := New(Config{Path: "/x", ReadinessPath: "/x"})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	var seen []string
	h, err := New(Config{}, WithMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}))
	require.NoError(t, err)

	get(t, h.Handler(), "/health")
	assert.Equal(t, []string{"/health"}, seen)
}

func TestDisabledRunReturnsOnCancel(t *testing.T) {
	h, err := New(Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, h.Run(ctx))
	assert.NoError(t, h.Stop())
}
