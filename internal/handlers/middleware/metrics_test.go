package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observed struct {
	method string
	path   string
	status int
}

type fakeHTTPRecorder struct {
	calls []observed
}

func (f *fakeHTTPRecorder) ObserveHTTPRequest(method string, path string, status int, _ time.Duration) {
	f.calls = append(f.calls, observed{method: method, path: path, status: status})
}

func TestMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := &fakeHTTPRecorder{}
	srv := httptest.NewServer(Metrics(rec)(mux))
	defer srv.Close()

	for _, path := range []string{"/users/1", "/users/2", "/missing"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	require.Len(t, rec.calls, 3)
	assert.Equal(t, observed{"GET", "GET /users/{id}", http.StatusTeapot}, rec.calls[0], "route pattern should be used, not raw path")
	assert.Equal(t, observed{"GET", "GET /users/{id}", http.StatusTeapot}, rec.calls[1])
	assert.Equal(t, observed{"GET", "unmatched", http.StatusNotFound}, rec.calls[2])
}
