package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, target, auth string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "postbot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := New(Config{}, WithGatherer(reg))
	h := s.Handler(Config{})

	code, body := get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, h, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "postbot_test_total 1")

	code, _ = get(t, h, "/debug/pprof/", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, s.Handler(Config{Pprof: true}), "/debug/pprof/", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestHandlerToken(t *testing.T) {
	t.Parallel()
	h := New(Config{}).Handler(Config{Token: "s3cret"})

	tests := []struct {
		name   string
		target string
		auth   string
		want   int
	}{
		{name: "missing", target: "/healthz", want: http.StatusUnauthorized},
		{name: "wrong bearer", target: "/healthz", auth: "Bearer nope", want: http.StatusUnauthorized},
		{name: "bearer", target: "/healthz", auth: "Bearer s3cret", want: http.StatusOK},
		{name: "query", target: "/healthz?token=s3cret", want: http.StatusOK},
		{name: "metrics guarded", target: "/metrics", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, _ := get(t, h, tt.target, tt.auth)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestHealthFailure(t *testing.T) {
	t.Parallel()
	h := New(Config{}, WithHealth(func() error { return errors.New("poller down") })).Handler(Config{})
	code, body := get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "poller down")
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.2:9090":  false,
		"nonsense":       false,
	}
	for addr, want := range tests {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}

func TestReconfigureStartsAndStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(Config{})
	t.Cleanup(func() { s.Stop(context.Background()) })

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	require.Eventually(t, func() bool { return s.Addr() != "" }, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.Empty(t, s.Addr())
	assert.Nil(t, s.Supervisor())
}

func TestInsecureBindRefused(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"})
	err := s.serveOnce(context.Background())
	assert.ErrorIs(t, err, ErrInsecureBind)
}
