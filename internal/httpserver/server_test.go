package httpserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func chatStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestNewMux_Routes(t *testing.T) {
	mux := NewMux(chatStub())

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, ChatPath, http.StatusTeapot},
		{http.MethodOptions, ChatPath, http.StatusTeapot},
		{http.MethodGet, HealthPath, http.StatusOK},
		{http.MethodGet, MetricsPath, http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPost, HealthPath, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestMetricsEndpointServesDefaultRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMux(chatStub()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServe_StopsWhenContextCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ln.Addr().String(), chatStub(), WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	res, err := http.Get("http://" + ln.Addr().String() + HealthPath)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	require.Equal(t, "ok\n", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = New(ln.Addr().String(), chatStub()).Run(context.Background())
	require.Error(t, err)
}
