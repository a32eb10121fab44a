package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/closest-tornado/internal/config"
)

func TestRouterOptions(t *testing.T) {
	opts := routerOptions(config.ServerConfig{
		RequestTimeoutSecs: 30,
		CORSOrigins:        []string{"https://app.example.com"},
		PublicBaseURL:      "https://tornado.example.com",
		TrustProxyHeaders:  true,
	})
	assert.Equal(t, 30*time.Second, opts.RequestTimeout)
	assert.Equal(t, []string{"https://app.example.com"}, opts.CORSOrigins)
	assert.Equal(t, "https://tornado.example.com", opts.PublicBaseURL)
	assert.True(t, opts.TrustProxyHeaders)
}

func TestNewHTTPServer(t *testing.T) {
	srv := newHTTPServer(config.ServerConfig{Port: 9123}, http.NotFoundHandler())
	assert.Equal(t, ":9123", srv.Addr)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
}

func TestRunServer_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServer_ListenError(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
	err := runServer(context.Background(), srv)
	assert.Error(t, err)
}
