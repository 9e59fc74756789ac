package http_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapthttp "github.com/jsamuelsen11/numbers-core/internal/adapters/http"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

// startServer binds an ephemeral port and serves in the background. The
// returned channel yields Start's result.
func startServer(t *testing.T, cfg config.ServerConfig, h http.Handler) (*adapthttp.Server, <-chan error) {
	t.Helper()

	s := adapthttp.NewServer(cfg, h, discardLogger())
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	return s, errCh
}

func TestServer_Addr(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.Port = 9090
	s := adapthttp.NewServer(cfg, http.NotFoundHandler(), nil)

	assert.Equal(t, "127.0.0.1:9090", s.Addr())
	assert.Equal(t, "http", s.Name())
}

func TestServer_ServesAndShutsDown(t *testing.T) {
	t.Parallel()

	s, errCh := startServer(t, testServerConfig(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))

	resp, err := http.Get("http://" + s.Addr() + "/health/live")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestServer_HealthCheckFailsWhileDraining(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.DrainDelay = 50 * time.Millisecond
	s, errCh := startServer(t, cfg, http.NotFoundHandler())

	require.NoError(t, s.HealthCheck(t.Context()))

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- s.Shutdown(context.Background()) }()

	assert.Eventually(t, func() bool {
		return s.HealthCheck(t.Context()) != nil
	}, time.Second, 5*time.Millisecond)

	err := s.HealthCheck(t.Context())
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	require.NoError(t, <-shutdownErr)
	require.NoError(t, <-errCh)
}

func TestServer_ListenTwiceKeepsFirstListener(t *testing.T) {
	t.Parallel()

	s := adapthttp.NewServer(testServerConfig(), http.NotFoundHandler(), discardLogger())
	require.NoError(t, s.Listen())
	addr := s.Addr()
	require.NoError(t, s.Listen())
	assert.Equal(t, addr, s.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, <-errCh)
}
