package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func newTestService(t *testing.T, conf *configpkg.Config) *Service {
	t.Helper()
	if conf == nil {
		conf = &configpkg.Config{}
	}
	return newTestServiceWith(t, conf, ServiceDependencies{})
}

func newTestServiceWithDeps(t *testing.T, deps ServiceDependencies) *Service {
	t.Helper()
	return newTestServiceWith(t, &configpkg.Config{}, deps)
}

func newTestServiceWith(t *testing.T, conf *configpkg.Config, deps ServiceDependencies) *Service {
	t.Helper()
	registry := prometheus.NewRegistry()
	deps.Registerer = registry
	deps.Gatherer = registry
	svc, err := NewService(conf, newTestLogger(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func startTestService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, svc.Start(ctx))
}
