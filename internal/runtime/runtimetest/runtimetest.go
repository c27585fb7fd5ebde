// Package runtimetest builds runtime services for tests in other packages.
package runtimetest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/drblury/fixtureflow/internal/runtime"
	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
)

// Logger returns a debug level logger writing nowhere.
func Logger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// NewService returns a service with its own metrics registry. It is closed
// when the test ends.
func NewService(t testing.TB, conf *configpkg.Config) (*runtime.Service, *prometheus.Registry) {
	t.Helper()
	if conf == nil {
		conf = &configpkg.Config{}
	}
	registry := prometheus.NewRegistry()
	svc, err := runtime.NewService(conf, Logger(), runtime.ServiceDependencies{
		Registerer: registry,
		Gatherer:   registry,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, registry
}

// Start starts svc and stops it with the test.
func Start(t testing.TB, svc *runtime.Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, svc.Start(ctx))
}
