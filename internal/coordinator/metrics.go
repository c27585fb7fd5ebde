package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/fixtureflow/internal/runtime"
)

type coordinatorMetrics struct {
	connected     prometheus.Gauge
	announcements *prometheus.CounterVec
	requests      *prometheus.CounterVec
	dropped       *prometheus.CounterVec
}

func newCoordinatorMetrics(registerer prometheus.Registerer) (*coordinatorMetrics, error) {
	connected, err := runtime.RegisterCollector(registerer, runtime.NewGauge(
		"coordinator", "connected_renderers", "Renderers currently connected.",
	))
	if err != nil {
		return nil, err
	}
	announcements, err := runtime.RegisterCollector(registerer, runtime.NewCounterVec(
		"coordinator", "renderer_announcements_total", "rendererReady messages handled.", []string{"primary"},
	))
	if err != nil {
		return nil, err
	}
	requests, err := runtime.RegisterCollector(registerer, runtime.NewCounterVec(
		"coordinator", "renderer_requests_total", "Requests sent to renderers.", []string{"type"},
	))
	if err != nil {
		return nil, err
	}
	dropped, err := runtime.RegisterCollector(registerer, runtime.NewCounterVec(
		"coordinator", "renderer_messages_dropped_total", "Renderer messages ignored.", []string{"reason"},
	))
	if err != nil {
		return nil, err
	}

	return &coordinatorMetrics{
		connected:     connected,
		announcements: announcements,
		requests:      requests,
		dropped:       dropped,
	}, nil
}
