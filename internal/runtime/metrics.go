package runtime

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsNamespace prefixes every collector exported by a playground session.
const MetricsNamespace = "fixtureflow"

// NewCounterVec creates a counter vec in the fixtureflow namespace.
func NewCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewGaugeVec creates a gauge vec in the fixtureflow namespace.
func NewGaugeVec(subsystem, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewCounter creates a label-less counter in the fixtureflow namespace.
func NewCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewGauge creates a label-less gauge in the fixtureflow namespace.
func NewGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// RegisterCollector registers c, returning the already registered collector
// when an identical one exists so several sessions can share a registry.
func RegisterCollector[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

type busMetrics struct {
	emitted   *prometheus.CounterVec
	panics    *prometheus.CounterVec
	listeners *prometheus.GaugeVec
	turns     prometheus.Counter
}

func newBusMetrics(registerer prometheus.Registerer) (*busMetrics, error) {
	var (
		m   busMetrics
		err error
	)
	if m.emitted, err = RegisterCollector(registerer, NewCounterVec("bus", "events_emitted_total", "Events emitted on the runtime bus.", []string{"event"})); err != nil {
		return nil, err
	}
	if m.panics, err = RegisterCollector(registerer, NewCounterVec("bus", "listener_panics_total", "Listener invocations that panicked.", []string{"event"})); err != nil {
		return nil, err
	}
	if m.listeners, err = RegisterCollector(registerer, NewGaugeVec("bus", "listeners", "Registered listeners per event.", []string{"event"})); err != nil {
		return nil, err
	}
	if m.turns, err = RegisterCollector(registerer, NewCounter("bus", "turns_total", "Turns executed by the runtime.")); err != nil {
		return nil, err
	}
	return &m, nil
}
