package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	idspkg "github.com/drblury/fixtureflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/fixtureflow/internal/runtime/metadata"
)

const routerCloseTimeout = 5 * time.Second

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators of a Service.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.

	// Hooks observe every inbound frame after the default chain has run.
	Hooks FrameHooks

	// Registerer and Gatherer back every Prometheus collector of the session.
	// Nil falls back to the process-wide default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Service is the plugin runtime: a typed event bus whose listeners run one
// turn at a time, fed by a watermill router that serialises inbound frames.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	turn sync.Mutex

	listenersMu    sync.RWMutex
	listeners      map[string][]*listenerEntry
	nextListenerID uint64

	pubSub *gochannel.GoChannel
	router *message.Router

	routes   []*RouteInfo
	routesMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	runningHTTP   []*http.Server
	httpServersMu sync.Mutex

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	metrics    *busMetrics

	started atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	runErr  error
}

// NewService constructs a Service. Register routes and listeners before
// calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating playground runtime", loggingpkg.LogFields{
		"transport": conf.GetTransport(),
		"config":    conf,
	})

	s := &Service{
		Conf:       conf,
		Logger:     log,
		listeners:  make(map[string][]*listenerEntry),
		registerer: deps.Registerer,
		gatherer:   deps.Gatherer,
		done:       make(chan struct{}),
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	metrics, err := newBusMetrics(s.registerer)
	if err != nil {
		return nil, err
	}
	s.metrics = metrics

	// Publishing blocks until the route acknowledges, so the transport reader
	// never runs ahead of the turn that handles its previous frame.
	s.pubSub = gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: routerCloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	s.router = router

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	return s, nil
}

// Start launches the HTTP servers and the inbound router. It returns once the
// router is running; the router stops when ctx is cancelled or Close is called.
func (s *Service) Start(ctx context.Context) error {
	if s.closed.Load() {
		return errspkg.ErrRuntimeClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	s.StartAPIServer()
	s.startHTTPServers()

	go func() {
		defer close(s.done)
		if err := routerRun(s.router, ctx); err != nil {
			s.runErr = err
			s.Logger.Error("Router stopped with error", err, nil)
		}
	}()

	select {
	case <-s.router.Running():
		return nil
	case <-s.done:
		return s.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the router, the inbound pubsub and the HTTP servers.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := s.router.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close router: %w", err))
	}
	if err := s.pubSub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pubsub: %w", err))
	}
	errs = append(errs, s.stopHTTPServers()...)

	return errors.Join(errs...)
}

// Closed reports whether Close has been called.
func (s *Service) Closed() bool {
	return s.closed.Load()
}

// Registerer exposes the Prometheus registerer plugins should use.
func (s *Service) Registerer() prometheus.Registerer {
	return s.registerer
}

// Publish hands an inbound frame to the route consuming topic and blocks until
// the route has handled it.
func (s *Service) Publish(ctx context.Context, topic string, payload []byte, md metadatapkg.Metadata) error {
	if s == nil {
		return errspkg.ErrRuntimeRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if s.closed.Load() {
		return errspkg.ErrRuntimeClosed
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	if ctx != nil {
		msg.SetContext(ctx)
	}

	return s.pubSub.Publish(topic, msg)
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)
	if !deps.Hooks.IsZero() {
		registrations = append(registrations, FrameHooksMiddleware(deps.Hooks))
	}

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the mux serving port. Call before Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

// HTTPHandler returns the mux registered for port, or nil.
func (s *Service) HTTPHandler(port int) http.Handler {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	mux, ok := s.httpServers[port]
	if !ok {
		return nil
	}
	return mux
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		s.runningHTTP = append(s.runningHTTP, server)

		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": server.Addr})
			}
		}(server)
	}
}

func (s *Service) stopHTTPServers() []error {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), routerCloseTimeout)
	defer cancel()

	var errs []error
	for _, server := range s.runningHTTP {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", server.Addr, err))
		}
	}
	s.runningHTTP = nil
	return errs
}
