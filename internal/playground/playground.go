// Package playground wires the runtime, the dev server channel and the
// coordination plugins into one session.
package playground

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/drblury/fixtureflow/internal/buildnotify"
	"github.com/drblury/fixtureflow/internal/coordinator"
	"github.com/drblury/fixtureflow/internal/messagehandler"
	"github.com/drblury/fixtureflow/internal/notifications"
	"github.com/drblury/fixtureflow/internal/router"
	"github.com/drblury/fixtureflow/internal/runtime"
	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	"github.com/drblury/fixtureflow/transport"
)

// Options configure a Playground. Config and Logger are required.
type Options struct {
	Config *configpkg.Config
	Logger loggingpkg.ServiceLogger

	// Transports defaults to transport.DefaultRegistry.
	Transports *transport.Registry
	// Location defaults to an empty history at "/".
	Location *router.Location
	// IsDevServerOn defaults to reporting true when a dev server URL or the
	// memory transport is configured.
	IsDevServerOn func() bool

	Dependencies runtime.ServiceDependencies
}

// Playground is one coordination session.
type Playground struct {
	conf          *configpkg.Config
	svc           *runtime.Service
	adapter       *messagehandler.Adapter
	router        *router.Router
	notifications *notifications.Manager
	coordinator   *coordinator.Coordinator
	isDevServerOn func() bool

	mu       sync.Mutex
	dispose  messagehandler.Disposer
	offBuild func()
	closed   bool
}

// New builds a session. Nothing runs until Start.
func New(opts Options) (*Playground, error) {
	if opts.Config == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if opts.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	conf := opts.Config.WithDefaults()
	if err := configpkg.ValidateConfig(&conf); err != nil {
		return nil, err
	}

	svc, err := runtime.NewService(&conf, opts.Logger, opts.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}

	p, err := build(svc, &conf, opts)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	return p, nil
}

func build(svc *runtime.Service, conf *configpkg.Config, opts Options) (*Playground, error) {
	adapter, err := messagehandler.New(svc, conf, opts.Transports)
	if err != nil {
		return nil, fmt.Errorf("create message handler: %w", err)
	}

	location := opts.Location
	if location == nil {
		location = router.NewLocation(url.URL{Path: "/"})
	}
	r, err := router.New(svc, location)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	manager, err := notifications.New(svc, conf.NotificationTimeout)
	if err != nil {
		return nil, fmt.Errorf("create notifications: %w", err)
	}

	c, err := coordinator.New(svc, coordinator.Dependencies{
		Router:   r,
		Notifier: manager,
		Sender:   adapter,
	})
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	offBuild, err := buildnotify.Register(svc, manager)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("register build notifications: %w", err)
	}

	isDevServerOn := opts.IsDevServerOn
	if isDevServerOn == nil {
		isDevServerOn = func() bool {
			return conf.DevServerURL != "" || conf.GetTransport() == configpkg.TransportMemory
		}
	}

	p := &Playground{
		conf:          conf,
		svc:           svc,
		adapter:       adapter,
		router:        r,
		notifications: manager,
		coordinator:   c,
		isDevServerOn: isDevServerOn,
		offBuild:      offBuild,
	}
	if conf.APIEnabled {
		p.registerAPI()
	}
	return p, nil
}

// Start runs the runtime and opens the dev server channel when a dev server
// is active.
func (p *Playground) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errspkg.ErrRuntimeClosed
	}

	if err := p.svc.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	dispose, err := p.adapter.Connect(ctx, p.isDevServerOn)
	if err != nil {
		return fmt.Errorf("connect to dev server: %w", err)
	}
	p.dispose = dispose
	return nil
}

// Close tears the session down: the channel first, then timers, plugins and
// the runtime.
func (p *Playground) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dispose := p.dispose
	p.dispose = nil
	p.mu.Unlock()

	if dispose != nil {
		dispose()
	}
	p.adapter.Close()
	p.notifications.Close()
	p.coordinator.Close()
	if p.offBuild != nil {
		p.offBuild()
	}

	if err := p.svc.Close(); err != nil {
		return fmt.Errorf("close runtime: %w", err)
	}
	return nil
}

// Config returns the effective configuration.
func (p *Playground) Config() configpkg.Config { return *p.conf }

// Runtime returns the runtime service.
func (p *Playground) Runtime() *runtime.Service { return p.svc }

// Coordinator returns the renderer coordinator.
func (p *Playground) Coordinator() *coordinator.Coordinator { return p.coordinator }

// Router returns the URL router.
func (p *Playground) Router() *router.Router { return p.router }

// Notifications returns the notification manager.
func (p *Playground) Notifications() *notifications.Manager { return p.notifications }

// Transport returns the dev server adapter.
func (p *Playground) Transport() *messagehandler.Adapter { return p.adapter }
