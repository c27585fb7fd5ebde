// Package messagehandler bridges the dev server channel and the runtime bus.
// Inbound serverMessage and rendererResponse frames become bus events of the
// same name; renderer requests go out as rendererRequest frames.
package messagehandler

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/fixtureflow/internal/protocol"
	"github.com/drblury/fixtureflow/internal/runtime"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/fixtureflow/internal/runtime/handlers"
	idspkg "github.com/drblury/fixtureflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/fixtureflow/internal/runtime/metadata"
	"github.com/drblury/fixtureflow/transport"
)

// inboundEvents are republished on the bus under the same name.
var inboundEvents = []string{protocol.SocketServerMessage, protocol.SocketRendererResponse}

// Disposer tears a connection down. After it returns no inbound frame of that
// connection reaches the bus.
type Disposer func()

// Connection is the single open channel owned by an Adapter.
type Connection struct {
	ID      string
	channel transport.Channel
	offs    []func()
}

// Adapter owns at most one dev server connection at a time.
type Adapter struct {
	svc      *runtime.Service
	conf     transport.Config
	registry *transport.Registry
	logger   loggingpkg.ServiceLogger

	mu   sync.Mutex
	conn *Connection

	frames *prometheus.CounterVec
}

// New registers the inbound routes on svc. It must be called before svc.Start.
// A nil registry falls back to transport.DefaultRegistry.
func New(svc *runtime.Service, conf transport.Config, registry *transport.Registry) (*Adapter, error) {
	if svc == nil {
		return nil, errspkg.ErrRuntimeRequired
	}
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if registry == nil {
		registry = transport.DefaultRegistry
	}

	frames, err := runtime.RegisterCollector(svc.Registerer(), runtime.NewCounterVec(
		"transport", "frames_total", "Frames crossing the dev server channel.", []string{"event", "outcome"},
	))
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		svc:      svc,
		conf:     conf,
		registry: registry,
		logger:   svc.Logger.With(loggingpkg.LogFields{"component": "messagehandler"}),
		frames:   frames,
	}

	for _, event := range inboundEvents {
		if err := runtime.RegisterJSONRoute(svc, runtime.JSONRouteRegistration[protocol.Message]{
			Name:  "inbound-" + event,
			Topic: event,
			Handler: func(ctx context.Context, frame handlerpkg.FrameContext[protocol.Message]) error {
				return a.handleInbound(ctx, event, frame)
			},
		}); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Connect opens the dev server channel when isDevServerOn reports an active
// dev server. Without one it does nothing and returns a nil Disposer.
func (a *Adapter) Connect(ctx context.Context, isDevServerOn func() bool) (Disposer, error) {
	if isDevServerOn == nil || !isDevServerOn() {
		a.logger.Debug("No dev server, staying disconnected", nil)
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return nil, errspkg.ErrChannelAlreadyOpen
	}

	channel, err := a.registry.Dial(ctx, a.conf, loggingpkg.NewWatermillAdapter(a.logger))
	if err != nil {
		return nil, err
	}

	conn := &Connection{ID: idspkg.NewConnectionID(), channel: channel}
	for _, event := range inboundEvents {
		conn.offs = append(conn.offs, channel.On(event, func(data []byte) {
			a.republish(conn.ID, event, data)
		}))
	}
	a.conn = conn

	a.logger.Info("Dev server channel open", loggingpkg.LogFields{"connection_id": conn.ID})

	if d, ok := channel.(doneNotifier); ok {
		go a.watch(conn, d.Done())
	}

	var once sync.Once
	return func() {
		once.Do(func() { a.dispose(conn) })
	}, nil
}

// Close disposes the current connection, if any.
func (a *Adapter) Close() {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn != nil {
		a.dispose(conn)
	}
}

// Connected reports whether a channel is open.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// ConnectionID returns the id of the open channel, or "".
func (a *Adapter) ConnectionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return ""
	}
	return a.conn.ID
}

// SendRendererRequest emits req as a rendererRequest frame. Requests made
// while no channel is open are dropped.
func (a *Adapter) SendRendererRequest(ctx context.Context, req protocol.RendererRequest) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		a.frames.WithLabelValues(protocol.SocketRendererRequest, "dropped").Inc()
		a.logger.Debug("No channel, dropping renderer request", loggingpkg.LogFields{"type": req.Type})
		return
	}

	data, err := jsoncodec.Marshal(req)
	if err != nil {
		a.frames.WithLabelValues(protocol.SocketRendererRequest, "failed").Inc()
		a.logger.Error("Failed to encode renderer request", err, loggingpkg.LogFields{"type": req.Type})
		return
	}

	if err := conn.channel.Emit(ctx, protocol.SocketRendererRequest, data); err != nil {
		a.frames.WithLabelValues(protocol.SocketRendererRequest, "failed").Inc()
		a.logger.Error("Failed to send renderer request", err, loggingpkg.LogFields{
			"type":          req.Type,
			"connection_id": conn.ID,
		})
		return
	}
	a.frames.WithLabelValues(protocol.SocketRendererRequest, "sent").Inc()
}

// doneNotifier is implemented by channels that report when their peer went away.
type doneNotifier interface {
	Done() <-chan struct{}
}

// watch releases conn once the channel stops on its own, e.g. when the dev
// server drops the socket.
func (a *Adapter) watch(conn *Connection, done <-chan struct{}) {
	<-done
	a.mu.Lock()
	current := a.conn == conn
	a.mu.Unlock()
	if current {
		a.logger.Info("Dev server channel lost", loggingpkg.LogFields{"connection_id": conn.ID})
		a.dispose(conn)
	}
}

func (a *Adapter) dispose(conn *Connection) {
	a.mu.Lock()
	if a.conn != conn {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	a.mu.Unlock()

	for _, off := range conn.offs {
		off()
	}
	if err := conn.channel.Close(); err != nil {
		a.logger.Error("Failed to close dev server channel", err, loggingpkg.LogFields{"connection_id": conn.ID})
	}
	a.logger.Info("Dev server channel closed", loggingpkg.LogFields{"connection_id": conn.ID})
}

// republish runs on the channel reader and blocks until the frame was handled.
func (a *Adapter) republish(connectionID, event string, data []byte) {
	md := metadatapkg.New(
		metadatapkg.KeyEvent, event,
		metadatapkg.KeyConnectionID, connectionID,
	)
	if err := a.svc.Publish(context.Background(), event, data, md); err != nil {
		a.frames.WithLabelValues(event, "failed").Inc()
		a.logger.Debug("Inbound frame not delivered", loggingpkg.LogFields{
			"event":         event,
			"connection_id": connectionID,
			"error":         err.Error(),
		})
	}
}

func (a *Adapter) handleInbound(ctx context.Context, event string, frame handlerpkg.FrameContext[protocol.Message]) error {
	if frame.ConnectionID() != a.ConnectionID() {
		a.frames.WithLabelValues(event, "stale").Inc()
		frame.Logger.Debug("Dropping frame of a closed connection", nil)
		return nil
	}
	a.frames.WithLabelValues(event, "received").Inc()
	a.svc.Emit(ctx, event, frame.Payload)
	return nil
}
