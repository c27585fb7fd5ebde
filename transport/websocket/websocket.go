// Package websocket provides the gorilla/websocket duplex channel to the dev
// server. The same connection type backs both the dialing playground and the
// accepting side used by dev servers and tests.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gorilla/websocket"

	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	"github.com/drblury/fixtureflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "websocket"

const closeGracePeriod = time.Second

// NewDialer allows overriding the gorilla dialer, for example in tests.
var NewDialer = func(cfg transport.Config) *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.GetHandshakeTimeout(),
	}
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Dial, transport.WebSocketCapabilities)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.WebSocketCapabilities
}

// Dial connects to the dev server socket derived from cfg.
func Dial(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Channel, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	endpoint, err := SocketURL(cfg.GetDevServerURL(), cfg.GetWebSocketPath())
	if err != nil {
		return nil, err
	}

	ws, _, err := NewDialer(cfg).DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	logger.Debug("Dev server socket connected", watermill.LogFields{"url": endpoint})
	return newConn(ws, logger), nil
}

// Upgrade accepts a socket on the serving side.
func Upgrade(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, logger watermill.LoggerAdapter) (transport.Channel, error) {
	if upgrader == nil {
		upgrader = &websocket.Upgrader{}
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return newConn(ws, logger), nil
}

// SocketURL turns the dev server base URL into a websocket URL.
func SocketURL(base, socketPath string) (string, error) {
	if base == "" {
		return "", errors.New("websocket: dev server URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("websocket: invalid dev server URL: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("websocket: unsupported scheme %q", parsed.Scheme)
	}

	if socketPath != "" {
		parsed.Path = path.Join("/", parsed.Path, socketPath)
	}
	return parsed.String(), nil
}

type listenerEntry struct {
	id       uint64
	listener transport.Listener
	active   atomic.Bool
}

// Conn is a transport.Channel over one websocket connection.
type Conn struct {
	ws     *websocket.Conn
	logger watermill.LoggerAdapter

	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[string][]*listenerEntry
	nextID      uint64

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func newConn(ws *websocket.Conn, logger watermill.LoggerAdapter) *Conn {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	ws.SetReadLimit(transport.WebSocketCapabilities.MaxFrameSize)

	c := &Conn{
		ws:        ws,
		logger:    logger,
		listeners: make(map[string][]*listenerEntry),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// On implements transport.Channel.
func (c *Conn) On(event string, listener transport.Listener) func() {
	c.listenersMu.Lock()
	c.nextID++
	entry := &listenerEntry{id: c.nextID, listener: listener}
	entry.active.Store(true)
	c.listeners[event] = append(c.listeners[event], entry)
	c.listenersMu.Unlock()

	return func() {
		if !entry.active.CompareAndSwap(true, false) {
			return
		}
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		current := c.listeners[event]
		next := make([]*listenerEntry, 0, len(current))
		for _, candidate := range current {
			if candidate.id != entry.id {
				next = append(next, candidate)
			}
		}
		c.listeners[event] = next
	}
}

// Emit implements transport.Channel.
func (c *Conn) Emit(ctx context.Context, event string, data []byte) error {
	if c.closed.Load() {
		return errspkg.ErrChannelClosed
	}
	raw, err := transport.EncodeFrame(event, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var deadline time.Time
	if ctx != nil {
		deadline, _ = ctx.Deadline()
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		if c.closed.Load() {
			return errspkg.ErrChannelClosed
		}
		return fmt.Errorf("write %s frame: %w", event, err)
	}
	return nil
}

// Close implements transport.Channel. It does not wait for a listener that
// is currently running.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// Done is closed once the reader stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("Dev server socket read failed", err, nil)
			}
			c.closed.Store(true)
			return
		}

		frame, err := transport.DecodeFrame(data)
		if err != nil {
			c.logger.Error("Dropping undecodable frame", err, watermill.LogFields{"frame": string(data)})
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Conn) dispatch(frame transport.Frame) {
	c.listenersMu.RLock()
	snapshot := c.listeners[frame.Event]
	c.listenersMu.RUnlock()

	for _, entry := range snapshot {
		if c.closed.Load() {
			return
		}
		if entry.active.Load() {
			entry.listener(frame.Data)
		}
	}
}
