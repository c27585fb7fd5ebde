// Package memory provides an in-process duplex channel. A Hub plays the dev
// server: every dial creates a connected pair and hands the serving end to
// the hub's accept callback.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
	"github.com/drblury/fixtureflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "memory"

// DefaultHub backs the "memory" entry of the default registry.
var DefaultHub = NewHub()

func init() {
	transport.RegisterWithCapabilities(TransportName, DefaultHub.Dial, transport.MemoryCapabilities)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}

// Hub accepts in-process connections.
type Hub struct {
	mu       sync.Mutex
	onAccept func(server transport.Channel)
	accepted []*Endpoint
}

// NewHub returns a hub without an accept callback.
func NewHub() *Hub {
	return &Hub{}
}

// OnAccept sets the callback receiving the serving end of every new
// connection. It runs on the dialing goroutine before Dial returns.
func (h *Hub) OnAccept(fn func(server transport.Channel)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAccept = fn
}

// Accepted returns the serving ends of every connection made so far.
func (h *Hub) Accepted() []*Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Endpoint(nil), h.accepted...)
}

// Dial implements transport.Dialer.
func (h *Hub) Dial(ctx context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, server := Pipe(logger)

	h.mu.Lock()
	h.accepted = append(h.accepted, server)
	accept := h.onAccept
	h.mu.Unlock()

	if accept != nil {
		accept(server)
	}
	return client, nil
}

// Pipe returns two connected endpoints.
func Pipe(logger watermill.LoggerAdapter) (*Endpoint, *Endpoint) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	link := &link{}
	a := newEndpoint(link, logger)
	b := newEndpoint(link, logger)
	a.peer, b.peer = b, a
	return a, b
}

type link struct {
	closeOnce sync.Once
	closed    atomic.Bool
}

type frame struct {
	event string
	data  []byte
}

type listenerEntry struct {
	id       uint64
	listener transport.Listener
	active   atomic.Bool
}

// Endpoint is one end of an in-process channel. Frames sent to it are queued
// and delivered to its listeners in order on its own goroutine.
type Endpoint struct {
	link   *link
	peer   *Endpoint
	logger watermill.LoggerAdapter

	listenersMu sync.RWMutex
	listeners   map[string][]*listenerEntry
	nextID      uint64

	queueMu sync.Mutex
	queue   []frame
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

func newEndpoint(l *link, logger watermill.LoggerAdapter) *Endpoint {
	e := &Endpoint{
		link:      l,
		logger:    logger,
		listeners: make(map[string][]*listenerEntry),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go e.deliverLoop()
	return e
}

// On implements transport.Channel.
func (e *Endpoint) On(event string, listener transport.Listener) func() {
	e.listenersMu.Lock()
	e.nextID++
	entry := &listenerEntry{id: e.nextID, listener: listener}
	entry.active.Store(true)
	e.listeners[event] = append(e.listeners[event], entry)
	e.listenersMu.Unlock()

	return func() {
		if !entry.active.CompareAndSwap(true, false) {
			return
		}
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		current := e.listeners[event]
		next := make([]*listenerEntry, 0, len(current))
		for _, candidate := range current {
			if candidate.id != entry.id {
				next = append(next, candidate)
			}
		}
		e.listeners[event] = next
	}
}

// Emit implements transport.Channel. It never blocks on the peer's listeners.
func (e *Endpoint) Emit(ctx context.Context, event string, data []byte) error {
	if e.link.closed.Load() {
		return errspkg.ErrChannelClosed
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	// Reject what the websocket transport would reject.
	if _, err := transport.EncodeFrame(event, data); err != nil {
		return err
	}
	if !jsoncodec.Valid(data) {
		data = []byte("null")
	}
	e.peer.enqueue(frame{event: event, data: append([]byte(nil), data...)})
	return nil
}

// Close implements transport.Channel and closes both ends.
func (e *Endpoint) Close() error {
	e.link.closeOnce.Do(func() {
		e.link.closed.Store(true)
		close(e.stop)
		close(e.peer.stop)
	})
	return nil
}

// Done is closed once the endpoint stopped delivering frames.
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

func (e *Endpoint) enqueue(f frame) {
	e.queueMu.Lock()
	e.queue = append(e.queue, f)
	e.queueMu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Endpoint) deliverLoop() {
	defer close(e.done)

	for {
		select {
		case <-e.stop:
			return
		case <-e.wake:
		}

		for {
			e.queueMu.Lock()
			if len(e.queue) == 0 {
				e.queueMu.Unlock()
				break
			}
			next := e.queue[0]
			e.queue = e.queue[1:]
			e.queueMu.Unlock()

			if e.link.closed.Load() {
				return
			}
			e.dispatch(next)
		}
	}
}

func (e *Endpoint) dispatch(f frame) {
	e.listenersMu.RLock()
	snapshot := e.listeners[f.event]
	e.listenersMu.RUnlock()

	for _, entry := range snapshot {
		if e.link.closed.Load() {
			return
		}
		if entry.active.Load() {
			entry.listener(f.data)
		}
	}
}
