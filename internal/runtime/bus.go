package runtime

import (
	"context"
	"fmt"
	"sync/atomic"

	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
)

// Listener receives the payload of an emitted event. It always runs inside a
// turn; ctx must be passed on to any nested Emit or Do.
type Listener func(ctx context.Context, payload any)

type listenerEntry struct {
	id       uint64
	listener Listener
	active   atomic.Bool
}

type turnKey struct{}

// InTurn reports whether ctx belongs to a turn of this service.
func (s *Service) InTurn(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(turnKey{}).(*Service)
	return owner == s
}

// Do runs fn inside a turn. Turns never overlap: callers outside a turn wait
// for the current one to finish, callers already inside a turn run inline.
func (s *Service) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.InTurn(ctx) {
		return fn(ctx)
	}

	s.turn.Lock()
	defer s.turn.Unlock()
	s.metrics.turns.Inc()
	return fn(context.WithValue(ctx, turnKey{}, s))
}

// On registers listener for event. Listeners run in registration order. The
// returned function unsubscribes; once it returns, listener is never called again.
func (s *Service) On(event string, listener Listener) (func(), error) {
	if event == "" {
		return nil, errspkg.ErrEventNameRequired
	}
	if listener == nil {
		return nil, errspkg.ErrListenerRequired
	}

	s.listenersMu.Lock()
	s.nextListenerID++
	entry := &listenerEntry{id: s.nextListenerID, listener: listener}
	entry.active.Store(true)
	s.listeners[event] = append(s.listeners[event], entry)
	s.listenersMu.Unlock()
	s.metrics.listeners.WithLabelValues(event).Inc()

	return func() { s.off(event, entry) }, nil
}

func (s *Service) off(event string, entry *listenerEntry) {
	if !entry.active.CompareAndSwap(true, false) {
		return
	}

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	current := s.listeners[event]
	for i, candidate := range current {
		if candidate.id == entry.id {
			next := make([]*listenerEntry, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			s.listeners[event] = next
			break
		}
	}
	s.metrics.listeners.WithLabelValues(event).Dec()
}

// Emit delivers payload to every listener of event, synchronously and in
// registration order, inside the caller's turn (or a new one).
func (s *Service) Emit(ctx context.Context, event string, payload any) {
	_ = s.Do(ctx, func(ctx context.Context) error {
		s.listenersMu.RLock()
		snapshot := s.listeners[event]
		s.listenersMu.RUnlock()

		s.metrics.emitted.WithLabelValues(event).Inc()
		for _, entry := range snapshot {
			if !entry.active.Load() {
				continue
			}
			s.dispatch(ctx, event, entry, payload)
		}
		return nil
	})
}

func (s *Service) dispatch(ctx context.Context, event string, entry *listenerEntry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.panics.WithLabelValues(event).Inc()
			s.Logger.Error("Event listener panicked", fmt.Errorf("panic: %v", r), loggingpkg.LogFields{
				"event":       event,
				"listener_id": entry.id,
			})
		}
	}()
	entry.listener(ctx, payload)
}

// ListenerCount returns how many listeners are registered for event.
func (s *Service) ListenerCount(event string) int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return len(s.listeners[event])
}

// Subscribe registers a listener that only accepts payloads of type T. Other
// payloads are logged and skipped.
func Subscribe[T any](s *Service, event string, listener func(ctx context.Context, payload T)) (func(), error) {
	if s == nil {
		return nil, errspkg.ErrRuntimeRequired
	}
	if listener == nil {
		return nil, errspkg.ErrListenerRequired
	}
	return s.On(event, func(ctx context.Context, payload any) {
		typed, ok := payload.(T)
		if !ok {
			s.Logger.Error("Dropping event with unexpected payload", errspkg.ErrPayloadTypeMismatch, loggingpkg.LogFields{
				"event":        event,
				"payload_type": fmt.Sprintf("%T", payload),
				"want_type":    fmt.Sprintf("%T", *new(T)),
			})
			return
		}
		listener(ctx, typed)
	})
}
