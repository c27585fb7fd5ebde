// Package notifications keeps the transient messages shown to the playground
// user. Sticky notifications stay until removed; timed ones expire on their own.
package notifications

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/fixtureflow/internal/runtime"
	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	"github.com/drblury/fixtureflow/internal/runtime/state"
)

// EventNotificationsChange is emitted with the new []Notification after every change.
const EventNotificationsChange = "notificationsChange"

// Type selects the icon of a notification.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
	TypeLoading Type = "loading"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeSuccess, TypeError, TypeInfo, TypeLoading:
		return true
	}
	return false
}

// Notification is one displayed message, deduplicated by ID.
type Notification struct {
	ID    string `json:"id"`
	Type  Type   `json:"type"`
	Title string `json:"title"`
	Info  string `json:"info,omitempty"`
}

const (
	lifetimeSticky = "sticky"
	lifetimeTimed  = "timed"
)

type entry struct {
	Notification
	lifetime string
}

type stopper interface {
	Stop() bool
}

var afterFunc = func(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

type pendingTimer struct {
	generation uint64
	timer      stopper
}

// Manager owns the notification list.
type Manager struct {
	svc     *runtime.Service
	timeout time.Duration
	logger  loggingpkg.ServiceLogger
	store   *state.Store[[]entry]

	timersMu   sync.Mutex
	timers     map[string]pendingTimer
	generation uint64
	closed     bool

	displayed *prometheus.GaugeVec
}

// New returns a manager whose timed notifications live for timeout, or for
// config.DefaultNotificationTimeout when timeout is not positive.
func New(svc *runtime.Service, timeout time.Duration) (*Manager, error) {
	if svc == nil {
		return nil, errspkg.ErrRuntimeRequired
	}
	if timeout <= 0 {
		timeout = configpkg.DefaultNotificationTimeout
	}

	displayed, err := runtime.RegisterCollector(svc.Registerer(), runtime.NewGaugeVec(
		"notifications", "displayed", "Notifications currently displayed.", []string{"lifetime"},
	))
	if err != nil {
		return nil, err
	}

	return &Manager{
		svc:       svc,
		timeout:   timeout,
		logger:    svc.Logger.With(loggingpkg.LogFields{"component": "notifications"}),
		store:     state.NewStore[[]entry](nil),
		timers:    make(map[string]pendingTimer),
		displayed: displayed,
	}, nil
}

// Notifications returns the display list, most recently pushed last.
func (m *Manager) Notifications() []Notification {
	return toNotifications(m.store.Get())
}

// PushStickyNotification shows n until it is removed. An existing entry with
// the same id is replaced where it stands.
func (m *Manager) PushStickyNotification(ctx context.Context, n Notification) {
	mustBeValid(n)
	_ = m.svc.Do(ctx, func(ctx context.Context) error {
		m.cancelTimer(n.ID)
		m.commit(ctx, func(prev []entry) []entry {
			next := slices.Clone(prev)
			if i := indexOf(next, n.ID); i >= 0 {
				next[i] = entry{Notification: n, lifetime: lifetimeSticky}
				return next
			}
			return append(next, entry{Notification: n, lifetime: lifetimeSticky})
		})
		return nil
	})
}

// PushTimedNotification shows n for the manager's timeout. Pushing the same
// id again moves it to the end and restarts its timer.
func (m *Manager) PushTimedNotification(ctx context.Context, n Notification) {
	mustBeValid(n)
	_ = m.svc.Do(ctx, func(ctx context.Context) error {
		if !m.schedule(n.ID) {
			m.logger.Debug("Manager closed, dropping timed notification", loggingpkg.LogFields{"id": n.ID})
			return nil
		}
		m.commit(ctx, func(prev []entry) []entry {
			next := slices.DeleteFunc(slices.Clone(prev), func(e entry) bool { return e.ID == n.ID })
			return append(next, entry{Notification: n, lifetime: lifetimeTimed})
		})
		return nil
	})
}

// RemoveStickyNotification removes the entry with id. Unknown ids are ignored.
func (m *Manager) RemoveStickyNotification(ctx context.Context, id string) {
	_ = m.svc.Do(ctx, func(ctx context.Context) error {
		m.cancelTimer(id)
		m.remove(ctx, id)
		return nil
	})
}

// Close stops every pending expiry. Timed notifications pushed afterwards are
// dropped.
func (m *Manager) Close() {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	m.closed = true
	for id, pending := range m.timers {
		pending.timer.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) remove(ctx context.Context, id string) {
	if indexOf(m.store.Get(), id) < 0 {
		return
	}
	m.commit(ctx, func(prev []entry) []entry {
		return slices.DeleteFunc(slices.Clone(prev), func(e entry) bool { return e.ID == id })
	})
}

func (m *Manager) commit(ctx context.Context, updater state.Updater[[]entry]) {
	m.store.Update(updater, func(committed []entry) {
		m.observe(committed)
		m.svc.Emit(ctx, EventNotificationsChange, toNotifications(committed))
	})
}

// schedule (re)starts the expiry timer of id. It reports false once closed.
func (m *Manager) schedule(id string) bool {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if m.closed {
		return false
	}
	if pending, ok := m.timers[id]; ok {
		pending.timer.Stop()
	}
	m.generation++
	generation := m.generation
	m.timers[id] = pendingTimer{
		generation: generation,
		timer:      afterFunc(m.timeout, func() { m.expire(id, generation) }),
	}
	return true
}

func (m *Manager) cancelTimer(id string) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if pending, ok := m.timers[id]; ok {
		pending.timer.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) expire(id string, generation uint64) {
	_ = m.svc.Do(context.Background(), func(ctx context.Context) error {
		m.timersMu.Lock()
		pending, ok := m.timers[id]
		current := ok && pending.generation == generation && !m.closed
		if current {
			delete(m.timers, id)
		}
		m.timersMu.Unlock()

		if current {
			m.remove(ctx, id)
		}
		return nil
	})
}

func (m *Manager) observe(entries []entry) {
	var sticky, timed int
	for _, e := range entries {
		if e.lifetime == lifetimeSticky {
			sticky++
		} else {
			timed++
		}
	}
	m.displayed.WithLabelValues(lifetimeSticky).Set(float64(sticky))
	m.displayed.WithLabelValues(lifetimeTimed).Set(float64(timed))
}

func mustBeValid(n Notification) {
	if !n.Type.Valid() {
		panic(fmt.Sprintf("fixtureflow: invalid notification type %q for %q", n.Type, n.ID))
	}
}

func indexOf(entries []entry, id string) int {
	return slices.IndexFunc(entries, func(e entry) bool { return e.ID == id })
}

func toNotifications(entries []entry) []Notification {
	out := make([]Notification, len(entries))
	for i, e := range entries {
		out[i] = e.Notification
	}
	return out
}
