// Package coordinator tracks the connected renderers, elects the primary one
// and keeps every renderer on the selected fixture and its state.
package coordinator

import (
	"context"
	"strconv"

	"github.com/drblury/fixtureflow/internal/notifications"
	"github.com/drblury/fixtureflow/internal/protocol"
	"github.com/drblury/fixtureflow/internal/router"
	"github.com/drblury/fixtureflow/internal/runtime"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	"github.com/drblury/fixtureflow/internal/runtime/state"
)

// Router is the URL side of the selection.
type Router interface {
	SelectFixture(ctx context.Context, id *protocol.FixtureID)
	SelectedFixtureID() *protocol.FixtureID
}

// Notifier shows timed notifications.
type Notifier interface {
	PushTimedNotification(ctx context.Context, n notifications.Notification)
}

// RequestSender delivers requests to renderers. Requests sent while no
// channel is open are dropped.
type RequestSender interface {
	SendRendererRequest(ctx context.Context, req protocol.RendererRequest)
}

// Dependencies are the capabilities the coordinator drives.
type Dependencies struct {
	Router   Router
	Notifier Notifier
	Sender   RequestSender
}

// Coordinator owns State. Every operation runs inside a runtime turn.
type Coordinator struct {
	svc      *runtime.Service
	router   Router
	notifier Notifier
	sender   RequestSender
	logger   loggingpkg.ServiceLogger
	store    *state.Store[State]
	metrics  *coordinatorMetrics

	// seq numbers announcements; only touched inside a turn.
	seq  uint64
	offs []func()
}

// New builds a coordinator and subscribes it to rendererResponse and
// fixtureChange events.
func New(svc *runtime.Service, deps Dependencies) (*Coordinator, error) {
	if svc == nil {
		return nil, errspkg.ErrRuntimeRequired
	}
	if deps.Router == nil || deps.Notifier == nil || deps.Sender == nil {
		return nil, errspkg.ErrDependencyRequired
	}

	metrics, err := newCoordinatorMetrics(svc.Registerer())
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		svc:      svc,
		router:   deps.Router,
		notifier: deps.Notifier,
		sender:   deps.Sender,
		logger:   svc.Logger.With(loggingpkg.LogFields{"component": "coordinator"}),
		store:    state.NewStore(initialState()),
		metrics:  metrics,
	}

	offResponses, err := runtime.Subscribe(svc, protocol.SocketRendererResponse, c.handleRendererResponse)
	if err != nil {
		return nil, err
	}
	offSelection, err := runtime.Subscribe(svc, router.EventFixtureChange, c.SelectFixture)
	if err != nil {
		offResponses()
		return nil, err
	}
	c.offs = []func(){offResponses, offSelection}
	return c, nil
}

// Close unsubscribes from the bus.
func (c *Coordinator) Close() {
	for _, off := range c.offs {
		off()
	}
	c.offs = nil
}

// State returns a copy of the committed state.
func (c *Coordinator) State() State {
	return c.store.Get().Clone()
}

// OnRendererReady registers an announcing renderer. The first renderer to
// announce becomes primary, and only the primary resets the fixture state.
func (c *Coordinator) OnRendererReady(ctx context.Context, rendererID protocol.RendererID, fixtures protocol.FixtureList, initialFixtureID *protocol.FixtureID) {
	_ = c.svc.Do(ctx, func(ctx context.Context) error {
		c.seq++
		seq := c.seq
		var isPrimary bool

		c.store.Update(func(prev State) State {
			next := prev
			isPrimary = prev.PrimaryRendererID == nil || *prev.PrimaryRendererID == rendererID
			if prev.PrimaryRendererID == nil {
				primary := rendererID
				next.PrimaryRendererID = &primary
			}
			next.ConnectedRendererIDs = prev.ConnectedRendererIDs.with(rendererID, seq)
			next.Fixtures = fixtures.Clone()
			if isPrimary {
				next.FixtureState = protocol.FixtureState{}
			}
			return next
		}, func(committed State) {
			c.metrics.announcements.WithLabelValues(strconv.FormatBool(isPrimary)).Inc()
			c.metrics.connected.Set(float64(committed.ConnectedRendererIDs.Len()))

			if initialFixtureID != nil {
				c.router.SelectFixture(ctx, initialFixtureID.Clone())
			} else if selected := c.router.SelectedFixtureID(); selected != nil {
				c.adoptSelection(selected)
				c.send(ctx, protocol.NewSelectFixture(rendererID, *selected, c.store.Get().FixtureState))
			}

			c.notifier.PushTimedNotification(ctx, notifications.Notification{
				ID:    "renderer-connect-" + string(rendererID),
				Type:  notifications.TypeInfo,
				Title: "Renderer connected",
				Info:  "Your fixtures are ready to use.",
			})
		})

		c.logger.Debug("Renderer ready", loggingpkg.LogFields{
			"renderer_id": rendererID,
			"primary":     isPrimary,
			"fixtures":    len(fixtures),
		})
		return nil
	})
}

// SelectFixture records the selected fixture and sends it to every connected
// renderer, or unselects them all for nil. A different fixture starts from
// an empty fixture state.
func (c *Coordinator) SelectFixture(ctx context.Context, fixtureID *protocol.FixtureID) {
	_ = c.svc.Do(ctx, func(ctx context.Context) error {
		c.store.Update(func(prev State) State {
			next := prev
			if !protocol.SameFixture(prev.SelectedFixtureID, fixtureID) {
				next.SelectedFixtureID = fixtureID.Clone()
				next.FixtureState = protocol.FixtureState{}
			}
			return next
		}, func(committed State) {
			for _, id := range committed.ConnectedRendererIDs.IDs() {
				if committed.SelectedFixtureID == nil {
					c.send(ctx, protocol.NewUnselectFixture(id))
					continue
				}
				c.send(ctx, protocol.NewSelectFixture(id, *committed.SelectedFixtureID, committed.FixtureState))
			}
		})
		return nil
	})
}

// OnFixtureStateChange merges state reported by the primary renderer for the
// selected fixture and forwards it to the other renderers. Reports from
// unknown or secondary renderers, or for another fixture, are dropped.
func (c *Coordinator) OnFixtureStateChange(ctx context.Context, rendererID protocol.RendererID, fixtureID protocol.FixtureID, newState protocol.FixtureState) {
	_ = c.svc.Do(ctx, func(ctx context.Context) error {
		current := c.store.Get()
		switch {
		case !current.ConnectedRendererIDs.Has(rendererID):
			c.drop("unknown_renderer", rendererID)
			return nil
		case !current.IsPrimary(rendererID):
			c.drop("secondary_renderer", rendererID)
			return nil
		case current.SelectedFixtureID == nil || !current.SelectedFixtureID.Equal(fixtureID):
			c.drop("other_fixture", rendererID)
			return nil
		}

		c.store.Update(func(prev State) State {
			next := prev
			next.FixtureState = prev.FixtureState.Merge(newState)
			return next
		}, func(committed State) {
			for _, id := range committed.ConnectedRendererIDs.IDs() {
				if id == rendererID {
					continue
				}
				c.send(ctx, protocol.NewSetFixtureState(id, fixtureID, committed.FixtureState))
			}
		})
		return nil
	})
}

// SetFixtureState applies updater to the fixture state of the selected
// fixture and pushes the result to every connected renderer.
func (c *Coordinator) SetFixtureState(ctx context.Context, updater func(protocol.FixtureState) protocol.FixtureState) {
	if updater == nil {
		return
	}
	_ = c.svc.Do(ctx, func(ctx context.Context) error {
		if c.store.Get().SelectedFixtureID == nil {
			c.logger.Debug("No fixture selected, ignoring fixture state edit", nil)
			return nil
		}
		c.store.Update(func(prev State) State {
			next := prev
			next.FixtureState = updater(prev.FixtureState.Clone())
			if next.FixtureState == nil {
				next.FixtureState = protocol.FixtureState{}
			}
			return next
		}, func(committed State) {
			for _, id := range committed.ConnectedRendererIDs.IDs() {
				c.send(ctx, protocol.NewSetFixtureState(id, *committed.SelectedFixtureID, committed.FixtureState))
			}
		})
		return nil
	})
}

// OnRendererDisconnect removes a renderer. When the primary leaves, the
// longest connected remaining renderer takes over and the fixture state is
// kept.
func (c *Coordinator) OnRendererDisconnect(ctx context.Context, rendererID protocol.RendererID) {
	_ = c.svc.Do(ctx, func(ctx context.Context) error {
		if !c.store.Get().ConnectedRendererIDs.Has(rendererID) {
			c.drop("unknown_renderer", rendererID)
			return nil
		}

		c.store.Update(func(prev State) State {
			next := prev
			next.ConnectedRendererIDs = prev.ConnectedRendererIDs.without(rendererID)
			if prev.IsPrimary(rendererID) {
				next.PrimaryRendererID = nil
				if promoted, ok := next.ConnectedRendererIDs.oldest(); ok {
					next.PrimaryRendererID = &promoted
				}
			}
			return next
		}, func(committed State) {
			c.metrics.connected.Set(float64(committed.ConnectedRendererIDs.Len()))
			c.notifier.PushTimedNotification(ctx, notifications.Notification{
				ID:    "renderer-disconnect-" + string(rendererID),
				Type:  notifications.TypeInfo,
				Title: "Renderer disconnected",
			})
		})

		c.logger.Debug("Renderer disconnected", loggingpkg.LogFields{"renderer_id": rendererID})
		return nil
	})
}

// ReloadRenderers asks every connected renderer to reload.
func (c *Coordinator) ReloadRenderers(ctx context.Context) {
	_ = c.svc.Do(ctx, func(ctx context.Context) error {
		ids := c.store.Get().ConnectedRendererIDs.IDs()
		if len(ids) == 0 {
			return nil
		}
		c.send(ctx, protocol.NewReloadRenderer(ids))
		return nil
	})
}

// adoptSelection records a selection read from the URL without touching the
// fixture state.
func (c *Coordinator) adoptSelection(selected *protocol.FixtureID) {
	if protocol.SameFixture(c.store.Get().SelectedFixtureID, selected) {
		return
	}
	c.store.Update(func(prev State) State {
		next := prev
		next.SelectedFixtureID = selected.Clone()
		return next
	}, nil)
}

func (c *Coordinator) send(ctx context.Context, req protocol.RendererRequest) {
	c.metrics.requests.WithLabelValues(req.Type).Inc()
	c.sender.SendRendererRequest(ctx, req)
}

func (c *Coordinator) drop(reason string, rendererID protocol.RendererID) {
	c.metrics.dropped.WithLabelValues(reason).Inc()
	c.logger.Debug("Ignoring renderer message", loggingpkg.LogFields{
		"renderer_id": rendererID,
		"reason":      reason,
	})
}

func (c *Coordinator) handleRendererResponse(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.RendererReady:
		payload, err := protocol.DecodePayload[protocol.RendererReadyPayload](msg)
		if err != nil {
			c.logger.Error("Malformed renderer response", err, loggingpkg.LogFields{"type": msg.Type})
			return
		}
		c.OnRendererReady(ctx, payload.RendererID, payload.Fixtures, payload.InitialFixtureID)
	case protocol.FixtureStateChange:
		payload, err := protocol.DecodePayload[protocol.FixtureStateChangePayload](msg)
		if err != nil {
			c.logger.Error("Malformed renderer response", err, loggingpkg.LogFields{"type": msg.Type})
			return
		}
		c.OnFixtureStateChange(ctx, payload.RendererID, payload.FixtureID, payload.FixtureState)
	case protocol.RendererDisconnect:
		payload, err := protocol.DecodePayload[protocol.RendererDisconnectPayload](msg)
		if err != nil {
			c.logger.Error("Malformed renderer response", err, loggingpkg.LogFields{"type": msg.Type})
			return
		}
		c.OnRendererDisconnect(ctx, payload.RendererID)
	default:
		c.logger.Trace("Ignoring renderer response", loggingpkg.LogFields{"type": msg.Type})
	}
}
