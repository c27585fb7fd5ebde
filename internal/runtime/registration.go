package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/fixtureflow/internal/runtime/handlers"
)

// JSONRouteRegistration wires a typed frame handler to an inbound topic.
type JSONRouteRegistration[T any] struct {
	Name    string
	Topic   string
	Handler handlerpkg.FrameHandler[T]
}

// RegisterJSONRoute decodes every frame published on reg.Topic into T and
// runs reg.Handler inside a turn.
func RegisterJSONRoute[T any](svc *Service, reg JSONRouteRegistration[T]) error {
	if svc == nil {
		return errspkg.ErrRuntimeRequired
	}
	if reg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}

	inTurn := func(ctx context.Context, frame handlerpkg.FrameContext[T]) error {
		return svc.Do(ctx, func(ctx context.Context) error {
			return reg.Handler(ctx, frame)
		})
	}

	handler, err := handlerpkg.BuildFrameHandler(inTurn, svc.Logger)
	if err != nil {
		return err
	}

	return svc.registerRoute(reg.Name, reg.Topic, handler)
}

func (s *Service) registerRoute(name, topic string, handler message.NoPublishHandlerFunc) error {
	if name == "" {
		return errspkg.ErrRouteNameRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if s.started.Load() {
		return errspkg.ErrRuntimeStarted
	}

	stats := newRouteStats()
	info := &RouteInfo{
		Name:  name,
		Topic: topic,
		Stats: stats,
	}

	s.routesMu.Lock()
	s.routes = append(s.routes, info)
	s.routesMu.Unlock()

	s.router.AddNoPublisherHandler(
		name,
		topic,
		s.pubSub,
		wrapHandlerWithStats(handler, stats),
	)

	return nil
}

// Routes returns the registered inbound routes.
func (s *Service) Routes() []*RouteInfo {
	s.routesMu.RLock()
	defer s.routesMu.RUnlock()

	out := make([]*RouteInfo, len(s.routes))
	copy(out, s.routes)
	return out
}

func wrapHandlerWithStats(handler message.NoPublishHandlerFunc, stats *RouteStats) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		start := time.Now()
		err := handler(msg)
		stats.record(time.Since(start), err)
		return err
	}
}
