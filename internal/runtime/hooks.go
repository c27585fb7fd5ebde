package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/fixtureflow/internal/runtime/metadata"
)

// FrameInfo describes one inbound frame passing through a route.
type FrameInfo struct {
	Route        string
	Topic        string
	Event        string
	ConnectionID string
	MessageUUID  string
	Context      context.Context
	StartedAt    time.Time
	// Duration is only set for OnFrameDone and OnFrameError.
	Duration time.Duration
}

// FrameHooks observe inbound frames. Nil hooks are skipped.
type FrameHooks struct {
	OnFrameStart func(info FrameInfo)
	OnFrameDone  func(info FrameInfo)
	OnFrameError func(info FrameInfo, err error)
}

// Merge returns hooks calling h first and other second.
func (h FrameHooks) Merge(other FrameHooks) FrameHooks {
	return FrameHooks{
		OnFrameStart: chain(h.OnFrameStart, other.OnFrameStart),
		OnFrameDone:  chain(h.OnFrameDone, other.OnFrameDone),
		OnFrameError: chainErr(h.OnFrameError, other.OnFrameError),
	}
}

// IsZero reports whether no hook is set.
func (h FrameHooks) IsZero() bool {
	return h.OnFrameStart == nil && h.OnFrameDone == nil && h.OnFrameError == nil
}

func chain(a, b func(FrameInfo)) func(FrameInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info FrameInfo) {
		a(info)
		b(info)
	}
}

func chainErr(a, b func(FrameInfo, error)) func(FrameInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info FrameInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

// FrameHooksMiddleware invokes hooks around every handled frame.
func FrameHooksMiddleware(hooks FrameHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "frame_hooks",
		Middleware: frameHooksMiddleware(hooks),
	}
}

func frameHooksMiddleware(hooks FrameHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx := msg.Context()
			md := metadatapkg.FromWatermill(msg.Metadata)
			info := FrameInfo{
				Route:        message.HandlerNameFromCtx(ctx),
				Topic:        message.SubscribeTopicFromCtx(ctx),
				Event:        md.Event(),
				ConnectionID: md.ConnectionID(),
				MessageUUID:  msg.UUID,
				Context:      ctx,
				StartedAt:    time.Now(),
			}

			if hooks.OnFrameStart != nil {
				hooks.OnFrameStart(info)
			}

			produced, err := h(msg)
			info.Duration = time.Since(info.StartedAt)

			if err != nil {
				if hooks.OnFrameError != nil {
					hooks.OnFrameError(info, err)
				}
			} else if hooks.OnFrameDone != nil {
				hooks.OnFrameDone(info)
			}
			return produced, err
		}
	}
}

// LoggingHooks trace every frame and log failures.
func LoggingHooks(logger loggingpkg.ServiceLogger) FrameHooks {
	fields := func(info FrameInfo) loggingpkg.LogFields {
		return loggingpkg.LogFields{
			"route":         info.Route,
			"event":         info.Event,
			"connection_id": info.ConnectionID,
			"message_uuid":  info.MessageUUID,
		}
	}
	return FrameHooks{
		OnFrameStart: func(info FrameInfo) {
			logger.Trace("Frame started", fields(info))
		},
		OnFrameDone: func(info FrameInfo) {
			f := fields(info)
			f["duration_ms"] = info.Duration.Milliseconds()
			logger.Trace("Frame handled", f)
		},
		OnFrameError: func(info FrameInfo, err error) {
			f := fields(info)
			f["duration_ms"] = info.Duration.Milliseconds()
			logger.Error("Frame failed", err, f)
		},
	}
}
