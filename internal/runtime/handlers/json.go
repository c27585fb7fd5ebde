package handlers

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/fixtureflow/internal/runtime/metadata"
)

// FrameContext exposes a decoded inbound frame and its headers.
type FrameContext[T any] struct {
	MessageContextBase
	Payload T
}

// FrameHandler consumes one decoded frame. Returned errors are logged by the
// router; frames are never redelivered.
type FrameHandler[T any] func(ctx context.Context, frame FrameContext[T]) error

// BuildFrameHandler converts a typed frame handler into a watermill handler
// that decodes the JSON payload into T before invoking it.
func BuildFrameHandler[T any](handler FrameHandler[T], logger loggingpkg.ServiceLogger) (message.NoPublishHandlerFunc, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	return func(msg *message.Message) error {
		var payload T
		if err := jsoncodec.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal frame payload: %w", err)
		}

		md := metadatapkg.FromWatermill(msg.Metadata)
		frame := FrameContext[T]{
			MessageContextBase: MessageContextBase{
				Metadata: md,
				Logger: logger.With(loggingpkg.LogFields{
					"message_uuid":  msg.UUID,
					"event":         md.Event(),
					"connection_id": md.ConnectionID(),
				}),
			},
			Payload: payload,
		}

		return handler(msg.Context(), frame)
	}, nil
}
