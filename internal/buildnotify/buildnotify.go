// Package buildnotify turns dev server build events into the sticky "build"
// notification.
package buildnotify

import (
	"context"

	"github.com/drblury/fixtureflow/internal/notifications"
	"github.com/drblury/fixtureflow/internal/protocol"
	"github.com/drblury/fixtureflow/internal/runtime"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
)

// NotificationID is the id shared by every build notification.
const NotificationID = "build"

// Notifier is the part of the notification manager this package needs.
type Notifier interface {
	PushStickyNotification(ctx context.Context, n notifications.Notification)
	RemoveStickyNotification(ctx context.Context, id string)
}

var (
	building = notifications.Notification{
		ID:    NotificationID,
		Type:  notifications.TypeLoading,
		Title: "Rebuilding...",
		Info:  "Your code is updating.",
	}
	failed = notifications.Notification{
		ID:    NotificationID,
		Type:  notifications.TypeError,
		Title: "Build failed",
		Info:  "Check your terminal for more information.",
	}
)

// Register subscribes to serverMessage events. The returned function
// unsubscribes.
func Register(svc *runtime.Service, notifier Notifier) (func(), error) {
	if svc == nil {
		return nil, errspkg.ErrRuntimeRequired
	}
	if notifier == nil {
		return nil, errspkg.ErrListenerRequired
	}
	return runtime.Subscribe(svc, protocol.SocketServerMessage, func(ctx context.Context, msg protocol.Message) {
		Handle(ctx, notifier, msg)
	})
}

// Handle applies one server message to notifier. Other message types are ignored.
func Handle(ctx context.Context, notifier Notifier, msg protocol.Message) {
	switch msg.Type {
	case protocol.BuildStart:
		notifier.PushStickyNotification(ctx, building)
	case protocol.BuildError:
		notifier.PushStickyNotification(ctx, failed)
	case protocol.BuildDone:
		notifier.RemoveStickyNotification(ctx, NotificationID)
	}
}
