package fixtureflow

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/drblury/fixtureflow/internal/buildnotify"
	"github.com/drblury/fixtureflow/internal/coordinator"
	"github.com/drblury/fixtureflow/internal/messagehandler"
	"github.com/drblury/fixtureflow/internal/notifications"
	"github.com/drblury/fixtureflow/internal/playground"
	"github.com/drblury/fixtureflow/internal/protocol"
	"github.com/drblury/fixtureflow/internal/router"
	runtimepkg "github.com/drblury/fixtureflow/internal/runtime"
	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	idspkg "github.com/drblury/fixtureflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	"github.com/drblury/fixtureflow/internal/runtime/state"
	"github.com/drblury/fixtureflow/transport"
	_ "github.com/drblury/fixtureflow/transport/transports"
)

type (
	Config              = configpkg.Config
	Playground          = playground.Playground
	Options             = playground.Options
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Listener            = runtimepkg.Listener

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	FrameHooks             = runtimepkg.FrameHooks
	FrameInfo              = runtimepkg.FrameInfo

	RouteInfo          = runtimepkg.RouteInfo
	RouteStatsSnapshot = runtimepkg.RouteStatsSnapshot

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigValidationError = errspkg.ConfigValidationError

	// Wire protocol
	RendererID        = protocol.RendererID
	FixtureID         = protocol.FixtureID
	FixtureList       = protocol.FixtureList
	FixtureDescriptor = protocol.FixtureDescriptor
	FixtureState      = protocol.FixtureState
	Message           = protocol.Message
	RendererRequest   = protocol.RendererRequest

	RendererReadyPayload      = protocol.RendererReadyPayload
	FixtureStateChangePayload = protocol.FixtureStateChangePayload
	RendererDisconnectPayload = protocol.RendererDisconnectPayload

	// Coordination
	CoordinatorState = coordinator.State
	RendererSet      = coordinator.RendererSet
	Coordinator      = coordinator.Coordinator
	Router           = router.Router
	Location         = router.Location

	Notification     = notifications.Notification
	NotificationType = notifications.Type

	// Dev server channel
	Disposer              = messagehandler.Disposer
	TransportChannel      = transport.Channel
	TransportConfig       = transport.Config
	TransportDialer       = transport.Dialer
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	NewPlayground  = playground.New
	NewService     = runtimepkg.NewService
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	AcknowledgeMiddleware   = runtimepkg.AcknowledgeMiddleware
	FrameHooksMiddleware    = runtimepkg.FrameHooksMiddleware
	LoggingHooks            = runtimepkg.LoggingHooks
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	NewFixtureID = protocol.NewFixtureID
	NewMessage   = protocol.NewMessage
	NewLocation  = router.NewLocation
	ParseURL     = router.ParseURL
	FixtureURL   = router.FixtureURL

	// Transport registry. The websocket and memory transports are registered
	// by importing this package.
	DefaultTransportRegistry = transport.DefaultRegistry
	NewTransportRegistry     = transport.NewRegistry
	RegisterTransport        = transport.Register

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrRuntimeRequired    = errspkg.ErrRuntimeRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrChannelAlreadyOpen = errspkg.ErrChannelAlreadyOpen
	ErrChannelClosed      = errspkg.ErrChannelClosed
	ErrRuntimeClosed      = errspkg.ErrRuntimeClosed
	ErrUnknownTransport   = errspkg.ErrUnknownTransport

	NewSlogServiceLogger   = loggingpkg.NewSlogServiceLogger
	NewLogrusServiceLogger = loggingpkg.NewLogrusServiceLogger
	NewNopServiceLogger    = loggingpkg.NewNopServiceLogger

	CreateULID    = idspkg.CreateULID
	NewRendererID = idspkg.NewRendererID
)

// Events emitted on the runtime bus.
const (
	EventServerMessage       = protocol.SocketServerMessage
	EventRendererResponse    = protocol.SocketRendererResponse
	EventRendererRequest     = protocol.SocketRendererRequest
	EventFixtureChange       = router.EventFixtureChange
	EventNotificationsChange = notifications.EventNotificationsChange
)

// Dev server message types.
const (
	MessageRendererReady      = protocol.RendererReady
	MessageFixtureStateChange = protocol.FixtureStateChange
	MessageRendererDisconnect = protocol.RendererDisconnect
	MessageBuildStart         = protocol.BuildStart
	MessageBuildError         = protocol.BuildError
	MessageBuildDone          = protocol.BuildDone
)

// Notification types.
const (
	NotificationSuccess = notifications.TypeSuccess
	NotificationError   = notifications.TypeError
	NotificationInfo    = notifications.TypeInfo
	NotificationLoading = notifications.TypeLoading
)

// BuildNotificationID is the id of the notification tracking dev server builds.
const BuildNotificationID = buildnotify.NotificationID

// Transport names.
const (
	TransportWebSocket = configpkg.TransportWebSocket
	TransportMemory    = configpkg.TransportMemory
)

// Subscribe registers a listener that only receives payloads of type T.
func Subscribe[T any](svc *Service, event string, listener func(ctx context.Context, payload T)) (func(), error) {
	return runtimepkg.Subscribe(svc, event, listener)
}

// NewStore returns a versioned state record for a plugin.
func NewStore[S any](initial S) *state.Store[S] {
	return state.NewStore(initial)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

// NewLogrusLogger returns a ServiceLogger writing through a fresh logrus
// logger at level.
func NewLogrusLogger(level logrus.Level) ServiceLogger {
	log := logrus.New()
	log.SetLevel(level)
	return loggingpkg.NewLogrusServiceLogger(log)
}
