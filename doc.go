// Package fixtureflow keeps a live, consistent view of the renderers attached
// to a fixture playground. It tracks which renderers are connected, elects the
// primary one, keeps the selected fixture in the playground URL and in every
// renderer, resets or propagates fixture state, and surfaces build and
// connection events as notifications.
//
// A Playground wires everything together: a runtime Service (an event bus
// whose listeners run in serialized turns, backed by a Watermill router that
// consumes inbound dev server frames in order), the dev server channel, the
// URL router, the renderer coordinator, the notification manager and the
// build notification adapter. Filling Config, creating a Playground with
// NewPlayground, and calling Start is all a host needs.
//
// # Transports
//
// The dev server channel is pluggable through the transport registry:
//   - websocket: JSON frames over a gorilla/websocket connection
//   - memory: in-process pipes, used by tests and embedded dev servers
//
// Custom transports register a TransportDialer with RegisterTransport.
//
// # Runtime
//
// Inbound frames pass the default middleware chain (acknowledgement,
// correlation IDs, structured logging, optional OpenTelemetry tracing and
// Prometheus metrics, panic recovery) before they are emitted on the bus as
// serverMessage and rendererResponse events. Listeners registered with On or
// Subscribe run synchronously in registration order, and nested emits run
// inline within the same turn. HTTP handlers and timers enter a turn with
// Service.Do.
//
// # HTTP
//
// With APIEnabled the playground serves /api/state, /api/notifications,
// /api/select, /api/reload and /api/handlers; with MetricsEnabled it serves
// /metrics on MetricsPort.
package fixtureflow
