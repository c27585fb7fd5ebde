/*
Package runtime is the plugin runtime of a playground session.

# Architecture Overview

Plugins never share memory directly. They talk through a typed event bus and
keep their own versioned state records (see the state sub-package). Every
listener runs inside a turn: a run-to-completion section guarded by a single
mutex, so a plugin never observes another plugin half way through a reaction.

# Package Structure

## Core Service (service.go)

The Service wires together:
  - the event bus (bus.go)
  - a watermill router fed by a blocking GoChannel for inbound frames
  - the middleware chain
  - HTTP servers for metrics and the state API

## Event Bus (bus.go)

On registers listeners, Emit delivers synchronously in registration order and
Do runs arbitrary work in a turn. Emit and Do called with a context that is
already inside a turn run inline, which is how nested events work. Callers
outside a turn (HTTP handlers, timers) block until the current turn ends.

## Inbound Routes (registration.go)

RegisterJSONRoute decodes frames published with Service.Publish and runs the
handler inside a turn. Publish returns only once the handler finished, which
keeps frames of one channel strictly ordered. Publish must never be called
from inside a turn.

## Middleware (middleware.go)

The default chain, outermost first:
  - acknowledge: logs failures and acknowledges the frame anyway
  - correlation_id: stamps a correlation id
  - log_messages: debug log of every frame
  - tracer: OpenTelemetry span per frame (Config.TracingEnabled)
  - metrics: watermill Prometheus router metrics (Config.MetricsEnabled)
  - recoverer: turns panics into errors

ServiceDependencies.Hooks adds FrameHooks innermost (hooks.go).

## HTTP (api.go)

Config.APIEnabled mounts /api/handlers plus whatever plugins register with
RegisterAPIHandler. Config.MetricsEnabled mounts /metrics.

# Sub-packages

  - config: session configuration and validation
  - errors: sentinel errors
  - handlers: typed frame decoding
  - ids: ULID based identifiers
  - jsoncodec: the JSON implementation
  - logging: ServiceLogger and its adapters
  - metadata: frame headers
  - state: versioned state records
*/
package runtime
