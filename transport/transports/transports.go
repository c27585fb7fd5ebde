// Package transports imports all built-in transports for auto-registration.
package transports

import (
	_ "github.com/drblury/fixtureflow/transport/memory"
	_ "github.com/drblury/fixtureflow/transport/websocket"
)
