// Package transport defines the duplex channel between the playground and the
// dev server. Each implementation lives in its own sub-package and registers
// a Dialer with the transport registry.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
)

// Listener receives the raw data of one inbound socket event. Listeners of a
// channel are invoked sequentially, in frame order, on the channel's reader.
type Listener func(data []byte)

// Channel is an open duplex connection carrying named socket events.
type Channel interface {
	// On registers listener for event and returns a function removing it.
	On(event string, listener Listener) (unsubscribe func())
	// Emit sends data, which must be a JSON document, as event.
	Emit(ctx context.Context, event string, data []byte) error
	// Close tears the connection down. Further Emits fail.
	Close() error
}

// Dialer opens a Channel according to cfg.
type Dialer func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Channel, error)

// Config provides the values transports need without depending on the full
// config package.
type Config interface {
	// GetTransport returns the transport name.
	GetTransport() string

	GetDevServerURL() string
	GetWebSocketPath() string
	GetHandshakeTimeout() time.Duration
}

// Frame is the wire envelope of a socket event: {"event": name, "data": msg}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeFrame wraps data into a frame for event.
func EncodeFrame(event string, data []byte) ([]byte, error) {
	if event == "" {
		return nil, errors.New("frame event is required")
	}
	if len(data) == 0 {
		data = []byte("null")
	}
	if !jsoncodec.Valid(data) {
		return nil, fmt.Errorf("frame data for %q is not valid JSON", event)
	}
	return jsoncodec.Marshal(Frame{Event: event, Data: data})
}

// DecodeFrame parses a frame received from the wire.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := jsoncodec.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Event == "" {
		return Frame{}, errors.New("decode frame: missing event")
	}
	return frame, nil
}
