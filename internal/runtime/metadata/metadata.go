// Package metadata holds the headers that travel with inbound frames through
// the runtime router.
package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// Header keys stamped on every inbound frame.
const (
	KeyEvent         = "fixtureflow_event"
	KeyConnectionID  = "fixtureflow_connection_id"
	KeyCorrelationID = "correlation_id"
	KeyMessageType   = "fixtureflow_message_type"
)

// Metadata represents the headers carried alongside an event.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a copy containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// Event returns the socket event name the frame arrived on.
func (m Metadata) Event() string { return m[KeyEvent] }

// ConnectionID returns the id of the channel that delivered the frame.
func (m Metadata) ConnectionID() string { return m[KeyConnectionID] }

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// FromWatermill copies router message headers into Metadata.
func FromWatermill(md message.Metadata) Metadata {
	if len(md) == 0 {
		return Metadata{}
	}

	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// ToWatermill copies Metadata into a router message header map.
func ToWatermill(metadata Metadata) message.Metadata {
	if len(metadata) == 0 {
		return message.Metadata{}
	}

	wm := make(message.Metadata, len(metadata))
	for k, v := range metadata {
		wm[k] = v
	}
	return wm
}
