package transport

// Capabilities describes what a channel implementation guarantees.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// SupportsOrdering indicates frames of one direction arrive in send order.
	SupportsOrdering bool

	// CrossProcess indicates the peer can live in another process.
	CrossProcess bool

	// MaxFrameSize is the largest frame in bytes (0 = unlimited/unknown).
	MaxFrameSize int64
}

// Predefined capability sets for the built-in transports.
var (
	// WebSocketCapabilities for the gorilla/websocket transport.
	WebSocketCapabilities = Capabilities{
		Name:             "websocket",
		SupportsOrdering: true,
		CrossProcess:     true,
		MaxFrameSize:     1 << 20,
	}

	// MemoryCapabilities for the in-process transport.
	MemoryCapabilities = Capabilities{
		Name:             "memory",
		SupportsOrdering: true,
	}
)

// GetCapabilities returns the capabilities for a transport by name from the
// default registry.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
