package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	ffErrors "github.com/drblury/fixtureflow/internal/runtime/errors"
)

// Transport names understood by the default registry.
const (
	TransportWebSocket = "websocket"
	TransportMemory    = "memory"
)

// Defaults applied by WithDefaults.
const (
	DefaultWebSocketPath       = "/"
	DefaultHandshakeTimeout    = 5 * time.Second
	DefaultNotificationTimeout = 3 * time.Second
	DefaultAPIPort             = 8081
	DefaultMetricsPort         = 9090
)

// Config groups the settings of one playground session.
type Config struct {
	// DevServerURL is the base URL of the dev server hosting the renderer
	// socket. An empty value means no dev server is active and the transport
	// adapter stays disconnected.
	DevServerURL string

	// Transport selects the duplex channel implementation: "websocket" or
	// "memory". Empty selects websocket.
	Transport string

	// WebSocketPath is appended to DevServerURL when dialing.
	WebSocketPath string
	// HandshakeTimeout bounds the websocket opening handshake.
	HandshakeTimeout time.Duration

	// NotificationTimeout is how long timed notifications stay on screen.
	NotificationTimeout time.Duration

	// Metrics configuration.
	MetricsEnabled bool
	// MetricsPort is the port where Prometheus metrics will be exposed.
	MetricsPort int

	// API configuration.
	APIEnabled bool
	// APIPort is the port of the read-mostly state API. Defaults to 8081.
	APIPort int
	// APICORSAllowedOrigins specifies allowed origins for CORS. Use "*" for development.
	// Empty disables CORS headers.
	APICORSAllowedOrigins []string

	// TracingEnabled wraps inbound routes in OpenTelemetry spans.
	TracingEnabled bool
}

// GetTransport implements transport.Config.
func (c *Config) GetTransport() string {
	if c.Transport == "" {
		return TransportWebSocket
	}
	return strings.ToLower(c.Transport)
}

// GetDevServerURL implements transport.Config.
func (c *Config) GetDevServerURL() string { return c.DevServerURL }

// GetWebSocketPath implements transport.Config.
func (c *Config) GetWebSocketPath() string { return c.WebSocketPath }

// GetHandshakeTimeout implements transport.Config.
func (c *Config) GetHandshakeTimeout() time.Duration { return c.HandshakeTimeout }

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Transport == "" {
		c.Transport = TransportWebSocket
	}
	if c.WebSocketPath == "" {
		c.WebSocketPath = DefaultWebSocketPath
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.NotificationTimeout == 0 {
		c.NotificationTimeout = DefaultNotificationTimeout
	}
	if c.APIEnabled && c.APIPort == 0 {
		c.APIPort = DefaultAPIPort
	}
	if c.MetricsEnabled && c.MetricsPort == 0 {
		c.MetricsPort = DefaultMetricsPort
	}
	return c
}

func (c Config) String() string {
	copy := c
	if copy.DevServerURL != "" {
		copy.DevServerURL = redactURLCredentials(copy.DevServerURL)
	}
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}

// redactURLCredentials masks the password in URLs like ws://user:pass@host as xxxxx.
func redactURLCredentials(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "***REDACTED_URL***"
	}
	return parsed.Redacted()
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validateTimeouts()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

func (c *Config) validateTransport() []error {
	var errs []error
	switch c.GetTransport() {
	case TransportWebSocket:
		if c.DevServerURL == "" {
			break
		}
		parsed, err := url.Parse(c.DevServerURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("websocket: invalid dev server URL: %w", err))
			break
		}
		switch parsed.Scheme {
		case "http", "https", "ws", "wss":
		default:
			errs = append(errs, fmt.Errorf("websocket: unsupported dev server scheme %q", parsed.Scheme))
		}
		if parsed.Host == "" {
			errs = append(errs, errors.New("websocket: dev server host is required"))
		}
	case TransportMemory:
	default:
		// custom transports registered by the caller validate themselves
	}
	if c.WebSocketPath != "" && !strings.HasPrefix(c.WebSocketPath, "/") {
		errs = append(errs, fmt.Errorf("websocket: path %q must start with /", c.WebSocketPath))
	}
	return errs
}

func (c *Config) validateTimeouts() []error {
	var errs []error
	if c.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("websocket: handshake timeout cannot be negative"))
	}
	if c.NotificationTimeout < 0 {
		errs = append(errs, errors.New("notifications: timeout cannot be negative"))
	}
	return errs
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("api: invalid port %d", c.APIPort))
	}
	if c.MetricsEnabled && c.APIEnabled && c.MetricsPort != 0 && c.MetricsPort == c.APIPort {
		errs = append(errs, fmt.Errorf("api: port %d is already used for metrics", c.APIPort))
	}
	return errs
}

// ValidateConfig validates a config pointer and wraps problems in a
// ConfigValidationError.
func ValidateConfig(c *Config) error {
	if c == nil {
		return ffErrors.ErrConfigRequired
	}
	return ffErrors.NewConfigValidationError(c.Validate())
}
