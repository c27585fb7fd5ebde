package app

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
)

// EnvPrefix prefixes every environment override, e.g. FIXTUREFLOW_DEV_SERVER_URL.
const EnvPrefix = "FIXTUREFLOW"

// Keys read from the config file and the environment.
const (
	keyDevServerURL        = "dev_server_url"
	keyTransport           = "transport"
	keyWebSocketPath       = "websocket_path"
	keyHandshakeTimeout    = "handshake_timeout"
	keyNotificationTimeout = "notification_timeout"
	keyMetricsEnabled      = "metrics.enabled"
	keyMetricsPort         = "metrics.port"
	keyAPIEnabled          = "api.enabled"
	keyAPIPort             = "api.port"
	keyAPICORSOrigins      = "api.cors_allowed_origins"
	keyTracingEnabled      = "tracing.enabled"
)

// newViper returns a viper instance with defaults and environment overrides.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(keyTransport, configpkg.TransportWebSocket)
	v.SetDefault(keyWebSocketPath, configpkg.DefaultWebSocketPath)
	v.SetDefault(keyHandshakeTimeout, configpkg.DefaultHandshakeTimeout)
	v.SetDefault(keyNotificationTimeout, configpkg.DefaultNotificationTimeout)
	v.SetDefault(keyMetricsPort, configpkg.DefaultMetricsPort)
	v.SetDefault(keyAPIPort, configpkg.DefaultAPIPort)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads path (YAML) when set, applies environment overrides and
// validates the result.
func LoadConfig(v *viper.Viper, path string) (configpkg.Config, error) {
	if v == nil {
		v = newViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return configpkg.Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	conf := configpkg.Config{
		DevServerURL:          v.GetString(keyDevServerURL),
		Transport:             v.GetString(keyTransport),
		WebSocketPath:         v.GetString(keyWebSocketPath),
		HandshakeTimeout:      v.GetDuration(keyHandshakeTimeout),
		NotificationTimeout:   v.GetDuration(keyNotificationTimeout),
		MetricsEnabled:        v.GetBool(keyMetricsEnabled),
		MetricsPort:           v.GetInt(keyMetricsPort),
		APIEnabled:            v.GetBool(keyAPIEnabled),
		APIPort:               v.GetInt(keyAPIPort),
		APICORSAllowedOrigins: v.GetStringSlice(keyAPICORSOrigins),
		TracingEnabled:        v.GetBool(keyTracingEnabled),
	}.WithDefaults()

	if err := configpkg.ValidateConfig(&conf); err != nil {
		return configpkg.Config{}, err
	}
	return conf, nil
}
