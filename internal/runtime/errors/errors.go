package errors

import sterrors "errors"

var (
	ErrRuntimeRequired     = sterrors.New("fixtureflow: runtime is required")
	ErrListenerRequired    = sterrors.New("fixtureflow: event listener is required")
	ErrEventNameRequired   = sterrors.New("fixtureflow: event name is required")
	ErrRouteNameRequired   = sterrors.New("fixtureflow: route name is required")
	ErrTopicRequired       = sterrors.New("fixtureflow: topic is required")
	ErrConfigRequired      = sterrors.New("fixtureflow: configuration is required")
	ErrLoggerRequired      = sterrors.New("fixtureflow: logger is required")
	ErrDialerRequired      = sterrors.New("fixtureflow: transport dialer is required")
	ErrChannelAlreadyOpen  = sterrors.New("fixtureflow: a dev server channel is already open")
	ErrChannelClosed       = sterrors.New("fixtureflow: channel is closed")
	ErrRuntimeClosed       = sterrors.New("fixtureflow: runtime is closed")
	ErrPayloadTypeMismatch = sterrors.New("fixtureflow: event payload has unexpected type")
	ErrMessageTypeRequired = sterrors.New("fixtureflow: message type is required")
	ErrHandlerRequired     = sterrors.New("fixtureflow: handler is required")
	ErrRuntimeStarted      = sterrors.New("fixtureflow: routes must be registered before Start")
	ErrUnknownTransport    = sterrors.New("fixtureflow: unknown transport")
	ErrDependencyRequired  = sterrors.New("fixtureflow: dependency is required")
)

// ConfigValidationError marks an error produced while validating configuration.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "fixtureflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil so it can
// be applied directly to the result of errors.Join.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
