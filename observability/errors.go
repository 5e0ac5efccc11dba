package observability

import "errors"

// ErrNilConfig is returned when NewProvider is called without a configuration.
var ErrNilConfig = errors.New("observability: config is nil")

// ErrMissingServiceName is returned when observability is enabled but neither a
// service name nor an application name is configured.
var ErrMissingServiceName = errors.New("observability: service name is required when observability is enabled")

// ErrInvalidSampleRate is returned when the sample ratio is outside [0.0, 1.0].
var ErrInvalidSampleRate = errors.New("observability: trace sample ratio must be between 0.0 and 1.0")

// ErrInvalidProtocol is returned when an OTLP protocol is neither "http" nor "grpc".
var ErrInvalidProtocol = errors.New("observability: protocol must be either 'http' or 'grpc'")
