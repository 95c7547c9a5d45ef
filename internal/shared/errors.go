package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrNoSources          = fmt.Errorf("no sources configured")

	// Authentication errors
	ErrAuthFailed          = fmt.Errorf("authentication failed")
	ErrRevokedCredentials  = fmt.Errorf("credentials rejected by remote")
	ErrTimeout             = fmt.Errorf("operation timed out")
	ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

	// Storage errors
	ErrNotFound           = fmt.Errorf("record not found")
	ErrUnsupportedDialect = fmt.Errorf("unsupported database dialect")

	// Stream and publish errors
	ErrStreamClosed       = fmt.Errorf("stream closed")
	ErrInvalidEvent       = fmt.Errorf("invalid event")
	ErrPublishFailed      = fmt.Errorf("publish failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
