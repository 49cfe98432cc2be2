package remote

import (
	"errors"
	"fmt"
)

// ConfigurationError means the agent is not configured well enough to talk
// to the service. Only the operator can fix it.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError wraps a failure to obtain any HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response the agent does not understand: an
// unexpected status code, or a body that does not decode.
type ProtocolError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: unexpected response (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: unexpected response (status %d)", e.Op, e.StatusCode)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ValidationError is a 422: the snapshot was well-formed but rejected.
type ValidationError struct {
	Body string
}

func (e *ValidationError) Error() string { return "monitor: invalid message: " + e.Body }

// RateLimitError is a 429.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return "monitor: rate limited: " + e.Message }

// LookupError reports a failed read from a host collaborator. The router
// logs it and falls back to default values.
type LookupError struct {
	Op  string
	Err error
}

func (e *LookupError) Error() string { return fmt.Sprintf("lookup %s: %v", e.Op, e.Err) }

func (e *LookupError) Unwrap() error { return e.Err }

// IsPermanent reports whether err must end a delivery cycle without retry.
func IsPermanent(err error) bool {
	var ve *ValidationError
	var re *RateLimitError
	return errors.As(err, &ve) || errors.As(err, &re)
}
