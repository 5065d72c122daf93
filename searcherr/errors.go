package searcherr

import (
	"errors"
	"fmt"

	"github.com/reddit/searchbp.go/transport"
)

// ErrClient is the root of the taxonomy.
//
// It's never returned directly, but every error type in this package returns
// true for errors.Is(err, ErrClient).
var ErrClient = errors.New("searchbp: client error")

// Default messages, used when an error is created without one.
const (
	DefaultTimeoutMessage             = "Timeout Error"
	DefaultConnectionMessage          = "Connection Error"
	DefaultRequestAbortedMessage      = "Request aborted"
	DefaultNoLivingConnectionsMessage = "Given the configuration, the ConnectionPool was not able to find a usable Connection for this request."
	DefaultNotCompatibleMessage       = "The client noticed that the server is not a supported distribution"
	DefaultSerializationMessage       = "Serialization Error"
	DefaultDeserializationMessage     = "Deserialization Error"
	DefaultConfigurationMessage       = "Configuration Error"
	DefaultResponseMessage            = "Response Error"
)

func orDefault(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}

func causeMessage(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

// TimeoutError is returned when a request did not complete before its
// deadline.
type TimeoutError struct {
	Message string
	Meta    *transport.Result
	Cause   error
}

// NewTimeoutError creates a TimeoutError with the default message.
func NewTimeoutError(meta *transport.Result) *TimeoutError {
	return &TimeoutError{Meta: meta}
}

func (e *TimeoutError) Error() string        { return orDefault(e.Message, DefaultTimeoutMessage) }
func (e *TimeoutError) Unwrap() error        { return e.Cause }
func (e *TimeoutError) Is(target error) bool { return target == ErrClient }

// Retryable implements retrybp.RetryableError.
//
// Timeouts are retryable, preferably against a different connection.
func (e *TimeoutError) Retryable() int { return 1 }

// ConnectionError is returned on transport level failures, like refused
// connections or broken sockets.
type ConnectionError struct {
	Message string
	Meta    *transport.Result
	Cause   error
}

// NewConnectionError creates a ConnectionError carrying the cause's message.
func NewConnectionError(cause error, meta *transport.Result) *ConnectionError {
	return &ConnectionError{
		Message: causeMessage(cause),
		Meta:    meta,
		Cause:   cause,
	}
}

func (e *ConnectionError) Error() string        { return orDefault(e.Message, DefaultConnectionMessage) }
func (e *ConnectionError) Unwrap() error        { return e.Cause }
func (e *ConnectionError) Is(target error) bool { return target == ErrClient }

// Retryable implements retrybp.RetryableError.
//
// Connection errors are retryable against a different connection.
func (e *ConnectionError) Retryable() int { return 1 }

// RequestAbortedError is returned when the caller cancelled the request.
type RequestAbortedError struct {
	Message string
	Meta    *transport.Result
	Cause   error
}

// NewRequestAbortedError creates a RequestAbortedError with the default
// message.
func NewRequestAbortedError(cause error, meta *transport.Result) *RequestAbortedError {
	return &RequestAbortedError{Meta: meta, Cause: cause}
}

func (e *RequestAbortedError) Error() string        { return orDefault(e.Message, DefaultRequestAbortedMessage) }
func (e *RequestAbortedError) Unwrap() error        { return e.Cause }
func (e *RequestAbortedError) Is(target error) bool { return target == ErrClient }

// Retryable implements retrybp.RetryableError.
//
// Cancellation is the caller's decision and is never retried.
func (e *RequestAbortedError) Retryable() int { return -1 }

// NoLivingConnectionsError is returned when the pool could not produce any
// usable connection under the current configuration.
type NoLivingConnectionsError struct {
	Message string
	Meta    *transport.Result
}

func (e *NoLivingConnectionsError) Error() string {
	return orDefault(e.Message, DefaultNoLivingConnectionsMessage)
}
func (e *NoLivingConnectionsError) Is(target error) bool { return target == ErrClient }

// Retryable implements retrybp.RetryableError.
func (e *NoLivingConnectionsError) Retryable() int { return -1 }

// NotCompatibleError is returned when the cluster failed the identity or
// version check.
type NotCompatibleError struct {
	Message string
	Meta    *transport.Result
}

func (e *NotCompatibleError) Error() string        { return orDefault(e.Message, DefaultNotCompatibleMessage) }
func (e *NotCompatibleError) Is(target error) bool { return target == ErrClient }

// Retryable implements retrybp.RetryableError.
func (e *NotCompatibleError) Retryable() int { return -1 }

// SerializationError is returned when a payload could not be encoded.
type SerializationError struct {
	Message string
	// Data is the value that failed to serialize.
	Data  interface{}
	Cause error
}

func (e *SerializationError) Error() string        { return orDefault(e.Message, DefaultSerializationMessage) }
func (e *SerializationError) Unwrap() error        { return e.Cause }
func (e *SerializationError) Is(target error) bool { return target == ErrClient }

// Retryable implements retrybp.RetryableError.
func (e *SerializationError) Retryable() int { return -1 }

// DeserializationError is returned when a payload could not be decoded.
type DeserializationError struct {
	Message string
	// Data is the raw payload that failed to deserialize.
	Data  []byte
	Cause error
}

func (e *DeserializationError) Error() string {
	return orDefault(e.Message, DefaultDeserializationMessage)
}
func (e *DeserializationError) Unwrap() error        { return e.Cause }
func (e *DeserializationError) Is(target error) bool { return target == ErrClient }

// Retryable implements retrybp.RetryableError.
func (e *DeserializationError) Retryable() int { return -1 }

// ConfigurationError is returned when the client is set up or called with
// invalid options: a bad protocol, an unknown role, a duplicated connection.
type ConfigurationError struct {
	Message string
}

// Configurationf is a shorthand to create a ConfigurationError.
func Configurationf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string        { return orDefault(e.Message, DefaultConfigurationMessage) }
func (e *ConfigurationError) Is(target error) bool { return target == ErrClient }

// Retryable implements retrybp.RetryableError.
func (e *ConfigurationError) Retryable() int { return -1 }

// Name returns the taxonomy name of err, e.g. "TimeoutError".
//
// It returns an empty string for errors outside of the taxonomy.
func Name(err error) string {
	var (
		timeout       *TimeoutError
		conn          *ConnectionError
		aborted       *RequestAbortedError
		noLiving      *NoLivingConnectionsError
		notCompatible *NotCompatibleError
		response      *ResponseError
		serialize     *SerializationError
		deserialize   *DeserializationError
		config        *ConfigurationError
	)
	switch {
	case errors.As(err, &timeout):
		return "TimeoutError"
	case errors.As(err, &conn):
		return "ConnectionError"
	case errors.As(err, &aborted):
		return "RequestAbortedError"
	case errors.As(err, &noLiving):
		return "NoLivingConnectionsError"
	case errors.As(err, &notCompatible):
		return "NotCompatibleError"
	case errors.As(err, &response):
		return "ResponseError"
	case errors.As(err, &serialize):
		return "SerializationError"
	case errors.As(err, &deserialize):
		return "DeserializationError"
	case errors.As(err, &config):
		return "ConfigurationError"
	}
	return ""
}
