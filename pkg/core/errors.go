package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of a connector error.
type ErrorType int

// Error type constants categorize errors for handling and retry decisions.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConfiguration indicates missing or invalid credentials or
	// session settings. Fatal; surfaced before any network call.
	ErrorTypeConfiguration
	// ErrorTypeMalformedMessage indicates a wire payload that does not
	// match any expected shape. The message is dropped; the stream continues.
	ErrorTypeMalformedMessage
	// ErrorTypeOrderRejected indicates the exchange explicitly refused an order.
	ErrorTypeOrderRejected
	// ErrorTypeNotFound indicates a symbol or resource resolution miss.
	ErrorTypeNotFound
	// ErrorTypeNetwork indicates a network connectivity issue.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeRateLimit indicates a rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeAuthentication indicates invalid or expired credentials
	// reported by the exchange.
	ErrorTypeAuthentication
	// ErrorTypeServerError indicates a server-side error.
	ErrorTypeServerError
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"CONFIGURATION",
		"MALFORMED_MESSAGE",
		"ORDER_REJECTED",
		"NOT_FOUND",
		"NETWORK",
		"TIMEOUT",
		"RATE_LIMIT",
		"AUTHENTICATION",
		"SERVER_ERROR",
	}[t]
}

// Sentinel errors for common state conditions.
var (
	// ErrClientClosed is returned when using a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrNotConnected is returned when the push channel is not connected.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrStaleEvent is returned for a diff whose sequence does not advance
	// past the last applied event for its pair.
	ErrStaleEvent = errors.New("stale book event")
	// ErrTerminalState is returned when a transition is attempted on an
	// order already in a terminal state.
	ErrTerminalState = errors.New("order is in terminal state")
)

// ConnectorError is a structured error carrying enough context for the
// host engine to decide whether to drop, surface, or hand the failure to
// the transport's retry policy.
type ConnectorError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// Code is a stable machine-readable identifier.
	Code string `json:"code,omitempty"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// Raw contains the offending payload or exchange response for debugging.
	Raw any `json:"raw,omitempty"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *ConnectorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[coinsbit] %s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("[coinsbit] %s: %s", e.Type, e.Message)
}

// WithRaw attaches the offending payload and returns the error for chaining.
func (e *ConnectorError) WithRaw(raw any) *ConnectorError {
	e.Raw = raw
	return e
}

// NewError creates a ConnectorError of the given type.
func NewError(errorType ErrorType, message string) *ConnectorError {
	return &ConnectorError{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewErrorWithCode creates a ConnectorError with a machine-readable code.
func NewErrorWithCode(errorType ErrorType, code ErrorCode, message string) *ConnectorError {
	return &ConnectorError{
		Type:      errorType,
		Code:      string(code),
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewConfigurationError reports missing credentials or session settings.
func NewConfigurationError(message string) *ConnectorError {
	return NewErrorWithCode(ErrorTypeConfiguration, ErrCodeInvalidConfig, message)
}

// NewMalformedMessageError reports a wire payload that matched no expected shape.
func NewMalformedMessageError(message string) *ConnectorError {
	return NewErrorWithCode(ErrorTypeMalformedMessage, ErrCodeMalformedMessage, message)
}

// NewOrderRejectedError reports an order the exchange explicitly refused,
// carrying the raw exchange label and message.
func NewOrderRejectedError(label, message string) *ConnectorError {
	e := NewErrorWithCode(ErrorTypeOrderRejected, ErrCodeOrderRejected, message)
	e.Raw = label
	return e
}

// NewNotFoundError reports a symbol or resource resolution miss.
func NewNotFoundError(message string) *ConnectorError {
	return NewErrorWithCode(ErrorTypeNotFound, ErrCodeNotFound, message)
}

// IsConfigurationError returns true for missing-credential failures.
func IsConfigurationError(err error) bool {
	return isType(err, ErrorTypeConfiguration)
}

// IsMalformedMessageError returns true for unrecognized wire payloads.
func IsMalformedMessageError(err error) bool {
	return isType(err, ErrorTypeMalformedMessage)
}

// IsOrderRejectedError returns true when the exchange refused an order.
func IsOrderRejectedError(err error) bool {
	return isType(err, ErrorTypeOrderRejected)
}

// IsNotFoundError returns true for resolution misses.
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

func isType(err error, t ErrorType) bool {
	var cerr *ConnectorError
	if errors.As(err, &cerr) {
		return cerr.Type == t
	}
	return false
}
