package core

import "errors"

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

// Error code constants used across the connector.
const (
	// ErrCodeInvalidConfig indicates missing or invalid session configuration.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeMalformedMessage indicates an unrecognized wire payload shape.
	ErrCodeMalformedMessage ErrorCode = "MALFORMED_MESSAGE"
	// ErrCodeOrderRejected indicates the exchange refused an order.
	ErrCodeOrderRejected ErrorCode = "ORDER_REJECTED"
	// ErrCodeNotFound indicates a symbol or resource resolution miss.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeStaleEvent indicates a diff that did not advance the sequence.
	ErrCodeStaleEvent ErrorCode = "STALE_EVENT"
	// ErrCodeNetwork indicates a network connectivity failure.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"
	// ErrCodeTimeout indicates the request exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimit indicates the rate limit was exceeded.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT"
	// ErrCodeAuth indicates an authentication failure from the exchange.
	ErrCodeAuth ErrorCode = "AUTH_ERROR"
	// ErrCodeServerError indicates a server-side error.
	ErrCodeServerError ErrorCode = "SERVER_ERROR"
	// ErrCodeExchangeRefusal indicates a response envelope without a
	// success flag.
	ErrCodeExchangeRefusal ErrorCode = "EXCHANGE_REFUSAL"
	// ErrCodeTerminalState indicates a transition attempted on a terminal order.
	ErrCodeTerminalState ErrorCode = "TERMINAL_STATE"
)

// IsErrorCode checks whether err carries the given error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var cerr *ConnectorError
	if errors.As(err, &cerr) {
		return ErrorCode(cerr.Code) == code
	}
	return false
}
