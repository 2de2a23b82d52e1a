package core

import (
	"errors"
	"fmt"
)

// Error codes reported alongside notices and logs.
const (
	ErrCodeAuthExpired        = "auth_expired"
	ErrCodeChannelUnavailable = "channel_unavailable"
	ErrCodeDecodeFailure      = "decode_failure"
	ErrCodeEmptyInput         = "empty_input"
	ErrCodeNotConnected       = "not_connected"
)

var (
	// ErrAuthExpired means the credentials were rejected or are missing. Never retried.
	ErrAuthExpired = errors.New("authorization expired")
	// ErrChannelUnavailable means the messaging channel could not be reached or was lost.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrDecodeFailure means an inbound frame body could not be decoded.
	ErrDecodeFailure = errors.New("decode failure")
	// ErrEmptyInput is returned by Send for blank text.
	ErrEmptyInput = errors.New("empty input")
	// ErrNotConnected is returned by Send when the session is not connected.
	ErrNotConnected = errors.New("not connected")
	// ErrStopped is returned when an operation reaches a session that was stopped.
	ErrStopped = errors.New("session stopped")
)

// PublishError wraps a transport failure while writing an outbound frame.
type PublishError struct {
	Room string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to room %s: %v", e.Room, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// ErrorCode maps an error to one of the ErrCode constants, or "" if it has none.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthExpired):
		return ErrCodeAuthExpired
	case errors.Is(err, ErrDecodeFailure):
		return ErrCodeDecodeFailure
	case errors.Is(err, ErrEmptyInput):
		return ErrCodeEmptyInput
	case errors.Is(err, ErrNotConnected):
		return ErrCodeNotConnected
	default:
		return ErrCodeChannelUnavailable
	}
}
