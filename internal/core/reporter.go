package core

import (
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Reporter receives failures worth alerting on.
type Reporter interface {
	DecodeFailure(room string, body []byte, err error)
	ConnectFailure(room string, attempt int, err error)
	RetriesExhausted(room string, attempts int)
}

const maxLoggedBody = 256

// LogReporter reports through a zerolog logger.
type LogReporter struct {
	log *zerolog.Logger
}

// NewLogReporter builds a reporter that writes structured log lines.
func NewLogReporter(logger *zerolog.Logger) *LogReporter {
	return &LogReporter{log: logger}
}

func (r *LogReporter) DecodeFailure(room string, body []byte, err error) {
	r.log.Error().
		Err(err).
		Str("room", room).
		Str("code", ErrCodeDecodeFailure).
		Str("body", truncate(body)).
		Msg("failed to decode inbound frame")
}

func (r *LogReporter) ConnectFailure(room string, attempt int, err error) {
	r.log.Warn().
		Err(err).
		Str("room", room).
		Str("code", ErrorCode(err)).
		Int("attempt", attempt).
		Msg("channel connection failed")
}

func (r *LogReporter) RetriesExhausted(room string, attempts int) {
	r.log.Error().
		Str("room", room).
		Str("code", ErrCodeChannelUnavailable).
		Int("attempts", attempts).
		Msg("reconnect attempts exhausted")
}

func truncate(body []byte) string {
	if len(body) <= maxLoggedBody {
		return string(body)
	}
	cut := maxLoggedBody
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
