// Package render turns session events into terminal lines.
package render

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/vovakirdan/roomchat/internal/core"
)

const maxSenderRunes = 32

// Messages come from other users; nothing in them may reach the terminal as markup
// or control sequences.
var policy = bluemonday.StrictPolicy()

// Sender returns a printable author label, "anon" when nothing usable is left.
func Sender(m core.Message) string {
	s := clean(m.DisplayName())
	if r := []rune(s); len(r) > maxSenderRunes {
		s = string(r[:maxSenderRunes])
	}
	if s == "" {
		return "anon"
	}
	return s
}

// Body returns the message text without tags or control characters.
func Body(m core.Message) string {
	return clean(m.Body)
}

// Line formats a message: "[15:04] alice: hi", or "* alice joined" for JOIN.
func Line(m core.Message) string {
	var b strings.Builder
	if m.HasTimestamp() {
		b.WriteString("[")
		b.WriteString(m.SentAt.Local().Format("15:04"))
		b.WriteString("] ")
	}
	if m.Kind == core.KindJoin {
		b.WriteString("* ")
		b.WriteString(Sender(m))
		b.WriteString(" joined")
		return b.String()
	}
	b.WriteString(Sender(m))
	b.WriteString(": ")
	b.WriteString(Body(m))
	return b.String()
}

// StateLine describes a state change for the status bar.
func StateLine(ev core.StateEvent) string {
	label := stateLabel(ev.NewState)
	if ev.Error != nil && ev.NewState != core.StateConnected {
		return fmt.Sprintf("-- %s (%v)", label, ev.Error)
	}
	return "-- " + label
}

// NoticeLine formats a user-facing notice.
func NoticeLine(n core.Notice) string {
	return "!! " + n.Text
}

func stateLabel(s core.State) string {
	switch s {
	case core.StateConnected:
		return "Connected"
	case core.StateConnecting:
		return "Connecting..."
	case core.StateReconnecting:
		return "Reconnecting..."
	case core.StateFailed:
		return "Disconnected, giving up"
	default:
		return "Disconnected"
	}
}

func clean(s string) string {
	if s == "" {
		return ""
	}
	sanitized := policy.Sanitize(html.UnescapeString(s))
	sanitized = html.UnescapeString(sanitized)
	sanitized = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, sanitized)
	return strings.TrimSpace(sanitized)
}
