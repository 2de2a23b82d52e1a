package proto

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Dialect names accepted in configuration.
const (
	DialectApp    = "app"
	DialectSimple = "simple"
)

// Dialect describes where a server expects frames and what they look like.
// It implements core.Codec.
type Dialect struct {
	Name        string
	topicFmt    string
	destFmt     string
	encodeFrame func(core.Outbound) any
}

var _ core.Codec = (*Dialect)(nil)

// AppDialect talks to /app/chat/{room} and listens on /topic/chat/{room}.
var AppDialect = &Dialect{
	Name:     DialectApp,
	topicFmt: "/topic/chat/%s",
	destFmt:  "/app/chat/%s",
	encodeFrame: func(out core.Outbound) any {
		return AppOutbound{
			MessageType: string(out.Kind),
			RoomID:      roomValue(out.Room),
			Content:     out.Body,
			SenderEmail: out.Sender,
		}
	},
}

// SimpleDialect talks to /publish/{room} and listens on /topic/{room}.
var SimpleDialect = &Dialect{
	Name:     DialectSimple,
	topicFmt: "/topic/%s",
	destFmt:  "/publish/%s",
	encodeFrame: func(out core.Outbound) any {
		frame := SimpleOutbound{SenderEmail: out.Sender, Message: out.Body}
		if out.Kind != core.KindChat {
			frame.MessageType = string(out.Kind)
		}
		return frame
	},
}

// DialectByName resolves a configured dialect name.
func DialectByName(name string) (*Dialect, error) {
	switch name {
	case "", DialectApp:
		return AppDialect, nil
	case DialectSimple:
		return SimpleDialect, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

func (d *Dialect) Topic(room string) string {
	return fmt.Sprintf(d.topicFmt, room)
}

func (d *Dialect) Destination(room string) string {
	return fmt.Sprintf(d.destFmt, room)
}

func (d *Dialect) Decode(body []byte) (core.Message, error) {
	return DecodeMessage(body)
}

func (d *Dialect) Encode(out core.Outbound) ([]byte, error) {
	if out.Kind == "" {
		out.Kind = core.KindChat
	}
	return json.Marshal(d.encodeFrame(out))
}
