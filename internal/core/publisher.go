package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Send publishes text to the room. The message is not added to the store: it
// shows up when the server echoes it back through the subscription, unless
// OptimisticEcho is enabled.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if !s.running.Load() {
		return ErrNotConnected
	}

	var err error
	if execErr := s.exec(ctx, func() { err = s.send(text) }); execErr != nil {
		if errors.Is(execErr, ErrStopped) {
			return fmt.Errorf("%w: %w", ErrNotConnected, execErr)
		}
		return execErr
	}
	return err
}

func (s *Session) send(text string) error {
	if s.state != StateConnected || s.channel == nil {
		return ErrNotConnected
	}

	out := s.outbound(KindChat, text)
	if err := s.publish(out); err != nil {
		s.log.Error().Err(err).Msg("failed to send message")
		s.notify(Notice{
			Kind: NoticeSendFailed,
			Text: "Message could not be sent.",
			Code: ErrCodeChannelUnavailable,
		})
		return err
	}

	if s.opts.OptimisticEcho {
		msg := Message{
			Room:   s.room,
			Sender: out.Sender,
			Body:   out.Body,
			SentAt: s.clock.Now(),
			Kind:   out.Kind,
		}
		s.store.Append(msg)
		s.emit(Event{Kind: EventMessage, Room: s.room, Message: msg})
	}
	return nil
}

func (s *Session) outbound(kind Kind, body string) Outbound {
	out := Outbound{Room: s.room, Body: body, Kind: kind}
	if c := s.creds.Load(); c != nil {
		out.Sender = c.Identity
	}
	return out
}

func (s *Session) publish(out Outbound) error {
	if s.channel == nil {
		return ErrNotConnected
	}
	body, err := s.codec.Encode(out)
	if err != nil {
		return &PublishError{Room: s.room, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := s.channel.Publish(s.codec.Destination(s.room), body); err != nil {
		return &PublishError{Room: s.room, Err: err}
	}
	s.log.Debug().Str("kind", string(out.Kind)).Msg("frame published")
	return nil
}
