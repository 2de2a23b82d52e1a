package http

import (
	"context"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

const maxResponseBytes = 4 << 20

// StatusError is returned for non-2xx responses other than 401.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the chat REST API: history and mark-read.
// It implements core.HistoryFetcher and core.ReadMarker.
type Client struct {
	base *url.URL
	http *stdhttp.Client
	log  zerolog.Logger
}

// NewClient builds an API client for baseURL, e.g. http://localhost:8080/api.
func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", baseURL)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		base: base,
		http: &stdhttp.Client{Timeout: timeout},
		log:  logger.With().Str("component", "api").Logger(),
	}, nil
}

// History fetches the stored messages of a room, oldest first.
// GET {base}/chat/history/{room}
func (c *Client) History(ctx context.Context, room string, creds auth.Credentials) ([]core.Message, error) {
	body, err := c.do(ctx, stdhttp.MethodGet, "/chat/history/"+url.PathEscape(room), creds)
	if err != nil {
		return nil, err
	}
	msgs, err := proto.DecodeHistory(body)
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	for i := range msgs {
		if msgs[i].Room == "" {
			msgs[i].Room = room
		}
	}
	c.log.Debug().Str("room", room).Int("messages", len(msgs)).Msg("history fetched")
	return msgs, nil
}

// MarkRead tells the server the user has seen the room.
// POST {base}/chat/room/{room}/read
func (c *Client) MarkRead(ctx context.Context, room string, creds auth.Credentials) error {
	_, err := c.do(ctx, stdhttp.MethodPost, "/chat/room/"+url.PathEscape(room)+"/read", creds)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, creds auth.Credentials) ([]byte, error) {
	if creds.Token == "" {
		return nil, auth.ErrMissingToken
	}

	u := *c.base
	u.Path = c.base.Path + path
	req, err := stdhttp.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", creds.Bearer())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == stdhttp.StatusUnauthorized:
		return nil, fmt.Errorf("%s %s: %w", method, path, auth.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
