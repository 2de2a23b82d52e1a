// Package stompws runs a STOMP session over a WebSocket and exposes it as a
// core.Channel.
package stompws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/core"
)

// ErrTeardownTimeout is returned when the broker does not confirm an
// unsubscribe or disconnect in time.
var ErrTeardownTimeout = errors.New("stomp teardown timed out")

const contentTypeJSON = "application/json"

// Config describes how to reach the broker.
type Config struct {
	URL               string
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration
	HandshakeTimeout  time.Duration
	TeardownTimeout   time.Duration
	ReadLimit         int64
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.TeardownTimeout <= 0 {
		c.TeardownTimeout = 2 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	return c
}

// Dialer opens STOMP channels. It implements core.Dialer.
type Dialer struct {
	cfg Config
	log zerolog.Logger
}

// NewDialer builds a dialer for the broker at cfg.URL.
func NewDialer(cfg Config, logger *zerolog.Logger) *Dialer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dialer{
		cfg: cfg.withDefaults(),
		log: logger.With().Str("component", "stomp").Logger(),
	}
}

type connectResult struct {
	conn *stomp.Conn
	err  error
}

// Dial upgrades to a WebSocket, then performs the STOMP CONNECT handshake with
// the bearer token in both the upgrade request and the CONNECT frame.
func (d *Dialer) Dial(ctx context.Context, creds auth.Credentials) (core.Channel, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse channel url: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", creds.Bearer())
	ws, resp, err := websocket.Dial(dialCtx, d.cfg.URL, &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: []string{"v12.stomp", "v11.stomp"},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, classifyDial(resp, err)
	}
	ws.SetReadLimit(d.cfg.ReadLimit)

	// The stream outlives the dial context.
	streamCtx, stopStream := context.WithCancel(context.Background())
	stream := websocket.NetConn(streamCtx, ws, websocket.MessageText)

	done := make(chan connectResult, 1)
	go func() {
		conn, err := stomp.Connect(stream,
			stomp.ConnOpt.Host(u.Hostname()),
			stomp.ConnOpt.AcceptVersion(stomp.V12, stomp.V11),
			stomp.ConnOpt.HeartBeat(d.cfg.HeartbeatOutgoing, d.cfg.HeartbeatIncoming),
			stomp.ConnOpt.Header("Authorization", creds.Bearer()),
		)
		done <- connectResult{conn: conn, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			stopStream()
			_ = ws.Close(websocket.StatusNormalClosure, "connect failed")
			return nil, fmt.Errorf("stomp connect: %w", Classify(res.err))
		}
		d.log.Debug().Str("url", d.cfg.URL).Msg("stomp connected")
		return &channel{
			conn:     res.conn,
			ws:       ws,
			stream:   stream,
			stop:     stopStream,
			teardown: d.cfg.TeardownTimeout,
			log:      d.log,
		}, nil
	case <-dialCtx.Done():
		stopStream()
		_ = stream.Close()
		go func() {
			if res := <-done; res.conn != nil {
				_ = res.conn.MustDisconnect()
			}
		}()
		return nil, fmt.Errorf("stomp connect: %w", dialCtx.Err())
	}
}

type channel struct {
	conn     *stomp.Conn
	ws       *websocket.Conn
	stream   net.Conn
	stop     context.CancelFunc
	teardown time.Duration
	log      zerolog.Logger

	closeOnce sync.Once
}

func (c *channel) Subscribe(dest string) (core.Subscription, error) {
	sub, err := c.conn.Subscribe(dest, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", dest, Classify(err))
	}
	s := &subscription{
		sub:      sub,
		frames:   make(chan core.Frame, 64),
		stop:     make(chan struct{}),
		teardown: c.teardown,
	}
	go s.forward()
	return s, nil
}

func (c *channel) Publish(dest string, body []byte) error {
	if err := c.conn.Send(dest, contentTypeJSON, body); err != nil {
		return fmt.Errorf("send %s: %w", dest, Classify(err))
	}
	return nil
}

// Close disconnects politely, falling back to a hard close when the broker
// does not answer within the teardown timeout.
func (c *channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = withTimeout(c.teardown, c.conn.Disconnect)
		if err != nil {
			_ = c.conn.MustDisconnect()
		}
		c.stop()
		_ = c.stream.Close()
		_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
		if errors.Is(err, stomp.ErrAlreadyClosed) || errors.Is(err, stomp.ErrClosedUnexpectedly) {
			err = nil
		}
		if err != nil {
			c.log.Debug().Err(err).Msg("stomp disconnect")
		}
	})
	return err
}

type subscription struct {
	sub      *stomp.Subscription
	frames   chan core.Frame
	stop     chan struct{}
	teardown time.Duration
	once     sync.Once
}

func (s *subscription) Frames() <-chan core.Frame { return s.frames }

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = withTimeout(s.teardown, func() error { return s.sub.Unsubscribe() })
		if errors.Is(err, stomp.ErrCompletedSubscription) || errors.Is(err, stomp.ErrAlreadyClosed) {
			err = nil
		}
	})
	return err
}

// forward copies broker messages into frames until the subscription ends. A
// message carrying an error is forwarded once and ends the stream.
func (s *subscription) forward() {
	defer close(s.frames)
	for msg := range s.sub.C {
		frame := core.Frame{Body: msg.Body}
		if msg.Err != nil {
			frame = core.Frame{Err: Classify(msg.Err)}
		}
		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		}
		if frame.Err != nil {
			return
		}
	}
}

func withTimeout(d time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrTeardownTimeout
	}
}
