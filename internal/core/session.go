package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// Options tune a session. Zero values fall back to DefaultOptions.
type Options struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	RequestTimeout       time.Duration // bound for history and mark-read calls
	AnnounceJoin         bool          // publish a JOIN frame after each subscribe
	OptimisticEcho       bool          // append sent messages before the server echoes them
	EventBuffer          int
}

// DefaultOptions mirrors the behaviour of the web client: 5s fixed delay, 5 attempts.
func DefaultOptions() Options {
	return Options{
		ReconnectDelay:       5 * time.Second,
		MaxReconnectAttempts: 5,
		RequestTimeout:       10 * time.Second,
		EventBuffer:          256,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = def.RequestTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = def.EventBuffer
	}
	return o
}

// Deps are the collaborators of a session. Dialer and Codec are required.
type Deps struct {
	Dialer   Dialer
	Codec    Codec
	History  HistoryFetcher
	Reads    ReadMarker
	Reporter Reporter
	Clock    clock.Clock
	Logger   *zerolog.Logger
}

// Session is the chat session of one room view: it owns the channel, the
// subscription, the retry timer and the message store.
//
// All state is confined to the Run loop. Other goroutines (dials, the inbound
// pump, the retry timer) post tasks to the loop and never touch fields directly.
type Session struct {
	ID   string
	room string

	dialer   Dialer
	codec    Codec
	history  HistoryFetcher
	reads    ReadMarker
	reporter Reporter
	clock    clock.Clock
	log      zerolog.Logger
	opts     Options

	store  *Store
	events chan Event
	tasks  chan func()
	done   chan struct{}

	running  atomic.Bool
	stateVal atomic.Int32
	attemptN atomic.Int32
	creds    atomic.Pointer[auth.Credentials]
	stopOnce sync.Once

	// loop-owned
	ctx        context.Context
	state      State
	stopped    bool
	gen        uint64
	attempts   int
	channel    Channel
	sub        Subscription
	pumpStop   chan struct{}
	retry      *clock.Timer
	retrySeq   uint64
	dialCancel context.CancelFunc
}

// NewSession constructs a session for one room. Call Run before Start.
func NewSession(room string, deps Deps, opts Options) *Session {
	opts = opts.withDefaults()

	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	id := utils.NewID()
	return &Session{
		ID:       id,
		room:     room,
		dialer:   deps.Dialer,
		codec:    deps.Codec,
		history:  deps.History,
		reads:    deps.Reads,
		reporter: reporter,
		clock:    clk,
		log: logger.With().
			Str("component", "session").
			Str("session_id", id).
			Str("room", room).
			Logger(),
		opts:   opts,
		store:  NewStore(),
		events: make(chan Event, opts.EventBuffer),
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
		ctx:    context.Background(),
	}
}

// Room returns the room identifier.
func (s *Session) Room() string { return s.room }

// State returns the current lifecycle state. Safe from any goroutine.
func (s *Session) State() State { return State(s.stateVal.Load()) }

// Attempts returns the number of consecutive failed connection attempts.
func (s *Session) Attempts() int { return int(s.attemptN.Load()) }

// Store returns the message store for rendering.
func (s *Session) Store() *Store { return s.store }

// HistoryLoaded reports whether the room history has been seeded.
func (s *Session) HistoryLoaded() bool { return s.store.Seeded() }

// Snapshot returns the messages in display order.
func (s *Session) Snapshot() []Message { return s.store.Snapshot() }

// Events delivers session events. It is closed when Run returns.
func (s *Session) Events() <-chan Event { return s.events }

// Run processes session tasks until ctx is cancelled. The subscription and the
// channel are released before Run returns.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	s.ctx = ctx
	defer close(s.done)
	defer close(s.events)

	for {
		select {
		case task := <-s.tasks:
			task()
		case <-ctx.Done():
			if !s.stopped {
				s.stopped = true
				s.halt()
				if s.state != StateFailed {
					s.setState(StateDisconnected, ctx.Err())
				}
			}
			return ctx.Err()
		}
	}
}

// Start begins connecting with the given credentials. Missing or expired
// credentials move the session to Failed and raise a LoginRequired notice.
func (s *Session) Start(creds auth.Credentials) {
	s.creds.Store(&creds)
	s.do(func() { s.start(creds) })
}

// Stop marks the room read (best effort), then releases the subscription, the
// channel and any pending retry. Safe to call in any state, more than once.
func (s *Session) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.markRead(ctx)
		if err := s.exec(ctx, s.stop); err != nil && !errors.Is(err, ErrStopped) {
			s.log.Warn().Err(err).Msg("stop did not complete")
		}
	})
}

// do posts a task to the loop without waiting for it.
func (s *Session) do(fn func()) bool {
	select {
	case s.tasks <- fn:
		return true
	case <-s.done:
		return false
	}
}

// exec runs fn on the loop and waits for it. Without a running loop fn runs inline.
func (s *Session) exec(ctx context.Context, fn func()) error {
	if !s.running.Load() {
		fn()
		return nil
	}

	finished := make(chan struct{})
	select {
	case s.tasks <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) start(creds auth.Credentials) {
	if s.stopped || s.state != StateDisconnected {
		s.log.Debug().Str("state", s.state.String()).Msg("start ignored")
		return
	}

	if err := auth.Check(creds, s.clock.Now()); err != nil {
		s.log.Warn().Err(err).Msg("credentials unusable, login required")
		s.failAuth(err)
		return
	}

	s.loadHistory(creds)
	s.setState(StateConnecting, nil)
	s.connect()
}

func (s *Session) stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	s.halt()
	if s.state != StateFailed {
		s.setState(StateDisconnected, nil)
	}
	s.log.Info().Msg("session stopped")
}

func (s *Session) markRead(ctx context.Context) {
	if s.reads == nil {
		return
	}
	var creds auth.Credentials
	if c := s.creds.Load(); c != nil {
		creds = *c
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	if err := s.reads.MarkRead(ctx, s.room, creds); err != nil {
		s.log.Warn().Err(err).Msg("failed to mark messages as read")
	}
}

func (s *Session) loadHistory(creds auth.Credentials) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
	go func() {
		defer cancel()
		msgs, err := s.history.History(ctx, s.room, creds)
		s.do(func() { s.onHistory(msgs, err) })
	}()
}

func (s *Session) onHistory(msgs []Message, err error) {
	if s.stopped || s.state == StateFailed {
		return
	}
	if err != nil {
		if auth.IsAuthError(err) {
			s.log.Warn().Err(err).Msg("history rejected credentials")
			s.failAuth(err)
			return
		}
		s.log.Error().Err(err).Msg("failed to load chat history")
		return
	}

	s.store.Seed(msgs)
	s.log.Debug().Int("messages", len(msgs)).Msg("history loaded")
	s.emit(Event{Kind: EventHistory, Room: s.room, Messages: slices.Clone(msgs)})
}

// connect starts one connection attempt in the background.
func (s *Session) connect() {
	if s.dialCancel != nil {
		s.dialCancel()
	}
	s.gen++
	gen := s.gen

	var creds auth.Credentials
	if c := s.creds.Load(); c != nil {
		creds = *c
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.dialCancel = cancel

	s.log.Debug().Uint64("gen", gen).Int("attempt", s.attempts+1).Msg("dialing channel")
	go func() {
		ch, err := s.dialer.Dial(ctx, creds)
		if ch != nil && ctx.Err() != nil {
			_ = ch.Close()
			return
		}
		s.handOff(ch, func() { s.onDial(gen, ch, err) })
	}()
}

// handOff posts a dial result to the loop. If the loop exits before running
// it, the channel is closed here instead.
func (s *Session) handOff(ch Channel, fn func()) {
	taken := make(chan struct{})
	if !s.do(func() { close(taken); fn() }) {
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	if ch == nil {
		return
	}
	select {
	case <-taken:
	case <-s.done:
		select {
		case <-taken:
		default:
			s.log.Debug().Msg("loop exited before dial result, closing channel")
			_ = ch.Close()
		}
	}
}

func (s *Session) onDial(gen uint64, ch Channel, err error) {
	if gen != s.gen || s.stopped || s.state == StateFailed {
		if ch != nil {
			s.log.Debug().Uint64("gen", gen).Msg("discarding stale channel")
			_ = ch.Close()
		}
		return
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	if err != nil {
		s.onChannelError(err)
		return
	}
	s.onConnected(ch)
}

// onConnected subscribes to the room topic and resets the attempt counter.
func (s *Session) onConnected(ch Channel) {
	sub, err := ch.Subscribe(s.codec.Topic(s.room))
	if err != nil {
		_ = ch.Close()
		s.onChannelError(fmt.Errorf("subscribe: %w", err))
		return
	}

	s.channel = ch
	s.sub = sub
	s.setAttempts(0)
	s.startPump(s.gen, sub)
	s.setState(StateConnected, nil)
	s.log.Info().Str("topic", s.codec.Topic(s.room)).Msg("subscribed to room")

	if s.opts.AnnounceJoin {
		if err := s.publish(s.outbound(KindJoin, "")); err != nil {
			s.log.Warn().Err(err).Msg("failed to announce join")
		}
	}
}

// onChannelError handles a failed dial or a broken channel.
func (s *Session) onChannelError(reason error) {
	s.release()
	s.reporter.ConnectFailure(s.room, s.attempts+1, reason)

	if IsAuthFailure(reason) {
		s.failAuth(reason)
		return
	}
	s.retryAfterFailure(fmt.Errorf("%w: %w", ErrChannelUnavailable, reason))
}

// onChannelClosed handles a channel the server closed without an error.
func (s *Session) onChannelClosed() {
	s.release()
	s.log.Info().Msg("channel closed")
	s.retryAfterFailure(ErrChannelUnavailable)
}

// retryAfterFailure counts a failed attempt and either schedules the next one
// after the fixed delay or gives up once the cap is reached.
func (s *Session) retryAfterFailure(cause error) {
	s.setAttempts(s.attempts + 1)

	if s.attempts >= s.opts.MaxReconnectAttempts {
		s.cancelRetry()
		s.gen++
		s.reporter.RetriesExhausted(s.room, s.attempts)
		s.setState(StateFailed, fmt.Errorf("%w: gave up after %d attempts", cause, s.attempts))
		s.notify(Notice{
			Kind: NoticeRetriesExhausted,
			Text: "Connection lost. Please reload the room.",
			Code: ErrCodeChannelUnavailable,
		})
		return
	}

	s.scheduleRetry()
	s.log.Info().
		Int("attempt", s.attempts).
		Dur("delay", s.opts.ReconnectDelay).
		Msg("reconnect scheduled")
	s.setState(StateReconnecting, cause)
}

func (s *Session) scheduleRetry() {
	s.cancelRetry()
	s.retrySeq++
	seq, gen := s.retrySeq, s.gen
	s.retry = s.clock.AfterFunc(s.opts.ReconnectDelay, func() {
		s.do(func() { s.onRetry(seq, gen) })
	})
}

func (s *Session) onRetry(seq, gen uint64) {
	if s.retry == nil || seq != s.retrySeq || gen != s.gen || s.stopped || s.state != StateReconnecting {
		return
	}
	s.retry = nil
	s.connect()
}

func (s *Session) cancelRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (s *Session) failAuth(reason error) {
	s.halt()
	err := reason
	if !errors.Is(err, ErrAuthExpired) {
		err = fmt.Errorf("%w: %w", ErrAuthExpired, reason)
	}
	s.setState(StateFailed, err)
	s.notify(Notice{
		Kind: NoticeLoginRequired,
		Text: "Your session has expired. Please log in again.",
		Code: ErrCodeAuthExpired,
	})
}

// halt invalidates everything in flight: dials, timers, pumps.
func (s *Session) halt() {
	s.gen++
	s.cancelRetry()
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	s.release()
}

// release tears down the subscription before the channel.
func (s *Session) release() {
	if s.pumpStop != nil {
		close(s.pumpStop)
		s.pumpStop = nil
	}
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.log.Debug().Err(err).Msg("unsubscribe failed")
		}
		s.sub = nil
	}
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.log.Debug().Err(err).Msg("channel close failed")
		}
		s.channel = nil
	}
}

// startPump forwards inbound frames to the loop until the subscription ends
// or the session releases it.
func (s *Session) startPump(gen uint64, sub Subscription) {
	stop := make(chan struct{})
	s.pumpStop = stop

	post := func(fn func()) bool {
		select {
		case s.tasks <- fn:
			return true
		case <-stop:
			return false
		case <-s.done:
			return false
		}
	}

	go func() {
		frames := sub.Frames()
		for {
			select {
			case <-stop:
				return
			case frame, ok := <-frames:
				switch {
				case !ok:
					post(func() { s.onPumpClosed(gen) })
					return
				case frame.Err != nil:
					err := frame.Err
					post(func() { s.onPumpError(gen, err) })
					return
				default:
					body := frame.Body
					if !post(func() { s.onFrame(gen, body) }) {
						return
					}
				}
			}
		}
	}()
}

func (s *Session) current(gen uint64) bool {
	return gen == s.gen && s.sub != nil && !s.stopped
}

func (s *Session) onFrame(gen uint64, body []byte) {
	if !s.current(gen) {
		return
	}
	msg, err := s.codec.Decode(body)
	if err != nil {
		s.reporter.DecodeFailure(s.room, body, fmt.Errorf("%w: %w", ErrDecodeFailure, err))
		return
	}
	if msg.Room == "" {
		msg.Room = s.room
	}
	s.store.Append(msg)
	s.emit(Event{Kind: EventMessage, Room: s.room, Message: msg})
}

func (s *Session) onPumpError(gen uint64, err error) {
	if !s.current(gen) {
		return
	}
	s.onChannelError(err)
}

func (s *Session) onPumpClosed(gen uint64) {
	if !s.current(gen) {
		return
	}
	s.onChannelClosed()
}

func (s *Session) setState(next State, cause error) {
	prev := s.state
	if prev == next {
		return
	}
	s.state = next
	s.stateVal.Store(int32(next))

	ev := s.log.Info()
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Str("from", prev.String()).Str("to", next.String()).Msg("session state changed")

	s.emit(Event{
		Kind:  EventStateChanged,
		Room:  s.room,
		State: &StateEvent{OldState: prev, NewState: next, Error: cause},
	})
}

func (s *Session) setAttempts(n int) {
	s.attempts = n
	s.attemptN.Store(int32(n))
}

func (s *Session) notify(n Notice) {
	s.emit(Event{Kind: EventNotice, Room: s.room, Notice: &n})
}

// emit delivers ev to Events. Message and history events are dropped when
// the buffer is full; state changes and notices wait for the consumer until
// the loop's context ends.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
		return
	default:
	}

	if s.running.Load() && (ev.Kind == EventStateChanged || ev.Kind == EventNotice) {
		select {
		case s.events <- ev:
			return
		case <-s.ctx.Done():
		}
	}
	s.log.Warn().Str("event", ev.Kind.String()).Msg("event buffer full, dropping event")
}

// IsAuthFailure reports whether a channel error is an authorization problem.
// Retrying cannot fix those.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthExpired) || auth.IsAuthError(err)
}
