package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	applog "github.com/vovakirdan/roomchat/internal/log"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomchat/internal/transport/http"
	"github.com/vovakirdan/roomchat/internal/transport/stompws"
)

// EventHandler receives every session event, in order, on one goroutine.
type EventHandler func(core.Event)

// App wires one room session to its transports, transcript and status server.
type App struct {
	room            string
	creds           auth.Credentials
	session         *core.Session
	transcript      store.Transcript
	status          *stdhttp.Server
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application for one room with the provided configuration.
func New(room string, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dialect, err := proto.DialectByName(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	api, err := NewAPIClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	dialer := stompws.NewDialer(stompws.Config{
		URL:               cfg.ChannelURL,
		HeartbeatOutgoing: cfg.HeartbeatOutgoing,
		HeartbeatIncoming: cfg.HeartbeatIncoming,
		HandshakeTimeout:  cfg.RequestTimeout,
	}, logger)

	var transcript store.Transcript
	if cfg.TranscriptPath != "" {
		st, err := sqlite.New(cfg.TranscriptPath)
		if err != nil {
			return nil, fmt.Errorf("init transcript: %w", err)
		}
		transcript = st
		logger.Info().Str("path", cfg.TranscriptPath).Msg("transcript enabled")
	}

	session := core.NewSession(room, core.Deps{
		Dialer:   dialer,
		Codec:    dialect,
		History:  api,
		Reads:    api,
		Reporter: core.NewLogReporter(applog.Component(logger, "reporter")),
		Logger:   logger,
	}, SessionOptions(cfg))

	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = config.Default().ShutdownTimeout
	}

	a := &App{
		room:            room,
		creds:           auth.Resolve(cfg.Token, cfg.Identity),
		session:         session,
		transcript:      transcript,
		shutdownTimeout: shutdown,
		log:             logger,
	}
	if cfg.StatusAddr != "" {
		a.status = transporthttp.NewStatusServer(session, cfg.StatusAddr, applog.Component(logger, "status"))
	}
	return a, nil
}

// NewAPIClient builds the REST client used for history and mark-read.
func NewAPIClient(cfg *config.Config, logger *zerolog.Logger) (*transporthttp.Client, error) {
	api, err := transporthttp.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	return api, nil
}

// SessionOptions maps configuration onto session options.
func SessionOptions(cfg *config.Config) core.Options {
	return core.Options{
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		RequestTimeout:       cfg.RequestTimeout,
		AnnounceJoin:         cfg.AnnounceJoin,
		OptimisticEcho:       cfg.OptimisticEcho,
	}
}

// Session exposes the room session.
func (a *App) Session() *core.Session { return a.session }

// Credentials returns the credentials the session starts with.
func (a *App) Credentials() auth.Credentials { return a.creds }

// Send publishes text to the room.
func (a *App) Send(ctx context.Context, text string) error {
	return a.session.Send(ctx, text)
}

// Run starts the session and blocks until ctx is cancelled. On cancellation the
// session is stopped (mark-read, unsubscribe, disconnect) before its loop exits.
func (a *App) Run(ctx context.Context, handle EventHandler) error {
	defer a.cleanup()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.session.Run(loopCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		for ev := range a.session.Events() {
			a.record(ev)
			if handle != nil {
				handle(ev)
			}
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		a.session.Stop(stopCtx)
		stopLoop()
		return nil
	})

	if a.status != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.status.Addr).Msg("status server listening")
			if err := a.status.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer cancel()
			return a.status.Shutdown(shutdownCtx)
		})
	}

	a.session.Start(a.creds)
	return g.Wait()
}

func (a *App) record(ev core.Event) {
	if a.transcript == nil {
		return
	}
	var msgs []core.Message
	switch ev.Kind {
	case core.EventMessage:
		msgs = []core.Message{ev.Message}
	case core.EventHistory:
		msgs = ev.Messages
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if _, err := a.transcript.Record(ctx, a.room, msgs...); err != nil {
		a.log.Warn().Err(err).Msg("failed to record transcript")
	}
}

// cleanup closes the transcript and other resources.
func (a *App) cleanup() {
	if a.transcript != nil {
		if err := a.transcript.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close transcript")
		} else {
			a.log.Debug().Msg("transcript closed")
		}
	}
}
