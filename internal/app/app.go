package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/feed"
	"github.com/vovakirdan/wirechat-dm/internal/feed/natsfeed"
	"github.com/vovakirdan/wirechat-dm/internal/service/messages"
	"github.com/vovakirdan/wirechat-dm/internal/store"
	"github.com/vovakirdan/wirechat-dm/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-dm/internal/transport/http"
)

// App wires storage, the change feed and the HTTP transport together.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	broker          feed.Broker
	log             *zerolog.Logger
	closeOnce       sync.Once
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	broker, err := newBroker(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	msgs := messages.New(st, broker, cfg.MaxMessageBytes, logger)
	server := transporthttp.NewServer(st, msgs, authService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		broker:          broker,
		log:             logger,
	}, nil
}

func newBroker(cfg *config.Config, logger *zerolog.Logger) (feed.Broker, error) {
	switch cfg.FeedDriver {
	case "", config.FeedDriverLocal:
		return feed.NewLocal(cfg.WatchBuffer), nil
	case config.FeedDriverNATS:
		b, err := natsfeed.New(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.WatchBuffer, logger)
		if err != nil {
			return nil, fmt.Errorf("init nats feed: %w", err)
		}
		logger.Info().Str("url", cfg.NATSURL).Msg("nats feed connected")
		return b, nil
	default:
		return nil, fmt.Errorf("unknown feed driver %q", cfg.FeedDriver)
	}
}

// Handler exposes the HTTP handler, mainly for in-process tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
// Resources are released before Run returns.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases the change feed and the database. Open watch streams end
// when the feed closes.
func (a *App) Close() {
	a.closeOnce.Do(a.cleanup)
}

func (a *App) cleanup() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close feed")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
