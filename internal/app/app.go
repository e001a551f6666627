package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chatpe/chatpe-server/internal/auth"
	"github.com/chatpe/chatpe-server/internal/config"
	"github.com/chatpe/chatpe-server/internal/core"
	"github.com/chatpe/chatpe-server/internal/store"
	"github.com/chatpe/chatpe-server/internal/store/buntdb"
	"github.com/chatpe/chatpe-server/internal/store/memory"
	"github.com/chatpe/chatpe-server/internal/store/redis"
	"github.com/chatpe/chatpe-server/internal/store/sqlite"
	transporthttp "github.com/chatpe/chatpe-server/internal/transport/http"
)

const tokenIssuer = "chatpe"

// App wires together core, auth and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	auth            *auth.Service
	store           store.Store
	cron            *cron.Cron
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := openStore(ctx, cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Persistence.Driver).Msg("snapshot store initialized")

	secret, err := tokenSecret(cfg.SessionSecret, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	directory := newDirectory(cfg)
	locks := auth.NewDeviceLock(nil)
	hub := core.NewHub(core.Options{
		MessageTTL: cfg.MessageTTL,
		Limits: core.Limits{
			MaxTextBytes:  cfg.MaxTextBytes,
			MaxImageBytes: cfg.MaxImageBytes,
			MaxAudioBytes: cfg.MaxAudioBytes,
		},
		Directory: directory,
		Store:     st,
		Presence:  locks,
		Logger:    logger,
	})
	authService := auth.NewService(auth.Config{
		ChallengeWindow: cfg.ChallengeWindow,
		Token: auth.TokenConfig{
			Secret: secret,
			Issuer: tokenIssuer,
			TTL:    cfg.TokenTTL,
		},
		AccessKeyHash: cfg.AccessKeyHash,
	}, hub, locks, nil, logger)

	hub.Preload(ctx, directory.RoomKeys())

	a := &App{
		server:          transporthttp.NewServer(hub, authService, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		auth:            authService,
		store:           st,
		log:             logger,
	}
	a.cron = a.newScheduler(cfg)
	return a, nil
}

func openStore(ctx context.Context, cfg config.PersistenceConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlite.New(cfg.DSN)
	case config.DriverBunt:
		return buntdb.New(cfg.DSN)
	case config.DriverRedis:
		return redis.New(ctx, cfg.DSN, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
	}
}

func tokenSecret(configured string, logger *zerolog.Logger) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	logger.Warn().Msg("session_secret is empty; tokens will not survive a restart")
	return secret, nil
}

func newDirectory(cfg config.Config) *core.StaticDirectory {
	rules := make([]core.RoomRule, 0, len(cfg.Rooms))
	for _, r := range cfg.Rooms {
		rules = append(rules, core.RoomRule{Key: r.Key, Name: r.Name, Prefixes: r.Prefixes})
	}
	return core.NewStaticDirectory(rules, cfg.DefaultRoom, cfg.Names, cfg.Admins)
}

// Handler exposes the routed HTTP handler.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and background jobs and blocks until context
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.cron.Start()

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.log.Info().Msg("shutting down http server")
	var errs []error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	<-a.cron.Stop().Done()

	if err := a.hub.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	} else {
		a.log.Info().Msg("room snapshots flushed")
	}

	a.cleanup()
	return errors.Join(errs...)
}

// cleanup closes the snapshot store.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
