package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"nexflow/api"
	"nexflow/board"
	"nexflow/config"
	"nexflow/domain"
	"nexflow/storage"
	"nexflow/stream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if cfg.RedisConnection != "" {
		rc = redis.NewClient(config.RedisOptions(cfg.RedisConnection))
		if err := rc.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
	}

	var auth api.Authenticator
	if cfg.TestMode {
		log.Warn("AUTH0_TEST_MODE is set, accepting HS256 test tokens")
		auth = api.NewTestAuth([]byte(cfg.TestSecret))
	} else {
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(jwks, cfg.Auth0Audience, cfg.Issuer())
	}

	var layouts board.LayoutStore
	if cfg.LayoutTable != "" {
		store, err := storage.NewLayoutStore(cfg.StorageConnection, cfg.LayoutTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		if err := store.EnsureTable(ctx); err != nil {
			log.Fatalf("storage: %v", err)
		}
		layouts = store
	}

	opts := api.Options{
		TicketAPIURL:  cfg.TicketAPIURL,
		PageSize:      cfg.PageSize,
		WriteTimeout:  cfg.WriteTimeout,
		RefreshSettle: cfg.RefreshSettle,
		Redis:         rc,
		CacheTTL:      cfg.CacheTTL,
		Layouts:       layouts,
		Logger:        log.StandardLogger(),
	}
	if rc != nil {
		opts.Announce = func(ctx context.Context, ev domain.TicketEvent) {
			if err := stream.PublishEvent(ctx, rc, cfg.EventsChannel, ev); err != nil {
				log.WithError(err).Warn("announce ticket event failed")
			}
		}
	}
	reg := api.NewRegistry(opts)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.Decompress())
	api.Register(e, reg, auth, log.StandardLogger())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rc != nil {
		g.Go(func() error {
			stream.SubscribeRedis(gctx, log.StandardLogger(), rc, cfg.EventsChannel, reg.Dispatch)
			return nil
		})
	}
	if cfg.EventsSSEURL != "" {
		sse := &stream.SSEClient{
			URL:    cfg.EventsSSEURL,
			Token:  func() string { return cfg.EventsToken },
			Logger: log.StandardLogger(),
		}
		g.Go(func() error {
			if err := sse.Run(gctx, reg.Dispatch); err != nil {
				log.WithError(err).Error("event stream disabled")
			}
			return nil
		})
	}
	g.Go(func() error {
		t := time.NewTicker(cfg.IdleTimeout / 2)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := reg.Sweep(cfg.IdleTimeout); n > 0 {
					log.WithField("closed", n).Debug("idle boards closed")
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	reg.Close()
	if err != nil {
		log.Fatal(err)
	}
	log.Info("boardd stopped")
}
