package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/navi/internal/api"
	"github.com/Checker-Finance/navi/internal/config"
	"github.com/Checker-Finance/navi/internal/identity"
	"github.com/Checker-Finance/navi/internal/messaging"
	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/internal/publisher"
	"github.com/Checker-Finance/navi/internal/rate"
	"github.com/Checker-Finance/navi/internal/store"
	"github.com/Checker-Finance/navi/pkg/logger"
	"github.com/Checker-Finance/navi/pkg/secrets"
	"github.com/Checker-Finance/navi/pkg/utils"
)

type tradeStore interface {
	navi.Store
	HealthCheck(ctx context.Context) error
	Close() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	log := logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [navi-server]...")

	if err := cfg.Validate(); err != nil {
		logg.Fatalw("invalid configuration", "error", err)
	}

	var opts []navi.Option
	opts = append(opts, navi.WithDefaultTaxRate(cfg.DefaultTaxRate))
	stopCleaner := make(chan struct{})

	// --- Store ---
	var st tradeStore
	switch cfg.StoreBackend {
	case "memory":
		logg.Warn("using in-memory store; trades are lost on restart")
		st = store.NewMemory()
	default:
		dsn := cfg.DatabaseURL
		if cfg.DatabaseSecretName != "" {
			provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
			if err != nil {
				logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
			}
			dsn, err = secrets.ResolveDSN(ctx, provider, cfg.DatabaseSecretName)
			if err != nil {
				logg.Fatalw("failed to resolve database secret", "secret", cfg.DatabaseSecretName, "error", err)
			}
		}
		logg.Info("connection to DSN: ", utils.MaskDSN(dsn))

		pool, err := store.NewPGPool(ctx, dsn, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		})
		if err != nil {
			logg.Fatalw("failed to init store", "error", err)
		}
		if cfg.RunMigrations {
			if err := store.NewMigrator(pool, log).Migrate(ctx); err != nil {
				logg.Fatalw("failed to run migrations", "error", err)
			}
		}
		st = store.NewPostgres(pool, log)

		// --- Company directory ---
		dir := identity.NewPGDirectory(pool, cfg.DirectoryCacheTTL, log)
		go dir.StartCleaner(cfg.DirectoryCleanFreq, stopCleaner)
		opts = append(opts, navi.WithDirectory(dir))
	}

	// --- Redis trade cache ---
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logg.Fatalw("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		st = store.NewCached(st, rdb, cfg.TradeCacheTTL, log)
	}

	// --- Event sinks ---
	var nc *nats.Conn
	var sinks publisher.Multi
	if cfg.HasNotifier("nats") {
		var err error
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err := publisher.New(nc, cfg.EventSubjectPrefix, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		sinks = append(sinks, pub)
	}
	var rmq *publisher.RabbitMQ
	if cfg.HasNotifier("rabbitmq") {
		var err error
		rmq, err = publisher.NewRabbitMQ(cfg.RabbitURL, cfg.RabbitExchange, log)
		if err != nil {
			logg.Fatalw("failed to init rabbitmq publisher", "error", err)
		}
		sinks = append(sinks, rmq)
	}
	if len(sinks) > 0 {
		opts = append(opts, navi.WithNotifier(sinks))
	}

	// --- Messaging client ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.MessagingRPS,
		Burst:             cfg.MessagingRPS * 2,
		Cooldown:          1 * time.Second,
	})
	if cfg.MessagingURL != "" {
		msgClient, err := messaging.New(messaging.Config{
			BaseURL:  cfg.MessagingURL,
			Token:    cfg.MessagingToken,
			RetryMax: cfg.MessagingRetryMax,
		}, &http.Client{Timeout: 10 * time.Second}, rateMgr, log)
		if err != nil {
			logg.Fatalw("failed to init messaging client", "error", err)
		}
		opts = append(opts, navi.WithMessages(msgClient))
	} else {
		logg.Warn("MESSAGING_URL not configured; message threads are empty")
	}

	// --- Lifecycle service ---
	svc := navi.NewService(log, st, opts...)

	// --- Fiber HTTP Server ---
	app := api.NewApp(api.AppConfig{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	}, log)

	if cfg.JWTSecret == "" {
		logg.Warn("JWT_SECRET not configured; trusting " + api.HeaderActorID + " header")
	}
	apiLimiter := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.APIRateRPS,
		Burst:             cfg.APIRateBurst,
	})
	api.RegisterRoutes(app, api.Deps{
		NATS:           nc,
		Store:          st,
		Trades:         api.NewTradeHandler(log, svc),
		Auth:           api.NewActorAuth(cfg.JWTSecret),
		Limiter:        apiLimiter,
		DefaultTaxRate: cfg.DefaultTaxRate,
	})

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[navi-server] running",
		"env", cfg.Env,
		"store", cfg.StoreBackend,
		"cache", cfg.RedisAddr != "",
		"notifiers", cfg.Notifiers)

	<-ctx.Done()
	logg.Info("shutting down [navi-server]...")

	close(stopCleaner)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if rmq != nil {
		if err := rmq.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
