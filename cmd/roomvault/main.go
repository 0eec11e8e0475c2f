package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/roomvault/internal/adapter/driven/kafkanotify"
	"github.com/ericfisherdev/roomvault/internal/adapter/driven/natsrelay"
	"github.com/ericfisherdev/roomvault/internal/adapter/driven/redislimit"
	sqliteadapter "github.com/ericfisherdev/roomvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/roomvault/internal/adapter/driving/auth"
	httphandler "github.com/ericfisherdev/roomvault/internal/adapter/driving/http"
	"github.com/ericfisherdev/roomvault/internal/adapter/driving/realtime"
	"github.com/ericfisherdev/roomvault/internal/application"
	"github.com/ericfisherdev/roomvault/internal/config"
	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
	"github.com/ericfisherdev/roomvault/internal/roomcrypto"
	"github.com/ericfisherdev/roomvault/internal/telemetry"
)

const serviceName = "roomvault"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"page_size", cfg.PageSize,
		"key_cache", cfg.KeyCache,
		"relay", cfg.HasRelay(),
		"rate_limit", cfg.HasRateLimit(),
		"notifier", cfg.HasNotifier(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Tracing (no-op provider unless an OTLP endpoint is configured).
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("error shutting down tracing", "error", err)
		}
	}()

	// 4. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 5. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 6. Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	// 7. Wire adapters.
	roomStore := sqliteadapter.NewRoomRepo(db)
	messageStore := sqliteadapter.NewMessageRepo(db)

	var keys application.KeyProvider
	deriver := application.InstrumentDeriver(roomcrypto.NewKeyDeriver(cfg.KDF), metrics)
	if cfg.KeyCache {
		keys = roomcrypto.NewKeyCache(deriver)
	} else {
		keys = roomcrypto.NewDirect(deriver)
	}

	// 7b. Optional integrations. Interfaces stay nil when disabled.
	var notifier driven.MessageNotifier
	if cfg.HasNotifier() {
		n := kafkanotify.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := n.Close(); err != nil {
				slog.Error("error closing kafka writer", "error", err)
			}
		}()
		notifier = n
		slog.Info("kafka notifier enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var limiter driven.RateLimiter
	if cfg.HasRateLimit() {
		rdb, err := redislimit.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		limiter = redislimit.NewLimiter(rdb, cfg.SendLimit, cfg.SendWindow)
		slog.Info("send rate limit enabled", "limit", cfg.SendLimit, "window", cfg.SendWindow)
	}

	var relay driven.EventRelay
	if cfg.HasRelay() {
		nc, err := natsrelay.Connect(cfg.NATSURL, serviceName)
		if err != nil {
			return err
		}
		defer nc.Close()
		relay = natsrelay.NewRelay(nc, "")
		slog.Info("nats relay enabled", "url", cfg.NATSURL)
	}

	// 8. Create services.
	roomSvc := application.NewRoomService(roomStore, messageStore, keys, notifier, metrics, application.RoomServiceConfig{
		PageSize:     cfg.PageSize,
		StoreTimeout: cfg.StoreTimeout,
	})
	channel := application.NewRoomChannel(roomSvc, application.RoomChannelConfig{
		SelfAnnounce: cfg.JoinSelfAnnounce,
		Limiter:      limiter,
		Relay:        relay,
		Metrics:      metrics,
	})
	go func() {
		if err := channel.Run(ctx); err != nil {
			slog.Error("room relay failed", "error", err)
		}
	}()
	healthSvc := application.NewHealthService(db)

	// 9. Create HTTP and WebSocket handlers.
	verifier := auth.NewVerifier(cfg.JWTSecret)
	apiHandler := httphandler.NewHandler(roomSvc, healthSvc, slog.Default())
	wsHandler := realtime.NewHandler(channel, verifier, realtime.Config{
		Sanitize: cfg.SanitizeMessages,
	}, slog.Default())

	mux := httphandler.NewServeMux(apiHandler, verifier, httphandler.Routes{
		WebSocket: wsHandler,
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, slog.Default())

	// WebSocket connections are long-lived, so only header reads are bounded.
	// Request contexts derive from ctx so open sockets close on shutdown.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(mux, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 10. Log startup complete.
	slog.Info("roomvault started", "listen_addr", cfg.ListenAddr, "origin", channel.Origin())

	// 11. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 12. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// 13. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}
