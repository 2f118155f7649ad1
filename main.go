package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"budgetbot/internal/auth"
	"budgetbot/internal/config"
	"budgetbot/internal/handlers"
	"budgetbot/internal/insights"
	"budgetbot/internal/metrics"
	"budgetbot/internal/push"
	"budgetbot/internal/pusher"
	"budgetbot/internal/realtime"
	"budgetbot/internal/relay"
	"budgetbot/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.New()

	// Redis is optional: it backs the relay bus and the insight cache.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		logger.Info("[REDIS] Connected", "addr", cfg.RedisAddr)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	broker, hub, err := openBroker(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	notifier := realtime.New(broker, cfg.Notify(), realtime.WithLogger(logger), realtime.WithMetrics(m))
	if !notifier.Enabled() {
		logger.Warn("[NOTIFY] No broker credentials, realtime events are disabled")
	}

	sender, err := push.NewSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber, st, push.WithLogger(logger))
	if err != nil {
		return err
	}

	var cache insights.Cache = insights.NewMemoryCache()
	if rdb != nil {
		cache = insights.NewRedisCache(rdb)
	}
	insightOpts := []insights.Option{insights.WithLogger(logger)}
	if cfg.GeminiAPIKey != "" {
		insightOpts = append(insightOpts, insights.WithGenerator(insights.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)))
	}

	deps := handlers.Deps{
		Store:          st,
		Auth:           auth.New(auth.NewCookieStore(cfg.SessionSecret), cfg.SupabaseJWTSecret),
		Notifier:       notifier,
		Push:           sender,
		Insights:       insights.NewService(st, cache, cfg.InsightCacheTTL, insightOpts...),
		Metrics:        m,
		Logger:         logger,
		CronSecret:     cfg.CronSecret,
		ReminderWindow: cfg.ReminderWindowDays,
	}
	if hub != nil {
		deps.Relay = hub
	}
	h := handlers.NewHandler(deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("[HTTP] Listening", "addr", srv.Addr, "broker", cfg.BrokerDriver, "realtime", notifier.Enabled())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("[HTTP] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("[STORE] DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.RunMigrations(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	logger.Info("[STORE] Database migrations completed")
	return pg, nil
}

// openBroker returns the hosted Pusher client or the self-hosted relay. The
// hub is nil unless the relay is selected.
func openBroker(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (realtime.Broker, *relay.Hub, error) {
	if cfg.BrokerDriver != config.DriverRelay {
		return pusher.NewClient(cfg.Pusher), nil, nil
	}

	key, secret := cfg.RelayCredentials()
	hub := relay.NewHub(key, secret, logger)
	if rdb == nil {
		return relay.NewBroker(key, secret, relay.LocalPublisher{Hub: hub}), hub, nil
	}

	bus := relay.NewRedisBus(rdb, relay.DefaultTopic, logger)
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}
	go sub.Forward(ctx, hub)
	return relay.NewBroker(key, secret, bus), hub, nil
}
