package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	rlhttp "github.com/Strob0t/requestline/internal/adapter/http"
	"github.com/Strob0t/requestline/internal/adapter/jobs"
	rlmcp "github.com/Strob0t/requestline/internal/adapter/mcp"
	"github.com/Strob0t/requestline/internal/adapter/memory"
	rlnats "github.com/Strob0t/requestline/internal/adapter/nats"
	"github.com/Strob0t/requestline/internal/adapter/natskv"
	rlotel "github.com/Strob0t/requestline/internal/adapter/otel"
	"github.com/Strob0t/requestline/internal/adapter/postgres"
	rlredis "github.com/Strob0t/requestline/internal/adapter/redis"
	"github.com/Strob0t/requestline/internal/adapter/ristretto"
	"github.com/Strob0t/requestline/internal/adapter/spotify"
	"github.com/Strob0t/requestline/internal/adapter/tiered"
	"github.com/Strob0t/requestline/internal/adapter/ws"
	"github.com/Strob0t/requestline/internal/config"
	"github.com/Strob0t/requestline/internal/domain/tenant"
	"github.com/Strob0t/requestline/internal/logger"
	"github.com/Strob0t/requestline/internal/middleware"
	"github.com/Strob0t/requestline/internal/port/broadcast"
	"github.com/Strob0t/requestline/internal/port/cache"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
	"github.com/Strob0t/requestline/internal/port/ratelimit"
	"github.com/Strob0t/requestline/internal/resilience"
	"github.com/Strob0t/requestline/internal/service"
)

const (
	idempotencyTTL  = 10 * time.Minute
	retryWorkers    = 4
	limiterSweepGap = time.Minute
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"redis", cfg.Redis.Addr != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := rlotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := rlotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	store := postgres.NewStore(pool)
	hub := ws.NewHub(originPatterns(cfg.Server.CORSOrigin), metrics.WSDelta)
	defer hub.Close()

	var (
		publisher broadcast.Publisher = hub
		l2        cache.Cache
	)
	if cfg.NATS.URL != "" {
		queue, err := rlnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()

		relay := rlnats.NewRelay(queue, hub)
		cancelRelay, err := relay.Start(ctx)
		if err != nil {
			return fmt.Errorf("nats relay: %w", err)
		}
		defer cancelRelay()
		publisher = relay

		kv, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			slog.Warn("nats kv unavailable, running with l1 cache only", "error", err)
		} else {
			l2 = kv
		}
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	snapCache := tiered.New(l1, l2, cfg.Party.SnapshotTTL)

	var limiter ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		rc, err := rlredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rc.Close() }()
		limiter = rlredis.NewLimiter(rc, cfg.Party.SubmitWindow, cfg.Party.HourlyCap)
	} else {
		mem := memory.NewLimiter(cfg.Party.SubmitWindow, cfg.Party.HourlyCap)
		go sweepLimiter(ctx, mem)
		limiter = mem
		slog.Info("redis not configured, using in-memory submission limits")
	}

	// --- Playback provider ---

	sealer, err := tenant.NewSealer(cfg.Auth.CredentialKey)
	if err != nil {
		return fmt.Errorf("credential key: %w", err)
	}
	credentials := service.NewCredentialService(store, sealer)
	breakers := resilience.NewRegistry(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithFailurePredicate(spotify.IsBreakerFailure))
	credentials.SetBreakers(breakers)

	provider, err := playbackprovider.New(cfg.Spotify.Provider, playbackprovider.Deps{
		Config: map[string]string{
			"api_base":      cfg.Spotify.APIBase,
			"accounts_base": cfg.Spotify.AccountsBase,
			"client_id":     cfg.Spotify.ClientID,
			"client_secret": cfg.Spotify.ClientSecret,
			"timeout":       cfg.Party.AdapterTimeout.String(),
		},
		Credentials: credentials,
		Breakers:    breakers,
		Observer:    metrics,
	})
	if err != nil {
		return fmt.Errorf("playback provider: %w", err)
	}
	slog.Info("playback provider ready", "provider", provider.Name(), "available", playbackprovider.Available())

	// --- Services ---

	feed := service.NewChangeFeed(store, publisher)
	feed.SetMetrics(metrics)

	events := service.NewEventService(store, feed)
	auth := service.NewAuthService(store, events, &cfg.Auth)
	auth.SetRevocations(snapCache)
	submissions := service.NewSubmissionService(store, provider, limiter, cfg.Auth.FingerprintSecret, &cfg.Party)
	submissions.SetMetrics(metrics)

	approvals := service.NewApprovalService(store, provider, credentials, feed, cfg.Party.AdapterTimeout)
	approvals.SetMetrics(metrics)

	snapshots := service.NewSnapshotService(store, provider, snapCache, cfg.Party.SnapshotTTL, cfg.Party.AdapterTimeout)
	feed.OnChange(snapshots.OnChange)

	pollers := service.NewPollerManager(store, provider, approvals, feed, cfg.Party.PollInterval, cfg.Party.AdapterTimeout)
	pollers.SetMetrics(metrics)
	events.SetPollers(pollers)
	defer pollers.Shutdown()
	if err := pollers.Boot(ctx); err != nil {
		return fmt.Errorf("poller boot: %w", err)
	}

	playbackSvc := service.NewPlaybackService(provider, credentials, pollers, cfg.Party.AdapterTimeout)

	sweeper := service.NewSweeper(store, events, cfg.Party.ClaimTimeout, cfg.Party.IdleReset)
	if err := sweeper.Start(ctx, cfg.Party.SweepSchedule); err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	defer sweeper.Stop()

	if cfg.Redis.Addr != "" {
		jobClient := jobs.NewClient(cfg.Redis)
		defer func() { _ = jobClient.Close() }()
		approvals.SetRetryEnqueuer(jobClient)

		worker := jobs.NewServer(cfg.Redis, retryWorkers, approvals)
		if err := worker.Start(); err != nil {
			return fmt.Errorf("retry worker: %w", err)
		}
		defer worker.Shutdown()
	}

	// --- HTTP ---

	handlers := &rlhttp.Handlers{
		Auth:        auth,
		Events:      events,
		Submissions: submissions,
		Requests:    approvals,
		Snapshots:   snapshots,
		Playback:    playbackSvc,
		Credentials: credentials,
		Hub:         hub,
	}

	ipLimiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	ipLimiter.StartCleanup(ctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	guestLimiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst,
		middleware.WithKeyFunc(middleware.KeyTenantIP))
	guestLimiter.StartCleanup(ctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)

	deps := rlhttp.RouteDeps{
		Verifier:       auth,
		Guests:         events,
		Idempotency:    snapCache,
		IdempotencyTTL: idempotencyTTL,
		GuestLimiter:   guestLimiter,
	}
	if cfg.MCP.Enabled {
		deps.MCP = rlmcp.NewServer(rlmcp.ServerConfig{Name: "requestline", Version: "0.1.0"}, rlmcp.ServerDeps{
			Requests:  approvals,
			Events:    events,
			Snapshots: snapshots,
		}).Handler()
	}

	router := rlhttp.NewRouter(handlers, rlhttp.RouterConfig{
		CORSOrigin:  cfg.Server.CORSOrigin,
		ServiceName: cfg.OTEL.ServiceName,
		IPLimiter:   ipLimiter,
		Trace:       rlotel.HTTPMiddleware(cfg.OTEL.ServiceName),
	}, deps)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepLimiter(ctx context.Context, l *memory.Limiter) {
	t := time.NewTicker(limiterSweepGap)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("submission limiter swept", "keys", n)
			}
		}
	}
}

// originPatterns turns the CORS origin URL into a websocket host pattern.
func originPatterns(corsOrigin string) []string {
	if corsOrigin == "" {
		return nil
	}
	u, err := url.Parse(corsOrigin)
	if err != nil || u.Host == "" {
		return []string{corsOrigin}
	}
	return []string{u.Host}
}

// openStore connects to Postgres for short-lived commands.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, *pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return postgres.NewStore(pool), pool, nil
}
