package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/conductor/api"
	"github.com/ashita-ai/conductor/internal/auth"
	"github.com/ashita-ai/conductor/internal/callback"
	"github.com/ashita-ai/conductor/internal/config"
	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/executor"
	"github.com/ashita-ai/conductor/internal/mcp"
	"github.com/ashita-ai/conductor/internal/notify"
	"github.com/ashita-ai/conductor/internal/prefcache"
	"github.com/ashita-ai/conductor/internal/quiethours"
	"github.com/ashita-ai/conductor/internal/ratelimit"
	"github.com/ashita-ai/conductor/internal/server"
	"github.com/ashita-ai/conductor/internal/service/tasks"
	"github.com/ashita-ai/conductor/internal/storage"
	"github.com/ashita-ai/conductor/internal/telemetry"
	"github.com/ashita-ai/conductor/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

// rateLimitKeys caps the number of callers tracked by the in-process limiter.
const rateLimitKeys = 50_000

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	level := slog.LevelInfo
	switch os.Getenv("CONDUCTOR_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("conductor starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Settings{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// Register connection pool OTEL metrics (after telemetry.Init).
	db.RegisterPoolMetrics()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.JWTPrivateKeyPath == "" {
		logger.Warn("auth: no JWT key configured, using an ephemeral key (tokens will not survive restarts)")
	}
	if cfg.InternalSecret == "" {
		logger.Warn("auth: CONDUCTOR_INTERNAL_SECRET is empty, service-to-service delegation is disabled")
	}
	if cfg.TelegramWebhookSecret == "" {
		logger.Warn("auth: TELEGRAM_WEBHOOK_SECRET is empty, the telegram webhook will reject every update")
	}

	// Delegation and execution.
	delegator := delegate.NewClient(nil, delegate.NewHTTPCaller(cfg.DelegateTimeout))
	runner := executor.New(delegator, executor.Config{
		SubtaskTimeout: cfg.DelegateTimeout,
		Parallel:       cfg.ParallelSubtasks,
		MaxParallel:    cfg.MaxParallelAgents,
	}, logger)

	// Callbacks.
	prefs := prefcache.New(db, cfg.PrefsCacheEntries, cfg.PrefsCacheTTL,
		quiethours.Default(cfg.QuietHoursStart, cfg.QuietHoursEnd))
	composer := notify.NewComposer(cfg.DashboardURL, cfg.Origin)
	dispatcher := callback.NewDispatcher(prefs, newSynthesizer(cfg, logger), newTelephony(cfg, logger), db, composer,
		callback.Config{VoiceEnabled: cfg.VoiceEnabled, MaxDuration: cfg.VoiceMaxDuration}, logger)

	// Task service (shared by HTTP and MCP handlers).
	svc := tasks.New(db, runner, delegator, dispatcher, prefs, composer, logger)

	mcpSrv := mcp.New(svc, mcp.Options{Origin: cfg.Origin, InternalSecret: cfg.InternalSecret}, logger, version)

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimitKeys)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		Service:             svc,
		JWTMgr:              jwtMgr,
		Logger:              logger,
		DB:                  db,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		InternalSecret:      cfg.InternalSecret,
		TelegramSecret:      cfg.TelegramWebhookSecret,
		Origin:              cfg.Origin,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("conductor shutting down")

	// In-flight plans may run up to the write timeout; give them a bounded
	// window, then let background webhook writes finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	shutdownCancel()

	slog.Info("conductor stopped")
	return nil
}

// newSynthesizer returns nil when no voice API key is configured; the
// telephony provider then reads the script itself.
func newSynthesizer(cfg config.Config, logger *slog.Logger) callback.Synthesizer {
	if cfg.VoiceAPIKey == "" {
		logger.Info("voice synthesis: disabled (no VOICE_API_KEY), provider text-to-speech will be used")
		return nil
	}
	logger.Info("voice synthesis: enabled", "url", cfg.VoiceAPIURL, "voice_id", cfg.VoiceID)
	return callback.NewHTTPSynthesizer(cfg.VoiceAPIURL, cfg.VoiceAPIKey, cfg.VoiceID, cfg.SynthesisTimeout, logger)
}

// newTelephony selects the HTTP provider when TELEPHONY_API_URL is set and
// the in-memory mock otherwise.
func newTelephony(cfg config.Config, logger *slog.Logger) callback.Telephony {
	if cfg.TelephonyAPIURL == "" {
		logger.Warn("telephony: no TELEPHONY_API_URL, using in-memory mock provider")
		return callback.NewMemoryTelephony()
	}
	logger.Info("telephony: http provider", "url", cfg.TelephonyAPIURL)
	return callback.NewHTTPTelephony(cfg.TelephonyAPIURL, cfg.TelephonyAPIKey, cfg.DelegateTimeout)
}
