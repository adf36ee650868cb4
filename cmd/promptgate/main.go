package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/promptgate/promptgate/internal/api"
	"github.com/promptgate/promptgate/internal/auth"
	"github.com/promptgate/promptgate/internal/config"
	"github.com/promptgate/promptgate/internal/notifications"
	"github.com/promptgate/promptgate/internal/orchestrator"
	"github.com/promptgate/promptgate/internal/provider"
	"github.com/promptgate/promptgate/internal/queue"
	"github.com/promptgate/promptgate/internal/ratelimit"
	"github.com/promptgate/promptgate/internal/repository"
	"github.com/promptgate/promptgate/internal/secrets"
	"github.com/promptgate/promptgate/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting PromptGate", "addr", cfg.Addr, "version", "0.1.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, "promptgate", cfg.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
		slog.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint)
	}

	var (
		modelRepo    repository.ModelRepository
		promptRepo   repository.PromptRepository
		variableRepo repository.VariableRepository
		logRepo      repository.LogRepository
		tenantRepo   repository.TenantRepository
		userRepo     auth.AdminUserRepository
		checkers     []api.HealthChecker
		db           *sql.DB
	)

	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		modelRepo = repository.NewPostgresModelRepository(db)
		promptRepo = repository.NewPostgresPromptRepository(db)
		variableRepo = repository.NewPostgresVariableRepository(db)
		logRepo = repository.NewPostgresLogRepository(db)
		tenantRepo = repository.NewPostgresTenantRepository(db)
		userRepo = auth.NewPostgresAdminUserRepository(db)
		checkers = append(checkers, api.NewPostgresHealthChecker(db))
		slog.Info("using postgres repositories")
	} else {
		modelRepo = repository.NewInMemoryModelRepository()
		promptRepo = repository.NewInMemoryPromptRepository()
		variableRepo = repository.NewInMemoryVariableRepository()
		logRepo = repository.NewInMemoryLogRepository()
		tenantRepo = repository.NewInMemoryTenantRepository()
		userRepo = auth.NewInMemoryAdminUserRepository()
		slog.Info("using in-memory repositories")
	}

	var rateLimiter ratelimit.RateLimiter
	if cfg.RedisURL != "" {
		rateLimiter, err = ratelimit.NewRedisRateLimiter(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		redisChecker, err := api.NewRedisHealthChecker(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to configure redis health check", "error", err)
			os.Exit(1)
		}
		checkers = append(checkers, redisChecker)
		slog.Info("using redis rate limiter")
	} else {
		rateLimiter = ratelimit.NewInMemoryRateLimiter()
		slog.Info("using in-memory rate limiter")
	}

	var (
		secretStore   secrets.SecretStore
		writableStore secrets.WritableSecretStore
	)
	switch {
	case cfg.AWSRegion != "":
		secretStore, err = secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Error("failed to configure secrets manager", "error", err)
			os.Exit(1)
		}
		slog.Info("using aws secrets manager", "region", cfg.AWSRegion)
	case db != nil && cfg.EncryptionKey != "":
		store, err := secrets.NewPostgresSecretStore(db, cfg.EncryptionKey)
		if err != nil {
			slog.Error("failed to configure encrypted secret store", "error", err)
			os.Exit(1)
		}
		secretStore, writableStore = store, store
		slog.Info("using encrypted postgres secret store")
	default:
		store := secrets.NewInMemorySecretStore()
		secretStore, writableStore = store, store
		slog.Warn("using in-memory secret store; provider keys will not survive a restart")
	}

	var notifier notifications.Notifier
	if cfg.SNSTopicArn != "" && cfg.AWSRegion != "" {
		notifier, err = notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicArn)
		if err != nil {
			slog.Error("failed to configure sns notifier", "error", err)
			os.Exit(1)
		}
		slog.Info("failure notifications enabled", "topic", cfg.SNSTopicArn)
	}

	var logSink orchestrator.LogSink = logRepo
	if cfg.SQSLogQueueURL != "" && cfg.AWSRegion != "" {
		shipper, err := queue.NewSQSShipper(ctx, cfg.AWSRegion, cfg.SQSLogQueueURL)
		if err != nil {
			slog.Error("failed to configure log shipper", "error", err)
			os.Exit(1)
		}
		logSink = queue.NewShippingLogRepository(logRepo, shipper)
		slog.Info("log shipping enabled", "queue", cfg.SQSLogQueueURL)
	}

	clientCfg := provider.DefaultClientConfig()
	clientCfg.Timeout = cfg.ProviderTimeout
	executors := &provider.Registry{HTTP: provider.NewHTTPExecutor(clientCfg)}
	if cfg.AWSRegion != "" {
		bedrock, err := provider.NewBedrockExecutor(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Error("failed to configure bedrock executor", "error", err)
			os.Exit(1)
		}
		executors.Bedrock = bedrock
		slog.Info("bedrock executor enabled", "region", cfg.AWSRegion)
	}

	orch := orchestrator.New(orchestrator.Config{
		Models:    modelRepo,
		Prompts:   promptRepo,
		Variables: variableRepo,
		Logs:      logSink,
		Secrets:   secretStore,
		Executors: executors,
		Notifier:  notifier,
	})

	var rbac *auth.RBACMiddleware
	if cfg.AdminAuthEnabled {
		rbac = auth.NewRBACMiddleware(auth.NewAuthenticator(userRepo))
		slog.Info("admin authentication enabled")
	} else {
		slog.Warn("admin authentication disabled; do not expose the admin surface publicly")
	}

	handler := api.NewHandler(api.HandlerConfig{
		TenantRepo:  tenantRepo,
		PromptRepo:  promptRepo,
		RateLimiter: rateLimiter,
		Generator:   orch,
		Checkers:    checkers,
	})

	adminHandler := api.NewAdminHandler(api.AdminConfig{
		ModelRepo:    modelRepo,
		PromptRepo:   promptRepo,
		VariableRepo: variableRepo,
		LogRepo:      logRepo,
		TenantRepo:   tenantRepo,
		Secrets:      writableStore,
		RBAC:         rbac,
	})

	mux := http.NewServeMux()
	mux.Handle("/admin/", adminHandler)
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
