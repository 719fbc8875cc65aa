package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/config"
	"github.com/boddenberg/leadchat-go/internal/handler"
	"github.com/boddenberg/leadchat-go/internal/infra/client"
	"github.com/boddenberg/leadchat-go/internal/infra/email"
	"github.com/boddenberg/leadchat-go/internal/infra/kv"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/infra/openai"
	"github.com/boddenberg/leadchat-go/internal/infra/resilience"
	"github.com/boddenberg/leadchat-go/internal/infra/sqlite"
	"github.com/boddenberg/leadchat-go/internal/infra/supabase"
	"github.com/boddenberg/leadchat-go/internal/port"
	"github.com/boddenberg/leadchat-go/internal/service"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return serve(cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT)")
	return cmd
}

// app is everything serve and digest share.
type app struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	store   port.Store
	local   port.LocalStore
	sender  port.EmailSender
	site    service.SiteInfo
	checks  []handler.HealthCheck
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		logger:  logger,
		metrics: observability.NewMetrics(),
		site: service.SiteInfo{
			Name:        cfg.SiteName,
			URL:         cfg.SiteURL,
			CalendarURL: cfg.CalendarURL,
			AdminURL:    cfg.SiteURL + "/admin",
			SalesInbox:  cfg.SalesInbox,
		},
	}

	resilienceCfg := resilienceConfig(cfg)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Store ---
	switch cfg.StoreBackend {
	case "supabase":
		if cfg.SupabaseURL == "" {
			return nil, errors.New("STORE_BACKEND=supabase requires SUPABASE_URL")
		}
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		a.store = supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"), resilienceCfg, logger)
	default:
		logger.Info("using SQL data backend", zap.String("driver", cfg.SQLDriver))
		db, err := sqlite.Open(ctx, cfg.SQLDriver, cfg.SQLDSN, logger)
		if err != nil {
			return nil, err
		}
		a.store = db
		a.closers = append(a.closers, db.Close)
	}
	a.checks = append(a.checks, handler.HealthCheck{Name: "store", Ping: a.store.Ping})

	// --- Browser storage scope ---
	if cfg.RedisAddr != "" {
		r, err := kv.NewRedis(ctx, kv.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			ScopeTTL: cfg.ScopeTTL,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		logger.Info("browser scope on Redis", zap.String("addr", cfg.RedisAddr))
		a.local = r
		a.closers = append(a.closers, r.Close)
		a.checks = append(a.checks, handler.HealthCheck{Name: "redis", Ping: r.Ping})
	} else {
		logger.Warn("REDIS_ADDR not set, browser scope kept in memory")
		a.local = kv.NewMemory()
	}

	// --- Email ---
	if cfg.ResendAPIKey != "" {
		sender, err := email.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailFromName,
			resilience.NewCircuitBreaker("resend"), logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.sender = sender
	} else {
		logger.Warn("RESEND_API_KEY not set, emails are only logged")
		a.sender = email.NewLogSender(logger)
	}

	return a, nil
}

func resilienceConfig(cfg *config.Config) resilience.Config {
	return resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
}

func newReplyGenerator(cfg *config.Config, logger *zap.Logger) (port.ReplyGenerator, error) {
	resilienceCfg := resilienceConfig(cfg)
	cb := resilience.NewCircuitBreaker("reply")

	switch cfg.ReplyProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, errors.New("REPLY_PROVIDER=openai requires OPENAI_API_KEY")
		}
		logger.Info("replies from OpenAI", zap.String("model", cfg.OpenAIModel))
		return openai.New(cfg.OpenAIKey, cfg.OpenAIModel, cfg.SystemPrompt, cb, resilienceCfg), nil
	case "agent":
		logger.Info("replies from agent API", zap.String("url", cfg.AgentURL))
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		return client.NewAgentReplyClient(httpClient, cfg.AgentURL, cfg.SystemPrompt, cb, resilienceCfg), nil
	default:
		return nil, fmt.Errorf("unknown REPLY_PROVIDER %q", cfg.ReplyProvider)
	}
}

func serve(cfg *config.Config) error {
	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "leadchat")
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("reply_provider", cfg.ReplyProvider),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("conversation_ttl", cfg.ConversationTTL),
		zap.Int("messages_per_min", cfg.MessagesPerMin),
	)
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin login disabled")
	}

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "leadchat")
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	reply, err := newReplyGenerator(cfg, logger)
	if err != nil {
		return err
	}

	// --- Trigger rules ---
	var override *config.TriggerRulesOverride
	if cfg.TriggerRulesFile != "" {
		override, err = config.LoadTriggerRules(cfg.TriggerRulesFile)
		if err != nil {
			return err
		}
		logger.Info("trigger rules loaded", zap.String("file", cfg.TriggerRulesFile))
	}

	// --- Services ---
	limiter := service.NewRateLimiter(cfg.MessagesPerMin, cfg.MessageBurst, cfg.ConversationTTL)
	defer limiter.Stop()

	dispatcher := service.NewDispatcher(a.sender, a.store, a.store, a.site, a.metrics, logger)
	leads := service.NewLeadPipeline(a.store, a.store, dispatcher, a.metrics, logger)
	defer leads.Stop()
	conversations := service.NewConversations(a.store, reply, leads, limiter, cfg.ConversationTTL, a.metrics, logger)
	defer conversations.Stop()
	admin := service.NewAdminService(a.store, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	digest := service.NewDigestJob(admin, a.store, a.sender, a.site, time.Local, logger)
	if cfg.DigestSchedule != "" {
		if err := digest.Start(cfg.DigestSchedule); err != nil {
			return err
		}
		defer digest.Stop(context.Background())
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Identity:      service.NewIdentity(a.local, a.store, a.metrics, logger),
		Activator:     service.NewActivator(service.NewTriggerEngine(override), service.NewEngagementStore(a.local), a.metrics, logger),
		Conversations: conversations,
		Leads:         leads,
		Admin:         admin,
	}, handler.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookies:  strings.HasPrefix(cfg.SiteURL, "https://"),
		HealthChecks:   a.checks,
	}, a.metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
