package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/service"
)

var tracer = otel.Tracer("handler")

// HealthCheck is one dependency probed by /healthz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Services are the use cases the router exposes.
type Services struct {
	Identity      *service.Identity
	Activator     *service.Activator
	Conversations *service.Conversations
	Leads         *service.LeadPipeline
	Admin         *service.AdminService
}

// RouterConfig carries the HTTP-level settings.
type RouterConfig struct {
	AllowedOrigins []string
	SecureCookies  bool
	HealthChecks   []HealthCheck
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, cfg RouterConfig, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(cfg.HealthChecks))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/chat", chatMetricsHandler(metrics))

		// =============================================
		// Visitor surface, scoped by the lc_browser cookie
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(BrowserScopeMiddleware(cfg.SecureCookies))

			r.Post("/sessions", ensureSessionHandler(svc.Identity, logger))

			r.Route("/sessions/{sessionId}", func(r chi.Router) {
				r.Use(sessionOwnerMiddleware(svc.Identity, logger))
				r.Get("/conversation", openConversationHandler(svc.Conversations, logger))
				r.Post("/messages", sendMessageHandler(svc.Conversations, logger))
				r.Post("/close", closeConversationHandler(svc.Conversations, logger))
				r.Post("/lead", captureLeadHandler(svc.Leads, logger))
			})

			r.Get("/widget/context", widgetContextHandler(svc.Activator, logger))
			r.Get("/widget/ws", widgetSocketHandler(svc.Activator, cfg.AllowedOrigins, logger))
		})

		// =============================================
		// Admin surface
		// =============================================
		r.Post("/admin/login", adminLoginHandler(svc.Admin, logger))
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(svc.Admin, logger))
			r.Get("/admin/funnel", adminFunnelHandler(svc.Admin, logger))
			r.Get("/admin/sessions", adminListSessionsHandler(svc.Admin, logger))
			r.Get("/admin/sessions/{sessionId}", adminSessionDetailHandler(svc.Admin, logger))
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "leadchat-api", Status: "healthy", LastChecked: now},
		}

		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			start := time.Now()
			err := c.Ping(ctx)
			cancel()

			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name:        c.Name,
				Status:      status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func chatMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetChatSnapshot())
	}
}
