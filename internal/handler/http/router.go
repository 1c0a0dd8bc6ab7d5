package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Duong-Anh-Duc/KH/internal/auth"
	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/pkg/health"
	"github.com/Duong-Anh-Duc/KH/pkg/middleware"
)

// RouterConfig holds the cross-cutting HTTP settings.
type RouterConfig struct {
	ServiceName       string
	CORS              middleware.CORSConfig
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration
	PprofEnabled      bool
	PprofAllowedCIDRs []string
}

// Handlers bundles the route handlers.
type Handlers struct {
	Auth          *AuthHandler
	Notifications *NotificationHandler
	Profile       *ProfileHandler
	WS            http.Handler
}

// NewRouter creates a chi router with every API route registered. ctx bounds
// background work owned by middleware such as rate-limit eviction.
func NewRouter(
	ctx context.Context,
	cfg RouterConfig,
	h Handlers,
	tokens AccessVerifier,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	// Realtime upgrade stays outside the timeout and compression middleware.
	r.Method(http.MethodGet, "/ws", h.WS)

	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := tokens.VerifyAccess(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: claims.UserID, Role: claims.Role}, nil
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Use(chimw.Compress(5))
		r.Use(middleware.RateLimit(ctx, cfg.RateLimitRequests, cfg.RateLimitWindow, logger))
		r.Use(middleware.NoStore)

		// Public
		r.Post("/registration", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/refresh-token", h.Auth.RefreshToken)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))

			r.Post("/logout", h.Auth.Logout)
			r.Get("/me", h.Auth.Me)

			r.Get("/get-notifications", h.Notifications.ListForUser)
			r.Put("/update-notification/{id}", h.Notifications.MarkOwnRead)

			r.Put("/update-user-info", h.Profile.UpdateInfo)
			r.Put("/update-user-password", h.Profile.UpdatePassword)
			r.Put("/update-user-avatar", h.Profile.UpdateAvatar)

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))

				r.Get("/get-all-notifications", h.Notifications.ListAll)
				r.Put("/admin/update-notification/{id}", h.Notifications.MarkRead)
				r.Post("/admin/notifications", h.Notifications.Announce)
				r.Put("/ban-user/{id}", h.Auth.SetBanned)
			})
		})
	})

	return r
}

var _ AccessVerifier = (*auth.TokenService)(nil)
