package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/okoth/userhub/internal/auth"
	"github.com/okoth/userhub/internal/config"
	"github.com/okoth/userhub/internal/domain/user"
	"github.com/okoth/userhub/internal/http/handlers"
	"github.com/okoth/userhub/internal/http/middlewares"
	"github.com/okoth/userhub/internal/observability"
	"github.com/okoth/userhub/internal/redisclient"
	"github.com/okoth/userhub/internal/repo/postgres"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB is plenty for user payloads

func NewRouter(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, redis *redisclient.Client) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxRequestBodyBytes))
	r.Use(otelgin.Middleware("userhub"))

	prom := observability.NewProm(prometheus.DefaultRegisterer)
	r.Use(prom.GinHandleMiddleware())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// health
	ping := func(ctx context.Context) error {
		if pool == nil {
			return nil
		}

		return pool.Ping(ctx)
	}

	r.GET("/healthz", handlers.Healthz())
	r.GET("/readyz", handlers.Readyz(ping))

	// wire up repositories
	usersRepo := postgres.NewInstrumentedUsersRepo(postgres.NewUsersRepo(pool), prom)
	auditRepo := postgres.NewAuditRepo(pool)
	refreshRepo := postgres.NewRefreshTokensRepo(pool)

	tokens := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	authHandler := handlers.NewAuthHandler(usersRepo, tokens, refreshRepo, log, cfg.Env == "production").
		WithMetrics(&handlers.AuthMetrics{
			LoginOutcome: func(outcome string) { prom.LoginsTotal.WithLabelValues(outcome).Inc() },
			TokenRevoked: prom.TokensRevoked.Inc,
		})

	authMW := middlewares.NewAuthMiddleware(tokens)

	if redis != nil {
		denylist := auth.NewDenylist(redis.Raw())
		authHandler.WithAccessTokenRevoker(denylist)
		authMW.WithRevocation(denylist)
	}

	if cfg.RecheckRole {
		authMW.WithRoleRecheck(usersRepo, cfg.RoleCacheTTL)
	}

	usersHandler := handlers.NewUsersHandler(usersRepo, cfg.MinPasswordLen, log).
		WithAudit(auditRepo).
		WithSessionRevoker(refreshRepo).
		WithDecisionMetric(func(op, decision string) { prom.AuthzDecisions.WithLabelValues(op, decision).Inc() })

	adminUnitsHandler := handlers.NewAdminUnitsHandler(postgres.NewAdminUnitsRepo(pool), log)

	requireJSON := middlewares.RequireJSON()
	loginLimiter := middlewares.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)

	// session lifecycle; the refresh cookie is scoped to this prefix
	authRoutes := r.Group("/auth")
	authRoutes.POST("/refresh", authHandler.Refresh)
	authRoutes.POST("/logout", authHandler.Logout)

	users := r.Group("/users")
	users.POST("/login", requireJSON, loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)

	protected := users.Group("")
	protected.Use(authMW.RequireAuth())

	// self-service
	protected.GET("/me", usersHandler.Me)
	protected.PUT("/me/profile", requireJSON, usersHandler.UpdateMyProfile)
	protected.PUT("/me/password", requireJSON, usersHandler.ChangeMyPassword)

	// directory; per-record policy decisions live in the handlers, the
	// RequireRole gates only reject tiers the policy can never allow
	protected.GET("/", authMW.RequireRole(user.RoleAdmin), usersHandler.List)
	protected.POST("/register", requireJSON, authMW.RequireRole(user.RoleAdmin), usersHandler.Register)
	protected.GET("/:id", usersHandler.Get)
	protected.PUT("/:id", requireJSON, usersHandler.Update)
	protected.DELETE("/:id", authMW.RequireRole(user.RoleSuperAdmin), usersHandler.Delete)
	protected.PUT("/:id/status", requireJSON, authMW.RequireRole(user.RoleAdmin), usersHandler.SetStatus)
	protected.PUT("/:id/role", requireJSON, authMW.RequireRole(user.RoleSuperAdmin), usersHandler.SetRole)
	protected.GET("/:id/audit-log", authMW.RequireRole(user.RoleAdmin), usersHandler.GetAuditLog)

	// administrative hierarchy: reads for any authenticated account, writes
	// for super_admin only
	adminUnits := r.Group("/admin-units")
	adminUnits.Use(authMW.RequireAuth())
	adminUnits.GET("/", adminUnitsHandler.List)
	adminUnits.GET("/:id", adminUnitsHandler.Get)
	adminUnits.POST("/", requireJSON, authMW.RequireRole(user.RoleSuperAdmin), adminUnitsHandler.Create)
	adminUnits.PUT("/:id", requireJSON, authMW.RequireRole(user.RoleSuperAdmin), adminUnitsHandler.Update)
	adminUnits.DELETE("/:id", authMW.RequireRole(user.RoleSuperAdmin), adminUnitsHandler.Delete)

	return r
}
