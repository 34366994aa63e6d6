package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/audit"
	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/infra/config"
	"github.com/hurshidbey/p57-access/internal/transport/http/handlers"
	"github.com/hurshidbey/p57-access/internal/transport/http/middleware"
	"github.com/hurshidbey/p57-access/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Resolver *usecase.Resolver
	Roles    *usecase.RoleService
	Grants   *usecase.GrantService
	Audits   *usecase.AuditQueryService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Identity port.IdentityProvider
	Pipeline *audit.Pipeline
	Metrics  *middleware.HTTPMetrics
	Services ServiceSet
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.RequireAuth(deps.Identity)
	gate := middleware.NewGate(deps.Services.Resolver, deps.Pipeline, deps.Logger)

	api := r.Group("/api/v1")
	api.Use(authMiddleware)
	{
		roleHandler := handlers.NewRoleHandler(deps.Services.Roles)
		rolesGroup := api.Group("/roles")
		rolesGroup.GET("", gate.RequirePermission(domain.ResourceRoles, domain.ActionRead), roleHandler.List)
		rolesGroup.POST("", gate.RequirePermission(domain.ResourceRoles, domain.ActionCreate), roleHandler.Create)
		rolesGroup.GET("/:id", gate.RequirePermission(domain.ResourceRoles, domain.ActionRead), roleHandler.Get)
		rolesGroup.PUT("/:id", gate.RequirePermission(domain.ResourceRoles, domain.ActionUpdate), roleHandler.Update)
		rolesGroup.DELETE("/:id", gate.RequirePermission(domain.ResourceRoles, domain.ActionDelete), roleHandler.Delete)
		rolesGroup.PUT("/:id/permissions", gate.RequirePermission(domain.ResourceRoles, domain.ActionUpdate), roleHandler.ReplacePermissions)

		permissionHandler := handlers.NewPermissionHandler(deps.Services.Roles)
		api.GET("/permissions", gate.RequirePermission(domain.ResourceRoles, domain.ActionRead), permissionHandler.List)

		grantHandler := handlers.NewGrantHandler(deps.Services.Grants, deps.Services.Resolver, deps.Pipeline)
		principalsGroup := api.Group("/principals")
		principalsGroup.POST("/:id/roles", gate.RequirePermission(domain.ResourceRoles, domain.ActionAssign), grantHandler.Assign)
		principalsGroup.DELETE("/:id/roles/:roleId", gate.RequirePermission(domain.ResourceRoles, domain.ActionAssign), grantHandler.Revoke)
		// Grant listings serve both auditors and the operators who assign
		// roles, so either permission admits.
		principalsGroup.GET("/:id/roles", gate.RequireAnyPermission(
			domain.PermissionKey{Resource: domain.ResourceRoles, Action: domain.ActionRead},
			domain.PermissionKey{Resource: domain.ResourceRoles, Action: domain.ActionAssign},
		), grantHandler.ListGrants)
		// Self-inspection is allowed, so this route authorizes inside the
		// handler instead of through a gate.
		principalsGroup.GET("/:id/permissions", grantHandler.Permissions)

		auditHandler := handlers.NewAuditLogHandler(deps.Services.Audits)
		auditGroup := api.Group("/audit-logs")
		auditGroup.Use(gate.RequirePermission(domain.ResourceAuditLogs, domain.ActionRead))
		auditGroup.GET("", auditHandler.List)
		auditGroup.GET("/stats", auditHandler.Stats)
		auditGroup.GET("/resource/:resource/:resourceId", auditHandler.ResourceTrail)
		auditGroup.GET("/principal/:id", auditHandler.PrincipalTrail)
	}

	return r
}
