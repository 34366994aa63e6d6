package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/audit"
	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/usecase"
)

// Gate enforces authorization on a route and owns the audit record for it.
// Every gated request yields exactly one record: denied requests are recorded
// before the 403, allowed requests are recorded after the handler finishes
// with the outcome status. Attach at most one gate per route; use
// RequireAnyPermission instead of stacking gates.
type Gate struct {
	resolver *usecase.Resolver
	pipeline *audit.Pipeline
	logger   *zap.Logger
}

// NewGate constructs a Gate.
func NewGate(resolver *usecase.Resolver, pipeline *audit.Pipeline, log *zap.Logger) *Gate {
	return &Gate{resolver: resolver, pipeline: pipeline, logger: log}
}

// gateTarget describes what the gate protects, for the 403 body and the audit
// record.
type gateTarget struct {
	resource string
	action   string
	describe string
	detail   map[string]any
}

// RequirePermission allows the request only when the principal holds the
// (resource, action) permission.
func (g *Gate) RequirePermission(resource, action string) gin.HandlerFunc {
	target := gateTarget{
		resource: resource,
		action:   action,
		describe: fmt.Sprintf("permission %s:%s", resource, action),
	}
	return func(c *gin.Context) {
		g.enforce(c, target, func(principal domain.Principal, resolved *domain.ResolvedPermissions) domain.Decision {
			return g.resolver.Decide(principal, resolved, resource, action)
		})
	}
}

// RequireAnyPermission allows the request when any of the pairs is covered.
// The first pair names the operation in the audit record.
func (g *Gate) RequireAnyPermission(keys ...domain.PermissionKey) gin.HandlerFunc {
	if len(keys) == 0 {
		panic("RequireAnyPermission needs at least one permission key")
	}

	alternatives := make([]any, 0, len(keys))
	for _, key := range keys {
		alternatives = append(alternatives, key.Key())
	}
	target := gateTarget{
		resource: keys[0].Resource,
		action:   keys[0].Action,
		describe: fmt.Sprintf("permission %s", keys[0].Key()),
		detail:   map[string]any{"accepted_permissions": alternatives},
	}
	return func(c *gin.Context) {
		g.enforce(c, target, func(principal domain.Principal, resolved *domain.ResolvedPermissions) domain.Decision {
			return g.resolver.DecideAny(principal, resolved, keys)
		})
	}
}

// RequireRole allows the request only for principals holding the named role
// through an active grant (or superusers).
func (g *Gate) RequireRole(roleName string) gin.HandlerFunc {
	target := gateTarget{
		resource: domain.ResourceRoles,
		action:   "require",
		describe: fmt.Sprintf("role %s", roleName),
		detail:   map[string]any{"required_role": roleName},
	}
	return func(c *gin.Context) {
		g.enforce(c, target, func(_ domain.Principal, resolved *domain.ResolvedPermissions) domain.Decision {
			return g.resolver.DecideRole(resolved, roleName)
		})
	}
}

func (g *Gate) enforce(c *gin.Context, target gateTarget, decide func(domain.Principal, *domain.ResolvedPermissions) domain.Decision) {
	principal, ok := GetPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "authentication required"))
		return
	}

	var decision domain.Decision
	resolved, err := g.snapshot(c, *principal)
	if err != nil {
		decision = g.resolver.Deny(err)
	} else {
		decision = decide(*principal, resolved)
	}

	if !decision.Allow {
		status := domain.AuditStatusDenied
		message := fmt.Sprintf("missing %s", target.describe)
		if decision.Err != nil {
			status = domain.AuditStatusFailed
			message = decision.Err.Error()
		}
		g.record(c, *principal, target, decision, status, &message, 0, 0)

		// The response body never distinguishes a storage outage from a
		// genuine denial.
		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, fmt.Sprintf("missing %s", target.describe)))
		return
	}

	start := time.Now()
	var panicked any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
			}
		}()
		c.Next()
	}()
	duration := time.Since(start)

	status := domain.AuditStatusSuccess
	statusCode := c.Writer.Status()
	var errMsg *string
	switch {
	case panicked != nil:
		// The recovery middleware writes its 500 only after this gate
		// unwinds, so the writer still reports the pre-panic status here.
		statusCode = http.StatusInternalServerError
		status = domain.AuditStatusFailed
		message := "handler panic"
		errMsg = &message
	case statusCode >= http.StatusInternalServerError:
		status = domain.AuditStatusFailed
		message := http.StatusText(statusCode)
		if len(c.Errors) > 0 {
			message = c.Errors.Last().Error()
		}
		errMsg = &message
	}

	g.record(c, *principal, target, decision, status, errMsg, statusCode, duration)

	if panicked != nil {
		panic(panicked)
	}
}

// snapshot memoizes the permission resolution in the gin context so chained
// checks within one request hit the resolver once.
func (g *Gate) snapshot(c *gin.Context, principal domain.Principal) (*domain.ResolvedPermissions, error) {
	if resolved, ok := GetResolved(c); ok {
		return resolved, nil
	}

	resolved, err := g.resolver.Resolve(c.Request.Context(), principal)
	if err != nil {
		return nil, err
	}

	c.Set(ResolvedKey, resolved)
	return resolved, nil
}

// record hands the audit event to the pipeline. A zero statusCode means the
// handler never ran, so no response fields are attached.
func (g *Gate) record(c *gin.Context, principal domain.Principal, target gateTarget, decision domain.Decision, status domain.AuditStatus, errMsg *string, statusCode int, duration time.Duration) {
	detail := map[string]any{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"reason": decision.Reason,
	}
	if statusCode != 0 {
		detail["status_code"] = statusCode
		detail["duration_ms"] = duration.Milliseconds()
	}
	for key, value := range target.detail {
		detail[key] = value
	}

	var resourceID *string
	if id := c.Param("id"); id != "" {
		resourceID = &id
	}

	g.pipeline.Record(audit.Event{
		PrincipalID:    principal.ID,
		PrincipalEmail: principal.Email,
		Action:         target.action,
		Resource:       target.resource,
		ResourceID:     resourceID,
		Detail:         detail,
		IPAddress:      c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		Status:         status,
		ErrorMessage:   errMsg,
	})
}
