package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hurshidbey/p57-access/internal/audit"
	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/transport/http/middleware"
	"github.com/hurshidbey/p57-access/internal/usecase"
)

// GrantHandler serves role assignment endpoints.
type GrantHandler struct {
	grants   *usecase.GrantService
	resolver *usecase.Resolver
	pipeline *audit.Pipeline
}

// NewGrantHandler constructs a GrantHandler.
func NewGrantHandler(grants *usecase.GrantService, resolver *usecase.Resolver, pipeline *audit.Pipeline) *GrantHandler {
	return &GrantHandler{grants: grants, resolver: resolver, pipeline: pipeline}
}

var grantErrorCases = []ErrorCase{
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrAlreadyGranted, Status: http.StatusConflict, Message: "role already granted to principal"},
}

// Assign grants a role to the principal named in the path.
func (h *GrantHandler) Assign(c *gin.Context) {
	actor, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid grant payload"))
		return
	}

	detail, err := h.grants.AssignRole(c.Request.Context(), usecase.AssignRoleInput{
		PrincipalID: c.Param("id"),
		RoleID:      req.RoleID,
		GrantedBy:   actor.ID,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		RespondWithMappedError(c, err, grantErrorCases, http.StatusInternalServerError, "failed to assign role")
		return
	}

	c.JSON(http.StatusCreated, grantView(*detail, time.Now().UTC()))
}

// Revoke removes a grant. Revoking an absent grant succeeds.
func (h *GrantHandler) Revoke(c *gin.Context) {
	err := h.grants.RevokeRole(c.Request.Context(), c.Param("id"), c.Param("roleId"))
	if err != nil {
		RespondWithMappedError(c, err, grantErrorCases, http.StatusInternalServerError, "failed to revoke role")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "role revoked"})
}

// ListGrants returns every grant of the principal, expired included.
func (h *GrantHandler) ListGrants(c *gin.Context) {
	details, err := h.grants.PrincipalGrants(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, grantErrorCases, http.StatusInternalServerError, "failed to list grants")
		return
	}

	asOf := time.Now().UTC()
	views := make([]GrantView, 0, len(details))
	for _, detail := range details {
		views = append(views, grantView(detail, asOf))
	}
	c.JSON(http.StatusOK, gin.H{"grants": views})
}

// Permissions returns the effective permission snapshot of a principal.
// Principals may inspect themselves; inspecting others requires roles:read.
// This route carries its own authorization so it is registered without a gate.
func (h *GrantHandler) Permissions(c *gin.Context) {
	actor, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	targetID := c.Param("id")
	if targetID == "me" {
		targetID = actor.ID
	}

	if targetID != actor.ID {
		decision := h.resolver.Authorize(c.Request.Context(), *actor, domain.ResourceRoles, domain.ActionRead)
		if !decision.Allow {
			status := domain.AuditStatusDenied
			message := "missing permission roles:read"
			if decision.Err != nil {
				status = domain.AuditStatusFailed
				message = decision.Err.Error()
			}
			h.pipeline.Record(audit.Event{
				PrincipalID:    actor.ID,
				PrincipalEmail: actor.Email,
				Action:         domain.ActionRead,
				Resource:       domain.ResourceRoles,
				ResourceID:     &targetID,
				Detail: map[string]any{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"reason": decision.Reason,
				},
				IPAddress:    c.ClientIP(),
				UserAgent:    c.Request.UserAgent(),
				Status:       status,
				ErrorMessage: &message,
			})
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "missing permission roles:read"))
			return
		}
	}

	resolved, err := h.resolver.Resolve(c.Request.Context(), domain.Principal{ID: targetID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve permissions"))
		return
	}

	c.JSON(http.StatusOK, PrincipalPermissionsResponse{
		PrincipalID: targetID,
		Roles:       resolved.Roles,
		Permissions: resolved.Permissions,
		Superuser:   resolved.Superuser,
	})
}
