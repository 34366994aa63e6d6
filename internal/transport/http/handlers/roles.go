package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hurshidbey/p57-access/internal/transport/http/middleware"
	"github.com/hurshidbey/p57-access/internal/usecase"
)

// RoleHandler serves role management endpoints.
type RoleHandler struct {
	roles *usecase.RoleService
}

// NewRoleHandler constructs a RoleHandler.
func NewRoleHandler(roles *usecase.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

var roleErrorCases = []ErrorCase{
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrRoleExists, Status: http.StatusConflict, Message: "role name already taken"},
	{Err: usecase.ErrSystemRoleImmutable, Status: http.StatusForbidden, Message: "system roles cannot be renamed or deleted"},
	{Err: usecase.ErrUnknownPermission, Status: http.StatusBadRequest, Message: "unknown permission key"},
}

// List returns every role with permissions and grant counts.
func (h *RoleHandler) List(c *gin.Context) {
	overviews, err := h.roles.ListRoles(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to list roles")
		return
	}

	views := make([]RoleView, 0, len(overviews))
	for _, overview := range overviews {
		views = append(views, roleView(overview))
	}
	c.JSON(http.StatusOK, gin.H{"roles": views})
}

// Get returns one role by id.
func (h *RoleHandler) Get(c *gin.Context) {
	overview, err := h.roles.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to load role")
		return
	}
	c.JSON(http.StatusOK, roleView(*overview))
}

// Create provisions a custom role.
func (h *RoleHandler) Create(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	overview, err := h.roles.CreateRole(c.Request.Context(), principal.ID, usecase.CreateRoleInput{
		Name:           req.Name,
		Description:    req.Description,
		Priority:       req.Priority,
		PermissionKeys: req.Permissions,
	})
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, roleView(*overview))
}

// Update applies a partial update to a role.
func (h *RoleHandler) Update(c *gin.Context) {
	var req RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	role, err := h.roles.UpdateRole(c.Request.Context(), c.Param("id"), usecase.UpdateRoleInput{
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to update role")
		return
	}

	overview, err := h.roles.GetRole(c.Request.Context(), role.ID)
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to load role")
		return
	}
	c.JSON(http.StatusOK, roleView(*overview))
}

// Delete removes a custom role.
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.DeleteRole(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to delete role")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "role deleted"})
}

// ReplacePermissions swaps the role's permission set.
func (h *RoleHandler) ReplacePermissions(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req RolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permissions payload"))
		return
	}

	permissions, err := h.roles.ReplacePermissions(c.Request.Context(), principal.ID, c.Param("id"), req.Permissions)
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to replace permissions")
		return
	}

	views := make([]PermissionView, 0, len(permissions))
	for _, p := range permissions {
		views = append(views, permissionView(p))
	}
	c.JSON(http.StatusOK, gin.H{"permissions": views})
}
