package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/hurshidbey/p57-access/internal/usecase"
)

// PermissionHandler serves the permission catalog.
type PermissionHandler struct {
	roles *usecase.RoleService
}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler(roles *usecase.RoleService) *PermissionHandler {
	return &PermissionHandler{roles: roles}
}

// List returns the catalog grouped by resource for the management UI.
func (h *PermissionHandler) List(c *gin.Context) {
	permissions, err := h.roles.ListPermissions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list permissions"))
		return
	}

	grouped := make(map[string][]PermissionView)
	for _, p := range permissions {
		grouped[p.Resource] = append(grouped[p.Resource], permissionView(p))
	}
	for resource := range grouped {
		views := grouped[resource]
		sort.Slice(views, func(i, j int) bool { return views[i].Action < views[j].Action })
		grouped[resource] = views
	}

	c.JSON(http.StatusOK, gin.H{
		"resources": grouped,
		"total":     len(permissions),
	})
}
