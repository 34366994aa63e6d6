package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// RoleCreateRequest defines the payload for creating a role.
type RoleCreateRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description *string  `json:"description"`
	Priority    int      `json:"priority"`
	Permissions []string `json:"permissions"`
}

// RoleUpdateRequest defines a partial role update.
type RoleUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Priority    *int    `json:"priority"`
}

// RolePermissionsRequest replaces a role's permission set.
type RolePermissionsRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

// PermissionView describes one catalog permission.
type PermissionView struct {
	ID          string  `json:"id"`
	Resource    string  `json:"resource"`
	Action      string  `json:"action"`
	Key         string  `json:"key"`
	Description *string `json:"description,omitempty"`
}

// RoleView describes a role with its permissions and usage.
type RoleView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Priority    int              `json:"priority"`
	System      bool             `json:"system"`
	Permissions []PermissionView `json:"permissions"`
	GrantCount  int              `json:"grant_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// AssignRoleRequest grants a role to a principal.
type AssignRoleRequest struct {
	RoleID    string     `json:"role_id" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// GrantView describes one grant with its role.
type GrantView struct {
	PrincipalID string     `json:"principal_id"`
	RoleID      string     `json:"role_id"`
	RoleName    string     `json:"role_name"`
	GrantedAt   time.Time  `json:"granted_at"`
	GrantedBy   string     `json:"granted_by,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
}

// PrincipalPermissionsResponse is the effective permission snapshot of a
// principal.
type PrincipalPermissionsResponse struct {
	PrincipalID string           `json:"principal_id"`
	Roles       []domain.RoleRef `json:"roles"`
	Permissions []string         `json:"permissions"`
	Superuser   bool             `json:"superuser"`
}

// AuditRecordView is the API shape of one audit record.
type AuditRecordView struct {
	ID             string         `json:"id"`
	PrincipalID    string         `json:"principal_id"`
	PrincipalEmail string         `json:"principal_email"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource"`
	ResourceID     *string        `json:"resource_id,omitempty"`
	Detail         map[string]any `json:"detail,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	Status         string         `json:"status"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AuditListResponse is a paginated audit page.
type AuditListResponse struct {
	Records []AuditRecordView `json:"records"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// OperationCountView aggregates events per operation.
type OperationCountView struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Status   string `json:"status"`
	Count    int64  `json:"count"`
}

// PrincipalActivityView summarizes one principal's footprint.
type PrincipalActivityView struct {
	PrincipalID    string    `json:"principal_id"`
	PrincipalEmail string    `json:"principal_email"`
	Count          int64     `json:"count"`
	LastActivity   time.Time `json:"last_activity"`
}

// FailureCountView aggregates failures by message.
type FailureCountView struct {
	Resource     string `json:"resource"`
	Action       string `json:"action"`
	ErrorMessage string `json:"error_message"`
	Count        int64  `json:"count"`
}

// AuditStatsResponse bundles the aggregate views.
type AuditStatsResponse struct {
	ByOperation   []OperationCountView    `json:"by_operation"`
	TopPrincipals []PrincipalActivityView `json:"top_principals"`
	TopFailures   []FailureCountView      `json:"top_failures"`
}

func permissionView(p domain.Permission) PermissionView {
	return PermissionView{
		ID:          p.ID,
		Resource:    p.Resource,
		Action:      p.Action,
		Key:         p.Key(),
		Description: p.Description,
	}
}

func roleView(overview usecase.RoleOverview) RoleView {
	permissions := make([]PermissionView, 0, len(overview.Permissions))
	for _, p := range overview.Permissions {
		permissions = append(permissions, permissionView(p))
	}
	return RoleView{
		ID:          overview.Role.ID,
		Name:        overview.Role.Name,
		Description: overview.Role.Description,
		Priority:    overview.Role.Priority,
		System:      overview.Role.IsSystem(),
		Permissions: permissions,
		GrantCount:  overview.GrantCount,
		CreatedAt:   overview.Role.CreatedAt,
		UpdatedAt:   overview.Role.UpdatedAt,
	}
}

func grantView(detail usecase.GrantDetail, asOf time.Time) GrantView {
	return GrantView{
		PrincipalID: detail.Grant.PrincipalID,
		RoleID:      detail.Role.ID,
		RoleName:    detail.Role.Name,
		GrantedAt:   detail.Grant.GrantedAt,
		GrantedBy:   detail.Grant.GrantedBy,
		ExpiresAt:   detail.Grant.ExpiresAt,
		Active:      detail.Grant.Active(asOf),
	}
}

func auditRecordView(record domain.AuditRecord) AuditRecordView {
	return AuditRecordView{
		ID:             record.ID,
		PrincipalID:    record.PrincipalID,
		PrincipalEmail: record.PrincipalEmail,
		Action:         record.Action,
		Resource:       record.Resource,
		ResourceID:     record.ResourceID,
		Detail:         record.Detail,
		IPAddress:      record.IPAddress,
		UserAgent:      record.UserAgent,
		Status:         string(record.Status),
		ErrorMessage:   record.ErrorMessage,
		CreatedAt:      record.CreatedAt,
	}
}

func auditStatsResponse(stats *port.AuditStats) AuditStatsResponse {
	response := AuditStatsResponse{
		ByOperation:   make([]OperationCountView, 0, len(stats.ByOperation)),
		TopPrincipals: make([]PrincipalActivityView, 0, len(stats.TopPrincipals)),
		TopFailures:   make([]FailureCountView, 0, len(stats.TopFailures)),
	}
	for _, op := range stats.ByOperation {
		response.ByOperation = append(response.ByOperation, OperationCountView{
			Resource: op.Resource,
			Action:   op.Action,
			Status:   string(op.Status),
			Count:    op.Count,
		})
	}
	for _, principal := range stats.TopPrincipals {
		response.TopPrincipals = append(response.TopPrincipals, PrincipalActivityView{
			PrincipalID:    principal.PrincipalID,
			PrincipalEmail: principal.PrincipalEmail,
			Count:          principal.Count,
			LastActivity:   principal.LastActivity,
		})
	}
	for _, failure := range stats.TopFailures {
		response.TopFailures = append(response.TopFailures, FailureCountView{
			Resource:     failure.Resource,
			Action:       failure.Action,
			ErrorMessage: failure.ErrorMessage,
			Count:        failure.Count,
		})
	}
	return response
}
