package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/usecase"
)

// AuditLogHandler serves the audit trail read API.
type AuditLogHandler struct {
	audits *usecase.AuditQueryService
}

// NewAuditLogHandler constructs an AuditLogHandler.
func NewAuditLogHandler(audits *usecase.AuditQueryService) *AuditLogHandler {
	return &AuditLogHandler{audits: audits}
}

// List returns a filtered page of audit records.
func (h *AuditLogHandler) List(c *gin.Context) {
	filter := port.AuditFilter{
		PrincipalID: c.Query("principal_id"),
		Resource:    c.Query("resource"),
		Action:      c.Query("action"),
		Search:      c.Query("search"),
	}

	if status := c.Query("status"); status != "" {
		switch domain.AuditStatus(status) {
		case domain.AuditStatusSuccess, domain.AuditStatusFailed, domain.AuditStatusDenied:
			filter.Status = domain.AuditStatus(status)
		default:
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid status filter"))
			return
		}
	}

	from, to, ok := parseTimeRange(c)
	if !ok {
		return
	}
	filter.From = from
	filter.To = to
	filter.Limit, filter.Offset = parsePagination(c)

	records, total, err := h.audits.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list audit records"))
		return
	}

	c.JSON(http.StatusOK, AuditListResponse{
		Records: recordViews(records),
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// Stats returns aggregate views over an optional time window.
func (h *AuditLogHandler) Stats(c *gin.Context) {
	from, to, ok := parseTimeRange(c)
	if !ok {
		return
	}

	stats, err := h.audits.Stats(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to compute audit stats"))
		return
	}

	c.JSON(http.StatusOK, auditStatsResponse(stats))
}

// ResourceTrail returns the history of one resource instance.
func (h *AuditLogHandler) ResourceTrail(c *gin.Context) {
	limit, offset := parsePagination(c)

	records, err := h.audits.ResourceTrail(c.Request.Context(), c.Param("resource"), c.Param("resourceId"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list resource trail"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": recordViews(records)})
}

// PrincipalTrail returns everything one principal did.
func (h *AuditLogHandler) PrincipalTrail(c *gin.Context) {
	limit, offset := parsePagination(c)

	records, err := h.audits.PrincipalTrail(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list principal trail"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": recordViews(records)})
}

func recordViews(records []domain.AuditRecord) []AuditRecordView {
	views := make([]AuditRecordView, 0, len(records))
	for _, record := range records {
		views = append(views, auditRecordView(record))
	}
	return views
}

func parsePagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

// parseTimeRange reads optional RFC 3339 from/to query params. A false return
// means the response is already written.
func parseTimeRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	var from, to *time.Time

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid 'from' timestamp, expected RFC 3339"))
			return nil, nil, false
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid 'to' timestamp, expected RFC 3339"))
			return nil, nil, false
		}
		to = &parsed
	}
	if from != nil && to != nil && to.Before(*from) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "'to' must not precede 'from'"))
		return nil, nil, false
	}

	return from, to, true
}
