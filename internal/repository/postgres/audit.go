package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
)

// AuditRepository implements append-only audit log persistence. Records are
// never updated or deleted here; rotation is an external concern.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a PostgreSQL-backed audit repository.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert appends one audit record.
func (r *AuditRepository) Insert(ctx context.Context, record domain.AuditRecord) error {
	var detail []byte
	if record.Detail != nil {
		encoded, err := json.Marshal(record.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		detail = encoded
	}

	stmt, args, err := r.builder.Insert("access.audit_logs").
		Columns(
			"id", "user_id", "user_email", "action", "resource", "resource_id",
			"details", "ip_address", "user_agent", "status", "error_message", "created_at",
		).
		Values(
			record.ID,
			record.PrincipalID,
			record.PrincipalEmail,
			record.Action,
			record.Resource,
			record.ResourceID,
			detail,
			record.IPAddress,
			record.UserAgent,
			string(record.Status),
			record.ErrorMessage,
			record.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit record sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	return nil
}

func (r *AuditRepository) filterConditions(filter port.AuditFilter) []squirrel.Sqlizer {
	conditions := make([]squirrel.Sqlizer, 0, 7)

	if filter.PrincipalID != "" {
		conditions = append(conditions, squirrel.Eq{"user_id": filter.PrincipalID})
	}
	if filter.Resource != "" {
		conditions = append(conditions, squirrel.Eq{"resource": filter.Resource})
	}
	if filter.Action != "" {
		conditions = append(conditions, squirrel.Eq{"action": filter.Action})
	}
	if filter.Status != "" {
		conditions = append(conditions, squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.From != nil {
		conditions = append(conditions, squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		conditions = append(conditions, squirrel.LtOrEq{"created_at": *filter.To})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		conditions = append(conditions, squirrel.Or{
			squirrel.ILike{"user_email": pattern},
			squirrel.ILike{"resource_id": pattern},
			squirrel.ILike{"error_message": pattern},
		})
	}

	return conditions
}

// List returns records matching the filter, newest first, plus the total count
// of matches for pagination.
func (r *AuditRepository) List(ctx context.Context, filter port.AuditFilter) ([]domain.AuditRecord, int64, error) {
	conditions := r.filterConditions(filter)

	countQuery := r.builder.Select("COUNT(*)").From("access.audit_logs")
	for _, cond := range conditions {
		countQuery = countQuery.Where(cond)
	}

	stmt, args, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count audit records sql: %w", err)
	}

	var total int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	query := r.selectRecords()
	for _, cond := range conditions {
		query = query.Where(cond)
	}
	query = query.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	records, err := r.queryRecords(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// ListByResource returns the audit trail of one resource instance.
func (r *AuditRepository) ListByResource(ctx context.Context, resource, resourceID string, limit, offset int) ([]domain.AuditRecord, error) {
	query := r.selectRecords().
		Where(squirrel.Eq{"resource": resource, "resource_id": resourceID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	if offset > 0 {
		query = query.Offset(uint64(offset))
	}

	return r.queryRecords(ctx, query)
}

// ListByPrincipal returns one principal's activity, newest first.
func (r *AuditRepository) ListByPrincipal(ctx context.Context, principalID string, limit, offset int) ([]domain.AuditRecord, error) {
	query := r.selectRecords().
		Where(squirrel.Eq{"user_id": principalID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	if offset > 0 {
		query = query.Offset(uint64(offset))
	}

	return r.queryRecords(ctx, query)
}

// Stats aggregates event counts by operation, the most active principals, and
// the most frequent failure messages within the optional time range.
func (r *AuditRepository) Stats(ctx context.Context, from, to *time.Time) (*port.AuditStats, error) {
	rangeConds := make([]squirrel.Sqlizer, 0, 2)
	if from != nil {
		rangeConds = append(rangeConds, squirrel.GtOrEq{"created_at": *from})
	}
	if to != nil {
		rangeConds = append(rangeConds, squirrel.LtOrEq{"created_at": *to})
	}

	stats := &port.AuditStats{}

	byOperation := r.builder.Select("resource", "action", "status", "COUNT(*)").
		From("access.audit_logs").
		GroupBy("resource", "action", "status")
	for _, cond := range rangeConds {
		byOperation = byOperation.Where(cond)
	}

	stmt, args, err := byOperation.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit operation stats sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit operation stats: %w", err)
	}
	for rows.Next() {
		var (
			entry  port.OperationCount
			status string
		)
		if err := rows.Scan(&entry.Resource, &entry.Action, &status, &entry.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan audit operation stats: %w", err)
		}
		entry.Status = domain.AuditStatus(status)
		stats.ByOperation = append(stats.ByOperation, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit operation stats: %w", err)
	}

	topPrincipals := r.builder.Select("user_id", "user_email", "COUNT(*)", "MAX(created_at)").
		From("access.audit_logs").
		GroupBy("user_id", "user_email").
		OrderBy("COUNT(*) DESC").
		Limit(10)
	for _, cond := range rangeConds {
		topPrincipals = topPrincipals.Where(cond)
	}

	stmt, args, err = topPrincipals.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit principal stats sql: %w", err)
	}

	rows, err = r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit principal stats: %w", err)
	}
	for rows.Next() {
		var entry port.PrincipalActivity
		if err := rows.Scan(&entry.PrincipalID, &entry.PrincipalEmail, &entry.Count, &entry.LastActivity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan audit principal stats: %w", err)
		}
		stats.TopPrincipals = append(stats.TopPrincipals, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit principal stats: %w", err)
	}

	topFailures := r.builder.Select("resource", "action", "COALESCE(error_message, '')", "COUNT(*)").
		From("access.audit_logs").
		Where(squirrel.Eq{"status": string(domain.AuditStatusFailed)}).
		GroupBy("resource", "action", "error_message").
		OrderBy("COUNT(*) DESC").
		Limit(10)
	for _, cond := range rangeConds {
		topFailures = topFailures.Where(cond)
	}

	stmt, args, err = topFailures.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit failure stats sql: %w", err)
	}

	rows, err = r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit failure stats: %w", err)
	}
	for rows.Next() {
		var entry port.FailureCount
		if err := rows.Scan(&entry.Resource, &entry.Action, &entry.ErrorMessage, &entry.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan audit failure stats: %w", err)
		}
		stats.TopFailures = append(stats.TopFailures, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit failure stats: %w", err)
	}

	return stats, nil
}

func (r *AuditRepository) selectRecords() squirrel.SelectBuilder {
	return r.builder.Select(
		"id", "user_id", "user_email", "action", "resource", "resource_id",
		"details", "ip_address", "user_agent", "status", "error_message", "created_at",
	).From("access.audit_logs")
}

func (r *AuditRepository) queryRecords(ctx context.Context, query squirrel.SelectBuilder) ([]domain.AuditRecord, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit records sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return collectAuditRecords(rows)
}

func collectAuditRecords(rows pgx.Rows) ([]domain.AuditRecord, error) {
	records := make([]domain.AuditRecord, 0)

	for rows.Next() {
		var (
			record       domain.AuditRecord
			resourceID   sql.NullString
			detail       []byte
			ipAddress    sql.NullString
			userAgent    sql.NullString
			status       string
			errorMessage sql.NullString
		)

		if err := rows.Scan(
			&record.ID,
			&record.PrincipalID,
			&record.PrincipalEmail,
			&record.Action,
			&record.Resource,
			&resourceID,
			&detail,
			&ipAddress,
			&userAgent,
			&status,
			&errorMessage,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		if resourceID.Valid {
			id := resourceID.String
			record.ResourceID = &id
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &record.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		if ipAddress.Valid {
			record.IPAddress = ipAddress.String
		}
		if userAgent.Valid {
			record.UserAgent = userAgent.String
		}
		record.Status = domain.AuditStatus(status)
		if errorMessage.Valid {
			msg := errorMessage.String
			record.ErrorMessage = &msg
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}

	return records, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
