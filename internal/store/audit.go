package store

import (
	"context"
	"fmt"

	"pharmacy/m/domain"
)

// AuditFilter narrows ListAuditLogs. From and To compare against created_at
// and may be plain dates or full timestamps.
type AuditFilter struct {
	UserID   int64
	Role     string
	Action   string
	Resource string
	From     string
	To       string
	Limit    int
	Offset   int
}

// CreateAuditLog appends an audit entry.
func (q *Queries) CreateAuditLog(ctx context.Context, l domain.AuditLog) error {
	_, err := q.insert(ctx,
		`INSERT INTO audit_logs (user_id, role, action, resource, resource_id, details, ip, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.UserID, l.Role, l.Action, l.Resource, l.ResourceID, l.Details, l.IP, l.UserAgent, q.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("creating audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns entries newest first.
func (q *Queries) ListAuditLogs(ctx context.Context, f AuditFilter) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, role, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs WHERE 1=1`
	var args []any
	if f.UserID > 0 {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Role != "" {
		query += ` AND role = ?`
		args = append(args, f.Role)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	if f.Resource != "" {
		query += ` AND resource = ?`
		args = append(args, f.Resource)
	}
	if f.From != "" {
		query += ` AND created_at >= ?`
		args = append(args, f.From)
	}
	if f.To != "" {
		// A bare date includes the whole day.
		to := f.To
		if len(to) == len(domain.DateLayout) {
			to += "T99"
		}
		query += ` AND created_at <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	logs := []domain.AuditLog{}
	if err := q.selectAll(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	return logs, nil
}
