package store

import (
	"context"
	"fmt"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/models"
)

const auditColumns = `id, asset_tag, location_id, action_type, field_name, old_value, new_value,
	changed_by, changed_at, ip_address, user_agent, created_at, updated_at`

// DefaultHistoryLimit bounds history queries that do not name a limit.
const DefaultHistoryLimit = 100

// RecordAudit appends one entry and returns its id. A zero ChangedAt is set
// to the current time.
func (q *Queries) RecordAudit(ctx context.Context, e *models.AuditEntry) (int64, error) {
	if (e.AssetTag == nil) == (e.LocationID == nil) {
		return 0, apperr.Storage("recording audit entry", fmt.Errorf("entry needs exactly one subject"))
	}

	now := q.now()
	if e.ChangedAt.IsZero() {
		e.ChangedAt = now
	}
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO audit_log (asset_tag, location_id, action_type, field_name, old_value, new_value,
		                       changed_by, changed_at, ip_address, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id`,
		e.AssetTag, e.LocationID, e.ActionType, e.FieldName, e.OldValue, e.NewValue,
		e.ChangedBy, e.ChangedAt.UTC(), e.IPAddress, e.UserAgent, now,
	).Scan(&e.ID)
	if err != nil {
		return 0, apperr.Storage("recording audit entry", err)
	}
	e.CreatedAt, e.UpdatedAt = now, now
	return e.ID, nil
}

// ImportAudit copies historical entries, keeping their original ChangedAt.
func (q *Queries) ImportAudit(ctx context.Context, entries []models.AuditEntry) (int, error) {
	for i := range entries {
		if entries[i].ChangedAt.IsZero() {
			return i, apperr.Validationf("audit entry %d has no timestamp", i)
		}
		if _, err := q.RecordAudit(ctx, &entries[i]); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

func historyBounds(page models.HistoryPage) (int, int) {
	limit, offset := page.Limit, page.Offset
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (q *Queries) queryAudit(ctx context.Context, op, where string, page models.HistoryPage, args ...any) ([]models.AuditEntry, error) {
	limit, offset := historyBounds(page)
	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += fmt.Sprintf(` ORDER BY changed_at DESC, id DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.AssetTag, &e.LocationID, &e.ActionType, &e.FieldName, &e.OldValue,
			&e.NewValue, &e.ChangedBy, &e.ChangedAt, &e.IPAddress, &e.UserAgent, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, apperr.Storage("scanning audit entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	return entries, nil
}

// AuditForAsset returns the history of an asset tag, newest first.
func (q *Queries) AuditForAsset(ctx context.Context, tag string, page models.HistoryPage) ([]models.AuditEntry, error) {
	return q.queryAudit(ctx, "reading asset history", "asset_tag = $1", page, tag)
}

// AuditForLocation returns the history of a location, newest first.
func (q *Queries) AuditForLocation(ctx context.Context, id int64, page models.HistoryPage) ([]models.AuditEntry, error) {
	return q.queryAudit(ctx, "reading location history", "location_id = $1", page, id)
}

// AuditByActor returns everything one actor changed, newest first.
func (q *Queries) AuditByActor(ctx context.Context, actor string, page models.HistoryPage) ([]models.AuditEntry, error) {
	return q.queryAudit(ctx, "reading actor history", "changed_by = $1", page, actor)
}

// RecentAudit returns the latest entries across all subjects.
func (q *Queries) RecentAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return q.queryAudit(ctx, "reading recent activity", "", models.HistoryPage{Limit: limit})
}

// CountAuditForAsset returns the number of entries for an asset tag.
func (q *Queries) CountAuditForAsset(ctx context.Context, tag string) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE asset_tag = $1`, tag).Scan(&n); err != nil {
		return 0, apperr.Storage("counting audit entries", err)
	}
	return n, nil
}
