package store

import (
	"context"
	"time"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/models"
)

// Stats computes the dashboard counters. Items whose warranty expires in
// [today, warrantyCutoff] or checked-out loaners count as pending actions.
func (q *Queries) Stats(ctx context.Context, today, warrantyCutoff time.Time) (models.Stats, error) {
	var s models.Stats
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'decommissioned' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_loaner THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_loaner AND current_checkout_id IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE
		           WHEN status = 'active' AND warranty_expiry IS NOT NULL
		                AND warranty_expiry >= $1 AND warranty_expiry <= $2 THEN 1
		           WHEN is_loaner AND current_checkout_id IS NOT NULL THEN 1
		           ELSE 0 END), 0)
		FROM inventory`, today.UTC(), warrantyCutoff.UTC(),
	).Scan(&s.TotalItems, &s.ActiveItems, &s.DecommissionedItems, &s.TotalLoaners, &s.CheckedOutLoaners, &s.PendingActions)
	if err != nil {
		return s, apperr.Storage("computing item stats", err)
	}
	s.AvailableLoaners = s.TotalLoaners - s.CheckedOutLoaners

	err = q.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0)
		FROM location`,
	).Scan(&s.TotalLocations, &s.ActiveLocations)
	if err != nil {
		return s, apperr.Storage("computing location stats", err)
	}

	if s.ByType, err = q.ItemsByType(ctx); err != nil {
		return s, err
	}
	if s.BySite, err = q.ItemsBySite(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// countBy runs a two-column key/count query.
func (q *Queries) countBy(ctx context.Context, op, query string) (map[string]int, error) {
	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, apperr.Storage(op, err)
		}
		out[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	return out, nil
}

func (q *Queries) ItemsByStatus(ctx context.Context) (map[string]int, error) {
	return q.countBy(ctx, "counting items by status",
		`SELECT status, COUNT(*) FROM inventory GROUP BY status`)
}

func (q *Queries) ItemsByType(ctx context.Context) (map[string]int, error) {
	return q.countBy(ctx, "counting items by type",
		`SELECT asset_type, COUNT(*) FROM inventory GROUP BY asset_type`)
}

// ItemsBySite groups items by site; items without a location count as "Unassigned".
func (q *Queries) ItemsBySite(ctx context.Context) (map[string]int, error) {
	return q.countBy(ctx, "counting items by site", `
		SELECT COALESCE(l.site_name, 'Unassigned'), COUNT(*)
		FROM inventory i LEFT JOIN location l ON l.id = i.location_id
		GROUP BY COALESCE(l.site_name, 'Unassigned')`)
}

func (q *Queries) AuditByAction(ctx context.Context) (map[string]int, error) {
	return q.countBy(ctx, "counting audit entries by action",
		`SELECT action_type, COUNT(*) FROM audit_log GROUP BY action_type`)
}

func (q *Queries) AuditCountByActor(ctx context.Context) (map[string]int, error) {
	return q.countBy(ctx, "counting audit entries by actor",
		`SELECT changed_by, COUNT(*) FROM audit_log GROUP BY changed_by`)
}
