// Package service holds the Change-Tracked Mutation Service and the Query
// Service. Every mutation runs in one store transaction together with the
// audit entries it produces.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/config"
	"it-inventory-api/internal/models"
	"it-inventory-api/internal/store"
)

// Entity names reported to the Observer.
const (
	EntityItem     = "item"
	EntityLocation = "location"
)

// Mutation outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Observer receives mutation outcomes, typically to feed metrics.
type Observer interface {
	MutationObserved(entity, action, outcome string)
	AuditEntriesWritten(action string, n int)
}

type nopObserver struct{}

func (nopObserver) MutationObserved(string, string, string) {}
func (nopObserver) AuditEntriesWritten(string, int)         {}

// Options carries the configurable inventory policies.
type Options struct {
	LocationDeletePolicy string
	RequireItemLocation  bool
	DefaultStatusFilter  string
	DefaultPageSize      int
	MaxPageSize          int
	RecentActivityLimit  int
	WarrantyWindow       time.Duration
}

// OptionsFromConfig copies the policy settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LocationDeletePolicy: cfg.LocationDeletePolicy,
		RequireItemLocation:  cfg.RequireItemLocation,
		DefaultStatusFilter:  cfg.DefaultStatusFilter,
		DefaultPageSize:      cfg.DefaultPageSize,
		MaxPageSize:          cfg.MaxPageSize,
		RecentActivityLimit:  cfg.RecentActivityLimit,
		WarrantyWindow:       cfg.WarrantyWindow,
	}
}

func (o Options) withDefaults() Options {
	if o.LocationDeletePolicy == "" {
		o.LocationDeletePolicy = config.DeletePolicyReject
	}
	if o.DefaultStatusFilter == "" {
		o.DefaultStatusFilter = models.ItemStatusActive
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = 25
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 200
	}
	if o.RecentActivityLimit <= 0 {
		o.RecentActivityLimit = 50
	}
	if o.WarrantyWindow <= 0 {
		o.WarrantyWindow = 30 * 24 * time.Hour
	}
	return o
}

// auditor collects the audit entries of one mutation inside its transaction.
type auditor struct {
	q     *store.Queries
	actor string
	meta  models.RequestMeta
	at    time.Time
	count map[string]int
}

func newAuditor(q *store.Queries, p *auth.Principal, meta models.RequestMeta, at time.Time) *auditor {
	return &auditor{q: q, actor: p.Subject, meta: meta, at: at, count: map[string]int{}}
}

func (a *auditor) record(ctx context.Context, e models.AuditEntry) error {
	e.ChangedBy = a.actor
	e.ChangedAt = a.at
	e.IPAddress = optional(a.meta.IPAddress)
	e.UserAgent = optional(a.meta.UserAgent)
	if _, err := a.q.RecordAudit(ctx, &e); err != nil {
		return err
	}
	a.count[e.ActionType]++
	return nil
}

func (a *auditor) item(ctx context.Context, tag, action, field string, oldValue, newValue *string) error {
	return a.record(ctx, models.AuditEntry{
		AssetTag: &tag, ActionType: action, FieldName: field, OldValue: oldValue, NewValue: newValue,
	})
}

func (a *auditor) location(ctx context.Context, id int64, action, field string, oldValue, newValue *string) error {
	return a.record(ctx, models.AuditEntry{
		LocationID: &id, ActionType: action, FieldName: field, OldValue: oldValue, NewValue: newValue,
	})
}

func (a *auditor) total() int {
	n := 0
	for _, c := range a.count {
		n += c
	}
	return n
}

// finish reports a mutation to the observer and logs unexpected failures.
// It returns err unchanged.
func finish(log *zap.Logger, obs Observer, entity, action string, a *auditor, err error) error {
	if err != nil {
		obs.MutationObserved(entity, action, OutcomeError)
		if apperr.Kind(err) == apperr.ErrStorage {
			log.Error("mutation failed",
				zap.String("entity", entity),
				zap.String("action", action),
				zap.Error(err),
			)
		}
		return err
	}
	obs.MutationObserved(entity, action, OutcomeSuccess)
	if a != nil {
		log.Debug("mutation committed",
			zap.String("entity", entity),
			zap.String("action", action),
			zap.String("actor", a.actor),
			zap.Int("audit_entries", a.total()),
		)
		for kind, n := range a.count {
			obs.AuditEntriesWritten(kind, n)
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
