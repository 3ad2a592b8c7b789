package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/models"
	"it-inventory-api/internal/store"
)

// StatusAll disables the default status filter on list queries.
const StatusAll = "all"

// Query serves read-only projections. Every method requires an
// authenticated principal of any role.
type Query struct {
	store *store.Store
	log   *zap.Logger
	opts  Options
	now   func() time.Time
}

func NewQuery(st *store.Store, log *zap.Logger, opts Options) *Query {
	if log == nil {
		log = zap.NewNop()
	}
	return &Query{store: st, log: log, opts: opts.withDefaults(), now: func() time.Time { return time.Now().UTC() }}
}

// Options returns the effective policy settings.
func (s *Query) Options() Options { return s.opts }

func (s *Query) fail(op string, err error) error {
	if apperr.Kind(err) == apperr.ErrStorage {
		s.log.Error("query failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

// NormalizePage applies the default page size and clamps it to the maximum.
func (s *Query) NormalizePage(page models.Page) models.Page {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PerPage <= 0 {
		page.PerPage = s.opts.DefaultPageSize
	}
	if page.PerPage > s.opts.MaxPageSize {
		page.PerPage = s.opts.MaxPageSize
	}
	return page
}

func (s *Query) statusFilter(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "":
		if s.opts.DefaultStatusFilter == StatusAll {
			return ""
		}
		return s.opts.DefaultStatusFilter
	case StatusAll:
		return ""
	default:
		return status
	}
}

// ListItems returns one page of items plus the total match count. With no
// status given only items in the default status are listed.
func (s *Query) ListItems(ctx context.Context, p *auth.Principal, f models.ItemFilter, page models.Page) (models.PageResult[models.InventoryItem], error) {
	var res models.PageResult[models.InventoryItem]
	if err := auth.Require(p); err != nil {
		return res, err
	}
	f.Status = s.statusFilter(f.Status)
	if f.Status != "" && !models.ValidItemStatus(f.Status) {
		return res, apperr.Validationf("unknown status %q", f.Status)
	}
	page = s.NormalizePage(page)

	items, err := s.store.ListItems(ctx, f, page)
	if err != nil {
		return res, s.fail("list items", err)
	}
	total, err := s.store.CountItems(ctx, f)
	if err != nil {
		return res, s.fail("count items", err)
	}
	return models.PageResult[models.InventoryItem]{Data: items, Total: total, Page: page.Page, PerPage: page.PerPage}, nil
}

// ListLocations returns one page of locations plus the total match count.
func (s *Query) ListLocations(ctx context.Context, p *auth.Principal, f models.LocationFilter, page models.Page) (models.PageResult[models.Location], error) {
	var res models.PageResult[models.Location]
	if err := auth.Require(p); err != nil {
		return res, err
	}
	requested := strings.TrimSpace(f.Status)
	f.Status = s.statusFilter(f.Status)
	if f.Status != "" && !models.ValidLocationStatus(f.Status) {
		if requested != "" {
			return res, apperr.Validationf("unknown status %q", f.Status)
		}
		// default item status that locations do not use
		f.Status = ""
	}
	page = s.NormalizePage(page)

	locations, err := s.store.ListLocations(ctx, f, page)
	if err != nil {
		return res, s.fail("list locations", err)
	}
	total, err := s.store.CountLocations(ctx, f)
	if err != nil {
		return res, s.fail("count locations", err)
	}
	return models.PageResult[models.Location]{Data: locations, Total: total, Page: page.Page, PerPage: page.PerPage}, nil
}

// GetItem returns the item with the given asset tag.
func (s *Query) GetItem(ctx context.Context, p *auth.Principal, tag string) (*models.InventoryItem, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	it, err := s.store.GetItemByTag(ctx, strings.TrimSpace(tag))
	if err != nil {
		return nil, s.fail("get item", err)
	}
	if it == nil {
		return nil, apperr.NotFoundf("inventory item %s not found", tag)
	}
	return it, nil
}

// GetLocation returns the location with the given id.
func (s *Query) GetLocation(ctx context.Context, p *auth.Principal, id int64) (*models.Location, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	l, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return nil, s.fail("get location", err)
	}
	if l == nil {
		return nil, apperr.NotFoundf("location %d not found", id)
	}
	return l, nil
}

func (s *Query) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Stats returns the dashboard counters.
func (s *Query) Stats(ctx context.Context, p *auth.Principal) (models.Stats, error) {
	if err := auth.Require(p); err != nil {
		return models.Stats{}, err
	}
	today := s.today()
	stats, err := s.store.Stats(ctx, today, today.Add(s.opts.WarrantyWindow))
	if err != nil {
		return models.Stats{}, s.fail("stats", err)
	}
	return stats, nil
}

// RecentActivity returns the latest audit entries. The limit defaults to and
// is capped at the configured recent activity limit.
func (s *Query) RecentActivity(ctx context.Context, p *auth.Principal, limit int) ([]models.AuditEntry, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.opts.RecentActivityLimit {
		limit = s.opts.RecentActivityLimit
	}
	entries, err := s.store.RecentAudit(ctx, limit)
	if err != nil {
		return nil, s.fail("recent activity", err)
	}
	return entries, nil
}

// AssetHistory returns the audit trail of an asset tag, newest first. It
// keeps working after the item itself has been deleted.
func (s *Query) AssetHistory(ctx context.Context, p *auth.Principal, tag string, page models.HistoryPage) ([]models.AuditEntry, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	entries, err := s.store.AuditForAsset(ctx, strings.TrimSpace(tag), page)
	if err != nil {
		return nil, s.fail("asset history", err)
	}
	return entries, nil
}

// LocationHistory returns the audit trail of a location, newest first.
func (s *Query) LocationHistory(ctx context.Context, p *auth.Principal, id int64, page models.HistoryPage) ([]models.AuditEntry, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	entries, err := s.store.AuditForLocation(ctx, id, page)
	if err != nil {
		return nil, s.fail("location history", err)
	}
	return entries, nil
}

// ActorHistory returns everything one actor changed, newest first.
func (s *Query) ActorHistory(ctx context.Context, p *auth.Principal, actor string, page models.HistoryPage) ([]models.AuditEntry, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, apperr.Validationf("actor is required")
	}
	entries, err := s.store.AuditByActor(ctx, actor, page)
	if err != nil {
		return nil, s.fail("actor history", err)
	}
	return entries, nil
}

// Export builds the full statistics snapshot.
func (s *Query) Export(ctx context.Context, p *auth.Principal) (*models.ExportSnapshot, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	stats, err := s.Stats(ctx, p)
	if err != nil {
		return nil, err
	}

	snap := &models.ExportSnapshot{
		GeneratedAt: s.now(),
		GeneratedBy: p.Subject,
		Summary:     stats,
		ByType:      stats.ByType,
		BySite:      stats.BySite,
	}
	if snap.ByStatus, err = s.store.ItemsByStatus(ctx); err != nil {
		return nil, s.fail("export", err)
	}
	if snap.AuditByAction, err = s.store.AuditByAction(ctx); err != nil {
		return nil, s.fail("export", err)
	}
	if snap.AuditByActor, err = s.store.AuditCountByActor(ctx); err != nil {
		return nil, s.fail("export", err)
	}
	return snap, nil
}
