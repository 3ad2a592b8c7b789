package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/config"
	"it-inventory-api/internal/models"
	"it-inventory-api/internal/store"
)

// Mutation actions reported to the Observer.
const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionDelete       = "delete"
	ActionToggleLoaner = "toggle_loaner"
)

// Mutator is the only writer of inventory items and locations. Each call
// commits the entity change and its audit entries together or not at all.
type Mutator struct {
	store     *store.Store
	log       *zap.Logger
	opts      Options
	obs       Observer
	now       func() time.Time
	items     []namedUpdater[models.InventoryItem]
	locations []namedUpdater[models.Location]
}

// NewMutator creates a Mutator. A nil observer discards outcomes.
func NewMutator(st *store.Store, log *zap.Logger, opts Options, obs Observer) *Mutator {
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Mutator{
		store:     st,
		log:       log,
		opts:      opts,
		obs:       obs,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		items:     itemFields(opts),
		locations: locationFields(),
	}
}

// CreateItem validates req, inserts the item and records one CREATE entry.
func (m *Mutator) CreateItem(ctx context.Context, p *auth.Principal, req models.CreateItemRequest, meta models.RequestMeta) (*models.InventoryItem, error) {
	var created *models.InventoryItem
	var a *auditor
	err := func() error {
		if err := auth.Require(p, models.WriterRoles...); err != nil {
			return err
		}
		it, err := m.newItem(req)
		if err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(q *store.Queries) error {
			a = newAuditor(q, p, meta, m.now())
			if it.LocationID != nil {
				if _, err := describeLocation(ctx, q, it.LocationID); err != nil {
					return err
				}
			}
			if err := q.InsertItem(ctx, it); err != nil {
				return err
			}
			if err := a.item(ctx, it.AssetTag, models.ActionCreate, "asset_tag", nil, strValue(it.AssetTag)); err != nil {
				return err
			}
			created, err = q.GetItemByID(ctx, it.ID)
			return err
		})
	}()
	if err != nil {
		return nil, finish(m.log, m.obs, EntityItem, ActionCreate, a, err)
	}
	return created, finish(m.log, m.obs, EntityItem, ActionCreate, a, nil)
}

func (m *Mutator) newItem(req models.CreateItemRequest) (*models.InventoryItem, error) {
	tag := strings.TrimSpace(req.AssetTag)
	assetType := strings.TrimSpace(req.AssetType)
	if tag == "" || assetType == "" {
		return nil, apperr.Validationf("asset_tag and asset_type are required")
	}

	status := models.ItemStatusActive
	if req.Status != nil && strings.TrimSpace(*req.Status) != "" {
		status = strings.ToLower(strings.TrimSpace(*req.Status))
		if !models.ValidItemStatus(status) {
			return nil, apperr.Validationf("unknown status %q", status)
		}
	}
	if req.LocationID == nil && m.opts.RequireItemLocation {
		return nil, apperr.Validationf("location_id is required")
	}
	if req.CurrentCheckoutID != nil && !req.IsLoaner {
		return nil, apperr.Validationf("only loaner items can be checked out")
	}

	now := m.now()
	it := &models.InventoryItem{
		AssetTag:          tag,
		AssetType:         assetType,
		Manufacturer:      trimmed(req.Manufacturer),
		Model:             trimmed(req.Model),
		SerialNumber:      trimmed(req.SerialNumber),
		Status:            status,
		AssignedTo:        trimmed(req.AssignedTo),
		LocationID:        req.LocationID,
		IsLoaner:          req.IsLoaner,
		CurrentCheckoutID: req.CurrentCheckoutID,
		PurchaseDate:      req.PurchaseDate.Ptr(),
		WarrantyExpiry:    req.WarrantyExpiry.Ptr(),
		Notes:             trimmed(req.Notes),
	}
	if it.AssignedTo != nil {
		it.DateAssigned = &now
	}
	if status == models.ItemStatusDecommissioned {
		it.DateDecommissioned = &now
	}
	return it, nil
}

// UpdateItem applies the recognized fields of patch to the item with the
// given asset tag and records one UPDATE entry per changed field. It returns
// the names of the fields that changed.
func (m *Mutator) UpdateItem(ctx context.Context, p *auth.Principal, tag string, patch models.Patch, meta models.RequestMeta) (*models.InventoryItem, []string, error) {
	var updated *models.InventoryItem
	var changed []string
	var a *auditor
	err := func() error {
		if err := auth.Require(p, models.WriterRoles...); err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(q *store.Queries) error {
			a = newAuditor(q, p, meta, m.now())
			it, err := m.loadItem(ctx, q, tag)
			if err != nil {
				return err
			}
			updated, changed, err = m.updateItem(ctx, q, a, it, patch)
			return err
		})
	}()
	if err != nil {
		return nil, nil, finish(m.log, m.obs, EntityItem, ActionUpdate, a, err)
	}
	return updated, changed, finish(m.log, m.obs, EntityItem, ActionUpdate, a, nil)
}

// ToggleLoaner flips is_loaner on the item, auditing it like any other update.
func (m *Mutator) ToggleLoaner(ctx context.Context, p *auth.Principal, tag string, meta models.RequestMeta) (*models.InventoryItem, error) {
	var updated *models.InventoryItem
	var a *auditor
	err := func() error {
		if err := auth.Require(p, models.WriterRoles...); err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(q *store.Queries) error {
			a = newAuditor(q, p, meta, m.now())
			it, err := m.loadItem(ctx, q, tag)
			if err != nil {
				return err
			}
			patch := models.Patch{}
			if err := patch.Set("is_loaner", !it.IsLoaner); err != nil {
				return apperr.Storage("building loaner patch", err)
			}
			updated, _, err = m.updateItem(ctx, q, a, it, patch)
			return err
		})
	}()
	if err != nil {
		return nil, finish(m.log, m.obs, EntityItem, ActionToggleLoaner, a, err)
	}
	return updated, finish(m.log, m.obs, EntityItem, ActionToggleLoaner, a, nil)
}

func (m *Mutator) loadItem(ctx context.Context, q *store.Queries, tag string) (*models.InventoryItem, error) {
	it, err := q.GetItemByTag(ctx, strings.TrimSpace(tag))
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, apperr.NotFoundf("inventory item %s not found", tag)
	}
	return it, nil
}

// updateItem diffs patch against it, writes the changed columns plus the
// derived assignment and decommission dates, and audits each changed field.
func (m *Mutator) updateItem(ctx context.Context, q *store.Queries, a *auditor, it *models.InventoryItem, patch models.Patch) (*models.InventoryItem, []string, error) {
	before := *it
	changes, err := applyPatch(ctx, q, m.items, it, patch)
	if err != nil {
		return nil, nil, err
	}
	if len(changes) == 0 {
		return it, nil, nil
	}

	columns := make(map[string]any, len(changes)+2)
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		columns[c.column] = c.value
		names = append(names, c.field)
	}

	now := m.now()
	if before.Status != it.Status {
		switch {
		case it.Status == models.ItemStatusDecommissioned:
			it.DateDecommissioned = &now
			columns["date_decommissioned"] = now
		case before.Status == models.ItemStatusDecommissioned:
			it.DateDecommissioned = nil
			columns["date_decommissioned"] = nil
		}
	}
	if !eqPtr(before.AssignedTo, it.AssignedTo) {
		if it.AssignedTo == nil {
			it.DateAssigned = nil
			columns["date_assigned"] = nil
		} else {
			it.DateAssigned = &now
			columns["date_assigned"] = now
		}
	}

	if err := q.UpdateItemColumns(ctx, it.ID, columns); err != nil {
		return nil, nil, err
	}
	for _, c := range changes {
		if err := a.item(ctx, it.AssetTag, models.ActionUpdate, c.field, c.oldValue, c.newValue); err != nil {
			return nil, nil, err
		}
	}

	reloaded, err := q.GetItemByID(ctx, it.ID)
	if err != nil {
		return nil, nil, err
	}
	return reloaded, names, nil
}

// DeleteItem records a DELETE entry summarizing the item and removes it.
func (m *Mutator) DeleteItem(ctx context.Context, p *auth.Principal, tag string, meta models.RequestMeta) error {
	var a *auditor
	err := func() error {
		if err := auth.Require(p, models.AdminRoles...); err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(q *store.Queries) error {
			a = newAuditor(q, p, meta, m.now())
			it, err := m.loadItem(ctx, q, tag)
			if err != nil {
				return err
			}
			return deleteItem(ctx, q, a, it)
		})
	}()
	return finish(m.log, m.obs, EntityItem, ActionDelete, a, err)
}

func deleteItem(ctx context.Context, q *store.Queries, a *auditor, it *models.InventoryItem) error {
	if err := a.item(ctx, it.AssetTag, models.ActionDelete, "asset_tag", strValue(it.Summary()), nil); err != nil {
		return err
	}
	return q.DeleteItem(ctx, it.ID)
}

// CreateLocation validates req, inserts the location and records one CREATE entry.
func (m *Mutator) CreateLocation(ctx context.Context, p *auth.Principal, req models.CreateLocationRequest, meta models.RequestMeta) (*models.Location, error) {
	var created *models.Location
	var a *auditor
	err := func() error {
		if err := auth.Require(p, models.WriterRoles...); err != nil {
			return err
		}
		l, err := newLocation(req)
		if err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(q *store.Queries) error {
			a = newAuditor(q, p, meta, m.now())
			if err := q.InsertLocation(ctx, l); err != nil {
				return err
			}
			if err := a.location(ctx, l.ID, models.ActionCreate, "location", nil, strValue(l.FullName())); err != nil {
				return err
			}
			created, err = q.GetLocation(ctx, l.ID)
			return err
		})
	}()
	if err != nil {
		return nil, finish(m.log, m.obs, EntityLocation, ActionCreate, a, err)
	}
	return created, finish(m.log, m.obs, EntityLocation, ActionCreate, a, nil)
}

func newLocation(req models.CreateLocationRequest) (*models.Location, error) {
	l := &models.Location{
		SiteName:    strings.TrimSpace(req.SiteName),
		RoomNumber:  strings.TrimSpace(req.RoomNumber),
		RoomName:    strings.TrimSpace(req.RoomName),
		RoomType:    strings.TrimSpace(req.RoomType),
		Floor:       trimmed(req.Floor),
		Building:    trimmed(req.Building),
		Description: trimmed(req.Description),
		Status:      models.LocationStatusActive,
	}
	if l.SiteName == "" || l.RoomNumber == "" || l.RoomName == "" || l.RoomType == "" {
		return nil, apperr.Validationf("site_name, room_number, room_name and room_type are required")
	}
	if req.Status != nil && strings.TrimSpace(*req.Status) != "" {
		l.Status = strings.ToLower(strings.TrimSpace(*req.Status))
		if !models.ValidLocationStatus(l.Status) {
			return nil, apperr.Validationf("unknown status %q", l.Status)
		}
	}
	return l, nil
}

// UpdateLocation applies the recognized fields of patch to a location and
// records one UPDATE entry per changed field.
func (m *Mutator) UpdateLocation(ctx context.Context, p *auth.Principal, id int64, patch models.Patch, meta models.RequestMeta) (*models.Location, []string, error) {
	var updated *models.Location
	var names []string
	var a *auditor
	err := func() error {
		if err := auth.Require(p, models.WriterRoles...); err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(q *store.Queries) error {
			a = newAuditor(q, p, meta, m.now())
			l, err := loadLocation(ctx, q, id)
			if err != nil {
				return err
			}
			changes, err := applyPatch(ctx, q, m.locations, l, patch)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				updated = l
				return nil
			}

			columns := make(map[string]any, len(changes))
			for _, c := range changes {
				columns[c.column] = c.value
				names = append(names, c.field)
			}
			if err := q.UpdateLocationColumns(ctx, id, columns); err != nil {
				return err
			}
			for _, c := range changes {
				if err := a.location(ctx, id, models.ActionUpdate, c.field, c.oldValue, c.newValue); err != nil {
					return err
				}
			}
			updated, err = q.GetLocation(ctx, id)
			return err
		})
	}()
	if err != nil {
		return nil, nil, finish(m.log, m.obs, EntityLocation, ActionUpdate, a, err)
	}
	return updated, names, finish(m.log, m.obs, EntityLocation, ActionUpdate, a, nil)
}

func loadLocation(ctx context.Context, q *store.Queries, id int64) (*models.Location, error) {
	l, err := q.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperr.NotFoundf("location %d not found", id)
	}
	return l, nil
}

// DeleteLocation removes a location, handling dependent items according to
// the configured policy: reject refuses, orphan clears their location and
// cascade deletes them. Every affected item is audited.
func (m *Mutator) DeleteLocation(ctx context.Context, p *auth.Principal, id int64, meta models.RequestMeta) error {
	var a *auditor
	err := func() error {
		if err := auth.Require(p, models.AdminRoles...); err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(q *store.Queries) error {
			a = newAuditor(q, p, meta, m.now())
			l, err := loadLocation(ctx, q, id)
			if err != nil {
				return err
			}
			items, err := q.ItemsAtLocation(ctx, id)
			if err != nil {
				return err
			}
			fullName := l.FullName()

			if len(items) > 0 {
				switch m.opts.LocationDeletePolicy {
				case config.DeletePolicyOrphan:
					if _, err := q.ClearItemsLocation(ctx, id); err != nil {
						return err
					}
					for _, it := range items {
						if err := a.item(ctx, it.AssetTag, models.ActionUpdate, "location_id", strValue(fullName), nil); err != nil {
							return err
						}
					}
				case config.DeletePolicyCascade:
					for i := range items {
						if err := deleteItem(ctx, q, a, &items[i]); err != nil {
							return err
						}
					}
				default:
					return apperr.Conflictf("location %s still has %d inventory items", fullName, len(items))
				}
			}

			if err := a.location(ctx, id, models.ActionDelete, "location", strValue(fullName), nil); err != nil {
				return err
			}
			return q.DeleteLocation(ctx, id)
		})
	}()
	return finish(m.log, m.obs, EntityLocation, ActionDelete, a, err)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(strings.TrimSpace(*s))
}
