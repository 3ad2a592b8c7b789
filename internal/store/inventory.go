package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/models"
)

const itemColumns = `i.id, i.asset_tag, i.asset_type, i.manufacturer, i.model, i.serial_number, i.status,
	i.assigned_to, i.date_assigned, i.date_decommissioned, i.location_id, i.is_loaner,
	i.current_checkout_id, i.purchase_date, i.warranty_expiry, i.notes, i.created_at, i.updated_at,
	l.site_name, l.room_number, l.room_name, l.room_type`

const itemFrom = ` FROM inventory i LEFT JOIN location l ON l.id = i.location_id`

// itemUpdatable lists the columns UpdateItemColumns may write.
var itemUpdatable = map[string]bool{
	"asset_type":          true,
	"manufacturer":        true,
	"model":               true,
	"serial_number":       true,
	"status":              true,
	"assigned_to":         true,
	"date_assigned":       true,
	"date_decommissioned": true,
	"location_id":         true,
	"is_loaner":           true,
	"current_checkout_id": true,
	"purchase_date":       true,
	"warranty_expiry":     true,
	"notes":               true,
}

var itemSorts = map[string]string{
	"id":              "i.id",
	"asset_tag":       "i.asset_tag",
	"asset_type":      "i.asset_type",
	"status":          "i.status",
	"created_at":      "i.created_at",
	"updated_at":      "i.updated_at",
	"warranty_expiry": "i.warranty_expiry",
}

func scanItem(row interface{ Scan(...any) error }) (*models.InventoryItem, error) {
	var it models.InventoryItem
	var site, room, roomName, roomType sql.NullString
	err := row.Scan(&it.ID, &it.AssetTag, &it.AssetType, &it.Manufacturer, &it.Model, &it.SerialNumber, &it.Status,
		&it.AssignedTo, &it.DateAssigned, &it.DateDecommissioned, &it.LocationID, &it.IsLoaner,
		&it.CurrentCheckoutID, &it.PurchaseDate, &it.WarrantyExpiry, &it.Notes, &it.CreatedAt, &it.UpdatedAt,
		&site, &room, &roomName, &roomType)
	if err != nil {
		return nil, err
	}
	if it.LocationID != nil && site.Valid {
		it.Location = &models.LocationSummary{
			ID:         *it.LocationID,
			SiteName:   site.String,
			RoomNumber: room.String,
			RoomName:   roomName.String,
			RoomType:   roomType.String,
			FullName:   models.FullName(site.String, room.String, roomName.String),
		}
	}
	return &it, nil
}

func (q *Queries) getItem(ctx context.Context, op, where string, arg any) (*models.InventoryItem, error) {
	it, err := scanItem(q.q.QueryRowContext(ctx, `SELECT `+itemColumns+itemFrom+` WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return it, nil
}

// GetItemByID returns an item by id, or nil when it does not exist.
func (q *Queries) GetItemByID(ctx context.Context, id int64) (*models.InventoryItem, error) {
	return q.getItem(ctx, "getting item", "i.id = $1", id)
}

// GetItemByTag returns an item by asset tag, or nil when it does not exist.
func (q *Queries) GetItemByTag(ctx context.Context, tag string) (*models.InventoryItem, error) {
	return q.getItem(ctx, "getting item by tag", "i.asset_tag = $1", tag)
}

// GetItemBySerial returns an item by serial number, or nil when it does not exist.
func (q *Queries) GetItemBySerial(ctx context.Context, serial string) (*models.InventoryItem, error) {
	return q.getItem(ctx, "getting item by serial", "i.serial_number = $1", serial)
}

func itemWhere(f models.ItemFilter) *whereBuilder {
	w := &whereBuilder{}
	if f.AssetType != "" {
		w.add("i.asset_type = $%d", f.AssetType)
	}
	if f.Status != "" {
		w.add("i.status = $%d", f.Status)
	}
	if f.IsLoaner != nil {
		w.add("i.is_loaner = $%d", *f.IsLoaner)
	}
	if f.RoomType != "" {
		w.add("l.room_type = $%d", f.RoomType)
	}
	if f.LocationID != nil {
		w.add("i.location_id = $%d", *f.LocationID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		w.add(`(LOWER(i.asset_tag) LIKE $%[1]d ESCAPE '\'
			OR LOWER(COALESCE(i.serial_number, '')) LIKE $%[1]d ESCAPE '\'
			OR LOWER(COALESCE(i.model, '')) LIKE $%[1]d ESCAPE '\'
			OR LOWER(COALESCE(i.assigned_to, '')) LIKE $%[1]d ESCAPE '\')`,
			containsPattern(s))
	}
	return w
}

// ListItems returns one page of items matching f with their location summary.
// A zero PerPage returns every match.
func (q *Queries) ListItems(ctx context.Context, f models.ItemFilter, page models.Page) ([]models.InventoryItem, error) {
	w := itemWhere(f)
	query := `SELECT ` + itemColumns + itemFrom + w.sql() + buildOrderBy(f.Sort, itemSorts, "i.asset_tag ASC")
	if page.PerPage > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.PerPage, page.Offset())
	}
	return q.queryItems(ctx, "listing items", query, w.args...)
}

// CountItems returns the number of items matching f, ignoring paging.
func (q *Queries) CountItems(ctx context.Context, f models.ItemFilter) (int, error) {
	w := itemWhere(f)
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*)`+itemFrom+w.sql(), w.args...).Scan(&n); err != nil {
		return 0, apperr.Storage("counting items", err)
	}
	return n, nil
}

// ItemsAtLocation returns every item referencing the location.
func (q *Queries) ItemsAtLocation(ctx context.Context, locationID int64) ([]models.InventoryItem, error) {
	return q.queryItems(ctx, "listing items at location",
		`SELECT `+itemColumns+itemFrom+` WHERE i.location_id = $1 ORDER BY i.asset_tag`, locationID)
}

func (q *Queries) queryItems(ctx context.Context, op, query string, args ...any) ([]models.InventoryItem, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	items := []models.InventoryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, apperr.Storage("scanning item", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	return items, nil
}

// InsertItem stores it and fills in its id and timestamps. Duplicate asset
// tags or serial numbers come back as conflicts; a missing location as not found.
func (q *Queries) InsertItem(ctx context.Context, it *models.InventoryItem) error {
	now := q.now()
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO inventory (asset_tag, asset_type, manufacturer, model, serial_number, status, assigned_to,
		                       date_assigned, date_decommissioned, location_id, is_loaner, current_checkout_id,
		                       purchase_date, warranty_expiry, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING id`,
		it.AssetTag, it.AssetType, it.Manufacturer, it.Model, it.SerialNumber, it.Status, it.AssignedTo,
		it.DateAssigned, it.DateDecommissioned, it.LocationID, it.IsLoaner, it.CurrentCheckoutID,
		it.PurchaseDate, it.WarrantyExpiry, it.Notes, now,
	).Scan(&it.ID)
	if err != nil {
		return translate("inserting item", err)
	}
	it.CreatedAt, it.UpdatedAt = now, now
	return nil
}

// UpdateItemColumns writes the given column values and bumps updated_at.
func (q *Queries) UpdateItemColumns(ctx context.Context, id int64, changes map[string]any) error {
	return q.updateColumns(ctx, "inventory", itemUpdatable, id, changes)
}

// DeleteItem removes an item by id.
func (q *Queries) DeleteItem(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM inventory WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("deleting item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("inventory item %d not found", id)
	}
	return nil
}

// ClearItemsLocation detaches every item from the location and returns how
// many rows changed.
func (q *Queries) ClearItemsLocation(ctx context.Context, locationID int64) (int, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE inventory SET location_id = NULL, updated_at = $1 WHERE location_id = $2`, q.now(), locationID)
	if err != nil {
		return 0, apperr.Storage("clearing item locations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storage("clearing item locations", err)
	}
	return int(n), nil
}
