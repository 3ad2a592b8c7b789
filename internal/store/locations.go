package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/models"
)

const locationColumns = `l.id, l.site_name, l.room_number, l.room_name, l.room_type, l.floor, l.building,
	l.description, l.status, l.created_at, l.updated_at,
	(SELECT COUNT(*) FROM inventory c WHERE c.location_id = l.id) AS inventory_count`

// locationUpdatable lists the columns UpdateLocationColumns may write.
var locationUpdatable = map[string]bool{
	"site_name":   true,
	"room_number": true,
	"room_name":   true,
	"room_type":   true,
	"floor":       true,
	"building":    true,
	"description": true,
	"status":      true,
}

var locationSorts = map[string]string{
	"id":          "l.id",
	"site_name":   "l.site_name",
	"room_number": "l.room_number",
	"room_name":   "l.room_name",
	"room_type":   "l.room_type",
	"created_at":  "l.created_at",
	"updated_at":  "l.updated_at",
}

func scanLocation(row interface{ Scan(...any) error }) (*models.Location, error) {
	var l models.Location
	err := row.Scan(&l.ID, &l.SiteName, &l.RoomNumber, &l.RoomName, &l.RoomType, &l.Floor, &l.Building,
		&l.Description, &l.Status, &l.CreatedAt, &l.UpdatedAt, &l.InventoryCount)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (q *Queries) getLocation(ctx context.Context, op, where string, args ...any) (*models.Location, error) {
	l, err := scanLocation(q.q.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM location l WHERE `+where, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return l, nil
}

// GetLocation returns a location by id, or nil when it does not exist.
func (q *Queries) GetLocation(ctx context.Context, id int64) (*models.Location, error) {
	return q.getLocation(ctx, "getting location", "l.id = $1", id)
}

// GetLocationBySiteRoom looks a location up by its natural key.
func (q *Queries) GetLocationBySiteRoom(ctx context.Context, siteName, roomNumber string) (*models.Location, error) {
	return q.getLocation(ctx, "getting location by site and room",
		"l.site_name = $1 AND l.room_number = $2", siteName, roomNumber)
}

func locationWhere(f models.LocationFilter) *whereBuilder {
	w := &whereBuilder{}
	if f.RoomType != "" {
		w.add("l.room_type = $%d", f.RoomType)
	}
	if f.Status != "" {
		w.add("l.status = $%d", f.Status)
	}
	if f.SiteName != "" {
		w.add("l.site_name = $%d", f.SiteName)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		w.add(`(LOWER(l.site_name) LIKE $%[1]d ESCAPE '\'
			OR LOWER(l.room_number) LIKE $%[1]d ESCAPE '\'
			OR LOWER(l.room_name) LIKE $%[1]d ESCAPE '\')`,
			containsPattern(s))
	}
	return w
}

// ListLocations returns one page of locations matching f.
func (q *Queries) ListLocations(ctx context.Context, f models.LocationFilter, page models.Page) ([]models.Location, error) {
	w := locationWhere(f)
	query := `SELECT ` + locationColumns + ` FROM location l` + w.sql() +
		buildOrderBy(f.Sort, locationSorts, "l.site_name ASC, l.room_number ASC")
	if page.PerPage > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.PerPage, page.Offset())
	}

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, apperr.Storage("listing locations", err)
	}
	defer rows.Close()

	locations := []models.Location{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, apperr.Storage("scanning location", err)
		}
		locations = append(locations, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("listing locations", err)
	}
	return locations, nil
}

// CountLocations returns the number of locations matching f, ignoring paging.
func (q *Queries) CountLocations(ctx context.Context, f models.LocationFilter) (int, error) {
	w := locationWhere(f)
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM location l`+w.sql(), w.args...).Scan(&n); err != nil {
		return 0, apperr.Storage("counting locations", err)
	}
	return n, nil
}

// InsertLocation stores l and fills in its id and timestamps.
func (q *Queries) InsertLocation(ctx context.Context, l *models.Location) error {
	now := q.now()
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO location (site_name, room_number, room_name, room_type, floor, building, description,
		                      status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id`,
		l.SiteName, l.RoomNumber, l.RoomName, l.RoomType, l.Floor, l.Building, l.Description, l.Status, now,
	).Scan(&l.ID)
	if err != nil {
		return translate("inserting location", err)
	}
	l.CreatedAt, l.UpdatedAt = now, now
	return nil
}

// UpdateLocationColumns writes the given column values and bumps updated_at.
func (q *Queries) UpdateLocationColumns(ctx context.Context, id int64, changes map[string]any) error {
	return q.updateColumns(ctx, "location", locationUpdatable, id, changes)
}

// DeleteLocation removes a location. Items must no longer reference it;
// otherwise the delete is reported as a conflict.
func (q *Queries) DeleteLocation(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM location WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return apperr.Conflictf("location %d still has inventory items", id)
	}
	if err != nil {
		return apperr.Storage("deleting location", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("location %d not found", id)
	}
	return nil
}

// CountItemsAtLocation returns how many items reference the location.
func (q *Queries) CountItemsAtLocation(ctx context.Context, id int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory WHERE location_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, apperr.Storage("counting items at location", err)
	}
	return n, nil
}

// updateColumns issues a single UPDATE for the allowed columns in changes.
// Column order is sorted so the statement text is stable.
func (q *Queries) updateColumns(ctx context.Context, table string, allowed map[string]bool, id int64, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}

	cols := make([]string, 0, len(changes))
	for col := range changes {
		if !allowed[col] {
			return apperr.Storage("updating "+table, fmt.Errorf("column %q is not updatable", col))
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, col := range cols {
		args = append(args, changes[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	args = append(args, q.now())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return translate("updating "+table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("%s %d not found", table, id)
	}
	return nil
}
