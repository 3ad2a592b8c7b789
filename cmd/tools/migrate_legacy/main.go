// Command migrate_legacy copies the flat legacy inventory table and its audit
// log into the current schema. Locations and items are written through the
// mutation service; historical audit rows keep their original timestamps.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/config"
	"it-inventory-api/internal/db"
	"it-inventory-api/internal/logger"
	"it-inventory-api/internal/models"
	"it-inventory-api/internal/service"
	"it-inventory-api/internal/store"
)

func main() {
	var (
		legacyTable = flag.String("table", "formatted_company_inventory", "Legacy inventory table")
		auditTable  = flag.String("audit-table", "audit_log", "Legacy audit table, empty to skip")
		actor       = flag.String("actor", "legacy-migration", "Actor recorded for migrated rows")
	)
	flag.Parse()

	legacyDSN := os.Getenv("OLD_DATABASE_URL")
	if legacyDSN == "" {
		log.Fatal("OLD_DATABASE_URL environment variable is required")
	}

	cfg := config.Load()
	lg, err := logger.New(cfg.LogLevel, "console", "migrate_legacy")
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()
	legacy, err := sql.Open("postgres", legacyDSN)
	if err != nil {
		lg.Fatal("failed to open legacy database", zap.Error(err))
	}
	defer legacy.Close()

	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		lg.Fatal("failed to open database", zap.Error(err))
	}
	defer conn.Close()
	if err := db.EnsureSchema(ctx, conn.DB, conn.Dialect); err != nil {
		lg.Fatal("failed to ensure schema", zap.Error(err))
	}

	st := store.New(conn.DB)
	m := &migrator{
		legacy:      legacy,
		store:       st,
		mut:         service.NewMutator(st, lg, service.OptionsFromConfig(cfg), nil),
		log:         lg,
		principal:   &auth.Principal{Subject: *actor, Roles: []string{models.RoleAdmin}},
		table:       *legacyTable,
		auditTable:  *auditTable,
		locationIDs: map[string]int64{},
	}

	res, err := m.run(ctx)
	lg.Info("migration finished",
		zap.Int("locations", res.Locations),
		zap.Int("items", res.Items),
		zap.Int("items_skipped", res.ItemsSkipped),
		zap.Int("audit_entries", res.AuditEntries),
		zap.Int("audit_skipped", res.AuditSkipped),
	)
	if err != nil {
		lg.Fatal("migration failed", zap.Error(err))
	}
}

type result struct {
	Locations    int
	Items        int
	ItemsSkipped int
	AuditEntries int
	AuditSkipped int
}

type migrator struct {
	legacy     *sql.DB
	store      *store.Store
	mut        *service.Mutator
	log        *zap.Logger
	principal  *auth.Principal
	table      string
	auditTable string

	// site|room -> new location id
	locationIDs map[string]int64
}

var meta = models.RequestMeta{UserAgent: "migrate_legacy"}

func (m *migrator) run(ctx context.Context) (result, error) {
	var res result
	if err := m.migrateLocations(ctx, &res); err != nil {
		return res, err
	}
	if err := m.migrateInventory(ctx, &res); err != nil {
		return res, err
	}
	if m.auditTable != "" {
		if err := m.migrateAudit(ctx, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func locationKey(site, room string) string {
	return strings.TrimSpace(site) + "|" + strings.TrimSpace(room)
}

func (m *migrator) migrateLocations(ctx context.Context, res *result) error {
	rows, err := m.legacy.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT site_name, room_number, room_name, room_type, floor, building
		FROM %s
		WHERE site_name IS NOT NULL AND room_number IS NOT NULL`, pq.QuoteIdentifier(m.table)))
	if err != nil {
		return fmt.Errorf("reading legacy locations: %w", err)
	}
	defer rows.Close()

	var reqs []models.CreateLocationRequest
	for rows.Next() {
		var site, room, roomName, roomType, floor, building sql.NullString
		if err := rows.Scan(&site, &room, &roomName, &roomType, &floor, &building); err != nil {
			return fmt.Errorf("scanning legacy location: %w", err)
		}
		req := models.CreateLocationRequest{
			SiteName:   strings.TrimSpace(site.String),
			RoomNumber: strings.TrimSpace(room.String),
			RoomName:   strings.TrimSpace(roomName.String),
			RoomType:   strings.TrimSpace(roomType.String),
			Floor:      nullable(floor),
			Building:   nullable(building),
		}
		if req.SiteName == "" || req.RoomNumber == "" {
			continue
		}
		if req.RoomName == "" {
			req.RoomName = req.RoomNumber
		}
		if req.RoomType == "" {
			req.RoomType = "Office"
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading legacy locations: %w", err)
	}
	rows.Close()

	for _, req := range reqs {
		key := locationKey(req.SiteName, req.RoomNumber)
		if _, ok := m.locationIDs[key]; ok {
			continue
		}
		existing, err := m.store.GetLocationBySiteRoom(ctx, req.SiteName, req.RoomNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			m.locationIDs[key] = existing.ID
			continue
		}
		l, err := m.mut.CreateLocation(ctx, m.principal, req, meta)
		if err != nil {
			return fmt.Errorf("creating location %s: %w", key, err)
		}
		m.locationIDs[key] = l.ID
		res.Locations++
	}
	return nil
}

func (m *migrator) migrateInventory(ctx context.Context, res *result) error {
	rows, err := m.legacy.QueryContext(ctx, fmt.Sprintf(`
		SELECT asset_tag, asset_type, manufacturer, model, serial_number, status, assigned_to,
		       site_name, room_number, is_loaner, purchase_date, warranty_expiry, notes
		FROM %s
		ORDER BY asset_tag`, pq.QuoteIdentifier(m.table)))
	if err != nil {
		return fmt.Errorf("reading legacy inventory: %w", err)
	}
	defer rows.Close()

	var reqs []models.CreateItemRequest
	for rows.Next() {
		var tag, assetType, manufacturer, model, serial, status, assignedTo, site, room, purchase, warranty, notes sql.NullString
		var loaner sql.NullBool
		if err := rows.Scan(&tag, &assetType, &manufacturer, &model, &serial, &status, &assignedTo,
			&site, &room, &loaner, &purchase, &warranty, &notes); err != nil {
			return fmt.Errorf("scanning legacy item: %w", err)
		}
		req := models.CreateItemRequest{
			AssetTag:       strings.TrimSpace(tag.String),
			AssetType:      strings.TrimSpace(assetType.String),
			Manufacturer:   nullable(manufacturer),
			Model:          nullable(model),
			SerialNumber:   nullable(serial),
			Status:         nullable(status),
			AssignedTo:     nullable(assignedTo),
			IsLoaner:       loaner.Bool,
			PurchaseDate:   legacyDate(purchase),
			WarrantyExpiry: legacyDate(warranty),
			Notes:          nullable(notes),
		}
		if req.AssetType == "" {
			req.AssetType = "Unknown"
		}
		if id, ok := m.locationIDs[locationKey(site.String, room.String)]; ok {
			req.LocationID = &id
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading legacy inventory: %w", err)
	}
	rows.Close()

	for _, req := range reqs {
		if _, err := m.mut.CreateItem(ctx, m.principal, req, meta); err != nil {
			if apperr.Kind(err) == apperr.ErrStorage {
				return fmt.Errorf("creating item %s: %w", req.AssetTag, err)
			}
			m.log.Warn("skipping legacy item", zap.String("asset_tag", req.AssetTag), zap.Error(err))
			res.ItemsSkipped++
			continue
		}
		res.Items++
	}
	return nil
}

func (m *migrator) migrateAudit(ctx context.Context, res *result) error {
	rows, err := m.legacy.QueryContext(ctx, fmt.Sprintf(`
		SELECT asset_tag, location_id, action_type, field_name, old_value, new_value,
		       changed_by, changed_at, ip_address, user_agent
		FROM %s
		ORDER BY changed_at`, pq.QuoteIdentifier(m.auditTable)))
	if err != nil {
		return fmt.Errorf("reading legacy audit log: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var tag, action, field, oldValue, newValue, changedBy, changedAt, ip, ua sql.NullString
		var locationID sql.NullInt64
		if err := rows.Scan(&tag, &locationID, &action, &field, &oldValue, &newValue,
			&changedBy, &changedAt, &ip, &ua); err != nil {
			return fmt.Errorf("scanning legacy audit entry: %w", err)
		}
		e := models.AuditEntry{
			AssetTag:   nullable(tag),
			ActionType: strings.ToUpper(strings.TrimSpace(action.String)),
			FieldName:  strings.TrimSpace(field.String),
			OldValue:   nullable(oldValue),
			NewValue:   nullable(newValue),
			ChangedBy:  strings.TrimSpace(changedBy.String),
			IPAddress:  nullable(ip),
			UserAgent:  nullable(ua),
		}
		if locationID.Valid {
			id := locationID.Int64
			e.LocationID = &id
		}
		at, ok := legacyTimestamp(changedAt)
		if !ok || !knownAction(e.ActionType) || (e.AssetTag == nil) == (e.LocationID == nil) || e.ChangedBy == "" || e.FieldName == "" {
			res.AuditSkipped++
			continue
		}
		e.ChangedAt = at
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading legacy audit log: %w", err)
	}
	rows.Close()

	return m.store.WithTx(ctx, func(q *store.Queries) error {
		n, err := q.ImportAudit(ctx, entries)
		res.AuditEntries = n
		return err
	})
}

func knownAction(a string) bool {
	return a == models.ActionCreate || a == models.ActionUpdate || a == models.ActionDelete
}

func nullable(s sql.NullString) *string {
	v := strings.TrimSpace(s.String)
	if !s.Valid || v == "" {
		return nil
	}
	return &v
}

// legacyDate parses YYYY-MM-DD; unparseable dates are dropped.
func legacyDate(s sql.NullString) *models.Date {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	t, err := models.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &models.Date{Time: t}
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func legacyTimestamp(s sql.NullString) (time.Time, bool) {
	if !s.Valid {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s.String)); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
