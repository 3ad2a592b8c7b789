package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/db"
	"it-inventory-api/internal/models"
)

func strPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64 { return &n }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(db.NewTestDB(t).DB)
}

func seedLocation(t *testing.T, s *Store, site, room string) *models.Location {
	t.Helper()
	l := &models.Location{SiteName: site, RoomNumber: room, RoomName: "Room " + room, RoomType: "Office", Status: models.LocationStatusActive}
	require.NoError(t, s.InsertLocation(context.Background(), l))
	return l
}

func seedItem(t *testing.T, s *Store, tag string, mutate func(*models.InventoryItem)) *models.InventoryItem {
	t.Helper()
	it := &models.InventoryItem{AssetTag: tag, AssetType: "Laptop", Status: models.ItemStatusActive}
	if mutate != nil {
		mutate(it)
	}
	require.NoError(t, s.InsertItem(context.Background(), it))
	return it
}

func TestLocationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := seedLocation(t, s, "HQ", "101")
	assert.NotZero(t, l.ID)

	got, err := s.GetLocation(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "HQ - 101 (Room 101)", got.FullName())
	assert.Equal(t, 0, got.InventoryCount)

	bySite, err := s.GetLocationBySiteRoom(ctx, "HQ", "101")
	require.NoError(t, err)
	require.NotNil(t, bySite)
	assert.Equal(t, l.ID, bySite.ID)

	missing, err := s.GetLocation(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := &models.Location{SiteName: "HQ", RoomNumber: "101", RoomName: "Other", RoomType: "Lab", Status: "active"}
	err = s.InsertLocation(ctx, dup)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, s.UpdateLocationColumns(ctx, l.ID, map[string]any{"room_name": "Lab", "floor": "2"}))
	got, err = s.GetLocation(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lab", got.RoomName)
	require.NotNil(t, got.Floor)
	assert.Equal(t, "2", *got.Floor)

	err = s.UpdateLocationColumns(ctx, l.ID, map[string]any{"id": 5})
	assert.ErrorIs(t, err, apperr.ErrStorage)

	require.NoError(t, s.DeleteLocation(ctx, l.ID))
	assert.ErrorIs(t, s.DeleteLocation(ctx, l.ID), apperr.ErrNotFound)
}

func TestListLocations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedLocation(t, s, "HQ", "101")
	seedLocation(t, s, "HQ", "102")
	branch := seedLocation(t, s, "Branch", "1")
	require.NoError(t, s.UpdateLocationColumns(ctx, branch.ID, map[string]any{"status": models.LocationStatusInactive}))

	all, err := s.ListLocations(ctx, models.LocationFilter{}, models.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Branch", all[0].SiteName)

	active, err := s.ListLocations(ctx, models.LocationFilter{Status: "active"}, models.Page{Page: 1, PerPage: 1})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	n, err := s.CountLocations(ctx, models.LocationFilter{Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := s.ListLocations(ctx, models.LocationFilter{Search: "room 10"}, models.Page{})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestItemCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loc := seedLocation(t, s, "HQ", "101")

	it := seedItem(t, s, "A1", func(it *models.InventoryItem) {
		it.LocationID = &loc.ID
		it.SerialNumber = strPtr("SN-1")
		it.Manufacturer = strPtr("Dell")
	})
	assert.NotZero(t, it.ID)

	got, err := s.GetItemByTag(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Dell", *got.Manufacturer)
	require.NotNil(t, got.Location)
	assert.Equal(t, "HQ - 101 (Room 101)", got.Location.FullName)

	bySerial, err := s.GetItemBySerial(ctx, "SN-1")
	require.NoError(t, err)
	require.NotNil(t, bySerial)
	assert.Equal(t, it.ID, bySerial.ID)

	byID, err := s.GetItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", byID.AssetTag)

	loc2, err := s.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loc2.InventoryCount)

	err = s.InsertItem(ctx, &models.InventoryItem{AssetTag: "A1", AssetType: "Laptop", Status: "active"})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "asset_tag already exists", apperr.Message(err))

	err = s.InsertItem(ctx, &models.InventoryItem{AssetTag: "A2", AssetType: "Laptop", Status: "active", SerialNumber: strPtr("SN-1")})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "serial_number already exists", apperr.Message(err))

	err = s.InsertItem(ctx, &models.InventoryItem{AssetTag: "A3", AssetType: "Laptop", Status: "active", LocationID: int64Ptr(999)})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	decommissioned := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateItemColumns(ctx, it.ID, map[string]any{
		"status":              models.ItemStatusDecommissioned,
		"date_decommissioned": decommissioned,
		"location_id":         nil,
	}))
	got, err = s.GetItemByTag(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusDecommissioned, got.Status)
	require.NotNil(t, got.DateDecommissioned)
	assert.True(t, decommissioned.Equal(*got.DateDecommissioned))
	assert.Nil(t, got.LocationID)
	assert.Nil(t, got.Location)

	require.NoError(t, s.DeleteItem(ctx, it.ID))
	gone, err := s.GetItemByTag(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.ErrorIs(t, s.DeleteItem(ctx, it.ID), apperr.ErrNotFound)
}

func TestListItemsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	office := seedLocation(t, s, "HQ", "101")
	lab := &models.Location{SiteName: "HQ", RoomNumber: "200", RoomName: "Lab", RoomType: "Lab", Status: "active"}
	require.NoError(t, s.InsertLocation(ctx, lab))

	for i, tag := range []string{"L-1", "L-2", "L-3", "L-4", "L-5"} {
		seedItem(t, s, tag, func(it *models.InventoryItem) {
			it.LocationID = &office.ID
			if i%2 == 0 {
				it.Status = models.ItemStatusDecommissioned
			}
		})
	}
	seedItem(t, s, "LOAN-1", func(it *models.InventoryItem) {
		it.IsLoaner = true
		it.LocationID = &lab.ID
		it.AssignedTo = strPtr("Jane Doe")
		it.AssetType = "Tablet"
	})

	active, err := s.ListItems(ctx, models.ItemFilter{Status: "active"}, models.Page{Page: 1, PerPage: 1})
	require.NoError(t, err)
	assert.Len(t, active, 1)
	total, err := s.CountItems(ctx, models.ItemFilter{Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	loaner := true
	loaners, err := s.ListItems(ctx, models.ItemFilter{IsLoaner: &loaner}, models.Page{})
	require.NoError(t, err)
	require.Len(t, loaners, 1)
	assert.Equal(t, "LOAN-1", loaners[0].AssetTag)

	labItems, err := s.ListItems(ctx, models.ItemFilter{RoomType: "Lab"}, models.Page{})
	require.NoError(t, err)
	assert.Len(t, labItems, 1)

	search, err := s.ListItems(ctx, models.ItemFilter{Search: "jane"}, models.Page{})
	require.NoError(t, err)
	assert.Len(t, search, 1)

	byType, err := s.CountItems(ctx, models.ItemFilter{AssetType: "Laptop"})
	require.NoError(t, err)
	assert.Equal(t, 5, byType)

	sorted, err := s.ListItems(ctx, models.ItemFilter{Sort: "-asset_tag"}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, "LOAN-1", sorted[0].AssetTag)

	atOffice, err := s.ItemsAtLocation(ctx, office.ID)
	require.NoError(t, err)
	assert.Len(t, atOffice, 5)
}

func TestSearchMatchesLiteralText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, tag := range []string{"LAP_01", "LAP02", "MON03"} {
		seedItem(t, s, tag, nil)
	}
	seedLocation(t, s, "North_Campus", "1")
	seedLocation(t, s, "NorthXCampus", "2")

	tests := []struct {
		search string
		want   int
	}{
		{"_", 1},
		{"%", 0},
		{`\`, 0},
		{"lap_0", 1},
		{"LAP", 2},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			n, err := s.CountItems(ctx, models.ItemFilter{Search: tt.search})
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	n, err := s.CountLocations(ctx, models.LocationFilter{Search: "north_"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteLocationWithItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loc := seedLocation(t, s, "HQ", "101")
	seedItem(t, s, "A1", func(it *models.InventoryItem) { it.LocationID = &loc.ID })

	assert.ErrorIs(t, s.DeleteLocation(ctx, loc.ID), apperr.ErrConflict)

	n, err := s.ClearItemsLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.DeleteLocation(ctx, loc.ID))
}

func TestWithTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q *Queries) error {
		it := &models.InventoryItem{AssetTag: "TX-1", AssetType: "Laptop", Status: "active"}
		if err := q.InsertItem(ctx, it); err != nil {
			return err
		}
		if _, err := q.RecordAudit(ctx, &models.AuditEntry{AssetTag: strPtr("TX-1"), ActionType: models.ActionCreate,
			FieldName: "asset_tag", NewValue: strPtr("TX-1"), ChangedBy: "alice"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	it, err := s.GetItemByTag(ctx, "TX-1")
	require.NoError(t, err)
	assert.Nil(t, it)
	n, err := s.CountAuditForAsset(ctx, "TX-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.WithTx(ctx, func(q *Queries) error {
		return q.InsertItem(ctx, &models.InventoryItem{AssetTag: "TX-2", AssetType: "Laptop", Status: "active"})
	}))
	it, err = s.GetItemByTag(ctx, "TX-2")
	require.NoError(t, err)
	assert.NotNil(t, it)
}

func TestAuditHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	record := func(tag string, at time.Time, field, actor string) {
		_, err := s.RecordAudit(ctx, &models.AuditEntry{AssetTag: strPtr(tag), ActionType: models.ActionUpdate,
			FieldName: field, ChangedBy: actor, ChangedAt: at, IPAddress: strPtr("10.0.0.1")})
		require.NoError(t, err)
	}
	record("A1", base, "status", "alice")
	record("A1", base.Add(time.Hour), "notes", "bob")
	record("A2", base.Add(2*time.Hour), "model", "alice")
	_, err := s.RecordAudit(ctx, &models.AuditEntry{LocationID: int64Ptr(7), ActionType: models.ActionCreate,
		FieldName: "location", NewValue: strPtr("HQ - 1 (A)"), ChangedBy: "carol", ChangedAt: base.Add(3 * time.Hour)})
	require.NoError(t, err)

	hist, err := s.AuditForAsset(ctx, "A1", models.HistoryPage{})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "notes", hist[0].FieldName)
	assert.Equal(t, "status", hist[1].FieldName)
	assert.True(t, base.Equal(hist[1].ChangedAt))
	require.NotNil(t, hist[1].IPAddress)
	assert.Equal(t, "10.0.0.1", *hist[1].IPAddress)

	locHist, err := s.AuditForLocation(ctx, 7, models.HistoryPage{})
	require.NoError(t, err)
	require.Len(t, locHist, 1)
	assert.Equal(t, "HQ - 1 (A)", *locHist[0].NewValue)

	byActor, err := s.AuditByActor(ctx, "alice", models.HistoryPage{Limit: 1})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "model", byActor[0].FieldName)

	recent, err := s.RecentAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "carol", recent[0].ChangedBy)

	_, err = s.RecordAudit(ctx, &models.AuditEntry{ActionType: models.ActionUpdate, FieldName: "x", ChangedBy: "a"})
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestImportAuditKeepsTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Date(2019, 3, 4, 5, 6, 7, 0, time.UTC)

	n, err := s.ImportAudit(ctx, []models.AuditEntry{
		{AssetTag: strPtr("OLD-1"), ActionType: models.ActionCreate, FieldName: "asset_tag", ChangedBy: "legacy", ChangedAt: old},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hist, err := s.AuditForAsset(ctx, "OLD-1", models.HistoryPage{})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, old.Equal(hist[0].ChangedAt))

	_, err = s.ImportAudit(ctx, []models.AuditEntry{{AssetTag: strPtr("OLD-2"), ActionType: "CREATE", FieldName: "asset_tag", ChangedBy: "x"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	soon := today.AddDate(0, 0, 10)
	later := today.AddDate(0, 0, 90)

	loc := seedLocation(t, s, "HQ", "101")
	seedItem(t, s, "A1", func(it *models.InventoryItem) { it.WarrantyExpiry = &soon; it.LocationID = &loc.ID })
	seedItem(t, s, "A2", func(it *models.InventoryItem) { it.WarrantyExpiry = &later })
	seedItem(t, s, "A3", func(it *models.InventoryItem) { it.Status = models.ItemStatusDecommissioned; it.WarrantyExpiry = &soon })
	seedItem(t, s, "L1", func(it *models.InventoryItem) { it.IsLoaner = true; it.CurrentCheckoutID = int64Ptr(1) })
	seedItem(t, s, "L2", func(it *models.InventoryItem) { it.IsLoaner = true; it.AssetType = "Tablet" })

	stats, err := s.Stats(ctx, today, today.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalItems)
	assert.Equal(t, 4, stats.ActiveItems)
	assert.Equal(t, 1, stats.DecommissionedItems)
	assert.Equal(t, 2, stats.TotalLoaners)
	assert.Equal(t, 1, stats.CheckedOutLoaners)
	assert.Equal(t, stats.TotalLoaners-stats.CheckedOutLoaners, stats.AvailableLoaners)
	assert.Equal(t, 2, stats.PendingActions)
	assert.Equal(t, 1, stats.TotalLocations)
	assert.Equal(t, 1, stats.ActiveLocations)
	assert.Equal(t, map[string]int{"Laptop": 4, "Tablet": 1}, stats.ByType)
	assert.Equal(t, map[string]int{"HQ": 1, "Unassigned": 4}, stats.BySite)

	byStatus, err := s.ItemsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, byStatus["active"])
}

func TestCheckoutRequiresLoaner(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertItem(context.Background(), &models.InventoryItem{AssetTag: "X", AssetType: "Laptop",
		Status: "active", CurrentCheckoutID: int64Ptr(3)})
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate("op", nil))

	err := translate("op", &pgconn.PgError{Code: "23505", ConstraintName: "inventory_asset_tag_key"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "asset_tag already exists", apperr.Message(err))

	err = translate("op", &pgconn.PgError{Code: "23505", ConstraintName: "location_site_room_key"})
	assert.Contains(t, apperr.Message(err), "site_name and room_number")

	err = translate("op", &pgconn.PgError{Code: "23503"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = translate("op", &pgconn.PgError{Code: "40001"})
	assert.ErrorIs(t, err, apperr.ErrStorage)

	err = translate("op", errors.New("connection reset"))
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, "internal server error", apperr.Message(err))
}

func TestBuildOrderBy(t *testing.T) {
	assert.Equal(t, " ORDER BY i.asset_tag ASC", buildOrderBy("", itemSorts, "i.asset_tag ASC"))
	assert.Equal(t, " ORDER BY i.status DESC, i.asset_tag ASC", buildOrderBy("-status,asset_tag", itemSorts, "x"))
	assert.Equal(t, " ORDER BY x", buildOrderBy("password; DROP TABLE", itemSorts, "x"))
}

func TestWithTxCommitFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	s := New(sqlDB)
	err = s.WithTx(context.Background(), func(q *Queries) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("connection refused"))

	s := New(sqlDB)
	_, err = s.CountItems(context.Background(), models.ItemFilter{Status: "active"})
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "internal server error", apperr.Message(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
