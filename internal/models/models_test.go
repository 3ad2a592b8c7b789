package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestLocationFullName(t *testing.T) {
	loc := Location{SiteName: "HQ", RoomNumber: "101", RoomName: "Server Room"}
	assert.Equal(t, "HQ - 101 (Server Room)", loc.FullName())

	raw, err := json.Marshal(loc)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "HQ - 101 (Server Room)", out["full_name"])
	assert.Equal(t, "HQ", out["site_name"])
}

func TestItemSummary(t *testing.T) {
	it := InventoryItem{AssetTag: "A1", AssetType: "Laptop", Manufacturer: strPtr("Dell"), Model: strPtr("XPS")}
	assert.Equal(t, "A1 - Laptop (Dell XPS)", it.Summary())

	it = InventoryItem{AssetTag: "A2", AssetType: "Monitor"}
	assert.Equal(t, "A2 - Monitor", it.Summary())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2024-01-31T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("31/01/2024")
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	var req CreateItemRequest
	require.NoError(t, json.Unmarshal([]byte(`{"asset_tag":"A1","asset_type":"Laptop","purchase_date":"2023-06-01"}`), &req))
	require.NotNil(t, req.PurchaseDate)
	assert.Equal(t, "2023-06-01", req.PurchaseDate.Format(DateLayout))
	assert.Nil(t, req.WarrantyExpiry.Ptr())

	err := json.Unmarshal([]byte(`{"purchase_date":"yesterday"}`), &req)
	assert.Error(t, err)
}

func TestInventoryItemDatesJSON(t *testing.T) {
	purchased := time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)
	it := InventoryItem{ID: 7, AssetTag: "A1", AssetType: "Laptop", Status: ItemStatusActive, PurchaseDate: &purchased}

	raw, err := json.Marshal(it)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "2022-03-04", out["purchase_date"])
	assert.Nil(t, out["warranty_expiry"])
	assert.Equal(t, "A1", out["asset_tag"])
	assert.NotContains(t, out, "location")

	var back InventoryItem
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NotNil(t, back.PurchaseDate)
	assert.True(t, purchased.Equal(*back.PurchaseDate))
	assert.Nil(t, back.WarrantyExpiry)
	assert.Equal(t, int64(7), back.ID)
}

func TestPageResult(t *testing.T) {
	assert.Equal(t, 0, PageResult[int]{Total: 0, PerPage: 25}.Pages())
	assert.Equal(t, 1, PageResult[int]{Total: 25, PerPage: 25}.Pages())
	assert.Equal(t, 2, PageResult[int]{Total: 26, PerPage: 25}.Pages())
	assert.Equal(t, 50, Page{Page: 3, PerPage: 25}.Offset())
	assert.Equal(t, 0, Page{Page: 0, PerPage: 25}.Offset())
}

func TestRoles(t *testing.T) {
	assert.True(t, IsValidRole(RoleManager))
	assert.False(t, IsValidRole("org_admin"))
	assert.True(t, ValidateRoles([]string{RoleAdmin, RoleViewer}))
	assert.False(t, ValidateRoles(nil))
}
