package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
	"go.uber.org/zap/zaptest"

	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/config"
	"it-inventory-api/internal/db"
	"it-inventory-api/internal/models"
	"it-inventory-api/internal/store"
	"it-inventory-api/pkg/importer"
)

const testSecret = "test-secret-key-for-inventory-api-tests"

type testServer struct {
	*Server
	admin, manager, viewer string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tdb := db.NewTestDB(t)
	mapping, err := importer.LoadMapping("../configs/mapping/inventory.yaml")
	require.NoError(t, err)

	cfg := &config.Config{EnableMetrics: true}
	jwtManager := auth.NewJWTManager(testSecret, "it-inventory-api", "it-inventory-api", time.Hour)
	srv := NewServer(cfg, zaptest.NewLogger(t), store.New(tdb.DB), jwtManager, mapping)

	token := func(subject, role string) string {
		tok, err := jwtManager.GenerateToken(subject, "", []string{role})
		require.NoError(t, err)
		return tok
	}
	return &testServer{
		Server:  srv,
		admin:   token("alice", models.RoleAdmin),
		manager: token("mia", models.RoleManager),
		viewer:  token("vic", models.RoleViewer),
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "server-test/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type listBody[T any] struct {
	Data []T      `json:"data"`
	Meta listMeta `json:"meta"`
}

type entriesBody struct {
	Data []models.AuditEntry `json:"data"`
}

func (ts *testServer) createLocation(t *testing.T, site, room string) int64 {
	t.Helper()
	w := ts.do(t, "POST", "/api/locations", ts.admin, models.CreateLocationRequest{
		SiteName: site, RoomNumber: room, RoomName: "Room " + room, RoomType: "Office",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Location](t, w).ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])
}

func TestHealthUnavailable(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	jwtManager := auth.NewJWTManager(testSecret, "it-inventory-api", "it-inventory-api", time.Hour)
	srv := NewServer(&config.Config{}, zaptest.NewLogger(t), store.New(mockDB), jwtManager, nil)

	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode[map[string]string](t, w)["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/api/inventory", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_AUTH_HEADER", decode[auth.ErrorResponse](t, w).Code)

	w = ts.do(t, "GET", "/api/inventory", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/api/auth/me", ts.manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "mia", body["subject"])
	assert.Equal(t, []any{models.RoleManager}, body["roles"])
}

func TestInventoryLifecycle(t *testing.T) {
	ts := newTestServer(t)
	locID := ts.createLocation(t, "HQ", "101")

	w := ts.do(t, "POST", "/api/inventory", ts.manager, map[string]any{
		"asset_tag": "LT-1", "asset_type": "Laptop", "serial_number": "SN-1",
		"location_id": locID, "warranty_expiry": "2030-01-31",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.InventoryItem](t, w)
	assert.Equal(t, "LT-1", created.AssetTag)
	assert.Equal(t, models.ItemStatusActive, created.Status)
	require.NotNil(t, created.Location)
	assert.Equal(t, "HQ - 101 (Room 101)", created.Location.FullName)

	t.Run("duplicate asset tag conflicts", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/inventory", ts.manager, map[string]any{"asset_tag": "LT-1", "asset_type": "Laptop"})
		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode[auth.ErrorResponse](t, w)
		assert.Equal(t, "CONFLICT", body.Code)
		assert.Equal(t, "asset_tag already exists", body.Error)
	})

	t.Run("update reports changed fields", func(t *testing.T) {
		w := ts.do(t, "PUT", "/api/inventory/LT-1", ts.manager, map[string]any{"model": "X1", "status": "in_repair", "bogus": 1})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "model,status", w.Header().Get("X-Changed-Fields"))
		updated := decode[models.InventoryItem](t, w)
		assert.Equal(t, "X1", *updated.Model)
		assert.Equal(t, models.ItemStatusInRepair, updated.Status)

		w = ts.do(t, "PUT", "/api/inventory/LT-1", ts.manager, map[string]any{"model": "X1"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Changed-Fields"))
	})

	t.Run("list applies default status filter", func(t *testing.T) {
		w := ts.do(t, "GET", "/api/inventory", ts.viewer, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[listBody[models.InventoryItem]](t, w)
		assert.Empty(t, body.Data)
		assert.NotNil(t, body.Data)
		assert.Equal(t, 0, body.Meta.Total)

		w = ts.do(t, "GET", "/api/inventory?status=all&per_page=10", ts.viewer, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body = decode[listBody[models.InventoryItem]](t, w)
		require.Len(t, body.Data, 1)
		assert.Equal(t, listMeta{Total: 1, Page: 1, PerPage: 10, Pages: 1}, body.Meta)
	})

	t.Run("toggle loaner", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/inventory/LT-1/toggle-loaner", ts.manager, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, decode[models.InventoryItem](t, w).IsLoaner)
	})

	t.Run("viewer cannot write", func(t *testing.T) {
		w := ts.do(t, "PUT", "/api/inventory/LT-1", ts.viewer, map[string]any{"model": "X2"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", decode[auth.ErrorResponse](t, w).Code)
	})

	t.Run("location with items cannot be deleted", func(t *testing.T) {
		w := ts.do(t, "DELETE", fmt.Sprintf("/api/locations/%d", locID), ts.admin, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	w = ts.do(t, "DELETE", "/api/inventory/LT-1", ts.manager, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "delete requires admin")

	w = ts.do(t, "DELETE", "/api/inventory/LT-1", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "inventory item LT-1 deleted", decode[map[string]string](t, w)["message"])

	w = ts.do(t, "GET", "/api/inventory/LT-1", ts.viewer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[auth.ErrorResponse](t, w).Code)

	w = ts.do(t, "GET", "/api/inventory/LT-1/history", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[entriesBody](t, w).Data
	require.NotEmpty(t, history)
	assert.Equal(t, models.ActionDelete, history[0].ActionType)
	assert.Equal(t, models.ActionCreate, history[len(history)-1].ActionType)
	assert.Equal(t, "server-test/1.0", *history[0].UserAgent)

	w = ts.do(t, "GET", "/api/inventory/LT-1/history?limit=1", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[entriesBody](t, w).Data, 1)

	w = ts.do(t, "DELETE", fmt.Sprintf("/api/locations/%d", locID), ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"missing fields", "POST", "/api/inventory", map[string]any{"asset_tag": "X"}},
		{"malformed json", "POST", "/api/inventory", `{"asset_tag":`},
		{"bad date", "POST", "/api/inventory", `{"asset_tag":"X","asset_type":"Laptop","purchase_date":"soon"}`},
		{"bad status", "POST", "/api/inventory", map[string]any{"asset_tag": "X", "asset_type": "Laptop", "status": "stolen"}},
		{"bad page", "GET", "/api/inventory?page=abc", nil},
		{"page out of range", "GET", "/api/inventory?page=9223372036854775807", nil},
		{"bad loaner filter", "GET", "/api/inventory?is_loaner=maybe", nil},
		{"bad location id", "GET", "/api/locations/abc", nil},
		{"bad history limit", "GET", "/api/inventory/X/history?limit=0", nil},
		{"audit without actor", "GET", "/api/audit", nil},
		{"bad recent limit", "GET", "/api/stats/recent-activity?limit=-1", nil},
		{"location missing fields", "POST", "/api/locations", map[string]any{"site_name": "HQ"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, ts.admin, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "VALIDATION_ERROR", decode[auth.ErrorResponse](t, w).Code)
		})
	}
}

func TestListSearch(t *testing.T) {
	ts := newTestServer(t)
	locID := ts.createLocation(t, "North_Campus", "7")
	ts.createLocation(t, "NorthXCampus", "8")
	for _, tag := range []string{"LAP_01", "LAP02", "MON03"} {
		w := ts.do(t, "POST", "/api/inventory", ts.manager, map[string]any{
			"asset_tag": tag, "asset_type": "Laptop", "location_id": locID, "purchase_date": "2021-05-06",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"q=lap", []string{"LAP02", "LAP_01"}},
		{"q=_", []string{"LAP_01"}},
		{"q=%25", []string{}},
		{"q=mon&sort=-asset_tag", []string{"MON03"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := ts.do(t, "GET", "/api/inventory?"+tt.query, ts.viewer, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			body := decode[listBody[map[string]any]](t, w)
			tags := []string{}
			for _, it := range body.Data {
				tags = append(tags, it["asset_tag"].(string))
				assert.Equal(t, "2021-05-06", it["purchase_date"])
			}
			assert.Equal(t, tt.want, tags)
			assert.Equal(t, len(tt.want), body.Meta.Total)
		})
	}

	w := ts.do(t, "GET", "/api/locations?q=north_", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	locations := decode[listBody[map[string]any]](t, w)
	require.Len(t, locations.Data, 1)
	assert.Equal(t, "North_Campus", locations.Data[0]["site_name"])
}

func TestLocationsAPI(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createLocation(t, "HQ", "200")
	ts.createLocation(t, "Annex", "1")

	w := ts.do(t, "POST", "/api/locations", ts.admin, models.CreateLocationRequest{
		SiteName: "HQ", RoomNumber: "200", RoomName: "Dup", RoomType: "Office",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, "POST", "/api/locations", ts.viewer, models.CreateLocationRequest{
		SiteName: "HQ", RoomNumber: "300", RoomName: "Lab", RoomType: "Lab",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, "GET", "/api/locations?site_name=HQ", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[listBody[map[string]any]](t, w)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "HQ - 200 (Room 200)", list.Data[0]["full_name"])

	path := fmt.Sprintf("/api/locations/%d", id)
	w = ts.do(t, "PUT", path, ts.admin, map[string]any{"room_name": "Server Room"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "room_name", w.Header().Get("X-Changed-Fields"))

	w = ts.do(t, "GET", path+"/history", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[entriesBody](t, w).Data
	require.Len(t, history, 2)
	assert.Equal(t, "room_name", history[0].FieldName)
	assert.Equal(t, "Server Room", *history[0].NewValue)

	w = ts.do(t, "GET", "/api/locations/9999", ts.viewer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, "DELETE", path, ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, "GET", path, ts.viewer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsAndActivity(t *testing.T) {
	ts := newTestServer(t)
	for _, tag := range []string{"S1", "S2"} {
		w := ts.do(t, "POST", "/api/inventory", ts.manager, map[string]any{"asset_tag": tag, "asset_type": "Monitor", "is_loaner": true})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := ts.do(t, "GET", "/api/stats", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.Stats](t, w)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 2, stats.AvailableLoaners)
	assert.Equal(t, 2, stats.ByType["Monitor"])

	w = ts.do(t, "GET", "/api/stats/recent-activity?limit=1", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[entriesBody](t, w).Data
	require.Len(t, recent, 1)
	assert.Equal(t, "S2", *recent[0].AssetTag)

	w = ts.do(t, "GET", "/api/audit?actor=mia", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[entriesBody](t, w).Data, 2)

	w = ts.do(t, "GET", "/api/audit?actor=nobody", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"data":[]}`+"\n", w.Body.String())

	w = ts.do(t, "GET", "/api/stats/export", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[models.ExportSnapshot](t, w)
	assert.Equal(t, "vic", snap.GeneratedBy)
	assert.Equal(t, 2, snap.AuditByActor["mia"])

	w = ts.do(t, "GET", "/api/stats/export.xlsx", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=\"inventory-export-")
	wb, err := xlsx.OpenBinary(w.Body.Bytes())
	require.NoError(t, err)
	assert.NotNil(t, wb.Sheet["Summary"])
}

func TestImportRoute(t *testing.T) {
	ts := newTestServer(t)

	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Inventory")
	require.NoError(t, err)
	for _, values := range [][]string{
		{"Asset Tag", "Type", "Site", "Room"},
		{"IM-1", "Laptop", "HQ", "7"},
		{"IM-2", "Dock", "HQ", "7"},
	} {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	var file bytes.Buffer
	require.NoError(t, wb.Write(&file))

	upload := func(token string) *httptest.ResponseRecorder {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		fw, err := mw.CreateFormFile("file", "stock.xlsx")
		require.NoError(t, err)
		fw.Write(file.Bytes())
		require.NoError(t, mw.Close())

		req := httptest.NewRequest("POST", "/api/imports/excel", body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		ts.Router.ServeHTTP(w, req)
		return w
	}

	w := upload(ts.viewer)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[auth.ErrorResponse](t, w).Code)

	w = upload(ts.manager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data importer.ImportSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Created)
	assert.Equal(t, 1, resp.Data.LocationsCreated)

	w = ts.do(t, "GET", "/api/inventory/IM-2", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	it := decode[models.InventoryItem](t, w)
	require.NotNil(t, it.Location)
	assert.Equal(t, "HQ", it.Location.SiteName)
}

func TestServerMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "POST", "/api/inventory", ts.manager, map[string]any{"asset_tag": "M1", "asset_type": "Laptop"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(t, "POST", "/api/inventory", ts.manager, map[string]any{"asset_tag": "M1", "asset_type": "Laptop"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `inventory_mutations_total{action="create",entity="item",outcome="success"} 1`)
	assert.Contains(t, body, `inventory_mutations_total{action="create",entity="item",outcome="error"} 1`)
	assert.Contains(t, body, `inventory_audit_entries_total{action="CREATE"} 1`)
	assert.Contains(t, body, `path="/api/inventory"`)
}
