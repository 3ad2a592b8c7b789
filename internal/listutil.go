package internal

import (
	"net/http"
	"strconv"
	"strings"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/models"
)

// maxPage bounds the page number so the row offset cannot overflow.
const maxPage = 1_000_000

// parseListParams parses page and per_page from the request. Missing values
// are left at zero for the query service to default.
func parseListParams(r *http.Request) (models.Page, error) {
	values := r.URL.Query()
	page, err := optionalInt(values.Get("page"), "page", 1)
	if err != nil {
		return models.Page{}, err
	}
	if page > maxPage {
		return models.Page{}, apperr.Validationf("page must be <= %d", maxPage)
	}
	perPage, err := optionalInt(values.Get("per_page"), "per_page", 1)
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{Page: page, PerPage: perPage}, nil
}

// parseHistoryPage parses limit and offset for audit history endpoints.
func parseHistoryPage(r *http.Request) (models.HistoryPage, error) {
	values := r.URL.Query()
	limit, err := optionalInt(values.Get("limit"), "limit", 1)
	if err != nil {
		return models.HistoryPage{}, err
	}
	offset, err := optionalInt(values.Get("offset"), "offset", 0)
	if err != nil {
		return models.HistoryPage{}, err
	}
	return models.HistoryPage{Limit: limit, Offset: offset}, nil
}

func optionalInt(raw, name string, min int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return 0, apperr.Validationf("%s must be an integer >= %d", name, min)
	}
	return v, nil
}

func parseItemFilter(r *http.Request) (models.ItemFilter, error) {
	values := r.URL.Query()
	f := models.ItemFilter{
		AssetType: strings.TrimSpace(values.Get("asset_type")),
		Status:    strings.TrimSpace(values.Get("status")),
		RoomType:  strings.TrimSpace(values.Get("room_type")),
		Search:    strings.TrimSpace(values.Get("q")),
		Sort:      strings.TrimSpace(values.Get("sort")),
	}
	if s := strings.TrimSpace(values.Get("is_loaner")); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return f, apperr.Validationf("is_loaner must be true or false")
		}
		f.IsLoaner = &b
	}
	if s := strings.TrimSpace(values.Get("location_id")); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return f, apperr.Validationf("location_id must be a positive integer")
		}
		f.LocationID = &id
	}
	return f, nil
}

func parseLocationFilter(r *http.Request) models.LocationFilter {
	values := r.URL.Query()
	return models.LocationFilter{
		RoomType: strings.TrimSpace(values.Get("room_type")),
		Status:   strings.TrimSpace(values.Get("status")),
		SiteName: strings.TrimSpace(values.Get("site_name")),
		Search:   strings.TrimSpace(values.Get("q")),
		Sort:     strings.TrimSpace(values.Get("sort")),
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("invalid id %q", raw)
	}
	return id, nil
}

type listMeta struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

// sendListResponse writes one page as {"data": [...], "meta": {...}}.
func sendListResponse[T any](w http.ResponseWriter, res models.PageResult[T]) {
	data := res.Data
	if data == nil {
		data = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": listMeta{Total: res.Total, Page: res.Page, PerPage: res.PerPage, Pages: res.Pages()},
	})
}

func sendEntries(w http.ResponseWriter, entries []models.AuditEntry) {
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
