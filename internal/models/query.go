package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Patch is a partial update keyed by field name. Values stay raw until the
// field's parser accepts them.
type Patch map[string]json.RawMessage

// Set marshals v into the patch under field.
func (p Patch) Set(field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", field, err)
	}
	p[field] = raw
	return nil
}

const DateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// Date is a calendar day in request bodies.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

// DateOf wraps t as a Date, nil for a nil t.
func DateOf(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{Time: *t}
}

// Ptr returns the date as a *time.Time, nil for a nil receiver.
func (d *Date) Ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// ItemFilter narrows inventory listings. Empty fields do not filter.
type ItemFilter struct {
	AssetType  string
	Status     string
	IsLoaner   *bool
	RoomType   string
	LocationID *int64
	Search     string
	Sort       string
}

// LocationFilter narrows location listings.
type LocationFilter struct {
	RoomType string
	Status   string
	SiteName string
	Search   string
	Sort     string
}

// Page is a 1-based page request.
type Page struct {
	Page    int
	PerPage int
}

func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// PageResult is one page of T plus the unpaged total.
type PageResult[T any] struct {
	Data    []T
	Total   int
	Page    int
	PerPage int
}

// Pages is the number of pages needed for Total at PerPage.
func (r PageResult[T]) Pages() int {
	if r.PerPage <= 0 || r.Total == 0 {
		return 0
	}
	return (r.Total + r.PerPage - 1) / r.PerPage
}
