package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/models"
	"it-inventory-api/internal/store"
)

// change is one applied field update: the column to write and the audit
// values to record.
type change struct {
	field    string
	column   string
	value    any
	oldValue *string
	newValue *string
}

// updater is one entry of an allow-listed field table.
type updater[E any] interface {
	fieldName() string
	apply(ctx context.Context, q *store.Queries, e *E, raw json.RawMessage) (*change, error)
}

// field binds a field name to its parse/get/set/stringify closures.
type field[E any, V any] struct {
	name      string
	parse     func(raw json.RawMessage) (V, error)
	get       func(e *E) V
	set       func(e *E, v V)
	equal     func(a, b V) bool
	stringify func(v V) *string
	// check validates v against the current entity before it is applied.
	check func(e *E, v V) error
	// describe renders an audit value that needs a lookup. It replaces
	// stringify when set.
	describe func(ctx context.Context, q *store.Queries, v V) (*string, error)
}

func (f field[E, V]) apply(ctx context.Context, q *store.Queries, e *E, raw json.RawMessage) (*change, error) {
	v, err := f.parse(raw)
	if err != nil {
		return nil, apperr.Validationf("invalid value for %s: %v", f.name, err)
	}
	cur := f.get(e)
	if f.equal(cur, v) {
		return nil, nil
	}
	if f.check != nil {
		if err := f.check(e, v); err != nil {
			return nil, err
		}
	}

	c := &change{field: f.name, column: f.name, value: columnValue(v)}
	if f.describe != nil {
		if c.newValue, err = f.describe(ctx, q, v); err != nil {
			return nil, err
		}
		if c.oldValue, err = f.describe(ctx, q, cur); err != nil {
			return nil, err
		}
	} else {
		c.oldValue, c.newValue = f.stringify(cur), f.stringify(v)
	}
	f.set(e, v)
	return c, nil
}

// columnValue unwraps nil pointers so the driver sees a typed NULL.
func columnValue(v any) any {
	switch x := v.(type) {
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	default:
		return v
	}
}

// namedUpdater keeps the table ordered so audit entries come out in a stable order.
type namedUpdater[E any] struct {
	name string
	u    updater[E]
}

// applyPatch runs every recognized field of patch through the table.
// Unknown field names are ignored.
func applyPatch[E any](ctx context.Context, q *store.Queries, table []namedUpdater[E], e *E, patch models.Patch) ([]*change, error) {
	var changes []*change
	for _, f := range table {
		raw, ok := patch[f.name]
		if !ok {
			continue
		}
		c, err := f.u.apply(ctx, q, e, raw)
		if err != nil {
			return nil, err
		}
		if c != nil {
			changes = append(changes, c)
		}
	}
	return changes, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Parsers

func parseRequiredString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", fmt.Errorf("value is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("value cannot be empty")
	}
	return s, nil
}

func parseOptionalString(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected a string")
	}
	return optional(strings.TrimSpace(s)), nil
}

func parseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v, nil
		}
	}
	return false, fmt.Errorf("expected a boolean")
}

func parseOptionalID(raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n <= 0 {
			return nil, fmt.Errorf("expected a positive id")
		}
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected an integer id")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("expected an integer id")
	}
	return &n, nil
}

func parseOptionalDate(raw json.RawMessage) (*time.Time, error) {
	if isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected a date string")
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func statusParser(valid func(string) bool) func(json.RawMessage) (string, error) {
	return func(raw json.RawMessage) (string, error) {
		s, err := parseRequiredString(raw)
		if err != nil {
			return "", err
		}
		s = strings.ToLower(s)
		if !valid(s) {
			return "", fmt.Errorf("unknown status %q", s)
		}
		return s, nil
	}
}

// Equality

func eq[V comparable](a, b V) bool { return a == b }

func eqPtr[V comparable](a, b *V) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UTC().Format(models.DateLayout) == b.UTC().Format(models.DateLayout)
}

// Audit stringification

func strValue(s string) *string { return &s }

func optStrValue(s *string) *string { return s }

func boolValue(b bool) *string {
	if b {
		return strValue("True")
	}
	return strValue("False")
}

func dateValue(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return strValue(t.UTC().Format(models.DateLayout))
}

func idValue(id *int64) *string {
	if id == nil {
		return nil
	}
	return strValue(strconv.FormatInt(*id, 10))
}

// describeLocation renders a location reference as its full name and fails
// with NotFound when the location does not exist.
func describeLocation(ctx context.Context, q *store.Queries, id *int64) (*string, error) {
	if id == nil {
		return nil, nil
	}
	l, err := q.GetLocation(ctx, *id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperr.NotFoundf("location %d not found", *id)
	}
	return strValue(l.FullName()), nil
}

// Tables

func requiredItemString(name string, get func(*models.InventoryItem) *string) field[models.InventoryItem, string] {
	return field[models.InventoryItem, string]{
		name:      name,
		parse:     parseRequiredString,
		get:       func(it *models.InventoryItem) string { return *get(it) },
		set:       func(it *models.InventoryItem, v string) { *get(it) = v },
		equal:     eq[string],
		stringify: strValue,
	}
}

func optionalItemString(name string, get func(*models.InventoryItem) **string) field[models.InventoryItem, *string] {
	return field[models.InventoryItem, *string]{
		name:      name,
		parse:     parseOptionalString,
		get:       func(it *models.InventoryItem) *string { return *get(it) },
		set:       func(it *models.InventoryItem, v *string) { *get(it) = v },
		equal:     eqPtr[string],
		stringify: optStrValue,
	}
}

func optionalItemDate(name string, get func(*models.InventoryItem) **time.Time) field[models.InventoryItem, *time.Time] {
	return field[models.InventoryItem, *time.Time]{
		name:      name,
		parse:     parseOptionalDate,
		get:       func(it *models.InventoryItem) *time.Time { return *get(it) },
		set:       func(it *models.InventoryItem, v *time.Time) { *get(it) = v },
		equal:     eqDate,
		stringify: dateValue,
	}
}

// itemFields is the allow-list of updatable inventory fields.
func itemFields(opts Options) []namedUpdater[models.InventoryItem] {
	fields := []updater[models.InventoryItem]{
		requiredItemString("asset_type", func(it *models.InventoryItem) *string { return &it.AssetType }),
		optionalItemString("manufacturer", func(it *models.InventoryItem) **string { return &it.Manufacturer }),
		optionalItemString("model", func(it *models.InventoryItem) **string { return &it.Model }),
		optionalItemString("serial_number", func(it *models.InventoryItem) **string { return &it.SerialNumber }),
		optionalItemString("assigned_to", func(it *models.InventoryItem) **string { return &it.AssignedTo }),
		optionalItemString("notes", func(it *models.InventoryItem) **string { return &it.Notes }),
		field[models.InventoryItem, bool]{
			name:      "is_loaner",
			parse:     parseBool,
			get:       func(it *models.InventoryItem) bool { return it.IsLoaner },
			set:       func(it *models.InventoryItem, v bool) { it.IsLoaner = v },
			equal:     eq[bool],
			stringify: boolValue,
			check: func(it *models.InventoryItem, v bool) error {
				if !v && it.CurrentCheckoutID != nil {
					return apperr.Validationf("item %s is checked out and must stay a loaner", it.AssetTag)
				}
				return nil
			},
		},
		field[models.InventoryItem, string]{
			name:      "status",
			parse:     statusParser(models.ValidItemStatus),
			get:       func(it *models.InventoryItem) string { return it.Status },
			set:       func(it *models.InventoryItem, v string) { it.Status = v },
			equal:     eq[string],
			stringify: strValue,
		},
		field[models.InventoryItem, *int64]{
			name:      "location_id",
			parse:     parseOptionalID,
			get:       func(it *models.InventoryItem) *int64 { return it.LocationID },
			set:       func(it *models.InventoryItem, v *int64) { it.LocationID = v },
			equal:     eqPtr[int64],
			stringify: idValue,
			check: func(it *models.InventoryItem, v *int64) error {
				if v == nil && opts.RequireItemLocation {
					return apperr.Validationf("location_id is required")
				}
				return nil
			},
			describe: describeLocation,
		},
		optionalItemDate("purchase_date", func(it *models.InventoryItem) **time.Time { return &it.PurchaseDate }),
		optionalItemDate("warranty_expiry", func(it *models.InventoryItem) **time.Time { return &it.WarrantyExpiry }),
	}
	return named(fields)
}

func requiredLocationString(name string, get func(*models.Location) *string) field[models.Location, string] {
	return field[models.Location, string]{
		name:      name,
		parse:     parseRequiredString,
		get:       func(l *models.Location) string { return *get(l) },
		set:       func(l *models.Location, v string) { *get(l) = v },
		equal:     eq[string],
		stringify: strValue,
	}
}

func optionalLocationString(name string, get func(*models.Location) **string) field[models.Location, *string] {
	return field[models.Location, *string]{
		name:      name,
		parse:     parseOptionalString,
		get:       func(l *models.Location) *string { return *get(l) },
		set:       func(l *models.Location, v *string) { *get(l) = v },
		equal:     eqPtr[string],
		stringify: optStrValue,
	}
}

// locationFields is the allow-list of updatable location fields.
func locationFields() []namedUpdater[models.Location] {
	fields := []updater[models.Location]{
		requiredLocationString("site_name", func(l *models.Location) *string { return &l.SiteName }),
		requiredLocationString("room_number", func(l *models.Location) *string { return &l.RoomNumber }),
		requiredLocationString("room_name", func(l *models.Location) *string { return &l.RoomName }),
		requiredLocationString("room_type", func(l *models.Location) *string { return &l.RoomType }),
		optionalLocationString("floor", func(l *models.Location) **string { return &l.Floor }),
		optionalLocationString("building", func(l *models.Location) **string { return &l.Building }),
		optionalLocationString("description", func(l *models.Location) **string { return &l.Description }),
		field[models.Location, string]{
			name:      "status",
			parse:     statusParser(models.ValidLocationStatus),
			get:       func(l *models.Location) string { return l.Status },
			set:       func(l *models.Location, v string) { l.Status = v },
			equal:     eq[string],
			stringify: strValue,
		},
	}
	return named(fields)
}

func named[E any](fields []updater[E]) []namedUpdater[E] {
	out := make([]namedUpdater[E], 0, len(fields))
	for _, f := range fields {
		out = append(out, namedUpdater[E]{name: f.fieldName(), u: f})
	}
	return out
}

func (f field[E, V]) fieldName() string { return f.name }
