// Package importer loads inventory from .xlsx workbooks through the mutation
// service, so imported rows are validated and audited like API writes, and
// renders statistics snapshots back into workbooks.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tealeg/xlsx/v3"
	"go.uber.org/zap"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/models"
)

// DefaultMaxErrors stops an import once this many rows have failed.
const DefaultMaxErrors = 50

const maxSamplesPerSheet = 10

// Mutations is the part of the mutation service an import drives.
type Mutations interface {
	CreateItem(ctx context.Context, p *auth.Principal, req models.CreateItemRequest, meta models.RequestMeta) (*models.InventoryItem, error)
	UpdateItem(ctx context.Context, p *auth.Principal, tag string, patch models.Patch, meta models.RequestMeta) (*models.InventoryItem, []string, error)
	CreateLocation(ctx context.Context, p *auth.Principal, req models.CreateLocationRequest, meta models.RequestMeta) (*models.Location, error)
}

// Lookups resolves existing records by their natural keys.
type Lookups interface {
	GetItemByTag(ctx context.Context, tag string) (*models.InventoryItem, error)
	GetLocationBySiteRoom(ctx context.Context, siteName, roomNumber string) (*models.Location, error)
}

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	// Mapping takes precedence over MappingPath when set.
	Mapping     *MappingConfig
	MappingPath string
	DryRun      bool
	MaxErrors   int
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name      string     `json:"name"`
	Created   int        `json:"created"`
	Updated   int        `json:"updated"`
	Unchanged int        `json:"unchanged"`
	Skipped   int        `json:"skipped"`
	Errors    int        `json:"errors"`
	Samples   []RowError `json:"error_samples,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Created          int            `json:"created"`
	Updated          int            `json:"updated"`
	Unchanged        int            `json:"unchanged"`
	Skipped          int            `json:"skipped"`
	Errors           int            `json:"errors"`
	LocationsCreated int            `json:"locations_created"`
	Sheets           []SheetSummary `json:"sheets"`
	DryRun           bool           `json:"dry_run"`
}

// ErrTooManyErrors is returned when the failed row count passes MaxErrors.
var ErrTooManyErrors = errors.New("too many row errors")

type Importer struct {
	mut  Mutations
	look Lookups
	log  *zap.Logger
}

func New(mut Mutations, look Lookups, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{mut: mut, look: look, log: log}
}

// ImportExcel reads every mapped sheet of the workbook in r and creates or
// updates one inventory item per data row on behalf of p. Rows that fail
// validation are counted and sampled; authorization and storage failures
// abort the import.
func (im *Importer) ImportExcel(ctx context.Context, p *auth.Principal, meta models.RequestMeta, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{DryRun: opts.DryRun, Sheets: []SheetSummary{}}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = DefaultMaxErrors
	}

	mapping := opts.Mapping
	if mapping == nil {
		var err error
		if mapping, err = LoadMapping(opts.MappingPath); err != nil {
			return summary, err
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}
	wb, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	run := &importRun{
		im:        im,
		principal: p,
		meta:      meta,
		opts:      opts,
		mapping:   mapping,
		locations: map[string]*int64{},
		summary:   &summary,
	}
	for _, sheet := range wb.Sheets {
		sc, ok := mapping.Sheet(sheet.Name)
		if !ok {
			continue
		}
		ss, err := run.processSheet(ctx, sheet, sc)
		summary.Sheets = append(summary.Sheets, ss)
		summary.Created += ss.Created
		summary.Updated += ss.Updated
		summary.Unchanged += ss.Unchanged
		summary.Skipped += ss.Skipped
		summary.Errors += ss.Errors
		if err != nil {
			return summary, err
		}
	}

	im.log.Info("spreadsheet import finished",
		zap.String("actor", p.Subject),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
		zap.Int("locations_created", summary.LocationsCreated),
	)
	return summary, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

type importRun struct {
	im        *Importer
	principal *auth.Principal
	meta      models.RequestMeta
	opts      ImportOptions
	mapping   *MappingConfig
	// locations caches site|room lookups; a nil id marks a location that a
	// dry run would create.
	locations map[string]*int64
	summary   *ImportSummary
	failed    int
}

func (r *importRun) processSheet(ctx context.Context, sheet *xlsx.Sheet, sc SheetConfig) (SheetSummary, error) {
	ss := SheetSummary{Name: sheet.Name}
	columns := sc.resolve()

	header := map[int]ColumnConfig{}
	for c := 0; c < sheet.MaxCol; c++ {
		cell, err := sheet.Cell(0, c)
		if err != nil {
			return ss, fmt.Errorf("reading header of sheet %s: %w", sheet.Name, err)
		}
		if col, ok := columns[strings.ToUpper(strings.TrimSpace(cell.String()))]; ok {
			header[c] = col
		}
	}
	if len(header) == 0 {
		r.im.log.Warn("sheet has no mapped columns", zap.String("sheet", sheet.Name))
		return ss, nil
	}

	for row := 1; row < sheet.MaxRow; row++ {
		values, err := readRow(sheet, row, header)
		if err == nil && len(values) == 0 {
			ss.Skipped++
			continue
		}
		var res outcome
		if err == nil {
			res, err = r.applyRow(ctx, values)
		}
		if err != nil {
			if fatal(err) {
				return ss, err
			}
			ss.Errors++
			r.failed++
			if len(ss.Samples) < maxSamplesPerSheet {
				ss.Samples = append(ss.Samples, RowError{Sheet: sheet.Name, Row: row + 1, Message: rowMessage(err)})
			}
			if r.failed > r.opts.MaxErrors {
				return ss, fmt.Errorf("%w: %d rows failed", ErrTooManyErrors, r.failed)
			}
			continue
		}
		switch res {
		case outcomeCreated:
			ss.Created++
		case outcomeUpdated:
			ss.Updated++
		default:
			ss.Unchanged++
		}
	}
	return ss, nil
}

func readRow(sheet *xlsx.Sheet, row int, header map[int]ColumnConfig) (map[string]string, error) {
	values := map[string]string{}
	for c, col := range header {
		cell, err := sheet.Cell(row, c)
		if err != nil {
			return nil, fmt.Errorf("reading cell: %w", err)
		}
		v, err := cellValue(cell, col.kind())
		if err != nil {
			return nil, apperr.Validationf("column %s: %v", col.Field, err)
		}
		if v != "" {
			values[col.Field] = v
		}
	}
	return values, nil
}

// cellValue normalizes a cell to the string form the service parsers accept.
func cellValue(cell *xlsx.Cell, kind string) (string, error) {
	raw := strings.TrimSpace(cell.String())
	switch kind {
	case TypeBool:
		if raw == "" {
			return "", nil
		}
		switch strings.ToLower(raw) {
		case "yes", "y", "true", "1", "x":
			return "true", nil
		case "no", "n", "false", "0":
			return "false", nil
		}
		return "", fmt.Errorf("invalid boolean %q", raw)
	case TypeDate:
		if cell.IsTime() {
			if t, err := cell.GetTime(false); err == nil {
				return t.Format(models.DateLayout), nil
			}
		}
		if raw == "" {
			return "", nil
		}
		t, err := parseDate(raw)
		if err != nil {
			return "", err
		}
		return t.Format(models.DateLayout), nil
	case TypeInt:
		if raw == "" {
			return "", nil
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return "", fmt.Errorf("invalid integer %q", raw)
	default:
		return raw, nil
	}
}

var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"02.01.2006",
	"2006-01-02 15:04:05",
}

func parseDate(s string) (time.Time, error) {
	if t, err := models.ParseDate(s); err == nil {
		return t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// Date cells without a date format arrive as Excel serial numbers.
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return xlsx.TimeFromExcelTime(f, false), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func (r *importRun) applyRow(ctx context.Context, values map[string]string) (outcome, error) {
	tag := values["asset_tag"]
	if tag == "" {
		return 0, apperr.Validationf("asset_tag is empty")
	}
	locationID, err := r.location(ctx, values)
	if err != nil {
		return 0, err
	}

	existing, err := r.im.look.GetItemByTag(ctx, tag)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		if r.opts.DryRun {
			return outcomeCreated, nil
		}
		req, err := r.createRequest(values, locationID)
		if err != nil {
			return 0, err
		}
		if _, err := r.im.mut.CreateItem(ctx, r.principal, req, r.meta); err != nil {
			return 0, err
		}
		return outcomeCreated, nil
	}

	patch, err := updatePatch(values, locationID)
	if err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return outcomeUnchanged, nil
	}
	if r.opts.DryRun {
		return outcomeUpdated, nil
	}
	_, changed, err := r.im.mut.UpdateItem(ctx, r.principal, tag, patch, r.meta)
	if err != nil {
		return 0, err
	}
	if len(changed) == 0 {
		return outcomeUnchanged, nil
	}
	return outcomeUpdated, nil
}

// location finds or creates the row's location. Rows without site and room
// have no location.
func (r *importRun) location(ctx context.Context, values map[string]string) (*int64, error) {
	site, room := values["site_name"], values["room_number"]
	if site == "" && room == "" {
		return nil, nil
	}
	if site == "" || room == "" {
		return nil, apperr.Validationf("site_name and room_number must be given together")
	}

	key := site + "|" + room
	if id, ok := r.locations[key]; ok {
		return id, nil
	}
	l, err := r.im.look.GetLocationBySiteRoom(ctx, site, room)
	if err != nil {
		return nil, err
	}
	if l == nil {
		r.summary.LocationsCreated++
		if r.opts.DryRun {
			r.locations[key] = nil
			return nil, nil
		}
		req := models.CreateLocationRequest{
			SiteName:   site,
			RoomNumber: room,
			RoomName:   firstNonEmpty(values["room_name"], room),
			RoomType:   firstNonEmpty(values["room_type"], r.mapping.Defaults.RoomType, "Office"),
			Floor:      optional(values["floor"]),
			Building:   optional(values["building"]),
		}
		if l, err = r.im.mut.CreateLocation(ctx, r.principal, req, r.meta); err != nil {
			return nil, err
		}
	}
	r.locations[key] = &l.ID
	return &l.ID, nil
}

func (r *importRun) createRequest(values map[string]string, locationID *int64) (models.CreateItemRequest, error) {
	req := models.CreateItemRequest{
		AssetTag:     values["asset_tag"],
		AssetType:    values["asset_type"],
		Manufacturer: optional(values["manufacturer"]),
		Model:        optional(values["model"]),
		SerialNumber: optional(values["serial_number"]),
		AssignedTo:   optional(values["assigned_to"]),
		Notes:        optional(values["notes"]),
		Status:       optional(normalizeStatus(firstNonEmpty(values["status"], r.mapping.Defaults.Status))),
		LocationID:   locationID,
		IsLoaner:     values["is_loaner"] == "true",
	}
	var err error
	if req.PurchaseDate, err = optionalDate(values["purchase_date"]); err != nil {
		return req, err
	}
	if req.WarrantyExpiry, err = optionalDate(values["warranty_expiry"]); err != nil {
		return req, err
	}
	if v := values["current_checkout_id"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, apperr.Validationf("invalid current_checkout_id %q", v)
		}
		req.CurrentCheckoutID = &n
	}
	return req, nil
}

// updatePatch turns the row into a patch over the updatable item fields.
// Cells left empty keep the stored value.
func updatePatch(values map[string]string, locationID *int64) (models.Patch, error) {
	patch := models.Patch{}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !itemFields[name] || name == "asset_tag" || name == "current_checkout_id" {
			continue
		}
		var v any = values[name]
		switch name {
		case "is_loaner":
			v = values[name] == "true"
		case "status":
			v = normalizeStatus(values[name])
		}
		if err := patch.Set(name, v); err != nil {
			return nil, err
		}
	}
	if locationID != nil {
		if err := patch.Set("location_id", *locationID); err != nil {
			return nil, err
		}
	}
	return patch, nil
}

// normalizeStatus accepts spreadsheet spellings such as "In Repair".
func normalizeStatus(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func optionalDate(s string) (*models.Date, error) {
	if s == "" {
		return nil, nil
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return nil, apperr.Validationf("%v", err)
	}
	return &models.Date{Time: t}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// fatal reports errors that end the whole import rather than one row.
func fatal(err error) bool {
	switch apperr.Kind(err) {
	case apperr.ErrUnauthorized, apperr.ErrForbidden, apperr.ErrStorage:
		return true
	}
	return false
}

func rowMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return apperr.Message(err)
	}
	return err.Error()
}
