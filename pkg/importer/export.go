package importer

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/tealeg/xlsx/v3"

	"it-inventory-api/internal/models"
)

// WriteExport renders snap as a workbook: a Summary sheet with the dashboard
// counters followed by one sheet per breakdown.
func WriteExport(w io.Writer, snap *models.ExportSnapshot) error {
	wb := xlsx.NewFile()

	summary, err := wb.AddSheet("Summary")
	if err != nil {
		return fmt.Errorf("adding summary sheet: %w", err)
	}
	addRow(summary, "Metric", "Value")
	addRow(summary, "Generated At", snap.GeneratedAt.UTC().Format(time.RFC3339))
	addRow(summary, "Generated By", snap.GeneratedBy)
	s := snap.Summary
	for _, kv := range []struct {
		name  string
		value int
	}{
		{"Total Items", s.TotalItems},
		{"Active Items", s.ActiveItems},
		{"Decommissioned Items", s.DecommissionedItems},
		{"Total Loaners", s.TotalLoaners},
		{"Checked Out Loaners", s.CheckedOutLoaners},
		{"Available Loaners", s.AvailableLoaners},
		{"Total Locations", s.TotalLocations},
		{"Active Locations", s.ActiveLocations},
		{"Pending Actions", s.PendingActions},
	} {
		row := summary.AddRow()
		row.AddCell().SetString(kv.name)
		row.AddCell().SetInt(kv.value)
	}

	for _, b := range []struct {
		sheet  string
		header string
		counts map[string]int
	}{
		{"By Status", "Status", snap.ByStatus},
		{"By Type", "Asset Type", snap.ByType},
		{"By Site", "Site", snap.BySite},
		{"Audit By Action", "Action", snap.AuditByAction},
		{"Audit By Actor", "Actor", snap.AuditByActor},
	} {
		sheet, err := wb.AddSheet(b.sheet)
		if err != nil {
			return fmt.Errorf("adding sheet %s: %w", b.sheet, err)
		}
		addRow(sheet, b.header, "Count")
		for _, key := range sortedKeys(b.counts) {
			row := sheet.AddRow()
			row.AddCell().SetString(key)
			row.AddCell().SetInt(b.counts[key])
		}
	}

	return wb.Write(w)
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
