package models

import "time"

// Stats is the dashboard summary.
type Stats struct {
	TotalItems          int            `json:"total_items"`
	ActiveItems         int            `json:"active_items"`
	DecommissionedItems int            `json:"decommissioned_items"`
	TotalLoaners        int            `json:"total_loaners"`
	CheckedOutLoaners   int            `json:"checked_out_loaners"`
	AvailableLoaners    int            `json:"available_loaners"`
	TotalLocations      int            `json:"total_locations"`
	ActiveLocations     int            `json:"active_locations"`
	PendingActions      int            `json:"pending_actions"`
	ByType              map[string]int `json:"by_type"`
	BySite              map[string]int `json:"by_site"`
}

// ExportSnapshot is the full statistics export.
type ExportSnapshot struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	GeneratedBy   string         `json:"generated_by"`
	Summary       Stats          `json:"summary"`
	ByStatus      map[string]int `json:"by_status"`
	ByType        map[string]int `json:"by_type"`
	BySite        map[string]int `json:"by_site"`
	AuditByAction map[string]int `json:"audit_by_action"`
	AuditByActor  map[string]int `json:"audit_by_actor"`
}
