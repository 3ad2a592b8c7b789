package models

import "time"

// Audit action kinds.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// AuditEntry is one field-level change. Exactly one of AssetTag and
// LocationID names the subject; neither is a foreign key, so entries outlive
// their subjects.
type AuditEntry struct {
	ID         int64     `json:"id"`
	AssetTag   *string   `json:"asset_tag"`
	LocationID *int64    `json:"location_id"`
	ActionType string    `json:"action_type"`
	FieldName  string    `json:"field_name"`
	OldValue   *string   `json:"old_value"`
	NewValue   *string   `json:"new_value"`
	ChangedBy  string    `json:"changed_by"`
	ChangedAt  time.Time `json:"changed_at"`
	IPAddress  *string   `json:"ip_address"`
	UserAgent  *string   `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RequestMeta is the caller origin copied into audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// HistoryPage bounds a history query.
type HistoryPage struct {
	Limit  int
	Offset int
}
