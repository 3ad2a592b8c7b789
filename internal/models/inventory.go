package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Inventory item statuses.
const (
	ItemStatusActive         = "active"
	ItemStatusInRepair       = "in_repair"
	ItemStatusDecommissioned = "decommissioned"
	ItemStatusLost           = "lost"
)

var ItemStatuses = []string{
	ItemStatusActive,
	ItemStatusInRepair,
	ItemStatusDecommissioned,
	ItemStatusLost,
}

// InventoryItem is one physical asset, keyed externally by its asset tag.
type InventoryItem struct {
	ID                 int64            `json:"id"`
	AssetTag           string           `json:"asset_tag"`
	AssetType          string           `json:"asset_type"`
	Manufacturer       *string          `json:"manufacturer"`
	Model              *string          `json:"model"`
	SerialNumber       *string          `json:"serial_number"`
	Status             string           `json:"status"`
	AssignedTo         *string          `json:"assigned_to"`
	DateAssigned       *time.Time       `json:"date_assigned"`
	DateDecommissioned *time.Time       `json:"date_decommissioned"`
	LocationID         *int64           `json:"location_id"`
	Location           *LocationSummary `json:"location,omitempty"`
	IsLoaner           bool             `json:"is_loaner"`
	CurrentCheckoutID  *int64           `json:"current_checkout_id"`
	PurchaseDate       *time.Time       `json:"purchase_date"`
	WarrantyExpiry     *time.Time       `json:"warranty_expiry"`
	Notes              *string          `json:"notes"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// itemJSON renders the calendar-date columns as YYYY-MM-DD. The outer fields
// shadow the embedded ones of the same name.
type itemJSON struct {
	plainItem
	PurchaseDate   *Date `json:"purchase_date"`
	WarrantyExpiry *Date `json:"warranty_expiry"`
}

type plainItem InventoryItem

func (it InventoryItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemJSON{
		plainItem:      plainItem(it),
		PurchaseDate:   DateOf(it.PurchaseDate),
		WarrantyExpiry: DateOf(it.WarrantyExpiry),
	})
}

func (it *InventoryItem) UnmarshalJSON(b []byte) error {
	var v itemJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*it = InventoryItem(v.plainItem)
	it.PurchaseDate = v.PurchaseDate.Ptr()
	it.WarrantyExpiry = v.WarrantyExpiry.Ptr()
	return nil
}

// Summary is the human-readable description recorded when an item is deleted.
func (it *InventoryItem) Summary() string {
	var parts []string
	if it.Manufacturer != nil && *it.Manufacturer != "" {
		parts = append(parts, *it.Manufacturer)
	}
	if it.Model != nil && *it.Model != "" {
		parts = append(parts, *it.Model)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s - %s", it.AssetTag, it.AssetType)
	}
	return fmt.Sprintf("%s - %s (%s)", it.AssetTag, it.AssetType, strings.Join(parts, " "))
}

// CheckedOut reports whether the item is a loaner with an active checkout.
func (it *InventoryItem) CheckedOut() bool {
	return it.IsLoaner && it.CurrentCheckoutID != nil
}

// CreateItemRequest represents the request body for creating an inventory item
type CreateItemRequest struct {
	AssetTag          string  `json:"asset_tag"`
	AssetType         string  `json:"asset_type"`
	Manufacturer      *string `json:"manufacturer,omitempty"`
	Model             *string `json:"model,omitempty"`
	SerialNumber      *string `json:"serial_number,omitempty"`
	Status            *string `json:"status,omitempty"`
	AssignedTo        *string `json:"assigned_to,omitempty"`
	LocationID        *int64  `json:"location_id,omitempty"`
	IsLoaner          bool    `json:"is_loaner"`
	CurrentCheckoutID *int64  `json:"current_checkout_id,omitempty"`
	PurchaseDate      *Date   `json:"purchase_date,omitempty"`
	WarrantyExpiry    *Date   `json:"warranty_expiry,omitempty"`
	Notes             *string `json:"notes,omitempty"`
}

// ValidItemStatus reports whether s is one of ItemStatuses.
func ValidItemStatus(s string) bool {
	for _, v := range ItemStatuses {
		if v == s {
			return true
		}
	}
	return false
}
