package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Location statuses.
const (
	LocationStatusActive   = "active"
	LocationStatusInactive = "inactive"
)

// Location is a room at a site that houses inventory items.
type Location struct {
	ID             int64     `json:"id"`
	SiteName       string    `json:"site_name"`
	RoomNumber     string    `json:"room_number"`
	RoomName       string    `json:"room_name"`
	RoomType       string    `json:"room_type"`
	Floor          *string   `json:"floor,omitempty"`
	Building       *string   `json:"building,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Status         string    `json:"status"`
	InventoryCount int       `json:"inventory_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FullName renders the location as "SITE - ROOM (ROOM NAME)".
func FullName(siteName, roomNumber, roomName string) string {
	return fmt.Sprintf("%s - %s (%s)", siteName, roomNumber, roomName)
}

func (l *Location) FullName() string {
	return FullName(l.SiteName, l.RoomNumber, l.RoomName)
}

// MarshalJSON adds the derived full_name to the stored columns.
func (l Location) MarshalJSON() ([]byte, error) {
	type plain Location
	return json.Marshal(struct {
		plain
		FullName string `json:"full_name"`
	}{plain(l), l.FullName()})
}

// LocationSummary is the location block embedded in inventory responses.
type LocationSummary struct {
	ID         int64  `json:"id"`
	SiteName   string `json:"site_name"`
	RoomNumber string `json:"room_number"`
	RoomName   string `json:"room_name"`
	RoomType   string `json:"room_type"`
	FullName   string `json:"full_name"`
}

// CreateLocationRequest represents the request body for creating a location
type CreateLocationRequest struct {
	SiteName    string  `json:"site_name"`
	RoomNumber  string  `json:"room_number"`
	RoomName    string  `json:"room_name"`
	RoomType    string  `json:"room_type"`
	Floor       *string `json:"floor,omitempty"`
	Building    *string `json:"building,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// ValidLocationStatus reports whether s is an accepted location status.
func ValidLocationStatus(s string) bool {
	return s == LocationStatusActive || s == LocationStatusInactive
}
