package importer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMappingPath is used when no mapping file is given.
const DefaultMappingPath = "configs/mapping/inventory.yaml"

// wildcardSheet configures every sheet without an entry of its own.
const wildcardSheet = "*"

// MappingConfig represents the YAML mapping configuration
type MappingConfig struct {
	Version  int                    `yaml:"version"`
	Defaults Defaults               `yaml:"defaults"`
	Sheets   map[string]SheetConfig `yaml:"sheets"`
}

// Defaults fill values a row leaves empty.
type Defaults struct {
	Status   string `yaml:"status"`
	RoomType string `yaml:"room_type"`
}

type SheetConfig struct {
	Columns map[string]ColumnConfig `yaml:"columns"`
	Aliases map[string][]string     `yaml:"aliases"`
}

type ColumnConfig struct {
	Field string `yaml:"field"`
	Type  string `yaml:"type"`
}

// Column value types.
const (
	TypeText = "text"
	TypeBool = "bool"
	TypeDate = "date"
	TypeInt  = "int"
)

// itemFields are the inventory fields a column can feed.
var itemFields = map[string]bool{
	"asset_tag":           true,
	"asset_type":          true,
	"manufacturer":        true,
	"model":               true,
	"serial_number":       true,
	"status":              true,
	"assigned_to":         true,
	"notes":               true,
	"is_loaner":           true,
	"purchase_date":       true,
	"warranty_expiry":     true,
	"current_checkout_id": true,
}

// locationFields describe the room an item sits in.
var locationFields = map[string]bool{
	"site_name":   true,
	"room_number": true,
	"room_name":   true,
	"room_type":   true,
	"floor":       true,
	"building":    true,
}

// LoadMapping reads and validates a mapping file.
func LoadMapping(path string) (*MappingConfig, error) {
	if path == "" {
		path = DefaultMappingPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping %s: %w", path, err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes and validates mapping YAML.
func ParseMapping(data []byte) (*MappingConfig, error) {
	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every column targets a known field with a known type
// and that each sheet maps the asset tag.
func (m *MappingConfig) Validate() error {
	if len(m.Sheets) == 0 {
		return fmt.Errorf("mapping has no sheets")
	}
	for name, sheet := range m.Sheets {
		hasTag := false
		for header, col := range sheet.Columns {
			if !itemFields[col.Field] && !locationFields[col.Field] {
				return fmt.Errorf("sheet %q column %q: unknown field %q", name, header, col.Field)
			}
			switch col.kind() {
			case TypeText, TypeBool, TypeDate, TypeInt:
			default:
				return fmt.Errorf("sheet %q column %q: unknown type %q", name, header, col.Type)
			}
			if col.Field == "asset_tag" {
				hasTag = true
			}
		}
		if !hasTag {
			return fmt.Errorf("sheet %q does not map asset_tag", name)
		}
	}
	return nil
}

// Sheet returns the configuration for a worksheet name, falling back to the
// wildcard entry.
func (m *MappingConfig) Sheet(name string) (SheetConfig, bool) {
	if sc, ok := m.Sheets[name]; ok {
		return sc, true
	}
	sc, ok := m.Sheets[wildcardSheet]
	return sc, ok
}

func (c ColumnConfig) kind() string {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	if t == "" {
		return TypeText
	}
	return t
}

// resolve maps upper-cased header text to the configured column.
func (sc SheetConfig) resolve() map[string]ColumnConfig {
	out := make(map[string]ColumnConfig, len(sc.Columns))
	for header, col := range sc.Columns {
		out[strings.ToUpper(strings.TrimSpace(header))] = col
		for _, alias := range sc.Aliases[header] {
			out[strings.ToUpper(strings.TrimSpace(alias))] = col
		}
	}
	return out
}
