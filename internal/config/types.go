// Package config provides the project configuration for semantic model
// generation. This package is decoupled from CLI concerns so other tools
// can load a project without pulling in cobra.
package config

import (
	"fmt"
	"sort"

	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/pkg/dialect"
)

// ConnectionConfig locates the SQL endpoint the model queries.
type ConnectionConfig struct {
	// Mode selects the connector dialect: "tds" or "fabric".
	Mode     string `koanf:"mode"`
	Server   string `koanf:"server"`
	Database string `koanf:"database"`
}

// Validate checks the connection configuration against the dialect registry.
func (c *ConnectionConfig) Validate() error {
	if c.Mode == "" {
		return fmt.Errorf("connection mode is required")
	}
	if _, ok := dialect.Get(c.Mode); !ok {
		return fmt.Errorf("unknown connection mode %q (available: %v)", c.Mode, dialect.List())
	}
	if c.Server == "" {
		return fmt.Errorf("connection server is required")
	}
	if c.Database == "" {
		return fmt.Errorf("connection database is required")
	}
	return nil
}

// TableConfig holds the per-table generation options.
type TableConfig struct {
	// Role is "fact" or "dimension". At most one table may be the fact.
	Role    string `koanf:"role"`
	Storage string `koanf:"storage"`

	// View names the saved view whose filter becomes the partition WHERE
	// clause. Form names the form whose fields select the attribute set.
	View string `koanf:"view"`
	Form string `koanf:"form"`

	// Attributes explicitly lists attribute logical names, overriding form
	// selection when non-empty.
	Attributes []string `koanf:"attributes"`
}

// WrappedFieldConfig names a datetime field that gets a timezone-shifted
// copy in its table's partition query.
type WrappedFieldConfig struct {
	Table    string `koanf:"table"`
	Field    string `koanf:"field"`
	DateOnly bool   `koanf:"date_only"`
}

// DateTableConfig configures the generated calendar dimension.
type DateTableConfig struct {
	Enabled        bool   `koanf:"enabled"`
	PrimaryTable   string `koanf:"primary_table"`
	PrimaryField   string `koanf:"primary_field"`
	TimeZone       string `koanf:"timezone"`
	UTCOffsetHours int    `koanf:"utc_offset_hours"`
	StartYear      int    `koanf:"start_year"`
	EndYear        int    `koanf:"end_year"`

	WrappedFields []WrappedFieldConfig `koanf:"wrapped_fields"`
}

// ToMetadata converts the section to the generator's date table config.
func (d *DateTableConfig) ToMetadata() metadata.DateTableConfig {
	cfg := metadata.DateTableConfig{
		PrimaryTable:   d.PrimaryTable,
		PrimaryField:   d.PrimaryField,
		TimeZone:       d.TimeZone,
		UTCOffsetHours: d.UTCOffsetHours,
		StartYear:      d.StartYear,
		EndYear:        d.EndYear,
	}
	for _, wf := range d.WrappedFields {
		cfg.WrappedFields = append(cfg.WrappedFields, metadata.WrappedField{
			Table:             wf.Table,
			Field:             wf.Field,
			ConvertToDateOnly: wf.DateOnly,
		})
	}
	return cfg
}

// ProjectConfig is the root of tmdlgen.yaml.
type ProjectConfig struct {
	Project    string                 `koanf:"project"`
	Culture    string                 `koanf:"culture"`
	OutputDir  string                 `koanf:"output_dir"`
	Solution   string                 `koanf:"solution"`
	Connection ConnectionConfig       `koanf:"connection"`
	Tables     map[string]TableConfig `koanf:"tables"`
	DateTable  *DateTableConfig       `koanf:"date_table"`
	HistoryDB  string                 `koanf:"history_db"`
}

// TableNames returns the configured table logical names in sorted order.
func (c *ProjectConfig) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FactTable returns the logical name of the table configured as the fact,
// or empty when the model is dimension-only.
func (c *ProjectConfig) FactTable() string {
	for _, name := range c.TableNames() {
		if c.Tables[name].Role == string(metadata.RoleFact) {
			return name
		}
	}
	return ""
}

// Validate checks the full project configuration.
func (c *ProjectConfig) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project name is required")
	}
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}

	facts := 0
	for _, name := range c.TableNames() {
		t := c.Tables[name]
		role, err := metadata.ParseTableRole(t.Role)
		if err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		if role == metadata.RoleFact {
			facts++
		}
		if _, err := metadata.ParseStorageMode(t.Storage); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
	}
	if facts > 1 {
		return fmt.Errorf("at most one table may have role %q, found %d", metadata.RoleFact, facts)
	}

	if c.DateTable != nil && c.DateTable.Enabled {
		if _, ok := c.Tables[c.DateTable.PrimaryTable]; !ok {
			return fmt.Errorf("date_table.primary_table %q is not a configured table", c.DateTable.PrimaryTable)
		}
		if c.DateTable.PrimaryField == "" {
			return fmt.Errorf("date_table.primary_field is required")
		}
		for _, wf := range c.DateTable.WrappedFields {
			if _, ok := c.Tables[wf.Table]; !ok {
				return fmt.Errorf("date_table.wrapped_fields: %q is not a configured table", wf.Table)
			}
		}
	}
	return nil
}
