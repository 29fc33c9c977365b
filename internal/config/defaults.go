package config

import (
	"time"

	"github.com/modelstack-labs/tmdlgen/internal/metadata"
)

// Default configuration values.
const (
	DefaultCulture   = "en-US"
	DefaultHistoryDB = ".tmdlgen/history.db"
	DefaultTimeZone  = "UTC"
)

// ApplyDefaults fills omitted fields of a ProjectConfig.
func ApplyDefaults(c *ProjectConfig) {
	if c == nil {
		return
	}
	if c.Culture == "" {
		c.Culture = DefaultCulture
	}
	if c.OutputDir == "" && c.Project != "" {
		c.OutputDir = c.Project + ".SemanticModel"
	}
	if c.HistoryDB == "" {
		c.HistoryDB = DefaultHistoryDB
	}

	for name, t := range c.Tables {
		if t.Role == "" {
			t.Role = string(metadata.RoleDimension)
		}
		if t.Storage == "" {
			t.Storage = string(metadata.StorageDirectQuery)
		}
		c.Tables[name] = t
	}

	if c.DateTable != nil && c.DateTable.Enabled {
		if c.DateTable.TimeZone == "" {
			c.DateTable.TimeZone = DefaultTimeZone
		}
		year := time.Now().UTC().Year()
		if c.DateTable.StartYear == 0 {
			c.DateTable.StartYear = year - 3
		}
		if c.DateTable.EndYear == 0 {
			c.DateTable.EndYear = year + 1
		}
	}
}
