package util

import (
	"fmt"
	"strings"
)

// Config holds the configuration of the CLI
type Config struct {
	// Store settings
	Store        string
	StoreVersion uint64
	SchemaFile   string

	// Backend settings
	Backend        string
	DataDir        string
	Codec          string
	LockTimeoutSec int

	// Sync
	SyncTimeoutSec int

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Store")
	addField("Name", c.Store)
	addField("Version", fmt.Sprintf("%d", c.StoreVersion))
	if c.SchemaFile != "" {
		addField("Schema File", c.SchemaFile)
	} else {
		addField("Schema File", "(none)")
	}

	addSection("Backend")
	addField("Type", c.Backend)
	if c.Backend == "bolt" {
		addField("Data Directory", c.DataDir)
		addField("Codec", c.Codec)
		addField("Lock Timeout", fmt.Sprintf("%d sec", c.LockTimeoutSec))
	}

	addSection("Sync")
	addField("Timeout", fmt.Sprintf("%d sec", c.SyncTimeoutSec))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
