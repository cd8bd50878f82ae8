// Package migrations embeds the journal schema for each driver.
package migrations

import "embed"

// FS holds one directory per driver: sqlite and postgres.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
