// Package migration holds the SQLite schema for the listening database.
package migration

import _ "embed"

// Create builds every table on a fresh database.
//
//go:embed create-tables.sql
var Create string
