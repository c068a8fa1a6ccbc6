// Package migrations embeds the SQL schema for the relational identity store.
package migrations

import "embed"

// FS holds one sub-directory of golang-migrate files per database driver
//
//go:embed sqlite/*.sql
var FS embed.FS
