// Package migrations embeds the schema shipped with the binaries.
package migrations

import "embed"

// FS holds sql/NNNN_name.up.sql and the matching .down.sql files.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory inside FS that holds the migrations.
const Dir = "sql"
