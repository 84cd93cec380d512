package sql_migrations

import "embed"

// One directory per dialect
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
