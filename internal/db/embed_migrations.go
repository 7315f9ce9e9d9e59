package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Applied by cmd/migrate before the postgres store backend is used.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
