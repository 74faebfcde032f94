package db

import "embed"

// EmbedMigrations contains the embedded metastore migrations.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
