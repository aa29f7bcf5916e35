// Package db embeds the relay schema migrations.
package db

import (
	"embed"
	"io/fs"
)

// MigrationsFS contains all SQL migration files embedded at compile time.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// Migrations returns the migration files rooted at the migrations directory.
func Migrations() (fs.FS, error) {
	return fs.Sub(MigrationsFS, "migrations")
}
