// Package migrations embeds the server's schema migration files and
// registers them with the database package.
package migrations

import (
	"embed"

	"github.com/flxdot/carlos-sub000/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
