package database

import "embed"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsPath - каталог миграций внутри MigrationsFS.
const MigrationsPath = "migrations"

// MigrationsFS отдаёт встроенные SQL-миграции схемы.
func MigrationsFS() embed.FS {
	return migrationsFS
}
