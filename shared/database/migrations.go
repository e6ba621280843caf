package database

import "embed"

// MigrationsFS holds the SQL migrations for the users table.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsDir is the directory inside MigrationsFS that holds the migrations.
const MigrationsDir = "migrations"
