// Package migrations contains the SQL migrations for the database schema.
package migrations

import "embed"

// FS contains all migration files. Files are applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
