// Package migrations embeds the SQL schema applied by internal/migrate.
package migrations

import "embed"

// FS holds every goose migration file in this directory.
//
//go:embed *.sql
var FS embed.FS
