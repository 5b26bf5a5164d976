// Package migrations holds the numbered SQL schema files for Conductor.
package migrations

import "embed"

// FS is applied in filename order by storage.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
