// Package migrations embeds the goose SQL migrations for the four-table
// restaurant layout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
