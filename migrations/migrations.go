// Package migrations embeds the goose SQL migrations that define the
// jobs, events, trigger, manifest and audit schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
