// Package migrations embeds the SQL schema for the completion history.
package migrations

import "embed"

// FS holds every migration, applied in lexical order by Files.
//
//go:embed *.sql
var FS embed.FS

// Files lists the migrations in the order they must run.
var Files = []string{
	"001_create_timer_completions.sql",
}
