// Package migrations embeds the SQL that creates the sentinel control
// record on the source database. Embedded so `saisei sentinel create`
// works regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem.
//
//go:embed *.sql
var FS embed.FS
