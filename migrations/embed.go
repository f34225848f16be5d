// Package migrations embeds the SQL schema files so the migrate command
// ships them inside the binary.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
