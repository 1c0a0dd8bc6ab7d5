// Package migrations embeds the PostgreSQL schema for the e-learning API.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
