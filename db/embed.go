// Package db embeds the ledger schema so binaries can migrate without
// shipping SQL files alongside them.
package db

import _ "embed"

// Schema creates every ledger table idempotently.
//
//go:embed migrations/001_schema.sql
var Schema string
