package domain

import "time"

// Record is a single search result row: field name to value, as returned by the platform.
type Record map[string]any

// Answer is the full response to one question. Every field is produced by the
// preceding pipeline stage; nothing is fabricated independently.
type Answer struct {
	Question   string
	SearchHost string
	Query      string
	Results    []Record
	Summary    string
}

// SearchOverrides carries per-request overrides for the search platform connection.
// Zero values mean "use the configured default"; VerifySSL is a pointer because
// false is a meaningful override.
type SearchOverrides struct {
	Host      string
	VerifySSL *bool
	Timeout   time.Duration
}
