package ask

import (
	"context"

	"splask/internal/domain"
)

// Completer generates SPL from a question and summarizes result sets.
type Completer interface {
	GenerateQuery(ctx context.Context, question string) (string, error)
	Summarize(ctx context.Context, question string, results []domain.Record) (string, error)
}

// Searcher executes an SPL query against the search platform.
type Searcher interface {
	Run(ctx context.Context, query string, o domain.SearchOverrides) ([]domain.Record, error)
	DefaultHost() string
}
