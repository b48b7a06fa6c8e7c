// Package search fetches web snippets that give the answerer extra context
// on questions it is unsure about.
package search

import (
	"context"
	"strings"

	"github.com/abhisek/answerbot/internal/question"
)

// Searcher returns up to a bounded number of text snippets for q.
// Callers treat any error or empty result as "no snippets".
type Searcher interface {
	Search(ctx context.Context, q question.Question) ([]string, error)
}

// BuildQuery renders the search query for q: the title, followed by the
// options for choice questions so the engine can match option text.
func BuildQuery(q question.Question) string {
	query := q.Title
	if q.Type.NeedsOptions() && len(q.Options) > 0 {
		query += " " + strings.Join(q.Options, "\n")
	}
	return query
}
