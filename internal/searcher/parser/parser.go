package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// QueryPlan is a validated query. Every term must be present in a record
// for it to match.
type QueryPlan struct {
	Terms    []string
	RawQuery string
}

// Parse validates query and splits it into distinct terms with the same
// tokenizer the index uses. A query made only of separators is valid and
// produces a plan with no terms, which matches nothing.
func Parse(query string) (*QueryPlan, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &apperrors.InvalidQueryError{Reason: "term must not be empty"}
	}
	return &QueryPlan{
		Terms:    tokenizer.Unique(query),
		RawQuery: query,
	}, nil
}

// CheckLimit rejects limits that are not positive.
func CheckLimit(limit int) error {
	if limit < 1 {
		return &apperrors.InvalidQueryError{Reason: "limit must be a positive integer"}
	}
	return nil
}
