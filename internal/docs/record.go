// Package docs defines the documentation search-index record and the codec
// for the payloads documentation generators emit.
package docs

import (
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Record is one entry of a documentation search index. Records are values
// and are never mutated after they are loaded.
type Record struct {
	Location string `json:"location"`
	Page     string `json:"page"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Validate checks the required fields of the record at the given payload
// position. Location may be empty: page-level entries point at the page root.
func (r Record) Validate(position int) error {
	switch {
	case strings.TrimSpace(r.Page) == "":
		return &apperrors.MalformedRecordError{Position: position, Field: "page"}
	case strings.TrimSpace(r.Title) == "":
		return &apperrors.MalformedRecordError{Position: position, Field: "title"}
	case strings.TrimSpace(r.Category) == "":
		return &apperrors.MalformedRecordError{Position: position, Field: "category"}
	}
	return nil
}

// ValidateAll validates every record and returns the first failure.
func ValidateAll(records []Record) error {
	for i, r := range records {
		if err := r.Validate(i); err != nil {
			return err
		}
	}
	return nil
}
