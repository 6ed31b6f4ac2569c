// Package validator checks a decoded payload against the limits the search
// service is willing to index, reporting every violation by record field.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
)

const (
	maxTitleLength    = 1024
	maxLocationLength = 2048
	maxTextLength     = 1 << 20
	maxRecords        = 1_000_000
	maxReported       = 20
)

// ValidationError holds per-field validation failure messages keyed as
// docs[i].field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "payload rejected: " + strings.Join(parts, "; ")
}

// ValidatePayload runs the record invariants and then the size limits.
// A missing required field is returned as the record's own
// MalformedRecordError; limit violations are collected into a
// ValidationError, at most maxReported of them.
func ValidatePayload(records []docs.Record) error {
	if err := docs.ValidateAll(records); err != nil {
		return err
	}
	errs := make(map[string]string)
	if len(records) > maxRecords {
		errs["docs"] = fmt.Sprintf("at most %d records are accepted, got %d", maxRecords, len(records))
	}
	for i, r := range records {
		if len(errs) >= maxReported {
			break
		}
		if n := len(r.Title); n > maxTitleLength {
			errs[fmt.Sprintf("docs[%d].title", i)] = fmt.Sprintf("must be at most %d bytes, got %d", maxTitleLength, n)
		}
		if n := len(r.Location); n > maxLocationLength {
			errs[fmt.Sprintf("docs[%d].location", i)] = fmt.Sprintf("must be at most %d bytes, got %d", maxLocationLength, n)
		}
		if n := len(r.Text); n > maxTextLength {
			errs[fmt.Sprintf("docs[%d].text", i)] = fmt.Sprintf("must be at most %d bytes, got %d", maxTextLength, n)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
