// Package executor runs search requests against the live IndexStore and
// shapes the response envelope shared by the HTTP API, the cache and the
// CLI.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Request is one search. Limit must be positive.
type Request struct {
	Query    string
	Limit    int
	Category string
}

// ResultDoc is a matching record as returned to clients.
type ResultDoc struct {
	Location string `json:"location"`
	Page     string `json:"page"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Category string `json:"category"`
	Score    int    `json:"score"`
}

type SearchResult struct {
	Query      string      `json:"query"`
	Terms      []string    `json:"terms"`
	Category   string      `json:"category,omitempty"`
	TotalHits  int         `json:"total_hits"`
	Generation uint64      `json:"generation"`
	Results    []ResultDoc `json:"results"`
}

// Searcher is the part of IndexStore the executor needs.
type Searcher interface {
	Search(term string, opts ...indexer.QueryOption) (indexer.Result, error)
}

type Executor struct {
	store   Searcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns an Executor. m may be nil.
func New(store Searcher, m *metrics.Metrics) *Executor {
	return &Executor{
		store:   store,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "search cancelled")
	}
	start := time.Now()
	opts := []indexer.QueryOption{indexer.WithLimit(req.Limit)}
	if req.Category != "" {
		opts = append(opts, indexer.WithCategory(req.Category))
	}

	res, err := e.store.Search(req.Query, opts...)
	if err != nil {
		e.count("invalid", err)
		return nil, err
	}

	out := &SearchResult{
		Query:      req.Query,
		Terms:      res.Terms,
		Category:   req.Category,
		TotalHits:  res.TotalHits,
		Generation: res.Generation,
		Results:    make([]ResultDoc, len(res.Hits)),
	}
	for i, h := range res.Hits {
		out.Results[i] = ResultDoc{
			Location: h.Location,
			Page:     h.Page,
			Title:    h.Title,
			Text:     h.Text,
			Category: h.Category,
			Score:    h.Score,
		}
	}

	resultType := "hit"
	if len(out.Results) == 0 {
		resultType = "zero_result"
	}
	e.count(resultType, nil)
	if e.metrics != nil {
		e.metrics.SearchResultsCount.Observe(float64(len(out.Results)))
	}
	e.logger.Debug("query executed",
		"query", req.Query,
		"terms", res.Terms,
		"candidates", res.TotalHits,
		"results", len(out.Results),
		"took", time.Since(start),
	)
	return out, nil
}

func (e *Executor) count(resultType string, err error) {
	if e.metrics == nil {
		return
	}
	if err != nil && !errors.Is(err, apperrors.ErrInvalidQuery) {
		resultType = "error"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
}
