// Package indexer owns the loaded documentation records and their inverted
// index. IndexStore has a single writer (Load) and any number of concurrent
// readers: every Load builds a complete new snapshot off to the side and
// publishes it with one atomic pointer swap, so queries see either the old
// index or the new one, never a mix.
package indexer

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
)

// State is the lifecycle state of an IndexStore.
type State int

const (
	StateEmpty State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

type generation struct {
	snap     *index.Snapshot
	number   uint64
	loadedAt time.Time
}

// IndexStore holds the current index generation.
type IndexStore struct {
	current atomic.Pointer[generation]
	loadMu  sync.Mutex
	loads   uint64
	logger  *slog.Logger
}

// New returns an IndexStore in the Empty state.
func New() *IndexStore {
	return &IndexStore{
		logger: slog.Default().With("component", "index-store"),
	}
}

// Load validates records and replaces the whole index with them. If any
// record is malformed nothing is replaced and the previous index stays
// queryable. Loading the same records again yields an identical index.
func (s *IndexStore) Load(records []docs.Record) error {
	start := time.Now()
	if err := docs.ValidateAll(records); err != nil {
		s.logger.Warn("load rejected", "records", len(records), "error", err)
		return err
	}
	snap, err := index.Build(records)
	if err != nil {
		return err
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.loads++
	s.current.Store(&generation{
		snap:     snap,
		number:   s.loads,
		loadedAt: time.Now().UTC(),
	})
	s.logger.Info("index loaded",
		"generation", s.loads,
		"records", snap.Len(),
		"terms", snap.Terms(),
		"took", time.Since(start),
	)
	return nil
}

// QueryOption adjusts a single query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	limit    int
	limitSet bool
	category string
}

// WithLimit caps the number of returned records. The limit must be
// positive; omitting the option returns every match.
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) {
		o.limit = n
		o.limitSet = true
	}
}

// WithCategory restricts matches to records whose category equals c,
// compared case-insensitively. It filters only; it never changes scores.
func WithCategory(c string) QueryOption {
	return func(o *queryOptions) {
		o.category = c
	}
}

// Hit is a matching record with its score.
type Hit struct {
	docs.Record
	Score int `json:"score"`
}

// Result is the outcome of Search.
type Result struct {
	Hits       []Hit
	TotalHits  int
	Terms      []string
	Generation uint64
}

// Query returns the records matching every token of term, best first.
// It returns an empty slice, not an error, when nothing matches or nothing
// has been loaded yet.
func (s *IndexStore) Query(term string, opts ...QueryOption) ([]docs.Record, error) {
	res, err := s.Search(term, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]docs.Record, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.Record
	}
	return out, nil
}

// Search is Query plus scores, the number of matches before the limit was
// applied, and the generation that answered.
func (s *IndexStore) Search(term string, opts ...QueryOption) (Result, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	plan, err := parser.Parse(term)
	if err != nil {
		return Result{}, err
	}
	if o.limitSet {
		if err := parser.CheckLimit(o.limit); err != nil {
			return Result{}, err
		}
	}

	res := Result{Hits: []Hit{}, Terms: plan.Terms}
	gen := s.current.Load()
	if gen == nil {
		return res, nil
	}
	res.Generation = gen.number

	candidates := gen.snap.Candidates(plan.Terms)
	if o.category != "" {
		candidates.And(gen.snap.Category(o.category))
	}
	res.TotalHits = int(candidates.GetCardinality())
	if res.TotalHits == 0 {
		return res, nil
	}

	postings := make([]*index.PostingSet, len(plan.Terms))
	for i, t := range plan.Terms {
		postings[i] = gen.snap.Postings(t)
	}
	ranked := ranker.Rank(postings, candidates, o.limit)
	res.Hits = make([]Hit, len(ranked))
	for i, sd := range ranked {
		res.Hits[i] = Hit{Record: gen.snap.Record(sd.Position), Score: sd.Score}
	}
	return res, nil
}

// State reports whether an index has been loaded.
func (s *IndexStore) State() State {
	if s.current.Load() == nil {
		return StateEmpty
	}
	return StateReady
}

// Generation returns the number of successful loads so far.
func (s *IndexStore) Generation() uint64 {
	if gen := s.current.Load(); gen != nil {
		return gen.number
	}
	return 0
}

// Stats describes the current index.
type Stats struct {
	State      string            `json:"state"`
	Generation uint64            `json:"generation"`
	Records    int               `json:"records"`
	Terms      int               `json:"terms"`
	Tokens     int               `json:"tokens"`
	Categories map[string]int    `json:"categories"`
	TopTerms   []index.TermEntry `json:"top_terms"`
	LoadedAt   *time.Time        `json:"loaded_at,omitempty"`
}

// Stats returns a description of the current index.
func (s *IndexStore) Stats() Stats {
	gen := s.current.Load()
	if gen == nil {
		return Stats{State: StateEmpty.String(), Categories: map[string]int{}, TopTerms: []index.TermEntry{}}
	}
	loadedAt := gen.loadedAt
	return Stats{
		State:      StateReady.String(),
		Generation: gen.number,
		Records:    gen.snap.Len(),
		Terms:      gen.snap.Terms(),
		Tokens:     gen.snap.Tokens(),
		Categories: gen.snap.Categories(),
		TopTerms:   gen.snap.TopTerms(10),
		LoadedAt:   &loadedAt,
	}
}

// Records returns a copy of the loaded records in load order.
func (s *IndexStore) Records() []docs.Record {
	gen := s.current.Load()
	if gen == nil {
		return []docs.Record{}
	}
	return gen.snap.Records()
}
