// Package index builds the immutable inverted index behind the index store.
// Records are held once in an owned slice; posting sets refer to them by
// position, never by copy.
package index

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

// Snapshot is a fully built inverted index. It is never modified after
// Build returns, so any number of goroutines may read it without locking.
type Snapshot struct {
	records    []docs.Record
	postings   map[string]*PostingSet
	categories map[string]*roaring.Bitmap
	tokens     int
}

// Build indexes the title, text and category of every record. The records
// slice is copied; the caller may reuse it.
func Build(records []docs.Record) (*Snapshot, error) {
	if uint64(len(records)) > math.MaxUint32 {
		return nil, fmt.Errorf("too many records: %d", len(records))
	}
	s := &Snapshot{
		records:    make([]docs.Record, len(records)),
		postings:   make(map[string]*PostingSet),
		categories: make(map[string]*roaring.Bitmap),
	}
	copy(s.records, records)

	for i, rec := range s.records {
		pos := uint32(i)
		freqs := tokenizer.Frequencies(rec.Title, rec.Text, rec.Category)
		for term, n := range freqs {
			p, ok := s.postings[term]
			if !ok {
				p = newPostingSet()
				s.postings[term] = p
			}
			p.add(pos, n)
			s.tokens += n
		}

		cat := NormalizeCategory(rec.Category)
		bm, ok := s.categories[cat]
		if !ok {
			bm = roaring.New()
			s.categories[cat] = bm
		}
		bm.Add(pos)
	}

	for _, p := range s.postings {
		p.Docs.RunOptimize()
	}
	for _, bm := range s.categories {
		bm.RunOptimize()
	}
	return s, nil
}

// NormalizeCategory is the comparison form of a category tag.
func NormalizeCategory(category string) string {
	return tokenizer.Normalize(strings.TrimSpace(category))
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// Record returns the record at position.
func (s *Snapshot) Record(position uint32) docs.Record {
	return s.records[position]
}

// Records returns a copy of all records in load order.
func (s *Snapshot) Records() []docs.Record {
	out := make([]docs.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Postings returns the posting set for term, or nil.
func (s *Snapshot) Postings(term string) *PostingSet {
	return s.postings[term]
}

// Candidates returns the positions of records containing every term. The
// returned bitmap is owned by the caller. An empty terms slice yields an
// empty bitmap.
func (s *Snapshot) Candidates(terms []string) *roaring.Bitmap {
	if len(terms) == 0 {
		return roaring.New()
	}
	sets := make([]*roaring.Bitmap, 0, len(terms))
	for _, term := range terms {
		p, ok := s.postings[term]
		if !ok {
			return roaring.New()
		}
		sets = append(sets, p.Docs)
	}
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].GetCardinality() < sets[j].GetCardinality()
	})
	result := sets[0].Clone()
	for _, bm := range sets[1:] {
		result.And(bm)
		if result.IsEmpty() {
			break
		}
	}
	return result
}

// Category returns the positions of records tagged with category, compared
// case-insensitively. The returned bitmap must not be modified.
func (s *Snapshot) Category(category string) *roaring.Bitmap {
	bm, ok := s.categories[NormalizeCategory(category)]
	if !ok {
		return roaring.New()
	}
	return bm
}

// Categories returns the number of records per normalized category.
func (s *Snapshot) Categories() map[string]int {
	out := make(map[string]int, len(s.categories))
	for cat, bm := range s.categories {
		out[cat] = int(bm.GetCardinality())
	}
	return out
}

// Terms returns the number of distinct terms.
func (s *Snapshot) Terms() int {
	return len(s.postings)
}

// Tokens returns the total number of indexed term occurrences.
func (s *Snapshot) Tokens() int {
	return s.tokens
}

// TopTerms returns the n terms with the highest document frequency,
// ties broken alphabetically.
func (s *Snapshot) TopTerms(n int) []TermEntry {
	entries := make([]TermEntry, 0, len(s.postings))
	for term, p := range s.postings {
		entries = append(entries, TermEntry{Term: term, DocFreq: p.Len()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DocFreq != entries[j].DocFreq {
			return entries[i].DocFreq > entries[j].DocFreq
		}
		return entries[i].Term < entries[j].Term
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
