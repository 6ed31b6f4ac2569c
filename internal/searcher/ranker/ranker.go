package ranker

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// ScoredDoc is a candidate record and its term-frequency score.
type ScoredDoc struct {
	Position uint32 `json:"position"`
	Score    int    `json:"score"`
}

// Rank scores every candidate by the total number of occurrences of the
// query terms across its indexed fields and returns them by descending
// score. Equal scores keep load order. limit <= 0 returns all candidates.
func Rank(postings []*index.PostingSet, candidates *roaring.Bitmap, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		pos := it.Next()
		score := 0
		for _, p := range postings {
			score += p.Frequency(pos)
		}
		result = append(result, ScoredDoc{Position: pos, Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Position < result[j].Position
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
