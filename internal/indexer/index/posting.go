package index

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// PostingSet holds the record positions that contain a term together with
// the term's occurrence count in each of those records. Frequencies are
// stored in ascending position order, so the frequency of position p is
// Frequencies[Docs.Rank(p)-1].
type PostingSet struct {
	Docs        *roaring.Bitmap
	Frequencies []uint32
}

func newPostingSet() *PostingSet {
	return &PostingSet{Docs: roaring.New()}
}

// add appends a posting. Positions must be added in ascending order.
func (p *PostingSet) add(position uint32, freq int) {
	p.Docs.Add(position)
	p.Frequencies = append(p.Frequencies, uint32(freq))
}

// Frequency returns the number of occurrences of the term in the record at
// position, or 0 if the record does not contain it.
func (p *PostingSet) Frequency(position uint32) int {
	if !p.Docs.Contains(position) {
		return 0
	}
	return int(p.Frequencies[p.Docs.Rank(position)-1])
}

// Len returns the number of records in the set.
func (p *PostingSet) Len() int {
	return int(p.Docs.GetCardinality())
}

// TermEntry pairs a term with its document frequency, used by stats output.
type TermEntry struct {
	Term    string `json:"term"`
	DocFreq int    `json:"doc_freq"`
}
