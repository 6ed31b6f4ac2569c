package indexer

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

var (
	brgc = docs.Record{
		Location: "#Eikonal.brgc-Tuple{Integer}",
		Page:     "Home",
		Title:    "Eikonal.brgc",
		Text:     "brgc(n)\n\nGet the Binary-Reflected Gray Code list for n bits (most significant bit last, i.e. using the reflect-and-suffix method).\n\n\n\n\n\n",
		Category: "method",
	}
	subtuples = docs.Record{
		Location: "#Eikonal.subtuples-Union{Tuple{Tuple{Vararg{T, N}}}, Tuple{T}, Tuple{N}} where {N, T}",
		Page:     "Home",
		Title:    "Eikonal.subtuples",
		Text:     "subtuples(t::NTuple{N, T}) where {N, T}\n\nGenerate the list of all sub-tuples obtained by removing one element from t.\n\n\n\n\n\n",
		Category: "method",
	}
	eikonalSection = docs.Record{
		Location: "#Eikonal",
		Page:     "Home",
		Title:    "Eikonal",
		Text:     "",
		Category: "section",
	}
)

func fixtureRecords(t *testing.T) []docs.Record {
	t.Helper()
	f, err := os.Open("../docs/testdata/search_index.js")
	require.NoError(t, err)
	defer f.Close()
	records, err := docs.Decode(f)
	require.NoError(t, err)
	return records
}

func loaded(t *testing.T, records ...docs.Record) *IndexStore {
	t.Helper()
	s := New()
	require.NoError(t, s.Load(records))
	return s
}

func TestScenarioMethodEntries(t *testing.T) {
	s := loaded(t, brgc, subtuples)

	got, err := s.Query("tuples")
	require.NoError(t, err)
	assert.Equal(t, []docs.Record{subtuples}, got)

	got, err = s.Query("gray code")
	require.NoError(t, err)
	assert.Equal(t, []docs.Record{brgc}, got)
}

func TestScenarioEikonalCaseInsensitive(t *testing.T) {
	s := loaded(t, fixtureRecords(t)...)

	for _, term := range []string{"eikonal", "EIKONAL", "Eikonal"} {
		got, err := s.Query(term)
		require.NoError(t, err)
		assert.Contains(t, got, eikonalSection, "term %q", term)
	}
}

func TestScenarioEmptyTerm(t *testing.T) {
	s := loaded(t, brgc, subtuples)
	for _, term := range []string{"", "   "} {
		_, err := s.Query(term)
		var iqe *apperrors.InvalidQueryError
		assert.True(t, errors.As(err, &iqe), "term %q", term)
	}
}

func TestRoundTripEveryRecordFindableByTitle(t *testing.T) {
	records := fixtureRecords(t)
	s := loaded(t, records...)

	for i, rec := range records {
		got, err := s.Query(rec.Title)
		require.NoError(t, err)
		assert.Contains(t, got, rec, "record %d (%s)", i, rec.Title)
	}
}

func TestIdempotentLoad(t *testing.T) {
	records := fixtureRecords(t)
	once := loaded(t, records...)
	twice := loaded(t, records...)
	require.NoError(t, twice.Load(records))

	for _, q := range []string{"eikonal", "home", "tuples", "n", "gray code", "module"} {
		a, err := once.Query(q)
		require.NoError(t, err)
		b, err := twice.Query(q)
		require.NoError(t, err)
		assert.Equal(t, a, b, "query %q", q)
	}
	assert.Equal(t, once.Stats().Terms, twice.Stats().Terms)
	assert.Equal(t, uint64(2), twice.Generation())
}

func TestANDSemantics(t *testing.T) {
	s := loaded(t, brgc, subtuples, eikonalSection)

	got, err := s.Query("eikonal list")
	require.NoError(t, err)
	assert.ElementsMatch(t, []docs.Record{brgc, subtuples}, got)

	got, err = s.Query("gray tuples")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Query("nonexistent")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestWholeWordMatching(t *testing.T) {
	s := loaded(t, brgc, subtuples)

	got, err := s.Query("tupl")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Query("subtuples")
	require.NoError(t, err)
	assert.Equal(t, []docs.Record{subtuples}, got)
}

func TestDeterministicRanking(t *testing.T) {
	s := loaded(t, fixtureRecords(t)...)

	first, err := s.Query("eikonal")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := s.Query("eikonal")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRankingOrder(t *testing.T) {
	one := docs.Record{Page: "p", Title: "one", Text: "gray", Category: "c"}
	three := docs.Record{Page: "p", Title: "three", Text: "gray gray gray", Category: "c"}
	tieA := docs.Record{Page: "p", Title: "tieA", Text: "gray gray", Category: "c"}
	tieB := docs.Record{Page: "p", Title: "tieB", Text: "gray gray", Category: "c"}
	s := loaded(t, one, tieA, three, tieB)

	res, err := s.Search("gray")
	require.NoError(t, err)
	require.Len(t, res.Hits, 4)
	assert.Equal(t, []int{3, 2, 2, 1}, []int{res.Hits[0].Score, res.Hits[1].Score, res.Hits[2].Score, res.Hits[3].Score})
	assert.Equal(t, []string{"three", "tieA", "tieB", "one"},
		[]string{res.Hits[0].Title, res.Hits[1].Title, res.Hits[2].Title, res.Hits[3].Title})
}

func TestLimit(t *testing.T) {
	a := docs.Record{Page: "p", Title: "a", Text: "gray", Category: "c"}
	b := docs.Record{Page: "p", Title: "b", Text: "gray gray", Category: "c"}
	c := docs.Record{Page: "p", Title: "c", Text: "gray gray", Category: "c"}
	s := loaded(t, a, b, c)

	got, err := s.Query("gray", WithLimit(1))
	require.NoError(t, err)
	assert.Equal(t, []docs.Record{b}, got)

	res, err := s.Search("gray", WithLimit(2))
	require.NoError(t, err)
	assert.Len(t, res.Hits, 2)
	assert.Equal(t, 3, res.TotalHits)

	for _, bad := range []int{0, -1} {
		_, err := s.Query("gray", WithLimit(bad))
		assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
	}
}

func TestCategoryFilter(t *testing.T) {
	s := loaded(t, fixtureRecords(t)...)

	got, err := s.Query("eikonal", WithCategory("METHOD"))
	require.NoError(t, err)
	assert.Equal(t, []docs.Record{brgc, subtuples}, got)

	got, err = s.Query("eikonal", WithCategory("section"))
	require.NoError(t, err)
	assert.Equal(t, []docs.Record{eikonalSection}, got)

	got, err = s.Query("eikonal", WithCategory("macro"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmptyState(t *testing.T) {
	s := New()
	assert.Equal(t, StateEmpty, s.State())
	assert.Equal(t, "empty", s.Stats().State)

	got, err := s.Query("anything")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.Query(" ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)

	require.NoError(t, s.Load(nil))
	assert.Equal(t, StateReady, s.State())
}

func TestFailedLoadKeepsPreviousIndex(t *testing.T) {
	s := loaded(t, brgc, subtuples)

	bad := []docs.Record{eikonalSection, {Page: "p", Title: "", Category: "c"}}
	err := s.Load(bad)
	var mre *apperrors.MalformedRecordError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, 1, mre.Position)
	assert.Equal(t, "title", mre.Field)

	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, uint64(1), s.Generation())
	got, err := s.Query("tuples")
	require.NoError(t, err)
	assert.Equal(t, []docs.Record{subtuples}, got)

	empty := New()
	require.Error(t, empty.Load(bad))
	assert.Equal(t, StateEmpty, empty.State())
}

func TestLoadReplacesWholesale(t *testing.T) {
	s := loaded(t, brgc)
	require.NoError(t, s.Load([]docs.Record{subtuples}))

	got, err := s.Query("gray")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []docs.Record{subtuples}, s.Records())
}

func TestSeparatorOnlyQuery(t *testing.T) {
	s := loaded(t, brgc)
	got, err := s.Query("(!)")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStats(t *testing.T) {
	s := loaded(t, fixtureRecords(t)...)
	st := s.Stats()
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, 7, st.Records)
	assert.Equal(t, map[string]int{"page": 4, "section": 1, "method": 2}, st.Categories)
	assert.NotNil(t, st.LoadedAt)
	assert.NotEmpty(t, st.TopTerms)
}

func TestConcurrentQueriesDuringReload(t *testing.T) {
	small := []docs.Record{brgc}
	large := make([]docs.Record, 0, 200)
	for i := 0; i < 200; i++ {
		large = append(large, docs.Record{Page: "p", Title: fmt.Sprintf("gray %d", i), Category: "c"})
	}
	s := loaded(t, small...)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, err := s.Query("gray")
				if err != nil {
					t.Error(err)
					return
				}
				// either the whole small index or the whole large one
				if len(got) != 1 && len(got) != 200 {
					t.Errorf("observed partial index with %d hits", len(got))
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			require.NoError(t, s.Load(large))
		} else {
			require.NoError(t, s.Load(small))
		}
	}
	close(stop)
	wg.Wait()
}
