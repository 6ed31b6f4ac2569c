package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", []string{}},
		{"Eikonal", []string{"eikonal"}},
		{"Eikonal.brgc", []string{"eikonal", "brgc"}},
		{"all sub-tuples obtained", []string{"all", "sub", "tuples", "obtained"}},
		{"subtuples(t::NTuple{N, T}) where {N, T}", []string{"subtuples", "t", "ntuple", "n", "t", "where", "n", "t"}},
		{"CurrentModule = Eikonal", []string{"currentmodule", "eikonal"}},
		{"Größe ÜBER", []string{"größe", "über"}},
		{"n bits\n\n\n", []string{"n", "bits"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Terms(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, append([]string{}, got...))
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens := Tokenize("Binary-Reflected Gray Code")
	assert.Equal(t, []Token{
		{Term: "binary", Position: 0},
		{Term: "reflected", Position: 1},
		{Term: "gray", Position: 2},
		{Term: "code", Position: 3},
	}, tokens)
}

func TestFrequencies(t *testing.T) {
	freqs := Frequencies("Eikonal.subtuples", "subtuples(t) sub-tuples", "method")
	assert.Equal(t, map[string]int{
		"eikonal":   1,
		"subtuples": 2,
		"t":         1,
		"sub":       1,
		"tuples":    1,
		"method":    1,
	}, freqs)
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"tuples", "sub"}, Unique("Tuples tuples SUB tuples"))
	assert.Empty(t, Unique("!!!"))
}

func TestNormalizeConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := fmt.Sprintf("Word%d ÄBC", i)
			assert.Equal(t, strings.ToLower(in), Normalize(in))
		}(i)
	}
	wg.Wait()
}

func BenchmarkTerms(b *testing.B) {
	text := strings.Repeat("subtuples(t::NTuple{N, T}) where {N, T} Generate the list of all sub-tuples. ", 20)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Terms(text)
	}
}
