// Package bm25 implements the sparse BM25 index: build from a document
// collection, then score queries against the frozen index. Scoring is
// an in-process Okapi BM25 implementation backed by an arena-style
// parallel-array postings list.
package bm25

import (
	"fmt"
	"math"
	"sort"

	"github.com/connexus-ai/ragcore/internal/ragerr"
	"github.com/connexus-ai/ragcore/internal/tokenizer"
)

const (
	// DefaultK1 controls term-frequency saturation.
	DefaultK1 = 1.2
	// DefaultB controls document-length normalization.
	DefaultB = 0.75
	// DefaultMinDocFreq excludes no terms by default.
	DefaultMinDocFreq = 1
	// DefaultMaxDocFreqRatio excludes no terms by default.
	DefaultMaxDocFreqRatio = 1.0
)

// InputDoc is a document id paired with its raw content, the unit Build
// consumes.
type InputDoc struct {
	ID      string
	Content string
}

// Options configures index construction and query scoring.
type Options struct {
	K1              float64
	B               float64
	MinDocFreq      int
	MaxDocFreqRatio float64
	Tokenizer       tokenizer.Tokenizer
}

// DefaultOptions returns the standard Okapi BM25 tuning (k1=1.2, b=0.75).
func DefaultOptions() Options {
	return Options{
		K1:              DefaultK1,
		B:               DefaultB,
		MinDocFreq:      DefaultMinDocFreq,
		MaxDocFreqRatio: DefaultMaxDocFreqRatio,
		Tokenizer:       tokenizer.Default,
	}
}

// posting is the per-document term-frequency record for one indexed
// term, addressed by a small integer term id rather than the term
// string — cache-friendlier scoring and a read-only invariant that is
// cheap to enforce once Build returns.
type posting struct {
	docIdx int
	tf     int
}

// Index is a read-only, built-once BM25 index. Concurrent Query calls
// require no locking: nothing mutates after Build returns.
type Index struct {
	opts Options

	docIDs    []string       // docIdx -> doc id
	docLen    []int          // docIdx -> token count
	avgDocLen float64

	termID   map[string]int // term -> term id
	postings [][]posting    // term id -> postings list
	df       []int          // term id -> document frequency
	idf      []float64      // term id -> idf

	n     int // number of documents
	built bool
}

// New constructs an empty, unbuilt index with the given options. Pass
// bm25.Options{} for the documented defaults plus a nil Tokenizer; New
// fills in any zero fields.
func New(opts Options) *Index {
	if opts.K1 == 0 {
		opts.K1 = DefaultK1
	}
	if opts.B == 0 {
		opts.B = DefaultB
	}
	if opts.MinDocFreq == 0 {
		opts.MinDocFreq = DefaultMinDocFreq
	}
	if opts.MaxDocFreqRatio == 0 {
		opts.MaxDocFreqRatio = DefaultMaxDocFreqRatio
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = tokenizer.Default
	}
	return &Index{opts: opts, termID: make(map[string]int)}
}

// Build indexes docs, replacing any prior state. It is idempotent on
// the same input (calling it twice with the same docs produces the same
// index) and rejects duplicate ids with CONFIG_ERROR.
func (idx *Index) Build(docs []InputDoc) error {
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			return ragerr.New("bm25.Index", ragerr.CodeConfigError, "build",
				fmt.Errorf("duplicate document id %q", d.ID))
		}
		seen[d.ID] = struct{}{}
	}

	n := len(docs)
	docIDs := make([]string, n)
	docLen := make([]int, n)
	docTermFreqs := make([]map[string]int, n)

	termID := make(map[string]int)
	df := []int{}
	postings := [][]posting{}

	var totalLen int
	for i, d := range docs {
		toks := idx.opts.Tokenizer(d.Content)
		tf := tokenizer.TermFrequencies(toks)
		docIDs[i] = d.ID
		docLen[i] = len(toks)
		docTermFreqs[i] = tf
		totalLen += len(toks)

		for term := range tf {
			id, ok := termID[term]
			if !ok {
				id = len(postings)
				termID[term] = id
				postings = append(postings, nil)
				df = append(df, 0)
			}
			df[id]++
		}
	}

	var avgDocLen float64
	if n > 0 {
		avgDocLen = float64(totalLen) / float64(n)
	}

	// Apply minDocFreq / maxDocFreqRatio filters, then build postings
	// only for surviving terms.
	keep := make([]bool, len(postings))
	for id := range postings {
		ratio := 0.0
		if n > 0 {
			ratio = float64(df[id]) / float64(n)
		}
		keep[id] = df[id] >= idx.opts.MinDocFreq && ratio <= idx.opts.MaxDocFreqRatio
	}

	for i, tf := range docTermFreqs {
		for term, count := range tf {
			id := termID[term]
			if !keep[id] {
				continue
			}
			postings[id] = append(postings[id], posting{docIdx: i, tf: count})
		}
	}

	idf := make([]float64, len(postings))
	for id := range postings {
		if !keep[id] {
			continue
		}
		idf[id] = computeIDF(n, df[id])
	}

	idx.docIDs = docIDs
	idx.docLen = docLen
	idx.avgDocLen = avgDocLen
	idx.termID = termID
	idx.postings = postings
	idx.df = df
	idx.idf = idf
	idx.n = n
	idx.built = true
	return nil
}

func computeIDF(n, df int) float64 {
	v := math.Log((float64(n-df)+0.5)/(float64(df)+0.5) + 1)
	if v < 0 {
		return 0
	}
	return v
}

// N returns the number of indexed documents.
func (idx *Index) N() int { return idx.n }

// AvgDocLen returns the mean document token length.
func (idx *Index) AvgDocLen() float64 { return idx.avgDocLen }

// Retrieve scores the query against every indexed document containing
// at least one query term and returns the top-K by score, ties broken
// by insertion (build) order. An empty query (after tokenization) is
// not an error: it returns an empty slice. Calling Retrieve before
// Build fails with CodeIndexNotBuilt.
func (idx *Index) Retrieve(query string, topK int) ([]Result, error) {
	if !idx.built {
		return nil, ragerr.New("bm25.Index", ragerr.CodeIndexNotBuilt, "retrieve", fmt.Errorf("query before build"))
	}

	qTokens := idx.opts.Tokenizer(query)
	if len(qTokens) == 0 {
		return []Result{}, nil
	}

	scores := make([]float64, idx.n)
	touched := make([]bool, idx.n)

	seenTerms := make(map[string]struct{}, len(qTokens))
	for _, term := range qTokens {
		if _, dup := seenTerms[term]; dup {
			continue
		}
		seenTerms[term] = struct{}{}

		id, ok := idx.termID[term]
		if !ok || len(idx.postings[id]) == 0 {
			continue
		}
		termIDF := idx.idf[id]
		for _, p := range idx.postings[id] {
			tf := float64(p.tf)
			dl := float64(idx.docLen[p.docIdx])
			denom := tf + idx.opts.K1*(1-idx.opts.B+idx.opts.B*dl/idx.safeAvgDocLen())
			score := termIDF * (tf * (idx.opts.K1 + 1)) / denom
			scores[p.docIdx] += score
			touched[p.docIdx] = true
		}
	}

	results := make([]Result, 0, idx.n)
	for i := 0; i < idx.n; i++ {
		if !touched[i] {
			continue
		}
		results = append(results, Result{ID: idx.docIDs[i], Score: scores[i], docIdx: i})
	}

	// Stable sort by score descending preserves insertion-order ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (idx *Index) safeAvgDocLen() float64 {
	if idx.avgDocLen == 0 {
		return 1
	}
	return idx.avgDocLen
}

// Result is a single scored document from Retrieve.
type Result struct {
	ID     string
	Score  float64
	docIdx int
}
