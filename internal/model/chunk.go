// Package model holds the data types shared across every stage of the
// retrieval pipeline: chunks, ranked items, fused results, classification
// and the assembled context. Values here are treated as immutable once
// constructed — nothing downstream mutates a Chunk's fields in place.
package model

// Chunk is an immutable retrieved unit of text plus its provenance
// metadata. Producers (chunkers, out of scope here) build these; the
// pipeline only ever reads them.
type Chunk struct {
	ID         string
	Content    string
	Metadata   map[string]any
	DocumentID string
}

// Recognized metadata keys. Any of these may be absent; absence is not
// an error anywhere in the pipeline.
const (
	MetaSource     = "source"
	MetaDocumentID = "documentId"
	MetaStartIndex = "startIndex"
	MetaEndIndex   = "endIndex"
	MetaPageNumber = "pageNumber"
	MetaSection    = "section"
)

// Document is the input to chunking. Producers are out of scope; the
// type is carried so adapters (e.g. pgvectorstore) can round-trip it.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
	Source   string
}

// DefaultGraphNodeIDKey is the default metadata key linking a Chunk to an
// external knowledge-graph node. retriever.HybridOptions.GraphNodeIDKey
// overrides it, because corpora built by different chunkers may name
// this field differently.
const DefaultGraphNodeIDKey = "graphNodeId"

// StringMeta returns chunk.Metadata[key] as a string, or "" if absent or
// not a string.
func (c Chunk) StringMeta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	v, ok := c.Metadata[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// IntMeta returns chunk.Metadata[key] as an int, or (0, false) if absent
// or not numeric. Accepts int and float64 (the common JSON-decoded shape).
func (c Chunk) IntMeta(key string) (int, bool) {
	if c.Metadata == nil {
		return 0, false
	}
	v, ok := c.Metadata[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
