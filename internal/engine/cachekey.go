package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
)

// cacheKeyFields is only the subset of Options that affects output:
// UseCache/CacheTTL themselves don't change the result and are
// deliberately excluded.
type cacheKeyFields struct {
	Query        string
	ConfigVer    string
	Epoch        int64
	TopK         int
	MinScore     float64
	Filter       map[string]any
	Enhance      bool
	Rerank       bool
	Verify       bool
	Ordering     string
	MaxTokens    int
	ForceRetr    bool
	OverrideType string
	Silence      bool
}

// cacheKey hashes the effective config version, normalized query and
// output-affecting options into a single deterministic string (sha256
// over the JSON-encoded fields).
func cacheKey(configVersion string, epoch int64, query string, opts Options) string {
	fields := cacheKeyFields{
		Query:        normalizeQuery(query),
		ConfigVer:    configVersion,
		Epoch:        epoch,
		TopK:         opts.TopK,
		MinScore:     opts.MinScore,
		Filter:       opts.Filter,
		Enhance:      opts.Enhance,
		Rerank:       opts.Rerank,
		Verify:       opts.Verify,
		Ordering:     string(opts.Ordering),
		MaxTokens:    opts.MaxTokens,
		ForceRetr:    opts.ForceRetrieval,
		OverrideType: string(opts.OverrideType),
		Silence:      opts.EnableSilenceProtocol,
	}

	// json.Marshal on a concrete struct with sorted map keys (Go's
	// encoding/json sorts map[string]any keys) is deterministic.
	raw, err := json.Marshal(fields)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", fields))
	}

	h := sha256.Sum256(raw)
	return fmt.Sprintf("ragcore:search:%x", h)
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
