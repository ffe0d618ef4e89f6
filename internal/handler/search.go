package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/connexus-ai/ragcore/internal/assembler"
	"github.com/connexus-ai/ragcore/internal/engine"
	"github.com/connexus-ai/ragcore/internal/model"
	"github.com/connexus-ai/ragcore/internal/ragerr"
)

// Searcher is the subset of engine.Engine the handler depends on.
type Searcher interface {
	Search(ctx context.Context, query string, opts engine.Options) (*engine.Result, error)
}

// searchRequest is the wire shape of POST /v1/search.
type searchRequest struct {
	Query          string         `json:"query"`
	TopK           int            `json:"topK"`
	MinScore       float64        `json:"minScore"`
	Filter         map[string]any `json:"filter"`
	Enhance        *bool          `json:"enhance"`
	Rerank         *bool          `json:"rerank"`
	Verify         *bool          `json:"verify"`
	UseCache       *bool          `json:"useCache"`
	CacheTTLMs     int64          `json:"cacheTtlMs"`
	Ordering       string         `json:"ordering"`
	MaxTokens      int            `json:"maxTokens"`
	ForceRetrieval bool           `json:"forceRetrieval"`
	OverrideType   string         `json:"overrideType"`
}

// searchResponse is the wire shape of a successful search result.
type searchResponse struct {
	Content         string            `json:"content"`
	EstimatedTokens int               `json:"estimatedTokens"`
	Sources         []model.SourceRef `json:"sources"`
	Metadata        engine.Metadata   `json:"metadata"`
	Refused         bool              `json:"refused,omitempty"`
	RefusalReason   string            `json:"refusalReason,omitempty"`
}

// Search returns a handler for POST /v1/search, running the full
// classify→enhance→retrieve→rerank→verify→assemble pipeline.
func Search(eng Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		opts := engine.Options{
			TopK:           req.TopK,
			MinScore:       req.MinScore,
			Filter:         req.Filter,
			Enhance:        boolOr(req.Enhance, true),
			Rerank:         boolOr(req.Rerank, true),
			Verify:         boolOr(req.Verify, false),
			UseCache:       boolOr(req.UseCache, true),
			CacheTTL:       time.Duration(req.CacheTTLMs) * time.Millisecond,
			Ordering:       assembler.Ordering(req.Ordering),
			MaxTokens:      req.MaxTokens,
			ForceRetrieval: req.ForceRetrieval,
			OverrideType:   model.QueryType(req.OverrideType),
		}

		result, err := eng.Search(r.Context(), req.Query, opts)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(searchResponse{
			Content:         result.Content,
			EstimatedTokens: result.EstimatedTokens,
			Sources:         result.Sources,
			Metadata:        result.Metadata,
			Refused:         result.Refused,
			RefusalReason:   result.RefusalReason,
		})
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func writeEngineError(w http.ResponseWriter, err error) {
	code, ok := ragerr.CodeOf(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch code {
	case ragerr.CodeInvalidQuery:
		status = http.StatusBadRequest
	case ragerr.CodeAborted:
		status = http.StatusRequestTimeout
	case ragerr.CodeConfigError:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": string(code),
		"message": err.Error(),
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
