package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/ragcore/internal/assembler"
	"github.com/connexus-ai/ragcore/internal/bm25"
	"github.com/connexus-ai/ragcore/internal/cache"
	"github.com/connexus-ai/ragcore/internal/classifier"
	"github.com/connexus-ai/ragcore/internal/config"
	"github.com/connexus-ai/ragcore/internal/engine"
	"github.com/connexus-ai/ragcore/internal/enhancer"
	"github.com/connexus-ai/ragcore/internal/llm/vertexai"
	"github.com/connexus-ai/ragcore/internal/middleware"
	"github.com/connexus-ai/ragcore/internal/reranker"
	"github.com/connexus-ai/ragcore/internal/retriever"
	"github.com/connexus-ai/ragcore/internal/router"
	"github.com/connexus-ai/ragcore/internal/store/neo4jgraph"
	"github.com/connexus-ai/ragcore/internal/store/pgvectorstore"
	"github.com/connexus-ai/ragcore/internal/verifier"
)

// Version is the server's reported build version.
const Version = "0.1.0"

// dbPinger adapts *pgxpool.Pool to handler.DBPinger.
type dbPinger struct{ pool *pgxpool.Pool }

func (d dbPinger) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("main: connect postgres: %w", err)
	}
	defer pool.Close()

	vecStore := pgvectorstore.New(pool)

	var graphStore retriever.GraphStore
	if cfg.Neo4jURI != "" {
		driver, err := neo4jgraph.NewDriver(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return fmt.Errorf("main: neo4j: %w", err)
		}
		defer driver.Close(ctx)
		if err := driver.VerifyConnectivity(ctx); err != nil {
			slog.Warn("[MAIN] neo4j connectivity check failed, continuing without graph retrieval", "error", err)
		} else {
			graphStore = neo4jgraph.New(driver, "")
		}
	}

	embedder, err := vertexai.NewEmbeddingClient(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	if err != nil {
		return fmt.Errorf("main: embedding client: %w", err)
	}
	chat, err := vertexai.NewChatClient(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return fmt.Errorf("main: chat client: %w", err)
	}

	bm25Opts := bm25.DefaultOptions()
	bm25Opts.K1 = cfg.BM25K1
	bm25Opts.B = cfg.BM25B
	bm25Opts.MinDocFreq = cfg.BM25MinDocFreq
	bm25Opts.MaxDocFreqRatio = cfg.BM25MaxDocFreqRatio
	bm25Index := bm25.New(bm25Opts)
	if err := buildSparseIndex(ctx, bm25Index, vecStore); err != nil {
		slog.Warn("[MAIN] bm25 index build failed, sparse retrieval will report INDEX_NOT_BUILT", "error", err)
	}

	dense := retriever.NewDense(embedder, vecStore)
	sparse := retriever.NewSparse(bm25Index, vecStore)
	hybrid := retriever.NewHybrid(dense, sparse, graphStore)

	clfOpts := classifier.DefaultOptions()
	clfOpts.SimpleMaxWords = cfg.ClassifierSimpleMaxWords
	clfOpts.ComplexMinWords = cfg.ClassifierComplexMinWords
	clf := classifier.New(clfOpts)
	enh := enhancer.NewLLM(chat)
	rrk := reranker.NewLLM(chat)
	vfyOpts := verifier.DefaultOptions()
	vfyOpts.SkipThreshold = cfg.VerifierSkipThreshold
	vfyOpts.FilterThreshold = cfg.VerifierFilterThreshold
	vfyOpts.Concurrency = cfg.VerifierConcurrency
	vfy := verifier.New(chat, vfyOpts)
	asmOpts := assembler.DefaultOptions()
	asmOpts.SimilarityThreshold = cfg.AssemblerSimilarityThreshold
	asmOpts.ContextWindow = cfg.AssemblerContextWindow
	asmOpts.BudgetPercentage = cfg.AssemblerBudgetPercentage
	asmOpts.CharsPerToken = cfg.AssemblerCharsPerToken
	asmOpts.OverheadTokens = cfg.AssemblerOverheadTokens
	asm := assembler.New(asmOpts)

	var resultCache cache.Cache
	if cfg.CacheEnabled {
		if cfg.RedisAddr != "" {
			resultCache = cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, Prefix: "ragcore"})
		} else {
			resultCache = cache.NewLRU(cfg.CacheMaxSize)
		}
	}

	eng := engine.New(engine.Deps{
		Classifier:               clf,
		Enhancer:                 enh,
		Retriever:                hybrid,
		Reranker:                 rrk,
		Verifier:                 vfy,
		Assembler:                asm,
		Cache:                    resultCache,
		ConfigVersion:            Version,
		DegradeVerifierOnFailure: true,
		SilenceThreshold:         cfg.SilenceThreshold,
		DefaultOptions: engine.Options{
			TopK:                  cfg.RetrieverTopK,
			MinScore:              cfg.RetrieverMinScore,
			CacheTTL:              cfg.CacheTTL,
			EnableSilenceProtocol: cfg.SilenceEnabled,
		},
	})

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 60, Window: time.Minute})
	defer rateLimiter.Stop()

	r := router.New(&router.Dependencies{
		DB:          dbPinger{pool: pool},
		Searcher:    eng,
		Version:     Version,
		Metrics:     metrics,
		MetricsReg:  reg,
		RateLimiter: rateLimiter,
		FrontendURL: cfg.FrontendURL,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("ragcore v%s starting on port %d", Version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down gracefully", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

// buildSparseIndex seeds the BM25 index from whatever chunks already
// live in the vector store. This package owns storage and retrieval,
// not corpus ingestion, so there is no hook here for chunks added
// after startup; InvalidateForDocument busts the query cache for a
// changed document but does not rebuild the sparse index.
func buildSparseIndex(ctx context.Context, idx *bm25.Index, store *pgvectorstore.Store) error {
	chunks, err := store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("buildSparseIndex: %w", err)
	}
	docs := make([]bm25.InputDoc, len(chunks))
	for i, c := range chunks {
		docs[i] = bm25.InputDoc{ID: c.ID, Content: c.Content}
	}
	return idx.Build(docs)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
