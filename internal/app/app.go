package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akbarharyadi/coding-test-3rd/features/document"
	"github.com/akbarharyadi/coding-test-3rd/features/fund"
	"github.com/akbarharyadi/coding-test-3rd/features/job"
	"github.com/akbarharyadi/coding-test-3rd/features/mcp"
	"github.com/akbarharyadi/coding-test-3rd/features/search"
	"github.com/akbarharyadi/coding-test-3rd/features/stats"
	"github.com/akbarharyadi/coding-test-3rd/internal/adapter/docling"
	"github.com/akbarharyadi/coding-test-3rd/internal/adapter/reranker"
	"github.com/akbarharyadi/coding-test-3rd/internal/cache"
	"github.com/akbarharyadi/coding-test-3rd/internal/config"
	"github.com/akbarharyadi/coding-test-3rd/internal/extract"
	"github.com/akbarharyadi/coding-test-3rd/internal/index"
	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
	"github.com/akbarharyadi/coding-test-3rd/internal/retrieval"
	"github.com/akbarharyadi/coding-test-3rd/internal/vector"
	"github.com/akbarharyadi/coding-test-3rd/internal/worker"
)

const searchCacheEntries = 1024

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler   http.Handler
	Documents *document.Service
	Search    *retrieval.Service
	Consumer  *worker.DocumentConsumer
	// Index is nil when the approximate index is disabled.
	Index *index.Manager

	port        int
	queryLogger *retrieval.QueryLogger
}

func New(cfg *config.Config, db *sql.DB, pub EventPublisher, embedder worker.Embedder) (*App, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}

	fundRepo := fund.NewPostgresRepo(db)
	docRepo := document.NewPostgresRepo(db)
	jobRepo := job.NewPostgresRepo(db)
	store := vector.NewStore(db)

	var (
		mgr         *index.Manager
		approx      retrieval.ApproxIndex
		indexWriter worker.IndexAppender
		indexCount  stats.IndexCounter
	)
	if cfg.ApproxIndexEnabled {
		mgr = index.NewManager(cfg.VectorStorePath, cfg.EmbeddingDimension(), store)
		approx, indexWriter, indexCount = mgr, mgr, mgr
	}

	var structured extract.Extractor
	if cfg.DoclingEnabled && cfg.DoclingURL != "" {
		structured = extract.NewStructured(docling.NewClient(cfg.DoclingURL))
	}
	processor := worker.NewProcessor(worker.Deps{
		Extractor:    extract.NewChain(structured, extract.NewGeometry()),
		Transactions: fundRepo,
		Funds:        fundRepo,
		Names:        docRepo,
		Embedder:     embedder,
		Chunks:       store,
		Index:        indexWriter,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	consumer := worker.NewDocumentConsumer(processor, docRepo, jobRepo)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	preferred, err := retrieval.ParseBackend(cfg.SearchBackend)
	if err != nil {
		return nil, fmt.Errorf("SEARCH_BACKEND: %w", err)
	}
	searchOpts := []retrieval.Option{
		retrieval.WithCache(cache.NewMemory(searchCacheEntries), cfg.SearchCacheTTL),
		retrieval.WithQueryLogger(queryLogger),
		retrieval.WithPreferredBackend(preferred),
	}
	if rr := reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey); rr.Enabled() {
		searchOpts = append(searchOpts, retrieval.WithReranker(rr))
	}
	searchService := retrieval.NewService(embedder, store, approx, newCatalog(db), searchOpts...)

	docService := document.NewService(docRepo, fundRepo, pub)
	jobService := job.NewService(jobRepo, pub, slog.Default())

	fundHandler := fund.NewHandler(fundRepo)
	docHandler := document.NewHandler(docService, cfg.UploadDir, cfg.MaxUploadSizeMB<<20)
	jobHandler := job.NewHandler(jobService)
	searchHandler := search.NewHandler(searchService)
	mcpHandler := mcp.NewHandler(searchService, fundRepo, docService)
	statsHandler := stats.NewHandler(fundRepo, docRepo, store, jobRepo, indexCount)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}
	route := func(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.CorrelationID(enableCORS(h)))
	}

	mux := http.NewServeMux()
	route(mux, "POST /funds", fundHandler.Create)
	route(mux, "GET /funds", fundHandler.List)
	route(mux, "GET /funds/{id}", fundHandler.Get)
	route(mux, "GET /funds/{id}/transactions", fundHandler.Transactions)

	route(mux, "POST /documents/upload", docHandler.Upload)
	route(mux, "GET /documents", docHandler.List)
	route(mux, "GET /documents/{id}", docHandler.Get)

	route(mux, "POST /search", searchHandler.Search)
	route(mux, "GET /search/stats", searchHandler.Stats)
	route(mux, "POST /index/rebuild", searchHandler.Rebuild)

	route(mux, "POST /mcp", mcpHandler.ServeHTTP)
	route(mux, "GET /mcp/sse", mcpHandler.HandleSSE)
	route(mux, "POST /mcp/messages", mcpHandler.HandleMessage)

	route(mux, "GET /jobs/failed", jobHandler.List)
	route(mux, "GET /jobs/{id}", jobHandler.Get)
	route(mux, "POST /jobs/{id}/retry", jobHandler.Retry)
	route(mux, "DELETE /jobs/{id}", jobHandler.Dismiss)

	route(mux, "GET /stats", statsHandler.GetStats)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:     mux,
		Documents:   docService,
		Search:      searchService,
		Consumer:    consumer,
		Index:       mgr,
		port:        cfg.ServerPort,
		queryLogger: queryLogger,
	}, nil
}

// StartConsumer subscribes the document worker to the processing topic.
func (a *App) StartConsumer(cfg *config.Config) (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	concurrency := cfg.ProcessingConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	nsqCfg.MaxInFlight = concurrency
	// Processing a large report can outlast the default message timeout.
	nsqCfg.MsgTimeout = 10 * time.Minute

	consumer, err := nsq.NewConsumer(config.TopicDocumentProcess, config.ChannelDocumentWorker, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddConcurrentHandlers(a.Consumer, concurrency)
	if cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("connect consumer: %w", err)
	}
	slog.Info("document consumer connected", "topic", config.TopicDocumentProcess, "concurrency", concurrency)
	return consumer, nil
}

func (a *App) Run(ctx context.Context) error {
	port := a.port
	if port == 0 {
		port = 8081
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	defer func() {
		if err := a.queryLogger.Close(); err != nil {
			slog.Warn("failed to close query log", "error", err)
		}
	}()

	slog.Info("server starting", "port", port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// catalog joins document and fund names for search enrichment.
type catalog struct {
	docs  *document.PostgresRepo
	funds *fund.PostgresRepo
}

func newCatalog(db *sql.DB) catalog {
	return catalog{docs: document.NewPostgresRepo(db), funds: fund.NewPostgresRepo(db)}
}

func (c catalog) DocumentNames(ctx context.Context, documentID int64) (string, string, error) {
	return c.docs.DocumentNames(ctx, documentID)
}

func (c catalog) FundNames(ctx context.Context, fundID int64) (string, string, error) {
	return c.funds.FundNames(ctx, fundID)
}
