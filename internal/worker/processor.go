package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akbarharyadi/coding-test-3rd/internal/cleaner"
	"github.com/akbarharyadi/coding-test-3rd/internal/extract"
	"github.com/akbarharyadi/coding-test-3rd/internal/metrics"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
	"github.com/akbarharyadi/coding-test-3rd/internal/text"
	"github.com/akbarharyadi/coding-test-3rd/internal/vector"
)

const (
	embedConcurrency = 4
	embedTimeout     = 60 * time.Second
)

// Result summarises one processing run.
type Result struct {
	Status          string                   `json:"status"`
	DocumentID      int64                    `json:"document_id"`
	FundID          int64                    `json:"fund_id"`
	TablesExtracted map[tables.TableType]int `json:"tables_extracted,omitempty"`
	TextChunks      int                      `json:"text_chunks"`
	ParserEngine    string                   `json:"parser_engine,omitempty"`
	Error           string                   `json:"error,omitempty"`
}

type Deps struct {
	Extractor    Extractor
	Transactions TransactionWriter
	Funds        FundUpdater
	Names        DocumentNamer
	Embedder     Embedder
	Chunks       ChunkStore
	Index        IndexAppender
	ChunkSize    int
	ChunkOverlap int
}

type Processor struct {
	extractor    Extractor
	parser       *tables.Parser
	cleaner      *cleaner.Cleaner
	transactions TransactionWriter
	funds        FundUpdater
	names        DocumentNamer
	embedder     Embedder
	chunks       ChunkStore
	index        IndexAppender
	chunkSize    int
	chunkOverlap int
	fundLocks    *keyedMutex
}

func NewProcessor(d Deps) *Processor {
	return &Processor{
		extractor:    d.Extractor,
		parser:       tables.NewParser(),
		cleaner:      cleaner.New(),
		transactions: d.Transactions,
		funds:        d.Funds,
		names:        d.Names,
		embedder:     d.Embedder,
		chunks:       d.Chunks,
		index:        d.Index,
		chunkSize:    d.ChunkSize,
		chunkOverlap: d.ChunkOverlap,
		fundLocks:    newKeyedMutex(),
	}
}

func failed(documentID, fundID int64, msg string) Result {
	return Result{Status: StatusFailed, DocumentID: documentID, FundID: fundID, Error: msg}
}

// Process runs extraction, parsing, cleaning, persistence, chunking and
// embedding for one document. Runs for the same fund are serialized.
func (p *Processor) Process(ctx context.Context, documentID, fundID int64, path string) Result {
	if _, err := os.Stat(path); err != nil {
		slog.ErrorContext(ctx, "document file missing", "document_id", documentID, "path", path, "error", err)
		return failed(documentID, fundID, "File not found: "+path)
	}

	unlock := p.fundLocks.Lock(fundID)
	defer unlock()

	out, err := p.extractor.Extract(ctx, path)
	if err != nil {
		slog.ErrorContext(ctx, "all extraction backends failed", "document_id", documentID, "error", err)
		return failed(documentID, fundID, fmt.Sprintf("Document parsing failed: %v", err))
	}

	parsed, err := p.parser.ParseAll(ctx, out.Tables)
	if err != nil {
		return failed(documentID, fundID, err.Error())
	}
	slog.InfoContext(ctx, "parsed table candidates", "document_id", documentID, "candidates", len(out.Tables), "parsed", len(parsed))

	cleaned := p.cleaner.Clean(ctx, tables.Group(parsed))
	for tt, issues := range cleaned.Issues {
		metrics.RowsRejected.WithLabelValues(string(tt)).Add(float64(len(issues)))
		for _, issue := range issues {
			slog.DebugContext(ctx, "validation issue", "document_id", documentID, "table_type", tt, "issue", issue)
		}
	}

	if err := p.transactions.ReplaceTransactions(ctx, fundID, cleaned.Records); err != nil {
		slog.ErrorContext(ctx, "failed to persist transactions", "fund_id", fundID, "error", err)
		return failed(documentID, fundID, err.Error())
	}
	counts := cleaned.Records.Counts()
	for tt, n := range counts {
		metrics.RecordsPersisted.WithLabelValues(string(tt)).Add(float64(n))
	}

	p.fillFundHeader(ctx, fundID, out)

	segments := make([]text.Segment, len(out.Segments))
	for i, seg := range out.Segments {
		seg.DocumentID, seg.FundID = documentID, fundID
		segments[i] = seg
	}
	chunks, err := text.ChunkSegments(segments, p.chunkSize, p.chunkOverlap)
	if err != nil {
		return failed(documentID, fundID, err.Error())
	}

	if err := p.storeChunks(ctx, documentID, fundID, chunks); err != nil {
		slog.ErrorContext(ctx, "failed to store chunks", "document_id", documentID, "error", err)
		return failed(documentID, fundID, err.Error())
	}

	slog.InfoContext(ctx, "document processed",
		"document_id", documentID,
		"fund_id", fundID,
		"tables", counts,
		"chunks", len(chunks),
		"engine", out.Engine,
	)
	return Result{
		Status:          StatusCompleted,
		DocumentID:      documentID,
		FundID:          fundID,
		TablesExtracted: counts,
		TextChunks:      len(chunks),
		ParserEngine:    out.Engine,
	}
}

func (p *Processor) fillFundHeader(ctx context.Context, fundID int64, out extract.Output) {
	if p.funds == nil {
		return
	}
	info := extract.FundInfoFromSegments(out.Segments).Merge(extract.FundInfoFromTables(out.Tables))
	if info.IsZero() {
		return
	}
	if err := p.funds.FillHeader(ctx, fundID, info); err != nil {
		slog.WarnContext(ctx, "failed to update fund header", "fund_id", fundID, "error", err)
	}
}

// storeChunks embeds every chunk, replaces the document's rows in the exact
// store and appends to the approximate index. Index failures only log; the
// index can be rebuilt from the exact store.
func (p *Processor) storeChunks(ctx context.Context, documentID, fundID int64, chunks []text.Chunk) error {
	if _, err := p.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	var title, fundName string
	if p.names != nil {
		var err error
		if title, fundName, err = p.names.DocumentNames(ctx, documentID); err != nil {
			slog.WarnContext(ctx, "document name lookup failed", "document_id", documentID, "error", err)
		}
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i := range chunks {
		g.Go(func() error {
			ectx, cancel := context.WithTimeout(gctx, embedTimeout)
			defer cancel()
			vec, err := p.embedder.Embed(ectx, chunks[i].Content)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	metas := make([]text.Metadata, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata
		meta.DocumentName, meta.FundName = title, fundName
		metas[i] = meta
		if _, err := p.chunks.Insert(ctx, vector.Record{
			DocumentID: documentID,
			FundID:     fundID,
			Content:    c.Content,
			Embedding:  vectors[i],
			Metadata:   meta,
		}); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	metrics.ChunksEmbedded.Add(float64(len(chunks)))

	if p.index != nil {
		if err := p.index.Append(ctx, vectors, metas); err != nil {
			slog.WarnContext(ctx, "approximate index append failed", "document_id", documentID, "error", err)
		}
	}
	return nil
}
