// Package retrieval routes similarity queries across the exact store and the
// approximate index and shapes the results.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akbarharyadi/coding-test-3rd/internal/cache"
	"github.com/akbarharyadi/coding-test-3rd/internal/index"
	"github.com/akbarharyadi/coding-test-3rd/internal/metrics"
	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
	"github.com/akbarharyadi/coding-test-3rd/internal/text"
	"github.com/akbarharyadi/coding-test-3rd/internal/vector"
)

var ErrInvalidQuery = errors.New("invalid search query")

type Backend string

const (
	BackendAuto        Backend = ""
	BackendExact       Backend = "exact"
	BackendApproximate Backend = "approximate"
	BackendHybrid      Backend = "hybrid"
)

// ParseBackend maps a user-supplied name to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return BackendAuto, nil
	case "exact", "postgresql", "postgres":
		return BackendExact, nil
	case "approximate", "approx", "faiss":
		return BackendApproximate, nil
	case "hybrid":
		return BackendHybrid, nil
	default:
		return BackendAuto, fmt.Errorf("%w: unknown backend %q", ErrInvalidQuery, s)
	}
}

type Result struct {
	Content       string        `json:"content,omitempty"`
	Score         float64       `json:"score"`
	DocumentID    int64         `json:"document_id"`
	FundID        int64         `json:"fund_id"`
	DocumentTitle string        `json:"document_title,omitempty"`
	FundName      string        `json:"fund_name,omitempty"`
	Source        Backend       `json:"source"`
	IndexPosition *int          `json:"index_position,omitempty"`
	Metadata      text.Metadata `json:"metadata"`
}

type Options struct {
	K              int
	FundID         *int64
	DocumentID     *int64
	Backend        Backend
	IncludeContent bool
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ExactStore interface {
	SimilaritySearch(ctx context.Context, vec []float32, k int, f vector.Filter) ([]vector.Match, error)
	ContentAt(ctx context.Context, documentID int64, pageNumber, offsetStart int) (string, error)
	Count(ctx context.Context) (int, error)
}

type ApproxIndex interface {
	Exists() bool
	Search(ctx context.Context, query []float32, k int, fundID *int64) ([]index.Hit, error)
	Rebuild(ctx context.Context, fundID *int64) (int, error)
	Count(ctx context.Context) int
}

// Reranker returns indices into docs, most relevant first.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

// Catalog resolves display names. Missing rows return empty strings.
type Catalog interface {
	DocumentNames(ctx context.Context, documentID int64) (title, fundName string, err error)
	FundNames(ctx context.Context, fundID int64) (name, gpName string, err error)
}

type Service struct {
	embedder Embedder
	exact    ExactStore
	approx   ApproxIndex
	catalog  Catalog
	reranker Reranker

	cache     cache.Store
	cacheTTL  time.Duration
	logger    *QueryLogger
	preferred Backend
}

type Option func(*Service)

func WithCache(c cache.Store, ttl time.Duration) Option {
	return func(s *Service) { s.cache, s.cacheTTL = c, ttl }
}

func WithQueryLogger(l *QueryLogger) Option {
	return func(s *Service) { s.logger = l }
}

// WithReranker reorders each result set before it is returned.
func WithReranker(r Reranker) Option {
	return func(s *Service) { s.reranker = r }
}

// WithPreferredBackend sets the backend used when a request does not name one.
func WithPreferredBackend(b Backend) Option {
	return func(s *Service) { s.preferred = b }
}

// NewService wires the orchestrator. approx may be nil when the approximate
// index is disabled; every approximate request then goes to the exact store.
func NewService(e Embedder, exact ExactStore, approx ApproxIndex, catalog Catalog, opts ...Option) *Service {
	s := &Service{embedder: e, exact: exact, approx: approx, catalog: catalog}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) approxReady() bool {
	return s.approx != nil && s.approx.Exists()
}

// resolveBackend applies the request, then the configured preference, then
// prefers the approximate index when its file exists.
func (s *Service) resolveBackend(requested Backend) Backend {
	if requested != BackendAuto {
		return requested
	}
	if s.preferred != BackendAuto {
		return s.preferred
	}
	if s.approxReady() {
		return BackendApproximate
	}
	return BackendExact
}

func (s *Service) Search(ctx context.Context, query string, opts Options) (results []Result, err error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidQuery)
	}
	backend := s.resolveBackend(opts.Backend)

	defer func() {
		if err != nil {
			return
		}
		elapsed := time.Since(start)
		metrics.SearchRequests.WithLabelValues(string(backend)).Inc()
		metrics.SearchDuration.WithLabelValues(string(backend)).Observe(elapsed.Seconds())
		if s.logger != nil {
			s.logger.Log(QueryLogEntry{
				Query:         query,
				Backend:       string(backend),
				K:             opts.K,
				FundID:        opts.FundID,
				DocumentID:    opts.DocumentID,
				CorrelationID: middleware.GetCorrelationID(ctx),
			}, results, elapsed)
		}
	}()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	switch backend {
	case BackendExact:
		results, err = s.searchExact(ctx, vec, opts)
	case BackendApproximate:
		results, err = s.searchApproximate(ctx, vec, opts)
	case BackendHybrid:
		results, err = s.searchHybrid(ctx, vec, opts)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidQuery, backend)
	}
	if err != nil {
		return nil, err
	}

	results = s.rerank(ctx, query, results)
	s.enrich(ctx, results)
	if !opts.IncludeContent {
		for i := range results {
			results[i].Content = ""
		}
	}
	return results, nil
}

// rerank keeps the vector order when the reranker fails or any result lacks content.
func (s *Service) rerank(ctx context.Context, query string, results []Result) []Result {
	if s.reranker == nil || len(results) < 2 {
		return results
	}
	docs := make([]string, len(results))
	for i, r := range results {
		if r.Content == "" {
			return results
		}
		docs[i] = r.Content
	}

	order, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil {
		slog.WarnContext(ctx, "rerank failed, keeping vector order", "error", err)
		return results
	}

	reordered := make([]Result, 0, len(results))
	used := make([]bool, len(results))
	for _, i := range order {
		if i < 0 || i >= len(results) || used[i] {
			continue
		}
		used[i] = true
		reordered = append(reordered, results[i])
	}
	for i, r := range results {
		if !used[i] {
			reordered = append(reordered, r)
		}
	}
	return reordered
}

func (s *Service) searchExact(ctx context.Context, vec []float32, opts Options) ([]Result, error) {
	matches, err := s.exact.SimilaritySearch(ctx, vec, opts.K, vector.Filter{FundID: opts.FundID, DocumentID: opts.DocumentID})
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			Content:    m.Content,
			Score:      m.Score,
			DocumentID: m.DocumentID,
			FundID:     m.FundID,
			Source:     BackendExact,
			Metadata:   m.Metadata,
		})
	}
	return results, nil
}

// searchApproximate never fails because the index is missing or broken; it
// answers from the exact store instead.
func (s *Service) searchApproximate(ctx context.Context, vec []float32, opts Options) ([]Result, error) {
	if !s.approxReady() {
		metrics.SearchFallbacks.Inc()
		return s.searchExact(ctx, vec, opts)
	}

	hits, err := s.approx.Search(ctx, vec, opts.K, opts.FundID)
	if err != nil {
		slog.WarnContext(ctx, "approximate search failed, using exact store", "error", err)
		metrics.SearchFallbacks.Inc()
		return s.searchExact(ctx, vec, opts)
	}
	if len(hits) == 0 && opts.FundID != nil {
		hits = s.recoverFundMiss(ctx, vec, opts.K, *opts.FundID)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if opts.DocumentID != nil && h.Metadata.DocumentID != *opts.DocumentID {
			continue
		}
		pos := h.Position
		content, err := s.exact.ContentAt(ctx, h.Metadata.DocumentID, h.Metadata.PageNumber, h.Metadata.OffsetStart)
		if err != nil {
			slog.WarnContext(ctx, "failed to fetch chunk content", "document_id", h.Metadata.DocumentID, "error", err)
		}
		results = append(results, Result{
			Content:       content,
			Score:         float64(h.Score),
			DocumentID:    h.Metadata.DocumentID,
			FundID:        h.Metadata.FundID,
			Source:        BackendApproximate,
			IndexPosition: &pos,
			Metadata:      h.Metadata,
		})
	}
	return results, nil
}

// recoverFundMiss retries a fund-filtered miss without the filter, keeping
// hits whose document or fund name mentions the fund or its GP. With no name
// match it returns the unfiltered top k.
func (s *Service) recoverFundMiss(ctx context.Context, vec []float32, k int, fundID int64) []index.Hit {
	var name, gp string
	if s.catalog != nil {
		var err error
		name, gp, err = s.catalog.FundNames(ctx, fundID)
		if err != nil {
			slog.WarnContext(ctx, "fund lookup failed during recovery", "fund_id", fundID, "error", err)
		}
	}
	name, gp = strings.ToLower(strings.TrimSpace(name)), strings.ToLower(strings.TrimSpace(gp))

	hits, err := s.approx.Search(ctx, vec, k*3, nil)
	if err != nil {
		slog.WarnContext(ctx, "unfiltered approximate search failed", "error", err)
		return nil
	}

	var matched []index.Hit
	for _, h := range hits {
		doc := strings.ToLower(h.Metadata.DocumentName)
		fund := strings.ToLower(h.Metadata.FundName)
		if (name != "" && (strings.Contains(doc, name) || strings.Contains(fund, name))) ||
			(gp != "" && strings.Contains(doc, gp)) {
			matched = append(matched, h)
		}
	}
	slog.InfoContext(ctx, "recovered fund-filtered miss", "fund_id", fundID, "candidates", len(hits), "name_matches", len(matched))
	if len(matched) > 0 {
		return matched[:min(k, len(matched))]
	}
	return hits[:min(k, len(hits))]
}

func (s *Service) searchHybrid(ctx context.Context, vec []float32, opts Options) ([]Result, error) {
	var exact, approx []Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exact, err = s.searchExact(gctx, vec, opts)
		return err
	})
	g.Go(func() error {
		var err error
		approx, err = s.searchApproximate(gctx, vec, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeHybrid(approx, exact, opts.K), nil
}

type dedupKey struct {
	documentID  int64
	offsetStart int
}

// mergeHybrid orders by score and keeps the first result per
// (document, offset_start).
func mergeHybrid(a, b []Result, k int) []Result {
	all := make([]Result, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	seen := make(map[dedupKey]struct{}, len(all))
	out := make([]Result, 0, k)
	for _, r := range all {
		key := dedupKey{r.DocumentID, r.Metadata.OffsetStart}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		r.Source = BackendHybrid
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out
}

type names struct {
	Title string `json:"title"`
	Fund  string `json:"fund"`
}

func (s *Service) enrich(ctx context.Context, results []Result) {
	if s.catalog == nil {
		return
	}
	for i := range results {
		if results[i].DocumentID == 0 {
			continue
		}
		n, ok := s.documentNames(ctx, results[i].DocumentID)
		if !ok {
			continue
		}
		results[i].DocumentTitle = n.Title
		results[i].FundName = n.Fund
	}
}

func (s *Service) documentNames(ctx context.Context, documentID int64) (names, bool) {
	key := "document-names:" + strconv.FormatInt(documentID, 10)
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			var n names
			if json.Unmarshal(raw, &n) == nil {
				return n, true
			}
		}
	}

	title, fund, err := s.catalog.DocumentNames(ctx, documentID)
	if err != nil {
		slog.WarnContext(ctx, "document name lookup failed", "document_id", documentID, "error", err)
		return names{}, false
	}
	n := names{Title: title, Fund: fund}
	if s.cache != nil {
		if raw, err := json.Marshal(n); err == nil {
			s.cache.Set(ctx, key, raw, s.cacheTTL)
		}
	}
	return n, true
}

// RebuildIndex regenerates the approximate index from the exact store.
func (s *Service) RebuildIndex(ctx context.Context, fundID *int64) (int, error) {
	if s.approx == nil {
		return 0, index.ErrUnavailable
	}
	n, err := s.approx.Rebuild(ctx, fundID)
	if err != nil {
		return 0, err
	}
	metrics.IndexVectors.Set(float64(s.approx.Count(ctx)))
	return n, nil
}

type Stats struct {
	AvailableBackends []Backend `json:"available_backends"`
	PreferredBackend  Backend   `json:"preferred_backend"`
	ApproxAvailable   bool      `json:"approx_available"`
	ApproxVectors     int       `json:"approx_vectors"`
	ExactVectors      int       `json:"exact_vectors"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		AvailableBackends: []Backend{BackendExact},
		PreferredBackend:  s.resolveBackend(BackendAuto),
		ApproxAvailable:   s.approxReady(),
	}
	if st.ApproxAvailable {
		st.AvailableBackends = append(st.AvailableBackends, BackendApproximate, BackendHybrid)
		st.ApproxVectors = s.approx.Count(ctx)
	}
	n, err := s.exact.Count(ctx)
	if err != nil {
		return st, err
	}
	st.ExactVectors = n
	return st, nil
}
