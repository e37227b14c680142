// Package search answers text queries against the photos of one event.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/embedding"
	"github.com/hyperjump/snapfind/internal/models"
	"github.com/hyperjump/snapfind/internal/ranking"
	"github.com/hyperjump/snapfind/internal/storage"
)

var (
	// ErrInvalidRequest is returned for a blank event or query, or out-of-range options.
	ErrInvalidRequest = errors.New("invalid search request")
	// ErrEventNotFound is returned when the event has no photos.
	ErrEventNotFound = errors.New("no images found for this event")
	// ErrNoEmbeddings is returned when none of the event's photos has an embedding.
	ErrNoEmbeddings = errors.New("no embeddings found for event images")
)

// photoRef is the metadata carried through ranking.
type photoRef struct {
	Filename string
	ImageURL string
}

// Engine runs event-scoped text search.
type Engine struct {
	store    storage.PhotoStore
	embedder embedding.Embedder
	college  string
	config   *config.SearchConfig
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for per-query diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine over the photos filed under college.
func NewEngine(store storage.PhotoStore, embedder embedding.Embedder, college string, cfg *config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		college:  college,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search embeds the query text and ranks the event's photos against it.
// Finding nothing above the threshold is a success with an explanatory message.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	opts := rankOptions(req, e.config)

	photos, err := e.store.FindByEvent(ctx, e.college, req.EventName)
	if err != nil {
		return nil, fmt.Errorf("failed to load event photos: %w", err)
	}
	if len(photos) == 0 {
		return nil, ErrEventNotFound
	}

	candidates := make([]ranking.Candidate[photoRef], 0, len(photos))
	for _, p := range photos {
		if !p.HasEmbedding() {
			continue
		}
		candidates = append(candidates, ranking.Candidate[photoRef]{
			ID:       p.ID,
			Vector:   p.Embedding,
			Metadata: photoRef{Filename: p.Filename, ImageURL: p.ImageURL},
		})
	}
	e.logger.Debug("Loaded event photos",
		zap.String("event", req.EventName),
		zap.Int("photos", len(photos)),
		zap.Int("with_embeddings", len(candidates)))
	if len(candidates) == 0 {
		return nil, ErrNoEmbeddings
	}

	query, err := e.embedder.EmbedText(ctx, req.QueryText)
	if err != nil {
		if errors.Is(err, embedding.ErrUnsupportedInput) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ranked, stats, err := ranking.RankWithStats(query, candidates, opts)
	if err != nil {
		e.logger.Error("Ranking failed",
			zap.String("event", req.EventName),
			zap.Int("query_dims", len(query)),
			zap.Int("wrong_dimension", stats.WrongDimension),
			zap.Error(err))
		return nil, fmt.Errorf("failed to rank photos: %w", err)
	}
	if stats.WrongDimension > 0 || stats.Degenerate > 0 {
		e.logger.Warn("Skipped unusable embeddings",
			zap.String("event", req.EventName),
			zap.Int("wrong_dimension", stats.WrongDimension),
			zap.Int("degenerate", stats.Degenerate))
	}
	for i, r := range ranked {
		if i == 5 {
			break
		}
		e.logger.Debug("Top match", zap.Int("rank", i+1), zap.String("filename", r.Metadata.Filename), zap.Float64("similarity", r.Score))
	}

	resp := &models.SearchResponse{
		Query:     req.QueryText,
		EventName: req.EventName,
		Results:   make([]*models.SearchHit, 0, len(ranked)),
		Threshold: opts.Threshold,
	}
	for _, r := range ranked {
		resp.Results = append(resp.Results, &models.SearchHit{
			Filename:   r.Metadata.Filename,
			ImageURL:   r.Metadata.ImageURL,
			Similarity: r.Score,
		})
	}
	if len(resp.Results) == 0 {
		resp.Message = fmt.Sprintf("No images match the similarity threshold of %.2f. Try different keywords.", opts.Threshold)
	} else {
		resp.Message = fmt.Sprintf("%d images matched", len(resp.Results))
	}
	resp.QueryTime = time.Since(startTime).Milliseconds()

	e.logger.Info("Search completed",
		zap.String("event", req.EventName),
		zap.Int("candidates", stats.Candidates),
		zap.Int("returned", stats.Returned),
		zap.Float64("threshold", opts.Threshold),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp, nil
}
