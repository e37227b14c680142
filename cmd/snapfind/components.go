package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/auth"
	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/embedding"
	"github.com/hyperjump/snapfind/internal/ingest"
	"github.com/hyperjump/snapfind/internal/objectstore"
	"github.com/hyperjump/snapfind/internal/search"
	"github.com/hyperjump/snapfind/internal/storage"
)

// Components holds initialized services. It is built once per process and
// closed on shutdown.
type Components struct {
	Store    storage.PhotoStore
	Embedder embedding.Embedder
	Objects  objectstore.ObjectStore
	Engine   *search.Engine
	Ingester *ingest.Ingester
	Auth     *auth.Authenticator
	closers  []io.Closer
}

// Close releases every client in reverse order of construction.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
	c.closers = nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	c := &Components{}

	store, err := storage.Open(cfg.Storage, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = store
	c.closers = append(c.closers, store)

	objects, err := objectstore.New(cfg.ObjectStore)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	if objects != nil {
		c.Objects = objects
		c.closers = append(c.closers, objects)
	} else {
		logger.Warn("No object store configured, photos get placeholder URLs")
	}

	embedder, err := newEmbedder(cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.closers = append(c.closers, embedder)
	cache, closer := newTextCache(cfg.Embedding, logger)
	if closer != nil {
		c.closers = append(c.closers, closer)
	}
	if cache != nil {
		c.Embedder = embedding.NewCachedEmbedder(embedder, cache)
	} else {
		c.Embedder = embedder
	}
	logger.Info("Embedder initialized",
		zap.String("model", c.Embedder.ModelID()),
		zap.Int("dimensions", c.Embedder.Dimensions()))

	authn, err := auth.New(cfg.Auth, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}
	c.Auth = authn

	var engineOpts []search.Option
	ingestOpts := []ingest.Option{ingest.WithWorkers(cfg.Ingest.Workers)}
	if debug {
		engineOpts = append(engineOpts, search.WithLogger(logger))
		ingestOpts = append(ingestOpts, ingest.WithLogger(logger))
	}
	if c.Objects != nil {
		ingestOpts = append(ingestOpts, ingest.WithObjectStore(c.Objects))
	}
	c.Engine = search.NewEngine(c.Store, c.Embedder, cfg.College, &cfg.Search, engineOpts...)
	c.Ingester = ingest.New(c.Store, c.Embedder, cfg.College, ingestOpts...)
	return c, nil
}

// newEmbedder returns the deterministic mock when the provider is "mock" and
// the CLIP embedder otherwise. A CLIP model that cannot be loaded is an error:
// stored photo vectors carry no model tag, so mock vectors written in its
// place would later rank against real ones.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	case config.ProviderCLIP:
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	var tok embedding.Tokenizer
	if cfg.TokenizerPath != "" {
		hf, err := embedding.NewHFTokenizer(cfg.TokenizerPath)
		if err != nil {
			logger.Warn("Failed to load tokenizer, using hash tokenizer", zap.String("path", cfg.TokenizerPath), zap.Error(err))
		} else {
			tok = hf
		}
	}

	clip, err := embedding.NewCLIPEmbedder(embedding.CLIPConfig{
		SharedLibraryPath: cfg.SharedLibraryPath,
		VisualModelPath:   cfg.VisualModelPath,
		TextModelPath:     cfg.TextModelPath,
		Dimensions:        cfg.Dimensions,
		ImageSize:         cfg.ImageSize,
		ContextLength:     cfg.ContextLength,
		VisualInputName:   cfg.VisualInputName,
		VisualOutputName:  cfg.VisualOutputName,
		TextInputName:     cfg.TextInputName,
		TextMaskName:      cfg.TextMaskName,
		TextOutputName:    cfg.TextOutputName,
	}, tok)
	if err != nil {
		return nil, fmt.Errorf("CLIP embedder unavailable (set embedding.provider to mock to run without models): %w", err)
	}
	return clip, nil
}

// newTextCache returns the query embedding cache: Redis when an address is
// configured and reachable, otherwise an in-process LRU. The closer is non-nil
// when the cache holds a connection.
func newTextCache(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.TextCache, io.Closer) {
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ttl := time.Duration(cfg.CacheTTLSecs) * time.Second
		rc, err := embedding.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ttl, logger)
		if err == nil {
			logger.Info("Using Redis text embedding cache", zap.String("addr", cfg.RedisAddr))
			return rc, rc
		}
		logger.Warn("Redis unavailable, using in-process cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	if cfg.CacheSize <= 0 {
		return nil, nil
	}
	lru, err := embedding.NewLRUCache(cfg.CacheSize)
	if err != nil {
		logger.Warn("Failed to create text embedding cache", zap.Error(err))
		return nil, nil
	}
	return lru, nil
}
