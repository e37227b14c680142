// Package storage defines the persistence interface for event photos and their embeddings.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/models"
)

// ErrNotFound is returned when a photo lookup or delete matches nothing.
var ErrNotFound = errors.New("photo not found")

// PhotoStore defines photo persistence operations.
type PhotoStore interface {
	// InsertPhotos stores photos atomically: either all are inserted or none.
	// Empty IDs are assigned; CreatedAt and UpdatedAt are set.
	InsertPhotos(ctx context.Context, photos []*models.Photo) error
	// FindByEvent returns the event's photos in insertion order, including
	// photos stored without an embedding. A stored embedding that cannot be
	// decoded is returned as missing instead of failing the whole event.
	FindByEvent(ctx context.Context, college, eventName string) ([]*models.Photo, error)
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	DeletePhoto(ctx context.Context, id string) error
	// DeleteEvent removes every photo of the event and returns how many were removed.
	DeleteEvent(ctx context.Context, college, eventName string) (int64, error)
	ListEvents(ctx context.Context, college string) ([]*models.EventSummary, error)
	CountPhotos(ctx context.Context) (int64, error)
	Close() error
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	logger *zap.Logger
}

// WithLogger sets the logger used to report rows that cannot be decoded.
func WithLogger(l *zap.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func applyOptions(opts []Option) storeOptions {
	o := storeOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open returns the PhotoStore selected by cfg.Driver.
func Open(cfg config.StorageConfig, opts ...Option) (PhotoStore, error) {
	table := cfg.Table
	if table == "" {
		table = "photos"
	}
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return NewSQLiteStore(cfg.DatabasePath, table, opts...)
	case config.DriverPostgres:
		return NewPostgresStore(cfg.DatabaseURL, table, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// quoteIdent quotes a table name for both SQLite and PostgreSQL.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
