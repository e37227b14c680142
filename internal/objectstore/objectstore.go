// Package objectstore uploads image bytes and returns the URL they are served from.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/hyperjump/snapfind/internal/config"
)

// ObjectStore stores uploaded images.
type ObjectStore interface {
	// Put stores body under key and returns its public URL.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Close() error
}

// PlaceholderURL is recorded for a photo whose bytes could not be uploaded,
// so the photo stays searchable.
func PlaceholderURL(key string) string {
	return "local://" + key
}

// New returns the store selected by cfg.Type, or nil when no store is configured.
func New(cfg config.ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case config.ObjectStoreDisk:
		return NewDiskStore(cfg.Root, cfg.PublicBaseURL)
	case config.ObjectStoreS3:
		return NewS3Store(S3Options{
			Endpoint:      cfg.Endpoint,
			Region:        cfg.Region,
			Bucket:        cfg.Bucket,
			AccessKey:     cfg.AccessKey,
			SecretKey:     cfg.SecretKey,
			Insecure:      cfg.Insecure,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown object store type %q", cfg.Type)
	}
}

// cleanKey rejects keys that are empty or would escape the bucket or root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("invalid object key")
	}
	return key, nil
}

// joinURL appends the escaped key segments to base.
func joinURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
