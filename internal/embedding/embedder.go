// Package embedding turns photos and query text into vectors in a shared
// space, so a caption and the image it describes land close together.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Embedder produces vector embeddings for images and text in the same space.
type Embedder interface {
	EmbedImage(ctx context.Context, src ImageSource) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	// ModelID identifies the model weights, so caches never mix vectors from
	// different models.
	ModelID() string
	Close() error
}

var (
	// ErrUnsupportedInput is returned for inputs the provider cannot interpret,
	// such as bytes that are not a decodable image or blank query text.
	ErrUnsupportedInput = errors.New("unsupported embedding input")
	// ErrProviderFailure matches every *ProviderError.
	ErrProviderFailure = errors.New("embedding provider failure")
)

// ProviderError reports that the model itself failed on a valid input.
// An all-zero vector returned without error is a valid embedding, not a failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProviderFailure) true for any ProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailure
}
