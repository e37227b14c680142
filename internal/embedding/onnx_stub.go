//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// CLIPConfig mirrors the cgo build so callers compile either way (see onnx.go).
type CLIPConfig struct {
	SharedLibraryPath string
	VisualModelPath   string
	TextModelPath     string
	Dimensions        int
	ImageSize         int
	ContextLength     int
	VisualInputName   string
	VisualOutputName  string
	TextInputName     string
	TextMaskName      string
	TextOutputName    string
}

// CLIPEmbedder stub type when built without CGO.
type CLIPEmbedder struct{}

// NewCLIPEmbedder returns an error when built without CGO (ONNX not available).
func NewCLIPEmbedder(_ CLIPConfig, _ Tokenizer) (*CLIPEmbedder, error) {
	return nil, errors.New("CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *CLIPEmbedder) EmbedImage(context.Context, ImageSource) ([]float32, error) {
	return nil, &ProviderError{Op: "image inference", Err: errors.New("built without CGO")}
}

func (e *CLIPEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, &ProviderError{Op: "text inference", Err: errors.New("built without CGO")}
}

func (e *CLIPEmbedder) Dimensions() int { return 0 }
func (e *CLIPEmbedder) ModelID() string { return "clip-unavailable" }
func (e *CLIPEmbedder) Close() error    { return nil }
