//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// CLIPConfig locates the exported CLIP encoders and names their tensors.
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
	// TextMaskName is empty for text encoders exported without an attention mask input.
	TextMaskName   string
	TextOutputName string
}

var errClosed = errors.New("embedder is closed")

var ortInit sync.Once
var ortInitErr error

func initRuntime(sharedLibraryPath string) error {
	ortInit.Do(func() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	return ortInitErr
}

// CLIPEmbedder runs the CLIP visual and text encoders with ONNX Runtime. It
// requires CGO and the onnxruntime shared library. Runs on each session are
// serialized because the input and output tensors are preallocated.
type CLIPEmbedder struct {
	cfg       CLIPConfig
	modelID   string
	tokenizer Tokenizer

	visualMu     sync.Mutex
	visual       *ort.AdvancedSession
	pixelTensor  *ort.Tensor[float32]
	imageOutput  *ort.Tensor[float32]
	textMu       sync.Mutex
	text         *ort.AdvancedSession
	idsTensor    *ort.Tensor[int64]
	maskTensor   *ort.Tensor[int64]
	textOutput   *ort.Tensor[float32]
	destroyables []interface{ Destroy() error }
}

// NewCLIPEmbedder creates both ONNX sessions. tok may be nil, in which case
// the hash-based SimpleTokenizer is used.
func NewCLIPEmbedder(cfg CLIPConfig, tok Tokenizer) (*CLIPEmbedder, error) {
	if err := initRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if tok == nil {
		tok = &SimpleTokenizer{}
	}
	e := &CLIPEmbedder{
		cfg:       cfg,
		modelID:   fmt.Sprintf("clip:%s:%d:%T", filepath.Base(cfg.TextModelPath), cfg.Dimensions, tok),
		tokenizer: tok,
	}
	if err := e.initVisual(); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.initText(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *CLIPEmbedder) track(d interface{ Destroy() error }) {
	e.destroyables = append(e.destroyables, d)
}

func (e *CLIPEmbedder) initVisual() error {
	size := int64(e.cfg.ImageSize)
	pixels, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return fmt.Errorf("failed to create pixel tensor: %w", err)
	}
	e.track(pixels)
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.cfg.Dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.track(output)
	session, err := ort.NewAdvancedSession(
		e.cfg.VisualModelPath,
		[]string{e.cfg.VisualInputName},
		[]string{e.cfg.VisualOutputName},
		[]ort.ArbitraryTensor{pixels},
		[]ort.ArbitraryTensor{output},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create visual ONNX session: %w", err)
	}
	e.track(session)
	e.visual, e.pixelTensor, e.imageOutput = session, pixels, output
	return nil
}

func (e *CLIPEmbedder) initText() error {
	shape := ort.NewShape(1, int64(e.cfg.ContextLength))
	ids, err := ort.NewEmptyTensor[int64](shape)
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.track(ids)
	inputNames := []string{e.cfg.TextInputName}
	inputs := []ort.ArbitraryTensor{ids}
	if e.cfg.TextMaskName != "" {
		mask, err := ort.NewEmptyTensor[int64](shape)
		if err != nil {
			return fmt.Errorf("failed to create attention_mask tensor: %w", err)
		}
		e.track(mask)
		e.maskTensor = mask
		inputNames = append(inputNames, e.cfg.TextMaskName)
		inputs = append(inputs, mask)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.cfg.Dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.track(output)
	session, err := ort.NewAdvancedSession(
		e.cfg.TextModelPath,
		inputNames,
		[]string{e.cfg.TextOutputName},
		inputs,
		[]ort.ArbitraryTensor{output},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text ONNX session: %w", err)
	}
	e.track(session)
	e.text, e.idsTensor, e.textOutput = session, ids, output
	return nil
}

// EmbedImage decodes and preprocesses src and runs the visual encoder.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, src ImageSource) ([]float32, error) {
	e.visualMu.Lock()
	closed := e.visual == nil
	e.visualMu.Unlock()
	if closed {
		return nil, &ProviderError{Op: "image inference", Err: errClosed}
	}
	img, err := src.Decode()
	if err != nil {
		return nil, err
	}
	pixels := PreprocessCLIP(img, e.cfg.ImageSize)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.visualMu.Lock()
	defer e.visualMu.Unlock()
	if e.visual == nil {
		return nil, &ProviderError{Op: "image inference", Err: errClosed}
	}
	copy(e.pixelTensor.GetData(), pixels)
	if err := e.visual.Run(); err != nil {
		return nil, &ProviderError{Op: "image inference", Err: err}
	}
	out := make([]float32, e.cfg.Dimensions)
	copy(out, e.imageOutput.GetData())
	return out, nil
}

// EmbedText tokenizes text and runs the text encoder.
func (e *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = NormalizeQuery(text)
	if text == "" {
		return nil, fmt.Errorf("%w: blank text", ErrUnsupportedInput)
	}

	e.textMu.Lock()
	defer e.textMu.Unlock()
	if e.text == nil {
		return nil, &ProviderError{Op: "text inference", Err: errClosed}
	}
	ids, mask, err := e.tokenizer.Tokenize(text, e.cfg.ContextLength)
	if err != nil {
		return nil, &ProviderError{Op: "tokenize", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	copy(e.idsTensor.GetData(), ids)
	if e.maskTensor != nil {
		copy(e.maskTensor.GetData(), mask)
	}
	if err := e.text.Run(); err != nil {
		return nil, &ProviderError{Op: "text inference", Err: err}
	}
	out := make([]float32, e.cfg.Dimensions)
	copy(out, e.textOutput.GetData())
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// ModelID returns an identifier derived from the text model file, dimension and tokenizer.
func (e *CLIPEmbedder) ModelID() string {
	return e.modelID
}

// Close destroys the sessions and tensors.
func (e *CLIPEmbedder) Close() error {
	e.visualMu.Lock()
	e.textMu.Lock()
	defer e.visualMu.Unlock()
	defer e.textMu.Unlock()

	var firstErr error
	// Sessions were tracked after their tensors; destroy in reverse.
	for i := len(e.destroyables) - 1; i >= 0; i-- {
		if err := e.destroyables[i].Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.destroyables = nil
	e.visual, e.text = nil, nil
	return firstErr
}
