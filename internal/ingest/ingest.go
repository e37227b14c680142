// Package ingest stores uploaded event photos: it sniffs, uploads and embeds
// each file, then inserts every successful photo in one batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/snapfind/internal/embedding"
	"github.com/hyperjump/snapfind/internal/models"
	"github.com/hyperjump/snapfind/internal/objectstore"
	"github.com/hyperjump/snapfind/internal/storage"
)

var (
	// ErrInvalidUpload is returned when the event name, event date or files are missing.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrNothingIngested is returned when no file of the upload could be stored.
	ErrNothingIngested = errors.New("no images received or processed")
)

// File is one uploaded image.
type File struct {
	Filename    string
	ContentType string // sniffed from Data when empty or generic
	Data        []byte
}

// UploadRequest is a batch of photos for one event.
type UploadRequest struct {
	EventName  string
	EventDate  string
	FolderName string
	Files      []File
}

// Ingester stores uploads into the photo store.
type Ingester struct {
	store    storage.PhotoStore
	embedder embedding.Embedder
	objects  objectstore.ObjectStore // nil records placeholder URLs
	college  string
	workers  int
	logger   *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets a logger for per-file progress and failures.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.logger = l }
}

// WithObjectStore sets where image bytes are uploaded.
func WithObjectStore(s objectstore.ObjectStore) Option {
	return func(in *Ingester) { in.objects = s }
}

// WithWorkers sets how many files are embedded concurrently.
func WithWorkers(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.workers = n
		}
	}
}

// New creates an ingester filing photos under college.
func New(store storage.PhotoStore, embedder embedding.Embedder, college string, opts ...Option) *Ingester {
	in := &Ingester{
		store:    store,
		embedder: embedder,
		college:  college,
		workers:  4,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest processes every file of req. A file that cannot be read as an image
// or embedded is skipped and reported in the result; the rest are inserted
// together, in request order.
func (in *Ingester) Ingest(ctx context.Context, req UploadRequest) (*models.UploadResult, error) {
	req.EventName = strings.TrimSpace(req.EventName)
	req.EventDate = strings.TrimSpace(req.EventDate)
	if req.EventName == "" {
		return nil, fmt.Errorf("%w: event_name is required", ErrInvalidUpload)
	}
	if req.EventDate == "" {
		return nil, fmt.Errorf("%w: event_date is required", ErrInvalidUpload)
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidUpload)
	}

	folder := FolderPath(req.EventName, req.FolderName)
	in.logger.Info("Upload started",
		zap.String("event", req.EventName),
		zap.String("college", in.college),
		zap.Int("files", len(req.Files)))

	type outcome struct {
		photo   *models.Photo
		failure *models.FileFailure
	}
	outcomes := make([]outcome, len(req.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for i := range req.Files {
		i := i
		g.Go(func() error {
			photo, reason, err := in.processFile(gctx, req, folder, req.Files[i])
			if err != nil {
				return err
			}
			if reason != "" {
				in.logger.Warn("Skipping file", zap.String("file", req.Files[i].Filename), zap.String("reason", reason))
				outcomes[i].failure = &models.FileFailure{Filename: req.Files[i].Filename, Reason: reason}
				return nil
			}
			outcomes[i].photo = photo
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &models.UploadResult{EventName: req.EventName, FolderName: folder}
	var totalBytes int64
	for i, o := range outcomes {
		totalBytes += int64(len(req.Files[i].Data))
		if o.failure != nil {
			result.Failed = append(result.Failed, o.failure)
			continue
		}
		result.Photos = append(result.Photos, o.photo)
	}
	result.TotalSizeKB = float64(totalBytes) / 1024

	if len(result.Photos) == 0 {
		in.logger.Error("No valid images to insert", zap.String("event", req.EventName))
		return result, ErrNothingIngested
	}
	if err := in.store.InsertPhotos(ctx, result.Photos); err != nil {
		return nil, fmt.Errorf("failed to store photos: %w", err)
	}
	result.ImagesCount = len(result.Photos)
	result.Message = fmt.Sprintf("%d images uploaded successfully!", result.ImagesCount)
	in.logger.Info("Upload finished",
		zap.String("event", req.EventName),
		zap.Int("stored", result.ImagesCount),
		zap.Int("skipped", len(result.Failed)),
		zap.Float64("total_kb", result.TotalSizeKB))
	return result, nil
}

// processFile returns the photo, or a skip reason for a bad file. A non-nil
// error aborts the whole upload and is only returned for cancellation.
func (in *Ingester) processFile(ctx context.Context, req UploadRequest, folder string, f File) (*models.Photo, string, error) {
	name := cleanFilename(f.Filename)
	if name == "" {
		return nil, "missing filename", nil
	}
	if len(f.Data) == 0 {
		return nil, "empty file", nil
	}
	contentType := f.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(f.Data).String()
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Sprintf("not an image (%s)", contentType), nil
	}

	emb, err := in.embedder.EmbedImage(ctx, embedding.FromBytes(f.Data).WithName(name))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		return nil, fmt.Sprintf("embedding failed: %v", err), nil
	}

	key := in.college + "/" + name
	imageURL := objectstore.PlaceholderURL(key)
	if in.objects != nil {
		u, err := in.objects.Put(ctx, key, f.Data, contentType)
		if err != nil {
			in.logger.Warn("Object upload failed, using placeholder URL", zap.String("key", key), zap.Error(err))
		} else {
			imageURL = u
		}
	}

	in.logger.Debug("File processed", zap.String("key", key), zap.Int("bytes", len(f.Data)))
	return &models.Photo{
		College:     in.college,
		Filename:    key,
		FolderName:  folder,
		ContentType: contentType,
		ImageURL:    imageURL,
		EventName:   req.EventName,
		EventDate:   req.EventDate,
		SizeBytes:   int64(len(f.Data)),
		Embedding:   emb,
	}, "", nil
}

// IngestFile ingests a single image from disk.
func (in *Ingester) IngestFile(ctx context.Context, path, eventName, eventDate, folderName string) (*models.UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return in.Ingest(ctx, UploadRequest{
		EventName:  eventName,
		EventDate:  eventDate,
		FolderName: folderName,
		Files:      []File{{Filename: filepath.Base(path), Data: data}},
	})
}

// Exists reports whether a file with this name was already stored for the
// event folder. The import watcher uses it to skip files on resync.
func (in *Ingester) Exists(ctx context.Context, eventName, folderName, filename string) (bool, error) {
	photos, err := in.store.FindByEvent(ctx, in.college, strings.TrimSpace(eventName))
	if err != nil {
		return false, err
	}
	folder := FolderPath(strings.TrimSpace(eventName), folderName)
	key := in.college + "/" + cleanFilename(filename)
	for _, p := range photos {
		if p.FolderName == folder && p.Filename == key {
			return true, nil
		}
	}
	return false, nil
}

// FolderPath returns "<event>/<folder>" when folder is non-blank, else "<event>".
func FolderPath(eventName, folderName string) string {
	if f := strings.TrimSpace(folderName); f != "" {
		return eventName + "/" + f
	}
	return eventName
}

// cleanFilename strips any client-supplied directory components.
func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}
