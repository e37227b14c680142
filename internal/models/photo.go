// Package models defines core data structures for photos, search requests, and search results.
package models

import "time"

// Photo is a stored event photo with its image embedding.
type Photo struct {
	ID      string `json:"id" db:"id"`
	College string `json:"college" db:"college"`
	// Filename is "<college>/<original filename>" and doubles as the object key.
	Filename string `json:"filename" db:"filename"`
	// FolderName is "<event>" or "<event>/<folder>".
	FolderName  string    `json:"folder_name" db:"folder_name"`
	ContentType string    `json:"content_type" db:"content_type"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	EventName   string    `json:"event_name" db:"event_name"`
	EventDate   string    `json:"event_date" db:"event_date"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	Embedding   []float32 `json:"-" db:"embedding"` // nil when the photo was stored without one
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// HasEmbedding reports whether the photo can take part in a search.
func (p *Photo) HasEmbedding() bool {
	return len(p.Embedding) > 0
}

// EventSummary describes one event's stored photos.
type EventSummary struct {
	EventName  string    `json:"event_name"`
	EventDate  string    `json:"event_date"`
	PhotoCount int       `json:"photo_count"`
	LastUpload time.Time `json:"last_upload"`
}

// UploadResult reports the outcome of an upload batch.
type UploadResult struct {
	Message     string         `json:"message"`
	EventName   string         `json:"event_name"`
	FolderName  string         `json:"folder_name"`
	ImagesCount int            `json:"images_count"`
	TotalSizeKB float64        `json:"total_size_kb"`
	Photos      []*Photo       `json:"photos,omitempty"`
	Failed      []*FileFailure `json:"failed,omitempty"`
}

// FileFailure explains why one uploaded file was skipped.
type FileFailure struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}
