package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/models"
	"github.com/hyperjump/snapfind/internal/vector"
)

// SQLiteStore implements PhotoStore using SQLite. Embeddings are stored as
// little-endian float32 BLOBs; timestamps as Unix milliseconds.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath, table string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	o := applyOptions(opts)
	s := &SQLiteStore{db: db, table: quoteIdent(table), logger: o.logger}
	if err := s.initSchema(table); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(table string) error {
	schema := strings.NewReplacer("{table}", s.table, "{name}", table).Replace(`
	CREATE TABLE IF NOT EXISTS {table} (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		college TEXT NOT NULL,
		filename TEXT NOT NULL,
		folder_name TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL,
		event_name TEXT NOT NULL,
		event_date TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		embedding BLOB,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS "idx_{name}_event" ON {table}(college, event_name);
	`)
	_, err := s.db.Exec(schema)
	return err
}

const sqlitePhotoColumns = `id, college, filename, folder_name, content_type, image_url,
	event_name, event_date, size_bytes, embedding, created_at, updated_at`

// InsertPhotos inserts all photos in a transaction.
func (s *SQLiteStore) InsertPhotos(ctx context.Context, photos []*models.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+s.table+` (`+sqlitePhotoColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, p := range photos {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.CreatedAt = now
		p.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.College, p.Filename, p.FolderName, p.ContentType, p.ImageURL,
			p.EventName, p.EventDate, p.SizeBytes, blobOrNull(p.Embedding),
			now.UnixMilli(), now.UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to insert photo %s: %w", p.Filename, err)
		}
	}
	return tx.Commit()
}

// FindByEvent returns the event's photos in insertion order.
func (s *SQLiteStore) FindByEvent(ctx context.Context, college, eventName string) ([]*models.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePhotoColumns+` FROM `+s.table+`
		 WHERE college = ? AND event_name = ? ORDER BY seq`,
		college, eventName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		p, err := s.scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// GetPhoto returns a photo by ID.
func (s *SQLiteStore) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePhotoColumns+` FROM `+s.table+` WHERE id = ?`, id)
	p, err := s.scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

// DeletePhoto removes a photo by ID.
func (s *SQLiteStore) DeletePhoto(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteEvent removes all photos of an event.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, college, eventName string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table+` WHERE college = ? AND event_name = ?`, college, eventName)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListEvents summarizes the college's events, most recently uploaded first.
func (s *SQLiteStore) ListEvents(ctx context.Context, college string) ([]*models.EventSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_name, MAX(event_date), COUNT(*), MAX(created_at)
		 FROM `+s.table+` WHERE college = ?
		 GROUP BY event_name ORDER BY MAX(seq) DESC`,
		college,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.EventSummary
	for rows.Next() {
		var ev models.EventSummary
		var last int64
		if err := rows.Scan(&ev.EventName, &ev.EventDate, &ev.PhotoCount, &last); err != nil {
			return nil, err
		}
		ev.LastUpload = time.UnixMilli(last).UTC()
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// CountPhotos returns the total number of photos.
func (s *SQLiteStore) CountPhotos(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanPhoto(row rowScanner) (*models.Photo, error) {
	var p models.Photo
	var blob []byte
	var created, updated int64
	if err := row.Scan(&p.ID, &p.College, &p.Filename, &p.FolderName, &p.ContentType, &p.ImageURL,
		&p.EventName, &p.EventDate, &p.SizeBytes, &blob, &created, &updated); err != nil {
		return nil, err
	}
	emb, err := vector.Decode(blob)
	if err != nil {
		s.logger.Warn("Ignoring malformed embedding",
			zap.String("id", p.ID),
			zap.String("filename", p.Filename),
			zap.Int("bytes", len(blob)),
			zap.Error(err))
		emb = nil
	}
	p.Embedding = emb
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return &p, nil
}

func blobOrNull(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return vector.Encode(vec)
}
