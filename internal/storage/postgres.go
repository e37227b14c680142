package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/models"
)

// PostgresStore implements PhotoStore on PostgreSQL with the pgvector
// extension. The embedding column has no fixed dimension, so models of any
// size can be stored.
type PostgresStore struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

// NewPostgresStore connects to dsn, verifies the connection and initializes the schema.
func NewPostgresStore(dsn, table string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	o := applyOptions(opts)
	s := &PostgresStore{db: db, table: quoteIdent(table), logger: o.logger}
	if err := s.initSchema(table); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(table string) error {
	schema := strings.NewReplacer("{table}", s.table, "{name}", table).Replace(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS {table} (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		college TEXT NOT NULL,
		filename TEXT NOT NULL,
		folder_name TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL,
		event_name TEXT NOT NULL,
		event_date TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		embedding vector,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS "idx_{name}_event" ON {table}(college, event_name);
	`)
	_, err := s.db.Exec(schema)
	return err
}

const pgPhotoColumns = `id, college, filename, folder_name, content_type, image_url,
	event_name, event_date, size_bytes, embedding, created_at, updated_at`

func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(list, ", ")
}

// InsertPhotos inserts all photos in a transaction.
func (s *PostgresStore) InsertPhotos(ctx context.Context, photos []*models.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+s.table+` (`+pgPhotoColumns+`) VALUES (`+placeholders(12)+`)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	for _, p := range photos {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.CreatedAt = now
		p.UpdatedAt = now
		var emb any
		if len(p.Embedding) > 0 {
			emb = pgvector.NewVector(p.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.College, p.Filename, p.FolderName, p.ContentType, p.ImageURL,
			p.EventName, p.EventDate, p.SizeBytes, emb, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert photo %s: %w", p.Filename, err)
		}
	}
	return tx.Commit()
}

// FindByEvent returns the event's photos in insertion order.
func (s *PostgresStore) FindByEvent(ctx context.Context, college, eventName string) ([]*models.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgPhotoColumns+` FROM `+s.table+`
		 WHERE college = $1 AND event_name = $2 ORDER BY seq`,
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
func (s *PostgresStore) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgPhotoColumns+` FROM `+s.table+` WHERE id = $1`, id)
	p, err := s.scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

// DeletePhoto removes a photo by ID.
func (s *PostgresStore) DeletePhoto(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteEvent removes all photos of an event.
func (s *PostgresStore) DeleteEvent(ctx context.Context, college, eventName string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table+` WHERE college = $1 AND event_name = $2`, college, eventName)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListEvents summarizes the college's events, most recently uploaded first.
func (s *PostgresStore) ListEvents(ctx context.Context, college string) ([]*models.EventSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_name, MAX(event_date), COUNT(*), MAX(created_at)
		 FROM `+s.table+` WHERE college = $1
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
		if err := rows.Scan(&ev.EventName, &ev.EventDate, &ev.PhotoCount, &ev.LastUpload); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// CountPhotos returns the total number of photos.
func (s *PostgresStore) CountPhotos(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) scanPhoto(row rowScanner) (*models.Photo, error) {
	var p models.Photo
	var raw []byte
	if err := row.Scan(&p.ID, &p.College, &p.Filename, &p.FolderName, &p.ContentType, &p.ImageURL,
		&p.EventName, &p.EventDate, &p.SizeBytes, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if raw != nil {
		var emb pgvector.Vector
		if err := emb.Scan(raw); err != nil {
			s.logger.Warn("Ignoring malformed embedding",
				zap.String("id", p.ID),
				zap.String("filename", p.Filename),
				zap.Error(err))
		} else {
			p.Embedding = emb.Slice()
		}
	}
	return &p, nil
}
