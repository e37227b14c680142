package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "photos.db"), "photos")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	testPhotoStore(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_InsertAtomic(t *testing.T) {
	testInsertAtomic(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_EmptyBatch(t *testing.T) {
	store := newTestSQLiteStore(t)
	if err := store.InsertPhotos(context.Background(), nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photos.db")
	store, err := NewSQLiteStore(path, "event_images")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.InsertPhotos(ctx, []*models.Photo{newPhoto("c", "e", "p.jpg", []float32{1, 2})}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store, err = NewSQLiteStore(path, "event_images")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	photos, err := store.FindByEvent(ctx, "c", "e")
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 1 || len(photos[0].Embedding) != 2 {
		t.Errorf("reopened store returned %+v", photos)
	}
}

func TestSQLiteStore_MalformedEmbedding(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	good := newPhoto("c", "Fest", "good.jpg", []float32{1, 0})
	bad := newPhoto("c", "Fest", "bad.jpg", []float32{0, 1})
	if err := store.InsertPhotos(ctx, []*models.Photo{good, bad}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec(`UPDATE "photos" SET embedding = x'010203' WHERE id = ?`, bad.ID); err != nil {
		t.Fatal(err)
	}

	photos, err := store.FindByEvent(ctx, "c", "Fest")
	if err != nil {
		t.Fatalf("FindByEvent: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("got %d photos, want 2", len(photos))
	}
	if photos[0].ID != good.ID || len(photos[0].Embedding) != 2 {
		t.Errorf("intact photo = %+v", photos[0])
	}
	if photos[1].ID != bad.ID || photos[1].Embedding != nil {
		t.Errorf("malformed embedding should read as missing, got %v", photos[1].Embedding)
	}

	p, err := store.GetPhoto(ctx, bad.ID)
	if err != nil {
		t.Fatalf("GetPhoto: %v", err)
	}
	if p.Embedding != nil {
		t.Errorf("GetPhoto embedding = %v, want nil", p.Embedding)
	}
}

func TestOpen_sqlite(t *testing.T) {
	store, err := Open(config.StorageConfig{
		Driver:       config.DriverSQLite,
		DatabasePath: filepath.Join(t.TempDir(), "photos.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, ok := store.(*SQLiteStore); !ok {
		t.Errorf("Open returned %T, want *SQLiteStore", store)
	}
}

func TestOpen_unknownDriver(t *testing.T) {
	if _, err := Open(config.StorageConfig{Driver: "mongodb"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
