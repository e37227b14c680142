package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/snapfind/internal/models"
)

func newPhoto(college, event, name string, emb []float32) *models.Photo {
	return &models.Photo{
		College:     college,
		Filename:    college + "/" + name,
		FolderName:  event,
		ContentType: "image/jpeg",
		ImageURL:    "local://" + college + "/" + name,
		EventName:   event,
		EventDate:   "2024-03-01",
		SizeBytes:   1024,
		Embedding:   emb,
	}
}

// testPhotoStore runs the PhotoStore contract against store, which must be empty.
func testPhotoStore(t *testing.T, store PhotoStore) {
	ctx := context.Background()

	batch := []*models.Photo{
		newPhoto("TestImages", "Convocation", "c.jpg", []float32{0.25, -1, 3.5}),
		newPhoto("TestImages", "Convocation", "a.jpg", []float32{1, 0, 0}),
		newPhoto("TestImages", "Convocation", "b.jpg", nil),
		newPhoto("TestImages", "Sports Day", "relay.jpg", []float32{0, 1, 0}),
		newPhoto("OtherCollege", "Convocation", "x.jpg", []float32{0, 0, 1}),
	}
	if err := store.InsertPhotos(ctx, batch); err != nil {
		t.Fatal(err)
	}
	for _, p := range batch {
		if p.ID == "" || p.CreatedAt.IsZero() {
			t.Fatalf("ID and CreatedAt should be set: %+v", p)
		}
	}

	photos, err := store.FindByEvent(ctx, "TestImages", "Convocation")
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 3 {
		t.Fatalf("FindByEvent returned %d photos, want 3", len(photos))
	}
	for i, want := range []string{"TestImages/c.jpg", "TestImages/a.jpg", "TestImages/b.jpg"} {
		if photos[i].Filename != want {
			t.Errorf("photos[%d] = %s, want %s (insertion order)", i, photos[i].Filename, want)
		}
	}
	if got := photos[0].Embedding; len(got) != 3 || got[0] != 0.25 || got[1] != -1 || got[2] != 3.5 {
		t.Errorf("embedding round trip = %v", got)
	}
	if photos[2].HasEmbedding() {
		t.Error("photo stored without embedding should come back without one")
	}

	none, err := store.FindByEvent(ctx, "TestImages", "No Such Event")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unknown event returned %d photos", len(none))
	}

	got, err := store.GetPhoto(ctx, batch[3].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "TestImages/relay.jpg" || got.EventName != "Sports Day" {
		t.Errorf("GetPhoto = %+v", got)
	}
	if _, err := store.GetPhoto(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPhoto(missing) err = %v, want ErrNotFound", err)
	}

	events, err := store.ListEvents(ctx, "TestImages")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("ListEvents returned %d events, want 2", len(events))
	}
	counts := map[string]int{}
	for _, ev := range events {
		counts[ev.EventName] = ev.PhotoCount
	}
	if counts["Convocation"] != 3 || counts["Sports Day"] != 1 {
		t.Errorf("event counts = %v", counts)
	}

	n, err := store.CountPhotos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("CountPhotos = %d, want 5", n)
	}

	if err := store.DeletePhoto(ctx, batch[1].ID); err != nil {
		t.Fatal(err)
	}
	if err := store.DeletePhoto(ctx, batch[1].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePhoto err = %v, want ErrNotFound", err)
	}

	removed, err := store.DeleteEvent(ctx, "TestImages", "Convocation")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("DeleteEvent removed %d, want 2", removed)
	}
	other, _ := store.FindByEvent(ctx, "OtherCollege", "Convocation")
	if len(other) != 1 {
		t.Error("DeleteEvent must stay within its college")
	}
}

// testInsertAtomic checks that a failing batch leaves nothing behind.
func testInsertAtomic(t *testing.T, store PhotoStore) {
	ctx := context.Background()
	dup := newPhoto("TestImages", "Atomic", "one.jpg", []float32{1})
	dup.ID = "same-id"
	again := newPhoto("TestImages", "Atomic", "two.jpg", []float32{1})
	again.ID = "same-id"
	if err := store.InsertPhotos(ctx, []*models.Photo{dup, again}); err == nil {
		t.Fatal("expected duplicate ID to fail the batch")
	}
	photos, err := store.FindByEvent(ctx, "TestImages", "Atomic")
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 0 {
		t.Errorf("failed batch left %d photos behind", len(photos))
	}
}
