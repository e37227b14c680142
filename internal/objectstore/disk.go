package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DiskStore writes objects under a root directory.
type DiskStore struct {
	root          string
	publicBaseURL string
}

// NewDiskStore creates root if needed. URLs are publicBaseURL/key when set,
// otherwise file:// URLs.
func NewDiskStore(root, publicBaseURL string) (*DiskStore, error) {
	if root == "" {
		return nil, fmt.Errorf("object store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	return &DiskStore{root: abs, publicBaseURL: publicBaseURL}, nil
}

// Put writes body to root/key, replacing any existing object.
func (s *DiskStore) Put(ctx context.Context, key string, body []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := writeAtomic(dst, body); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if s.publicBaseURL != "" {
		return joinURL(s.publicBaseURL, key), nil
	}
	return joinURL("file://"+filepath.ToSlash(s.root), key), nil
}

// writeAtomic writes body to a unique temp file next to dst and renames it
// into place, so concurrent writers of the same key never share a temp path.
func writeAtomic(dst string, body []byte) error {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Chmod(0644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Root returns the absolute root directory.
func (s *DiskStore) Root() string { return s.root }

// Close is a no-op for DiskStore.
func (s *DiskStore) Close() error { return nil }
