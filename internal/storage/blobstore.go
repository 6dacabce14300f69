// Package storage provides S3-compatible object storage and a BlobStore
// abstraction for extracted invoice attachments.
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore writes and reads attachment blobs by key. Keys use forward
// slashes (e.g. "invoices/<accountID>/<messageID>/<filename>"). Upload is
// idempotent: re-uploading the same key overwrites in place.
type BlobStore interface {
	// Upload stores data under key and returns the stored locator.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// FSBlobStore stores blobs on the local filesystem, for development and tests.
type FSBlobStore struct {
	root string
}

// NewFSBlobStore creates a filesystem-backed blob store.
func NewFSBlobStore(root string) *FSBlobStore {
	return &FSBlobStore{root: filepath.Clean(root)}
}

// Upload writes data to key (path relative to root). Content type is ignored
// on the filesystem; it only matters for object stores.
func (f *FSBlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path := filepath.Join(f.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Read reads a blob by key.
func (f *FSBlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	path := filepath.Join(f.root, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// S3BlobStore stores blobs in S3-compatible object storage.
type S3BlobStore struct {
	client *S3Client
	prefix string
}

// NewS3BlobStore creates an S3-backed blob store with optional key prefix.
func NewS3BlobStore(client *S3Client, prefix string) *S3BlobStore {
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return &S3BlobStore{client: client, prefix: prefix}
}

// Upload writes data to key and returns the bucket-qualified locator.
func (s *S3BlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	fullKey := s.prefix + key
	if err := s.client.PutBytes(ctx, fullKey, data, contentType); err != nil {
		return "", err
	}
	return s.client.Locator(fullKey), nil
}

// Read reads a blob by key.
func (s *S3BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	return s.client.Get(ctx, s.prefix+key)
}

// NewBlobStore returns a BlobStore from env. If S3 env vars are set, returns
// an S3BlobStore; otherwise an FSBlobStore rooted at dataDir.
func NewBlobStore(dataDir string) (BlobStore, error) {
	cfg := ConfigFromEnv()
	if cfg != nil && cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		client, err := NewS3Client(cfg)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(context.Background()); err != nil {
			return nil, err
		}
		return NewS3BlobStore(client, "invoices"), nil
	}
	return NewFSBlobStore(filepath.Join(dataDir, "invoices")), nil
}
