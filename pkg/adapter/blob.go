package adapter

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/gapassess/gap/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// BlobStore is a key/value store of whole string blobs. There is no partial update
// primitive: callers read, modify and write back complete values.
type BlobStore interface {
	// Get returns model.ErrBlobNotFound when key is absent
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key
	Set(ctx context.Context, key string, data []byte) error
	// Remove deletes key. Removing an absent key is not an error
	Remove(ctx context.Context, key string) error
}

// memoryBlobStore keeps blobs in process memory
type memoryBlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBlobStore creates a process-local BlobStore
func NewMemoryBlobStore() BlobStore {
	return &memoryBlobStore{data: make(map[string][]byte)}
}

func (s *memoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrBlobNotFound, "no blob for key", goerr.V("key", key))
	}
	return append([]byte(nil), data...), nil
}

func (s *memoryBlobStore) Set(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *memoryBlobStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// fileBlobStore keeps one file per key under a directory
type fileBlobStore struct {
	dir string
}

// NewFileBlobStore creates a BlobStore persisting blobs as files in dir
func NewFileBlobStore(dir string) (BlobStore, error) {
	if dir == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "blob directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, goerr.Wrap(err, "failed to create blob directory", goerr.V("dir", dir))
	}
	return &fileBlobStore{dir: dir}, nil
}

func (s *fileBlobStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

func (s *fileBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, goerr.Wrap(model.ErrBlobNotFound, "no blob for key", goerr.V("key", key))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read blob", goerr.V("key", key))
	}
	return data, nil
}

func (s *fileBlobStore) Set(ctx context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".blob-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp blob", goerr.V("key", key))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to write blob", goerr.V("key", key))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close blob", goerr.V("key", key))
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return goerr.Wrap(err, "failed to replace blob", goerr.V("key", key))
	}
	return nil
}

func (s *fileBlobStore) Remove(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return goerr.Wrap(err, "failed to remove blob", goerr.V("key", key))
	}
	return nil
}
