// Package blobstore stores uploaded files (medical record attachments, doctor
// profile pictures) by key. Backends: in-memory for tests, the local
// filesystem for development and S3 for production.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrInvalidKey      = errors.New("invalid blob key")
)

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the contract shared by the storage backends.
type Store interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

// Options selects and configures a backend.
type Options struct {
	Backend  string // memory, local or s3
	Dir      string
	Bucket   string
	Region   string
	Endpoint string
	MaxSize  int64
}

// New builds the Store named by opts.Backend.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "local":
		return NewLocalStore(opts.Dir, opts.MaxSize)
	case "memory":
		return NewInMemoryStore(opts.MaxSize), nil
	case "s3":
		return NewS3Store(S3Options{
			Bucket:   opts.Bucket,
			Region:   opts.Region,
			Endpoint: opts.Endpoint,
			MaxSize:  opts.MaxSize,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// Join builds a key from path segments, e.g. records/lab/<id>/report.pdf.
func Join(segments ...string) string {
	return path.Join(segments...)
}

// CleanFileName reduces a client-supplied file name to a safe base name.
func CleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '\x00' || unicode.IsControl(r):
			continue
		case r == '/' || r == '"':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "." || cleaned == ".." {
		return ""
	}
	return cleaned
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// readAll reads content fully, enforcing maxSize when positive.
func readAll(content io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, fmt.Errorf("reading content: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(content, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func hashOf(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

type storedBlob struct {
	object  Object
	content []byte
}

// InMemoryStore is a thread-safe Store for tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
}

func NewInMemoryStore(maxSize int64) *InMemoryStore {
	return &InMemoryStore{
		blobs:   make(map[string]*storedBlob),
		maxSize: maxSize,
	}
}

func (s *InMemoryStore) Put(_ context.Context, key string, content io.Reader, contentType string) (*Object, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	data, err := readAll(content, s.maxSize)
	if err != nil {
		return nil, err
	}

	obj := Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hashOf(data),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{object: obj, content: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	obj := blob.object
	return io.NopCloser(bytes.NewReader(blob.content)), &obj, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len reports the number of stored blobs.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
