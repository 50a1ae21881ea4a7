package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const metaSuffix = ".meta"

// LocalStore keeps blobs under a directory, with a JSON sidecar per blob
// holding its content type, size and hash.
type LocalStore struct {
	root    string
	maxSize int64
}

func NewLocalStore(dir string, maxSize int64) (*LocalStore, error) {
	if dir == "" {
		dir = "./media"
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir %q: %w", root, err)
	}
	return &LocalStore{root: root, maxSize: maxSize}, nil
}

func (s *LocalStore) pathFor(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

func (s *LocalStore) Put(_ context.Context, key string, content io.Reader, contentType string) (*Object, error) {
	full, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	data, err := readAll(content, s.maxSize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	obj := Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hashOf(data),
		CreatedAt:   time.Now().UTC(),
	}

	if err := os.WriteFile(full, data, 0o600); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	meta, err := json.Marshal(obj)
	if err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("encode blob metadata: %w", err)
	}
	if err := os.WriteFile(full+metaSuffix, meta, 0o600); err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("write blob metadata: %w", err)
	}
	return &obj, nil
}

func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	full, err := s.pathFor(key)
	if err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(full + metaSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	} else if err != nil {
		return nil, nil, fmt.Errorf("read blob metadata: %w", err)
	}
	var obj Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, fmt.Errorf("decode blob metadata: %w", err)
	}

	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	} else if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, &obj, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	full, err := s.pathFor(key)
	if err != nil {
		return err
	}
	os.Remove(full + metaSuffix)
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
