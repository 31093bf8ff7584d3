package durable

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"go.trai.ch/zerr"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// fileEnvelope is what a FileStore writes: the key next to its record, so
// Keys can be answered without an index.
type fileEnvelope struct {
	Key    string          `json:"key"`
	Record json.RawMessage `json:"record"`
}

// FileStore keeps one JSON file per key in a directory. File names are the
// xxhash of the key, so any key is a safe file name.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	closed bool
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create cache directory"), "dir", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) filename(key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%016x.json", xxhash.Sum64String(key)))
}

func (s *FileStore) readEnvelope(path string) (*fileEnvelope, error) {
	//nolint:gosec // Path is built from the store directory and a hashed name
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, zerr.Wrap(ErrCorruptRecord, err.Error())
	}
	return &env, nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	env, err := s.readEnvelope(s.filename(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read cache record"), "key", key)
	}
	if env.Key != key {
		// Hash collision with another key: not ours.
		return nil, nil
	}

	rec, err := DecodeRecord(env.Record)
	if err != nil {
		return nil, zerr.With(err, "key", key)
	}
	return rec, nil
}

// Put implements Store. The file is written next to its final name and
// renamed into place so readers never see a partial record.
func (s *FileStore) Put(_ context.Context, key string, rec Record) error {
	raw, err := EncodeRecord(rec)
	if err != nil {
		return zerr.With(err, "key", key)
	}
	data, err := json.Marshal(fileEnvelope{Key: key, Record: raw})
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to encode cache file"), "key", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	path := s.filename(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write cache record"), "key", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return zerr.With(zerr.Wrap(err, "failed to write cache record"), "key", key)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	for _, key := range keys {
		err := os.Remove(s.filename(key))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return zerr.With(zerr.Wrap(err, "failed to delete cache record"), "key", key)
		}
	}
	return nil
}

// Keys implements Store. Unreadable files are skipped.
func (s *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to list cache directory"), "dir", s.dir)
	}

	var keys []string
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		env, err := s.readEnvelope(filepath.Join(s.dir, de.Name()))
		if err != nil {
			continue
		}
		if strings.HasPrefix(env.Key, prefix) {
			keys = append(keys, env.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Store. A FileStore holds no open handles; Close only
// makes later calls fail with ErrClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
