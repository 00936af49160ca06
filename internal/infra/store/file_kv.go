package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ repository.KVStore = (*FileKV)(nil)

// FileKV persists the whole key space as one JSON document, rewritten
// atomically on every change.
type FileKV struct {
	mu   sync.Mutex
	path string
	data map[string]string
	log  *zerolog.Logger
}

type fileDocument struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

// OpenFileKV loads path if it exists. A corrupt file is logged and treated as
// empty; it is replaced on the next write.
func OpenFileKV(path string, logger *zerolog.Logger) (*FileKV, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("file store: path is required")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	kv := &FileKV{path: filepath.Clean(path), data: map[string]string{}, log: logger}
	raw, err := os.ReadFile(kv.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return kv, nil
		}
		return nil, fmt.Errorf("file store: read %s: %w", kv.path, err)
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		metrics.IncStoreDiscarded("file_document")
		logger.Warn().Err(err).Str("path", kv.path).Msg("state file unreadable; starting empty")
		return kv, nil
	}
	if doc.Entries != nil {
		kv.data = doc.Entries
	}
	return kv, nil
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		metrics.IncStoreOp("file", "get", "miss")
		return nil, domain.ErrNotFound
	}
	metrics.IncStoreOp("file", "get", "hit")
	return []byte(v), nil
}

func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	f.data[key] = string(value)
	if err := f.flushLocked(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		metrics.IncStoreOp("file", "set", "error")
		return err
	}
	metrics.IncStoreOp("file", "set", "ok")
	return nil
}

func (f *FileKV) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flushLocked(); err != nil {
		f.data[key] = prev
		metrics.IncStoreOp("file", "del", "error")
		return err
	}
	metrics.IncStoreOp("file", "del", "ok")
	return nil
}

func (f *FileKV) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0)
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *FileKV) Close() error { return nil }

func (f *FileKV) flushLocked() error {
	data, err := json.Marshal(fileDocument{Version: 1, Entries: f.data})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(f.path, data, 0o600)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
