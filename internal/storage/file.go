package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	cacheDirName  = "cache"
	dedupFileName = "dedup.json"
	subsFileName  = "subscriptions.json"
)

// fileBackend stores each document as a pretty-printed JSON file under a
// data directory. Writes go through a temp file plus rename so a crash
// never leaves a half-written document behind.
type fileBackend struct {
	mu     sync.Mutex
	dir    string
	closed bool
}

func openFile(cfg Config) (*fileBackend, error) {
	dir := cfg.Path
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(filepath.Join(dir, cacheDirName), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	return &fileBackend{dir: dir}, nil
}

func (b *fileBackend) LoadCache(ctx context.Context, site string) (json.RawMessage, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false, ErrClosed
	}
	raw, err := os.ReadFile(b.cachePath(site))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: read cache %s: %w", site, err)
	}
	return json.RawMessage(raw), true, nil
}

func (b *fileBackend) SaveCache(ctx context.Context, site string, data json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return writeJSONFile(b.cachePath(site), data)
}

func (b *fileBackend) LoadDedup(ctx context.Context) (DedupState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	state := make(DedupState)
	if err := readJSONFile(filepath.Join(b.dir, dedupFileName), &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (b *fileBackend) SaveDedup(ctx context.Context, state DedupState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return writeJSONValue(filepath.Join(b.dir, dedupFileName), state)
}

func (b *fileBackend) LoadSubscriptions(ctx context.Context) ([]SubscriptionRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	var recs []SubscriptionRecord
	if err := readJSONFile(filepath.Join(b.dir, subsFileName), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (b *fileBackend) SaveSubscriptions(ctx context.Context, recs []SubscriptionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if recs == nil {
		recs = []SubscriptionRecord{}
	}
	return writeJSONValue(filepath.Join(b.dir, subsFileName), recs)
}

func (b *fileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fileBackend) cachePath(site string) string {
	return filepath.Join(b.dir, cacheDirName, sanitizeName(site)+".json")
}

// sanitizeName keeps site ids usable as file names. Site ids are already
// short identifiers; this only guards against separators sneaking in.
func sanitizeName(name string) string {
	repl := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	out := repl.Replace(name)
	if out == "" {
		out = "_"
	}
	return out
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", filepath.Base(path), err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSONValue(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", filepath.Base(path), err)
	}
	return writeJSONFile(path, raw)
}

func writeJSONFile(path string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(raw)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		if werr != nil {
			return fmt.Errorf("storage: write %s: %w", filepath.Base(path), werr)
		}
		return fmt.Errorf("storage: write %s: %w", filepath.Base(path), cerr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
