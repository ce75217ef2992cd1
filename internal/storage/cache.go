package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// CacheStore gives site plugins a typed view over their per-site blob.
// Each site owns exactly one document; the store never interprets it.
type CacheStore struct {
	backend Backend
}

func NewCacheStore(backend Backend) *CacheStore {
	return &CacheStore{backend: backend}
}

// Load decodes the stored blob for site into v. It reports whether a
// blob existed; on false, v is left untouched.
func (s *CacheStore) Load(ctx context.Context, site string, v any) (bool, error) {
	raw, ok, err := s.backend.LoadCache(ctx, site)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("storage: decode cache %s: %w", site, err)
	}
	return true, nil
}

// Save replaces the stored blob for site with the encoding of v.
func (s *CacheStore) Save(ctx context.Context, site string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode cache %s: %w", site, err)
	}
	return s.backend.SaveCache(ctx, site, raw)
}
