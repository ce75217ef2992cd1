package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"sitewatch/pkg/logx"
)

// DefaultDedupWindow is how long a sent message suppresses identical
// content for the same site.
const DefaultDedupWindow = 7 * 24 * time.Hour

// DedupStore remembers which messages were already delivered per site
// and suppresses repeats inside a retention window. State lives in
// memory; every mutation is flushed to the backend best-effort, so a
// failed flush degrades durability but never delivery.
type DedupStore struct {
	backend Backend
	window  time.Duration
	now     func() time.Time
	log     logx.Logger

	mu   sync.Mutex
	sent DedupState
}

// NewDedupStore loads persisted state from backend. A load failure is
// logged and treated as empty state.
func NewDedupStore(ctx context.Context, backend Backend, window time.Duration, log logx.Logger) *DedupStore {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	s := &DedupStore{
		backend: backend,
		window:  window,
		now:     time.Now,
		log:     log,
		sent:    make(DedupState),
	}
	state, err := backend.LoadDedup(ctx)
	if err != nil {
		log.Warn("dedup state load failed, starting empty", logx.Err(err))
	} else if state != nil {
		s.sent = state
	}
	// Expired entries must not survive a restart.
	s.mu.Lock()
	for site := range s.sent {
		s.evictLocked(site)
	}
	s.mu.Unlock()
	return s
}

// HashMessage returns the lowercase hex digest used as the dedup key.
func HashMessage(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether message was already recorded for site
// inside the retention window. It does not record.
func (s *DedupStore) IsDuplicate(site, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(site)
	_, ok := s.sent[site][HashMessage(message)]
	return ok
}

// Record marks message as sent for site and flushes.
func (s *DedupStore) Record(ctx context.Context, site, message string) {
	s.mu.Lock()
	s.recordLocked(site, HashMessage(message))
	s.mu.Unlock()
	s.flush(ctx)
}

// CheckAndRecord atomically checks and records in one step. It returns
// true when the message was already known, false when it was fresh and
// has now been recorded.
func (s *DedupStore) CheckAndRecord(ctx context.Context, site, message string) bool {
	hash := HashMessage(message)
	s.mu.Lock()
	s.evictLocked(site)
	if _, ok := s.sent[site][hash]; ok {
		s.mu.Unlock()
		return true
	}
	s.recordLocked(site, hash)
	s.mu.Unlock()
	s.flush(ctx)
	return false
}

func (s *DedupStore) recordLocked(site, hash string) {
	m := s.sent[site]
	if m == nil {
		m = make(map[string]float64)
		s.sent[site] = m
	}
	m[hash] = float64(s.now().UnixNano()) / float64(time.Second)
}

// evictLocked drops entries for site older than the window. Pruning is
// lazy, scoped to the site being touched.
func (s *DedupStore) evictLocked(site string) {
	m := s.sent[site]
	if len(m) == 0 {
		return
	}
	cutoff := float64(s.now().Add(-s.window).UnixNano()) / float64(time.Second)
	for hash, sentAt := range m {
		if sentAt < cutoff {
			delete(m, hash)
		}
	}
	if len(m) == 0 {
		delete(s.sent, site)
	}
}

func (s *DedupStore) flush(ctx context.Context) {
	s.mu.Lock()
	snapshot := make(DedupState, len(s.sent))
	for site, hashes := range s.sent {
		cp := make(map[string]float64, len(hashes))
		for h, t := range hashes {
			cp[h] = t
		}
		snapshot[site] = cp
	}
	s.mu.Unlock()
	if err := s.backend.SaveDedup(ctx, snapshot); err != nil {
		s.log.Warn("dedup state flush failed", logx.Err(err))
	}
}
