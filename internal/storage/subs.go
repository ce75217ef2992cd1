package storage

import (
	"context"
	"sync"

	"sitewatch/pkg/logx"
)

// Key identifies one subscriber. Private chats and groups with the same
// platform id are distinct subscribers.
type Key struct {
	ID      string
	IsGroup bool
}

// Subscriber is the delivery view of a subscriber: identity plus the
// session token the transport layer needs to reach it.
type Subscriber struct {
	Key
	Session string
}

type subRecord struct {
	sites   []string
	siteSet map[string]struct{}
	session string
}

// SubscriptionStore maps subscribers to the sites they follow.
// Iteration order is stable: subscribers in first-subscribe order, and
// each subscriber's site list in the order sites were added.
type SubscriptionStore struct {
	backend Backend
	log     logx.Logger

	mu    sync.Mutex
	order []Key
	recs  map[Key]*subRecord
}

// NewSubscriptionStore loads persisted records from backend. A load
// failure is logged and treated as an empty store.
func NewSubscriptionStore(ctx context.Context, backend Backend, log logx.Logger) *SubscriptionStore {
	s := &SubscriptionStore{
		backend: backend,
		log:     log,
		recs:    make(map[Key]*subRecord),
	}
	recs, err := backend.LoadSubscriptions(ctx)
	if err != nil {
		log.Warn("subscription load failed, starting empty", logx.Err(err))
		return s
	}
	for _, rec := range recs {
		key := Key{ID: rec.ID, IsGroup: rec.IsGroup}
		r := s.record(key)
		r.session = rec.Session
		for _, site := range rec.Sites {
			if _, ok := r.siteSet[site]; ok {
				continue
			}
			r.siteSet[site] = struct{}{}
			r.sites = append(r.sites, site)
		}
	}
	return s
}

// Subscribe adds site to key's set and refreshes its session token.
// Re-subscribing to an already-held site is idempotent. The return is
// false only when persisting the change failed; in-memory state is
// updated either way and stays authoritative for this process.
func (s *SubscriptionStore) Subscribe(ctx context.Context, key Key, site, session string) bool {
	s.mu.Lock()
	r := s.record(key)
	if session != "" {
		r.session = session
	}
	if _, held := r.siteSet[site]; !held {
		r.siteSet[site] = struct{}{}
		r.sites = append(r.sites, site)
	}
	s.mu.Unlock()
	return s.flush(ctx) == nil
}

// Unsubscribe removes site from key's set. It returns false when the
// entry was absent or when persisting the removal failed; use Sites to
// tell the two apart. A subscriber whose set becomes empty is dropped.
func (s *SubscriptionStore) Unsubscribe(ctx context.Context, key Key, site string) bool {
	s.mu.Lock()
	r, ok := s.recs[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if _, held := r.siteSet[site]; !held {
		s.mu.Unlock()
		return false
	}
	delete(r.siteSet, site)
	for i, name := range r.sites {
		if name == site {
			r.sites = append(r.sites[:i], r.sites[i+1:]...)
			break
		}
	}
	if len(r.sites) == 0 {
		delete(s.recs, key)
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	return s.flush(ctx) == nil
}

// Sites returns key's subscribed sites in subscription order.
func (s *SubscriptionStore) Sites(key Key) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[key]
	if !ok {
		return nil
	}
	out := make([]string, len(r.sites))
	copy(out, r.sites)
	return out
}

// Subscribers returns everyone who should receive updates from site:
// explicit subscribers plus holders of the wildcard subscription, in
// first-subscribe order with each subscriber listed once.
//
// The store does not know which sites exist; site must be the id of a
// registered site. Passing an arbitrary string would still surface
// wildcard holders.
func (s *SubscriptionStore) Subscribers(site string) []Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Subscriber
	for _, key := range s.order {
		r := s.recs[key]
		_, direct := r.siteSet[site]
		_, wildcard := r.siteSet[AllSites]
		if !direct && !wildcard {
			continue
		}
		out = append(out, Subscriber{Key: key, Session: r.session})
	}
	return out
}

// All returns every subscriber record in first-subscribe order.
func (s *SubscriptionStore) All() []SubscriptionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SubscriptionStore) record(key Key) *subRecord {
	r, ok := s.recs[key]
	if !ok {
		r = &subRecord{siteSet: make(map[string]struct{})}
		s.recs[key] = r
		s.order = append(s.order, key)
	}
	return r
}

func (s *SubscriptionStore) snapshotLocked() []SubscriptionRecord {
	out := make([]SubscriptionRecord, 0, len(s.order))
	for _, key := range s.order {
		r := s.recs[key]
		sites := make([]string, len(r.sites))
		copy(sites, r.sites)
		out = append(out, SubscriptionRecord{
			ID:      key.ID,
			IsGroup: key.IsGroup,
			Sites:   sites,
			Session: r.session,
		})
	}
	return out
}

func (s *SubscriptionStore) flush(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	if err := s.backend.SaveSubscriptions(ctx, snapshot); err != nil {
		s.log.Warn("subscription flush failed", logx.Err(err))
		return err
	}
	return nil
}
