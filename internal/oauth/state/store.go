package state

import (
	"context"
	"sync"
	"time"
)

// Entry is the server-side half of an initiated OAuth flow, paired with the
// signed state token through its nonce.
type Entry struct {
	TenantDomain string
	ReturnURL    string
	ExpiresAt    time.Time
}

// Store holds pending OAuth state entries in process memory. Entries are
// single-use: the first read removes them. The store is only correct for a
// single authentication-handling instance; the interface is small enough to
// back with an external ephemeral store when that changes.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
}

// NewStore creates a Store whose entries default to the given TTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]Entry),
		ttl:     ttl,
	}
}

// Put records a pending flow under the given key.
func (s *Store) Put(key string, e Entry) {
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = time.Now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

// TakeOnce returns the entry for key and deletes it in the same critical
// section, so two concurrent callbacks can never both observe it. Expired
// entries are removed and reported as missing.
func (s *Store) TakeOnce(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	delete(s.entries, key)
	if time.Now().After(e.ExpiresAt) {
		return Entry{}, false
	}
	return e, true
}

// SweepExpired removes stale entries and returns how many were dropped.
func (s *Store) SweepExpired() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of pending entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweep runs SweepExpired on the given interval until ctx is done.
func (s *Store) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepExpired()
			}
		}
	}()
}
