package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// defaultSweepInterval is how often the background sweep evicts expired
// entries that were never popped.
const defaultSweepInterval = time.Minute

// MemoryStore keeps pending entries in process memory. Suitable for a
// single-instance deployment; use the Redis store when running more than
// one replica behind a load balancer.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]Entry
}

// NewMemoryStore creates an empty in-memory store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		items: make(map[string]Entry),
	}
}

// Put saves an entry under its token.
func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	if entry.Token == "" {
		return fmt.Errorf("correlation: empty token")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[entry.Token] = entry
	return nil
}

// Pop removes and returns the entry for a token. Expired entries are
// evicted and reported as absent.
func (s *MemoryStore) Pop(_ context.Context, token string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[token]
	if !ok {
		return Entry{}, false, nil
	}
	delete(s.items, token)
	if time.Since(entry.CreatedAt) > s.ttl {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Start launches the background sweep loop.
func (s *MemoryStore) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("correlation sweeper started (ttl=%s)", s.ttl)
}

func (s *MemoryStore) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(defaultSweepInterval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
		if removed := s.sweep(); removed > 0 {
			log.Debugf("correlation sweep evicted %d expired entries", removed)
		}
	}
}

// sweep evicts all expired entries and returns how many were removed.
func (s *MemoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	for token, entry := range s.items {
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.items, token)
			removed++
		}
	}
	return removed
}
