package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gridshare/platform/internal/domain"
)

// MemoryStore keeps encoded records in memory. Reads decode fresh copies so
// callers can never mutate the log. Used by tests and STORE_BACKEND=memory.
type MemoryStore struct {
	mu       sync.Mutex
	registry *Registry
	opts     options
	records  []domain.EventRecord
	index    map[string][]int
	pending  []int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(registry *Registry, opts ...Option) *MemoryStore {
	return &MemoryStore{
		registry: registry,
		opts:     buildOptions(opts),
		index:    make(map[string][]int),
	}
}

func (s *MemoryStore) Append(_ context.Context, ev domain.PermissionEvent) (domain.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pid := ev.PermissionID()
	var last *domain.EventRecord
	if positions := s.index[pid]; len(positions) > 0 {
		last = &s.records[positions[len(positions)-1]]
	}

	if err := s.opts.guard(lastStatus(last), last != nil, ev.Status()); err != nil {
		return domain.StoredEvent{}, err
	}

	domain.Stamp(ev, s.opts.clock())
	rec, err := s.registry.Encode(ev)
	if err != nil {
		return domain.StoredEvent{}, &PersistenceError{PermissionID: pid, Err: err}
	}
	if rec.RegionID == "" && last != nil {
		rec.RegionID = last.RegionID
	}

	rec.ID = int64(len(s.records) + 1)
	s.records = append(s.records, rec)
	s.index[pid] = append(s.index[pid], len(s.records)-1)
	s.pending = append(s.pending, rec.ID)

	return domain.StoredEvent{ID: rec.ID, Event: ev}, nil
}

func (s *MemoryStore) FindByPermissionID(_ context.Context, permissionID string) ([]domain.StoredEvent, error) {
	s.mu.Lock()
	positions := s.index[permissionID]
	records := make([]domain.EventRecord, 0, len(positions))
	for _, p := range positions {
		records = append(records, s.records[p])
	}
	s.mu.Unlock()

	return s.registry.decodeAll(records)
}

func (s *MemoryStore) Unpublished(_ context.Context, limit int) ([]domain.StoredEvent, error) {
	s.mu.Lock()
	n := max(0, min(limit, len(s.pending)))
	records := make([]domain.EventRecord, 0, n)
	for _, id := range s.pending[:n] {
		records = append(records, s.records[id-1])
	}
	s.mu.Unlock()

	return s.registry.decodeAll(records)
}

func (s *MemoryStore) MarkPublished(_ context.Context, ids []int64) error {
	done := make(map[int64]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[:0]
	for _, id := range s.pending {
		if !done[id] {
			kept = append(kept, id)
		}
	}
	s.pending = kept
	return nil
}

func (s *MemoryStore) LatestByStatus(_ context.Context, status domain.Status, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for pid, positions := range s.index {
		latest := s.records[positions[len(positions)-1]]
		if latest.Status == status && latest.EventCreated.Before(before) {
			ids = append(ids, pid)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func lastStatus(rec *domain.EventRecord) domain.Status {
	if rec == nil {
		return ""
	}
	return rec.Status
}
