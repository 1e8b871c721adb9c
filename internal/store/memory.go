package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*models.OptionChainSnapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*models.OptionChainSnapshot)}
}

func (s *MemoryStore) SaveSnapshot(ctx context.Context, snap *models.OptionChainSnapshot) error {
	if snap == nil || snap.Ticker == "" {
		return errors.NewValidationError("snapshot", snap, "snapshot must have a ticker")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.Ticker] = cloneSnapshot(snap)
	return nil
}

func (s *MemoryStore) GetSnapshot(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[ticker]
	if !ok {
		return nil, errors.Wrapf(errors.ErrDataNotFound, "no snapshot for %s", ticker)
	}
	return cloneSnapshot(snap), nil
}

func (s *MemoryStore) DeleteSnapshot(ctx context.Context, ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, ticker)
	return nil
}

func (s *MemoryStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]SnapshotInfo, 0, len(s.snaps))
	for _, snap := range s.snaps {
		infos = append(infos, infoOf(snap))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Ticker < infos[j].Ticker })
	return infos, nil
}

func (s *MemoryStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ticker, snap := range s.snaps {
		if snap.FetchedAt.Before(olderThan) {
			delete(s.snaps, ticker)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.snaps)
	s.snaps = make(map[string]*models.OptionChainSnapshot)
	return n, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
