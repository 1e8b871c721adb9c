// Package store persists option-chain snapshots for the quote cache.
package store

import (
	"context"
	"time"

	"ivsurface/internal/models"
)

// SnapshotStore defines the interface for snapshot persistence.
// Implementations hold at most one snapshot per ticker.
type SnapshotStore interface {
	// SaveSnapshot stores snap, replacing any earlier snapshot for the same ticker.
	SaveSnapshot(ctx context.Context, snap *models.OptionChainSnapshot) error
	// GetSnapshot returns errors.ErrDataNotFound when no snapshot is stored for ticker.
	GetSnapshot(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error)
	DeleteSnapshot(ctx context.Context, ticker string) error
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)
	// Purge removes snapshots fetched before olderThan and reports how many went.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
	// Clear removes every snapshot.
	Clear(ctx context.Context) (int, error)

	// Lifecycle
	Close() error
}

// SnapshotInfo summarises a stored snapshot without its points.
type SnapshotInfo struct {
	Ticker      string    `json:"ticker"`
	SpotPrice   float64   `json:"spot_price"`
	FetchedAt   time.Time `json:"fetched_at"`
	Points      int       `json:"points"`
	Expirations int       `json:"expirations"`
}

func infoOf(snap *models.OptionChainSnapshot) SnapshotInfo {
	return SnapshotInfo{
		Ticker:      snap.Ticker,
		SpotPrice:   snap.SpotPrice,
		FetchedAt:   snap.FetchedAt,
		Points:      len(snap.Points),
		Expirations: len(snap.Expirations()),
	}
}

func cloneSnapshot(snap *models.OptionChainSnapshot) *models.OptionChainSnapshot {
	c := *snap
	c.Points = append([]models.ContractPoint(nil), snap.Points...)
	return &c
}
