package port

import (
	"context"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

type SnapshotCache interface {
	// LoadInventorySnapshot returns the last saved snapshot, nil if none exists
	LoadInventorySnapshot(ctx context.Context, scope string) (*domain.InventorySnapshot, error)

	// SaveInventorySnapshot stores snap unless a snapshot at a higher seq is
	// already saved; returns false when it was skipped
	SaveInventorySnapshot(ctx context.Context, snap domain.InventorySnapshot) (bool, error)
}
