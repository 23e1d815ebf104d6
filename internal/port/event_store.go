package port

import (
	"context"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

type InventoryEventStore interface {
	// AppendInventoryEvent durably appends evt and returns its sequence number
	AppendInventoryEvent(ctx context.Context, evt domain.InventoryEvent) (int64, error)

	// ListInventoryEvents returns the scope's events with seq > afterSeq, ordered by seq
	ListInventoryEvents(ctx context.Context, scope string, afterSeq int64) ([]domain.InventoryEvent, error)
}

type AccessEventStore interface {
	// AppendAccessEvent durably appends evt and returns its sequence number
	AppendAccessEvent(ctx context.Context, evt domain.AccessEvent) (int64, error)

	// ListAccessEvents returns the company's events with seq > afterSeq, ordered by seq
	ListAccessEvents(ctx context.Context, companyID string, afterSeq int64) ([]domain.AccessEvent, error)
}

// EventStore is the append-only log both projections are folded from.
type EventStore interface {
	InventoryEventStore
	AccessEventStore
}
